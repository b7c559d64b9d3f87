package app

import (
	"testing"

	"github.com/klokku/budgetly/internal/config"
	"github.com/klokku/budgetly/pkg/period"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCalculator(t *testing.T) {
	t.Run("should use configured divisors", func(t *testing.T) {
		// given
		cfg := config.Divisors{Weekly: "4", Biweekly: "2", Daily: "30"}

		// when
		calculator, err := newCalculator(cfg)

		// then
		require.NoError(t, err)
		weekly, err := calculator.PeriodBudgetAmount(decimal.NewFromInt(100), period.Weekly)
		require.NoError(t, err)
		assert.True(t, weekly.Equal(decimal.NewFromInt(25)))
	})

	t.Run("should fall back to defaults for missing divisors", func(t *testing.T) {
		calculator, err := newCalculator(config.Divisors{})

		require.NoError(t, err)
		weekly, err := calculator.PeriodBudgetAmount(decimal.NewFromInt(3260), period.Weekly)
		require.NoError(t, err)
		assert.True(t, weekly.Equal(decimal.RequireFromString("752.89")))
	})

	t.Run("should reject a malformed divisor", func(t *testing.T) {
		_, err := newCalculator(config.Divisors{Weekly: "four"})

		assert.ErrorContains(t, err, "weekly")
	})
}

func TestNewCaps(t *testing.T) {
	t.Run("should map cadence names case-insensitively", func(t *testing.T) {
		caps, err := newCaps(config.Schedule{MaxSubPeriods: map[string]int{"biweekly": 3, "Daily": 62}})

		require.NoError(t, err)
		assert.Equal(t, 3, caps[period.Biweekly])
		assert.Equal(t, 62, caps[period.Daily])
	})

	t.Run("should reject an unknown cadence", func(t *testing.T) {
		_, err := newCaps(config.Schedule{MaxSubPeriods: map[string]int{"yearly": 1}})

		assert.ErrorIs(t, err, period.ErrUnknownCadence)
	})
}

func TestRecurringCategories(t *testing.T) {
	categories := recurringCategories([]config.Recurring{{Name: "rent", Primary: "Payment", Detailed: "Rent"}})

	require.Len(t, categories, 1)
	assert.Equal(t, "rent", categories[0].Name)
	assert.Equal(t, [2]string{"Payment", "Rent"}, categories[0].Labels)
}
