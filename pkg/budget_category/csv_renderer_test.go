package budget_category

import (
	"testing"

	"github.com/klokku/budgetly/pkg/date_range"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCsvRendererImpl_Render(t *testing.T) {
	record := func(category string, p date_range.DateRange, budgeted, actual string) BudgetCategory {
		return BudgetCategory{CategoryName: category, Period: p, BudgetedAmount: dec(budgeted), ActualAmount: dec(actual), IsActive: true}
	}

	t.Run("should render a category by period grid", func(t *testing.T) {
		// given
		records := []BudgetCategory{
			record("Rent", firstWeek, "559.85", "707.00"),
			record("Groceries", secondWeek, "193.04", "62.93"),
			record("Groceries", firstWeek, "193.04", "124.16"),
		}

		// when
		csv, err := NewCsvRenderer().Render(records)

		// then
		require.NoError(t, err)
		expected := ",Groceries,Rent,SUM\n" +
			"Budgeted,386.08,559.85,945.93\n" +
			"2025-04-01..2025-04-07,124.16,707.00,831.16\n" +
			"2025-04-08..2025-04-14,62.93,0.00,62.93\n" +
			"Total,187.09,707.00,894.09\n" +
			"Remaining,198.99,-147.15,51.84\n"
		assert.Equal(t, expected, csv)
	})

	t.Run("should merge differently cased category names", func(t *testing.T) {
		csv, err := NewCsvRenderer().Render([]BudgetCategory{
			record("Rent", firstWeek, "100", "10"),
			record("rent", secondWeek, "100", "20"),
		})

		require.NoError(t, err)
		assert.Contains(t, csv, ",Rent,SUM\n")
		assert.Contains(t, csv, "Total,30.00,30.00\n")
	})

	t.Run("should render only the frame without records", func(t *testing.T) {
		csv, err := NewCsvRenderer().Render(nil)

		require.NoError(t, err)
		assert.Equal(t, ",SUM\nBudgeted,0.00\nTotal,0.00\nRemaining,0.00\n", csv)
	})
}
