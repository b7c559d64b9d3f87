package budget_category

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/klokku/budgetly/pkg/date_range"
	"github.com/klokku/budgetly/pkg/spending"
	"github.com/klokku/budgetly/pkg/transaction"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func tx(id, amount string, posted time.Time, labels ...string) transaction.Transaction {
	return transaction.Transaction{Id: id, Amount: dec(amount), PostedDate: posted, CategoryLabels: labels}
}

var firstWeek = date_range.MustNew(date(2025, 4, 1), date(2025, 4, 7))

func sequentialIds() func() string {
	next := 0
	return func() string {
		next++
		return fmt.Sprintf("ledger-%d", next)
	}
}

func testBuilder() *Builder {
	return &Builder{newId: sequentialIds()}
}

func input(category string, budgeted string, transactions ...transaction.Transaction) LedgerInput {
	return LedgerInput{
		Category: category,
		Period:   firstWeek,
		Spending: spending.CategorySpendingPeriod{
			Category:       category,
			Period:         firstWeek,
			ActualSpending: transaction.Sum(transactions),
			Transactions:   transactions,
		},
		BudgetedAmount: dec(budgeted),
	}
}

func TestBuilder_Build(t *testing.T) {
	t.Run("should not be overspent when actual equals budgeted", func(t *testing.T) {
		// given
		in := input("Rent", "707.00", tx("r1", "707.00", date(2025, 4, 1), "Rent"))

		// when
		record := testBuilder().Build("sb-1", in)

		// then
		assert.Equal(t, "ledger-1", record.Id)
		assert.Equal(t, "sb-1", record.SubBudgetId)
		assert.True(t, record.ActualAmount.Equal(dec("707.00")))
		assert.False(t, record.IsOverspent)
		assert.True(t, record.OverspendingAmount.IsZero())
		assert.True(t, record.IsActive)
		assert.Equal(t, 0, record.Version)
	})

	t.Run("should recompute actual from transactions when aggregated total drifted", func(t *testing.T) {
		// given
		in := input("Groceries", "100.00", tx("g1", "45.84", date(2025, 4, 2), "Groceries"), tx("g2", "78.32", date(2025, 4, 3), "Groceries"))
		in.Spending.ActualSpending = dec("1.00")

		// when
		record := testBuilder().Build("sb-1", in)

		// then
		assert.True(t, record.ActualAmount.Equal(dec("124.16")))
		assert.True(t, record.IsOverspent)
		assert.True(t, record.OverspendingAmount.Equal(dec("24.16")))
	})

	t.Run("should build an empty record for a period without spending", func(t *testing.T) {
		// when
		record := testBuilder().Build("sb-1", input("Travel", "50.00"))

		// then
		assert.True(t, record.ActualAmount.IsZero())
		assert.Empty(t, record.Transactions)
		assert.True(t, record.Remaining().Equal(dec("50.00")))
	})
}

func TestUpdate(t *testing.T) {
	base := testBuilder().Build("sb-1", input("Rent", "707.00", tx("r1", "707.00", date(2025, 4, 1), "Rent")))

	t.Run("should turn overspent after a later transaction in the same period", func(t *testing.T) {
		// when
		updated, rejections := Update(base, []transaction.Transaction{tx("r2", "50.00", date(2025, 4, 5), "Rent")})

		// then
		assert.Empty(t, rejections)
		assert.True(t, updated.ActualAmount.Equal(dec("757.00")))
		assert.True(t, updated.IsOverspent)
		assert.True(t, updated.OverspendingAmount.Equal(dec("50.00")))
		assert.Len(t, updated.Transactions, 2)
		// original untouched
		assert.Len(t, base.Transactions, 1)
		assert.False(t, base.IsOverspent)
	})

	t.Run("should reject transactions outside the period", func(t *testing.T) {
		// when
		updated, rejections := Update(base, []transaction.Transaction{tx("r3", "10.00", date(2025, 4, 8), "Rent")})

		// then
		require.Len(t, rejections, 1)
		assert.Equal(t, "r3", rejections[0].TransactionId)
		assert.ErrorIs(t, rejections[0].Reason, ErrCategoryLedgerConflict)
		assert.Equal(t, base, updated)
	})

	t.Run("should leave the record unchanged when given another category", func(t *testing.T) {
		// when
		updated, rejections := Update(base, []transaction.Transaction{tx("g1", "20.00", date(2025, 4, 2), "Groceries")})

		// then
		require.Len(t, rejections, 1)
		assert.ErrorIs(t, rejections[0].Reason, ErrCategoryLedgerConflict)
		assert.Equal(t, base, updated)
	})

	t.Run("should skip already recorded and repeated transactions", func(t *testing.T) {
		// when
		updated, rejections := Update(base, []transaction.Transaction{
			tx("r1", "707.00", date(2025, 4, 1), "Rent"),
			tx("r4", "1.00", date(2025, 4, 2), "Rent"),
			tx("r4", "1.00", date(2025, 4, 2), "Rent"),
		})

		// then
		assert.Empty(t, rejections)
		assert.True(t, updated.ActualAmount.Equal(dec("708.00")))
		assert.Len(t, updated.Transactions, 2)
	})

	t.Run("should keep overspending consistent with amounts", func(t *testing.T) {
		rng := rand.New(rand.NewSource(7))
		record := testBuilder().Build("sb-1", input("Groceries", "300.00"))
		for i := 0; i < 200; i++ {
			amount := decimal.New(rng.Int63n(5000), -2)
			day := date(2025, 4, 1+rng.Intn(10))
			record, _ = Update(record, []transaction.Transaction{{
				Id: fmt.Sprintf("t-%d", i), Amount: amount, PostedDate: day, CategoryLabels: []string{"Groceries"},
			}})

			expected := decimal.Max(decimal.Zero, record.ActualAmount.Sub(record.BudgetedAmount))
			require.True(t, record.OverspendingAmount.Equal(expected))
			require.Equal(t, record.OverspendingAmount.IsPositive(), record.IsOverspent)
			require.True(t, record.ActualAmount.Equal(transaction.Sum(record.Transactions)))
		}
	})
}

func TestDeactivate(t *testing.T) {
	record := testBuilder().Build("sb-1", input("Rent", "707.00"))

	deactivated := Deactivate(record)

	assert.False(t, deactivated.IsActive)
	assert.True(t, record.IsActive)
	assert.Equal(t, record.Id, deactivated.Id)
}

func TestNewKey(t *testing.T) {
	assert.Equal(t, NewKey("sb-1", " Groceries ", firstWeek), NewKey("sb-1", "groceries", firstWeek))
	assert.NotEqual(t, NewKey("sb-1", "Groceries", firstWeek), NewKey("sb-2", "Groceries", firstWeek))
}
