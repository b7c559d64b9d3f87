package budget_category

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/klokku/budgetly/internal/event_bus"
	"github.com/klokku/budgetly/internal/utils"
	"github.com/klokku/budgetly/pkg/date_range"
	"github.com/klokku/budgetly/pkg/transaction"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secondWeek = date_range.MustNew(date(2025, 4, 8), date(2025, 4, 14))

func setupService(t *testing.T) (context.Context, *ServiceImpl, *RepositoryStub, *event_bus.EventBus) {
	t.Helper()
	repo := NewRepositoryStub()
	bus := event_bus.NewEventBus(utils.SystemClock{})
	service := NewService(repo, testBuilder(), bus)
	return context.Background(), service, repo, bus
}

func seedRent(t *testing.T, ctx context.Context, service *ServiceImpl) BudgetCategory {
	t.Helper()
	saved, err := service.Upsert(ctx, "sb-1", []LedgerInput{
		input("Rent", "707.00", tx("r1", "707.00", date(2025, 4, 1), "Rent")),
	})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	return saved[0]
}

func TestServiceImpl_Upsert(t *testing.T) {
	t.Run("should create new records with version 1", func(t *testing.T) {
		// given
		ctx, service, repo, _ := setupService(t)

		// when
		saved, err := service.Upsert(ctx, "sb-1", []LedgerInput{
			input("Rent", "707.00", tx("r1", "707.00", date(2025, 4, 1), "Rent")),
			input("Groceries", "75.29", tx("g1", "45.84", date(2025, 4, 2), "Food and Drink", "Groceries")),
		})

		// then
		require.NoError(t, err)
		require.Len(t, saved, 2)
		for _, record := range saved {
			assert.Equal(t, 1, record.Version)
		}
		assert.Equal(t, 1, repo.Saves())
	})

	t.Run("should refresh the budgeted amount and merge transactions of an existing record", func(t *testing.T) {
		// given
		ctx, service, _, _ := setupService(t)
		original := seedRent(t, ctx, service)

		// when
		saved, err := service.Upsert(ctx, "sb-1", []LedgerInput{
			input("Rent", "700.00", tx("r1", "707.00", date(2025, 4, 1), "Rent"), tx("r2", "3.00", date(2025, 4, 3), "Rent")),
		})

		// then
		require.NoError(t, err)
		require.Len(t, saved, 1)
		assert.Equal(t, original.Id, saved[0].Id)
		assert.Equal(t, 2, saved[0].Version)
		assert.True(t, saved[0].BudgetedAmount.Equal(dec("700.00")))
		assert.True(t, saved[0].ActualAmount.Equal(dec("710.00")))
		assert.True(t, saved[0].OverspendingAmount.Equal(dec("10.00")))
	})

	t.Run("should save nothing when the batch fails", func(t *testing.T) {
		// given
		ctx, service, repo, _ := setupService(t)
		repo.SaveErr = errors.New("connection reset")

		// when
		_, err := service.Upsert(ctx, "sb-1", []LedgerInput{input("Rent", "707.00"), input("Groceries", "75.29")})

		// then
		assert.Error(t, err)
		all, err := service.ListCategories(ctx, "sb-1", true)
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

func TestServiceImpl_Record(t *testing.T) {
	t.Run("should update the matching record and report overspending once", func(t *testing.T) {
		// given
		ctx, service, _, bus := setupService(t)
		seedRent(t, ctx, service)
		var overspent []event_bus.BudgetCategoryOverspent
		event_bus.SubscribeTyped(bus, event_bus.BudgetCategoryOverspentType, func(e event_bus.EventT[event_bus.BudgetCategoryOverspent]) error {
			overspent = append(overspent, e.Data)
			return nil
		})

		// when
		result, err := service.Record(ctx, "sb-1", []transaction.Transaction{tx("r2", "50.00", date(2025, 4, 5), "Rent")})
		require.NoError(t, err)
		_, err = service.Record(ctx, "sb-1", []transaction.Transaction{tx("r3", "5.00", date(2025, 4, 6), "Rent")})
		require.NoError(t, err)

		// then
		require.Len(t, result.Updated, 1)
		assert.True(t, result.Updated[0].ActualAmount.Equal(dec("757.00")))
		assert.True(t, result.Updated[0].IsOverspent)
		assert.True(t, result.Updated[0].OverspendingAmount.Equal(dec("50.00")))
		require.Len(t, overspent, 1)
		assert.Equal(t, "Rent", overspent[0].CategoryName)
		assert.True(t, overspent[0].OverspendingAmount.Equal(dec("50.00")))
	})

	t.Run("should report transactions matching no active record", func(t *testing.T) {
		// given
		ctx, service, repo, _ := setupService(t)
		seedRent(t, ctx, service)

		// when
		result, err := service.Record(ctx, "sb-1", []transaction.Transaction{
			tx("x1", "12.00", date(2025, 4, 2), "Travel"),
			tx("x2", "12.00", date(2025, 5, 2), "Rent"),
		})

		// then
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"x1", "x2"}, result.Unmatched)
		assert.Empty(t, result.Updated)
		assert.Equal(t, 1, repo.Saves())
	})

	t.Run("should not save when all transactions are already recorded", func(t *testing.T) {
		// given
		ctx, service, repo, _ := setupService(t)
		seedRent(t, ctx, service)

		// when
		result, err := service.Record(ctx, "sb-1", []transaction.Transaction{tx("r1", "707.00", date(2025, 4, 1), "Rent")})

		// then
		require.NoError(t, err)
		assert.Empty(t, result.Updated)
		assert.Equal(t, 1, repo.Saves())
	})

	t.Run("should route a transaction to every category it matches", func(t *testing.T) {
		// given
		ctx, service, _, _ := setupService(t)
		_, err := service.Upsert(ctx, "sb-1", []LedgerInput{input("Food and Drink", "200.00"), input("Groceries", "75.29")})
		require.NoError(t, err)

		// when
		result, err := service.Record(ctx, "sb-1", []transaction.Transaction{
			tx("g1", "45.84", date(2025, 4, 2), "Food and Drink", "Groceries"),
		})

		// then
		require.NoError(t, err)
		assert.Len(t, result.Updated, 2)
		assert.Empty(t, result.Unmatched)
	})

	t.Run("should ignore deactivated records", func(t *testing.T) {
		// given
		ctx, service, _, _ := setupService(t)
		seedRent(t, ctx, service)
		ids, err := service.DeactivateOutside(ctx, "sb-1", secondWeek)
		require.NoError(t, err)
		require.Len(t, ids, 1)

		// when
		result, err := service.Record(ctx, "sb-1", []transaction.Transaction{tx("r2", "50.00", date(2025, 4, 5), "Rent")})

		// then
		require.NoError(t, err)
		assert.Equal(t, []string{"r2"}, result.Unmatched)
	})

	t.Run("should apply concurrent updates of one record exactly once each", func(t *testing.T) {
		// given
		ctx, service, _, _ := setupService(t)
		seedRent(t, ctx, service)
		workers := 25

		// when
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := service.Record(ctx, "sb-1", []transaction.Transaction{
					tx(fmt.Sprintf("c-%d", i), "10.00", date(2025, 4, 1+i%7), "Rent"),
				})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)

		// then
		for err := range errs {
			assert.NoError(t, err)
		}
		records, err := service.ListCategories(ctx, "sb-1", false)
		require.NoError(t, err)
		require.Len(t, records, 1)
		expected := dec("707.00").Add(decimal.NewFromInt(int64(workers * 10)))
		assert.True(t, records[0].ActualAmount.Equal(expected), "actual %s", records[0].ActualAmount)
		assert.Len(t, records[0].Transactions, workers+1)
		assert.Equal(t, workers+1, records[0].Version)
	})
}

func TestServiceImpl_DeactivateOutside(t *testing.T) {
	t.Run("should keep records inside the span active", func(t *testing.T) {
		// given
		ctx, service, _, _ := setupService(t)
		seedRent(t, ctx, service)
		second := input("Rent", "707.00")
		second.Period = secondWeek
		second.Spending.Period = secondWeek
		_, err := service.Upsert(ctx, "sb-1", []LedgerInput{second})
		require.NoError(t, err)

		// when
		ids, err := service.DeactivateOutside(ctx, "sb-1", date_range.MustNew(date(2025, 4, 1), date(2025, 4, 7)))

		// then
		require.NoError(t, err)
		assert.Len(t, ids, 1)
		active, err := service.ListCategories(ctx, "sb-1", false)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, firstWeek, active[0].Period)
		all, err := service.ListCategories(ctx, "sb-1", true)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("should reject an invalid span", func(t *testing.T) {
		ctx, service, _, _ := setupService(t)

		_, err := service.DeactivateOutside(ctx, "sb-1", date_range.DateRange{Start: date(2025, 4, 7), End: date(2025, 4, 1)})

		assert.ErrorIs(t, err, date_range.ErrInvalidDateRange)
	})
}

func TestServiceImpl_Retain(t *testing.T) {
	t.Run("should deactivate records of periods no longer scheduled", func(t *testing.T) {
		// given
		ctx, service, _, _ := setupService(t)
		rent := seedRent(t, ctx, service)
		shifted := date_range.MustNew(date(2025, 4, 2), date(2025, 4, 8))

		// when
		ids, err := service.Retain(ctx, "sb-1", []date_range.DateRange{shifted})

		// then
		require.NoError(t, err)
		assert.Equal(t, []string{rent.Id}, ids)
		active, err := service.ListCategories(ctx, "sb-1", false)
		require.NoError(t, err)
		assert.Empty(t, active)
	})

	t.Run("should keep records of scheduled periods", func(t *testing.T) {
		ctx, service, repo, _ := setupService(t)
		seedRent(t, ctx, service)

		ids, err := service.Retain(ctx, "sb-1", []date_range.DateRange{firstWeek, secondWeek})

		require.NoError(t, err)
		assert.Empty(t, ids)
		assert.Equal(t, 1, repo.Saves())
	})
}
