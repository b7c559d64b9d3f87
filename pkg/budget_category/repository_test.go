package budget_category

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/klokku/budgetly/internal/test_utils"
	"github.com/klokku/budgetly/pkg/date_range"
	"github.com/klokku/budgetly/pkg/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDB *test_utils.DB

func TestMain(m *testing.M) {
	testDB = test_utils.StartDB()
	code := m.Run()
	testDB.Terminate()
	os.Exit(code)
}

func setupTestRepository(t *testing.T) (context.Context, Repository, transaction.Repository) {
	ctx := context.Background()
	db := testDB.Open(t)
	return ctx, NewRepository(db), transaction.NewRepository(db)
}

func TestRepositoryImpl_SaveAll(t *testing.T) {
	t.Run("should insert new records with their transactions", func(t *testing.T) {
		// given
		ctx, repo, transactions := setupTestRepository(t)
		g1 := tx("g1", "45.84", date(2025, 4, 2), "Food and Drink", "Groceries")
		g2 := tx("g2", "78.32", date(2025, 4, 5), "Food and Drink", "Groceries")
		_, err := transactions.Store(ctx, "b-1", []transaction.Transaction{g1, g2})
		require.NoError(t, err)
		record := testBuilder().Build("sb-1", input("Groceries", "193.04", g1, g2))

		// when
		saved, err := repo.SaveAll(ctx, []BudgetCategory{record})

		// then
		require.NoError(t, err)
		require.Len(t, saved, 1)
		assert.Equal(t, 1, saved[0].Version)

		found, err := repo.FindExisting(ctx, "sb-1", "groceries", firstWeek)
		require.NoError(t, err)
		assert.Equal(t, record.Id, found.Id)
		assert.Equal(t, "Groceries", found.CategoryName)
		assert.Equal(t, firstWeek, found.Period)
		assert.True(t, dec("193.04").Equal(found.BudgetedAmount))
		assert.True(t, dec("124.16").Equal(found.ActualAmount))
		assert.False(t, found.IsOverspent)
		assert.True(t, found.IsActive)
		require.Len(t, found.Transactions, 2)
		assert.Equal(t, "g1", found.Transactions[0].Id)
		assert.Equal(t, []string{"Food and Drink", "Groceries"}, found.Transactions[0].CategoryLabels)
		assert.Equal(t, date(2025, 4, 5), found.Transactions[1].PostedDate)
	})

	t.Run("should update a record when its version matches", func(t *testing.T) {
		// given
		ctx, repo, transactions := setupTestRepository(t)
		r1 := tx("r1", "707.00", date(2025, 4, 1), "Rent")
		r2 := tx("r2", "50.00", date(2025, 4, 3), "Rent")
		_, err := transactions.Store(ctx, "b-1", []transaction.Transaction{r1, r2})
		require.NoError(t, err)
		saved, err := repo.SaveAll(ctx, []BudgetCategory{testBuilder().Build("sb-1", input("Rent", "559.85", r1))})
		require.NoError(t, err)
		updated, _ := Update(saved[0], []transaction.Transaction{r2})

		// when
		result, err := repo.SaveAll(ctx, []BudgetCategory{updated})

		// then
		require.NoError(t, err)
		assert.Equal(t, 2, result[0].Version)
		found, err := repo.FindExisting(ctx, "sb-1", "Rent", firstWeek)
		require.NoError(t, err)
		assert.Equal(t, 2, found.Version)
		assert.True(t, dec("757.00").Equal(found.ActualAmount))
		assert.True(t, found.IsOverspent)
		assert.True(t, dec("197.15").Equal(found.OverspendingAmount))
		assert.Len(t, found.Transactions, 2)
	})

	t.Run("should reject a stale version and keep the stored record", func(t *testing.T) {
		// given
		ctx, repo, _ := setupTestRepository(t)
		saved, err := repo.SaveAll(ctx, []BudgetCategory{testBuilder().Build("sb-1", input("Rent", "559.85"))})
		require.NoError(t, err)
		_, err = repo.SaveAll(ctx, saved)
		require.NoError(t, err)

		// when
		_, err = repo.SaveAll(ctx, saved)

		// then
		assert.ErrorIs(t, err, ErrVersionConflict)
		found, err := repo.FindExisting(ctx, "sb-1", "Rent", firstWeek)
		require.NoError(t, err)
		assert.Equal(t, 2, found.Version)
	})

	t.Run("should store nothing when one record of the batch fails", func(t *testing.T) {
		// given
		ctx, repo, _ := setupTestRepository(t)
		builder := testBuilder()
		first := builder.Build("sb-1", input("Rent", "559.85"))
		duplicate := builder.Build("sb-1", input("rent", "559.85"))

		// when
		_, err := repo.SaveAll(ctx, []BudgetCategory{first, duplicate})

		// then
		require.Error(t, err)
		_, err = repo.FindExisting(ctx, "sb-1", "Rent", firstWeek)
		assert.ErrorIs(t, err, ErrBudgetCategoryNotFound)
	})
}

func TestRepositoryImpl_FindExisting(t *testing.T) {
	t.Run("should return not found for another period", func(t *testing.T) {
		// given
		ctx, repo, _ := setupTestRepository(t)
		_, err := repo.SaveAll(ctx, []BudgetCategory{testBuilder().Build("sb-1", input("Rent", "559.85"))})
		require.NoError(t, err)

		// when
		_, err = repo.FindExisting(ctx, "sb-1", "Rent", secondWeek)

		// then
		assert.ErrorIs(t, err, ErrBudgetCategoryNotFound)
	})
}

func TestRepositoryImpl_FindBySubBudget(t *testing.T) {
	t.Run("should return records ordered by period and name", func(t *testing.T) {
		// given
		ctx, repo, _ := setupTestRepository(t)
		builder := testBuilder()
		secondWeekRent := builder.Build("sb-1", LedgerInput{Category: "Rent", Period: secondWeek, BudgetedAmount: dec("559.85")})
		_, err := repo.SaveAll(ctx, []BudgetCategory{
			secondWeekRent,
			builder.Build("sb-1", input("Rent", "559.85")),
			builder.Build("sb-1", input("Groceries", "193.04")),
			builder.Build("sb-2", input("Groceries", "10.00")),
		})
		require.NoError(t, err)

		// when
		records, err := repo.FindBySubBudget(ctx, "sb-1", false)

		// then
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "Groceries", records[0].CategoryName)
		assert.Equal(t, "Rent", records[1].CategoryName)
		assert.Equal(t, secondWeekRent.Id, records[2].Id)
		assert.Empty(t, records[0].Transactions)
	})

	t.Run("should include inactive records only when asked", func(t *testing.T) {
		// given
		ctx, repo, _ := setupTestRepository(t)
		builder := testBuilder()
		_, err := repo.SaveAll(ctx, []BudgetCategory{
			builder.Build("sb-1", input("Rent", "559.85")),
			Deactivate(builder.Build("sb-1", LedgerInput{Category: "Rent", Period: secondWeek, BudgetedAmount: dec("559.85")})),
		})
		require.NoError(t, err)

		// when
		active, err := repo.FindBySubBudget(ctx, "sb-1", false)
		require.NoError(t, err)
		all, err := repo.FindBySubBudget(ctx, "sb-1", true)
		require.NoError(t, err)

		// then
		assert.Len(t, active, 1)
		assert.Len(t, all, 2)
	})
}

func TestRepositoryImpl_DeactivateOutside(t *testing.T) {
	t.Run("should deactivate active records outside the span", func(t *testing.T) {
		// given
		ctx, repo, _ := setupTestRepository(t)
		builder := testBuilder()
		inside := builder.Build("sb-1", input("Rent", "559.85"))
		outside := builder.Build("sb-1", LedgerInput{Category: "Rent", Period: secondWeek, BudgetedAmount: dec("559.85")})
		otherSubBudget := builder.Build("sb-2", LedgerInput{Category: "Rent", Period: secondWeek, BudgetedAmount: dec("559.85")})
		_, err := repo.SaveAll(ctx, []BudgetCategory{inside, outside, otherSubBudget})
		require.NoError(t, err)

		// when
		ids, err := repo.DeactivateOutside(ctx, "sb-1", firstWeek)

		// then
		require.NoError(t, err)
		assert.Equal(t, []string{outside.Id}, ids)
		records, err := repo.FindBySubBudget(ctx, "sb-1", true)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.True(t, records[0].IsActive)
		assert.False(t, records[1].IsActive)
		assert.Equal(t, 2, records[1].Version)
	})

	t.Run("should not touch records already inactive", func(t *testing.T) {
		// given
		ctx, repo, _ := setupTestRepository(t)
		_, err := repo.SaveAll(ctx, []BudgetCategory{
			Deactivate(testBuilder().Build("sb-1", LedgerInput{Category: "Rent", Period: secondWeek, BudgetedAmount: dec("559.85")})),
		})
		require.NoError(t, err)

		// when
		ids, err := repo.DeactivateOutside(ctx, "sb-1", date_range.MustNew(date(2025, 4, 1), date(2025, 4, 1)))

		// then
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestRepositoryImpl_PostedDateIsADay(t *testing.T) {
	t.Run("should read posted dates back as UTC days", func(t *testing.T) {
		// given
		ctx, repo, transactions := setupTestRepository(t)
		late := tx("g9", "1.00", time.Date(2025, 4, 2, 23, 30, 0, 0, time.UTC), "Groceries")
		_, err := transactions.Store(ctx, "b-1", []transaction.Transaction{late})
		require.NoError(t, err)
		_, err = repo.SaveAll(ctx, []BudgetCategory{testBuilder().Build("sb-1", input("Groceries", "10.00", late))})
		require.NoError(t, err)

		// when
		found, err := repo.FindExisting(ctx, "sb-1", "Groceries", firstWeek)

		// then
		require.NoError(t, err)
		require.Len(t, found.Transactions, 1)
		assert.Equal(t, date(2025, 4, 2), found.Transactions[0].PostedDate)
	})
}
