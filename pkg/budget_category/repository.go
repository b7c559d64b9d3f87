package budget_category

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/budgetly/pkg/date_range"
	"github.com/klokku/budgetly/pkg/transaction"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	// FindExisting returns the record keyed by (subBudgetId, category, period) or ErrBudgetCategoryNotFound.
	FindExisting(ctx context.Context, subBudgetId string, category string, period date_range.DateRange) (BudgetCategory, error)
	FindBySubBudget(ctx context.Context, subBudgetId string, includeInactive bool) ([]BudgetCategory, error)
	// SaveAll stores the whole batch or nothing. New records have Version 0; existing records are
	// only written when their Version still matches the stored one. Saved records are returned with
	// their new Version.
	SaveAll(ctx context.Context, records []BudgetCategory) ([]BudgetCategory, error)
	// DeactivateOutside marks active records of the sub-budget that are not within span as inactive
	// and returns their ids.
	DeactivateOutside(ctx context.Context, subBudgetId string, span date_range.DateRange) ([]string, error)
}

type queryer interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
}

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

const selectColumns = `SELECT
    			c.id,
    			c.sub_budget_id,
    			c.category_name,
    			c.period_start,
    			c.period_end,
    			c.budgeted_amount,
    			c.actual_amount,
    			c.is_active,
    			c.is_overspent,
    			c.overspending_amount,
    			c.version
			  FROM budget_category c`

func (r *RepositoryImpl) FindExisting(ctx context.Context, subBudgetId string, category string, period date_range.DateRange) (BudgetCategory, error) {
	key := NewKey(subBudgetId, category, period)
	query := selectColumns + `
			  WHERE c.sub_budget_id = $1 AND c.category_key = $2 AND c.period_start = $3 AND c.period_end = $4`
	rows, err := r.db.Query(ctx, query, subBudgetId, key.CategoryName, period.Start, period.End)
	if err != nil {
		err := fmt.Errorf("could not query budget category: %w", err)
		log.Error(err)
		return BudgetCategory{}, err
	}
	records, err := scanRecords(rows)
	if err != nil {
		return BudgetCategory{}, err
	}
	if len(records) == 0 {
		return BudgetCategory{}, ErrBudgetCategoryNotFound
	}
	if err := r.loadTransactions(ctx, r.db, records); err != nil {
		return BudgetCategory{}, err
	}
	return records[0], nil
}

func (r *RepositoryImpl) FindBySubBudget(ctx context.Context, subBudgetId string, includeInactive bool) ([]BudgetCategory, error) {
	query := selectColumns + `
			  WHERE c.sub_budget_id = $1 AND (c.is_active OR $2)
			  ORDER BY c.period_start, c.category_name`
	rows, err := r.db.Query(ctx, query, subBudgetId, includeInactive)
	if err != nil {
		err := fmt.Errorf("could not query budget categories: %w", err)
		log.Error(err)
		return nil, err
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadTransactions(ctx, r.db, records); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *RepositoryImpl) SaveAll(ctx context.Context, records []BudgetCategory) ([]BudgetCategory, error) {
	if len(records) == 0 {
		return nil, nil
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Errorf("rollback error: %v", rbErr)
		}
	}()

	saved := make([]BudgetCategory, 0, len(records))
	for _, record := range records {
		if record.Version == 0 {
			err = insertRecord(ctx, tx, record)
		} else {
			err = updateRecord(ctx, tx, record)
		}
		if err != nil {
			return nil, err
		}
		if err := linkTransactions(ctx, tx, record); err != nil {
			return nil, err
		}
		record.Version++
		saved = append(saved, record)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("could not commit transaction: %w", err)
	}
	return saved, nil
}

func insertRecord(ctx context.Context, q queryer, record BudgetCategory) error {
	query := `INSERT INTO budget_category (
                    id,
                    sub_budget_id,
                    category_name,
                    category_key,
                    period_start,
                    period_end,
                    budgeted_amount,
                    actual_amount,
                    is_active,
                    is_overspent,
                    overspending_amount,
                    version
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)`
	_, err := q.Exec(ctx, query,
		record.Id,
		record.SubBudgetId,
		record.CategoryName,
		record.Key().CategoryName,
		record.Period.Start,
		record.Period.End,
		record.BudgetedAmount,
		record.ActualAmount,
		record.IsActive,
		record.IsOverspent,
		record.OverspendingAmount,
	)
	if err != nil {
		err := fmt.Errorf("could not insert budget category %s: %w", record.Key(), err)
		log.Error(err)
		return err
	}
	return nil
}

func updateRecord(ctx context.Context, q queryer, record BudgetCategory) error {
	query := `UPDATE budget_category SET
                  budgeted_amount = $1,
                  actual_amount = $2,
                  is_active = $3,
                  is_overspent = $4,
                  overspending_amount = $5,
                  version = version + 1,
                  updated = now()
              WHERE id = $6 AND version = $7`
	result, err := q.Exec(ctx, query,
		record.BudgetedAmount,
		record.ActualAmount,
		record.IsActive,
		record.IsOverspent,
		record.OverspendingAmount,
		record.Id,
		record.Version,
	)
	if err != nil {
		err := fmt.Errorf("could not update budget category %s: %w", record.Id, err)
		log.Error(err)
		return err
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s (version %d)", ErrVersionConflict, record.Id, record.Version)
	}
	return nil
}

func linkTransactions(ctx context.Context, q queryer, record BudgetCategory) error {
	query := `INSERT INTO budget_category_transaction (budget_category_id, transaction_id)
			  VALUES ($1, $2) ON CONFLICT DO NOTHING`
	for _, t := range record.Transactions {
		if _, err := q.Exec(ctx, query, record.Id, t.Id); err != nil {
			err := fmt.Errorf("could not link transaction %s to budget category %s: %w", t.Id, record.Id, err)
			log.Error(err)
			return err
		}
	}
	return nil
}

func (r *RepositoryImpl) DeactivateOutside(ctx context.Context, subBudgetId string, span date_range.DateRange) ([]string, error) {
	query := `UPDATE budget_category SET is_active = false, version = version + 1, updated = now()
			  WHERE sub_budget_id = $1 AND is_active AND (period_start < $2 OR period_end > $3)
			  RETURNING id`
	rows, err := r.db.Query(ctx, query, subBudgetId, span.Start, span.End)
	if err != nil {
		err := fmt.Errorf("could not deactivate budget categories: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanRecords(rows pgx.Rows) ([]BudgetCategory, error) {
	defer rows.Close()
	var records []BudgetCategory
	for rows.Next() {
		var (
			c           BudgetCategory
			periodStart time.Time
			periodEnd   time.Time
			budgeted    decimal.Decimal
			actual      decimal.Decimal
			overspent   decimal.Decimal
		)
		if err := rows.Scan(
			&c.Id,
			&c.SubBudgetId,
			&c.CategoryName,
			&periodStart,
			&periodEnd,
			&budgeted,
			&actual,
			&c.IsActive,
			&c.IsOverspent,
			&overspent,
			&c.Version,
		); err != nil {
			err := fmt.Errorf("error scanning row: %w", err)
			log.Error(err)
			return nil, err
		}
		c.Period = date_range.DateRange{Start: date_range.Day(periodStart), End: date_range.Day(periodEnd)}
		c.BudgetedAmount = budgeted
		c.ActualAmount = actual
		c.OverspendingAmount = overspent
		records = append(records, c)
	}
	if err := rows.Err(); err != nil {
		err := fmt.Errorf("error iterating over rows: %w", err)
		log.Error(err)
		return nil, err
	}
	return records, nil
}

func (r *RepositoryImpl) loadTransactions(ctx context.Context, q queryer, records []BudgetCategory) error {
	if len(records) == 0 {
		return nil
	}
	ids := make([]string, 0, len(records))
	index := make(map[string]int, len(records))
	for i, c := range records {
		ids = append(ids, c.Id)
		index[c.Id] = i
	}
	query := `SELECT bct.budget_category_id, t.id, t.amount, t.posted_date, t.category_labels, t.category_id, t.merchant, t.description
			  FROM budget_category_transaction bct
			  JOIN budget_transaction t ON t.id = bct.transaction_id
			  WHERE bct.budget_category_id = ANY($1)
			  ORDER BY t.posted_date, t.id`
	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		err := fmt.Errorf("could not query budget category transactions: %w", err)
		log.Error(err)
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			categoryId string
			t          transaction.Transaction
			amount     decimal.Decimal
			postedDate time.Time
		)
		if err := rows.Scan(&categoryId, &t.Id, &amount, &postedDate, &t.CategoryLabels, &t.CategoryId, &t.Merchant, &t.Description); err != nil {
			err := fmt.Errorf("error scanning row: %w", err)
			log.Error(err)
			return err
		}
		t.Amount = amount
		t.PostedDate = date_range.Day(postedDate)
		i := index[categoryId]
		records[i].Transactions = append(records[i].Transactions, t)
	}
	return rows.Err()
}
