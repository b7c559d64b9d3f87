package sub_budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/budgetly/pkg/date_range"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	CreateSubBudget(ctx context.Context, subBudget SubBudget, goals Goals) (SubBudget, error)
	FindSubBudget(ctx context.Context, id string) (SubBudget, error)
	FindSubBudgetGoals(ctx context.Context, id string) (Goals, error)
	UpdateSpan(ctx context.Context, id string, span date_range.DateRange) error
}

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) CreateSubBudget(ctx context.Context, subBudget SubBudget, goals Goals) (SubBudget, error) {
	query := `INSERT INTO sub_budget (
                    id,
                    budget_id,
                    name,
                    span_start,
                    span_end,
                    allocated_amount,
                    spent_amount,
                    savings_target,
                    savings_amount,
                    monthly_allocation
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.Exec(ctx, query,
		subBudget.Id,
		subBudget.BudgetId,
		subBudget.Name,
		subBudget.Span.Start,
		subBudget.Span.End,
		subBudget.AllocatedAmount,
		subBudget.SpentAmount,
		subBudget.SavingsTarget,
		subBudget.SavingsAmount,
		goals.MonthlyAllocation,
	)
	if err != nil {
		err := fmt.Errorf("could not insert sub-budget: %w", err)
		log.Error(err)
		return SubBudget{}, err
	}
	return subBudget, nil
}

func (r *RepositoryImpl) FindSubBudget(ctx context.Context, id string) (SubBudget, error) {
	query := `SELECT id, budget_id, name, span_start, span_end, allocated_amount, spent_amount, savings_target, savings_amount
			  FROM sub_budget WHERE id = $1`
	var (
		s          SubBudget
		spanStart  time.Time
		spanEnd    time.Time
		allocated  decimal.Decimal
		spent      decimal.Decimal
		target     decimal.Decimal
		savedSoFar decimal.Decimal
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.Id,
		&s.BudgetId,
		&s.Name,
		&spanStart,
		&spanEnd,
		&allocated,
		&spent,
		&target,
		&savedSoFar,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SubBudget{}, ErrSubBudgetNotFound
		}
		err := fmt.Errorf("could not query sub-budget %s: %w", id, err)
		log.Error(err)
		return SubBudget{}, err
	}
	s.Span = date_range.DateRange{Start: date_range.Day(spanStart), End: date_range.Day(spanEnd)}
	s.AllocatedAmount = allocated
	s.SpentAmount = spent
	s.SavingsTarget = target
	s.SavingsAmount = savedSoFar
	return s, nil
}

func (r *RepositoryImpl) FindSubBudgetGoals(ctx context.Context, id string) (Goals, error) {
	query := `SELECT savings_target, savings_amount, monthly_allocation FROM sub_budget WHERE id = $1`
	goals := Goals{SubBudgetId: id}
	err := r.db.QueryRow(ctx, query, id).Scan(&goals.SavingsTarget, &goals.SavingsAmount, &goals.MonthlyAllocation)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Goals{}, ErrSubBudgetNotFound
		}
		err := fmt.Errorf("could not query sub-budget goals %s: %w", id, err)
		log.Error(err)
		return Goals{}, err
	}
	return goals, nil
}

func (r *RepositoryImpl) UpdateSpan(ctx context.Context, id string, span date_range.DateRange) error {
	result, err := r.db.Exec(ctx, `UPDATE sub_budget SET span_start = $1, span_end = $2 WHERE id = $3`, span.Start, span.End, id)
	if err != nil {
		err := fmt.Errorf("could not update sub-budget span: %w", err)
		log.Error(err)
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrSubBudgetNotFound
	}
	return nil
}
