package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/budgetly/pkg/date_range"
	"github.com/klokku/budgetly/pkg/period"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	// Create stores a new schedule with its sub-periods. Fails with ErrScheduleExists when the
	// sub-budget already has one.
	Create(ctx context.Context, schedule BudgetSchedule) (BudgetSchedule, error)
	FindBySubBudget(ctx context.Context, subBudgetId string) (BudgetSchedule, error)
	// Update replaces the schedule and all of its sub-periods if Version still matches.
	Update(ctx context.Context, schedule BudgetSchedule) (BudgetSchedule, error)
}

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) Create(ctx context.Context, schedule BudgetSchedule) (BudgetSchedule, error) {
	return r.withTransaction(ctx, func(tx pgx.Tx) (BudgetSchedule, error) {
		query := `INSERT INTO budget_schedule (id, sub_budget_id, cadence, span_start, span_end, status, version)
				  VALUES ($1, $2, $3, $4, $5, $6, 1)`
		_, err := tx.Exec(ctx, query,
			schedule.Id,
			schedule.SubBudgetId,
			string(schedule.Cadence),
			schedule.Span.Start,
			schedule.Span.End,
			string(schedule.Status),
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return BudgetSchedule{}, ErrScheduleExists
			}
			err := fmt.Errorf("could not insert schedule: %w", err)
			log.Error(err)
			return BudgetSchedule{}, err
		}
		if err := insertPeriods(ctx, tx, schedule); err != nil {
			return BudgetSchedule{}, err
		}
		schedule.Version = 1
		return schedule, nil
	})
}

func (r *RepositoryImpl) Update(ctx context.Context, schedule BudgetSchedule) (BudgetSchedule, error) {
	return r.withTransaction(ctx, func(tx pgx.Tx) (BudgetSchedule, error) {
		query := `UPDATE budget_schedule SET
                       cadence = $1,
                       span_start = $2,
                       span_end = $3,
                       status = $4,
                       version = version + 1,
                       updated = now()
                   WHERE id = $5 AND version = $6`
		result, err := tx.Exec(ctx, query,
			string(schedule.Cadence),
			schedule.Span.Start,
			schedule.Span.End,
			string(schedule.Status),
			schedule.Id,
			schedule.Version,
		)
		if err != nil {
			err := fmt.Errorf("could not update schedule %s: %w", schedule.Id, err)
			log.Error(err)
			return BudgetSchedule{}, err
		}
		if result.RowsAffected() == 0 {
			return BudgetSchedule{}, fmt.Errorf("%w: %s (version %d)", ErrVersionConflict, schedule.Id, schedule.Version)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM budget_schedule_period WHERE schedule_id = $1`, schedule.Id); err != nil {
			err := fmt.Errorf("could not delete sub-periods of schedule %s: %w", schedule.Id, err)
			log.Error(err)
			return BudgetSchedule{}, err
		}
		if err := insertPeriods(ctx, tx, schedule); err != nil {
			return BudgetSchedule{}, err
		}
		schedule.Version++
		return schedule, nil
	})
}

func (r *RepositoryImpl) FindBySubBudget(ctx context.Context, subBudgetId string) (BudgetSchedule, error) {
	query := `SELECT id, sub_budget_id, cadence, span_start, span_end, status, version
			  FROM budget_schedule WHERE sub_budget_id = $1`
	var (
		s         BudgetSchedule
		cadence   string
		status    string
		spanStart time.Time
		spanEnd   time.Time
	)
	err := r.db.QueryRow(ctx, query, subBudgetId).Scan(&s.Id, &s.SubBudgetId, &cadence, &spanStart, &spanEnd, &status, &s.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BudgetSchedule{}, ErrScheduleNotFound
		}
		err := fmt.Errorf("could not query schedule: %w", err)
		log.Error(err)
		return BudgetSchedule{}, err
	}
	s.Cadence = period.Cadence(cadence)
	s.Status = Status(status)
	s.Span = date_range.DateRange{Start: date_range.Day(spanStart), End: date_range.Day(spanEnd)}

	rows, err := r.db.Query(ctx, `SELECT period_start, period_end FROM budget_schedule_period
			  WHERE schedule_id = $1 ORDER BY position`, s.Id)
	if err != nil {
		err := fmt.Errorf("could not query sub-periods: %w", err)
		log.Error(err)
		return BudgetSchedule{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var start, end time.Time
		if err := rows.Scan(&start, &end); err != nil {
			err := fmt.Errorf("error scanning row: %w", err)
			log.Error(err)
			return BudgetSchedule{}, err
		}
		s.SubPeriods = append(s.SubPeriods, date_range.DateRange{Start: date_range.Day(start), End: date_range.Day(end)})
	}
	if err := rows.Err(); err != nil {
		return BudgetSchedule{}, fmt.Errorf("error iterating over rows: %w", err)
	}
	return s, nil
}

func insertPeriods(ctx context.Context, tx pgx.Tx, schedule BudgetSchedule) error {
	batch := &pgx.Batch{}
	for i, p := range schedule.SubPeriods {
		batch.Queue(`INSERT INTO budget_schedule_period (schedule_id, position, period_start, period_end) VALUES ($1, $2, $3, $4)`,
			schedule.Id, i, p.Start, p.End)
	}
	results := tx.SendBatch(ctx, batch)
	for range schedule.SubPeriods {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			err := fmt.Errorf("could not insert sub-period of schedule %s: %w", schedule.Id, err)
			log.Error(err)
			return err
		}
	}
	return results.Close()
}

func (r *RepositoryImpl) withTransaction(ctx context.Context, fn func(tx pgx.Tx) (BudgetSchedule, error)) (BudgetSchedule, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return BudgetSchedule{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Errorf("rollback error: %v", rbErr)
		}
	}()

	schedule, err := fn(tx)
	if err != nil {
		return BudgetSchedule{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return BudgetSchedule{}, fmt.Errorf("could not commit transaction: %w", err)
	}
	return schedule, nil
}
