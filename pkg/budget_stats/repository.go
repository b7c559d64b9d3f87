package budget_stats

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	// SaveLatestScore replaces the recorded score of the sub-budget.
	SaveLatestScore(ctx context.Context, score HealthScore) error
	FindLatestScore(ctx context.Context, subBudgetId string) (HealthScore, error)
}

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) SaveLatestScore(ctx context.Context, score HealthScore) error {
	query := `INSERT INTO health_score (sub_budget_id, score, spending_ratio, variance, recorded_at)
			  VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT (sub_budget_id) DO UPDATE SET
			      score = EXCLUDED.score,
			      spending_ratio = EXCLUDED.spending_ratio,
			      variance = EXCLUDED.variance,
			      recorded_at = EXCLUDED.recorded_at`
	_, err := r.db.Exec(ctx, query, score.SubBudgetId, score.Score, score.SpendingRatio, score.Variance, score.RecordedAt)
	if err != nil {
		err := fmt.Errorf("could not store health score: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

func (r *RepositoryImpl) FindLatestScore(ctx context.Context, subBudgetId string) (HealthScore, error) {
	query := `SELECT sub_budget_id, score, spending_ratio, variance, recorded_at FROM health_score WHERE sub_budget_id = $1`
	var score HealthScore
	err := r.db.QueryRow(ctx, query, subBudgetId).Scan(
		&score.SubBudgetId,
		&score.Score,
		&score.SpendingRatio,
		&score.Variance,
		&score.RecordedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return HealthScore{}, ErrHealthScoreNotFound
		}
		err := fmt.Errorf("could not query health score: %w", err)
		log.Error(err)
		return HealthScore{}, err
	}
	score.RecordedAt = score.RecordedAt.UTC()
	return score, nil
}
