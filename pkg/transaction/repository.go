package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/budgetly/pkg/date_range"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Repository reads transactions imported by the aggregator sync. The engine never writes imported data
// except through Store, which the service boundary uses to hand over freshly imported transactions.
type Repository interface {
	FindInRange(ctx context.Context, budgetId string, span date_range.DateRange) ([]Transaction, error)
	Store(ctx context.Context, budgetId string, transactions []Transaction) (int, error)
}

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) FindInRange(ctx context.Context, budgetId string, span date_range.DateRange) ([]Transaction, error) {
	query := `SELECT id, amount, posted_date, category_labels, category_id, merchant, description
			  FROM budget_transaction
			  WHERE budget_id = $1 AND posted_date BETWEEN $2 AND $3
			  ORDER BY posted_date, id`
	rows, err := r.db.Query(ctx, query, budgetId, span.Start, span.End)
	if err != nil {
		err := fmt.Errorf("could not query transactions: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var transactions []Transaction
	for rows.Next() {
		var (
			t          Transaction
			amount     decimal.Decimal
			postedDate time.Time
		)
		if err := rows.Scan(&t.Id, &amount, &postedDate, &t.CategoryLabels, &t.CategoryId, &t.Merchant, &t.Description); err != nil {
			err := fmt.Errorf("error scanning row: %w", err)
			log.Error(err)
			return nil, err
		}
		t.Amount = amount
		t.PostedDate = date_range.Day(postedDate)
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		err := fmt.Errorf("error iterating over rows: %w", err)
		log.Error(err)
		return nil, err
	}
	return transactions, nil
}

// Store inserts transactions, ignoring ones whose id is already known. It returns the number of new rows.
func (r *RepositoryImpl) Store(ctx context.Context, budgetId string, transactions []Transaction) (int, error) {
	if len(transactions) == 0 {
		return 0, nil
	}
	query := `INSERT INTO budget_transaction (
                    id,
                    budget_id,
                    amount,
                    posted_date,
                    category_labels,
                    category_id,
                    merchant,
                    description
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, t := range transactions {
		labels := t.CategoryLabels
		if labels == nil {
			labels = []string{}
		}
		batch.Queue(query, t.Id, budgetId, t.Amount, date_range.Day(t.PostedDate), labels, t.CategoryId, t.Merchant, t.Description)
	}
	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range transactions {
		tag, err := results.Exec()
		if err != nil {
			err := fmt.Errorf("could not store transaction: %w", err)
			log.Error(err)
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}
