package spending

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/klokku/budgetly/pkg/date_range"
	"github.com/klokku/budgetly/pkg/transaction"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var ErrNegativeSpending = errors.New("negative category spending")

// CategorySpendingPeriod holds what one category spent within one sub-period.
type CategorySpendingPeriod struct {
	Category       string
	Period         date_range.DateRange
	ActualSpending decimal.Decimal
	Transactions   []transaction.Transaction
}

// Aggregate returns one record per period, in the order of periods, with the transactions of category
// posted inside the period (inclusive) and their exact sum. Periods without spending yield a zero record.
func Aggregate(category string, transactions []transaction.Transaction, periods []date_range.DateRange) []CategorySpendingPeriod {
	result := make([]CategorySpendingPeriod, 0, len(periods))
	for _, p := range periods {
		matching := make([]transaction.Transaction, 0)
		for _, t := range transactions {
			if p.Contains(t.PostedDate) && t.MatchesCategory(category) {
				matching = append(matching, t)
			}
		}
		result = append(result, CategorySpendingPeriod{
			Category:       category,
			Period:         p,
			ActualSpending: transaction.Sum(matching),
			Transactions:   matching,
		})
	}
	return result
}

// AggregateAll aggregates every category independently and in parallel.
// Each category is processed on its own goroutine; the inputs are only read.
func AggregateAll(
	ctx context.Context,
	categories []string,
	transactions []transaction.Transaction,
	periods []date_range.DateRange,
) (map[string][]CategorySpendingPeriod, error) {
	var mu sync.Mutex
	result := make(map[string][]CategorySpendingPeriod, len(categories))

	g, ctx := errgroup.WithContext(ctx)
	for _, category := range categories {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			spending := Aggregate(category, transactions, periods)
			mu.Lock()
			result[category] = spending
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// Total sums ActualSpending over all periods.
func Total(spending []CategorySpendingPeriod) decimal.Decimal {
	total := decimal.Zero
	for _, s := range spending {
		total = total.Add(s.ActualSpending)
	}
	return total
}

// TotalsByCategory returns each category's spending over all periods and the grand total over the categories
// that could be used. Categories with a negative total are reported in the error map and left out of both.
func TotalsByCategory(byCategory map[string][]CategorySpendingPeriod) (map[string]decimal.Decimal, decimal.Decimal, map[string]error) {
	totals := make(map[string]decimal.Decimal, len(byCategory))
	failures := map[string]error{}
	grandTotal := decimal.Zero
	for category, spending := range byCategory {
		total := Total(spending)
		if total.IsNegative() {
			failures[category] = fmt.Errorf("%w: %s spent %s", ErrNegativeSpending, category, total.String())
			continue
		}
		totals[category] = total
		grandTotal = grandTotal.Add(total)
	}
	return totals, grandTotal, failures
}
