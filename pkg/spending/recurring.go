package spending

import (
	"context"
	"strings"

	"github.com/klokku/budgetly/pkg/date_range"
	"github.com/klokku/budgetly/pkg/transaction"
	"github.com/shopspring/decimal"
)

// RecurringCategory identifies a fixed recurring expense (utilities, insurance, housing...) by the
// classifier's category id and its two top-level labels. An empty label matches anything.
type RecurringCategory struct {
	Name       string
	CategoryId string
	Labels     [2]string
}

// RecurringLookup is supplied by the classification collaborator.
type RecurringLookup interface {
	FixedRecurringCategories(ctx context.Context) ([]RecurringCategory, error)
}

// StaticRecurringLookup serves a table loaded from configuration.
type StaticRecurringLookup struct {
	categories []RecurringCategory
}

func NewStaticRecurringLookup(categories []RecurringCategory) *StaticRecurringLookup {
	return &StaticRecurringLookup{categories: categories}
}

func (l *StaticRecurringLookup) FixedRecurringCategories(ctx context.Context) ([]RecurringCategory, error) {
	return l.categories, nil
}

// Matches reports whether the transaction falls in this recurring category.
func (c RecurringCategory) Matches(t transaction.Transaction) bool {
	if c.CategoryId != "" && c.CategoryId != t.CategoryId {
		return false
	}
	pair := t.LabelPair()
	for i, label := range c.Labels {
		if label != "" && !strings.EqualFold(label, pair[i]) {
			return false
		}
	}
	return c.CategoryId != "" || c.Labels != [2]string{}
}

// TotalFixedRecurring sums the transactions within span that match any of the recurring categories.
// A transaction is counted once even when several categories match it.
func TotalFixedRecurring(span date_range.DateRange, transactions []transaction.Transaction, categories []RecurringCategory) decimal.Decimal {
	total := decimal.Zero
	for _, t := range transactions {
		if !span.Contains(t.PostedDate) {
			continue
		}
		for _, c := range categories {
			if c.Matches(t) {
				total = total.Add(t.Amount)
				break
			}
		}
	}
	return total
}
