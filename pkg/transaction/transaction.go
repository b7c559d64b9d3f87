package transaction

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is an imported, already categorized money movement. Transactions are never modified after import.
type Transaction struct {
	Id         string
	Amount     decimal.Decimal
	PostedDate time.Time
	// CategoryLabels are the classifier labels, most generic first (e.g. "Food and Drink", "Groceries").
	CategoryLabels []string
	CategoryId     string
	Merchant       string
	Description    string
}

// MatchesCategory reports whether the transaction belongs to category, either by one of its labels
// (case-insensitive) or by its category id. A transaction may match several categories.
func (t Transaction) MatchesCategory(category string) bool {
	category = strings.TrimSpace(category)
	if category == "" {
		return false
	}
	if strings.TrimSpace(t.CategoryId) == category {
		return true
	}
	for _, label := range t.CategoryLabels {
		if strings.EqualFold(strings.TrimSpace(label), category) {
			return true
		}
	}
	return false
}

// LabelPair returns the first two category labels, padding with empty strings.
func (t Transaction) LabelPair() [2]string {
	var pair [2]string
	for i := 0; i < len(t.CategoryLabels) && i < 2; i++ {
		pair[i] = t.CategoryLabels[i]
	}
	return pair
}

// Sum adds the amounts of all transactions.
func Sum(transactions []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, t := range transactions {
		total = total.Add(t.Amount)
	}
	return total
}

// Category is the most specific usable identity of the transaction: the last non-blank label,
// or the category id when no label is set.
func (t Transaction) Category() string {
	for i := len(t.CategoryLabels) - 1; i >= 0; i-- {
		if label := strings.TrimSpace(t.CategoryLabels[i]); label != "" {
			return label
		}
	}
	return strings.TrimSpace(t.CategoryId)
}

// Categories returns the distinct categories of the transactions (see Category) in first-seen order.
func Categories(transactions []Transaction) []string {
	seen := map[string]bool{}
	var categories []string
	for _, t := range transactions {
		category := t.Category()
		key := strings.ToLower(category)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		categories = append(categories, category)
	}
	return categories
}
