package budget_category

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/klokku/budgetly/pkg/date_range"
	"github.com/klokku/budgetly/pkg/spending"
	"github.com/klokku/budgetly/pkg/transaction"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var ErrCategoryLedgerConflict = errors.New("transaction does not belong to ledger record")
var ErrBudgetCategoryNotFound = errors.New("budget category not found")
var ErrVersionConflict = errors.New("budget category was modified concurrently")

// BudgetCategory is the ledger record of one category within one sub-period of a sub-budget.
// A record is only ever updated with transactions of its own period; a new period gets a new record.
type BudgetCategory struct {
	Id                 string
	SubBudgetId        string
	CategoryName       string
	Period             date_range.DateRange
	BudgetedAmount     decimal.Decimal
	ActualAmount       decimal.Decimal
	IsActive           bool
	IsOverspent        bool
	OverspendingAmount decimal.Decimal
	Transactions       []transaction.Transaction
	// Version is incremented on every save and guards against lost updates.
	Version int
}

// Key identifies a ledger record.
type Key struct {
	SubBudgetId  string
	CategoryName string
	Period       string
}

func NewKey(subBudgetId, categoryName string, period date_range.DateRange) Key {
	return Key{
		SubBudgetId:  subBudgetId,
		CategoryName: strings.ToLower(strings.TrimSpace(categoryName)),
		Period:       period.String(),
	}
}

func (c BudgetCategory) Key() Key {
	return NewKey(c.SubBudgetId, c.CategoryName, c.Period)
}

// Remaining is what is left of the budgeted amount; negative when overspent.
func (c BudgetCategory) Remaining() decimal.Decimal {
	return c.BudgetedAmount.Sub(c.ActualAmount)
}

func (c *BudgetCategory) recomputeOverspending() {
	c.OverspendingAmount = decimal.Max(decimal.Zero, c.ActualAmount.Sub(c.BudgetedAmount))
	c.IsOverspent = c.OverspendingAmount.IsPositive()
}

func (c BudgetCategory) hasTransaction(id string) bool {
	for _, t := range c.Transactions {
		if t.Id == id {
			return true
		}
	}
	return false
}

// LedgerInput is everything needed to create a ledger record for one category in one period.
type LedgerInput struct {
	Category       string
	Period         date_range.DateRange
	Spending       spending.CategorySpendingPeriod
	BudgetedAmount decimal.Decimal
}

// LedgerBuilder creates ledger records from aggregated spending and allocated budgets.
type LedgerBuilder interface {
	Build(subBudgetId string, input LedgerInput) BudgetCategory
}

type Builder struct {
	newId func() string
}

func NewBuilder() *Builder {
	return &Builder{newId: uuid.NewString}
}

// Build creates an active record. The actual amount is summed again from the spending's transactions
// rather than taken from the aggregated total.
func (b *Builder) Build(subBudgetId string, input LedgerInput) BudgetCategory {
	actual := transaction.Sum(input.Spending.Transactions)
	if !actual.Equal(input.Spending.ActualSpending) {
		log.WithFields(log.Fields{
			"subBudgetId": subBudgetId,
			"category":    input.Category,
			"period":      input.Period.String(),
			"aggregated":  input.Spending.ActualSpending.String(),
			"recomputed":  actual.String(),
		}).Warn("aggregated spending differs from its transactions, using recomputed amount")
	}
	transactions := make([]transaction.Transaction, len(input.Spending.Transactions))
	copy(transactions, input.Spending.Transactions)

	record := BudgetCategory{
		Id:             b.newId(),
		SubBudgetId:    subBudgetId,
		CategoryName:   input.Category,
		Period:         input.Period,
		BudgetedAmount: input.BudgetedAmount,
		ActualAmount:   actual,
		IsActive:       true,
		Transactions:   transactions,
	}
	record.recomputeOverspending()
	return record
}

// Rejection explains why a transaction was not merged into a ledger record.
type Rejection struct {
	TransactionId string
	Reason        error
}

// Update merges new transactions into an existing record and returns the updated copy.
// Transactions outside the record's period or of another category are rejected and logged;
// transactions already on the record are skipped. When nothing is accepted the record is returned unchanged.
func Update(existing BudgetCategory, newTransactions []transaction.Transaction) (BudgetCategory, []Rejection) {
	var rejections []Rejection
	var accepted []transaction.Transaction
	seen := map[string]bool{}
	for _, t := range newTransactions {
		if reason := checkBelongs(existing, t); reason != nil {
			log.WithFields(log.Fields{
				"ledgerId":      existing.Id,
				"category":      existing.CategoryName,
				"period":        existing.Period.String(),
				"transactionId": t.Id,
			}).Warnf("skipping transaction: %v", reason)
			rejections = append(rejections, Rejection{TransactionId: t.Id, Reason: reason})
			continue
		}
		if seen[t.Id] || existing.hasTransaction(t.Id) {
			log.Debugf("transaction %s already recorded on ledger %s", t.Id, existing.Id)
			continue
		}
		seen[t.Id] = true
		accepted = append(accepted, t)
	}
	if len(accepted) == 0 {
		return existing, rejections
	}

	updated := existing
	updated.Transactions = make([]transaction.Transaction, 0, len(existing.Transactions)+len(accepted))
	updated.Transactions = append(updated.Transactions, existing.Transactions...)
	updated.Transactions = append(updated.Transactions, accepted...)
	updated.ActualAmount = existing.ActualAmount.Add(transaction.Sum(accepted))
	updated.recomputeOverspending()
	return updated, rejections
}

func checkBelongs(record BudgetCategory, t transaction.Transaction) error {
	if !record.Period.Contains(t.PostedDate) {
		return fmt.Errorf("%w: posted %s outside period %s", ErrCategoryLedgerConflict, t.PostedDate.Format("2006-01-02"), record.Period)
	}
	if !t.MatchesCategory(record.CategoryName) {
		return fmt.Errorf("%w: not a %s transaction", ErrCategoryLedgerConflict, record.CategoryName)
	}
	return nil
}

// Deactivate marks the record inactive. Records are never deleted.
func Deactivate(c BudgetCategory) BudgetCategory {
	c.IsActive = false
	return c
}
