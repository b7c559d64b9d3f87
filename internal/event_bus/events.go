package event_bus

import (
	"github.com/klokku/budgetly/pkg/date_range"
	"github.com/shopspring/decimal"
)

const (
	BudgetCategoryUpdatedType   EventType = "budget_category.updated"
	BudgetCategoryOverspentType EventType = "budget_category.overspent"
	ScheduleRebuiltType         EventType = "schedule.rebuilt"
)

// BudgetCategoryUpdated is published after ledger records of a sub-budget were saved.
type BudgetCategoryUpdated struct {
	SubBudgetId string
	Categories  []string
	TotalActual decimal.Decimal
}

// BudgetCategoryOverspent is published when a ledger record turns overspent.
type BudgetCategoryOverspent struct {
	SubBudgetId        string
	CategoryName       string
	Period             date_range.DateRange
	BudgetedAmount     decimal.Decimal
	ActualAmount       decimal.Decimal
	OverspendingAmount decimal.Decimal
}

type ScheduleRebuilt struct {
	SubBudgetId          string
	ScheduleId           string
	Span                 date_range.DateRange
	SubPeriods           int
	DeactivatedLedgerIds []string
}
