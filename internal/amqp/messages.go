package amqp

import (
	"encoding/json"
	"time"

	"github.com/klokku/budgetly/internal/event_bus"
	"github.com/shopspring/decimal"
)

// OverspendingAlert is the message sent when a ledger record turns overspent.
type OverspendingAlert struct {
	SubBudgetId        string          `json:"subBudgetId"`
	Category           string          `json:"category"`
	PeriodStart        string          `json:"periodStart"`
	PeriodEnd          string          `json:"periodEnd"`
	BudgetedAmount     decimal.Decimal `json:"budgetedAmount"`
	ActualAmount       decimal.Decimal `json:"actualAmount"`
	OverspendingAmount decimal.Decimal `json:"overspendingAmount"`
	Timestamp          time.Time       `json:"timestamp"`
}

func NewOverspendingAlert(e event_bus.BudgetCategoryOverspent, at time.Time) OverspendingAlert {
	return OverspendingAlert{
		SubBudgetId:        e.SubBudgetId,
		Category:           e.CategoryName,
		PeriodStart:        e.Period.Start.Format("2006-01-02"),
		PeriodEnd:          e.Period.End.Format("2006-01-02"),
		BudgetedAmount:     e.BudgetedAmount,
		ActualAmount:       e.ActualAmount,
		OverspendingAmount: e.OverspendingAmount,
		Timestamp:          at.UTC(),
	}
}

func (m OverspendingAlert) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func OverspendingAlertFromJSON(data []byte) (OverspendingAlert, error) {
	var msg OverspendingAlert
	if err := json.Unmarshal(data, &msg); err != nil {
		return OverspendingAlert{}, err
	}
	return msg, nil
}
