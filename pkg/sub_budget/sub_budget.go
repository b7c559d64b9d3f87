package sub_budget

import (
	"errors"
	"fmt"

	"github.com/klokku/budgetly/pkg/date_range"
	"github.com/shopspring/decimal"
)

var ErrSubBudgetNotFound = errors.New("sub-budget not found")
var ErrInvalidSubBudget = errors.New("invalid sub-budget")

// SubBudget is a bounded span of an overall budget with its own allocation and savings target.
type SubBudget struct {
	Id              string
	BudgetId        string
	Name            string
	Span            date_range.DateRange
	AllocatedAmount decimal.Decimal
	SpentAmount     decimal.Decimal
	SavingsTarget   decimal.Decimal
	SavingsAmount   decimal.Decimal
}

// Goals are the savings inputs of the health and progress scores.
type Goals struct {
	SubBudgetId       string
	SavingsTarget     decimal.Decimal
	SavingsAmount     decimal.Decimal
	MonthlyAllocation decimal.Decimal
}

func (s SubBudget) Validate() error {
	if s.BudgetId == "" {
		return fmt.Errorf("%w: budget id is required", ErrInvalidSubBudget)
	}
	if err := s.Span.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSubBudget, err)
	}
	if !s.AllocatedAmount.IsPositive() {
		return fmt.Errorf("%w: allocated amount must be positive", ErrInvalidSubBudget)
	}
	if s.SavingsTarget.IsNegative() || s.SavingsAmount.IsNegative() || s.SpentAmount.IsNegative() {
		return fmt.Errorf("%w: amounts cannot be negative", ErrInvalidSubBudget)
	}
	return nil
}
