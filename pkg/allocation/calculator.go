package allocation

import (
	"errors"
	"fmt"

	"github.com/klokku/budgetly/pkg/period"
	"github.com/shopspring/decimal"
)

var ErrInvalidBudgetAmount = errors.New("budget amount must be positive")
var ErrInvalidBudgetActualAmount = errors.New("category spending must not be negative")
var ErrInvalidDivisor = errors.New("cadence divisor must be positive")

const (
	shareDigits  = 4
	amountDigits = 2
)

// Divisors are the average number of cadence periods in one month.
type Divisors struct {
	Weekly   decimal.Decimal
	Biweekly decimal.Decimal
	Daily    decimal.Decimal
}

func DefaultDivisors() Divisors {
	return Divisors{
		Weekly:   decimal.RequireFromString("4.33"),
		Biweekly: decimal.RequireFromString("2.17"),
		Daily:    decimal.RequireFromString("30.4"),
	}
}

// Calculator spreads a monthly budget across categories in proportion to what each category spends.
// It holds no state besides its divisors and is safe for concurrent use.
type Calculator struct {
	divisors Divisors
}

func NewCalculator(divisors Divisors) (*Calculator, error) {
	for name, d := range map[string]decimal.Decimal{
		"weekly":   divisors.Weekly,
		"biweekly": divisors.Biweekly,
		"daily":    divisors.Daily,
	} {
		if !d.IsPositive() {
			return nil, fmt.Errorf("%w: %s is %s", ErrInvalidDivisor, name, d.String())
		}
	}
	return &Calculator{divisors: divisors}, nil
}

// PeriodBudgetAmount returns the part of a monthly total attributable to one period of the cadence,
// rounded to cents. MONTHLY returns the total unchanged.
func (c *Calculator) PeriodBudgetAmount(total decimal.Decimal, cadence period.Cadence) (decimal.Decimal, error) {
	if !total.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: got %s", ErrInvalidBudgetAmount, total.String())
	}
	switch cadence {
	case period.Monthly:
		return total, nil
	case period.Weekly:
		return total.Div(c.divisors.Weekly).Round(amountDigits), nil
	case period.Biweekly:
		return total.Div(c.divisors.Biweekly).Round(amountDigits), nil
	case period.Daily:
		return total.Div(c.divisors.Daily).Round(amountDigits), nil
	}
	return decimal.Zero, fmt.Errorf("%w: %q", period.ErrUnknownCadence, cadence)
}

// Share returns spent/totalSpent with four fraction digits, rounding half up. A zero total yields zero.
func Share(spent, totalSpent decimal.Decimal) decimal.Decimal {
	if totalSpent.IsZero() {
		return decimal.Zero
	}
	return spent.DivRound(totalSpent, shareDigits)
}

// Allocate computes each category's budgeted amount for one period of the cadence:
// share * periodBudgetAmount, rounded to cents half up.
func (c *Calculator) Allocate(
	total decimal.Decimal,
	cadence period.Cadence,
	categorySpending map[string]decimal.Decimal,
	totalSpending decimal.Decimal,
) (map[string]decimal.Decimal, error) {
	periodBudget, err := c.PeriodBudgetAmount(total, cadence)
	if err != nil {
		return nil, err
	}
	if totalSpending.IsNegative() {
		return nil, fmt.Errorf("%w: total spending is %s", ErrInvalidBudgetActualAmount, totalSpending.String())
	}
	allocated := make(map[string]decimal.Decimal, len(categorySpending))
	for category, spent := range categorySpending {
		if spent.IsNegative() {
			return nil, fmt.Errorf("%w: %s spent %s", ErrInvalidBudgetActualAmount, category, spent.String())
		}
		allocated[category] = Share(spent, totalSpending).Mul(periodBudget).Round(amountDigits)
	}
	return allocated, nil
}

// AllocateCategory is Allocate for a single category.
func (c *Calculator) AllocateCategory(
	total decimal.Decimal,
	cadence period.Cadence,
	categorySpent decimal.Decimal,
	totalSpending decimal.Decimal,
) (decimal.Decimal, error) {
	allocated, err := c.Allocate(total, cadence, map[string]decimal.Decimal{"": categorySpent}, totalSpending)
	if err != nil {
		return decimal.Zero, err
	}
	return allocated[""], nil
}
