package budget_stats

import (
	"errors"
	"time"

	"github.com/klokku/budgetly/pkg/date_range"
	"github.com/shopspring/decimal"
)

var ErrDivisionByZero = errors.New("division by zero")
var ErrHealthScoreNotFound = errors.New("health score not found")

var (
	hundred = decimal.NewFromInt(100)
	half    = decimal.NewFromFloat(0.5)
)

// BudgetStats is a derived snapshot of a sub-budget. The ledger stays authoritative.
type BudgetStats struct {
	BudgetId              string
	SubBudgetId           string
	TotalBudgeted         decimal.Decimal
	LedgerBudgeted        decimal.Decimal
	TotalSpent            decimal.Decimal
	Remaining             decimal.Decimal
	TotalSaved            decimal.Decimal
	SavingsProgress       decimal.Decimal
	UtilizationScore      decimal.Decimal
	HealthScore           decimal.Decimal
	AverageSpendingPerDay decimal.Decimal
	FixedRecurringTotal   decimal.Decimal
	OverspentCategories   int
	Period                date_range.DateRange
}

// HealthScore is the latest recorded per-sub-budget health.
type HealthScore struct {
	SubBudgetId   string
	Score         decimal.Decimal
	SpendingRatio decimal.Decimal
	Variance      decimal.Decimal
	RecordedAt    time.Time
}

// AverageSpendingPerDay divides actual spending over the days of a range, rounded to cents.
func AverageSpendingPerDay(actual decimal.Decimal, days int) (decimal.Decimal, error) {
	if days <= 0 {
		return decimal.Zero, ErrDivisionByZero
	}
	return actual.DivRound(decimal.NewFromInt(int64(days)), 2), nil
}

// SavingsProgress is the percentage of target covered by what is saved plus this month's allocation.
// A target of zero or less yields 0.
func SavingsProgress(currentlySaved, monthlyAllocated, target decimal.Decimal) decimal.Decimal {
	if !target.IsPositive() {
		return decimal.Zero
	}
	progress := currentlySaved.Add(monthlyAllocated).Div(target).Mul(hundred)
	return clamp(progress, decimal.Zero, hundred).Round(2)
}

// UtilizationScore is the unspent fraction of the budget in [0, 1].
func UtilizationScore(budgetAmount, actualSpent decimal.Decimal) decimal.Decimal {
	if !budgetAmount.IsPositive() {
		return decimal.Zero
	}
	score := budgetAmount.Sub(actualSpent).Div(budgetAmount)
	return clamp(score, decimal.Zero, decimal.NewFromInt(1)).Round(2)
}

// CompositeHealthScore weights utilization and savings progress equally on a 0-100 scale.
// utilization is a fraction in [0, 1]; savingsProgress is already a percentage.
func CompositeHealthScore(utilization, savingsProgress decimal.Decimal) decimal.Decimal {
	score := half.Mul(utilization.Mul(hundred)).Add(half.Mul(savingsProgress))
	return clamp(score, decimal.Zero, hundred).Round(2)
}

type SubBudgetHealthResult struct {
	Score         decimal.Decimal
	SpendingRatio decimal.Decimal
	Variance      decimal.Decimal
}

// SubBudgetHealth scores a sub-budget from what was spent against what was allocated.
func SubBudgetHealth(spent, allocated, savingsRatio decimal.Decimal) (SubBudgetHealthResult, error) {
	spendingRatio := decimal.Zero
	if !spent.IsZero() {
		if !allocated.IsPositive() {
			return SubBudgetHealthResult{}, ErrDivisionByZero
		}
		spendingRatio = spent.Div(allocated)
	}
	score := hundred.
		Sub(spendingRatio.Mul(decimal.NewFromInt(120))).
		Add(savingsRatio.Mul(decimal.NewFromInt(50)))
	return SubBudgetHealthResult{
		Score:         clamp(score, decimal.Zero, hundred).Round(2),
		SpendingRatio: spendingRatio.Round(4),
		Variance:      spent.Sub(allocated).Abs(),
	}, nil
}

func clamp(d, lo, hi decimal.Decimal) decimal.Decimal {
	return decimal.Min(decimal.Max(d, lo), hi)
}
