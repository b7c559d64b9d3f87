package budget_stats

import (
	"context"
	"fmt"

	"github.com/klokku/budgetly/internal/event_bus"
	"github.com/klokku/budgetly/internal/utils"
	"github.com/klokku/budgetly/pkg/budget_category"
	"github.com/klokku/budgetly/pkg/spending"
	"github.com/klokku/budgetly/pkg/sub_budget"
	"github.com/klokku/budgetly/pkg/transaction"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type Service interface {
	GetStats(ctx context.Context, subBudgetId string) (BudgetStats, error)
	// RecordLatestScore computes the sub-budget health and stores it as the latest score.
	RecordLatestScore(ctx context.Context, subBudgetId string) (HealthScore, error)
	GetLatestScore(ctx context.Context, subBudgetId string) (HealthScore, error)
}

type ServiceImpl struct {
	repo         Repository
	subBudgets   sub_budget.Service
	ledger       budget_category.Service
	transactions transaction.Repository
	recurring    spending.RecurringLookup
	clock        utils.Clock
}

func NewService(
	repo Repository,
	subBudgets sub_budget.Service,
	ledger budget_category.Service,
	transactions transaction.Repository,
	recurring spending.RecurringLookup,
	clock utils.Clock,
) *ServiceImpl {
	return &ServiceImpl{
		repo:         repo,
		subBudgets:   subBudgets,
		ledger:       ledger,
		transactions: transactions,
		recurring:    recurring,
		clock:        clock,
	}
}

// SubscribeToLedgerUpdates records a fresh health score whenever ledger records of a sub-budget change.
func (s *ServiceImpl) SubscribeToLedgerUpdates(bus *event_bus.EventBus) (unsubscribe func()) {
	return event_bus.SubscribeTyped(bus, event_bus.BudgetCategoryUpdatedType,
		func(e event_bus.EventT[event_bus.BudgetCategoryUpdated]) error {
			_, err := s.RecordLatestScore(e.Context(), e.Data.SubBudgetId)
			return err
		})
}

func (s *ServiceImpl) GetStats(ctx context.Context, subBudgetId string) (BudgetStats, error) {
	subBudget, err := s.subBudgets.GetSubBudget(ctx, subBudgetId)
	if err != nil {
		return BudgetStats{}, err
	}
	goals, err := s.subBudgets.GetGoals(ctx, subBudgetId)
	if err != nil {
		return BudgetStats{}, err
	}
	records, err := s.ledger.ListCategories(ctx, subBudgetId, false)
	if err != nil {
		return BudgetStats{}, fmt.Errorf("failed to load budget categories: %w", err)
	}

	ledgerBudgeted := decimal.Zero
	overspent := 0
	for _, record := range records {
		ledgerBudgeted = ledgerBudgeted.Add(record.BudgetedAmount)
		if record.IsOverspent {
			overspent++
		}
	}
	spent := spentAcross(records)

	averagePerDay, err := AverageSpendingPerDay(spent, subBudget.Span.Days())
	if err != nil {
		return BudgetStats{}, fmt.Errorf("failed to compute average spending for %s: %w", subBudget.Span, err)
	}
	fixedRecurring, err := s.fixedRecurringTotal(ctx, subBudget)
	if err != nil {
		return BudgetStats{}, err
	}

	progress := SavingsProgress(goals.SavingsAmount, goals.MonthlyAllocation, goals.SavingsTarget)
	utilization := UtilizationScore(subBudget.AllocatedAmount, spent)
	return BudgetStats{
		BudgetId:              subBudget.BudgetId,
		SubBudgetId:           subBudget.Id,
		TotalBudgeted:         subBudget.AllocatedAmount,
		LedgerBudgeted:        ledgerBudgeted,
		TotalSpent:            spent,
		Remaining:             subBudget.AllocatedAmount.Sub(spent),
		TotalSaved:            goals.SavingsAmount,
		SavingsProgress:       progress,
		UtilizationScore:      utilization,
		HealthScore:           CompositeHealthScore(utilization, progress),
		AverageSpendingPerDay: averagePerDay,
		FixedRecurringTotal:   fixedRecurring,
		OverspentCategories:   overspent,
		Period:                subBudget.Span,
	}, nil
}

func (s *ServiceImpl) RecordLatestScore(ctx context.Context, subBudgetId string) (HealthScore, error) {
	subBudget, err := s.subBudgets.GetSubBudget(ctx, subBudgetId)
	if err != nil {
		return HealthScore{}, err
	}
	goals, err := s.subBudgets.GetGoals(ctx, subBudgetId)
	if err != nil {
		return HealthScore{}, err
	}
	records, err := s.ledger.ListCategories(ctx, subBudgetId, false)
	if err != nil {
		return HealthScore{}, fmt.Errorf("failed to load budget categories: %w", err)
	}

	savingsRatio := decimal.Zero
	if goals.SavingsTarget.IsPositive() {
		savingsRatio = clamp(goals.SavingsAmount.DivRound(goals.SavingsTarget, 4), decimal.Zero, decimal.NewFromInt(1))
	}
	health, err := SubBudgetHealth(spentAcross(records), subBudget.AllocatedAmount, savingsRatio)
	if err != nil {
		return HealthScore{}, fmt.Errorf("failed to score sub-budget %s: %w", subBudgetId, err)
	}

	score := HealthScore{
		SubBudgetId:   subBudgetId,
		Score:         health.Score,
		SpendingRatio: health.SpendingRatio,
		Variance:      health.Variance,
		RecordedAt:    s.clock.Now().UTC(),
	}
	if err := s.repo.SaveLatestScore(ctx, score); err != nil {
		return HealthScore{}, err
	}
	log.Debugf("recorded health score %s for sub-budget %s", score.Score, subBudgetId)
	return score, nil
}

func (s *ServiceImpl) GetLatestScore(ctx context.Context, subBudgetId string) (HealthScore, error) {
	return s.repo.FindLatestScore(ctx, subBudgetId)
}

func (s *ServiceImpl) fixedRecurringTotal(ctx context.Context, subBudget sub_budget.SubBudget) (decimal.Decimal, error) {
	if s.recurring == nil {
		return decimal.Zero, nil
	}
	categories, err := s.recurring.FixedRecurringCategories(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load fixed recurring categories: %w", err)
	}
	if len(categories) == 0 {
		return decimal.Zero, nil
	}
	txs, err := s.transactions.FindInRange(ctx, subBudget.BudgetId, subBudget.Span)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load transactions: %w", err)
	}
	return spending.TotalFixedRecurring(subBudget.Span, txs, categories), nil
}

// spentAcross sums every transaction once even when it is recorded under several categories.
func spentAcross(records []budget_category.BudgetCategory) decimal.Decimal {
	seen := map[string]bool{}
	total := decimal.Zero
	for _, record := range records {
		for _, t := range record.Transactions {
			if seen[t.Id] {
				continue
			}
			seen[t.Id] = true
			total = total.Add(t.Amount)
		}
	}
	return total
}
