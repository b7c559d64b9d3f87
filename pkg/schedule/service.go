package schedule

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klokku/budgetly/internal/event_bus"
	"github.com/klokku/budgetly/internal/utils"
	"github.com/klokku/budgetly/pkg/allocation"
	"github.com/klokku/budgetly/pkg/budget_category"
	"github.com/klokku/budgetly/pkg/date_range"
	"github.com/klokku/budgetly/pkg/period"
	"github.com/klokku/budgetly/pkg/spending"
	"github.com/klokku/budgetly/pkg/sub_budget"
	"github.com/klokku/budgetly/pkg/transaction"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// maxParallelCategories bounds concurrent ledger writes of one build.
const maxParallelCategories = 4

type Service interface {
	CreateSchedule(ctx context.Context, subBudgetId string, cadence period.Cadence) (BudgetSchedule, error)
	// RebuildSchedule recomputes every sub-period for newSpan and deactivates ledger records that no longer fit.
	RebuildSchedule(ctx context.Context, subBudgetId string, newSpan date_range.DateRange) (BudgetSchedule, []string, error)
	CloseSchedule(ctx context.Context, subBudgetId string) (BudgetSchedule, error)
	GetSchedule(ctx context.Context, subBudgetId string) (BudgetSchedule, error)
	// BuildLedger aggregates, allocates and stores the ledger of every category seen in the schedule span.
	BuildLedger(ctx context.Context, subBudgetId string) (BuildResult, error)
	IngestTransactions(ctx context.Context, subBudgetId string, transactions []transaction.Transaction) (IngestResult, error)
	Timeline(ctx context.Context, subBudgetId string) (Timeline, error)
}

type IngestResult struct {
	Stored int
	Ledger budget_category.RecordResult
}

type ServiceImpl struct {
	repo         Repository
	subBudgets   sub_budget.Service
	ledger       budget_category.Service
	transactions transaction.Repository
	calculator   *allocation.Calculator
	caps         Caps
	eventBus     *event_bus.EventBus
	clock        utils.Clock
}

func NewService(
	repo Repository,
	subBudgets sub_budget.Service,
	ledger budget_category.Service,
	transactions transaction.Repository,
	calculator *allocation.Calculator,
	caps Caps,
	eventBus *event_bus.EventBus,
	clock utils.Clock,
) *ServiceImpl {
	return &ServiceImpl{
		repo:         repo,
		subBudgets:   subBudgets,
		ledger:       ledger,
		transactions: transactions,
		calculator:   calculator,
		caps:         caps,
		eventBus:     eventBus,
		clock:        clock,
	}
}

func (s *ServiceImpl) CreateSchedule(ctx context.Context, subBudgetId string, cadence period.Cadence) (BudgetSchedule, error) {
	subBudget, err := s.subBudgets.GetSubBudget(ctx, subBudgetId)
	if err != nil {
		return BudgetSchedule{}, err
	}
	existing, err := s.repo.FindBySubBudget(ctx, subBudgetId)
	if err == nil {
		if existing.Status == Closed {
			return BudgetSchedule{}, fmt.Errorf("%w: %s", ErrScheduleClosed, existing.Id)
		}
		return BudgetSchedule{}, fmt.Errorf("%w: %s", ErrScheduleExists, existing.Id)
	}
	if !errors.Is(err, ErrScheduleNotFound) {
		return BudgetSchedule{}, err
	}

	schedule := BudgetSchedule{
		Id:          uuid.NewString(),
		SubBudgetId: subBudgetId,
		Cadence:     cadence,
		Status:      Uninitialized,
	}
	effective, periods, err := s.caps.plan(subBudget.Span, cadence)
	if err != nil {
		log.WithFields(log.Fields{
			"subBudgetId": subBudgetId,
			"cadence":     cadence,
			"span":        subBudget.Span.String(),
		}).Warnf("schedule not created: %v", err)
		return BudgetSchedule{}, err
	}
	schedule.Span = effective
	schedule.SubPeriods = periods
	schedule.Status = Active

	widened := !effective.Equal(subBudget.Span)
	if widened {
		if err := s.subBudgets.UpdateSpan(ctx, subBudgetId, effective); err != nil {
			return BudgetSchedule{}, fmt.Errorf("failed to widen sub-budget span: %w", err)
		}
	}
	created, err := s.repo.Create(ctx, schedule)
	if err != nil {
		if widened {
			s.restoreSpan(ctx, subBudgetId, subBudget.Span)
		}
		return BudgetSchedule{}, err
	}
	log.Infof("created %s schedule %s with %d sub-periods for sub-budget %s", cadence, created.Id, len(periods), subBudgetId)
	return created, nil
}

func (s *ServiceImpl) RebuildSchedule(ctx context.Context, subBudgetId string, newSpan date_range.DateRange) (BudgetSchedule, []string, error) {
	schedule, err := s.repo.FindBySubBudget(ctx, subBudgetId)
	if err != nil {
		return BudgetSchedule{}, nil, err
	}
	if schedule.Status == Closed {
		return BudgetSchedule{}, nil, fmt.Errorf("%w: %s", ErrScheduleClosed, schedule.Id)
	}
	effective, periods, err := s.caps.plan(newSpan, schedule.Cadence)
	if err != nil {
		return BudgetSchedule{}, nil, err
	}
	subBudget, err := s.subBudgets.GetSubBudget(ctx, subBudgetId)
	if err != nil {
		return BudgetSchedule{}, nil, err
	}

	if err := s.subBudgets.UpdateSpan(ctx, subBudgetId, effective); err != nil {
		return BudgetSchedule{}, nil, fmt.Errorf("failed to update sub-budget span: %w", err)
	}
	schedule.Span = effective
	schedule.SubPeriods = periods
	schedule.Status = Active
	rebuilt, err := s.repo.Update(ctx, schedule)
	if err != nil {
		s.restoreSpan(ctx, subBudgetId, subBudget.Span)
		return BudgetSchedule{}, nil, err
	}

	outside, err := s.ledger.DeactivateOutside(ctx, subBudgetId, effective)
	if err != nil {
		return BudgetSchedule{}, nil, err
	}
	misaligned, err := s.ledger.Retain(ctx, subBudgetId, periods)
	if err != nil {
		return BudgetSchedule{}, nil, err
	}
	deactivated := append(outside, misaligned...)

	if s.eventBus != nil {
		err := event_bus.Emit(ctx, s.eventBus, event_bus.ScheduleRebuiltType, event_bus.ScheduleRebuilt{
			SubBudgetId:          subBudgetId,
			ScheduleId:           rebuilt.Id,
			Span:                 effective,
			SubPeriods:           len(periods),
			DeactivatedLedgerIds: deactivated,
		})
		if err != nil {
			log.Errorf("failed to publish schedule rebuilt event: %v", err)
		}
	}
	log.Infof("rebuilt schedule %s for %s: %d sub-periods, %d ledger records deactivated", rebuilt.Id, effective, len(periods), len(deactivated))
	return rebuilt, deactivated, nil
}

// restoreSpan puts back the sub-budget span after the schedule could not be stored.
func (s *ServiceImpl) restoreSpan(ctx context.Context, subBudgetId string, span date_range.DateRange) {
	if err := s.subBudgets.UpdateSpan(ctx, subBudgetId, span); err != nil {
		log.WithFields(log.Fields{
			"subBudgetId": subBudgetId,
			"span":        span.String(),
		}).Errorf("failed to restore sub-budget span: %v", err)
	}
}

func (s *ServiceImpl) CloseSchedule(ctx context.Context, subBudgetId string) (BudgetSchedule, error) {
	schedule, err := s.repo.FindBySubBudget(ctx, subBudgetId)
	if err != nil {
		return BudgetSchedule{}, err
	}
	if schedule.Status == Closed {
		return BudgetSchedule{}, fmt.Errorf("%w: %s", ErrScheduleClosed, schedule.Id)
	}
	schedule.Status = Closed
	return s.repo.Update(ctx, schedule)
}

func (s *ServiceImpl) GetSchedule(ctx context.Context, subBudgetId string) (BudgetSchedule, error) {
	return s.repo.FindBySubBudget(ctx, subBudgetId)
}

func (s *ServiceImpl) BuildLedger(ctx context.Context, subBudgetId string) (BuildResult, error) {
	schedule, err := s.repo.FindBySubBudget(ctx, subBudgetId)
	if err != nil {
		return BuildResult{}, err
	}
	if schedule.Status != Active {
		return BuildResult{}, fmt.Errorf("%w: %s is %s", ErrScheduleNotActive, schedule.Id, schedule.Status)
	}
	subBudget, err := s.subBudgets.GetSubBudget(ctx, subBudgetId)
	if err != nil {
		return BuildResult{}, err
	}

	monthlyTotal := monthlyPortion(subBudget.AllocatedAmount, schedule.Span)
	if _, err := s.calculator.PeriodBudgetAmount(monthlyTotal, schedule.Cadence); err != nil {
		return BuildResult{}, fmt.Errorf("failed to compute period budget of sub-budget %s: %w", subBudgetId, err)
	}

	txs, err := s.transactions.FindInRange(ctx, subBudget.BudgetId, schedule.Span)
	if err != nil {
		return BuildResult{}, fmt.Errorf("failed to load transactions: %w", err)
	}
	categories, err := s.categoriesOf(ctx, subBudgetId, txs)
	if err != nil {
		return BuildResult{}, err
	}

	byCategory, err := spending.AggregateAll(ctx, categories, txs, schedule.SubPeriods)
	if err != nil {
		return BuildResult{}, fmt.Errorf("failed to aggregate spending: %w", err)
	}
	totals, grandTotal, failures := spending.TotalsByCategory(byCategory)

	result := BuildResult{Schedule: schedule, Unmatched: unmatched(txs, categories)}
	if len(result.Unmatched) > 0 {
		log.WithFields(log.Fields{
			"subBudgetId":  subBudgetId,
			"transactions": result.Unmatched,
		}).Warnf("%d transactions have no category", len(result.Unmatched))
	}
	var mu sync.Mutex
	skip := func(category string, reason error) {
		log.WithFields(log.Fields{
			"subBudgetId": subBudgetId,
			"category":    category,
		}).Warnf("skipping category: %v", reason)
		mu.Lock()
		result.Skipped = append(result.Skipped, Skipped{Category: category, Reason: reason.Error()})
		mu.Unlock()
	}
	for category, reason := range failures {
		skip(category, reason)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelCategories)
	for category, spent := range totals {
		g.Go(func() error {
			budgeted, err := s.calculator.AllocateCategory(monthlyTotal, schedule.Cadence, spent, grandTotal)
			if err != nil {
				skip(category, err)
				return nil
			}
			inputs := make([]budget_category.LedgerInput, 0, len(byCategory[category]))
			for _, sp := range byCategory[category] {
				inputs = append(inputs, budget_category.LedgerInput{
					Category:       category,
					Period:         sp.Period,
					Spending:       sp,
					BudgetedAmount: budgeted,
				})
			}
			saved, err := s.ledger.Upsert(gctx, subBudgetId, inputs)
			if err != nil {
				skip(category, err)
				return nil
			}
			mu.Lock()
			result.Categories = append(result.Categories, saved...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BuildResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return BuildResult{}, err
	}

	sort.Slice(result.Categories, func(i, j int) bool {
		a, b := result.Categories[i], result.Categories[j]
		if !a.Period.Start.Equal(b.Period.Start) {
			return a.Period.Start.Before(b.Period.Start)
		}
		return a.CategoryName < b.CategoryName
	})
	sort.Slice(result.Skipped, func(i, j int) bool { return result.Skipped[i].Category < result.Skipped[j].Category })
	log.Infof("built ledger of sub-budget %s: %d records, %d categories skipped, %d transactions unmatched",
		subBudgetId, len(result.Categories), len(result.Skipped), len(result.Unmatched))
	return result, nil
}

func (s *ServiceImpl) IngestTransactions(ctx context.Context, subBudgetId string, transactions []transaction.Transaction) (IngestResult, error) {
	for _, t := range transactions {
		if strings.TrimSpace(t.Id) == "" {
			return IngestResult{}, fmt.Errorf("%w: id is required", ErrInvalidTransaction)
		}
		if t.PostedDate.IsZero() {
			return IngestResult{}, fmt.Errorf("%w: %s has no posted date", ErrInvalidTransaction, t.Id)
		}
	}
	subBudget, err := s.subBudgets.GetSubBudget(ctx, subBudgetId)
	if err != nil {
		return IngestResult{}, err
	}
	stored, err := s.transactions.Store(ctx, subBudget.BudgetId, transactions)
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to store transactions: %w", err)
	}
	recorded, err := s.ledger.Record(ctx, subBudgetId, transactions)
	if err != nil {
		return IngestResult{}, err
	}
	return IngestResult{Stored: stored, Ledger: recorded}, nil
}

func (s *ServiceImpl) Timeline(ctx context.Context, subBudgetId string) (Timeline, error) {
	schedule, err := s.repo.FindBySubBudget(ctx, subBudgetId)
	if err != nil {
		return Timeline{}, err
	}
	records, err := s.ledger.ListCategories(ctx, subBudgetId, false)
	if err != nil {
		return Timeline{}, fmt.Errorf("failed to load budget categories: %w", err)
	}
	byPeriod := map[string][]budget_category.BudgetCategory{}
	for _, record := range records {
		byPeriod[record.Period.String()] = append(byPeriod[record.Period.String()], record)
	}

	today := date_range.Day(s.clock.Now())
	timeline := Timeline{Schedule: schedule, Entries: make([]TimelineEntry, 0, len(schedule.SubPeriods))}
	for _, p := range schedule.SubPeriods {
		timeline.Entries = append(timeline.Entries, TimelineEntry{
			Period:     p,
			Position:   positionOf(p, today),
			Categories: byPeriod[p.String()],
		})
	}
	return timeline, nil
}

// categoriesOf returns the categories seen in transactions plus those already on the ledger, sorted.
func (s *ServiceImpl) categoriesOf(ctx context.Context, subBudgetId string, txs []transaction.Transaction) ([]string, error) {
	seen := map[string]bool{}
	var categories []string
	add := func(category string) {
		key := strings.ToLower(category)
		if !seen[key] {
			seen[key] = true
			categories = append(categories, category)
		}
	}
	for _, category := range transaction.Categories(txs) {
		add(category)
	}
	existing, err := s.ledger.ListCategories(ctx, subBudgetId, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load budget categories: %w", err)
	}
	for _, record := range existing {
		add(record.CategoryName)
	}
	sort.Strings(categories)
	return categories, nil
}

// unmatched returns the ids of transactions that belong to none of categories.
func unmatched(txs []transaction.Transaction, categories []string) []string {
	var ids []string
	for _, t := range txs {
		if !slices.ContainsFunc(categories, t.MatchesCategory) {
			ids = append(ids, t.Id)
		}
	}
	return ids
}

func positionOf(p date_range.DateRange, today time.Time) Position {
	switch {
	case p.End.Before(today):
		return Past
	case p.Start.After(today):
		return Future
	default:
		return Current
	}
}

// monthlyPortion is the part of total that falls on one month of span. Spans of up to 31 days are one month.
func monthlyPortion(total decimal.Decimal, span date_range.DateRange) decimal.Decimal {
	if span.Days() <= 31 {
		return total
	}
	months := len(span.SplitByMonths())
	return total.DivRound(decimal.NewFromInt(int64(months)), 2)
}
