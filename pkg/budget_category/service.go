package budget_category

import (
	"context"
	"errors"
	"fmt"

	"github.com/klokku/budgetly/internal/event_bus"
	"github.com/klokku/budgetly/pkg/date_range"
	"github.com/klokku/budgetly/pkg/transaction"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type Service interface {
	// Upsert creates the ledger records described by inputs, or refreshes the budgeted amount of existing ones
	// and merges the inputs' transactions into them. The whole batch is saved or nothing is.
	Upsert(ctx context.Context, subBudgetId string, inputs []LedgerInput) ([]BudgetCategory, error)
	// Record routes new transactions to the active ledger records of their category and period.
	Record(ctx context.Context, subBudgetId string, transactions []transaction.Transaction) (RecordResult, error)
	ListCategories(ctx context.Context, subBudgetId string, includeInactive bool) ([]BudgetCategory, error)
	DeactivateOutside(ctx context.Context, subBudgetId string, span date_range.DateRange) ([]string, error)
	// Retain deactivates active records whose period is not one of periods and returns their ids.
	Retain(ctx context.Context, subBudgetId string, periods []date_range.DateRange) ([]string, error)
}

// RecordResult reports what happened to each incoming transaction.
type RecordResult struct {
	Updated    []BudgetCategory
	Rejections []Rejection
	// Unmatched lists ids of transactions that belong to no active ledger record.
	Unmatched []string
}

type ServiceImpl struct {
	repo     Repository
	builder  LedgerBuilder
	eventBus *event_bus.EventBus
	locks    *keyedMutex
}

func NewService(repo Repository, builder LedgerBuilder, eventBus *event_bus.EventBus) *ServiceImpl {
	return &ServiceImpl{
		repo:     repo,
		builder:  builder,
		eventBus: eventBus,
		locks:    newKeyedMutex(),
	}
}

func (s *ServiceImpl) Upsert(ctx context.Context, subBudgetId string, inputs []LedgerInput) ([]BudgetCategory, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	saved, before, err := s.upsertLocked(ctx, subBudgetId, inputs)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, subBudgetId, before, saved)
	return saved, nil
}

// upsertLocked holds the keys of all inputs until the batch is saved.
func (s *ServiceImpl) upsertLocked(ctx context.Context, subBudgetId string, inputs []LedgerInput) ([]BudgetCategory, map[Key]BudgetCategory, error) {
	keys := make([]Key, 0, len(inputs))
	for _, in := range inputs {
		keys = append(keys, NewKey(subBudgetId, in.Category, in.Period))
	}
	unlock := s.locks.LockAll(keys)
	defer unlock()

	before := map[Key]BudgetCategory{}
	batch := make([]BudgetCategory, 0, len(inputs))
	for _, in := range inputs {
		existing, err := s.repo.FindExisting(ctx, subBudgetId, in.Category, in.Period)
		if errors.Is(err, ErrBudgetCategoryNotFound) {
			batch = append(batch, s.builder.Build(subBudgetId, in))
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to find budget category %s/%s: %w", in.Category, in.Period, err)
		}
		before[existing.Key()] = existing

		refreshed := existing
		refreshed.BudgetedAmount = in.BudgetedAmount
		refreshed.IsActive = true
		refreshed.recomputeOverspending()
		refreshed, rejections := Update(refreshed, in.Spending.Transactions)
		if len(rejections) > 0 {
			log.Warnf("%d transactions rejected while refreshing budget category %s", len(rejections), existing.Id)
		}
		batch = append(batch, refreshed)
	}

	saved, err := s.repo.SaveAll(ctx, batch)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to save budget categories: %w", err)
	}
	return saved, before, nil
}

func (s *ServiceImpl) Record(ctx context.Context, subBudgetId string, transactions []transaction.Transaction) (RecordResult, error) {
	active, err := s.repo.FindBySubBudget(ctx, subBudgetId, false)
	if err != nil {
		return RecordResult{}, fmt.Errorf("failed to load budget categories: %w", err)
	}

	targets := map[Key]BudgetCategory{}
	grouped := map[Key][]transaction.Transaction{}
	var result RecordResult
	for _, t := range transactions {
		matched := false
		for _, record := range active {
			if record.Period.Contains(t.PostedDate) && t.MatchesCategory(record.CategoryName) {
				key := record.Key()
				targets[key] = record
				grouped[key] = append(grouped[key], t)
				matched = true
			}
		}
		if !matched {
			log.Debugf("transaction %s matches no active budget category of sub-budget %s", t.Id, subBudgetId)
			result.Unmatched = append(result.Unmatched, t.Id)
		}
	}
	if len(grouped) == 0 {
		return result, nil
	}

	before, err := s.recordLocked(ctx, subBudgetId, targets, grouped, &result)
	if err != nil {
		return RecordResult{}, err
	}
	s.publish(ctx, subBudgetId, before, result.Updated)
	return result, nil
}

// recordLocked merges the grouped transactions while holding every affected key.
func (s *ServiceImpl) recordLocked(
	ctx context.Context,
	subBudgetId string,
	targets map[Key]BudgetCategory,
	grouped map[Key][]transaction.Transaction,
	result *RecordResult,
) (map[Key]BudgetCategory, error) {
	keys := make([]Key, 0, len(grouped))
	for key := range grouped {
		keys = append(keys, key)
	}
	unlock := s.locks.LockAll(keys)
	defer unlock()

	before := map[Key]BudgetCategory{}
	var batch []BudgetCategory
	for _, key := range keys {
		target := targets[key]
		// re-read under the lock so a concurrent writer's transactions are seen
		current, err := s.repo.FindExisting(ctx, subBudgetId, target.CategoryName, target.Period)
		if err != nil {
			return nil, fmt.Errorf("failed to find budget category %s: %w", target.Id, err)
		}
		if !current.IsActive {
			log.Warnf("budget category %s was deactivated while recording transactions", current.Id)
			for _, t := range grouped[key] {
				result.Unmatched = append(result.Unmatched, t.Id)
			}
			continue
		}
		updated, rejections := Update(current, grouped[key])
		result.Rejections = append(result.Rejections, rejections...)
		if len(updated.Transactions) == len(current.Transactions) {
			continue
		}
		before[key] = current
		batch = append(batch, updated)
	}
	if len(batch) == 0 {
		return before, nil
	}

	saved, err := s.repo.SaveAll(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to save budget categories: %w", err)
	}
	result.Updated = saved
	return before, nil
}

func (s *ServiceImpl) ListCategories(ctx context.Context, subBudgetId string, includeInactive bool) ([]BudgetCategory, error) {
	return s.repo.FindBySubBudget(ctx, subBudgetId, includeInactive)
}

func (s *ServiceImpl) DeactivateOutside(ctx context.Context, subBudgetId string, span date_range.DateRange) ([]string, error) {
	if err := span.Validate(); err != nil {
		return nil, err
	}
	ids, err := s.repo.DeactivateOutside(ctx, subBudgetId, span)
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate budget categories: %w", err)
	}
	if len(ids) > 0 {
		log.Infof("deactivated %d budget categories of sub-budget %s outside %s", len(ids), subBudgetId, span)
	}
	return ids, nil
}

func (s *ServiceImpl) Retain(ctx context.Context, subBudgetId string, periods []date_range.DateRange) ([]string, error) {
	keep := make(map[string]bool, len(periods))
	for _, p := range periods {
		keep[p.String()] = true
	}
	active, err := s.repo.FindBySubBudget(ctx, subBudgetId, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load budget categories: %w", err)
	}
	var stale []BudgetCategory
	for _, record := range active {
		if !keep[record.Period.String()] {
			stale = append(stale, record)
		}
	}
	if len(stale) == 0 {
		return nil, nil
	}

	keys := make([]Key, 0, len(stale))
	for _, record := range stale {
		keys = append(keys, record.Key())
	}
	unlock := s.locks.LockAll(keys)
	defer unlock()

	batch := make([]BudgetCategory, 0, len(stale))
	for _, record := range stale {
		current, err := s.repo.FindExisting(ctx, subBudgetId, record.CategoryName, record.Period)
		if err != nil {
			return nil, fmt.Errorf("failed to find budget category %s: %w", record.Id, err)
		}
		if current.IsActive {
			batch = append(batch, Deactivate(current))
		}
	}
	saved, err := s.repo.SaveAll(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate budget categories: %w", err)
	}
	ids := make([]string, 0, len(saved))
	for _, record := range saved {
		ids = append(ids, record.Id)
	}
	log.Infof("deactivated %d budget categories of sub-budget %s with a stale period", len(ids), subBudgetId)
	return ids, nil
}

func (s *ServiceImpl) publish(ctx context.Context, subBudgetId string, before map[Key]BudgetCategory, saved []BudgetCategory) {
	if s.eventBus == nil || len(saved) == 0 {
		return
	}
	categories := make([]string, 0, len(saved))
	totalActual := decimal.Zero
	seen := map[string]bool{}
	for _, record := range saved {
		totalActual = totalActual.Add(record.ActualAmount)
		if !seen[record.CategoryName] {
			seen[record.CategoryName] = true
			categories = append(categories, record.CategoryName)
		}
		previous, existed := before[record.Key()]
		if !record.IsOverspent || (existed && previous.IsOverspent) {
			continue
		}
		err := event_bus.Emit(ctx, s.eventBus, event_bus.BudgetCategoryOverspentType, event_bus.BudgetCategoryOverspent{
			SubBudgetId:        subBudgetId,
			CategoryName:       record.CategoryName,
			Period:             record.Period,
			BudgetedAmount:     record.BudgetedAmount,
			ActualAmount:       record.ActualAmount,
			OverspendingAmount: record.OverspendingAmount,
		})
		if err != nil {
			log.Errorf("failed to publish overspending event: %v", err)
		}
	}

	// Ledger changes are already committed; a failing subscriber only leaves derived data stale.
	err := event_bus.Emit(ctx, s.eventBus, event_bus.BudgetCategoryUpdatedType, event_bus.BudgetCategoryUpdated{
		SubBudgetId: subBudgetId,
		Categories:  categories,
		TotalActual: totalActual,
	})
	if err != nil {
		log.Errorf("failed to publish budget category update event: %v", err)
	}
}
