package budget_category

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/klokku/budgetly/pkg/date_range"
)

type RepositoryStub struct {
	mu      sync.Mutex
	records map[Key]BudgetCategory
	// SaveErr, when set, makes the next SaveAll fail without writing anything.
	SaveErr error
	saves   int
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{records: map[Key]BudgetCategory{}}
}

func (s *RepositoryStub) FindExisting(ctx context.Context, subBudgetId string, category string, period date_range.DateRange) (BudgetCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[NewKey(subBudgetId, category, period)]
	if !ok {
		return BudgetCategory{}, ErrBudgetCategoryNotFound
	}
	return clone(record), nil
}

func (s *RepositoryStub) FindBySubBudget(ctx context.Context, subBudgetId string, includeInactive bool) ([]BudgetCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found []BudgetCategory
	for _, record := range s.records {
		if record.SubBudgetId != subBudgetId || (!record.IsActive && !includeInactive) {
			continue
		}
		found = append(found, clone(record))
	}
	sort.Slice(found, func(i, j int) bool {
		if !found[i].Period.Start.Equal(found[j].Period.Start) {
			return found[i].Period.Start.Before(found[j].Period.Start)
		}
		return found[i].CategoryName < found[j].CategoryName
	})
	return found, nil
}

func (s *RepositoryStub) SaveAll(ctx context.Context, records []BudgetCategory) ([]BudgetCategory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		err := s.SaveErr
		s.SaveErr = nil
		return nil, err
	}
	for _, record := range records {
		stored, exists := s.records[record.Key()]
		if record.Version == 0 && exists {
			return nil, fmt.Errorf("budget category %v already exists", record.Key())
		}
		if record.Version != 0 && (!exists || stored.Version != record.Version) {
			return nil, fmt.Errorf("%w: %s (version %d)", ErrVersionConflict, record.Id, record.Version)
		}
	}
	saved := make([]BudgetCategory, 0, len(records))
	for _, record := range records {
		record.Version++
		s.records[record.Key()] = clone(record)
		saved = append(saved, record)
	}
	s.saves++
	return saved, nil
}

func (s *RepositoryStub) DeactivateOutside(ctx context.Context, subBudgetId string, span date_range.DateRange) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for key, record := range s.records {
		if record.SubBudgetId != subBudgetId || !record.IsActive || span.ContainsRange(record.Period) {
			continue
		}
		record.IsActive = false
		record.Version++
		s.records[key] = record
		ids = append(ids, record.Id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Saves returns how many batches were written.
func (s *RepositoryStub) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *RepositoryStub) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = map[Key]BudgetCategory{}
	s.SaveErr = nil
	s.saves = 0
}

func clone(c BudgetCategory) BudgetCategory {
	c.Transactions = append(c.Transactions[:0:0], c.Transactions...)
	return c
}
