package schedule

import (
	"context"
	"fmt"
	"sync"

	"github.com/klokku/budgetly/pkg/date_range"
)

type RepositoryStub struct {
	mu        sync.Mutex
	schedules map[string]BudgetSchedule
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{schedules: map[string]BudgetSchedule{}}
}

func (s *RepositoryStub) Create(ctx context.Context, schedule BudgetSchedule) (BudgetSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.schedules[schedule.SubBudgetId]; exists {
		return BudgetSchedule{}, ErrScheduleExists
	}
	schedule.Version = 1
	s.schedules[schedule.SubBudgetId] = clone(schedule)
	return schedule, nil
}

func (s *RepositoryStub) FindBySubBudget(ctx context.Context, subBudgetId string) (BudgetSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule, ok := s.schedules[subBudgetId]
	if !ok {
		return BudgetSchedule{}, ErrScheduleNotFound
	}
	return clone(schedule), nil
}

func (s *RepositoryStub) Update(ctx context.Context, schedule BudgetSchedule) (BudgetSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.schedules[schedule.SubBudgetId]
	if !ok || stored.Id != schedule.Id || stored.Version != schedule.Version {
		return BudgetSchedule{}, fmt.Errorf("%w: %s (version %d)", ErrVersionConflict, schedule.Id, schedule.Version)
	}
	schedule.Version++
	s.schedules[schedule.SubBudgetId] = clone(schedule)
	return schedule, nil
}

func (s *RepositoryStub) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules = map[string]BudgetSchedule{}
}

func clone(schedule BudgetSchedule) BudgetSchedule {
	schedule.SubPeriods = append([]date_range.DateRange(nil), schedule.SubPeriods...)
	return schedule
}
