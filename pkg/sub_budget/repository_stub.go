package sub_budget

import (
	"context"
	"sync"

	"github.com/klokku/budgetly/pkg/date_range"
)

type RepositoryStub struct {
	mu         sync.Mutex
	subBudgets map[string]SubBudget
	goals      map[string]Goals
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{subBudgets: map[string]SubBudget{}, goals: map[string]Goals{}}
}

func (s *RepositoryStub) CreateSubBudget(ctx context.Context, subBudget SubBudget, goals Goals) (SubBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	goals.SubBudgetId = subBudget.Id
	goals.SavingsTarget = subBudget.SavingsTarget
	goals.SavingsAmount = subBudget.SavingsAmount
	s.subBudgets[subBudget.Id] = subBudget
	s.goals[subBudget.Id] = goals
	return subBudget, nil
}

func (s *RepositoryStub) FindSubBudget(ctx context.Context, id string) (SubBudget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subBudget, ok := s.subBudgets[id]
	if !ok {
		return SubBudget{}, ErrSubBudgetNotFound
	}
	return subBudget, nil
}

func (s *RepositoryStub) FindSubBudgetGoals(ctx context.Context, id string) (Goals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	goals, ok := s.goals[id]
	if !ok {
		return Goals{}, ErrSubBudgetNotFound
	}
	return goals, nil
}

func (s *RepositoryStub) UpdateSpan(ctx context.Context, id string, span date_range.DateRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	subBudget, ok := s.subBudgets[id]
	if !ok {
		return ErrSubBudgetNotFound
	}
	subBudget.Span = span
	s.subBudgets[id] = subBudget
	return nil
}

func (s *RepositoryStub) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subBudgets = map[string]SubBudget{}
	s.goals = map[string]Goals{}
}
