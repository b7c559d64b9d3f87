package sub_budget

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/klokku/budgetly/pkg/date_range"
	log "github.com/sirupsen/logrus"
)

type Service interface {
	CreateSubBudget(ctx context.Context, subBudget SubBudget, goals Goals) (SubBudget, error)
	GetSubBudget(ctx context.Context, id string) (SubBudget, error)
	GetGoals(ctx context.Context, id string) (Goals, error)
	UpdateSpan(ctx context.Context, id string, span date_range.DateRange) error
}

type ServiceImpl struct {
	repo Repository
}

func NewService(repo Repository) *ServiceImpl {
	return &ServiceImpl{repo: repo}
}

func (s *ServiceImpl) CreateSubBudget(ctx context.Context, subBudget SubBudget, goals Goals) (SubBudget, error) {
	if err := subBudget.Validate(); err != nil {
		return SubBudget{}, err
	}
	if goals.MonthlyAllocation.IsNegative() {
		return SubBudget{}, fmt.Errorf("%w: monthly allocation cannot be negative", ErrInvalidSubBudget)
	}
	if subBudget.Id == "" {
		subBudget.Id = uuid.NewString()
	}
	created, err := s.repo.CreateSubBudget(ctx, subBudget, goals)
	if err != nil {
		return SubBudget{}, fmt.Errorf("failed to create sub-budget: %w", err)
	}
	log.Infof("created sub-budget %s for %s", created.Id, created.Span)
	return created, nil
}

func (s *ServiceImpl) GetSubBudget(ctx context.Context, id string) (SubBudget, error) {
	return s.repo.FindSubBudget(ctx, id)
}

func (s *ServiceImpl) GetGoals(ctx context.Context, id string) (Goals, error) {
	return s.repo.FindSubBudgetGoals(ctx, id)
}

func (s *ServiceImpl) UpdateSpan(ctx context.Context, id string, span date_range.DateRange) error {
	if err := span.Validate(); err != nil {
		return err
	}
	return s.repo.UpdateSpan(ctx, id, span)
}
