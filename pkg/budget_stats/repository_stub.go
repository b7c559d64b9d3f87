package budget_stats

import (
	"context"
	"sync"
)

type RepositoryStub struct {
	mu     sync.Mutex
	scores map[string]HealthScore
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{scores: map[string]HealthScore{}}
}

func (s *RepositoryStub) SaveLatestScore(ctx context.Context, score HealthScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[score.SubBudgetId] = score
	return nil
}

func (s *RepositoryStub) FindLatestScore(ctx context.Context, subBudgetId string) (HealthScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	score, ok := s.scores[subBudgetId]
	if !ok {
		return HealthScore{}, ErrHealthScoreNotFound
	}
	return score, nil
}

func (s *RepositoryStub) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores = map[string]HealthScore{}
}
