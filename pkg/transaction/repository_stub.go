package transaction

import (
	"context"
	"sort"
	"sync"

	"github.com/klokku/budgetly/pkg/date_range"
)

type RepositoryStub struct {
	mu           sync.Mutex
	transactions map[string][]Transaction
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{transactions: map[string][]Transaction{}}
}

func (s *RepositoryStub) FindInRange(ctx context.Context, budgetId string, span date_range.DateRange) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found []Transaction
	for _, t := range s.transactions[budgetId] {
		if span.Contains(t.PostedDate) {
			found = append(found, t)
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].PostedDate.Before(found[j].PostedDate)
	})
	return found, nil
}

func (s *RepositoryStub) Store(ctx context.Context, budgetId string, transactions []Transaction) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, t := range transactions {
		if s.contains(budgetId, t.Id) {
			continue
		}
		s.transactions[budgetId] = append(s.transactions[budgetId], t)
		inserted++
	}
	return inserted, nil
}

func (s *RepositoryStub) contains(budgetId, id string) bool {
	for _, t := range s.transactions[budgetId] {
		if t.Id == id {
			return true
		}
	}
	return false
}

func (s *RepositoryStub) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = map[string][]Transaction{}
}
