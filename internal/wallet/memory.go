package wallet

import (
	"context"
	"sync"
)

// MemoryStore keeps balances in a map. It backs the engine tests and is a
// drop-in stand-in when Redis is unavailable in development.
type MemoryStore struct {
	mu       sync.Mutex
	balances map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{balances: make(map[string]int64)}
}

func (s *MemoryStore) GetBalance(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID], nil
}

func (s *MemoryStore) ApplyDelta(_ context.Context, userID string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.balances[userID] + delta
	if next < 0 {
		return 0, ErrInsufficientFunds
	}
	s.balances[userID] = next
	return next, nil
}

func (s *MemoryStore) SetBalance(_ context.Context, userID string, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = balance
	return nil
}
