package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps the round/bet trail in maps. Backs the engine tests
// and development runs without Postgres.
type MemoryStore struct {
	mu     sync.Mutex
	rounds map[string]RoundRecord
	bets   map[string]BetRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rounds: make(map[string]RoundRecord),
		bets:   make(map[string]BetRecord),
	}
}

func (s *MemoryStore) AppendRound(_ context.Context, round RoundRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds[round.ID] = round
	return nil
}

func (s *MemoryStore) RevealRound(_ context.Context, roundID, serverSeed string, crashPoint float64, crashedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rounds[roundID]
	if !ok {
		return ErrRoundNotFound
	}
	rec.ServerSeed = serverSeed
	rec.CrashPoint = crashPoint
	rec.CrashedAt = crashedAt
	rec.Revealed = true
	s.rounds[roundID] = rec
	return nil
}

func (s *MemoryStore) GetRound(_ context.Context, roundID string) (RoundRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.rounds[roundID]
	if !ok {
		return RoundRecord{}, ErrRoundNotFound
	}
	return rec, nil
}

func (s *MemoryStore) RecentRounds(_ context.Context, limit int) ([]RoundRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []RoundRecord
	for _, rec := range s.rounds {
		if rec.Revealed {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Nonce > records[j].Nonce })
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *MemoryStore) MaxNonce(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var max int64
	for _, rec := range s.rounds {
		if rec.Nonce > max {
			max = rec.Nonce
		}
	}
	return max, nil
}

func (s *MemoryStore) AppendBet(_ context.Context, bet BetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bets[bet.ID] = bet
	return nil
}

func (s *MemoryStore) SettleBet(_ context.Context, betID, status string, cashedOutAt float64, payout int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bet, ok := s.bets[betID]
	if !ok || bet.Status != "ACTIVE" {
		return nil
	}
	bet.Status = status
	bet.CashedOutAt = cashedOutAt
	bet.Payout = payout
	s.bets[betID] = bet
	return nil
}

// GetBet is test support, not part of the Store contract.
func (s *MemoryStore) GetBet(betID string) (BetRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bet, ok := s.bets[betID]
	return bet, ok
}
