package ledger

import (
	"context"
	"errors"
	"time"
)

var ErrRoundNotFound = errors.New("round not found")

// RoundRecord is the durable trail for one round. The commitment fields are
// written when betting opens; ServerSeed, CrashPoint and CrashedAt stay
// empty until the round has crashed and the seed is public.
type RoundRecord struct {
	ID             string
	Nonce          int64
	ServerSeedHash string
	ClientSeed     string
	ServerSeed     string
	CrashPoint     float64
	Revealed       bool
	StartedAt      time.Time
	CrashedAt      time.Time
}

// BetRecord mirrors a bet's lifecycle: appended ACTIVE at placement,
// settled exactly once to CASHED_OUT or LOST.
type BetRecord struct {
	ID          string
	RoundID     string
	UserID      string
	Amount      int64
	AutoCashout float64
	Status      string
	CashedOutAt float64
	Payout      int64
	PlacedAt    time.Time
}

// Store is the append-only round/bet log. Writes are never updates in
// place except the two settlement transitions the game defines.
type Store interface {
	AppendRound(ctx context.Context, round RoundRecord) error
	RevealRound(ctx context.Context, roundID, serverSeed string, crashPoint float64, crashedAt time.Time) error
	GetRound(ctx context.Context, roundID string) (RoundRecord, error)
	RecentRounds(ctx context.Context, limit int) ([]RoundRecord, error)
	// MaxNonce reports the highest nonce ever committed, 0 for an empty
	// trail. The engine resumes its counter from here so nonces stay
	// monotonic across restarts.
	MaxNonce(ctx context.Context) (int64, error)
	AppendBet(ctx context.Context, bet BetRecord) error
	SettleBet(ctx context.Context, betID, status string, cashedOutAt float64, payout int64) error
}
