package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"rocket/internal/ledger"
	"rocket/internal/limits"
	"rocket/internal/wallet"
)

type BetStatus string

const (
	BetActive    BetStatus = "ACTIVE"
	BetCashedOut BetStatus = "CASHED_OUT"
	BetLost      BetStatus = "LOST"
)

// Bet is one player's stake in the current round. The embedded mutex is
// the settlement lock: whoever holds it first (a cash-out request or the
// crash bulk settle) decides the bet's final state.
type Bet struct {
	ID          string
	RoundID     string
	UserID      string
	Amount      int64
	AutoCashout float64
	PlacedAt    time.Time

	mu          sync.Mutex
	status      BetStatus
	cashedOutAt float64
	payout      int64
}

// BetSnapshot is an immutable copy safe to hand to broadcast code.
type BetSnapshot struct {
	ID          string    `json:"bet_id"`
	RoundID     string    `json:"round_id"`
	UserID      string    `json:"user_id"`
	Amount      int64     `json:"amount"`
	AutoCashout float64   `json:"auto_cashout,omitempty"`
	Status      BetStatus `json:"status"`
	CashedOutAt float64   `json:"cashed_out_at,omitempty"`
	Payout      int64     `json:"payout,omitempty"`
}

func (b *Bet) snapshotLocked() BetSnapshot {
	return BetSnapshot{
		ID:          b.ID,
		RoundID:     b.RoundID,
		UserID:      b.UserID,
		Amount:      b.Amount,
		AutoCashout: b.AutoCashout,
		Status:      b.status,
		CashedOutAt: b.cashedOutAt,
		Payout:      b.payout,
	}
}

// Book serializes bet placement and settlement per bet, not globally.
// book.mu only guards the map; balance calls and status transitions run
// under the individual bet's lock so one slow player cannot stall another.
type Book struct {
	wallet       wallet.Store
	limits       limits.Checker
	ledger       ledger.Store
	minBet       int64
	maxBet       int64
	storeTimeout time.Duration

	mu   sync.RWMutex
	bets map[string]*Bet // by userID, current round only
}

func NewBook(w wallet.Store, l limits.Checker, led ledger.Store, minBet, maxBet int64, storeTimeout time.Duration) *Book {
	return &Book{
		wallet:       w,
		limits:       l,
		ledger:       led,
		minBet:       minBet,
		maxBet:       maxBet,
		storeTimeout: storeTimeout,
		bets:         make(map[string]*Bet),
	}
}

// Reset discards the previous round's bets. Called once per round turn,
// after settlement is complete.
func (bk *Book) Reset() {
	bk.mu.Lock()
	bk.bets = make(map[string]*Bet)
	bk.mu.Unlock()
}

// Place debits the stake and records the bet atomically: the bet slot is
// reserved before the debit and released if the debit fails, so a balance
// change is never observable without its bet and duplicate requests collide
// on the reservation.
func (bk *Book) Place(ctx context.Context, roundID, userID string, amount int64, autoCashout float64) (BetSnapshot, int64, error) {
	if amount < bk.minBet || amount > bk.maxBet {
		return BetSnapshot{}, 0, ErrBetOutOfRange
	}

	decision, err := bk.limits.CanPlaceBet(ctx, userID, amount)
	if err != nil {
		return BetSnapshot{}, 0, fmt.Errorf("limit check: %w", err)
	}
	if !decision.Allowed {
		return BetSnapshot{}, 0, fmt.Errorf("%w: %v", ErrLimitExceeded, decision.Reasons)
	}

	bet := &Bet{
		ID:          uuid.NewString(),
		RoundID:     roundID,
		UserID:      userID,
		Amount:      amount,
		AutoCashout: autoCashout,
		PlacedAt:    time.Now(),
		status:      BetActive,
	}

	bk.mu.Lock()
	if _, exists := bk.bets[userID]; exists {
		bk.mu.Unlock()
		bk.releaseLimit(ctx, userID, amount)
		return BetSnapshot{}, 0, ErrDuplicateBet
	}
	bk.bets[userID] = bet
	bk.mu.Unlock()

	storeCtx, cancel := context.WithTimeout(ctx, bk.storeTimeout)
	defer cancel()

	newBalance, err := bk.wallet.ApplyDelta(storeCtx, userID, -amount)
	if err != nil {
		bk.mu.Lock()
		delete(bk.bets, userID)
		bk.mu.Unlock()
		bk.releaseLimit(ctx, userID, amount)
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			return BetSnapshot{}, 0, ErrInsufficientBalance
		}
		return BetSnapshot{}, 0, fmt.Errorf("debit stake: %w", err)
	}

	if err := bk.ledger.AppendBet(ctx, ledger.BetRecord{
		ID:          bet.ID,
		RoundID:     roundID,
		UserID:      userID,
		Amount:      amount,
		AutoCashout: autoCashout,
		Status:      string(BetActive),
		PlacedAt:    bet.PlacedAt,
	}); err != nil {
		log.Printf("[BET] ledger append failed for bet %s: %v", bet.ID, err)
	}

	bet.mu.Lock()
	snap := bet.snapshotLocked()
	bet.mu.Unlock()
	return snap, newBalance, nil
}

// releaseLimit hands reserved daily volume back for a bet that was
// rejected or failed after the limit check passed.
func (bk *Book) releaseLimit(ctx context.Context, userID string, amount int64) {
	if err := bk.limits.ReleaseBet(ctx, userID, amount); err != nil {
		log.Printf("[BET] limit release failed for %s: %v", userID, err)
	}
}

// CashOut settles the caller's active bet at the given multiplier. The
// per-bet lock is held across the balance credit, so a duplicate request
// blocks until the first finishes and then sees ErrAlreadySettled.
func (bk *Book) CashOut(ctx context.Context, userID string, multiplier float64) (BetSnapshot, int64, error) {
	bk.mu.RLock()
	bet, exists := bk.bets[userID]
	bk.mu.RUnlock()
	if !exists {
		return BetSnapshot{}, 0, ErrNoActiveBet
	}

	bet.mu.Lock()
	defer bet.mu.Unlock()

	if bet.status != BetActive {
		return BetSnapshot{}, 0, ErrAlreadySettled
	}

	payout := int64(math.Floor(float64(bet.Amount) * multiplier))

	storeCtx, cancel := context.WithTimeout(ctx, bk.storeTimeout)
	defer cancel()

	newBalance, err := bk.wallet.ApplyDelta(storeCtx, userID, payout)
	if err != nil {
		// Bet stays ACTIVE; a retried request credits exactly once.
		return BetSnapshot{}, 0, fmt.Errorf("credit payout: %w", err)
	}

	bet.status = BetCashedOut
	bet.cashedOutAt = multiplier
	bet.payout = payout

	if err := bk.ledger.SettleBet(ctx, bet.ID, string(BetCashedOut), multiplier, payout); err != nil {
		log.Printf("[BET] ledger settle failed for bet %s: %v", bet.ID, err)
	}

	return bet.snapshotLocked(), newBalance, nil
}

// SettleLost bulk-settles every still-active bet when the round crashes.
// A cash-out that won the per-bet lock race keeps its CASHED_OUT state.
func (bk *Book) SettleLost(ctx context.Context) []BetSnapshot {
	bk.mu.RLock()
	bets := make([]*Bet, 0, len(bk.bets))
	for _, bet := range bk.bets {
		bets = append(bets, bet)
	}
	bk.mu.RUnlock()

	var lost []BetSnapshot
	for _, bet := range bets {
		bet.mu.Lock()
		if bet.status != BetActive {
			bet.mu.Unlock()
			continue
		}
		bet.status = BetLost
		snap := bet.snapshotLocked()
		bet.mu.Unlock()

		if err := bk.ledger.SettleBet(ctx, snap.ID, string(BetLost), 0, 0); err != nil {
			log.Printf("[BET] ledger settle failed for bet %s: %v", snap.ID, err)
		}
		lost = append(lost, snap)
	}
	return lost
}

// AutoCashoutDue returns the users whose auto-cashout target has been
// reached at the current multiplier and whose bet is still active.
func (bk *Book) AutoCashoutDue(multiplier float64) []string {
	bk.mu.RLock()
	defer bk.mu.RUnlock()

	var due []string
	for userID, bet := range bk.bets {
		if bet.AutoCashout < MinMultiplier {
			continue
		}
		bet.mu.Lock()
		active := bet.status == BetActive
		bet.mu.Unlock()
		if active && multiplier >= bet.AutoCashout {
			due = append(due, userID)
		}
	}
	return due
}

// Lookup returns the caller's bet snapshot for the current round, if any.
func (bk *Book) Lookup(userID string) (BetSnapshot, bool) {
	bk.mu.RLock()
	bet, exists := bk.bets[userID]
	bk.mu.RUnlock()
	if !exists {
		return BetSnapshot{}, false
	}
	bet.mu.Lock()
	defer bet.mu.Unlock()
	return bet.snapshotLocked(), true
}
