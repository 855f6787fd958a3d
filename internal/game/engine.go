package game

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"rocket/internal/config"
	"rocket/internal/ledger"
	"rocket/internal/wallet"
)

// Engine owns the round lifecycle. One goroutine drives
// PENDING -> BETTING -> RUNNING -> CRASHED -> next round; bet and cash-out
// requests arrive concurrently from sessions and settle against the Book's
// per-bet locks, never against the loop.
type Engine struct {
	cfg    config.Engine
	hub    *Hub
	book   *Book
	ledger ledger.Store
	wallet wallet.Store
	curve  Curve

	mu             sync.RWMutex
	round          *Round
	nonce          int64
	history        []float64
	nextClientSeed string

	stopChan chan struct{}
	doneChan chan struct{}

	// crashPointFn exists so tests can pin the outcome of a round.
	crashPointFn func(serverSeed, clientSeed string, nonce int64) (float64, error)
}

func NewEngine(cfg config.Engine, hub *Hub, book *Book, led ledger.Store, w wallet.Store) *Engine {
	e := &Engine{
		cfg:      cfg,
		hub:      hub,
		book:     book,
		ledger:   led,
		wallet:   w,
		curve:    Curve{Growth: cfg.GrowthRate, Max: cfg.MaxMultiplier},
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	e.crashPointFn = func(serverSeed, clientSeed string, nonce int64) (float64, error) {
		return ComputeCrashPoint(serverSeed, clientSeed, nonce, cfg.HouseEdge, cfg.MaxMultiplier)
	}
	return e
}

// Start resumes the nonce counter from the ledger before the loop runs.
// Nonces are unique and monotonic across process restarts; starting from
// zero again would collide with every committed round.
func (e *Engine) Start() {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.StoreTimeout)
	defer cancel()

	if nonce, err := e.ledger.MaxNonce(ctx); err != nil {
		log.Printf("[GAME] Nonce recovery failed, resuming from %d: %v", e.nonce, err)
	} else if nonce > e.nonce {
		e.mu.Lock()
		e.nonce = nonce
		e.mu.Unlock()
	}

	go e.loop()
}

func (e *Engine) Stop() {
	close(e.stopChan)
	<-e.doneChan
}

func (e *Engine) loop() {
	defer close(e.doneChan)
	for {
		select {
		case <-e.stopChan:
			log.Println("[GAME] Engine stopped")
			return
		default:
		}

		if err := e.runRound(); err != nil {
			// A round that cannot commit its fairness data must not
			// accept bets. Surface and hold before trying a new round.
			log.Printf("[GAME] Round aborted: %v", err)
			if !e.sleep(e.cfg.Cooldown) {
				return
			}
		}
	}
}

func (e *Engine) runRound() error {
	round, err := e.openRound()
	if err != nil {
		return err
	}

	if !e.runBettingWindow(round) {
		return nil // shutdown
	}

	e.startRunning(round)

	if !e.runTicks(round) {
		return nil // shutdown
	}

	e.sleep(e.cfg.Cooldown)
	return nil
}

// openRound generates the fairness material, commits it to the ledger and
// opens the betting window. Any failure here is fatal for the round: a
// round without a valid, committed crash point never accepts a bet.
func (e *Engine) openRound() (*Round, error) {
	serverSeed, err := GenerateSeed()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.nonce++
	nonce := e.nonce
	clientSeed := e.nextClientSeed
	e.nextClientSeed = ""
	e.mu.Unlock()

	if clientSeed == "" {
		if clientSeed, err = GenerateSeed(); err != nil {
			return nil, err
		}
	}

	crashPoint, err := e.crashPointFn(serverSeed, clientSeed, nonce)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	round := &Round{
		ID:             uuid.NewString(),
		Nonce:          nonce,
		ServerSeedHash: HashCommitment(serverSeed),
		ClientSeed:     clientSeed,
		Status:         StatusBetting,
		BettingEndsAt:  now.Add(e.cfg.BettingWindow),
		serverSeed:     serverSeed,
		crashPoint:     crashPoint,
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.StoreTimeout)
	defer cancel()
	if err := e.ledger.AppendRound(ctx, ledger.RoundRecord{
		ID:             round.ID,
		Nonce:          nonce,
		ServerSeedHash: round.ServerSeedHash,
		ClientSeed:     clientSeed,
		StartedAt:      now,
	}); err != nil {
		return nil, fmt.Errorf("commit round: %w", err)
	}

	e.book.Reset()

	e.mu.Lock()
	e.round = round
	e.mu.Unlock()

	log.Printf("[GAME] Round %s open, nonce %d, commitment %s...", round.ID, nonce, round.ServerSeedHash[:16])

	e.broadcastState()
	return round, nil
}

// runBettingWindow pushes the countdown until the window expires.
// Returns false only on shutdown.
func (e *Engine) runBettingWindow(round *Round) bool {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !time.Now().Before(round.BettingEndsAt) {
				return true
			}
			e.broadcastState()
		case <-e.stopChan:
			return false
		}
	}
}

func (e *Engine) startRunning(round *Round) {
	now := time.Now()
	e.mu.Lock()
	round.Status = StatusRunning
	round.StartedAt = now
	round.crashAt = now.Add(e.curve.TimeToReach(round.crashPoint))
	e.mu.Unlock()

	e.broadcastState()
}

// runTicks drives the RUNNING phase. Each tick reads the deterministic
// curve, fires due auto-cashouts through the normal cash-out path, and
// crashes the round the instant the curve reaches the crash point. A crash
// point of 1.00 crashes on the first check without a single tick.
func (e *Engine) runTicks(round *Round) bool {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		now := time.Now()
		mult := e.curve.At(now.Sub(round.StartedAt))
		if !now.Before(round.crashAt) || mult >= round.crashPoint {
			// Targets strictly below the crash point were reached at an
			// earlier instant on the curve; honor them before settling
			// the round even if this is the first tick to see them.
			e.fireAutoCashouts(round, round.crashPoint)
			e.crash(round)
			return true
		}

		e.fireAutoCashouts(round, mult)
		e.broadcastState()

		select {
		case <-ticker.C:
		case <-e.stopChan:
			return false
		}
	}
}

// fireAutoCashouts settles every active bet whose target has been reached.
// Targets at or above the crash point never fire: ties at the crash
// instant resolve in favor of the round.
func (e *Engine) fireAutoCashouts(round *Round, mult float64) {
	for _, userID := range e.book.AutoCashoutDue(mult) {
		snap, ok := e.book.Lookup(userID)
		if !ok || snap.AutoCashout >= round.crashPoint {
			continue
		}
		// Pay at the configured target: the curve crossed it during this
		// tick, and the target is what the player locked in at placement.
		e.settleCashOut(context.Background(), userID, snap.AutoCashout, true)
	}
}

func (e *Engine) crash(round *Round) {
	now := time.Now()
	e.mu.Lock()
	round.Status = StatusCrashed
	round.CrashedAt = now
	e.history = append([]float64{round.crashPoint}, e.history...)
	if len(e.history) > e.cfg.HistorySize {
		e.history = e.history[:e.cfg.HistorySize]
	}
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.StoreTimeout)
	defer cancel()
	if err := e.ledger.RevealRound(ctx, round.ID, round.serverSeed, round.crashPoint, now); err != nil {
		log.Printf("[GAME] Reveal failed for round %s: %v", round.ID, err)
	}

	lost := e.book.SettleLost(ctx)

	log.Printf("[GAME] Round %s crashed at %.2fx, %d bets lost", round.ID, round.crashPoint, len(lost))

	e.broadcastState()
	for _, snap := range lost {
		e.sendOverlay(snap.UserID)
	}
}

// PlaceBet accepts a stake while the betting window is open. The window
// check is deterministic against the wall clock, so a request that arrives
// after expiry is rejected even if the loop has not ticked over yet.
func (e *Engine) PlaceBet(ctx context.Context, userID string, amount int64, autoCashout float64) (BetSnapshot, int64, error) {
	if autoCashout != 0 && autoCashout <= MinMultiplier {
		return BetSnapshot{}, 0, ErrBetOutOfRange
	}

	e.mu.RLock()
	round := e.round
	var roundID string
	open := round != nil && round.Status == StatusBetting && time.Now().Before(round.BettingEndsAt)
	if open {
		roundID = round.ID
	}
	e.mu.RUnlock()

	if !open {
		return BetSnapshot{}, 0, ErrRoundNotBetting
	}

	snap, balance, err := e.book.Place(ctx, roundID, userID, amount, autoCashout)
	if err != nil {
		return BetSnapshot{}, 0, err
	}

	e.hub.SendToUser(userID, Envelope{Type: "betPlaced", Data: BetPlacedMessage{
		Amount:  snap.Amount,
		Balance: balance,
	}})
	e.sendOverlay(userID)

	log.Printf("[BET] User %s staked %d on round %s", userID, amount, roundID)
	return snap, balance, nil
}

// CashOut settles the caller's bet at the multiplier the curve shows right
// now. A request arriving at or after the crash instant is too late even
// if the crash tick has not fired yet.
func (e *Engine) CashOut(ctx context.Context, userID string) (BetSnapshot, int64, error) {
	e.mu.RLock()
	var (
		exists     = e.round != nil
		status     RoundStatus
		startedAt  time.Time
		crashAt    time.Time
		crashPoint float64
	)
	if exists {
		status = e.round.Status
		startedAt = e.round.StartedAt
		crashAt = e.round.crashAt
		crashPoint = e.round.crashPoint
	}
	e.mu.RUnlock()

	if !exists {
		return BetSnapshot{}, 0, ErrRoundNotRunning
	}

	switch status {
	case StatusRunning:
	case StatusCrashed:
		if _, ok := e.book.Lookup(userID); ok {
			return BetSnapshot{}, 0, ErrAlreadySettled
		}
		return BetSnapshot{}, 0, ErrNoActiveBet
	default:
		return BetSnapshot{}, 0, ErrRoundNotRunning
	}

	now := time.Now()
	mult := e.curve.At(now.Sub(startedAt))
	if !now.Before(crashAt) || mult >= crashPoint {
		return BetSnapshot{}, 0, ErrAlreadySettled
	}

	return e.settleCashOut(ctx, userID, mult, false)
}

func (e *Engine) settleCashOut(ctx context.Context, userID string, mult float64, automatic bool) (BetSnapshot, int64, error) {
	snap, balance, err := e.book.CashOut(ctx, userID, mult)
	if err != nil {
		return BetSnapshot{}, 0, err
	}

	e.hub.SendToUser(userID, Envelope{Type: "cashedOut", Data: CashedOutMessage{
		Multiplier:  snap.CashedOutAt,
		Winnings:    snap.Payout,
		Balance:     balance,
		IsAutomatic: automatic,
	}})
	e.sendOverlay(userID)

	log.Printf("[CASHOUT] User %s at %.2fx, payout %d (auto=%v)", userID, snap.CashedOutAt, snap.Payout, automatic)
	return snap, balance, nil
}

// SetNextClientSeed queues a player-supplied client seed for the next
// round. The current round's seed is frozen with its commitment.
func (e *Engine) SetNextClientSeed(seed string) {
	e.mu.Lock()
	e.nextClientSeed = seed
	e.mu.Unlock()
}

// Snapshot returns the client-safe view of the current round.
func (e *Engine) Snapshot() (RoundSnapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.round == nil {
		return RoundSnapshot{}, false
	}
	return e.round.snapshot(time.Now(), e.curve), true
}

// History returns the most recent crash points, newest first.
func (e *Engine) History() []float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]float64, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Engine) broadcastState() {
	snap, ok := e.Snapshot()
	if !ok {
		return
	}
	e.hub.Broadcast(Envelope{Type: "gameState", Data: GameStateMessage{
		RoundID:        snap.RoundID,
		State:          snap.Status,
		Multiplier:     snap.Multiplier,
		Countdown:      snap.Countdown,
		PlayersOnline:  e.hub.GetClientCount(),
		CrashHistory:   e.History(),
		ServerSeedHash: snap.ServerSeedHash,
		ServerSeed:     snap.ServerSeed,
		CrashPoint:     snap.CrashPoint,
	}})
}

// sendOverlay pushes the caller's per-round status and balance. Best
// effort: a store hiccup here only delays the overlay, settlement already
// happened.
func (e *Engine) sendOverlay(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.StoreTimeout)
	defer cancel()

	balance, err := e.wallet.GetBalance(ctx, userID)
	if err != nil {
		log.Printf("[GAME] Overlay balance read failed for %s: %v", userID, err)
	}

	overlay := PlayerOverlayMessage{Balance: balance}
	if snap, ok := e.book.Lookup(userID); ok {
		overlay.HasActiveBet = snap.Status == BetActive
		if overlay.HasActiveBet {
			overlay.ActiveBetAmount = snap.Amount
		}
		overlay.CashedOut = snap.Status == BetCashedOut
		overlay.CashedOutMultiplier = snap.CashedOutAt
	}

	e.hub.SendToUser(userID, Envelope{Type: "playerOverlay", Data: overlay})
}

// Overlay exposes the same per-player view for the websocket greeting.
func (e *Engine) Overlay(userID string) {
	e.sendOverlay(userID)
}

func (e *Engine) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-e.stopChan:
		return false
	}
}
