package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rocket/internal/ledger"
	"rocket/internal/limits"
	"rocket/internal/wallet"
)

func newTestBook(t *testing.T) (*Book, *wallet.MemoryStore, *ledger.MemoryStore) {
	t.Helper()
	w := wallet.NewMemoryStore()
	led := ledger.NewMemoryStore()
	return NewBook(w, limits.Unlimited{}, led, 1, 10000, 100*time.Millisecond), w, led
}

func TestBook_PlaceDebitsOnce(t *testing.T) {
	book, w, led := newTestBook(t)
	w.SetBalance(context.Background(), "u1", 1000)

	snap, balance, err := book.Place(context.Background(), "r1", "u1", 100, 0)
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}
	if balance != 900 {
		t.Errorf("balance after place = %v, want 900", balance)
	}
	if snap.Status != BetActive {
		t.Errorf("bet status = %v, want ACTIVE", snap.Status)
	}

	rec, ok := led.GetBet(snap.ID)
	if !ok {
		t.Fatal("bet not appended to ledger")
	}
	if rec.Status != "ACTIVE" || rec.Amount != 100 {
		t.Errorf("ledger record = %+v, want ACTIVE amount 100", rec)
	}
}

func TestBook_PlaceRejections(t *testing.T) {
	tests := []struct {
		name    string
		balance int64
		amount  int64
		wantErr error
	}{
		{name: "Insufficient balance", balance: 50, amount: 100, wantErr: ErrInsufficientBalance},
		{name: "Below minimum", balance: 1000, amount: 0, wantErr: ErrBetOutOfRange},
		{name: "Above maximum", balance: 1000000, amount: 20000, wantErr: ErrBetOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book, w, _ := newTestBook(t)
			w.SetBalance(context.Background(), "u1", tt.balance)

			_, _, err := book.Place(context.Background(), "r1", "u1", tt.amount, 0)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Place() error = %v, want %v", err, tt.wantErr)
			}

			// A rejected bet leaves no trace: balance intact, no slot held.
			bal, _ := w.GetBalance(context.Background(), "u1")
			if bal != tt.balance {
				t.Errorf("balance = %v, want %v", bal, tt.balance)
			}
			if _, exists := book.Lookup("u1"); exists {
				t.Error("rejected bet left an entry in the book")
			}
		})
	}
}

func TestBook_DuplicateBetRejected(t *testing.T) {
	book, w, _ := newTestBook(t)
	w.SetBalance(context.Background(), "u1", 1000)

	if _, _, err := book.Place(context.Background(), "r1", "u1", 100, 0); err != nil {
		t.Fatalf("first Place() error = %v", err)
	}
	_, _, err := book.Place(context.Background(), "r1", "u1", 100, 0)
	if !errors.Is(err, ErrDuplicateBet) {
		t.Fatalf("second Place() error = %v, want ErrDuplicateBet", err)
	}

	// Only the first stake was debited.
	bal, _ := w.GetBalance(context.Background(), "u1")
	if bal != 900 {
		t.Errorf("balance = %v, want 900", bal)
	}
}

func TestBook_LimitExceeded(t *testing.T) {
	w := wallet.NewMemoryStore()
	w.SetBalance(context.Background(), "u1", 1000)
	book := NewBook(w, denyAll{}, ledger.NewMemoryStore(), 1, 10000, 100*time.Millisecond)

	_, _, err := book.Place(context.Background(), "r1", "u1", 100, 0)
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("Place() error = %v, want ErrLimitExceeded", err)
	}

	bal, _ := w.GetBalance(context.Background(), "u1")
	if bal != 1000 {
		t.Errorf("balance = %v, want untouched 1000", bal)
	}
}

type denyAll struct{}

func (denyAll) CanPlaceBet(context.Context, string, int64) (limits.Decision, error) {
	return limits.Decision{Allowed: false, Reasons: []string{"daily limit reached"}}, nil
}

func (denyAll) ReleaseBet(context.Context, string, int64) error { return nil }

// recordingLimits allows every bet and records what gets handed back.
type recordingLimits struct {
	mu       sync.Mutex
	released []int64
}

func (r *recordingLimits) CanPlaceBet(context.Context, string, int64) (limits.Decision, error) {
	return limits.Decision{Allowed: true}, nil
}

func (r *recordingLimits) ReleaseBet(_ context.Context, _ string, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, amount)
	return nil
}

// A bet that clears the limit check but then fails must hand its reserved
// volume back, or rejected bets would permanently eat into the daily cap.
func TestBook_ReleasesLimitWhenBetFails(t *testing.T) {
	checker := &recordingLimits{}
	w := wallet.NewMemoryStore()
	w.SetBalance(context.Background(), "u1", 50)
	book := NewBook(w, checker, ledger.NewMemoryStore(), 1, 10000, 100*time.Millisecond)

	// Debit failure: the stake exceeds the balance.
	_, _, err := book.Place(context.Background(), "r1", "u1", 100, 0)
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("Place() error = %v, want ErrInsufficientBalance", err)
	}
	if len(checker.released) != 1 || checker.released[0] != 100 {
		t.Fatalf("released = %v, want [100]", checker.released)
	}

	// Duplicate slot: the second request is rejected after its limit check.
	if _, _, err := book.Place(context.Background(), "r1", "u1", 25, 0); err != nil {
		t.Fatalf("Place() error = %v", err)
	}
	if _, _, err := book.Place(context.Background(), "r1", "u1", 25, 0); !errors.Is(err, ErrDuplicateBet) {
		t.Fatalf("Place() error = %v, want ErrDuplicateBet", err)
	}
	if len(checker.released) != 2 || checker.released[1] != 25 {
		t.Fatalf("released = %v, want [100 25]", checker.released)
	}
}

func TestBook_CashOutPayout(t *testing.T) {
	tests := []struct {
		name       string
		amount     int64
		multiplier float64
		wantPayout int64
	}{
		{name: "Whole payout", amount: 100, multiplier: 2.50, wantPayout: 250},
		{name: "Floored payout", amount: 3, multiplier: 1.33, wantPayout: 3},
		{name: "Minimum multiplier", amount: 100, multiplier: 1.01, wantPayout: 101},
		{name: "Large payout", amount: 10000, multiplier: 999.99, wantPayout: 9999900},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book, w, led := newTestBook(t)
			w.SetBalance(context.Background(), "u1", 10000)

			snap, _, err := book.Place(context.Background(), "r1", "u1", tt.amount, 0)
			if err != nil {
				t.Fatalf("Place() error = %v", err)
			}

			settled, balance, err := book.CashOut(context.Background(), "u1", tt.multiplier)
			if err != nil {
				t.Fatalf("CashOut() error = %v", err)
			}
			if settled.Payout != tt.wantPayout {
				t.Errorf("payout = %v, want %v", settled.Payout, tt.wantPayout)
			}
			if balance != 10000-tt.amount+tt.wantPayout {
				t.Errorf("balance = %v, want %v", balance, 10000-tt.amount+tt.wantPayout)
			}

			rec, _ := led.GetBet(snap.ID)
			if rec.Status != "CASHED_OUT" || rec.Payout != tt.wantPayout {
				t.Errorf("ledger record = %+v, want CASHED_OUT payout %v", rec, tt.wantPayout)
			}
		})
	}
}

func TestBook_CashOutWithoutBet(t *testing.T) {
	book, _, _ := newTestBook(t)

	_, _, err := book.CashOut(context.Background(), "u1", 2.0)
	if !errors.Is(err, ErrNoActiveBet) {
		t.Fatalf("CashOut() error = %v, want ErrNoActiveBet", err)
	}
}

func TestBook_DoubleCashOut(t *testing.T) {
	book, w, _ := newTestBook(t)
	w.SetBalance(context.Background(), "u1", 1000)

	if _, _, err := book.Place(context.Background(), "r1", "u1", 100, 0); err != nil {
		t.Fatalf("Place() error = %v", err)
	}

	if _, _, err := book.CashOut(context.Background(), "u1", 2.0); err != nil {
		t.Fatalf("first CashOut() error = %v", err)
	}
	_, _, err := book.CashOut(context.Background(), "u1", 2.0)
	if !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("second CashOut() error = %v, want ErrAlreadySettled", err)
	}

	bal, _ := w.GetBalance(context.Background(), "u1")
	if bal != 1100 {
		t.Errorf("balance = %v, want single payout 1100", bal)
	}
}

func TestBook_ConcurrentCashOut(t *testing.T) {
	book, w, _ := newTestBook(t)
	w.SetBalance(context.Background(), "u1", 1000)

	if _, _, err := book.Place(context.Background(), "r1", "u1", 100, 0); err != nil {
		t.Fatalf("Place() error = %v", err)
	}

	const attempts = 20
	var wg sync.WaitGroup
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := book.CashOut(context.Background(), "u1", 2.0)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded, settled := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrAlreadySettled):
			settled++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("successful cash-outs = %v, want exactly 1", succeeded)
	}
	if settled != attempts-1 {
		t.Errorf("ErrAlreadySettled count = %v, want %v", settled, attempts-1)
	}

	bal, _ := w.GetBalance(context.Background(), "u1")
	if bal != 1100 {
		t.Errorf("balance = %v, want single payout applied (1100)", bal)
	}
}

func TestBook_SettleLostSkipsCashedOut(t *testing.T) {
	book, w, led := newTestBook(t)
	w.SetBalance(context.Background(), "u1", 1000)
	w.SetBalance(context.Background(), "u2", 1000)

	winner, _, _ := book.Place(context.Background(), "r1", "u1", 100, 0)
	loser, _, _ := book.Place(context.Background(), "r1", "u2", 100, 0)

	if _, _, err := book.CashOut(context.Background(), "u1", 1.5); err != nil {
		t.Fatalf("CashOut() error = %v", err)
	}

	lost := book.SettleLost(context.Background())
	if len(lost) != 1 || lost[0].UserID != "u2" {
		t.Fatalf("SettleLost() = %+v, want only u2", lost)
	}

	winRec, _ := led.GetBet(winner.ID)
	if winRec.Status != "CASHED_OUT" {
		t.Errorf("winner status = %v, crash settlement overwrote a cash-out", winRec.Status)
	}
	loseRec, _ := led.GetBet(loser.ID)
	if loseRec.Status != "LOST" {
		t.Errorf("loser status = %v, want LOST", loseRec.Status)
	}

	// Settling again is a no-op.
	if again := book.SettleLost(context.Background()); len(again) != 0 {
		t.Errorf("second SettleLost() = %+v, want none", again)
	}
}

func TestBook_AutoCashoutDue(t *testing.T) {
	book, w, _ := newTestBook(t)
	w.SetBalance(context.Background(), "u1", 1000)
	w.SetBalance(context.Background(), "u2", 1000)
	w.SetBalance(context.Background(), "u3", 1000)

	book.Place(context.Background(), "r1", "u1", 100, 2.0)
	book.Place(context.Background(), "r1", "u2", 100, 5.0)
	book.Place(context.Background(), "r1", "u3", 100, 0) // manual only

	due := book.AutoCashoutDue(2.5)
	if len(due) != 1 || due[0] != "u1" {
		t.Fatalf("AutoCashoutDue(2.5) = %v, want [u1]", due)
	}

	// Once settled, the bet stops showing up.
	book.CashOut(context.Background(), "u1", 2.0)
	if due := book.AutoCashoutDue(2.5); len(due) != 0 {
		t.Errorf("AutoCashoutDue() after settle = %v, want none", due)
	}
}

func TestBook_ResetClearsRound(t *testing.T) {
	book, w, _ := newTestBook(t)
	w.SetBalance(context.Background(), "u1", 1000)

	book.Place(context.Background(), "r1", "u1", 100, 0)
	book.Reset()

	if _, exists := book.Lookup("u1"); exists {
		t.Error("Lookup() found a bet after Reset()")
	}
	if _, _, err := book.Place(context.Background(), "r2", "u1", 100, 0); err != nil {
		t.Errorf("Place() in next round error = %v", err)
	}
}
