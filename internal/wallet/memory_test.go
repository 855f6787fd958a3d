package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemoryStore_GetBalance_Unknown(t *testing.T) {
	store := NewMemoryStore()

	bal, err := store.GetBalance(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	if bal != 0 {
		t.Errorf("GetBalance() = %v, want 0", bal)
	}
}

func TestMemoryStore_ApplyDelta(t *testing.T) {
	tests := []struct {
		name    string
		start   int64
		delta   int64
		want    int64
		wantErr error
	}{
		{name: "Credit", start: 100, delta: 50, want: 150},
		{name: "Debit", start: 100, delta: -40, want: 60},
		{name: "Debit to zero", start: 100, delta: -100, want: 0},
		{name: "Overdraw", start: 100, delta: -101, wantErr: ErrInsufficientFunds},
		{name: "Debit empty account", start: 0, delta: -1, wantErr: ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			store.SetBalance(context.Background(), "u1", tt.start)

			got, err := store.ApplyDelta(context.Background(), "u1", tt.delta)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ApplyDelta() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				// Failed debit must leave the balance untouched.
				bal, _ := store.GetBalance(context.Background(), "u1")
				if bal != tt.start {
					t.Errorf("balance after failed debit = %v, want %v", bal, tt.start)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ApplyDelta() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMemoryStore_ConcurrentDebits(t *testing.T) {
	store := NewMemoryStore()
	store.SetBalance(context.Background(), "u1", 100)

	// 200 concurrent debits of 1 against a balance of 100: exactly 100
	// must succeed.
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ApplyDelta(context.Background(), "u1", -1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 100 {
		t.Errorf("successful debits = %v, want 100", succeeded)
	}

	bal, _ := store.GetBalance(context.Background(), "u1")
	if bal != 0 {
		t.Errorf("final balance = %v, want 0", bal)
	}
}
