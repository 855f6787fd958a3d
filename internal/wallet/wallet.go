package wallet

import (
	"context"
	"errors"
)

// Balances are integer currency units. The engine never deals in fractional
// amounts, so every delta is exact and idempotence is a status check away.

var ErrInsufficientFunds = errors.New("insufficient funds")

// Store is the authoritative balance account store. ApplyDelta must be
// atomic: a debit that would take the balance negative fails with
// ErrInsufficientFunds and leaves the balance untouched.
type Store interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
	ApplyDelta(ctx context.Context, userID string, delta int64) (int64, error)
}
