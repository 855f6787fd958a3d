package limits

import "context"

// Decision is what the bet path gets back from the limit checker. Reasons
// are user-facing strings; an empty Reasons with Allowed=false is a bug in
// the checker, not in the caller.
type Decision struct {
	Allowed bool
	Reasons []string
}

// Checker gates bet placement. CanPlaceBet is consulted before any balance
// is touched and reserves the amount against the caps; ReleaseBet gives
// that reservation back when the bet does not go through after all (the
// debit failed, the round aborted).
type Checker interface {
	CanPlaceBet(ctx context.Context, userID string, amount int64) (Decision, error)
	ReleaseBet(ctx context.Context, userID string, amount int64) error
}

// Unlimited allows everything. Used in tests and in deployments that run
// the limit service elsewhere.
type Unlimited struct{}

func (Unlimited) CanPlaceBet(context.Context, string, int64) (Decision, error) {
	return Decision{Allowed: true}, nil
}

func (Unlimited) ReleaseBet(context.Context, string, int64) error {
	return nil
}
