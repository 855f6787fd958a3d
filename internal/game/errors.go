package game

import "errors"

// Rejected-by-design outcomes. These travel back to the player as honest
// structured rejections and are never logged as server errors.
var (
	ErrRoundNotBetting     = errors.New("round is not accepting bets")
	ErrRoundNotRunning     = errors.New("round is not running")
	ErrNoActiveBet         = errors.New("no active bet for this round")
	ErrAlreadySettled      = errors.New("bet already settled")
	ErrDuplicateBet        = errors.New("active bet already placed this round")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrLimitExceeded       = errors.New("bet limit exceeded")
	ErrBetOutOfRange       = errors.New("bet amount out of range")
)

// RejectionReason maps a rejected-by-design error to the wire reason the
// client renders. Unknown errors are transient or fatal and get a generic
// reason instead of leaking internals.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrRoundNotBetting):
		return "too late, betting is closed"
	case errors.Is(err, ErrRoundNotRunning):
		return "round is not running"
	case errors.Is(err, ErrNoActiveBet):
		return "no active bet"
	case errors.Is(err, ErrAlreadySettled):
		return "too late, bet already settled"
	case errors.Is(err, ErrDuplicateBet):
		return "bet already placed this round"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient balance"
	case errors.Is(err, ErrLimitExceeded):
		return "daily limit reached"
	case errors.Is(err, ErrBetOutOfRange):
		return "bet amount out of range"
	default:
		return "temporary failure, try again"
	}
}

// IsRejection reports whether err is a normal game rejection rather than
// a transient or fatal failure.
func IsRejection(err error) bool {
	for _, rejection := range []error{
		ErrRoundNotBetting, ErrRoundNotRunning, ErrNoActiveBet,
		ErrAlreadySettled, ErrDuplicateBet, ErrInsufficientBalance,
		ErrLimitExceeded, ErrBetOutOfRange,
	} {
		if errors.Is(err, rejection) {
			return true
		}
	}
	return false
}
