package game

import "time"

type RoundStatus string

const (
	StatusPending RoundStatus = "PENDING"
	StatusBetting RoundStatus = "BETTING"
	StatusRunning RoundStatus = "RUNNING"
	StatusCrashed RoundStatus = "CRASHED"
)

// Round is the single active round. crashPoint and serverSeed are write-
// once at round creation and unexported so no serializer can leak them
// before reveal.
type Round struct {
	ID             string
	Nonce          int64
	ServerSeedHash string
	ClientSeed     string
	Status         RoundStatus
	BettingEndsAt  time.Time
	StartedAt      time.Time
	CrashedAt      time.Time

	serverSeed string
	crashPoint float64
	// crashAt is derived once from the curve inverse when the round
	// starts running, so every tick agrees on the crash instant.
	crashAt time.Time
}

// CrashPoint is readable only by the engine's crash check; the value never
// reaches an outbound message until after the round has crashed.
func (r *Round) CrashPoint() float64 { return r.crashPoint }

// RoundSnapshot is the client-safe view of the round. Crash fields are
// populated only once Status is CRASHED.
type RoundSnapshot struct {
	RoundID        string      `json:"round_id"`
	Nonce          int64       `json:"nonce"`
	ServerSeedHash string      `json:"server_seed_hash"`
	ClientSeed     string      `json:"client_seed"`
	Status         RoundStatus `json:"status"`
	Multiplier     float64     `json:"multiplier"`
	Countdown      float64     `json:"countdown"`
	ServerSeed     string      `json:"server_seed,omitempty"`
	CrashPoint     float64     `json:"crash_point,omitempty"`
}

func (r *Round) snapshot(now time.Time, curve Curve) RoundSnapshot {
	snap := RoundSnapshot{
		RoundID:        r.ID,
		Nonce:          r.Nonce,
		ServerSeedHash: r.ServerSeedHash,
		ClientSeed:     r.ClientSeed,
		Status:         r.Status,
		Multiplier:     MinMultiplier,
	}

	switch r.Status {
	case StatusBetting:
		remaining := r.BettingEndsAt.Sub(now).Seconds()
		if remaining < 0 {
			remaining = 0
		}
		snap.Countdown = remaining
	case StatusRunning:
		snap.Multiplier = curve.At(now.Sub(r.StartedAt))
		if snap.Multiplier > r.crashPoint {
			snap.Multiplier = r.crashPoint
		}
	case StatusCrashed:
		snap.Multiplier = r.crashPoint
		snap.CrashPoint = r.crashPoint
		snap.ServerSeed = r.serverSeed
	}

	return snap
}
