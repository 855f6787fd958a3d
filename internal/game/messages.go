package game

// Wire protocol: one envelope, one payload type per event. Everything the
// server pushes goes through these; client commands are parsed in the
// websocket handler.

type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type ConnectedMessage struct {
	PlayerID string `json:"player_id"`
}

type GameStateMessage struct {
	RoundID        string      `json:"round_id"`
	State          RoundStatus `json:"state"`
	Multiplier     float64     `json:"multiplier"`
	Countdown      float64     `json:"countdown"`
	PlayersOnline  int         `json:"players_online"`
	CrashHistory   []float64   `json:"crash_history"`
	ServerSeedHash string      `json:"server_seed_hash"`
	ServerSeed     string      `json:"server_seed,omitempty"`
	CrashPoint     float64     `json:"crash_point,omitempty"`
}

type PlayerOverlayMessage struct {
	HasActiveBet        bool    `json:"has_active_bet"`
	ActiveBetAmount     int64   `json:"active_bet_amount,omitempty"`
	CashedOut           bool    `json:"cashed_out"`
	CashedOutMultiplier float64 `json:"cashed_out_multiplier,omitempty"`
	Balance             int64   `json:"balance"`
}

type BetPlacedMessage struct {
	Amount  int64 `json:"amount"`
	Balance int64 `json:"balance"`
}

type CashedOutMessage struct {
	Multiplier  float64 `json:"multiplier"`
	Winnings    int64   `json:"winnings"`
	Balance     int64   `json:"balance"`
	IsAutomatic bool    `json:"is_automatic"`
}

type RejectedMessage struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}
