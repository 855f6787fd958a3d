package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore writes the round/bet trail through a pgx pool. One writer
// (the engine) appends; the verification endpoint reads.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) AppendRound(ctx context.Context, round RoundRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rounds (id, nonce, server_seed_hash, client_seed, started_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		round.ID, round.Nonce, round.ServerSeedHash, round.ClientSeed, round.StartedAt)
	if err != nil {
		return fmt.Errorf("ledger: append round: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevealRound(ctx context.Context, roundID, serverSeed string, crashPoint float64, crashedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE rounds
		 SET server_seed = $2, crash_point = $3, crashed_at = $4
		 WHERE id = $1 AND server_seed IS NULL`,
		roundID, serverSeed, crashPoint, crashedAt)
	if err != nil {
		return fmt.Errorf("ledger: reveal round: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ledger: reveal round %s: %w", roundID, ErrRoundNotFound)
	}
	return nil
}

func (s *PostgresStore) GetRound(ctx context.Context, roundID string) (RoundRecord, error) {
	var (
		rec        RoundRecord
		serverSeed *string
		crashPoint *float64
		crashedAt  *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, nonce, server_seed_hash, client_seed, server_seed, crash_point, started_at, crashed_at
		 FROM rounds WHERE id = $1`,
		roundID).Scan(&rec.ID, &rec.Nonce, &rec.ServerSeedHash, &rec.ClientSeed,
		&serverSeed, &crashPoint, &rec.StartedAt, &crashedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return RoundRecord{}, ErrRoundNotFound
	}
	if err != nil {
		return RoundRecord{}, fmt.Errorf("ledger: get round: %w", err)
	}
	if serverSeed != nil {
		rec.ServerSeed = *serverSeed
		rec.Revealed = true
	}
	if crashPoint != nil {
		rec.CrashPoint = *crashPoint
	}
	if crashedAt != nil {
		rec.CrashedAt = *crashedAt
	}
	return rec, nil
}

func (s *PostgresStore) RecentRounds(ctx context.Context, limit int) ([]RoundRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, nonce, server_seed_hash, client_seed, server_seed, crash_point, started_at, crashed_at
		 FROM rounds WHERE server_seed IS NOT NULL
		 ORDER BY nonce DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: recent rounds: %w", err)
	}
	defer rows.Close()

	var records []RoundRecord
	for rows.Next() {
		var (
			rec        RoundRecord
			serverSeed *string
			crashPoint *float64
			crashedAt  *time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.Nonce, &rec.ServerSeedHash, &rec.ClientSeed,
			&serverSeed, &crashPoint, &rec.StartedAt, &crashedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan round: %w", err)
		}
		if serverSeed != nil {
			rec.ServerSeed = *serverSeed
			rec.Revealed = true
		}
		if crashPoint != nil {
			rec.CrashPoint = *crashPoint
		}
		if crashedAt != nil {
			rec.CrashedAt = *crashedAt
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) MaxNonce(ctx context.Context) (int64, error) {
	var max int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(nonce), 0) FROM rounds`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("ledger: max nonce: %w", err)
	}
	return max, nil
}

func (s *PostgresStore) AppendBet(ctx context.Context, bet BetRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bets (id, round_id, user_id, amount, auto_cashout, status, placed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		bet.ID, bet.RoundID, bet.UserID, bet.Amount, bet.AutoCashout, bet.Status, bet.PlacedAt)
	if err != nil {
		return fmt.Errorf("ledger: append bet: %w", err)
	}
	return nil
}

func (s *PostgresStore) SettleBet(ctx context.Context, betID, status string, cashedOutAt float64, payout int64) error {
	// The ACTIVE guard makes settlement idempotent at the storage layer
	// too: a second settle for the same bet touches no rows.
	_, err := s.pool.Exec(ctx,
		`UPDATE bets
		 SET status = $2, cashed_out_at = NULLIF($3, 0.0), payout = $4
		 WHERE id = $1 AND status = 'ACTIVE'`,
		betID, status, cashedOutAt, payout)
	if err != nil {
		return fmt.Errorf("ledger: settle bet: %w", err)
	}
	return nil
}
