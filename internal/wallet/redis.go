package wallet

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const balanceKeyPrefix = "rocket:balance:"

// applyDeltaScript rejects a debit that would overdraw inside Redis itself,
// so concurrent debits against the same account cannot interleave.
var applyDeltaScript = redis.NewScript(`
local bal = tonumber(redis.call('GET', KEYS[1]) or '0')
local delta = tonumber(ARGV[1])
if bal + delta < 0 then
	return redis.error_reply('INSUFFICIENT_FUNDS')
end
return redis.call('INCRBY', KEYS[1], ARGV[1])
`)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) GetBalance(ctx context.Context, userID string) (int64, error) {
	bal, err := s.client.Get(ctx, balanceKeyPrefix+userID).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("wallet: get balance: %w", err)
	}
	return bal, nil
}

func (s *RedisStore) ApplyDelta(ctx context.Context, userID string, delta int64) (int64, error) {
	res, err := applyDeltaScript.Run(ctx, s.client, []string{balanceKeyPrefix + userID}, delta).Int64()
	if err != nil {
		if err.Error() == "INSUFFICIENT_FUNDS" {
			return 0, ErrInsufficientFunds
		}
		return 0, fmt.Errorf("wallet: apply delta: %w", err)
	}
	return res, nil
}

// SetBalance overwrites an account balance. Admin/testing use only.
func (s *RedisStore) SetBalance(ctx context.Context, userID string, balance int64) error {
	return s.client.Set(ctx, balanceKeyPrefix+userID, balance, 0).Err()
}
