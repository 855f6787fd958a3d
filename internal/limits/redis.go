package limits

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dailyVolumeKeyPrefix = "rocket:limits:daily:"
	betRateKeyPrefix     = "rocket:limits:rate:"
)

// RedisChecker enforces a rolling daily wager cap and a per-minute bet
// frequency cap, both tracked in Redis.
type RedisChecker struct {
	client        *redis.Client
	dailyMax      int64
	betsPerMinute int64
}

func NewRedisChecker(client *redis.Client, dailyMax, betsPerMinute int64) *RedisChecker {
	return &RedisChecker{
		client:        client,
		dailyMax:      dailyMax,
		betsPerMinute: betsPerMinute,
	}
}

func (c *RedisChecker) CanPlaceBet(ctx context.Context, userID string, amount int64) (Decision, error) {
	var reasons []string

	rateKey := betRateKeyPrefix + userID
	count, err := c.client.Incr(ctx, rateKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("limits: rate check: %w", err)
	}
	if count == 1 {
		if err := c.client.Expire(ctx, rateKey, time.Minute).Err(); err != nil {
			log.Printf("[LIMITS] Rate window expire failed for %s: %v", userID, err)
		}
	}
	if count > c.betsPerMinute {
		reasons = append(reasons, "bet rate limit reached, slow down")
	}

	volume, err := c.client.IncrBy(ctx, c.dayKey(userID), amount).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("limits: daily volume check: %w", err)
	}
	if volume == amount {
		if err := c.client.Expire(ctx, c.dayKey(userID), 48*time.Hour).Err(); err != nil {
			log.Printf("[LIMITS] Daily window expire failed for %s: %v", userID, err)
		}
	}
	if volume > c.dailyMax {
		reasons = append(reasons, "daily limit reached")
	}

	if len(reasons) > 0 {
		// Whatever the reason, a rejected bet never wagers anything: back
		// the speculative volume out so a later bet can still fit.
		if err := c.ReleaseBet(ctx, userID, amount); err != nil {
			log.Printf("[LIMITS] Volume release failed for %s: %v", userID, err)
		}
		return Decision{Allowed: false, Reasons: reasons}, nil
	}

	return Decision{Allowed: true}, nil
}

// ReleaseBet returns reserved daily volume for a bet that was rejected or
// failed after the limit check.
func (c *RedisChecker) ReleaseBet(ctx context.Context, userID string, amount int64) error {
	if err := c.client.DecrBy(ctx, c.dayKey(userID), amount).Err(); err != nil {
		return fmt.Errorf("limits: release volume: %w", err)
	}
	return nil
}

func (c *RedisChecker) dayKey(userID string) string {
	return dailyVolumeKeyPrefix + userID + ":" + time.Now().UTC().Format("2006-01-02")
}
