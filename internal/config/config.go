package config

import (
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

// Engine holds the round engine tunables. Growth rate and house edge are
// product parameters: changing them mid-deployment invalidates published
// fairness data, so they are read once at startup.
type Engine struct {
	BettingWindow time.Duration
	TickInterval  time.Duration
	Cooldown      time.Duration
	GrowthRate    float64
	HouseEdge     float64
	MaxMultiplier float64
	MinBet        int64
	MaxBet        int64
	HistorySize   int
	StoreTimeout  time.Duration
}

func EngineFromEnv() Engine {
	return Engine{
		BettingWindow: getEnvAsDuration("GAME_BETTING_WINDOW", 7*time.Second),
		TickInterval:  getEnvAsDuration("GAME_TICK_INTERVAL", 100*time.Millisecond),
		Cooldown:      getEnvAsDuration("GAME_COOLDOWN", 3*time.Second),
		GrowthRate:    getEnvAsFloat("GAME_GROWTH_RATE", 0.1),
		HouseEdge:     getEnvAsFloat("GAME_HOUSE_EDGE", 0.01),
		MaxMultiplier: getEnvAsFloat("GAME_MAX_MULTIPLIER", 1000.0),
		MinBet:        getEnvAsInt64("GAME_MIN_BET", 1),
		MaxBet:        getEnvAsInt64("GAME_MAX_BET", 1000000),
		HistorySize:   getEnvAsInt("GAME_HISTORY_SIZE", 20),
		StoreTimeout:  getEnvAsDuration("GAME_STORE_TIMEOUT", 500*time.Millisecond),
	}
}

// Limits holds the responsible-play caps enforced at bet placement.
type Limits struct {
	DailyMax      int64
	BetsPerMinute int64
}

func LimitsFromEnv() Limits {
	return Limits{
		DailyMax:      getEnvAsInt64("LIMITS_DAILY_MAX", 10000000),
		BetsPerMinute: getEnvAsInt64("LIMITS_BETS_PER_MINUTE", 30),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
