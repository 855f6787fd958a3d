package game

import (
	"math"
	"time"
)

// Curve is the multiplier-vs-time function M(t) = e^(k·t), floored to two
// decimals. Broadcast, manual cash-out, auto-cashout and the crash check
// all read the same curve, so no observer can see a multiplier the others
// disagree with.
type Curve struct {
	Growth float64
	Max    float64
}

// At returns the multiplier after the given elapsed running time.
func (c Curve) At(elapsed time.Duration) float64 {
	if elapsed < 0 {
		return MinMultiplier
	}
	m := quantize(math.Exp(c.Growth * elapsed.Seconds()))
	if m > c.Max {
		return c.Max
	}
	return m
}

// TimeToReach inverts the curve: the elapsed time at which the multiplier
// first reaches target. A target at or below 1.00 is reached immediately,
// which is how a minimum crash point ends a round the instant it starts.
func (c Curve) TimeToReach(target float64) time.Duration {
	if target <= MinMultiplier {
		return 0
	}
	seconds := math.Log(target) / c.Growth
	return time.Duration(seconds * float64(time.Second))
}

// quantize floors to two decimal places, the display and settlement
// resolution of the whole engine.
func quantize(m float64) float64 {
	return math.Floor(m*100) / 100
}
