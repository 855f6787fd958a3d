package game

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

const (
	MinMultiplier    = 1.00
	DefaultHouseEdge = 0.01
)

// ComputeCrashPoint derives the crash multiplier for one round from the
// fairness inputs. HMAC-SHA256 keyed by the server seed over
// "clientSeed:nonce"; the first 8 hex characters become a uint32 mapped to
// [0,1], the house edge scales it down, and the reciprocal gives the
// geometric-style multiplier. Anyone holding the revealed seed can redo
// this and compare.
func ComputeCrashPoint(serverSeed, clientSeed string, nonce int64, houseEdge, maxMultiplier float64) (float64, error) {
	h := hmac.New(sha256.New, []byte(serverSeed))
	if _, err := fmt.Fprintf(h, "%s:%d", clientSeed, nonce); err != nil {
		return 0, fmt.Errorf("crash point hash: %w", err)
	}
	digest := hex.EncodeToString(h.Sum(nil))

	v, err := strconv.ParseUint(digest[:8], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("crash point hash prefix: %w", err)
	}

	p := float64(v) / float64(0xFFFFFFFF)
	p *= 1 - houseEdge
	if p == 0 {
		return MinMultiplier, nil
	}

	crash := quantize(1 / p)
	if crash < MinMultiplier {
		crash = MinMultiplier
	}
	if crash > maxMultiplier {
		crash = maxMultiplier
	}
	return crash, nil
}

// VerifyCrashPoint recomputes a claimed crash point from revealed inputs.
func VerifyCrashPoint(serverSeed, clientSeed string, nonce int64, houseEdge, maxMultiplier, claimed float64) bool {
	crash, err := ComputeCrashPoint(serverSeed, clientSeed, nonce, houseEdge, maxMultiplier)
	if err != nil {
		return false
	}
	return crash == claimed
}

// GenerateSeed returns 32 bytes of CSPRNG entropy, hex encoded.
func GenerateSeed() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("seed generation: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashCommitment is the SHA256 commitment published before betting opens.
func HashCommitment(seed string) string {
	h := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(h[:])
}
