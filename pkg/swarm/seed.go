package swarm

import (
	"context"
	"crypto/sha256"
	"math/big"
	"time"
)

// Simulated calls derive all randomness from the SHA-256 of the provider id,
// so every run of a campaign against the same providers behaves identically.

func seedOf(providerID string) *big.Int {
	sum := sha256.Sum256([]byte(providerID))
	return new(big.Int).SetBytes(sum[:])
}

// seedMod reduces the seed modulo mod after shifting right by shift bits,
// giving independent draws from one seed.
func seedMod(seed *big.Int, shift uint, mod int64) int64 {
	v := new(big.Int).Rsh(seed, shift)
	return v.Mod(v, big.NewInt(mod)).Int64()
}

// seedDuration picks a duration in [min, max] from the seed.
func seedDuration(seed *big.Int, shift uint, min, max time.Duration) time.Duration {
	span := int64(max-min)/int64(time.Second) + 1
	return min + time.Duration(seedMod(seed, shift, span))*time.Second
}

// sleepScaled sleeps d multiplied by scale, returning early when ctx ends.
// Tests shrink scale so simulated campaigns finish in milliseconds.
func sleepScaled(ctx context.Context, d time.Duration, scale float64) error {
	if scale <= 0 {
		scale = 1
	}
	scaled := time.Duration(float64(d) * scale)
	if scaled <= 0 {
		return nil
	}
	timer := time.NewTimer(scaled)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
