// Package backoff centralizes retry delay calculation so the retry engine
// and any future policies share one implementation.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Strategy defines the interface for backoff calculation algorithms.
type Strategy interface {
	// Delay returns the wait before retry number attempt (0-based), given the
	// base delay, growth factor and jitter fraction.
	Delay(attempt int, base time.Duration, factor, jitter float64) time.Duration
}

// ExponentialJitter grows the delay geometrically and adds uniform jitter:
//
//	delay = base * factor^attempt
//	jittered = delay + delay * jitter * rand()   with rand() in [0,1)
//
// The result is floored at zero. Rand is injectable for deterministic tests;
// nil uses math/rand.
type ExponentialJitter struct {
	Rand func() float64
}

// Delay implements the Strategy interface.
func (s ExponentialJitter) Delay(attempt int, base time.Duration, factor, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Prevent overflow for runaway attempt counts.
	if attempt > 30 {
		attempt = 30
	}

	delay := float64(base) * Pow(factor, attempt)

	jitter = clampJitter(jitter)
	if jitter > 0 {
		random := s.Rand
		if random == nil {
			random = rand.Float64
		}
		delay += delay * jitter * random()
	}

	if delay <= 0 || math.IsNaN(delay) || math.IsInf(delay, 0) {
		return 0
	}
	return time.Duration(math.Floor(delay))
}

// clampJitter ensures jitter is within valid bounds [0, 1].
func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

// Pow calculates base^exponent using integer exponentiation.
func Pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
