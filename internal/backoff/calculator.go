package backoff

import "time"

// Calculator provides backoff calculation using a configurable strategy.
type Calculator struct {
	strategy Strategy
}

// NewCalculator creates a backoff calculator with the specified strategy.
func NewCalculator(strategy Strategy) *Calculator {
	return &Calculator{strategy: strategy}
}

// Delay computes the wait before the given retry attempt.
func (c *Calculator) Delay(attempt int, base time.Duration, factor, jitter float64) time.Duration {
	return c.strategy.Delay(attempt, base, factor, jitter)
}

// GetExponentialJitterCalculator returns a calculator configured with the
// exponential jitter strategy, the package default.
func GetExponentialJitterCalculator() *Calculator {
	return NewCalculator(ExponentialJitter{})
}
