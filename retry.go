package requist

import (
	"context"
	"errors"
	"time"

	internalbackoff "github.com/warmeaf/requist/internal/backoff"
)

// RetryConfig controls the bounded retry loop.
type RetryConfig struct {
	// Retries is the number of retries after the first attempt, so total
	// attempts on exhaustion are Retries+1.
	Retries int
	// Delay is the base delay before the first retry.
	Delay time.Duration
	// BackoffFactor grows the delay per retry. 0 means the default of 1
	// (fixed delay).
	BackoffFactor float64
	// Jitter in [0,1] adds up to Jitter*delay of random extra wait.
	Jitter float64
	// ShouldRetry decides eligibility per error and 0-based retry index.
	// nil uses DefaultShouldRetry. A predicate that panics counts as
	// "do not retry" and the attempt's error propagates unchanged.
	ShouldRetry func(err error, attempt int) bool
}

// withDefaults fills zero values that have non-zero defaults.
func (c RetryConfig) withDefaults() RetryConfig {
	if c.BackoffFactor == 0 {
		c.BackoffFactor = 1
	}
	return c
}

// Validate fails fast, before any I/O, on out-of-range settings.
func (c RetryConfig) Validate() error {
	if c.Retries < 0 {
		return newValidationError(CodeInvalidRetryConfig, "retries must be non-negative")
	}
	if c.Delay < 0 {
		return newValidationError(CodeInvalidRetryConfig, "delay must be non-negative")
	}
	if c.BackoffFactor <= 0 {
		return newValidationError(CodeInvalidRetryConfig, "backoff factor must be positive")
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return newValidationError(CodeInvalidRetryConfig, "jitter must be between 0 and 1")
	}
	return nil
}

// DefaultShouldRetry retries errors that carry no HTTP response (network
// level) and HTTP 5xx; it never retries 4xx or validation failures.
func DefaultShouldRetry(err error, _ int) bool {
	if err == nil {
		return false
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		if reqErr.Type == ErrorTypeValidation {
			return false
		}
		if reqErr.Status >= 400 && reqErr.Status < 500 {
			return false
		}
		if reqErr.Status >= 500 && reqErr.Status <= 599 {
			return true
		}
		return reqErr.Status == 0
	}

	// Plain errors have no HTTP response attached.
	return true
}

// Retryer wraps arbitrary operations with the configured retry loop. Safe for
// concurrent use; per-call behavior comes entirely from the RetryConfig.
type Retryer struct {
	calculator *internalbackoff.Calculator
	sleep      func(ctx context.Context, d time.Duration) error
	logger     Logger
	metrics    *MetricsCollector
}

// NewRetryer returns a Retryer using exponential backoff with jitter.
func NewRetryer() *Retryer {
	return &Retryer{
		calculator: internalbackoff.GetExponentialJitterCalculator(),
		sleep:      sleepContext,
	}
}

// SetLogger installs a logger for retry scheduling logs.
func (r *Retryer) SetLogger(logger Logger) { r.logger = logger }

// SetMetrics installs a metrics collector.
func (r *Retryer) SetMetrics(metrics *MetricsCollector) { r.metrics = metrics }

// Execute runs op until it succeeds, the predicate declines, retries are
// exhausted, or ctx is done. The error surfaced on exhaustion is the most
// recent attempt's error.
func (r *Retryer) Execute(ctx context.Context, cfg RetryConfig, op func(context.Context) (any, error)) (any, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	predicate := cfg.ShouldRetry
	if predicate == nil {
		predicate = DefaultShouldRetry
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if attempt >= cfg.Retries {
			break
		}
		if !evalPredicate(predicate, err, attempt) {
			break
		}

		delay := r.calculator.Delay(attempt, cfg.Delay, cfg.BackoffFactor, cfg.Jitter)

		if r.logger != nil {
			r.logger.Info("scheduling retry", "attempt", attempt+1, "maxRetries", cfg.Retries, "backoff", delay)
		}
		r.metrics.RecordRetry(attempt + 1)

		if err := r.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

// evalPredicate treats a panicking predicate as "do not retry" so the
// original attempt error, not the predicate's failure, propagates.
func evalPredicate(predicate func(error, int) bool, err error, attempt int) (retry bool) {
	defer func() {
		if recover() != nil {
			retry = false
		}
	}()
	return predicate(err, attempt)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
