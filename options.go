package requist

import (
	"strings"
	"time"
)

// Option configures a Client during New.
type Option func(*Client)

// WithCache installs a custom cache implementation, replacing the built-in
// memory cache.
func WithCache(cache Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithCacheCapacity sets the built-in memory cache capacity. Zero or negative
// means unbounded. Ignored when WithCache supplies a custom cache.
func WithCacheCapacity(capacity int) Option {
	return func(c *Client) {
		c.cacheCapacity = capacity
	}
}

// WithEvictionPolicy selects the eviction policy for the built-in memory
// cache.
func WithEvictionPolicy(policy EvictionPolicy) Option {
	return func(c *Client) {
		c.evictionPolicy = policy
	}
}

// WithDefaultTTL sets the cache window used when a call does not override it.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.defaults.TTL = ttl
	}
}

// WithIdempotentDefaults replaces the client-level idempotent defaults that
// per-call configs merge over.
func WithIdempotentDefaults(defaults IdempotentConfig) Option {
	return func(c *Client) {
		if defaults.TTL == 0 {
			defaults.TTL = c.defaults.TTL
		}
		c.defaults = defaults
	}
}

// WithKeyConfig sets the base key generation configuration.
func WithKeyConfig(config KeyConfig) Option {
	return func(c *Client) {
		c.keyConfig = config
	}
}

// WithRetry enables the retry loop around every network call.
func WithRetry(config RetryConfig) Option {
	return func(c *Client) {
		c.retry = &config
	}
}

// WithCircuitBreaker guards network calls with a circuit breaker.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.circuitBreaker = NewCircuitBreaker(config)
	}
}

// WithRateLimiter guards network calls with a token bucket: maxTokens burst,
// one token refilled per refillRate.
func WithRateLimiter(maxTokens int, refillRate time.Duration) Option {
	return func(c *Client) {
		c.rateLimiter = NewRateLimiter(maxTokens, refillRate)
	}
}

// WithMiddleware appends middleware; the first registered sees requests first.
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithLogger installs a structured logger.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger installs the bundled console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		c.logger = NewSimpleLogger()
	}
}

// WithDebug enables debug logging for all concerns.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig installs a custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithRequestIDGenerator overrides the request ID generator used in debug
// logs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector installs a custom metrics collector, useful for
// isolated registries in tests.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithClone sets the default clone policy applied to values served to
// duplicate callers.
func WithClone(mode CloneMode) Option {
	return func(c *Client) {
		c.defaults.Clone = mode
	}
}

// WithOnDuplicate installs a default callback invoked whenever a duplicate is
// blocked.
func WithOnDuplicate(fn func(DuplicateInfo)) Option {
	return func(c *Client) {
		c.defaults.OnDuplicate = fn
	}
}

// ValidateConfiguration checks the assembled client configuration and returns
// a validation RequestError describing every problem found, or nil.
func (c *Client) ValidateConfiguration() error {
	var problems []string

	if c.requestor == nil {
		problems = append(problems, "requestor must not be nil")
	}

	if err := validateIdempotentConfig(c.defaults); err != nil {
		problems = append(problems, err.Error())
	}

	if err := c.keyConfig.Validate(); err != nil {
		problems = append(problems, err.Error())
	}

	if c.retry != nil {
		if err := c.retry.withDefaults().Validate(); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) == 0 {
		return nil
	}

	return &RequestError{
		Type:    ErrorTypeValidation,
		Message: "invalid configuration: " + strings.Join(problems, "; "),
	}
}
