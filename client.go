package requist

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DuplicateKind tells an OnDuplicate callback how a duplicate was served.
type DuplicateKind string

const (
	// DuplicateCacheHit means a valid cached response short-circuited the call.
	DuplicateCacheHit DuplicateKind = "cache_hit"
	// DuplicatePendingReuse means the call attached to an in-flight request.
	DuplicatePendingReuse DuplicateKind = "pending_reuse"
)

// DuplicateInfo describes one blocked duplicate.
type DuplicateInfo struct {
	Key    string
	Kind   DuplicateKind
	Method string
	URL    string
}

// IdempotentConfig carries per-call overrides for the coalescing layer. Zero
// fields inherit the client defaults.
type IdempotentConfig struct {
	// TTL is the cache window for this request's response. Must be a
	// positive whole number of milliseconds once resolved.
	TTL time.Duration
	// Key overrides key generation entirely when non-empty.
	Key string
	// IncludeHeaders / IncludeAllHeaders select headers for key generation.
	IncludeHeaders    []string
	IncludeAllHeaders bool
	// HashAlgorithm overrides the key hash for this call.
	HashAlgorithm HashAlgorithm
	// Clone selects what duplicate callers receive.
	Clone CloneMode
	// OnDuplicate is invoked for every blocked duplicate. Panics inside the
	// callback are recovered and logged, never propagated.
	OnDuplicate func(DuplicateInfo)
}

// pendingRequest is one in-flight network call shared between callers.
// Created by the first caller for a key, removed unconditionally once the
// call settles, regardless of how many waiters attached.
type pendingRequest struct {
	done    chan struct{}
	value   any
	err     error
	waiters int
}

// Client layers caching, retries, rate limiting, circuit breaking and
// idempotent request coalescing around a pluggable Requestor. It guarantees
// at most one in-flight network call per idempotent key per TTL window. Safe
// for concurrent use; independent Client instances are fully isolated.
type Client struct {
	requestor  Requestor
	middleware []Middleware

	keyGen    *KeyGenerator
	keyConfig KeyConfig

	cache          Cache
	cacheCapacity  int
	evictionPolicy EvictionPolicy

	retryer *Retryer
	retry   *RetryConfig

	circuitBreaker *CircuitBreaker
	rateLimiter    *RateLimiter

	defaults IdempotentConfig

	mu      sync.Mutex
	pending map[string]*pendingRequest

	stats     *statsTracker
	destroyed atomic.Bool

	logger  Logger
	debug   *DebugConfig
	metrics *MetricsCollector

	validationError error
}

// New constructs a Client around the given Requestor using the provided
// functional options. A best effort validation is performed; call IsValid /
// ValidationError for errors.
func New(requestor Requestor, options ...Option) *Client {
	client := &Client{
		requestor:      requestor,
		keyGen:         NewKeyGenerator(),
		keyConfig:      KeyConfig{HashAlgorithm: DefaultHashAlgorithm},
		cacheCapacity:  1000,
		evictionPolicy: LRUPolicy{},
		retryer:        NewRetryer(),
		defaults: IdempotentConfig{
			TTL:   5 * time.Minute,
			Clone: CloneNone,
		},
		pending: make(map[string]*pendingRequest),
		stats:   newStatsTracker(),
		debug:   DefaultDebugConfig(),
	}

	for _, option := range options {
		option(client)
	}

	if client.cache == nil {
		client.cache = NewMemoryCache(client.cacheCapacity, client.evictionPolicy)
	}
	client.retryer.SetLogger(client.logger)
	client.retryer.SetMetrics(client.metrics)

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Get performs an idempotent GET.
func (c *Client) Get(ctx context.Context, url string, cfg *IdempotentConfig) (any, error) {
	return c.RequestIdempotent(ctx, &RequestDescriptor{Method: http.MethodGet, URL: url}, cfg)
}

// Post performs an idempotent POST with the given body.
func (c *Client) Post(ctx context.Context, url string, body any, cfg *IdempotentConfig) (any, error) {
	return c.RequestIdempotent(ctx, &RequestDescriptor{Method: http.MethodPost, URL: url, Body: body}, cfg)
}

// Put performs an idempotent PUT with the given body.
func (c *Client) Put(ctx context.Context, url string, body any, cfg *IdempotentConfig) (any, error) {
	return c.RequestIdempotent(ctx, &RequestDescriptor{Method: http.MethodPut, URL: url, Body: body}, cfg)
}

// Patch performs an idempotent PATCH with the given body.
func (c *Client) Patch(ctx context.Context, url string, body any, cfg *IdempotentConfig) (any, error) {
	return c.RequestIdempotent(ctx, &RequestDescriptor{Method: http.MethodPatch, URL: url, Body: body}, cfg)
}

// Delete performs an idempotent DELETE.
func (c *Client) Delete(ctx context.Context, url string, cfg *IdempotentConfig) (any, error) {
	return c.RequestIdempotent(ctx, &RequestDescriptor{Method: http.MethodDelete, URL: url}, cfg)
}

// RequestIdempotent executes one logical request: duplicates within the TTL
// window are served from cache or merged into the in-flight call, so at most
// one network call runs per key at any instant.
func (c *Client) RequestIdempotent(ctx context.Context, d *RequestDescriptor, cfg *IdempotentConfig) (any, error) {
	if c.destroyed.Load() {
		return nil, ErrClientDestroyed
	}
	if d == nil {
		return nil, &RequestError{Type: ErrorTypeValidation, Message: "request descriptor must not be nil"}
	}

	start := time.Now()
	conf := c.mergeConfig(cfg)
	if err := validateIdempotentConfig(conf); err != nil {
		return nil, err
	}

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}

	method := strings.ToUpper(d.Method)
	endpoint := endpointFromDescriptor(d)

	key := conf.Key
	if key == "" {
		keyStart := time.Now()
		generated, err := c.keyGen.GenerateKey(d, c.keyConfigFor(conf))
		keyDuration := time.Since(keyStart)
		c.stats.recordKeyGeneration(keyDuration)
		c.metrics.RecordKeyGeneration(keyDuration)
		if err != nil {
			return nil, err
		}
		key = generated
	}

	c.metrics.RecordRequestStart(method, endpoint)
	defer c.metrics.RecordRequestEnd(method, endpoint)

	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("starting idempotent request", "requestID", requestID, "method", method, "url", d.URL, "key", key)
	}

	// Cache lookup, pending lookup and pending registration must happen as
	// one critical section with nothing blocking inside; this is what makes
	// "at most one network call per key" hold under concurrency.
	c.mu.Lock()

	if item, ok := c.safeCacheGet(key); ok {
		data := item.Data
		c.mu.Unlock()

		c.stats.recordCacheHit()
		c.metrics.RecordCacheHit(method, endpoint)
		c.finishRequest(start, method, endpoint, statusOf(data, nil))

		if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
			c.logger.Debug("idempotent cache hit", "requestID", requestID, "key", key)
		}

		c.invokeDuplicateCallback(conf.OnDuplicate, DuplicateInfo{Key: key, Kind: DuplicateCacheHit, Method: method, URL: d.URL})
		return cloneValue(data, conf.Clone), nil
	}
	c.metrics.RecordCacheMiss(method, endpoint)

	if entry, ok := c.pending[key]; ok {
		entry.waiters++
		c.mu.Unlock()

		c.stats.recordPendingReuse()
		c.metrics.RecordCoalescedRequest(method, endpoint)

		if c.debug != nil && c.debug.Enabled && c.debug.LogCoalescing && c.logger != nil {
			c.logger.Debug("joining in-flight request", "requestID", requestID, "key", key)
		}

		c.invokeDuplicateCallback(conf.OnDuplicate, DuplicateInfo{Key: key, Kind: DuplicatePendingReuse, Method: method, URL: d.URL})

		select {
		case <-entry.done:
			c.finishRequest(start, method, endpoint, statusOf(entry.value, entry.err))
			if entry.err != nil {
				return nil, entry.err
			}
			return cloneValue(entry.value, conf.Clone), nil
		case <-ctx.Done():
			// Abandons only this waiter; the shared call keeps running for
			// everyone else.
			c.finishRequest(start, method, endpoint, 0)
			return nil, ctx.Err()
		}
	}

	entry := &pendingRequest{done: make(chan struct{}), waiters: 1}
	c.pending[key] = entry
	c.mu.Unlock()

	value, err := c.callRequestor(ctx, d)

	if err == nil {
		c.stats.recordNetworkRequest()
		c.safeCacheSet(key, value, conf.TTL)
		c.metrics.RecordCacheSize("default", c.cacheLen())
	}

	entry.value, entry.err = value, err
	close(entry.done)

	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()

	c.finishRequest(start, method, endpoint, statusOf(value, err))

	if err != nil {
		return nil, err
	}
	return value, nil
}

// ClearIdempotentCache removes the given keys, or every entry when no key is
// given. It never panics, even if the underlying cache misbehaves.
func (c *Client) ClearIdempotentCache(keys ...string) {
	defer func() {
		if r := recover(); r != nil && c.logger != nil {
			c.logger.Warn("cache clear failed", "panic", r)
		}
	}()

	if len(keys) == 0 {
		c.cache.Clear()
		return
	}
	for _, key := range keys {
		c.cache.Remove(key)
	}
}

// ResetStats zeroes all counters and running means.
func (c *Client) ResetStats() {
	c.stats.reset()
}

// Stats returns a snapshot of the coalescing counters, including the derived
// duplicate rate.
func (c *Client) Stats() IdempotentStats {
	return c.stats.snapshot()
}

// Destroy abandons all internal state. In-flight owners still settle their
// own entries; callers arriving afterwards get ErrClientDestroyed. Never
// panics.
func (c *Client) Destroy() {
	defer func() {
		if r := recover(); r != nil && c.logger != nil {
			c.logger.Warn("destroy failed to release state", "panic", r)
		}
	}()

	if c.destroyed.Swap(true) {
		return
	}

	c.mu.Lock()
	c.pending = make(map[string]*pendingRequest)
	c.mu.Unlock()

	c.cache.Clear()
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// callRequestor runs the single network call, wrapped with the retry loop
// when one is configured.
func (c *Client) callRequestor(ctx context.Context, d *RequestDescriptor) (any, error) {
	op := func(ctx context.Context) (any, error) {
		return c.executeOnce(ctx, d)
	}
	if c.retry != nil {
		return c.retryer.Execute(ctx, *c.retry, op)
	}
	return op(ctx)
}

// executeOnce guards one transport attempt with the rate limiter and circuit
// breaker, then runs the middleware chain.
func (c *Client) executeOnce(ctx context.Context, d *RequestDescriptor) (any, error) {
	method := strings.ToUpper(d.Method)
	endpoint := endpointFromDescriptor(d)

	if c.rateLimiter != nil {
		if !c.rateLimiter.Allow() {
			c.metrics.RecordError("RateLimit", method, endpoint)
			return nil, &RequestError{
				Type:    ErrorTypeUnknown,
				Message: "rate limit exceeded",
				Cause:   ErrRateLimited,
				Context: errorContext(d),
			}
		}
		c.metrics.RecordRateLimiterTokens("default", c.rateLimiter.Tokens())
	}

	if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
		c.metrics.RecordError("CircuitBreaker", method, endpoint)
		return nil, &RequestError{
			Type:    ErrorTypeUnknown,
			Message: "circuit breaker is open",
			Cause:   ErrCircuitOpen,
			Context: errorContext(d),
		}
	}

	value, err := c.executeMiddleware(ctx, d)

	if c.circuitBreaker != nil {
		if isBreakerFailure(err) {
			c.circuitBreaker.RecordFailure()
		} else if err == nil {
			c.circuitBreaker.RecordSuccess()
		}
		c.metrics.RecordCircuitBreakerState("default", c.circuitBreaker.State())
	}

	if err != nil {
		c.metrics.RecordError(errorTypeOf(err), method, endpoint)
	}

	return value, err
}

// executeMiddleware wraps the requestor with the registered middleware so the
// first registered one sees the request first.
func (c *Client) executeMiddleware(ctx context.Context, d *RequestDescriptor) (any, error) {
	if len(c.middleware) == 0 {
		return c.requestor.Request(ctx, d)
	}

	current := c.requestor
	for i := len(c.middleware) - 1; i >= 0; i-- {
		mw := c.middleware[i]
		next := current
		current = RequestorFunc(func(ctx context.Context, d *RequestDescriptor) (any, error) {
			return mw(ctx, d, next)
		})
	}

	return current.Request(ctx, d)
}

func (c *Client) mergeConfig(cfg *IdempotentConfig) IdempotentConfig {
	conf := c.defaults
	if cfg == nil {
		return conf
	}
	if cfg.TTL != 0 {
		conf.TTL = cfg.TTL
	}
	if cfg.Key != "" {
		conf.Key = cfg.Key
	}
	if cfg.IncludeHeaders != nil {
		conf.IncludeHeaders = cfg.IncludeHeaders
	}
	if cfg.IncludeAllHeaders {
		conf.IncludeAllHeaders = true
	}
	if cfg.HashAlgorithm != "" {
		conf.HashAlgorithm = cfg.HashAlgorithm
	}
	if cfg.Clone != "" {
		conf.Clone = cfg.Clone
	}
	if cfg.OnDuplicate != nil {
		conf.OnDuplicate = cfg.OnDuplicate
	}
	return conf
}

func (c *Client) keyConfigFor(conf IdempotentConfig) KeyConfig {
	keyConfig := c.keyConfig
	if conf.IncludeHeaders != nil {
		keyConfig.IncludeHeaders = conf.IncludeHeaders
	}
	if conf.IncludeAllHeaders {
		keyConfig.IncludeAllHeaders = true
	}
	if conf.HashAlgorithm != "" {
		keyConfig.HashAlgorithm = conf.HashAlgorithm
	}
	return keyConfig
}

// validateIdempotentConfig fails fast with a stable code before any I/O.
func validateIdempotentConfig(conf IdempotentConfig) error {
	if conf.TTL <= 0 {
		return newValidationError(CodeInvalidTTL, "ttl must be positive")
	}
	if conf.TTL%time.Millisecond != 0 {
		return newValidationError(CodeInvalidTTL, "ttl must be a whole number of milliseconds")
	}
	for _, name := range conf.IncludeHeaders {
		if strings.TrimSpace(name) == "" {
			return newValidationError(CodeInvalidHeaders, "header names must be non-empty")
		}
	}
	if conf.HashAlgorithm != "" && !conf.HashAlgorithm.supported() {
		return newValidationError(CodeInvalidHashAlgorithm,
			"unsupported hash algorithm "+string(conf.HashAlgorithm))
	}
	if !conf.Clone.supported() {
		return newValidationError(CodeInvalidCloneMode, "clone mode must be none, shallow or deep")
	}
	return nil
}

// invokeDuplicateCallback shields the client from user callbacks.
func (c *Client) invokeDuplicateCallback(cb func(DuplicateInfo), info DuplicateInfo) {
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && c.logger != nil {
			c.logger.Warn("onDuplicate callback panicked", "key", info.Key, "panic", r)
		}
	}()
	cb(info)
}

// safeCacheGet treats a panicking cache as a miss so internal cache failures
// never fail the caller's request.
func (c *Client) safeCacheGet(key string) (item *CacheItem, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			item, ok = nil, false
			if c.logger != nil {
				c.logger.Warn("cache read failed, treating as miss", "key", key, "panic", r)
			}
		}
	}()

	item, ok = c.cache.Get(key)
	return item, ok
}

func (c *Client) safeCacheSet(key string, data any, ttl time.Duration) {
	defer func() {
		if r := recover(); r != nil && c.logger != nil {
			c.logger.Warn("cache write failed, response not cached", "key", key, "panic", r)
		}
	}()

	c.cache.Set(key, data, ttl)
}

func (c *Client) cacheLen() (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	return c.cache.Len()
}

func (c *Client) finishRequest(start time.Time, method, endpoint string, status int) {
	duration := time.Since(start)
	c.stats.recordRequest(duration)
	c.metrics.RecordRequest(method, endpoint, status, duration)
}

// isBreakerFailure reports whether an error should trip the circuit breaker.
// Client errors (4xx) indicate a caller problem, not service health.
func isBreakerFailure(err error) bool {
	if err == nil {
		return false
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.Status >= 400 && reqErr.Status < 500 {
		return false
	}
	return true
}

func errorTypeOf(err error) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return string(reqErr.Type)
	}
	return string(ErrorTypeUnknown)
}

func statusOf(value any, err error) int {
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			return reqErr.Status
		}
		return 0
	}
	if resp, ok := value.(*Response); ok {
		return resp.StatusCode
	}
	return 0
}
