package requist

import (
	"context"
	"fmt"
	"time"
)

// CacheOptions configures one RequestWithCache call.
type CacheOptions struct {
	// TTL for a freshly populated entry. 0 falls back to the feature default.
	TTL time.Duration
	// Key overrides key generation entirely when non-empty.
	Key string
	// KeyConfig is used when Key is empty.
	KeyConfig KeyConfig
	// Clone selects what a cache hit returns.
	Clone CloneMode
	// Fallback is returned (with a warning) when both the cache read and the
	// producer fail. nil disables the fallback.
	Fallback any
}

// CacheFeature offers get-or-populate caching around an arbitrary operation.
// Cache failures never fail the caller's request: a failing read degrades to
// a miss, a failing write is logged and the produced value is still returned.
type CacheFeature struct {
	cache      Cache
	keyGen     *KeyGenerator
	defaultTTL time.Duration
	logger     Logger
	metrics    *MetricsCollector
}

// NewCacheFeature wraps a cache and key generator. A nil cache gets an
// unbounded LRU MemoryCache; a nil keyGen gets a fresh generator.
func NewCacheFeature(cache Cache, keyGen *KeyGenerator, defaultTTL time.Duration) *CacheFeature {
	if cache == nil {
		cache = NewMemoryCache(0, LRUPolicy{})
	}
	if keyGen == nil {
		keyGen = NewKeyGenerator()
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &CacheFeature{
		cache:      cache,
		keyGen:     keyGen,
		defaultTTL: defaultTTL,
	}
}

// SetLogger installs a logger for degradation warnings.
func (f *CacheFeature) SetLogger(logger Logger) { f.logger = logger }

// SetMetrics installs a metrics collector.
func (f *CacheFeature) SetMetrics(metrics *MetricsCollector) { f.metrics = metrics }

// RequestWithCache resolves the key, returns a valid cached value per the
// clone policy, or invokes produce and stores its result. Producer errors are
// returned as-is and never cached.
func (f *CacheFeature) RequestWithCache(ctx context.Context, d *RequestDescriptor, opts CacheOptions, produce func(context.Context) (any, error)) (any, error) {
	if !opts.Clone.supported() {
		return nil, newValidationError(CodeInvalidCloneMode, "clone mode must be none, shallow or deep")
	}

	key := opts.Key
	if key == "" {
		generated, err := f.keyGen.GenerateKey(d, opts.KeyConfig)
		if err != nil {
			return nil, err
		}
		key = generated
	}

	item, hit, readErr := f.safeGet(key)
	if readErr != nil && f.logger != nil {
		f.logger.Warn("cache read failed, treating as miss", "key", key, "error", readErr)
	}
	if hit {
		f.metrics.RecordCacheHit(d.Method, endpointFromDescriptor(d))
		return cloneValue(item.Data, opts.Clone), nil
	}
	f.metrics.RecordCacheMiss(d.Method, endpointFromDescriptor(d))

	value, err := produce(ctx)
	if err != nil {
		if readErr != nil && opts.Fallback != nil {
			if f.logger != nil {
				f.logger.Warn("producer failed after cache error, serving fallback", "key", key, "error", err)
			}
			return opts.Fallback, nil
		}
		return nil, err
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = f.defaultTTL
	}
	if writeErr := f.safeSet(key, value, ttl); writeErr != nil && f.logger != nil {
		f.logger.Warn("cache write failed, result not cached", "key", key, "error", writeErr)
	}

	return value, nil
}

// Invalidate removes one entry, or all entries when no key is given. It never
// panics even if the underlying cache misbehaves.
func (f *CacheFeature) Invalidate(keys ...string) {
	defer func() {
		if r := recover(); r != nil && f.logger != nil {
			f.logger.Warn("cache invalidation failed", "panic", r)
		}
	}()

	if len(keys) == 0 {
		f.cache.Clear()
		return
	}
	for _, key := range keys {
		f.cache.Remove(key)
	}
}

// safeGet shields callers from panicking Cache implementations.
func (f *CacheFeature) safeGet(key string) (item *CacheItem, hit bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			item, hit = nil, false
			err = &RequestError{Type: ErrorTypeUnknown, Message: "cache get panicked", Cause: recoveredError(r)}
		}
	}()
	item, hit = f.cache.Get(key)
	return item, hit, nil
}

func (f *CacheFeature) safeSet(key string, data any, ttl time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &RequestError{Type: ErrorTypeUnknown, Message: "cache set panicked", Cause: recoveredError(r)}
		}
	}()
	f.cache.Set(key, data, ttl)
	return nil
}

func recoveredError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}
