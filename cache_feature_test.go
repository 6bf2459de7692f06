package requist

import (
	"context"
	"errors"
	"testing"
	"time"
)

// panickyCache fails loudly on the configured operations.
type panickyCache struct {
	Cache
	panicOnGet    bool
	panicOnSet    bool
	panicOnRemove bool
}

func (c *panickyCache) Get(key string) (*CacheItem, bool) {
	if c.panicOnGet {
		panic("cache backend down")
	}
	return c.Cache.Get(key)
}

func (c *panickyCache) Set(key string, data any, ttl time.Duration) {
	if c.panicOnSet {
		panic("cache backend down")
	}
	c.Cache.Set(key, data, ttl)
}

func (c *panickyCache) Remove(key string) {
	if c.panicOnRemove {
		panic("cache backend down")
	}
	c.Cache.Remove(key)
}

func TestCacheFeatureGetOrPopulate(t *testing.T) {
	f := NewCacheFeature(nil, nil, time.Minute)
	d := &RequestDescriptor{Method: "GET", URL: "https://api.example.com/a"}

	produced := 0
	produce := func(context.Context) (any, error) {
		produced++
		return "value", nil
	}

	ctx := context.Background()
	first, err := f.RequestWithCache(ctx, d, CacheOptions{}, produce)
	if err != nil {
		t.Fatalf("RequestWithCache() error = %v", err)
	}
	second, err := f.RequestWithCache(ctx, d, CacheOptions{}, produce)
	if err != nil {
		t.Fatalf("RequestWithCache() error = %v", err)
	}

	if produced != 1 {
		t.Errorf("producer ran %d times, want 1", produced)
	}
	if first != "value" || second != "value" {
		t.Errorf("values = %v, %v", first, second)
	}
}

func TestCacheFeatureProducerErrorsNotCached(t *testing.T) {
	f := NewCacheFeature(nil, nil, time.Minute)
	d := &RequestDescriptor{Method: "GET", URL: "https://api.example.com/err"}

	boom := errors.New("boom")
	produced := 0
	produce := func(context.Context) (any, error) {
		produced++
		return nil, boom
	}

	ctx := context.Background()
	if _, err := f.RequestWithCache(ctx, d, CacheOptions{}, produce); !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}
	if _, err := f.RequestWithCache(ctx, d, CacheOptions{}, produce); !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}
	if produced != 2 {
		t.Errorf("producer ran %d times, want 2 (errors never cached)", produced)
	}
}

func TestCacheFeatureReadFailureDegradesToMiss(t *testing.T) {
	backend := &panickyCache{Cache: NewMemoryCache(10, nil), panicOnGet: true}
	f := NewCacheFeature(backend, nil, time.Minute)
	d := &RequestDescriptor{Method: "GET", URL: "https://api.example.com/b"}

	value, err := f.RequestWithCache(context.Background(), d, CacheOptions{}, func(context.Context) (any, error) {
		return "produced", nil
	})
	if err != nil {
		t.Fatalf("cache failure must not fail the request: %v", err)
	}
	if value != "produced" {
		t.Errorf("value = %v, want produced", value)
	}
}

func TestCacheFeatureWriteFailureStillReturnsValue(t *testing.T) {
	backend := &panickyCache{Cache: NewMemoryCache(10, nil), panicOnSet: true}
	f := NewCacheFeature(backend, nil, time.Minute)
	d := &RequestDescriptor{Method: "GET", URL: "https://api.example.com/c"}

	value, err := f.RequestWithCache(context.Background(), d, CacheOptions{}, func(context.Context) (any, error) {
		return "produced", nil
	})
	if err != nil {
		t.Fatalf("cache write failure must not fail the request: %v", err)
	}
	if value != "produced" {
		t.Errorf("value = %v, want produced", value)
	}
}

func TestCacheFeatureFallbackAfterDoubleFailure(t *testing.T) {
	backend := &panickyCache{Cache: NewMemoryCache(10, nil), panicOnGet: true}
	f := NewCacheFeature(backend, nil, time.Minute)
	d := &RequestDescriptor{Method: "GET", URL: "https://api.example.com/f"}

	value, err := f.RequestWithCache(context.Background(), d, CacheOptions{Fallback: "stale"}, func(context.Context) (any, error) {
		return nil, errors.New("origin down")
	})
	if err != nil {
		t.Fatalf("fallback path should not error: %v", err)
	}
	if value != "stale" {
		t.Errorf("value = %v, want stale fallback", value)
	}
}

func TestCacheFeatureProducerErrorWithoutCacheFailurePropagates(t *testing.T) {
	f := NewCacheFeature(nil, nil, time.Minute)
	d := &RequestDescriptor{Method: "GET", URL: "https://api.example.com/g"}

	boom := errors.New("origin down")
	_, err := f.RequestWithCache(context.Background(), d, CacheOptions{Fallback: "stale"}, func(context.Context) (any, error) {
		return nil, boom
	})
	// Fallback only applies when the cache itself failed first.
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want origin error", err)
	}
}

func TestCacheFeatureExplicitKey(t *testing.T) {
	f := NewCacheFeature(nil, nil, time.Minute)

	produced := 0
	produce := func(context.Context) (any, error) {
		produced++
		return produced, nil
	}

	ctx := context.Background()
	a := &RequestDescriptor{Method: "GET", URL: "https://api.example.com/one"}
	b := &RequestDescriptor{Method: "GET", URL: "https://api.example.com/two"}

	f.RequestWithCache(ctx, a, CacheOptions{Key: "shared"}, produce)
	value, _ := f.RequestWithCache(ctx, b, CacheOptions{Key: "shared"}, produce)

	if produced != 1 || value != 1 {
		t.Errorf("produced = %d, value = %v; explicit key should share the entry", produced, value)
	}
}

func TestCacheFeatureCloneOnHit(t *testing.T) {
	f := NewCacheFeature(nil, nil, time.Minute)
	d := &RequestDescriptor{Method: "GET", URL: "https://api.example.com/clone"}

	produce := func(context.Context) (any, error) {
		return map[string]string{"state": "clean"}, nil
	}

	ctx := context.Background()
	f.RequestWithCache(ctx, d, CacheOptions{Clone: CloneDeep}, produce)

	hit, _ := f.RequestWithCache(ctx, d, CacheOptions{Clone: CloneDeep}, produce)
	hit.(map[string]string)["state"] = "dirty"

	again, _ := f.RequestWithCache(ctx, d, CacheOptions{Clone: CloneDeep}, produce)
	if again.(map[string]string)["state"] != "clean" {
		t.Error("mutating a cloned hit corrupted the cached value")
	}
}

func TestCacheFeatureInvalidCloneMode(t *testing.T) {
	f := NewCacheFeature(nil, nil, time.Minute)
	d := &RequestDescriptor{Method: "GET", URL: "https://x"}

	_, err := f.RequestWithCache(context.Background(), d, CacheOptions{Clone: "frozen"}, func(context.Context) (any, error) {
		return "never", nil
	})
	if !errors.Is(err, &RequestError{Type: ErrorTypeValidation, Code: CodeInvalidCloneMode}) {
		t.Errorf("error = %v, want %s", err, CodeInvalidCloneMode)
	}
}

func TestCacheFeatureInvalidate(t *testing.T) {
	f := NewCacheFeature(nil, nil, time.Minute)
	d := &RequestDescriptor{Method: "GET", URL: "https://api.example.com/inv"}

	produced := 0
	produce := func(context.Context) (any, error) {
		produced++
		return produced, nil
	}

	ctx := context.Background()
	f.RequestWithCache(ctx, d, CacheOptions{}, produce)
	f.Invalidate()
	f.RequestWithCache(ctx, d, CacheOptions{}, produce)

	if produced != 2 {
		t.Errorf("producer ran %d times, want 2 after invalidation", produced)
	}
}

func TestCacheFeatureInvalidateNeverPanics(t *testing.T) {
	backend := &panickyCache{Cache: NewMemoryCache(10, nil), panicOnRemove: true}
	f := NewCacheFeature(backend, nil, time.Minute)

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Invalidate panicked: %v", r)
		}
	}()
	f.Invalidate("any")
}
