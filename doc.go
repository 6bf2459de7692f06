// Package requist is a transport-agnostic request middleware layer. It wraps
// any Requestor with deterministic cache key generation, a TTL cache with
// pluggable eviction, bounded retries with exponential backoff and jitter,
// and idempotent coalescing that guarantees at most one in-flight network
// call per key.
//
// Basic usage:
//
//	client := requist.New(requist.NewHTTPRequestor(nil),
//		requist.WithDefaultTTL(time.Minute),
//		requist.WithRetry(requist.RetryConfig{Retries: 3, Delay: 100 * time.Millisecond, BackoffFactor: 2, Jitter: 0.1}),
//	)
//	defer client.Destroy()
//
//	resp, err := client.Get(ctx, "https://api.example.com/users/42", nil)
//
// Concurrent calls with the same method, URL, query, body and selected
// headers share a single network call; later callers within the TTL window
// are served from cache. Stats() exposes the counters that make this
// observable, and WithMetrics adds Prometheus instrumentation.
package requist
