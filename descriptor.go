package requist

import (
	"context"
	"net/http"
	"strings"
)

// RequestDescriptor is a transport-agnostic description of one HTTP request.
// It is treated as immutable for the duration of a call; header and query
// insertion order is irrelevant for identity.
type RequestDescriptor struct {
	URL     string
	Method  string
	Headers map[string]string
	Query   map[string]string
	Body    any
}

// Response is the payload produced by the bundled HTTP transport adapter.
// Custom Requestor implementations are free to return any type.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Requestor executes exactly one network request for a descriptor. It must
// not retry, cache or deduplicate on its own; those concerns belong to the
// layers above it. Failures should be reported as *RequestError where the
// adapter can classify them.
type Requestor interface {
	Request(ctx context.Context, d *RequestDescriptor) (any, error)
}

// RequestorFunc adapts a function to the Requestor interface.
type RequestorFunc func(ctx context.Context, d *RequestDescriptor) (any, error)

func (f RequestorFunc) Request(ctx context.Context, d *RequestDescriptor) (any, error) {
	return f(ctx, d)
}

// Middleware wraps a Requestor for cross-cutting concerns (auth, tracing,
// logging). Middleware runs on the single network call only, never on cache
// hits or coalesced waits.
type Middleware func(ctx context.Context, d *RequestDescriptor, next Requestor) (any, error)

// endpointFromDescriptor extracts a simplified host+path label for metrics
// and logging.
func endpointFromDescriptor(d *RequestDescriptor) string {
	if d == nil || d.URL == "" {
		return "unknown"
	}

	raw := d.URL
	if idx := strings.Index(raw, "://"); idx != -1 {
		raw = raw[idx+3:]
	}
	if idx := strings.IndexAny(raw, "?#"); idx != -1 {
		raw = raw[:idx]
	}
	if raw == "" {
		return "unknown"
	}
	if !strings.Contains(raw, "/") {
		raw += "/"
	}
	return raw
}
