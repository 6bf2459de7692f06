package requist

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// capturingLogger records log lines for assertions.
type capturingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *capturingLogger) log(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var b strings.Builder
	b.WriteString(level + " " + msg)
	for i := 0; i+1 < len(kv); i += 2 {
		b.WriteString(" ")
		b.WriteString(toString(kv[i]) + "=" + toString(kv[i+1]))
	}
	l.lines = append(l.lines, b.String())
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func (l *capturingLogger) Debug(msg string, kv ...any) { l.log("DEBUG", msg, kv) }
func (l *capturingLogger) Info(msg string, kv ...any)  { l.log("INFO", msg, kv) }
func (l *capturingLogger) Warn(msg string, kv ...any)  { l.log("WARN", msg, kv) }
func (l *capturingLogger) Error(msg string, kv ...any) { l.log("ERROR", msg, kv) }

func (l *capturingLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func TestSimpleLoggerFormatsKeyValuePairs(t *testing.T) {
	// Smoke test: SimpleLogger must not panic on odd or empty pairs.
	l := NewSimpleLogger()
	l.Debug("msg")
	l.Info("msg", "key", "value")
	l.Warn("msg", "dangling")
	l.Error("msg", "a", 1, "b", 2)
}

func TestClientDebugLogging(t *testing.T) {
	var calls atomic.Int64
	logger := &capturingLogger{}
	client := New(okRequestor(&calls, "ok"), WithLogger(logger), WithDebug())
	defer client.Destroy()

	ctx := context.Background()
	client.Get(ctx, "https://api.example.com/log", nil)
	client.Get(ctx, "https://api.example.com/log", nil)

	if !logger.contains("starting idempotent request") {
		t.Error("missing request start log")
	}
	if !logger.contains("idempotent cache hit") {
		t.Error("missing cache hit log")
	}
}

func TestDefaultDebugConfig(t *testing.T) {
	cfg := DefaultDebugConfig()
	if cfg.Enabled {
		t.Error("debug must be opt-in")
	}
	if !cfg.LogRequests || !cfg.LogCache || !cfg.LogRetries || !cfg.LogCoalescing {
		t.Error("all concerns should be selected by default")
	}
	if cfg.RequestIDGen == nil {
		t.Fatal("missing request ID generator")
	}

	a, b := cfg.RequestIDGen(), cfg.RequestIDGen()
	if a == b {
		t.Errorf("request IDs must be unique, got %q twice", a)
	}
	if !strings.HasPrefix(a, "req_") {
		t.Errorf("request ID = %q, want req_ prefix", a)
	}
}
