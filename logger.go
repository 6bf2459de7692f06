package requist

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

// Logger is the minimal structured logging interface the client writes to.
// keysAndValues are alternating keys and values.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// SimpleLogger writes key=value formatted lines to stdout. Intended for
// development; production users supply their own Logger.
type SimpleLogger struct {
	logger *log.Logger
}

// NewSimpleLogger creates a console logger.
func NewSimpleLogger() *SimpleLogger {
	return &SimpleLogger{
		logger: log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds),
	}
}

func (l *SimpleLogger) Debug(msg string, keysAndValues ...any) { l.write("DEBUG", msg, keysAndValues) }
func (l *SimpleLogger) Info(msg string, keysAndValues ...any)  { l.write("INFO", msg, keysAndValues) }
func (l *SimpleLogger) Warn(msg string, keysAndValues ...any)  { l.write("WARN", msg, keysAndValues) }
func (l *SimpleLogger) Error(msg string, keysAndValues ...any) { l.write("ERROR", msg, keysAndValues) }

func (l *SimpleLogger) write(level, msg string, keysAndValues []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", level, msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	if len(keysAndValues)%2 == 1 {
		fmt.Fprintf(&b, " %v", keysAndValues[len(keysAndValues)-1])
	}
	l.logger.Print(b.String())
}

// DebugConfig gates per-concern debug logging so insight stays opt-in.
type DebugConfig struct {
	Enabled       bool
	LogRequests   bool
	LogCache      bool
	LogRetries    bool
	LogCoalescing bool
	RequestIDGen  func() string
}

// DefaultDebugConfig returns a disabled config with all concerns selected, so
// enabling debug turns everything on at once.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:       false,
		LogRequests:   true,
		LogCache:      true,
		LogRetries:    true,
		LogCoalescing: true,
		RequestIDGen:  generateRequestID,
	}
}

var requestIDCounter atomic.Uint64

func generateRequestID() string {
	return fmt.Sprintf("req_%d_%04d", time.Now().UnixNano(), requestIDCounter.Add(1)%10000)
}
