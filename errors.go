package requist

import (
	"errors"
	"fmt"
	"time"
)

// Error types carried by RequestError.Type. These values are stable and safe
// to match on programmatically.
const (
	ErrorTypeNetwork    = "NETWORK_ERROR"
	ErrorTypeHTTP       = "HTTP_ERROR"
	ErrorTypeTimeout    = "TIMEOUT_ERROR"
	ErrorTypeValidation = "VALIDATION_ERROR"
	ErrorTypeUnknown    = "UNKNOWN_ERROR"
)

// Stable codes carried by validation errors.
const (
	CodeInvalidTTL           = "INVALID_TTL"
	CodeInvalidHeaders       = "INVALID_HEADERS"
	CodeInvalidHashAlgorithm = "INVALID_HASH_ALGORITHM"
	CodeInvalidRetryConfig   = "INVALID_RETRY_CONFIG"
	CodeInvalidCloneMode     = "INVALID_CLONE_MODE"
)

// Sentinel errors for common failure scenarios
var (
	// ErrCircuitOpen is returned when the circuit breaker is in open state
	ErrCircuitOpen = errors.New("requist: circuit open")

	// ErrRateLimited is returned when a request is denied due to rate limiting
	ErrRateLimited = errors.New("requist: rate limited")

	// ErrClientDestroyed is returned for calls made after Destroy
	ErrClientDestroyed = errors.New("requist: client destroyed")
)

// ErrorContext captures where and when a request error happened.
type ErrorContext struct {
	URL       string
	Method    string
	Endpoint  string
	Attempt   int
	Timestamp time.Time
}

// RequestError is the structured error produced by this package. Type is one
// of the ErrorType constants; Code is set for validation errors; Status holds
// the HTTP status when Type is HTTP_ERROR.
type RequestError struct {
	Type    string
	Code    string
	Message string
	Status  int
	Context ErrorContext
	Cause   error
}

// Error implements error interface.
func (e *RequestError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Code)
	}
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types (and codes when both are set) for errors.Is.
func (e *RequestError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*RequestError); ok {
		if targetErr.Code != "" {
			return e.Type == targetErr.Type && e.Code == targetErr.Code
		}
		return e.Type == targetErr.Type
	}
	return false
}

// IsTransient determines if an error represents a transient failure that might
// succeed on retry. Returns true for network errors, timeouts, 5xx responses
// and internal throttling. Returns false for validation errors and 4xx client
// errors (except 429).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrRateLimited) {
		return true
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.Type {
		case ErrorTypeNetwork, ErrorTypeTimeout:
			return true
		case ErrorTypeHTTP:
			return reqErr.Status >= 500 || reqErr.Status == 429
		default:
			return false
		}
	}

	return false
}

// newValidationError builds a synchronous pre-I/O validation failure with a
// stable code.
func newValidationError(code, message string) *RequestError {
	return &RequestError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
		Context: ErrorContext{Timestamp: time.Now()},
	}
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *RequestError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.Code != "" {
		info += fmt.Sprintf("Code: %s\n", e.Code)
	}
	if e.Status > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.Status)
	}
	if e.Context.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Context.Method)
	}
	if e.Context.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.Context.URL)
	}
	if e.Context.Endpoint != "" {
		info += fmt.Sprintf("Endpoint: %s\n", e.Context.Endpoint)
	}
	if e.Context.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d\n", e.Context.Attempt)
	}
	if !e.Context.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Context.Timestamp.Format(time.RFC3339))
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}
