package requist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPRequestor is the bundled transport adapter: it translates a
// RequestDescriptor into one net/http call and classifies failures into the
// RequestError taxonomy. It performs no retry, caching or deduplication.
type HTTPRequestor struct {
	client *http.Client
}

// NewHTTPRequestor wraps an *http.Client; nil gets a client with a 30 second
// timeout.
func NewHTTPRequestor(client *http.Client) *HTTPRequestor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPRequestor{client: client}
}

// Request executes exactly one HTTP request. The returned value is a
// *Response; errors are *RequestError with Type NETWORK_ERROR, TIMEOUT_ERROR
// or HTTP_ERROR (status >= 400).
func (r *HTTPRequestor) Request(ctx context.Context, d *RequestDescriptor) (any, error) {
	req, err := r.buildRequest(ctx, d)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err, d)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{
			Type:    ErrorTypeNetwork,
			Message: "failed to read response body",
			Cause:   err,
			Context: errorContext(d),
		}
	}

	if resp.StatusCode >= 400 {
		return nil, &RequestError{
			Type:    ErrorTypeHTTP,
			Message: http.StatusText(resp.StatusCode),
			Status:  resp.StatusCode,
			Context: errorContext(d),
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

func (r *HTTPRequestor) buildRequest(ctx context.Context, d *RequestDescriptor) (*http.Request, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, &RequestError{
			Type:    ErrorTypeValidation,
			Message: "invalid request URL",
			Cause:   err,
			Context: errorContext(d),
		}
	}

	if len(d.Query) > 0 {
		q := u.Query()
		for k, v := range d.Query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	method := strings.ToUpper(d.Method)
	if method == "" {
		method = http.MethodGet
	}

	body, contentType, err := encodeBody(d.Body)
	if err != nil {
		return nil, &RequestError{
			Type:    ErrorTypeValidation,
			Message: "failed to encode request body",
			Cause:   err,
			Context: errorContext(d),
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, &RequestError{
			Type:    ErrorTypeValidation,
			Message: "failed to build request",
			Cause:   err,
			Context: errorContext(d),
		}
	}

	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	return req, nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	case string:
		return strings.NewReader(b), "", nil
	case io.Reader:
		return b, "", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

// classifyTransportError maps net/http failures onto the error taxonomy,
// preserving the original cause for diagnostics.
func classifyTransportError(err error, d *RequestDescriptor) *RequestError {
	reqErr := &RequestError{
		Type:    ErrorTypeNetwork,
		Message: "network request failed",
		Cause:   err,
		Context: errorContext(d),
	}

	if errors.Is(err, context.DeadlineExceeded) {
		reqErr.Type = ErrorTypeTimeout
		reqErr.Message = "request timed out"
		return reqErr
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		reqErr.Type = ErrorTypeTimeout
		reqErr.Message = "request timed out"
	}

	return reqErr
}

func errorContext(d *RequestDescriptor) ErrorContext {
	ctx := ErrorContext{Timestamp: time.Now()}
	if d != nil {
		ctx.URL = d.URL
		ctx.Method = strings.ToUpper(d.Method)
		ctx.Endpoint = endpointFromDescriptor(d)
	}
	return ctx
}
