package requist

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPRequestorSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":42}`))
	}))
	defer server.Close()

	r := NewHTTPRequestor(server.Client())
	value, err := r.Request(context.Background(), &RequestDescriptor{URL: server.URL})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	resp, ok := value.(*Response)
	if !ok {
		t.Fatalf("value type = %T, want *Response", value)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if string(resp.Body) != `{"id":42}` {
		t.Errorf("Body = %s", resp.Body)
	}
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %s", resp.Header.Get("Content-Type"))
	}
}

func TestHTTPRequestorSendsQueryAndHeaders(t *testing.T) {
	var gotQuery, gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("page")
		gotHeader = r.Header.Get("X-Tenant")
	}))
	defer server.Close()

	r := NewHTTPRequestor(server.Client())
	_, err := r.Request(context.Background(), &RequestDescriptor{
		URL:     server.URL,
		Query:   map[string]string{"page": "3"},
		Headers: map[string]string{"X-Tenant": "acme"},
	})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if gotQuery != "3" || gotHeader != "acme" {
		t.Errorf("query = %q, header = %q", gotQuery, gotHeader)
	}
}

func TestHTTPRequestorEncodesJSONBody(t *testing.T) {
	var gotContentType string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
	}))
	defer server.Close()

	r := NewHTTPRequestor(server.Client())
	_, err := r.Request(context.Background(), &RequestDescriptor{
		URL:    server.URL,
		Method: "POST",
		Body:   map[string]string{"name": "ada"},
	})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if gotBody["name"] != "ada" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestHTTPRequestorStringBodyPassedVerbatim(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer server.Close()

	r := NewHTTPRequestor(server.Client())
	r.Request(context.Background(), &RequestDescriptor{
		URL:    server.URL,
		Method: "POST",
		Body:   "raw payload",
	})
	if string(gotBody) != "raw payload" {
		t.Errorf("body = %q, want raw payload", gotBody)
	}
}

func TestHTTPRequestorClassifiesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer server.Close()

	r := NewHTTPRequestor(server.Client())
	_, err := r.Request(context.Background(), &RequestDescriptor{URL: server.URL})
	if err == nil {
		t.Fatal("expected error for 404")
	}

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error type = %T, want *RequestError", err)
	}
	if reqErr.Type != ErrorTypeHTTP || reqErr.Status != 404 {
		t.Errorf("Type = %s, Status = %d; want HTTP_ERROR/404", reqErr.Type, reqErr.Status)
	}
	if reqErr.Context.URL != server.URL {
		t.Errorf("Context.URL = %q, want %q", reqErr.Context.URL, server.URL)
	}
}

func TestHTTPRequestorClassifiesTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	r := NewHTTPRequestor(&http.Client{Timeout: 20 * time.Millisecond})
	_, err := r.Request(context.Background(), &RequestDescriptor{URL: server.URL})

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error type = %T, want *RequestError", err)
	}
	if reqErr.Type != ErrorTypeTimeout {
		t.Errorf("Type = %s, want %s", reqErr.Type, ErrorTypeTimeout)
	}
}

func TestHTTPRequestorClassifiesNetworkError(t *testing.T) {
	r := NewHTTPRequestor(&http.Client{Timeout: time.Second})
	_, err := r.Request(context.Background(), &RequestDescriptor{URL: "http://127.0.0.1:1/unreachable"})

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error type = %T, want *RequestError", err)
	}
	if reqErr.Type != ErrorTypeNetwork {
		t.Errorf("Type = %s, want %s", reqErr.Type, ErrorTypeNetwork)
	}
	if reqErr.Cause == nil {
		t.Error("network errors must keep their cause")
	}
}

func TestHTTPRequestorRejectsBadURL(t *testing.T) {
	r := NewHTTPRequestor(nil)
	_, err := r.Request(context.Background(), &RequestDescriptor{URL: "http://bad url with spaces\x7f"})

	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.Type != ErrorTypeValidation {
		t.Errorf("error = %v, want validation error", err)
	}
}

func TestClientWithHTTPRequestorEndToEnd(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("body"))
	}))
	defer server.Close()

	client := New(NewHTTPRequestor(server.Client()))
	defer client.Destroy()

	ctx := context.Background()
	first, err := client.Get(ctx, server.URL+"/item", nil)
	if err != nil {
		t.Fatalf("Get error = %v", err)
	}
	second, err := client.Get(ctx, server.URL+"/item", nil)
	if err != nil {
		t.Fatalf("Get error = %v", err)
	}

	if hits != 1 {
		t.Errorf("server hits = %d, want 1", hits)
	}
	if string(first.(*Response).Body) != "body" || string(second.(*Response).Body) != "body" {
		t.Error("payload mismatch")
	}
}
