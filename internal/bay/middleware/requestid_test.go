package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"shipyard/internal/logger"
)

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if seen == "" {
		t.Error("expected a generated request id in context")
	}
	if rr.Header().Get("X-Request-ID") != seen {
		t.Errorf("response header %q does not match context value %q", rr.Header().Get("X-Request-ID"), seen)
	}
}

func TestRequestID_PropagatesIncoming(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "caller-supplied-id")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if seen != "caller-supplied-id" {
		t.Errorf("got request id %q, want %q", seen, "caller-supplied-id")
	}
	if rr.Header().Get("X-Request-ID") != "caller-supplied-id" {
		t.Errorf("got response header %q, want %q", rr.Header().Get("X-Request-ID"), "caller-supplied-id")
	}
}
