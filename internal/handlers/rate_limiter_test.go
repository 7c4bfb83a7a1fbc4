package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marketstall/api/internal/platform/auth"
)

func rateLimitedHandler(perMinute int) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return RateLimitMiddleware(perMinute)(next)
}

func TestRateLimitMiddlewareKeysByIdentity(t *testing.T) {
	handler := rateLimitedHandler(1)

	send := func(uid string) int {
		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		req.RemoteAddr = "10.0.0.1:52000"
		req = req.WithContext(auth.WithIdentity(req.Context(), customerIdentity(uid)))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	if code := send("cust-1"); code != http.StatusNoContent {
		t.Fatalf("first request should pass, got %d", code)
	}
	if code := send("cust-1"); code != http.StatusTooManyRequests {
		t.Fatalf("second request for same identity should be limited, got %d", code)
	}
	if code := send("cust-2"); code != http.StatusNoContent {
		t.Fatalf("other identity should not share the bucket, got %d", code)
	}
}

func TestRateLimitMiddlewareErrorEnvelope(t *testing.T) {
	handler := rateLimitedHandler(1)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		req.RemoteAddr = "10.0.0.2:52000"
		req = req.WithContext(auth.WithIdentity(req.Context(), customerIdentity("cust-9")))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if i == 0 {
			continue
		}

		if rr.Code != http.StatusTooManyRequests {
			t.Fatalf("expected status 429, got %d", rr.Code)
		}
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if payload.Error != "rate_limited" {
			t.Fatalf("unexpected error code %q", payload.Error)
		}
	}
}

func TestRateLimitMiddlewareDisabledForZeroLimit(t *testing.T) {
	handler := rateLimitedHandler(0)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		req.RemoteAddr = "10.0.0.3:52000"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("request %d should pass with limiting disabled, got %d", i, rr.Code)
		}
	}
}
