package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httprate"

	"github.com/marketstall/api/internal/platform/auth"
	"github.com/marketstall/api/internal/platform/httpx"
)

// RateLimitMiddleware throttles requests per identity within a one minute
// window. Unauthenticated requests fall back to the remote address as key.
// A non-positive limit disables throttling.
func RateLimitMiddleware(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "request rate limit exceeded", http.StatusTooManyRequests))
		}),
	)
}

func rateLimitKey(r *http.Request) (string, error) {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity != nil && strings.TrimSpace(identity.UID) != "" {
		return identity.UID, nil
	}
	return httprate.KeyByIP(r)
}
