package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// ReadinessPinger reports whether the service's hard dependencies are reachable.
type ReadinessPinger interface {
	Ping(ctx context.Context) error
}

// BuildInfo identifies the running binary in health responses.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// HealthHandlers serves the /healthz and /readyz endpoints.
type HealthHandlers struct {
	build  BuildInfo
	pinger ReadinessPinger
	clock  func() time.Time
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo attaches build metadata to health responses.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthPinger sets the dependency probe used by /readyz.
func WithHealthPinger(pinger ReadinessPinger) HealthOption {
	return func(h *HealthHandlers) {
		h.pinger = pinger
	}
}

// WithHealthClock overrides the clock, primarily for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs the health endpoints.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock().UTC()
	}
	return h
}

// Healthz reports liveness. It never consults dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	payload := map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.build.StartedAt).String(),
		"timestamp": now.Format(time.RFC3339),
	}
	if v := strings.TrimSpace(h.build.Version); v != "" {
		payload["version"] = v
	}
	if sha := strings.TrimSpace(h.build.CommitSHA); sha != "" {
		payload["commit"] = sha
	}
	if env := strings.TrimSpace(h.build.Environment); env != "" {
		payload["environment"] = env
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz reports readiness by probing hard dependencies when a pinger is configured.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{
				"status":    "unavailable",
				"error":     err.Error(),
				"timestamp": now.Format(time.RFC3339),
			})
			return
		}
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": now.Format(time.RFC3339),
	})
}
