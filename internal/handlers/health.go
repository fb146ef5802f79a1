package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Checker reports whether a backing service is reachable.
type Checker func(ctx context.Context) error

// Health reports liveness plus the state of each registered dependency.
// It answers 503 when any dependency check fails.
type Health struct {
	checks map[string]Checker
}

// NewHealth creates a health handler. Nil checkers are ignored.
func NewHealth(checks map[string]Checker) *Health {
	h := &Health{checks: make(map[string]Checker)}
	for name, c := range checks {
		if c != nil {
			h.checks[name] = c
		}
	}
	return h
}

// ServeHTTP runs every check with a short timeout.
func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			slog.Warn("health check failed", "check", name, "error", err)
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	body := map[string]any{"status": "ok"}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if len(results) > 0 {
		body["checks"] = results
	}
	writeJSON(w, status, body)
}
