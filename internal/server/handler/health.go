package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	store  Pinger
	cache  Pinger // nil when redis is disabled
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler checking the given backends.
func NewHealthHandler(store, cache Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{store: store, cache: cache, logger: logger}
}

// HealthCheck reports liveness and backend reachability.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := map[string]string{}

	if err := h.store.Ping(ctx); err != nil {
		checks["store"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			// Degraded, not down: the ledger works without redis.
			checks["cache"] = err.Error()
		} else {
			checks["cache"] = "ok"
		}
	}

	body := map[string]any{
		"status":    "ok",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if status != http.StatusOK {
		body["status"] = "unavailable"
	}
	writeJSON(w, status, body)
}
