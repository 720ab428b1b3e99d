package handler

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// Sweeper closes markets past their deadline.
type Sweeper interface {
	CloseExpired(ctx context.Context) (int64, error)
}

// CronHandler serves the scheduler-triggered endpoints. Callers authenticate
// with a shared secret rather than a user token.
type CronHandler struct {
	sweeper Sweeper
	secret  string
	logger  *slog.Logger
}

// NewCronHandler creates a CronHandler. With an empty secret every request
// is rejected.
func NewCronHandler(sweeper Sweeper, secret string, logger *slog.Logger) *CronHandler {
	return &CronHandler{sweeper: sweeper, secret: secret, logger: logger}
}

// CloseMarkets runs one lifecycle sweep and reports how many markets closed.
// POST /api/cron/close-markets
func (h *CronHandler) CloseMarkets(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, errorBody{
			Error: "invalid cron secret",
			Code:  "unauthorized",
		})
		return
	}

	n, err := h.sweeper.CloseExpired(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: cron sweep failed",
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"closed": n})
}

func (h *CronHandler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return false
	}
	auth := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(h.secret)) == 1
}
