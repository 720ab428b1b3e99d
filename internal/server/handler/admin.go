package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
	"github.com/Pablito-AI/playmark-mvp/internal/service"
)

// ResolveService defines what the admin handler needs for settlement.
type ResolveService interface {
	Resolve(ctx context.Context, caller domain.Identity, marketID string, outcome domain.Side, notes string) (service.ResolutionResult, error)
}

// PoolVerifier recomputes a pool aggregate from bet rows.
type PoolVerifier interface {
	VerifyPool(ctx context.Context, marketID string) (service.PoolCheck, error)
}

// AdminHandler serves admin-only endpoints.
type AdminHandler struct {
	resolver ResolveService
	verifier PoolVerifier
	admins   domain.AdminPolicy
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(resolver ResolveService, verifier PoolVerifier, admins domain.AdminPolicy, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		resolver: resolver,
		verifier: verifier,
		admins:   admins,
		logger:   logger,
	}
}

type resolveRequest struct {
	Outcome string `json:"outcome"`
	Notes   string `json:"notes,omitempty"`
}

// ResolveMarket settles a market to a final outcome.
// POST /api/markets/{id}/resolve
func (h *AdminHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id := pathParam(r, "id")
	if id == "" {
		writeBadRequest(w, "missing market id")
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	result, err := h.resolver.Resolve(r.Context(), caller, id, domain.Side(req.Outcome), req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// VerifyPool compares a stored pool aggregate against a recomputation from
// bet rows.
// GET /api/markets/{id}/pool-check
func (h *AdminHandler) VerifyPool(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !h.admins.IsAdmin(caller.Email) {
		writeError(w, domain.ErrForbidden)
		return
	}
	id := pathParam(r, "id")
	if id == "" {
		writeBadRequest(w, "missing market id")
		return
	}

	check, err := h.verifier.VerifyPool(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !check.Consistent {
		h.logger.ErrorContext(r.Context(), "handler: pool mismatch",
			slog.String("market_id", id),
		)
	}
	writeJSON(w, http.StatusOK, check)
}
