package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
	"github.com/Pablito-AI/playmark-mvp/internal/service"
)

// BetService defines what the bet handler needs from the service layer.
type BetService interface {
	PlaceBet(ctx context.Context, callerID string, p service.PlaceBetParams) (service.BetReceipt, error)
	CancelBet(ctx context.Context, callerID, betID string) (service.BetReceipt, error)
}

// BetHandler serves bet endpoints.
type BetHandler struct {
	bets   BetService
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(bets BetService, logger *slog.Logger) *BetHandler {
	return &BetHandler{bets: bets, logger: logger}
}

type placeBetRequest struct {
	MarketID  string `json:"market_id"`
	Side      string `json:"side"`
	Points    int64  `json:"points"`
	RequestID string `json:"request_id,omitempty"`
}

// PlaceBet stakes points on a market side.
// POST /api/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req placeBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}

	receipt, err := h.bets.PlaceBet(r.Context(), caller.UserID, service.PlaceBetParams{
		MarketID:  req.MarketID,
		Side:      domain.Side(req.Side),
		Points:    req.Points,
		RequestID: req.RequestID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// CancelBet reverses one of the caller's stakes.
// DELETE /api/bets/{id}
func (h *BetHandler) CancelBet(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	id := pathParam(r, "id")
	if id == "" {
		writeBadRequest(w, "missing bet id")
		return
	}

	receipt, err := h.bets.CancelBet(r.Context(), caller.UserID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}
