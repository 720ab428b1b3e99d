package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
	"github.com/Pablito-AI/playmark-mvp/internal/service"
)

// UserService defines what the profile handler needs from the service layer.
type UserService interface {
	Register(ctx context.Context, id domain.Identity, displayName string) (domain.User, error)
	Profile(ctx context.Context, userID string) (service.Profile, error)
	Transactions(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Transaction, error)
	Bets(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Bet, error)
	ReplayBalance(ctx context.Context, userID string) (service.BalanceCheck, error)
}

// ProfileHandler serves the authenticated caller's own data.
type ProfileHandler struct {
	users  UserService
	logger *slog.Logger
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(users UserService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{users: users, logger: logger}
}

type registerRequest struct {
	DisplayName string `json:"display_name"`
}

// Register creates the caller's account with the starting balance. Calling
// it again returns the existing account, so the identity provider may call
// it on every login.
// POST /api/me
func (h *ProfileHandler) Register(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req registerRequest
	if r.Body != nil {
		// A missing body just means no display name.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	user, err := h.users.Register(r.Context(), caller, req.DisplayName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Me returns the caller's profile and betting record.
// GET /api/me
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	profile, err := h.users.Profile(r.Context(), caller.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type listTransactionsResponse struct {
	Transactions []domain.Transaction `json:"transactions"`
}

// Transactions returns a page of the caller's ledger entries, oldest first.
// GET /api/me/transactions
func (h *ProfileHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	txs, err := h.users.Transactions(r.Context(), caller.UserID, parseListOpts(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	writeJSON(w, http.StatusOK, listTransactionsResponse{Transactions: txs})
}

type listBetsResponse struct {
	Bets []domain.Bet `json:"bets"`
}

// Bets returns a page of the caller's stakes, newest first.
// GET /api/me/bets
func (h *ProfileHandler) Bets(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	bets, err := h.users.Bets(r.Context(), caller.UserID, parseListOpts(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if bets == nil {
		bets = []domain.Bet{}
	}
	writeJSON(w, http.StatusOK, listBetsResponse{Bets: bets})
}

// BalanceCheck replays the caller's ledger against their stored balance.
// GET /api/me/balance-check
func (h *ProfileHandler) BalanceCheck(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	check, err := h.users.ReplayBalance(r.Context(), caller.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !check.Consistent {
		h.logger.ErrorContext(r.Context(), "handler: balance mismatch",
			slog.String("user_id", caller.UserID),
			slog.Int64("stored", check.Stored),
			slog.Int64("replayed", check.Replayed),
		)
	}
	writeJSON(w, http.StatusOK, check)
}
