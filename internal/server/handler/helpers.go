// Package handler implements the HTTP API endpoints.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
	"github.com/Pablito-AI/playmark-mvp/internal/server/middleware"
)

// writeJSON marshals v and writes it with the given status. A marshal
// failure falls back to a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError maps a service error to its HTTP status and machine-readable
// code and writes the JSON error body. Unrecognized errors become opaque
// 500s so internals never leak.
func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// writeBadRequest writes a 400 with the given message.
func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: "invalid_request"})
}

// statusFor maps domain sentinels to HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusConflict, "insufficient_funds"
	case errors.Is(err, domain.ErrStakeTooLarge):
		return http.StatusConflict, "stake_too_large"
	case errors.Is(err, domain.ErrMarketClosed):
		return http.StatusConflict, "market_closed"
	case errors.Is(err, domain.ErrAlreadyResolved):
		return http.StatusConflict, "already_resolved"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate_request"
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// identityFrom returns the caller's identity when one is attached.
func identityFrom(r *http.Request) (domain.Identity, bool) {
	return middleware.IdentityFrom(r.Context())
}

// requireIdentity returns the caller's identity or writes a 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{
			Error: "authentication required",
			Code:  "unauthorized",
		})
		return domain.Identity{}, false
	}
	return id, true
}

// parseListOpts extracts pagination from the query string.
// Defaults: limit=50 (max 200), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 200 {
		limit = 200
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{Limit: limit, Offset: offset}
}

// pathParam reads a named path parameter (Go 1.22 routing).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
