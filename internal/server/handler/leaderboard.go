package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Pablito-AI/playmark-mvp/internal/service"
)

// StatsService defines what the leaderboard handler needs.
type StatsService interface {
	Leaderboard(ctx context.Context, limit int) ([]service.LeaderboardRow, error)
}

// LeaderboardHandler serves the points ranking.
type LeaderboardHandler struct {
	stats  StatsService
	logger *slog.Logger
}

// NewLeaderboardHandler creates a LeaderboardHandler.
func NewLeaderboardHandler(stats StatsService, logger *slog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{stats: stats, logger: logger}
}

type leaderboardResponse struct {
	Leaderboard []service.LeaderboardRow `json:"leaderboard"`
}

// Leaderboard returns the top users by balance.
// GET /api/leaderboard?limit=20
func (h *LeaderboardHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	rows, err := h.stats.Leaderboard(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: leaderboard failed",
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	if rows == nil {
		rows = []service.LeaderboardRow{}
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{Leaderboard: rows})
}
