package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
)

const defaultLeaderboardSize = 20

// LeaderboardRow is one ranked user with their display name filled in.
type LeaderboardRow struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Points      int64  `json:"points"`
}

// StatsService serves the leaderboard.
type StatsService struct {
	ledger      domain.Ledger
	leaderboard domain.LeaderboardCache
	logger      *slog.Logger
}

// NewStatsService creates a StatsService. The leaderboard cache is optional;
// without it every read hits the store.
func NewStatsService(ledger domain.Ledger, leaderboard domain.LeaderboardCache, logger *slog.Logger) *StatsService {
	return &StatsService{ledger: ledger, leaderboard: leaderboard, logger: logger}
}

// Leaderboard returns the top users by balance. The cached ranking is
// preferred; an empty or unavailable cache falls back to the store and
// rebuilds the cache from what it read.
func (s *StatsService) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 {
		limit = defaultLeaderboardSize
	}

	if s.leaderboard != nil {
		entries, err := s.leaderboard.Top(ctx, limit)
		if err != nil {
			s.logger.WarnContext(ctx, "stats_service: leaderboard cache unavailable",
				slog.String("error", err.Error()),
			)
		} else if len(entries) > 0 {
			return s.hydrate(ctx, entries)
		}
	}

	users, err := s.ledger.Users().ListTop(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("stats_service: list top users: %w", err)
	}

	rows := make([]LeaderboardRow, len(users))
	entries := make([]domain.LeaderboardEntry, len(users))
	for i, u := range users {
		rows[i] = LeaderboardRow{
			Rank:        i + 1,
			UserID:      u.ID,
			DisplayName: u.DisplayName,
			Points:      u.Points,
		}
		entries[i] = domain.LeaderboardEntry{UserID: u.ID, Points: u.Points}
	}

	if s.leaderboard != nil && len(entries) > 0 {
		if err := s.leaderboard.Rebuild(ctx, entries); err != nil {
			s.logger.WarnContext(ctx, "stats_service: leaderboard rebuild failed",
				slog.String("error", err.Error()),
			)
		}
	}
	return rows, nil
}

// hydrate resolves display names for cached entries. Entries whose user row
// has disappeared are skipped.
func (s *StatsService) hydrate(ctx context.Context, entries []domain.LeaderboardEntry) ([]LeaderboardRow, error) {
	rows := make([]LeaderboardRow, 0, len(entries))
	for _, e := range entries {
		user, err := s.ledger.Users().GetByID(ctx, e.UserID)
		if err != nil {
			continue
		}
		rows = append(rows, LeaderboardRow{
			Rank:        len(rows) + 1,
			UserID:      e.UserID,
			DisplayName: user.DisplayName,
			Points:      e.Points,
		})
	}
	return rows, nil
}
