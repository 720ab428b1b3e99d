package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
)

// leaderboardKey is the sorted set holding user balances, scored by points.
const leaderboardKey = "leaderboard:points"

// Leaderboard implements domain.LeaderboardCache on a Redis sorted set.
type Leaderboard struct {
	rdb *redis.Client
}

// NewLeaderboard creates a Leaderboard backed by the given Client.
func NewLeaderboard(c *Client) *Leaderboard {
	return &Leaderboard{rdb: c.Underlying()}
}

// Update sets one user's score.
func (lb *Leaderboard) Update(ctx context.Context, userID string, points int64) error {
	err := lb.rdb.ZAdd(ctx, leaderboardKey, redis.Z{
		Score:  float64(points),
		Member: userID,
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: leaderboard update %s: %w", userID, err)
	}
	return nil
}

// Top returns the highest-scored users, best first.
func (lb *Leaderboard) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	zs, err := lb.rdb.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: leaderboard top: %w", err)
	}
	entries := make([]domain.LeaderboardEntry, 0, len(zs))
	for _, z := range zs {
		userID, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, domain.LeaderboardEntry{
			UserID: userID,
			Points: int64(z.Score),
		})
	}
	return entries, nil
}

// Rebuild replaces the whole ranking atomically.
func (lb *Leaderboard) Rebuild(ctx context.Context, entries []domain.LeaderboardEntry) error {
	zs := make([]redis.Z, len(entries))
	for i, e := range entries {
		zs[i] = redis.Z{Score: float64(e.Points), Member: e.UserID}
	}

	pipe := lb.rdb.TxPipeline()
	pipe.Del(ctx, leaderboardKey)
	if len(zs) > 0 {
		pipe.ZAdd(ctx, leaderboardKey, zs...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: leaderboard rebuild: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.LeaderboardCache = (*Leaderboard)(nil)
