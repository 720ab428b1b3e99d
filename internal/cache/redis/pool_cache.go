package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
)

const poolTTL = 30 * time.Second

// PoolCache implements domain.PoolCache with JSON-serialized pool snapshots
// at key "pool:{marketID}". The short TTL bounds staleness when an
// invalidation is lost.
type PoolCache struct {
	rdb *redis.Client
}

// NewPoolCache creates a PoolCache backed by the given Client.
func NewPoolCache(c *Client) *PoolCache {
	return &PoolCache{rdb: c.Underlying()}
}

func poolKey(marketID string) string { return "pool:" + marketID }

// Set stores a pool snapshot with the cache TTL.
func (pc *PoolCache) Set(ctx context.Context, pool domain.Pool) error {
	data, err := json.Marshal(pool)
	if err != nil {
		return fmt.Errorf("redis: marshal pool %s: %w", pool.MarketID, err)
	}
	if err := pc.rdb.Set(ctx, poolKey(pool.MarketID), data, poolTTL).Err(); err != nil {
		return fmt.Errorf("redis: set pool %s: %w", pool.MarketID, err)
	}
	return nil
}

// Get retrieves a cached pool snapshot. It returns domain.ErrNotFound when
// the key is absent or expired.
func (pc *PoolCache) Get(ctx context.Context, marketID string) (domain.Pool, error) {
	data, err := pc.rdb.Get(ctx, poolKey(marketID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Pool{}, domain.ErrNotFound
		}
		return domain.Pool{}, fmt.Errorf("redis: get pool %s: %w", marketID, err)
	}
	var pool domain.Pool
	if err := json.Unmarshal(data, &pool); err != nil {
		return domain.Pool{}, fmt.Errorf("redis: unmarshal pool %s: %w", marketID, err)
	}
	return pool, nil
}

// Invalidate drops the cached snapshot for a market.
func (pc *PoolCache) Invalidate(ctx context.Context, marketID string) error {
	if err := pc.rdb.Del(ctx, poolKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate pool %s: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PoolCache = (*PoolCache)(nil)
