package domain

import (
	"context"
	"io"
	"time"
)

// PoolCache provides fast pool snapshot lookups for read surfaces.
type PoolCache interface {
	Set(ctx context.Context, pool Pool) error
	Get(ctx context.Context, marketID string) (Pool, error)
	Invalidate(ctx context.Context, marketID string) error
}

// LeaderboardEntry is one row of the points ranking.
type LeaderboardEntry struct {
	UserID string
	Points int64
}

// LeaderboardCache maintains the points ranking.
type LeaderboardCache interface {
	Update(ctx context.Context, userID string, points int64) error
	Top(ctx context.Context, limit int) ([]LeaderboardEntry, error)
	Rebuild(ctx context.Context, entries []LeaderboardEntry) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub fan-out of ledger events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (<-chan []byte, error)
}

// BlobWriter writes archive objects to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// AdminPolicy decides whether a caller may perform administrative actions.
type AdminPolicy interface {
	IsAdmin(email string) bool
}

// Identity is the authenticated caller, supplied by the external identity
// provider and passed explicitly into every engine call.
type Identity struct {
	UserID string
	Email  string
}
