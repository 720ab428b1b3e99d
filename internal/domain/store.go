package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketFilter narrows market list queries.
type MarketFilter struct {
	Statuses []MarketStatus
	Category string
	// Sort is "new" (created_at desc) or "trending" (total pool desc).
	Sort string
}

// UserStore persists user balances.
type UserStore interface {
	Create(ctx context.Context, u User) error
	GetByID(ctx context.Context, id string) (User, error)
	UpdatePoints(ctx context.Context, id string, points int64) error
	ListTop(ctx context.Context, limit int) ([]User, error)
}

// MarketStore persists markets and their lifecycle.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	List(ctx context.Context, f MarketFilter, opts ListOpts) ([]Market, error)
	CountRecentByCreator(ctx context.Context, creatorID string, since time.Time) (int64, error)
	// CloseExpired flips every open market whose close date has passed to
	// closed and returns the number of markets affected.
	CloseExpired(ctx context.Context, now time.Time) (int64, error)
	SetStatus(ctx context.Context, id string, status MarketStatus) error
	MarkResolved(ctx context.Context, id string, outcome Side) error
	Delete(ctx context.Context, id string) error
}

// BetStore persists stakes.
type BetStore interface {
	Create(ctx context.Context, b Bet) error
	GetByID(ctx context.Context, id string) (Bet, error)
	Delete(ctx context.Context, id string) error
	ListByMarket(ctx context.Context, marketID string) ([]Bet, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Bet, error)
	ListByMarketAndUser(ctx context.Context, marketID, userID string) ([]Bet, error)
	ExistsRequest(ctx context.Context, userID, requestID string) (bool, error)
	DeleteByMarket(ctx context.Context, marketID string) error
	StatsByUser(ctx context.Context, userID string) (UserStats, error)
}

// PoolStore persists per-market stake aggregates.
type PoolStore interface {
	Init(ctx context.Context, marketID string) error
	Get(ctx context.Context, marketID string) (Pool, error)
	GetMany(ctx context.Context, marketIDs []string) (map[string]Pool, error)
	// Refresh recomputes the aggregate from bet rows and persists it. Called
	// inside the same transaction as the bet mutation it reflects.
	Refresh(ctx context.Context, marketID string) (Pool, error)
	// Recompute derives the aggregate from bet rows without writing, for
	// consistency checks against the stored row.
	Recompute(ctx context.Context, marketID string) (Pool, error)
	Delete(ctx context.Context, marketID string) error
}

// TransactionStore persists the append-only balance ledger.
type TransactionStore interface {
	Append(ctx context.Context, tx Transaction) error
	// ListByUser returns entries in creation order (oldest first).
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Transaction, error)
}

// ResolutionStore persists resolution records.
type ResolutionStore interface {
	Create(ctx context.Context, r Resolution) error
	GetByMarket(ctx context.Context, marketID string) (Resolution, error)
}

// Ledger bundles every store and provides the transaction boundary the
// engines run inside. Implementations must guarantee that fn either commits
// as a whole or leaves no trace, and that concurrent transactions touching
// the same rows serialize rather than losing updates.
type Ledger interface {
	Users() UserStore
	Markets() MarketStore
	Bets() BetStore
	Pools() PoolStore
	Transactions() TransactionStore
	Resolutions() ResolutionStore

	// WithinTx runs fn against a transaction-bound view of the ledger.
	// Transient serialization conflicts are retried once; persistent
	// failures surface as ErrStoreUnavailable. Errors returned by fn abort
	// the transaction and pass through unchanged.
	WithinTx(ctx context.Context, fn func(Ledger) error) error
}

// UserStats summarizes a user's betting record. Accuracy only counts bets on
// resolved markets.
type UserStats struct {
	TotalBets    int64
	PointsStaked int64
	WinningBets  int64
	ResolvedBets int64
	Accuracy     float64
}
