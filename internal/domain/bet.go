package domain

import "time"

// Bet is an immutable stake on one side of a market. It may only be deleted
// (and refunded) while the market is still open.
type Bet struct {
	ID        string
	MarketID  string
	UserID    string
	Side      Side
	Points    int64
	RequestID string // optional client-supplied idempotency key
	CreatedAt time.Time
}

// Pool is the per-market stake aggregate, maintained in the same transaction
// as its underlying bet mutations and recomputable from bet rows.
type Pool struct {
	MarketID         string
	YesPool          int64
	NoPool           int64
	TotalPool        int64
	BetCount         int64
	ParticipantCount int64
}

// SidePool returns the stake total for one side.
func (p Pool) SidePool(s Side) int64 {
	if s == SideYes {
		return p.YesPool
	}
	return p.NoPool
}

// Odds returns the pari-mutuel multiplier for the given side, or 0 when the
// side pool is empty.
func (p Pool) Odds(s Side) float64 {
	side := p.SidePool(s)
	if side <= 0 || p.TotalPool <= 0 {
		return 0
	}
	return float64(p.TotalPool) / float64(side)
}
