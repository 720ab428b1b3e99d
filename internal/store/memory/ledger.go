// Package memory implements the domain ledger entirely in process memory.
// It backs the service and handler test suites; one mutex serializes every
// transaction, and WithinTx restores a snapshot on error so the all-or-
// nothing guarantee matches the PostgreSQL implementation.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
)

type state struct {
	users       map[string]domain.User
	markets     map[string]domain.Market
	bets        map[string]domain.Bet
	pools       map[string]domain.Pool
	txs         []domain.Transaction
	resolutions map[string]domain.Resolution
	nextTxID    int64
}

func newState() *state {
	return &state{
		users:       make(map[string]domain.User),
		markets:     make(map[string]domain.Market),
		bets:        make(map[string]domain.Bet),
		pools:       make(map[string]domain.Pool),
		resolutions: make(map[string]domain.Resolution),
		nextTxID:    1,
	}
}

func (s *state) clone() *state {
	c := &state{
		users:       make(map[string]domain.User, len(s.users)),
		markets:     make(map[string]domain.Market, len(s.markets)),
		bets:        make(map[string]domain.Bet, len(s.bets)),
		pools:       make(map[string]domain.Pool, len(s.pools)),
		txs:         make([]domain.Transaction, len(s.txs)),
		resolutions: make(map[string]domain.Resolution, len(s.resolutions)),
		nextTxID:    s.nextTxID,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.markets {
		if v.ResolvedOutcome != nil {
			outcome := *v.ResolvedOutcome
			v.ResolvedOutcome = &outcome
		}
		c.markets[k] = v
	}
	for k, v := range s.bets {
		c.bets[k] = v
	}
	for k, v := range s.pools {
		c.pools[k] = v
	}
	copy(c.txs, s.txs)
	for k, v := range s.resolutions {
		c.resolutions[k] = v
	}
	return c
}

// Ledger is the in-memory domain.Ledger.
type Ledger struct {
	mu   *sync.Mutex
	st   *state
	inTx bool
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{mu: &sync.Mutex{}, st: newState()}
}

// lock acquires the ledger mutex for a standalone store call. Calls made
// inside WithinTx already hold the lock, so it becomes a no-op.
func (l *Ledger) lock() func() {
	if l.inTx {
		return func() {}
	}
	l.mu.Lock()
	return l.mu.Unlock
}

// WithinTx serializes on the ledger mutex, snapshots the state, and rolls
// back to the snapshot when fn fails.
func (l *Ledger) WithinTx(_ context.Context, fn func(domain.Ledger) error) error {
	if l.inTx {
		return fn(l)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	snap := l.st.clone()
	tx := &Ledger{mu: l.mu, st: l.st, inTx: true}
	if err := fn(tx); err != nil {
		*l.st = *snap
		return err
	}
	return nil
}

func (l *Ledger) Users() domain.UserStore               { return &userStore{l} }
func (l *Ledger) Markets() domain.MarketStore           { return &marketStore{l} }
func (l *Ledger) Bets() domain.BetStore                 { return &betStore{l} }
func (l *Ledger) Pools() domain.PoolStore               { return &poolStore{l} }
func (l *Ledger) Transactions() domain.TransactionStore { return &transactionStore{l} }
func (l *Ledger) Resolutions() domain.ResolutionStore   { return &resolutionStore{l} }

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

type userStore struct{ l *Ledger }

func (s *userStore) Create(_ context.Context, u domain.User) error {
	defer s.l.lock()()
	s.l.st.users[u.ID] = u
	return nil
}

func (s *userStore) GetByID(_ context.Context, id string) (domain.User, error) {
	defer s.l.lock()()
	u, ok := s.l.st.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (s *userStore) UpdatePoints(_ context.Context, id string, points int64) error {
	defer s.l.lock()()
	u, ok := s.l.st.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.Points = points
	s.l.st.users[id] = u
	return nil
}

func (s *userStore) ListTop(_ context.Context, limit int) ([]domain.User, error) {
	defer s.l.lock()()
	users := make([]domain.User, 0, len(s.l.st.users))
	for _, u := range s.l.st.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Points != users[j].Points {
			return users[i].Points > users[j].Points
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

// ---------------------------------------------------------------------------
// Markets
// ---------------------------------------------------------------------------

type marketStore struct{ l *Ledger }

func (s *marketStore) Create(_ context.Context, m domain.Market) error {
	defer s.l.lock()()
	s.l.st.markets[m.ID] = m
	return nil
}

func (s *marketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	defer s.l.lock()()
	m, ok := s.l.st.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *marketStore) List(_ context.Context, f domain.MarketFilter, opts domain.ListOpts) ([]domain.Market, error) {
	defer s.l.lock()()

	var markets []domain.Market
	for _, m := range s.l.st.markets {
		if len(f.Statuses) > 0 {
			match := false
			for _, st := range f.Statuses {
				if m.Status == st {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		if f.Category != "" && m.Category != f.Category {
			continue
		}
		markets = append(markets, m)
	}

	if f.Sort == "trending" {
		sort.Slice(markets, func(i, j int) bool {
			pi := s.l.st.pools[markets[i].ID].TotalPool
			pj := s.l.st.pools[markets[j].ID].TotalPool
			if pi != pj {
				return pi > pj
			}
			return markets[i].CreatedAt.After(markets[j].CreatedAt)
		})
	} else {
		sort.Slice(markets, func(i, j int) bool {
			return markets[i].CreatedAt.After(markets[j].CreatedAt)
		})
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(markets) {
			return nil, nil
		}
		markets = markets[opts.Offset:]
	}
	if opts.Limit > 0 && len(markets) > opts.Limit {
		markets = markets[:opts.Limit]
	}
	return markets, nil
}

func (s *marketStore) CountRecentByCreator(_ context.Context, creatorID string, since time.Time) (int64, error) {
	defer s.l.lock()()
	var count int64
	for _, m := range s.l.st.markets {
		if m.CreatorID == creatorID && !m.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *marketStore) CloseExpired(_ context.Context, now time.Time) (int64, error) {
	defer s.l.lock()()
	var closed int64
	for id, m := range s.l.st.markets {
		if m.Status == domain.MarketStatusOpen && !m.CloseDate.After(now) {
			m.Status = domain.MarketStatusClosed
			s.l.st.markets[id] = m
			closed++
		}
	}
	return closed, nil
}

func (s *marketStore) SetStatus(_ context.Context, id string, status domain.MarketStatus) error {
	defer s.l.lock()()
	m, ok := s.l.st.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.Status = status
	s.l.st.markets[id] = m
	return nil
}

func (s *marketStore) MarkResolved(_ context.Context, id string, outcome domain.Side) error {
	defer s.l.lock()()
	m, ok := s.l.st.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Status == domain.MarketStatusResolved {
		return domain.ErrAlreadyResolved
	}
	m.Status = domain.MarketStatusResolved
	m.ResolvedOutcome = &outcome
	s.l.st.markets[id] = m
	return nil
}

func (s *marketStore) Delete(_ context.Context, id string) error {
	defer s.l.lock()()
	if _, ok := s.l.st.markets[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.l.st.markets, id)
	for betID, b := range s.l.st.bets {
		if b.MarketID == id {
			delete(s.l.st.bets, betID)
		}
	}
	delete(s.l.st.pools, id)
	delete(s.l.st.resolutions, id)
	return nil
}

// ---------------------------------------------------------------------------
// Bets
// ---------------------------------------------------------------------------

type betStore struct{ l *Ledger }

func (s *betStore) Create(_ context.Context, b domain.Bet) error {
	defer s.l.lock()()
	if b.RequestID != "" {
		for _, existing := range s.l.st.bets {
			if existing.UserID == b.UserID && existing.RequestID == b.RequestID {
				return domain.ErrDuplicateRequest
			}
		}
	}
	s.l.st.bets[b.ID] = b
	return nil
}

func (s *betStore) GetByID(_ context.Context, id string) (domain.Bet, error) {
	defer s.l.lock()()
	b, ok := s.l.st.bets[id]
	if !ok {
		return domain.Bet{}, domain.ErrNotFound
	}
	return b, nil
}

func (s *betStore) Delete(_ context.Context, id string) error {
	defer s.l.lock()()
	if _, ok := s.l.st.bets[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.l.st.bets, id)
	return nil
}

func (s *betStore) ListByMarket(_ context.Context, marketID string) ([]domain.Bet, error) {
	defer s.l.lock()()
	var bets []domain.Bet
	for _, b := range s.l.st.bets {
		if b.MarketID == marketID {
			bets = append(bets, b)
		}
	}
	sort.Slice(bets, func(i, j int) bool {
		return bets[i].CreatedAt.Before(bets[j].CreatedAt)
	})
	return bets, nil
}

func (s *betStore) ListByUser(_ context.Context, userID string, opts domain.ListOpts) ([]domain.Bet, error) {
	defer s.l.lock()()
	var bets []domain.Bet
	for _, b := range s.l.st.bets {
		if b.UserID == userID {
			bets = append(bets, b)
		}
	}
	sort.Slice(bets, func(i, j int) bool {
		return bets[i].CreatedAt.After(bets[j].CreatedAt)
	})
	if opts.Offset > 0 {
		if opts.Offset >= len(bets) {
			return nil, nil
		}
		bets = bets[opts.Offset:]
	}
	if opts.Limit > 0 && len(bets) > opts.Limit {
		bets = bets[:opts.Limit]
	}
	return bets, nil
}

func (s *betStore) ListByMarketAndUser(_ context.Context, marketID, userID string) ([]domain.Bet, error) {
	defer s.l.lock()()
	var bets []domain.Bet
	for _, b := range s.l.st.bets {
		if b.MarketID == marketID && b.UserID == userID {
			bets = append(bets, b)
		}
	}
	sort.Slice(bets, func(i, j int) bool {
		return bets[i].CreatedAt.After(bets[j].CreatedAt)
	})
	return bets, nil
}

func (s *betStore) ExistsRequest(_ context.Context, userID, requestID string) (bool, error) {
	defer s.l.lock()()
	for _, b := range s.l.st.bets {
		if b.UserID == userID && b.RequestID == requestID {
			return true, nil
		}
	}
	return false, nil
}

func (s *betStore) DeleteByMarket(_ context.Context, marketID string) error {
	defer s.l.lock()()
	for id, b := range s.l.st.bets {
		if b.MarketID == marketID {
			delete(s.l.st.bets, id)
		}
	}
	return nil
}

func (s *betStore) StatsByUser(_ context.Context, userID string) (domain.UserStats, error) {
	defer s.l.lock()()
	var st domain.UserStats
	for _, b := range s.l.st.bets {
		if b.UserID != userID {
			continue
		}
		st.TotalBets++
		st.PointsStaked += b.Points
		m, ok := s.l.st.markets[b.MarketID]
		if !ok || m.Status != domain.MarketStatusResolved {
			continue
		}
		st.ResolvedBets++
		if m.ResolvedOutcome != nil && *m.ResolvedOutcome == b.Side {
			st.WinningBets++
		}
	}
	if st.ResolvedBets > 0 {
		st.Accuracy = float64(st.WinningBets) / float64(st.ResolvedBets) * 100
	}
	return st, nil
}

// ---------------------------------------------------------------------------
// Pools
// ---------------------------------------------------------------------------

type poolStore struct{ l *Ledger }

func (s *poolStore) Init(_ context.Context, marketID string) error {
	defer s.l.lock()()
	if _, ok := s.l.st.pools[marketID]; !ok {
		s.l.st.pools[marketID] = domain.Pool{MarketID: marketID}
	}
	return nil
}

func (s *poolStore) Get(_ context.Context, marketID string) (domain.Pool, error) {
	defer s.l.lock()()
	p, ok := s.l.st.pools[marketID]
	if !ok {
		return domain.Pool{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *poolStore) GetMany(_ context.Context, marketIDs []string) (map[string]domain.Pool, error) {
	defer s.l.lock()()
	pools := make(map[string]domain.Pool, len(marketIDs))
	for _, id := range marketIDs {
		if p, ok := s.l.st.pools[id]; ok {
			pools[id] = p
		}
	}
	return pools, nil
}

func (s *poolStore) recompute(marketID string) domain.Pool {
	p := domain.Pool{MarketID: marketID}
	participants := make(map[string]struct{})
	for _, b := range s.l.st.bets {
		if b.MarketID != marketID {
			continue
		}
		if b.Side == domain.SideYes {
			p.YesPool += b.Points
		} else {
			p.NoPool += b.Points
		}
		p.BetCount++
		participants[b.UserID] = struct{}{}
	}
	p.TotalPool = p.YesPool + p.NoPool
	p.ParticipantCount = int64(len(participants))
	return p
}

func (s *poolStore) Refresh(_ context.Context, marketID string) (domain.Pool, error) {
	defer s.l.lock()()
	p := s.recompute(marketID)
	s.l.st.pools[marketID] = p
	return p, nil
}

func (s *poolStore) Recompute(_ context.Context, marketID string) (domain.Pool, error) {
	defer s.l.lock()()
	return s.recompute(marketID), nil
}

func (s *poolStore) Delete(_ context.Context, marketID string) error {
	defer s.l.lock()()
	delete(s.l.st.pools, marketID)
	return nil
}

// ---------------------------------------------------------------------------
// Transactions and resolutions
// ---------------------------------------------------------------------------

type transactionStore struct{ l *Ledger }

func (s *transactionStore) Append(_ context.Context, tx domain.Transaction) error {
	defer s.l.lock()()
	tx.ID = s.l.st.nextTxID
	s.l.st.nextTxID++
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	s.l.st.txs = append(s.l.st.txs, tx)
	return nil
}

func (s *transactionStore) ListByUser(_ context.Context, userID string, opts domain.ListOpts) ([]domain.Transaction, error) {
	defer s.l.lock()()
	var txs []domain.Transaction
	for _, tx := range s.l.st.txs {
		if tx.UserID == userID {
			txs = append(txs, tx)
		}
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(txs) {
			return nil, nil
		}
		txs = txs[opts.Offset:]
	}
	if opts.Limit > 0 && len(txs) > opts.Limit {
		txs = txs[:opts.Limit]
	}
	return txs, nil
}

type resolutionStore struct{ l *Ledger }

func (s *resolutionStore) Create(_ context.Context, r domain.Resolution) error {
	defer s.l.lock()()
	s.l.st.resolutions[r.MarketID] = r
	return nil
}

func (s *resolutionStore) GetByMarket(_ context.Context, marketID string) (domain.Resolution, error) {
	defer s.l.lock()()
	r, ok := s.l.st.resolutions[marketID]
	if !ok {
		return domain.Resolution{}, domain.ErrNotFound
	}
	return r, nil
}

// Compile-time interface check.
var _ domain.Ledger = (*Ledger)(nil)
