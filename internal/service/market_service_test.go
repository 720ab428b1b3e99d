package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
)

func newTestMarketService(ledger domain.Ledger) *MarketService {
	return NewMarketService(ledger, nil, nil, testAdmins, testLogger())
}

func validCreateParams() CreateMarketParams {
	return CreateMarketParams{
		Title:     "Will Spain win the next World Cup?",
		Category:  "Deportes",
		CloseDate: time.Now().UTC().Add(48 * time.Hour),
	}
}

func TestCreateMarket(t *testing.T) {
	ledger := newLedger()
	svc := newTestMarketService(ledger)

	p := validCreateParams()
	p.Description = "  decided by the final whistle  "
	market, err := svc.Create(context.Background(), aliceIdentity, p)
	require.NoError(t, err)

	assert.NotEmpty(t, market.ID)
	assert.Equal(t, "alice", market.CreatorID)
	assert.Equal(t, domain.MarketStatusOpen, market.Status)
	assert.Equal(t, "decided by the final whistle", market.Description)

	// The empty pool row exists from the start.
	pool, err := ledger.Pools().Get(context.Background(), market.ID)
	require.NoError(t, err)
	assert.Zero(t, pool.TotalPool)
}

func TestCreateMarketValidation(t *testing.T) {
	ledger := newLedger()
	svc := newTestMarketService(ledger)

	short := validCreateParams()
	short.Title = "too short"

	badCategory := validCreateParams()
	badCategory.Category = "Astrología"

	past := validCreateParams()
	past.CloseDate = time.Now().UTC().Add(-time.Hour)

	for name, p := range map[string]CreateMarketParams{
		"short title":  short,
		"bad category": badCategory,
		"past close":   past,
	} {
		_, err := svc.Create(context.Background(), aliceIdentity, p)
		assert.ErrorIs(t, err, domain.ErrInvalidRequest, name)
	}
}

func TestCreateMarketRateLimit(t *testing.T) {
	ledger := newLedger()
	// No redis limiter wired: the store count decides.
	svc := newTestMarketService(ledger)

	for i := 0; i < 5; i++ {
		p := validCreateParams()
		p.Title = fmt.Sprintf("Will benchmark number %d close green today?", i)
		_, err := svc.Create(context.Background(), aliceIdentity, p)
		require.NoError(t, err)
	}

	_, err := svc.Create(context.Background(), aliceIdentity, validCreateParams())
	assert.ErrorIs(t, err, domain.ErrRateLimited)

	// A different creator is not throttled.
	_, err = svc.Create(context.Background(), domain.Identity{UserID: "bob", Email: "bob@example.com"}, validCreateParams())
	assert.NoError(t, err)
}

// denyLimiter always rejects; errLimiter always fails.
type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, nil
}

type errLimiter struct{}

func (errLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, fmt.Errorf("connection refused")
}

func TestCreateMarketLimiterDenies(t *testing.T) {
	ledger := newLedger()
	svc := NewMarketService(ledger, nil, denyLimiter{}, testAdmins, testLogger())

	_, err := svc.Create(context.Background(), aliceIdentity, validCreateParams())
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestCreateMarketLimiterFailureFallsBack(t *testing.T) {
	ledger := newLedger()
	// The limiter erroring must not block creation while the store count is
	// under the cap.
	svc := NewMarketService(ledger, nil, errLimiter{}, testAdmins, testLogger())

	_, err := svc.Create(context.Background(), aliceIdentity, validCreateParams())
	assert.NoError(t, err)
}

func TestGetMarket(t *testing.T) {
	ledger := newLedger()
	seedUser(t, ledger, "alice", 100)
	market := seedOpenMarket(t, ledger)
	placeBet(t, newTestBetService(ledger), ledger, "alice", market.ID, domain.SideYes, 10)

	svc := newTestMarketService(ledger)
	view, err := svc.Get(context.Background(), market.ID)
	require.NoError(t, err)
	assert.Equal(t, market.ID, view.Market.ID)
	assert.Equal(t, int64(10), view.Pool.YesPool)

	_, err = svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListMarkets(t *testing.T) {
	ledger := newLedger()
	open := seedOpenMarket(t, ledger)
	seedMarket(t, ledger, domain.MarketStatusClosed, time.Now().UTC().Add(-time.Hour))

	svc := newTestMarketService(ledger)
	views, err := svc.List(context.Background(),
		domain.MarketFilter{Statuses: []domain.MarketStatus{domain.MarketStatusOpen}},
		domain.ListOpts{Limit: 10},
	)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, open.ID, views[0].Market.ID)
}

func TestVerifyPool(t *testing.T) {
	ledger := newLedger()
	seedUser(t, ledger, "alice", 100)
	market := seedOpenMarket(t, ledger)
	placeBet(t, newTestBetService(ledger), ledger, "alice", market.ID, domain.SideYes, 10)

	svc := newTestMarketService(ledger)
	check, err := svc.VerifyPool(context.Background(), market.ID)
	require.NoError(t, err)
	assert.True(t, check.Consistent)
	assert.Equal(t, check.Stored, check.Recomputed)
}

func TestDeleteMarket(t *testing.T) {
	ledger := newLedger()
	seedUser(t, ledger, "alice", 100)
	market := seedOpenMarket(t, ledger)
	placeBet(t, newTestBetService(ledger), ledger, "alice", market.ID, domain.SideYes, 10)

	svc := newTestMarketService(ledger)
	require.NoError(t, svc.Delete(context.Background(), adminIdentity, market.ID))

	_, err := ledger.Markets().GetByID(context.Background(), market.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	bets, err := ledger.Bets().ListByMarket(context.Background(), market.ID)
	require.NoError(t, err)
	assert.Empty(t, bets)

	// The ledger keeps the history: deletion does not refund stakes.
	txs, err := ledger.Transactions().ListByUser(context.Background(), "alice", domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, txs, 2)
	user, err := ledger.Users().GetByID(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(90), user.Points)
}

func TestDeleteMarketRequiresAdmin(t *testing.T) {
	ledger := newLedger()
	market := seedOpenMarket(t, ledger)

	svc := newTestMarketService(ledger)
	err := svc.Delete(context.Background(), aliceIdentity, market.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = ledger.Markets().GetByID(context.Background(), market.ID)
	assert.NoError(t, err)
}
