package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
)

func TestWithinTxRollsBackOnError(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()

	require.NoError(t, ledger.Users().Create(ctx, domain.User{ID: "alice", Points: 100}))

	boom := errors.New("boom")
	err := ledger.WithinTx(ctx, func(tx domain.Ledger) error {
		require.NoError(t, tx.Users().UpdatePoints(ctx, "alice", 10))
		require.NoError(t, tx.Bets().Create(ctx, domain.Bet{ID: "b1", MarketID: "m1", UserID: "alice"}))
		require.NoError(t, tx.Transactions().Append(ctx, domain.Transaction{UserID: "alice", Amount: -90}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	user, err := ledger.Users().GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), user.Points)

	_, err = ledger.Bets().GetByID(ctx, "b1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	txs, err := ledger.Transactions().ListByUser(ctx, "alice", domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestWithinTxCommits(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()

	err := ledger.WithinTx(ctx, func(tx domain.Ledger) error {
		return tx.Users().Create(ctx, domain.User{ID: "alice", Points: 100})
	})
	require.NoError(t, err)

	_, err = ledger.Users().GetByID(ctx, "alice")
	assert.NoError(t, err)
}

func TestWithinTxNested(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()

	// A nested call joins the outer transaction instead of deadlocking.
	err := ledger.WithinTx(ctx, func(tx domain.Ledger) error {
		return tx.WithinTx(ctx, func(inner domain.Ledger) error {
			return inner.Users().Create(ctx, domain.User{ID: "alice"})
		})
	})
	require.NoError(t, err)

	_, err = ledger.Users().GetByID(ctx, "alice")
	assert.NoError(t, err)
}

func TestPoolRefreshMatchesBets(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()

	require.NoError(t, ledger.Pools().Init(ctx, "m1"))
	require.NoError(t, ledger.Bets().Create(ctx, domain.Bet{ID: "b1", MarketID: "m1", UserID: "u1", Side: domain.SideYes, Points: 30}))
	require.NoError(t, ledger.Bets().Create(ctx, domain.Bet{ID: "b2", MarketID: "m1", UserID: "u2", Side: domain.SideNo, Points: 70}))
	require.NoError(t, ledger.Bets().Create(ctx, domain.Bet{ID: "b3", MarketID: "m2", UserID: "u1", Side: domain.SideYes, Points: 5}))

	pool, err := ledger.Pools().Refresh(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), pool.YesPool)
	assert.Equal(t, int64(70), pool.NoPool)
	assert.Equal(t, int64(100), pool.TotalPool)
	assert.Equal(t, int64(2), pool.BetCount)
	assert.Equal(t, int64(2), pool.ParticipantCount)

	stored, err := ledger.Pools().Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, pool, stored)
}

func TestCloseExpiredBoundary(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, ledger.Markets().Create(ctx, domain.Market{
		ID: "exact", Status: domain.MarketStatusOpen, CloseDate: now,
	}))
	require.NoError(t, ledger.Markets().Create(ctx, domain.Market{
		ID: "future", Status: domain.MarketStatusOpen, CloseDate: now.Add(time.Second),
	}))

	// A close date equal to now counts as expired.
	n, err := ledger.Markets().CloseExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	m, err := ledger.Markets().GetByID(ctx, "exact")
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusClosed, m.Status)
}

func TestTransactionIDsAreMonotonic(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, ledger.Transactions().Append(ctx, domain.Transaction{UserID: "u", Amount: 1}))
	}
	txs, err := ledger.Transactions().ListByUser(ctx, "u", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, int64(1), txs[0].ID)
	assert.Equal(t, int64(2), txs[1].ID)
	assert.Equal(t, int64(3), txs[2].ID)
}

func TestListByUserPagination(t *testing.T) {
	ledger := NewLedger()
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, ledger.Bets().Create(ctx, domain.Bet{
			ID:        string(rune('a' + i)),
			MarketID:  "m1",
			UserID:    "alice",
			Side:      domain.SideYes,
			Points:    int64(i + 1),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
		require.NoError(t, ledger.Transactions().Append(ctx, domain.Transaction{
			UserID: "alice",
			Type:   domain.TxBet,
			Amount: int64(-(i + 1)),
		}))
	}

	// Bets are newest first; offset skips from the top.
	bets, err := ledger.Bets().ListByUser(ctx, "alice", domain.ListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, bets, 2)
	assert.Equal(t, "d", bets[0].ID)
	assert.Equal(t, "c", bets[1].ID)

	bets, err = ledger.Bets().ListByUser(ctx, "alice", domain.ListOpts{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, bets)

	// Transactions are oldest first, same offset-then-limit order.
	txs, err := ledger.Transactions().ListByUser(ctx, "alice", domain.ListOpts{Limit: 2, Offset: 3})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(-4), txs[0].Amount)
	assert.Equal(t, int64(-5), txs[1].Amount)
}
