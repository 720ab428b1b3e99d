package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
)

func newTestResolveService(ledger domain.Ledger) *ResolveService {
	return NewResolveService(ledger, testAdmins, nil, nil, nil, nil, nil, testLogger())
}

func TestResolve(t *testing.T) {
	ledger := newLedger()
	seedUser(t, ledger, "alice", 500)
	seedUser(t, ledger, "bob", 500)
	seedUser(t, ledger, "carol", 3500)
	market := seedOpenMarket(t, ledger)

	bets := newTestBetService(ledger)
	placeBet(t, bets, ledger, "alice", market.ID, domain.SideYes, 100)
	placeBet(t, bets, ledger, "bob", market.ID, domain.SideYes, 100)
	placeBet(t, bets, ledger, "carol", market.ID, domain.SideNo, 700)

	svc := newTestResolveService(ledger)
	result, err := svc.Resolve(context.Background(), adminIdentity, market.ID, domain.SideYes, "final score confirmed")
	require.NoError(t, err)

	assert.Equal(t, domain.MarketStatusResolved, result.Market.Status)
	assert.False(t, result.Refunded)
	require.Len(t, result.Payouts, 2)
	// Each winner staked 100 into a pool of 900 with 200 on the winning side:
	// floor(100 * 900 / 200) = 450.
	assert.Equal(t, int64(450), result.Payouts[0].Points)
	assert.Equal(t, int64(450), result.Payouts[1].Points)
	assert.Equal(t, int64(900), result.PaidPoints)

	alice, err := ledger.Users().GetByID(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(850), alice.Points)

	carol, err := ledger.Users().GetByID(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, int64(2800), carol.Points)

	txs, err := ledger.Transactions().ListByUser(context.Background(), "alice", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, domain.TxPayout, txs[2].Type)
	assert.Equal(t, int64(450), txs[2].Amount)

	resolution, err := ledger.Resolutions().GetByMarket(context.Background(), market.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SideYes, resolution.Outcome)
	assert.Equal(t, "admin-1", resolution.ResolverID)
	assert.Equal(t, "final score confirmed", resolution.Notes)
}

func TestResolveTwice(t *testing.T) {
	ledger := newLedger()
	seedUser(t, ledger, "alice", 100)
	market := seedOpenMarket(t, ledger)
	placeBet(t, newTestBetService(ledger), ledger, "alice", market.ID, domain.SideYes, 10)

	svc := newTestResolveService(ledger)
	_, err := svc.Resolve(context.Background(), adminIdentity, market.ID, domain.SideYes, "")
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), adminIdentity, market.ID, domain.SideNo, "")
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)

	// The second attempt paid nobody.
	alice, err := ledger.Users().GetByID(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), alice.Points)
}

func TestResolveEmptyWinningSideRefunds(t *testing.T) {
	ledger := newLedger()
	seedUser(t, ledger, "alice", 100)
	seedUser(t, ledger, "bob", 100)
	market := seedOpenMarket(t, ledger)

	bets := newTestBetService(ledger)
	placeBet(t, bets, ledger, "alice", market.ID, domain.SideNo, 20)
	placeBet(t, bets, ledger, "bob", market.ID, domain.SideNo, 10)

	svc := newTestResolveService(ledger)
	result, err := svc.Resolve(context.Background(), adminIdentity, market.ID, domain.SideYes, "")
	require.NoError(t, err)

	assert.True(t, result.Refunded)
	assert.Empty(t, result.Payouts)

	for _, id := range []string{"alice", "bob"} {
		user, err := ledger.Users().GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, int64(100), user.Points, id)

		txs, err := ledger.Transactions().ListByUser(context.Background(), id, domain.ListOpts{})
		require.NoError(t, err)
		require.Len(t, txs, 3)
		assert.Equal(t, domain.TxRefund, txs[2].Type)
	}
}

func TestResolveNoBets(t *testing.T) {
	ledger := newLedger()
	market := seedOpenMarket(t, ledger)

	svc := newTestResolveService(ledger)
	result, err := svc.Resolve(context.Background(), adminIdentity, market.ID, domain.SideNo, "")
	require.NoError(t, err)
	assert.Empty(t, result.Payouts)
	assert.False(t, result.Refunded)
	assert.Equal(t, domain.MarketStatusResolved, result.Market.Status)
}

func TestResolveRequiresAdmin(t *testing.T) {
	ledger := newLedger()
	market := seedOpenMarket(t, ledger)

	svc := newTestResolveService(ledger)
	_, err := svc.Resolve(context.Background(), aliceIdentity, market.ID, domain.SideYes, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestResolveInvalidOutcome(t *testing.T) {
	ledger := newLedger()
	market := seedOpenMarket(t, ledger)

	svc := newTestResolveService(ledger)
	_, err := svc.Resolve(context.Background(), adminIdentity, market.ID, "maybe", "")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestResolveClosedMarket(t *testing.T) {
	ledger := newLedger()
	seedUser(t, ledger, "alice", 100)
	market := seedOpenMarket(t, ledger)
	placeBet(t, newTestBetService(ledger), ledger, "alice", market.ID, domain.SideYes, 10)
	require.NoError(t, ledger.Markets().SetStatus(context.Background(), market.ID, domain.MarketStatusClosed))

	svc := newTestResolveService(ledger)
	result, err := svc.Resolve(context.Background(), adminIdentity, market.ID, domain.SideYes, "")
	require.NoError(t, err)
	require.Len(t, result.Payouts, 1)
	assert.Equal(t, int64(10), result.Payouts[0].Points)
}

// recordingBoard captures leaderboard updates keyed by user.
type recordingBoard struct {
	updates map[string]int64
}

func newRecordingBoard() *recordingBoard {
	return &recordingBoard{updates: make(map[string]int64)}
}

func (b *recordingBoard) Update(_ context.Context, userID string, points int64) error {
	b.updates[userID] = points
	return nil
}

func (b *recordingBoard) Top(context.Context, int) ([]domain.LeaderboardEntry, error) {
	return nil, nil
}

func (b *recordingBoard) Rebuild(context.Context, []domain.LeaderboardEntry) error { return nil }

func TestResolveUpdatesLeaderboardForWinners(t *testing.T) {
	ledger := newLedger()
	seedUser(t, ledger, "alice", 100)
	seedUser(t, ledger, "bob", 100)
	market := seedOpenMarket(t, ledger)

	bets := newTestBetService(ledger)
	placeBet(t, bets, ledger, "alice", market.ID, domain.SideYes, 20)
	placeBet(t, bets, ledger, "bob", market.ID, domain.SideNo, 10)

	board := newRecordingBoard()
	svc := NewResolveService(ledger, testAdmins, nil, board, nil, nil, nil, testLogger())
	_, err := svc.Resolve(context.Background(), adminIdentity, market.ID, domain.SideYes, "")
	require.NoError(t, err)

	// Alice staked 20, won floor(20*30/20) = 30.
	assert.Equal(t, int64(110), board.updates["alice"])
	_, ok := board.updates["bob"]
	assert.False(t, ok, "losers keep their score until their next bet")
}

func TestResolveUpdatesLeaderboardForRefunds(t *testing.T) {
	ledger := newLedger()
	seedUser(t, ledger, "alice", 100)
	seedUser(t, ledger, "bob", 100)
	market := seedOpenMarket(t, ledger)

	bets := newTestBetService(ledger)
	placeBet(t, bets, ledger, "alice", market.ID, domain.SideNo, 20)
	placeBet(t, bets, ledger, "bob", market.ID, domain.SideNo, 10)

	board := newRecordingBoard()
	svc := NewResolveService(ledger, testAdmins, nil, board, nil, nil, nil, testLogger())
	result, err := svc.Resolve(context.Background(), adminIdentity, market.ID, domain.SideYes, "")
	require.NoError(t, err)
	require.True(t, result.Refunded)

	// Refunded balances are back at 100 and must reach the board too.
	assert.Equal(t, int64(100), board.updates["alice"])
	assert.Equal(t, int64(100), board.updates["bob"])
}
