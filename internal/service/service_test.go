package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
	"github.com/Pablito-AI/playmark-mvp/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// staticAdmins treats the listed emails as administrators.
type staticAdmins map[string]bool

func (a staticAdmins) IsAdmin(email string) bool { return a[email] }

var testAdmins = staticAdmins{"admin@example.com": true}

var (
	adminIdentity = domain.Identity{UserID: "admin-1", Email: "admin@example.com"}
	aliceIdentity = domain.Identity{UserID: "alice", Email: "alice@example.com"}
)

func seedUser(t *testing.T, ledger domain.Ledger, id string, points int64) domain.User {
	t.Helper()
	u := domain.User{
		ID:          id,
		Email:       id + "@example.com",
		DisplayName: id,
		Points:      points,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, ledger.Users().Create(context.Background(), u))
	require.NoError(t, ledger.Transactions().Append(context.Background(), domain.Transaction{
		UserID:       id,
		Type:         domain.TxInitial,
		Amount:       points,
		BalanceAfter: points,
		Description:  "starting balance",
	}))
	return u
}

func seedMarket(t *testing.T, ledger domain.Ledger, status domain.MarketStatus, closeDate time.Time) domain.Market {
	t.Helper()
	m := domain.Market{
		ID:        uuid.New().String(),
		CreatorID: "creator",
		Title:     "Will it rain in Madrid tomorrow?",
		Category:  "Sociedad",
		CloseDate: closeDate,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, ledger.Markets().Create(context.Background(), m))
	require.NoError(t, ledger.Pools().Init(context.Background(), m.ID))
	return m
}

func seedOpenMarket(t *testing.T, ledger domain.Ledger) domain.Market {
	t.Helper()
	return seedMarket(t, ledger, domain.MarketStatusOpen, time.Now().UTC().Add(24*time.Hour))
}

func newTestBetService(ledger domain.Ledger) *BetService {
	return NewBetService(ledger, nil, nil, nil, testLogger())
}

func placeBet(t *testing.T, svc *BetService, ledger domain.Ledger, userID, marketID string, side domain.Side, points int64) BetReceipt {
	t.Helper()
	r, err := svc.PlaceBet(context.Background(), userID, PlaceBetParams{
		MarketID: marketID,
		Side:     side,
		Points:   points,
	})
	require.NoError(t, err)
	return r
}

func newLedger() *memory.Ledger {
	return memory.NewLedger()
}
