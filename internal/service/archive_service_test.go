package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
)

// memBlobs collects written objects keyed by path.
type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: make(map[string][]byte)}
}

func (b *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[path] = raw
	return nil
}

func TestArchiveResolved(t *testing.T) {
	ledger := newLedger()
	seedUser(t, ledger, "alice", 100)
	market := seedOpenMarket(t, ledger)
	placeBet(t, newTestBetService(ledger), ledger, "alice", market.ID, domain.SideYes, 10)

	_, err := newTestResolveService(ledger).Resolve(context.Background(), adminIdentity, market.ID, domain.SideYes, "")
	require.NoError(t, err)

	blobs := newMemBlobs()
	svc := NewArchiveService(ledger, blobs, testLogger())
	require.NoError(t, svc.ArchiveResolved(context.Background(), market.ID))

	resolution, err := ledger.Resolutions().GetByMarket(context.Background(), market.ID)
	require.NoError(t, err)
	key := fmt.Sprintf("markets/%04d/%02d/%s.json",
		resolution.CreatedAt.Year(), resolution.CreatedAt.Month(), market.ID)

	raw, ok := blobs.objects[key]
	require.True(t, ok, "snapshot object missing, have %v", blobs.objects)

	var snapshot struct {
		Market     domain.Market     `json:"market"`
		Resolution domain.Resolution `json:"resolution"`
		Bets       []domain.Bet      `json:"bets"`
	}
	require.NoError(t, json.Unmarshal(raw, &snapshot))
	assert.Equal(t, market.ID, snapshot.Market.ID)
	assert.Equal(t, domain.SideYes, snapshot.Resolution.Outcome)
	assert.Len(t, snapshot.Bets, 1)
}

func TestArchiveResolvedRequiresResolvedMarket(t *testing.T) {
	ledger := newLedger()
	market := seedOpenMarket(t, ledger)

	svc := NewArchiveService(ledger, newMemBlobs(), testLogger())
	err := svc.ArchiveResolved(context.Background(), market.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}
