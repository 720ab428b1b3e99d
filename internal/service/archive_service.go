package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
)

// marketArchive is the JSON snapshot written for a resolved market.
type marketArchive struct {
	Market     domain.Market     `json:"market"`
	Pool       domain.Pool       `json:"pool"`
	Resolution domain.Resolution `json:"resolution"`
	Bets       []domain.Bet      `json:"bets"`
	ArchivedAt time.Time         `json:"archived_at"`
}

// ArchiveService writes snapshots of resolved markets to cold storage so the
// hot store can eventually drop them.
type ArchiveService struct {
	ledger domain.Ledger
	blobs  domain.BlobWriter
	logger *slog.Logger
}

// NewArchiveService creates an ArchiveService.
func NewArchiveService(ledger domain.Ledger, blobs domain.BlobWriter, logger *slog.Logger) *ArchiveService {
	return &ArchiveService{ledger: ledger, blobs: blobs, logger: logger}
}

// ArchiveResolved snapshots one resolved market to
// markets/<yyyy>/<mm>/<id>.json. Archiving twice overwrites the
// same object.
func (s *ArchiveService) ArchiveResolved(ctx context.Context, marketID string) error {
	market, err := s.ledger.Markets().GetByID(ctx, marketID)
	if err != nil {
		return fmt.Errorf("archive_service: load market: %w", err)
	}
	if market.Status != domain.MarketStatusResolved {
		return fmt.Errorf("archive_service: market %s not resolved: %w", marketID, domain.ErrInvalidState)
	}

	pool, err := s.ledger.Pools().Get(ctx, marketID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("archive_service: load pool: %w", err)
	}
	resolution, err := s.ledger.Resolutions().GetByMarket(ctx, marketID)
	if err != nil {
		return fmt.Errorf("archive_service: load resolution: %w", err)
	}
	bets, err := s.ledger.Bets().ListByMarket(ctx, marketID)
	if err != nil {
		return fmt.Errorf("archive_service: list bets: %w", err)
	}

	now := time.Now().UTC()
	snapshot, err := json.MarshalIndent(marketArchive{
		Market:     market,
		Pool:       pool,
		Resolution: resolution,
		Bets:       bets,
		ArchivedAt: now,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("archive_service: encode snapshot: %w", err)
	}

	key := fmt.Sprintf("markets/%04d/%02d/%s.json",
		resolution.CreatedAt.Year(), resolution.CreatedAt.Month(), marketID)
	if err := s.blobs.Put(ctx, key, bytes.NewReader(snapshot), "application/json"); err != nil {
		return fmt.Errorf("archive_service: write snapshot: %w", err)
	}

	s.logger.InfoContext(ctx, "archive_service: market archived",
		slog.String("market_id", marketID),
		slog.String("key", key),
		slog.Int("bytes", len(snapshot)),
	)
	return nil
}

// RunCron archives every resolved market that has a resolution record, on
// the given interval, until ctx is cancelled. It is a catch-up for markets
// whose inline archive after resolution failed.
func (s *ArchiveService) RunCron(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "archive_service: cron started",
		slog.Duration("interval", interval),
	)
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "archive_service: cron stopped")
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ArchiveService) sweep(ctx context.Context) {
	markets, err := s.ledger.Markets().List(ctx, domain.MarketFilter{
		Statuses: []domain.MarketStatus{domain.MarketStatusResolved},
	}, domain.ListOpts{Limit: 100})
	if err != nil {
		s.logger.ErrorContext(ctx, "archive_service: list resolved markets failed",
			slog.String("error", err.Error()),
		)
		return
	}
	for _, m := range markets {
		if err := s.ArchiveResolved(ctx, m.ID); err != nil {
			s.logger.WarnContext(ctx, "archive_service: archive failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
