package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
)

const (
	sweepLockKey = "market_sweep"
	sweepLockTTL = time.Minute
)

// LifecycleService flips markets past their deadline from open to closed.
type LifecycleService struct {
	ledger domain.Ledger
	locks  domain.LockManager
	logger *slog.Logger
}

// NewLifecycleService creates a LifecycleService. The lock manager is
// optional; without one, sweeps run unguarded. That is safe because the
// close is a single idempotent statement, the lock only avoids wasted work
// when several instances sweep at once.
func NewLifecycleService(ledger domain.Ledger, locks domain.LockManager, logger *slog.Logger) *LifecycleService {
	return &LifecycleService{ledger: ledger, locks: locks, logger: logger}
}

// CloseExpired closes every open market whose close date has passed and
// returns the number of markets affected. Running it twice is harmless.
func (s *LifecycleService) CloseExpired(ctx context.Context) (int64, error) {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, sweepLockKey, sweepLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				s.logger.DebugContext(ctx, "lifecycle_service: sweep already running elsewhere")
				return 0, nil
			}
			s.logger.WarnContext(ctx, "lifecycle_service: lock unavailable, sweeping unguarded",
				slog.String("error", err.Error()),
			)
		} else {
			defer unlock()
		}
	}

	n, err := s.ledger.Markets().CloseExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("lifecycle_service: close expired: %w", err)
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "lifecycle_service: markets closed", slog.Int64("count", n))
	}
	return n, nil
}

// RunLoop sweeps on the given interval until ctx is cancelled.
func (s *LifecycleService) RunLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "lifecycle_service: sweep loop started",
		slog.Duration("interval", interval),
	)
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "lifecycle_service: sweep loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.CloseExpired(ctx); err != nil {
				s.logger.ErrorContext(ctx, "lifecycle_service: sweep failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
