package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
)

const (
	// createLimit caps market creation per creator inside createWindow.
	createLimit  = 5
	createWindow = time.Hour

	minTitleLen = 10
	maxTitleLen = 200
)

// CreateMarketParams describes a new market.
type CreateMarketParams struct {
	Title       string
	Description string
	Category    string
	SourceLink  string
	CloseDate   time.Time
}

// MarketView is a market together with its pool aggregate.
type MarketView struct {
	Market domain.Market `json:"market"`
	Pool   domain.Pool   `json:"pool"`
}

// PoolCheck is the result of verifying a stored pool against bet rows.
type PoolCheck struct {
	Stored     domain.Pool `json:"stored"`
	Recomputed domain.Pool `json:"recomputed"`
	Consistent bool        `json:"consistent"`
}

// MarketService creates, lists, and administers markets.
type MarketService struct {
	ledger  domain.Ledger
	pools   domain.PoolCache
	limiter domain.RateLimiter
	admins  domain.AdminPolicy
	logger  *slog.Logger
}

// NewMarketService creates a MarketService. The pool cache and rate limiter
// are optional; without a limiter, creation throttling falls back to counting
// recent rows in the store.
func NewMarketService(
	ledger domain.Ledger,
	pools domain.PoolCache,
	limiter domain.RateLimiter,
	admins domain.AdminPolicy,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		ledger:  ledger,
		pools:   pools,
		limiter: limiter,
		admins:  admins,
		logger:  logger,
	}
}

// Create validates and persists a new open market with an empty pool row.
func (s *MarketService) Create(ctx context.Context, caller domain.Identity, p CreateMarketParams) (domain.Market, error) {
	title := strings.TrimSpace(p.Title)
	if n := len(title); n < minTitleLen || n > maxTitleLen {
		return domain.Market{}, fmt.Errorf("market_service: title length %d: %w", n, domain.ErrInvalidRequest)
	}
	if !domain.ValidCategory(p.Category) {
		return domain.Market{}, fmt.Errorf("market_service: category %q: %w", p.Category, domain.ErrInvalidRequest)
	}
	now := time.Now().UTC()
	if !p.CloseDate.After(now) {
		return domain.Market{}, fmt.Errorf("market_service: close date in the past: %w", domain.ErrInvalidRequest)
	}

	if err := s.checkCreateLimit(ctx, caller.UserID, now); err != nil {
		return domain.Market{}, err
	}

	market := domain.Market{
		ID:          uuid.New().String(),
		CreatorID:   caller.UserID,
		Title:       title,
		Description: strings.TrimSpace(p.Description),
		Category:    p.Category,
		SourceLink:  strings.TrimSpace(p.SourceLink),
		CloseDate:   p.CloseDate.UTC(),
		Status:      domain.MarketStatusOpen,
		CreatedAt:   now,
	}

	err := s.ledger.WithinTx(ctx, func(tx domain.Ledger) error {
		if err := tx.Markets().Create(ctx, market); err != nil {
			return fmt.Errorf("market_service: create market: %w", err)
		}
		if err := tx.Pools().Init(ctx, market.ID); err != nil {
			return fmt.Errorf("market_service: init pool: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Market{}, err
	}

	s.logger.InfoContext(ctx, "market_service: market created",
		slog.String("market_id", market.ID),
		slog.String("creator_id", caller.UserID),
		slog.String("category", market.Category),
	)
	return market, nil
}

// checkCreateLimit enforces the per-creator creation throttle. The redis
// sliding window is preferred; when it is absent or failing, the store count
// over the same window decides.
func (s *MarketService) checkCreateLimit(ctx context.Context, creatorID string, now time.Time) error {
	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, "market_create:"+creatorID, createLimit, createWindow)
		if err == nil {
			if !ok {
				return fmt.Errorf("market_service: creation limit reached: %w", domain.ErrRateLimited)
			}
			return nil
		}
		s.logger.WarnContext(ctx, "market_service: rate limiter unavailable, using store count",
			slog.String("error", err.Error()),
		)
	}
	n, err := s.ledger.Markets().CountRecentByCreator(ctx, creatorID, now.Add(-createWindow))
	if err != nil {
		return fmt.Errorf("market_service: count recent markets: %w", err)
	}
	if n >= createLimit {
		return fmt.Errorf("market_service: creation limit reached: %w", domain.ErrRateLimited)
	}
	return nil
}

// Get returns one market with its pool. The pool cache is consulted first.
func (s *MarketService) Get(ctx context.Context, marketID string) (MarketView, error) {
	market, err := s.ledger.Markets().GetByID(ctx, marketID)
	if err != nil {
		return MarketView{}, fmt.Errorf("market_service: load market: %w", err)
	}
	if s.pools != nil {
		if pool, err := s.pools.Get(ctx, marketID); err == nil {
			return MarketView{Market: market, Pool: pool}, nil
		}
	}
	pool, err := s.ledger.Pools().Get(ctx, marketID)
	if err != nil {
		return MarketView{}, fmt.Errorf("market_service: load pool: %w", err)
	}
	return MarketView{Market: market, Pool: pool}, nil
}

// List returns markets matching the filter with their pools attached.
func (s *MarketService) List(ctx context.Context, f domain.MarketFilter, opts domain.ListOpts) ([]MarketView, error) {
	markets, err := s.ledger.Markets().List(ctx, f, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list markets: %w", err)
	}
	ids := make([]string, len(markets))
	for i, m := range markets {
		ids[i] = m.ID
	}
	pools, err := s.ledger.Pools().GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("market_service: load pools: %w", err)
	}
	views := make([]MarketView, len(markets))
	for i, m := range markets {
		views[i] = MarketView{Market: m, Pool: pools[m.ID]}
	}
	return views, nil
}

// VerifyPool recomputes the aggregate from bet rows and compares it to the
// stored row.
func (s *MarketService) VerifyPool(ctx context.Context, marketID string) (PoolCheck, error) {
	var check PoolCheck
	err := s.ledger.WithinTx(ctx, func(tx domain.Ledger) error {
		stored, err := tx.Pools().Get(ctx, marketID)
		if err != nil {
			return fmt.Errorf("market_service: load pool: %w", err)
		}
		recomputed, err := tx.Pools().Recompute(ctx, marketID)
		if err != nil {
			return fmt.Errorf("market_service: recompute pool: %w", err)
		}
		check = PoolCheck{
			Stored:     stored,
			Recomputed: recomputed,
			Consistent: stored == recomputed,
		}
		return nil
	})
	return check, err
}

// Delete removes a market, its bets, its pool, and its resolution record.
// Transactions already written stay in the ledger and stakes are not
// refunded. Admin only.
func (s *MarketService) Delete(ctx context.Context, caller domain.Identity, marketID string) error {
	if !s.admins.IsAdmin(caller.Email) {
		return fmt.Errorf("market_service: caller is not an admin: %w", domain.ErrForbidden)
	}

	err := s.ledger.WithinTx(ctx, func(tx domain.Ledger) error {
		if _, err := tx.Markets().GetByID(ctx, marketID); err != nil {
			return fmt.Errorf("market_service: load market: %w", err)
		}
		if err := tx.Bets().DeleteByMarket(ctx, marketID); err != nil {
			return fmt.Errorf("market_service: delete bets: %w", err)
		}
		if err := tx.Pools().Delete(ctx, marketID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("market_service: delete pool: %w", err)
		}
		if err := tx.Markets().Delete(ctx, marketID); err != nil {
			return fmt.Errorf("market_service: delete market: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.pools != nil {
		if err := s.pools.Invalidate(ctx, marketID); err != nil {
			s.logger.WarnContext(ctx, "market_service: pool cache invalidate failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "market_service: market deleted",
		slog.String("market_id", marketID),
		slog.String("admin", caller.Email),
	)
	return nil
}
