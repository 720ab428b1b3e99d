package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
)

// Notifier delivers operator notifications for named events.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string)
}

// Archiver snapshots a resolved market to cold storage.
type Archiver interface {
	ArchiveResolved(ctx context.Context, marketID string) error
}

// ResolutionResult summarizes an applied resolution.
type ResolutionResult struct {
	Market     domain.Market   `json:"market"`
	Outcome    domain.Side     `json:"outcome"`
	Payouts    []domain.Payout `json:"payouts"`
	Refunds    []domain.Bet    `json:"refunds,omitempty"`
	Refunded   bool            `json:"refunded"`
	PaidPoints int64           `json:"paid_points"`
}

// ResolveService settles markets: it freezes the market, computes pari-mutuel
// payouts, credits winners, and records the resolution. The whole settlement
// is a single ledger transaction.
type ResolveService struct {
	ledger      domain.Ledger
	admins      domain.AdminPolicy
	pools       domain.PoolCache
	leaderboard domain.LeaderboardCache
	bus         domain.SignalBus
	notifier    Notifier
	archiver    Archiver
	logger      *slog.Logger
}

// NewResolveService creates a ResolveService. Everything except the ledger,
// the admin policy, and the logger is optional.
func NewResolveService(
	ledger domain.Ledger,
	admins domain.AdminPolicy,
	pools domain.PoolCache,
	leaderboard domain.LeaderboardCache,
	bus domain.SignalBus,
	notifier Notifier,
	archiver Archiver,
	logger *slog.Logger,
) *ResolveService {
	return &ResolveService{
		ledger:      ledger,
		admins:      admins,
		pools:       pools,
		leaderboard: leaderboard,
		bus:         bus,
		notifier:    notifier,
		archiver:    archiver,
		logger:      logger,
	}
}

// Resolve settles a market to the given outcome. Winners are paid
// floor(stake * totalPool / winningPool); the integer remainder is not
// redistributed. When nobody backed the winning side, every stake is
// refunded instead. Admin only; a market resolves at most once.
func (s *ResolveService) Resolve(ctx context.Context, caller domain.Identity, marketID string, outcome domain.Side, notes string) (ResolutionResult, error) {
	if !s.admins.IsAdmin(caller.Email) {
		return ResolutionResult{}, fmt.Errorf("resolve_service: caller is not an admin: %w", domain.ErrForbidden)
	}
	if !domain.ValidSide(outcome) {
		return ResolutionResult{}, fmt.Errorf("resolve_service: outcome %q: %w", outcome, domain.ErrInvalidRequest)
	}

	var result ResolutionResult

	err := s.ledger.WithinTx(ctx, func(tx domain.Ledger) error {
		market, err := tx.Markets().GetByID(ctx, marketID)
		if err != nil {
			return fmt.Errorf("resolve_service: load market: %w", err)
		}
		if market.Status == domain.MarketStatusResolved {
			return fmt.Errorf("resolve_service: market %s: %w", marketID, domain.ErrAlreadyResolved)
		}
		// Resolving an open market closes it first so no stake can slip in
		// between settlement and the status flip.
		if market.Status == domain.MarketStatusOpen {
			if err := tx.Markets().SetStatus(ctx, marketID, domain.MarketStatusClosed); err != nil {
				return fmt.Errorf("resolve_service: close market: %w", err)
			}
		}

		bets, err := tx.Bets().ListByMarket(ctx, marketID)
		if err != nil {
			return fmt.Errorf("resolve_service: list bets: %w", err)
		}
		plan := domain.ComputePayouts(bets, outcome)

		var paid int64
		for _, p := range plan.Payouts {
			if err := s.credit(ctx, tx, p.UserID, marketID, p.Points, domain.TxPayout,
				fmt.Sprintf("payout for market %s (%s)", marketID, outcome)); err != nil {
				return err
			}
			paid += p.Points
		}
		for _, r := range plan.Refund {
			if err := s.credit(ctx, tx, r.UserID, marketID, r.Points, domain.TxRefund,
				fmt.Sprintf("refund for market %s (no winning stakes)", marketID)); err != nil {
				return err
			}
		}

		if err := tx.Resolutions().Create(ctx, domain.Resolution{
			MarketID:   marketID,
			Outcome:    outcome,
			ResolverID: caller.UserID,
			Notes:      notes,
			CreatedAt:  time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("resolve_service: record resolution: %w", err)
		}
		if err := tx.Markets().MarkResolved(ctx, marketID, outcome); err != nil {
			return fmt.Errorf("resolve_service: mark resolved: %w", err)
		}

		market.Status = domain.MarketStatusResolved
		market.ResolvedOutcome = &outcome
		result = ResolutionResult{
			Market:     market,
			Outcome:    outcome,
			Payouts:    plan.Payouts,
			Refunds:    plan.Refund,
			Refunded:   len(plan.Refund) > 0,
			PaidPoints: paid,
		}
		return nil
	})
	if err != nil {
		return ResolutionResult{}, err
	}

	s.afterResolve(ctx, result)

	s.logger.InfoContext(ctx, "resolve_service: market resolved",
		slog.String("market_id", marketID),
		slog.String("outcome", string(outcome)),
		slog.Int("winners", len(result.Payouts)),
		slog.Int64("paid_points", result.PaidPoints),
		slog.Bool("refunded", result.Refunded),
	)
	return result, nil
}

// credit adds points to a balance and appends the matching ledger entry.
func (s *ResolveService) credit(ctx context.Context, tx domain.Ledger, userID, marketID string, points int64, txType domain.TxType, desc string) error {
	user, err := tx.Users().GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve_service: load user %s: %w", userID, err)
	}
	newBalance := user.Points + points
	if err := tx.Users().UpdatePoints(ctx, userID, newBalance); err != nil {
		return fmt.Errorf("resolve_service: credit user %s: %w", userID, err)
	}
	if err := tx.Transactions().Append(ctx, domain.Transaction{
		UserID:       userID,
		MarketID:     marketID,
		Type:         txType,
		Amount:       points,
		BalanceAfter: newBalance,
		Description:  desc,
	}); err != nil {
		return fmt.Errorf("resolve_service: ledger entry for %s: %w", userID, err)
	}
	return nil
}

// afterResolve propagates the settlement to caches, subscribers, operators,
// and cold storage. All best-effort.
func (s *ResolveService) afterResolve(ctx context.Context, r ResolutionResult) {
	marketID := r.Market.ID

	if s.pools != nil {
		if err := s.pools.Invalidate(ctx, marketID); err != nil {
			s.logger.WarnContext(ctx, "resolve_service: pool cache invalidate failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.leaderboard != nil {
		// Refunded users changed balance too, not just payout recipients.
		seen := make(map[string]bool)
		for _, p := range r.Payouts {
			seen[p.UserID] = true
		}
		for _, b := range r.Refunds {
			seen[b.UserID] = true
		}
		for userID := range seen {
			user, err := s.ledger.Users().GetByID(ctx, userID)
			if err != nil {
				continue
			}
			if err := s.leaderboard.Update(ctx, userID, user.Points); err != nil {
				s.logger.WarnContext(ctx, "resolve_service: leaderboard update failed",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	if s.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":     "market_resolved",
			"market_id": marketID,
			"outcome":   r.Outcome,
		})
		if err := s.bus.Publish(ctx, poolEventsChannel, evt); err != nil {
			s.logger.WarnContext(ctx, "resolve_service: publish event failed",
				slog.String("error", err.Error()),
			)
		}
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, "market_resolved",
			"Market resolved",
			fmt.Sprintf("%s resolved %s, %d winners paid %d points",
				r.Market.Title, r.Outcome, len(r.Payouts), r.PaidPoints),
		)
	}
	if s.archiver != nil {
		if err := s.archiver.ArchiveResolved(ctx, marketID); err != nil {
			s.logger.WarnContext(ctx, "resolve_service: archive failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}
}
