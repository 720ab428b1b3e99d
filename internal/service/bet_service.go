// Package service implements the ledger engines: betting, cancellation,
// lifecycle, resolution, market management, and the read surfaces. Every
// balance-affecting operation runs inside a single ledger transaction; cache
// updates, event publication, and notifications happen afterwards on a
// best-effort basis.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
)

// poolEventsChannel carries pool snapshot updates for live consumers.
const poolEventsChannel = "pools"

// PlaceBetParams describes a stake request.
type PlaceBetParams struct {
	MarketID  string
	Side      domain.Side
	Points    int64
	RequestID string // optional idempotency key
}

// BetReceipt is returned to the caller after a successful placement or
// cancellation.
type BetReceipt struct {
	Bet        domain.Bet  `json:"bet"`
	NewBalance int64       `json:"new_balance"`
	Pool       domain.Pool `json:"pool"`
}

// BetService places and cancels stakes.
type BetService struct {
	ledger      domain.Ledger
	pools       domain.PoolCache
	leaderboard domain.LeaderboardCache
	bus         domain.SignalBus
	logger      *slog.Logger
}

// NewBetService creates a BetService. The cache, leaderboard, and bus are
// optional; pass nil to disable them.
func NewBetService(
	ledger domain.Ledger,
	pools domain.PoolCache,
	leaderboard domain.LeaderboardCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *BetService {
	return &BetService{
		ledger:      ledger,
		pools:       pools,
		leaderboard: leaderboard,
		bus:         bus,
		logger:      logger,
	}
}

// PlaceBet validates and atomically applies a stake: debit the balance,
// insert the bet, refresh the pool aggregate, and append the ledger entry.
// On any failure no partial state is persisted.
func (s *BetService) PlaceBet(ctx context.Context, callerID string, p PlaceBetParams) (BetReceipt, error) {
	if p.MarketID == "" {
		return BetReceipt{}, fmt.Errorf("bet_service: market id required: %w", domain.ErrInvalidRequest)
	}
	if !domain.ValidSide(p.Side) {
		return BetReceipt{}, fmt.Errorf("bet_service: side %q: %w", p.Side, domain.ErrInvalidRequest)
	}
	if p.Points <= 0 {
		return BetReceipt{}, fmt.Errorf("bet_service: stake must be positive: %w", domain.ErrInvalidRequest)
	}

	var receipt BetReceipt
	now := time.Now().UTC()

	err := s.ledger.WithinTx(ctx, func(tx domain.Ledger) error {
		market, err := tx.Markets().GetByID(ctx, p.MarketID)
		if err != nil {
			return fmt.Errorf("bet_service: load market: %w", err)
		}
		// A market past its deadline no longer accepts bets even if the
		// lifecycle sweep has not flipped it yet.
		if !market.Open() || market.CloseDate.Before(now) {
			return fmt.Errorf("bet_service: market %s: %w", p.MarketID, domain.ErrMarketClosed)
		}

		if p.RequestID != "" {
			seen, err := tx.Bets().ExistsRequest(ctx, callerID, p.RequestID)
			if err != nil {
				return fmt.Errorf("bet_service: check request id: %w", err)
			}
			if seen {
				return fmt.Errorf("bet_service: request %s: %w", p.RequestID, domain.ErrDuplicateRequest)
			}
		}

		user, err := tx.Users().GetByID(ctx, callerID)
		if err != nil {
			return fmt.Errorf("bet_service: load user: %w", err)
		}
		if p.Points > user.Points {
			return fmt.Errorf("bet_service: stake %d, balance %d: %w",
				p.Points, user.Points, domain.ErrInsufficientFunds)
		}
		if p.Points > user.MaxStake() {
			return fmt.Errorf("bet_service: stake %d, limit %d: %w",
				p.Points, user.MaxStake(), domain.ErrStakeTooLarge)
		}

		bet := domain.Bet{
			ID:        uuid.New().String(),
			MarketID:  p.MarketID,
			UserID:    callerID,
			Side:      p.Side,
			Points:    p.Points,
			RequestID: p.RequestID,
			CreatedAt: now,
		}
		if err := tx.Bets().Create(ctx, bet); err != nil {
			return fmt.Errorf("bet_service: create bet: %w", err)
		}

		pool, err := tx.Pools().Refresh(ctx, p.MarketID)
		if err != nil {
			return fmt.Errorf("bet_service: refresh pool: %w", err)
		}

		newBalance := user.Points - p.Points
		if err := tx.Users().UpdatePoints(ctx, callerID, newBalance); err != nil {
			return fmt.Errorf("bet_service: debit balance: %w", err)
		}

		if err := tx.Transactions().Append(ctx, domain.Transaction{
			UserID:       callerID,
			MarketID:     p.MarketID,
			Type:         domain.TxBet,
			Amount:       -p.Points,
			BalanceAfter: newBalance,
			Description:  fmt.Sprintf("bet %d on %s", p.Points, p.Side),
		}); err != nil {
			return fmt.Errorf("bet_service: ledger entry: %w", err)
		}

		receipt = BetReceipt{Bet: bet, NewBalance: newBalance, Pool: pool}
		return nil
	})
	if err != nil {
		return BetReceipt{}, err
	}

	s.afterBalanceChange(ctx, "bet_placed", callerID, receipt)

	s.logger.InfoContext(ctx, "bet_service: bet placed",
		slog.String("bet_id", receipt.Bet.ID),
		slog.String("market_id", p.MarketID),
		slog.String("side", string(p.Side)),
		slog.Int64("points", p.Points),
	)
	return receipt, nil
}

// CancelBet reverses a stake before the market closes: credit the balance
// back, remove the bet, refresh the pool, and append the reversal entry.
func (s *BetService) CancelBet(ctx context.Context, callerID, betID string) (BetReceipt, error) {
	if betID == "" {
		return BetReceipt{}, fmt.Errorf("bet_service: bet id required: %w", domain.ErrInvalidRequest)
	}

	var receipt BetReceipt
	now := time.Now().UTC()

	err := s.ledger.WithinTx(ctx, func(tx domain.Ledger) error {
		bet, err := tx.Bets().GetByID(ctx, betID)
		if err != nil {
			return fmt.Errorf("bet_service: load bet: %w", err)
		}
		if bet.UserID != callerID {
			return fmt.Errorf("bet_service: bet %s not owned by caller: %w", betID, domain.ErrForbidden)
		}

		market, err := tx.Markets().GetByID(ctx, bet.MarketID)
		if err != nil {
			return fmt.Errorf("bet_service: load market: %w", err)
		}
		// Same deadline rule as placement: once the close date has passed
		// the stake is committed, even before the sweep flips the status.
		if !market.Open() || market.CloseDate.Before(now) {
			return fmt.Errorf("bet_service: market %s: %w", bet.MarketID, domain.ErrMarketClosed)
		}

		if err := tx.Bets().Delete(ctx, betID); err != nil {
			return fmt.Errorf("bet_service: delete bet: %w", err)
		}

		pool, err := tx.Pools().Refresh(ctx, bet.MarketID)
		if err != nil {
			return fmt.Errorf("bet_service: refresh pool: %w", err)
		}

		user, err := tx.Users().GetByID(ctx, callerID)
		if err != nil {
			return fmt.Errorf("bet_service: load user: %w", err)
		}
		newBalance := user.Points + bet.Points
		if err := tx.Users().UpdatePoints(ctx, callerID, newBalance); err != nil {
			return fmt.Errorf("bet_service: credit balance: %w", err)
		}

		if err := tx.Transactions().Append(ctx, domain.Transaction{
			UserID:       callerID,
			MarketID:     bet.MarketID,
			Type:         domain.TxCancel,
			Amount:       bet.Points,
			BalanceAfter: newBalance,
			Description:  fmt.Sprintf("cancelled bet %d on %s", bet.Points, bet.Side),
		}); err != nil {
			return fmt.Errorf("bet_service: ledger entry: %w", err)
		}

		receipt = BetReceipt{Bet: bet, NewBalance: newBalance, Pool: pool}
		return nil
	})
	if err != nil {
		return BetReceipt{}, err
	}

	s.afterBalanceChange(ctx, "bet_cancelled", callerID, receipt)

	s.logger.InfoContext(ctx, "bet_service: bet cancelled",
		slog.String("bet_id", betID),
		slog.String("market_id", receipt.Bet.MarketID),
		slog.Int64("points", receipt.Bet.Points),
	)
	return receipt, nil
}

// MarketBets returns the caller's stakes on one market.
func (s *BetService) MarketBets(ctx context.Context, marketID, userID string) ([]domain.Bet, error) {
	bets, err := s.ledger.Bets().ListByMarketAndUser(ctx, marketID, userID)
	if err != nil {
		return nil, fmt.Errorf("bet_service: list market bets: %w", err)
	}
	return bets, nil
}

// afterBalanceChange propagates a committed mutation to the pool cache, the
// leaderboard, and the signal bus. Failures are logged, never surfaced: the
// ledger has already committed.
func (s *BetService) afterBalanceChange(ctx context.Context, event, userID string, r BetReceipt) {
	if s.pools != nil {
		if err := s.pools.Set(ctx, r.Pool); err != nil {
			s.logger.WarnContext(ctx, "bet_service: pool cache update failed",
				slog.String("market_id", r.Pool.MarketID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.leaderboard != nil {
		if err := s.leaderboard.Update(ctx, userID, r.NewBalance); err != nil {
			s.logger.WarnContext(ctx, "bet_service: leaderboard update failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":     event,
			"market_id": r.Pool.MarketID,
			"pool":      r.Pool,
		})
		if err := s.bus.Publish(ctx, poolEventsChannel, evt); err != nil {
			s.logger.WarnContext(ctx, "bet_service: publish event failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
}
