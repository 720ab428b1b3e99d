package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
)

// Profile is a user together with their betting record.
type Profile struct {
	User  domain.User      `json:"user"`
	Stats domain.UserStats `json:"stats"`
}

// BalanceCheck is the result of replaying a user's ledger entries against
// their stored balance.
type BalanceCheck struct {
	Stored     int64 `json:"stored"`
	Replayed   int64 `json:"replayed"`
	Consistent bool  `json:"consistent"`
}

// UserService registers users and serves profiles.
type UserService struct {
	ledger      domain.Ledger
	leaderboard domain.LeaderboardCache
	logger      *slog.Logger
}

// NewUserService creates a UserService. The leaderboard cache is optional.
func NewUserService(ledger domain.Ledger, leaderboard domain.LeaderboardCache, logger *slog.Logger) *UserService {
	return &UserService{ledger: ledger, leaderboard: leaderboard, logger: logger}
}

// Register creates the user row with the starting balance and its initial
// ledger entry. Registering an existing user returns the stored row
// unchanged, so the identity provider can call it on every login.
func (s *UserService) Register(ctx context.Context, id domain.Identity, displayName string) (domain.User, error) {
	if id.UserID == "" || id.Email == "" {
		return domain.User{}, fmt.Errorf("user_service: identity incomplete: %w", domain.ErrInvalidRequest)
	}

	existing, err := s.ledger.Users().GetByID(ctx, id.UserID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, fmt.Errorf("user_service: load user: %w", err)
	}

	user := domain.User{
		ID:          id.UserID,
		Email:       id.Email,
		DisplayName: displayName,
		Points:      domain.StartingBalance,
		CreatedAt:   time.Now().UTC(),
	}

	err = s.ledger.WithinTx(ctx, func(tx domain.Ledger) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			return fmt.Errorf("user_service: create user: %w", err)
		}
		if err := tx.Transactions().Append(ctx, domain.Transaction{
			UserID:       user.ID,
			Type:         domain.TxInitial,
			Amount:       domain.StartingBalance,
			BalanceAfter: domain.StartingBalance,
			Description:  "starting balance",
		}); err != nil {
			return fmt.Errorf("user_service: initial ledger entry: %w", err)
		}
		return nil
	})
	if err != nil {
		// Two concurrent first logins race on the insert; the loser reads the
		// winner's row.
		if u, getErr := s.ledger.Users().GetByID(ctx, id.UserID); getErr == nil {
			return u, nil
		}
		return domain.User{}, err
	}

	if s.leaderboard != nil {
		if err := s.leaderboard.Update(ctx, user.ID, user.Points); err != nil {
			s.logger.WarnContext(ctx, "user_service: leaderboard update failed",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "user_service: user registered",
		slog.String("user_id", user.ID),
	)
	return user, nil
}

// Profile returns the user and their betting record.
func (s *UserService) Profile(ctx context.Context, userID string) (Profile, error) {
	user, err := s.ledger.Users().GetByID(ctx, userID)
	if err != nil {
		return Profile{}, fmt.Errorf("user_service: load user: %w", err)
	}
	stats, err := s.ledger.Bets().StatsByUser(ctx, userID)
	if err != nil {
		return Profile{}, fmt.Errorf("user_service: load stats: %w", err)
	}
	return Profile{User: user, Stats: stats}, nil
}

// Transactions returns a page of the user's ledger entries, oldest first.
func (s *UserService) Transactions(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Transaction, error) {
	txs, err := s.ledger.Transactions().ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("user_service: list transactions: %w", err)
	}
	return txs, nil
}

// Bets returns a page of the user's stakes, newest first.
func (s *UserService) Bets(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Bet, error) {
	bets, err := s.ledger.Bets().ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("user_service: list bets: %w", err)
	}
	return bets, nil
}

// ReplayBalance replays the user's full ledger and compares the result to
// the stored balance.
func (s *UserService) ReplayBalance(ctx context.Context, userID string) (BalanceCheck, error) {
	user, err := s.ledger.Users().GetByID(ctx, userID)
	if err != nil {
		return BalanceCheck{}, fmt.Errorf("user_service: load user: %w", err)
	}
	txs, err := s.ledger.Transactions().ListByUser(ctx, userID, domain.ListOpts{})
	if err != nil {
		return BalanceCheck{}, fmt.Errorf("user_service: list transactions: %w", err)
	}
	replayed, consistent := domain.ReplayBalance(txs)
	return BalanceCheck{
		Stored:     user.Points,
		Replayed:   replayed,
		Consistent: consistent && replayed == user.Points,
	}, nil
}
