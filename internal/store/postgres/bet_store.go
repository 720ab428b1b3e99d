package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	q Querier
}

const betCols = `id, market_id, user_id, side, points, request_id, created_at`

func scanBet(row pgx.Row) (domain.Bet, error) {
	var b domain.Bet
	var side string
	var requestID *string
	err := row.Scan(&b.ID, &b.MarketID, &b.UserID, &side, &b.Points, &requestID, &b.CreatedAt)
	if err != nil {
		return domain.Bet{}, err
	}
	b.Side = domain.Side(side)
	if requestID != nil {
		b.RequestID = *requestID
	}
	return b, nil
}

// Create inserts a new bet row.
func (s *BetStore) Create(ctx context.Context, b domain.Bet) error {
	const query = `
		INSERT INTO bets (id, market_id, user_id, side, points, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.q.Exec(ctx, query,
		b.ID, b.MarketID, b.UserID, string(b.Side), b.Points,
		nullable(b.RequestID), b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create bet %s: %w", b.ID, err)
	}
	return nil
}

// GetByID retrieves a bet by its primary key.
func (s *BetStore) GetByID(ctx context.Context, id string) (domain.Bet, error) {
	row := s.q.QueryRow(ctx, `SELECT `+betCols+` FROM bets WHERE id = $1`, id)
	b, err := scanBet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Bet{}, domain.ErrNotFound
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet %s: %w", id, err)
	}
	return b, nil
}

// Delete removes a bet row (cancellation while the market is open).
func (s *BetStore) Delete(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM bets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete bet %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByMarket returns every active bet on a market.
func (s *BetStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Bet, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+betCols+` FROM bets WHERE market_id = $1 ORDER BY created_at ASC`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for market %s: %w", marketID, err)
	}
	return collectBets(rows)
}

// ListByUser returns a user's bets, newest first.
func (s *BetStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT ` + betCols + ` FROM bets WHERE user_id = $1 ORDER BY created_at DESC`
	args := []any{userID}
	if opts.Limit > 0 {
		query += ` LIMIT $2`
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += ` OFFSET $3`
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for user %s: %w", userID, err)
	}
	return collectBets(rows)
}

// ListByMarketAndUser returns one user's bets on one market, newest first.
func (s *BetStore) ListByMarketAndUser(ctx context.Context, marketID, userID string) ([]domain.Bet, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+betCols+` FROM bets
		WHERE market_id = $1 AND user_id = $2
		ORDER BY created_at DESC`,
		marketID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for market %s user %s: %w", marketID, userID, err)
	}
	return collectBets(rows)
}

// ExistsRequest reports whether a bet with this client request ID was already
// recorded for the user.
func (s *BetStore) ExistsRequest(ctx context.Context, userID, requestID string) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM bets WHERE user_id = $1 AND request_id = $2)`,
		userID, requestID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check request %s for user %s: %w", requestID, userID, err)
	}
	return exists, nil
}

// DeleteByMarket removes every bet on a market (admin market deletion).
func (s *BetStore) DeleteByMarket(ctx context.Context, marketID string) error {
	_, err := s.q.Exec(ctx, `DELETE FROM bets WHERE market_id = $1`, marketID)
	if err != nil {
		return fmt.Errorf("postgres: delete bets for market %s: %w", marketID, err)
	}
	return nil
}

// StatsByUser aggregates a user's betting record against market outcomes.
func (s *BetStore) StatsByUser(ctx context.Context, userID string) (domain.UserStats, error) {
	var st domain.UserStats
	err := s.q.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(b.points), 0),
			COUNT(*) FILTER (WHERE m.status = 'resolved' AND m.resolved_outcome = b.side),
			COUNT(*) FILTER (WHERE m.status = 'resolved')
		FROM bets b
		JOIN markets m ON m.id = b.market_id
		WHERE b.user_id = $1`,
		userID,
	).Scan(&st.TotalBets, &st.PointsStaked, &st.WinningBets, &st.ResolvedBets)
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("postgres: stats for user %s: %w", userID, err)
	}
	if st.ResolvedBets > 0 {
		st.Accuracy = float64(st.WinningBets) / float64(st.ResolvedBets) * 100
	}
	return st, nil
}

func collectBets(rows pgx.Rows) ([]domain.Bet, error) {
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: bets rows: %w", err)
	}
	return bets, nil
}
