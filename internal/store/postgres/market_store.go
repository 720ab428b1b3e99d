package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	q Querier
}

const marketCols = `id, creator_id, title, description, category,
	source_link, close_date, status, resolved_outcome, created_at`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var sourceLink *string
	var status string
	var outcome *string
	err := row.Scan(
		&m.ID, &m.CreatorID, &m.Title, &m.Description, &m.Category,
		&sourceLink, &m.CloseDate, &status, &outcome, &m.CreatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	if sourceLink != nil {
		m.SourceLink = *sourceLink
	}
	m.Status = domain.MarketStatus(status)
	if outcome != nil {
		side := domain.Side(*outcome)
		m.ResolvedOutcome = &side
	}
	return m, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create inserts a new market.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, creator_id, title, description, category,
			source_link, close_date, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.q.Exec(ctx, query,
		m.ID, m.CreatorID, m.Title, m.Description, m.Category,
		nullable(m.SourceLink), m.CloseDate, string(m.Status), m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.q.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// List returns markets matching the filter. Sort "trending" orders by pool
// size, anything else by creation time, newest first.
func (s *MarketStore) List(ctx context.Context, f domain.MarketFilter, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE 1=1`
	args := []any{}
	argIdx := 1

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		query += fmt.Sprintf(" AND status = ANY($%d)", argIdx)
		args = append(args, statuses)
		argIdx++
	}
	if f.Category != "" {
		query += fmt.Sprintf(" AND category = $%d", argIdx)
		args = append(args, f.Category)
		argIdx++
	}

	if f.Sort == "trending" {
		query += ` ORDER BY COALESCE(
			(SELECT total_pool FROM market_pools mp WHERE mp.market_id = markets.id), 0
		) DESC, created_at DESC`
	} else {
		query += " ORDER BY created_at DESC"
	}

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// CountRecentByCreator counts markets created by one user since the given
// time; used for creation rate limiting.
func (s *MarketStore) CountRecentByCreator(ctx context.Context, creatorID string, since time.Time) (int64, error) {
	var count int64
	err := s.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM markets WHERE creator_id = $1 AND created_at >= $2`,
		creatorID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count recent markets for %s: %w", creatorID, err)
	}
	return count, nil
}

// CloseExpired transitions every open market past its close date to closed
// and returns the number of rows affected. Safe to run concurrently.
func (s *MarketStore) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.q.Exec(ctx,
		`UPDATE markets SET status = 'closed' WHERE status = 'open' AND close_date <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: close expired markets: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SetStatus updates the lifecycle state of a market.
func (s *MarketStore) SetStatus(ctx context.Context, id string, status domain.MarketStatus) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE markets SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: set market %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkResolved stamps the final outcome. The status guard makes resolution
// at-most-once even if two transactions race past the engine's state check.
func (s *MarketStore) MarkResolved(ctx context.Context, id string, outcome domain.Side) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE markets SET status = 'resolved', resolved_outcome = $2
		WHERE id = $1 AND status <> 'resolved'`,
		id, string(outcome),
	)
	if err != nil {
		return fmt.Errorf("postgres: mark market %s resolved: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyResolved
	}
	return nil
}

// Delete removes a market. Bets and the pool row cascade.
func (s *MarketStore) Delete(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM markets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete market %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
