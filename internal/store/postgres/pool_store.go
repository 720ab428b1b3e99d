package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
)

// PoolStore implements domain.PoolStore using PostgreSQL.
type PoolStore struct {
	q Querier
}

const poolCols = `market_id, yes_pool, no_pool, total_pool, bet_count, participant_count`

func scanPool(row pgx.Row) (domain.Pool, error) {
	var p domain.Pool
	err := row.Scan(&p.MarketID, &p.YesPool, &p.NoPool, &p.TotalPool,
		&p.BetCount, &p.ParticipantCount)
	if err != nil {
		return domain.Pool{}, err
	}
	return p, nil
}

// Init creates the empty aggregate row for a new market.
func (s *PoolStore) Init(ctx context.Context, marketID string) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO market_pools (market_id) VALUES ($1)
		ON CONFLICT (market_id) DO NOTHING`,
		marketID,
	)
	if err != nil {
		return fmt.Errorf("postgres: init pool for market %s: %w", marketID, err)
	}
	return nil
}

// Get retrieves the stored aggregate for a market.
func (s *PoolStore) Get(ctx context.Context, marketID string) (domain.Pool, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+poolCols+` FROM market_pools WHERE market_id = $1`, marketID)
	p, err := scanPool(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Pool{}, domain.ErrNotFound
		}
		return domain.Pool{}, fmt.Errorf("postgres: get pool for market %s: %w", marketID, err)
	}
	return p, nil
}

// GetMany retrieves aggregates for a set of markets, keyed by market ID.
func (s *PoolStore) GetMany(ctx context.Context, marketIDs []string) (map[string]domain.Pool, error) {
	if len(marketIDs) == 0 {
		return map[string]domain.Pool{}, nil
	}

	rows, err := s.q.Query(ctx,
		`SELECT `+poolCols+` FROM market_pools WHERE market_id = ANY($1)`, marketIDs)
	if err != nil {
		return nil, fmt.Errorf("postgres: get pools: %w", err)
	}
	defer rows.Close()

	pools := make(map[string]domain.Pool, len(marketIDs))
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan pool: %w", err)
		}
		pools[p.MarketID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: get pools rows: %w", err)
	}
	return pools, nil
}

const recomputeQuery = `
	SELECT
		COALESCE(SUM(points) FILTER (WHERE side = 'yes'), 0),
		COALESCE(SUM(points) FILTER (WHERE side = 'no'), 0),
		COUNT(*),
		COUNT(DISTINCT user_id)
	FROM bets WHERE market_id = $1`

// Refresh recomputes the aggregate from bet rows and persists it, returning
// the fresh snapshot. Run inside the same transaction as the bet mutation so
// the aggregate can never drift from the rows it summarizes.
func (s *PoolStore) Refresh(ctx context.Context, marketID string) (domain.Pool, error) {
	row := s.q.QueryRow(ctx, `
		INSERT INTO market_pools (market_id, yes_pool, no_pool, total_pool, bet_count, participant_count, updated_at)
		SELECT $1, agg.yes, agg.no, agg.yes + agg.no, agg.bets, agg.users, NOW()
		FROM (`+recomputeQuery+`) AS agg (yes, no, bets, users)
		ON CONFLICT (market_id) DO UPDATE SET
			yes_pool          = EXCLUDED.yes_pool,
			no_pool           = EXCLUDED.no_pool,
			total_pool        = EXCLUDED.total_pool,
			bet_count         = EXCLUDED.bet_count,
			participant_count = EXCLUDED.participant_count,
			updated_at        = NOW()
		RETURNING `+poolCols,
		marketID,
	)
	p, err := scanPool(row)
	if err != nil {
		return domain.Pool{}, fmt.Errorf("postgres: refresh pool for market %s: %w", marketID, err)
	}
	return p, nil
}

// Recompute derives the aggregate from bet rows without persisting, for
// consistency checks against the stored row.
func (s *PoolStore) Recompute(ctx context.Context, marketID string) (domain.Pool, error) {
	p := domain.Pool{MarketID: marketID}
	err := s.q.QueryRow(ctx, recomputeQuery, marketID).
		Scan(&p.YesPool, &p.NoPool, &p.BetCount, &p.ParticipantCount)
	if err != nil {
		return domain.Pool{}, fmt.Errorf("postgres: recompute pool for market %s: %w", marketID, err)
	}
	p.TotalPool = p.YesPool + p.NoPool
	return p, nil
}

// Delete removes the aggregate row (admin market deletion).
func (s *PoolStore) Delete(ctx context.Context, marketID string) error {
	_, err := s.q.Exec(ctx, `DELETE FROM market_pools WHERE market_id = $1`, marketID)
	if err != nil {
		return fmt.Errorf("postgres: delete pool for market %s: %w", marketID, err)
	}
	return nil
}
