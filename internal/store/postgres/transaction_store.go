package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
)

// TransactionStore implements domain.TransactionStore using PostgreSQL. The
// table is append-only; there are no update or delete operations.
type TransactionStore struct {
	q Querier
}

// Append writes one ledger entry. The row ID and timestamp are assigned by
// the database.
func (s *TransactionStore) Append(ctx context.Context, tx domain.Transaction) error {
	const query = `
		INSERT INTO transactions (user_id, market_id, type, amount, balance_after, description)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.q.Exec(ctx, query,
		tx.UserID, nullable(tx.MarketID), string(tx.Type),
		tx.Amount, tx.BalanceAfter, nullable(tx.Description),
	)
	if err != nil {
		return fmt.Errorf("postgres: append %s transaction for user %s: %w", tx.Type, tx.UserID, err)
	}
	return nil
}

// ListByUser returns a user's ledger entries in creation order, oldest
// first, so callers can replay them into a balance.
func (s *TransactionStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Transaction, error) {
	query := `
		SELECT id, user_id, market_id, type, amount, balance_after, description, created_at
		FROM transactions WHERE user_id = $1 ORDER BY id ASC`
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
		return nil, fmt.Errorf("postgres: list transactions for user %s: %w", userID, err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		var marketID, description *string
		var txType string
		if err := rows.Scan(&tx.ID, &tx.UserID, &marketID, &txType,
			&tx.Amount, &tx.BalanceAfter, &description, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan transaction: %w", err)
		}
		tx.Type = domain.TxType(txType)
		if marketID != nil {
			tx.MarketID = *marketID
		}
		if description != nil {
			tx.Description = *description
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: transactions rows: %w", err)
	}
	return txs, nil
}

// ResolutionStore implements domain.ResolutionStore using PostgreSQL.
type ResolutionStore struct {
	q Querier
}

// Create records a market resolution.
func (s *ResolutionStore) Create(ctx context.Context, r domain.Resolution) error {
	const query = `
		INSERT INTO resolutions (market_id, outcome, resolver_id, notes, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.q.Exec(ctx, query,
		r.MarketID, string(r.Outcome), r.ResolverID, nullable(r.Notes), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create resolution for market %s: %w", r.MarketID, err)
	}
	return nil
}

// GetByMarket retrieves the resolution record for a market.
func (s *ResolutionStore) GetByMarket(ctx context.Context, marketID string) (domain.Resolution, error) {
	var r domain.Resolution
	var outcome string
	var notes *string
	err := s.q.QueryRow(ctx, `
		SELECT market_id, outcome, resolver_id, notes, created_at
		FROM resolutions WHERE market_id = $1`,
		marketID,
	).Scan(&r.MarketID, &outcome, &r.ResolverID, &notes, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Resolution{}, domain.ErrNotFound
		}
		return domain.Resolution{}, fmt.Errorf("postgres: get resolution for market %s: %w", marketID, err)
	}
	r.Outcome = domain.Side(outcome)
	if notes != nil {
		r.Notes = *notes
	}
	return r, nil
}
