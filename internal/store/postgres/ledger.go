package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
)

// Querier is the subset of pgx operations the stores need. Both
// *pgxpool.Pool and pgx.Tx satisfy it, which lets the same store code run
// inside and outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger implements domain.Ledger on PostgreSQL. Engine operations run under
// serializable isolation so concurrent bets on the same market cannot lose
// pool updates and concurrent resolutions cannot both succeed.
type Ledger struct {
	pool *pgxpool.Pool
	inTx bool

	users        *UserStore
	markets      *MarketStore
	bets         *BetStore
	pools        *PoolStore
	transactions *TransactionStore
	resolutions  *ResolutionStore
}

// NewLedger creates a Ledger backed by the given connection pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return newLedger(pool, pool, false)
}

func newLedger(pool *pgxpool.Pool, q Querier, inTx bool) *Ledger {
	return &Ledger{
		pool:         pool,
		inTx:         inTx,
		users:        &UserStore{q: q},
		markets:      &MarketStore{q: q},
		bets:         &BetStore{q: q},
		pools:        &PoolStore{q: q},
		transactions: &TransactionStore{q: q},
		resolutions:  &ResolutionStore{q: q},
	}
}

func (l *Ledger) Users() domain.UserStore               { return l.users }
func (l *Ledger) Markets() domain.MarketStore           { return l.markets }
func (l *Ledger) Bets() domain.BetStore                 { return l.bets }
func (l *Ledger) Pools() domain.PoolStore               { return l.pools }
func (l *Ledger) Transactions() domain.TransactionStore { return l.transactions }
func (l *Ledger) Resolutions() domain.ResolutionStore   { return l.resolutions }

// WithinTx runs fn inside a serializable transaction. A serialization
// conflict or deadlock abort is retried once; if the retry also fails the
// error surfaces as domain.ErrStoreUnavailable. Business errors returned by
// fn roll the transaction back and pass through unchanged.
func (l *Ledger) WithinTx(ctx context.Context, fn func(domain.Ledger) error) error {
	// Nested calls join the enclosing transaction.
	if l.inTx {
		return fn(l)
	}

	const maxAttempts = 2

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return fmt.Errorf("postgres: begin tx: %w", err)
		}

		err = fn(newLedger(l.pool, tx, true))
		if err != nil {
			_ = tx.Rollback(ctx)
			if isSerializationFailure(err) {
				lastErr = err
				continue
			}
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			if isSerializationFailure(err) {
				lastErr = err
				continue
			}
			return fmt.Errorf("postgres: commit tx: %w", err)
		}
		return nil
	}

	return fmt.Errorf("postgres: tx aborted after %d attempts: %v: %w",
		maxAttempts, lastErr, domain.ErrStoreUnavailable)
}

// isSerializationFailure reports whether err is a transient conflict abort
// (serialization_failure or deadlock_detected) worth retrying.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// Compile-time interface check.
var _ domain.Ledger = (*Ledger)(nil)
