package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vantutran2k1/haulbook/internal/core/domain"
	"github.com/vantutran2k1/haulbook/internal/core/port"
)

//go:embed schema.sql
var schema string

// DBTX is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type TxBeginner interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type SQLStore struct {
	*Queries
	db TxBeginner
}

var _ port.Store = (*SQLStore)(nil)

func NewStore(db TxBeginner) *SQLStore {
	return &SQLStore{
		Queries: New(db),
		db:      db,
	}
}

// Migrate creates the tables if they do not exist.
func (store *SQLStore) Migrate(ctx context.Context) error {
	if _, err := store.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", mapError(err))
	}
	return nil
}

func (store *SQLStore) ExecTx(ctx context.Context, fn func(port.Querier) error) error {
	tx, err := store.db.Begin(ctx)
	if err != nil {
		return mapError(err)
	}

	q := New(tx)
	err = fn(q)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("tx err: %w, rb err: %v", err, rbErr)
		}
		return err
	}

	return mapError(tx.Commit(ctx))
}

// mapError translates driver errors into domain errors. Timeouts, dropped
// connections, deadlocks and serialization failures are retryable.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.ConstraintName)
		case "23514":
			return fmt.Errorf("%w: %s", domain.ErrValidation, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", domain.ErrNotFound, pgErr.ConstraintName)
		case "40001", "40P01", "55P03", "57014":
			return fmt.Errorf("%w: postgres %s: %s", domain.ErrUnavailable, pgErr.Code, pgErr.Message)
		}
		return fmt.Errorf("postgres: %w", err)
	}

	var connErr *pgconn.ConnectError
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) ||
		pgconn.SafeToRetry(err) || errors.As(err, &connErr) {
		return fmt.Errorf("%w: postgres: %v", domain.ErrUnavailable, err)
	}
	return fmt.Errorf("postgres: %w", err)
}

func notFound(err error, what, id string) error {
	err = mapError(err)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", domain.ErrNotFound, what, id)
	}
	return err
}
