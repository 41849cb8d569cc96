// Package postgres implements the store interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"shipyard/internal/store"

	_ "github.com/lib/pq"
)

// Store provides PostgreSQL-backed implementations of every repository.
type Store struct {
	db *sql.DB
}

// New opens a connection pool, runs pending migrations, and returns a Store.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an already-open connection (used by tests with sqlmock).
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks database connectivity, backing the /health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// getExecutor returns tx if non-nil, otherwise the pool, so repository
// methods work uniformly whether called inside or outside a transaction.
func (s *Store) getExecutor(tx store.DBTransaction) store.DBTransaction {
	if tx != nil {
		return tx
	}
	return s.db
}

// AdvisoryLock takes a transaction-scoped Postgres advisory lock keyed by an
// arbitrary string, hashed down to the int4 pg_advisory_xact_lock expects.
// Unlike a row lock, this works even when the thing being protected doesn't
// exist yet (e.g. a session row that hasn't been inserted); the lock is
// released automatically on tx.Commit or tx.Rollback, so callers must
// always invoke this inside an active transaction.
func (s *Store) AdvisoryLock(ctx context.Context, tx store.DBTransaction, key string) error {
	executor := s.getExecutor(tx)
	if _, err := executor.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("advisory lock %q: %w", key, err)
	}
	return nil
}

var _ store.Store = (*Store)(nil)
