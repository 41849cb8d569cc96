package store

import (
	"context"
	"database/sql"
	"time"
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx, so
// repository methods can be handed either a pool or an active transaction.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Tx is a DBTransaction that can be committed or rolled back.
type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// ShipStore persists Ship rows and implements the atomic primitives the
// allocation algorithm depends on: pool claims and capacity counts must
// never race each other.
type ShipStore interface {
	CreateShip(ctx context.Context, tx DBTransaction, ship *Ship) error
	GetShip(ctx context.Context, id string) (*Ship, error)
	GetShipForUpdate(ctx context.Context, tx DBTransaction, id string) (*Ship, error)
	ListShips(ctx context.Context) ([]*Ship, error)
	ListShipsByStatus(ctx context.Context, status ShipStatus) ([]*Ship, error)
	ListExpiredRunningShips(ctx context.Context, now time.Time) ([]*Ship, error)
	ListWarmPoolShips(ctx context.Context) ([]*Ship, error)

	// UpdateShipRunning transitions a ship to Running with a fresh endpoint
	// and container id, and sets the recomputed expires_at.
	UpdateShipRunning(ctx context.Context, tx DBTransaction, id, containerID, endpoint string, expiresAt time.Time) error

	// MarkShipStopped clears endpoint/container/expires_at.
	MarkShipStopped(ctx context.Context, tx DBTransaction, id string) error

	// SetWarmPool flips the warm_pool flag directly (used by the replenisher
	// when creating or evicting pool ships).
	SetWarmPool(ctx context.Context, tx DBTransaction, id string, warmPool bool) error

	// ClaimWarmPoolShip atomically claims one Running, warm_pool=true ship,
	// clearing warm_pool and setting expires_at, via a single
	// UPDATE ... WHERE ... RETURNING. Returns ErrNotFound if none available.
	ClaimWarmPoolShip(ctx context.Context, tx DBTransaction, expiresAt time.Time) (*Ship, error)

	DeleteShip(ctx context.Context, tx DBTransaction, id string) error

	// CountNonStopped returns the number of ships not in the Stopped state,
	// the value the allocation cap is enforced against.
	CountNonStopped(ctx context.Context) (int, error)

	// CountByStatus supports the /stat endpoints.
	CountByStatus(ctx context.Context) (map[ShipStatus]int, error)
}

// SessionStore persists the Session table.
type SessionStore interface {
	CreateSession(ctx context.Context, tx DBTransaction, s *Session) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	GetSessionForUpdate(ctx context.Context, tx DBTransaction, sessionID string) (*Session, error)
	ListSessions(ctx context.Context) ([]*Session, error)
	ListSessionsByShip(ctx context.Context, shipID string) ([]*Session, error)
	TouchLastActivity(ctx context.Context, tx DBTransaction, sessionID string, at time.Time) error
	ExtendExpiry(ctx context.Context, tx DBTransaction, sessionID string, expiresAt time.Time) error
	DeleteSession(ctx context.Context, tx DBTransaction, sessionID string) error
	DeleteSessionsByShip(ctx context.Context, tx DBTransaction, shipID string) error
}

// HistoryFilter narrows a history listing query.
type HistoryFilter struct {
	SessionID      string
	ExecType       *ExecType
	SuccessOnly    *bool
	Tags           []string
	HasNotes       *bool
	HasDescription *bool
	Limit          int
	Offset         int
}

// HistoryStore persists ExecutionHistory rows.
type HistoryStore interface {
	InsertHistory(ctx context.Context, tx DBTransaction, h *ExecutionHistory) error
	GetHistory(ctx context.Context, id string) (*ExecutionHistory, error)
	GetLastHistory(ctx context.Context, sessionID string, execType *ExecType) (*ExecutionHistory, error)
	ListHistory(ctx context.Context, f HistoryFilter) ([]*ExecutionHistory, int, error)
	AnnotateHistory(ctx context.Context, tx DBTransaction, id string, description, notes *string, tags []string) (*ExecutionHistory, error)
}

// Store bundles every repository plus transaction/connection management,
// the shape handlers and services depend on.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)
	Ping(ctx context.Context) error

	// AdvisoryLock takes a transaction-scoped lock keyed by an arbitrary
	// string, blocking until granted and releasing automatically when tx
	// commits or rolls back. Used to serialize a check-then-act sequence
	// across concurrent callers when there is no row yet to lock with
	// SELECT ... FOR UPDATE.
	AdvisoryLock(ctx context.Context, tx DBTransaction, key string) error

	ShipStore
	SessionStore
	HistoryStore
}
