package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shipyard/internal/store"
)

const sessionColumns = `session_id, ship_id, created_at, last_activity, expires_at, initial_ttl`

func scanSession(row interface{ Scan(dest ...interface{}) error }) (*store.Session, error) {
	var sess store.Session
	if err := row.Scan(&sess.SessionID, &sess.ShipID, &sess.CreatedAt, &sess.LastActivity, &sess.ExpiresAt, &sess.InitialTTL); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) CreateSession(ctx context.Context, tx store.DBTransaction, sess *store.Session) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, `
		INSERT INTO sessions (session_id, ship_id, created_at, last_activity, expires_at, initial_ttl)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id) DO UPDATE SET
			ship_id = EXCLUDED.ship_id,
			last_activity = EXCLUDED.last_activity,
			expires_at = EXCLUDED.expires_at,
			initial_ttl = EXCLUDED.initial_ttl
	`, sess.SessionID, sess.ShipID, sess.CreatedAt, sess.LastActivity, sess.ExpiresAt, sess.InitialTTL)
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.SessionID, err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*store.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	return sess, nil
}

func (s *Store) GetSessionForUpdate(ctx context.Context, tx store.DBTransaction, sessionID string) (*store.Session, error) {
	executor := s.getExecutor(tx)
	row := executor.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1 FOR UPDATE`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session for update %s: %w", sessionID, err)
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]*store.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*store.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) ListSessionsByShip(ctx context.Context, shipID string) ([]*store.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE ship_id = $1 ORDER BY created_at DESC`, shipID)
	if err != nil {
		return nil, fmt.Errorf("list sessions by ship %s: %w", shipID, err)
	}
	defer rows.Close()

	var out []*store.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) TouchLastActivity(ctx context.Context, tx store.DBTransaction, sessionID string, at time.Time) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, `UPDATE sessions SET last_activity = $1 WHERE session_id = $2`, at, sessionID)
	if err != nil {
		return fmt.Errorf("touch last activity %s: %w", sessionID, err)
	}
	return nil
}

// ExtendExpiry sets expires_at only if it strictly increases the current
// value, enforcing the monotonic-never-shorten invariant at the SQL layer
// rather than trusting every caller to have already compared timestamps.
func (s *Store) ExtendExpiry(ctx context.Context, tx store.DBTransaction, sessionID string, expiresAt time.Time) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, `
		UPDATE sessions SET expires_at = $1 WHERE session_id = $2 AND expires_at < $1
	`, expiresAt, sessionID)
	if err != nil {
		return fmt.Errorf("extend expiry %s: %w", sessionID, err)
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, tx store.DBTransaction, sessionID string) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

func (s *Store) DeleteSessionsByShip(ctx context.Context, tx store.DBTransaction, shipID string) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, `DELETE FROM sessions WHERE ship_id = $1`, shipID)
	if err != nil {
		return fmt.Errorf("delete sessions by ship %s: %w", shipID, err)
	}
	return nil
}
