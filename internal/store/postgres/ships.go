package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shipyard/internal/store"

	"github.com/lib/pq"
)

func (s *Store) CreateShip(ctx context.Context, tx store.DBTransaction, ship *store.Ship) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, `
		INSERT INTO ships (id, status, container_id, endpoint, cpus, memory, disk, ttl_seconds, created_at, updated_at, expires_at, warm_pool)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, ship.ID, ship.Status, ship.ContainerID, ship.Endpoint, ship.Spec.CPUs, ship.Spec.Memory, ship.Spec.Disk,
		ship.TTLSeconds, ship.CreatedAt, ship.UpdatedAt, ship.ExpiresAt, ship.WarmPool)
	if err != nil {
		return fmt.Errorf("create ship %s: %w", ship.ID, err)
	}
	return nil
}

func scanShip(row interface {
	Scan(dest ...interface{}) error
}) (*store.Ship, error) {
	var sh store.Ship
	var expiresAt sql.NullTime
	if err := row.Scan(&sh.ID, &sh.Status, &sh.ContainerID, &sh.Endpoint, &sh.Spec.CPUs, &sh.Spec.Memory, &sh.Spec.Disk,
		&sh.TTLSeconds, &sh.CreatedAt, &sh.UpdatedAt, &expiresAt, &sh.WarmPool); err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		sh.ExpiresAt = &t
	}
	return &sh, nil
}

const shipColumns = `id, status, container_id, endpoint, cpus, memory, disk, ttl_seconds, created_at, updated_at, expires_at, warm_pool`

func (s *Store) GetShip(ctx context.Context, id string) (*store.Ship, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+shipColumns+` FROM ships WHERE id = $1`, id)
	sh, err := scanShip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ship %s: %w", id, err)
	}
	return sh, nil
}

func (s *Store) GetShipForUpdate(ctx context.Context, tx store.DBTransaction, id string) (*store.Ship, error) {
	executor := s.getExecutor(tx)
	row := executor.QueryRowContext(ctx, `SELECT `+shipColumns+` FROM ships WHERE id = $1 FOR UPDATE`, id)
	sh, err := scanShip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ship for update %s: %w", id, err)
	}
	return sh, nil
}

func (s *Store) listShipsQuery(ctx context.Context, query string, args ...interface{}) ([]*store.Ship, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ships: %w", err)
	}
	defer rows.Close()

	var out []*store.Ship
	for rows.Next() {
		sh, err := scanShip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ship: %w", err)
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *Store) ListShips(ctx context.Context) ([]*store.Ship, error) {
	return s.listShipsQuery(ctx, `SELECT `+shipColumns+` FROM ships ORDER BY created_at DESC`)
}

func (s *Store) ListShipsByStatus(ctx context.Context, status store.ShipStatus) ([]*store.Ship, error) {
	return s.listShipsQuery(ctx, `SELECT `+shipColumns+` FROM ships WHERE status = $1 ORDER BY created_at DESC`, status)
}

func (s *Store) ListExpiredRunningShips(ctx context.Context, now time.Time) ([]*store.Ship, error) {
	return s.listShipsQuery(ctx, `
		SELECT `+shipColumns+` FROM ships
		WHERE status = $1 AND expires_at IS NOT NULL AND expires_at < $2
	`, store.ShipStatusRunning, now)
}

func (s *Store) ListWarmPoolShips(ctx context.Context) ([]*store.Ship, error) {
	return s.listShipsQuery(ctx, `
		SELECT `+shipColumns+` FROM ships WHERE warm_pool = true AND status = $1 ORDER BY created_at ASC
	`, store.ShipStatusRunning)
}

func (s *Store) UpdateShipRunning(ctx context.Context, tx store.DBTransaction, id, containerID, endpoint string, expiresAt time.Time) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, `
		UPDATE ships SET status = $1, container_id = $2, endpoint = $3, expires_at = $4, updated_at = now()
		WHERE id = $5
	`, store.ShipStatusRunning, containerID, endpoint, expiresAt, id)
	if err != nil {
		return fmt.Errorf("update ship running %s: %w", id, err)
	}
	return nil
}

func (s *Store) MarkShipStopped(ctx context.Context, tx store.DBTransaction, id string) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, `
		UPDATE ships SET status = $1, container_id = '', endpoint = '', expires_at = NULL, warm_pool = false, updated_at = now()
		WHERE id = $2
	`, store.ShipStatusStopped, id)
	if err != nil {
		return fmt.Errorf("mark ship stopped %s: %w", id, err)
	}
	return nil
}

func (s *Store) SetWarmPool(ctx context.Context, tx store.DBTransaction, id string, warmPool bool) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, `UPDATE ships SET warm_pool = $1, updated_at = now() WHERE id = $2`, warmPool, id)
	if err != nil {
		return fmt.Errorf("set warm pool %s: %w", id, err)
	}
	return nil
}

// ClaimWarmPoolShip is the coordination point for pool consumption: exactly
// one caller can win a given row, via a single UPDATE ... RETURNING that
// only matches rows still marked warm_pool. Concurrent callers racing for
// the same set of rows never double-claim.
func (s *Store) ClaimWarmPoolShip(ctx context.Context, tx store.DBTransaction, expiresAt time.Time) (*store.Ship, error) {
	executor := s.getExecutor(tx)
	row := executor.QueryRowContext(ctx, `
		UPDATE ships SET warm_pool = false, expires_at = $1, updated_at = now()
		WHERE id = (
			SELECT id FROM ships
			WHERE warm_pool = true AND status = $2
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+shipColumns, expiresAt, store.ShipStatusRunning)

	sh, err := scanShip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim warm pool ship: %w", err)
	}
	return sh, nil
}

func (s *Store) DeleteShip(ctx context.Context, tx store.DBTransaction, id string) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, `DELETE FROM ships WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete ship %s: %w", id, err)
	}
	return nil
}

func (s *Store) CountNonStopped(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ships WHERE status != $1`, store.ShipStatusStopped).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count non-stopped ships: %w", err)
	}
	return n, nil
}

func (s *Store) CountByStatus(ctx context.Context) (map[store.ShipStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM ships GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := map[store.ShipStatus]int{
		store.ShipStatusCreating: 0,
		store.ShipStatusRunning:  0,
		store.ShipStatusStopped:  0,
	}
	for rows.Next() {
		var st store.ShipStatus
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

// used by history.go's AnnotateHistory (via tagsArrayOrNil), kept here since
// it is a ship-adjacent array helper shared across repositories.
func tagsArray(tags []string) interface{} {
	return pq.Array(tags)
}
