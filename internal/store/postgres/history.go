package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"shipyard/internal/store"

	"github.com/lib/pq"
)

const historyColumns = `id, session_id, ship_id, exec_type, code, success, execution_time_ms, output, error, description, notes, tags, created_at`

func scanHistory(row interface{ Scan(dest ...interface{}) error }) (*store.ExecutionHistory, error) {
	var h store.ExecutionHistory
	var output, errMsg, description, notes sql.NullString
	var tags pq.StringArray
	if err := row.Scan(&h.ID, &h.SessionID, &h.ShipID, &h.ExecType, &h.Code, &h.Success, &h.ExecutionTimeMs,
		&output, &errMsg, &description, &notes, &tags, &h.CreatedAt); err != nil {
		return nil, err
	}
	if output.Valid {
		h.Output = &output.String
	}
	if errMsg.Valid {
		h.Error = &errMsg.String
	}
	if description.Valid {
		h.Description = &description.String
	}
	if notes.Valid {
		h.Notes = &notes.String
	}
	h.Tags = []string(tags)
	return &h, nil
}

func (s *Store) InsertHistory(ctx context.Context, tx store.DBTransaction, h *store.ExecutionHistory) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, `
		INSERT INTO execution_history
			(id, session_id, ship_id, exec_type, code, success, execution_time_ms, output, error, description, notes, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, h.ID, h.SessionID, h.ShipID, h.ExecType, h.Code, h.Success, h.ExecutionTimeMs, h.Output, h.Error,
		h.Description, h.Notes, pq.Array(h.Tags), h.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert history %s: %w", h.ID, err)
	}
	return nil
}

func (s *Store) GetHistory(ctx context.Context, id string) (*store.ExecutionHistory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM execution_history WHERE id = $1`, id)
	h, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get history %s: %w", id, err)
	}
	return h, nil
}

func (s *Store) GetLastHistory(ctx context.Context, sessionID string, execType *store.ExecType) (*store.ExecutionHistory, error) {
	query := `SELECT ` + historyColumns + ` FROM execution_history WHERE session_id = $1`
	args := []interface{}{sessionID}
	if execType != nil {
		query += ` AND exec_type = $2`
		args = append(args, *execType)
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, args...)
	h, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get last history for %s: %w", sessionID, err)
	}
	return h, nil
}

// ListHistory builds a filtered, paginated query. Filters compose with AND;
// the tags filter matches any overlap with the requested set.
func (s *Store) ListHistory(ctx context.Context, f store.HistoryFilter) ([]*store.ExecutionHistory, int, error) {
	var conditions []string
	var args []interface{}

	conditions = append(conditions, fmt.Sprintf("session_id = $%d", len(args)+1))
	args = append(args, f.SessionID)

	if f.ExecType != nil {
		conditions = append(conditions, fmt.Sprintf("exec_type = $%d", len(args)+1))
		args = append(args, *f.ExecType)
	}
	if f.SuccessOnly != nil {
		conditions = append(conditions, fmt.Sprintf("success = $%d", len(args)+1))
		args = append(args, *f.SuccessOnly)
	}
	if len(f.Tags) > 0 {
		conditions = append(conditions, fmt.Sprintf("tags && $%d", len(args)+1))
		args = append(args, pq.Array(f.Tags))
	}
	if f.HasNotes != nil {
		if *f.HasNotes {
			conditions = append(conditions, "notes IS NOT NULL")
		} else {
			conditions = append(conditions, "notes IS NULL")
		}
	}
	if f.HasDescription != nil {
		if *f.HasDescription {
			conditions = append(conditions, "description IS NOT NULL")
		} else {
			conditions = append(conditions, "description IS NULL")
		}
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM execution_history " + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	listArgs := append(append([]interface{}{}, args...), limit, f.Offset)
	listQuery := fmt.Sprintf(`
		SELECT %s FROM execution_history %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, historyColumns, where, len(listArgs)-1, len(listArgs))

	rows, err := s.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []*store.ExecutionHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, h)
	}
	return out, total, rows.Err()
}

func (s *Store) AnnotateHistory(ctx context.Context, tx store.DBTransaction, id string, description, notes *string, tags []string) (*store.ExecutionHistory, error) {
	executor := s.getExecutor(tx)
	row := executor.QueryRowContext(ctx, `
		UPDATE execution_history SET
			description = COALESCE($1, description),
			notes = COALESCE($2, notes),
			tags = COALESCE($3, tags)
		WHERE id = $4
		RETURNING `+historyColumns, description, notes, tagsArrayOrNil(tags), id)

	h, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("annotate history %s: %w", id, err)
	}
	return h, nil
}

func tagsArrayOrNil(tags []string) interface{} {
	if tags == nil {
		return nil
	}
	return tagsArray(tags)
}
