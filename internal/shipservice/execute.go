package shipservice

import (
	"context"
	"fmt"
	"time"

	"shipyard/internal/shiperr"
	"shipyard/internal/shipclient"
	"shipyard/internal/store"

	"github.com/google/uuid"
)

// maxHistoryFieldBytes bounds output/error field size stored per row; a
// field over this is replaced with a truncation marker naming the
// original length rather than growing the row unboundedly.
const maxHistoryFieldBytes = 64 * 1024

// ExecuteRequest is a session-scoped exec call forwarded into a Ship.
type ExecuteRequest struct {
	ShipID    string
	SessionID string
	ExecType  store.ExecType
	RawType   string // exact operation type string, e.g. "fs/read_file"
	Code      string
	Payload   map[string]any
}

// ExecuteResult carries a Ship's exec outcome plus the bookkeeping fields
// callers echo back to their own clients: the history row's id and the
// wall-clock time the call took.
type ExecuteResult struct {
	shipclient.ExecResult
	ExecutionID     string
	ExecutionTimeMs int64
}

// Execute authorizes the session↔ship pair, touches last_activity,
// forwards the call through the Ship client, records the outcome in
// ExecutionHistory, and returns the result. History recording failures are
// logged, never surfaced, matching the propagation policy: a user's exec
// result must not fail because bookkeeping failed.
func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	sess, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return ExecuteResult{}, err
	}
	if sess.ShipID != req.ShipID {
		return ExecuteResult{}, shiperr.New(shiperr.KindForbidden, "session is not bound to this ship")
	}

	ship, err := s.store.GetShip(ctx, req.ShipID)
	if err != nil {
		return ExecuteResult{}, err
	}
	if ship.Status != store.ShipStatusRunning {
		return ExecuteResult{}, shiperr.New(shiperr.KindShipUnready, "ship is not running")
	}

	now := time.Now().UTC()
	tx, err := s.store.BeginTx(ctx)
	if err == nil {
		_ = s.store.TouchLastActivity(ctx, tx, req.SessionID, now)
		_ = tx.Commit()
	}

	client := s.client(ship.Endpoint)
	start := time.Now()
	result, err := client.Exec(ctx, req.SessionID, shipclient.ExecRequest{Type: normalizeWireType(req.RawType), Payload: req.Payload}, s.execTimeout())
	elapsed := time.Since(start)
	if err != nil {
		return ExecuteResult{}, err
	}

	execID := uuid.NewString()
	s.recordHistory(ctx, execID, req, result, elapsed)
	return ExecuteResult{ExecResult: result, ExecutionID: execID, ExecutionTimeMs: elapsed.Milliseconds()}, nil
}

// normalizeWireType maps the two bare aliases Bay accepts onto the exact
// operation type a Ship's HTTP endpoint expects; every other type (the
// fs/* and shell/* operations) is already the wire form and passes through
// unchanged.
func normalizeWireType(raw string) string {
	switch raw {
	case "python":
		return "ipython/exec"
	case "shell":
		return "shell/exec"
	default:
		return raw
	}
}

func (s *Service) execTimeout() time.Duration {
	if s.cfg.ExecTimeout > 0 {
		return s.cfg.ExecTimeout
	}
	return 120 * time.Second
}

func (s *Service) recordHistory(ctx context.Context, id string, req ExecuteRequest, result shipclient.ExecResult, elapsed time.Duration) {
	entry := &store.ExecutionHistory{
		ID:              id,
		SessionID:       req.SessionID,
		ShipID:          req.ShipID,
		ExecType:        req.ExecType,
		Code:            req.Code,
		Success:         result.Success,
		ExecutionTimeMs: elapsed.Milliseconds(),
		CreatedAt:       time.Now().UTC(),
	}

	if len(result.Data) > 0 {
		out := truncateField(string(result.Data))
		entry.Output = &out
	}
	if result.Error != "" {
		errText := truncateField(result.Error)
		entry.Error = &errText
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		s.log.Error("record execution history: begin tx", "error", err)
		return
	}
	defer tx.Rollback()
	if err := s.store.InsertHistory(ctx, tx, entry); err != nil {
		s.log.Error("record execution history", "error", err)
		return
	}
	if err := tx.Commit(); err != nil {
		s.log.Error("record execution history: commit", "error", err)
	}
}

func truncateField(v string) string {
	if len(v) <= maxHistoryFieldBytes {
		return v
	}
	return fmt.Sprintf("[truncated, original length %d bytes]", len(v))
}
