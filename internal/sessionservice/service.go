// Package sessionservice implements Session CRUD and delegates
// ExecutionHistory queries, the two responsibilities the HTTP façade needs
// beyond ship allocation itself.
package sessionservice

import (
	"context"

	"shipyard/internal/store"
)

type Service struct {
	store store.Store
}

func New(st store.Store) *Service {
	return &Service{store: st}
}

func (s *Service) Get(ctx context.Context, sessionID string) (*store.Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

func (s *Service) List(ctx context.Context) ([]*store.Session, error) {
	return s.store.ListSessions(ctx)
}

// Delete removes a session record without touching its bound Ship;
// callers that also want the Ship stopped or deleted go through
// shipservice for that half of the operation.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return err
	}
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.store.DeleteSession(ctx, tx, sessionID); err != nil {
		return err
	}
	return tx.Commit()
}

// History proxies to the store's filtered history query, verifying the
// session exists first so callers get a clean 404 instead of an empty list.
func (s *Service) History(ctx context.Context, sessionID string, filter store.HistoryFilter) ([]*store.ExecutionHistory, int, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, 0, err
	}
	filter.SessionID = sessionID
	return s.store.ListHistory(ctx, filter)
}

func (s *Service) HistoryByID(ctx context.Context, executionID string) (*store.ExecutionHistory, error) {
	return s.store.GetHistory(ctx, executionID)
}

func (s *Service) LastHistory(ctx context.Context, sessionID string, execType *store.ExecType) (*store.ExecutionHistory, error) {
	return s.store.GetLastHistory(ctx, sessionID, execType)
}

// Annotate updates only the description/tags/notes fields; history rows are
// otherwise immutable.
func (s *Service) Annotate(ctx context.Context, executionID string, description, notes *string, tags []string) (*store.ExecutionHistory, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	h, err := s.store.AnnotateHistory(ctx, tx, executionID, description, notes, tags)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return h, nil
}
