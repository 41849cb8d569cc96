package handlers

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"shipyard/internal/store"
)

// fakeStore is a minimal in-memory store.Store, the same shape used to
// exercise the allocation core in shipservice's own tests, reused here so
// the HTTP handlers can be driven without a real database.
type fakeStore struct {
	mu       sync.Mutex
	ships    map[string]*store.Ship
	sessions map[string]*store.Session
	history  []*store.ExecutionHistory
	pingErr  error

	lastHistoryFilter store.HistoryFilter
}

var _ store.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		ships:    make(map[string]*store.Ship),
		sessions: make(map[string]*store.Session),
	}
}

func (s *fakeStore) BeginTx(ctx context.Context) (store.Tx, error) { return &noopTx{}, nil }

func (s *fakeStore) Ping(ctx context.Context) error { return s.pingErr }

func (s *fakeStore) AdvisoryLock(ctx context.Context, tx store.DBTransaction, key string) error {
	return nil
}

func (s *fakeStore) CreateShip(ctx context.Context, tx store.DBTransaction, ship *store.Ship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ship
	s.ships[ship.ID] = &cp
	return nil
}

func (s *fakeStore) GetShip(ctx context.Context, id string) (*store.Ship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.ships[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *sh
	return &cp, nil
}

func (s *fakeStore) GetShipForUpdate(ctx context.Context, tx store.DBTransaction, id string) (*store.Ship, error) {
	return s.GetShip(ctx, id)
}

func (s *fakeStore) ListShips(ctx context.Context) ([]*store.Ship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*store.Ship, 0, len(s.ships))
	for _, sh := range s.ships {
		cp := *sh
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeStore) ListShipsByStatus(ctx context.Context, status store.ShipStatus) ([]*store.Ship, error) {
	all, _ := s.ListShips(ctx)
	var out []*store.Ship
	for _, sh := range all {
		if sh.Status == status {
			out = append(out, sh)
		}
	}
	return out, nil
}

func (s *fakeStore) ListExpiredRunningShips(ctx context.Context, now time.Time) ([]*store.Ship, error) {
	all, _ := s.ListShipsByStatus(ctx, store.ShipStatusRunning)
	var out []*store.Ship
	for _, sh := range all {
		if sh.ExpiresAt != nil && sh.ExpiresAt.Before(now) {
			out = append(out, sh)
		}
	}
	return out, nil
}

func (s *fakeStore) ListWarmPoolShips(ctx context.Context) ([]*store.Ship, error) {
	all, _ := s.ListShips(ctx)
	var out []*store.Ship
	for _, sh := range all {
		if sh.WarmPool {
			out = append(out, sh)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateShipRunning(ctx context.Context, tx store.DBTransaction, id, containerID, endpoint string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.ships[id]
	if !ok {
		return store.ErrNotFound
	}
	sh.Status = store.ShipStatusRunning
	sh.ContainerID = containerID
	sh.Endpoint = endpoint
	sh.ExpiresAt = &expiresAt
	return nil
}

func (s *fakeStore) MarkShipStopped(ctx context.Context, tx store.DBTransaction, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.ships[id]
	if !ok {
		return store.ErrNotFound
	}
	sh.Status = store.ShipStatusStopped
	sh.ContainerID = ""
	sh.Endpoint = ""
	sh.ExpiresAt = nil
	sh.WarmPool = false
	return nil
}

func (s *fakeStore) SetWarmPool(ctx context.Context, tx store.DBTransaction, id string, warmPool bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.ships[id]
	if !ok {
		return store.ErrNotFound
	}
	sh.WarmPool = warmPool
	return nil
}

func (s *fakeStore) ClaimWarmPoolShip(ctx context.Context, tx store.DBTransaction, expiresAt time.Time) (*store.Ship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sh := range s.ships {
		if sh.WarmPool && sh.Status == store.ShipStatusRunning {
			sh.WarmPool = false
			sh.ExpiresAt = &expiresAt
			cp := *sh
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeStore) DeleteShip(ctx context.Context, tx store.DBTransaction, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ships, id)
	return nil
}

func (s *fakeStore) CountNonStopped(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sh := range s.ships {
		if sh.Status != store.ShipStatusStopped {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) CountByStatus(ctx context.Context) (map[store.ShipStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[store.ShipStatus]int{}
	for _, sh := range s.ships {
		out[sh.Status]++
	}
	return out, nil
}

func (s *fakeStore) CreateSession(ctx context.Context, tx store.DBTransaction, sess *store.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.SessionID] = &cp
	return nil
}

func (s *fakeStore) GetSession(ctx context.Context, sessionID string) (*store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *fakeStore) GetSessionForUpdate(ctx context.Context, tx store.DBTransaction, sessionID string) (*store.Session, error) {
	return s.GetSession(ctx, sessionID)
}

func (s *fakeStore) ListSessions(ctx context.Context) ([]*store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*store.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		cp := *sess
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeStore) ListSessionsByShip(ctx context.Context, shipID string) ([]*store.Session, error) {
	all, _ := s.ListSessions(ctx)
	var out []*store.Session
	for _, sess := range all {
		if sess.ShipID == shipID {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *fakeStore) TouchLastActivity(ctx context.Context, tx store.DBTransaction, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	sess.LastActivity = at
	return nil
}

func (s *fakeStore) ExtendExpiry(ctx context.Context, tx store.DBTransaction, sessionID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	if expiresAt.After(sess.ExpiresAt) {
		sess.ExpiresAt = expiresAt
	}
	return nil
}

func (s *fakeStore) DeleteSession(ctx context.Context, tx store.DBTransaction, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *fakeStore) DeleteSessionsByShip(ctx context.Context, tx store.DBTransaction, shipID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.ShipID == shipID {
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *fakeStore) InsertHistory(ctx context.Context, tx store.DBTransaction, h *store.ExecutionHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *h
	s.history = append(s.history, &cp)
	return nil
}

func (s *fakeStore) GetHistory(ctx context.Context, id string) (*store.ExecutionHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.history {
		if h.ID == id {
			cp := *h
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeStore) GetLastHistory(ctx context.Context, sessionID string, execType *store.ExecType) (*store.ExecutionHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		h := s.history[i]
		if h.SessionID != sessionID {
			continue
		}
		if execType != nil && h.ExecType != *execType {
			continue
		}
		cp := *h
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (s *fakeStore) ListHistory(ctx context.Context, f store.HistoryFilter) ([]*store.ExecutionHistory, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastHistoryFilter = f
	var out []*store.ExecutionHistory
	for _, h := range s.history {
		if h.SessionID != f.SessionID {
			continue
		}
		if f.ExecType != nil && h.ExecType != *f.ExecType {
			continue
		}
		if f.SuccessOnly != nil && h.Success != *f.SuccessOnly {
			continue
		}
		cp := *h
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (s *fakeStore) AnnotateHistory(ctx context.Context, tx store.DBTransaction, id string, description, notes *string, tags []string) (*store.ExecutionHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.history {
		if h.ID == id {
			if description != nil {
				h.Description = description
			}
			if notes != nil {
				h.Notes = notes
			}
			if tags != nil {
				h.Tags = tags
			}
			cp := *h
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

type noopTx struct{}

func (n *noopTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (n *noopTx) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (n *noopTx) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}
func (n *noopTx) Commit() error   { return nil }
func (n *noopTx) Rollback() error { return nil }
