// Package shipservice implements the allocation core: binding sessions to
// Ships, warm-pool consumption, fresh creation under a global cap, TTL
// extension, and the exec/stop/delete lifecycle operations. Every
// allocation decision is made inside a single store transaction so two
// concurrent callers for the same session never double-bind.
package shipservice

import (
	"context"
	"log/slog"
	"time"

	"shipyard/internal/driver"
	"shipyard/internal/shiperr"
	"shipyard/internal/shipclient"
	"shipyard/internal/store"

	"github.com/google/uuid"
)

// CapacityBehavior selects what happens when the global Ship cap is reached.
type CapacityBehavior string

const (
	CapacityReject CapacityBehavior = "reject"
	CapacityWait   CapacityBehavior = "wait"
)

// Config bundles the allocation policy knobs that come from environment
// configuration rather than the request.
type Config struct {
	MaxShipNum          int
	CapacityBehavior    CapacityBehavior
	CapacityWaitTimeout time.Duration
	DefaultTTLSeconds   int
	HealthCheckTimeout  time.Duration
	HealthCheckInterval time.Duration
	ExecTimeout         time.Duration
}

// Service runs allocation and lifecycle operations against one Driver,
// resolved once at startup by the caller from CONTAINER_DRIVER.
type Service struct {
	store   store.Store
	driver  driver.Driver
	client  shipClientFactory
	cfg     Config
	waiters *waiterQueue
	log     *slog.Logger
}

// shipClientFactory exists so tests can substitute a fake Ship client
// without standing up real HTTP servers per Ship.
type shipClientFactory func(endpoint string) shipAPI

// shipAPI is the subset of shipclient.Client the service depends on.
type shipAPI interface {
	WaitForReady(ctx context.Context, timeout, interval time.Duration) error
	Exec(ctx context.Context, sessionID string, req shipclient.ExecRequest, timeout time.Duration) (shipclient.ExecResult, error)
}

// DefaultClientFactory builds a real shipclient.Client per endpoint. Passed
// to New in production; tests substitute a fake.
func DefaultClientFactory(endpoint string) shipAPI {
	return shipclient.New(endpoint)
}

func New(st store.Store, drv driver.Driver, clientFactory shipClientFactory, cfg Config, log *slog.Logger) *Service {
	if cfg.CapacityBehavior == "" {
		cfg.CapacityBehavior = CapacityReject
	}
	if cfg.DefaultTTLSeconds == 0 {
		cfg.DefaultTTLSeconds = 3600
	}
	if cfg.HealthCheckTimeout == 0 {
		cfg.HealthCheckTimeout = 60 * time.Second
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = 2 * time.Second
	}
	return &Service{
		store:   st,
		driver:  drv,
		client:  clientFactory,
		cfg:     cfg,
		waiters: newWaiterQueue(),
		log:     log,
	}
}

// AcquireRequest is the input to Acquire.
type AcquireRequest struct {
	SessionID   string
	TTLSeconds  int
	Spec        store.ShipSpec
	ForceCreate bool
}

// Acquire implements the four-step allocation policy: existing binding,
// stopped-ship recovery, warm-pool claim, fresh creation (subject to the
// capacity policy).
func (s *Service) Acquire(ctx context.Context, req AcquireRequest) (*store.Ship, error) {
	ttl := req.TTLSeconds
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTLSeconds
	}

	release, err := s.lockSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	if !req.ForceCreate {
		if ship, ok, err := s.tryExistingBinding(ctx, req.SessionID, ttl); err != nil {
			return nil, err
		} else if ok {
			return ship, nil
		}

		if ship, ok := s.tryRecoverStopped(ctx, req.SessionID, ttl); ok {
			return ship, nil
		}

		if ship, ok, err := s.tryClaimWarmPool(ctx, req.SessionID, ttl); err != nil {
			return nil, err
		} else if ok {
			return ship, nil
		}
	}

	return s.createFresh(ctx, req.SessionID, ttl, req.Spec)
}

// lockSession serializes every allocation decision for one session_id
// behind a transaction-scoped advisory lock. Without this, two racing
// POST /ship calls for a brand-new session both miss on
// tryExistingBinding/tryRecoverStopped/tryClaimWarmPool and both fall
// through to createFresh, each creating and binding its own Ship — the
// second bindSession's upsert silently overwrites the first's session row,
// so one caller gets back a Ship no session actually points at anymore.
// The returned release func must be deferred; it holds the lock open for
// the remainder of Acquire, so a second caller for the same session blocks
// until the first has already bound (or failed), then re-runs the checks
// above and finds the binding already in place.
func (s *Service) lockSession(ctx context.Context, sessionID string) (func(), error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.AdvisoryLock(ctx, tx, "session:"+sessionID); err != nil {
		tx.Rollback()
		return nil, err
	}
	return func() { tx.Rollback() }, nil
}

// tryExistingBinding implements step 1: if the session is already bound to
// a Running ship that the driver confirms is alive, extend and return it.
func (s *Service) tryExistingBinding(ctx context.Context, sessionID string, ttl int) (*store.Ship, bool, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}

	ship, err := s.store.GetShip(ctx, sess.ShipID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	if ship.Status != store.ShipStatusRunning {
		return nil, false, nil
	}
	if !s.driver.IsRunning(ctx, ship.ContainerID) {
		return nil, false, nil
	}

	now := time.Now().UTC()
	newExpiry := now.Add(time.Duration(ttl) * time.Second)

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	if err := s.store.TouchLastActivity(ctx, tx, sessionID, now); err != nil {
		return nil, false, err
	}
	// Monotonic: never shorten expiry. ExtendExpiry's WHERE clause already
	// enforces this at the SQL layer for the session; ships follow the
	// same rule below.
	if err := s.store.ExtendExpiry(ctx, tx, sessionID, newExpiry); err != nil {
		return nil, false, err
	}
	if ship.ExpiresAt == nil || newExpiry.After(*ship.ExpiresAt) {
		if err := s.store.UpdateShipRunning(ctx, tx, ship.ID, ship.ContainerID, ship.Endpoint, newExpiry); err != nil {
			return nil, false, err
		}
		ship.ExpiresAt = &newExpiry
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	return ship, true, nil
}

// tryRecoverStopped implements step 2: best-effort revival of a Stopped
// ship whose data volume still exists. Any failure here simply falls
// through to warm-pool claim / fresh creation.
func (s *Service) tryRecoverStopped(ctx context.Context, sessionID string, ttl int) (*store.Ship, bool) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, false
	}
	ship, err := s.store.GetShip(ctx, sess.ShipID)
	if err != nil || ship.Status != store.ShipStatusStopped {
		return nil, false
	}
	if !s.driver.DataExists(ctx, ship.ID) {
		return nil, false
	}

	revived, err := s.startShip(ctx, ship, ttl)
	if err != nil {
		s.log.Warn("stopped ship recovery failed, falling through", "ship_id", ship.ID, "error", err)
		return nil, false
	}
	return revived, true
}

// tryClaimWarmPool implements step 3: an atomic pool claim, then binds the
// session to the claimed ship.
func (s *Service) tryClaimWarmPool(ctx context.Context, sessionID string, ttl int) (*store.Ship, bool, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(time.Duration(ttl) * time.Second)

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	ship, err := s.store.ClaimWarmPoolShip(ctx, tx, expiresAt)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}

	if err := s.bindSession(ctx, tx, sessionID, ship.ID, now, expiresAt, ttl); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	ship.ExpiresAt = &expiresAt
	return ship, true, nil
}

const capacityLockKey = "ship-capacity-gate"

// createFresh implements step 4: cap check, then Creating-row insert,
// driver create, readiness probe, and finally binding to Running.
func (s *Service) createFresh(ctx context.Context, sessionID string, ttl int, spec store.ShipSpec) (*store.Ship, error) {
	for {
		ship, admitted, err := s.tryAdmitNewShip(ctx, spec, ttl)
		if err != nil {
			return nil, err
		}
		if admitted {
			return s.finishFreshShip(ctx, sessionID, ship, ttl)
		}

		if s.cfg.CapacityBehavior == CapacityReject {
			return nil, shiperr.New(shiperr.KindCapacityReject, "ship capacity exhausted")
		}

		if err := s.waiters.wait(ctx, s.capacityWaitTimeout()); err != nil {
			return nil, err
		}
		// Woken by a release or the timeout elapsing without cancellation;
		// loop back to re-check the count rather than assuming we won.
	}
}

// tryAdmitNewShip runs the cap check and the Creating-row insert inside one
// transaction, behind a global advisory lock. Without the lock, two callers
// near MAX_SHIP_NUM could both read CountNonStopped below the cap in the gap
// before either has inserted its row, and both would be admitted, letting
// the fleet exceed the configured cap. Holding the lock only across the
// count+insert keeps it uncontended during the slow parts of allocation
// (driver.Create, the readiness probe).
func (s *Service) tryAdmitNewShip(ctx context.Context, spec store.ShipSpec, ttl int) (*store.Ship, bool, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	if err := s.store.AdvisoryLock(ctx, tx, capacityLockKey); err != nil {
		return nil, false, err
	}

	count, err := s.store.CountNonStopped(ctx)
	if err != nil {
		return nil, false, err
	}
	if count >= s.cfg.MaxShipNum {
		return nil, false, nil
	}

	now := time.Now().UTC()
	ship := &store.Ship{
		ID:         uuid.NewString(),
		Status:     store.ShipStatusCreating,
		Spec:       spec,
		TTLSeconds: ttl,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateShip(ctx, tx, ship); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return ship, true, nil
}

// finishFreshShip drives the admitted Creating row through startShip and
// binds the session to it.
func (s *Service) finishFreshShip(ctx context.Context, sessionID string, ship *store.Ship, ttl int) (*store.Ship, error) {
	started, err := s.startShip(ctx, ship, ttl)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	expiresAt := *started.ExpiresAt
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return started, err
	}
	defer tx.Rollback()
	if err := s.bindSession(ctx, tx, sessionID, started.ID, now, expiresAt, ttl); err != nil {
		return started, err
	}
	if err := tx.Commit(); err != nil {
		return started, err
	}

	return started, nil
}

// startShip drives a Creating or Stopped ship through driver.Create and the
// readiness probe, transitioning it to Running on success or Stopped on
// failure. Used both by fresh creation and Stopped-ship recovery.
func (s *Service) startShip(ctx context.Context, ship *store.Ship, ttl int) (*store.Ship, error) {
	info, err := s.driver.Create(ctx, ship.ID, ship.Spec)
	if err != nil {
		s.markStoppedBestEffort(ctx, ship.ID)
		return nil, err
	}

	prober := s.client(info.Endpoint)
	if err := prober.WaitForReady(ctx, s.cfg.HealthCheckTimeout, s.cfg.HealthCheckInterval); err != nil {
		_ = s.driver.Stop(ctx, info.ContainerID)
		s.markStoppedBestEffort(ctx, ship.ID)
		return nil, err
	}

	expiresAt := time.Now().UTC().Add(time.Duration(ttl) * time.Second)
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := s.store.UpdateShipRunning(ctx, tx, ship.ID, info.ContainerID, info.Endpoint, expiresAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	ship.Status = store.ShipStatusRunning
	ship.ContainerID = info.ContainerID
	ship.Endpoint = info.Endpoint
	ship.ExpiresAt = &expiresAt
	return ship, nil
}

func (s *Service) markStoppedBestEffort(ctx context.Context, shipID string) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		s.log.Error("mark ship stopped: begin tx", "ship_id", shipID, "error", err)
		return
	}
	defer tx.Rollback()
	if err := s.store.MarkShipStopped(ctx, tx, shipID); err != nil {
		s.log.Error("mark ship stopped", "ship_id", shipID, "error", err)
		return
	}
	tx.Commit()
}

func (s *Service) bindSession(ctx context.Context, tx store.DBTransaction, sessionID, shipID string, now, expiresAt time.Time, ttl int) error {
	existing, err := s.store.GetSession(ctx, sessionID)
	if err == nil && existing != nil {
		if err := s.store.DeleteSession(ctx, tx, sessionID); err != nil {
			return err
		}
	}
	return s.store.CreateSession(ctx, tx, &store.Session{
		SessionID:    sessionID,
		ShipID:       shipID,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    expiresAt,
		InitialTTL:   ttl,
	})
}

func (s *Service) capacityWaitTimeout() time.Duration {
	if s.cfg.CapacityWaitTimeout > 0 {
		return s.cfg.CapacityWaitTimeout
	}
	return 30 * time.Second
}

// ExtendTTL updates expires_at to max(current, now+ttl). A Stopped ship
// has no expiry to extend and is rejected as an invalid request.
func (s *Service) ExtendTTL(ctx context.Context, shipID string, ttlSeconds int) (*store.Ship, error) {
	ship, err := s.store.GetShip(ctx, shipID)
	if err != nil {
		return nil, err
	}
	if ship.Status != store.ShipStatusRunning {
		return nil, shiperr.New(shiperr.KindInvalidRequest, "cannot extend ttl on a ship that is not running")
	}

	newExpiry := time.Now().UTC().Add(time.Duration(ttlSeconds) * time.Second)
	if ship.ExpiresAt != nil && !newExpiry.After(*ship.ExpiresAt) {
		return ship, nil
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := s.store.UpdateShipRunning(ctx, tx, ship.ID, ship.ContainerID, ship.Endpoint, newExpiry); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	ship.ExpiresAt = &newExpiry
	return ship, nil
}

// Stop performs a driver stop and marks the ship Stopped, keeping its row
// and data volume.
func (s *Service) Stop(ctx context.Context, shipID string) error {
	ship, err := s.store.GetShip(ctx, shipID)
	if err != nil {
		return err
	}
	if ship.Status == store.ShipStatusStopped {
		return shiperr.New(shiperr.KindNotFound, "ship is already stopped")
	}
	if ship.ContainerID != "" {
		if err := s.driver.Stop(ctx, ship.ContainerID); err != nil {
			return err
		}
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.store.MarkShipStopped(ctx, tx, shipID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.waiters.wake()
	return nil
}

// DeletePermanent stops the ship if necessary, then removes its row and
// all dependent sessions. The backing data volume is left in place.
func (s *Service) DeletePermanent(ctx context.Context, shipID string) error {
	ship, err := s.store.GetShip(ctx, shipID)
	if err != nil {
		return err
	}
	if ship.Status != store.ShipStatusStopped && ship.ContainerID != "" {
		_ = s.driver.Stop(ctx, ship.ContainerID)
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.store.DeleteSessionsByShip(ctx, tx, shipID); err != nil {
		return err
	}
	if err := s.store.DeleteShip(ctx, tx, shipID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.waiters.wake()
	return nil
}

// StartShip recovers a Stopped ship on demand (POST /ship/{id}/start),
// independent of the acquire path.
func (s *Service) StartShip(ctx context.Context, shipID string) (*store.Ship, error) {
	ship, err := s.store.GetShip(ctx, shipID)
	if err != nil {
		return nil, err
	}
	if ship.Status == store.ShipStatusRunning {
		return ship, nil
	}
	return s.startShip(ctx, ship, ship.TTLSeconds)
}
