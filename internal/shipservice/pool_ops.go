package shipservice

import (
	"context"
	"time"

	"shipyard/internal/store"

	"github.com/google/uuid"
)

// CreatePoolShip creates a new Ship bound to no session and marks it as a
// warm-pool member once it becomes Running. Used exclusively by the
// replenisher; ordinary allocation never calls this, it only ever claims
// through ClaimWarmPoolShip.
func (s *Service) CreatePoolShip(ctx context.Context, spec store.ShipSpec, ttlSeconds int) (*store.Ship, error) {
	if ttlSeconds <= 0 {
		ttlSeconds = s.cfg.DefaultTTLSeconds
	}

	now := time.Now().UTC()
	ship := &store.Ship{
		ID:         uuid.NewString(),
		Status:     store.ShipStatusCreating,
		Spec:       spec,
		TTLSeconds: ttlSeconds,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateShip(ctx, tx, ship); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	started, err := s.startShip(ctx, ship, ttlSeconds)
	if err != nil {
		return nil, err
	}

	tx, err = s.store.BeginTx(ctx)
	if err != nil {
		return started, err
	}
	defer tx.Rollback()
	if err := s.store.SetWarmPool(ctx, tx, started.ID, true); err != nil {
		return started, err
	}
	if err := tx.Commit(); err != nil {
		return started, err
	}
	started.WarmPool = true
	return started, nil
}

// EvictPoolShip stops and deletes a Ship still sitting unclaimed in the
// pool. Racing an ordinary allocator's ClaimWarmPoolShip is safe: the row is
// read with GetShipForUpdate inside the eviction transaction, so a claim
// (which skips locked rows) cannot take it mid-eviction, and a ship already
// claimed no longer has warm_pool set and is skipped. A row that is already
// gone is skipped too.
func (s *Service) EvictPoolShip(ctx context.Context, shipID string) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ship, err := s.store.GetShipForUpdate(ctx, tx, shipID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return err
	}
	if !ship.WarmPool {
		// Claimed by an allocator between the replenisher's listing and now.
		return nil
	}

	if ship.ContainerID != "" {
		if err := s.driver.Stop(ctx, ship.ContainerID); err != nil {
			return err
		}
	}

	if err := s.store.DeleteShip(ctx, tx, shipID); err != nil {
		return err
	}
	return tx.Commit()
}
