// Package reaper runs the periodic sweep that stops TTL-expired Ships and
// cleans up their bound Sessions.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"shipyard/internal/driver"
	"shipyard/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type Config struct {
	Interval time.Duration
}

type Reaper struct {
	st     store.Store
	driver driver.Driver
	cfg    Config
	log    *slog.Logger
	reaped metric.Int64Counter
}

func New(st store.Store, drv driver.Driver, cfg Config, log *slog.Logger) *Reaper {
	if cfg.Interval == 0 {
		cfg.Interval = 10 * time.Second
	}

	meter := otel.Meter("shipyard/reaper")
	reaped, err := meter.Int64Counter("bay.reaper.ships_reaped",
		metric.WithDescription("Count of TTL-expired Ships stopped and cleaned up by the reaper"),
	)
	if err != nil {
		log.Warn("register reaper sweep counter", "error", err)
	}

	return &Reaper{st: st, driver: drv, cfg: cfg, log: log, reaped: reaped}
}

// Run blocks, sweeping expired ships every cfg.Interval until ctx is
// cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepOnce(ctx)
		}
	}
}

// sweepOnce finds expired Running ships, stops and marks each Stopped, and
// deletes their bound sessions. A failure on one ship is logged and left
// for the next tick rather than aborting the pass.
func (r *Reaper) sweepOnce(ctx context.Context) {
	expired, err := r.st.ListExpiredRunningShips(ctx, time.Now().UTC())
	if err != nil {
		r.log.Error("reaper: list expired ships", "error", err)
		return
	}

	for _, ship := range expired {
		if err := r.reapOne(ctx, ship); err != nil {
			r.log.Warn("reaper: failed to reap ship, retrying next tick", "ship_id", ship.ID, "error", err)
		}
	}
}

func (r *Reaper) reapOne(ctx context.Context, ship *store.Ship) error {
	reapCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if ship.ContainerID != "" {
		if err := r.driver.Stop(reapCtx, ship.ContainerID); err != nil {
			return err
		}
	}

	tx, err := r.st.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := r.st.DeleteSessionsByShip(ctx, tx, ship.ID); err != nil {
		return err
	}
	if err := r.st.MarkShipStopped(ctx, tx, ship.ID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if r.reaped != nil {
		r.reaped.Add(ctx, 1)
	}
	return nil
}
