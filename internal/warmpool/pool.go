// Package warmpool runs the background replenisher that keeps a configured
// number of pre-warmed, unassigned Ships ready to absorb allocation
// latency.
package warmpool

import (
	"context"
	"log/slog"
	"time"

	"shipyard/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// creator is the subset of shipservice.Service the pool depends on: it
// never claims pool ships itself (that race belongs to the atomic store
// primitive), it only creates new ones and evicts excess ones.
type creator interface {
	CreatePoolShip(ctx context.Context, spec store.ShipSpec, ttlSeconds int) (*store.Ship, error)
	EvictPoolShip(ctx context.Context, shipID string) error
}

// Config controls pool sizing and cadence.
type Config struct {
	Enabled            bool
	MinSize            int
	MaxSize            int
	ReplenishInterval  time.Duration
	DefaultSpec        store.ShipSpec
	DefaultTTLSeconds  int
	MaxShipNum         int
}

type Pool struct {
	st     store.Store
	svc    creator
	cfg    Config
	log    *slog.Logger
}

func New(st store.Store, svc creator, cfg Config, log *slog.Logger) *Pool {
	if cfg.ReplenishInterval == 0 {
		cfg.ReplenishInterval = 30 * time.Second
	}
	p := &Pool{st: st, svc: svc, cfg: cfg, log: log}

	meter := otel.Meter("shipyard/warmpool")
	_, err := meter.Int64ObservableGauge("bay.warmpool.size",
		metric.WithDescription("Current number of unclaimed Ships sitting in the warm pool"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			pooled, err := p.st.ListWarmPoolShips(ctx)
			if err != nil {
				return nil
			}
			obs.Observe(int64(len(pooled)))
			return nil
		}),
	)
	if err != nil {
		log.Warn("register warm pool size metric", "error", err)
	}
	return p
}

// Run blocks, ticking the replenish loop until ctx is cancelled. Intended
// to be launched as its own goroutine at startup.
func (p *Pool) Run(ctx context.Context) {
	if !p.cfg.Enabled {
		return
	}

	ticker := time.NewTicker(p.cfg.ReplenishInterval)
	defer ticker.Stop()

	p.replenishOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.replenishOnce(ctx)
		}
	}
}

// replenishOnce implements one tick: count, then top up or shrink. The
// count is advisory — the atomic pool-claim in the store is the only thing
// that prevents a double-claim race with an ordinary
// allocator, so a stale count here only costs an extra create/evict, never
// a correctness violation.
func (p *Pool) replenishOnce(ctx context.Context) {
	pooled, err := p.st.ListWarmPoolShips(ctx)
	if err != nil {
		p.log.Error("warm pool: list pooled ships", "error", err)
		return
	}
	n := len(pooled)

	if n < p.cfg.MinSize {
		total, err := p.st.CountNonStopped(ctx)
		if err != nil {
			p.log.Error("warm pool: count non-stopped ships", "error", err)
			return
		}
		budget := p.cfg.MaxShipNum - total
		want := p.cfg.MaxSize - n
		if want > budget {
			want = budget
		}
		for i := 0; i < want; i++ {
			if _, err := p.svc.CreatePoolShip(ctx, p.cfg.DefaultSpec, p.cfg.DefaultTTLSeconds); err != nil {
				p.log.Warn("warm pool: create pool ship", "error", err)
				return
			}
		}
		if want > 0 {
			p.log.Info("warm pool replenished", "created", want)
		}
		return
	}

	if n > p.cfg.MaxSize {
		excess := n - p.cfg.MaxSize
		oldest := oldestFirst(pooled)
		for i := 0; i < excess && i < len(oldest); i++ {
			if err := p.svc.EvictPoolShip(ctx, oldest[i].ID); err != nil {
				p.log.Warn("warm pool: evict pool ship", "ship_id", oldest[i].ID, "error", err)
			}
		}
	}
}

func oldestFirst(ships []*store.Ship) []*store.Ship {
	out := make([]*store.Ship, len(ships))
	copy(out, ships)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.Before(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
