// Package driver implements the container capability that the Ship Service
// consumes: create, stop, inspect, and stream logs from a Ship's backing
// container on Docker, Podman, or Kubernetes.
package driver

import (
	"context"

	"shipyard/internal/store"
)

// ContainerInfo describes a container just created or inspected.
type ContainerInfo struct {
	ContainerID string
	Endpoint    string // reachable address, e.g. "10.0.1.4:8123" or "127.0.0.1:41231"
	Status      string
}

// Driver is the capability every container backend implements. A factory
// selects one concrete implementation at startup; nothing above this
// interface needs to know which backend is in play.
type Driver interface {
	// Create pulls/ensures the Ship image, creates and starts the
	// container, mounts a persistent volume keyed by shipID, joins the
	// configured network, and waits for the container's own runtime
	// readiness (not service readiness, which lives in shipclient).
	Create(ctx context.Context, shipID string, spec store.ShipSpec) (ContainerInfo, error)

	// Stop performs a best-effort graceful stop then remove. Idempotent:
	// a container that is already gone is treated as success.
	Stop(ctx context.Context, containerID string) error

	// DataExists reports whether a persistent volume/directory for this
	// ship already holds prior state.
	DataExists(ctx context.Context, shipID string) bool

	// Logs returns a bounded tail of the container's stdout/stderr.
	Logs(ctx context.Context, containerID string, tail int) (string, error)

	// IsRunning reports backend-specific liveness.
	IsRunning(ctx context.Context, containerID string) bool
}
