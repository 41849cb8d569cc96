package handlers

import (
	"context"

	"shipyard/internal/driver"
	"shipyard/internal/store"
)

// fakeDriver is a no-op driver.Driver, grounded on shipservice's own
// fakeDriver test double, reused here so handler tests never touch a real
// container backend.
type fakeDriver struct {
	logsOut string
	logsErr error
	running bool
}

var _ driver.Driver = (*fakeDriver)(nil)

func (d *fakeDriver) Create(ctx context.Context, shipID string, spec store.ShipSpec) (driver.ContainerInfo, error) {
	return driver.ContainerInfo{ContainerID: "c-" + shipID, Endpoint: "127.0.0.1:9000", Status: "running"}, nil
}

func (d *fakeDriver) Stop(ctx context.Context, containerID string) error { return nil }

func (d *fakeDriver) DataExists(ctx context.Context, shipID string) bool { return false }

func (d *fakeDriver) Logs(ctx context.Context, containerID string, tail int) (string, error) {
	return d.logsOut, d.logsErr
}

func (d *fakeDriver) IsRunning(ctx context.Context, containerID string) bool { return d.running }
