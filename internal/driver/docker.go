package driver

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"shipyard/internal/shiperr"
	"shipyard/internal/store"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/go-connections/nat"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
)

// DockerConfig configures both Docker/Podman driver variants.
type DockerConfig struct {
	// Host is the Docker-compatible engine socket, e.g. "unix:///var/run/docker.sock"
	// or "unix:///run/podman/podman.sock". Empty uses client.FromEnv.
	Host         string
	Image        string
	Network      string
	ServicePort  int
	DataDir      string
	CreatedByTag string // "bay" for Docker, "bay-podman" for Podman; distinguishes owned containers
}

// dockerDriver is the shared implementation behind the four Docker/Podman
// variants; only IP resolution and endpoint formatting differ between the
// attached and host-mapped modes, mirroring BaseDockerDriver's split
// between shared container-create logic and an overridable _get_ip_address.
type dockerDriver struct {
	cli        *client.Client
	cfg        DockerConfig
	ports      *PortAllocator
	hostMapped bool

	mu              sync.Mutex
	shipIDByContainer map[string]string // for releasing host ports on Stop, which only gets a containerID
}

// NewDockerAttached builds the variant used when Bay itself runs inside a
// container on the same Docker network as its Ships: the endpoint is the
// container's network IP.
func NewDockerAttached(cfg DockerConfig) (Driver, error) {
	return newDockerDriver(cfg, false)
}

// NewDockerHostMapped builds the variant used when Bay runs on the host:
// the endpoint is 127.0.0.1 plus a dynamically allocated host port.
func NewDockerHostMapped(cfg DockerConfig) (Driver, error) {
	return newDockerDriver(cfg, true)
}

// NewPodmanAttached and NewPodmanHostMapped are identical to their Docker
// counterparts because Podman exposes a Docker-API-compatible socket; the
// only difference is which socket DockerConfig.Host points at and the
// created_by label used for diagnostics.
func NewPodmanAttached(cfg DockerConfig) (Driver, error) {
	if cfg.CreatedByTag == "" {
		cfg.CreatedByTag = "bay-podman"
	}
	return newDockerDriver(cfg, false)
}

func NewPodmanHostMapped(cfg DockerConfig) (Driver, error) {
	if cfg.CreatedByTag == "" {
		cfg.CreatedByTag = "bay-podman"
	}
	return newDockerDriver(cfg, true)
}

func newDockerDriver(cfg DockerConfig, hostMapped bool) (Driver, error) {
	if cfg.CreatedByTag == "" {
		cfg.CreatedByTag = "bay"
	}
	if cfg.ServicePort == 0 {
		cfg.ServicePort = 8123
	}

	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	} else {
		opts = append(opts, client.FromEnv)
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, shiperr.Wrap(shiperr.KindBackendUnreachable, "create docker client", err)
	}

	return &dockerDriver{
		cli:               cli,
		cfg:               cfg,
		ports:             NewPortAllocator(0, 0),
		hostMapped:        hostMapped,
		shipIDByContainer: make(map[string]string),
	}, nil
}

func (d *dockerDriver) shipDirs(shipID string) (home, metadata string) {
	root := filepath.Join(d.cfg.DataDir, shipID)
	return filepath.Join(root, "home"), filepath.Join(root, "metadata")
}

func (d *dockerDriver) ensureShipDirs(shipID string) (home, metadata string, err error) {
	home, metadata = d.shipDirs(shipID)
	if err := os.MkdirAll(home, 0o777); err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(metadata, 0o777); err != nil {
		return "", "", err
	}
	// Explicit chmod because MkdirAll applies the mode through umask.
	if err := os.Chmod(home, 0o777); err != nil {
		return "", "", err
	}
	if err := os.Chmod(metadata, 0o777); err != nil {
		return "", "", err
	}
	return home, metadata, nil
}

func (d *dockerDriver) DataExists(ctx context.Context, shipID string) bool {
	home, metadata := d.shipDirs(shipID)
	_, err1 := os.Stat(home)
	_, err2 := os.Stat(metadata)
	return err1 == nil && err2 == nil
}

func (d *dockerDriver) Create(ctx context.Context, shipID string, spec store.ShipSpec) (ContainerInfo, error) {
	if err := d.ensureImage(ctx); err != nil {
		return ContainerInfo{}, err
	}

	home, metadata, err := d.ensureShipDirs(shipID)
	if err != nil {
		return ContainerInfo{}, shiperr.Wrap(shiperr.KindBackendUnreachable, "prepare ship data dirs", err)
	}

	portKey := nat.Port(fmt.Sprintf("%d/tcp", d.cfg.ServicePort))

	hostConfig := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyDisabled},
		Binds: []string{
			home + ":/home",
			metadata + ":/app/metadata",
		},
	}

	var allocatedPort int
	if d.hostMapped {
		hostPort := ""
		if d.ports.rangeLow != 0 && d.ports.rangeHigh != 0 {
			p, err := d.ports.Allocate(shipID)
			if err != nil {
				return ContainerInfo{}, shiperr.Wrap(shiperr.KindBackendUnreachable, "allocate host port for ship "+shipID, err)
			}
			allocatedPort = p
			hostPort = strconv.Itoa(p)
		}
		hostConfig.PortBindings = nat.PortMap{
			portKey: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: hostPort}},
		}
	}

	if spec.CPUs > 0 {
		hostConfig.CPUQuota = int64(spec.CPUs * 100000)
		hostConfig.CPUPeriod = 100000
	}
	if spec.Memory != "" {
		memBytes, err := ParseDockerMemory(spec.Memory)
		if err != nil {
			return ContainerInfo{}, err
		}
		hostConfig.Memory = memBytes
	}
	if spec.Disk != "" {
		diskBytes, err := ParseDockerMemory(spec.Disk)
		if err != nil {
			return ContainerInfo{}, err
		}
		hostConfig.StorageOpt = map[string]string{"size": strconv.FormatInt(diskBytes, 10)}
	}

	containerConfig := &container.Config{
		Image: d.cfg.Image,
		Env:   []string{"SHIP_ID=" + shipID},
		Labels: map[string]string{
			"ship_id":    shipID,
			"created_by": d.cfg.CreatedByTag,
		},
		ExposedPorts: nat.PortSet{portKey: struct{}{}},
	}

	var networkingConfig *network.NetworkingConfig
	if d.cfg.Network != "" && !d.hostMapped {
		networkingConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				d.cfg.Network: {},
			},
		}
	}

	name := "ship-" + shipID
	resp, err := d.cli.ContainerCreate(ctx, containerConfig, hostConfig, networkingConfig, nil, name)
	if err != nil && isStorageOptUnsupported(err) {
		hostConfig.StorageOpt = nil
		resp, err = d.cli.ContainerCreate(ctx, containerConfig, hostConfig, networkingConfig, nil, name)
	}
	if err != nil {
		return ContainerInfo{}, shiperr.Wrap(shiperr.KindBackendUnreachable, "create container for ship "+shipID, err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return ContainerInfo{}, shiperr.Wrap(shiperr.KindBackendUnreachable, "start container for ship "+shipID, err)
	}

	info, err := d.cli.ContainerInspect(ctx, resp.ID)
	if err != nil {
		return ContainerInfo{}, shiperr.Wrap(shiperr.KindBackendUnreachable, "inspect container "+resp.ID, err)
	}

	endpoint, err := d.resolveEndpoint(info, portKey, allocatedPort)
	if err != nil {
		_ = d.Stop(ctx, resp.ID)
		return ContainerInfo{}, err
	}

	if allocatedPort != 0 {
		d.mu.Lock()
		d.shipIDByContainer[resp.ID] = shipID
		d.mu.Unlock()
	}

	return ContainerInfo{
		ContainerID: resp.ID,
		Endpoint:    endpoint,
		Status:      info.State.Status,
	}, nil
}

// resolveEndpoint picks the address other services should use to reach the
// Ship's service port: the container's own network IP when attached to the
// same Docker network, or 127.0.0.1 plus the bound host port otherwise.
// Mirrors BaseDockerDriver._get_ip_address's network-then-toplevel fallback.
func (d *dockerDriver) resolveEndpoint(info types.ContainerJSON, portKey nat.Port, allocatedPort int) (string, error) {
	if d.hostMapped {
		if allocatedPort != 0 {
			return fmt.Sprintf("127.0.0.1:%d", allocatedPort), nil
		}
		if info.NetworkSettings != nil {
			if bindings, ok := info.NetworkSettings.Ports[portKey]; ok && len(bindings) > 0 && bindings[0].HostPort != "" {
				return "127.0.0.1:" + bindings[0].HostPort, nil
			}
		}
		return "", shiperr.New(shiperr.KindBackendUnreachable, "no host port bound for container "+info.ID)
	}

	if info.NetworkSettings != nil {
		if d.cfg.Network != "" {
			if net, ok := info.NetworkSettings.Networks[d.cfg.Network]; ok && net.IPAddress != "" {
				return fmt.Sprintf("%s:%d", net.IPAddress, d.cfg.ServicePort), nil
			}
		}
		if info.NetworkSettings.IPAddress != "" {
			return fmt.Sprintf("%s:%d", info.NetworkSettings.IPAddress, d.cfg.ServicePort), nil
		}
	}
	return "", shiperr.New(shiperr.KindBackendUnreachable, "no network address for container "+info.ID)
}

func isStorageOptUnsupported(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "storage-opt") || strings.Contains(msg, "storageopt")
}

func (d *dockerDriver) Stop(ctx context.Context, containerID string) error {
	timeout := 10
	if err := d.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil && !isContainerNotFound(err) {
		return shiperr.Wrap(shiperr.KindBackendUnreachable, "stop container "+containerID, err)
	}
	if err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil && !isContainerNotFound(err) {
		return shiperr.Wrap(shiperr.KindBackendUnreachable, "remove container "+containerID, err)
	}

	d.mu.Lock()
	shipID, ok := d.shipIDByContainer[containerID]
	delete(d.shipIDByContainer, containerID)
	d.mu.Unlock()
	if ok {
		d.ports.Release(shipID)
	}
	return nil
}

func isContainerNotFound(err error) bool {
	return client.IsErrNotFound(err)
}

func (d *dockerDriver) Logs(ctx context.Context, containerID string, tail int) (string, error) {
	if tail <= 0 || tail > 10000 {
		tail = 1000
	}
	rc, err := d.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(tail),
	})
	if err != nil {
		if isContainerNotFound(err) {
			return "", nil
		}
		return "", shiperr.Wrap(shiperr.KindBackendUnreachable, "get logs for "+containerID, err)
	}
	defer rc.Close()

	buf, err := io.ReadAll(rc)
	if err != nil {
		return "", shiperr.Wrap(shiperr.KindBackendUnreachable, "read logs for "+containerID, err)
	}
	return string(buf), nil
}

func (d *dockerDriver) IsRunning(ctx context.Context, containerID string) bool {
	info, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return false
	}
	return info.State != nil && info.State.Running
}

func (d *dockerDriver) ensureImage(ctx context.Context) error {
	_, _, err := d.cli.ImageInspectWithRaw(ctx, d.cfg.Image)
	if err == nil {
		return nil
	}

	reader, err := d.cli.ImagePull(ctx, d.cfg.Image, image.PullOptions{})
	if err != nil {
		return shiperr.Wrap(shiperr.KindImagePullFailed, "pull image "+d.cfg.Image, err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return shiperr.Wrap(shiperr.KindImagePullFailed, "pull image "+d.cfg.Image, err)
	}
	return nil
}
