package driver

// DefaultPodmanSocket is the conventional rootless Podman API socket path;
// callers typically resolve it from $XDG_RUNTIME_DIR/podman/podman.sock
// rather than hardcoding it, but this is a reasonable fallback for a
// single-user host.
const DefaultPodmanSocket = "unix:///run/user/1000/podman/podman.sock"

// PodmanConfig is DockerConfig under another name: Podman speaks the same
// API dockerDriver already drives, so NewPodmanAttached/NewPodmanHostMapped
// in docker.go just point DockerConfig.Host at a Podman socket instead of
// dockerd's. This alias exists so callers wiring up config don't have to
// read "Docker" when they mean Podman.
type PodmanConfig = DockerConfig
