package driver

import "fmt"

// FactoryConfig bundles every backend's construction knobs so main can
// build whichever one CONTAINER_DRIVER selects without a giant parameter
// list threaded through by hand.
type FactoryConfig struct {
	Kind string // "docker" | "docker-host" | "podman" | "podman-host" | "kubernetes"

	DockerHost    string
	PodmanHost    string
	Image         string
	Network       string
	ServicePort   int
	DataDir       string

	KubeConfigPath   string
	KubeNamespace    string
	KubeStorageClass string
	KubePVCSize      string
}

// New constructs the Driver named by cfg.Kind.
func New(cfg FactoryConfig) (Driver, error) {
	switch cfg.Kind {
	case "docker":
		return NewDockerAttached(DockerConfig{
			Host: cfg.DockerHost, Image: cfg.Image, Network: cfg.Network,
			ServicePort: cfg.ServicePort, DataDir: cfg.DataDir,
		})
	case "docker-host":
		return NewDockerHostMapped(DockerConfig{
			Host: cfg.DockerHost, Image: cfg.Image, Network: cfg.Network,
			ServicePort: cfg.ServicePort, DataDir: cfg.DataDir,
		})
	case "podman":
		return NewPodmanAttached(DockerConfig{
			Host: cfg.PodmanHost, Image: cfg.Image, Network: cfg.Network,
			ServicePort: cfg.ServicePort, DataDir: cfg.DataDir,
		})
	case "podman-host":
		return NewPodmanHostMapped(DockerConfig{
			Host: cfg.PodmanHost, Image: cfg.Image, Network: cfg.Network,
			ServicePort: cfg.ServicePort, DataDir: cfg.DataDir,
		})
	case "kubernetes":
		return NewKubernetesDriver(KubernetesConfig{
			Kubeconfig:       cfg.KubeConfigPath,
			Namespace:        cfg.KubeNamespace,
			Image:            cfg.Image,
			ServicePort:      cfg.ServicePort,
			StorageClassName: cfg.KubeStorageClass,
			PVCSize:          cfg.KubePVCSize,
		})
	default:
		return nil, fmt.Errorf("unknown container driver %q", cfg.Kind)
	}
}
