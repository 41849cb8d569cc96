// Package config handles environment variable loading for the Bay control
// plane: database connection, HTTP port, capacity policy, driver selection,
// and warm-pool sizing.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the Bay process.
type Config struct {
	DatabaseURL string
	HTTPPort    int

	AccessToken string

	MaxShipNum          int
	BehaviorAfterMax    string // "reject" | "wait"
	CapacityWaitTimeout time.Duration

	ContainerDriver   string // "docker" | "docker-host" | "podman" | "podman-host" | "kubernetes"
	DockerImage       string
	DockerNetwork     string
	DockerHost        string
	PodmanHost        string
	ShipContainerPort int
	ShipDataDir       string

	ShipHealthCheckTimeout  time.Duration
	ShipHealthCheckInterval time.Duration
	ShipExecTimeout         time.Duration

	KubeNamespace       string
	KubeConfigPath      string
	KubeImagePullPolicy string
	KubePVCSize         string
	KubeStorageClass    string

	WarmPoolEnabled           bool
	WarmPoolMinSize           int
	WarmPoolMaxSize           int
	WarmPoolReplenishInterval time.Duration
	WarmPoolDefaultTTL        int // seconds; pool ships get a long default, distinct from ordinary ships'

	ReaperInterval time.Duration

	OTLPCollectorAddr string
}

// Load reads configuration from environment variables, applying the
// defaults documented for each option.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		DatabaseURL:         dbURL,
		AccessToken:         getenvDefault("ACCESS_TOKEN", "secret-token"),
		BehaviorAfterMax:    getenvDefault("BEHAVIOR_AFTER_MAX_SHIP", "reject"),
		ContainerDriver:     getenvDefault("CONTAINER_DRIVER", "docker"),
		DockerImage:         getenvDefault("DOCKER_IMAGE", "bay/ship:latest"),
		DockerNetwork:       os.Getenv("DOCKER_NETWORK"),
		DockerHost:          os.Getenv("DOCKER_HOST"),
		PodmanHost:          os.Getenv("PODMAN_HOST"),
		ShipDataDir:         getenvDefault("SHIP_DATA_DIR", "/var/lib/bay/ships"),
		KubeNamespace:       getenvDefault("KUBE_NAMESPACE", "default"),
		KubeConfigPath:      os.Getenv("KUBE_CONFIG_PATH"),
		KubeImagePullPolicy: getenvDefault("KUBE_IMAGE_PULL_POLICY", "IfNotPresent"),
		KubePVCSize:         getenvDefault("KUBE_PVC_SIZE", "1Gi"),
		KubeStorageClass:    os.Getenv("KUBE_STORAGE_CLASS"),
		OTLPCollectorAddr:   os.Getenv("OTLP_COLLECTOR_ADDR"),
	}

	var err error
	if cfg.HTTPPort, err = getenvInt("PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.MaxShipNum, err = getenvInt("MAX_SHIP_NUM", 10); err != nil {
		return nil, err
	}
	if cfg.ShipContainerPort, err = getenvInt("SHIP_CONTAINER_PORT", 8123); err != nil {
		return nil, err
	}
	if cfg.WarmPoolMinSize, err = getenvInt("WARM_POOL_MIN_SIZE", 2); err != nil {
		return nil, err
	}
	if cfg.WarmPoolMaxSize, err = getenvInt("WARM_POOL_MAX_SIZE", 10); err != nil {
		return nil, err
	}
	if cfg.WarmPoolDefaultTTL, err = getenvInt("WARM_POOL_DEFAULT_TTL", 24*60*60); err != nil {
		return nil, err
	}

	if cfg.WarmPoolEnabled, err = getenvBool("WARM_POOL_ENABLED", true); err != nil {
		return nil, err
	}

	if cfg.ShipHealthCheckTimeout, err = getenvDuration("SHIP_HEALTH_CHECK_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShipHealthCheckInterval, err = getenvDuration("SHIP_HEALTH_CHECK_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShipExecTimeout, err = getenvDuration("SHIP_EXEC_TIMEOUT", 120*time.Second); err != nil {
		return nil, err
	}
	if cfg.CapacityWaitTimeout, err = getenvDuration("CAPACITY_WAIT_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.WarmPoolReplenishInterval, err = getenvDuration("WARM_POOL_REPLENISH_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReaperInterval, err = getenvDuration("REAPER_INTERVAL", 10*time.Second); err != nil {
		return nil, err
	}

	if cfg.BehaviorAfterMax != "reject" && cfg.BehaviorAfterMax != "wait" {
		return nil, fmt.Errorf("invalid BEHAVIOR_AFTER_MAX_SHIP %q: must be reject or wait", cfg.BehaviorAfterMax)
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
