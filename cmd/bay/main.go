// Package main is the entry point for the Bay control plane.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shipyard/internal/auth"
	"shipyard/internal/bay"
	"shipyard/internal/bay/handlers"
	"shipyard/internal/config"
	"shipyard/internal/driver"
	"shipyard/internal/logger"
	"shipyard/internal/observability"
	"shipyard/internal/reaper"
	"shipyard/internal/sessionservice"
	"shipyard/internal/shipservice"
	"shipyard/internal/store"
	"shipyard/internal/store/postgres"
	"shipyard/internal/warmpool"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLog := logger.New()
	ctx := context.Background()

	st, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer st.Close()

	shutdownTracer, err := observability.Init(ctx, "bay", cfg.OTLPCollectorAddr)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			appLog.Error("shutdown tracer", "error", err)
		}
	}()

	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			appLog.Error("shutdown metrics", "error", err)
		}
	}()

	meter := otel.Meter("bay")
	_, err = meter.Int64ObservableGauge("bay.ships.non_stopped",
		metric.WithDescription("Current number of Ships not in the stopped state"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			count, err := st.CountNonStopped(ctx)
			if err != nil {
				appLog.Warn("ship count gauge: query failed", "error", err)
				return nil
			}
			obs.Observe(int64(count))
			return nil
		}),
	)
	if err != nil {
		appLog.Warn("register ship count metric", "error", err)
	}

	drv, err := driver.New(driverConfig(cfg))
	if err != nil {
		log.Fatalf("failed to init container driver: %v", err)
	}

	ships := shipservice.New(st, drv, shipservice.DefaultClientFactory, shipserviceConfig(cfg), appLog)
	sessions := sessionservice.New(st)

	pool := warmpool.New(st, ships, warmpoolConfig(cfg), appLog)
	go pool.Run(ctx)

	rp := reaper.New(st, drv, reaper.Config{Interval: cfg.ReaperInterval}, appLog)
	go rp.Run(ctx)

	h := handlers.New(st, ships, sessions, drv, cfg.AccessToken)
	srv := bay.New(bay.Config{
		Addr:           fmt.Sprintf(":%d", cfg.HTTPPort),
		AccessToken:    cfg.AccessToken,
		RateLimitRPS:   50,
		RateLimitBurst: 100,
	}, h)

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricsHandler)
		if err := http.ListenAndServe(":9090", metricsMux); err != nil && err != http.ErrServerClosed {
			appLog.Error("metrics server stopped", "error", err)
		}
	}()

	go func() {
		appLog.Info("bay starting", "port", cfg.HTTPPort, "driver", cfg.ContainerDriver, "token_fingerprint", auth.Fingerprint(cfg.AccessToken))
		if err := srv.Run(ctx); err != nil {
			appLog.Error("server stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("shutting down bay")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
	appLog.Info("bay exited cleanly")
}

func driverConfig(cfg *config.Config) driver.FactoryConfig {
	return driver.FactoryConfig{
		Kind:             cfg.ContainerDriver,
		DockerHost:       cfg.DockerHost,
		PodmanHost:       cfg.PodmanHost,
		Image:            cfg.DockerImage,
		Network:          cfg.DockerNetwork,
		ServicePort:      cfg.ShipContainerPort,
		DataDir:          cfg.ShipDataDir,
		KubeConfigPath:   cfg.KubeConfigPath,
		KubeNamespace:    cfg.KubeNamespace,
		KubeStorageClass: cfg.KubeStorageClass,
		KubePVCSize:      cfg.KubePVCSize,
	}
}

func shipserviceConfig(cfg *config.Config) shipservice.Config {
	return shipservice.Config{
		MaxShipNum:          cfg.MaxShipNum,
		CapacityBehavior:    shipservice.CapacityBehavior(cfg.BehaviorAfterMax),
		CapacityWaitTimeout: cfg.CapacityWaitTimeout,
		HealthCheckTimeout:  cfg.ShipHealthCheckTimeout,
		HealthCheckInterval: cfg.ShipHealthCheckInterval,
		ExecTimeout:         cfg.ShipExecTimeout,
	}
}

func warmpoolConfig(cfg *config.Config) warmpool.Config {
	return warmpool.Config{
		Enabled:           cfg.WarmPoolEnabled,
		MinSize:           cfg.WarmPoolMinSize,
		MaxSize:           cfg.WarmPoolMaxSize,
		ReplenishInterval: cfg.WarmPoolReplenishInterval,
		DefaultSpec:       store.ShipSpec{},
		DefaultTTLSeconds: cfg.WarmPoolDefaultTTL,
		MaxShipNum:        cfg.MaxShipNum,
	}
}
