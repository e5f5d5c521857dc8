package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	httpapi "github.com/i474232898/temperature-etl/internal/api/http"
	"github.com/i474232898/temperature-etl/internal/config"
	"github.com/i474232898/temperature-etl/internal/etl"
	"github.com/i474232898/temperature-etl/internal/logging"
	"github.com/i474232898/temperature-etl/internal/metrics"
	"github.com/i474232898/temperature-etl/internal/sensor"
	"github.com/i474232898/temperature-etl/internal/store"
)

const serviceName = "temperature-etl"

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log, serviceName, os.Stdout)
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(registry)

	// In-memory history with configured retention.
	memStore := store.NewMemoryStore(cfg.MaxRecords)

	identity := sensor.Identity{SensorID: cfg.Sensor.ID, Location: cfg.Sensor.Location}
	source := newSource(cfg, identity, logger)

	transformer := sensor.NewTransformer(
		sensor.Bounds{Min: cfg.Acceptance.Min, Max: cfg.Acceptance.Max},
		memStore,
		logger,
	)
	acceptance := transformer.Bounds()
	logger.Info("validator ready", "min_temp", acceptance.Min, "max_temp", acceptance.Max)

	service := etl.NewService(memStore, source, transformer,
		etl.WithLogger(logger),
		etl.WithMetrics(collector),
	)

	if err := service.Start(cfg.PollingInterval); err != nil {
		logger.Error("failed to start pipeline", "error", err)
		os.Exit(1)
	}
	defer service.Scheduler().Stop()

	app := httpapi.NewApp(httpapi.AppConfig{
		Name:      serviceName,
		AccessLog: true,
		Gatherer:  registry,
	})
	httpapi.RegisterRoutes(app, service, httpapi.Options{PollingInterval: cfg.PollingInterval})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("fiber server stopped", "error", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
	}
}

func newSource(cfg *config.AppConfig, identity sensor.Identity, logger *slog.Logger) sensor.Source {
	if cfg.Sensor.Mode == config.ModeDevice {
		return sensor.NewDeviceSource(sensor.DeviceConfig{
			URL:      cfg.Sensor.DeviceURL,
			Identity: identity,
			Client:   &http.Client{Timeout: cfg.Sensor.DeviceTimeout},
		}, logger)
	}
	return sensor.NewSimulatedSource(sensor.SimulatedConfig{
		MinTemp:  cfg.Simulation.Min,
		MaxTemp:  cfg.Simulation.Max,
		Identity: identity,
	}, logger)
}
