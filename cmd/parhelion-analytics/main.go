// Parhelion Python Analytics - analytics and forecasting service for
// Parhelion Logistics.
//
// This is the main entry point. It loads settings from the environment and
// an optional override file, wires the database lifecycle manager and serves
// the health and metrics endpoints until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MetaCodeX/Parhelion-Logistics/internal/api"
	"github.com/MetaCodeX/Parhelion-Logistics/internal/infrastructure/config"
	"github.com/MetaCodeX/Parhelion-Logistics/internal/infrastructure/database"
	"github.com/MetaCodeX/Parhelion-Logistics/internal/infrastructure/influxdb"
	"github.com/MetaCodeX/Parhelion-Logistics/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Build version (the service version comes from VERSION)
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until settings are loaded
	log := logging.Default()

	provider := config.NewProvider(config.DefaultLoadOptions())
	settings, err := provider.Settings()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	log = logging.New(settings.Logging(), settings.ServiceName, settings.Version).
		With("environment", string(settings.Environment))

	log.Info("starting Parhelion Python Analytics",
		"version", settings.Version,
		"environment", settings.Environment,
		"database", settings.DatabaseDisplay(),
		"workers", settings.Workers,
		"build", version,
		"commit", commit,
		"build_date", date,
	)

	metrics := api.NewMetrics()

	managerOpts := []database.Option{
		database.WithLogger(log),
		database.WithProbeObserver(metrics),
	}

	// Probe telemetry (optional)
	sink, err := influxdb.Connect(ctx, settings.InfluxDB, map[string]string{
		"service":     settings.ServiceName,
		"environment": string(settings.Environment),
	})
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		log.Warn("InfluxDB unavailable, probe telemetry disabled", "error", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := sink.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		sink.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		managerOpts = append(managerOpts, database.WithProbeObserver(sink))
		log.Info("InfluxDB connected",
			"url", settings.InfluxDB.URL,
			"org", settings.InfluxDB.Org,
			"bucket", settings.InfluxDB.Bucket,
		)
	}

	manager := database.NewManager(settings, managerOpts...)
	defer func() {
		log.Info("closing database")
		if closeErr := manager.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if err := metrics.WatchPool(manager); err != nil {
		return fmt.Errorf("registering pool metrics: %w", err)
	}

	server, err := api.New(api.Deps{
		Settings: settings,
		Logger:   log,
		Database: manager,
		Metrics:  metrics,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutting down Parhelion Python Analytics")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Database
	// 3. InfluxDB (if connected)
	return nil
}
