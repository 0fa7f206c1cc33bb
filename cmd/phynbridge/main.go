// Phyn Bridge - local MQTT-over-WSS bridge to the Phyn cloud
//
// The bridge resolves its broker endpoint through the Phyn control
// plane, maintains a persistent MQTT session over secure WebSocket, and
// fans device updates out to a local SQLite store, optional InfluxDB
// telemetry, and a local status API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gophyn/phynbridge/internal/api"
	"github.com/gophyn/phynbridge/internal/bridge"
	"github.com/gophyn/phynbridge/internal/controlplane"
	"github.com/gophyn/phynbridge/internal/history"
	"github.com/gophyn/phynbridge/internal/infrastructure/config"
	"github.com/gophyn/phynbridge/internal/infrastructure/database"
	"github.com/gophyn/phynbridge/internal/infrastructure/logging"
	"github.com/gophyn/phynbridge/internal/telemetry"
	"github.com/gophyn/phynbridge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// Startup and shutdown timeouts.
const (
	connectTimeout    = 60 * time.Second
	recordTimeout     = 10 * time.Second
	disconnectTimeout = 10 * time.Second
)

// pruneInterval is how often expired history entries are deleted.
const pruneInterval = time.Hour

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Phyn bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database and run migrations
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx, migrations.FS()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	store := history.NewStore(db)
	if retention := cfg.GetHistoryRetention(); retention > 0 {
		go store.PrunePeriodically(ctx, retention, pruneInterval, log)
		log.Info("history retention enabled", "days", cfg.Database.RetentionDays)
	} else {
		log.Info("history retention disabled, history grows unbounded")
	}

	// Connect to InfluxDB (optional)
	var telemetryClient *telemetry.Client
	if cfg.Telemetry.Enabled {
		telemetryClient, err = telemetry.Connect(cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("connecting telemetry: %w", err)
		}
		defer func() {
			log.Info("closing telemetry connection")
			if closeErr := telemetryClient.Close(); closeErr != nil {
				log.Error("error closing telemetry", "error", closeErr)
			}
		}()
		telemetryClient.SetOnError(func(err error) {
			log.Error("telemetry write error", "error", err)
		})
		log.Info("telemetry connected",
			"url", cfg.Telemetry.URL,
			"org", cfg.Telemetry.Org,
			"bucket", cfg.Telemetry.Bucket,
		)
	} else {
		log.Info("telemetry disabled")
	}

	// Control-plane client for broker endpoint resolution
	cpClient := controlplane.NewClient(
		cfg.ControlPlane,
		cfg.Account.ID,
		controlplane.StaticToken(cfg.Account.Token),
		log,
	)
	resolver := controlplane.NewResolver(cpClient, log)

	// Broker session
	session := bridge.New(bridge.Deps{
		Broker:   cfg.Broker,
		Session:  cfg.Session,
		Logger:   log,
		Resolver: resolver,
	})
	defer func() {
		log.Info("closing broker session")
		closeCtx, closeCancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer closeCancel()
		if closeErr := session.Disconnect(closeCtx); closeErr != nil {
			log.Error("error closing session", "error", closeErr)
		}
	}()

	// Fan device updates out to the local store and telemetry
	if err := session.AddHandler(bridge.EventUpdate, func(_ bridge.Event, u bridge.Update) {
		if u.DeviceID == "" {
			return
		}
		recordCtx, recordCancel := context.WithTimeout(context.Background(), recordTimeout)
		defer recordCancel()
		if recordErr := store.Record(recordCtx, u.DeviceID, u.Topic, u.Data); recordErr != nil {
			log.Error("recording update", "device_id", u.DeviceID, "error", recordErr)
		}
		if telemetryClient != nil {
			telemetryClient.WriteUpdate(u.DeviceID, u.Data)
		}
	}); err != nil {
		return fmt.Errorf("registering update handler: %w", err)
	}

	// Record session lifecycle transitions alongside the update stream
	if telemetryClient != nil {
		lifecycle := func(event bridge.Event, _ bridge.Update) {
			telemetryClient.WriteEvent(string(event))
		}
		for _, event := range []bridge.Event{bridge.EventConnect, bridge.EventDisconnect} {
			if err := session.AddHandler(event, lifecycle); err != nil {
				return fmt.Errorf("registering %s handler: %w", event, err)
			}
		}
	}

	// Connect and wait for the broker's acknowledgment
	connectCtx, connectCancel := context.WithTimeout(ctx, connectTimeout)
	defer connectCancel()
	if err := session.Connect(connectCtx); err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	if err := session.WaitConnected(connectCtx); err != nil {
		return fmt.Errorf("waiting for broker acknowledgment: %w", err)
	}
	log.Info("broker session established", "host", session.Host())

	// Subscribe to the configured devices
	for _, deviceID := range cfg.Account.DeviceIDs {
		topic := bridge.Topics{}.DeviceSubscription(deviceID)
		if err := session.Subscribe(topic); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}
	log.Info("device subscriptions requested", "devices", len(cfg.Account.DeviceIDs))

	// Local status API (optional)
	if cfg.API.Enabled {
		server, err := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log,
			Session: session,
			Store:   store,
			Version: version,
		})
		if err != nil {
			return fmt.Errorf("creating status API: %w", err)
		}
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("starting status API: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing status API", "error", closeErr)
			}
		}()
	} else {
		log.Info("status API disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. Status API (if enabled)
	// 2. Broker session
	// 3. Telemetry (if enabled)
	// 4. Database

	log.Info("Phyn bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses PHYNBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PHYNBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
