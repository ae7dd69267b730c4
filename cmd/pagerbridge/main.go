// Pager Bridge
//
// Bridges incident webhooks to physical pager devices over MQTT, and turns
// the devices' acknowledge and resolve button presses back into incident
// API calls using per-device credentials.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ddpager/pager-bridge/internal/api"
	"github.com/ddpager/pager-bridge/internal/bridge"
	"github.com/ddpager/pager-bridge/internal/credential"
	"github.com/ddpager/pager-bridge/internal/datadog"
	"github.com/ddpager/pager-bridge/internal/dispatch"
	"github.com/ddpager/pager-bridge/internal/infrastructure/config"
	"github.com/ddpager/pager-bridge/internal/infrastructure/database"
	"github.com/ddpager/pager-bridge/internal/infrastructure/influxdb"
	"github.com/ddpager/pager-bridge/internal/infrastructure/logging"
	"github.com/ddpager/pager-bridge/internal/infrastructure/mqtt"
	"github.com/ddpager/pager-bridge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting pager bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// An explicitly configured path must exist; the default may be absent
	// when everything comes from the environment.
	configPath, explicit := getConfigPath()
	cfg, err := config.Load(configPath, explicit)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, database.Config{
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
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	applied, err := db.AppliedCount(ctx)
	if err != nil {
		return fmt.Errorf("counting migrations: %w", err)
	}
	log.Info("database migrations complete", "applied", applied)

	repo := credential.NewSQLiteRepository(db.DB)
	resolver := credential.NewResolver(repo, credential.Credentials{
		APIKey: cfg.Datadog.APIKey,
		AppKey: cfg.Datadog.AppKey,
		Region: cfg.Datadog.Site,
	}, log.Component("credential"))
	if fallback := resolver.Fallback(); fallback.Empty() {
		log.Warn("no global Datadog credentials configured, only registered devices can ack/resolve")
	} else {
		log.Info("global Datadog credentials configured", "region", fallback.Region)
	}

	ddClient := datadog.NewClient(datadog.Config{
		BaseURL: cfg.Datadog.BaseURL,
		Timeout: cfg.GetDatadogTimeout(),
	})

	mqttMgr := mqtt.NewManager(cfg.MQTT, cfg.ClientID(), mqtt.WithLogger(log.Component("mqtt")))
	defer func() {
		log.Info("disconnecting from MQTT")
		mqttMgr.Stop()
	}()
	// A broker that is down at boot is not fatal; publishes reconnect on demand.
	if startErr := mqttMgr.Start(); startErr != nil {
		log.Warn("MQTT start failed, will retry on first publish", "error", startErr)
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	dispatchOpts := []dispatch.Option{dispatch.WithLogger(log.Component("dispatch"))}
	bridgeOpts := []bridge.Option{bridge.WithLogger(log.Component("bridge"))}
	if influxClient != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithRecorder(influxClient))
		bridgeOpts = append(bridgeOpts, bridge.WithRecorder(influxClient))
	}

	dispatcher := dispatch.New(resolver, ddClient, dispatchOpts...)
	bridgeOpts = append(bridgeOpts, bridge.WithActionHandler(dispatcher))
	svc := bridge.NewService(
		bridge.Config{PublicURL: cfg.Bridge.PublicURL},
		mqttMgr,
		repo,
		ddClient,
		bridgeOpts...,
	)
	if cfg.Bridge.PublicURL == "" {
		log.Info("bridge.public_url not set, webhook auto-provisioning disabled")
	}

	// Device ack/resolve events flow manager -> service -> dispatcher.
	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatcher.Run(dispatchCtx, mqttMgr.Events(), svc.HandleDeviceAction)
	}()
	defer func() {
		stopDispatch()
		<-dispatchDone
	}()

	server, err := api.New(api.Deps{
		Config:    cfg.API,
		Logger:    log.Component("api"),
		Bridge:    svc,
		Transport: mqttMgr,
		DeviceID:  cfg.Device.ID,
		Version:   version,
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

	if err := healthCheck(ctx, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"device_id", cfg.Device.ID,
		"mqtt_broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"api_port", cfg.API.Port,
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the config path and whether it was set explicitly.
func getConfigPath() (string, bool) {
	if path := os.Getenv("PAGERBRIDGE_CONFIG"); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

// healthCheck verifies startup dependencies. MQTT is not checked; the
// bridge keeps serving while the broker is unreachable.
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
