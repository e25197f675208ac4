package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/udon-flasher/udon-core/internal/api"
	"github.com/udon-flasher/udon-core/internal/flash"
	"github.com/udon-flasher/udon-core/internal/history"
	"github.com/udon-flasher/udon-core/internal/infrastructure/config"
	"github.com/udon-flasher/udon-core/internal/infrastructure/database"
	"github.com/udon-flasher/udon-core/internal/infrastructure/influxdb"
	"github.com/udon-flasher/udon-core/internal/infrastructure/logging"
	"github.com/udon-flasher/udon-core/internal/infrastructure/mqtt"
	"github.com/udon-flasher/udon-core/internal/relay"
	"github.com/udon-flasher/udon-core/migrations"
)

// serveShutdownTimeout bounds how long serve waits for an active run to
// stop after a shutdown signal.
const serveShutdownTimeout = 15 * time.Second

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "run the daemon with HTTP, WebSocket and MQTT control",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c, true)
		if err != nil {
			return err
		}
		return serve(c.Context, cfg)
	},
}

// serve is the daemon, separated from the command for testability.
// It returns nil on a clean shutdown after ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config) error { //nolint:gocognit,gocyclo // Startup sequence: each optional service adds a branch
	log := logging.New(cfg.Logging, version)
	log.Info("starting udon",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	sinks := flash.MultiSink{relay.NewLogSink(log)}

	// Open database
	var (
		db       *database.DB
		runStore history.Repository
	)
	if cfg.Database.Enabled {
		var err error
		db, err = database.Open(database.Config{
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
		log.Info("database connected", "path", db.Path())

		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")

		runStore = history.NewSQLiteRepository(db.DB)
		recorder := history.NewRecorder(runStore)
		recorder.SetLogger(log)
		sinks = append(sinks, recorder)
	} else {
		log.Info("run history disabled")
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		var err error
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log)
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
			"topic_prefix", cfg.MQTT.TopicPrefix,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		mqttSink := relay.NewMQTTSink(mqttClient, relay.DefaultQueueSize)
		mqttSink.SetLogger(log)
		// Drained before the client closes; defers run in reverse.
		defer func() {
			mqttSink.Close()
			if dropped := mqttSink.Dropped(); dropped > 0 {
				log.Warn("MQTT messages dropped under load", "count", dropped)
			}
		}()
		sinks = append(sinks, mqttSink)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sinks = append(sinks, relay.NewMetricsSink(influxClient))
	} else {
		log.Info("InfluxDB disabled")
	}

	// WebSocket hub; created before the supervisor so it sees every run.
	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.WebSocket, log)
		hubCtx, stopHub := context.WithCancel(context.Background())
		go hub.Run(hubCtx)
		defer stopHub()
		sinks = append(sinks, hub)
	}

	// Supervisor
	sup, closeProber, err := newSupervisor(cfg, sinks, log)
	if err != nil {
		return err
	}
	defer closeProber()

	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("starting supervisor: %w", err)
	}
	// Stopped before any sink's backend closes.
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
		defer cancel()
		if shutdownErr := sup.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error("supervisor shutdown incomplete", "error", shutdownErr)
		}
	}()

	// MQTT command topics
	if mqttClient != nil {
		listener := relay.NewCommandListener(mqttClient, sup)
		listener.SetLogger(log)
		if err := listener.Start(); err != nil {
			return fmt.Errorf("subscribing to MQTT commands: %w", err)
		}
		defer func() {
			if stopErr := listener.Stop(); stopErr != nil {
				log.Warn("error stopping MQTT command listener", "error", stopErr)
			}
		}()
		log.Info("MQTT command listener started", "topic", mqttClient.Topics().AllCommands())
	}

	// HTTP API
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:     cfg.API,
			WS:         cfg.WebSocket,
			Security:   cfg.Security,
			Logger:     log,
			Controller: sup,
			Hub:        hub,
			Version:    version,
		}
		if db != nil {
			deps.History = runStore
			deps.DB = db
		}
		server, err := api.New(deps)
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
		if cfg.Security.JWT.Secret == "" {
			log.Warn("API authentication disabled; keep api.host on loopback",
				"host", cfg.API.Host,
			)
		}
	} else {
		log.Info("HTTP API disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. API server
	// 2. MQTT command listener
	// 3. Supervisor (stops an active flash)
	// 4. Probe, WebSocket hub
	// 5. InfluxDB, MQTT sink, MQTT
	// 6. Database

	log.Info("udon stopped")
	return nil
}
