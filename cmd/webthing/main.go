// Command webthing serves a set of configured devices over the Web Thing
// protocol.
//
// The things, their properties, actions and events are declared in the
// YAML configuration. The process exposes them through the HTTP and
// WebSocket API, an optional byte-polling TCP transport, and optionally
// mirrors them to MQTT, journals them to SQLite and streams numeric
// properties to InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/webthing-core/internal/api"
	"github.com/nerrad567/webthing-core/internal/bridge"
	"github.com/nerrad567/webthing-core/internal/history"
	"github.com/nerrad567/webthing-core/internal/infrastructure/config"
	"github.com/nerrad567/webthing-core/internal/infrastructure/database"
	"github.com/nerrad567/webthing-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/webthing-core/internal/infrastructure/logging"
	"github.com/nerrad567/webthing-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/webthing-core/internal/parser"
	"github.com/nerrad567/webthing-core/internal/publisher"
	"github.com/nerrad567/webthing-core/internal/router"
	"github.com/nerrad567/webthing-core/internal/scheduler"
	"github.com/nerrad567/webthing-core/internal/telemetry"
	"github.com/nerrad567/webthing-core/internal/thing"
	"github.com/nerrad567/webthing-core/internal/transport/tcp"
	"github.com/nerrad567/webthing-core/migrations"
)

// Version information, set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	command := run
	if len(os.Args) > 1 && os.Args[1] == "migrate-down" {
		command = migrateDown
	}
	if err := command(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// migrateDown rolls back the newest history migration and exits:
//
//	webthing migrate-down
func migrateDown(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, version)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.MigrateDown(ctx, migrations.FS); err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}
	log.Info("rolled back newest migration", "path", db.Path())
	return nil
}

// run wires every component and blocks until ctx is cancelled or a
// background loop fails.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting webthing",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"things", len(cfg.Things),
	)

	devices, err := thing.Build(cfg.Things, cfg.Events.Capacity, thing.DefaultExecutors())
	if err != nil {
		return fmt.Errorf("building things: %w", err)
	}

	mgr := thing.NewManager(cfg.Actions.Workers)
	mgr.SetLogger(log.Component("actions"))
	defer mgr.Close()

	rt := router.New(router.Config{
		Name:         cfg.Server.Name,
		IP:           cfg.Server.IP,
		ValidateHost: cfg.Server.ValidateHost,
		WSBase:       cfg.Server.BaseURL,
	}, devices, mgr)
	rt.SetLogger(log.Component("router"))

	pub := publisher.New(devices, mgr, nil)
	pub.SetLogger(log.Component("publisher"))

	g, gctx := errgroup.WithContext(ctx)
	checks := make(map[string]api.HealthChecker)

	// History journal (optional).
	var historyRepo history.Repository
	if cfg.History.Enabled {
		db, openErr := database.Open(cfg.Database)
		if openErr != nil {
			return fmt.Errorf("opening database: %w", openErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database ready", "path", db.Path())

		repo := history.NewSQLiteRepository(db.DB)
		recorder := history.NewRecorder(repo, history.DefaultQueueSize)
		recorder.SetLogger(log.Component("history"))
		pruner, pruneErr := history.NewPruner(repo, cfg.History.PruneSchedule, cfg.GetRetention())
		if pruneErr != nil {
			return fmt.Errorf("creating history pruner: %w", pruneErr)
		}
		pruner.SetLogger(log.Component("history"))

		pub.AddSink(recorder)
		g.Go(func() error { return recorder.Run(gctx) })
		g.Go(func() error { return pruner.Run(gctx) })
		historyRepo = repo
		checks["database"] = db
	} else {
		log.Info("history disabled")
	}

	// MQTT mirror (optional).
	var mqttBridge *bridge.Bridge
	if cfg.MQTT.Enabled {
		client, connErr := mqtt.Connect(cfg.MQTT)
		if connErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", connErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := client.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		client.SetLogger(log.Component("mqtt"))
		client.SetOnConnect(func() { log.Info("MQTT reconnected") })
		client.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		// #nosec G115 -- qos validated to 0..2
		mqttBridge = bridge.New(client, devices, mgr, byte(cfg.MQTT.QoS))
		mqttBridge.SetLogger(log.Component("bridge"))
		pub.AddSink(mqttBridge)
		g.Go(func() error { return mqttBridge.Run(gctx) })
		checks["mqtt"] = client
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB telemetry (optional).
	if cfg.InfluxDB.Enabled {
		influx, connErr := influxdb.Connect(cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influx.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influx.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)

		pub.AddSink(telemetry.NewSink(influx))
		checks["influxdb"] = influx
	} else {
		log.Info("InfluxDB disabled")
	}

	sched := scheduler.New(cfg.GetTickInterval())
	sched.SetLogger(log.Component("scheduler"))

	// HTTP and WebSocket API.
	if cfg.API.Enabled {
		metrics := api.NewMetrics()
		pub.AddSink(metrics)

		srv, srvErr := api.New(api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log.Component("api"),
			Router:  rt,
			Live:    pub,
			History: historyRepo,
			Checks:  checks,
			Metrics: metrics,
			Version: version,
		})
		if srvErr != nil {
			return fmt.Errorf("creating API server: %w", srvErr)
		}
		pub.SetHub(srv.Hub())

		if startErr := srv.Start(gctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	// Byte-polling TCP transport, driven by the scheduler.
	if cfg.TCP.Enabled {
		tcpSrv := tcp.New(tcpConfig(cfg), rt)
		tcpSrv.SetLogger(log.Component("tcp"))
		if startErr := tcpSrv.Start(); startErr != nil {
			return fmt.Errorf("starting TCP transport: %w", startErr)
		}
		// Deferred closes run after g.Wait, once the scheduler has stopped.
		defer func() {
			served, dropped := tcpSrv.Stats()
			log.Info("closing TCP transport", "served", served, "dropped", dropped)
			if closeErr := tcpSrv.Close(); closeErr != nil {
				log.Error("error closing TCP transport", "error", closeErr)
			}
		}()
		sched.Add("tcp", tcpSrv)
	}
	sched.Add("publisher", pub)

	// Inbound MQTT traffic starts only once every sink is attached.
	if mqttBridge != nil {
		if subErr := mqttBridge.Subscribe(); subErr != nil {
			return fmt.Errorf("subscribing MQTT bridge: %w", subErr)
		}
	}

	g.Go(func() error { return mgr.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })

	log.Info("initialisation complete, waiting for shutdown signal")
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("webthing stopped")
	return nil
}

// tcpConfig maps the configuration onto the poll transport settings.
func tcpConfig(cfg *config.Config) tcp.Config {
	return tcp.Config{
		Host:        cfg.TCP.Host,
		Port:        cfg.TCP.Port,
		PollTimeout: cfg.GetPollTimeout(),
		ByteBudget:  cfg.TCP.ByteBudget,
		Parser: parser.Config{
			Limits: parser.Limits{
				Method: cfg.TCP.Limits.Method,
				URI:    cfg.TCP.Limits.URI,
				Host:   cfg.TCP.Limits.Host,
				Header: cfg.TCP.Limits.Header,
				Body:   cfg.TCP.Limits.Body,
			},
			RetryCeiling: cfg.TCP.RetryCeiling,
		},
	}
}

// getConfigPath returns WEBTHING_CONFIG if set, otherwise the default path.
func getConfigPath() string {
	if path := os.Getenv("WEBTHING_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
