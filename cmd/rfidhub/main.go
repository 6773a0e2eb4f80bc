// rfidhub manages a fleet of RFID readers and exposes them over HTTP,
// WebSocket and MQTT.
//
// Reader configuration lives in an INI settings file; every reader starts
// disconnected. Registry events are fanned out to the SQLite audit trail,
// WebSocket clients, MQTT and InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/rfidhub/internal/api"
	"github.com/nerrad567/rfidhub/internal/audit"
	"github.com/nerrad567/rfidhub/internal/bridge"
	"github.com/nerrad567/rfidhub/internal/discovery"
	"github.com/nerrad567/rfidhub/internal/driver"
	"github.com/nerrad567/rfidhub/internal/driver/isc"
	"github.com/nerrad567/rfidhub/internal/infrastructure/config"
	"github.com/nerrad567/rfidhub/internal/infrastructure/database"
	"github.com/nerrad567/rfidhub/internal/infrastructure/influxdb"
	"github.com/nerrad567/rfidhub/internal/infrastructure/logging"
	"github.com/nerrad567/rfidhub/internal/infrastructure/mqtt"
	"github.com/nerrad567/rfidhub/internal/reader"
	"github.com/nerrad567/rfidhub/internal/tagcodec"
	"github.com/nerrad567/rfidhub/migrations"
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

// shutdownTimeout bounds disconnecting readers on exit.
const shutdownTimeout = 15 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until ctx is cancelled.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // Linear startup sequence
	log := logging.Default()
	log.Info("starting rfidhub", "version", version, "commit", commit, "build_date", date)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "hub_id", cfg.Hub.ID)

	codec, err := tagcodec.New(cfg.Readers.Charset)
	if err != nil {
		return fmt.Errorf("tag codec: %w", err)
	}

	drv, err := buildDriver(cfg.Driver, codec, log)
	if err != nil {
		return fmt.Errorf("building driver: %w", err)
	}

	registry := reader.NewRegistry(reader.RegistryConfig{
		Driver:        drv,
		Store:         reader.NewINIStore(cfg.Readers.SettingsFile),
		Codec:         codec,
		DeviceTimeout: cfg.Readers.DeviceTimeout,
	})
	registry.SetLogger(log.With("component", "registry"))
	if loadErr := registry.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading reader settings: %w", loadErr)
	}
	log.Info("reader registry loaded", "readers", registry.Len(), "settings_file", cfg.Readers.SettingsFile)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
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

	auditRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(auditRepo, "rfidhub", log)
	hub := api.NewHub(cfg.WebSocket, log)
	sinks := reader.MultiSink{recorder, hub}

	// Sink goroutines outlive ctx so shutdown events are still delivered.
	sinkCtx, stopSinks := context.WithCancel(context.Background())
	defer stopSinks()
	g, gctx := errgroup.WithContext(sinkCtx)
	g.Go(func() error { recorder.Run(gctx); return nil })
	g.Go(func() error { hub.Run(gctx); return nil })

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		publisher := bridge.NewEventPublisher(mqttClient, mqttClient.Topics(), mqttClient.QoS())
		publisher.SetLogger(log)
		sinks = append(sinks, publisher)
		g.Go(func() error { publisher.Run(gctx); return nil })

	} else {
		log.Info("MQTT disabled")
	}

	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sinks = append(sinks, bridge.NewTelemetry(influxClient))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	registry.SetEventSink(sinks)

	// Commands may arrive as soon as the subscription exists, so the sink
	// must be in place first.
	if mqttClient != nil {
		commands := bridge.NewCommands(registry, mqttClient, mqttClient.Topics(), mqttClient.QoS())
		if subErr := mqttClient.Subscribe(mqttClient.Topics().AllReaderCommands(), mqttClient.QoS(), commands.Handle); subErr != nil {
			return fmt.Errorf("subscribing to reader commands: %w", subErr)
		}
	}

	deps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log,
		Registry: registry,
		Hub:      hub,
		Audit:    auditRepo,
		Version:  version,
	}
	if lister, ok := drv.(driver.PortLister); ok {
		deps.Ports = lister
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}

	if cfg.Discovery.Enabled {
		adv := discovery.NewAdvertiser(cfg.Discovery)
		info := discovery.Info{
			HubID:   cfg.Hub.ID,
			Version: version,
			Port:    server.Port(),
			TLS:     cfg.API.TLS.Enabled,
			Readers: registry.Len(),
		}
		if advErr := adv.Start(info); advErr != nil {
			log.Warn("mDNS advertisement failed", "error", advErr)
		} else {
			defer adv.Stop()
			log.Info("advertising via mDNS", "service", cfg.Discovery.Service, "port", info.Port)
		}
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		log.Warn("health check failed", "error", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal", "address", server.Addr())
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if closeErr := server.Close(); closeErr != nil {
		log.Error("error closing API server", "error", closeErr)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	registry.Close(closeCtx)

	stopSinks()
	if waitErr := g.Wait(); waitErr != nil {
		log.Error("event sink error", "error", waitErr)
	}

	log.Info("rfidhub stopped")
	return nil
}

// getConfigPath returns RFIDHUB_CONFIG or the default path.
func getConfigPath() string {
	if path := os.Getenv("RFIDHUB_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildDriver creates the configured reader driver.
func buildDriver(cfg config.DriverConfig, codec *tagcodec.Codec, log *logging.Logger) (driver.Driver, error) {
	switch cfg.Type {
	case config.DriverISC:
		d := isc.New(isc.Config{
			PortPattern: cfg.PortPattern,
			BaudRate:    cfg.BaudRate,
			ReadTimeout: cfg.ReadTimeout,
		})
		d.SetLogger(log.With("component", "isc"))
		return d, nil
	case config.DriverSimulated:
		sim := driver.NewSimulator()
		for _, b := range cfg.Bench {
			addr := driver.Address{Bus: uint8(b.BusAddr), Port: b.PortNumber}
			sim.AddReader(addr)
			for _, spec := range b.Tags {
				id, text, err := parseBenchTag(spec)
				if err != nil {
					return nil, err
				}
				payload, err := codec.EncodePayload(text)
				if err != nil {
					return nil, fmt.Errorf("bench tag %q: %w", id, err)
				}
				sim.PlaceTag(addr, id, payload)
			}
		}
		log.Info("using simulated readers", "bench_readers", len(cfg.Bench))
		return sim, nil
	default:
		return nil, fmt.Errorf("unknown driver type %q", cfg.Type)
	}
}

// parseBenchTag splits an "id=text" bench tag spec. A bare "id" places a
// blank tag.
func parseBenchTag(spec string) (id, text string, err error) {
	id, text, _ = strings.Cut(spec, "=")
	if !tagcodec.ValidTagID(id) {
		return "", "", fmt.Errorf("bench tag %q: invalid tag id %q", spec, id)
	}
	return id, text, nil
}

// healthCheck verifies the infrastructure connections. Nil clients are
// skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
