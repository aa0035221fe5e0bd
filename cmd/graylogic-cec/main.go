// Gray Logic CEC - local source device service
//
// This is the main entry point for the CEC service. It hosts one or more
// logical source devices (playback, audio system, ...) on a CEC bus adapter,
// negotiates the active source, runs one-touch-play, and exposes the unit
// over MQTT, a REST/WebSocket API and Prometheus metrics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-cec/migrations"

	"github.com/nerrad567/gray-logic-cec/internal/api"
	"github.com/nerrad567/gray-logic-cec/internal/bridge"
	"github.com/nerrad567/gray-logic-cec/internal/busmonitor"
	"github.com/nerrad567/gray-logic-cec/internal/cec"
	"github.com/nerrad567/gray-logic-cec/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-cec/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-cec/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-cec/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-cec/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-cec/internal/observability/metrics"
	"github.com/nerrad567/gray-logic-cec/internal/process"
	"github.com/nerrad567/gray-logic-cec/internal/source"
	"github.com/nerrad567/gray-logic-cec/internal/unit"
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

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // Linear startup sequence
	log := logging.Default()
	log.Info("starting Gray Logic CEC",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	unitCfg, err := buildUnitConfig(&cfg.CEC)
	if err != nil {
		return fmt.Errorf("building unit config: %w", err)
	}

	// Database
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
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// InfluxDB (optional)
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

	// Metrics
	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}

	// Adapter daemon (optional, when this service owns it)
	if cfg.CEC.Adapter.Managed.Enabled {
		daemon, daemonErr := startAdapterDaemon(ctx, cfg.CEC.Adapter, log.Component("adapterd"))
		if daemonErr != nil {
			return daemonErr
		}
		defer func() {
			log.Info("stopping adapter daemon")
			daemon.Stop() //nolint:errcheck // Stop never fails
		}()
	}

	// Bus adapter
	adapter, err := cec.Connect(ctx, cec.AdapterConfig{
		Connection:        cfg.CEC.Adapter.Connection,
		LogicalAddresses:  logicalAddresses(unitCfg),
		ConnectTimeout:    cfg.CEC.Adapter.ConnectTimeout,
		ReadTimeout:       cfg.CEC.Adapter.ReadTimeout,
		ReconnectInterval: cfg.CEC.Adapter.ReconnectInterval,
	})
	if err != nil {
		return fmt.Errorf("connecting to CEC adapter: %w", err)
	}
	defer func() {
		log.Info("closing CEC adapter")
		if closeErr := adapter.Close(); closeErr != nil {
			log.Error("error closing CEC adapter", "error", closeErr)
		}
	}()
	adapter.SetLogger(log.Component("adapter"))
	log.Info("CEC adapter connected",
		"connection", cfg.CEC.Adapter.Connection,
		"physical_address", adapter.PhysicalAddress().String(),
	)

	// Unit and its observers. Observers must be registered before Start.
	u, err := unit.New(unitCfg, adapter, log.Component("unit"))
	if err != nil {
		return fmt.Errorf("creating unit: %w", err)
	}

	u.AddObserver(m.CEC)
	u.SetOnActionTimeout(m.CEC.RecordActionTimeout)
	for _, id := range u.DeviceIDs() {
		m.CEC.RegisterDevice(id)
	}

	var seen api.SeenDevices
	if cfg.CEC.BusMonitor.Enabled {
		monitor := busmonitor.NewRecorder(db.DB, log.Component("busmonitor"))
		if startErr := monitor.Start(); startErr != nil {
			return fmt.Errorf("starting bus monitor: %w", startErr)
		}
		defer func() {
			log.Info("stopping bus monitor")
			monitor.Close()
		}()
		u.AddObserver(monitor)
		seen = monitor
		log.Info("bus monitor started")
	}

	if influxClient != nil {
		u.AddObserver(influxdb.NewRecorder(influxClient))
	}

	cecBridge, err := bridge.New(bridge.Options{
		BridgeID:       "cec-" + cfg.Site.ID,
		Version:        version,
		AdapterAddress: cfg.CEC.Adapter.Connection,
		HealthInterval: cfg.CEC.HealthInterval,
		MQTT:           mqttClient,
		Unit:           u,
		Adapter:        adapter,
		Logger:         log.Component("bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating MQTT bridge: %w", err)
	}
	u.AddObserver(cecBridge)

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"), m.HTTP)
	u.AddObserver(hub)

	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log.Component("api"),
		Unit:     u,
		Topology: u.Topology(),
		Seen:     seen,
		Metrics:  m,
		MQTT:     mqttClient,
		Hub:      hub,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Start in dependency order; deferred stops run in reverse.
	u.Start()
	defer u.Close()

	if startErr := cecBridge.Start(ctx); startErr != nil {
		return fmt.Errorf("starting MQTT bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping MQTT bridge")
		cecBridge.Stop()
	}()

	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"devices", u.DeviceIDs(),
		"api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildUnitConfig converts the validated cec config section into a unit.Config.
//
// Parameters:
//   - c: CEC configuration section
//
// Returns:
//   - unit.Config: Unit configuration
//   - error: If the physical address or a device type does not parse
func buildUnitConfig(c *config.CECConfig) (unit.Config, error) {
	pa, err := c.UnitPhysicalAddress()
	if err != nil {
		return unit.Config{}, fmt.Errorf("physical address: %w", err)
	}

	cfg := unit.Config{
		PhysicalAddress: pa,
		TopologyTTL:     c.TopologyTTL,
		OneTouchPlay: source.OneTouchPlayConfig{
			PollInterval: c.OneTouchPlay.PollInterval,
			MaxPolls:     c.OneTouchPlay.MaxPolls,
			Timeout:      c.OneTouchPlay.Timeout,
		},
	}

	for _, d := range c.Devices {
		t, err := cec.ParseDeviceType(d.Type)
		if err != nil {
			return unit.Config{}, fmt.Errorf("device %q: %w", d.ID, err)
		}
		ports := make([]source.Port, 0, len(d.Ports))
		for _, p := range d.Ports {
			ports = append(ports, source.Port(p))
		}
		cfg.Devices = append(cfg.Devices, unit.DeviceConfig{
			ID:             d.ID,
			Type:           t,
			LogicalAddress: cec.LogicalAddress(d.LogicalAddress),
			SwitchDevice:   d.SwitchDevice,
			Ports:          ports,
		})
	}
	return cfg, nil
}

// startAdapterDaemon launches the adapter daemon under supervision and waits
// until its socket accepts connections.
func startAdapterDaemon(ctx context.Context, c config.CECAdapterConfig, log *logging.Logger) (*process.Supervisor, error) {
	connection := c.Connection
	sup, err := process.New(process.Config{
		Name:   "cec-adapterd",
		Binary: c.Managed.Binary,
		Args:   c.Managed.Args,
		Probe: func(ctx context.Context) error {
			return cec.Probe(ctx, connection)
		},
		ReadyTimeout:  c.Managed.ReadyTimeout,
		ProbeInterval: c.Managed.ProbeInterval,
		RestartDelay:  c.Managed.RestartDelay,
		MaxRestarts:   c.Managed.MaxRestarts,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring adapter daemon: %w", err)
	}
	sup.SetLogger(log)

	if err := sup.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting adapter daemon: %w", err)
	}
	log.Info("adapter daemon running", "binary", c.Managed.Binary, "pid", sup.PID())
	return sup, nil
}

// logicalAddresses lists the addresses the adapter must claim.
func logicalAddresses(cfg unit.Config) []cec.LogicalAddress {
	out := make([]cec.LogicalAddress, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		out = append(out, d.LogicalAddress)
	}
	return out
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
