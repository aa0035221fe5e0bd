package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-cec/internal/cec"
)

// Config is the root configuration structure for the CEC service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	CEC       CECConfig       `yaml:"cec"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// CECConfig contains the CEC unit and adapter settings.
type CECConfig struct {
	// Adapter configures the connection to the bus adapter daemon.
	Adapter CECAdapterConfig `yaml:"adapter"`

	// PhysicalAddress of the unit in dotted hex ("1.0.0.0").
	// Empty uses the address reported by the adapter.
	PhysicalAddress string `yaml:"physical_address"`

	// Devices are the logical devices hosted on the unit.
	Devices []CECDeviceConfig `yaml:"devices"`

	// OneTouchPlay tunes the wake-and-claim sequence.
	OneTouchPlay OneTouchPlayConfig `yaml:"one_touch_play"`

	// TopologyTTL bounds how long learnt bus addresses are remembered.
	// Default: 10m
	TopologyTTL time.Duration `yaml:"topology_ttl"`

	// HealthInterval is how often health is published over MQTT.
	// Default: 30s
	HealthInterval time.Duration `yaml:"health_interval"`

	// BusMonitor records every device seen on the bus to the database.
	BusMonitor BusMonitorConfig `yaml:"bus_monitor"`
}

// CECAdapterConfig contains adapter daemon connection settings.
type CECAdapterConfig struct {
	// Connection URL: "unix:///run/cec-adapter.sock" or "tcp://host:port".
	Connection        string        `yaml:"connection"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`

	// Managed runs the adapter daemon as a supervised child process.
	Managed ManagedAdapterConfig `yaml:"managed"`
}

// ManagedAdapterConfig contains settings for a supervised adapter daemon.
type ManagedAdapterConfig struct {
	Enabled bool     `yaml:"enabled"`
	Binary  string   `yaml:"binary"`
	Args    []string `yaml:"args,omitempty"`

	// ReadyTimeout bounds the wait for the daemon socket at startup.
	// Default: 10s
	ReadyTimeout time.Duration `yaml:"ready_timeout"`

	// ProbeInterval is how often the daemon socket is checked.
	// Default: 30s
	ProbeInterval time.Duration `yaml:"probe_interval"`

	// RestartDelay is the initial restart backoff.
	// Default: 2s
	RestartDelay time.Duration `yaml:"restart_delay"`

	// MaxRestarts gives up after this many restarts. 0 is unlimited.
	MaxRestarts int `yaml:"max_restarts"`
}

// CECDeviceConfig describes one hosted logical device.
type CECDeviceConfig struct {
	ID             string `yaml:"id"`
	Type           string `yaml:"type"`
	LogicalAddress int    `yaml:"logical_address"`
	SwitchDevice   bool   `yaml:"switch_device"`
	Ports          []int  `yaml:"ports,omitempty"`
}

// OneTouchPlayConfig contains one-touch-play timing.
type OneTouchPlayConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxPolls     int           `yaml:"max_polls"`
	Timeout      time.Duration `yaml:"timeout"`
}

// BusMonitorConfig contains bus monitor settings.
type BusMonitorConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_CEC_ADAPTER
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:        "./data/graylogic-cec.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-cec",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		CEC: CECConfig{
			Adapter: CECAdapterConfig{
				Connection:        "unix:///run/cec-adapter.sock",
				ConnectTimeout:    10 * time.Second,
				ReadTimeout:       30 * time.Second,
				ReconnectInterval: 5 * time.Second,
			},
			OneTouchPlay: OneTouchPlayConfig{
				PollInterval: 2 * time.Second,
				MaxPolls:     10,
			},
			TopologyTTL:    10 * time.Minute,
			HealthInterval: 30 * time.Second,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// CEC
	if v := os.Getenv("GRAYLOGIC_CEC_ADAPTER"); v != "" {
		cfg.CEC.Adapter.Connection = v
	}
	if v := os.Getenv("GRAYLOGIC_CEC_PHYSICAL_ADDRESS"); v != "" {
		cfg.CEC.PhysicalAddress = v
	}

	// Logging
	if v := os.Getenv("GRAYLOGIC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	errs = append(errs, c.CEC.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *CECConfig) validate() []string {
	var errs []string

	if c.Adapter.Connection == "" {
		errs = append(errs, "cec.adapter.connection is required")
	}
	if m := c.Adapter.Managed; m.Enabled {
		if m.Binary == "" {
			errs = append(errs, "cec.adapter.managed.binary is required when managed is enabled")
		}
		if m.MaxRestarts < 0 || m.ReadyTimeout < 0 || m.ProbeInterval < 0 || m.RestartDelay < 0 {
			errs = append(errs, "cec.adapter.managed values must not be negative")
		}
	}
	if _, err := c.UnitPhysicalAddress(); err != nil {
		errs = append(errs, fmt.Sprintf("cec.physical_address: %v", err))
	}
	if len(c.Devices) == 0 {
		errs = append(errs, "cec.devices must list at least one device")
	}

	ids := make(map[string]bool)
	addrs := make(map[int]bool)
	for i, d := range c.Devices {
		prefix := fmt.Sprintf("cec.devices[%d]", i)
		if d.ID == "" {
			errs = append(errs, prefix+".id is required")
		} else if ids[d.ID] {
			errs = append(errs, fmt.Sprintf("%s.id %q is duplicated", prefix, d.ID))
		}
		ids[d.ID] = true

		if _, err := cec.ParseDeviceType(d.Type); err != nil {
			errs = append(errs, fmt.Sprintf("%s.type: %v", prefix, err))
		}

		if d.LogicalAddress < 0 || d.LogicalAddress >= int(cec.AddrBroadcast) {
			errs = append(errs, fmt.Sprintf("%s.logical_address %d is out of range", prefix, d.LogicalAddress))
		} else if addrs[d.LogicalAddress] {
			errs = append(errs, fmt.Sprintf("%s.logical_address %d is duplicated", prefix, d.LogicalAddress))
		}
		addrs[d.LogicalAddress] = true

		for _, p := range d.Ports {
			if p < 1 || p > 15 {
				errs = append(errs, fmt.Sprintf("%s.ports: %d must be between 1 and 15", prefix, p))
			}
		}
	}

	if c.OneTouchPlay.PollInterval < 0 || c.OneTouchPlay.MaxPolls < 0 || c.OneTouchPlay.Timeout < 0 {
		errs = append(errs, "cec.one_touch_play values must not be negative")
	}
	if c.HealthInterval < 0 {
		errs = append(errs, "cec.health_interval must not be negative")
	}

	return errs
}

// UnitPhysicalAddress parses PhysicalAddress. An empty value yields
// cec.InvalidPhysicalAddress, meaning "ask the adapter".
func (c *CECConfig) UnitPhysicalAddress() (cec.PhysicalAddress, error) {
	if c.PhysicalAddress == "" {
		return cec.InvalidPhysicalAddress, nil
	}
	return cec.ParsePhysicalAddress(c.PhysicalAddress)
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
