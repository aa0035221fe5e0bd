package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-cec/internal/cec"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func validCEC() CECConfig {
	cfg := defaultConfig().CEC
	cfg.Devices = []CECDeviceConfig{
		{ID: "player", Type: "playback", LogicalAddress: 4},
	}
	return cfg
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "localhost"
    port: 1883
  qos: 1
api:
  port: 8090
cec:
  adapter:
    connection: "tcp://localhost:9526"
    reconnect_interval: 3s
  physical_address: "1.0.0.0"
  devices:
    - id: player
      type: playback
      logical_address: 4
    - id: soundbar
      type: audio_system
      logical_address: 5
      switch_device: true
      ports: [1, 2, 3]
  one_touch_play:
    poll_interval: 500ms
    max_polls: 4
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.CEC.Adapter.Connection != "tcp://localhost:9526" {
		t.Errorf("CEC.Adapter.Connection = %q", cfg.CEC.Adapter.Connection)
	}
	if cfg.CEC.Adapter.ReconnectInterval != 3*time.Second {
		t.Errorf("ReconnectInterval = %v, want 3s", cfg.CEC.Adapter.ReconnectInterval)
	}
	if cfg.CEC.Adapter.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout default lost: %v", cfg.CEC.Adapter.ConnectTimeout)
	}
	if len(cfg.CEC.Devices) != 2 || !cfg.CEC.Devices[1].SwitchDevice || len(cfg.CEC.Devices[1].Ports) != 3 {
		t.Errorf("Devices = %+v", cfg.CEC.Devices)
	}
	if cfg.CEC.OneTouchPlay.PollInterval != 500*time.Millisecond || cfg.CEC.OneTouchPlay.MaxPolls != 4 {
		t.Errorf("OneTouchPlay = %+v", cfg.CEC.OneTouchPlay)
	}

	pa, err := cfg.CEC.UnitPhysicalAddress()
	if err != nil || pa != 0x1000 {
		t.Errorf("UnitPhysicalAddress() = %s, %v", pa, err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
site:
  id: ""
database:
  path: "/tmp/test.db"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	for _, want := range []string{"site.id is required", "cec.devices must list at least one device"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Site:     SiteConfig{ID: "site-001"},
			Database: DatabaseConfig{Path: "/data/graylogic-cec.db"},
			MQTT:     MQTTConfig{QoS: 1},
			API:      APIConfig{Port: 8090},
			CEC:      validCEC(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid config", func(*Config) {}, ""},
		{"missing site ID", func(c *Config) { c.Site.ID = "" }, "site.id"},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"invalid port low", func(c *Config) { c.API.Port = 0 }, "api.port"},
		{"invalid port high", func(c *Config) { c.API.Port = 70000 }, "api.port"},
		{"influx without url", func(c *Config) { c.InfluxDB.Enabled = true }, "influxdb.url"},
		{"no adapter", func(c *Config) { c.CEC.Adapter.Connection = "" }, "cec.adapter.connection"},
		{"bad physical address", func(c *Config) { c.CEC.PhysicalAddress = "1.2.3" }, "cec.physical_address"},
		{"unknown type", func(c *Config) { c.CEC.Devices[0].Type = "toaster" }, "cec.devices[0].type"},
		{"broadcast address", func(c *Config) { c.CEC.Devices[0].LogicalAddress = 15 }, "out of range"},
		{"negative address", func(c *Config) { c.CEC.Devices[0].LogicalAddress = -1 }, "out of range"},
		{"missing id", func(c *Config) { c.CEC.Devices[0].ID = "" }, "cec.devices[0].id"},
		{"duplicate device", func(c *Config) {
			c.CEC.Devices = append(c.CEC.Devices, c.CEC.Devices[0])
		}, "duplicated"},
		{"bad port", func(c *Config) { c.CEC.Devices[0].Ports = []int{0} }, "cec.devices[0].ports"},
		{"negative polls", func(c *Config) { c.CEC.OneTouchPlay.MaxPolls = -1 }, "one_touch_play"},
		{"managed without binary", func(c *Config) { c.CEC.Adapter.Managed.Enabled = true }, "cec.adapter.managed.binary"},
		{"managed negative restarts", func(c *Config) {
			c.CEC.Adapter.Managed = ManagedAdapterConfig{Enabled: true, Binary: "/usr/bin/cec-adapterd", MaxRestarts: -1}
		}, "cec.adapter.managed values"},
		{"unmanaged ignores binary", func(c *Config) { c.CEC.Adapter.Managed.MaxRestarts = -1 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestUnitPhysicalAddressEmpty(t *testing.T) {
	c := validCEC()
	pa, err := c.UnitPhysicalAddress()
	if err != nil || pa != cec.InvalidPhysicalAddress {
		t.Errorf("UnitPhysicalAddress() = %s, %v, want invalid", pa, err)
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYLOGIC_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GRAYLOGIC_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_MQTT_PORT", "8883")
	t.Setenv("GRAYLOGIC_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYLOGIC_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYLOGIC_API_HOST", "192.168.1.1")
	t.Setenv("GRAYLOGIC_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYLOGIC_CEC_ADAPTER", "tcp://adapter:9526")
	t.Setenv("GRAYLOGIC_CEC_PHYSICAL_ADDRESS", "2.0.0.0")
	t.Setenv("GRAYLOGIC_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Broker.Port", cfg.MQTT.Broker.Port, 8883},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"CEC.Adapter.Connection", cfg.CEC.Adapter.Connection, "tcp://adapter:9526"},
		{"CEC.PhysicalAddress", cfg.CEC.PhysicalAddress, "2.0.0.0"},
		{"Logging.Level", cfg.Logging.Level, "debug"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8090 {
		t.Errorf("defaultConfig API.Port = %d, want 8090", cfg.API.Port)
	}
	if cfg.CEC.OneTouchPlay.PollInterval != 2*time.Second || cfg.CEC.OneTouchPlay.MaxPolls != 10 {
		t.Errorf("defaultConfig OneTouchPlay = %+v", cfg.CEC.OneTouchPlay)
	}
	if cfg.CEC.TopologyTTL != 10*time.Minute {
		t.Errorf("defaultConfig TopologyTTL = %v", cfg.CEC.TopologyTTL)
	}
}
