package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// setCredentials sets valid Adafruit IO credentials for the duration of a test.
func setCredentials(t *testing.T) {
	t.Helper()
	t.Setenv(EnvAIOUsername, "test-user")
	t.Setenv(EnvAIOKey, "aio_testkey")
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	setCredentials(t)

	path := writeConfig(t, `
mqtt:
  broker:
    host: "broker.local"
    tls: false
    client_id: "test-client"
  qos: 1
session:
  poll_interval: 2
  subscriptions:
    time: ["seconds", "iso"]
    feeds: ["temperature"]
database:
  path: "/tmp/test.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.MQTT.Broker.Port != DefaultPlainPort {
		t.Errorf("MQTT.Broker.Port = %d, want %d", cfg.MQTT.Broker.Port, DefaultPlainPort)
	}
	if cfg.MQTT.Broker.ClientID != "test-client" {
		t.Errorf("MQTT.Broker.ClientID = %q, want %q", cfg.MQTT.Broker.ClientID, "test-client")
	}
	if got := cfg.Session.Subscriptions.Time; len(got) != 2 || got[1] != "iso" {
		t.Errorf("Subscriptions.Time = %v, want [seconds iso]", got)
	}
	if cfg.AIO.Username != "test-user" {
		t.Errorf("AIO.Username = %q, want %q", cfg.AIO.Username, "test-user")
	}
	if cfg.GetPollInterval().Seconds() != 2 {
		t.Errorf("GetPollInterval() = %v, want 2s", cfg.GetPollInterval())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	setCredentials(t)

	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	setCredentials(t)

	path := writeConfig(t, "invalid: [yaml: content")
	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	setCredentials(t)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != DefaultBrokerHost {
		t.Errorf("Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, DefaultBrokerHost)
	}
	if cfg.MQTT.Broker.Port != DefaultTLSPort {
		t.Errorf("Broker.Port = %d, want %d", cfg.MQTT.Broker.Port, DefaultTLSPort)
	}
	if !strings.HasPrefix(cfg.MQTT.Broker.ClientID, "aio-session-") {
		t.Errorf("Broker.ClientID = %q, want generated aio-session- prefix", cfg.MQTT.Broker.ClientID)
	}
	if cfg.Session.DrainPolls != 3 {
		t.Errorf("Session.DrainPolls = %d, want 3", cfg.Session.DrainPolls)
	}

	aq := cfg.Session.Subscriptions.AirQuality
	if len(aq) != 1 || len(aq[0].Forecasts) != 3 {
		t.Fatalf("default air quality subscriptions = %+v, want one record with 3 forecasts", aq)
	}
}

func TestFromEnv_MissingCredentials(t *testing.T) {
	tests := []struct {
		name     string
		username string
		key      string
	}{
		{name: "missing both", username: "", key: ""},
		{name: "missing key", username: "user", key: ""},
		{name: "missing username", username: "", key: "aio_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvAIOUsername, tt.username)
			t.Setenv(EnvAIOKey, tt.key)

			_, err := FromEnv()
			if !errors.Is(err, ErrMissingCredentials) {
				t.Errorf("FromEnv() error = %v, want ErrMissingCredentials", err)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	setCredentials(t)
	t.Setenv("AIO_MQTT_HOST", "env-broker")
	t.Setenv("AIO_MQTT_CLIENT_ID", "env-client")
	t.Setenv("AIO_DATABASE_PATH", "/env/path.db")
	t.Setenv("AIO_INFLUXDB_TOKEN", "env-token")
	t.Setenv("AIO_LOG_LEVEL", "debug")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "env-broker" {
		t.Errorf("Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "env-broker")
	}
	if cfg.MQTT.Broker.ClientID != "env-client" {
		t.Errorf("Broker.ClientID = %q, want %q", cfg.MQTT.Broker.ClientID, "env-client")
	}
	if cfg.Database.Path != "/env/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/env/path.db")
	}
	if cfg.InfluxDB.Token != "env-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "env-token")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.AIO = AIOConfig{Username: "user", Key: "key"}
		applyDerivedDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 2 },
			wantErr: true,
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Session.PollInterval = 0 },
			wantErr: true,
		},
		{
			name:    "zero drain polls",
			mutate:  func(c *Config) { c.Session.DrainPolls = 0 },
			wantErr: true,
		},
		{
			name:    "no subscriptions",
			mutate:  func(c *Config) { c.Session.Subscriptions = SubscriptionsConfig{} },
			wantErr: true,
		},
		{
			name: "throttle only is enough",
			mutate: func(c *Config) {
				c.Session.Subscriptions = SubscriptionsConfig{Throttle: true}
			},
			wantErr: false,
		},
		{
			name: "air quality without forecasts",
			mutate: func(c *Config) {
				c.Session.Subscriptions.AirQuality = []IntegrationConfig{{RecordID: 4}}
			},
			wantErr: true,
		},
		{
			name: "influxdb enabled without url",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
			},
			wantErr: true,
		},
		{
			name: "database enabled without path",
			mutate: func(c *Config) {
				c.Database.Path = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
