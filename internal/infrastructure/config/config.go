package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Broker defaults for Adafruit IO.
const (
	DefaultBrokerHost = "io.adafruit.com"
	DefaultTLSPort    = 8883
	DefaultPlainPort  = 1883
)

// Environment variable names for Adafruit IO credentials.
// These match the names used by the Adafruit IO client examples.
const (
	EnvAIOUsername = "ADAFRUIT_AIO_USERNAME"
	EnvAIOKey      = "ADAFRUIT_AIO_KEY"
)

// ErrMissingCredentials is returned when the Adafruit IO username or key is not set.
var ErrMissingCredentials = errors.New("config: missing " + EnvAIOUsername + " or " + EnvAIOKey)

// Config is the root configuration structure for the Adafruit IO session service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	AIO       AIOConfig       `yaml:"aio"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Session   SessionConfig   `yaml:"session"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AIOConfig contains the Adafruit IO account credentials.
type AIOConfig struct {
	Username string `yaml:"username"`
	Key      string `yaml:"key"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker MQTTBrokerConfig `yaml:"broker"`
	QoS    int              `yaml:"qos"`

	// KeepAlive is the MQTT keepalive interval in seconds.
	KeepAlive int `yaml:"keep_alive"`

	// ConnectTimeout bounds the wait for CONNACK, SUBACK and UNSUBACK (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`

	// InboxSize is the number of received messages buffered between polls.
	InboxSize int `yaml:"inbox_size"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// SessionConfig controls the session lifecycle and its subscription set.
type SessionConfig struct {
	// PollInterval is the pause between polls in seconds.
	PollInterval int `yaml:"poll_interval"`

	// DrainPolls is the number of polls made after unsubscribing at shutdown.
	DrainPolls int `yaml:"drain_polls"`

	// FetchLast asks the broker for each subscribed feed's last value.
	FetchLast bool `yaml:"fetch_last"`

	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
}

// SubscriptionsConfig lists the Adafruit IO topics subscribed on connect.
// Topics are subscribed in the order: air quality, weather, time, feeds,
// groups, throttle, errors.
type SubscriptionsConfig struct {
	AirQuality []IntegrationConfig `yaml:"air_quality"`
	Weather    []IntegrationConfig `yaml:"weather"`
	Time       []string            `yaml:"time"`
	Feeds      []string            `yaml:"feeds"`
	Groups     []string            `yaml:"groups"`
	Throttle   bool                `yaml:"throttle"`
	Errors     bool                `yaml:"errors"`
}

// IntegrationConfig selects forecast types for an Adafruit IO+ integration record.
type IntegrationConfig struct {
	RecordID  int      `yaml:"record_id"`
	Forecasts []string `yaml:"forecasts"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays prunes stored messages older than this on startup. 0 keeps everything.
	RetentionDays int `yaml:"retention_days"`
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

// APIConfig contains status HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket live feed settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
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

	return finish(cfg)
}

// FromEnv builds a configuration from defaults and environment variables only.
//
// Used when no config file is present, so the service can run with nothing
// more than ADAFRUIT_AIO_USERNAME and ADAFRUIT_AIO_KEY set.
func FromEnv() (*Config, error) {
	return finish(defaultConfig())
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)
	applyDerivedDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
//
// The default subscription set is the air quality example's three forecasts
// for record 0.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: DefaultBrokerHost,
				TLS:  true,
			},
			QoS:            0,
			KeepAlive:      60,
			ConnectTimeout: 10,
			InboxSize:      1024,
		},
		Session: SessionConfig{
			PollInterval: 1,
			DrainPolls:   3,
			Subscriptions: SubscriptionsConfig{
				AirQuality: []IntegrationConfig{
					{
						RecordID:  0,
						Forecasts: []string{"current", "forecast_today", "forecast_tomorrow"},
					},
				},
			},
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/aio.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
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
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Credentials use the Adafruit names; everything else follows AIO_SECTION_KEY.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvAIOUsername); v != "" {
		cfg.AIO.Username = v
	}
	if v := os.Getenv(EnvAIOKey); v != "" {
		cfg.AIO.Key = v
	}

	// MQTT
	if v := os.Getenv("AIO_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("AIO_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}

	// Database
	if v := os.Getenv("AIO_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("AIO_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("AIO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// applyDerivedDefaults fills values that depend on other settings.
func applyDerivedDefaults(cfg *Config) {
	if cfg.MQTT.Broker.Port == 0 {
		if cfg.MQTT.Broker.TLS {
			cfg.MQTT.Broker.Port = DefaultTLSPort
		} else {
			cfg.MQTT.Broker.Port = DefaultPlainPort
		}
	}

	// Adafruit IO drops the older connection when two share a client ID.
	if cfg.MQTT.Broker.ClientID == "" {
		cfg.MQTT.Broker.ClientID = "aio-session-" + uuid.NewString()[:8]
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	if c.AIO.Username == "" || c.AIO.Key == "" {
		return ErrMissingCredentials
	}

	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 1 {
		// Adafruit IO does not support QoS 2.
		errs = append(errs, "mqtt.qos must be 0 or 1")
	}
	if c.MQTT.InboxSize < 1 {
		errs = append(errs, "mqtt.inbox_size must be positive")
	}

	// Session validation
	if c.Session.PollInterval < 1 {
		errs = append(errs, "session.poll_interval must be at least 1 second")
	}
	if c.Session.DrainPolls < 1 {
		errs = append(errs, "session.drain_polls must be at least 1")
	}
	if c.Session.Subscriptions.IsEmpty() {
		errs = append(errs, "session.subscriptions must name at least one topic")
	}
	for _, aq := range c.Session.Subscriptions.AirQuality {
		if len(aq.Forecasts) == 0 {
			errs = append(errs, fmt.Sprintf("session.subscriptions.air_quality record %d has no forecasts", aq.RecordID))
		}
	}
	for _, w := range c.Session.Subscriptions.Weather {
		if len(w.Forecasts) == 0 {
			errs = append(errs, fmt.Sprintf("session.subscriptions.weather record %d has no forecasts", w.RecordID))
		}
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsEmpty reports whether no topic at all is configured.
func (s SubscriptionsConfig) IsEmpty() bool {
	return len(s.AirQuality) == 0 &&
		len(s.Weather) == 0 &&
		len(s.Time) == 0 &&
		len(s.Feeds) == 0 &&
		len(s.Groups) == 0 &&
		!s.Throttle &&
		!s.Errors
}

// GetPollInterval returns the session poll interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Session.PollInterval) * time.Second
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
