package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the pager bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Datadog  DatadogConfig  `yaml:"datadog"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DeviceConfig identifies the legacy single device served by POST /webhook.
type DeviceConfig struct {
	ID string `yaml:"id"`
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

	// ConnectWait bounds how long EnsureConnected blocks (seconds).
	ConnectWait int `yaml:"connect_wait"`

	// PollInterval is the connection state polling interval (milliseconds).
	PollInterval int `yaml:"poll_interval"`
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

// MQTTReconnectConfig contains MQTT reconnection backoff bounds (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// DatadogConfig contains the upstream incident API settings.
// APIKey and AppKey are the process-wide fallback credentials.
type DatadogConfig struct {
	APIKey string `yaml:"api_key"`
	AppKey string `yaml:"app_key"`
	Site   string `yaml:"site"`

	// BaseURL overrides the region-derived host for every call (proxies, tests).
	BaseURL string `yaml:"base_url"`

	// Timeout is the per-request timeout (seconds).
	Timeout int `yaml:"timeout"`
}

// BridgeConfig contains settings for the bridge's own public surface.
type BridgeConfig struct {
	// PublicURL is the externally reachable base URL used when
	// auto-provisioning per-device webhooks. Empty disables provisioning.
	PublicURL string `yaml:"public_url"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
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

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// A missing file is only an error when required is true; env-only
// deployments pass required=false for the default path.
func Load(path string, required bool) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !required:
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
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
		Device: DeviceConfig{
			ID: "ddpager-poc-001",
		},
		Database: DatabaseConfig{
			Path:        "./data/pager-bridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Port: 8883,
				TLS:  true,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     30,
			},
			ConnectWait:  10,
			PollInterval: 250,
		},
		Datadog: DatadogConfig{
			Site:    "datadoghq.com",
			Timeout: 10,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
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
	}
}

// lookupEnv returns the first non-empty value among the given variable names.
func lookupEnv(names ...string) (string, bool) {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v, true
		}
	}
	return "", false
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Both the bare names used by container deployments (MQTT_BROKER, DD_API_KEY)
// and PAGERBRIDGE_-prefixed aliases are honoured; the prefixed form wins.
func applyEnvOverrides(cfg *Config) {
	if v, ok := lookupEnv("PAGERBRIDGE_DEVICE_ID", "DEVICE_ID"); ok {
		cfg.Device.ID = v
	}
	if v, ok := lookupEnv("PAGERBRIDGE_DATABASE_PATH", "DATABASE_PATH"); ok {
		cfg.Database.Path = v
	}

	// MQTT
	if v, ok := lookupEnv("PAGERBRIDGE_MQTT_BROKER", "MQTT_BROKER"); ok {
		cfg.MQTT.Broker.Host = v
	}
	if v, ok := lookupEnv("PAGERBRIDGE_MQTT_PORT", "MQTT_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v, ok := lookupEnv("PAGERBRIDGE_MQTT_TLS", "MQTT_TLS"); ok {
		if tls, err := strconv.ParseBool(v); err == nil {
			cfg.MQTT.Broker.TLS = tls
		}
	}
	if v, ok := lookupEnv("PAGERBRIDGE_MQTT_USER", "MQTT_USER"); ok {
		cfg.MQTT.Auth.Username = v
	}
	if v, ok := lookupEnv("PAGERBRIDGE_MQTT_PASS", "MQTT_PASS"); ok {
		cfg.MQTT.Auth.Password = v
	}

	// Datadog
	if v, ok := lookupEnv("PAGERBRIDGE_DD_API_KEY", "DD_API_KEY"); ok {
		cfg.Datadog.APIKey = v
	}
	if v, ok := lookupEnv("PAGERBRIDGE_DD_APP_KEY", "DD_APP_KEY"); ok {
		cfg.Datadog.AppKey = v
	}
	if v, ok := lookupEnv("PAGERBRIDGE_DD_SITE", "DD_SITE"); ok {
		cfg.Datadog.Site = v
	}

	if v, ok := lookupEnv("PAGERBRIDGE_PUBLIC_URL", "PUBLIC_URL"); ok {
		cfg.Bridge.PublicURL = v
	}

	if v, ok := lookupEnv("PAGERBRIDGE_API_PORT", "API_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v, ok := lookupEnv("PAGERBRIDGE_INFLUXDB_TOKEN"); ok {
		cfg.InfluxDB.Token = v
	}

	if v, ok := lookupEnv("PAGERBRIDGE_LOG_LEVEL", "LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	} else if strings.ContainsAny(c.Device.ID, "/+#") {
		errs = append(errs, "device.id must not contain '/', '+' or '#'")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required (set MQTT_BROKER)")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.InitialDelay < 1 {
		errs = append(errs, "mqtt.reconnect.initial_delay must be at least 1")
	}
	if c.MQTT.Reconnect.MaxDelay < c.MQTT.Reconnect.InitialDelay {
		errs = append(errs, "mqtt.reconnect.max_delay must not be less than initial_delay")
	}
	if c.MQTT.ConnectWait < 1 {
		errs = append(errs, "mqtt.connect_wait must be at least 1")
	}
	if c.MQTT.PollInterval < 1 {
		errs = append(errs, "mqtt.poll_interval must be at least 1")
	}

	if c.Datadog.Site == "" {
		errs = append(errs, "datadog.site is required")
	}
	if c.Datadog.Timeout < 1 {
		errs = append(errs, "datadog.timeout must be at least 1")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ClientID returns the MQTT client identifier, derived from the device id
// when not configured explicitly.
func (c *Config) ClientID() string {
	if c.MQTT.Broker.ClientID != "" {
		return c.MQTT.Broker.ClientID
	}
	return "dd-pager-bridge-" + c.Device.ID
}

// GetDatadogTimeout returns the upstream request timeout as a Duration.
func (c *Config) GetDatadogTimeout() time.Duration {
	return time.Duration(c.Datadog.Timeout) * time.Second
}
