package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/rfidhub/internal/tagcodec"
)

// Driver types accepted in driver.type.
const (
	DriverSimulated = "simulated"
	DriverISC       = "isc"
)

// Config is the root configuration structure for rfidhub.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Hub       HubConfig       `yaml:"hub"`
	Readers   ReadersConfig   `yaml:"readers"`
	Driver    DriverConfig    `yaml:"driver"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Discovery DiscoveryConfig `yaml:"discovery"`
}

// HubConfig identifies this hub instance on the network.
type HubConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// ReadersConfig contains reader registry settings.
type ReadersConfig struct {
	// SettingsFile is the INI file holding the persisted reader list.
	SettingsFile string `yaml:"settings_file"`

	// DeviceTimeout bounds every call into the reader driver.
	// Default: 5s
	DeviceTimeout time.Duration `yaml:"device_timeout"`

	// Charset names the text encoding of tag payloads (e.g. "windows-1251", "utf-8").
	Charset string `yaml:"charset"`
}

// DriverConfig selects and configures the reader driver.
type DriverConfig struct {
	// Type is "simulated" or "isc".
	Type string `yaml:"type"`

	// PortPattern maps a reader port number to a serial device, e.g. "/dev/ttyUSB%d".
	PortPattern string `yaml:"port_pattern"`
	BaudRate    int    `yaml:"baud_rate"`

	// ReadTimeout is the per-frame serial read timeout.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// Bench describes the readers and tags present in the simulated driver.
	Bench []BenchReaderConfig `yaml:"bench,omitempty"`
}

// BenchReaderConfig is one simulated reader on the bench.
type BenchReaderConfig struct {
	BusAddr    int      `yaml:"bus_addr"`
	PortNumber int      `yaml:"port_number"`
	Tags       []string `yaml:"tags"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
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
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
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
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// DiscoveryConfig contains mDNS advertisement settings.
type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
	Service  string `yaml:"service"`
	Domain   string `yaml:"domain"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: RFIDHUB_SECTION_KEY
// For example: RFIDHUB_DATABASE_PATH, RFIDHUB_API_PORT
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
		Hub: HubConfig{
			ID:   "rfidhub-001",
			Name: "RFID Hub",
		},
		Readers: ReadersConfig{
			SettingsFile:  "./data/readers.ini",
			DeviceTimeout: 5 * time.Second,
			Charset:       tagcodec.DefaultCharset,
		},
		Driver: DriverConfig{
			Type:        DriverSimulated,
			PortPattern: "/dev/ttyUSB%d",
			BaudRate:    38400,
			ReadTimeout: 2 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        "./data/rfidhub.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "rfidhub",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "rfidhub",
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
		WebSocket: WebSocketConfig{
			Path:           "/ws",
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
		Discovery: DiscoveryConfig{
			Instance: "rfidhub",
			Service:  "_rfidhub._tcp",
			Domain:   "local.",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: RFIDHUB_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Readers
	if v := os.Getenv("RFIDHUB_READERS_SETTINGS_FILE"); v != "" {
		cfg.Readers.SettingsFile = v
	}

	// Driver
	if v := os.Getenv("RFIDHUB_DRIVER_TYPE"); v != "" {
		cfg.Driver.Type = v
	}
	if v := os.Getenv("RFIDHUB_DRIVER_PORT_PATTERN"); v != "" {
		cfg.Driver.PortPattern = v
	}

	// Database
	if v := os.Getenv("RFIDHUB_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("RFIDHUB_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("RFIDHUB_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("RFIDHUB_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("RFIDHUB_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("RFIDHUB_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("RFIDHUB_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Hub.ID == "" {
		errs = append(errs, "hub.id is required")
	}

	// Readers
	if c.Readers.SettingsFile == "" {
		errs = append(errs, "readers.settings_file is required")
	}
	if c.Readers.DeviceTimeout <= 0 {
		errs = append(errs, "readers.device_timeout must be positive")
	}
	if _, err := tagcodec.New(c.Readers.Charset); err != nil {
		errs = append(errs, fmt.Sprintf("readers.charset %q is not supported", c.Readers.Charset))
	}

	// Driver
	switch c.Driver.Type {
	case DriverSimulated:
	case DriverISC:
		if !strings.Contains(c.Driver.PortPattern, "%d") {
			errs = append(errs, "driver.port_pattern must contain %d")
		}
		if c.Driver.BaudRate <= 0 {
			errs = append(errs, "driver.baud_rate must be positive")
		}
	default:
		errs = append(errs, fmt.Sprintf("driver.type must be %q or %q", DriverSimulated, DriverISC))
	}
	for i, b := range c.Driver.Bench {
		if b.BusAddr < 0 || b.BusAddr > 255 {
			errs = append(errs, fmt.Sprintf("driver.bench[%d].bus_addr must be between 0 and 255", i))
		}
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Discovery.Enabled && c.Discovery.Service == "" {
		errs = append(errs, "discovery.service is required when discovery is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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
