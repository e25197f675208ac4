package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for udon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Odin      OdinConfig      `yaml:"odin"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// OdinConfig describes how the flasher is invoked.
type OdinConfig struct {
	// Binary is the odin4 executable.
	Binary string `yaml:"binary"`

	// Elevation is prepended to flash and reboot commands. Set it to ""
	// when udev rules already grant USB access.
	Elevation string `yaml:"elevation"`

	// GracefulTimeout is how long a stopped command gets before SIGKILL.
	GracefulTimeout time.Duration `yaml:"graceful_timeout"`

	Output OdinOutputConfig `yaml:"output"`
}

// OdinOutputConfig holds the markers used to interpret odin4 output.
type OdinOutputConfig struct {
	SetupMarker     string `yaml:"setup_marker"`
	NoiseMarker     string `yaml:"noise_marker"`
	StripToken      string `yaml:"strip_token"`
	NoDevicesMarker string `yaml:"no_devices_marker"`
}

// MonitorConfig contains device presence polling settings.
type MonitorConfig struct {
	// Probe selects the presence check: "odin" runs "<binary> -l",
	// "usb" enumerates the bus through libusb.
	Probe    string           `yaml:"probe"`
	Interval time.Duration    `yaml:"interval"`
	Timeout  time.Duration    `yaml:"timeout"`
	USB      MonitorUSBConfig `yaml:"usb"`
}

// MonitorUSBConfig identifies the device for the usb probe.
type MonitorUSBConfig struct {
	VendorID  string `yaml:"vendor_id"`
	ProductID string `yaml:"product_id"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string   `yaml:"path"`
	MaxMessageSize int      `yaml:"max_message_size"`
	PingInterval   int      `yaml:"ping_interval"`
	PongTimeout    int      `yaml:"pong_timeout"`
	AllowedOrigins []string `yaml:"allowed_origins"`
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings. An empty secret leaves the API
// unauthenticated.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: UDON_SECTION_KEY
// For example: UDON_ODIN_BINARY, UDON_API_PORT
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return finish(cfg)
}

// LoadOrDefault behaves like Load but falls back to defaults when the
// file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return finish(Default())
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Odin: OdinConfig{
			Binary:          "./assets/odin4",
			Elevation:       "pkexec",
			GracefulTimeout: 5 * time.Second,
			Output: OdinOutputConfig{
				SetupMarker:     "Setup Connection",
				NoiseMarker:     "/dev/bus/usb/",
				StripToken:      ".lz4",
				NoDevicesMarker: "List of known devices",
			},
		},
		Monitor: MonitorConfig{
			Probe:    "odin",
			Interval: time.Second,
			Timeout:  time.Second,
			USB: MonitorUSBConfig{
				VendorID: "04e8",
			},
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/udon.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			TopicPrefix: "udon",
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "udon",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8470,
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
			Org:           "udon",
			Bucket:        "udon",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				Issuer: "udon",
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: UDON_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Flasher
	if v := os.Getenv("UDON_ODIN_BINARY"); v != "" {
		cfg.Odin.Binary = v
	}
	if v, ok := os.LookupEnv("UDON_ODIN_ELEVATION"); ok {
		cfg.Odin.Elevation = v
	}

	// Monitor
	if v := os.Getenv("UDON_MONITOR_PROBE"); v != "" {
		cfg.Monitor.Probe = v
	}

	// Database
	if v := os.Getenv("UDON_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("UDON_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := envInt("UDON_MQTT_PORT"); v > 0 {
		cfg.MQTT.Broker.Port = v
	}
	if v := os.Getenv("UDON_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("UDON_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("UDON_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("UDON_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("UDON_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := envInt("UDON_API_PORT"); v > 0 {
		cfg.API.Port = v
	}

	// Security
	if v := os.Getenv("UDON_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	// Logging
	if v := os.Getenv("UDON_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// envInt returns the integer value of an environment variable, or 0.
func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	// Flasher
	if c.Odin.Binary == "" {
		errs = append(errs, "odin.binary is required")
	}
	if c.Odin.GracefulTimeout < 0 {
		errs = append(errs, "odin.graceful_timeout must not be negative")
	}

	// Monitor
	switch c.Monitor.Probe {
	case "odin":
	case "usb":
		if !validUSBID(c.Monitor.USB.VendorID) || c.Monitor.USB.VendorID == "" {
			errs = append(errs, "monitor.usb.vendor_id must be a 4-digit hex ID")
		}
		if !validUSBID(c.Monitor.USB.ProductID) {
			errs = append(errs, "monitor.usb.product_id must be a 4-digit hex ID")
		}
	default:
		errs = append(errs, `monitor.probe must be "odin" or "usb"`)
	}
	if c.Monitor.Interval <= 0 {
		errs = append(errs, "monitor.interval must be positive")
	}
	if c.Monitor.Timeout <= 0 {
		errs = append(errs, "monitor.timeout must be positive")
	}

	// Database
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required")
		}
	}

	// API
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// WebSocket
	if c.API.Enabled {
		if c.WebSocket.PingInterval < 1 || c.WebSocket.PongTimeout < 1 {
			errs = append(errs, "websocket.ping_interval and websocket.pong_timeout must be positive")
		}
		if !strings.HasPrefix(c.WebSocket.Path, "/") {
			errs = append(errs, `websocket.path must start with "/"`)
		}
	}

	// InfluxDB
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// Logging
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, `logging.format must be "json" or "text"`)
	}

	// Security: a short secret makes forged tokens practical.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validUSBID accepts "", "04e8" and "0x04e8".
func validUSBID(s string) bool {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if s == "" {
		return true
	}
	_, err := strconv.ParseUint(s, 16, 16)
	return err == nil
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
