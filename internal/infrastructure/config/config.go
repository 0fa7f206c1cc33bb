package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Phyn bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Account      AccountConfig      `yaml:"account"`
	ControlPlane ControlPlaneConfig `yaml:"control_plane"`
	Broker       BrokerConfig       `yaml:"broker"`
	Session      SessionConfig      `yaml:"session"`
	Database     DatabaseConfig     `yaml:"database"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	API          APIConfig          `yaml:"api"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// AccountConfig identifies the cloud account the bridge connects as.
type AccountConfig struct {
	// ID is the account identifier (typically the login email).
	// It is URL-escaped before being used in control-plane paths.
	ID string `yaml:"id"`

	// Token is the identity-scoped bearer credential for control-plane
	// calls. Prefer setting it via PHYNBRIDGE_ACCOUNT_TOKEN.
	Token string `yaml:"token"`

	// DeviceIDs are the devices to subscribe to after connecting.
	DeviceIDs []string `yaml:"device_ids"`
}

// ControlPlaneConfig contains the HTTP control-plane endpoint settings.
type ControlPlaneConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout int    `yaml:"timeout"` // seconds
}

// BrokerConfig contains broker transport settings.
// The broker host and connection path are resolved at runtime from the
// control plane, so only the fixed parts of the connection live here.
type BrokerConfig struct {
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// SessionConfig contains session management intervals.
type SessionConfig struct {
	// KeepaliveInterval is how often the session proactively reconnects
	// to refresh credentials (seconds).
	KeepaliveInterval int `yaml:"keepalive_interval"`

	// ReconnectBackoff is the delay between reconnect attempts (seconds).
	ReconnectBackoff int `yaml:"reconnect_backoff"`

	// HousekeepInterval is how often the transport's housekeeping
	// routine runs while a connection is up (seconds).
	HousekeepInterval int `yaml:"housekeep_interval"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays is how long device history entries are kept before
	// being pruned. Zero disables pruning; the last known state per
	// device is never pruned.
	RetentionDays int `yaml:"retention_days"`
}

// TelemetryConfig contains InfluxDB connection settings.
type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains the local status HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
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
// Environment variables follow the pattern: PHYNBRIDGE_SECTION_KEY
// For example: PHYNBRIDGE_ACCOUNT_TOKEN, PHYNBRIDGE_DATABASE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		ControlPlane: ControlPlaneConfig{
			BaseURL: "https://api.phyn.com",
			Timeout: 10,
		},
		Broker: BrokerConfig{
			Port:     443,
			ClientID: "phynbridge",
		},
		Session: SessionConfig{
			KeepaliveInterval: 3600,
			ReconnectBackoff:  2,
			HousekeepInterval: 1,
		},
		Database: DatabaseConfig{
			Path:          "./data/phynbridge.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8093,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PHYNBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Account
	if v := os.Getenv("PHYNBRIDGE_ACCOUNT_ID"); v != "" {
		cfg.Account.ID = v
	}
	if v := os.Getenv("PHYNBRIDGE_ACCOUNT_TOKEN"); v != "" {
		cfg.Account.Token = v
	}

	// Control plane
	if v := os.Getenv("PHYNBRIDGE_CONTROL_PLANE_BASE_URL"); v != "" {
		cfg.ControlPlane.BaseURL = v
	}

	// Database
	if v := os.Getenv("PHYNBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Telemetry
	if v := os.Getenv("PHYNBRIDGE_TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Account validation
	if c.Account.ID == "" {
		errs = append(errs, "account.id is required")
	}
	if c.Account.Token == "" {
		errs = append(errs, "account.token is required (set PHYNBRIDGE_ACCOUNT_TOKEN environment variable)")
	}

	// Control plane validation
	if !strings.HasPrefix(c.ControlPlane.BaseURL, "https://") && !strings.HasPrefix(c.ControlPlane.BaseURL, "http://") {
		errs = append(errs, "control_plane.base_url must be an http(s) URL")
	}

	// Broker validation
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		errs = append(errs, "broker.port must be between 1 and 65535")
	}
	if c.Broker.ClientID == "" {
		errs = append(errs, "broker.client_id is required")
	}

	// Session validation
	if c.Session.KeepaliveInterval < 1 {
		errs = append(errs, "session.keepalive_interval must be at least 1 second")
	}
	if c.Session.ReconnectBackoff < 1 {
		errs = append(errs, "session.reconnect_backoff must be at least 1 second")
	}
	if c.Session.HousekeepInterval < 1 {
		errs = append(errs, "session.housekeep_interval must be at least 1 second")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.RetentionDays < 0 {
		errs = append(errs, "database.retention_days must not be negative (0 disables pruning)")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Telemetry validation
	if c.Telemetry.Enabled && c.Telemetry.URL == "" {
		errs = append(errs, "telemetry.url is required when telemetry is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetControlPlaneTimeout returns the control-plane request timeout as a Duration.
func (c *Config) GetControlPlaneTimeout() time.Duration {
	return time.Duration(c.ControlPlane.Timeout) * time.Second
}

// GetKeepaliveInterval returns the session keepalive interval as a Duration.
func (c *Config) GetKeepaliveInterval() time.Duration {
	return time.Duration(c.Session.KeepaliveInterval) * time.Second
}

// GetReconnectBackoff returns the reconnect backoff delay as a Duration.
func (c *Config) GetReconnectBackoff() time.Duration {
	return time.Duration(c.Session.ReconnectBackoff) * time.Second
}

// GetHousekeepInterval returns the transport housekeeping interval as a Duration.
func (c *Config) GetHousekeepInterval() time.Duration {
	return time.Duration(c.Session.HousekeepInterval) * time.Second
}

// GetHistoryRetention returns the history retention window as a
// Duration. Zero means pruning is disabled.
func (c *Config) GetHistoryRetention() time.Duration {
	return time.Duration(c.Database.RetentionDays) * 24 * time.Hour
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
