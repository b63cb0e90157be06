// Package config loads the solbridge YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingEndpoint is returned when sol.endpoint is not set.
var ErrMissingEndpoint = errors.New("sol.endpoint is required")

// Config represents the application configuration
type Config struct {
	Sol             SolConfig        `yaml:"sol"`
	Reconciler      ReconcilerConfig `yaml:"reconciler"`
	Database        DatabaseConfig   `yaml:"database"`
	Ledger          LedgerConfig     `yaml:"ledger"`
	Log             LogConfig        `yaml:"log"`
	HTTP            HTTPConfig       `yaml:"http"`
	MQTT            MQTTConfig       `yaml:"mqtt"`
	EventBus        EventBusConfig   `yaml:"eventbus"`
	ShutdownTimeout Duration         `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// SolConfig contains SOL API connection settings
type SolConfig struct {
	Endpoint     string   `yaml:"endpoint"`       // Base URL, e.g. http://sol.local:8080
	Timeout      Duration `yaml:"timeout"`        // Per-request timeout
	RateLimitRPS float64  `yaml:"rate_limit_rps"` // Outgoing request rate, 0 = default
}

// ReconcilerConfig contains reconciler settings
type ReconcilerConfig struct {
	Interval     Duration `yaml:"interval"`
	PruneMissing bool     `yaml:"prune_missing"` // Remove accessories SOL no longer reports
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig contains event ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Colors bool   `yaml:"colors"`
	JSON   bool   `yaml:"json"` // Emit JSON lines instead of console output
}

// HTTPConfig contains the status/API server settings
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Addr returns host:port for the listener.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MQTTConfig contains the MQTT accessory host settings.
// An empty broker keeps accessories in process only.
type MQTTConfig struct {
	Broker         string   `yaml:"broker"`
	TopicPrefix    string   `yaml:"topic_prefix"`
	ClientID       string   `yaml:"client_id"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
	WriteTimeout   Duration `yaml:"write_timeout"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse expands environment variables in data, decodes it and applies defaults.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.Sol.Endpoint = strings.TrimSpace(cfg.Sol.Endpoint)
	if cfg.Sol.Endpoint == "" {
		return nil, ErrMissingEndpoint
	}

	// Set defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./solbridge.sqlite"
	}

	// SOL defaults
	if cfg.Sol.Timeout == 0 {
		cfg.Sol.Timeout = Duration(10 * time.Second)
	}
	if cfg.Sol.RateLimitRPS == 0 {
		cfg.Sol.RateLimitRPS = 10.0 // 10 requests per second
	}

	// Reconciler defaults
	if cfg.Reconciler.Interval == 0 {
		cfg.Reconciler.Interval = Duration(30 * time.Second)
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// HTTP defaults
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 9090
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}

	// MQTT defaults
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "solbridge"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "solbridge"
	}
	if cfg.MQTT.ConnectTimeout == 0 {
		cfg.MQTT.ConnectTimeout = Duration(10 * time.Second)
	}
	if cfg.MQTT.WriteTimeout == 0 {
		cfg.MQTT.WriteTimeout = Duration(15 * time.Second)
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	return &cfg, nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
