// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Definitions   DefinitionsConfig   `yaml:"definitions"`
	Store         StoreConfig         `yaml:"store"`
	Events        EventsConfig        `yaml:"events"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	Tables        TablesConfig        `yaml:"tables"`
	Lookup        LookupCacheConfig   `yaml:"lookup"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int             `yaml:"port"`
	ReadTimeout     time.Duration   `yaml:"read_timeout"`
	WriteTimeout    time.Duration   `yaml:"write_timeout"`
	HandlerTimeout  time.Duration   `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64           `yaml:"max_upload_bytes"`
	CORS            CORSConfig      `yaml:"cors"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// RateLimitConfig describes per-client request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// DefinitionsConfig describes where to find definition YAML files.
type DefinitionsConfig struct {
	Directories    []string      `yaml:"directories"`
	Include        []string      `yaml:"include"`
	SchemaDirs     []string      `yaml:"schema_dirs"`
	HotReload      bool          `yaml:"hot_reload"`
	ReloadDebounce time.Duration `yaml:"reload_debounce"`
}

// StoreConfig describes the record store backing tables and forms.
type StoreConfig struct {
	Driver          string        `yaml:"driver"`
	DSNEnv          string        `yaml:"dsn_env"`
	AddrEnv         string        `yaml:"addr_env"`
	DB              int           `yaml:"db"`
	KeyPrefix       string        `yaml:"key_prefix"`
	SeedFile        string        `yaml:"seed_file"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	Breaker         BreakerConfig `yaml:"breaker"`
}

// BreakerConfig describes the circuit breaker guarding remote stores.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

// EventsConfig describes record change event publishing.
type EventsConfig struct {
	Driver       string        `yaml:"driver"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// SessionsConfig describes server-side table view and form session limits.
type SessionsConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	MaxSessions     int           `yaml:"max_sessions"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// TablesConfig describes table engine defaults.
type TablesConfig struct {
	ItemsPerPage    int           `yaml:"items_per_page"`
	HighlightWindow time.Duration `yaml:"highlight_window"`
}

// CacheConfig describes cache settings.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// LookupCacheConfig describes lookup cache settings.
type LookupCacheConfig struct {
	Cache CacheConfig `yaml:"cache"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Exporter          string  `yaml:"exporter"`
	Endpoint          string  `yaml:"endpoint"`
	SamplingRate      float64 `yaml:"sampling_rate"`
	ForceSampleErrors bool    `yaml:"force_sample_errors"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Event drivers.
const (
	EventsNone  = "none"
	EventsKafka = "kafka"
)

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxUploadBytes:  5 << 20,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "X-Correlation-Id", "Accept-Language"},
				MaxAge:         86400,
			},
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 50,
				Burst:             100,
			},
		},
		Definitions: DefinitionsConfig{
			Directories:    []string{"/definitions"},
			Include:        []string{"**/*.yaml", "**/*.yml"},
			SchemaDirs:     []string{"/schemas"},
			ReloadDebounce: 500 * time.Millisecond,
		},
		Store: StoreConfig{
			Driver:          StoreMemory,
			DSNEnv:          "DEALERDESK_STORE_DSN",
			AddrEnv:         "DEALERDESK_REDIS_ADDR",
			KeyPrefix:       "dealerdesk",
			MaxOpenConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
			Breaker: BreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				SuccessThreshold: 2,
				OpenTimeout:      30 * time.Second,
			},
		},
		Events: EventsConfig{
			Driver:       EventsNone,
			Topic:        "dealerdesk.records",
			BatchTimeout: 50 * time.Millisecond,
		},
		Sessions: SessionsConfig{
			TTL:             30 * time.Minute,
			MaxSessions:     10000,
			CleanupInterval: time.Minute,
		},
		Tables: TablesConfig{
			ItemsPerPage:    10,
			HighlightWindow: 2 * time.Second,
		},
		Lookup: LookupCacheConfig{
			Cache: CacheConfig{
				TTL:        5 * time.Minute,
				MaxEntries: 1000,
			},
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		errs = append(errs, "server.rate_limit.requests_per_second must be positive")
	}
	if len(c.Definitions.Directories) == 0 {
		errs = append(errs, "definitions.directories is required")
	}
	if !slices.Contains([]string{StoreMemory, StoreRedis, StorePostgres}, c.Store.Driver) {
		errs = append(errs, fmt.Sprintf("store.driver %q must be one of memory, redis, postgres", c.Store.Driver))
	}
	if b := c.Store.Breaker; b.Enabled && (b.FailureThreshold < 1 || b.SuccessThreshold < 1 || b.OpenTimeout <= 0) {
		errs = append(errs, "store.breaker thresholds must be positive when enabled")
	}
	switch c.Events.Driver {
	case EventsNone:
	case EventsKafka:
		if len(c.Events.Brokers) == 0 {
			errs = append(errs, "events.brokers is required for the kafka driver")
		}
		if c.Events.Topic == "" {
			errs = append(errs, "events.topic is required for the kafka driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("events.driver %q must be one of none, kafka", c.Events.Driver))
	}
	if c.Sessions.TTL <= 0 {
		errs = append(errs, "sessions.ttl must be positive")
	}
	if c.Tables.ItemsPerPage < 1 {
		errs = append(errs, "tables.items_per_page must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads DEALERDESK_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DEALERDESK_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DEALERDESK_DEFINITIONS_DIRS"); v != "" {
		cfg.Definitions.Directories = strings.Split(v, ",")
	}
	if v := os.Getenv("DEALERDESK_SCHEMA_DIRS"); v != "" {
		cfg.Definitions.SchemaDirs = strings.Split(v, ",")
	}
	if v := os.Getenv("DEALERDESK_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("DEALERDESK_EVENTS_DRIVER"); v != "" {
		cfg.Events.Driver = v
	}
	if v := os.Getenv("DEALERDESK_EVENTS_BROKERS"); v != "" {
		cfg.Events.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DEALERDESK_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
}
