package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the top-level configuration for the collector.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Database     DatabaseConfig     `koanf:"database"`
	Enrichment   EnrichmentConfig   `koanf:"enrichment"`
	Destinations DestinationsConfig `koanf:"destinations"`
	Tracking     TrackingConfig     `koanf:"tracking"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // "debug" or "release"
}

// DatabaseConfig holds the database connection settings.
type DatabaseConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

// EnrichmentConfig holds the IP enrichment provider and cache settings.
type EnrichmentConfig struct {
	// Provider is "ipinfo" or "maxmind". MaxMind is geo-only and meant for
	// air-gapped deployments; ipinfo is the default.
	Provider        string `koanf:"provider"`
	IPInfoToken     string `koanf:"ipinfo_token"`
	MaxMindDBPath   string `koanf:"maxmind_db_path"`
	LookupTimeout   string `koanf:"lookup_timeout"` // parsed as time.Duration in main
	ConsumerISPFile string `koanf:"consumer_isp_file"`

	// Cache is "memory" or "redis". Redis shares the classification cache
	// across collector replicas.
	Cache         string `koanf:"cache"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
}

// DestinationsConfig holds the fan-out delivery settings. Per-site
// credentials live in the database, not here.
type DestinationsConfig struct {
	DeliveryTimeout string `koanf:"delivery_timeout"` // parsed as time.Duration in main
}

// TrackingConfig holds the event pipeline settings.
type TrackingConfig struct {
	MaxPropertyBytes int `koanf:"max_property_bytes"`
}

// Load loads the configuration from the given file path and environment variables.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	defaults := map[string]interface{}{
		"server.port":                   8080,
		"server.host":                   "0.0.0.0",
		"server.max_body_size_mb":       1,
		"server.mode":                   "release",
		"database.dsn":                  "postgres://localhost:5432/beacon?sslmode=disable",
		"database.max_open_conns":       25,
		"database.max_idle_conns":       25,
		"database.auto_migrate":         true,
		"enrichment.provider":           "ipinfo",
		"enrichment.ipinfo_token":       "",
		"enrichment.maxmind_db_path":    "",
		"enrichment.lookup_timeout":     "3s",
		"enrichment.consumer_isp_file":  "",
		"enrichment.cache":              "memory",
		"enrichment.redis_addr":         "localhost:6379",
		"enrichment.redis_password":     "",
		"enrichment.redis_db":           0,
		"destinations.delivery_timeout": "5s",
		"tracking.max_property_bytes":   16384,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// 2. Load from file
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// 3. Load from Environment Variables
	// BEACON_SERVER__PORT=9090 overrides server.port
	if err := k.Load(env.Provider("BEACON_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "BEACON_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the collector cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	switch c.Enrichment.Provider {
	case "ipinfo":
		// Token may be empty: ipinfo serves unauthenticated lookups at a
		// reduced rate, useful for local development.
	case "maxmind":
		if c.Enrichment.MaxMindDBPath == "" {
			return fmt.Errorf("enrichment.maxmind_db_path is required when provider is maxmind")
		}
	default:
		return fmt.Errorf("enrichment.provider must be \"ipinfo\" or \"maxmind\", got %q", c.Enrichment.Provider)
	}

	switch c.Enrichment.Cache {
	case "memory":
	case "redis":
		if c.Enrichment.RedisAddr == "" {
			return fmt.Errorf("enrichment.redis_addr is required when cache is redis")
		}
	default:
		return fmt.Errorf("enrichment.cache must be \"memory\" or \"redis\", got %q", c.Enrichment.Cache)
	}

	return nil
}
