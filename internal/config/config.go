// BusTracker - Real-Time Vehicle Location Broadcast Service
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and validates application configuration using
// Koanf v2 with layered sources: built-in defaults, an optional YAML
// config file, and environment variables (highest priority).
package config

import (
	"fmt"
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Store    StoreConfig    `koanf:"store"`
	Geocode  GeocodeConfig  `koanf:"geocode"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address. Default: 0.0.0.0
	Host string `koanf:"host"`

	// Port is the HTTP listen port. Default: 3000
	Port int `koanf:"port"`

	// Timeout is the read/write timeout for HTTP requests.
	Timeout time.Duration `koanf:"timeout"`

	// ShutdownTimeout bounds graceful shutdown of in-flight requests.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// StoreConfig holds BadgerDB location store settings.
type StoreConfig struct {
	// Path is the on-disk directory for the store. Ignored when InMemory.
	Path string `koanf:"path"`

	// InMemory runs the store without persistence (tests, ephemeral use).
	InMemory bool `koanf:"in_memory"`

	// PositionTTL evicts position records that have not been updated for
	// this duration. Zero disables expiry (records live forever).
	PositionTTL time.Duration `koanf:"position_ttl"`
}

// GeocodeConfig holds reverse-geocoding provider settings.
// The API key must come from the environment, never from source.
type GeocodeConfig struct {
	// Enabled toggles address enrichment on single-vehicle lookups.
	Enabled bool `koanf:"enabled"`

	// Provider selects the primary provider: "nominatim" or "locationiq".
	Provider string `koanf:"provider"`

	// APIKey authenticates against keyed providers (LocationIQ).
	APIKey string `koanf:"api_key"`

	// Timeout bounds every reverse-geocoding call. The provider is a
	// remote dependency and must not stall request handling.
	Timeout time.Duration `koanf:"timeout"`

	// UserAgent identifies this service to Nominatim, which requires a
	// meaningful User-Agent from API consumers.
	UserAgent string `koanf:"user_agent"`
}

// SecurityConfig holds CORS and rate limiting settings.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for values that would prevent the
// service from operating correctly.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("store.path is required unless store.in_memory is set")
	}

	if c.Store.PositionTTL < 0 {
		return fmt.Errorf("store.position_ttl must not be negative")
	}

	if c.Geocode.Enabled {
		switch c.Geocode.Provider {
		case "nominatim":
			// Keyless provider.
		case "locationiq":
			if c.Geocode.APIKey == "" {
				return fmt.Errorf("geocode.api_key is required for provider %q", c.Geocode.Provider)
			}
		default:
			return fmt.Errorf("geocode.provider must be \"nominatim\" or \"locationiq\", got %q", c.Geocode.Provider)
		}

		if c.Geocode.Timeout <= 0 {
			return fmt.Errorf("geocode.timeout must be positive")
		}
	}

	if !c.Security.RateLimitDisabled && c.Security.RateLimitReqs < 1 {
		return fmt.Errorf("security.rate_limit_reqs must be at least 1")
	}

	return nil
}
