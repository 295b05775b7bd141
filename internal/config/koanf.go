// BusTracker - Real-Time Vehicle Location Broadcast Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envMappings maps well-known environment variables to config keys.
// Variables not listed here use the BUSTRACKER_ prefix convention,
// e.g. BUSTRACKER_SERVER_PORT -> server.port.
var envMappings = map[string]string{
	"HTTP_HOST":           "server.host",
	"HTTP_PORT":           "server.port",
	"STORE_PATH":          "store.path",
	"STORE_IN_MEMORY":     "store.in_memory",
	"STORE_POSITION_TTL":  "store.position_ttl",
	"GEOCODE_ENABLED":     "geocode.enabled",
	"GEOCODE_PROVIDER":    "geocode.provider",
	"GEOCODE_API_KEY":     "geocode.api_key",
	"GEOCODE_TIMEOUT":     "geocode.timeout",
	"CORS_ORIGINS":        "security.cors_origins",
	"RATE_LIMIT_REQS":     "security.rate_limit_reqs",
	"RATE_LIMIT_WINDOW":   "security.rate_limit_window",
	"RATE_LIMIT_DISABLED": "security.rate_limit_disabled",
	"LOG_LEVEL":           "logging.level",
	"LOG_FORMAT":          "logging.format",
	"LOG_CALLER":          "logging.caller",
}

// sliceFields are config keys whose environment values are comma-separated
// lists. Koanf's env provider delivers them as plain strings; they are
// re-split after loading.
var sliceFields = []string{
	"security.cors_origins",
}

// Defaults returns the built-in default configuration. Every field has a
// working value so the service starts with no config file at all.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Path:        "./data/positions",
			InMemory:    false,
			PositionTTL: 0,
		},
		Geocode: GeocodeConfig{
			Enabled:   true,
			Provider:  "nominatim",
			Timeout:   5 * time.Second,
			UserAgent: "bustracker/1.0 (+https://github.com/citygrid/bustracker)",
		},
		Security: SecurityConfig{
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from layered sources, lowest to highest
// priority: defaults, the YAML file at path (skipped when empty or absent),
// then environment variables. The result is validated before return.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := Defaults()
	if err := k.Load(structs.Provider(&defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	processSliceFields(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// envTransformFunc maps environment variable names to koanf keys. Unmapped
// variables without the BUSTRACKER_ prefix are ignored so unrelated
// environment noise never leaks into the configuration.
func envTransformFunc(name string) string {
	if key, ok := envMappings[name]; ok {
		return key
	}

	if rest, ok := strings.CutPrefix(name, "BUSTRACKER_"); ok {
		return strings.ReplaceAll(strings.ToLower(rest), "_", ".")
	}

	return ""
}

// processSliceFields splits comma-separated string values for keys that
// unmarshal into []string.
func processSliceFields(k *koanf.Koanf) {
	for _, key := range sliceFields {
		raw, ok := k.Get(key).(string)
		if !ok {
			continue
		}

		parts := strings.Split(raw, ",")
		values := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				values = append(values, trimmed)
			}
		}
		_ = k.Set(key, values)
	}
}
