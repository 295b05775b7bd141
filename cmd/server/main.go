// BusTracker - Real-Time Vehicle Location Broadcast Service
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command server runs the BusTracker service: HTTP ingestion and lookup
// endpoints plus the WebSocket broadcast hub, under suture supervision.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/citygrid/bustracker/internal/api"
	"github.com/citygrid/bustracker/internal/config"
	"github.com/citygrid/bustracker/internal/geocode"
	"github.com/citygrid/bustracker/internal/logging"
	"github.com/citygrid/bustracker/internal/store"
	"github.com/citygrid/bustracker/internal/supervisor"
	"github.com/citygrid/bustracker/internal/supervisor/services"
	ws "github.com/citygrid/bustracker/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("bustracker failed")
	}
}

func run() error {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Bool("store_in_memory", cfg.Store.InMemory).
		Bool("geocode_enabled", cfg.Geocode.Enabled).
		Msg("starting bustracker")

	st, err := store.Open(store.Options{
		Path:        cfg.Store.Path,
		InMemory:    cfg.Store.InMemory,
		PositionTTL: cfg.Store.PositionTTL,
	})
	if err != nil {
		return fmt.Errorf("opening location store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("failed to close location store")
		}
	}()

	hub := ws.NewHub()

	// A typed nil must not leak into the interface: the handler treats a
	// nil resolver as enrichment disabled.
	var resolver api.AddressResolver
	if r := buildResolver(cfg); r != nil {
		resolver = r
	}

	handler := api.NewHandler(st, resolver, hub, cfg)
	router := api.NewRouter(handler, api.NewChiMiddleware(&api.ChiMiddlewareConfig{
		CORSAllowedOrigins: cfg.Security.CORSOrigins,
		CORSAllowedMethods: []string{"GET", "POST", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		CORSMaxAge:         86400,
		RateLimitRequests:  cfg.Security.RateLimitReqs,
		RateLimitWindow:    cfg.Security.RateLimitWindow,
		RateLimitDisabled:  cfg.Security.RateLimitDisabled,
	}))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.SetupChi(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree := supervisor.NewTree(logging.NewSlogLogger(), treeCfg)
	tree.AddMessagingService(services.NewWebSocketService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := tree.ServeBackground(ctx)
	logging.Info().Str("addr", server.Addr).Msg("bustracker started")

	err = <-errCh
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree stopped: %w", err)
	}

	if unstopped, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service did not stop within timeout")
		}
	}

	logging.Info().Msg("bustracker stopped")
	return nil
}

// buildResolver assembles the reverse-geocoding chain: the configured
// primary provider first, the other as fallback, each behind a circuit
// breaker. Returns nil when enrichment is disabled.
func buildResolver(cfg *config.Config) *geocode.Resolver {
	if !cfg.Geocode.Enabled {
		return nil
	}

	nominatim := geocode.NewNominatimProvider("", cfg.Geocode.UserAgent, cfg.Geocode.Timeout)
	locationIQ := geocode.NewLocationIQProvider("", cfg.Geocode.APIKey, cfg.Geocode.Timeout)

	var providers []geocode.Provider
	if cfg.Geocode.Provider == "locationiq" {
		providers = []geocode.Provider{
			geocode.NewBreakerProvider(locationIQ),
			geocode.NewBreakerProvider(nominatim),
		}
	} else {
		providers = []geocode.Provider{
			geocode.NewBreakerProvider(nominatim),
			geocode.NewBreakerProvider(locationIQ),
		}
	}

	return geocode.NewResolver(providers...)
}
