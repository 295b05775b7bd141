// BusTracker - Real-Time Vehicle Location Broadcast Service
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api implements the HTTP surface of BusTracker: location
// ingestion and retrieval endpoints, the WebSocket subscription endpoint,
// health probes, and the Chi router that ties them together.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/citygrid/bustracker/internal/config"
	"github.com/citygrid/bustracker/internal/logging"
	"github.com/citygrid/bustracker/internal/models"
	ws "github.com/citygrid/bustracker/internal/websocket"
)

// LocationStore is the persistence surface the handlers depend on.
// *store.Store satisfies it; tests substitute fakes.
type LocationStore interface {
	Upsert(ctx context.Context, pos models.VehiclePosition) error
	Get(ctx context.Context, busNumber string) (models.VehiclePosition, error)
	GetAll(ctx context.Context) ([]models.VehiclePosition, error)
	Ping(ctx context.Context) error
}

// AddressResolver resolves coordinates to display addresses.
// *geocode.Resolver satisfies it; nil disables enrichment.
type AddressResolver interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

// Handler holds the dependencies of all HTTP handlers.
type Handler struct {
	store     LocationStore
	resolver  AddressResolver
	wsHub     *ws.Hub
	config    *config.Config
	startTime time.Time
}

// NewHandler creates a Handler. resolver may be nil when address
// enrichment is disabled; wsHub may be nil in minimal test setups.
func NewHandler(store LocationStore, resolver AddressResolver, wsHub *ws.Hub, cfg *config.Config) *Handler {
	return &Handler{
		store:     store,
		resolver:  resolver,
		wsHub:     wsHub,
		config:    cfg,
		startTime: time.Now(),
	}
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout against slow clients.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins against the
// configured CORS origins. Browser WebSockets always send Origin; a
// missing header means a non-browser client and is allowed, since the
// subscription endpoint is read-only.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if h.config == nil {
		return true
	}

	for _, allowed := range h.config.Security.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("websocket connection rejected: origin not allowed")
	return false
}

// WebSocket upgrades the connection and registers the client with the hub.
// Subscribers receive every location update broadcast from the moment they
// connect; no history is replayed.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		logging.Warn().Msg("websocket connection rejected: hub not initialized")
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "WebSocket service unavailable", nil)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("websocket upgrade error")
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	h.wsHub.Register <- client
	client.Start()
}
