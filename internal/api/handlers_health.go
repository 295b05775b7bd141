// BusTracker - Real-Time Vehicle Location Broadcast Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"
	"time"

	"github.com/citygrid/bustracker/internal/models"
)

// HealthLive is the liveness probe: the process is up and serving.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   map[string]string{"status": "alive"},
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// HealthReady is the readiness probe: the store must answer before the
// service accepts traffic.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "STORE_ERROR", "Location store not ready", err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   map[string]string{"status": "ready"},
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}

// Health reports overall service health with uptime and subscriber count.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if h.wsHub != nil {
		clients = h.wsHub.GetClientCount()
	}

	storeStatus := "ok"
	status := "healthy"
	code := http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		storeStatus = "unavailable"
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	respondJSON(w, code, &models.APIResponse{
		Status: "success",
		Data: map[string]interface{}{
			"status":            status,
			"store":             storeStatus,
			"uptime_seconds":    int64(time.Since(h.startTime).Seconds()),
			"websocket_clients": clients,
		},
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}
