// BusTracker - Real-Time Vehicle Location Broadcast Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/citygrid/bustracker/internal/logging"
	"github.com/citygrid/bustracker/internal/models"
	"github.com/citygrid/bustracker/internal/store"
)

// CoordinatePayload is the wire form of a coordinate. Both components
// are pointers so an omitted field is distinguishable from a legitimate
// 0.0: latitude and longitude must each be explicitly present.
type CoordinatePayload struct {
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
}

// LocationUpdateRequest is the POST /bus-location payload.
type LocationUpdateRequest struct {
	BusNumber string             `json:"busNumber" validate:"required,min=1,max=64"`
	Location  *CoordinatePayload `json:"location" validate:"required"`
}

// UpdateLocation ingests a vehicle position: the store record for the bus
// number is created or overwritten, and only after the write has succeeded
// is the update broadcast to WebSocket subscribers. A broadcast therefore
// never advertises a position the store does not hold.
func (h *Handler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var req LocationUpdateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", err)
		return
	}

	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	pos := models.VehiclePosition{
		BusNumber: req.BusNumber,
		Location: models.Coordinate{
			Latitude:  *req.Location.Latitude,
			Longitude: *req.Location.Longitude,
		},
		UpdatedAt: time.Now().UTC(),
	}

	start := time.Now()
	if err := h.store.Upsert(r.Context(), pos); err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to store bus location", err)
		return
	}

	if h.wsHub != nil {
		h.wsHub.BroadcastLocationUpdate(models.LocationUpdateEvent{
			BusNumber: pos.BusNumber,
			Location:  pos.Location,
		})
	}

	logging.Ctx(r.Context()).Info().
		Str("bus_number", sanitizeLogValue(pos.BusNumber)).
		Float64("latitude", pos.Location.Latitude).
		Float64("longitude", pos.Location.Longitude).
		Msg("bus location updated")

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data: models.PositionResponse{
			BusNumber: pos.BusNumber,
			Location:  pos.Location,
			UpdatedAt: pos.UpdatedAt,
		},
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

// GetLocation returns the latest position for one vehicle. With
// ?address=true the response is enriched with a reverse-geocoded address;
// enrichment failures degrade to the bare position rather than failing
// the lookup.
func (h *Handler) GetLocation(w http.ResponseWriter, r *http.Request) {
	busNumber := chi.URLParam(r, "busNumber")
	if busNumber == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Bus number is required", nil)
		return
	}

	start := time.Now()
	pos, err := h.store.Get(r.Context(), busNumber)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Bus not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to read bus location", err)
		return
	}

	resp := models.PositionResponse{
		BusNumber: pos.BusNumber,
		Location:  pos.Location,
		UpdatedAt: pos.UpdatedAt,
	}

	if r.URL.Query().Get("address") == "true" {
		resp.Address = h.resolveAddress(r.Context(), pos)
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   resp,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

// resolveAddress reverse-geocodes the position under the configured
// timeout. Returns an empty string when enrichment is disabled or the
// provider fails.
func (h *Handler) resolveAddress(ctx context.Context, pos models.VehiclePosition) string {
	if h.resolver == nil {
		return ""
	}

	timeout := 5 * time.Second
	if h.config != nil && h.config.Geocode.Timeout > 0 {
		timeout = h.config.Geocode.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr, err := h.resolver.ReverseGeocode(ctx, pos.Location.Latitude, pos.Location.Longitude)
	if err != nil {
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("bus_number", sanitizeLogValue(pos.BusNumber)).
			Msg("address enrichment failed, returning position without address")
		return ""
	}
	return addr
}

// ListLocations returns the latest position of every tracked vehicle.
// An empty fleet is a successful response with an empty list.
func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	positions, err := h.store.GetAll(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to list bus locations", err)
		return
	}

	resp := make([]models.PositionResponse, 0, len(positions))
	for _, pos := range positions {
		resp = append(resp, models.PositionResponse{
			BusNumber: pos.BusNumber,
			Location:  pos.Location,
			UpdatedAt: pos.UpdatedAt,
		})
	}

	count := len(resp)
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   resp,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
			Count:       &count,
		},
	})
}
