// BusTracker - Real-Time Vehicle Location Broadcast Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import "time"

// APIResponse is the envelope for every API response, success or error.
// Status is "success" or "error"; Data carries the payload on success and
// is null on error; Error is populated only on error.
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata for observability.
//
// Fields:
//   - Timestamp: server time when the response was generated
//   - QueryTimeMS: store/geocode execution time in milliseconds
//   - Count: number of records returned (list endpoints only)
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Count       *int      `json:"count,omitempty"`
}

// APIError represents a structured error response.
//
// Common error codes:
//   - VALIDATION_ERROR: invalid request payload or parameters
//   - NOT_FOUND: no position recorded for the requested vehicle
//   - STORE_ERROR: persistence layer failure
//   - GEOCODE_ERROR: reverse-geocoding provider failure
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// PositionResponse is the payload for single-vehicle lookups. Address is
// present only when reverse-geocoding was requested and succeeded.
type PositionResponse struct {
	BusNumber string     `json:"busNumber"`
	Location  Coordinate `json:"location"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Address   string     `json:"address,omitempty"`
}
