// BusTracker - Real-Time Vehicle Location Broadcast Service
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package models defines the data types shared across the BusTracker
// application: the persisted vehicle position, the ephemeral broadcast
// event, and the API response envelope.
package models

import "time"

// Coordinate is a latitude/longitude pair describing a position.
// Both fields must be finite; latitude is bounded to [-90, 90] and
// longitude to [-180, 180] at the ingestion boundary.
type Coordinate struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

// VehiclePosition is the sole persisted entity: the latest known position
// for a single vehicle. At most one record exists per BusNumber at any
// time; the store overwrites the coordinate in place on every successful
// ingestion.
type VehiclePosition struct {
	BusNumber string     `json:"busNumber"`
	Location  Coordinate `json:"location"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// LocationUpdateEvent is the ephemeral message broadcast to realtime
// subscribers after a successful ingestion. It is never persisted and
// late subscribers never receive past events.
type LocationUpdateEvent struct {
	BusNumber string     `json:"busNumber"`
	Location  Coordinate `json:"location"`
}
