// BusTracker - Real-Time Vehicle Location Broadcast Service
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics defines the Prometheus instrumentation for BusTracker.
// All collectors are registered on the default registry via promauto and
// exposed on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APIRequestsTotal counts HTTP requests by method, route and status.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bustracker_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// APIRequestDuration tracks HTTP request latency.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bustracker_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// APIActiveRequests gauges requests currently in flight.
	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bustracker_api_active_requests",
			Help: "Number of API requests currently being processed",
		},
	)

	// StoreOperationDuration tracks location store operation latency.
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bustracker_store_operation_duration_seconds",
			Help:    "Location store operation duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"operation"},
	)

	// StoreErrors counts location store failures by operation.
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bustracker_store_errors_total",
			Help: "Total number of location store errors",
		},
		[]string{"operation"},
	)

	// StoredPositions gauges the number of vehicle positions currently held.
	StoredPositions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bustracker_stored_positions",
			Help: "Number of vehicle positions currently in the store",
		},
	)

	// WebSocketClients gauges currently connected realtime subscribers.
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bustracker_websocket_clients",
			Help: "Number of connected WebSocket clients",
		},
	)

	// BroadcastsSent counts location update messages delivered to clients.
	BroadcastsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bustracker_broadcasts_sent_total",
			Help: "Total number of location updates delivered to WebSocket clients",
		},
	)

	// BroadcastsDropped counts messages dropped because a client's send
	// buffer was full.
	BroadcastsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bustracker_broadcasts_dropped_total",
			Help: "Total number of location updates dropped due to slow WebSocket clients",
		},
	)

	// GeocodeRequests counts reverse-geocoding calls by provider and result.
	GeocodeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bustracker_geocode_requests_total",
			Help: "Total number of reverse-geocoding requests",
		},
		[]string{"provider", "result"},
	)

	// GeocodeDuration tracks reverse-geocoding call latency by provider.
	GeocodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bustracker_geocode_duration_seconds",
			Help:    "Reverse-geocoding request duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider"},
	)

	// CircuitBreakerState reports breaker state per provider
	// (0 closed, 1 half-open, 2 open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bustracker_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// CircuitBreakerTransitions counts breaker state changes.
	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bustracker_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

// RecordAPIRequest records a completed API request.
func RecordAPIRequest(method, endpoint, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordStoreOperation records a store operation and its outcome.
func RecordStoreOperation(operation string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		StoreErrors.WithLabelValues(operation).Inc()
	}
}

// RecordGeocodeRequest records a reverse-geocoding call and its outcome.
func RecordGeocodeRequest(provider, result string, duration time.Duration) {
	GeocodeRequests.WithLabelValues(provider, result).Inc()
	GeocodeDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// TrackActiveRequest increments the in-flight gauge and returns a function
// that decrements it. Intended for use with defer.
func TrackActiveRequest() func() {
	APIActiveRequests.Inc()
	return APIActiveRequests.Dec
}
