// BusTracker - Real-Time Vehicle Location Broadcast Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package geocode

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/citygrid/bustracker/internal/logging"
	"github.com/citygrid/bustracker/internal/metrics"
)

// BreakerProvider wraps a Provider with a circuit breaker so a failing
// remote geocoder stops receiving traffic instead of adding latency to
// every enriched lookup.
type BreakerProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker[string]
}

// NewBreakerProvider wraps the provider with a circuit breaker. The
// breaker opens when at least 60% of 10 or more requests have failed,
// and probes again after 30 seconds.
func NewBreakerProvider(inner Provider) *BreakerProvider {
	name := inner.Name()
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("geocode circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			// An empty result is a valid answer, not a provider failure.
			return err == nil || err == ErrNoResult
		},
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(gobreaker.StateClosed))

	return &BreakerProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[string](settings),
	}
}

// Name implements Provider.
func (p *BreakerProvider) Name() string { return p.inner.Name() }

// IsAvailable implements Provider. An open breaker makes the provider
// unavailable so the resolver can move on to a fallback.
func (p *BreakerProvider) IsAvailable() bool {
	return p.inner.IsAvailable() && p.breaker.State() != gobreaker.StateOpen
}

// ReverseGeocode implements Provider.
func (p *BreakerProvider) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	return p.breaker.Execute(func() (string, error) {
		return p.inner.ReverseGeocode(ctx, lat, lon)
	})
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
