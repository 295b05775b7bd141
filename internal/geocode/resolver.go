// BusTracker - Real-Time Vehicle Location Broadcast Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package geocode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/citygrid/bustracker/internal/logging"
)

const (
	// cachePrecision rounds coordinates for cache keys. Four decimal
	// places is roughly 11 meters, below the positioning accuracy of a
	// moving vehicle.
	cachePrecision = 4

	cacheTTL        = 10 * time.Minute
	cacheMaxEntries = 4096
)

// Resolver resolves addresses through an ordered provider chain with a
// small in-memory cache. The first available provider that returns an
// answer wins; failures fall through to the next provider.
type Resolver struct {
	providers []Provider

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	address   string
	expiresAt time.Time
}

// NewResolver creates a resolver over the given providers, consulted in
// order.
func NewResolver(providers ...Provider) *Resolver {
	return &Resolver{
		providers: providers,
		cache:     make(map[string]cacheEntry),
	}
}

// ReverseGeocode resolves the coordinate to an address. Returns
// ErrNoResult when every available provider has no answer, or an error
// when all providers fail.
func (r *Resolver) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	key := cacheKey(lat, lon)
	if addr, ok := r.cacheGet(key); ok {
		return addr, nil
	}

	var lastErr error
	noResult := false

	for _, p := range r.providers {
		if !p.IsAvailable() {
			continue
		}

		addr, err := p.ReverseGeocode(ctx, lat, lon)
		switch {
		case err == nil:
			r.cachePut(key, addr)
			return addr, nil
		case errors.Is(err, ErrNoResult):
			// A definitive empty answer; remember it but let another
			// provider try.
			noResult = true
		case ctx.Err() != nil:
			// The caller's deadline expired; further providers would
			// fail the same way.
			return "", ctx.Err()
		default:
			lastErr = err
			logging.Warn().
				Err(err).
				Str("provider", p.Name()).
				Msg("reverse geocode provider failed, trying next")
		}
	}

	if lastErr != nil {
		return "", fmt.Errorf("all geocode providers failed: %w", lastErr)
	}
	if noResult {
		return "", ErrNoResult
	}
	return "", errors.New("no geocode provider available")
}

func (r *Resolver) cacheGet(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.cache[key]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expiresAt) {
		delete(r.cache, key)
		return "", false
	}
	return entry.address, true
}

func (r *Resolver) cachePut(key, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Crude bound: drop the whole cache rather than track recency for a
	// map that refills in minutes.
	if len(r.cache) >= cacheMaxEntries {
		r.cache = make(map[string]cacheEntry)
	}

	r.cache[key] = cacheEntry{
		address:   address,
		expiresAt: time.Now().Add(cacheTTL),
	}
}

func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("%.*f,%.*f", cachePrecision, lat, cachePrecision, lon)
}
