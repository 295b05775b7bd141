// BusTracker - Real-Time Vehicle Location Broadcast Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citygrid/bustracker/internal/config"
	"github.com/citygrid/bustracker/internal/models"
	"github.com/citygrid/bustracker/internal/store"
)

// fakeStore is an in-memory LocationStore with scriptable failures.
type fakeStore struct {
	positions map[string]models.VehiclePosition
	failWith  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{positions: make(map[string]models.VehiclePosition)}
}

func (f *fakeStore) Upsert(_ context.Context, pos models.VehiclePosition) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.positions[pos.BusNumber] = pos
	return nil
}

func (f *fakeStore) Get(_ context.Context, busNumber string) (models.VehiclePosition, error) {
	if f.failWith != nil {
		return models.VehiclePosition{}, f.failWith
	}
	pos, ok := f.positions[busNumber]
	if !ok {
		return models.VehiclePosition{}, store.ErrNotFound
	}
	return pos, nil
}

func (f *fakeStore) GetAll(_ context.Context) ([]models.VehiclePosition, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	out := make([]models.VehiclePosition, 0, len(f.positions))
	for _, pos := range f.positions {
		out = append(out, pos)
	}
	return out, nil
}

func (f *fakeStore) Ping(_ context.Context) error {
	return f.failWith
}

// fakeResolver is a scriptable AddressResolver.
type fakeResolver struct {
	address string
	err     error
}

func (f *fakeResolver) ReverseGeocode(_ context.Context, _, _ float64) (string, error) {
	return f.address, f.err
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Geocode.Timeout = time.Second
	return &cfg
}

func newTestRouter(fs *fakeStore, resolver AddressResolver) http.Handler {
	handler := NewHandler(fs, resolver, nil, testConfig())
	mwCfg := DefaultChiMiddlewareConfig()
	mwCfg.RateLimitDisabled = true
	return NewRouter(handler, NewChiMiddleware(mwCfg)).SetupChi()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, models.APIResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp models.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestUpdateLocationSuccess(t *testing.T) {
	fs := newFakeStore()
	router := newTestRouter(fs, nil)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/bus-location", map[string]interface{}{
		"busNumber": "42A",
		"location":  map[string]float64{"latitude": 40.7128, "longitude": -74.0060},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", resp.Status)

	stored, ok := fs.positions["42A"]
	require.True(t, ok, "position must be persisted")
	assert.Equal(t, 40.7128, stored.Location.Latitude)
	assert.Equal(t, -74.0060, stored.Location.Longitude)
	assert.False(t, stored.UpdatedAt.IsZero())
}

func TestUpdateLocationOverwrites(t *testing.T) {
	fs := newFakeStore()
	router := newTestRouter(fs, nil)

	for _, lat := range []float64{1, 2, 3} {
		rec, _ := doJSON(t, router, http.MethodPost, "/api/v1/bus-location", map[string]interface{}{
			"busNumber": "42A",
			"location":  map[string]float64{"latitude": lat, "longitude": 0},
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Len(t, fs.positions, 1)
	assert.Equal(t, 3.0, fs.positions["42A"].Location.Latitude)
}

func TestUpdateLocationValidation(t *testing.T) {
	fs := newFakeStore()
	router := newTestRouter(fs, nil)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing busNumber", map[string]interface{}{
			"location": map[string]float64{"latitude": 1, "longitude": 2},
		}},
		{"missing location", map[string]interface{}{
			"busNumber": "42A",
		}},
		{"empty location object", map[string]interface{}{
			"busNumber": "42A",
			"location":  map[string]float64{},
		}},
		{"missing latitude", map[string]interface{}{
			"busNumber": "42A",
			"location":  map[string]float64{"longitude": 2},
		}},
		{"missing longitude", map[string]interface{}{
			"busNumber": "42A",
			"location":  map[string]float64{"latitude": 1},
		}},
		{"latitude out of range", map[string]interface{}{
			"busNumber": "42A",
			"location":  map[string]float64{"latitude": 91, "longitude": 2},
		}},
		{"longitude out of range", map[string]interface{}{
			"busNumber": "42A",
			"location":  map[string]float64{"latitude": 1, "longitude": 181},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/bus-location", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
			assert.Empty(t, fs.positions, "rejected updates must not touch the store")
		})
	}
}

func TestUpdateLocationAcceptsZeroCoordinates(t *testing.T) {
	// (0, 0) is a legitimate position; only omitted components are invalid.
	fs := newFakeStore()
	router := newTestRouter(fs, nil)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/bus-location", map[string]interface{}{
		"busNumber": "42A",
		"location":  map[string]float64{"latitude": 0, "longitude": 0},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", resp.Status)
	require.Contains(t, fs.positions, "42A")
	assert.Equal(t, models.Coordinate{Latitude: 0, Longitude: 0}, fs.positions["42A"].Location)
}

func TestUpdateLocationMalformedBody(t *testing.T) {
	router := newTestRouter(newFakeStore(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bus-location", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateLocationStoreError(t *testing.T) {
	fs := newFakeStore()
	fs.failWith = errors.New("disk full")
	router := newTestRouter(fs, nil)

	rec, resp := doJSON(t, router, http.MethodPost, "/api/v1/bus-location", map[string]interface{}{
		"busNumber": "42A",
		"location":  map[string]float64{"latitude": 1, "longitude": 2},
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "STORE_ERROR", resp.Error.Code)
}

func TestGetLocationSuccess(t *testing.T) {
	fs := newFakeStore()
	fs.positions["42A"] = models.VehiclePosition{
		BusNumber: "42A",
		Location:  models.Coordinate{Latitude: 40.7128, Longitude: -74.0060},
		UpdatedAt: time.Now().UTC(),
	}
	router := newTestRouter(fs, nil)

	rec, resp := doJSON(t, router, http.MethodGet, "/api/v1/bus-location/42A", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", resp.Status)

	var pos models.PositionResponse
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &pos))
	assert.Equal(t, "42A", pos.BusNumber)
	assert.Empty(t, pos.Address)
}

func TestGetLocationNotFound(t *testing.T) {
	router := newTestRouter(newFakeStore(), nil)

	rec, resp := doJSON(t, router, http.MethodGet, "/api/v1/bus-location/ghost", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestGetLocationWithAddress(t *testing.T) {
	fs := newFakeStore()
	fs.positions["42A"] = models.VehiclePosition{
		BusNumber: "42A",
		Location:  models.Coordinate{Latitude: 40.7128, Longitude: -74.0060},
	}
	router := newTestRouter(fs, &fakeResolver{address: "Broadway, New York"})

	rec, resp := doJSON(t, router, http.MethodGet, "/api/v1/bus-location/42A?address=true", nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var pos models.PositionResponse
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &pos))
	assert.Equal(t, "Broadway, New York", pos.Address)
}

func TestGetLocationAddressFailureDegrades(t *testing.T) {
	fs := newFakeStore()
	fs.positions["42A"] = models.VehiclePosition{
		BusNumber: "42A",
		Location:  models.Coordinate{Latitude: 40.7128, Longitude: -74.0060},
	}
	router := newTestRouter(fs, &fakeResolver{err: errors.New("provider down")})

	rec, resp := doJSON(t, router, http.MethodGet, "/api/v1/bus-location/42A?address=true", nil)

	assert.Equal(t, http.StatusOK, rec.Code, "enrichment failure must not fail the lookup")
	assert.Equal(t, "success", resp.Status)

	var pos models.PositionResponse
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &pos))
	assert.Empty(t, pos.Address)
}

func TestListLocationsEmpty(t *testing.T) {
	router := newTestRouter(newFakeStore(), nil)

	rec, resp := doJSON(t, router, http.MethodGet, "/api/v1/bus-location", nil)

	assert.Equal(t, http.StatusOK, rec.Code, "empty fleet is not an error")
	assert.Equal(t, "success", resp.Status)
	require.NotNil(t, resp.Metadata.Count)
	assert.Equal(t, 0, *resp.Metadata.Count)

	list, ok := resp.Data.([]interface{})
	require.True(t, ok, "data must be a JSON array, got %T", resp.Data)
	assert.Empty(t, list)
}

func TestListLocationsReturnsFleet(t *testing.T) {
	fs := newFakeStore()
	fs.positions["42A"] = models.VehiclePosition{BusNumber: "42A"}
	fs.positions["7B"] = models.VehiclePosition{BusNumber: "7B"}
	router := newTestRouter(fs, nil)

	rec, resp := doJSON(t, router, http.MethodGet, "/api/v1/bus-location", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, resp.Metadata.Count)
	assert.Equal(t, 2, *resp.Metadata.Count)
}

func TestListLocationsAllAlias(t *testing.T) {
	fs := newFakeStore()
	fs.positions["42A"] = models.VehiclePosition{BusNumber: "42A"}
	router := newTestRouter(fs, nil)

	rec, resp := doJSON(t, router, http.MethodGet, "/api/v1/bus-location/all", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, resp.Metadata.Count)
	assert.Equal(t, 1, *resp.Metadata.Count)
}

func TestListLocationsStoreError(t *testing.T) {
	fs := newFakeStore()
	fs.failWith = errors.New("iterator failure")
	router := newTestRouter(fs, nil)

	rec, resp := doJSON(t, router, http.MethodGet, "/api/v1/bus-location", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "STORE_ERROR", resp.Error.Code)
}

func TestHealthEndpoints(t *testing.T) {
	fs := newFakeStore()
	router := newTestRouter(fs, nil)

	rec, _ := doJSON(t, router, http.MethodGet, "/api/v1/health/live", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, router, http.MethodGet, "/api/v1/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, router, http.MethodGet, "/api/v1/health/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	fs.failWith = errors.New("store down")
	rec, resp := doJSON(t, router, http.MethodGet, "/api/v1/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "STORE_ERROR", resp.Error.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(newFakeStore(), nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
