package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/hazard-map-sync/internal/adapter/http"
	"github.com/couchcryptid/hazard-map-sync/internal/domain"
	"github.com/couchcryptid/hazard-map-sync/internal/layers"
	"github.com/couchcryptid/hazard-map-sync/internal/locations"
	"github.com/couchcryptid/hazard-map-sync/internal/observability"
	"github.com/couchcryptid/hazard-map-sync/internal/pipeline"
	"github.com/couchcryptid/hazard-map-sync/internal/snapshot"
)

type fetcherFunc func(context.Context, domain.SnapshotRequest) (domain.GridSnapshot, error)

func (f fetcherFunc) FetchSnapshot(ctx context.Context, req domain.SnapshotRequest) (domain.GridSnapshot, error) {
	return f(ctx, req)
}

func grid(req domain.SnapshotRequest) domain.GridSnapshot {
	return domain.GridSnapshot{
		Time:      req.Time,
		Lat:       []float64{-23, -22},
		Lon:       []float64{-42, -41},
		Values:    [][]float64{{10, 18}, {22, 30}},
		Direction: [][]float64{{0, 90}, {180, 270}},
	}
}

const fieldsGeoJSON = `{"type":"FeatureCollection","features":[
  {"type":"Feature","properties":{"NOME_CAMPO":"Marlim"},
   "geometry":{"type":"Polygon","coordinates":[[[-40.4,-22.6],[-40.0,-22.6],[-40.0,-22.2],[-40.4,-22.2],[-40.4,-22.6]]]}}]}`

type testEnv struct {
	srv      *httpadapter.Server
	pipe     *pipeline.Pipeline
	requests chan domain.SnapshotRequest
}

func newTestEnv(t *testing.T, fetch fetcherFunc) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	metrics := observability.NewMetricsForTesting()
	surface := layers.NewMemorySurface()

	requests := make(chan domain.SnapshotRequest, 8)
	if fetch == nil {
		fetch = func(_ context.Context, req domain.SnapshotRequest) (domain.GridSnapshot, error) {
			requests <- req
			return grid(req), nil
		}
	}

	index := locations.NewIndex(logger)
	ds, err := locations.ParseDataset("campos", []byte(fieldsGeoJSON))
	require.NoError(t, err)
	index.Replace([]*locations.Dataset{ds})

	pipe := pipeline.New(pipeline.Deps{
		Orchestrator: snapshot.New(fetch, clock, metrics, logger),
		Registry:     layers.NewRegistry(surface, clock, logger),
		Emitter:      surface,
		Locations:    index,
		Clock:        clock,
		Metrics:      metrics,
		Logger:       logger,
	})
	return &testEnv{
		srv:      httpadapter.NewServer(":0", pipe, surface, logger),
		pipe:     pipe,
		requests: requests,
	}
}

func (e *testEnv) do(method, target string, body io.Reader) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, httptest.NewRequest(method, target, body))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthzReturns200(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not ready", decode[map[string]string](t, rec)["status"])

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.pipe.Run(ctx, pipeline.Startup{}) //nolint:errcheck // returns nil on cancel
	require.Eventually(t, func() bool {
		return env.do(http.MethodGet, "/readyz", nil).Code == http.StatusOK
	}, time.Second, 10*time.Millisecond)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestShowHazard(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodPost, "/hazards/wind?time=2024-05-01T06:00:00-03:00&operational_max=12&lat_min=-24&lat_max=-21&lon_min=-43&lon_max=-40", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	st := decode[pipeline.ChannelStatus](t, rec)
	assert.Equal(t, pipeline.StateReady, st.State)
	assert.Equal(t, 4, st.Features)
	assert.Equal(t, 4, st.Arrows)
	assert.Equal(t, domain.ThresholdSpec{OperationalMax: 12, AttentionMax: 20}, st.Thresholds)

	req := <-env.requests
	assert.Equal(t, domain.HazardWind, req.Hazard)
	assert.True(t, req.Time.Equal(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)))
	require.NotNil(t, req.Bounds)
	assert.Equal(t, domain.BoundingBox{MinLon: -43, MinLat: -24, MaxLon: -40, MaxLat: -21}, *req.Bounds)

	rec = env.do(http.MethodGet, "/hazards/wind", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/sources/wind-source", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))
	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Len(t, fc.Features, 4)

	entries := decode[[]layers.Entry](t, env.do(http.MethodGet, "/layers", nil))
	require.Len(t, entries, 2)
	assert.Equal(t, "wind-arrows", entries[0].ID)
	assert.Equal(t, "wind-heatmap", entries[1].ID)

	rec = env.do(http.MethodDelete, "/hazards/wind", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/hazards/wind", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/sources/wind-source", nil).Code)
}

func TestShowHazard_Variable(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodPost, "/hazards/variable?variable=hs&time=2024-05-01T00:00:00Z&style=circle", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.VariableHazard("hs"), (<-env.requests).Hazard)

	statuses := decode[[]pipeline.ChannelStatus](t, env.do(http.MethodGet, "/hazards", nil))
	require.Len(t, statuses, 1)
	assert.Equal(t, "climate-hs-heatmap", statuses[0].LayerID)
}

func TestShowHazard_BadRequests(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		target string
	}{
		{"unknown hazard", "/hazards/tsunami?time=2024-05-01T00:00:00Z"},
		{"missing time", "/hazards/wind"},
		{"bad time", "/hazards/wind?time=yesterday"},
		{"partial bbox", "/hazards/wind?time=2024-05-01T00:00:00Z&lat_min=-24"},
		{"inverted bbox", "/hazards/wind?time=2024-05-01T00:00:00Z&lat_min=-20&lat_max=-24&lon_min=-43&lon_max=-40"},
		{"bad threshold", "/hazards/wind?time=2024-05-01T00:00:00Z&attention_max=high"},
		{"bad style", "/hazards/wind?time=2024-05-01T00:00:00Z&style=contour"},
		{"NaN threshold", "/hazards/wind?time=2024-05-01T00:00:00Z&operational_max=NaN"},
		{"infinite threshold", "/hazards/wind?time=2024-05-01T00:00:00Z&attention_max=Inf"},
		{"NaN opacity", "/hazards/wind?time=2024-05-01T00:00:00Z&opacity=NaN"},
		{"NaN bbox", "/hazards/wind?time=2024-05-01T00:00:00Z&lat_min=NaN&lat_max=-20&lon_min=-43&lon_max=-40"},
		{"variable without name", "/hazards/variable?time=2024-05-01T00:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, tt.target, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}
}

func TestShowHazard_BackendFailure(t *testing.T) {
	env := newTestEnv(t, func(context.Context, domain.SnapshotRequest) (domain.GridSnapshot, error) {
		return domain.GridSnapshot{}, errors.New("status 503")
	})

	rec := env.do(http.MethodPost, "/hazards/wave?time=2024-05-01T00:00:00Z", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	st := decode[pipeline.ChannelStatus](t, rec)
	assert.Equal(t, pipeline.StateFailed, st.State)
	assert.Contains(t, st.Error, "status 503")
}

func TestBoundariesAndHover(t *testing.T) {
	env := newTestEnv(t, nil)

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPut, "/boundaries/bacias", nil).Code)

	rec := env.do(http.MethodPut, "/boundaries/campos?opacity=0.5", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "campos-fill", decode[pipeline.BoundaryStatus](t, rec).FillID)

	assert.Equal(t, http.StatusNoContent, env.do(http.MethodGet, "/layers/campos-fill/hover", nil).Code)

	rec = env.do(http.MethodPost, "/layers/campos-fill/events/mousemove",
		strings.NewReader(`{"lon":-40.2,"lat":-22.4,"properties":{"NOME_CAMPO":"Marlim"}}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"delivered": 1}, decode[map[string]int](t, rec))

	rec = env.do(http.MethodGet, "/layers/campos-fill/hover", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Marlim", decode[map[string]any](t, rec)["NOME_CAMPO"])

	env.do(http.MethodPost, "/layers/campos-fill/events/mouseleave", strings.NewReader(`{}`))
	assert.Equal(t, http.StatusNoContent, env.do(http.MethodGet, "/layers/campos-fill/hover", nil).Code)

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPost, "/layers/nope/events/click", strings.NewReader(`{}`)).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/layers/campos-fill/events/click", strings.NewReader(`{`)).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, "/boundaries/campos?opacity=NaN", nil).Code)

	listing := decode[map[string]json.RawMessage](t, env.do(http.MethodGet, "/boundaries", nil))
	assert.JSONEq(t, `["campos"]`, string(listing["available"]))

	assert.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/boundaries/campos", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/layers/campos-fill/hover", nil).Code)
}

func TestLocations(t *testing.T) {
	env := newTestEnv(t, nil)

	found := decode[[]domain.NamedLocation](t, env.do(http.MethodGet, "/locations?q=marl", nil))
	require.Len(t, found, 1)
	assert.Equal(t, "Marlim", found[0].Name)

	rec := env.do(http.MethodGet, "/locations/"+found[0].Key, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, found[0], decode[domain.NamedLocation](t, rec))

	rec = env.do(http.MethodGet, "/locations/nearest?lat=-22.4&lon=-40.2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	nearest := decode[struct {
		Location  domain.NamedLocation `json:"location"`
		DistanceM float64              `json:"distance_m"`
	}](t, rec)
	assert.Equal(t, "Marlim", nearest.Location.Name)
	assert.InDelta(t, 0, nearest.DistanceM, 1)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/locations/nearest?lat=-22.4", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/locations?limit=0", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/locations/unknown", nil).Code)
}
