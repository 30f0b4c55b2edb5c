package landmask

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const coastGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"name": "mainland"},
     "geometry": {"type": "Polygon", "coordinates": [[[-44,-23],[-42,-23],[-42,-21],[-44,-21],[-44,-23]]]}},
    {"type": "Feature", "properties": {"name": "islands"},
     "geometry": {"type": "MultiPolygon", "coordinates": [
       [[[-40,-25],[-39,-25],[-39,-24],[-40,-24],[-40,-25]]],
       [[[-38,-25],[-37,-25],[-37,-24],[-38,-24],[-38,-25]]]
     ]}},
    {"type": "Feature", "properties": {"name": "lighthouse"},
     "geometry": {"type": "Point", "coordinates": [-41, -22]}}
  ]
}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func square(minLon, minLat, maxLon, maxLat float64) orb.Polygon {
	return orb.Polygon{{
		{minLon, minLat}, {maxLon, minLat}, {maxLon, maxLat}, {minLon, maxLat}, {minLon, minLat},
	}}
}

func TestMask_EmptyIsPermissive(t *testing.T) {
	m := New(discardLogger())

	assert.False(t, m.Loaded())
	for _, pt := range [][2]float64{{0, 0}, {-43, -22}, {180, 90}, {-180, -90}} {
		assert.False(t, m.IsOnLand(pt[0], pt[1]))
	}
}

func TestMask_ZeroPolygons(t *testing.T) {
	m := NewFromPolygons(nil)

	assert.True(t, m.Loaded())
	assert.Equal(t, 0, m.Len())
	for _, pt := range [][2]float64{{0, 0}, {-43, -22}, {179.9, -89.9}} {
		assert.False(t, m.IsOnLand(pt[0], pt[1]))
	}
}

func TestMask_IsOnLand(t *testing.T) {
	concave := orb.Polygon{{
		{0, 0}, {4, 0}, {4, 4}, {3, 4}, {3, 1}, {1, 1}, {1, 4}, {0, 4}, {0, 0},
	}}
	m := NewFromPolygons([]orb.Polygon{square(-44, -23, -42, -21), concave})

	tests := []struct {
		name     string
		lon, lat float64
		want     bool
	}{
		{"inside square", -43, -22, true},
		{"outside square", -41, -22, false},
		{"inside concave arm", 0.5, 3, true},
		{"inside concave bound but in notch", 2, 3, false},
		{"far away", 100, 50, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.IsOnLand(tt.lon, tt.lat))
		})
	}
}

func TestMask_PolygonWithHole(t *testing.T) {
	poly := square(0, 0, 10, 10)
	poly = append(poly, orb.Ring{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}})
	m := NewFromPolygons([]orb.Polygon{poly})

	assert.True(t, m.IsOnLand(2, 2))
	assert.False(t, m.IsOnLand(5, 5))
}

func TestParsePolygons(t *testing.T) {
	polys, err := ParsePolygons([]byte(coastGeoJSON))
	require.NoError(t, err)
	assert.Len(t, polys, 3, "polygon plus two multipolygon members, point ignored")

	_, err = ParsePolygons([]byte(`{"type":"FeatureCollection","features":[`))
	assert.Error(t, err)
}

func TestMask_LoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "land.geojson")
	require.NoError(t, os.WriteFile(path, []byte(coastGeoJSON), 0o600))

	m := New(discardLogger())
	require.NoError(t, m.Load(context.Background(), FileSource(path)))

	assert.Equal(t, 3, m.Len())
	assert.True(t, m.IsOnLand(-43, -22))
	assert.True(t, m.IsOnLand(-37.5, -24.5))
	assert.False(t, m.IsOnLand(-41, -22))
}

func TestMask_LoadFromHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/geo+json")
		_, _ = w.Write([]byte(coastGeoJSON))
	}))
	defer srv.Close()

	m := New(discardLogger())
	require.NoError(t, m.Load(context.Background(), SourceFromLocation(srv.URL, 0)))

	assert.True(t, m.IsOnLand(-39.5, -24.5))
}

func TestMask_LoadFailureKeepsPreviousState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := New(discardLogger())
	err := m.Load(context.Background(), NewHTTPSource(srv.URL, nil))
	require.Error(t, err)
	assert.False(t, m.Loaded())
	assert.False(t, m.IsOnLand(-43, -22))

	err = m.Load(context.Background(), FileSource(filepath.Join(t.TempDir(), "missing.geojson")))
	require.Error(t, err)
	assert.False(t, m.Loaded())
}

func TestSourceFromLocation(t *testing.T) {
	assert.IsType(t, FileSource(""), SourceFromLocation("data/land.geojson", 0))
	assert.IsType(t, &HTTPSource{}, SourceFromLocation("https://example.com/land.geojson", 0))
}
