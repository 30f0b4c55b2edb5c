// Package landmask answers point-over-land queries against a polygon
// collection loaded once at startup.
//
// The mask is permissive: until a collection has loaded (or when loading
// failed) every query returns false, so hazard points are never hidden
// because the mask is unavailable.
package landmask

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// epsilon gives degenerate bounds and query points a non-zero extent, which
// the R-tree requires (~11 m at the equator).
const epsilon = 0.0001

type indexedPolygon struct {
	poly  orb.Polygon
	bound orb.Bound
}

// Bounds implements rtreego.Spatial.
func (p *indexedPolygon) Bounds() rtreego.Rect {
	return rectFor(p.bound)
}

type index struct {
	tree  *rtreego.Rtree
	count int
}

// Mask is safe for concurrent use. Queries never block on Load.
type Mask struct {
	idx    atomic.Pointer[index]
	logger *slog.Logger
}

// New returns an empty mask.
func New(logger *slog.Logger) *Mask {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mask{logger: logger}
}

// NewFromPolygons builds a loaded mask from in-memory polygons.
func NewFromPolygons(polys []orb.Polygon) *Mask {
	m := New(nil)
	m.idx.Store(buildIndex(polys))
	return m
}

// Load fetches and indexes the polygon collection from src. On failure the
// mask keeps its previous state and the error is logged and returned; callers
// are not expected to treat it as fatal.
func (m *Mask) Load(ctx context.Context, src Source) error {
	data, err := src.Fetch(ctx)
	if err != nil {
		m.logger.Warn("land mask unavailable, continuing without it", "source", src.String(), "error", err)
		return fmt.Errorf("fetch land mask: %w", err)
	}

	polys, err := ParsePolygons(data)
	if err != nil {
		m.logger.Warn("land mask unreadable, continuing without it", "source", src.String(), "error", err)
		return err
	}

	m.idx.Store(buildIndex(polys))
	m.logger.Info("land mask loaded", "source", src.String(), "polygons", len(polys))
	return nil
}

// Loaded reports whether a collection has been indexed.
func (m *Mask) Loaded() bool { return m.idx.Load() != nil }

// Len returns the number of indexed polygons.
func (m *Mask) Len() int {
	idx := m.idx.Load()
	if idx == nil {
		return 0
	}
	return idx.count
}

// IsOnLand reports whether (lon, lat) falls inside any mask polygon.
func (m *Mask) IsOnLand(lon, lat float64) bool {
	idx := m.idx.Load()
	if idx == nil || idx.count == 0 {
		return false
	}
	pt := orb.Point{lon, lat}
	for _, s := range idx.tree.SearchIntersect(rectFor(orb.Bound{Min: pt, Max: pt})) {
		p, ok := s.(*indexedPolygon)
		if !ok || !p.bound.Contains(pt) {
			continue
		}
		if planar.PolygonContains(p.poly, pt) {
			return true
		}
	}
	return false
}

// ParsePolygons decodes a GeoJSON FeatureCollection and returns every
// polygon it contains. MultiPolygons are split; other geometry types are
// ignored.
func ParsePolygons(data []byte) ([]orb.Polygon, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode land mask: %w", err)
	}
	var polys []orb.Polygon
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		polys = appendPolygons(polys, f.Geometry)
	}
	return polys, nil
}

func appendPolygons(dst []orb.Polygon, g orb.Geometry) []orb.Polygon {
	switch g := g.(type) {
	case orb.Polygon:
		if len(g) > 0 && len(g[0]) > 0 {
			dst = append(dst, g)
		}
	case orb.MultiPolygon:
		for _, p := range g {
			dst = appendPolygons(dst, p)
		}
	case orb.Collection:
		for _, c := range g {
			dst = appendPolygons(dst, c)
		}
	}
	return dst
}

func buildIndex(polys []orb.Polygon) *index {
	tree := rtreego.NewTree(2, 25, 50)
	for _, p := range polys {
		tree.Insert(&indexedPolygon{poly: p, bound: p.Bound()})
	}
	return &index{tree: tree, count: len(polys)}
}

func rectFor(b orb.Bound) rtreego.Rect {
	point := rtreego.Point{b.Min.Lon(), b.Min.Lat()}
	lonLength := b.Max.Lon() - b.Min.Lon()
	latLength := b.Max.Lat() - b.Min.Lat()
	if lonLength < epsilon {
		lonLength = epsilon
	}
	if latLength < epsilon {
		latLength = epsilon
	}
	rect, _ := rtreego.NewRect(point, []float64{lonLength, latLength})
	return rect
}
