package geometry

import (
	"math"

	"github.com/couchcryptid/hazard-map-sync/internal/domain"
	"github.com/paulmach/orb"
)

// BoundsOf returns the bounding box of a coordinate list. It reports false when
// the list holds no finite pair.
func BoundsOf(pts []orb.Point) (domain.BoundingBox, bool) {
	b := domain.BoundingBox{
		MinLon: math.Inf(1),
		MinLat: math.Inf(1),
		MaxLon: math.Inf(-1),
		MaxLat: math.Inf(-1),
	}
	for _, p := range pts {
		lon, lat := p[0], p[1]
		if !finite(lon) || !finite(lat) {
			continue
		}
		b.MinLon = math.Min(b.MinLon, lon)
		b.MaxLon = math.Max(b.MaxLon, lon)
		b.MinLat = math.Min(b.MinLat, lat)
		b.MaxLat = math.Max(b.MaxLat, lat)
	}
	if !b.Valid() {
		return domain.BoundingBox{}, false
	}
	return b, true
}

// BoundingBox returns the bounding box of a geometry.
func BoundingBox(g orb.Geometry) (domain.BoundingBox, bool) {
	return BoundsOf(Coordinates(g))
}

// Centroid returns the midpoint of the geometry's bounding box. This is not an
// area-weighted centroid; for concave shapes the point may fall outside the
// polygon.
func Centroid(g orb.Geometry) (domain.LatLon, bool) {
	b, ok := BoundingBox(g)
	if !ok {
		return domain.LatLon{}, false
	}
	return b.Center(), true
}

// RawBoundingBox and RawCentroid are the untyped counterparts used for
// geometries decoded into interface values.
func RawBoundingBox(geom map[string]any) (domain.BoundingBox, bool) {
	return BoundsOf(RawGeometryCoordinates(geom))
}

func RawCentroid(geom map[string]any) (domain.LatLon, bool) {
	b, ok := RawBoundingBox(geom)
	if !ok {
		return domain.LatLon{}, false
	}
	return b.Center(), true
}
