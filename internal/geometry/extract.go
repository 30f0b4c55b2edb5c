// Package geometry pulls flat coordinate lists, bounding boxes and centroids
// out of polygon geometries of any nesting depth.
package geometry

import (
	"encoding/json"
	"math"
	"reflect"

	"github.com/paulmach/orb"
)

// Coordinates flattens a geometry into its (lon, lat) pairs in order.
// Duplicates (closing ring vertices, shared edges) are kept. Pairs with a
// non-finite component are skipped.
func Coordinates(g orb.Geometry) []orb.Point {
	var out []orb.Point
	appendGeometry(&out, g)
	return out
}

func appendGeometry(out *[]orb.Point, g orb.Geometry) {
	switch g := g.(type) {
	case nil:
		return
	case orb.Point:
		appendPoint(out, g)
	case orb.MultiPoint:
		appendPoints(out, g)
	case orb.LineString:
		appendPoints(out, g)
	case orb.MultiLineString:
		for _, ls := range g {
			appendPoints(out, ls)
		}
	case orb.Ring:
		appendPoints(out, g)
	case orb.Polygon:
		for _, r := range g {
			appendPoints(out, r)
		}
	case orb.MultiPolygon:
		for _, p := range g {
			appendGeometry(out, p)
		}
	case orb.Collection:
		for _, child := range g {
			appendGeometry(out, child)
		}
	case orb.Bound:
		appendPoints(out, g.ToRing())
	}
}

func appendPoints(out *[]orb.Point, pts []orb.Point) {
	for _, p := range pts {
		appendPoint(out, p)
	}
}

func appendPoint(out *[]orb.Point, p orb.Point) {
	if finite(p[0]) && finite(p[1]) {
		*out = append(*out, p)
	}
}

// RawCoordinates walks an untyped coordinate tree such as the "coordinates"
// member of a GeoJSON geometry decoded into interface values. A node is a
// coordinate pair when its first two elements are finite numbers; any other
// slice is treated as a container and each child is visited. Extra elements
// after the pair (altitude, measure) are ignored.
func RawCoordinates(node any) []orb.Point {
	var out []orb.Point
	walkRaw(reflect.ValueOf(node), &out)
	return out
}

// RawGeometryCoordinates walks the coordinates of an untyped GeoJSON geometry
// object, descending into geometry collections.
func RawGeometryCoordinates(geom map[string]any) []orb.Point {
	if geom == nil {
		return nil
	}
	if children, ok := geom["geometries"].([]any); ok {
		var out []orb.Point
		for _, child := range children {
			if m, ok := child.(map[string]any); ok {
				out = append(out, RawGeometryCoordinates(m)...)
			}
		}
		return out
	}
	return RawCoordinates(geom["coordinates"])
}

func walkRaw(v reflect.Value, out *[]orb.Point) {
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return
	}
	if v.Len() >= 2 {
		lon, okLon := finiteNumber(v.Index(0))
		lat, okLat := finiteNumber(v.Index(1))
		if okLon && okLat {
			*out = append(*out, orb.Point{lon, lat})
			return
		}
	}
	for i := 0; i < v.Len(); i++ {
		walkRaw(v.Index(i), out)
	}
}

var jsonNumberType = reflect.TypeOf(json.Number(""))

func finiteNumber(v reflect.Value) (float64, bool) {
	for v.Kind() == reflect.Interface {
		if v.IsNil() {
			return 0, false
		}
		v = v.Elem()
	}
	var f float64
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		f = v.Float()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f = float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f = float64(v.Uint())
	case reflect.String:
		if v.Type() != jsonNumberType {
			return 0, false
		}
		n, err := v.Interface().(json.Number).Float64()
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	return f, finite(f)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
