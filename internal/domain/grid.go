package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// GridSnapshot is a hazard grid at a single timestamp.
type GridSnapshot struct {
	Hazard    HazardType
	Time      time.Time
	Lat       []float64
	Lon       []float64
	Values    [][]float64 // Values[i][j] at (Lat[i], Lon[j]); NaN when missing
	Direction [][]float64 // optional, degrees, aligned to Values
}

// Rows returns the number of latitude rows.
func (s GridSnapshot) Rows() int { return len(s.Lat) }

// Cols returns the number of longitude columns.
func (s GridSnapshot) Cols() int { return len(s.Lon) }

// Cells returns the total number of grid cells.
func (s GridSnapshot) Cells() int { return len(s.Lat) * len(s.Lon) }

// HasDirection reports whether an aligned direction grid is present.
func (s GridSnapshot) HasDirection() bool { return len(s.Direction) > 0 }

// Validate checks that the value grid (and direction grid, if any) is aligned
// to the coordinate axes.
func (s GridSnapshot) Validate() error {
	if len(s.Values) != len(s.Lat) {
		return fmt.Errorf("grid has %d rows, lat axis has %d", len(s.Values), len(s.Lat))
	}
	for i, row := range s.Values {
		if len(row) != len(s.Lon) {
			return fmt.Errorf("grid row %d has %d columns, lon axis has %d", i, len(row), len(s.Lon))
		}
	}
	if !s.HasDirection() {
		return nil
	}
	if len(s.Direction) != len(s.Lat) {
		return errors.New("direction grid is not aligned to lat axis")
	}
	for i, row := range s.Direction {
		if len(row) != len(s.Lon) {
			return fmt.Errorf("direction row %d is not aligned to lon axis", i)
		}
	}
	return nil
}

// PointFeature is a single renderable grid cell.
type PointFeature struct {
	Lon       float64
	Lat       float64
	Value     float64
	Magnitude float64  // normalized into [0,1]
	Direction *float64 // degrees, only for directional overlays
}

// LatLon is a WGS-84 coordinate in latitude-first order.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BoundingBox is an axis-aligned geographic rectangle.
type BoundingBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// Valid reports whether all corners are finite and min <= max on both axes.
func (b BoundingBox) Valid() bool {
	for _, v := range []float64{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.MinLon <= b.MaxLon && b.MinLat <= b.MaxLat
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() LatLon {
	return LatLon{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}

// DefaultRegion covers the south-east offshore basins (Santos to Campos).
var DefaultRegion = BoundingBox{MinLon: -45.0, MinLat: -25.0, MaxLon: -39.0, MaxLat: -20.0}
