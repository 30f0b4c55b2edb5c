// Package heatmap turns hazard grid snapshots into down-sampled point features
// and derives the colour ramps used to render them.
package heatmap

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/hazard-map-sync/internal/domain"
)

// Cell budgets bound the number of rendered features regardless of the native
// grid resolution.
const (
	HeatmapCellBudget = 10000
	ArrowCellBudget   = 2000
)

// LandMaskThreshold is the value at or below which a cell is treated as
// masked out by the backend (land or no data).
const LandMaskThreshold = 0.0

const epsilon = 1e-9

// LandMask reports whether a coordinate lies over land.
type LandMask interface {
	IsOnLand(lon, lat float64) bool
}

// Options tunes a Build call. A zero CellBudget means HeatmapCellBudget.
// Min and Max override the sampled range when set.
type Options struct {
	CellBudget int
	Min        *float64
	Max        *float64
}

// Result is the output of Build. Min and Max are the range used to normalize
// magnitudes.
type Result struct {
	Features []domain.PointFeature
	Min      float64
	Max      float64
	Stride   int
}

// Empty reports whether no cell survived filtering.
func (r Result) Empty() bool { return len(r.Features) == 0 }

// Stride returns the sampling step that keeps a rows x cols grid within
// budget cells: max(1, ceil(sqrt(total/budget))).
func Stride(rows, cols, budget int) int {
	if budget <= 0 {
		budget = HeatmapCellBudget
	}
	total := rows * cols
	if total <= budget {
		return 1
	}
	step := int(math.Ceil(math.Sqrt(float64(total) / float64(budget))))
	if step < 1 {
		return 1
	}
	return step
}

// Build samples snap every Stride cells along both axes and returns one
// feature per sampled cell that is finite, above LandMaskThreshold and not
// over land. mask may be nil.
//
// The normalization range comes from the sampled cells only, so it can be
// narrower than the true grid extrema.
func Build(snap domain.GridSnapshot, mask LandMask, opts Options) Result {
	budget := opts.CellBudget
	if budget <= 0 {
		budget = HeatmapCellBudget
	}
	step := Stride(snap.Rows(), snap.Cols(), budget)

	lo, hi := sampledRange(snap, step)
	if opts.Min != nil {
		lo = *opts.Min
	}
	if opts.Max != nil {
		hi = *opts.Max
	}
	span := math.Max(hi-lo, epsilon)

	res := Result{Min: lo, Max: hi, Stride: step, Features: []domain.PointFeature{}}
	for i := 0; i < snap.Rows(); i += step {
		if i >= len(snap.Values) {
			break
		}
		row := snap.Values[i]
		lat := snap.Lat[i]
		for j := 0; j < snap.Cols() && j < len(row); j += step {
			v := row[j]
			if !finite(v) || v <= LandMaskThreshold {
				continue
			}
			lon := snap.Lon[j]
			if mask != nil && mask.IsOnLand(lon, lat) {
				continue
			}
			f := domain.PointFeature{
				Lon:       lon,
				Lat:       lat,
				Value:     v,
				Magnitude: clamp((v-lo)/span, 0, 1),
			}
			if d, ok := directionAt(snap, i, j); ok {
				f.Direction = &d
			}
			res.Features = append(res.Features, f)
		}
	}
	return res
}

// FeatureCollection renders the features as GeoJSON points carrying value,
// magnitude and, when known, direction properties.
func (r Result) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range r.Features {
		feat := geojson.NewFeature(orb.Point{f.Lon, f.Lat})
		feat.Properties["value"] = f.Value
		feat.Properties["magnitude"] = f.Magnitude
		if f.Direction != nil {
			feat.Properties["direction"] = *f.Direction
		}
		fc.Append(feat)
	}
	return fc
}

func sampledRange(snap domain.GridSnapshot, step int) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < len(snap.Values); i += step {
		row := snap.Values[i]
		for j := 0; j < len(row); j += step {
			v := row[j]
			if !finite(v) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if lo > hi {
		return 0, 0
	}
	return lo, hi
}

func directionAt(snap domain.GridSnapshot, i, j int) (float64, bool) {
	if i >= len(snap.Direction) || j >= len(snap.Direction[i]) {
		return 0, false
	}
	d := snap.Direction[i][j]
	if !finite(d) {
		return 0, false
	}
	return d, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
