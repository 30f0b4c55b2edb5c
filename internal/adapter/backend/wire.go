package backend

import (
	"encoding/json"
	"math"
	"time"

	"github.com/couchcryptid/hazard-map-sync/internal/domain"
)

// wireSnapshot is the JSON shape of a snapshot response. Grids use null for
// missing cells. Wind responses carry speed_knots instead of values.
type wireSnapshot struct {
	Time       string       `json:"time,omitempty"`
	Lat        []float64    `json:"lat"`
	Lon        []float64    `json:"lon"`
	Values     [][]*float64 `json:"values,omitempty"`
	SpeedKnots [][]*float64 `json:"speed_knots,omitempty"`
	Direction  [][]*float64 `json:"direction_deg,omitempty"`
}

func (w wireSnapshot) toDomain() domain.GridSnapshot {
	values := w.Values
	if values == nil {
		values = w.SpeedKnots
	}
	snap := domain.GridSnapshot{
		Lat:       w.Lat,
		Lon:       w.Lon,
		Values:    fromNullable(values),
		Direction: fromNullable(w.Direction),
	}
	if t, err := time.Parse(time.RFC3339, w.Time); err == nil {
		snap.Time = t
	}
	return snap
}

func toWire(s domain.GridSnapshot) wireSnapshot {
	w := wireSnapshot{
		Lat:       s.Lat,
		Lon:       s.Lon,
		Values:    toNullable(s.Values),
		Direction: toNullable(s.Direction),
	}
	if !s.Time.IsZero() {
		w.Time = s.Time.UTC().Format(time.RFC3339)
	}
	return w
}

// MarshalSnapshot renders snap in the response format of the hazard backend
// for hazard h. Wind grids are written as speed_knots.
func MarshalSnapshot(h domain.HazardType, snap domain.GridSnapshot) ([]byte, error) {
	w := toWire(snap)
	if h == domain.HazardWind {
		w.SpeedKnots, w.Values = w.Values, nil
	}
	return json.Marshal(w)
}

// UnmarshalSnapshot decodes a backend snapshot response.
func UnmarshalSnapshot(data []byte) (domain.GridSnapshot, error) {
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.GridSnapshot{}, err
	}
	return w.toDomain(), nil
}

func fromNullable(grid [][]*float64) [][]float64 {
	if grid == nil {
		return nil
	}
	out := make([][]float64, len(grid))
	for i, row := range grid {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			if v == nil {
				out[i][j] = math.NaN()
				continue
			}
			out[i][j] = *v
		}
	}
	return out
}

func toNullable(grid [][]float64) [][]*float64 {
	if grid == nil {
		return nil
	}
	out := make([][]*float64, len(grid))
	for i, row := range grid {
		out[i] = make([]*float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			out[i][j] = &v
		}
	}
	return out
}
