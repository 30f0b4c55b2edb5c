package heatmap

import "github.com/couchcryptid/hazard-map-sync/internal/domain"

// RampStops are the four break points of a hazard colour ramp. They are
// always non-decreasing.
type RampStops struct {
	Min         float64 `json:"min"`
	Operational float64 `json:"operational"`
	Attention   float64 `json:"attention"`
	Max         float64 `json:"max"`
}

// Stops derives the ramp for a [lo, hi] data range. Both thresholds are
// clamped into the range and attention is raised to at least the operational
// stop, so inconsistent or out-of-range thresholds still produce a valid ramp.
func Stops(lo, hi float64, th domain.ThresholdSpec) RampStops {
	if hi < lo {
		lo, hi = hi, lo
	}
	th = th.Normalized()
	op := clamp(th.OperationalMax, lo, hi)
	att := clamp(th.AttentionMax, op, hi)
	return RampStops{Min: lo, Operational: op, Attention: att, Max: hi}
}

// Status is the operating class of a hazard value.
type Status string

const (
	StatusOperational Status = "operational"
	StatusAttention   Status = "attention"
	StatusStop        Status = "stop"
)

// Classify places value in its operating class. Thresholds are normalized the
// same way Stops does, so classification agrees with the rendered ramp.
func Classify(value float64, th domain.ThresholdSpec) Status {
	th = th.Normalized()
	switch {
	case value <= th.OperationalMax:
		return StatusOperational
	case value <= th.AttentionMax:
		return StatusAttention
	default:
		return StatusStop
	}
}
