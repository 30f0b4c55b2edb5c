package domain

import "math"

// ThresholdSpec holds the operating limits of a hazard channel. The ordering
// OperationalMax <= AttentionMax is expected but not enforced.
type ThresholdSpec struct {
	OperationalMax float64 `json:"operational_max"`
	AttentionMax   float64 `json:"attention_max"`
}

// Normalized raises AttentionMax to OperationalMax when the two are out of
// order. A NaN OperationalMax becomes -Inf and a NaN AttentionMax takes the
// operational limit.
func (t ThresholdSpec) Normalized() ThresholdSpec {
	op := t.OperationalMax
	if math.IsNaN(op) {
		op = math.Inf(-1)
	}
	att := t.AttentionMax
	if math.IsNaN(att) || att < op {
		att = op
	}
	return ThresholdSpec{OperationalMax: op, AttentionMax: att}
}

// DefaultThresholds are the operating limits used when the caller supplies none.
var DefaultThresholds = map[HazardType]ThresholdSpec{
	HazardWind:    {OperationalMax: 15, AttentionMax: 20},
	HazardWave:    {OperationalMax: 2, AttentionMax: 4},
	HazardCurrent: {OperationalMax: 1, AttentionMax: 2},
}

// ThresholdsFor returns the default limits of a channel, falling back to
// zero limits for raw climate variables.
func ThresholdsFor(h HazardType) ThresholdSpec {
	return DefaultThresholds[h]
}
