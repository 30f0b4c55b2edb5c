package heatmap

import "math"

// Ramp colours, shared by the hazard heatmap and the classified circles.
const (
	colorOperational = "#22c55e"
	colorAttention   = "#f5a900"
	colorStop        = "#ff0000"
)

// HeatmapPaint returns the heatmap paint properties for a hazard channel.
// Weight follows the value through the ramp stops and opacity is clamped
// into [0,1].
func HeatmapPaint(s RampStops, opacity float64) map[string]any {
	op, att, hi := ascending(s)
	return map[string]any{
		"heatmap-weight": []any{
			"interpolate", []any{"linear"}, []any{"get", "value"},
			s.Min, 0,
			op, 0.4,
			att, 0.7,
			hi, 1,
		},
		"heatmap-intensity": []any{"interpolate", []any{"linear"}, []any{"zoom"}, 0, 1, 9, 3},
		"heatmap-color": []any{
			"interpolate", []any{"linear"}, []any{"heatmap-density"},
			0, "rgba(0, 0, 255, 0)",
			0.2, "#419bf9",
			0.4, colorOperational,
			0.7, colorAttention,
			1, colorStop,
		},
		"heatmap-radius":  []any{"interpolate", []any{"linear"}, []any{"zoom"}, 0, 2, 9, 20},
		"heatmap-opacity": paintOpacity(opacity),
	}
}

// CirclePaint colours individual points by operating class.
func CirclePaint(s RampStops, opacity float64) map[string]any {
	op, att, _ := ascending(s)
	return map[string]any{
		"circle-radius": 3,
		"circle-color": []any{
			"step", []any{"get", "value"},
			colorOperational,
			op, colorAttention,
			att, colorStop,
		},
		"circle-opacity": paintOpacity(opacity),
	}
}

// ArrowLayout and ArrowPaint render directional overlays as rotated symbols.
func ArrowLayout() map[string]any {
	return map[string]any{
		"icon-image":              "arrow",
		"icon-size":               []any{"interpolate", []any{"linear"}, []any{"get", "magnitude"}, 0, 0.4, 1, 1},
		"icon-rotate":             []any{"get", "direction"},
		"icon-rotation-alignment": "map",
		"icon-allow-overlap":      true,
	}
}

func ArrowPaint(opacity float64) map[string]any {
	return map[string]any{
		"icon-color":   "#1f2937",
		"icon-opacity": paintOpacity(opacity),
	}
}

// ascending returns the inner and upper stops nudged so that expression
// inputs stay strictly ascending when stops coincide.
func ascending(s RampStops) (op, att, hi float64) {
	op = strictlyAbove(s.Operational, s.Min)
	att = strictlyAbove(s.Attention, op)
	hi = strictlyAbove(s.Max, att)
	return op, att, hi
}

func strictlyAbove(v, prev float64) float64 {
	if v > prev {
		return v
	}
	return math.Nextafter(prev, math.Inf(1))
}

// paintOpacity clamps into [0,1]; NaN means fully opaque.
func paintOpacity(v float64) float64 {
	if math.IsNaN(v) {
		return 1
	}
	return clamp(v, 0, 1)
}
