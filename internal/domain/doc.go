// Package domain models gridded marine hazard data and the boundary
// geometries rendered alongside it.
//
// # Hazard Grids
//
// The hazard backend computes one snapshot per hazard channel and timestamp.
// A snapshot is a rectangular grid indexed by a latitude axis and a longitude
// axis:
//
//	lat:    [-20.0, -20.25, -20.5, ...]   ascending or descending, fixed
//	lon:    [-45.0, -44.75, -44.5, ...]
//	values: values[i][j] is the reading at (lat[i], lon[j])
//
// Missing cells arrive as JSON null and are carried as NaN. Channels that
// describe a vector field (wind, current) also ship a direction grid in
// degrees, aligned to the same axes.
//
// Units by channel:
//
//	wind:    knots (10 m wind speed)
//	wave:    metres (significant wave height)
//	current: knots (surface current speed)
//
// # Operating Thresholds
//
// Each channel has an operational maximum and an attention maximum. Values at
// or below the operational maximum allow normal operation, values up to the
// attention maximum require attention, anything above means stop. Callers may
// pass inconsistent thresholds (attention below operational); every consumer
// applies [ThresholdSpec.Normalized] so that classification and colour ramps
// agree.
//
//	wind:    15 kn operational | 20 kn attention
//	wave:    2 m operational   | 4 m attention
//	current: 1 kn operational  | 2 kn attention
//
// # Boundary Datasets
//
// Static boundary layers (sedimentary basins, exploration blocks, production
// fields) are published as polygon collections whose attribute schemas differ
// from source to source. Each record becomes a [NamedLocation] with a
// resolved name, a bounding box and the bounding-box midpoint as its centroid.
package domain
