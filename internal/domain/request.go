package domain

import (
	"fmt"
	"strings"
	"time"
)

// SnapshotRequest asks the hazard backend for one channel at one timestamp.
// A nil Bounds means the backend's full coverage.
type SnapshotRequest struct {
	Hazard     HazardType
	Time       time.Time
	Bounds     *BoundingBox
	Thresholds ThresholdSpec
}

// Key identifies the request for caching. Two requests with the same key
// return the same grid.
func (r SnapshotRequest) Key() string {
	var b strings.Builder
	b.WriteString(string(r.Hazard))
	b.WriteByte('|')
	b.WriteString(r.Time.UTC().Format(time.RFC3339))
	if r.Bounds != nil {
		fmt.Fprintf(&b, "|%.4f,%.4f,%.4f,%.4f", r.Bounds.MinLon, r.Bounds.MinLat, r.Bounds.MaxLon, r.Bounds.MaxLat)
	}
	if r.Hazard == HazardWind {
		fmt.Fprintf(&b, "|%g,%g", r.Thresholds.OperationalMax, r.Thresholds.AttentionMax)
	}
	return b.String()
}
