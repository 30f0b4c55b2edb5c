package domain

// NamedLocation is a boundary-dataset record resolved to a human-readable
// name, centroid and bounding box.
type NamedLocation struct {
	Key      string      `json:"key"`
	Name     string      `json:"name"`
	Source   string      `json:"source"`
	Centroid LatLon      `json:"point"`
	Bounds   BoundingBox `json:"bounds"`
}
