// Package locations indexes boundary-dataset records (production fields,
// exploration blocks, basins) as named locations for search and navigation.
package locations

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/hazard-map-sync/internal/domain"
	"github.com/couchcryptid/hazard-map-sync/internal/geometry"
	"github.com/couchcryptid/hazard-map-sync/internal/naming"
)

// Dataset is one boundary layer: the renderable features and the named
// locations derived from them.
type Dataset struct {
	Name      string
	Features  *geojson.FeatureCollection
	Locations []domain.NamedLocation
	Skipped   int // records without usable geometry
}

type rawRecord struct {
	Geometry   map[string]any `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// ParseDataset reads a GeoJSON FeatureCollection. Records are decoded one at
// a time so a single malformed geometry does not reject the whole file;
// records orb cannot decode fall back to a raw coordinate walk and are
// indexed but not rendered.
func ParseDataset(name string, data []byte) (*Dataset, error) {
	var collection struct {
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(data, &collection); err != nil {
		return nil, fmt.Errorf("decode dataset %s: %w", name, err)
	}

	ds := &Dataset{Name: name, Features: geojson.NewFeatureCollection()}
	hint := HintFor(name)
	for idx, raw := range collection.Features {
		props, bounds, ok := parseRecord(raw, ds.Features)
		if !ok {
			ds.Skipped++
			continue
		}
		label := naming.Resolve(props, hint, idx)
		ds.Locations = append(ds.Locations, domain.NamedLocation{
			Key:      fmt.Sprintf("%s-%s-%d", name, label, idx),
			Name:     label,
			Source:   name,
			Centroid: bounds.Center(),
			Bounds:   bounds,
		})
	}
	return ds, nil
}

func parseRecord(raw json.RawMessage, rendered *geojson.FeatureCollection) (map[string]any, domain.BoundingBox, bool) {
	if f, err := geojson.UnmarshalFeature(raw); err == nil && f.Geometry != nil {
		bounds, ok := geometry.BoundingBox(f.Geometry)
		if !ok {
			return nil, domain.BoundingBox{}, false
		}
		rendered.Append(f)
		return map[string]any(f.Properties), bounds, true
	}

	var rec rawRecord
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil || rec.Geometry == nil {
		return nil, domain.BoundingBox{}, false
	}
	bounds, ok := geometry.RawBoundingBox(rec.Geometry)
	if !ok {
		return nil, domain.BoundingBox{}, false
	}
	return rec.Properties, bounds, true
}

// HintFor picks the fallback label prefix for records of a dataset.
func HintFor(dataset string) string {
	n := naming.Fold(dataset)
	switch {
	case strings.Contains(n, "CAMPO"), strings.Contains(n, "FIELD"):
		return "Campo"
	case strings.Contains(n, "BLOCO"), strings.Contains(n, "BLOCK"):
		return "Bloco"
	case strings.Contains(n, "BACIA"), strings.Contains(n, "BASIN"):
		return "Bacia"
	default:
		return "Local"
	}
}

// LoadDir parses every .geojson and .json file in dir. The dataset name is
// the file name without extension.
func LoadDir(dir string) ([]*Dataset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read boundary dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".geojson", ".json":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	datasets := make([]*Dataset, 0, len(names))
	for _, file := range names {
		data, err := os.ReadFile(filepath.Join(dir, file))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		ds, err := ParseDataset(strings.TrimSuffix(file, filepath.Ext(file)), data)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, ds)
	}
	return datasets, nil
}
