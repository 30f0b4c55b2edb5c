package locations

import (
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/golang/geo/s2"

	"github.com/couchcryptid/hazard-map-sync/internal/domain"
	"github.com/couchcryptid/hazard-map-sync/internal/naming"
)

// EarthRadiusMeters is the mean Earth radius used for distances.
const EarthRadiusMeters = 6371008.8

type indexState struct {
	datasets map[string]*Dataset
	all      []domain.NamedLocation
	byKey    map[string]domain.NamedLocation
	folded   []string // naming.Fold of each entry in all
}

// Index is a load-once, read-many view of the named locations. Readers see
// an empty index until Replace is called.
type Index struct {
	state  atomic.Pointer[indexState]
	logger *slog.Logger
}

// NewIndex returns an empty index.
func NewIndex(logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{logger: logger}
}

// Replace publishes a new set of datasets.
func (ix *Index) Replace(datasets []*Dataset) {
	st := &indexState{
		datasets: make(map[string]*Dataset, len(datasets)),
		byKey:    make(map[string]domain.NamedLocation),
	}
	for _, ds := range datasets {
		st.datasets[ds.Name] = ds
		for _, loc := range ds.Locations {
			if _, dup := st.byKey[loc.Key]; dup {
				continue
			}
			st.byKey[loc.Key] = loc
			st.all = append(st.all, loc)
		}
		if ds.Skipped > 0 {
			ix.logger.Warn("boundary records without usable geometry skipped", "dataset", ds.Name, "skipped", ds.Skipped)
		}
	}
	sort.SliceStable(st.all, func(i, j int) bool {
		if st.all[i].Name != st.all[j].Name {
			return st.all[i].Name < st.all[j].Name
		}
		return st.all[i].Key < st.all[j].Key
	})
	st.folded = make([]string, len(st.all))
	for i, loc := range st.all {
		st.folded[i] = naming.Fold(loc.Name)
	}
	ix.state.Store(st)
	ix.logger.Info("named locations indexed", "datasets", len(datasets), "locations", len(st.all))
}

func (ix *Index) load() *indexState {
	if st := ix.state.Load(); st != nil {
		return st
	}
	return &indexState{}
}

// Len returns the number of indexed locations.
func (ix *Index) Len() int { return len(ix.load().all) }

// Dataset returns a loaded boundary dataset by name.
func (ix *Index) Dataset(name string) (*Dataset, bool) {
	ds, ok := ix.load().datasets[name]
	return ds, ok
}

// Datasets returns the loaded dataset names, sorted.
func (ix *Index) Datasets() []string {
	st := ix.load()
	names := make([]string, 0, len(st.datasets))
	for n := range st.datasets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ByKey looks a location up by its key.
func (ix *Index) ByKey(key string) (domain.NamedLocation, bool) {
	loc, ok := ix.load().byKey[key]
	return loc, ok
}

// Search returns locations whose name contains query, ignoring case and
// accents. An empty query matches everything. limit <= 0 means no limit.
func (ix *Index) Search(query string, limit int) []domain.NamedLocation {
	st := ix.load()
	q := naming.Fold(query)
	out := []domain.NamedLocation{}
	for i, loc := range st.all {
		if q != "" && !strings.Contains(st.folded[i], q) {
			continue
		}
		out = append(out, loc)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Nearest returns the location whose centroid is closest to (lat, lon) and
// the great-circle distance to it in meters.
func (ix *Index) Nearest(lat, lon float64) (domain.NamedLocation, float64, bool) {
	st := ix.load()
	if len(st.all) == 0 {
		return domain.NamedLocation{}, 0, false
	}
	origin := s2.LatLngFromDegrees(lat, lon)
	best := -1
	var bestDist float64
	for i, loc := range st.all {
		d := origin.Distance(s2.LatLngFromDegrees(loc.Centroid.Lat, loc.Centroid.Lon)).Radians()
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return st.all[best], bestDist * EarthRadiusMeters, true
}
