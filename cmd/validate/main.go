// Command validate checks the static data the service loads at startup: the
// land mask, the boundary datasets and, optionally, snapshot fixtures in the
// backend response format. It reports parse failures, records without usable
// geometry, duplicate location keys and malformed grids.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -land data/land.geojson \
//	  -boundary-dir data/boundaries \
//	  -snapshots data/mock
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/couchcryptid/hazard-map-sync/internal/adapter/backend"
	"github.com/couchcryptid/hazard-map-sync/internal/domain"
	"github.com/couchcryptid/hazard-map-sync/internal/heatmap"
	"github.com/couchcryptid/hazard-map-sync/internal/landmask"
	"github.com/couchcryptid/hazard-map-sync/internal/locations"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
	notes  []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) notef(format string, args ...any) {
	p.notes = append(p.notes, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	landPath := flag.String("land", "", "land-mask GeoJSON file")
	boundaryDir := flag.String("boundary-dir", "", "directory of boundary GeoJSON datasets")
	snapshotDir := flag.String("snapshots", "", "optional directory of *_snapshot.json fixtures")
	flag.Parse()

	if *landPath == "" || *boundaryDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*landPath, *boundaryDir, *snapshotDir); code != 0 {
		os.Exit(code)
	}
}

func run(landPath, boundaryDir, snapshotDir string) int {
	fmt.Println("=== Map Data Validation ===")
	fmt.Println()

	phases := []*phase{
		validateLandMask(landPath),
		validateBoundaries(boundaryDir),
	}
	if snapshotDir != "" {
		phases = append(phases, validateSnapshots(snapshotDir))
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
		for _, n := range p.notes {
			fmt.Printf("      %s\n", n)
		}
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func validateLandMask(path string) *phase {
	p := &phase{name: "Land mask"}
	data, err := os.ReadFile(path)
	if err != nil {
		p.errorf("read %s: %v", path, err)
		return p
	}
	polys, err := landmask.ParsePolygons(data)
	if err != nil {
		p.errorf("parse %s: %v", path, err)
		return p
	}
	if len(polys) == 0 {
		p.errorf("%s contains no polygons", path)
	}
	for i, poly := range polys {
		if len(poly) == 0 || len(poly[0]) < 4 {
			p.errorf("polygon %d has a degenerate outer ring", i)
			continue
		}
		if ring := poly[0]; ring[0] != ring[len(ring)-1] {
			p.errorf("polygon %d outer ring is not closed", i)
		}
	}
	p.notef("%d polygons", len(polys))
	return p
}

func validateBoundaries(dir string) *phase {
	p := &phase{name: "Boundary datasets"}
	datasets, err := locations.LoadDir(dir)
	if err != nil {
		p.errorf("load %s: %v", dir, err)
		return p
	}
	if len(datasets) == 0 {
		p.errorf("no datasets in %s", dir)
	}

	keys := map[string]string{}
	for _, ds := range datasets {
		fallback := 0
		prefix := locations.HintFor(ds.Name) + " "
		for _, loc := range ds.Locations {
			if prev, dup := keys[loc.Key]; dup {
				p.errorf("%s: duplicate key %q (also in %s)", ds.Name, loc.Key, prev)
			}
			keys[loc.Key] = ds.Name
			if !loc.Bounds.Valid() {
				p.errorf("%s: %q has invalid bounds", ds.Name, loc.Name)
			}
			if strings.HasPrefix(loc.Name, prefix) {
				fallback++
			}
		}
		if len(ds.Locations) == 0 {
			p.errorf("%s: no usable records", ds.Name)
		}
		p.notef("%s: %d locations, %d rendered, %d skipped, %d fallback names",
			ds.Name, len(ds.Locations), len(ds.Features.Features), ds.Skipped, fallback)
	}
	return p
}

func validateSnapshots(dir string) *phase {
	p := &phase{name: "Snapshot fixtures"}
	paths, err := filepath.Glob(filepath.Join(dir, "*_snapshot.json"))
	if err != nil || len(paths) == 0 {
		p.errorf("no snapshot fixtures in %s", dir)
		return p
	}
	sort.Strings(paths)

	for _, path := range paths {
		name := filepath.Base(path)
		data, err := os.ReadFile(path)
		if err != nil {
			p.errorf("read %s: %v", name, err)
			continue
		}
		snap, err := backend.UnmarshalSnapshot(data)
		if err != nil {
			p.errorf("decode %s: %v", name, err)
			continue
		}
		if err := snap.Validate(); err != nil {
			p.errorf("%s: %v", name, err)
			continue
		}
		checkAxes(p, name, snap)

		res := heatmap.Build(snap, nil, heatmap.Options{CellBudget: heatmap.HeatmapCellBudget})
		if res.Empty() {
			p.errorf("%s: no visualizable points", name)
			continue
		}
		p.notef("%s: %dx%d, %d points at stride %d, range [%.2f, %.2f]",
			name, snap.Rows(), snap.Cols(), len(res.Features), res.Stride, res.Min, res.Max)
	}
	return p
}

func checkAxes(p *phase, name string, snap domain.GridSnapshot) {
	if !monotonic(snap.Lat) {
		p.errorf("%s: latitude axis is not strictly monotonic", name)
	}
	if !monotonic(snap.Lon) {
		p.errorf("%s: longitude axis is not strictly monotonic", name)
	}
}

func monotonic(axis []float64) bool {
	for _, v := range axis {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	if len(axis) < 2 {
		return true
	}
	up := axis[1] > axis[0]
	for i := 1; i < len(axis); i++ {
		if up && !(axis[i] > axis[i-1]) || !up && !(axis[i] < axis[i-1]) {
			return false
		}
	}
	return true
}
