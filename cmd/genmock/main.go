// Command genmock writes synthetic hazard snapshot fixtures in the response
// format of the hazard backend, for local runs and tests. Grids cover the
// default region and cells inside the optional land mask are written as null.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/mock \
//	  -land data/land.geojson \
//	  -step 0.05
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/hazard-map-sync/internal/adapter/backend"
	"github.com/couchcryptid/hazard-map-sync/internal/domain"
	"github.com/couchcryptid/hazard-map-sync/internal/heatmap"
	"github.com/couchcryptid/hazard-map-sync/internal/landmask"
)

// field describes the synthetic pattern of one hazard.
type field struct {
	hazard    domain.HazardType
	base      float64 // mean value
	amplitude float64 // swell of the smooth pattern
	noise     float64
	direction bool
}

var fields = []field{
	{hazard: domain.HazardWind, base: 16, amplitude: 10, noise: 2, direction: true},
	{hazard: domain.HazardWave, base: 2.5, amplitude: 1.8, noise: 0.3},
	{hazard: domain.HazardCurrent, base: 1.1, amplitude: 0.9, noise: 0.15, direction: true},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out", "", "output directory for snapshot fixtures")
	landPath := flag.String("land", "", "optional land-mask GeoJSON; cells on land are null")
	step := flag.Float64("step", 0.05, "grid resolution in degrees")
	ts := flag.String("time", "2024-01-15T12:00:00Z", "snapshot timestamp (RFC3339)")
	seed := flag.Uint64("seed", 42, "random seed")
	flag.Parse()

	if *outDir == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if *step <= 0 {
		return fmt.Errorf("invalid -step %v", *step)
	}
	at, err := time.Parse(time.RFC3339, *ts)
	if err != nil {
		return fmt.Errorf("invalid -time: %w", err)
	}

	mask := landmask.New(slog.Default())
	if *landPath != "" {
		if err := mask.Load(context.Background(), landmask.FileSource(*landPath)); err != nil {
			return fmt.Errorf("loading land mask: %w", err)
		}
		log.Printf("land mask: %d polygons", mask.Len())
	}

	lat, lon := axes(domain.DefaultRegion, *step)
	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))

	for _, f := range fields {
		snap := generate(f, lat, lon, at, mask, rng)
		data, err := backend.MarshalSnapshot(f.hazard, snap)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", f.hazard, err)
		}
		path := filepath.Join(*outDir, string(f.hazard)+"_snapshot.json")
		if err := writeFile(path, data); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		log.Printf("wrote %s fixture: %s", f.hazard, path)
		printStats(f.hazard, snap, mask)
	}
	return nil
}

func axes(b domain.BoundingBox, step float64) (lat, lon []float64) {
	for v := b.MinLat; v <= b.MaxLat+1e-9; v += step {
		lat = append(lat, round(v))
	}
	for v := b.MinLon; v <= b.MaxLon+1e-9; v += step {
		lon = append(lon, round(v))
	}
	return lat, lon
}

func generate(f field, lat, lon []float64, at time.Time, mask *landmask.Mask, rng *rand.Rand) domain.GridSnapshot {
	snap := domain.GridSnapshot{
		Hazard: f.hazard,
		Time:   at,
		Lat:    lat,
		Lon:    lon,
		Values: make([][]float64, len(lat)),
	}
	if f.direction {
		snap.Direction = make([][]float64, len(lat))
	}
	for i, la := range lat {
		snap.Values[i] = make([]float64, len(lon))
		if f.direction {
			snap.Direction[i] = make([]float64, len(lon))
		}
		for j, lo := range lon {
			if mask.IsOnLand(lo, la) {
				snap.Values[i][j] = math.NaN()
				if f.direction {
					snap.Direction[i][j] = math.NaN()
				}
				continue
			}
			swell := math.Sin(la*1.3) * math.Cos(lo*0.9)
			v := f.base + f.amplitude*swell + f.noise*rng.NormFloat64()
			snap.Values[i][j] = round(math.Max(v, 0))
			if f.direction {
				snap.Direction[i][j] = round(math.Mod(360+math.Atan2(la+22.5, lo+42)*180/math.Pi, 360))
			}
		}
	}
	return snap
}

func printStats(h domain.HazardType, snap domain.GridSnapshot, mask *landmask.Mask) {
	th := domain.ThresholdsFor(h)
	res := heatmap.Build(snap, mask, heatmap.Options{CellBudget: heatmap.HeatmapCellBudget})
	arrows := heatmap.Build(snap, mask, heatmap.Options{CellBudget: heatmap.ArrowCellBudget, Min: &res.Min, Max: &res.Max})

	classes := map[heatmap.Status]int{}
	for _, p := range res.Features {
		classes[heatmap.Classify(p.Value, th)]++
	}
	stops := heatmap.Stops(res.Min, res.Max, th)

	fmt.Printf("\n=== %s ===\n", h)
	fmt.Printf("Grid: %d x %d (%d cells)\n", snap.Rows(), snap.Cols(), snap.Cells())
	fmt.Printf("Heatmap: stride=%d points=%d range=[%.2f, %.2f]\n", res.Stride, len(res.Features), res.Min, res.Max)
	fmt.Printf("Arrows: stride=%d points=%d\n", arrows.Stride, len(arrows.Features))
	fmt.Printf("Stops: %.2f / %.2f / %.2f / %.2f\n", stops.Min, stops.Operational, stops.Attention, stops.Max)
	fmt.Printf("By status: operational=%d, attention=%d, stop=%d\n",
		classes[heatmap.StatusOperational], classes[heatmap.StatusAttention], classes[heatmap.StatusStop])
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

func round(v float64) float64 { return math.Round(v*1e4) / 1e4 }
