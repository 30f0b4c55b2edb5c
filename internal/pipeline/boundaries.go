package pipeline

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/couchcryptid/hazard-map-sync/internal/layers"
)

// ErrUnknownDataset is returned for a boundary dataset that was not loaded.
var ErrUnknownDataset = errors.New("unknown boundary dataset")

const (
	boundaryFillColor = "#0ea5e9"
	boundaryLineColor = "#0369a1"
)

// BoundaryStatus describes a visible boundary overlay.
type BoundaryStatus struct {
	Dataset   string  `json:"dataset"`
	FillID    string  `json:"fill_id"`
	OutlineID string  `json:"outline_id"`
	Features  int     `json:"features"`
	Locations int     `json:"locations"`
	Opacity   float64 `json:"opacity"`
}

// ShowBoundaries renders a dataset as a fill and an outline layer sharing
// one source, with hover tracking on the fill.
func (p *Pipeline) ShowBoundaries(dataset string, opacity float64) (BoundaryStatus, error) {
	ds, ok := p.locations.Dataset(dataset)
	if !ok {
		return BoundaryStatus{}, fmt.Errorf("show boundaries %s: %w", dataset, ErrUnknownDataset)
	}
	opacity = clampOpacity(opacity)
	ids := boundaryLayerIDs(dataset)

	err := p.registry.EnsureLayer(layers.LayerSpec{
		ID:     ids.fill,
		Source: ids.source,
		Kind:   layers.KindFill,
		Paint: map[string]any{
			"fill-color":   boundaryFillColor,
			"fill-opacity": opacity * 0.25,
		},
		Data: ds.Features,
	}, "")
	if err != nil {
		return BoundaryStatus{}, err
	}
	err = p.registry.EnsureLayer(layers.LayerSpec{
		ID:     ids.outline,
		Source: ids.source,
		Kind:   layers.KindLine,
		Paint: map[string]any{
			"line-color":   boundaryLineColor,
			"line-width":   1.2,
			"line-opacity": opacity,
		},
	}, "")
	if err != nil {
		return BoundaryStatus{}, err
	}
	if err := p.registry.AttachHover(ids.fill); err != nil {
		return BoundaryStatus{}, err
	}

	st := BoundaryStatus{
		Dataset:   dataset,
		FillID:    ids.fill,
		OutlineID: ids.outline,
		Features:  len(ds.Features.Features),
		Locations: len(ds.Locations),
		Opacity:   opacity,
	}
	p.mu.Lock()
	p.boundaries[dataset] = st
	p.mu.Unlock()
	p.refreshLayerGauge()
	p.logger.Info("boundaries shown", "dataset", dataset, "features", st.Features)
	return st, nil
}

// HideBoundaries removes the overlay of a dataset. Hiding a dataset that is
// not shown is a no-op.
func (p *Pipeline) HideBoundaries(dataset string) error {
	ids := boundaryLayerIDs(dataset)
	if err := p.registry.RemoveLayer(ids.fill); err != nil {
		return err
	}
	if err := p.registry.RemoveLayer(ids.outline); err != nil {
		return err
	}
	p.mu.Lock()
	delete(p.boundaries, dataset)
	p.mu.Unlock()
	p.refreshLayerGauge()
	return nil
}

// Boundaries returns the visible overlays sorted by dataset.
func (p *Pipeline) Boundaries() []BoundaryStatus {
	p.mu.Lock()
	out := make([]BoundaryStatus, 0, len(p.boundaries))
	for _, b := range p.boundaries {
		out = append(out, b)
	}
	p.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Dataset < out[j].Dataset })
	return out
}

type boundaryIDs struct {
	source  string
	fill    string
	outline string
}

func boundaryLayerIDs(dataset string) boundaryIDs {
	return boundaryIDs{
		source:  dataset + "-boundaries",
		fill:    dataset + "-fill",
		outline: dataset + "-outline",
	}
}

func clampOpacity(v float64) float64 {
	switch {
	case math.IsNaN(v) || v > 1:
		return 1
	case v < 0:
		return 0
	}
	return v
}
