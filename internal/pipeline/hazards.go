package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/hazard-map-sync/internal/domain"
	"github.com/couchcryptid/hazard-map-sync/internal/heatmap"
	"github.com/couchcryptid/hazard-map-sync/internal/layers"
	"github.com/couchcryptid/hazard-map-sync/internal/observability"
	"github.com/couchcryptid/hazard-map-sync/internal/snapshot"
)

// Style selects how a hazard channel is rendered.
type Style string

const (
	StyleHeatmap Style = "heatmap"
	StyleCircle  Style = "circle"
)

// DefaultOpacity is used when a request does not set one.
const DefaultOpacity = 0.8

// HazardRequest asks for a hazard channel to be shown at a timestamp.
type HazardRequest struct {
	Hazard     domain.HazardType
	Time       time.Time
	Bounds     *domain.BoundingBox
	Thresholds *domain.ThresholdSpec // defaults per hazard when nil
	Opacity    *float64
	Style      Style
}

// ErrSuperseded is returned when a newer request on the same channel
// replaced this one before its result was applied.
var ErrSuperseded = snapshot.ErrCanceled

// ShowHazard fetches the snapshot for req and renders it, replacing the
// channel's previous data. Only the latest request per channel is applied;
// an older one returns ErrSuperseded and leaves the layers untouched. The
// same applies when ctx is cancelled before the result is applied. Variable
// channels without bounds are fetched over DefaultRegion.
func (p *Pipeline) ShowHazard(ctx context.Context, req HazardRequest) (ChannelStatus, error) {
	th := domain.ThresholdsFor(req.Hazard)
	if req.Thresholds != nil {
		th = *req.Thresholds
	}
	opacity := DefaultOpacity
	if req.Opacity != nil {
		opacity = clampOpacity(*req.Opacity)
	}
	if req.Style == "" {
		req.Style = StyleHeatmap
	}
	if _, ok := req.Hazard.Variable(); ok && req.Bounds == nil {
		region := domain.DefaultRegion
		req.Bounds = &region
	}

	prev, existed := p.Status(req.Hazard)
	p.setStatus(req.Hazard, func(s *ChannelStatus) {
		s.State = StateLoading
		s.Time = req.Time
		s.Error = ""
	})

	op := p.orch.Load(ctx, domain.SnapshotRequest{
		Hazard:     req.Hazard,
		Time:       req.Time,
		Bounds:     req.Bounds,
		Thresholds: th,
	})

	var applied ChannelStatus
	err := op.Commit(ctx, func(snap domain.GridSnapshot) error {
		var err error
		applied, err = p.render(req, snap, th, opacity)
		return err
	})
	switch {
	case errors.Is(err, snapshot.ErrCanceled):
		// Abandoned by the caller rather than replaced: undo the loading state.
		op.IfLatest(func() { p.restoreStatus(req.Hazard, prev, existed) })
		return p.statusOf(req.Hazard), ErrSuperseded
	case err != nil:
		p.setStatus(req.Hazard, func(s *ChannelStatus) {
			s.State = StateFailed
			s.Error = err.Error()
		})
		return p.statusOf(req.Hazard), err
	}
	p.refreshLayerGauge()
	return applied, nil
}

// HideHazard cancels any in-flight request of the channel and removes its
// layers.
func (p *Pipeline) HideHazard(h domain.HazardType) error {
	p.orch.Cancel(h)
	ids := hazardLayerIDs(h)
	if err := p.registry.RemoveLayer(ids.heatmap); err != nil {
		return err
	}
	if err := p.registry.RemoveLayer(ids.arrows); err != nil {
		return err
	}
	p.mu.Lock()
	delete(p.channels, h)
	p.mu.Unlock()
	p.refreshLayerGauge()
	return nil
}

// render runs under the channel lock of the snapshot orchestrator, so no
// newer result for the same channel can interleave with it.
func (p *Pipeline) render(req HazardRequest, snap domain.GridSnapshot, th domain.ThresholdSpec, opacity float64) (ChannelStatus, error) {
	ids := hazardLayerIDs(req.Hazard)

	res := heatmap.Build(snap, p.mask, heatmap.Options{CellBudget: heatmap.HeatmapCellBudget})
	p.observeBuild(ids.heatmap, res)

	if res.Empty() {
		if err := p.registry.RemoveLayer(ids.heatmap); err != nil {
			return ChannelStatus{}, err
		}
		if err := p.registry.RemoveLayer(ids.arrows); err != nil {
			return ChannelStatus{}, err
		}
		p.logger.Info("no visualizable points", "hazard", req.Hazard, "time", snap.Time)
		return p.setStatus(req.Hazard, func(s *ChannelStatus) {
			s.State = StateEmpty
			s.Time = snap.Time
			s.Features = 0
			s.Arrows = 0
			s.Stops = nil
			s.Stride = res.Stride
		}), nil
	}

	stops := heatmap.Stops(res.Min, res.Max, th)
	spec := layers.LayerSpec{
		ID:     ids.heatmap,
		Source: ids.heatmapSource,
		Kind:   layers.KindHeatmap,
		Paint:  heatmap.HeatmapPaint(stops, opacity),
		Data:   classified(res, th),
	}
	if req.Style == StyleCircle {
		spec.Kind = layers.KindCircle
		spec.Paint = heatmap.CirclePaint(stops, opacity)
	}
	if err := p.registry.EnsureLayer(spec, p.beforeID); err != nil {
		return ChannelStatus{}, err
	}

	arrows, err := p.renderArrows(req.Hazard, snap, res, opacity)
	if err != nil {
		return ChannelStatus{}, err
	}

	return p.setStatus(req.Hazard, func(s *ChannelStatus) {
		s.State = StateReady
		s.Time = snap.Time
		s.Features = len(res.Features)
		s.Arrows = arrows
		s.Stride = res.Stride
		s.Stops = &stops
		s.Thresholds = th
		s.UpdatedAt = p.clock.Now()
	}), nil
}

func (p *Pipeline) renderArrows(h domain.HazardType, snap domain.GridSnapshot, res heatmap.Result, opacity float64) (int, error) {
	ids := hazardLayerIDs(h)
	if !h.Directional() || !snap.HasDirection() {
		return 0, p.registry.RemoveLayer(ids.arrows)
	}

	arrows := heatmap.Build(snap, p.mask, heatmap.Options{
		CellBudget: heatmap.ArrowCellBudget,
		Min:        &res.Min,
		Max:        &res.Max,
	})
	directed := arrows.Features[:0:0]
	for _, f := range arrows.Features {
		if f.Direction != nil {
			directed = append(directed, f)
		}
	}
	arrows.Features = directed
	p.observeBuild(ids.arrows, arrows)

	if arrows.Empty() {
		return 0, p.registry.RemoveLayer(ids.arrows)
	}
	err := p.registry.EnsureLayer(layers.LayerSpec{
		ID:     ids.arrows,
		Source: ids.arrowsSource,
		Kind:   layers.KindSymbol,
		Layout: heatmap.ArrowLayout(),
		Paint:  heatmap.ArrowPaint(opacity),
		Data:   arrows.FeatureCollection(),
	}, "")
	if err != nil {
		return 0, err
	}
	return len(arrows.Features), nil
}

func (p *Pipeline) observeBuild(layerID string, res heatmap.Result) {
	p.setGauge(func(m *observability.Metrics) {
		m.FeaturesBuilt.WithLabelValues(layerID).Set(float64(len(res.Features)))
		m.SampleStride.WithLabelValues(layerID).Set(float64(res.Stride))
	})
}

// classified adds the operating status of each point so the map client can
// colour and filter with the same thresholds as the ramp.
func classified(res heatmap.Result, th domain.ThresholdSpec) *geojson.FeatureCollection {
	fc := res.FeatureCollection()
	for i, f := range fc.Features {
		f.Properties["status"] = string(heatmap.Classify(res.Features[i].Value, th))
	}
	return fc
}

type layerIDs struct {
	heatmap       string
	heatmapSource string
	arrows        string
	arrowsSource  string
}

func hazardLayerIDs(h domain.HazardType) layerIDs {
	base := strings.ReplaceAll(string(h), ":", "-")
	return layerIDs{
		heatmap:       base + "-heatmap",
		heatmapSource: base + "-source",
		arrows:        base + "-arrows",
		arrowsSource:  base + "-arrows-source",
	}
}

// HazardLayerID returns the id of the main layer of a hazard channel.
func HazardLayerID(h domain.HazardType) string { return hazardLayerIDs(h).heatmap }
