// Package pipeline wires snapshot loading, feature building and the layer
// registry into the operations exposed by the service: showing and hiding
// hazard channels and boundary overlays.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hazard-map-sync/internal/domain"
	"github.com/couchcryptid/hazard-map-sync/internal/landmask"
	"github.com/couchcryptid/hazard-map-sync/internal/layers"
	"github.com/couchcryptid/hazard-map-sync/internal/locations"
	"github.com/couchcryptid/hazard-map-sync/internal/observability"
	"github.com/couchcryptid/hazard-map-sync/internal/snapshot"
)

// Emitter delivers pointer events to the handlers registered on a surface.
type Emitter interface {
	Emit(event, layerID string, ev layers.Event) int
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Orchestrator *snapshot.Orchestrator
	Registry     *layers.Registry
	Emitter      Emitter
	LandMask     *landmask.Mask
	Locations    *locations.Index
	Clock        clockwork.Clock
	Metrics      *observability.Metrics
	Logger       *slog.Logger

	// BeforeLayerID places hazard layers below this layer when present.
	BeforeLayerID string
}

// Startup names the one-time data loaded by Run.
type Startup struct {
	LandMask    landmask.Source // nil disables the mask
	BoundaryDir string          // empty disables boundary datasets
}

// Pipeline owns the hazard channel and boundary overlay state.
type Pipeline struct {
	orch      *snapshot.Orchestrator
	registry  *layers.Registry
	emitter   Emitter
	mask      *landmask.Mask
	locations *locations.Index
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger
	beforeID  string

	ready atomic.Bool

	mu         sync.Mutex
	channels   map[domain.HazardType]*ChannelStatus
	boundaries map[string]BoundaryStatus
}

// New creates a Pipeline.
func New(d Deps) *Pipeline {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.LandMask == nil {
		d.LandMask = landmask.New(d.Logger)
	}
	if d.Locations == nil {
		d.Locations = locations.NewIndex(d.Logger)
	}
	return &Pipeline{
		orch:       d.Orchestrator,
		registry:   d.Registry,
		emitter:    d.Emitter,
		mask:       d.LandMask,
		locations:  d.Locations,
		clock:      d.Clock,
		metrics:    d.Metrics,
		logger:     d.Logger,
		beforeID:   d.BeforeLayerID,
		channels:   make(map[domain.HazardType]*ChannelStatus),
		boundaries: make(map[string]BoundaryStatus),
	}
}

// CheckReadiness returns nil once the startup loads have been attempted.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("startup data has not been loaded yet")
	}
	return nil
}

// Locations returns the named-location index.
func (p *Pipeline) Locations() *locations.Index { return p.locations }

// Registry returns the layer registry.
func (p *Pipeline) Registry() *layers.Registry { return p.registry }

// Run loads the boundary datasets and the land mask, marks the service
// ready, and keeps retrying a failed land-mask load until ctx is cancelled.
// Neither load is fatal: until the mask is available no point is treated as
// land.
func (p *Pipeline) Run(ctx context.Context, s Startup) error {
	p.logger.Info("pipeline started", "boundary_dir", s.BoundaryDir, "land_mask", s.LandMask != nil)
	p.setGauge(func(m *observability.Metrics) { m.ServiceRunning.Set(1) })
	defer p.setGauge(func(m *observability.Metrics) { m.ServiceRunning.Set(0) })

	if s.BoundaryDir != "" {
		p.loadBoundaries(s.BoundaryDir)
	}

	maskLoaded := s.LandMask == nil || p.loadMask(ctx, s.LandMask)
	p.ready.Store(true)

	// Exponential backoff: start at 1s, double each retry, cap at 1m.
	backoff := time.Second
	maxBackoff := time.Minute
	for !maskLoaded {
		if !p.sleep(ctx, backoff) {
			return nil
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
		maskLoaded = p.loadMask(ctx, s.LandMask)
	}

	<-ctx.Done()
	p.logger.Info("pipeline stopping", "reason", ctx.Err())
	return nil
}

func (p *Pipeline) loadBoundaries(dir string) {
	datasets, err := locations.LoadDir(dir)
	if err != nil {
		p.logger.Warn("boundary datasets unavailable", "dir", dir, "error", err)
		return
	}
	p.locations.Replace(datasets)
	p.setGauge(func(m *observability.Metrics) { m.LocationsIndexed.Set(float64(p.locations.Len())) })
}

func (p *Pipeline) loadMask(ctx context.Context, src landmask.Source) bool {
	if err := p.mask.Load(ctx, src); err != nil {
		return false
	}
	p.setGauge(func(m *observability.Metrics) { m.LandMaskPolygons.Set(float64(p.mask.Len())) })
	return true
}

// HandleEvent forwards a pointer event to the handlers of a layer and
// reports how many received it.
func (p *Pipeline) HandleEvent(layerID, event string, ev layers.Event) (int, error) {
	if !p.registry.Has(layerID) {
		return 0, layers.ErrUnknownLayer
	}
	if p.emitter == nil {
		return 0, nil
	}
	return p.emitter.Emit(event, layerID, ev), nil
}

func (p *Pipeline) setGauge(fn func(*observability.Metrics)) {
	if p.metrics != nil {
		fn(p.metrics)
	}
}

func (p *Pipeline) refreshLayerGauge() {
	p.setGauge(func(m *observability.Metrics) { m.LayersActive.Set(float64(len(p.registry.Layers()))) })
}

func (p *Pipeline) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-p.clock.After(d):
		return true
	}
}
