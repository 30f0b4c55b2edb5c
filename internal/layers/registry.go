package layers

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb/geojson"
)

// Entry is the registry's record of a layer present on the surface.
type Entry struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"source"`
	Kind      Kind      `json:"type"`
	BeforeID  string    `json:"before,omitempty"`
	Hover     bool      `json:"hover"`
	UpdatedAt time.Time `json:"updated_at"`
}

// hoverHandle holds the subscriptions of one layer's hover handlers. The
// registry keeps one handle per layer id. A detached handle ignores events
// that were already in flight.
type hoverHandle struct {
	move     Subscription
	leave    Subscription
	detached bool // guarded by Registry.hoverMu
}

// Registry owns the lifecycle of layers on a Surface. A layer id moves from
// absent to present on EnsureLayer and back on RemoveLayer; both are
// idempotent. All mutations are serialized.
type Registry struct {
	mu      sync.Mutex
	surface Surface
	entries map[string]*Entry
	hovers  map[string]*hoverHandle
	layouts map[string]map[string]any
	clock   clockwork.Clock
	logger  *slog.Logger

	hoverMu sync.RWMutex
	hovered map[string]map[string]any
}

// NewRegistry creates a registry over surface.
func NewRegistry(surface Surface, clock clockwork.Clock, logger *slog.Logger) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		surface: surface,
		entries: make(map[string]*Entry),
		hovers:  make(map[string]*hoverHandle),
		layouts: make(map[string]map[string]any),
		hovered: make(map[string]map[string]any),
		clock:   clock,
		logger:  logger,
	}
}

// UpsertSource creates the source or replaces its data.
func (r *Registry) UpsertSource(id string, data *geojson.FeatureCollection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upsertSource(id, data)
}

func (r *Registry) upsertSource(id string, data *geojson.FeatureCollection) error {
	if r.surface.HasSource(id) {
		if err := r.surface.SetData(id, data); err != nil {
			return fmt.Errorf("update source %s: %w", id, err)
		}
		return nil
	}
	if err := r.surface.AddSource(id, data); err != nil {
		return fmt.Errorf("add source %s: %w", id, err)
	}
	return nil
}

// EnsureLayer makes spec present on the surface. For a layer that is
// already present only its data and paint are refreshed, so repeated calls
// never duplicate the visual layer. A change of source, kind or layout
// re-creates the layer, keeping its hover handlers.
func (r *Registry) EnsureLayer(spec LayerSpec, beforeID string) error {
	if spec.ID == "" || spec.Source == "" {
		return errors.New("layer spec needs an id and a source")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rehover := false
	if e, ok := r.entries[spec.ID]; ok && r.surface.HasLayer(spec.ID) && r.changed(e, spec) {
		rehover = e.Hover
		if err := r.removeLayer(spec.ID); err != nil {
			return err
		}
		r.logger.Debug("layer re-created", "layer", spec.ID, "source", spec.Source, "type", spec.Kind)
	}

	if spec.Data != nil || !r.surface.HasSource(spec.Source) {
		if err := r.upsertSource(spec.Source, spec.Data); err != nil {
			return err
		}
	}

	if r.surface.HasLayer(spec.ID) {
		for _, name := range sortedKeys(spec.Paint) {
			if err := r.surface.SetPaintProperty(spec.ID, name, spec.Paint[name]); err != nil {
				return fmt.Errorf("update layer %s: %w", spec.ID, err)
			}
		}
	} else {
		if err := r.surface.AddLayer(spec, beforeID); err != nil {
			return fmt.Errorf("add layer %s: %w", spec.ID, err)
		}
		r.logger.Debug("layer added", "layer", spec.ID, "source", spec.Source, "type", spec.Kind)
	}

	e, ok := r.entries[spec.ID]
	if !ok {
		e = &Entry{ID: spec.ID}
		r.entries[spec.ID] = e
	}
	e.SourceID = spec.Source
	e.Kind = spec.Kind
	e.BeforeID = beforeID
	e.UpdatedAt = r.clock.Now()
	r.layouts[spec.ID] = maps.Clone(spec.Layout)

	if rehover {
		r.attachHover(spec.ID)
	}
	return nil
}

func (r *Registry) changed(e *Entry, spec LayerSpec) bool {
	return e.SourceID != spec.Source || e.Kind != spec.Kind || !reflect.DeepEqual(r.layouts[spec.ID], spec.Layout)
}

// RemoveLayer detaches the layer's hover handlers, removes the layer and
// removes its source unless another registered layer still renders from it.
// Removing an absent layer is a no-op.
func (r *Registry) RemoveLayer(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLayer(id)
}

func (r *Registry) removeLayer(id string) error {
	e, known := r.entries[id]
	onSurface := r.surface.HasLayer(id)
	if !known && !onSurface {
		return nil
	}

	r.detachHover(id)

	if onSurface {
		if err := r.surface.RemoveLayer(id); err != nil {
			return fmt.Errorf("remove layer %s: %w", id, err)
		}
	}
	delete(r.entries, id)
	delete(r.layouts, id)
	r.logger.Debug("layer removed", "layer", id)

	if !known {
		return nil
	}
	if r.sourceShared(e.SourceID) || !r.surface.HasSource(e.SourceID) {
		return nil
	}
	if err := r.surface.RemoveSource(e.SourceID); err != nil {
		return fmt.Errorf("remove source %s: %w", e.SourceID, err)
	}
	return nil
}

// AttachHover subscribes mousemove/mouseleave handlers that track the
// feature under the pointer. Attaching twice keeps a single pair.
func (r *Registry) AttachHover(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return fmt.Errorf("attach hover %s: %w", id, ErrUnknownLayer)
	}
	r.attachHover(id)
	return nil
}

func (r *Registry) attachHover(id string) {
	if _, attached := r.hovers[id]; attached {
		return
	}
	h := &hoverHandle{}
	h.move = r.surface.On(EventMouseMove, id, func(ev Event) {
		r.setHovered(id, h, ev.Properties)
	})
	h.leave = r.surface.On(EventMouseLeave, id, func(Event) {
		r.clearHovered(id)
	})
	r.hovers[id] = h
	r.entries[id].Hover = true
}

// DetachHover removes the hover handlers of a layer. Detaching a layer
// without handlers is a no-op.
func (r *Registry) DetachHover(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detachHover(id)
}

func (r *Registry) detachHover(id string) {
	h, ok := r.hovers[id]
	if !ok {
		return
	}
	r.surface.Off(h.move)
	r.surface.Off(h.leave)
	r.hoverMu.Lock()
	h.detached = true
	r.hoverMu.Unlock()
	delete(r.hovers, id)
	if e, ok := r.entries[id]; ok {
		e.Hover = false
	}
	r.clearHovered(id)
}

// Hovered returns the properties of the feature currently under the pointer
// on a layer.
func (r *Registry) Hovered(id string) (map[string]any, bool) {
	r.hoverMu.RLock()
	defer r.hoverMu.RUnlock()
	props, ok := r.hovered[id]
	return maps.Clone(props), ok
}

// Has reports whether the registry tracks a layer.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// Layers returns the tracked layers sorted by id.
func (r *Registry) Layers() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HoverHandlers returns the number of layers with attached hover handlers.
func (r *Registry) HoverHandlers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hovers)
}

func (r *Registry) sourceShared(sourceID string) bool {
	for _, e := range r.entries {
		if e.SourceID == sourceID {
			return true
		}
	}
	return false
}

func (r *Registry) setHovered(id string, h *hoverHandle, props map[string]any) {
	r.hoverMu.Lock()
	defer r.hoverMu.Unlock()
	if h.detached {
		return
	}
	if props == nil {
		props = map[string]any{}
	}
	r.hovered[id] = maps.Clone(props)
}

func (r *Registry) clearHovered(id string) {
	r.hoverMu.Lock()
	defer r.hoverMu.Unlock()
	delete(r.hovered, id)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
