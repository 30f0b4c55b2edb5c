package layers

import (
	"fmt"
	"maps"
	"sync"

	"github.com/paulmach/orb/geojson"
)

type handlerRef struct {
	sub Subscription
	fn  Handler
}

// MemorySurface is an in-process Surface. It keeps layers in draw order and
// dispatches events emitted through Emit.
type MemorySurface struct {
	mu       sync.RWMutex
	sources  map[string]*geojson.FeatureCollection
	layers   []LayerSpec
	handlers map[uint64]handlerRef
	nextID   uint64
}

// NewMemorySurface returns an empty surface.
func NewMemorySurface() *MemorySurface {
	return &MemorySurface{
		sources:  make(map[string]*geojson.FeatureCollection),
		handlers: make(map[uint64]handlerRef),
	}
}

func (s *MemorySurface) AddSource(id string, data *geojson.FeatureCollection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sources[id]; ok {
		return fmt.Errorf("source %q: %w", id, ErrDuplicate)
	}
	s.sources[id] = orEmpty(data)
	return nil
}

func (s *MemorySurface) SetData(id string, data *geojson.FeatureCollection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sources[id]; !ok {
		return fmt.Errorf("source %q: %w", id, ErrUnknownSource)
	}
	s.sources[id] = orEmpty(data)
	return nil
}

// AddLayer inserts the layer before beforeID when that layer exists, on top
// otherwise.
func (s *MemorySurface) AddLayer(spec LayerSpec, beforeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.layerIndex(spec.ID) >= 0 {
		return fmt.Errorf("layer %q: %w", spec.ID, ErrDuplicate)
	}
	if _, ok := s.sources[spec.Source]; !ok {
		return fmt.Errorf("layer %q source %q: %w", spec.ID, spec.Source, ErrUnknownSource)
	}
	spec.Data = nil
	spec.Paint = maps.Clone(spec.Paint)

	at := len(s.layers)
	if beforeID != "" {
		if i := s.layerIndex(beforeID); i >= 0 {
			at = i
		}
	}
	s.layers = append(s.layers, LayerSpec{})
	copy(s.layers[at+1:], s.layers[at:])
	s.layers[at] = spec
	return nil
}

func (s *MemorySurface) SetPaintProperty(layerID, name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.layerIndex(layerID)
	if i < 0 {
		return fmt.Errorf("layer %q: %w", layerID, ErrUnknownLayer)
	}
	if s.layers[i].Paint == nil {
		s.layers[i].Paint = make(map[string]any)
	}
	s.layers[i].Paint[name] = value
	return nil
}

func (s *MemorySurface) RemoveLayer(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.layerIndex(id)
	if i < 0 {
		return fmt.Errorf("layer %q: %w", id, ErrUnknownLayer)
	}
	s.layers = append(s.layers[:i], s.layers[i+1:]...)
	return nil
}

// RemoveSource fails while any layer still renders from the source.
func (s *MemorySurface) RemoveSource(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sources[id]; !ok {
		return fmt.Errorf("source %q: %w", id, ErrUnknownSource)
	}
	for _, l := range s.layers {
		if l.Source == id {
			return fmt.Errorf("source %q used by layer %q: %w", id, l.ID, ErrSourceInUse)
		}
	}
	delete(s.sources, id)
	return nil
}

func (s *MemorySurface) On(event, layerID string, h Handler) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	sub := Subscription{ID: s.nextID, Event: event, LayerID: layerID}
	s.handlers[sub.ID] = handlerRef{sub: sub, fn: h}
	return sub
}

func (s *MemorySurface) Off(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, sub.ID)
}

func (s *MemorySurface) HasLayer(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.layerIndex(id) >= 0
}

func (s *MemorySurface) HasSource(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sources[id]
	return ok
}

// Emit delivers ev to every handler registered for (event, layerID) and
// returns how many were called. Handlers run without the surface lock held.
func (s *MemorySurface) Emit(event, layerID string, ev Event) int {
	s.mu.RLock()
	if s.layerIndex(layerID) < 0 {
		s.mu.RUnlock()
		return 0
	}
	var fns []Handler
	for _, h := range s.handlers {
		if h.sub.Event == event && h.sub.LayerID == layerID {
			fns = append(fns, h.fn)
		}
	}
	s.mu.RUnlock()

	ev.Type = event
	ev.LayerID = layerID
	for _, fn := range fns {
		fn(ev)
	}
	return len(fns)
}

// Source returns the data currently bound to a source.
func (s *MemorySurface) Source(id string) (*geojson.FeatureCollection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fc, ok := s.sources[id]
	return fc, ok
}

// SurfaceState is a point-in-time view of a MemorySurface.
type SurfaceState struct {
	Layers        []LayerSpec    `json:"layers"`
	Sources       map[string]int `json:"sources"` // feature count per source
	Subscriptions int            `json:"subscriptions"`
}

// Snapshot returns the layers in draw order, bottom first.
func (s *MemorySurface) Snapshot() SurfaceState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := SurfaceState{
		Layers:        make([]LayerSpec, len(s.layers)),
		Sources:       make(map[string]int, len(s.sources)),
		Subscriptions: len(s.handlers),
	}
	copy(st.Layers, s.layers)
	for id, fc := range s.sources {
		st.Sources[id] = len(fc.Features)
	}
	return st
}

func (s *MemorySurface) layerIndex(id string) int {
	for i, l := range s.layers {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func orEmpty(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	if fc == nil {
		return geojson.NewFeatureCollection()
	}
	return fc
}
