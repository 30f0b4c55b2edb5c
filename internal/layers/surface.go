// Package layers keeps the visual layers of a map surface in sync with the
// processed hazard and boundary data.
package layers

import (
	"errors"

	"github.com/paulmach/orb/geojson"
)

// Kind is the render type of a layer.
type Kind string

const (
	KindFill    Kind = "fill"
	KindLine    Kind = "line"
	KindCircle  Kind = "circle"
	KindSymbol  Kind = "symbol"
	KindHeatmap Kind = "heatmap"
)

// Pointer events delivered by a surface.
const (
	EventMouseMove  = "mousemove"
	EventMouseLeave = "mouseleave"
	EventClick      = "click"
)

var (
	ErrUnknownLayer  = errors.New("unknown layer")
	ErrUnknownSource = errors.New("unknown source")
	ErrDuplicate     = errors.New("already exists")
	ErrSourceInUse   = errors.New("source in use")
)

// LayerSpec describes a layer to render. Data, when set, is pushed to the
// layer's source before the layer is added or refreshed.
type LayerSpec struct {
	ID     string                     `json:"id"`
	Source string                     `json:"source"`
	Kind   Kind                       `json:"type"`
	Paint  map[string]any             `json:"paint,omitempty"`
	Layout map[string]any             `json:"layout,omitempty"`
	Filter []any                      `json:"filter,omitempty"`
	Data   *geojson.FeatureCollection `json:"-"`
}

// Event is a pointer event on a layer.
type Event struct {
	Type       string         `json:"type"`
	LayerID    string         `json:"layer_id"`
	Lon        float64        `json:"lon"`
	Lat        float64        `json:"lat"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Handler receives pointer events.
type Handler func(Event)

// Subscription identifies a registered handler so it can be removed.
type Subscription struct {
	ID      uint64
	Event   string
	LayerID string
}

// Surface is the rendering engine boundary. Implementations must be safe for
// concurrent use.
type Surface interface {
	AddSource(id string, data *geojson.FeatureCollection) error
	SetData(id string, data *geojson.FeatureCollection) error
	AddLayer(spec LayerSpec, beforeID string) error
	SetPaintProperty(layerID, name string, value any) error
	RemoveLayer(id string) error
	RemoveSource(id string) error
	On(event, layerID string, h Handler) Subscription
	Off(sub Subscription)
	HasLayer(id string) bool
	HasSource(id string) bool
}
