package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/hazard-map-sync/internal/config"
	"github.com/couchcryptid/hazard-map-sync/internal/layers"
	"github.com/couchcryptid/hazard-map-sync/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb/geojson"
	kafkago "github.com/segmentio/kafka-go"
)

// Layer mutation operations.
const (
	OpSourceAdd    = "source.add"
	OpSourceData   = "source.set_data"
	OpSourceRemove = "source.remove"
	OpLayerAdd     = "layer.add"
	OpLayerPaint   = "layer.paint"
	OpLayerRemove  = "layer.remove"
)

const publishTimeout = 5 * time.Second

// LayerEvent is one surface mutation as seen by a map client replaying the
// topic.
type LayerEvent struct {
	Op        string                     `json:"op"`
	LayerID   string                     `json:"layer_id,omitempty"`
	SourceID  string                     `json:"source_id,omitempty"`
	BeforeID  string                     `json:"before_id,omitempty"`
	Layer     *layers.LayerSpec          `json:"layer,omitempty"`
	Property  string                     `json:"property,omitempty"`
	Value     any                        `json:"value,omitempty"`
	Data      *geojson.FeatureCollection `json:"data,omitempty"`
	Features  int                        `json:"features"`
	EmittedAt time.Time                  `json:"emitted_at"`
}

// Key groups events of one layer or source on the same partition so their
// order is preserved.
func (e LayerEvent) Key() string {
	if e.LayerID != "" {
		return e.LayerID
	}
	return e.SourceID
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// PublishingSurface decorates a Surface and publishes every successful
// mutation to a Kafka topic. Publishing failures are logged and counted but
// never fail the mutation itself.
type PublishingSurface struct {
	layers.Surface
	writer  messageWriter
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWriter creates an asynchronous producer for the layer event topic.
// Delivery failures are reported to the logger and metrics.
func NewWriter(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaLayerTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		Async:        true,
		Completion: func(msgs []kafkago.Message, err error) {
			if err == nil {
				return
			}
			if metrics != nil {
				metrics.PublishErrors.Add(float64(len(msgs)))
			}
			logger.Error("layer event delivery failed", "messages", len(msgs), "error", err)
		},
	}
}

// NewPublishingSurface wraps inner so that its mutations are published with w.
func NewPublishingSurface(inner layers.Surface, w messageWriter, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *PublishingSurface {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PublishingSurface{Surface: inner, writer: w, clock: clock, metrics: metrics, logger: logger}
}

func (s *PublishingSurface) AddSource(id string, data *geojson.FeatureCollection) error {
	if err := s.Surface.AddSource(id, data); err != nil {
		return err
	}
	s.publish(LayerEvent{Op: OpSourceAdd, SourceID: id, Data: data, Features: featureCount(data)})
	return nil
}

func (s *PublishingSurface) SetData(id string, data *geojson.FeatureCollection) error {
	if err := s.Surface.SetData(id, data); err != nil {
		return err
	}
	s.publish(LayerEvent{Op: OpSourceData, SourceID: id, Data: data, Features: featureCount(data)})
	return nil
}

func (s *PublishingSurface) AddLayer(spec layers.LayerSpec, beforeID string) error {
	if err := s.Surface.AddLayer(spec, beforeID); err != nil {
		return err
	}
	s.publish(LayerEvent{Op: OpLayerAdd, LayerID: spec.ID, SourceID: spec.Source, BeforeID: beforeID, Layer: &spec})
	return nil
}

func (s *PublishingSurface) SetPaintProperty(layerID, name string, value any) error {
	if err := s.Surface.SetPaintProperty(layerID, name, value); err != nil {
		return err
	}
	s.publish(LayerEvent{Op: OpLayerPaint, LayerID: layerID, Property: name, Value: value})
	return nil
}

func (s *PublishingSurface) RemoveLayer(id string) error {
	if err := s.Surface.RemoveLayer(id); err != nil {
		return err
	}
	s.publish(LayerEvent{Op: OpLayerRemove, LayerID: id})
	return nil
}

func (s *PublishingSurface) RemoveSource(id string) error {
	if err := s.Surface.RemoveSource(id); err != nil {
		return err
	}
	s.publish(LayerEvent{Op: OpSourceRemove, SourceID: id})
	return nil
}

// Close flushes pending events and closes the producer.
func (s *PublishingSurface) Close() error {
	return s.writer.Close()
}

func (s *PublishingSurface) publish(ev LayerEvent) {
	ev.EmittedAt = s.clock.Now().UTC()
	msg, err := serializeToMessage(ev)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err = s.writer.WriteMessages(ctx, msg)
		cancel()
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.PublishErrors.Inc()
		}
		s.logger.Error("layer event publish failed", "op", ev.Op, "key", ev.Key(), "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.LayerEvents.WithLabelValues(ev.Op).Inc()
	}
}

// serializeToMessage marshals a LayerEvent into a Kafka message.
func serializeToMessage(ev LayerEvent) (kafkago.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize layer event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(ev.Key()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "op", Value: []byte(ev.Op)},
			{Key: "emitted_at", Value: []byte(ev.EmittedAt.Format(time.RFC3339))},
		},
	}, nil
}

func featureCount(fc *geojson.FeatureCollection) int {
	if fc == nil {
		return 0
	}
	return len(fc.Features)
}
