//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hazard-map-sync/internal/adapter/backend"
	"github.com/couchcryptid/hazard-map-sync/internal/adapter/kafka"
	"github.com/couchcryptid/hazard-map-sync/internal/config"
	"github.com/couchcryptid/hazard-map-sync/internal/domain"
	"github.com/couchcryptid/hazard-map-sync/internal/layers"
	"github.com/couchcryptid/hazard-map-sync/internal/observability"
	"github.com/couchcryptid/hazard-map-sync/internal/pipeline"
	"github.com/couchcryptid/hazard-map-sync/internal/snapshot"
)

const testLayerTopic = "test-layer-events"

// TestLayerEventsReachKafka shows a hazard through the real backend client
// and checks that every surface mutation lands on the topic in order.
func TestLayerEventsReachKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testLayerTopic)

	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()
	clock := clockwork.NewRealClock()
	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaLayerTopic: testLayerTopic}

	memory := layers.NewMemorySurface()
	publisher := kafka.NewPublishingSurface(memory, kafka.NewWriter(cfg, metrics, logger), clock, metrics, logger)

	srv, _ := fakeBackend(t)
	p := pipeline.New(pipeline.Deps{
		Orchestrator: snapshot.New(backend.NewClient(srv.URL, 10*time.Second, logger), clock, metrics, logger),
		Registry:     layers.NewRegistry(publisher, clock, logger),
		Emitter:      memory,
		Clock:        clock,
		Metrics:      metrics,
		Logger:       logger,
	})

	st, err := p.ShowHazard(ctx, pipeline.HazardRequest{Hazard: domain.HazardWind, Time: snapshotTime})
	require.NoError(t, err)
	require.Equal(t, pipeline.StateReady, st.State)
	require.NoError(t, p.HideHazard(domain.HazardWind))

	// Close flushes the asynchronous writer.
	require.NoError(t, publisher.Close())

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testLayerTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	t.Cleanup(func() { _ = reader.Close() })

	want := []struct{ op, key string }{
		{kafka.OpSourceAdd, "wind-source"},
		{kafka.OpLayerAdd, "wind-heatmap"},
		{kafka.OpSourceAdd, "wind-arrows-source"},
		{kafka.OpLayerAdd, "wind-arrows"},
		{kafka.OpLayerRemove, "wind-heatmap"},
		{kafka.OpSourceRemove, "wind-source"},
		{kafka.OpLayerRemove, "wind-arrows"},
		{kafka.OpSourceRemove, "wind-arrows-source"},
	}
	for i, w := range want {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := reader.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read event %d", i)

		var ev kafka.LayerEvent
		require.NoError(t, json.Unmarshal(msg.Value, &ev))
		assert.Equal(t, w.op, ev.Op, "event %d", i)
		assert.Equal(t, w.key, string(msg.Key), "event %d", i)
		if ev.Op == kafka.OpSourceAdd && ev.SourceID == "wind-source" {
			assert.Equal(t, 4, ev.Features)
			require.NotNil(t, ev.Data)
			assert.Len(t, ev.Data.Features, 4)
		}
	}
}
