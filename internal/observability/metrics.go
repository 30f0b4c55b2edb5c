package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hazard_map"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// layer sync service.
type Metrics struct {
	ServiceRunning prometheus.Gauge

	// Snapshot fetch metrics.
	SnapshotRequests      *prometheus.CounterVec   // labels: hazard, outcome={success,error,canceled}
	SnapshotFetchDuration *prometheus.HistogramVec // labels: hazard
	SnapshotCache         *prometheus.CounterVec   // labels: tier={memory,redis}, result={hit,miss}

	// Feature building metrics.
	FeaturesBuilt *prometheus.GaugeVec // labels: layer
	SampleStride  *prometheus.GaugeVec // labels: layer

	// Layer registry metrics.
	LayersActive     prometheus.Gauge
	LayerEvents      *prometheus.CounterVec // labels: op
	PublishErrors    prometheus.Counter
	LandMaskPolygons prometheus.Gauge
	LocationsIndexed prometheus.Gauge
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ServiceRunning,
		m.SnapshotRequests,
		m.SnapshotFetchDuration,
		m.SnapshotCache,
		m.FeaturesBuilt,
		m.SampleStride,
		m.LayersActive,
		m.LayerEvents,
		m.PublishErrors,
		m.LandMaskPolygons,
		m.LocationsIndexed,
	)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ServiceRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_running",
			Help:      "1 when the service is active, 0 when shut down.",
		}),
		SnapshotRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_requests_total",
			Help:      "Snapshot requests by hazard channel and outcome.",
		}, []string{"hazard", "outcome"}),
		SnapshotFetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_fetch_duration_seconds",
			Help:      "Hazard backend snapshot request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"hazard"}),
		SnapshotCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_cache_total",
			Help:      "Snapshot cache lookups by tier and result.",
		}, []string{"tier", "result"}),
		FeaturesBuilt: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "layer_features",
			Help:      "Number of features in the last data pushed to a layer.",
		}, []string{"layer"}),
		SampleStride: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sample_stride",
			Help:      "Down-sampling stride used for the last grid of a layer.",
		}, []string{"layer"}),
		LayersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "layers_active",
			Help:      "Number of layers currently present on the surface.",
		}),
		LayerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layer_events_total",
			Help:      "Layer mutations published to the map client, by operation.",
		}, []string{"op"}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layer_publish_errors_total",
			Help:      "Layer mutation events that could not be published.",
		}),
		LandMaskPolygons: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "land_mask_polygons",
			Help:      "Polygons indexed in the land mask, 0 until loaded.",
		}),
		LocationsIndexed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "locations_indexed",
			Help:      "Named locations loaded from boundary datasets.",
		}),
	}
}
