package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "park_waits"

// Metrics holds the Prometheus counters, histograms, and gauges for the hours
// pipeline and the batch jobs.
type Metrics struct {
	MessagesConsumed prometheus.Counter
	ChangesPublished prometheus.Counter
	ParseErrors      prometheus.Counter
	PipelineRunning  prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Versioned hours store.
	HoursVersions *prometheus.CounterVec // labels: outcome={created,unchanged,changed,failed}
	Imputations   *prometheus.CounterVec // labels: outcome={predicted,no_donor,failed}

	// Posted aggregates.
	AggregateRows          prometheus.Gauge
	AggregateBuildDuration prometheus.Histogram
	PostedLookups          *prometheus.CounterVec // labels: level

	// Entity lookups.
	EntityCache *prometheus.CounterVec // labels: result={hit,miss}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.MessagesConsumed,
		m.ChangesPublished,
		m.ParseErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.HoursVersions,
		m.Imputations,
		m.AggregateRows,
		m.AggregateBuildDuration,
		m.PostedLookups,
		m.EntityCache,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid "already
// registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total hours feed messages read from Kafka.",
		}),
		ChangesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hours_changes_published_total",
			Help:      "Total official hours change events published.",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Total hours feed messages that could not be parsed.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the hours pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete extract-apply-commit cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		HoursVersions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hours_versions_total",
			Help:      "Official hours rows applied, by outcome.",
		}, []string{"outcome"}),
		Imputations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hours_imputations_total",
			Help:      "Donor imputation attempts, by outcome.",
		}, []string{"outcome"}),
		AggregateRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "posted_aggregate_rows",
			Help:      "Rows in the last built posted aggregate table.",
		}),
		AggregateBuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "posted_aggregate_build_duration_seconds",
			Help:      "Duration of a full posted aggregate rebuild.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		PostedLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posted_lookups_total",
			Help:      "Posted wait predictions served, by fallback level.",
		}, []string{"level"}),
		EntityCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entity_cache_total",
			Help:      "Entity cache lookups by result.",
		}, []string{"result"}),
	}
}
