package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the pivot pipeline.
type Metrics struct {
	RunsTotal    *prometheus.CounterVec // labels: outcome={ok,empty,corrupt,invalid,error}
	RunsInFlight prometheus.Gauge
	RunDuration  prometheus.Histogram

	// Stage metrics.
	InnerArchivesExtracted prometheus.Counter
	InnerArchivesSkipped   prometheus.Counter
	FilesLoaded            prometheus.Counter
	FilesSkipped           prometheus.Counter
	RowsConsolidated       prometheus.Counter
	WideTableStations      prometheus.Histogram
	StationsRemoved        prometheus.Counter

	// Summary publishing.
	SummariesPublished   prometheus.Counter
	SummaryPublishErrors prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return RegisterMetrics(prometheus.DefaultRegisterer)
}

// RegisterMetrics creates all pipeline metrics and registers them with reg.
func RegisterMetrics(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(
		m.RunsTotal,
		m.RunsInFlight,
		m.RunDuration,
		m.InnerArchivesExtracted,
		m.InnerArchivesSkipped,
		m.FilesLoaded,
		m.FilesSkipped,
		m.RowsConsolidated,
		m.WideTableStations,
		m.StationsRemoved,
		m.SummariesPublished,
		m.SummaryPublishErrors,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "station_pivot",
			Name:      "runs_total",
			Help:      "Pipeline invocations by outcome.",
		}, []string{"outcome"}),
		RunsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "station_pivot",
			Name:      "runs_in_flight",
			Help:      "Pipeline invocations currently running.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "station_pivot",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete unpack-load-reshape-export run.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		InnerArchivesExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "station_pivot",
			Name:      "inner_archives_extracted_total",
			Help:      "Inner archives extracted from uploads.",
		}),
		InnerArchivesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "station_pivot",
			Name:      "inner_archives_skipped_total",
			Help:      "Inner archives skipped because they could not be opened.",
		}),
		FilesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "station_pivot",
			Name:      "files_loaded_total",
			Help:      "CSV files parsed successfully.",
		}),
		FilesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "station_pivot",
			Name:      "files_skipped_total",
			Help:      "CSV files skipped because they could not be parsed.",
		}),
		RowsConsolidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "station_pivot",
			Name:      "rows_consolidated_total",
			Help:      "Observation rows in consolidated tables.",
		}),
		WideTableStations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "station_pivot",
			Name:      "wide_table_stations",
			Help:      "Station columns per wide table before filtering.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		}),
		StationsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "station_pivot",
			Name:      "stations_removed_total",
			Help:      "Station columns dropped by the completeness filter.",
		}),
		SummariesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "station_pivot",
			Name:      "summaries_published_total",
			Help:      "Run summaries written to the summary topic.",
		}),
		SummaryPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "station_pivot",
			Name:      "summary_publish_errors_total",
			Help:      "Run summaries that could not be published.",
		}),
	}
}
