package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the backfill run.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	RunDuration     prometheus.Histogram

	// Fetch stage metrics.
	FetchRequests *prometheus.CounterVec // labels: outcome={success,error}
	FetchDuration prometheus.Histogram

	// Model stage metrics.
	ModelRequests *prometheus.CounterVec // labels: outcome={success,error}
	ModelPolls    prometheus.Counter
	ModelDuration prometheus.Histogram

	// Parse and sink metrics.
	RowsParsed       prometheus.Counter
	RowsDropped      prometheus.Counter
	RecordsWritten   prometheus.Counter
	RecordsPublished prometheus.Counter
}

// NewMetrics creates and registers all backfill metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "storm_backfill",
			Name:      "pipeline_running",
			Help:      "1 while a backfill run is active, 0 otherwise.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storm_backfill",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete fetch-refine-parse-write run.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storm_backfill",
			Name:      "fetch_requests_total",
			Help:      "Season page fetches by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storm_backfill",
			Name:      "fetch_duration_seconds",
			Help:      "Season page fetch duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		ModelRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storm_backfill",
			Name:      "model_requests_total",
			Help:      "Model predictions by outcome.",
		}, []string{"outcome"}),
		ModelPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_backfill",
			Name:      "model_polls_total",
			Help:      "Status polls issued while a prediction was pending.",
		}),
		ModelDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storm_backfill",
			Name:      "model_duration_seconds",
			Help:      "End-to-end prediction duration in seconds, polling included.",
			Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		RowsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_backfill",
			Name:      "rows_parsed_total",
			Help:      "Data rows recovered from the model completion.",
		}),
		RowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_backfill",
			Name:      "rows_dropped_total",
			Help:      "Completion rows dropped for not matching the header shape.",
		}),
		RecordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_backfill",
			Name:      "records_written_total",
			Help:      "Rows written to the output file.",
		}),
		RecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storm_backfill",
			Name:      "records_published_total",
			Help:      "Reports published to the backfill topic.",
		}),
	}

	prometheus.MustRegister(
		m.PipelineRunning,
		m.RunDuration,
		m.FetchRequests,
		m.FetchDuration,
		m.ModelRequests,
		m.ModelPolls,
		m.ModelDuration,
		m.RowsParsed,
		m.RowsDropped,
		m.RecordsWritten,
		m.RecordsPublished,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		PipelineRunning:  prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "storm_backfill", Name: "pipeline_running"}),
		RunDuration:      prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "storm_backfill", Name: "run_duration_seconds"}),
		FetchRequests:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "storm_backfill", Name: "fetch_requests_total"}, []string{"outcome"}),
		FetchDuration:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "storm_backfill", Name: "fetch_duration_seconds"}),
		ModelRequests:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "storm_backfill", Name: "model_requests_total"}, []string{"outcome"}),
		ModelPolls:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "storm_backfill", Name: "model_polls_total"}),
		ModelDuration:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "storm_backfill", Name: "model_duration_seconds"}),
		RowsParsed:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "storm_backfill", Name: "rows_parsed_total"}),
		RowsDropped:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "storm_backfill", Name: "rows_dropped_total"}),
		RecordsWritten:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "storm_backfill", Name: "records_written_total"}),
		RecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "storm_backfill", Name: "records_published_total"}),
	}
}
