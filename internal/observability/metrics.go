package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "vegetl"

// Metrics holds the Prometheus counters, histograms, and gauges for one run.
// Runs are short-lived, so metrics live in their own registry and are pushed
// to a Pushgateway when the run ends.
type Metrics struct {
	RowsRead    *prometheus.CounterVec // labels: table
	RowsWritten *prometheus.CounterVec // labels: table, sink
	LoadErrors  *prometheus.CounterVec // labels: table, sink
	Findings    *prometheus.CounterVec // labels: table, severity
	RunDuration *prometheus.HistogramVec

	// Taxonomy resolution.
	NameLookups *prometheus.CounterVec // labels: outcome={matched,unmatched}

	// Reference data.
	ReferenceRows *prometheus.GaugeVec // labels: table

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates all run metrics and registers them with a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RowsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_read_total",
			Help:      "Source rows read per target table.",
		}, []string{"table"}),
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Processed rows written per target table and sink.",
		}, []string{"table", "sink"}),
		LoadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_errors_total",
			Help:      "Failed load attempts per target table and sink.",
		}, []string{"table", "sink"}),
		Findings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "qc_findings_total",
			Help:      "Quality-control findings by table and severity.",
		}, []string{"table", "severity"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete extract-transform-load run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"table"}),
		NameLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "name_lookups_total",
			Help:      "Taxon name resolutions against the checklist by outcome.",
		}, []string{"outcome"}),
		ReferenceRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reference_rows",
			Help:      "Rows loaded per reference table.",
		}, []string{"table"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.RowsRead,
		m.RowsWritten,
		m.LoadErrors,
		m.Findings,
		m.RunDuration,
		m.NameLookups,
		m.ReferenceRows,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
	)

	return m
}

// Gatherer exposes the run registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Push sends the run's metrics to a Pushgateway under job, grouped by
// dataset.
func (m *Metrics) Push(ctx context.Context, url, job, dataset string) error {
	err := push.New(url, job).
		Gatherer(m.registry).
		Grouping("dataset", dataset).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
