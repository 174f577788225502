// Package metrics holds the Prometheus collectors the service exposes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ImportMetrics counts import activity by kind (grades, roster, curriculum)
// and outcome.
type ImportMetrics struct {
	Runs     *prometheus.CounterVec
	Rows     *prometheus.CounterVec
	Warnings *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

func NewImportMetrics(reg prometheus.Registerer) *ImportMetrics {
	factory := promauto.With(reg)
	return &ImportMetrics{
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "records_import_runs_total",
			Help: "Import runs by kind and outcome.",
		}, []string{"kind", "outcome"}),
		Rows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "records_import_rows_total",
			Help: "Rows processed by kind and disposition.",
		}, []string{"kind", "disposition"}),
		Warnings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "records_import_warnings_total",
			Help: "Warnings emitted by import runs.",
		}, []string{"kind"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "records_import_duration_seconds",
			Help:    "Wall time of import runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
	}
}

// ObserveRun records the standard per-run gauges in one call.
func (m *ImportMetrics) ObserveRun(kind, outcome string, seconds float64, created, updated, skipped, warnings int) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(kind, outcome).Inc()
	m.Duration.WithLabelValues(kind).Observe(seconds)
	m.Rows.WithLabelValues(kind, "created").Add(float64(created))
	m.Rows.WithLabelValues(kind, "updated").Add(float64(updated))
	m.Rows.WithLabelValues(kind, "skipped").Add(float64(skipped))
	m.Warnings.WithLabelValues(kind).Add(float64(warnings))
}
