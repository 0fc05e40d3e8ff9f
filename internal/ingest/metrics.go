package ingest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	dbpkg "adsinsight/internal/db"
)

// Metrics holds the ingest collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	rows     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the ingest collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "adsinsight",
				Name:      "ingest_runs_total",
				Help:      "Total number of ingest runs by source and terminal status.",
			},
			[]string{"source", "status"},
		),
		rows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "adsinsight",
				Name:      "ingest_rows_total",
				Help:      "Rows seen by the ingest pipeline by dataset and outcome.",
			},
			[]string{"dataset", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "adsinsight",
				Name:      "ingest_duration_seconds",
				Help:      "Histogram of ingest run durations in seconds.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"source"},
		),
	}
	reg.MustRegister(m.runs, m.rows, m.duration)
	return m
}

func (m *Metrics) observe(source dbpkg.ImportSource, status dbpkg.ApplyStatus, summary dbpkg.ApplySummary, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(source), string(status)).Inc()
	m.duration.WithLabelValues(string(source)).Observe(elapsed.Seconds())
	for ds, c := range summary {
		m.rows.WithLabelValues(string(ds), "received").Add(float64(c.Received))
		m.rows.WithLabelValues(string(ds), "mapped").Add(float64(c.Mapped))
		m.rows.WithLabelValues(string(ds), "skipped").Add(float64(c.Skipped))
		m.rows.WithLabelValues(string(ds), "upserted").Add(float64(c.Upserted))
	}
}
