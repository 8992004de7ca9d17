// Package telemetry holds the Prometheus instruments for the document
// service.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors the pipeline and HTTP layer update. Build
// one per process with New and register it on a registry owned by the
// caller.
type Metrics struct {
	DocumentsProcessed *prometheus.CounterVec
	ProcessingSeconds  prometheus.Histogram
	QuestionsTotal     prometheus.Counter
	ActiveSessions     prometheus.Gauge
	RemovalsTotal      prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DocumentsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docsense",
			Name:      "documents_processed_total",
			Help:      "Documents that reached a terminal state, by outcome.",
		}, []string{"status"}),
		ProcessingSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docsense",
			Name:      "processing_duration_seconds",
			Help:      "Wall time of the ingestion pipeline per document.",
			Buckets:   prometheus.DefBuckets,
		}),
		QuestionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docsense",
			Name:      "questions_total",
			Help:      "Questions answered across all sessions.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "docsense",
			Name:      "active_sessions",
			Help:      "Sessions currently held in the store.",
		}),
		RemovalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docsense",
			Name:      "sessions_removed_total",
			Help:      "Sessions removed from the store by TTL sweeps, capacity eviction or explicit delete.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.DocumentsProcessed, m.ProcessingSeconds, m.QuestionsTotal, m.ActiveSessions, m.RemovalsTotal)
	}
	return m
}
