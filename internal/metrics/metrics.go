// Package metrics exposes prometheus instrumentation for the pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the pipeline's prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	TransactionsProcessed prometheus.Counter
	TransactionsFailed    prometheus.Counter
	TransactionsDropped   prometheus.Counter
	AlertsCreated         *prometheus.CounterVec
	QueueDepth            prometheus.Gauge
	ProcessingDuration    prometheus.Histogram
	FinalScores           prometheus.Histogram
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		TransactionsProcessed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "amlguard_transactions_processed_total",
			Help: "Total number of transactions that completed the decision pipeline",
		}),
		TransactionsFailed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "amlguard_transactions_failed_total",
			Help: "Total number of transactions dropped due to pipeline errors",
		}),
		TransactionsDropped: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "amlguard_transactions_dropped_total",
			Help: "Total number of transactions rejected because the ingest queue was full",
		}),
		AlertsCreated: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "amlguard_alerts_created_total",
			Help: "Total number of alerts created",
		}, []string{"alert_type", "severity"}),
		QueueDepth: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "amlguard_queue_depth",
			Help: "Current number of transactions waiting in the ingest queue",
		}),
		ProcessingDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "amlguard_processing_duration_seconds",
			Help:    "Time taken to process a transaction end to end",
			Buckets: prometheus.DefBuckets,
		}),
		FinalScores: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "amlguard_final_risk_score",
			Help:    "Distribution of final risk scores",
			Buckets: []float64{0, 2, 4, 6, 8, 10},
		}),
	}
}

// Handler returns the /metrics HTTP handler for this registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
