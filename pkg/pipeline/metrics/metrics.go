// Package metrics exposes Prometheus instrumentation for the analysis
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts analysis requests by outcome and query type.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "datalens",
		Subsystem: "pipeline",
		Name:      "requests_total",
		Help:      "Analysis requests by outcome and classified query type.",
	}, []string{"outcome", "query_type"})

	// RequestDuration tracks end-to-end request latency in seconds.
	RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "datalens",
		Subsystem: "pipeline",
		Name:      "request_duration_seconds",
		Help:      "End-to-end analysis request latency.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// GenerationAttempts observes how many attempts SQL generation needed.
	GenerationAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "datalens",
		Subsystem: "pipeline",
		Name:      "generation_attempts",
		Help:      "SQL generation attempts per step, including retries.",
		Buckets:   []float64{1, 2, 3},
	})

	// RowsReturned observes result-set sizes delivered to callers.
	RowsReturned = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "datalens",
		Subsystem: "pipeline",
		Name:      "rows_returned",
		Help:      "Rows delivered per analysis request.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	})

	// StepsExecuted counts executed plan steps by status.
	StepsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "datalens",
		Subsystem: "pipeline",
		Name:      "steps_executed_total",
		Help:      "Plan steps executed, by final status.",
	}, []string{"status"})
)
