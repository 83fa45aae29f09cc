// Package metrics exposes Prometheus collectors for the review pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dataset load metrics
	DatasetLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_dataset_loads_total",
			Help: "Total number of dataset loads by outcome",
		},
		[]string{"outcome"},
	)

	DatasetTransactions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kestrel_dataset_transactions",
			Help: "Number of transactions in the current dataset",
		},
	)

	// Normalization metrics
	RecordsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kestrel_ingest_records_dropped_total",
			Help: "Total number of invalid feed records dropped by the normalizer",
		},
	)

	LoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kestrel_dataset_load_duration_seconds",
			Help:    "Duration of dataset loads in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Pipeline metrics
	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kestrel_pipeline_duration_seconds",
			Help:    "Duration of annotate, filter and paginate passes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_http_requests_total",
			Help: "Total number of HTTP requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kestrel_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Evaluation memo metrics
	MemoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_evaluation_memo_lookups_total",
			Help: "Total number of memoized evaluation lookups by result",
		},
		[]string{"result"},
	)
)

// Load outcomes.
const (
	OutcomeLoaded   = "loaded"
	OutcomeFallback = "fallback_rules"
	OutcomeFailed   = "failed"
	OutcomeStale    = "stale"
)
