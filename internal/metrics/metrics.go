package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "journal"

// Embedding Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_errors_total",
			Help:      "Total embedding errors",
		},
		[]string{"provider", "model", "error_type"},
	)
)

// Search Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Total number of health event searches",
		},
		[]string{"intent", "status"},
	)

	SearchResults = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of results returned per search",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
		[]string{"intent"},
	)

	EmbeddingsIndexedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embeddings_indexed_total",
			Help:      "Rows whose embedding was (re)generated",
		},
		[]string{"table", "status"},
	)
)

var registerOnce sync.Once

// Register registers all collectors with the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			EmbeddingErrorsTotal,
			SearchRequestsTotal,
			SearchResults,
			EmbeddingsIndexedTotal,
			httpRequestDuration,
			httpRequestsTotal,
		)
	})
}
