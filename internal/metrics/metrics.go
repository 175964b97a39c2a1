// Package metrics holds the Prometheus collectors shared by ingestion and retrieval.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tcmkb"

var (
	// DocumentsProcessed counts finished document runs by final status.
	DocumentsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_processed_total",
			Help:      "Documents processed, by final status",
		},
		[]string{"status"},
	)

	// ParagraphsIndexed counts paragraphs written with an embedding.
	ParagraphsIndexed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "paragraphs_indexed_total",
			Help:      "Paragraphs upserted together with their embedding",
		},
	)

	// SearchDuration observes similarity search latency by search type.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Similarity search latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"search_type"},
	)

	// EmbeddingFallbacks counts zero vectors returned in place of a failed embedding.
	EmbeddingFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_fallbacks_total",
			Help:      "Zero vectors substituted for failed or malformed embeddings",
		},
		[]string{"model", "reason"},
	)

	// EmbeddingCacheHits counts provider cache hits by model.
	EmbeddingCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_hits_total",
			Help:      "Embedding cache hits",
		},
		[]string{"model"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
