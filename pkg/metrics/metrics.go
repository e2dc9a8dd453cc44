package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Node cache metrics
	NodeCacheBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "strata_node_cache_bytes",
			Help: "Bytes of resolved index nodes held in the LRU cache",
		},
	)

	NodeCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_node_cache_hits_total",
			Help: "Node resolutions served from the cache",
		},
	)

	NodeCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_node_cache_misses_total",
			Help: "Node resolutions that read through to storage",
		},
	)

	// Novelty metrics
	NoveltyFlakes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strata_novelty_flakes",
			Help: "Flakes in the novelty overlay by ledger",
		},
		[]string{"network", "ledger"},
	)

	NoveltyBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strata_novelty_bytes",
			Help: "Byte weight of the novelty overlay by ledger",
		},
		[]string{"network", "ledger"},
	)

	// Commit metrics
	CommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_commits_total",
			Help: "Commits published by ledger",
		},
		[]string{"network", "ledger"},
	)

	// Reindex metrics
	ReindexRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_reindex_runs_total",
			Help: "Background reindex runs",
		},
	)

	ReindexDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_reindex_duration_seconds",
			Help:    "Duration of reindex runs",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReindexErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "strata_reindex_errors_total",
			Help: "Reindex runs that failed",
		},
	)

	// Query metrics
	QueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "strata_query_duration_seconds",
			Help:    "Query evaluation latency",
			Buckets: prometheus.DefBuckets,
		},
	)

	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strata_queries_total",
			Help: "Queries evaluated by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		NodeCacheBytes,
		NodeCacheHits,
		NodeCacheMisses,
		NoveltyFlakes,
		NoveltyBytes,
		CommitsTotal,
		ReindexRuns,
		ReindexDuration,
		ReindexErrors,
		QueryDuration,
		QueriesTotal,
	)
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
