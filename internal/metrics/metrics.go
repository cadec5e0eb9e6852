// Package metrics provides Prometheus instrumentation for utsushi.
//
// All metrics are prefixed with "utsushi_" and registered on the default registry, which
// the HTTP server exposes at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "utsushi_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "utsushi_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Indexer metrics
var (
	FilesIndexed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "utsushi_files_indexed_total",
			Help: "Total number of media files indexed",
		},
		[]string{"type"}, // "image", "video"
	)

	FilesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "utsushi_files_failed_total",
			Help: "Total number of media files that failed to index",
		},
		[]string{"reason"},
	)

	FramesIndexed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "utsushi_video_frames_indexed_total",
			Help: "Total number of sampled video frames indexed",
		},
	)

	FileIndexDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "utsushi_file_index_duration_seconds",
			Help:    "Time to index a single media file",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"type"},
	)
)

// Refresh metrics
var (
	RefreshRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "utsushi_refresh_runs_total",
			Help: "Total number of folder refresh runs",
		},
		[]string{"status"}, // "finished", "canceled", "error"
	)

	RefreshFilesAdded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "utsushi_refresh_files_added_total",
			Help: "Files added by folder refreshes",
		},
	)

	RefreshFilesRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "utsushi_refresh_files_removed_total",
			Help: "Files removed by folder refreshes",
		},
	)
)

// Search metrics
var (
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "utsushi_search_duration_seconds",
			Help:    "Search duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"kind"}, // "text", "image", "name"
	)

	QueryEmbeddingCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "utsushi_query_embedding_cache_total",
			Help: "Query embedding cache lookups by result",
		},
		[]string{"result"}, // "hit", "miss"
	)

	VectorStoreSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "utsushi_vector_store_size",
			Help: "Number of vectors in the vector store",
		},
	)
)
