// Package metrics declares the Prometheus collectors exported by the server.
// Collectors are registered with the default registry at init and updated
// from the storage, ingest, streaming and HTTP layers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gophdrive_http_requests_total",
			Help: "HTTP requests served.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration observes request latency by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gophdrive_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// StorageOperations counts backend calls by backend, operation and result.
	StorageOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gophdrive_storage_operations_total",
			Help: "Storage backend operations.",
		},
		[]string{"backend", "operation", "result"},
	)

	// StorageRetries counts retried backend calls.
	StorageRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gophdrive_storage_retries_total",
			Help: "Storage backend calls retried after a transient failure.",
		},
		[]string{"operation"},
	)

	// UploadsTotal counts finished uploads by result (complete, aborted).
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gophdrive_uploads_total",
			Help: "Uploads by terminal result.",
		},
		[]string{"result"},
	)

	// BytesIngested counts plaintext bytes accepted by upload sessions.
	BytesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gophdrive_ingested_bytes_total",
		Help: "Plaintext bytes written through upload sessions.",
	})

	// BytesServed counts plaintext bytes emitted by range readers.
	BytesServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gophdrive_served_bytes_total",
		Help: "Plaintext bytes emitted by range readers.",
	})

	// ActiveReaders is the number of open range readers.
	ActiveReaders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gophdrive_active_readers",
		Help: "Range readers currently open.",
	})

	// TokenValidations counts token checks by kind and result.
	TokenValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gophdrive_token_validations_total",
			Help: "Access token validations.",
		},
		[]string{"kind", "result"},
	)

	// ThumbnailsTotal counts thumbnail attempts by result.
	ThumbnailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gophdrive_thumbnails_total",
			Help: "Thumbnail generation attempts.",
		},
		[]string{"result"},
	)

	// MetadataCacheRequests counts metadata cache lookups by result (hit, miss).
	MetadataCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gophdrive_metadata_cache_requests_total",
			Help: "Metadata cache lookups.",
		},
		[]string{"result"},
	)
)

// Result maps an error to the "ok"/"error" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
