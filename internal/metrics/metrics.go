// Package metrics provides Prometheus metrics collection for capsule.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capsule_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "capsule_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)

	// Archive operation metrics
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capsule_operations_total",
			Help: "Total number of archive operations by operation, format and result",
		},
		[]string{"operation", "format", "result"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "capsule_operation_duration_seconds",
			Help:    "Archive operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 15, 60},
		},
		[]string{"operation", "format"},
	)

	OperationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capsule_operation_errors_total",
			Help: "Total number of failed archive operations by error kind",
		},
		[]string{"operation", "kind"},
	)

	EntriesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capsule_entries_processed_total",
			Help: "Total number of archive entries listed, extracted or removed",
		},
		[]string{"operation"},
	)

	BytesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capsule_bytes_processed_total",
			Help: "Total bytes copied, previewed or exported",
		},
		[]string{"operation"},
	)

	// Preview metrics
	PreviewsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capsule_previews_total",
			Help: "Total number of previews by result kind",
		},
		[]string{"kind"},
	)

	PreviewTruncations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "capsule_preview_truncations_total",
			Help: "Total number of previews whose payload was capped",
		},
	)

	// Security metrics
	TraversalRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "capsule_traversal_rejections_total",
			Help: "Total number of entries rejected for escaping the destination",
		},
	)

	// Storage metrics
	StorageOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "capsule_storage_operation_duration_seconds",
			Help:    "Export storage operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
		[]string{"operation"},
	)

	StorageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capsule_storage_errors_total",
			Help: "Total number of export storage errors by operation",
		},
		[]string{"operation"},
	)

	// In-flight work
	ActiveOperations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "capsule_active_operations",
			Help: "Number of archive operations in progress",
		},
	)

	ActiveRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "capsule_active_requests",
			Help: "Number of currently active API requests",
		},
	)
)

func init() {
	// Register all metrics with Prometheus
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		OperationsTotal,
		OperationDuration,
		OperationErrors,
		EntriesProcessed,
		BytesProcessed,
		PreviewsTotal,
		PreviewTruncations,
		TraversalRejections,
		StorageOperationDuration,
		StorageErrors,
		ActiveOperations,
		ActiveRequests,
	)
}

// Handler returns an HTTP handler for the Prometheus /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest tracks request metrics with timing.
func RecordRequest(route string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	RequestsTotal.WithLabelValues(route, statusStr).Inc()
	RequestDuration.WithLabelValues(route, statusStr).Observe(duration.Seconds())
}

// RecordOperation tracks an archive operation. errKind is empty on success.
func RecordOperation(operation, format, errKind string, duration time.Duration) {
	result := "ok"
	if errKind != "" {
		result = "error"
		OperationErrors.WithLabelValues(operation, errKind).Inc()
	}
	OperationsTotal.WithLabelValues(operation, format, result).Inc()
	OperationDuration.WithLabelValues(operation, format).Observe(duration.Seconds())
}

// RecordEntries adds n to the entries counter for operation.
func RecordEntries(operation string, n int) {
	EntriesProcessed.WithLabelValues(operation).Add(float64(n))
}

// RecordBytes adds n to the bytes counter for operation.
func RecordBytes(operation string, n int64) {
	BytesProcessed.WithLabelValues(operation).Add(float64(n))
}

// RecordPreview counts a preview by kind and whether it was truncated.
func RecordPreview(kind string, truncated bool) {
	PreviewsTotal.WithLabelValues(kind).Inc()
	if truncated {
		PreviewTruncations.Inc()
	}
}

// RecordTraversalRejection increments the traversal rejection counter.
func RecordTraversalRejection() {
	TraversalRejections.Inc()
}

// RecordStorageOperation tracks storage operation duration.
func RecordStorageOperation(operation string, duration time.Duration) {
	StorageOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordStorageError increments storage error counter.
func RecordStorageError(operation string) {
	StorageErrors.WithLabelValues(operation).Inc()
}

// IncrementActiveOperations increments the in-progress operation gauge.
func IncrementActiveOperations() {
	ActiveOperations.Inc()
}

// DecrementActiveOperations decrements the in-progress operation gauge.
func DecrementActiveOperations() {
	ActiveOperations.Dec()
}

// IncrementActiveRequests increments the active request counter.
func IncrementActiveRequests() {
	ActiveRequests.Inc()
}

// DecrementActiveRequests decrements the active request counter.
func DecrementActiveRequests() {
	ActiveRequests.Dec()
}
