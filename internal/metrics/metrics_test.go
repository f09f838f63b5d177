package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordRequest(t *testing.T) {
	RecordRequest("/api/archives/list", 200, 100*time.Millisecond)
	RecordRequest("/api/archives/list", 422, 50*time.Millisecond)
	RecordRequest("/health", 200, time.Millisecond)

	// No panics = success
}

func TestRecordStorageOperations(t *testing.T) {
	RecordStorageOperation("export", 10*time.Millisecond)
	RecordStorageError("export")

	// No panics = success
}

func TestActiveGauges(t *testing.T) {
	IncrementActiveRequests()
	IncrementActiveRequests()
	DecrementActiveRequests()
	DecrementActiveRequests()

	IncrementActiveOperations()
	if got := gaugeValue(t, ActiveOperations); got != 1 {
		t.Errorf("active operations = %v, want 1", got)
	}
	DecrementActiveOperations()
	if got := gaugeValue(t, ActiveOperations); got != 0 {
		t.Errorf("active operations = %v, want 0", got)
	}
}

func TestMetricsAreRegistered(t *testing.T) {
	metrics := []prometheus.Collector{
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
	}

	for _, metric := range metrics {
		if metric == nil {
			t.Error("found nil metric")
		}

		// Try to describe the metric (will panic if not properly initialized)
		ch := make(chan *prometheus.Desc, 10)
		metric.Describe(ch)
		close(ch)

		count := 0
		for range ch {
			count++
		}
		if count == 0 {
			t.Errorf("metric has no descriptors: %T", metric)
		}

		// Registering again must fail because init already did it.
		if err := prometheus.Register(metric); err == nil {
			t.Errorf("metric %T was not registered by init", metric)
		}
	}
}

func TestRecordOperation(t *testing.T) {
	before := counterValue(t, OperationsTotal, "test-extract", "zip", "ok")
	RecordOperation("test-extract", "zip", "", 20*time.Millisecond)
	RecordOperation("test-extract", "zip", "", 30*time.Millisecond)
	RecordOperation("test-extract", "zip", "traversal", time.Millisecond)

	if got := counterValue(t, OperationsTotal, "test-extract", "zip", "ok"); got != before+2 {
		t.Errorf("ok operations = %v, want %v", got, before+2)
	}
	if got := counterValue(t, OperationsTotal, "test-extract", "zip", "error"); got < 1 {
		t.Errorf("error operations = %v, want >= 1", got)
	}
	if got := counterValue(t, OperationErrors, "test-extract", "traversal"); got < 1 {
		t.Errorf("traversal errors = %v, want >= 1", got)
	}
}

func TestRecordEntriesAndBytes(t *testing.T) {
	RecordEntries("test-list", 3)
	RecordEntries("test-list", 4)
	RecordBytes("test-copy", 1024)

	if got := counterValue(t, EntriesProcessed, "test-list"); got != 7 {
		t.Errorf("entries = %v, want 7", got)
	}
	if got := counterValue(t, BytesProcessed, "test-copy"); got != 1024 {
		t.Errorf("bytes = %v, want 1024", got)
	}
}

func TestRecordPreview(t *testing.T) {
	truncBefore := counterValue(t, PreviewTruncations)
	RecordPreview("text", true)
	RecordPreview("binary", false)

	if got := counterValue(t, PreviewTruncations); got != truncBefore+1 {
		t.Errorf("truncations = %v, want %v", got, truncBefore+1)
	}
	if got := counterValue(t, PreviewsTotal, "binary"); got < 1 {
		t.Errorf("binary previews = %v, want >= 1", got)
	}

	before := counterValue(t, TraversalRejections)
	RecordTraversalRejection()
	if got := counterValue(t, TraversalRejections); got != before+1 {
		t.Errorf("traversal rejections = %v, want %v", got, before+1)
	}
}

// counterValue returns the counter whose labels match labelValues in order.
func counterValue(t *testing.T, collector prometheus.Collector, labelValues ...string) float64 {
	t.Helper()

	ch := make(chan prometheus.Metric, 64)
	collector.Collect(ch)
	close(ch)

	for m := range ch {
		metric := &dto.Metric{}
		if err := m.Write(metric); err != nil {
			continue
		}
		if metric.Counter == nil || len(metric.Label) != len(labelValues) {
			continue
		}

		// Labels are sorted by name, so compare as a set.
		want := make(map[string]bool, len(labelValues))
		for _, v := range labelValues {
			want[v] = true
		}
		match := true
		for _, label := range metric.Label {
			if !want[label.GetValue()] {
				match = false
				break
			}
		}
		if match {
			return metric.Counter.GetValue()
		}
	}

	return 0
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := g.Write(metric); err != nil {
		t.Fatalf("writing gauge: %v", err)
	}
	return metric.Gauge.GetValue()
}

func TestMetricsEndpointOutput(t *testing.T) {
	RecordOperation("list", "tar.gz", "", 5*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "capsule_operations_total") {
		t.Error("metrics output missing capsule_operations_total")
	}
}

func TestMetricNames(t *testing.T) {
	expectedMetrics := []string{
		"capsule_requests_total",
		"capsule_request_duration_seconds",
		"capsule_operations_total",
		"capsule_operation_duration_seconds",
		"capsule_operation_errors_total",
		"capsule_entries_processed_total",
		"capsule_bytes_processed_total",
		"capsule_previews_total",
		"capsule_preview_truncations_total",
		"capsule_traversal_rejections_total",
		"capsule_storage_operation_duration_seconds",
		"capsule_storage_errors_total",
		"capsule_active_operations",
		"capsule_active_requests",
	}

	for _, name := range expectedMetrics {
		if !strings.HasPrefix(name, "capsule_") {
			t.Errorf("metric %s doesn't have capsule_ prefix", name)
		}
		if strings.Contains(name, "-") {
			t.Errorf("metric %s contains hyphens (should use underscores)", name)
		}
	}
}
