package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMetrics_Usable verifies that label dimensions match usage in the http,
// aggregator and transport packages.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("POST", "/tasks/{name}", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("POST", "/tasks/{name}").Observe(0.01)
	RecordsReceivedTotal.Inc()
	FilesAttributedTotal.Add(2)
	FilesExcludedTotal.Inc()
	DocumentFiles.Set(3)
	WriteDuration.Observe(0.002)
	WritesTotal.WithLabelValues("success").Inc()
	DeliveriesTotal.WithLabelValues("error").Inc()
	QueueDepth.Set(0)
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format with correct HTTP status and metric output.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	RecordsReceivedTotal.Add(0)
	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "coverageRecordsReceivedTotal") {
		t.Error("MetricsHandler response should contain coverage metrics")
	}
}
