package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate against the host. Mostly task deliveries from collectors.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Per-test records accepted by the aggregator. Should match the number of tests run.
	RecordsReceivedTotal prometheus.Counter

	// (file, test) pairs written to the output document.
	FilesAttributedTotal prometheus.Counter

	// Covered files dropped by the dependency-directory filter. Watch for: high values
	// mean third-party code is being instrumented.
	FilesExcludedTotal prometheus.Counter

	// Files in the last written document. Zero after a run means the instrumentation
	// pipeline is likely misconfigured.
	DocumentFiles prometheus.Gauge

	// Time spent reducing and writing the output document.
	WriteDuration prometheus.Histogram

	// Document writes by outcome (success, error).
	WritesTotal *prometheus.CounterVec

	// Record deliveries from the transport queue by outcome (success, error,
	// short_circuited, dropped).
	DeliveriesTotal *prometheus.CounterVec

	// Records waiting in transport queues.
	QueueDepth prometheus.Gauge

	// Host delivery breaker state.
	BreakerState prometheus.Gauge
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	RecordsReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coverageRecordsReceivedTotal",
			Help: "Total number of per-test coverage records received",
		},
	)
	FilesAttributedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coverageFilesAttributedTotal",
			Help: "Total number of (file, test) pairs written to the coverage document",
		},
	)
	FilesExcludedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coverageFilesExcludedTotal",
			Help: "Total number of covered files skipped by the exclusion filter",
		},
	)
	DocumentFiles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "coverageDocumentFiles",
			Help: "Number of files in the last written coverage document",
		},
	)
	WriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coverageWriteDurationSeconds",
			Help:    "Time to reduce and write the coverage document",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
	)
	WritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coverageWritesTotal",
			Help: "Coverage document writes by outcome",
		},
		[]string{"status"},
	)
	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transportDeliveriesTotal",
			Help: "Record deliveries from the transport queue by outcome",
		},
		[]string{"status"},
	)
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "transportQueueDepth",
			Help: "Records waiting for delivery in transport queues",
		},
	)
	BreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "transportBreakerState",
			Help: "Host delivery circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		RecordsReceivedTotal, FilesAttributedTotal, FilesExcludedTotal,
		DocumentFiles, WriteDuration, WritesTotal,
		DeliveriesTotal, QueueDepth, BreakerState,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
