package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// OpenWeatherMap API call rate. Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// External API latency per request. Watch for: p95 > 2s (upstream degradation), p99 > 5s (timeout risk).
	WeatherAPIDuration *prometheus.HistogramVec

	// Snapshot lookups by outcome (fresh, stale, miss). Hit rate = fresh/(fresh+stale+miss).
	SnapshotLookupsTotal *prometheus.CounterVec

	// Age of the cached snapshot at lookup time. Watch for: values well past expiry (writes failing).
	SnapshotAgeSeconds prometheus.Histogram

	// Failed snapshot requests by category. Watch for: blob_unauthorized (bad token), upstream.
	SnapshotErrorsTotal *prometheus.CounterVec

	// Blob store operation latency.
	BlobOperationDuration *prometheus.HistogramVec

	// Blob store errors by operation and category.
	BlobErrorsTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	errorRateGaugeOnce sync.Once
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
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of OpenWeatherMap API calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	SnapshotLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshotLookupsTotal",
			Help: "Total number of cached snapshot lookups by outcome (fresh, stale, miss)",
		},
		[]string{"outcome"},
	)
	SnapshotAgeSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snapshotAgeSeconds",
			Help:    "Age of the cached snapshot in seconds when read",
			Buckets: []float64{15, 30, 60, 90, 120, 300, 900, 3600},
		},
	)
	SnapshotErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshotErrorsTotal",
			Help: "Total number of failed snapshot requests by error category",
		},
		[]string{"category"},
	)
	BlobOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blobOperationDurationSeconds",
			Help:    "Blob store operation latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"op", "result"},
	)
	BlobErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blobErrorsTotal",
			Help: "Total number of blob store errors by operation and category",
		},
		[]string{"op", "category"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration,
		SnapshotLookupsTotal, SnapshotAgeSeconds, SnapshotErrorsTotal,
		BlobOperationDuration, BlobErrorsTotal,
		RateLimitDeniedTotal,
	)
}

// RegisterErrorRateGauge exposes the degraded tracker's sliding-window error rate.
// Call from main once the tracker is configured; later calls are ignored.
func RegisterErrorRateGauge(rate func() float64) {
	errorRateGaugeOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "snapshotErrorRateInWindow",
					Help: "Fraction of snapshot requests that failed in the degraded sliding window",
				},
				rate,
			),
		)
	})
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
