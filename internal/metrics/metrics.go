// Package metrics exposes the platform's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "discovery_platform",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "discovery_platform",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "discovery_platform",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	// CacheLookups counts response cache lookups by outcome (hit or miss).
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "discovery_platform",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total response cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	// QuotaChecks counts admission checks by outcome (granted or denied).
	QuotaChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "discovery_platform",
			Subsystem: "quota",
			Name:      "checks_total",
			Help:      "Total quota admission checks by outcome.",
		},
		[]string{"outcome"},
	)

	// SweepResults counts per-node commitment sweep outcomes.
	SweepResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "discovery_platform",
			Subsystem: "commitment",
			Name:      "sweep_results_total",
			Help:      "Total commitment sweep outcomes per node.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		CacheLookups,
		QuotaChecks,
		SweepResults,
	)
}

// Handler serves the collectors registered in Registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps an HTTP handler with request counting, duration
// and in-flight tracking. The path label uses the route template, not the
// raw URL, to keep cardinality bounded.
func InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
		httpDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
