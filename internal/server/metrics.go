// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler is the "handler" label value used to partition metrics by
// the logical endpoint name rather than the raw URL path.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// retrieveRequestsTotal counts completed /api/retrieve requests,
	// partitioned by outcome: "ok" or "error".
	retrieveRequestsTotal *prometheus.CounterVec

	// retrieveDurationSeconds records the wall-clock duration of each
	// successful /api/retrieve request.
	retrieveDurationSeconds prometheus.Histogram

	// retrieveChunksReturned records how many chunks each retrieval served.
	retrieveChunksReturned prometheus.Histogram

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, path pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		retrieveRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grounder",
			Subsystem: "retrieve",
			Name:      "requests_total",
			Help:      "Total number of /api/retrieve requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		retrieveDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "grounder",
			Subsystem: "retrieve",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of successful /api/retrieve requests.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		retrieveChunksReturned: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "grounder",
			Subsystem: "retrieve",
			Name:      "chunks_returned",
			Help:      "Number of hydrated chunks served per retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grounder",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "grounder",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// instrument wraps the mux so every request increments the HTTP counters.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(rw, r)
		elapsed := time.Since(start)

		handler := r.URL.Path
		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(elapsed.Seconds())
	})
}
