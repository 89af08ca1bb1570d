package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wrapgate_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wrapgate_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	wrapsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wrapgate_wraps_total",
		Help: "Backend wrap calls by outcome.",
	}, []string{"outcome"})

	unwrapsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wrapgate_unwraps_total",
		Help: "Backend unwrap calls by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, wrapsTotal, unwrapsTotal)
}

// MetricsHandler returns the Prometheus metrics HTTP handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// metricsMiddleware records request metrics. Paths are recorded via the
// route pattern, not the raw URL, so tokens never become label values.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rr := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rr, r)

		dur := time.Since(start).Seconds()
		status := strconv.Itoa(rr.statusCode)
		requestsTotal.WithLabelValues(r.Method, routePattern(r), status).Inc()
		requestDuration.WithLabelValues(r.Method, routePattern(r)).Observe(dur)
	})
}
