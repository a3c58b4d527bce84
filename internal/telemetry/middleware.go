package telemetry

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	requestDurationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	requestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_count_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	activeRequestsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_active",
			Help: "Number of active HTTP requests",
		},
	)

	// Session metrics
	activeSessionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_sessions_active",
			Help: "Number of connected stream clients",
		},
	)

	sessionCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_sessions_total",
			Help: "Total number of accepted stream clients",
		},
	)

	sessionClosedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_sessions_closed_total",
			Help: "Total number of ended sessions by reason",
		},
		[]string{"reason"},
	)

	// Cycle metrics
	framesSentCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_frames_sent_total",
			Help: "Total number of stats frames written to clients",
		},
	)

	cyclesSkippedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_cycles_skipped_total",
			Help: "Total number of sampling cycles that produced no frame, by reason",
		},
		[]string{"reason"},
	)

	cycleDurationHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "monitor_cycle_duration_seconds",
			Help:    "Duration of one sample-wait-sample cycle in seconds",
			Buckets: []float64{0.5, 0.9, 1, 1.1, 1.25, 1.5, 2, 3, 5},
		},
	)
)

// MetricsHandler returns an http.Handler that serves the metrics endpoint
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// MetricsMiddleware wraps an http.Handler and records metrics about the request
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}

		activeRequestsGauge.Inc()
		defer activeRequestsGauge.Dec()

		next.ServeHTTP(sw, r)

		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		labels := prometheus.Labels{
			"method": r.Method,
			"path":   routePath(r),
			"status": strconv.Itoa(status),
		}
		requestDurationHistogram.With(labels).Observe(time.Since(start).Seconds())
		requestCounter.With(labels).Inc()
	})
}

// routePath prefers the route template to keep label cardinality bounded.
func routePath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// statusWriter wraps http.ResponseWriter to capture the status code
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Hijack lets websocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// RecordSessionOpened counts a newly accepted client.
func RecordSessionOpened() {
	sessionCounter.Inc()
	activeSessionsGauge.Inc()
}

// RecordSessionClosed counts an ended session.
func RecordSessionClosed(reason string) {
	sessionClosedCounter.WithLabelValues(reason).Inc()
	activeSessionsGauge.Dec()
}

func RecordFrameSent() {
	framesSentCounter.Inc()
}

// RecordCycleSkipped counts a cycle that produced no frame.
func RecordCycleSkipped(reason string) {
	cyclesSkippedCounter.WithLabelValues(reason).Inc()
}
