package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "photo"

// Scans and classification batches run for minutes, so the duration buckets
// reach well past the client defaults.
var requestBuckets = []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60, 300, 900}

// routeTemplates collapse ids and hashes into bounded label values. Exact
// paths are checked before prefixes.
var routeTemplates = []struct {
	prefix   string
	exact    bool
	template string
}{
	{prefix: "/v1/photos/batch-update", exact: true, template: "/v1/photos/batch-update"},
	{prefix: "/v1/photos/batch-delete", exact: true, template: "/v1/photos/batch-delete"},
	{prefix: "/v1/photos/", template: "/v1/photos/{id}"},
	{prefix: "/thumbs/", template: "/thumbs/{hash}.jpg"},
}

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	inFlight       prometheus.Gauge
	responseBytes  *prometheus.CounterVec
	thumbnailBytes *prometheus.CounterVec
}

// NewHTTPServerMetrics owns a fresh registry with Go runtime and process
// collectors; pipeline metrics may join it through Registerer.
func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	labels := prometheus.Labels{"service": service}
	m := &HTTPServerMetrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route template and status.",
		}, []string{"service", "method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request duration by route template.",
			Buckets: requestBuckets,
		}, []string{"service", "method", "path"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", Name: "in_flight_requests",
			Help:        "HTTP requests currently being served.",
			ConstLabels: labels,
		}),
		responseBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "response_bytes_total",
			Help: "Response body bytes written by route template.",
		}, []string{"service", "path"}),
		thumbnailBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "thumbnail_bytes_total",
			Help: "Bytes of cached thumbnails served.",
		}, []string{"service"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.duration, m.inFlight, m.responseBytes, m.thumbnailBytes,
	)
	return m
}

// Registerer lets pipeline metrics share the server registry.
func (m *HTTPServerMetrics) Registerer() prometheus.Registerer {
	return m.registry
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := normalizePath(r.URL.Path)
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		m.inFlight.Inc()
		defer func() {
			m.inFlight.Dec()
			m.requests.WithLabelValues(service, r.Method, route, strconv.Itoa(rec.statusCode)).Inc()
			m.duration.WithLabelValues(service, r.Method, route).Observe(time.Since(start).Seconds())
			if rec.written > 0 {
				m.responseBytes.WithLabelValues(service, route).Add(float64(rec.written))
			}
		}()
		next.ServeHTTP(rec, r)
	})
}

func normalizePath(path string) string {
	for _, rt := range routeTemplates {
		if rt.exact && path == rt.prefix {
			return rt.template
		}
	}
	for _, rt := range routeTemplates {
		if !rt.exact && strings.HasPrefix(path, rt.prefix) {
			return rt.template
		}
	}
	return path
}

func (m *HTTPServerMetrics) RecordThumbnailServed(service string, bytes int64) {
	if bytes <= 0 {
		return
	}
	m.thumbnailBytes.WithLabelValues(service).Add(float64(bytes))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
