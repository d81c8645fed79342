package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineMetrics instruments ingestion and classification. It satisfies the
// observer interfaces of the ingest and classify use cases.
type PipelineMetrics struct {
	service  string
	registry *prometheus.Registry

	ingestFiles      *prometheus.CounterVec
	ingestDuration   *prometheus.HistogramVec
	classifyTotal    *prometheus.CounterVec
	classifyAttempts *prometheus.HistogramVec
	classifyInFlight prometheus.Gauge
	eventsTotal      *prometheus.CounterVec
}

// NewPipelineMetrics registers into reg, or into a private registry served by
// Handler when reg is nil.
func NewPipelineMetrics(service string, reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{service: service}
	if reg == nil {
		m.registry = prometheus.NewRegistry()
		reg = m.registry
	}

	m.ingestFiles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "files_total",
			Help:      "Files seen by ingestion scans by result.",
		},
		[]string{"service", "result"},
	)
	m.ingestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Duration of complete ingestion scans.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	m.classifyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classify",
			Name:      "total",
			Help:      "Classified photos by terminal status.",
		},
		[]string{"service", "status"},
	)
	m.classifyAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "classify",
			Name:      "attempts",
			Help:      "Remote calls spent per classified photo.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		},
		[]string{"service", "status"},
	)
	m.classifyInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "classify",
			Name:      "in_flight",
			Help:      "Photos currently being classified.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	m.eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "events_total",
			Help:      "Photo-ingested events handled by status.",
		},
		[]string{"service", "status"},
	)

	reg.MustRegister(m.ingestFiles, m.ingestDuration, m.classifyTotal, m.classifyAttempts, m.classifyInFlight, m.eventsTotal)
	return m
}

// Handler serves the private registry; nil when metrics share another registry.
func (m *PipelineMetrics) Handler() http.Handler {
	if m.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveIngestFile counts one file by result: new, duplicate or error.
func (m *PipelineMetrics) ObserveIngestFile(result string) {
	m.ingestFiles.WithLabelValues(m.service, result).Inc()
}

func (m *PipelineMetrics) ObserveIngestScan(duration time.Duration) {
	m.ingestDuration.WithLabelValues(m.service).Observe(duration.Seconds())
}

func (m *PipelineMetrics) StartClassification() {
	m.classifyInFlight.Inc()
}

func (m *PipelineMetrics) FinishClassification(success bool, attempts int) {
	m.classifyInFlight.Dec()

	status := "success"
	if !success {
		status = "error"
	}
	m.classifyTotal.WithLabelValues(m.service, status).Inc()
	if attempts > 0 {
		m.classifyAttempts.WithLabelValues(m.service, status).Observe(float64(attempts))
	}
}

func (m *PipelineMetrics) ObserveEvent(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.eventsTotal.WithLabelValues(m.service, status).Inc()
}
