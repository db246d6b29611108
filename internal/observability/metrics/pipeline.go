package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dkruglov/exam-ingest/internal/core/domain"
)

type PipelineMetrics struct {
	registry *prometheus.Registry
	service  string

	unitTotal          *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	extractionAttempts prometheus.Counter
	duplicatesSkipped  prometheus.Counter
	documentsInFlight  prometheus.Gauge
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	unitTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "examingest",
			Subsystem: "pipeline",
			Name:      "units_total",
			Help:      "Processed pipeline units by stage and result.",
		},
		[]string{"service", "stage", "result"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "examingest",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration per pipeline stage.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"service", "stage"},
	)
	extractionAttempts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "examingest",
			Subsystem: "pipeline",
			Name:      "extraction_attempts_total",
			Help:      "Total extraction model calls including retries.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	duplicatesSkipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "examingest",
			Subsystem: "pipeline",
			Name:      "duplicates_skipped_total",
			Help:      "Questions skipped because their fingerprint already exists.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	documentsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "examingest",
			Subsystem: "pipeline",
			Name:      "documents_in_flight",
			Help:      "Number of documents currently being processed.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(unitTotal, stageDuration, extractionAttempts, duplicatesSkipped, documentsInFlight)

	return &PipelineMetrics{
		registry:           registry,
		service:            service,
		unitTotal:          unitTotal,
		stageDuration:      stageDuration,
		extractionAttempts: extractionAttempts,
		duplicatesSkipped:  duplicatesSkipped,
		documentsInFlight:  documentsInFlight,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) UnitProcessed(stage domain.Stage, result string) {
	m.unitTotal.WithLabelValues(m.service, string(stage), result).Inc()
}

func (m *PipelineMetrics) StageDuration(stage domain.Stage, seconds float64) {
	m.stageDuration.WithLabelValues(m.service, string(stage)).Observe(seconds)
}

func (m *PipelineMetrics) ExtractionAttempt() {
	m.extractionAttempts.Inc()
}

func (m *PipelineMetrics) DuplicateSkipped() {
	m.duplicatesSkipped.Inc()
}

func (m *PipelineMetrics) StartDocument() {
	m.documentsInFlight.Inc()
}

func (m *PipelineMetrics) FinishDocument() {
	m.documentsInFlight.Dec()
}
