package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/legal-doc-assistant/internal/core/domain"
)

// CoordinatorMetrics observes document processing jobs and admission.
type CoordinatorMetrics struct {
	service string

	processTotal      *prometheus.CounterVec
	processDuration   *prometheus.HistogramVec
	processInFlight   prometheus.Gauge
	queueLag          *prometheus.HistogramVec
	admissionDeferred *prometheus.CounterVec
}

func NewCoordinatorMetrics(service string, registry prometheus.Registerer) *CoordinatorMetrics {
	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "document_process_total",
			Help:      "Total processed documents by terminal status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "document_process_duration_seconds",
			Help:      "Document processing duration in seconds by terminal status.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "document_process_in_flight",
			Help:      "Number of admitted document processing jobs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "queue_lag_seconds",
			Help:      "Delay between document upload and processing admission.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	admissionDeferred := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "admission_deferred_total",
			Help:      "Admission attempts postponed by reason.",
		},
		[]string{"service", "reason"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, queueLag, admissionDeferred)

	return &CoordinatorMetrics{
		service:           service,
		processTotal:      processTotal,
		processDuration:   processDuration,
		processInFlight:   processInFlight,
		queueLag:          queueLag,
		admissionDeferred: admissionDeferred,
	}
}

func (m *CoordinatorMetrics) StartDocument() {
	m.processInFlight.Inc()
}

func (m *CoordinatorMetrics) FinishDocument(status domain.DocumentStatus, duration time.Duration) {
	m.processInFlight.Dec()
	m.processTotal.WithLabelValues(m.service, string(status)).Inc()
	m.processDuration.WithLabelValues(m.service, string(status)).Observe(duration.Seconds())
}

func (m *CoordinatorMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

func (m *CoordinatorMetrics) AdmissionDeferred(reason string) {
	m.admissionDeferred.WithLabelValues(m.service, reason).Inc()
}
