package listener

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts span lifecycle activity per listener.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	SpansStarted  *prometheus.CounterVec
	SpansFinished *prometheus.CounterVec
	SpanFailures  *prometheus.CounterVec
	TracingErrors *prometheus.CounterVec
	OpenSpans     *prometheus.GaugeVec
}

// NewMetrics registers listener metrics with reg under namespace.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "shardtrace"
	}
	factory := promauto.With(reg)
	labels := []string{"listener"}

	return &Metrics{
		SpansStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "spans_started_total",
				Help:      "Spans started by tracing listeners",
			},
			labels,
		),
		SpansFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "spans_finished_total",
				Help:      "Spans finished by tracing listeners",
			},
			labels,
		),
		SpanFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "span_failures_total",
				Help:      "Spans tagged with an execution failure",
			},
			labels,
		),
		TracingErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tracing_errors_total",
				Help:      "Tracing failures recovered by listeners",
			},
			labels,
		),
		OpenSpans: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "open_spans",
				Help:      "Spans currently open per listener",
			},
			labels,
		),
	}
}

func (m *Metrics) spanStarted(listener string) {
	if m == nil {
		return
	}
	m.SpansStarted.WithLabelValues(listener).Inc()
	m.OpenSpans.WithLabelValues(listener).Inc()
}

func (m *Metrics) spanFinished(listener string) {
	if m == nil {
		return
	}
	m.SpansFinished.WithLabelValues(listener).Inc()
	m.OpenSpans.WithLabelValues(listener).Dec()
}

func (m *Metrics) failure(listener string) {
	if m == nil {
		return
	}
	m.SpanFailures.WithLabelValues(listener).Inc()
}

func (m *Metrics) tracingError(listener string) {
	if m == nil {
		return
	}
	m.TracingErrors.WithLabelValues(listener).Inc()
}
