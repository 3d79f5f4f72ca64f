package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry            *prometheus.Registry
	invocationsTotal    *prometheus.CounterVec
	invocationDuration  *prometheus.HistogramVec
	versionsTotal       *prometheus.CounterVec
	activeInvocations   prometheus.Gauge
	duplicatesTotal     prometheus.Counter
	outcomeWriteFailure prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		invocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "derivatives_invocations_total",
			Help: "Pipeline invocations by final status.",
		}, []string{"status"}),
		invocationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "derivatives_invocation_duration_seconds",
			Help:    "Wall time of each pipeline invocation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		versionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "derivatives_versions_total",
			Help: "Version outcomes by version name, aspect group and status.",
		}, []string{"version", "aspect_group", "status"}),
		activeInvocations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "derivatives_active_invocations",
			Help: "Invocations currently running in this worker.",
		}),
		duplicatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "derivatives_duplicate_tasks_total",
			Help: "Tasks dropped because the same object was already being processed.",
		}),
		outcomeWriteFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "derivatives_outcome_write_failures_total",
			Help: "Invocation records that could not be written to the outcome store.",
		}),
	}

	registry.MustRegister(
		m.invocationsTotal,
		m.invocationDuration,
		m.versionsTotal,
		m.activeInvocations,
		m.duplicatesTotal,
		m.outcomeWriteFailure,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
