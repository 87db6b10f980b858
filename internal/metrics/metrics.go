// Package metrics exposes gather and audit counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adityalohuni/formaudit/internal/artifact"
	"github.com/adityalohuni/formaudit/internal/audit"
)

const namespace = "formaudit"

// Metrics owns its registry so tests and multiple daemons in one process
// do not collide on the default one.
type Metrics struct {
	registry       *prometheus.Registry
	gatherDuration *prometheus.HistogramVec
	gatherErrors   *prometheus.CounterVec
	verdicts       *prometheus.CounterVec
	browsers       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		gatherDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gather_duration_seconds",
			Help:      "Time spent extracting one artifact.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"artifact"}),
		gatherErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gather_errors_total",
			Help:      "Artifact extractions rejected by the evaluation channel.",
		}, []string{"artifact"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_results_total",
			Help:      "Audit results by audit id and outcome.",
		}, []string{"audit", "outcome"}),
		browsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "browser_sessions",
			Help:      "Connected browser extension sessions.",
		}),
	}
	m.registry.MustRegister(
		m.gatherDuration,
		m.gatherErrors,
		m.verdicts,
		m.browsers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveGather implements gather.Observer.
func (m *Metrics) ObserveGather(name artifact.Name, took time.Duration, err error) {
	m.gatherDuration.WithLabelValues(string(name)).Observe(took.Seconds())
	if err != nil {
		m.gatherErrors.WithLabelValues(string(name)).Inc()
	}
}

func (m *Metrics) ObserveResults(results []audit.Result) {
	for _, r := range results {
		m.verdicts.WithLabelValues(r.ID, string(r.Outcome())).Inc()
	}
}

func (m *Metrics) SetBrowserSessions(n int) {
	m.browsers.Set(float64(n))
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
