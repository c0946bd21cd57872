package health

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// statusValue maps a Status to the gauge value Prometheus convention
// expects for an enum-style health gauge: 1 for the reported state, with
// the numeric ordering otherwise meaningless (consumers alert on
// health_component_status{status="unhealthy"} == 1, not on magnitude).
func statusValue(s, reported Status) float64 {
	if s == reported {
		return 1
	}
	return 0
}

// Metrics exports a Monitor's snapshot as Prometheus gauges, grounded on
// the teacher's pkg/observability/metrics.go (per-domain GaugeVec fields
// registered against a private *prometheus.Registry, served through
// promhttp.HandlerFor).
type Metrics struct {
	namespace string
	registry  *prometheus.Registry
	status    *prometheus.GaugeVec
	system    prometheus.Gauge
}

// NewMetrics builds a Metrics exporter under the given namespace. Pass "" to
// use the bare metric names.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		namespace: namespace,
		registry:  prometheus.NewRegistry(),
	}

	m.status = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "component_status",
			Help:      "Component health status (1 for the reported status, 0 otherwise), labeled by component and status",
		},
		[]string{"component", "status"},
	)

	m.system = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "system_healthy",
			Help:      "1 when the aggregated system status is healthy, 0 otherwise",
		},
	)

	m.registry.MustRegister(m.status, m.system)
	return m
}

// allStatuses enumerates every label value statusValue reports against, so
// a component's non-reported statuses are explicitly zeroed rather than
// left stale from a previous reading.
var allStatuses = []Status{StatusHealthy, StatusDegraded, StatusUnhealthy, StatusUnknown}

// Observe records a Report's per-component and system-level status onto
// the exported gauges.
func (m *Metrics) Observe(report Report) {
	for _, comp := range report.Components {
		for _, s := range allStatuses {
			m.status.WithLabelValues(comp.Component, string(s)).Set(statusValue(s, comp.Status))
		}
	}

	if report.Status == StatusHealthy {
		m.system.Set(1)
	} else {
		m.system.Set(0)
	}
}

// Handler serves the exporter's registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
