package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BackendMetrics instruments the backend roster: health state, selection
// distribution, and probe outcomes.
//
// All metrics follow the taxonomy proxy_backend_<metric_name>.
type BackendMetrics struct {
	HealthStatus      *prometheus.GaugeVec
	SelectionsTotal   *prometheus.CounterVec
	ActiveConnections *prometheus.GaugeVec
	ProbeDuration     *prometheus.HistogramVec
	ProbeFailures     *prometheus.CounterVec
	MarkedDownTotal   *prometheus.CounterVec
}

func newBackendMetrics(namespace string) *BackendMetrics {
	return &BackendMetrics{
		HealthStatus: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "health_status",
			Help:      "Backend health state: 1 healthy, 0 unhealthy.",
		}, []string{"backend"}),
		SelectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "selections_total",
			Help:      "Times a backend was chosen by the load balancing policy.",
		}, []string{"backend", "algorithm"}),
		ActiveConnections: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "active_connections",
			Help:      "Connections currently open to a backend, pooled or not.",
		}, []string{"backend"}),
		ProbeDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "probe_duration_seconds",
			Help:      "Health probe round-trip duration, by backend.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend"}),
		ProbeFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "probe_failures_total",
			Help:      "Health probe failures observed, by backend.",
		}, []string{"backend"}),
		MarkedDownTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "marked_down_total",
			Help:      "Transitions of a backend from healthy to unhealthy, by backend and trigger.",
		}, []string{"backend", "trigger"}),
	}
}
