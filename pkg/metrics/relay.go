package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RelayMetrics instruments the byte-relay engine: session lifecycle,
// bytes shuttled in each direction, and header injection outcomes.
//
// All metrics follow the taxonomy proxy_relay_<metric_name>.
type RelayMetrics struct {
	SessionsTotal        prometheus.Counter
	SessionsActive       prometheus.Gauge
	SessionDuration      prometheus.Histogram
	BytesClientToBackend prometheus.Counter
	BytesBackendToClient prometheus.Counter
	HeaderInjections     *prometheus.CounterVec
	RelayErrorsTotal     *prometheus.CounterVec
}

func newRelayMetrics(namespace string) *RelayMetrics {
	return &RelayMetrics{
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "sessions_total",
			Help:      "Total relay sessions opened between a client and a backend.",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "sessions_active",
			Help:      "Relay sessions currently splicing bytes.",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "session_duration_seconds",
			Help:      "Wall-clock duration of completed relay sessions.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 12),
		}),
		BytesClientToBackend: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "bytes_client_to_backend_total",
			Help:      "Bytes relayed from clients to backends.",
		}),
		BytesBackendToClient: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "bytes_backend_to_client_total",
			Help:      "Bytes relayed from backends to clients.",
		}),
		HeaderInjections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "header_injections_total",
			Help:      "Header injections performed on proxied requests, by header name.",
		}, []string{"header"}),
		RelayErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "errors_total",
			Help:      "Relay session failures by reason.",
		}, []string{"reason"}),
	}
}
