package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ReloadMetrics instruments configuration hot reload: outcomes and the
// version currently live.
//
// All metrics follow the taxonomy proxy_config_<metric_name>.
type ReloadMetrics struct {
	ReloadsTotal   *prometheus.CounterVec
	CurrentVersion prometheus.Gauge
	ReloadDuration prometheus.Histogram
}

func newReloadMetrics(namespace string) *ReloadMetrics {
	return &ReloadMetrics{
		ReloadsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "config",
			Name:      "reloads_total",
			Help:      "Configuration reload attempts, by outcome (applied, noop, rejected).",
		}, []string{"outcome"}),
		CurrentVersion: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "config",
			Name:      "current_version",
			Help:      "Monotonically increasing version of the currently live configuration.",
		}),
		ReloadDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "config",
			Name:      "reload_duration_seconds",
			Help:      "Time taken to parse, validate, and swap a new configuration.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
