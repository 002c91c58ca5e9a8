package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PoolMetrics instruments the backend connection pool: reuse efficiency,
// eviction pressure, and live size, per backend.
//
// All metrics follow the taxonomy proxy_pool_<metric_name>.
type PoolMetrics struct {
	HitsTotal      *prometheus.CounterVec
	MissesTotal    *prometheus.CounterVec
	EvictionsTotal *prometheus.CounterVec
	Size           *prometheus.GaugeVec
	CheckoutErrors *prometheus.CounterVec
	BypassTotal    *prometheus.CounterVec
}

func newPoolMetrics(namespace string) *PoolMetrics {
	return &PoolMetrics{
		HitsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "hits_total",
			Help:      "Connection pool checkouts served by a reused connection, by backend.",
		}, []string{"backend"}),
		MissesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "misses_total",
			Help:      "Connection pool checkouts that required dialing a new connection, by backend.",
		}, []string{"backend"}),
		EvictionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "evictions_total",
			Help:      "Pooled connections evicted, by backend and reason (ttl, max_requests, dead, lru).",
		}, []string{"backend", "reason"}),
		Size: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "size",
			Help:      "Idle pooled connections currently held, by backend.",
		}, []string{"backend"}),
		CheckoutErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "checkout_errors_total",
			Help:      "Pool checkout failures, by backend and reason.",
		}, []string{"backend", "reason"}),
		BypassTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "bypass_total",
			Help:      "Un-pooled connections handed out because the pool stayed full after eviction, by backend.",
		}, []string{"backend"}),
	}
}
