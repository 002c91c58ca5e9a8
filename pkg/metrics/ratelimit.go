package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RateLimitMetrics instruments the admission controller: allow/reject
// decisions and tracked-key cardinality, by algorithm.
//
// All metrics follow the taxonomy proxy_ratelimit_<metric_name>.
type RateLimitMetrics struct {
	AllowedTotal   *prometheus.CounterVec
	RejectedTotal  *prometheus.CounterVec
	TrackedKeys    *prometheus.GaugeVec
	ReclaimedTotal *prometheus.CounterVec
}

func newRateLimitMetrics(namespace string) *RateLimitMetrics {
	return &RateLimitMetrics{
		AllowedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "allowed_total",
			Help:      "Requests admitted by the rate limiter, by algorithm.",
		}, []string{"algorithm"}),
		RejectedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "rejected_total",
			Help:      "Requests rejected by the rate limiter, by algorithm and scope (per_ip, global).",
		}, []string{"algorithm", "scope"}),
		TrackedKeys: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "tracked_keys",
			Help:      "Distinct rate-limit keys (client IPs) currently tracked.",
		}, []string{"algorithm"}),
		ReclaimedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "reclaimed_total",
			Help:      "Idle rate-limit keys reclaimed by the janitor sweep.",
		}, []string{"algorithm"}),
	}
}
