// Package metrics provides the centralized Prometheus metrics registry
// for the proxy.
//
// Series follow the naming convention
// proxy_<category>_<metric_name>, e.g. proxy_pool_hits_total,
// proxy_backend_health_status.
//
// Example:
//
//	registry := metrics.DefaultRegistry()
//	registry.Relay().SessionsTotal.Inc()
//	registry.Pool().HitsTotal.WithLabelValues("10.0.0.1:8080").Inc()
package metrics

import "sync"

// MetricCategory identifies which subsystem a metric belongs to.
type MetricCategory string

const (
	CategoryRelay     MetricCategory = "relay"
	CategoryPool      MetricCategory = "pool"
	CategoryBackend   MetricCategory = "backend"
	CategoryRateLimit MetricCategory = "ratelimit"
	CategoryReload    MetricCategory = "config"
)

// MetricsRegistry is the central registry for all Prometheus metrics,
// organized by category with lazy, once-only initialization per category
// so a binary that never touches, say, the rate limiter never pays for
// its metric vectors.
type MetricsRegistry struct {
	namespace string

	relay     *RelayMetrics
	pool      *PoolMetrics
	backend   *BackendMetrics
	rateLimit *RateLimitMetrics
	reload    *ReloadMetrics

	relayOnce     sync.Once
	poolOnce      sync.Once
	backendOnce   sync.Once
	rateLimitOnce sync.Once
	reloadOnce    sync.Once
}

var (
	defaultRegistry     *MetricsRegistry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the global singleton MetricsRegistry, safe for
// concurrent use, registered against the default Prometheus registerer.
func DefaultRegistry() *MetricsRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewMetricsRegistry("proxy")
	})
	return defaultRegistry
}

// NewMetricsRegistry creates a registry under the given namespace. Most
// callers want DefaultRegistry(); NewMetricsRegistry exists for tests
// that need isolated metric vectors.
func NewMetricsRegistry(namespace string) *MetricsRegistry {
	if namespace == "" {
		namespace = "proxy"
	}
	return &MetricsRegistry{namespace: namespace}
}

// Namespace returns the configured Prometheus namespace.
func (r *MetricsRegistry) Namespace() string {
	return r.namespace
}

// Relay returns the byte-relay engine's metrics (sessions, bytes, header
// injection), lazily initialized on first access.
func (r *MetricsRegistry) Relay() *RelayMetrics {
	r.relayOnce.Do(func() {
		r.relay = newRelayMetrics(r.namespace)
	})
	return r.relay
}

// Pool returns the connection pool's metrics (hits, misses, evictions,
// current size), lazily initialized on first access.
func (r *MetricsRegistry) Pool() *PoolMetrics {
	r.poolOnce.Do(func() {
		r.pool = newPoolMetrics(r.namespace)
	})
	return r.pool
}

// Backend returns per-backend roster and health metrics, lazily
// initialized on first access.
func (r *MetricsRegistry) Backend() *BackendMetrics {
	r.backendOnce.Do(func() {
		r.backend = newBackendMetrics(r.namespace)
	})
	return r.backend
}

// RateLimit returns the admission-control metrics, lazily initialized on
// first access.
func (r *MetricsRegistry) RateLimit() *RateLimitMetrics {
	r.rateLimitOnce.Do(func() {
		r.rateLimit = newRateLimitMetrics(r.namespace)
	})
	return r.rateLimit
}

// Reload returns the configuration hot-reload metrics, lazily
// initialized on first access.
func (r *MetricsRegistry) Reload() *ReloadMetrics {
	r.reloadOnce.Do(func() {
		r.reload = newReloadMetrics(r.namespace)
	})
	return r.reload
}
