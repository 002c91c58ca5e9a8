// Package backend maintains the backend roster, the four selection
// policies, and the health supervisor that keeps each backend's
// reachability current.
package backend

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Backend is one upstream server in the roster.
type Backend struct {
	Host           string
	Port           int
	Weight         int
	MaxConnections int

	healthy atomic.Bool

	cwMu          sync.Mutex
	currentWeight int

	activeConnections int64
	failedRequests    int64
	totalRequests     int64
	bytesIn           int64
	bytesOut          int64
	lastHealthCheck   int64 // unix nanoseconds; 0 until the first probe
}

// NewBackend constructs a Backend starting in the healthy state. A
// non-positive weight is normalized to 1.
func NewBackend(host string, port, weight, maxConnections int) *Backend {
	if weight <= 0 {
		weight = 1
	}
	b := &Backend{
		Host:           host,
		Port:           port,
		Weight:         weight,
		MaxConnections: maxConnections,
	}
	b.healthy.Store(true)
	return b
}

// Addr returns the "host:port" dial target.
func (b *Backend) Addr() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

// IsHealthy reports the backend's current health state.
func (b *Backend) IsHealthy() bool {
	return b.healthy.Load()
}

// SetHealthy sets the health state and reports whether it changed.
func (b *Backend) SetHealthy(healthy bool) (changed bool) {
	return b.healthy.Swap(healthy) != healthy
}

// RecordFailure implements reactive marking: a session's dial to this
// backend failed at lease time, so mark it unhealthy immediately
// instead of waiting for the next health-check tick.
func (b *Backend) RecordFailure() {
	atomic.AddInt64(&b.failedRequests, 1)
	b.healthy.Store(false)
}

// FailedRequests returns the lease-time dial failure count.
func (b *Backend) FailedRequests() int64 {
	return atomic.LoadInt64(&b.failedRequests)
}

// ActiveConnections returns the number of connections currently
// leased to this backend, pooled or not.
func (b *Backend) ActiveConnections() int64 {
	return atomic.LoadInt64(&b.activeConnections)
}

// IncActive records a new connection leased to this backend.
func (b *Backend) IncActive() {
	atomic.AddInt64(&b.activeConnections, 1)
}

// DecActive records a connection released back from this backend.
func (b *Backend) DecActive() {
	atomic.AddInt64(&b.activeConnections, -1)
}

// TotalRequests returns the number of sessions the relay engine has
// completed against this backend.
func (b *Backend) TotalRequests() int64 {
	return atomic.LoadInt64(&b.totalRequests)
}

// IncTotalRequests records one completed relay session.
func (b *Backend) IncTotalRequests() {
	atomic.AddInt64(&b.totalRequests, 1)
}

// BytesIn returns the cumulative bytes read from this backend and
// written to clients.
func (b *Backend) BytesIn() int64 {
	return atomic.LoadInt64(&b.bytesIn)
}

// BytesOut returns the cumulative bytes read from clients and written
// to this backend.
func (b *Backend) BytesOut() int64 {
	return atomic.LoadInt64(&b.bytesOut)
}

// AddBytes accumulates the byte counts of one finished relay session.
func (b *Backend) AddBytes(in, out int64) {
	atomic.AddInt64(&b.bytesIn, in)
	atomic.AddInt64(&b.bytesOut, out)
}

// LastHealthCheck returns the time of the most recent health probe, or
// the zero Time if none has run yet.
func (b *Backend) LastHealthCheck() time.Time {
	ns := atomic.LoadInt64(&b.lastHealthCheck)
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// SetLastHealthCheck stamps the time of a completed health probe.
func (b *Backend) SetLastHealthCheck(t time.Time) {
	atomic.StoreInt64(&b.lastHealthCheck, t.UnixNano())
}
