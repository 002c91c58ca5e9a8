package backend

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/lordbasex/goproxylb/pkg/metrics"
)

// Supervisor periodically probes every backend in a roster and flips
// its health state, logging transitions. A dial failure at lease time
// (see Backend.RecordFailure) marks a backend down faster than the
// periodic tick; the supervisor's job is to notice recovery and to
// catch backends that never get leased while down.
type Supervisor struct {
	roster      *Roster
	interval    time.Duration
	dialTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.BackendMetrics
}

// NewSupervisor constructs a Supervisor. logger/m may be nil.
func NewSupervisor(roster *Roster, interval, dialTimeout time.Duration, logger *slog.Logger, m *metrics.BackendMetrics) *Supervisor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if dialTimeout <= 0 {
		dialTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		roster:      roster,
		interval:    interval,
		dialTimeout: dialTimeout,
		logger:      logger,
		metrics:     m,
	}
}

// Run blocks, probing the roster on every tick, until ctx is canceled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.probeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probeAll()
		}
	}
}

func (s *Supervisor) probeAll() {
	for _, b := range s.roster.Backends() {
		go s.probeOne(b)
	}
}

// probeOne implements the §4.4 probe: a connect with a bounded
// readiness wait, interpreting success as healthy and any error
// (including timeout) as unhealthy. The probe connection is never
// pooled and is closed immediately.
func (s *Supervisor) probeOne(b *Backend) {
	start := time.Now()
	conn, err := net.DialTimeout("tcp", b.Addr(), s.dialTimeout)
	healthy := err == nil
	if healthy {
		conn.Close()
	}
	duration := time.Since(start)
	b.SetLastHealthCheck(time.Now())

	if s.metrics != nil {
		s.metrics.ProbeDuration.WithLabelValues(b.Addr()).Observe(duration.Seconds())
		if !healthy {
			s.metrics.ProbeFailures.WithLabelValues(b.Addr()).Inc()
		}
	}

	if changed := b.SetHealthy(healthy); changed {
		s.logger.Info("backend health transition",
			"backend", b.Addr(), "healthy", healthy, "probe_duration", duration)
		if s.metrics != nil {
			val := 0.0
			if healthy {
				val = 1.0
			} else {
				s.metrics.MarkedDownTotal.WithLabelValues(b.Addr(), "probe").Inc()
			}
			s.metrics.HealthStatus.WithLabelValues(b.Addr()).Set(val)
		}
	}
}
