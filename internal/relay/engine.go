// Package relay implements the byte-relay engine of §4.6: it accepts
// client connections, leases a backend connection via the pool,
// splices bytes between the two, and returns the backend connection to
// the pool (or discards it) depending on how the session ended.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/lordbasex/goproxylb/internal/backend"
	"github.com/lordbasex/goproxylb/internal/pool"
	"github.com/lordbasex/goproxylb/internal/ratelimit"
	"github.com/lordbasex/goproxylb/pkg/metrics"
)

// Config parameterizes an Engine beyond its collaborators.
type Config struct {
	MaxClients int
}

// Engine wires the roster, selection policy, connection pool and rate
// limiter into a running accept loop. All fields besides roster/policy
// may be nil; a nil limiter disables admission control.
type Engine struct {
	roster  *backend.Roster
	policy  backend.Policy
	pool    *pool.Pool
	limiter *ratelimit.Limiter

	relayMetrics   *metrics.RelayMetrics
	backendMetrics *metrics.BackendMetrics

	logger *slog.Logger
	sem    chan struct{}
}

// New constructs an Engine. logger/relayMetrics/backendMetrics/limiter
// may be nil.
func New(roster *backend.Roster, policy backend.Policy, p *pool.Pool, limiter *ratelimit.Limiter,
	relayMetrics *metrics.RelayMetrics, backendMetrics *metrics.BackendMetrics, logger *slog.Logger, cfg Config) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	maxClients := cfg.MaxClients
	if maxClients <= 0 {
		maxClients = 4096
	}
	return &Engine{
		roster:         roster,
		policy:         policy,
		pool:           p,
		limiter:        limiter,
		relayMetrics:   relayMetrics,
		backendMetrics: backendMetrics,
		logger:         logger,
		sem:            make(chan struct{}, maxClients),
	}
}

// Serve accepts connections from ln until ctx is canceled or Accept
// returns a non-transient error. Each accepted connection is leased a
// free slot from the bounded session "free list" (the sem channel); if
// the pool is exhausted the new connection is closed immediately and a
// warning logged, matching §4.6 step 1.
func (e *Engine) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}

		e.Admit(conn)
	}
}

// Admit hands conn to a new session goroutine if the bounded session
// free list has room, or closes it and warns if not (§4.6 step 1's
// "exhausted ⇒ close and warn" rule). Exported so an alternate accept
// loop (e.g. a reactor-driven listener) can feed it connections
// directly instead of going through Serve's own net.Listener.Accept
// loop.
func (e *Engine) Admit(conn net.Conn) {
	select {
	case e.sem <- struct{}{}:
		go func() {
			defer func() { <-e.sem }()
			e.handleConn(conn)
		}()
	default:
		e.logger.Warn("session capacity exhausted, dropping connection",
			"max_clients", cap(e.sem), "remote", conn.RemoteAddr())
		conn.Close()
	}
}

func (e *Engine) handleConn(conn net.Conn) {
	defer conn.Close()
	start := time.Now()

	clientIP := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(clientIP); err == nil {
		clientIP = host
	}

	if e.relayMetrics != nil {
		e.relayMetrics.SessionsTotal.Inc()
		e.relayMetrics.SessionsActive.Inc()
		defer e.relayMetrics.SessionsActive.Dec()
	}

	if e.limiter != nil && !e.limiter.Allow(clientIP) {
		conn.Write([]byte(tooManyRequestsResponse))
		if e.relayMetrics != nil {
			e.relayMetrics.RelayErrorsTotal.WithLabelValues("rate_limited").Inc()
		}
		return
	}

	b, backendConn, pooled, err := e.leaseBackend(clientIP)
	if err != nil {
		reason := "no_backend"
		if errors.Is(err, backend.ErrEmptyRoster) {
			conn.Write([]byte(serviceUnavailableResponse))
			reason = "empty_roster"
		} else {
			conn.Write([]byte(badGatewayResponse))
		}
		if e.relayMetrics != nil {
			e.relayMetrics.RelayErrorsTotal.WithLabelValues(reason).Inc()
		}
		e.logger.Warn("no backend available for session", "client", clientIP, "error", err)
		return
	}
	b.IncActive()
	defer b.DecActive()

	sess := newSession(conn, backendConn, clientIP, e.relayMetrics)
	e.logger.Debug("session started", "session_id", sess.id, "client", clientIP, "backend", b.Addr())
	sess.serve()
	e.logger.Debug("session ended", "session_id", sess.id, "keep_alive", sess.keepAlive,
		"bytes_in", sess.bytesIn, "bytes_out", sess.bytesOut)

	b.IncTotalRequests()
	b.AddBytes(sess.bytesIn, sess.bytesOut)

	if sess.keepAlive && pooled {
		e.pool.Return(backendConn, b.Host, b.Port)
	} else {
		e.pool.Close(backendConn)
	}

	if e.relayMetrics != nil {
		e.relayMetrics.SessionDuration.Observe(time.Since(start).Seconds())
	}
}

// ActiveSessions returns the number of sessions currently relaying
// bytes, for the drain wait on shutdown (§4.7).
func (e *Engine) ActiveSessions() int {
	return len(e.sem)
}

// leaseBackend selects a backend and leases a pool connection, retrying
// once against a freshly selected backend on failure before giving up
// per §8's "transient backend failure" recovery rule.
func (e *Engine) leaseBackend(clientIP string) (*backend.Backend, net.Conn, bool, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		b, err := backend.Select(e.policy, e.roster, clientIP, e.backendMetrics)
		if err != nil {
			return nil, nil, false, err
		}
		conn, pooled, err := e.pool.Get(b.Host, b.Port)
		if err == nil {
			return b, conn, pooled, nil
		}
		b.RecordFailure()
		lastErr = err
	}
	if lastErr == nil {
		lastErr = ErrBackendUnavailable
	}
	return nil, nil, false, lastErr
}
