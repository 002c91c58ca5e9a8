// Package admin runs the proxy's administrative HTTP surface: the
// Prometheus /metrics exposition and a /healthz roster summary, on a
// listener separate from the data-plane port. Grounded on GoBalance's
// main.go, which wires the equivalent mux.Handle("/metrics",
// promhttp.Handler()) and a /lb-health endpoint alongside its own
// http.Server, and on the teacher's cmd/server/main.go shutdown shape.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lordbasex/goproxylb/internal/backend"
	"github.com/lordbasex/goproxylb/internal/config"
	"github.com/lordbasex/goproxylb/internal/pool"
	"github.com/lordbasex/goproxylb/pkg/logger"
)

// Server is the admin HTTP listener. The zero value is not usable;
// construct with New.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds an admin Server bound to cfg.Port, serving cfg.Path as the
// Prometheus exposition endpoint and /healthz as a roster health
// summary. log may be nil.
func New(cfg config.MetricsConfig, roster *backend.Roster, p *pool.Pool, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	mux.HandleFunc("/healthz", healthzHandler(roster))
	mux.HandleFunc("/stats", statsHandler(roster, p))

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: logger.LoggingMiddleware(log)(mux),
		},
		logger: log,
	}
}

// Run starts the listener and blocks until ctx is canceled, then
// shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin listener starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func healthzHandler(roster *backend.Roster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		healthy := 0
		for _, b := range roster.Backends() {
			if b.IsHealthy() {
				healthy++
			}
		}
		if healthy == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, "no healthy backends")
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok: %d healthy backend(s)\n", healthy)
	}
}

// statsSnapshot is the JSON body served by /stats, also reused verbatim
// for the SIGUSR1 console snapshot (§6 "prints a statistics snapshot").
type statsSnapshot struct {
	Backends []backendStat `json:"backends"`
	Pool     pool.Stats    `json:"pool"`
}

type backendStat struct {
	Addr              string    `json:"addr"`
	Healthy           bool      `json:"healthy"`
	ActiveConnections int64     `json:"active_connections"`
	FailedRequests    int64     `json:"failed_requests"`
	TotalRequests     int64     `json:"total_requests"`
	BytesIn           int64     `json:"bytes_in"`
	BytesOut          int64     `json:"bytes_out"`
	LastHealthCheck   time.Time `json:"last_health_check,omitempty"`
}

// Snapshot builds the current statistics snapshot, shared by the
// /stats handler and the SIGUSR1 signal handler.
func Snapshot(roster *backend.Roster, p *pool.Pool) statsSnapshot {
	backends := roster.Backends()
	out := statsSnapshot{Backends: make([]backendStat, 0, len(backends))}
	for _, b := range backends {
		out.Backends = append(out.Backends, backendStat{
			Addr:              b.Addr(),
			Healthy:           b.IsHealthy(),
			ActiveConnections: b.ActiveConnections(),
			FailedRequests:    b.FailedRequests(),
			TotalRequests:     b.TotalRequests(),
			BytesIn:           b.BytesIn(),
			BytesOut:          b.BytesOut(),
			LastHealthCheck:   b.LastHealthCheck(),
		})
	}
	out.Pool = p.Stats()
	return out
}

func statsHandler(roster *backend.Roster, p *pool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Snapshot(roster, p))
	}
}
