package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lordbasex/goproxylb/internal/admin"
	"github.com/lordbasex/goproxylb/internal/backend"
	"github.com/lordbasex/goproxylb/internal/config"
	"github.com/lordbasex/goproxylb/internal/pool"
)

// signalHandler dispatches the process's external control surface onto
// the running proxy: SIGTERM/SIGINT drain and stop the accept loop,
// SIGHUP triggers a hot reload of the same file the process started
// with, SIGUSR1 dumps a statistics snapshot, and SIGUSR2 is the
// successor-initiated drain signal used by the pidfile handoff.
// Grounded on the teacher's cmd/server/signal.go SignalHandler, minus
// its debounce window — ReloadCoordinator.ReloadFromFile is already
// idempotent against a no-op reload, so repeated SIGHUPs in quick
// succession cost nothing beyond re-reading the file.
type signalHandler struct {
	coord      *config.ReloadCoordinator
	configPath string
	roster     *backend.Roster
	pool       *pool.Pool
	cancel     context.CancelFunc
	logger     *slog.Logger

	sigCh chan os.Signal
}

func newSignalHandler(coord *config.ReloadCoordinator, configPath string, roster *backend.Roster,
	p *pool.Pool, cancel context.CancelFunc, logger *slog.Logger) *signalHandler {
	sh := &signalHandler{
		coord:      coord,
		configPath: configPath,
		roster:     roster,
		pool:       p,
		cancel:     cancel,
		logger:     logger,
		sigCh:      make(chan os.Signal, 4),
	}
	signal.Notify(sh.sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGUSR2)
	return sh
}

func (sh *signalHandler) run(ctx context.Context) {
	defer signal.Stop(sh.sigCh)
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sh.sigCh:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT, syscall.SIGUSR2:
				sh.logger.Info("received shutdown signal, draining", "signal", sig)
				sh.cancel()
				return
			case syscall.SIGHUP:
				sh.reload()
			case syscall.SIGUSR1:
				sh.printSnapshot()
			}
		}
	}
}

func (sh *signalHandler) reload() {
	changed, err := sh.coord.ReloadFromFile(sh.configPath)
	if err != nil {
		sh.logger.Error("reload failed", "error", err)
		return
	}
	if !changed {
		sh.logger.Info("reload: no semantic change")
		return
	}
	applyReloadedRoster(sh.roster, sh.coord.Current())
	sh.logger.Info("reload applied")
}

// applyReloadedRoster rebuilds the roster's backend list from a freshly
// applied Config. Shared between the SIGHUP path and the fsnotify
// watcher so both propagate a reload identically.
func applyReloadedRoster(roster *backend.Roster, cfg *config.Config) {
	backends := make([]*backend.Backend, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		backends = append(backends, backend.NewBackend(b.Host, b.Port, b.Weight, b.MaxConnections))
	}
	roster.Replace(backends)
}

func (sh *signalHandler) printSnapshot() {
	snap := admin.Snapshot(sh.roster, sh.pool)
	out, err := json.Marshal(snap)
	if err != nil {
		sh.logger.Error("snapshot encode failed", "error", err)
		return
	}
	sh.logger.Info("statistics snapshot", "snapshot", string(out))
}
