package config

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lordbasex/goproxylb/pkg/metrics"
)

// ReloadCoordinator owns the live Config and orchestrates hot reload.
//
// The current configuration is held in an atomic.Pointer so that any
// reactor-goroutine read of Current() never blocks on a reload in
// progress, and a reload never mutates a Config a session still holds a
// pointer to (§4.7: reload never closes live sessions; new sessions pick
// up the swapped pointer).
type ReloadCoordinator struct {
	current atomic.Pointer[Config]

	mu            sync.Mutex
	reloadVersion int64

	logger  *slog.Logger
	metrics *metrics.ReloadMetrics
}

// SetMetrics attaches a metrics sink for subsequent reloads. Left
// unset, reload outcomes are only logged. Kept separate from
// NewReloadCoordinator so existing callers/tests that construct a
// coordinator without a registry are unaffected.
func (rc *ReloadCoordinator) SetMetrics(m *metrics.ReloadMetrics) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.metrics = m
	if m != nil {
		m.CurrentVersion.Set(float64(rc.reloadVersion))
	}
}

// NewReloadCoordinator wraps an already-validated initial configuration.
func NewReloadCoordinator(initial *Config, logger *slog.Logger) *ReloadCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	rc := &ReloadCoordinator{
		reloadVersion: 1,
		logger:        logger,
	}
	rc.current.Store(initial)
	return rc
}

// Current returns the live configuration. Safe for concurrent callers.
func (rc *ReloadCoordinator) Current() *Config {
	return rc.current.Load()
}

// Version returns the number of configs successfully applied so far.
func (rc *ReloadCoordinator) Version() int64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.reloadVersion
}

// ReloadFromFile implements the §4.7 reload protocol: parse, validate,
// compare, and atomically swap. It never mutates the previous Config and
// never returns an error that should terminate the process — validation
// failures are logged and the old configuration is retained.
func (rc *ReloadCoordinator) ReloadFromFile(path string) (changed bool, err error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	start := time.Now()
	old := rc.current.Load()

	newCfg, err := LoadConfig(path)
	if err != nil {
		rc.logger.Error("config reload failed: load/validate",
			"path", path, "error", err, "duration", time.Since(start))
		rc.recordOutcome("rejected", start)
		return false, fmt.Errorf("reload %q: %w", path, err)
	}

	if Equal(old, newCfg) {
		rc.logger.Info("config reload: no semantic change", "path", path)
		rc.recordOutcome("noop", start)
		return false, nil
	}

	rc.current.Store(newCfg)
	rc.reloadVersion++

	rc.logger.Info("config reloaded",
		"path", path,
		"version", rc.reloadVersion,
		"backends", len(newCfg.Backends),
		"algorithm", newCfg.Algorithm,
		"duration", time.Since(start),
	)
	rc.recordOutcome("applied", start)
	return true, nil
}

// recordOutcome must be called with rc.mu held.
func (rc *ReloadCoordinator) recordOutcome(outcome string, start time.Time) {
	if rc.metrics == nil {
		return
	}
	rc.metrics.ReloadsTotal.WithLabelValues(outcome).Inc()
	rc.metrics.ReloadDuration.Observe(time.Since(start).Seconds())
	rc.metrics.CurrentVersion.Set(float64(rc.reloadVersion))
}
