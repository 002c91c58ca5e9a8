// Command proxy is the load-balancing reverse proxy described across
// the system's modules: it accepts client connections on listen_port,
// leases a connection to a backend chosen by the configured policy,
// and relays bytes between the two until either side closes.
//
// Flag and signal handling follow the teacher's cmd/server/main.go
// shape (flag.Bool version/help, slog JSON setup, signal.Notify-driven
// graceful shutdown); the admin listener and config-watcher wiring
// order follow GoBalance's cmd/gobalance/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/lordbasex/goproxylb/internal/admin"
	"github.com/lordbasex/goproxylb/internal/backend"
	"github.com/lordbasex/goproxylb/internal/config"
	"github.com/lordbasex/goproxylb/internal/pidfile"
	"github.com/lordbasex/goproxylb/internal/pool"
	"github.com/lordbasex/goproxylb/internal/ratelimit"
	"github.com/lordbasex/goproxylb/internal/relay"
	"github.com/lordbasex/goproxylb/pkg/logger"
	"github.com/lordbasex/goproxylb/pkg/metrics"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "/etc/goproxylb/config.json", "path to the JSON configuration file")
	pidPath := flag.String("pidfile", "/var/run/goproxylb.pid", "path to the PID file")
	showVersion := flag.Bool("version", false, "print version and exit")
	showHelp := flag.Bool("help", false, "print usage and exit")
	flag.Parse()

	if *showHelp {
		flag.Usage()
		return
	}
	if *showVersion {
		fmt.Println("goproxylb version", version)
		return
	}

	if err := run(*configPath, *pidPath); err != nil {
		fmt.Fprintln(os.Stderr, "goproxylb:", err)
		os.Exit(1)
	}
}

func run(configPath, pidPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.NewLogger(logger.Config{Level: "info", Format: "json", Output: "stdout"})
	log.Info("starting", "version", version, "config", configPath, "listen_port", cfg.ListenPort)

	registry := metrics.DefaultRegistry()

	backends := make([]*backend.Backend, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		backends = append(backends, backend.NewBackend(b.Host, b.Port, b.Weight, b.MaxConnections))
	}
	roster := backend.NewRoster(backends)
	policy := backend.NewPolicy(string(cfg.Algorithm))

	connPool := pool.New(pool.Config{
		MaxSize:       cfg.Pool.MaxSize,
		TTL:           cfg.Pool.TTL,
		MaxRequests:   cfg.Pool.MaxRequests,
		IdleThreshold: cfg.Pool.CleanupIdle,
		DialTimeout:   cfg.Timeouts.Connect,
	}, registry.Pool())

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.Config{
			Algorithm:     cfg.RateLimit.Algorithm,
			Rate:          cfg.RateLimit.PerIP,
			Burst:         cfg.RateLimit.Burst,
			GlobalLimit:   cfg.RateLimit.Global,
			IdleThreshold: cfg.RateLimit.IdleTimeout,
		}, registry.RateLimit())
	}

	engine := relay.New(roster, policy, connPool, limiter,
		registry.Relay(), registry.Backend(), log, relay.Config{MaxClients: cfg.MaxClients})

	reloadCoord := config.NewReloadCoordinator(cfg, log)
	reloadCoord.SetMetrics(registry.Reload())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, err := config.NewWatcher(configPath, reloadCoord, func(newCfg *config.Config) {
		applyReloadedRoster(roster, newCfg)
	}, log)
	if err != nil {
		log.Warn("config watcher unavailable, falling back to SIGHUP-only reload", "error", err)
	} else {
		go watcher.Run(ctx)
	}

	supervisor := backend.NewSupervisor(roster, 5*time.Second, cfg.Timeouts.Connect, log, registry.Backend())
	go supervisor.Run(ctx)

	if limiter != nil {
		go limiter.RunJanitor(ctx, cfg.RateLimit.IdleTimeout)
	}

	go runPoolJanitor(ctx, connPool, cfg.Pool.CleanupIdle)

	if cfg.Metrics.Enabled {
		adminSrv := admin.New(cfg.Metrics, roster, connPool, log)
		go func() {
			if err := adminSrv.Run(ctx); err != nil {
				log.Error("admin listener stopped", "error", err)
			}
		}()
	}

	if err := pidfile.SignalPredecessor(pidPath, unix.SIGUSR2); err != nil {
		log.Warn("failed to signal predecessor", "error", err)
	}
	if err := pidfile.Write(pidPath, os.Getpid()); err != nil {
		log.Warn("failed to write pidfile", "path", pidPath, "error", err)
	}
	defer os.Remove(pidPath)

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.ListenPort))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		return fmt.Errorf("listener is not a TCP listener")
	}

	sig := newSignalHandler(reloadCoord, configPath, roster, connPool, cancel, log)
	go sig.run(ctx)

	acc, err := newAcceptor(tcpLn, engine, log)
	if err != nil {
		ln.Close()
		return fmt.Errorf("reactor setup: %w", err)
	}

	log.Info("listening", "addr", ln.Addr())
	if err := acc.run(ctx); err != nil {
		return fmt.Errorf("accept loop: %w", err)
	}

	ln.Close()
	drainSessions(engine, cfg.DrainTimeout, log)
	log.Info("shutdown complete")
	return nil
}

// drainSessions implements §4.7's "wait until active_connections==0 or
// drain_timeout elapses, then exit": the acceptor has already stopped
// admitting new connections by the time this runs, so the only thing
// left to wait on is the in-flight relay.Engine sessions finishing on
// their own.
func drainSessions(engine *relay.Engine, timeout time.Duration, log *slog.Logger) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if engine.ActiveSessions() == 0 {
		return
	}
	log.Info("draining active sessions", "active", engine.ActiveSessions(), "timeout", timeout)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if active := engine.ActiveSessions(); active == 0 {
				log.Info("drain complete")
				return
			}
		case <-deadline.C:
			log.Warn("drain timeout elapsed, exiting with sessions still active",
				"active", engine.ActiveSessions())
			return
		}
	}
}

func runPoolJanitor(ctx context.Context, p *pool.Pool, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Cleanup()
		}
	}
}

// ignoreSIGPIPE mirrors the C original's explicit SIGPIPE suppression;
// Go's net package never raises it for socket writes, but a signal
// handler is installed anyway so the external interface contract holds
// regardless of what else shares the process.
func ignoreSIGPIPE() {
	signal.Ignore(syscall.SIGPIPE)
}

func init() {
	ignoreSIGPIPE()
}
