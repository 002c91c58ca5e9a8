// Package ratelimit implements the admission controller described in
// §4.5: per-key token bucket, sliding window and fixed window
// algorithms, an optional global cap shared across all keys, and idle
// reclamation of stale per-key state.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lordbasex/goproxylb/internal/config"
	"github.com/lordbasex/goproxylb/pkg/metrics"
)

// Config parameterizes a Limiter. Rate and GlobalLimit are requests per
// second, matching the per_ip/global figures in the configuration file.
// The token bucket refills at Rate tokens per second up to Burst tokens;
// the window algorithms admit Rate*WindowSize requests per window
// (WindowSize defaults to one second).
type Config struct {
	Algorithm     config.RateLimitAlgorithm
	Rate          float64
	Burst         float64
	WindowSize    time.Duration
	GlobalLimit   float64
	IdleThreshold time.Duration
}

// entry holds the hand-tracked state for one key. Only one of the
// token-bucket fields or the window fields is meaningful at a time,
// depending on the limiter's algorithm; keeping both on one struct
// avoids an interface-per-key allocation for what is, in practice, a
// handful of float64s and a timestamp.
type entry struct {
	mu          sync.Mutex
	lastUpdate  time.Time
	tokens      float64
	windowStart time.Time
	windowCount float64
}

// Limiter is a per-key admission controller, optionally backed by a
// global cap. The zero value is not usable; construct with New.
type Limiter struct {
	mu      sync.RWMutex
	entries map[string]*entry

	algorithm     config.RateLimitAlgorithm
	rate          float64
	burst         float64
	windowSize    time.Duration
	idleThreshold time.Duration

	global *rate.Limiter // nil when GlobalLimit <= 0

	metrics *metrics.RateLimitMetrics
}

// New constructs a Limiter. m may be nil.
func New(cfg Config, m *metrics.RateLimitMetrics) *Limiter {
	windowSize := cfg.WindowSize
	if windowSize <= 0 {
		windowSize = time.Second
	}
	idle := cfg.IdleThreshold
	if idle <= 0 {
		idle = 300 * time.Second
	}

	l := &Limiter{
		entries:       make(map[string]*entry),
		algorithm:     cfg.Algorithm,
		rate:          cfg.Rate,
		burst:         cfg.Burst,
		windowSize:    windowSize,
		idleThreshold: idle,
		metrics:       m,
	}
	if cfg.GlobalLimit > 0 {
		l.global = rate.NewLimiter(rate.Limit(cfg.GlobalLimit), int(cfg.GlobalLimit))
	}
	return l
}

// Allow reports whether a request for key is admitted, updating the
// key's state and the global counters as a side effect.
func (l *Limiter) Allow(key string) bool {
	if l.global != nil && !l.global.Allow() {
		l.reject("global")
		return false
	}

	e := l.getOrCreate(key)

	e.mu.Lock()
	admitted := l.admit(e, time.Now())
	e.mu.Unlock()

	if admitted {
		l.accept()
	} else {
		l.reject("per_ip")
	}
	return admitted
}

// admit applies the configured algorithm against e at time now. Errors
// during entry creation fail open (§4.5); since entry creation here
// cannot itself fail, the fail-open contract is trivially satisfied.
func (l *Limiter) admit(e *entry, now time.Time) bool {
	prev := e.lastUpdate
	e.lastUpdate = now

	switch l.algorithm {
	case config.RateLimitSlidingWindow:
		return l.admitWindow(e, now, true)
	case config.RateLimitFixedWindow:
		return l.admitWindow(e, now, false)
	default:
		return l.admitTokenBucket(e, now, prev)
	}
}

func (l *Limiter) admitTokenBucket(e *entry, now, prev time.Time) bool {
	elapsed := now.Sub(prev).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	burst := l.burst
	if burst <= 0 {
		burst = 1
	}
	e.tokens += elapsed * l.rate
	if e.tokens > burst {
		e.tokens = burst
	}
	if e.tokens >= 1 {
		e.tokens--
		return true
	}
	return false
}

// admitWindow implements both the sliding and fixed window algorithms;
// carry controls whether expiry partially carries window_count forward
// (sliding) or resets it to zero (fixed).
func (l *Limiter) admitWindow(e *entry, now time.Time, carry bool) bool {
	if e.windowStart.IsZero() {
		e.windowStart = now
	}

	size := l.windowSize.Seconds()
	if elapsed := now.Sub(e.windowStart); elapsed >= l.windowSize {
		if carry {
			overflow := (elapsed - l.windowSize).Seconds()
			w := 1 - overflow/size
			if w < 0 {
				w = 0
			} else if w > 1 {
				w = 1
			}
			e.windowCount = float64(int64(w * e.windowCount))
		} else {
			e.windowCount = 0
		}
		e.windowStart = now
	}

	limit := l.rate * size
	if e.windowCount < limit {
		e.windowCount++
		return true
	}
	return false
}

func (l *Limiter) getOrCreate(key string) *entry {
	l.mu.RLock()
	e, ok := l.entries[key]
	l.mu.RUnlock()
	if ok {
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[key]; ok {
		return e
	}
	e = &entry{lastUpdate: time.Now(), tokens: l.burst}
	l.entries[key] = e
	if l.metrics != nil {
		l.metrics.TrackedKeys.WithLabelValues(string(l.algorithm)).Set(float64(len(l.entries)))
	}
	return e
}

func (l *Limiter) accept() {
	if l.metrics != nil {
		l.metrics.AllowedTotal.WithLabelValues(string(l.algorithm)).Inc()
	}
}

func (l *Limiter) reject(scope string) {
	if l.metrics != nil {
		l.metrics.RejectedTotal.WithLabelValues(string(l.algorithm), scope).Inc()
	}
}

// Cleanup removes entries whose last_update predates the configured
// idle threshold, reporting how many were reclaimed.
func (l *Limiter) Cleanup() int {
	cutoff := time.Now().Add(-l.idleThreshold)

	l.mu.Lock()
	defer l.mu.Unlock()

	reclaimed := 0
	for key, e := range l.entries {
		e.mu.Lock()
		stale := e.lastUpdate.Before(cutoff)
		e.mu.Unlock()
		if stale {
			delete(l.entries, key)
			reclaimed++
		}
	}
	if reclaimed > 0 && l.metrics != nil {
		l.metrics.ReclaimedTotal.WithLabelValues(string(l.algorithm)).Add(float64(reclaimed))
		l.metrics.TrackedKeys.WithLabelValues(string(l.algorithm)).Set(float64(len(l.entries)))
	}
	return reclaimed
}

// RunJanitor blocks, sweeping idle entries every interval, until ctx is
// canceled. Mirrors the teacher middleware's five-minute cleanup
// ticker goroutine.
func (l *Limiter) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = l.idleThreshold / 2
		if interval <= 0 {
			interval = 150 * time.Second
		}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}
