// Package config loads, validates, and hot-reloads the proxy configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Algorithm names the backend selection policy.
type Algorithm string

const (
	AlgorithmRoundRobin       Algorithm = "round_robin"
	AlgorithmWeighted         Algorithm = "weighted"
	AlgorithmLeastConnections Algorithm = "least_connections"
	AlgorithmIPHash           Algorithm = "ip_hash"
)

// RateLimitAlgorithm names the admission-control algorithm.
type RateLimitAlgorithm string

const (
	RateLimitTokenBucket   RateLimitAlgorithm = "token_bucket"
	RateLimitSlidingWindow RateLimitAlgorithm = "sliding_window"
	RateLimitFixedWindow   RateLimitAlgorithm = "fixed_window"
)

// BackendSpec is one configured backend entry.
type BackendSpec struct {
	Host           string `mapstructure:"host" json:"host"`
	Port           int    `mapstructure:"port" json:"port"`
	Weight         int    `mapstructure:"weight" json:"weight"`
	MaxConnections int    `mapstructure:"max_connections" json:"max_connections"`
}

// PoolConfig configures the backend connection pool.
type PoolConfig struct {
	Enabled     bool          `mapstructure:"enabled" json:"enabled"`
	MaxSize     int           `mapstructure:"max_size" json:"max_size"`
	TTL         time.Duration `mapstructure:"ttl" json:"ttl"`
	MaxRequests int           `mapstructure:"max_requests" json:"max_requests"`
	CleanupIdle time.Duration `mapstructure:"cleanup_idle" json:"cleanup_idle"`
}

// RateLimitConfig configures the admission controller.
type RateLimitConfig struct {
	Enabled     bool               `mapstructure:"enabled" json:"enabled"`
	Algorithm   RateLimitAlgorithm `mapstructure:"algorithm" json:"algorithm"`
	PerIP       float64            `mapstructure:"per_ip" json:"per_ip"`
	Global      float64            `mapstructure:"global" json:"global"`
	Burst       float64            `mapstructure:"burst" json:"burst"`
	IdleTimeout time.Duration      `mapstructure:"idle_timeout" json:"idle_timeout"`
}

// TimeoutConfig groups the timeout knobs referenced throughout the proxy.
type TimeoutConfig struct {
	Connect time.Duration `mapstructure:"connect" json:"connect"`
	Read    time.Duration `mapstructure:"read" json:"read"`
	Write   time.Duration `mapstructure:"write" json:"write"`
	Idle    time.Duration `mapstructure:"idle" json:"idle"`
}

// MetricsConfig configures the admin HTTP listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Path    string `mapstructure:"path" json:"path"`
	Port    int    `mapstructure:"port" json:"port"`
}

// Config is the complete, validated, immutable proxy configuration.
//
// A *Config is never mutated after LoadConfig/ReloadConfig returns it;
// hot reload always produces a new instance and swaps the pointer.
type Config struct {
	ListenPort   int             `mapstructure:"listen_port" json:"listen_port"`
	BindAddress  string          `mapstructure:"bind_address" json:"bind_address"`
	Backlog      int             `mapstructure:"backlog" json:"backlog"`
	Algorithm    Algorithm       `mapstructure:"algorithm" json:"algorithm"`
	Backends     []BackendSpec   `mapstructure:"backends" json:"backends"`
	Pool         PoolConfig      `mapstructure:"pool" json:"pool"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit" json:"rate_limit"`
	Timeouts     TimeoutConfig   `mapstructure:"timeouts" json:"timeouts"`
	DrainTimeout time.Duration   `mapstructure:"drain_timeout" json:"drain_timeout"`
	MaxClients   int             `mapstructure:"max_clients" json:"max_clients"`

	// Metrics controls the admin HTTP listener exposing /metrics.
	Metrics MetricsConfig `mapstructure:"metrics" json:"metrics"`

	// filePath/fileMtime back Changed(); zero value for configs not
	// loaded from disk (e.g. constructed in tests).
	filePath  string
	fileMtime time.Time
}

// setDefaults installs every default named in the configuration spec.
func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_port", 8080)
	v.SetDefault("bind_address", "0.0.0.0")
	v.SetDefault("backlog", 128)
	v.SetDefault("algorithm", string(AlgorithmRoundRobin))

	v.SetDefault("timeouts.connect", "5s")
	v.SetDefault("timeouts.read", "30s")
	v.SetDefault("timeouts.write", "30s")
	v.SetDefault("timeouts.idle", "60s")
	v.SetDefault("drain_timeout", "30s")
	v.SetDefault("max_clients", 4096)

	v.SetDefault("pool.enabled", true)
	v.SetDefault("pool.max_size", 64)
	v.SetDefault("pool.ttl", "60s")
	v.SetDefault("pool.max_requests", 1000)
	v.SetDefault("pool.cleanup_idle", "30s")

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.algorithm", string(RateLimitTokenBucket))
	v.SetDefault("rate_limit.per_ip", 100)
	v.SetDefault("rate_limit.global", 0)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("rate_limit.idle_timeout", "300s")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.port", 9090)
}

// LoadConfig reads and validates the JSON configuration file at path.
// Unknown keys are ignored, per the configuration contract.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %q: %w", path, err)
	}

	cfg.filePath = path
	if info, err := os.Stat(path); err == nil {
		cfg.fileMtime = info.ModTime()
	}

	return &cfg, nil
}

// Validate rejects configurations that violate the documented invariants.
func (c *Config) Validate() error {
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("%w: listen_port %d out of range", ErrInvalidConfig, c.ListenPort)
	}
	if len(c.Backends) == 0 {
		return fmt.Errorf("%w: backend list is empty", ErrInvalidConfig)
	}
	for i, b := range c.Backends {
		if b.Host == "" {
			return fmt.Errorf("%w: backend[%d] has empty host", ErrInvalidConfig, i)
		}
		if b.Port <= 0 || b.Port > 65535 {
			return fmt.Errorf("%w: backend[%d] has invalid port %d", ErrInvalidConfig, i, b.Port)
		}
	}
	switch c.Algorithm {
	case AlgorithmRoundRobin, AlgorithmWeighted, AlgorithmLeastConnections, AlgorithmIPHash:
	default:
		return fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfig, c.Algorithm)
	}
	return nil
}

// Changed reports whether the backing file's mtime differs from the
// mtime recorded when c was loaded. A Config not loaded from a file
// (filePath == "") never reports a change.
func (c *Config) Changed() bool {
	if c.filePath == "" {
		return false
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return false
	}
	return !info.ModTime().Equal(c.fileMtime)
}

// FilePath returns the path c was loaded from, or "" if constructed in memory.
func (c *Config) FilePath() string {
	return c.filePath
}

// Equal performs the semantic comparison required by the hot-reload
// contract: listen port, policy, and ordered backend identities/weights.
func Equal(a, b *Config) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ListenPort != b.ListenPort || a.Algorithm != b.Algorithm {
		return false
	}
	if len(a.Backends) != len(b.Backends) {
		return false
	}
	for i := range a.Backends {
		if a.Backends[i].Host != b.Backends[i].Host ||
			a.Backends[i].Port != b.Backends[i].Port ||
			a.Backends[i].Weight != b.Backends[i].Weight {
			return false
		}
	}
	return true
}

// Serialize round-trips the validated subset of fields covered by this
// configuration contract back to JSON.
func (c *Config) Serialize() ([]byte, error) {
	return json.Marshal(c)
}
