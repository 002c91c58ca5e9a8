package metrics

import (
	"sync"
	"testing"
)

func TestDefaultRegistry_Singleton(t *testing.T) {
	registry1 := DefaultRegistry()
	registry2 := DefaultRegistry()

	if registry1 != registry2 {
		t.Error("DefaultRegistry() should return singleton instance")
	}
}

func TestDefaultRegistry_ConcurrentAccess(t *testing.T) {
	var wg sync.WaitGroup
	registries := make([]*MetricsRegistry, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			registries[index] = DefaultRegistry()
		}(i)
	}

	wg.Wait()

	first := registries[0]
	for i := 1; i < len(registries); i++ {
		if registries[i] != first {
			t.Errorf("Registry at index %d is not the same instance", i)
		}
	}
}

func TestNewMetricsRegistry(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
		expected  string
	}{
		{
			name:      "with custom namespace",
			namespace: "test_service",
			expected:  "test_service",
		},
		{
			name:      "with empty namespace (should default)",
			namespace: "",
			expected:  "proxy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewMetricsRegistry(tt.namespace)
			if registry.Namespace() != tt.expected {
				t.Errorf("Namespace() = %q, want %q", registry.Namespace(), tt.expected)
			}
		})
	}
}

func TestMetricsRegistry_Relay(t *testing.T) {
	registry := NewMetricsRegistry("test_reg_relay")

	relay1 := registry.Relay()
	if relay1 == nil {
		t.Fatal("Relay() returned nil")
	}

	relay2 := registry.Relay()
	if relay1 != relay2 {
		t.Error("Relay() should return same instance on subsequent calls")
	}

	if relay1.SessionsTotal == nil {
		t.Error("SessionsTotal not initialized")
	}
	if relay1.SessionDuration == nil {
		t.Error("SessionDuration not initialized")
	}
	if relay1.HeaderInjections == nil {
		t.Error("HeaderInjections not initialized")
	}
}

func TestMetricsRegistry_Pool(t *testing.T) {
	registry := NewMetricsRegistry("test_reg_pool")

	pool1 := registry.Pool()
	if pool1 == nil {
		t.Fatal("Pool() returned nil")
	}

	pool2 := registry.Pool()
	if pool1 != pool2 {
		t.Error("Pool() should return same instance on subsequent calls")
	}

	if pool1.HitsTotal == nil {
		t.Error("HitsTotal not initialized")
	}
	if pool1.EvictionsTotal == nil {
		t.Error("EvictionsTotal not initialized")
	}
}

func TestMetricsRegistry_Backend(t *testing.T) {
	registry := NewMetricsRegistry("test_reg_backend")

	backend1 := registry.Backend()
	if backend1 == nil {
		t.Fatal("Backend() returned nil")
	}

	backend2 := registry.Backend()
	if backend1 != backend2 {
		t.Error("Backend() should return same instance on subsequent calls")
	}

	if backend1.HealthStatus == nil {
		t.Error("HealthStatus not initialized")
	}
	if backend1.SelectionsTotal == nil {
		t.Error("SelectionsTotal not initialized")
	}
}

func TestMetricsRegistry_RateLimit(t *testing.T) {
	registry := NewMetricsRegistry("test_reg_ratelimit")

	rl1 := registry.RateLimit()
	if rl1 == nil {
		t.Fatal("RateLimit() returned nil")
	}

	rl2 := registry.RateLimit()
	if rl1 != rl2 {
		t.Error("RateLimit() should return same instance on subsequent calls")
	}

	if rl1.AllowedTotal == nil {
		t.Error("AllowedTotal not initialized")
	}
	if rl1.RejectedTotal == nil {
		t.Error("RejectedTotal not initialized")
	}
}

func TestMetricsRegistry_Reload(t *testing.T) {
	registry := NewMetricsRegistry("test_reg_reload")

	reload1 := registry.Reload()
	if reload1 == nil {
		t.Fatal("Reload() returned nil")
	}

	reload2 := registry.Reload()
	if reload1 != reload2 {
		t.Error("Reload() should return same instance on subsequent calls")
	}

	if reload1.ReloadsTotal == nil {
		t.Error("ReloadsTotal not initialized")
	}
	if reload1.CurrentVersion == nil {
		t.Error("CurrentVersion not initialized")
	}
}

func TestMetricsRegistry_LazyInitialization(t *testing.T) {
	registry := NewMetricsRegistry("test_lazy_init_unique")

	if registry.relay != nil {
		t.Error("relay should be nil before first access")
	}
	if registry.backend != nil {
		t.Error("backend should be nil before first access")
	}

	_ = registry.Relay()
	if registry.relay == nil {
		t.Error("relay should be initialized after access")
	}
	if registry.backend != nil {
		t.Error("backend should still be nil (not accessed yet)")
	}

	_ = registry.Backend()
	if registry.backend == nil {
		t.Error("backend should be initialized after access")
	}
}

func BenchmarkDefaultRegistry(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = DefaultRegistry()
	}
}

func BenchmarkMetricsRegistry_Relay(b *testing.B) {
	registry := DefaultRegistry()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = registry.Relay()
	}
}

func BenchmarkMetricsRegistry_AllCategories(b *testing.B) {
	registry := DefaultRegistry()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = registry.Relay()
		_ = registry.Pool()
		_ = registry.Backend()
		_ = registry.RateLimit()
		_ = registry.Reload()
	}
}
