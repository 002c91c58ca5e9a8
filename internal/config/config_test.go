package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body map[string]any) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "proxy.json")
	data, err := json.Marshal(body)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func validBody() map[string]any {
	return map[string]any{
		"listen_port": 9000,
		"algorithm":   "round_robin",
		"backends": []map[string]any{
			{"host": "127.0.0.1", "port": 9001, "weight": 1},
		},
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfigFile(t, validBody())

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.BindAddress)
	assert.Equal(t, 128, cfg.Backlog)
	assert.Equal(t, 64, cfg.Pool.MaxSize)
	assert.Equal(t, 60*time.Second, cfg.Pool.TTL)
	assert.Equal(t, 1000, cfg.Pool.MaxRequests)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Connect)
	assert.Equal(t, 30*time.Second, cfg.DrainTimeout)
}

func TestLoadConfig_UnknownKeysIgnored(t *testing.T) {
	body := validBody()
	body["totally_unknown_field"] = "ignored"
	path := writeConfigFile(t, body)

	_, err := LoadConfig(path)
	require.NoError(t, err)
}

func TestValidate_RejectsBadPort(t *testing.T) {
	body := validBody()
	body["listen_port"] = 70000
	path := writeConfigFile(t, body)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate_RejectsEmptyBackends(t *testing.T) {
	body := validBody()
	body["backends"] = []map[string]any{}
	path := writeConfigFile(t, body)

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestValidate_RejectsEmptyHost(t *testing.T) {
	body := validBody()
	body["backends"] = []map[string]any{{"host": "", "port": 9001}}
	path := writeConfigFile(t, body)

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestValidate_RejectsUnknownAlgorithm(t *testing.T) {
	body := validBody()
	body["algorithm"] = "random"
	path := writeConfigFile(t, body)

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestEqual_SemanticComparison(t *testing.T) {
	a := &Config{ListenPort: 8080, Algorithm: AlgorithmRoundRobin, Backends: []BackendSpec{{Host: "a", Port: 1, Weight: 1}}}
	b := &Config{ListenPort: 8080, Algorithm: AlgorithmRoundRobin, Backends: []BackendSpec{{Host: "a", Port: 1, Weight: 1}}}
	assert.True(t, Equal(a, b))

	c := &Config{ListenPort: 8080, Algorithm: AlgorithmRoundRobin, Backends: []BackendSpec{{Host: "a", Port: 1, Weight: 2}}}
	assert.False(t, Equal(a, c))
}

func TestChanged_DetectsMtimeDrift(t *testing.T) {
	path := writeConfigFile(t, validBody())
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.Changed())

	// Touch the file with a later mtime.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))
	assert.True(t, cfg.Changed())
}

func TestSerialize_RoundTripsValidatedFields(t *testing.T) {
	path := writeConfigFile(t, validBody())
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	data, err := cfg.Serialize()
	require.NoError(t, err)

	var roundTripped Config
	require.NoError(t, json.Unmarshal(data, &roundTripped))
	assert.True(t, Equal(cfg, &roundTripped))
}
