package config

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustWrite(t *testing.T, path string, body map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestReloadCoordinator_SwapsOnChange(t *testing.T) {
	path := writeConfigFile(t, validBody())
	initial, err := LoadConfig(path)
	require.NoError(t, err)

	rc := NewReloadCoordinator(initial, nil)
	assert.Equal(t, int64(1), rc.Version())

	updated := validBody()
	updated["backends"] = []map[string]any{
		{"host": "127.0.0.1", "port": 9001, "weight": 5},
	}
	mustWrite(t, path, updated)

	changed, err := rc.ReloadFromFile(path)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int64(2), rc.Version())
	assert.Equal(t, 5, rc.Current().Backends[0].Weight)
}

func TestReloadCoordinator_NoopOnSemanticEquality(t *testing.T) {
	path := writeConfigFile(t, validBody())
	initial, err := LoadConfig(path)
	require.NoError(t, err)

	rc := NewReloadCoordinator(initial, nil)

	changed, err := rc.ReloadFromFile(path)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, int64(1), rc.Version())
}

func TestReloadCoordinator_RetainsOldOnValidationFailure(t *testing.T) {
	path := writeConfigFile(t, validBody())
	initial, err := LoadConfig(path)
	require.NoError(t, err)

	rc := NewReloadCoordinator(initial, nil)

	mustWrite(t, path, map[string]any{"listen_port": 8080, "backends": []map[string]any{}})

	changed, err := rc.ReloadFromFile(path)
	require.Error(t, err)
	assert.False(t, changed)
	assert.Same(t, initial, rc.Current())
}
