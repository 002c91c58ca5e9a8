package pidfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestWriteThenRead_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.pid")
	require.NoError(t, Write(path, 4242))

	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)
}

func TestRead_MissingFileErrors(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "does-not-exist.pid"))
	assert.Error(t, err)
}

func TestRead_MalformedContentsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0o644))

	_, err := Read(path)
	assert.Error(t, err)
}

func TestAlive_TrueForOwnProcess(t *testing.T) {
	assert.True(t, Alive(os.Getpid()))
}

func TestSignalPredecessor_NoFileIsANoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.pid")
	assert.NoError(t, SignalPredecessor(path, unix.SIGUSR2))
}

func TestSignalPredecessor_OwnPIDIsANoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.pid")
	require.NoError(t, Write(path, os.Getpid()))
	assert.NoError(t, SignalPredecessor(path, unix.SIGUSR2))
}
