//go:build linux

package reactor

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_SelectsEpollOnLinux(t *testing.T) {
	r, err := New(func(int, EventMask, any) {}, 0)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, "epoll", r.Backend())
}

func TestReactor_DispatchesOnReadable(t *testing.T) {
	rd, wr, err := os.Pipe()
	require.NoError(t, err)
	defer rd.Close()
	defer wr.Close()

	var mu sync.Mutex
	var gotFd int
	var gotMask EventMask
	dispatched := make(chan struct{}, 1)

	r, err := New(func(fd int, mask EventMask, data any) {
		mu.Lock()
		gotFd = fd
		gotMask = mask
		mu.Unlock()
		dispatched <- struct{}{}
	}, 0)
	require.NoError(t, err)
	defer r.Close()

	fd := int(rd.Fd())
	require.NoError(t, r.Add(fd, Read, "tag"))
	assert.Equal(t, 1, r.Len())

	_, err = wr.Write([]byte("x"))
	require.NoError(t, err)

	n, err := r.Run(1000)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	select {
	case <-dispatched:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}

	mu.Lock()
	assert.Equal(t, fd, gotFd)
	assert.NotZero(t, gotMask&Read)
	mu.Unlock()
}

func TestReactor_RemoveIsIdempotent(t *testing.T) {
	rd, wr, err := os.Pipe()
	require.NoError(t, err)
	defer rd.Close()
	defer wr.Close()

	r, err := New(func(int, EventMask, any) {}, 0)
	require.NoError(t, err)
	defer r.Close()

	fd := int(rd.Fd())
	require.NoError(t, r.Add(fd, Read, nil))
	require.NoError(t, r.Remove(fd))
	// Removing again, or removing an fd never added, must not error.
	assert.NoError(t, r.Remove(fd))
	assert.NoError(t, r.Remove(99999))
}

func TestReactor_ModifyUnregisteredFails(t *testing.T) {
	r, err := New(func(int, EventMask, any) {}, 0)
	require.NoError(t, err)
	defer r.Close()

	err = r.Modify(42, Write)
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestReactor_AddTwiceModifiesInPlace(t *testing.T) {
	rd, wr, err := os.Pipe()
	require.NoError(t, err)
	defer rd.Close()
	defer wr.Close()

	r, err := New(func(int, EventMask, any) {}, 0)
	require.NoError(t, err)
	defer r.Close()

	fd := int(rd.Fd())
	require.NoError(t, r.Add(fd, Read, "first"))
	require.NoError(t, r.Add(fd, Read|Write, "second"))
	assert.Equal(t, 1, r.Len())
}

func TestReactor_OperationsFailAfterClose(t *testing.T) {
	r, err := New(func(int, EventMask, any) {}, 0)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	assert.ErrorIs(t, r.Add(1, Read, nil), ErrClosed)
	_, runErr := r.Run(0)
	assert.ErrorIs(t, runErr, ErrClosed)
	// Close is idempotent.
	assert.NoError(t, r.Close())
}
