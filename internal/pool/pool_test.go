package pool

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoListener starts a TCP listener that accepts connections and keeps
// them open (never writing), simulating an idle backend.
func echoListener(t *testing.T) (host string, port int, closeFn func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				buf := make([]byte, 1)
				for {
					if _, err := c.Read(buf); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port, func() { ln.Close() }
}

func TestPool_GetMissThenReturnThenHit(t *testing.T) {
	host, port, closeFn := echoListener(t)
	defer closeFn()

	p := New(Config{MaxSize: 4, DialTimeout: time.Second}, nil)

	conn, pooled, err := p.Get(host, port)
	require.NoError(t, err)
	assert.True(t, pooled)

	stats := p.Stats()
	assert.EqualValues(t, 0, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)

	p.Return(conn, host, port)

	conn2, pooled2, err := p.Get(host, port)
	require.NoError(t, err)
	assert.True(t, pooled2)
	assert.Same(t, conn, conn2)

	stats = p.Stats()
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
}

func TestPool_MaxRequestsRecyclesConnection(t *testing.T) {
	host, port, closeFn := echoListener(t)
	defer closeFn()

	p := New(Config{MaxSize: 4, MaxRequests: 1, DialTimeout: time.Second}, nil)

	conn, _, err := p.Get(host, port)
	require.NoError(t, err)
	p.Return(conn, host, port)

	// The returned entry already hit its request budget (requestsServed
	// was 1 from the dial), so Return closes it instead of parking it
	// and the next Get must dial a fresh connection.
	conn2, _, err := p.Get(host, port)
	require.NoError(t, err)
	assert.NotSame(t, conn, conn2)
}

func TestPool_TTLExpiryDisqualifies(t *testing.T) {
	host, port, closeFn := echoListener(t)
	defer closeFn()

	p := New(Config{MaxSize: 4, TTL: time.Millisecond, DialTimeout: time.Second}, nil)

	conn, _, err := p.Get(host, port)
	require.NoError(t, err)
	p.Return(conn, host, port)

	time.Sleep(5 * time.Millisecond)

	conn2, _, err := p.Get(host, port)
	require.NoError(t, err)
	assert.NotSame(t, conn, conn2)
}

func TestPool_ReturnUntrackedConnCloses(t *testing.T) {
	host, port, closeFn := echoListener(t)
	defer closeFn()

	p := New(Config{MaxSize: 1, DialTimeout: time.Second}, nil)

	raw, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	require.NoError(t, err)

	// raw was never leased by the pool, so Return must just close it
	// without touching pool bookkeeping.
	p.Return(raw, host, port)

	stats := p.Stats()
	assert.EqualValues(t, 0, stats.CurrentSize)
}

func TestPool_OverflowWhenFull(t *testing.T) {
	host, port, closeFn := echoListener(t)
	defer closeFn()

	p := New(Config{MaxSize: 1, DialTimeout: time.Second}, nil)

	conn1, pooled1, err := p.Get(host, port)
	require.NoError(t, err)
	assert.True(t, pooled1)
	// conn1 stays checked out (InUse), so the pool has zero free slots
	// and is at capacity: a second concurrent Get must overflow.
	conn2, pooled2, err := p.Get(host, port)
	require.NoError(t, err)
	assert.False(t, pooled2)
	assert.EqualValues(t, 1, p.Stats().Bypassed)

	p.Close(conn1)
	p.Close(conn2)
}

func TestPool_Cleanup(t *testing.T) {
	host, port, closeFn := echoListener(t)
	defer closeFn()

	p := New(Config{MaxSize: 4, TTL: time.Millisecond, DialTimeout: time.Second}, nil)

	conn, _, err := p.Get(host, port)
	require.NoError(t, err)
	p.Return(conn, host, port)

	time.Sleep(5 * time.Millisecond)

	evicted := p.Cleanup()
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 0, p.Stats().CurrentSize)
}

