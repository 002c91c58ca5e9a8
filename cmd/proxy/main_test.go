package main

import (
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lordbasex/goproxylb/internal/backend"
	"github.com/lordbasex/goproxylb/internal/pool"
	"github.com/lordbasex/goproxylb/internal/relay"
)

// fakeActiveSession occupies one of engine's session slots by admitting
// a net.Pipe client end against a real (but silent) backend listener.
// The returned release func closes the pipe's other end, letting the
// session's client-read pump observe EOF and finish.
func fakeActiveSession(t *testing.T, engine *relay.Engine, roster *backend.Roster) (client net.Conn, release func()) {
	t.Helper()

	backendLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			c, err := backendLn.Accept()
			if err != nil {
				return
			}
			go func() {
				buf := make([]byte, 1)
				for {
					if _, err := c.Read(buf); err != nil {
						c.Close()
						return
					}
				}
			}()
		}
	}()
	addr := backendLn.Addr().(*net.TCPAddr)
	roster.Replace([]*backend.Backend{backend.NewBackend("127.0.0.1", addr.Port, 1, 0)})

	client, other := net.Pipe()
	engine.Admit(client)

	require.Eventually(t, func() bool { return engine.ActiveSessions() == 1 }, time.Second, 5*time.Millisecond)

	return client, func() {
		other.Close()
		backendLn.Close()
	}
}

func TestDrainSessions_ReturnsImmediatelyWhenIdle(t *testing.T) {
	roster := backend.NewRoster(nil)
	p := pool.New(pool.Config{MaxSize: 4}, nil)
	engine := relay.New(roster, backend.RoundRobin{}, p, nil, nil, nil, nil, relay.Config{MaxClients: 10})

	start := time.Now()
	drainSessions(engine, time.Second, slog.Default())
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestDrainSessions_WaitsForActiveSessionToFinish(t *testing.T) {
	roster := backend.NewRoster(nil)
	p := pool.New(pool.Config{MaxSize: 4}, nil)
	engine := relay.New(roster, backend.RoundRobin{}, p, nil, nil, nil, nil, relay.Config{MaxClients: 10})

	conn, release := fakeActiveSession(t, engine, roster)
	defer conn.Close()

	go func() {
		time.Sleep(150 * time.Millisecond)
		release()
	}()

	start := time.Now()
	drainSessions(engine, 2*time.Second, slog.Default())
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestDrainSessions_TimesOutWithSessionStillActive(t *testing.T) {
	roster := backend.NewRoster(nil)
	p := pool.New(pool.Config{MaxSize: 4}, nil)
	engine := relay.New(roster, backend.RoundRobin{}, p, nil, nil, nil, nil, relay.Config{MaxClients: 10})

	conn, release := fakeActiveSession(t, engine, roster)
	defer release()
	defer conn.Close()

	start := time.Now()
	drainSessions(engine, 150*time.Millisecond, slog.Default())
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.EqualValues(t, 1, engine.ActiveSessions())
}
