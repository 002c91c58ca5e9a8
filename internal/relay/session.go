package relay

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lordbasex/goproxylb/pkg/metrics"
)

// pastDeadline is used to interrupt a pump's blocked Read once the
// other direction has finished, without closing the underlying
// connection (which may be handed back to the pool).
var pastDeadline = time.Unix(1, 0)

// scratchBufSize is the per-direction read buffer size, matching the
// BUFFER_SIZE used throughout the original chapter C sources.
// injectHeadroom is reserved capacity so injectHeaders can grow the
// first chunk in place without reallocating.
const (
	scratchBufSize = 8192
	injectHeadroom = 256
)

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, scratchBufSize)
		return &b
	},
}

// session relays one accepted client connection against one leased
// backend connection, implementing the §4.6 lifecycle: the first chunk
// read from the client gets its keep-alive disposition inspected and
// forwarding headers injected; everything after that is a transparent
// full-duplex splice until either side closes or errors.
type session struct {
	id       string
	client   net.Conn
	backend  net.Conn
	clientIP string
	m        *metrics.RelayMetrics

	keepAlive bool
	bytesOut  int64
	bytesIn   int64
}

// newSession assigns a session id purely for structured log
// correlation (it never touches the wire) — the id lets a single
// session's accept/lease/close log lines be grepped together without
// threading a request object through the relay.
func newSession(client, backend net.Conn, clientIP string, m *metrics.RelayMetrics) *session {
	return &session{id: uuid.NewString(), client: client, backend: backend, clientIP: clientIP, m: m, keepAlive: true}
}

// serve blocks until both directions finish. An error from either
// direction forces keepAlive false, per §4.6's "client-side error or
// backend-side error ⇒ keep_alive = false" rule; a clean client EOF
// leaves keepAlive as whatever the first request's Connection header
// decided.
//
// Once the client side ends, the backend is either going back to the
// pool or about to be closed either way — there is nothing left for
// this session to forward — so its pump is interrupted via a past
// read deadline rather than left blocked waiting for the backend to
// close on its own. The deadline is cleared before serve returns so a
// pooled connection isn't handed back already armed.
func (s *session) serve() {
	var wg sync.WaitGroup
	wg.Add(2)

	var clientErr, backendErr error
	go func() {
		defer wg.Done()
		clientErr = s.pumpClientToBackend()
		s.backend.SetReadDeadline(pastDeadline)
	}()
	go func() {
		defer wg.Done()
		backendErr = s.pumpBackendToClient()
	}()
	wg.Wait()
	s.backend.SetReadDeadline(time.Time{})

	if clientErr != nil {
		s.keepAlive = false
	}
	if backendErr != nil && !isTimeout(backendErr) {
		s.keepAlive = false
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

func (s *session) pumpClientToBackend() error {
	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)
	buf := *bufp
	readLimit := len(buf) - injectHeadroom

	first := true
	for {
		n, err := s.client.Read(buf[:readLimit])
		if n > 0 {
			chunk := buf[:n]
			if first {
				first = false
				injectedChunk, injected := injectHeaders(buf, n, s.clientIP)
				chunk = injectedChunk
				s.keepAlive = detectKeepAlive(chunk)
				if injected && s.m != nil {
					s.m.HeaderInjections.WithLabelValues("x_forwarded_for").Inc()
					s.m.HeaderInjections.WithLabelValues("x_real_ip").Inc()
				}
			}
			if _, werr := s.backend.Write(chunk); werr != nil {
				return werr
			}
			s.bytesOut += int64(len(chunk))
			if s.m != nil {
				s.m.BytesClientToBackend.Add(float64(len(chunk)))
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func (s *session) pumpBackendToClient() error {
	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)
	buf := *bufp

	for {
		n, err := s.backend.Read(buf)
		if n > 0 {
			if _, werr := s.client.Write(buf[:n]); werr != nil {
				return werr
			}
			s.bytesIn += int64(n)
			if s.m != nil {
				s.m.BytesBackendToClient.Add(float64(n))
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
