package relay

import "errors"

// ErrNoCapacity names the condition of an exhausted session free list
// (max_clients reached). Engine.Admit does not return it: it closes the
// rejected connection and logs a warning.
var ErrNoCapacity = errors.New("relay: session capacity exhausted")

// ErrBackendUnavailable is returned when no backend could be leased
// after the single retry §8 calls for.
var ErrBackendUnavailable = errors.New("relay: no backend available")

// badGatewayResponse is written to the client verbatim when a backend
// was selected but could not be reached (dial failure on both
// attempts), before the client connection is closed.
const badGatewayResponse = "HTTP/1.1 502 Bad Gateway\r\n" +
	"Content-Type: text/plain\r\n" +
	"Content-Length: 25\r\n" +
	"Connection: close\r\n" +
	"\r\n" +
	"502 - Backend Unavailable"

// serviceUnavailableResponse is written when the roster itself has
// nothing to select from (empty roster).
const serviceUnavailableResponse = "HTTP/1.1 503 Service Unavailable\r\n" +
	"Content-Type: text/plain\r\n" +
	"Content-Length: 28\r\n" +
	"Connection: close\r\n" +
	"\r\n" +
	"503 - No Backends Configured"

// tooManyRequestsResponse is written when the rate limiter denies a
// session before any backend is leased, per §7's admission-denial rule.
const tooManyRequestsResponse = "HTTP/1.1 429 Too Many Requests\r\n" +
	"Content-Length: 0\r\n" +
	"Connection: close\r\n" +
	"\r\n"
