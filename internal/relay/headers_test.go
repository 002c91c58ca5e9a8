package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInjectHeaders_InsertsAfterRequestLine(t *testing.T) {
	req := "GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"
	buf := make([]byte, scratchBufSize)
	n := copy(buf, req)

	out, injected := injectHeaders(buf, n, "203.0.113.7")
	assert.True(t, injected)
	assert.Equal(t, "GET / HTTP/1.1\r\nX-Forwarded-For: 203.0.113.7\r\nX-Real-IP: 203.0.113.7\r\nHost: example.com\r\n\r\n", string(out))
}

func TestInjectHeaders_SkipsWhenNoRequestLine(t *testing.T) {
	buf := make([]byte, scratchBufSize)
	n := copy(buf, "not an http request")

	out, injected := injectHeaders(buf, n, "203.0.113.7")
	assert.False(t, injected)
	assert.Equal(t, "not an http request", string(out))
}

func TestInjectHeaders_SkipsWhenItWouldOverflowBuffer(t *testing.T) {
	buf := make([]byte, 32) // only 12 bytes of headroom past the 20-byte request
	n := copy(buf, "GET / HTTP/1.1\r\nrest")

	out, injected := injectHeaders(buf, n, "an-ip-long-enough-to-overflow-this-tiny-buffer")
	assert.False(t, injected)
	assert.Equal(t, n, len(out))
}

func TestDetectKeepAlive_HTTP11DefaultsToKeepAlive(t *testing.T) {
	req := []byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n")
	assert.True(t, detectKeepAlive(req))
}

func TestDetectKeepAlive_HTTP11ConnectionClose(t *testing.T) {
	req := []byte("GET / HTTP/1.1\r\nConnection: close\r\n\r\n")
	assert.False(t, detectKeepAlive(req))
}

func TestDetectKeepAlive_HTTP10DefaultsToClose(t *testing.T) {
	req := []byte("GET / HTTP/1.0\r\nHost: example.com\r\n\r\n")
	assert.False(t, detectKeepAlive(req))
}

func TestDetectKeepAlive_HTTP10ConnectionKeepAlive(t *testing.T) {
	req := []byte("GET / HTTP/1.0\r\nConnection: Keep-Alive\r\n\r\n")
	assert.True(t, detectKeepAlive(req))
}

func TestDetectKeepAlive_CaseInsensitiveHeaderName(t *testing.T) {
	req := []byte("GET / HTTP/1.1\r\nCONNECTION: Close\r\n\r\n")
	assert.False(t, detectKeepAlive(req))
}
