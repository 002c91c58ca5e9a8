package relay

import (
	"bytes"
	"fmt"
)

var crlf = []byte("\r\n")

// injectHeaders finds the end of the request line in buf[:n] and
// inserts X-Forwarded-For/X-Real-IP immediately after it, shifting the
// remainder of the buffer to make room. buf must have at least
// injectHeadroom bytes of spare capacity beyond n; if the injected
// bytes would not fit, buf[:n] is returned unchanged, matching the
// §4.6 "skip if it would overflow the scratch buffer" rule.
func injectHeaders(buf []byte, n int, clientIP string) (out []byte, injected bool) {
	lineEnd := bytes.Index(buf[:n], crlf)
	if lineEnd < 0 {
		return buf[:n], false
	}
	lineEnd += len(crlf)

	addition := fmt.Sprintf("X-Forwarded-For: %s\r\nX-Real-IP: %s\r\n", clientIP, clientIP)
	newN := n + len(addition)
	if newN > cap(buf) {
		return buf[:n], false
	}

	tail := append([]byte(nil), buf[lineEnd:n]...)
	copy(buf[lineEnd:], addition)
	copy(buf[lineEnd+len(addition):], tail)
	return buf[:newN], true
}

// detectKeepAlive inspects the request line and the Connection header
// (if present, case-insensitive match on the token only) to decide
// whether the connection should be kept alive per §4.6: HTTP/1.1
// defaults to keep-alive unless "Connection: close" is present;
// HTTP/1.0 defaults to close unless "Connection: keep-alive" is
// present.
func detectKeepAlive(buf []byte) bool {
	lineEnd := bytes.Index(buf, crlf)
	if lineEnd < 0 {
		lineEnd = len(buf)
	}
	requestLine := buf[:lineEnd]
	http10 := bytes.Contains(requestLine, []byte("HTTP/1.0"))

	token, found := connectionToken(buf)
	if found {
		if http10 {
			return bytes.EqualFold(token, []byte("keep-alive"))
		}
		return !bytes.EqualFold(token, []byte("close"))
	}
	return !http10
}

// connectionToken scans header lines (after the request line, up to
// the blank line terminating the header block or the end of buf) for
// a Connection header and returns its trimmed value.
func connectionToken(buf []byte) (token []byte, found bool) {
	lines := bytes.Split(buf, crlf)
	for _, line := range lines[1:] {
		if len(line) == 0 {
			break
		}
		name, value, ok := bytes.Cut(line, []byte(":"))
		if !ok {
			continue
		}
		if bytes.EqualFold(bytes.TrimSpace(name), []byte("connection")) {
			return bytes.TrimSpace(value), true
		}
	}
	return nil, false
}
