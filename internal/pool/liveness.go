package pool

import (
	"net"

	"golang.org/x/sys/unix"
)

// probeLiveness implements the liveness check contract: a non-blocking
// poll for readable/error/hangup at timeout 0; if POLLIN fires, peek
// one byte without consuming it. Zero bytes peeked means the peer
// closed its half of the connection; EAGAIN means the peer is simply
// idle. POLLERR/POLLHUP/POLLNVAL are always dead.
func probeLiveness(fd int) bool {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, 0)
	if err != nil {
		return false
	}
	if n == 0 {
		return true
	}

	revents := pfd[0].Revents
	if revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		return false
	}
	if revents&unix.POLLIN == 0 {
		return true
	}

	buf := make([]byte, 1)
	peeked, _, err := unix.Recvfrom(fd, buf, unix.MSG_PEEK|unix.MSG_DONTWAIT)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return true
		}
		return false
	}
	return peeked > 0
}

// isAlive runs probeLiveness against conn's underlying file descriptor.
func isAlive(conn *net.TCPConn) bool {
	raw, err := conn.SyscallConn()
	if err != nil {
		return false
	}
	alive := false
	if err := raw.Control(func(fd uintptr) {
		alive = probeLiveness(int(fd))
	}); err != nil {
		return false
	}
	return alive
}
