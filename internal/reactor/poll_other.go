//go:build aix || illumos || solaris

package reactor

import (
	"sync"

	"golang.org/x/sys/unix"
)

// fdSetSize mirrors the FD_SETSIZE bitmap width select() is built
// against; fds at or beyond it cannot be registered on this backend.
const fdSetSize = 1024

// pollReactor is the portable fallback backend: it rebuilds the
// read/write/error fd_set bitmaps from the registration table on every
// Run call and hands them to select(). O(n) per wait, but available
// wherever a POSIX select() exists.
type pollReactor struct {
	mu      sync.Mutex
	data    map[int]fdEntry
	maxFD   int
	closed  bool
	handler Handler
}

type fdEntry struct {
	mask EventMask
	data any
}

// New returns the reactor backend appropriate for this platform.
func New(handler Handler, maxEvents int) (Reactor, error) {
	return &pollReactor{
		data:    make(map[int]fdEntry),
		maxFD:   -1,
		handler: handler,
	}, nil
}

func (r *pollReactor) Add(fd int, mask EventMask, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if fd < 0 || fd >= fdSetSize {
		return ErrNotRegistered
	}
	r.data[fd] = fdEntry{mask: mask, data: data}
	if fd > r.maxFD {
		r.maxFD = fd
	}
	return nil
}

func (r *pollReactor) Modify(fd int, mask EventMask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	entry, ok := r.data[fd]
	if !ok {
		return ErrNotRegistered
	}
	entry.mask = mask
	r.data[fd] = entry
	return nil
}

func (r *pollReactor) Remove(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	delete(r.data, fd)
	if fd == r.maxFD {
		r.recomputeMaxFD()
	}
	return nil
}

// recomputeMaxFD rescans the registration table; called only when the
// highest fd so far is removed.
func (r *pollReactor) recomputeMaxFD() {
	max := -1
	for fd := range r.data {
		if fd > max {
			max = fd
		}
	}
	r.maxFD = max
}

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}

func (r *pollReactor) Run(timeoutMs int) (int, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, ErrClosed
	}
	if r.maxFD < 0 {
		r.mu.Unlock()
		return 0, nil
	}

	var readSet, writeSet, errSet unix.FdSet
	for fd, entry := range r.data {
		if entry.mask&Read != 0 {
			fdSet(&readSet, fd)
		}
		if entry.mask&Write != 0 {
			fdSet(&writeSet, fd)
		}
		fdSet(&errSet, fd)
	}
	maxFD := r.maxFD
	r.mu.Unlock()

	var tv *unix.Timeval
	if timeoutMs >= 0 {
		t := unix.NsecToTimeval(int64(timeoutMs) * int64(1e6))
		tv = &t
	}

	n, err := unix.Select(maxFD+1, &readSet, &writeSet, &errSet, tv)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	type ready struct {
		fd     int
		events EventMask
		data   any
	}
	out := make([]ready, 0, n)
	r.mu.Lock()
	for fd, entry := range r.data {
		var m EventMask
		if fdIsSet(&readSet, fd) {
			m |= Read
		}
		if fdIsSet(&writeSet, fd) {
			m |= Write
		}
		if fdIsSet(&errSet, fd) {
			m |= Error
		}
		if m != 0 {
			out = append(out, ready{fd, m, entry.data})
		}
	}
	r.mu.Unlock()

	dispatched := 0
	for _, rd := range out {
		if r.handler != nil {
			r.handler(rd.fd, rd.events, rd.data)
			dispatched++
		}
	}
	return dispatched, nil
}

func (r *pollReactor) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

func (r *pollReactor) Backend() string { return "select" }

func (r *pollReactor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.data = nil
	return nil
}
