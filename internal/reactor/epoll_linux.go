//go:build linux

package reactor

import (
	"sync"

	"golang.org/x/sys/unix"
)

// epollReactor is the scalable edge-capable backend: the kernel
// maintains the interest set, so Add/Modify/Remove are direct
// epoll_ctl calls and Run only copies back ready fds.
type epollReactor struct {
	mu      sync.Mutex
	fd      int
	events  []unix.EpollEvent
	data    map[int]fdEntry
	closed  bool
	handler Handler
}

type fdEntry struct {
	mask EventMask
	data any
}

// New returns the reactor backend appropriate for this platform. handler
// is invoked by Run once per ready fd.
func New(handler Handler, maxEvents int) (Reactor, error) {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollReactor{
		fd:      epfd,
		events:  make([]unix.EpollEvent, maxEvents),
		data:    make(map[int]fdEntry),
		handler: handler,
	}, nil
}

func maskToEpoll(m EventMask) uint32 {
	var ev uint32
	if m&Read != 0 {
		ev |= unix.EPOLLIN
	}
	if m&Write != 0 {
		ev |= unix.EPOLLOUT
	}
	// Errors and hangups are always delivered regardless of interest.
	ev |= unix.EPOLLERR | unix.EPOLLHUP
	return ev
}

func epollToMask(ev uint32) EventMask {
	var m EventMask
	if ev&unix.EPOLLIN != 0 {
		m |= Read
	}
	if ev&unix.EPOLLOUT != 0 {
		m |= Write
	}
	if ev&unix.EPOLLERR != 0 {
		m |= Error
	}
	if ev&unix.EPOLLHUP != 0 {
		m |= Hup
	}
	return m
}

func (r *epollReactor) Add(fd int, mask EventMask, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	ev := unix.EpollEvent{Events: maskToEpoll(mask), Fd: int32(fd)}
	_, exists := r.data[fd]
	op := unix.EPOLL_CTL_ADD
	if exists {
		op = unix.EPOLL_CTL_MOD
	}
	if err := unix.EpollCtl(r.fd, op, fd, &ev); err != nil {
		if !exists && err == unix.EEXIST {
			if err := unix.EpollCtl(r.fd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
				return err
			}
		} else {
			return err
		}
	}
	r.data[fd] = fdEntry{mask: mask, data: data}
	return nil
}

func (r *epollReactor) Modify(fd int, mask EventMask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	entry, ok := r.data[fd]
	if !ok {
		return ErrNotRegistered
	}
	ev := unix.EpollEvent{Events: maskToEpoll(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(r.fd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return err
	}
	entry.mask = mask
	r.data[fd] = entry
	return nil
}

func (r *epollReactor) Remove(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if _, ok := r.data[fd]; !ok {
		return nil
	}
	delete(r.data, fd)
	// EpollCtl del on an fd the kernel already dropped (e.g. because
	// the fd was closed) is treated as success; there's nothing left
	// to unregister.
	_ = unix.EpollCtl(r.fd, unix.EPOLL_CTL_DEL, fd, nil)
	return nil
}

func (r *epollReactor) Run(timeoutMs int) (int, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, ErrClosed
	}
	events := r.events
	r.mu.Unlock()

	n, err := unix.EpollWait(r.fd, events, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	dispatched := 0
	r.mu.Lock()
	ready := make([]struct {
		fd     int
		events EventMask
		data   any
	}, 0, n)
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		entry, ok := r.data[fd]
		if !ok {
			continue
		}
		ready = append(ready, struct {
			fd     int
			events EventMask
			data   any
		}{fd, epollToMask(events[i].Events), entry.data})
	}
	r.mu.Unlock()

	for _, rd := range ready {
		if r.handler != nil {
			r.handler(rd.fd, rd.events, rd.data)
			dispatched++
		}
	}
	return dispatched, nil
}

func (r *epollReactor) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

func (r *epollReactor) Backend() string { return "epoll" }

func (r *epollReactor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.data = nil
	return unix.Close(r.fd)
}
