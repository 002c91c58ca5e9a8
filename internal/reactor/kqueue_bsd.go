//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package reactor

import (
	"sync"

	"golang.org/x/sys/unix"
)

// kqueueReactor is the filter-based backend used on BSD-family kernels.
// Read and write interest are two independent filter registrations
// (EVFILT_READ / EVFILT_WRITE); Modify diffs the old and new masks and
// issues only the add/delete changes needed to reach the new state.
type kqueueReactor struct {
	mu      sync.Mutex
	fd      int
	events  []unix.Kevent_t
	data    map[int]fdEntry
	closed  bool
	handler Handler
}

type fdEntry struct {
	mask EventMask
	data any
}

// New returns the reactor backend appropriate for this platform.
func New(handler Handler, maxEvents int) (Reactor, error) {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueueReactor{
		fd:      kq,
		events:  make([]unix.Kevent_t, maxEvents),
		data:    make(map[int]fdEntry),
		handler: handler,
	}, nil
}

func (r *kqueueReactor) applyDiff(fd int, old, new EventMask) error {
	var changes [4]unix.Kevent_t
	n := 0

	if old&Read != 0 && new&Read == 0 {
		unix.SetKevent(&changes[n], fd, unix.EVFILT_READ, unix.EV_DELETE)
		n++
	}
	if old&Write != 0 && new&Write == 0 {
		unix.SetKevent(&changes[n], fd, unix.EVFILT_WRITE, unix.EV_DELETE)
		n++
	}
	if old&Read == 0 && new&Read != 0 {
		unix.SetKevent(&changes[n], fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE)
		n++
	}
	if old&Write == 0 && new&Write != 0 {
		unix.SetKevent(&changes[n], fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ENABLE)
		n++
	}
	if n == 0 {
		return nil
	}
	_, err := unix.Kevent(r.fd, changes[:n], nil, nil)
	return err
}

func (r *kqueueReactor) Add(fd int, mask EventMask, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	old, exists := r.data[fd]
	oldMask := EventMask(0)
	if exists {
		oldMask = old.mask
	}
	if err := r.applyDiff(fd, oldMask, mask); err != nil {
		return err
	}
	r.data[fd] = fdEntry{mask: mask, data: data}
	return nil
}

func (r *kqueueReactor) Modify(fd int, mask EventMask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	entry, ok := r.data[fd]
	if !ok {
		return ErrNotRegistered
	}
	if err := r.applyDiff(fd, entry.mask, mask); err != nil {
		return err
	}
	entry.mask = mask
	r.data[fd] = entry
	return nil
}

func (r *kqueueReactor) Remove(fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	entry, ok := r.data[fd]
	if !ok {
		return nil
	}
	delete(r.data, fd)
	_ = r.applyDiff(fd, entry.mask, 0)
	return nil
}

func (r *kqueueReactor) Run(timeoutMs int) (int, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, ErrClosed
	}
	events := r.events
	r.mu.Unlock()

	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * int64(1e6))
		ts = &t
	}

	n, err := unix.Kevent(r.fd, nil, events, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	// Coalesce the read/write filter pair back into one mask per fd,
	// mirroring event_loop_kqueue.c's translation step, since a single
	// readable+writable fd appears as two separate kevents.
	coalesced := make(map[int]EventMask, n)
	order := make([]int, 0, n)
	r.mu.Lock()
	for i := 0; i < n; i++ {
		fd := int(events[i].Ident)
		if _, ok := coalesced[fd]; !ok {
			order = append(order, fd)
		}
		m := coalesced[fd]
		switch events[i].Filter {
		case unix.EVFILT_READ:
			m |= Read
		case unix.EVFILT_WRITE:
			m |= Write
		}
		if events[i].Flags&unix.EV_EOF != 0 {
			m |= Hup
		}
		if events[i].Flags&unix.EV_ERROR != 0 {
			m |= Error
		}
		coalesced[fd] = m
	}
	type ready struct {
		fd     int
		events EventMask
		data   any
	}
	out := make([]ready, 0, len(order))
	for _, fd := range order {
		entry, ok := r.data[fd]
		if !ok {
			continue
		}
		out = append(out, ready{fd, coalesced[fd], entry.data})
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

func (r *kqueueReactor) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

func (r *kqueueReactor) Backend() string { return "kqueue" }

func (r *kqueueReactor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.data = nil
	return unix.Close(r.fd)
}
