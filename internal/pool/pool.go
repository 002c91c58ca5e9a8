// Package pool implements the backend connection pool: a bounded,
// LRU-ordered cache of keep-alive TCP connections keyed by backend
// identity, with TTL, per-connection request budgets, and a liveness
// probe guarding reuse.
package pool

import (
	"container/list"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/lordbasex/goproxylb/pkg/metrics"
)

// Key identifies a backend by address.
type Key struct {
	Host string
	Port int
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.Host, k.Port)
}

// entry is one pooled connection's bookkeeping. A free entry belongs to
// both a per-key free list (for fast "does this backend have an idle
// connection" scans) and the global free LRU (for "evict something to
// make room" when the pool is at capacity); an in-use entry belongs to
// neither.
type entry struct {
	conn           *net.TCPConn
	key            Key
	created        time.Time
	lastUsed       time.Time
	requestsServed int

	perKeyElem *list.Element
	globalElem *list.Element
}

// Pool is the backend connection pool described in §4.2. The zero
// value is not usable; construct with New.
type Pool struct {
	maxSize       int
	ttl           time.Duration
	maxRequests   int
	idleThreshold time.Duration
	dialTimeout   time.Duration

	mu            sync.Mutex
	size          int
	freeByKey     map[Key]*list.List
	globalFreeLRU *list.List
	byConn        map[net.Conn]*entry

	hits      int64
	misses    int64
	evictions int64
	bypassed  int64

	metrics *metrics.PoolMetrics
}

// Config bundles the pool-affecting knobs read from configuration.
type Config struct {
	MaxSize       int
	TTL           time.Duration
	MaxRequests   int
	IdleThreshold time.Duration
	DialTimeout   time.Duration
}

// New constructs an empty pool. m may be nil to disable metrics.
func New(cfg Config, m *metrics.PoolMetrics) *Pool {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 64
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = 30 * time.Second
	}
	return &Pool{
		maxSize:       cfg.MaxSize,
		ttl:           cfg.TTL,
		maxRequests:   cfg.MaxRequests,
		idleThreshold: cfg.IdleThreshold,
		dialTimeout:   cfg.DialTimeout,
		freeByKey:     make(map[Key]*list.List),
		globalFreeLRU: list.New(),
		byConn:        make(map[net.Conn]*entry),
		metrics:       m,
	}
}

// Get returns a connection to (host, port): either a validated reusable
// connection or a freshly dialed one. pooled reports whether Return
// must be called to release it back to the pool; a false value means
// the pool was at capacity and this is an overflow connection the
// caller must Close when done.
func (p *Pool) Get(host string, port int) (conn net.Conn, pooled bool, err error) {
	key := Key{Host: host, Port: port}

	p.mu.Lock()
	if free := p.freeByKey[key]; free != nil {
		for e := free.Front(); e != nil; {
			next := e.Next()
			ent := e.Value.(*entry)

			if p.disqualified(ent) {
				p.evictFreeLocked(ent, p.evictionReason(ent))
				e = next
				continue
			}

			// First surviving candidate: lease it.
			p.removeFromFreeListsLocked(ent)
			ent.lastUsed = time.Now()
			ent.requestsServed++
			p.hits++
			if p.metrics != nil {
				p.metrics.HitsTotal.WithLabelValues(key.String()).Inc()
			}
			p.mu.Unlock()
			return ent.conn, true, nil
		}
	}
	p.misses++
	if p.metrics != nil {
		p.metrics.MissesTotal.WithLabelValues(key.String()).Inc()
	}

	makesRoom := p.size < p.maxSize
	if !makesRoom {
		// Try to evict the global LRU tail to make room.
		if tail := p.globalFreeLRU.Back(); tail != nil {
			ent := tail.Value.(*entry)
			p.evictFreeLocked(ent, "lru")
			makesRoom = true
		}
	}
	p.mu.Unlock()

	dialed, err := p.dial(host, port)
	if err != nil {
		return nil, false, err
	}

	if !makesRoom {
		// Pool stayed full even after trying to evict: hand back an
		// un-pooled connection; Return will recognize it and close it.
		p.mu.Lock()
		p.bypassed++
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.BypassTotal.WithLabelValues(key.String()).Inc()
		}
		return dialed, false, nil
	}

	p.mu.Lock()
	ent := &entry{
		conn:           dialed,
		key:            key,
		created:        time.Now(),
		lastUsed:       time.Now(),
		requestsServed: 1,
	}
	p.byConn[dialed] = ent
	p.size++
	p.mu.Unlock()

	return dialed, true, nil
}

func (p *Pool) dial(host string, port int) (*net.TCPConn, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	raw, err := net.DialTimeout("tcp", addr, p.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDialFailed, addr, err)
	}
	tcpConn, ok := raw.(*net.TCPConn)
	if !ok {
		raw.Close()
		return nil, fmt.Errorf("%w: %s: not a TCP connection", ErrDialFailed, addr)
	}
	tcpConn.SetKeepAlive(true)
	tcpConn.SetKeepAlivePeriod(30 * time.Second)
	return tcpConn, nil
}

// Return releases conn back to the pool if it is healthy and under
// budget, or closes it otherwise. An fd this pool did not allocate
// (an overflow connection from a full pool) is simply closed.
func (p *Pool) Return(conn net.Conn, host string, port int) {
	p.mu.Lock()
	ent, tracked := p.byConn[conn]
	if !tracked {
		p.mu.Unlock()
		conn.Close()
		return
	}

	key := Key{Host: host, Port: port}
	if ent.key != key || p.disqualified(ent) {
		p.removeTrackingLocked(ent)
		p.mu.Unlock()
		conn.Close()
		return
	}

	ent.lastUsed = time.Now()
	p.pushFreeLocked(ent)
	p.mu.Unlock()
}

// Close unconditionally discards conn, whether or not it belongs to
// this pool.
func (p *Pool) Close(conn net.Conn) {
	p.mu.Lock()
	if ent, ok := p.byConn[conn]; ok {
		p.removeFromFreeListsLocked(ent)
		p.removeTrackingLocked(ent)
	}
	p.mu.Unlock()
	conn.Close()
}

// Cleanup sweeps free entries that exceeded their TTL, exceeded the
// idle threshold, or failed the liveness probe, and returns the number
// evicted.
func (p *Pool) Cleanup() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	evicted := 0
	for e := p.globalFreeLRU.Back(); e != nil; {
		prev := e.Prev()
		ent := e.Value.(*entry)
		if p.disqualified(ent) || time.Since(ent.lastUsed) > p.idleThreshold {
			p.evictFreeLocked(ent, p.evictionReason(ent))
			evicted++
		}
		e = prev
	}
	return evicted
}

// disqualified reports whether a free entry must not be reused: TTL
// expired, request budget exhausted, or the liveness probe failed.
func (p *Pool) disqualified(ent *entry) bool {
	if p.ttl > 0 && time.Since(ent.created) > p.ttl {
		return true
	}
	if p.maxRequests > 0 && ent.requestsServed >= p.maxRequests {
		return true
	}
	return !isAlive(ent.conn)
}

func (p *Pool) evictionReason(ent *entry) string {
	switch {
	case p.ttl > 0 && time.Since(ent.created) > p.ttl:
		return "ttl"
	case p.maxRequests > 0 && ent.requestsServed >= p.maxRequests:
		return "max_requests"
	default:
		return "dead"
	}
}

func (p *Pool) pushFreeLocked(ent *entry) {
	free, ok := p.freeByKey[ent.key]
	if !ok {
		free = list.New()
		p.freeByKey[ent.key] = free
	}
	ent.perKeyElem = free.PushFront(ent)
	ent.globalElem = p.globalFreeLRU.PushFront(ent)
	if p.metrics != nil {
		p.metrics.Size.WithLabelValues(ent.key.String()).Set(float64(free.Len()))
	}
}

func (p *Pool) removeFromFreeListsLocked(ent *entry) {
	if ent.perKeyElem != nil {
		if free, ok := p.freeByKey[ent.key]; ok {
			free.Remove(ent.perKeyElem)
			if p.metrics != nil {
				p.metrics.Size.WithLabelValues(ent.key.String()).Set(float64(free.Len()))
			}
			if free.Len() == 0 {
				delete(p.freeByKey, ent.key)
			}
		}
		ent.perKeyElem = nil
	}
	if ent.globalElem != nil {
		p.globalFreeLRU.Remove(ent.globalElem)
		ent.globalElem = nil
	}
}

func (p *Pool) removeTrackingLocked(ent *entry) {
	delete(p.byConn, ent.conn)
	p.size--
}

func (p *Pool) evictFreeLocked(ent *entry, reason string) {
	p.removeFromFreeListsLocked(ent)
	p.removeTrackingLocked(ent)
	p.evictions++
	if p.metrics != nil {
		p.metrics.EvictionsTotal.WithLabelValues(ent.key.String(), reason).Inc()
	}
	ent.conn.Close()
}

// Stats is a snapshot of pool counters.
type Stats struct {
	CurrentSize int
	Hits        int64
	Misses      int64
	Evictions   int64
	Bypassed    int64
	HitRate     float64
}

// Stats returns a snapshot of the pool's counters. HitRate is 0 when no
// lookups have happened yet.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	var rate float64
	if total := p.hits + p.misses; total > 0 {
		rate = float64(p.hits) / float64(total)
	}
	return Stats{
		CurrentSize: p.size,
		Hits:        p.hits,
		Misses:      p.misses,
		Evictions:   p.evictions,
		Bypassed:    p.bypassed,
		HitRate:     rate,
	}
}
