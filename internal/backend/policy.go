package backend

import "github.com/lordbasex/goproxylb/pkg/metrics"

// Policy chooses one backend from a roster for a given client.
// clientIP is only consulted by IPHash; other policies ignore it.
type Policy interface {
	Name() string
	Select(r *Roster, clientIP string) (*Backend, error)
}

// NewPolicy resolves the named algorithm, as read from configuration.
func NewPolicy(name string) Policy {
	switch name {
	case "weighted":
		return SmoothWeighted{}
	case "least_connections":
		return LeastConnections{}
	case "ip_hash":
		return IPHash{}
	default:
		return RoundRobin{}
	}
}

// Select runs policy against roster and, if m is non-nil, records the
// outcome in the backend selection counter.
func Select(policy Policy, r *Roster, clientIP string, m *metrics.BackendMetrics) (*Backend, error) {
	b, err := policy.Select(r, clientIP)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.SelectionsTotal.WithLabelValues(b.Addr(), policy.Name()).Inc()
	}
	return b, nil
}

// RoundRobin advances a rolling cursor and returns the first healthy
// backend encountered scanning forward from it. If a full cycle finds
// no healthy backend, it falls back to (start+1) mod n regardless of
// health, so callers still get a best-effort choice.
type RoundRobin struct{}

func (RoundRobin) Name() string { return "round_robin" }

func (RoundRobin) Select(r *Roster, _ string) (*Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return roundRobinLocked(r)
}

func roundRobinLocked(r *Roster) (*Backend, error) {
	n := len(r.backends)
	if n == 0 {
		return nil, ErrEmptyRoster
	}
	start := r.rrIndex
	r.rrIndex = (r.rrIndex + 1) % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if r.backends[idx].IsHealthy() {
			return r.backends[idx], nil
		}
	}
	return r.backends[(start+1)%n], nil
}

// SmoothWeighted implements nginx's smooth weighted round-robin: every
// pass adds each healthy backend's weight to its running current_weight,
// picks the largest, then discounts it by the total weight of the
// pass. Weights 3,2,1 interleave as A B A C B A rather than bursting
// A A A B B C.
type SmoothWeighted struct{}

func (SmoothWeighted) Name() string { return "weighted" }

func (SmoothWeighted) Select(r *Roster, _ string) (*Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.backends) == 0 {
		return nil, ErrEmptyRoster
	}

	var best *Backend
	bestWeight := 0
	totalWeight := 0
	any := false

	for _, b := range r.backends {
		if !b.IsHealthy() {
			continue
		}
		any = true
		w := b.Weight

		b.cwMu.Lock()
		b.currentWeight += w
		cw := b.currentWeight
		b.cwMu.Unlock()

		totalWeight += w
		if best == nil || cw > bestWeight {
			best = b
			bestWeight = cw
		}
	}

	if !any {
		return roundRobinLocked(r)
	}

	best.cwMu.Lock()
	best.currentWeight -= totalWeight
	best.cwMu.Unlock()
	return best, nil
}

// LeastConnections minimizes active_connections*100/weight among
// healthy backends, breaking ties by first-seen order.
type LeastConnections struct{}

func (LeastConnections) Name() string { return "least_connections" }

func (LeastConnections) Select(r *Roster, _ string) (*Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.backends) == 0 {
		return nil, ErrEmptyRoster
	}

	var best *Backend
	bestScore := 0
	for _, b := range r.backends {
		if !b.IsHealthy() {
			continue
		}
		w := b.Weight
		if w <= 0 {
			w = 1
		}
		score := int(b.ActiveConnections()) * 100 / w
		if best == nil || score < bestScore {
			best = b
			bestScore = score
		}
	}

	if best == nil {
		return roundRobinLocked(r)
	}
	return best, nil
}

// IPHash derives a deterministic starting index from the client IP
// string (polynomial rolling hash, base 31) and scans forward for the
// first healthy backend, giving sticky sessions for a fixed roster.
type IPHash struct{}

func (IPHash) Name() string { return "ip_hash" }

func (IPHash) Select(r *Roster, clientIP string) (*Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.backends)
	if n == 0 {
		return nil, ErrEmptyRoster
	}

	start := int(hashClientIP(clientIP) % uint32(n))
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if r.backends[idx].IsHealthy() {
			return r.backends[idx], nil
		}
	}
	return r.backends[start], nil
}

func hashClientIP(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}
