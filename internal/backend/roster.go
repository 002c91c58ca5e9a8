package backend

import "sync"

// Roster is the ordered set of backends a selection policy chooses
// from. Replace swaps the full backend list atomically under the
// roster's own lock, used for hot reload (§4.7): in-flight Select
// calls always see either the old or the new roster, never a partial
// one.
type Roster struct {
	mu       sync.Mutex
	backends []*Backend
	rrIndex  int
}

// NewRoster constructs a Roster from an initial backend list.
func NewRoster(backends []*Backend) *Roster {
	return &Roster{backends: backends}
}

// Backends returns a snapshot copy of the current backend list.
func (r *Roster) Backends() []*Backend {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Backend, len(r.backends))
	copy(out, r.backends)
	return out
}

// Len reports the number of backends currently in the roster.
func (r *Roster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.backends)
}

// Replace swaps in a new backend list. The round-robin cursor resets,
// since the old index has no meaningful relationship to the new
// roster's ordering — this is the "roster change invalidates stickiness
// by design" behavior documented for IP-hash.
func (r *Roster) Replace(backends []*Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends = backends
	r.rrIndex = 0
}
