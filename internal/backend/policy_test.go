package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoster(weights ...int) (*Roster, []*Backend) {
	backends := make([]*Backend, len(weights))
	for i, w := range weights {
		backends[i] = NewBackend("10.0.0.1", 9000+i, w, 0)
	}
	return NewRoster(backends), backends
}

func TestRoundRobin_CyclesInOrder(t *testing.T) {
	r, backends := newTestRoster(1, 1, 1)
	p := RoundRobin{}

	var order []int
	for i := 0; i < 6; i++ {
		b, err := p.Select(r, "")
		require.NoError(t, err)
		for idx, cand := range backends {
			if cand == b {
				order = append(order, idx)
			}
		}
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, order)
}

func TestRoundRobin_SkipsUnhealthy(t *testing.T) {
	r, backends := newTestRoster(1, 1, 1)
	backends[1].SetHealthy(false)
	p := RoundRobin{}

	for i := 0; i < 4; i++ {
		b, err := p.Select(r, "")
		require.NoError(t, err)
		assert.True(t, b.IsHealthy())
	}
}

func TestRoundRobin_EmptyRoster(t *testing.T) {
	r := NewRoster(nil)
	_, err := RoundRobin{}.Select(r, "")
	assert.ErrorIs(t, err, ErrEmptyRoster)
}

func TestSmoothWeighted_InterleavesByWeight(t *testing.T) {
	r, backends := newTestRoster(3, 2, 1)
	p := SmoothWeighted{}

	var order []int
	for i := 0; i < 6; i++ {
		b, err := p.Select(r, "")
		require.NoError(t, err)
		for idx, cand := range backends {
			if cand == b {
				order = append(order, idx)
			}
		}
	}
	// Smooth WRR for weights 3,2,1: current_weight cycles back to zero
	// after sum(weights)=6 picks, producing A B A C B A.
	assert.Equal(t, []int{0, 1, 0, 2, 1, 0}, order)
}

func TestSmoothWeighted_FallsBackWhenNoneHealthy(t *testing.T) {
	r, backends := newTestRoster(1, 1)
	for _, b := range backends {
		b.SetHealthy(false)
	}
	b, err := SmoothWeighted{}.Select(r, "")
	require.NoError(t, err)
	assert.NotNil(t, b)
}

func TestLeastConnections_PicksLowestScore(t *testing.T) {
	r, backends := newTestRoster(1, 1, 1)
	backends[0].IncActive()
	backends[0].IncActive()
	backends[1].IncActive()

	b, err := LeastConnections{}.Select(r, "")
	require.NoError(t, err)
	assert.Same(t, backends[2], b)
}

func TestLeastConnections_WeightAdjustsScore(t *testing.T) {
	r, backends := newTestRoster(1, 4)
	backends[0].IncActive()
	backends[1].IncActive()
	backends[1].IncActive()
	backends[1].IncActive()

	// backend0 score = 1*100/1 = 100, backend1 score = 3*100/4 = 75
	b, err := LeastConnections{}.Select(r, "")
	require.NoError(t, err)
	assert.Same(t, backends[1], b)
}

func TestIPHash_IsDeterministic(t *testing.T) {
	r, _ := newTestRoster(1, 1, 1, 1)
	p := IPHash{}

	b1, err := p.Select(r, "203.0.113.7")
	require.NoError(t, err)
	b2, err := p.Select(r, "203.0.113.7")
	require.NoError(t, err)
	assert.Same(t, b1, b2)
}

func TestIPHash_DifferentIPsCanMapDifferently(t *testing.T) {
	r, _ := newTestRoster(1, 1, 1, 1, 1, 1, 1, 1)
	p := IPHash{}

	seen := map[*Backend]bool{}
	for _, ip := range []string{"1.1.1.1", "8.8.8.8", "203.0.113.7", "198.51.100.2"} {
		b, err := p.Select(r, ip)
		require.NoError(t, err)
		seen[b] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestIPHash_SkipsUnhealthy(t *testing.T) {
	r, backends := newTestRoster(1, 1, 1)
	for _, b := range backends {
		b.SetHealthy(false)
	}
	backends[2].SetHealthy(true)

	b, err := IPHash{}.Select(r, "10.1.2.3")
	require.NoError(t, err)
	assert.Same(t, backends[2], b)
}

func TestNewPolicy_ResolvesByName(t *testing.T) {
	assert.Equal(t, "round_robin", NewPolicy("round_robin").Name())
	assert.Equal(t, "weighted", NewPolicy("weighted").Name())
	assert.Equal(t, "least_connections", NewPolicy("least_connections").Name())
	assert.Equal(t, "ip_hash", NewPolicy("ip_hash").Name())
	assert.Equal(t, "round_robin", NewPolicy("garbage").Name())
}

func TestRoster_ReplaceResetsCursor(t *testing.T) {
	r, _ := newTestRoster(1, 1, 1)
	_, _ = RoundRobin{}.Select(r, "")
	_, _ = RoundRobin{}.Select(r, "")

	_, fresh := newTestRoster(1, 1)
	r.Replace(fresh)
	assert.Equal(t, 2, r.Len())

	b, err := RoundRobin{}.Select(r, "")
	require.NoError(t, err)
	assert.Same(t, fresh[0], b)
}
