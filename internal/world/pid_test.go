package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runegate/server/internal/core/ecs"
)

func TestPIDAssignmentIsDeterministic(t *testing.T) {
	// Two managers with the same seed and the same join/leave/tick sequence
	// must agree on every assignment and every reshuffle.
	run := func(seed int64) map[ecs.EntityID]int {
		m := NewPIDManager(seed)
		ids := make([]ecs.EntityID, 8)
		for i := range ids {
			ids[i] = ecs.MakeEntityID(uint32(i+1), 0)
			m.Assign(ids[i])
		}
		m.Release(ids[3])
		for tick := int64(1); tick <= 500; tick++ {
			m.MaybeReshuffle(tick)
		}
		out := make(map[ecs.EntityID]int)
		for _, id := range ids {
			if pid, ok := m.PID(id); ok {
				out[id] = pid
			}
		}
		return out
	}

	a := run(99)
	b := run(99)
	assert.Equal(t, a, b)

	c := run(100)
	assert.NotEqual(t, a, c, "different seed should diverge after reshuffles")
}

func TestPIDOrderIsAscending(t *testing.T) {
	m := NewPIDManager(1)
	var ids []ecs.EntityID
	for i := 1; i <= 5; i++ {
		id := ecs.MakeEntityID(uint32(i), 0)
		ids = append(ids, id)
		m.Assign(id)
	}

	// Force at least one reshuffle so order differs from join order.
	for tick := int64(1); tick <= 200; tick++ {
		m.MaybeReshuffle(tick)
	}

	order := m.Order()
	require.Len(t, order, 5)
	prev := -1
	for _, id := range order {
		pid, ok := m.PID(id)
		require.True(t, ok)
		assert.Greater(t, pid, prev)
		prev = pid
	}
}

func TestPIDReuseAfterRelease(t *testing.T) {
	m := NewPIDManager(7)
	a := ecs.MakeEntityID(1, 0)
	b := ecs.MakeEntityID(2, 0)

	assert.Equal(t, 0, m.Assign(a))
	assert.Equal(t, 1, m.Assign(b))
	assert.Equal(t, 0, m.Assign(a), "re-assign returns the held pid")

	m.Release(a)
	c := ecs.MakeEntityID(3, 0)
	assert.Equal(t, 0, m.Assign(c), "lowest freed pid is reused")
}

func TestReshuffleKeepsPIDSetStable(t *testing.T) {
	m := NewPIDManager(42)
	for i := 1; i <= 6; i++ {
		m.Assign(ecs.MakeEntityID(uint32(i), 0))
	}
	before := map[int]bool{}
	for _, id := range m.Order() {
		pid, _ := m.PID(id)
		before[pid] = true
	}

	shuffled := false
	for tick := int64(1); tick <= 200 && !shuffled; tick++ {
		shuffled = m.MaybeReshuffle(tick)
	}
	require.True(t, shuffled, "a reshuffle must fire within the 100-150 tick window")

	after := map[int]bool{}
	for _, id := range m.Order() {
		pid, _ := m.PID(id)
		after[pid] = true
	}
	assert.Equal(t, before, after, "reshuffle permutes pids, never invents new ones")
}
