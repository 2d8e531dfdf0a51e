package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runegate/server/internal/core/ecs"
)

func newTestMover(t *testing.T) (*MovementManager, *[]ecs.EntityID) {
	t.Helper()
	var started []ecs.EntityID
	m := NewMovementManager(ecs.NewStore[TileState](), func(id ecs.EntityID, path []Tile, running bool) {
		started = append(started, id)
	})
	return m, &started
}

func TestMeleeTerminalIsCardinalNeighbor(t *testing.T) {
	m, _ := newTestMover(t)
	id := ecs.MakeEntityID(1, 0)
	target := Tile{10, 10}

	starts := []Tile{
		{10, 3},  // due south
		{3, 10},  // due west
		{17, 16}, // northeast-ish
		{10, 10}, // standing on the target
		{11, 11}, // diagonal neighbor
	}
	for _, from := range starts {
		m.Track(id, from)
		term, ok := m.MovePlayerToward(id, target, false, 1, AttackMelee, 1)
		require.True(t, ok)
		assert.True(t, target.IsCardinalNeighbor(term),
			"from %v: terminal %v must be cardinal to %v", from, term, target)
	}
}

func TestMeleeTerminalPrefersClosest(t *testing.T) {
	m, _ := newTestMover(t)
	id := ecs.MakeEntityID(1, 0)

	// Approaching from the south: the south neighbor is strictly closest.
	m.Track(id, Tile{5, 0})
	term, ok := m.MovePlayerToward(id, Tile{5, 3}, false, 1, AttackMelee, 1)
	require.True(t, ok)
	assert.Equal(t, Tile{5, 2}, term)

	// Equidistant west and south: west wins the tie.
	m.Track(id, Tile{0, 0})
	term, ok = m.MovePlayerToward(id, Tile{1, 1}, false, 1, AttackMelee, 1)
	require.True(t, ok)
	assert.Equal(t, Tile{0, 1}, term, "west neighbor breaks the tie")
}

func TestMeleeTerminalSkipsBlockedNeighbors(t *testing.T) {
	m, _ := newTestMover(t)
	id := ecs.MakeEntityID(1, 0)
	target := Tile{5, 5}
	m.AddBlocker(BlockerFunc(func(_ ecs.EntityID, tile Tile) bool {
		return tile == Tile{4, 5} // west neighbor blocked
	}))

	m.Track(id, Tile{0, 5})
	term, ok := m.MovePlayerToward(id, target, false, 1, AttackMelee, 1)
	require.True(t, ok)
	assert.Equal(t, Tile{5, 4}, term, "south is next-closest reachable from due west")
}

func TestWalkUpPathNeverEndsDiagonal(t *testing.T) {
	// Scenario: player at (5,0) attacks a melee-range mob at (5,3). Within
	// three ticks the player stands on the south cardinal neighbor.
	m, _ := newTestMover(t)
	id := ecs.MakeEntityID(7, 0)
	m.Track(id, Tile{5, 0})

	term, ok := m.MovePlayerToward(id, Tile{5, 3}, false, 1, AttackMelee, 1)
	require.True(t, ok)
	require.Equal(t, Tile{5, 2}, term)

	arrivedAt := int64(-1)
	for tick := int64(1); tick <= 3; tick++ {
		for _, st := range m.Advance(tick) {
			if st.ID == id && st.Arrived {
				arrivedAt = tick
			}
		}
	}
	require.NotEqual(t, int64(-1), arrivedAt, "must arrive within 3 ticks")
	pos, _ := m.Position(id)
	assert.Equal(t, Tile{5, 2}, pos)
}

func TestPathIsMonotone(t *testing.T) {
	m, _ := newTestMover(t)
	id := ecs.MakeEntityID(2, 0)
	m.Track(id, Tile{0, 0})
	dest := Tile{6, -3}
	require.True(t, m.MoveTo(id, dest, false, 1))

	prev := Tile{0, 0}
	for tick := int64(1); m.Moving(id); tick++ {
		steps := m.Advance(tick)
		require.NotEmpty(t, steps, "progress must not stall on open ground")
		pos, _ := m.Position(id)
		assert.Less(t, pos.Chebyshev(dest), prev.Chebyshev(dest))
		prev = pos
		require.Less(t, tick, int64(20))
	}
	pos, _ := m.Position(id)
	assert.Equal(t, dest, pos)
}

func TestRunningCoversTwoTilesPerTick(t *testing.T) {
	m, _ := newTestMover(t)
	id := ecs.MakeEntityID(3, 0)
	m.Track(id, Tile{0, 0})
	require.True(t, m.MoveTo(id, Tile{0, 4}, true, 5))

	steps := m.Advance(5)
	require.Len(t, steps, 1)
	assert.Equal(t, Tile{0, 2}, steps[0].To)
	assert.False(t, steps[0].Arrived)

	steps = m.Advance(6)
	require.Len(t, steps, 1)
	assert.Equal(t, Tile{0, 4}, steps[0].To)
	assert.True(t, steps[0].Arrived)
	assert.False(t, m.Moving(id))
}

func TestReachTruncatesPath(t *testing.T) {
	m, _ := newTestMover(t)
	id := ecs.MakeEntityID(4, 0)
	m.Track(id, Tile{0, 0})

	term, ok := m.MovePlayerToward(id, Tile{0, 10}, false, 5, AttackRanged, 1)
	require.True(t, ok)
	assert.Equal(t, 5, term.Chebyshev(Tile{0, 10}))

	// Already inside reach: no movement at all.
	m.Track(id, Tile{0, 7})
	term, ok = m.MovePlayerToward(id, Tile{0, 10}, false, 5, AttackRanged, 1)
	require.True(t, ok)
	assert.Equal(t, Tile{0, 7}, term)
	assert.False(t, m.Moving(id))
}

func TestCancelAndSync(t *testing.T) {
	m, _ := newTestMover(t)
	id := ecs.MakeEntityID(5, 0)
	m.Track(id, Tile{0, 0})
	require.True(t, m.MoveTo(id, Tile{8, 8}, false, 1))
	require.True(t, m.Moving(id))

	assert.True(t, m.Cancel(id))
	assert.False(t, m.Moving(id))
	assert.False(t, m.Cancel(id), "second cancel is a no-op")

	m.MoveTo(id, Tile{8, 8}, false, 1)
	m.SyncPosition(id, Tile{50, 50})
	pos, _ := m.Position(id)
	assert.Equal(t, Tile{50, 50}, pos)
	assert.False(t, m.Moving(id), "sync drops the stale path")
	assert.Empty(t, m.Advance(2), "nothing moves after sync")
}

func TestBlockedTargetStopsAtNearestReachable(t *testing.T) {
	m, _ := newTestMover(t)
	id := ecs.MakeEntityID(6, 0)
	// Wall across z=3 (every x).
	m.AddBlocker(BlockerFunc(func(_ ecs.EntityID, tile Tile) bool {
		return tile.Z == 3
	}))
	m.Track(id, Tile{0, 0})

	require.True(t, m.MoveTo(id, Tile{0, 6}, false, 1))
	for tick := int64(1); tick < 10; tick++ {
		m.Advance(tick)
	}
	pos, _ := m.Position(id)
	assert.Equal(t, Tile{0, 2}, pos, "walks to the near side of the wall")
}

func TestPathStartCallbackFiresOncePerPath(t *testing.T) {
	m, started := newTestMover(t)
	id := ecs.MakeEntityID(8, 0)
	m.Track(id, Tile{0, 0})

	m.MoveTo(id, Tile{3, 0}, false, 1)
	m.MoveTo(id, Tile{0, 3}, false, 1)
	assert.Len(t, *started, 2)

	// In-position request produces no path and no broadcast.
	m.Track(id, Tile{9, 9})
	m.MovePlayerToward(id, Tile{9, 9}, false, 0, AttackMelee, 1)
	assert.Len(t, *started, 2)
}

func TestAgilityProgressCountsAndResets(t *testing.T) {
	m, _ := newTestMover(t)
	id := ecs.MakeEntityID(9, 0)
	m.Track(id, Tile{0, 0})
	m.MoveTo(id, Tile{0, 3}, false, 1)
	m.Advance(1)
	m.Advance(2)
	m.Advance(3)
	assert.Equal(t, 3, m.AgilityProgress(id))
	m.ResetAgilityProgress(id)
	assert.Equal(t, 0, m.AgilityProgress(id))
}
