package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runegate/server/internal/core/ecs"
)

func TestSubscriptionBlockCoversViewDistance(t *testing.T) {
	m := NewAOIManager(50, 2)
	pid := ecs.MakeEntityID(1, 0)

	entered, exited := m.UpdatePlayerSubscriptions(pid, 125, 125, 11)
	assert.Empty(t, exited)
	require.Len(t, entered, 25, "(2*2+1)^2 cells on first subscribe")

	seen := make(map[CellKey]struct{}, len(entered))
	for _, k := range entered {
		seen[k] = struct{}{}
	}
	for dx := -2; dx <= 2; dx++ {
		for dz := -2; dz <= 2; dz++ {
			_, ok := seen[CellKey{CX: 2 + dx, CZ: 2 + dz}]
			assert.True(t, ok, "cell (%d,%d) missing", 2+dx, 2+dz)
		}
	}
}

func TestSubscriptionDeltasOnMove(t *testing.T) {
	m := NewAOIManager(50, 2)
	pid := ecs.MakeEntityID(1, 0)

	m.UpdatePlayerSubscriptions(pid, 125, 125, 11)
	// One cell east: a 5-cell column enters, a 5-cell column exits.
	entered, exited := m.UpdatePlayerSubscriptions(pid, 175, 125, 11)
	assert.Len(t, entered, 5)
	assert.Len(t, exited, 5)
	for _, k := range entered {
		assert.Equal(t, 5, k.CX)
	}
	for _, k := range exited {
		assert.Equal(t, 0, k.CX)
	}

	// No cell change: no deltas.
	entered, exited = m.UpdatePlayerSubscriptions(pid, 180, 130, 11)
	assert.Empty(t, entered)
	assert.Empty(t, exited)
}

func TestSubscribersForEntity(t *testing.T) {
	m := NewAOIManager(50, 2)
	watcher := ecs.MakeEntityID(1, 0)
	mob := ecs.MakeEntityID(2, 0)

	m.UpdatePlayerSubscriptions(watcher, 100, 100, 42)
	assert.True(t, m.UpdateEntityPosition(mob, 140, 60), "first placement reports a change")

	subs := m.SubscribersForEntity(mob)
	require.Len(t, subs, 1)
	assert.Equal(t, uint64(42), subs[0])

	// Mob wanders far outside the watcher's block.
	assert.True(t, m.UpdateEntityPosition(mob, 1000, 1000))
	assert.Empty(t, m.SubscribersForEntity(mob))

	// Within the same cell: no change reported.
	assert.False(t, m.UpdateEntityPosition(mob, 1010, 1010))
}

func TestCanPlayerSeeEntity(t *testing.T) {
	m := NewAOIManager(50, 2)
	pid := ecs.MakeEntityID(1, 0)
	mob := ecs.MakeEntityID(2, 0)

	m.UpdatePlayerSubscriptions(pid, 0, 0, 7)
	m.UpdateEntityPosition(mob, 60, 0) // one cell east, inside view distance 2
	assert.True(t, m.CanPlayerSeeEntity(pid, mob))

	m.UpdateEntityPosition(mob, 500, 0)
	assert.False(t, m.CanPlayerSeeEntity(pid, mob))
}

func TestRemovePlayerDropsSubscriptions(t *testing.T) {
	m := NewAOIManager(50, 2)
	pid := ecs.MakeEntityID(1, 0)
	mob := ecs.MakeEntityID(2, 0)

	m.UpdatePlayerSubscriptions(pid, 0, 0, 7)
	m.UpdateEntityPosition(mob, 10, 10)
	require.NotEmpty(t, m.SubscribersForEntity(mob))

	m.RemovePlayer(pid)
	assert.Empty(t, m.SubscribersForEntity(mob))

	m.RemoveEntity(mob)
	_, ok := m.EntityCell(mob)
	assert.False(t, ok)
}
