package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runegate/server/internal/core/ecs"
)

func TestResourceDepleteAndRespawn(t *testing.T) {
	n := &ResourceNode{
		ID:           ecs.MakeEntityID(1, 0),
		Kind:         ResourceTree,
		Tile:         Tile{5, 5},
		RespawnTicks: 10,
	}

	require.True(t, n.Active())
	require.True(t, n.Deplete(100))
	assert.False(t, n.Active())

	assert.False(t, n.RespawnDue(109))
	require.True(t, n.RespawnDue(110))
	n.Respawn()
	assert.True(t, n.Active())
}

func TestResourceWithoutRespawnNeverDepletes(t *testing.T) {
	spot := &ResourceNode{Kind: ResourceFishing}
	assert.False(t, spot.Deplete(100), "fishing spots stay active after a catch")
	assert.True(t, spot.Active())
}

func TestResourceRangesAreNotGatherable(t *testing.T) {
	assert.False(t, (&ResourceNode{Kind: ResourceRange}).Gatherable())
	assert.True(t, (&ResourceNode{Kind: ResourceRock}).Gatherable())
}

func TestStateTracksResources(t *testing.T) {
	s := NewState(NewAOIManager(50, 2), NewPIDManager(1))
	node := &ResourceNode{
		ID:           ecs.MakeEntityID(4, 0),
		Kind:         ResourceTree,
		Tile:         Tile{7, 3},
		RespawnTicks: 5,
	}
	s.AddResource(node)

	tile, ok := s.EntityTile(node.ID)
	require.True(t, ok, "resources resolve through the shared tile lookup")
	assert.Equal(t, Tile{7, 3}, tile)
	assert.True(t, s.TargetActive(node.ID))

	node.Deplete(50)
	assert.False(t, s.TargetActive(node.ID), "depleted nodes are not valid targets")

	removed := s.RemoveResource(node.ID)
	assert.Same(t, node, removed)
	_, ok = s.EntityTile(node.ID)
	assert.False(t, ok)
}
