package system

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runegate/server/internal/handler"
	"github.com/runegate/server/internal/world"
)

func TestGatherYieldsThenDepletesNode(t *testing.T) {
	g := newGame(t)
	p := g.addPlayer("alice", world.Tile{X: 5, Z: 5})
	tree := g.addTree(world.Tile{X: 5, Z: 6})

	g.skilling.BeginGather(p.ID, tree.ID)
	g.step()
	assert.Zero(t, p.Inventory.Count("logs"), "first yield takes a full cycle")

	g.step()
	assert.Equal(t, int64(1), p.Inventory.Count("logs"))
	assert.Equal(t, int64(25), p.Skills["woodcutting"])
	assert.True(t, tree.Depleted)
	assert.False(t, g.skilling.Working(p.ID), "depleted node ends the job")
}

func TestDepletedNodeRespawnsOnSchedule(t *testing.T) {
	g := newGame(t)
	p := g.addPlayer("alice", world.Tile{X: 5, Z: 5})
	tree := g.addTree(world.Tile{X: 5, Z: 6})

	g.skilling.BeginGather(p.ID, tree.ID)
	g.stepN(2)
	require.True(t, tree.Depleted)
	respawnAt := tree.RespawnAtTick

	for g.tick < respawnAt-1 {
		g.step()
	}
	assert.True(t, tree.Depleted)

	g.step()
	assert.True(t, tree.Active())
	assert.Zero(t, tree.RespawnAtTick)
}

func TestGatherStopsWhenInventoryFull(t *testing.T) {
	g := newGame(t)
	p := g.addPlayer("alice", world.Tile{X: 5, Z: 5})
	tree := g.addTree(world.Tile{X: 5, Z: 6})
	for i := 0; i < world.InventorySize; i++ {
		require.GreaterOrEqual(t, p.Inventory.Add("bones", 1, false), 0)
	}

	g.skilling.BeginGather(p.ID, tree.ID)
	g.stepN(2)

	assert.False(t, g.skilling.Working(p.ID))
	assert.False(t, tree.Depleted, "no yield, no depletion")
	assert.Zero(t, p.Skills["woodcutting"])

	g.step()
	toast := findPacket(g.packets(p.ID), "showToast")
	require.NotNil(t, toast)
	assert.Contains(t, string(toast.Data), "inventory is full")
}

func TestGatherDropsWhenPlayerWalksAway(t *testing.T) {
	g := newGame(t)
	p := g.addPlayer("alice", world.Tile{X: 5, Z: 5})
	tree := g.addTree(world.Tile{X: 5, Z: 6})

	g.skilling.BeginGather(p.ID, tree.ID)
	g.deps.Movement.MoveTo(p.ID, world.Tile{X: 15, Z: 5}, false, g.tick)
	g.stepN(3)

	assert.False(t, g.skilling.Working(p.ID))
	assert.Zero(t, p.Inventory.Count("logs"))
}

func TestCookingRunsTheRawStackOut(t *testing.T) {
	g := newGame(t)
	p := g.addPlayer("alice", world.Tile{X: 5, Z: 5})
	fire := g.addFire(world.Tile{X: 5, Z: 6}, 10_000)
	for i := 0; i < 3; i++ {
		p.Inventory.Add("raw_shrimp", 1, false)
	}

	g.skilling.BeginCooking(p.ID, fire.ID, -1)
	g.stepN(13)

	cooked := p.Inventory.Count("shrimp")
	burnt := p.Inventory.Count("burnt_shrimp")
	assert.Zero(t, p.Inventory.Count("raw_shrimp"))
	assert.Equal(t, int64(3), cooked+burnt, "every raw item resolves one way")
	assert.Equal(t, 30*cooked, p.Skills["cooking"], "xp only for successes")
	assert.False(t, g.skilling.Working(p.ID))
}

func TestExplicitSlotCookIsOneShot(t *testing.T) {
	g := newGame(t)
	p := g.addPlayer("alice", world.Tile{X: 5, Z: 5})
	fire := g.addFire(world.Tile{X: 5, Z: 6}, 10_000)
	p.Inventory.Add("raw_shrimp", 1, false)
	p.Inventory.Add("raw_shrimp", 1, false)

	g.skilling.BeginCooking(p.ID, fire.ID, 0)
	g.stepN(5)

	assert.Equal(t, int64(1), p.Inventory.Count("raw_shrimp"))
	assert.False(t, g.skilling.Working(p.ID))
}

func TestCookingStopsWhenFireDies(t *testing.T) {
	g := newGame(t)
	p := g.addPlayer("alice", world.Tile{X: 5, Z: 5})
	fire := g.addFire(world.Tile{X: 5, Z: 6}, 2)
	p.Inventory.Add("raw_shrimp", 1, false)

	g.skilling.BeginCooking(p.ID, fire.ID, -1)
	g.stepN(5)

	assert.Equal(t, int64(1), p.Inventory.Count("raw_shrimp"), "fire died before the first cycle")
	assert.False(t, g.skilling.Working(p.ID))
}

func TestFireExpiryAnnouncesRemoval(t *testing.T) {
	g := newGame(t)
	p := g.addPlayer("alice", world.Tile{X: 5, Z: 5})
	fire := g.addFire(world.Tile{X: 5, Z: 6}, 3)
	g.discardPackets()

	g.stepN(3)

	assert.Zero(t, g.deps.World.Fires.Len())
	removed := findPacket(g.packets(p.ID), "entityRemoved")
	require.NotNil(t, removed)
	assert.Contains(t, string(removed.Data), fmt.Sprintf(`"id":%d`, uint64(fire.ID)))
}

func TestGroundItemExpiryAnnouncesRemoval(t *testing.T) {
	g := newGame(t)
	p := g.addPlayer("alice", world.Tile{X: 5, Z: 5})
	drop := handler.SpawnGroundItem(g.deps, "bones", 1, world.Tile{X: 5, Z: 6}, 0)
	drop.ExpiresTick = g.tick + 3
	g.discardPackets()

	g.stepN(3)

	assert.Nil(t, g.deps.World.GroundItem(drop.ID))
	removed := findPacket(g.packets(p.ID), "entityRemoved")
	require.NotNil(t, removed)
	assert.Contains(t, string(removed.Data), fmt.Sprintf(`"id":%d`, uint64(drop.ID)))
}
