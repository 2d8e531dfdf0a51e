package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runegate/server/internal/world"
)

func TestAggroEngagesLowestPIDPlayer(t *testing.T) {
	g := newGame(t)
	a := g.addPlayer("alice", world.Tile{X: 8, Z: 10})
	g.addPlayer("bob", world.Tile{X: 12, Z: 10})
	m := g.addMob("Goblin", world.Tile{X: 10, Z: 10}, 30, 0)
	m.AggroRange = 3

	g.step()

	assert.Equal(t, a.ID, m.TargetID, "first joiner holds the lowest pid")
}

func TestAggroSkipsIneligiblePlayers(t *testing.T) {
	g := newGame(t)
	a := g.addPlayer("alice", world.Tile{X: 8, Z: 10})
	b := g.addPlayer("bob", world.Tile{X: 9, Z: 10})
	c := g.addPlayer("carol", world.Tile{X: 12, Z: 10})
	partner := g.addPlayer("dave", world.Tile{X: 50, Z: 50})

	a.IsLoading = true
	g.deps.Duels.Begin(b.ID, partner.ID, g.tick)

	m := g.addMob("Goblin", world.Tile{X: 10, Z: 10}, 30, 0)
	m.AggroRange = 3

	g.step()

	assert.Equal(t, c.ID, m.TargetID, "loading and dueling players are invisible to aggro")
}

func TestAggroIgnoresPlayersOutOfRange(t *testing.T) {
	g := newGame(t)
	g.addPlayer("alice", world.Tile{X: 20, Z: 10})
	m := g.addMob("Goblin", world.Tile{X: 10, Z: 10}, 30, 0)
	m.AggroRange = 3

	g.stepN(3)

	assert.True(t, m.TargetID.IsZero())
}

func TestLeashedMobWalksBackInsideCamp(t *testing.T) {
	g := newGame(t)
	m := g.addMob("Goblin", world.Tile{X: 30, Z: 30}, 30, 0)
	m.WanderRadius = 2

	g.deps.World.MoveEntityTo(m.ID, world.Tile{X: 37, Z: 30})
	g.deps.Movement.SyncPosition(m.ID, world.Tile{X: 37, Z: 30})

	for i := 0; i < 20 && m.Tile().Chebyshev(m.SpawnTile) > m.WanderRadius; i++ {
		g.step()
	}
	assert.LessOrEqual(t, m.Tile().Chebyshev(m.SpawnTile), m.WanderRadius)
}

func TestWanderNeverLeavesCamp(t *testing.T) {
	g := newGame(t)
	m := g.addMob("Goblin", world.Tile{X: 30, Z: 30}, 30, 0)
	m.WanderRadius = 2

	moved := false
	for i := 0; i < 300; i++ {
		g.step()
		require.LessOrEqual(t, m.Tile().Chebyshev(m.SpawnTile), m.WanderRadius,
			"wander destinations stay inside the camp box")
		if m.Tile() != m.SpawnTile {
			moved = true
		}
	}
	assert.True(t, moved, "an idle mob eventually wanders")
}

func TestEngagedMobDoesNotWander(t *testing.T) {
	g := newGame(t)
	p := g.addPlayer("alice", world.Tile{X: 31, Z: 30})
	m := g.addMob("Goblin", world.Tile{X: 30, Z: 30}, 30, 0)
	m.AggroRange = 2
	m.WanderRadius = 2

	g.step()
	require.Equal(t, p.ID, m.TargetID)

	// Combat chase owns movement now; the wander roll never fires.
	at := m.Tile()
	g.stepN(10)
	assert.Equal(t, at, m.Tile(), "adjacent fighters hold their tiles")
	assert.Equal(t, p.ID, m.TargetID)
}
