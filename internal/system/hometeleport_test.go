package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runegate/server/internal/world"
)

func TestHomeTeleportLandsAtSpawn(t *testing.T) {
	g := newGame(t)
	p := g.addPlayer("alice", world.Tile{X: 40, Z: 40})

	end, ok := g.deps.HomeTeleport.Begin(p.ID, g.tick)
	require.True(t, ok)
	require.Equal(t, g.tick+world.HomeTeleportCastTicks, end)

	g.stepN(world.HomeTeleportCastTicks - 1)
	assert.True(t, g.deps.HomeTeleport.Casting(p.ID))
	assert.Equal(t, world.Tile{X: 40, Z: 40}, p.Tile())

	g.discardPackets()
	g.step()

	assert.False(t, g.deps.HomeTeleport.Casting(p.ID))
	assert.Equal(t, g.deps.World.Spawn, p.Tile())
	assert.False(t, p.HomeCooldownAt.IsZero(), "cooldown starts at landing")
	require.NotNil(t, findPacket(g.packets(p.ID), "playerTeleport"))
}

func TestCombatInterruptsHomeTeleport(t *testing.T) {
	g := newGame(t)
	p := g.addPlayer("alice", world.Tile{X: 40, Z: 40})

	_, ok := g.deps.HomeTeleport.Begin(p.ID, g.tick)
	require.True(t, ok)
	p.InCombatUntilTick = g.tick + 10

	g.step()

	assert.False(t, g.deps.HomeTeleport.Casting(p.ID))
	assert.True(t, p.HomeCooldownAt.IsZero(), "an interrupted cast burns no cooldown")
	failed := findPacket(g.packets(p.ID), "homeTeleportFailed")
	require.NotNil(t, failed)
	assert.Contains(t, string(failed.Data), world.TeleportInterruptCombat)
}

func TestMovementInterruptsHomeTeleport(t *testing.T) {
	g := newGame(t)
	p := g.addPlayer("alice", world.Tile{X: 40, Z: 40})

	_, ok := g.deps.HomeTeleport.Begin(p.ID, g.tick)
	require.True(t, ok)
	g.deps.Movement.MoveTo(p.ID, world.Tile{X: 60, Z: 40}, false, g.tick)

	g.step()

	assert.False(t, g.deps.HomeTeleport.Casting(p.ID))
	failed := findPacket(g.packets(p.ID), "homeTeleportFailed")
	require.NotNil(t, failed)
	assert.Contains(t, string(failed.Data), world.TeleportInterruptMovement)
}

func TestSecondCastWhileChannelingIsRefused(t *testing.T) {
	g := newGame(t)
	p := g.addPlayer("alice", world.Tile{X: 40, Z: 40})

	_, ok := g.deps.HomeTeleport.Begin(p.ID, g.tick)
	require.True(t, ok)
	_, ok = g.deps.HomeTeleport.Begin(p.ID, g.tick)
	assert.False(t, ok)
}
