package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runegate/server/internal/core/event"
	"github.com/runegate/server/internal/world"
)

func TestCountdownTicksThenFightOpens(t *testing.T) {
	g := newGame(t)
	a := g.addPlayer("alice", world.Tile{X: 5, Z: 5})
	b := g.addPlayer("bob", world.Tile{X: 8, Z: 5})
	arena := testArena()

	sess := g.deps.Duels.Begin(a.ID, b.ID, g.tick)
	sess.BeginCountdown(arena, a.Tile(), b.Tile(), g.tick)
	g.discardPackets()

	g.step()
	msg := findPacket(g.packets(a.ID), "duelCountdownTick")
	require.NotNil(t, msg)
	assert.Contains(t, string(msg.Data), `"remaining":2`)
	assert.Equal(t, world.DuelStageCountdown, sess.Stage)

	g.step()
	require.NotNil(t, findPacket(g.packets(a.ID), "duelCountdownTick"))

	g.step()
	assert.Equal(t, world.DuelStageFighting, sess.Stage)
	start := findPacket(g.packets(a.ID), "duelFightStart")
	require.NotNil(t, start)
	assert.Contains(t, string(start.Data), arena.ID)
	require.NotNil(t, findPacket(g.packets(b.ID), "duelFightStart"))
}

func TestDisconnectForfeitsAfterGrace(t *testing.T) {
	g := newGame(t)
	a := g.addPlayer("alice", world.Tile{X: 5, Z: 5})
	b := g.addPlayer("bob", world.Tile{X: 8, Z: 5})
	sess := g.fightingDuel(a, b, testArena())

	returnTile := sess.Challenger.ReturnTile
	due := sess.MarkDisconnected(b.ID, g.tick)
	require.Equal(t, g.tick+world.DuelDisconnectGraceTicks, due)
	g.discardPackets()

	g.stepN(world.DuelDisconnectGraceTicks - 1)
	assert.NotNil(t, g.deps.Duels.Get(a.ID), "grace window still open")

	g.step()
	assert.Nil(t, g.deps.Duels.Get(a.ID))
	assert.Nil(t, g.deps.Sessions.Get(a.ID))
	assert.Equal(t, returnTile, a.Tile(), "winner goes back where they stood")

	won := findPacket(g.packets(a.ID), "duelCompleted")
	require.NotNil(t, won)
	assert.Contains(t, string(won.Data), `"won":true`)
	assert.Contains(t, string(won.Data), `"forfeit":true`)

	lost := findPacket(g.packets(b.ID), "duelCompleted")
	require.NotNil(t, lost)
	assert.Contains(t, string(lost.Data), `"won":false`)
}

func TestOpponentHearsAboutDisconnect(t *testing.T) {
	g := newGame(t)
	a := g.addPlayer("alice", world.Tile{X: 5, Z: 5})
	b := g.addPlayer("bob", world.Tile{X: 8, Z: 5})
	sess := g.fightingDuel(a, b, testArena())

	sess.MarkDisconnected(b.ID, g.tick)
	event.Emit(g.deps.Bus, event.PlayerDisconnected{
		EntityID:    b.ID,
		SocketID:    b.SocketID,
		CharacterID: b.CharacterID,
	})
	g.discardPackets()

	g.step()
	notice := findPacket(g.packets(a.ID), "duelOpponentDisconnected")
	require.NotNil(t, notice)
	// 49 ticks of grace left at dispatch time, 600ms each.
	assert.Contains(t, string(notice.Data), `"timeoutMs":29400`)
}

func TestReconnectRebindsFighterToArena(t *testing.T) {
	g := newGame(t)
	a := g.addPlayer("alice", world.Tile{X: 5, Z: 5})
	b := g.addPlayer("bob", world.Tile{X: 8, Z: 5})
	arena := testArena()
	sess := g.fightingDuel(a, b, arena)
	charID := b.CharacterID

	sess.MarkDisconnected(b.ID, g.tick)
	g.deps.Movement.Cancel(b.ID)
	g.deps.World.RemovePlayer(b.ID)

	// Back under a fresh entity and socket, same character.
	b2 := g.addPlayer("bob", world.Tile{X: 5, Z: 5})
	b2.CharacterID = charID
	g.discardPackets()

	event.Emit(g.deps.Bus, event.PlayerReady{EntityID: b2.ID, SocketID: b2.SocketID})
	g.step()

	require.Same(t, sess, g.deps.Duels.Get(b2.ID))
	side := sess.Side(b2.ID)
	require.NotNil(t, side)
	assert.False(t, side.Disconnected)
	assert.Nil(t, side.PartingSlots)
	assert.Equal(t, arena.SpawnB, b2.Tile(), "challenged side respawns on spawn B")

	ses := g.deps.Sessions.Get(b2.ID)
	require.NotNil(t, ses)
	assert.Equal(t, world.SessionDuel, ses.Kind)

	mine := g.packets(b2.ID)
	require.NotNil(t, findPacket(mine, "playerTeleport"))
	require.NotNil(t, findPacket(mine, "duelFightStart"))
	require.NotNil(t, findPacket(g.packets(a.ID), "duelOpponentReconnected"))

	// The forfeit clock is disarmed: the grace window passing changes nothing.
	g.stepN(world.DuelDisconnectGraceTicks + 1)
	assert.NotNil(t, g.deps.Duels.Get(a.ID))
}

func TestArenaBoundsBlockFighters(t *testing.T) {
	g := newGame(t)
	a := g.addPlayer("alice", world.Tile{X: 5, Z: 5})
	b := g.addPlayer("bob", world.Tile{X: 8, Z: 5})
	arena := testArena()
	g.fightingDuel(a, b, arena)

	g.deps.Movement.MoveTo(a.ID, world.Tile{X: 150, Z: 210}, false, g.tick)
	g.stepN(40)

	assert.True(t, arena.Contains(a.Tile()), "fighters cannot path outside the arena")
}
