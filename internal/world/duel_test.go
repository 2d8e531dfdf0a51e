package world

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runegate/server/internal/core/ecs"
)

func newTestDuel(t *testing.T) (*DuelManager, *DuelSession, ecs.EntityID, ecs.EntityID) {
	t.Helper()
	m := NewDuelManager()
	a := ecs.MakeEntityID(1, 0)
	b := ecs.MakeEntityID(2, 0)
	return m, m.Begin(a, b, 50), a, b
}

func TestDuelStageLadder(t *testing.T) {
	_, s, a, b := newTestDuel(t)
	require.Equal(t, DuelStageRules, s.Stage)

	s.Accept(a)
	both, _ := s.Accept(b)
	require.True(t, both)
	require.True(t, s.AdvanceStage())
	assert.Equal(t, DuelStageStakes, s.Stage)
	assert.False(t, s.BothAccepted(), "each screen starts unaccepted")

	s.Accept(a)
	s.Accept(b)
	require.True(t, s.AdvanceStage())
	assert.Equal(t, DuelStageFinalConfirm, s.Stage)

	assert.False(t, s.AdvanceStage(), "finalConfirm leads to countdown, not another screen")
}

func TestDuelRuleToggleResetsAcceptance(t *testing.T) {
	_, s, a, b := newTestDuel(t)

	s.Accept(a)
	require.True(t, s.ToggleRule("noMagic", true))
	assert.False(t, s.Side(a).Accepted, "rule change clears earlier acceptance")
	assert.True(t, s.Rules.NoMagic)

	assert.False(t, s.ToggleRule("noSuchRule", true))

	s.Accept(a)
	s.Accept(b)
	s.AdvanceStage()
	assert.False(t, s.ToggleRule("noMelee", true), "rules freeze after the rules screen")
}

func TestDuelSlotBans(t *testing.T) {
	_, s, a, _ := newTestDuel(t)

	s.Accept(a)
	require.True(t, s.ToggleSlotBan("head", true))
	assert.False(t, s.Side(a).Accepted)
	assert.True(t, s.Rules.BannedSlots["head"])

	require.True(t, s.ToggleSlotBan("head", false))
	_, banned := s.Rules.BannedSlots["head"]
	assert.False(t, banned)
}

func TestDuelStakesOnlyOnStakesScreen(t *testing.T) {
	_, s, a, b := newTestDuel(t)

	assert.False(t, s.AddStake(a, 0, "coins", 100), "rules screen takes no stakes")

	s.Accept(a)
	s.Accept(b)
	s.AdvanceStage()
	require.Equal(t, DuelStageStakes, s.Stage)

	require.True(t, s.AddStake(a, 0, "coins", 100))
	require.True(t, s.AddStake(a, 0, "coins", 500), "re-staking a slot updates the line")
	require.Len(t, s.Side(a).Stakes, 1)
	assert.Equal(t, int32(500), s.Side(a).Stakes[0].Quantity)

	require.True(t, s.RemoveStake(a, 0))
	assert.Empty(t, s.Side(a).Stakes)
}

func TestDuelStakeCapMatchesInventory(t *testing.T) {
	_, s, a, b := newTestDuel(t)
	s.Accept(a)
	s.Accept(b)
	s.AdvanceStage()

	for slot := 0; slot < DuelMaxStakes; slot++ {
		require.True(t, s.AddStake(a, slot, fmt.Sprintf("item_%d", slot), 1))
	}
	assert.False(t, s.AddStake(a, 99, "one_too_many", 1))
	assert.Len(t, s.Side(a).Stakes, DuelMaxStakes)
}

func TestDuelCountdownArming(t *testing.T) {
	_, s, _, _ := newTestDuel(t)
	arena := &DuelArena{ID: "arena-1", MinX: 100, MinZ: 100, MaxX: 120, MaxZ: 120, SpawnA: Tile{105, 110}, SpawnB: Tile{115, 110}}

	s.BeginCountdown(arena, Tile{3, 4}, Tile{8, 9}, 1000)

	assert.Equal(t, DuelStageCountdown, s.Stage)
	assert.True(t, s.InFight())
	assert.Equal(t, int64(1000+DuelCountdownTicks), s.CountdownEndTick)
	assert.Equal(t, Tile{3, 4}, s.Challenger.ReturnTile)
	assert.Equal(t, Tile{8, 9}, s.Challenged.ReturnTile)

	s.BeginFighting()
	assert.Equal(t, DuelStageFighting, s.Stage)
	assert.True(t, s.InFight())
}

func TestDuelArenaBoundsAreInclusive(t *testing.T) {
	arena := &DuelArena{MinX: 10, MinZ: 10, MaxX: 20, MaxZ: 20}

	assert.True(t, arena.Contains(Tile{10, 10}))
	assert.True(t, arena.Contains(Tile{20, 20}))
	assert.False(t, arena.Contains(Tile{9, 10}))
	assert.False(t, arena.Contains(Tile{10, 21}))
}

func TestDuelRulesGateAttackTypes(t *testing.T) {
	r := DuelRules{NoMagic: true, NoRanged: true}

	assert.True(t, r.AttackAllowed(AttackMelee))
	assert.False(t, r.AttackAllowed(AttackRanged))
	assert.False(t, r.AttackAllowed(AttackMagic))
}

func TestDuelDisconnectGrace(t *testing.T) {
	m, s, a, b := newTestDuel(t)

	due := s.MarkDisconnected(a, 500)
	assert.Equal(t, int64(500+DuelDisconnectGraceTicks), due)
	assert.True(t, s.Side(a).Disconnected)

	assert.True(t, s.MarkReconnected(a))
	assert.False(t, s.Side(a).Disconnected)
	assert.False(t, s.MarkReconnected(a), "no window open")

	// Sessions are shared and FightArena only answers during the fight.
	assert.Same(t, s, m.Get(b))
	assert.Nil(t, m.FightArena(a))
	s.BeginCountdown(&DuelArena{ID: "x"}, Tile{}, Tile{}, 1)
	assert.NotNil(t, m.FightArena(a))
}

func TestDuelManagerEndAndIteration(t *testing.T) {
	m, s, a, b := newTestDuel(t)

	seen := 0
	m.EachSession(func(*DuelSession) { seen++ })
	assert.Equal(t, 1, seen, "shared session visits once")
	assert.Equal(t, 1, m.Len())
	assert.True(t, m.Dueling(a))

	ended := m.End(b)
	assert.Same(t, s, ended)
	assert.False(t, m.Dueling(a))
	assert.Equal(t, 0, m.Len())
}

func TestDuelChallengeConsumeAndExpiry(t *testing.T) {
	m := NewDuelManager()
	a := ecs.MakeEntityID(1, 0)
	b := ecs.MakeEntityID(2, 0)

	m.Challenge(a, b, 10)
	assert.True(t, m.TakeChallenge(b, a, 20))
	assert.False(t, m.TakeChallenge(b, a, 21))

	m.Challenge(a, b, 10)
	assert.False(t, m.TakeChallenge(b, a, 10+TradeRequestTimeoutTicks+1))
}
