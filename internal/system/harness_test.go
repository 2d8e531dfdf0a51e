package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/runegate/server/internal/config"
	"github.com/runegate/server/internal/core/ecs"
	"github.com/runegate/server/internal/core/event"
	coresys "github.com/runegate/server/internal/core/system"
	"github.com/runegate/server/internal/data"
	"github.com/runegate/server/internal/handler"
	"github.com/runegate/server/internal/net"
	"github.com/runegate/server/internal/world"
)

const testSeed = 99

// game is a complete in-process world for system tests: every manager the
// systems touch, capture sockets instead of connections, no database. The
// systems run in the production phase order minus the network intake and the
// persistence sweep.
type game struct {
	t    *testing.T
	tick int64

	deps     *handler.Deps
	combat   *CombatSystem
	skilling *ResourceSystem
	systems  []coresys.System

	nextChar int64
	nextSock uint64
	socks    map[ecs.EntityID]*net.Socket
	inbox    map[ecs.EntityID][]*net.Message
}

func newGame(t *testing.T) *game {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{Name: "test", Env: "test", StartTime: 1},
		Game: config.GameConfig{
			TickRate:     600 * time.Millisecond,
			SaveInterval: 60 * time.Second,
		},
	}
	log := zap.NewNop()

	ecsw := ecs.NewWorld()
	aoi := world.NewAOIManager(50, 2)
	state := world.NewState(aoi, world.NewPIDManager(1))
	state.Spawn = world.Tile{X: 5, Z: 5}

	sockets := net.NewSocketTable()
	tiles := ecs.NewStore[world.TileState]()
	duels := world.NewDuelManager()

	movement := world.NewMovementManager(tiles, nil)
	movement.AddBlocker(world.BlockerFunc(func(id ecs.EntityID, tl world.Tile) bool {
		arena := duels.FightArena(id)
		return arena != nil && !arena.Contains(tl)
	}))

	deps := &handler.Deps{
		Config:       cfg,
		Log:          log,
		Ecs:          ecsw,
		World:        state,
		Bus:          event.NewBus(),
		Tasks:        coresys.NewTaskQueue(),
		Sockets:      sockets,
		Broadcast:    net.NewBroadcastManager(sockets, aoi.SubscribersForEntity, log),
		Movement:     movement,
		Intents:      world.NewIntentRegistry(),
		Actions:      world.NewActionQueueManager(),
		Dialogue:     handler.NewDialogueTracker(),
		Trades:       world.NewTradeManager(),
		Duels:        duels,
		HomeTeleport: world.NewHomeTeleportManager(),
		Catalog:      testCatalog(),
		Arenas:       data.NewArenaTable(),
	}
	deps.Sessions = world.NewInteractionSessionManager(handler.SessionCloser(deps))

	for _, s := range []ecs.Removable{
		tiles, deps.Intents, deps.Actions, deps.Trades,
		deps.Duels, deps.HomeTeleport, deps.Dialogue, deps.Sessions,
	} {
		ecsw.RegisterStore(s)
	}

	g := &game{
		t:     t,
		deps:  deps,
		socks: make(map[ecs.EntityID]*net.Socket),
		inbox: make(map[ecs.EntityID][]*net.Message),
	}
	deps.CurrentTick = func() int64 { return g.tick }

	g.combat = NewCombatSystem(deps, testSeed)
	g.skilling = NewResourceSystem(deps, testSeed)
	deps.Combat = g.combat
	deps.Skilling = g.skilling
	NewEventBridge(deps)

	g.systems = []coresys.System{
		NewDispatchSystem(deps.Bus, deps.Tasks),
		NewDuelSystem(deps),
		NewActionQueueSystem(deps),
		NewMovementSystem(deps),
		NewPendingIntentSystem(deps),
		NewHomeTeleportSystem(deps),
		g.combat,
		NewMobAISystem(deps, testSeed),
		g.skilling,
		NewVisibilitySystem(deps),
		NewCleanupSystem(deps),
	}
	return g
}

func testCatalog() *data.Catalog {
	return data.NewCatalog(
		&data.Item{ID: "coins", Name: "Coins", Stackable: true, Tradeable: true, Value: 1},
		&data.Item{ID: "bronze_sword", Name: "Bronze sword", Tradeable: true, Value: 50,
			EquipSlot: "weapon", AttackType: "melee", AttackRange: 1, Damage: 8, AttackSpeed: 4},
		&data.Item{ID: "shortbow", Name: "Shortbow", Tradeable: true, Value: 80,
			EquipSlot: "weapon", TwoHanded: true, AttackType: "ranged", AttackRange: 7, Damage: 6, AttackSpeed: 5},
		&data.Item{ID: "logs", Name: "Logs", Tradeable: true, Value: 10,
			Flammable: true, BurnTicks: 100, FiremakeXP: 40},
		&data.Item{ID: "raw_shrimp", Name: "Raw shrimp", Tradeable: true, Value: 5,
			CooksInto: "shrimp", BurnsInto: "burnt_shrimp", CookXP: 30},
		&data.Item{ID: "shrimp", Name: "Shrimp", Tradeable: true, Value: 10, Heals: 3},
		&data.Item{ID: "burnt_shrimp", Name: "Burnt shrimp", Value: 1},
		&data.Item{ID: "bones", Name: "Bones", Tradeable: true, Value: 1},
	)
}

// step runs one full tick and captures everything flushed to the sockets.
func (g *game) step() {
	g.tick++
	for _, s := range g.systems {
		s.Update(g.tick)
	}
	g.deps.Broadcast.Flush()
	for id, sock := range g.socks {
		g.inbox[id] = append(g.inbox[id], drainSocket(g.t, sock)...)
	}
}

func (g *game) stepN(n int) {
	for i := 0; i < n; i++ {
		g.step()
	}
}

// packets returns and clears the frames captured for a player since the last
// call.
func (g *game) packets(id ecs.EntityID) []*net.Message {
	out := g.inbox[id]
	g.inbox[id] = nil
	return out
}

func (g *game) discardPackets() {
	for id := range g.inbox {
		g.inbox[id] = nil
	}
}

func drainSocket(t *testing.T, sock *net.Socket) []*net.Message {
	t.Helper()
	var out []*net.Message
	for {
		select {
		case buf := <-sock.OutQueue:
			m, err := net.DecodeMessage(buf)
			require.NoError(t, err)
			out = append(out, m)
		default:
			return out
		}
	}
}

// findPacket returns the first frame with the given name, or nil.
func findPacket(msgs []*net.Message, name string) *net.Message {
	for _, m := range msgs {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func packetNames(msgs []*net.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Name
	}
	return out
}

func (g *game) addPlayer(name string, at world.Tile) *world.Player {
	g.nextChar++
	g.nextSock++
	sock := &net.Socket{
		ID:       g.nextSock,
		In:       make(chan *net.Message, 8),
		OutQueue: make(chan []byte, 1024),
	}
	g.deps.Sockets.Add(sock)

	p := world.NewPlayer(g.deps.Ecs.CreateEntity(), g.nextChar, sock.ID, name)
	p.IsLoading = false
	p.SetTile(at)
	g.deps.World.AddPlayer(p)
	g.deps.Movement.Track(p.ID, at)
	g.deps.Broadcast.Bind(p.ID, sock.ID)
	g.deps.World.AOI.UpdatePlayerSubscriptions(p.ID, p.X, p.Z, sock.ID)
	g.socks[p.ID] = sock
	return p
}

func (g *game) addMob(name string, at world.Tile, hp, damage int) *world.Mob {
	m := &world.Mob{
		ID:               g.deps.Ecs.CreateEntity(),
		SpawnID:          int64(g.deps.World.MobCount() + 1),
		Type:             "mob",
		Name:             name,
		HP:               hp,
		MaxHP:            hp,
		Damage:           damage,
		AttackRange:      1,
		AttackType:       world.AttackMelee,
		AttackSpeedTicks: 4,
		SpawnTile:        at,
		RespawnTicks:     10,
		XP:               20,
		DropItemID:       "bones",
		DropQuantity:     1,
	}
	m.SetTile(at)
	g.deps.World.AddMob(m)
	g.deps.Movement.Track(m.ID, at)
	return m
}

func (g *game) addTree(at world.Tile) *world.ResourceNode {
	n := &world.ResourceNode{
		ID:           g.deps.Ecs.CreateEntity(),
		Kind:         world.ResourceTree,
		Name:         "Tree",
		Tile:         at,
		Skill:        "woodcutting",
		YieldItemID:  "logs",
		YieldXP:      25,
		CycleTicks:   2,
		RespawnTicks: 10,
	}
	g.deps.World.AddResource(n)
	return n
}

func (g *game) addFire(at world.Tile, expiresTick int64) *world.Fire {
	f := &world.Fire{
		ID:          g.deps.Ecs.CreateEntity(),
		Tile:        at,
		CreatedTick: g.tick,
		ExpiresTick: expiresTick,
	}
	g.deps.World.Fires.Add(f)
	g.deps.World.AOI.UpdateEntityPosition(f.ID, at.WorldX(), at.WorldZ())
	return f
}

// wield puts a catalog weapon in the player's weapon slot.
func (g *game) wield(p *world.Player, itemID string) {
	p.Equipment.Set(world.SlotWeapon, &world.ItemStack{ItemID: itemID, Quantity: 1})
}

// fightingDuel wires a duel session already in the fighting stage inside a
// test arena, the way the accept flow leaves it.
func (g *game) fightingDuel(a, b *world.Player, arena *world.DuelArena) *world.DuelSession {
	s := g.deps.Duels.Begin(a.ID, b.ID, g.tick)
	s.Challenger.CharacterID = a.CharacterID
	s.Challenged.CharacterID = b.CharacterID
	g.deps.Sessions.Open(a.ID, world.SessionDuel, b.ID, g.tick)
	g.deps.Sessions.Open(b.ID, world.SessionDuel, a.ID, g.tick)
	s.BeginCountdown(arena, a.Tile(), b.Tile(), g.tick)
	for i, p := range [2]*world.Player{a, b} {
		spawn := arena.SpawnA
		if i == 1 {
			spawn = arena.SpawnB
		}
		g.deps.World.MoveEntityTo(p.ID, spawn)
		g.deps.Movement.SyncPosition(p.ID, spawn)
	}
	s.BeginFighting()
	return s
}

func testArena() *world.DuelArena {
	return &world.DuelArena{
		ID:   "arena_test",
		MinX: 200, MinZ: 200, MaxX: 220, MaxZ: 220,
		SpawnA: world.Tile{X: 205, Z: 210},
		SpawnB: world.Tile{X: 215, Z: 210},
	}
}
