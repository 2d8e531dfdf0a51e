package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/runegate/server/internal/config"
	"github.com/runegate/server/internal/core/ecs"
	"github.com/runegate/server/internal/core/event"
	coresys "github.com/runegate/server/internal/core/system"
	"github.com/runegate/server/internal/data"
	"github.com/runegate/server/internal/handler"
	gonet "github.com/runegate/server/internal/net"
	"github.com/runegate/server/internal/net/packet"
	"github.com/runegate/server/internal/persist"
	"github.com/runegate/server/internal/scripting"
	"github.com/runegate/server/internal/system"
	"github.com/runegate/server/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(name, env string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m            Runegate  v0.1.0               \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m     authoritative tick world server       \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mserver:\033[0m %s \033[90m(%s)\033[0m\n\n", name, env)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	if p := os.Getenv("RUNEGATE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, cfg.Server.Env)

	// 3. Connect to PostgreSQL and run migrations
	printSection("database")

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelBoot()

	db, err := persist.Open(bootCtx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	printOK("PostgreSQL connected")

	if err := db.Migrate(bootCtx); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	printOK("migrations applied")
	fmt.Println()

	// 4. Create repositories
	users := persist.NewUserRepo(db)
	inventory := persist.NewInventoryRepo(db)
	banks := persist.NewBankRepo(db)
	entities := persist.NewEntityRepo(db)
	configKV := persist.NewConfigRepo(db)
	social := persist.NewSocialRepo(db)

	// 5. Load static data
	printSection("data")

	catalog, err := data.LoadCatalog(cfg.Game.ItemCatalogPath)
	if err != nil {
		return fmt.Errorf("load item catalog: %w", err)
	}
	printStat("item templates", catalog.Count())

	arenas, err := data.LoadArenaTable(cfg.Game.ArenaTablePath)
	if err != nil {
		return fmt.Errorf("load arena table: %w", err)
	}
	printStat("duel arenas", arenas.Count())

	dialogues, err := scripting.NewEngine(cfg.Game.DialogueScripts, log)
	if err != nil {
		return fmt.Errorf("dialogue engine: %w", err)
	}
	defer dialogues.Close()
	printStat("dialogue scripts", dialogues.Count())

	exchange := persist.NewExchange(db, inventory, banks, catalog, log)

	// 6. Create ECS world, game state, and the world managers
	ecsWorld := ecs.NewWorld()
	aoi := world.NewAOIManager(cfg.Game.AOICellSize, cfg.Game.AOIViewDistance)
	pids := world.NewPIDManager(cfg.Game.PIDSeed)
	worldState := world.NewState(aoi, pids)

	bus := event.NewBus()
	tasks := coresys.NewTaskQueue()

	sockets := gonet.NewSocketTable()
	broadcast := gonet.NewBroadcastManager(sockets, aoi.SubscribersForEntity, log)

	tiles := ecs.NewStore[world.TileState]()
	movement := world.NewMovementManager(tiles, func(id ecs.EntityID, path []world.Tile, running bool) {
		broadcast.SendToAOI(id, "tileMovementStart", map[string]any{
			"entityId": id,
			"path":     path,
			"running":  running,
		}, 0)
	})

	intents := world.NewIntentRegistry()
	actions := world.NewActionQueueManager()
	trades := world.NewTradeManager()
	duels := world.NewDuelManager()
	homeTeleport := world.NewHomeTeleportManager()
	dialogueTracker := handler.NewDialogueTracker()

	// Fighters may not leave their arena; everyone else walks anywhere.
	movement.AddBlocker(world.BlockerFunc(func(id ecs.EntityID, t world.Tile) bool {
		arena := duels.FightArena(id)
		return arena != nil && !arena.Contains(t)
	}))

	// Destroyed entities drop out of every per-entity store at tick end.
	ecsWorld.RegisterStore(tiles)
	ecsWorld.RegisterStore(intents)
	ecsWorld.RegisterStore(actions)
	ecsWorld.RegisterStore(trades)
	ecsWorld.RegisterStore(duels)
	ecsWorld.RegisterStore(homeTeleport)
	ecsWorld.RegisterStore(dialogueTracker)

	// 7. Boot loads: spawn point, settings mirror, world entities
	if sp, ok, err := configKV.SpawnPoint(bootCtx); err != nil {
		return fmt.Errorf("load spawn point: %w", err)
	} else if ok {
		worldState.Spawn = world.TileAt(sp.X, sp.Z)
	}

	rawSettings, err := configKV.LoadAll(bootCtx)
	if err != nil {
		return fmt.Errorf("load config table: %w", err)
	}
	settings := make(map[string]string, len(rawSettings))
	for k, v := range rawSettings {
		settings[k] = string(v)
	}
	worldState.LoadSettings(settings)

	records, err := entities.LoadAll(bootCtx)
	if err != nil {
		return fmt.Errorf("load entities: %w", err)
	}
	mobCount, npcCount, nodeCount := spawnEntities(ecsWorld, worldState, movement, records, log)
	printStat("mobs spawned", mobCount)
	printStat("npcs spawned", npcCount)
	printStat("resource nodes", nodeCount)
	fmt.Println()

	// 8. Packet registry, handler deps, sessions
	reg := packet.NewRegistry(log)
	deps := &handler.Deps{
		Config: cfg,
		Log:    log,

		Ecs:   ecsWorld,
		World: worldState,
		Bus:   bus,
		Tasks: tasks,

		Sockets:   sockets,
		Broadcast: broadcast,

		Movement:     movement,
		Intents:      intents,
		Actions:      actions,
		Dialogue:     dialogueTracker,
		Trades:       trades,
		Duels:        duels,
		HomeTeleport: homeTeleport,

		Catalog:   catalog,
		Arenas:    arenas,
		Scripting: dialogues,

		Users:     users,
		Inventory: inventory,
		Banks:     banks,
		Entities:  entities,
		ConfigKV:  configKV,
		Social:    social,
		Exchange:  exchange,
	}
	// The session closer needs deps; sessions need the closer.
	deps.Sessions = world.NewInteractionSessionManager(handler.SessionCloser(deps))
	ecsWorld.RegisterStore(deps.Sessions)
	handler.RegisterAll(reg, deps)

	// 9. Network server
	server := gonet.NewServer(cfg.Network.BindAddress, cfg.Network.WSPath, gonet.SocketConfig{
		InQueueSize:       cfg.Network.InQueueSize,
		OutQueueSize:      cfg.Network.OutQueueSize,
		WriteTimeout:      cfg.Network.WriteTimeout,
		PingInterval:      cfg.Network.PingInterval,
		PingGrace:         cfg.Network.PingGrace,
		PingMissTolerance: cfg.Network.PingMissTolerance,
	}, log)

	// 10. Systems, in phase order
	runner := coresys.NewRunner()
	scheduler := coresys.NewScheduler(cfg.Game.TickRate, runner, log)
	deps.CurrentTick = scheduler.CurrentTick

	seed := time.Now().UnixNano()
	combat := system.NewCombatSystem(deps, seed)
	skilling := system.NewResourceSystem(deps, seed)
	deps.Combat = combat
	deps.Skilling = skilling
	system.NewEventBridge(deps)

	runner.Register(system.NewDispatchSystem(bus, tasks))
	runner.Register(system.NewDuelSystem(deps))
	runner.Register(system.NewActionQueueSystem(deps))
	runner.Register(system.NewInputSystem(deps, server, reg))
	runner.Register(system.NewMovementSystem(deps))
	runner.Register(system.NewPendingIntentSystem(deps))
	runner.Register(system.NewHomeTeleportSystem(deps))
	runner.Register(combat)
	runner.Register(system.NewMobAISystem(deps, seed))
	runner.Register(skilling)
	runner.Register(system.NewVisibilitySystem(deps))
	saveSys := system.NewSaveSystem(deps)
	runner.Register(saveSys)
	runner.Register(system.NewCleanupSystem(deps))
	runner.Register(system.NewBroadcastFlushSystem(broadcast))

	// 11. Run until a signal lands
	printSection("server ready")
	printReady(fmt.Sprintf("listening on %s%s", cfg.Network.BindAddress, cfg.Network.WSPath))
	printReady(fmt.Sprintf("game loop started (tick: %s)", cfg.Game.TickRate))
	fmt.Println()

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(server.ListenAndServe)
	g.Go(func() error {
		if err := scheduler.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shCtx)
	})
	runErr := g.Wait()

	// 12. Final save after the loop has stopped; live state is safe to read.
	saveCtx, cancelSave := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelSave()
	saveSys.SaveAll(saveCtx)

	log.Info("server stopped")
	return runErr
}

// spawnEntities instantiates the entities table: mob and npc rows become Mob
// records tracked by the movement manager, resource and range rows become
// nodes. Unknown types are logged and skipped so newer rows don't brick an
// older binary.
func spawnEntities(ecsWorld *ecs.World, ws *world.State, movement *world.MovementManager, records []persist.EntityRecord, log *zap.Logger) (mobs, npcs, nodes int) {
	for _, rec := range records {
		doc := rec.Doc
		switch doc.Type {
		case "mob", "npc":
			m := mobFromDoc(ecsWorld.CreateEntity(), rec.ID, doc)
			m.Y = world.ClampY(ws.Terrain, m.X, m.Z)
			ws.AddMob(m)
			movement.Track(m.ID, m.Tile())
			if doc.Type == "npc" {
				npcs++
			} else {
				mobs++
			}
		case "resource", "range":
			n := nodeFromDoc(ecsWorld.CreateEntity(), doc)
			ws.AddResource(n)
			nodes++
		default:
			log.Warn("unknown entity type, skipping",
				zap.Int64("id", rec.ID),
				zap.String("type", doc.Type))
		}
	}
	return mobs, npcs, nodes
}

func mobFromDoc(id ecs.EntityID, rowID int64, doc persist.EntityDoc) *world.Mob {
	m := &world.Mob{
		ID:      id,
		SpawnID: rowID,
		Type:    doc.Type,
		Name:    doc.Name,
		X:       doc.X,
		Z:       doc.Z,

		HP:               doc.MaxHP,
		MaxHP:            doc.MaxHP,
		Damage:           doc.Damage,
		AttackRange:      doc.AttackRange,
		AttackType:       world.AttackType(doc.AttackType),
		AttackSpeedTicks: doc.AttackSpeedTicks,
		AggroRange:       doc.AggroRange,

		SpawnTile:    world.TileAt(doc.X, doc.Z),
		WanderRadius: doc.WanderRadius,
		RespawnTicks: doc.RespawnTicks,

		XP:           doc.XP,
		DropItemID:   doc.DropItemID,
		DropQuantity: doc.DropQuantity,

		DialogueScript: doc.DialogueScript,
		Store:          doc.Store,
	}
	if m.MaxHP < 1 {
		m.MaxHP = 1
		m.HP = 1
	}
	if m.AttackRange < 1 {
		m.AttackRange = 1
	}
	if m.AttackType == "" {
		m.AttackType = world.AttackMelee
	}
	if m.AttackSpeedTicks < 1 {
		m.AttackSpeedTicks = 4
	}
	return m
}

func nodeFromDoc(id ecs.EntityID, doc persist.EntityDoc) *world.ResourceNode {
	kind := world.ResourceKind(doc.Kind)
	if doc.Type == "range" {
		kind = world.ResourceRange
	}
	return &world.ResourceNode{
		ID:    id,
		Kind:  kind,
		Name:  doc.Name,
		Tile:  world.TileAt(doc.X, doc.Z),
		Skill: doc.Skill,

		YieldItemID: doc.YieldItemID,
		YieldXP:     doc.YieldXP,
		CycleTicks:  doc.CycleTicks,

		RequiredToolID: doc.RequiredToolID,
		RespawnTicks:   doc.RespawnTicks,
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
