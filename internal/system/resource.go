package system

import (
	"math/rand"

	"github.com/runegate/server/internal/core/ecs"
	"github.com/runegate/server/internal/core/event"
	coresys "github.com/runegate/server/internal/core/system"
	"github.com/runegate/server/internal/handler"
	"github.com/runegate/server/internal/world"
)

// cookCycleTicks paces cooking attempts; gather nodes carry their own cycle.
const cookCycleTicks = 4

type jobKind string

const (
	jobGather jobKind = "gather"
	jobCook   jobKind = "cook"
)

// skillJob is one player's running work loop: which node or heat source, and
// when the next attempt lands.
type skillJob struct {
	kind     jobKind
	targetID ecs.EntityID
	cookSlot int
	nextAt   int64
}

// ResourceSystem runs the skilling work loops and the world's slow clocks:
// node respawns, fire burnout, ground item expiry. Jobs process in PID order
// so two players racing the last yield of a node resolve deterministically.
type ResourceSystem struct {
	d    *handler.Deps
	rng  *rand.Rand
	jobs map[ecs.EntityID]*skillJob
}

func NewResourceSystem(d *handler.Deps, seed int64) *ResourceSystem {
	return &ResourceSystem{
		d:    d,
		rng:  rand.New(rand.NewSource(seed)),
		jobs: make(map[ecs.EntityID]*skillJob),
	}
}

func (s *ResourceSystem) Phase() coresys.Phase { return coresys.PhaseResources }

// BeginGather starts the work loop; the first attempt lands a full cycle
// after arrival.
func (s *ResourceSystem) BeginGather(playerID, nodeID ecs.EntityID) {
	node := s.d.World.Resource(nodeID)
	if node == nil || !node.Gatherable() || !node.Active() {
		return
	}
	s.jobs[playerID] = &skillJob{
		kind:     jobGather,
		targetID: nodeID,
		nextAt:   s.d.CurrentTick() + int64(cycleTicks(node)),
	}
}

// BeginCooking starts a cook loop against a fire or range. Slot -1 cooks the
// first raw item each cycle.
func (s *ResourceSystem) BeginCooking(playerID, sourceID ecs.EntityID, rawSlot int) {
	s.jobs[playerID] = &skillJob{
		kind:     jobCook,
		targetID: sourceID,
		cookSlot: rawSlot,
		nextAt:   s.d.CurrentTick() + cookCycleTicks,
	}
}

// StopWork drops the player's job, if any. Every interrupting interaction
// calls it.
func (s *ResourceSystem) StopWork(playerID ecs.EntityID) {
	delete(s.jobs, playerID)
}

// Working reports whether a player has a live job.
func (s *ResourceSystem) Working(playerID ecs.EntityID) bool {
	_, ok := s.jobs[playerID]
	return ok
}

func (s *ResourceSystem) Update(tick int64) {
	d := s.d

	d.World.EachResource(func(n *world.ResourceNode) {
		if n.RespawnDue(tick) {
			n.Respawn()
			d.World.MarkChanged(n.ID)
		}
	})

	for _, f := range d.World.Fires.ExpireBefore(tick) {
		d.Broadcast.SendToAOI(f.ID, "entityRemoved", map[string]any{"id": uint64(f.ID)}, 0)
		d.World.AOI.RemoveEntity(f.ID)
		d.Ecs.MarkForDestruction(f.ID)
	}

	for _, g := range d.World.ExpireGroundItems(tick) {
		d.Broadcast.SendToAOI(g.ID, "entityRemoved", map[string]any{"id": uint64(g.ID)}, 0)
		d.World.AOI.RemoveEntity(g.ID)
		d.Ecs.MarkForDestruction(g.ID)
	}

	for _, pid := range d.World.PIDs.Order() {
		job, ok := s.jobs[pid]
		if !ok || tick < job.nextAt {
			continue
		}
		p := d.World.Player(pid)
		if p == nil || p.Dead {
			delete(s.jobs, pid)
			continue
		}
		switch job.kind {
		case jobGather:
			s.gatherCycle(p, job, tick)
		case jobCook:
			s.cookCycle(p, job, tick)
		}
	}

	// Jobs whose players left the world go with them.
	for pid := range s.jobs {
		if d.World.Player(pid) == nil {
			delete(s.jobs, pid)
		}
	}
}

func (s *ResourceSystem) gatherCycle(p *world.Player, job *skillJob, tick int64) {
	d := s.d
	node := d.World.Resource(job.targetID)
	if node == nil || !node.Active() {
		delete(s.jobs, p.ID)
		return
	}
	if !world.InAttackReach(p.Tile(), node.Tile, 1, "") {
		delete(s.jobs, p.ID)
		return
	}

	stackable := d.Catalog.Stackable(node.YieldItemID)
	if p.Inventory.Add(node.YieldItemID, 1, stackable) < 0 {
		event.Emit(d.Bus, event.UIMessage{PlayerID: p.ID, Text: "Your inventory is full.", Kind: "toast"})
		delete(s.jobs, p.ID)
		return
	}
	event.Emit(d.Bus, event.InventoryChanged{PlayerID: p.ID})
	handler.GrantXP(d, p, node.Skill, node.YieldXP)
	p.Dirty = true

	if node.Deplete(tick) {
		d.World.MarkChanged(node.ID)
		delete(s.jobs, p.ID)
		return
	}
	job.nextAt = tick + int64(cycleTicks(node))
}

func (s *ResourceSystem) cookCycle(p *world.Player, job *skillJob, tick int64) {
	d := s.d
	sourceTile, ok := s.heatSource(job.targetID)
	if !ok {
		delete(s.jobs, p.ID)
		return
	}
	if !world.InAttackReach(p.Tile(), sourceTile, 1, "") {
		delete(s.jobs, p.ID)
		return
	}

	slot := job.cookSlot
	if slot < 0 {
		slot = s.firstRawSlot(p)
	}
	if slot < 0 {
		delete(s.jobs, p.ID)
		return
	}
	stack := p.Inventory.Get(slot)
	if stack == nil {
		delete(s.jobs, p.ID)
		return
	}
	item := d.Catalog.Get(stack.ItemID)
	if item == nil || item.CooksInto == "" {
		delete(s.jobs, p.ID)
		return
	}

	product := item.CooksInto
	xp := int64(item.CookXP)
	if s.burns(p) {
		product = item.BurnsInto
		xp = 0
	}
	p.Inventory.Remove(slot, 1)
	if product != "" {
		p.Inventory.Add(product, 1, d.Catalog.Stackable(product))
	}
	event.Emit(d.Bus, event.InventoryChanged{PlayerID: p.ID})
	if xp > 0 {
		handler.GrantXP(d, p, "cooking", xp)
	} else {
		event.Emit(d.Bus, event.UIMessage{PlayerID: p.ID, Text: "You accidentally burn the food."})
	}
	p.Dirty = true

	// Explicit-slot cooks are one-shots; first-raw cooks run the stack out.
	if job.cookSlot >= 0 || s.firstRawSlot(p) < 0 {
		delete(s.jobs, p.ID)
		return
	}
	job.nextAt = tick + cookCycleTicks
}

// heatSource resolves a cook target: a live fire wins over a range node with
// the same id.
func (s *ResourceSystem) heatSource(id ecs.EntityID) (world.Tile, bool) {
	if f := s.d.World.Fires.Get(id); f != nil {
		return f.Tile, true
	}
	if n := s.d.World.Resource(id); n != nil && n.Kind == world.ResourceRange {
		return n.Tile, true
	}
	return world.Tile{}, false
}

func (s *ResourceSystem) firstRawSlot(p *world.Player) int {
	for i := 0; i < world.InventorySize; i++ {
		stack := p.Inventory.Get(i)
		if stack == nil {
			continue
		}
		if it := s.d.Catalog.Get(stack.ItemID); it != nil && it.CooksInto != "" {
			return i
		}
	}
	return -1
}

// burns rolls the failure chance: 50% at cooking 1 shrinking to 5% at 99.
func (s *ResourceSystem) burns(p *world.Player) bool {
	level := world.LevelForXP(p.Skills["cooking"])
	chance := 50 - level/2
	if chance < 5 {
		chance = 5
	}
	return s.rng.Intn(100) < chance
}

func cycleTicks(n *world.ResourceNode) int {
	if n.CycleTicks > 0 {
		return n.CycleTicks
	}
	return 3
}
