package world

import "github.com/runegate/server/internal/core/ecs"

// IntentKind names one of the walk-then-act state machines.
type IntentKind string

const (
	IntentAttack        IntentKind = "attack"
	IntentGather        IntentKind = "gather"
	IntentCook          IntentKind = "cook"
	IntentPickup        IntentKind = "pickup"
	IntentTrade         IntentKind = "trade"
	IntentDuelChallenge IntentKind = "duelChallenge"
	IntentFollow        IntentKind = "follow"
)

// IntentTimeoutTicks is how long an intent may chase its target before it
// is dropped silently. 20 ticks at 600 ms is twelve seconds.
const IntentTimeoutTicks = 20

// PendingIntent is one queued walk-then-act. The owner walks toward the
// target; when the reach test passes the terminal Arrive callback fires and
// the intent is gone. CreatedTick drives the timeout; LastTargetTile detects
// target movement for kinds that re-path.
type PendingIntent struct {
	PlayerID ecs.EntityID
	TargetID ecs.EntityID
	Kind     IntentKind

	CreatedTick    int64
	LastTargetTile Tile

	Reach      int
	AttackType AttackType

	// CookSlot is the inventory slot to cook on arrival; -1 means the
	// first raw item. Only cook intents use it.
	CookSlot int

	// Arrive runs inline when the owner reaches the target, on the game
	// loop, during the pending-intent pass. Sticky kinds never fire it.
	Arrive func(in *PendingIntent)
}

// InReach applies the kind's range rule from the owner's tile.
func (in *PendingIntent) InReach(from, target Tile) bool {
	return InAttackReach(from, target, in.Reach, in.AttackType)
}

// InAttackReach is the shared range rule. Reach 1 is cardinal-only unless
// the attack type projects (ranged, magic); gather and cook checks carry no
// attack type and get the cardinal rule.
func InAttackReach(from, target Tile, reach int, at AttackType) bool {
	switch {
	case reach <= 0:
		return from == target
	case reach == 1 && at != AttackRanged && at != AttackMagic:
		return from.IsCardinalNeighbor(target)
	default:
		return from.Chebyshev(target) <= reach
	}
}

// IntentHooks supplies the world lookups Advance needs. The intent system
// binds them to live state; tests bind them to fixtures.
type IntentHooks struct {
	PlayerTile   func(id ecs.EntityID) (Tile, bool)
	TargetTile   func(id ecs.EntityID) (Tile, bool)
	TargetActive func(id ecs.EntityID) bool
	// Repath walks the owner back toward a target that moved.
	Repath func(in *PendingIntent, target Tile)
}

// intentConfig is the per-kind behavior of the shared state machine.
type intentConfig struct {
	kind IntentKind
	// sticky intents never fire Arrive and never expire while keeping up;
	// follow is the only one.
	sticky bool
	// repath re-walks when the target tile changes.
	repath bool
}

// PendingIntentManager runs one kind's intents: at most one per player, new
// writes replace old ones. Game loop only.
type PendingIntentManager struct {
	cfg     intentConfig
	intents map[ecs.EntityID]*PendingIntent
}

func newPendingIntentManager(cfg intentConfig) *PendingIntentManager {
	return &PendingIntentManager{cfg: cfg, intents: make(map[ecs.EntityID]*PendingIntent)}
}

func (m *PendingIntentManager) Kind() IntentKind { return m.cfg.kind }

// Queue installs the intent, replacing any previous one of this kind.
func (m *PendingIntentManager) Queue(in *PendingIntent, now int64) {
	in.Kind = m.cfg.kind
	in.CreatedTick = now
	m.intents[in.PlayerID] = in
}

func (m *PendingIntentManager) Get(id ecs.EntityID) *PendingIntent {
	return m.intents[id]
}

func (m *PendingIntentManager) Cancel(id ecs.EntityID) *PendingIntent {
	in, ok := m.intents[id]
	if !ok {
		return nil
	}
	delete(m.intents, id)
	return in
}

func (m *PendingIntentManager) Len() int { return len(m.intents) }

// Advance steps every intent in PID order: drop dead or expired targets,
// fire arrivals, re-path movers. Arrive callbacks run inline, so combat and
// gather requests land in the same tick the player arrives.
func (m *PendingIntentManager) Advance(now int64, order []ecs.EntityID, hooks IntentHooks) {
	for _, pid := range order {
		in, ok := m.intents[pid]
		if !ok {
			continue
		}
		m.step(in, now, hooks)
	}
}

func (m *PendingIntentManager) step(in *PendingIntent, now int64, hooks IntentHooks) {
	if !hooks.TargetActive(in.TargetID) {
		delete(m.intents, in.PlayerID)
		return
	}
	from, ok := hooks.PlayerTile(in.PlayerID)
	if !ok {
		delete(m.intents, in.PlayerID)
		return
	}
	target, ok := hooks.TargetTile(in.TargetID)
	if !ok {
		delete(m.intents, in.PlayerID)
		return
	}

	if in.InReach(from, target) {
		if m.cfg.sticky {
			// Keeping up. Reset the clock so follow only expires when
			// the leader stays out of reach for the whole window.
			in.CreatedTick = now
			return
		}
		delete(m.intents, in.PlayerID)
		if in.Arrive != nil {
			in.Arrive(in)
		}
		return
	}

	if now-in.CreatedTick >= IntentTimeoutTicks {
		delete(m.intents, in.PlayerID)
		return
	}

	if m.cfg.repath && target != in.LastTargetTile {
		in.LastTargetTile = target
		if m.cfg.sticky {
			in.CreatedTick = now
		}
		if hooks.Repath != nil {
			hooks.Repath(in, target)
		}
	}
}

// IntentRegistry groups the per-kind managers and answers cross-kind
// operations: a fresh move request cancels every kind at once, and disconnect
// drops the player from all of them.
type IntentRegistry struct {
	managers []*PendingIntentManager
	byKind   map[IntentKind]*PendingIntentManager
}

func NewIntentRegistry() *IntentRegistry {
	configs := []intentConfig{
		{kind: IntentAttack, repath: true},
		{kind: IntentGather},
		{kind: IntentCook},
		{kind: IntentPickup},
		{kind: IntentTrade, repath: true},
		{kind: IntentDuelChallenge, repath: true},
		{kind: IntentFollow, sticky: true, repath: true},
	}
	r := &IntentRegistry{byKind: make(map[IntentKind]*PendingIntentManager, len(configs))}
	for _, cfg := range configs {
		m := newPendingIntentManager(cfg)
		r.managers = append(r.managers, m)
		r.byKind[cfg.kind] = m
	}
	return r
}

func (r *IntentRegistry) Manager(kind IntentKind) *PendingIntentManager {
	return r.byKind[kind]
}

// Queue places the intent with its kind's manager.
func (r *IntentRegistry) Queue(kind IntentKind, in *PendingIntent, now int64) {
	r.byKind[kind].Queue(in, now)
}

// CancelAll drops every pending intent the player owns. Returns how many
// were dropped.
func (r *IntentRegistry) CancelAll(id ecs.EntityID) int {
	n := 0
	for _, m := range r.managers {
		if m.Cancel(id) != nil {
			n++
		}
	}
	return n
}

// Advance steps every manager in a fixed kind order.
func (r *IntentRegistry) Advance(now int64, order []ecs.EntityID, hooks IntentHooks) {
	for _, m := range r.managers {
		m.Advance(now, order, hooks)
	}
}

// Remove implements ecs.Removable; destroyed entities lose their intents.
// Intents targeting the destroyed entity fall out on the next Advance via
// the TargetActive check.
func (r *IntentRegistry) Remove(id ecs.EntityID) {
	r.CancelAll(id)
}
