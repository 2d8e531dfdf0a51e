package system

import (
	"math/rand"
	"slices"

	"go.uber.org/zap"

	"github.com/runegate/server/internal/core/ecs"
	"github.com/runegate/server/internal/core/event"
	coresys "github.com/runegate/server/internal/core/system"
	"github.com/runegate/server/internal/handler"
	"github.com/runegate/server/internal/world"
)

// combatTagTicks keeps both sides flagged in-combat after a swing. Home
// teleport casts and logout-sensitive checks consult the flag.
const combatTagTicks = 14

// CombatSystem resolves engagements: players and mobs share one damage path.
// Handlers and the mob AI call RequestAttack; every tick the system chases
// out-of-reach targets and swings when the weapon timer allows. Attackers
// resolve players-first in PID order, then mobs by entity id.
type CombatSystem struct {
	d           *handler.Deps
	rng         *rand.Rand
	engagements map[ecs.EntityID]ecs.EntityID
	lastSwing   map[ecs.EntityID]int64
}

func NewCombatSystem(d *handler.Deps, seed int64) *CombatSystem {
	return &CombatSystem{
		d:           d,
		rng:         rand.New(rand.NewSource(seed)),
		engagements: make(map[ecs.EntityID]ecs.EntityID),
		lastSwing:   make(map[ecs.EntityID]int64),
	}
}

func (s *CombatSystem) Phase() coresys.Phase { return coresys.PhaseCombat }

// RequestAttack points an attacker at a target. One engagement per attacker;
// a new request replaces the old one.
func (s *CombatSystem) RequestAttack(attacker, target ecs.EntityID) {
	if attacker == target || attacker.IsZero() || target.IsZero() {
		return
	}
	s.engagements[attacker] = target
}

// Disengage drops the attacker's engagement and swing memory.
func (s *CombatSystem) Disengage(id ecs.EntityID) {
	delete(s.engagements, id)
	delete(s.lastSwing, id)
}

// Target reports whom an attacker is engaged on.
func (s *CombatSystem) Target(id ecs.EntityID) (ecs.EntityID, bool) {
	t, ok := s.engagements[id]
	return t, ok
}

func (s *CombatSystem) Update(tick int64) {
	for _, attacker := range s.attackOrder() {
		s.step(attacker, tick)
	}
}

// attackOrder snapshots the engagement keys: players in PID order, then mobs
// ascending. Stale attackers drop out here.
func (s *CombatSystem) attackOrder() []ecs.EntityID {
	d := s.d
	order := make([]ecs.EntityID, 0, len(s.engagements))
	for _, pid := range d.World.PIDs.Order() {
		if _, ok := s.engagements[pid]; ok {
			order = append(order, pid)
		}
	}
	var mobs []ecs.EntityID
	var stale []ecs.EntityID
	for a := range s.engagements {
		if d.World.Player(a) != nil {
			continue
		}
		if m := d.World.Mob(a); m != nil {
			mobs = append(mobs, a)
			continue
		}
		stale = append(stale, a)
	}
	for _, a := range stale {
		s.Disengage(a)
	}
	slices.Sort(mobs)
	return append(order, mobs...)
}

func (s *CombatSystem) step(attacker ecs.EntityID, tick int64) {
	d := s.d
	target, ok := s.engagements[attacker]
	if !ok {
		return
	}
	if !d.World.TargetActive(target) {
		s.Disengage(attacker)
		return
	}
	if p := d.World.Player(attacker); p != nil {
		s.playerStep(p, target, tick)
		return
	}
	if m := d.World.Mob(attacker); m != nil && m.Alive() {
		s.mobStep(m, target, tick)
		return
	}
	s.Disengage(attacker)
}

func (s *CombatSystem) playerStep(p *world.Player, target ecs.EntityID, tick int64) {
	d := s.d
	if p.Dead || p.IsLoading {
		s.Disengage(p.ID)
		return
	}
	reach, atkType, maxHit, speed := weaponProfile(d, p)

	sess := d.Duels.Get(p.ID)
	if sess != nil {
		if sess.Stage != world.DuelStageFighting {
			return
		}
		if !sess.Rules.AttackAllowed(atkType) {
			if s.swingDue(p.ID, tick, speed) {
				s.lastSwing[p.ID] = tick
				event.Emit(d.Bus, event.UIMessage{
					PlayerID: p.ID,
					Text:     "That attack style is disabled for this duel.",
					Kind:     "toast",
				})
			}
			return
		}
	}

	from, ok := d.World.EntityTile(p.ID)
	if !ok {
		s.Disengage(p.ID)
		return
	}
	tt, ok := d.World.EntityTile(target)
	if !ok {
		s.Disengage(p.ID)
		return
	}

	if !world.InAttackReach(from, tt, reach, atkType) {
		if sess != nil && sess.Rules.NoMovement {
			return
		}
		d.Movement.MovePlayerToward(p.ID, tt, d.Movement.IsRunning(p.ID), reach, atkType, tick)
		return
	}
	if d.Movement.Moving(p.ID) {
		d.Movement.Cancel(p.ID)
	}
	if !s.swingDue(p.ID, tick, speed) {
		return
	}
	s.lastSwing[p.ID] = tick

	dmg := s.roll(maxHit)
	if sess != nil && sess.Rules.FunWeapons && dmg > 1 {
		dmg = 1
	}
	p.InCombatUntilTick = tick + combatTagTicks
	dealt := s.applyDamage(p.ID, target, dmg, atkType, tick)
	s.grantCombatXP(p, atkType, dealt)
}

func (s *CombatSystem) mobStep(m *world.Mob, target ecs.EntityID, tick int64) {
	d := s.d
	tp := d.World.Player(target)
	if tp == nil || tp.Dead || tp.IsLoading || d.Duels.Dueling(target) {
		m.TargetID = 0
		s.Disengage(m.ID)
		return
	}
	from := m.Tile()
	tt := tp.Tile()

	// Lost targets release the mob; the AI walks it home.
	if from.Chebyshev(m.SpawnTile) > mobLeashRange(m) {
		m.TargetID = 0
		s.Disengage(m.ID)
		return
	}

	if !world.InAttackReach(from, tt, m.AttackRange, m.AttackType) {
		d.Movement.MovePlayerToward(m.ID, tt, false, m.AttackRange, m.AttackType, tick)
		return
	}
	if d.Movement.Moving(m.ID) {
		d.Movement.Cancel(m.ID)
	}
	if tick-m.LastAttackTick < int64(m.AttackSpeedTicks) {
		return
	}
	m.LastAttackTick = tick
	m.InCombatUntil = tick + combatTagTicks
	s.applyDamage(m.ID, target, s.roll(m.Damage), m.AttackType, tick)
}

// weaponProfile resolves the wielded weapon's combat numbers, unarmed
// fallback included.
func weaponProfile(d *handler.Deps, p *world.Player) (reach int, at world.AttackType, maxHit, speed int) {
	var id string
	if w := p.Equipment.Weapon(); w != nil {
		id = w.ItemID
	}
	r, t, dmg, sp := d.Catalog.WeaponProfile(id)
	return r, world.AttackType(t), dmg, sp
}

// applyDamage lands a rolled hit on either kind of target and returns what
// actually applied after protection prayers.
func (s *CombatSystem) applyDamage(attacker, target ecs.EntityID, dmg int, at world.AttackType, tick int64) int {
	d := s.d

	if tp := d.World.Player(target); tp != nil {
		if prot := world.ProtectionFor(at); prot != "" && tp.Prayers[prot] {
			dmg = 0
		}
		tp.HP -= dmg
		if tp.HP < 0 {
			tp.HP = 0
		}
		tp.InCombatUntilTick = tick + combatTagTicks
		tp.LastAttacker = attacker
		tp.Dirty = true
		d.World.MarkChanged(target)
		event.Emit(d.Bus, event.DamageDealt{
			Attacker: attacker,
			Target:   target,
			Amount:   dmg,
			Hitsplat: hitsplat(dmg),
		})
		event.Emit(d.Bus, event.StatsChanged{PlayerID: target})
		if tp.HP <= 0 {
			s.killPlayer(tp, attacker, tick)
		} else if tp.AutoRetaliate {
			if _, engaged := s.engagements[tp.ID]; !engaged {
				s.RequestAttack(tp.ID, attacker)
			}
		}
		return dmg
	}

	if tm := d.World.Mob(target); tm != nil {
		tm.HP -= dmg
		if tm.HP < 0 {
			tm.HP = 0
		}
		tm.InCombatUntil = tick + combatTagTicks
		if tm.TargetID.IsZero() {
			tm.TargetID = attacker
			s.RequestAttack(tm.ID, attacker)
		}
		d.World.MarkChanged(target)
		event.Emit(d.Bus, event.DamageDealt{
			Attacker: attacker,
			Target:   target,
			Amount:   dmg,
			Hitsplat: hitsplat(dmg),
		})
		if tm.HP <= 0 {
			s.killMob(tm, attacker, tick)
		}
		return dmg
	}
	return 0
}

func (s *CombatSystem) killPlayer(tp *world.Player, killer ecs.EntityID, tick int64) {
	d := s.d
	tp.Dead = true
	tp.HP = 0
	tp.Dirty = true
	s.Disengage(tp.ID)
	d.Movement.Cancel(tp.ID)
	d.Intents.CancelAll(tp.ID)
	d.Actions.Clear(tp.ID)
	d.Skilling.StopWork(tp.ID)
	d.HomeTeleport.Cancel(tp.ID)
	if ses := d.Sessions.Get(tp.ID); ses != nil && ses.Kind != world.SessionDuel {
		d.Sessions.Close(tp.ID)
	}
	d.World.MarkChanged(tp.ID)
	event.Emit(d.Bus, event.EntityDied{EntityID: tp.ID, Killer: killer, Cause: "combat"})

	if sess := d.Duels.Get(tp.ID); sess != nil && sess.Stage == world.DuelStageFighting {
		handler.CompleteDuel(d, sess.Peer(tp.ID).PlayerID, tp.ID, false)
	}
	d.Log.Info("player died",
		zap.String("name", tp.Name),
		zap.Int64("character", tp.CharacterID),
		zap.Uint64("killer", uint64(killer)))
}

func (s *CombatSystem) killMob(tm *world.Mob, killer ecs.EntityID, tick int64) {
	d := s.d
	tm.Dead = true
	tm.HP = 0
	tm.TargetID = 0
	tm.InCombatUntil = 0
	if tm.RespawnTicks > 0 {
		tm.RespawnAtTick = tick + int64(tm.RespawnTicks)
	}
	s.Disengage(tm.ID)
	d.Movement.Cancel(tm.ID)
	d.World.MarkChanged(tm.ID)

	if tm.DropItemID != "" {
		qty := tm.DropQuantity
		if qty < 1 {
			qty = 1
		}
		owner := ecs.EntityID(0)
		if d.World.Player(killer) != nil {
			owner = killer
		}
		handler.SpawnGroundItem(d, tm.DropItemID, qty, tm.Tile(), owner)
	}
	if kp := d.World.Player(killer); kp != nil && tm.XP > 0 {
		handler.GrantXP(d, kp, styleSkill(d, kp), tm.XP)
	}
	event.Emit(d.Bus, event.EntityDied{EntityID: tm.ID, Killer: killer, Cause: "combat"})
}

func (s *CombatSystem) swingDue(id ecs.EntityID, tick int64, speed int) bool {
	last, ok := s.lastSwing[id]
	if !ok {
		return true
	}
	return tick-last >= int64(speed)
}

func (s *CombatSystem) roll(maxHit int) int {
	if maxHit <= 0 {
		return 0
	}
	return int(s.rng.Int63n(int64(maxHit) + 1))
}

// grantCombatXP pays the attack style: 4 xp per damage to the style skill,
// controlled splits it, hitpoints always gets a third of the base.
func (s *CombatSystem) grantCombatXP(p *world.Player, at world.AttackType, dmg int) {
	if dmg <= 0 {
		return
	}
	d := s.d
	base := int64(dmg) * 4
	switch at {
	case world.AttackRanged:
		handler.GrantXP(d, p, "ranged", base)
	case world.AttackMagic:
		handler.GrantXP(d, p, "magic", base)
	default:
		switch p.AttackStyle {
		case "aggressive":
			handler.GrantXP(d, p, "strength", base)
		case "defensive":
			handler.GrantXP(d, p, "defence", base)
		case "controlled":
			split := base / 3
			if split < 1 {
				split = 1
			}
			handler.GrantXP(d, p, "attack", split)
			handler.GrantXP(d, p, "strength", split)
			handler.GrantXP(d, p, "defence", split)
		default:
			handler.GrantXP(d, p, "attack", base)
		}
	}
	handler.GrantXP(d, p, "hitpoints", base/3)
}

// styleSkill maps the player's posture to the skill kill bonuses land in.
func styleSkill(d *handler.Deps, p *world.Player) string {
	_, at, _, _ := weaponProfile(d, p)
	switch at {
	case world.AttackRanged:
		return "ranged"
	case world.AttackMagic:
		return "magic"
	}
	switch p.AttackStyle {
	case "aggressive":
		return "strength"
	case "defensive":
		return "defence"
	case "controlled":
		return "attack"
	default:
		return "attack"
	}
}

func hitsplat(dmg int) string {
	if dmg > 0 {
		return "damage"
	}
	return "block"
}

func mobLeashRange(m *world.Mob) int {
	r := m.AggroRange * 2
	if m.WanderRadius > r {
		r = m.WanderRadius
	}
	if r < 8 {
		r = 8
	}
	return r
}
