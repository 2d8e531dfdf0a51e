package system

import (
	"math/rand"

	"github.com/runegate/server/internal/core/ecs"
	coresys "github.com/runegate/server/internal/core/system"
	"github.com/runegate/server/internal/handler"
	"github.com/runegate/server/internal/world"
)

// wanderChance rolls once per idle mob per tick; 1-in-12 keeps camps lively
// without thrashing the pathfinder.
const wanderChance = 12

// MobAISystem runs after combat: respawns the dead, aggros idle mobs onto
// nearby players, wanders the rest, and walks leashed mobs home. Aggro picks
// the lowest-PID player in range, so contested camps resolve the same way
// combat does.
type MobAISystem struct {
	d   *handler.Deps
	rng *rand.Rand
}

func NewMobAISystem(d *handler.Deps, seed int64) *MobAISystem {
	return &MobAISystem{d: d, rng: rand.New(rand.NewSource(seed))}
}

func (s *MobAISystem) Phase() coresys.Phase { return coresys.PhaseCombat }

func (s *MobAISystem) Update(tick int64) {
	d := s.d
	order := d.World.PIDs.Order()
	d.World.EachMob(func(m *world.Mob) {
		if m.Dead {
			if m.RespawnAtTick > 0 && tick >= m.RespawnAtTick {
				s.respawn(m)
			}
			return
		}
		if !m.Attackable() {
			return
		}
		if !m.TargetID.IsZero() {
			return
		}
		if s.aggro(m, order) {
			return
		}
		s.idleWalk(m, tick)
	})
}

func (s *MobAISystem) respawn(m *world.Mob) {
	d := s.d
	m.Dead = false
	m.HP = m.MaxHP
	m.RespawnAtTick = 0
	m.TargetID = 0
	m.InCombatUntil = 0
	d.World.MoveEntityTo(m.ID, m.SpawnTile)
	d.Movement.SyncPosition(m.ID, m.SpawnTile)
	d.World.MarkChanged(m.ID)
}

// aggro engages the first player in PID order inside the aggro radius.
// Loading, dead, and dueling players are invisible to it.
func (s *MobAISystem) aggro(m *world.Mob, order []ecs.EntityID) bool {
	d := s.d
	if m.AggroRange <= 0 {
		return false
	}
	from := m.Tile()
	for _, pid := range order {
		p := d.World.Player(pid)
		if p == nil || p.Dead || p.IsLoading || d.Duels.Dueling(pid) {
			continue
		}
		if from.Chebyshev(p.Tile()) <= m.AggroRange {
			m.TargetID = pid
			d.Combat.RequestAttack(m.ID, pid)
			return true
		}
	}
	return false
}

// idleWalk wanders inside the camp radius, or walks home after a leash drop
// left the mob outside it.
func (s *MobAISystem) idleWalk(m *world.Mob, tick int64) {
	d := s.d
	if m.WanderRadius <= 0 {
		return
	}
	from := m.Tile()
	if from.Chebyshev(m.SpawnTile) > m.WanderRadius {
		d.Movement.MoveTo(m.ID, m.SpawnTile, false, tick)
		return
	}
	if d.Movement.Moving(m.ID) || s.rng.Intn(wanderChance) != 0 {
		return
	}
	dest := world.Tile{
		X: m.SpawnTile.X + s.rng.Intn(2*m.WanderRadius+1) - m.WanderRadius,
		Z: m.SpawnTile.Z + s.rng.Intn(2*m.WanderRadius+1) - m.WanderRadius,
	}
	d.Movement.MoveTo(m.ID, dest, false, tick)
}
