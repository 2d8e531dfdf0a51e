package world

import "github.com/runegate/server/internal/core/ecs"

// AttackType selects the reach rule for an attack: melee is cardinal-only at
// range 1, ranged and magic use plain Chebyshev distance.
type AttackType string

const (
	AttackMelee  AttackType = "melee"
	AttackRanged AttackType = "ranged"
	AttackMagic  AttackType = "magic"
)

// Mob is a non-player combat entity, spawned from an entities-table row.
// Alive iff HP > 0.
type Mob struct {
	ID      ecs.EntityID
	SpawnID int64 // entities.id this mob was loaded from
	Type    string
	Name    string

	X, Y, Z float64

	HP    int
	MaxHP int
	Dead  bool

	// Combat behavior, from the spawn definition.
	Damage           int
	AttackRange      int
	AttackType       AttackType
	AttackSpeedTicks int
	AggroRange       int

	TargetID       ecs.EntityID
	LastAttackTick int64
	InCombatUntil  int64

	SpawnTile     Tile
	WanderRadius  int
	RespawnTicks  int   // delay between death and respawn
	RespawnAtTick int64 // 0 while alive

	// Drop granted to the killer, from the spawn definition.
	XP           int64
	DropItemID   string
	DropQuantity int32

	// NPC rows (Type "npc") only. NPCs are alive but never attackable.
	DialogueScript string
	Store          bool
}

// Attackable reports whether combat may target this entity. Dialogue and
// store NPCs share the mob index but refuse attacks.
func (m *Mob) Attackable() bool {
	return m.Type == "mob"
}

func (m *Mob) Tile() Tile {
	return TileAt(m.X, m.Z)
}

func (m *Mob) SetTile(t Tile) {
	m.X = t.WorldX()
	m.Z = t.WorldZ()
}

func (m *Mob) Alive() bool {
	return !m.Dead && m.HP > 0
}
