package world

import "github.com/runegate/server/internal/core/ecs"

// ResourceKind classifies a gatherable or processing world object.
type ResourceKind string

const (
	ResourceTree    ResourceKind = "tree"
	ResourceRock    ResourceKind = "rock"
	ResourceFishing ResourceKind = "fishing_spot"
	ResourceRange   ResourceKind = "range"

	// Processing stations. Never deplete; standing next to one unlocks the
	// matching processing packets.
	ResourceFurnace        ResourceKind = "furnace"
	ResourceAnvil          ResourceKind = "anvil"
	ResourceCraftingTable  ResourceKind = "crafting_table"
	ResourceFletchingBench ResourceKind = "fletching_bench"
	ResourceTanningRack    ResourceKind = "tanning_rack"
	ResourceRunecraftAltar ResourceKind = "runecraft_altar"
	ResourceAltar          ResourceKind = "altar"
	ResourceBankBooth      ResourceKind = "bank_booth"
)

// ResourceNode is a stationary world object players gather from (trees,
// rocks, fishing spots) or cook at (ranges). Nodes that deplete set
// RespawnTicks > 0: a successful yield marks the node depleted and the
// resource system restores it once the respawn window passes. Nodes with
// RespawnTicks == 0 never deplete.
type ResourceNode struct {
	ID    ecs.EntityID
	Kind  ResourceKind
	Name  string
	Tile  Tile
	Skill string

	YieldItemID string
	YieldXP     int64
	CycleTicks  int // ticks of work per yield attempt

	RequiredToolID string // empty = bare hands

	RespawnTicks  int
	Depleted      bool
	RespawnAtTick int64
}

// Active reports whether the node can currently be gathered from.
func (n *ResourceNode) Active() bool {
	return !n.Depleted
}

// Gatherable reports whether gather clicks work here: the node must carry a
// yield. Ranges and processing stations are interaction targets only.
func (n *ResourceNode) Gatherable() bool {
	return n.YieldItemID != "" && n.Kind != ResourceRange
}

// Deplete marks the node exhausted until its respawn tick. Nodes without a
// respawn window stay active.
func (n *ResourceNode) Deplete(now int64) bool {
	if n.RespawnTicks <= 0 {
		return false
	}
	n.Depleted = true
	n.RespawnAtTick = now + int64(n.RespawnTicks)
	return true
}

// RespawnDue reports whether a depleted node should come back at now.
func (n *ResourceNode) RespawnDue(now int64) bool {
	return n.Depleted && now >= n.RespawnAtTick
}

// Respawn restores the node.
func (n *ResourceNode) Respawn() {
	n.Depleted = false
	n.RespawnAtTick = 0
}
