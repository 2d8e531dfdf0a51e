package world

import "github.com/runegate/server/internal/core/ecs"

const (
	// GroundItemReserveTicks keeps a drop owner-only before anyone may
	// take it. A minute at the 600 ms tick.
	GroundItemReserveTicks = 100

	// GroundItemLifetimeTicks is time-to-despawn from the moment the item
	// hits the ground.
	GroundItemLifetimeTicks = 300
)

// GroundItem is an item lying on a tile, from a drop or a mob kill. Memory
// only, never persisted: a restart clears the ground.
type GroundItem struct {
	ID       ecs.EntityID
	ItemID   string
	Quantity int32
	Tile     Tile
	// OwnerID reserves the drop for one player until ReservedUntil; zero
	// means anyone may take it.
	OwnerID       ecs.EntityID
	ReservedUntil int64
	ExpiresTick   int64
}

// CanPickup reports whether playerID may take the item at the given tick.
func (g *GroundItem) CanPickup(playerID ecs.EntityID, tick int64) bool {
	if g.OwnerID == 0 || g.OwnerID == playerID {
		return true
	}
	return tick >= g.ReservedUntil
}
