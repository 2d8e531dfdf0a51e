package handler

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/runegate/server/internal/core/ecs"
	"github.com/runegate/server/internal/data"
	"github.com/runegate/server/internal/world"
)

// maxStack is the largest quantity one slot can hold.
const maxStack = math.MaxInt32

type slotRequest struct {
	Slot int `json:"slot"`
}

// SpawnGroundItem drops a stack on a tile, reserved for the owner for the
// reservation window, and announces it to the area. Owner zero skips the
// reservation.
func SpawnGroundItem(d *Deps, itemID string, qty int32, at world.Tile, owner ecs.EntityID) *world.GroundItem {
	now := d.CurrentTick()
	g := &world.GroundItem{
		ID:          d.Ecs.CreateEntity(),
		ItemID:      itemID,
		Quantity:    qty,
		Tile:        at,
		ExpiresTick: now + world.GroundItemLifetimeTicks,
	}
	if owner != 0 {
		g.OwnerID = owner
		g.ReservedUntil = now + world.GroundItemReserveTicks
	}
	d.World.AddGroundItem(g)
	d.Broadcast.SendToAOI(g.ID, "entityAdded", SnapshotGroundItem(g), 0)
	return g
}

// TakeGroundItem removes a ground item from the world and announces the
// removal. The announce precedes the grid removal; SendToAOI resolves
// subscribers through the entity's cell. The ecs entity is queued for
// destruction.
func TakeGroundItem(d *Deps, id ecs.EntityID) *world.GroundItem {
	g := d.World.GroundItem(id)
	if g == nil {
		return nil
	}
	d.Broadcast.SendToAOI(id, "entityRemoved", map[string]uint64{"id": uint64(id)}, 0)
	d.World.RemoveGroundItem(id)
	d.Ecs.MarkForDestruction(id)
	return g
}

// inventoryLocked blocks slot mutation while offered slots are live: an open
// trade screen, a duel before the fight starts, or an economic transaction
// in flight.
func inventoryLocked(d *Deps, p *world.Player) bool {
	if d.World.Locks.Locked(p.ID) {
		return true
	}
	if s := d.Sessions.Get(p.ID); s != nil && s.Kind == world.SessionTrade {
		return true
	}
	if s := d.Duels.Get(p.ID); s != nil && !s.InFight() {
		return true
	}
	return false
}

func handlePickupItem(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req entityTarget
	if !decode(d, "pickupItem", data, &req) {
		return
	}
	target := ecs.EntityID(req.EntityID)
	d.Actions.QueueAction(p.ID, "pickupItem", func() {
		if p.Dead || inventoryLocked(d, p) {
			return
		}
		g := d.World.GroundItem(target)
		if g == nil {
			return
		}
		now := d.CurrentTick()
		if !g.CanPickup(p.ID, now) {
			Toast(d, p.ID, "That isn't yours to take yet.")
			return
		}
		d.Skilling.StopWork(p.ID)
		d.Intents.CancelAll(p.ID)
		d.Intents.Queue(world.IntentPickup, &world.PendingIntent{
			PlayerID:       p.ID,
			TargetID:       target,
			LastTargetTile: g.Tile,
			Arrive: func(in *world.PendingIntent) {
				performPickup(d, p, in.TargetID)
			},
		}, now)
		d.Movement.MovePlayerToward(p.ID, g.Tile, d.Movement.IsRunning(p.ID), 0, "", now)
	})
}

func performPickup(d *Deps, p *world.Player, id ecs.EntityID) {
	g := d.World.GroundItem(id)
	if g == nil || p.Dead {
		return
	}
	if !g.CanPickup(p.ID, d.CurrentTick()) {
		return
	}
	if g.ItemID == world.CoinItemID {
		TakeGroundItem(d, id)
		p.CoinPouch += int64(g.Quantity)
		p.Dirty = true
		SendInventory(d, p)
		return
	}
	if p.Inventory.Add(g.ItemID, g.Quantity, d.Catalog.Stackable(g.ItemID)) < 0 {
		Toast(d, p.ID, "Your inventory is full.")
		return
	}
	TakeGroundItem(d, id)
	p.Dirty = true
	SendInventory(d, p)
}

func handleDropItem(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req slotRequest
	if !decode(d, "dropItem", data, &req) {
		return
	}
	d.Actions.QueueAction(p.ID, "dropItem", func() {
		if p.Dead || inventoryLocked(d, p) {
			return
		}
		stack := p.Inventory.Get(req.Slot)
		if stack == nil {
			return
		}
		p.Inventory.Clear(req.Slot)
		SpawnGroundItem(d, stack.ItemID, stack.Quantity, p.Tile(), p.ID)
		p.Dirty = true
		SendInventory(d, p)
	})
}

func handleEquipItem(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req slotRequest
	if !decode(d, "equipItem", data, &req) {
		return
	}
	if p.Dead || inventoryLocked(d, p) {
		return
	}
	if equipFromInventory(d, p, req.Slot) {
		SendInventory(d, p)
		SendEquipment(d, p)
		SendStats(d, p)
		d.World.MarkChanged(p.ID)
	}
}

// equipFromInventory wears the item at an inventory slot, displacing whatever
// occupied its equipment slot (and the off-hand pairing for two-handers) back
// into the inventory. The caller sends the refresh packets.
func equipFromInventory(d *Deps, p *world.Player, slot int) bool {
	stack := p.Inventory.Get(slot)
	if stack == nil {
		return false
	}
	item := d.Catalog.Get(stack.ItemID)
	if item == nil || item.EquipSlot == "" {
		Toast(d, p.ID, "You can't equip that.")
		return false
	}
	eqSlot, ok := world.EquipSlotFromName(item.EquipSlot)
	if !ok {
		return false
	}
	if s := d.Duels.Get(p.ID); s != nil && s.InFight() && s.Rules.BannedSlots[item.EquipSlot] {
		Toast(d, p.ID, "That equipment slot is locked for this duel.")
		return false
	}

	type displacedItem struct {
		slot  world.EquipSlot
		stack *world.ItemStack
	}
	var displaced []displacedItem
	if cur := p.Equipment.Get(eqSlot); cur != nil {
		displaced = append(displaced, displacedItem{eqSlot, cur})
	}
	// A two-handed weapon evicts the shield; a shield evicts a two-handed
	// weapon.
	if item.TwoHanded && eqSlot == world.SlotWeapon {
		if sh := p.Equipment.Get(world.SlotShield); sh != nil {
			displaced = append(displaced, displacedItem{world.SlotShield, sh})
		}
	}
	if eqSlot == world.SlotShield {
		if w := p.Equipment.Weapon(); w != nil {
			if wi := d.Catalog.Get(w.ItemID); wi != nil && wi.TwoHanded {
				displaced = append(displaced, displacedItem{world.SlotWeapon, w})
			}
		}
	}
	if len(displaced)-1 > p.Inventory.FreeSlots() {
		Toast(d, p.ID, "You don't have enough inventory space.")
		return false
	}

	p.Inventory.Clear(slot)
	for i, dp := range displaced {
		p.Equipment.Clear(dp.slot)
		if i == 0 {
			p.Inventory.Set(slot, dp.stack)
			continue
		}
		p.Inventory.Set(p.Inventory.FirstFree(), dp.stack)
	}
	p.Equipment.Set(eqSlot, stack)
	p.Dirty = true
	return true
}

func handleUnequipItem(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req struct {
		Slot string `json:"slot"`
	}
	if !decode(d, "unequipItem", data, &req) {
		return
	}
	if p.Dead || inventoryLocked(d, p) {
		return
	}
	eqSlot, ok := world.EquipSlotFromName(req.Slot)
	if !ok {
		return
	}
	stack := p.Equipment.Get(eqSlot)
	if stack == nil {
		return
	}
	if p.Inventory.FirstFree() < 0 {
		Toast(d, p.ID, "You don't have enough inventory space.")
		return
	}
	p.Equipment.Clear(eqSlot)
	p.Inventory.Set(p.Inventory.FirstFree(), stack)
	p.Dirty = true
	SendInventory(d, p)
	SendEquipment(d, p)
	SendStats(d, p)
	d.World.MarkChanged(p.ID)
}

// handleUseItem covers the single-item uses: food heals, logs light a fire.
func handleUseItem(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req slotRequest
	if !decode(d, "useItem", data, &req) {
		return
	}
	d.Actions.QueueAction(p.ID, "useItem", func() {
		if p.Dead || inventoryLocked(d, p) {
			return
		}
		stack := p.Inventory.Get(req.Slot)
		if stack == nil {
			return
		}
		item := d.Catalog.Get(stack.ItemID)
		if item == nil {
			return
		}
		switch {
		case item.Heals > 0:
			eatFood(d, p, req.Slot, item)
		case item.Flammable:
			lightFire(d, p, req.Slot, item)
		default:
			Toast(d, p.ID, "Nothing interesting happens.")
		}
	})
}

func eatFood(d *Deps, p *world.Player, slot int, item *data.Item) {
	if p.HP >= p.MaxHP {
		Toast(d, p.ID, "You don't need to eat right now.")
		return
	}
	if !p.Inventory.Remove(slot, 1) {
		return
	}
	p.HP += item.Heals
	if p.HP > p.MaxHP {
		p.HP = p.MaxHP
	}
	p.Dirty = true
	SystemChat(d, p.ID, fmt.Sprintf("You eat the %s.", item.Name))
	SendInventory(d, p)
	SendStats(d, p)
}

func handleMoveItem(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req struct {
		From int `json:"from"`
		To   int `json:"to"`
	}
	if !decode(d, "moveItem", data, &req) {
		return
	}
	if inventoryLocked(d, p) {
		return
	}
	if p.Inventory.Swap(req.From, req.To) {
		p.Dirty = true
		SendInventory(d, p)
	}
}

// handleCoinPouchWithdraw moves coins from the pouch into an inventory
// stack.
func handleCoinPouchWithdraw(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if !decode(d, "coinPouchWithdraw", data, &req) {
		return
	}
	if p.Dead || inventoryLocked(d, p) || req.Amount <= 0 {
		return
	}
	amount := req.Amount
	if amount > p.CoinPouch {
		amount = p.CoinPouch
	}
	if amount <= 0 {
		return
	}
	if amount > maxStack {
		amount = maxStack
	}
	if p.Inventory.Add(world.CoinItemID, int32(amount), true) < 0 {
		Toast(d, p.ID, "Your inventory is full.")
		return
	}
	p.CoinPouch -= amount
	p.Dirty = true
	SendInventory(d, p)
}
