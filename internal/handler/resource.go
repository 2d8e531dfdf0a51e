package handler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/runegate/server/internal/core/ecs"
	"github.com/runegate/server/internal/data"
	"github.com/runegate/server/internal/world"
)

// processingInterval is the per-player floor between processing requests.
// Faster clients are dropped silently.
const processingInterval = 500 * time.Millisecond

// hasTool checks inventory and worn equipment for a required tool.
func hasTool(d *Deps, p *world.Player, toolID string) bool {
	if toolID == "" {
		return true
	}
	if p.Inventory.Find(toolID) >= 0 {
		return true
	}
	found := false
	p.Equipment.Each(func(_ world.EquipSlot, s *world.ItemStack) {
		if s.ItemID == toolID {
			found = true
		}
	})
	return found
}

func toolName(d *Deps, toolID string) string {
	if it := d.Catalog.Get(toolID); it != nil {
		return it.Name
	}
	return toolID
}

func handleResourceInteract(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req entityTarget
	if !decode(d, "resourceInteract", data, &req) {
		return
	}
	target := ecs.EntityID(req.EntityID)
	d.Actions.QueueAction(p.ID, "resourceInteract", func() {
		if p.Dead {
			return
		}
		node := d.World.Resource(target)
		if node == nil || !node.Gatherable() {
			return
		}
		if !node.Active() {
			return
		}
		if !hasTool(d, p, node.RequiredToolID) {
			Toast(d, p.ID, fmt.Sprintf("You need a %s to do that.", toolName(d, node.RequiredToolID)))
			return
		}
		d.Skilling.StopWork(p.ID)
		d.Combat.Disengage(p.ID)
		closeWalkAwaySessions(d, p)
		d.Intents.CancelAll(p.ID)

		now := d.CurrentTick()
		d.Intents.Queue(world.IntentGather, &world.PendingIntent{
			PlayerID:       p.ID,
			TargetID:       target,
			LastTargetTile: node.Tile,
			Reach:          1,
			Arrive: func(in *world.PendingIntent) {
				d.Skilling.BeginGather(in.PlayerID, in.TargetID)
			},
		}, now)
		d.Movement.MovePlayerToward(p.ID, node.Tile, d.Movement.IsRunning(p.ID), 1, "", now)
	})
}

// cookSourceTile resolves a cooking target: a player-lit fire or a range
// node. Fires win when both maps know the id.
func cookSourceTile(d *Deps, id ecs.EntityID) (world.Tile, bool) {
	if f := d.World.Fires.Get(id); f != nil {
		return f.Tile, true
	}
	if n := d.World.Resource(id); n != nil && n.Kind == world.ResourceRange {
		return n.Tile, true
	}
	return world.Tile{}, false
}

// queueCook walks the player to a fire or range, then hands the cook job to
// the skilling system. slot -1 cooks the first raw item found.
func queueCook(d *Deps, p *world.Player, sourceID ecs.EntityID, slot int, packetName string) {
	d.Actions.QueueAction(p.ID, packetName, func() {
		if p.Dead {
			return
		}
		tile, ok := cookSourceTile(d, sourceID)
		if !ok {
			return
		}
		d.Skilling.StopWork(p.ID)
		d.Combat.Disengage(p.ID)
		closeWalkAwaySessions(d, p)
		d.Intents.CancelAll(p.ID)

		now := d.CurrentTick()
		d.Intents.Queue(world.IntentCook, &world.PendingIntent{
			PlayerID:       p.ID,
			TargetID:       sourceID,
			LastTargetTile: tile,
			Reach:          1,
			CookSlot:       slot,
			Arrive: func(in *world.PendingIntent) {
				d.Skilling.BeginCooking(in.PlayerID, in.TargetID, in.CookSlot)
			},
		}, now)
		d.Movement.MovePlayerToward(p.ID, tile, d.Movement.IsRunning(p.ID), 1, "", now)
	})
}

func handleCookingSourceInteract(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req entityTarget
	if !decode(d, "cookingSourceInteract", data, &req) {
		return
	}
	queueCook(d, p, ecs.EntityID(req.EntityID), -1, "cookingSourceInteract")
}

func handleCookingRequest(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req struct {
		EntityID uint64 `json:"entityId"`
		Slot     int    `json:"slot"`
	}
	if !decode(d, "cookingRequest", data, &req) {
		return
	}
	if req.Slot < 0 || req.Slot >= world.InventorySize {
		return
	}
	queueCook(d, p, ecs.EntityID(req.EntityID), req.Slot, "cookingRequest")
}

func handleFiremakingRequest(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req slotRequest
	if !decode(d, "firemakingRequest", data, &req) {
		return
	}
	d.Actions.QueueAction(p.ID, "firemakingRequest", func() {
		if p.Dead || inventoryLocked(d, p) {
			return
		}
		stack := p.Inventory.Get(req.Slot)
		if stack == nil {
			return
		}
		item := d.Catalog.Get(stack.ItemID)
		if item == nil || !item.Flammable {
			return
		}
		lightFire(d, p, req.Slot, item)
	})
}

// lightFire consumes the logs, lights a fire on the player's tile, and steps
// the lighter one tile west, fire tile permitting.
func lightFire(d *Deps, p *world.Player, slot int, item *data.Item) {
	at := p.Tile()
	if d.World.Fires.At(at) != nil {
		Toast(d, p.ID, "You can't light a fire here.")
		return
	}
	if !p.Inventory.Remove(slot, 1) {
		return
	}
	now := d.CurrentTick()
	burn := item.BurnTicks
	if burn <= 0 {
		burn = 100
	}
	f := &world.Fire{
		ID:          d.Ecs.CreateEntity(),
		Tile:        at,
		OwnerID:     p.ID,
		CreatedTick: now,
		ExpiresTick: now + int64(burn),
	}
	d.World.Fires.Add(f)
	d.World.AOI.UpdateEntityPosition(f.ID, at.WorldX(), at.WorldZ())
	d.Broadcast.SendToAOI(f.ID, "entityAdded", SnapshotFire(f), 0)

	step := world.Tile{X: at.X - 1, Z: at.Z}
	d.Movement.MoveTo(p.ID, step, false, now)

	p.Dirty = true
	SystemChat(d, p.ID, "The fire catches and the logs begin to burn.")
	GrantXP(d, p, "firemaking", int64(item.FiremakeXP))
	SendInventory(d, p)
}

// stationInteract walks the player next to a processing station. The
// follow-up processing packets gate on standing beside the right kind.
func stationInteract(kind world.ResourceKind) func(*Deps, uint64, json.RawMessage) {
	return func(d *Deps, socketID uint64, data json.RawMessage) {
		p := readyPlayer(d, socketID)
		if p == nil {
			return
		}
		var req entityTarget
		if !decode(d, "stationInteract", data, &req) {
			return
		}
		target := ecs.EntityID(req.EntityID)
		d.Actions.QueueAction(p.ID, "stationInteract", func() {
			if p.Dead {
				return
			}
			node := d.World.Resource(target)
			if node == nil || node.Kind != kind {
				return
			}
			d.Skilling.StopWork(p.ID)
			d.Intents.CancelAll(p.ID)
			now := d.CurrentTick()
			d.Movement.MovePlayerToward(p.ID, node.Tile, d.Movement.IsRunning(p.ID), 1, "", now)
		})
	}
}

// handleRunecraftingAltar walks to the altar and, on arrival, binds every
// essence in the inventory at once.
func handleRunecraftingAltar(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req entityTarget
	if !decode(d, "runecraftingAltarInteract", data, &req) {
		return
	}
	target := ecs.EntityID(req.EntityID)
	d.Actions.QueueAction(p.ID, "runecraftingAltarInteract", func() {
		if p.Dead {
			return
		}
		node := d.World.Resource(target)
		if node == nil || node.Kind != world.ResourceRunecraftAltar {
			return
		}
		d.Skilling.StopWork(p.ID)
		d.Intents.CancelAll(p.ID)

		now := d.CurrentTick()
		d.Intents.Queue(world.IntentGather, &world.PendingIntent{
			PlayerID:       p.ID,
			TargetID:       target,
			LastTargetTile: node.Tile,
			Reach:          1,
			Arrive: func(in *world.PendingIntent) {
				runecraftAll(d, p)
			},
		}, now)
		d.Movement.MovePlayerToward(p.ID, node.Tile, d.Movement.IsRunning(p.ID), 1, "", now)
	})
}

func runecraftAll(d *Deps, p *world.Player) {
	if p.Dead || inventoryLocked(d, p) {
		return
	}
	made := make(map[string]int32)
	var xp int64
	skill := "runecrafting"
	for slot := 0; slot < world.InventorySize; slot++ {
		s := p.Inventory.Get(slot)
		if s == nil {
			continue
		}
		recipe := d.Catalog.ProcessRecipe(s.ItemID, "runecrafting")
		if recipe == nil {
			continue
		}
		qty := s.Quantity
		p.Inventory.Clear(slot)
		count := recipe.ProcessCount
		if count <= 0 {
			count = 1
		}
		made[recipe.ProcessInto] += qty * count
		xp += int64(recipe.ProcessXP) * int64(qty)
		if recipe.ProcessSkill != "" {
			skill = recipe.ProcessSkill
		}
	}
	if len(made) == 0 {
		Toast(d, p.ID, "You have nothing to bind here.")
		return
	}
	for id, qty := range made {
		p.Inventory.Add(id, qty, d.Catalog.Stackable(id))
	}
	p.Dirty = true
	SystemChat(d, p.ID, "You bind the essence into runes.")
	GrantXP(d, p, skill, xp)
	SendInventory(d, p)
}

// processing returns the handler for one station family: consume an input
// beside the right station, produce its recipe output. One craft per request,
// floored at the processing interval.
func processing(family string, kind world.ResourceKind) func(*Deps, uint64, json.RawMessage) {
	return func(d *Deps, socketID uint64, data json.RawMessage) {
		p := readyPlayer(d, socketID)
		if p == nil {
			return
		}
		var req struct {
			ItemID string `json:"itemId"`
		}
		if !decode(d, family, data, &req) {
			return
		}
		d.Actions.QueueAction(p.ID, family, func() {
			if p.Dead || inventoryLocked(d, p) {
				return
			}
			now := time.Now()
			if now.Sub(p.LastProcessingAt) < processingInterval {
				return
			}
			if d.World.ResourceNear(p.Tile(), kind) == nil {
				Toast(d, p.ID, "There's nothing here to work with.")
				return
			}
			recipe := d.Catalog.ProcessRecipe(req.ItemID, family)
			if recipe == nil {
				return
			}
			slot := p.Inventory.Find(req.ItemID)
			if slot < 0 {
				return
			}
			count := recipe.ProcessCount
			if count <= 0 {
				count = 1
			}
			// Consume before producing so the freed slot can hold the
			// output.
			if !p.Inventory.Remove(slot, 1) {
				return
			}
			if p.Inventory.Add(recipe.ProcessInto, count, d.Catalog.Stackable(recipe.ProcessInto)) < 0 {
				p.Inventory.Add(req.ItemID, 1, d.Catalog.Stackable(req.ItemID))
				Toast(d, p.ID, "Your inventory is full.")
				return
			}
			p.LastProcessingAt = now
			p.Dirty = true
			if out := d.Catalog.Get(recipe.ProcessInto); out != nil {
				SystemChat(d, p.ID, fmt.Sprintf("You make a %s.", out.Name))
			}
			skill := recipe.ProcessSkill
			if skill == "" {
				skill = family
			}
			GrantXP(d, p, skill, int64(recipe.ProcessXP))
			SendInventory(d, p)
		})
	}
}
