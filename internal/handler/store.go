package handler

import (
	"encoding/json"

	"github.com/runegate/server/internal/core/ecs"
	"github.com/runegate/server/internal/world"
)

type storeItemPayload struct {
	ItemID    string `json:"itemId"`
	Name      string `json:"name"`
	Price     int    `json:"price"`
	SellPrice int    `json:"sellPrice"`
}

// storeSession gates the buy/sell packets on an open store screen.
func storeSession(d *Deps, socketID uint64) *world.Player {
	p := readyPlayer(d, socketID)
	if p == nil {
		return nil
	}
	s := d.Sessions.Get(p.ID)
	if s == nil || s.Kind != world.SessionStore {
		return nil
	}
	if d.World.Locks.Locked(p.ID) {
		return nil
	}
	return p
}

func sendStoreStock(d *Deps, p *world.Player, keeperID ecs.EntityID) {
	stock := d.Catalog.StoreStock()
	items := make([]storeItemPayload, 0, len(stock))
	for _, it := range stock {
		items = append(items, storeItemPayload{
			ItemID:    it.ID,
			Name:      it.Name,
			Price:     it.Value,
			SellPrice: it.Value / 2,
		})
	}
	d.Broadcast.SendToPlayer(p.ID, "store", map[string]any{
		"keeperId": uint64(keeperID),
		"items":    items,
	})
}

// handleStoreOpen walks to the shopkeeper and opens the stock screen.
func handleStoreOpen(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req entityTarget
	if !decode(d, "storeOpen", data, &req) {
		return
	}
	target := ecs.EntityID(req.EntityID)
	d.Actions.QueueAction(p.ID, "storeOpen", func() {
		if p.Dead {
			return
		}
		keeper := d.World.Mob(target)
		if keeper == nil || !keeper.Store || !keeper.Alive() {
			return
		}
		d.Skilling.StopWork(p.ID)
		d.Intents.CancelAll(p.ID)

		now := d.CurrentTick()
		d.Intents.Queue(world.IntentGather, &world.PendingIntent{
			PlayerID:       p.ID,
			TargetID:       target,
			LastTargetTile: keeper.Tile(),
			Reach:          1,
			Arrive: func(in *world.PendingIntent) {
				if p.Dead {
					return
				}
				d.Sessions.Open(p.ID, world.SessionStore, in.TargetID, d.CurrentTick())
				sendStoreStock(d, p, in.TargetID)
			},
		}, now)
		d.Movement.MovePlayerToward(p.ID, keeper.Tile(), d.Movement.IsRunning(p.ID), 1, "", now)
	})
}

func handleStoreBuy(d *Deps, socketID uint64, data json.RawMessage) {
	p := storeSession(d, socketID)
	if p == nil {
		return
	}
	var req struct {
		ItemID   string `json:"itemId"`
		Quantity int32  `json:"quantity"`
	}
	if !decode(d, "storeBuy", data, &req) {
		return
	}
	qty := req.Quantity
	if qty <= 0 {
		qty = 1
	}
	item := d.Catalog.Get(req.ItemID)
	if item == nil || !item.Stocked {
		return
	}
	if !item.Stackable {
		if free := int32(p.Inventory.FreeSlots()); qty > free {
			qty = free
		}
		if qty == 0 {
			Toast(d, p.ID, "Your inventory is full.")
			return
		}
	} else if p.Inventory.Find(item.ID) < 0 && p.Inventory.FirstFree() < 0 {
		Toast(d, p.ID, "Your inventory is full.")
		return
	}
	cost := int64(item.Value) * int64(qty)
	if p.CoinPouch < cost {
		Toast(d, p.ID, "You don't have enough coins.")
		return
	}
	if item.Stackable {
		if p.Inventory.Add(item.ID, qty, true) < 0 {
			Toast(d, p.ID, "You can't carry that many.")
			return
		}
	} else {
		for i := int32(0); i < qty; i++ {
			p.Inventory.Add(item.ID, 1, false)
		}
	}
	p.CoinPouch -= cost
	p.Dirty = true
	SendInventory(d, p)
}

func handleStoreSell(d *Deps, socketID uint64, data json.RawMessage) {
	p := storeSession(d, socketID)
	if p == nil {
		return
	}
	var req struct {
		Slot     int   `json:"slot"`
		Quantity int32 `json:"quantity"`
	}
	if !decode(d, "storeSell", data, &req) {
		return
	}
	stack := p.Inventory.Get(req.Slot)
	if stack == nil {
		return
	}
	item := d.Catalog.Get(stack.ItemID)
	if item == nil || !item.Tradeable {
		Toast(d, p.ID, "You can't sell that.")
		return
	}
	qty := req.Quantity
	if qty <= 0 || qty > stack.Quantity {
		qty = stack.Quantity
	}
	if !p.Inventory.Remove(req.Slot, qty) {
		return
	}
	p.CoinPouch += int64(item.Value/2) * int64(qty)
	p.Dirty = true
	SendInventory(d, p)
}

func handleStoreClose(d *Deps, socketID uint64, _ json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	if s := d.Sessions.Get(p.ID); s != nil && s.Kind == world.SessionStore {
		d.Sessions.Close(p.ID)
	}
}
