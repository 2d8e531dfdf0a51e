package handler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/runegate/server/internal/core/ecs"
	"github.com/runegate/server/internal/world"
)

type bankSlotRequest struct {
	Tab      int   `json:"tab"`
	Slot     int   `json:"slot"`
	Quantity int32 `json:"quantity"`
}

// bankSession returns the player when their bank screen is open and the
// mirror is loaded. Every bank mutation gates on it.
func bankSession(d *Deps, socketID uint64) *world.Player {
	p := readyPlayer(d, socketID)
	if p == nil {
		return nil
	}
	s := d.Sessions.Get(p.ID)
	if s == nil || s.Kind != world.SessionBank || !p.Bank.Loaded {
		return nil
	}
	if d.World.Locks.Locked(p.ID) {
		return nil
	}
	return p
}

// handleBankOpen walks the player to the booth, loads the bank mirror on
// first use, and opens the session.
func handleBankOpen(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req entityTarget
	if !decode(d, "bankOpen", data, &req) {
		return
	}
	target := ecs.EntityID(req.EntityID)
	d.Actions.QueueAction(p.ID, "bankOpen", func() {
		if p.Dead {
			return
		}
		booth := d.World.Resource(target)
		if booth == nil || booth.Kind != world.ResourceBankBooth {
			return
		}
		d.Skilling.StopWork(p.ID)
		d.Intents.CancelAll(p.ID)

		now := d.CurrentTick()
		d.Intents.Queue(world.IntentGather, &world.PendingIntent{
			PlayerID:       p.ID,
			TargetID:       target,
			LastTargetTile: booth.Tile,
			Reach:          1,
			Arrive: func(in *world.PendingIntent) {
				openBank(d, p)
			},
		}, now)
		d.Movement.MovePlayerToward(p.ID, booth.Tile, d.Movement.IsRunning(p.ID), 1, "", now)
	})
}

func openBank(d *Deps, p *world.Player) {
	if p.Dead {
		return
	}
	if p.Bank.Loaded {
		d.Sessions.Open(p.ID, world.SessionBank, 0, d.CurrentTick())
		SendBank(d, p)
		return
	}
	id, charID := p.ID, p.CharacterID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		defer cancel()
		bank, err := d.Banks.Load(ctx, charID)
		d.Tasks.Post(func() {
			cur := d.World.Player(id)
			if cur == nil {
				return
			}
			if err != nil {
				d.Log.Error("bank load", zap.Int64("character", charID), zap.Error(err))
				Toast(d, cur.ID, "The bank is unavailable right now.")
				return
			}
			bank.AlwaysPlaceholder = cur.Bank.AlwaysPlaceholder
			cur.Bank = bank
			d.Sessions.Open(cur.ID, world.SessionBank, 0, d.CurrentTick())
			SendBank(d, cur)
		})
	}()
}

func handleBankClose(d *Deps, socketID uint64, _ json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	if s := d.Sessions.Get(p.ID); s != nil && s.Kind == world.SessionBank {
		d.Sessions.Close(p.ID)
	}
}

// handleBankDeposit banks an inventory stack. A quantity above the clicked
// stack pulls matching stacks from the rest of the inventory, so deposit-all
// of an unstackable works in one request.
func handleBankDeposit(d *Deps, socketID uint64, data json.RawMessage) {
	p := bankSession(d, socketID)
	if p == nil {
		return
	}
	var req bankSlotRequest
	if !decode(d, "bankDeposit", data, &req) {
		return
	}
	stack := p.Inventory.Get(req.Slot)
	if stack == nil {
		return
	}
	want := req.Quantity
	if want <= 0 {
		want = stack.Quantity
	}
	if depositItem(d, p, req.Tab, stack.ItemID, req.Slot, want) {
		SendInventory(d, p)
		SendBank(d, p)
	}
}

// depositItem moves up to want of itemID into the bank, starting from the
// clicked slot. Returns whether anything moved.
func depositItem(d *Deps, p *world.Player, tab int, itemID string, firstSlot int, want int32) bool {
	moved := false
	slots := make([]int, 0, world.InventorySize)
	slots = append(slots, firstSlot)
	for i := 0; i < world.InventorySize; i++ {
		if i != firstSlot {
			slots = append(slots, i)
		}
	}
	for _, slot := range slots {
		if want <= 0 {
			break
		}
		s := p.Inventory.Get(slot)
		if s == nil || s.ItemID != itemID {
			continue
		}
		take := want
		if take > s.Quantity {
			take = s.Quantity
		}
		if _, _, ok := p.Bank.Deposit(tab, itemID, take); !ok {
			Toast(d, p.ID, "Your bank is full.")
			break
		}
		p.Inventory.Remove(slot, take)
		want -= take
		moved = true
	}
	if moved {
		p.Dirty = true
	}
	return moved
}

func handleBankWithdraw(d *Deps, socketID uint64, data json.RawMessage) {
	p := bankSession(d, socketID)
	if p == nil {
		return
	}
	var req bankSlotRequest
	if !decode(d, "bankWithdraw", data, &req) {
		return
	}
	withdrawToInventory(d, p, req.Tab, req.Slot, req.Quantity, false)
}

// handleBankWithdrawPlaceholder withdraws the stack and pins a placeholder
// row where it was.
func handleBankWithdrawPlaceholder(d *Deps, socketID uint64, data json.RawMessage) {
	p := bankSession(d, socketID)
	if p == nil {
		return
	}
	var req bankSlotRequest
	if !decode(d, "bankWithdrawPlaceholder", data, &req) {
		return
	}
	withdrawToInventory(d, p, req.Tab, req.Slot, req.Quantity, true)
}

func withdrawToInventory(d *Deps, p *world.Player, tab, slot int, qty int32, placeholder bool) {
	t := p.Bank.Tab(tab)
	if t == nil || slot < 0 || slot >= len(t.Slots) {
		return
	}
	row := t.Slots[slot]
	if row.Placeholder() {
		return
	}
	if qty <= 0 {
		qty = row.Quantity
	}
	stackable := d.Catalog.Stackable(row.ItemID)
	if stackable {
		if p.Inventory.Find(row.ItemID) < 0 && p.Inventory.FirstFree() < 0 {
			Toast(d, p.ID, "Your inventory is full.")
			return
		}
	} else {
		free := int32(p.Inventory.FreeSlots())
		if qty > free {
			qty = free
		}
		if qty == 0 {
			Toast(d, p.ID, "Your inventory is full.")
			return
		}
	}

	took, itemID, ok := p.Bank.Withdraw(tab, slot, qty, placeholder)
	if !ok || took == 0 {
		return
	}
	if stackable {
		if p.Inventory.Add(itemID, took, true) < 0 {
			// Merge overflow: the coins go back where they came from.
			p.Bank.Deposit(tab, itemID, took)
			Toast(d, p.ID, "You can't carry that many.")
			return
		}
	} else {
		for i := int32(0); i < took; i++ {
			p.Inventory.Add(itemID, 1, false)
		}
	}
	p.Dirty = true
	SendInventory(d, p)
	SendBank(d, p)
}

func handleBankMove(d *Deps, socketID uint64, data json.RawMessage) {
	p := bankSession(d, socketID)
	if p == nil {
		return
	}
	var req struct {
		Tab  int `json:"tab"`
		From int `json:"from"`
		To   int `json:"to"`
	}
	if !decode(d, "bankMove", data, &req) {
		return
	}
	if p.Bank.MoveItem(req.Tab, req.From, req.To) {
		p.Dirty = true
		SendBank(d, p)
	}
}

func handleBankCreateTab(d *Deps, socketID uint64, _ json.RawMessage) {
	p := bankSession(d, socketID)
	if p == nil {
		return
	}
	if _, ok := p.Bank.CreateTab(); ok {
		p.Dirty = true
		SendBank(d, p)
	}
}

func handleBankDeleteTab(d *Deps, socketID uint64, data json.RawMessage) {
	p := bankSession(d, socketID)
	if p == nil {
		return
	}
	var req struct {
		Tab int `json:"tab"`
	}
	if !decode(d, "bankDeleteTab", data, &req) {
		return
	}
	if p.Bank.DeleteTab(req.Tab) {
		p.Dirty = true
		SendBank(d, p)
	}
}

func handleBankMoveToTab(d *Deps, socketID uint64, data json.RawMessage) {
	p := bankSession(d, socketID)
	if p == nil {
		return
	}
	var req struct {
		FromTab int `json:"fromTab"`
		Slot    int `json:"slot"`
		ToTab   int `json:"toTab"`
	}
	if !decode(d, "bankMoveToTab", data, &req) {
		return
	}
	if p.Bank.MoveToTab(req.FromTab, req.Slot, req.ToTab) {
		p.Dirty = true
		SendBank(d, p)
	}
}

func handleBankReleasePlaceholder(d *Deps, socketID uint64, data json.RawMessage) {
	p := bankSession(d, socketID)
	if p == nil {
		return
	}
	var req bankSlotRequest
	if !decode(d, "bankReleasePlaceholder", data, &req) {
		return
	}
	if p.Bank.Release(req.Tab, req.Slot) {
		p.Dirty = true
		SendBank(d, p)
	}
}

func handleBankReleaseAllPlaceholders(d *Deps, socketID uint64, _ json.RawMessage) {
	p := bankSession(d, socketID)
	if p == nil {
		return
	}
	if p.Bank.ReleaseAll() > 0 {
		p.Dirty = true
		SendBank(d, p)
	}
}

func handleBankToggleAlwaysPlaceholder(d *Deps, socketID uint64, _ json.RawMessage) {
	p := bankSession(d, socketID)
	if p == nil {
		return
	}
	p.Bank.AlwaysPlaceholder = !p.Bank.AlwaysPlaceholder
	p.Dirty = true
	SendBank(d, p)
}

// handleBankWithdrawToEquipment pulls one item out of the bank and wears it
// in the same request. Needs a free inventory slot as the staging spot.
func handleBankWithdrawToEquipment(d *Deps, socketID uint64, data json.RawMessage) {
	p := bankSession(d, socketID)
	if p == nil {
		return
	}
	var req bankSlotRequest
	if !decode(d, "bankWithdrawToEquipment", data, &req) {
		return
	}
	free := p.Inventory.FirstFree()
	if free < 0 {
		Toast(d, p.ID, "Your inventory is full.")
		return
	}
	took, itemID, ok := p.Bank.Withdraw(req.Tab, req.Slot, 1, false)
	if !ok || took == 0 {
		return
	}
	p.Inventory.Set(free, &world.ItemStack{ItemID: itemID, Quantity: took})
	if !equipFromInventory(d, p, free) {
		// Not wearable after all; undo the staging withdraw.
		p.Inventory.Clear(free)
		p.Bank.Deposit(req.Tab, itemID, took)
		SendBank(d, p)
		return
	}
	p.Dirty = true
	SendInventory(d, p)
	SendEquipment(d, p)
	SendBank(d, p)
	d.World.MarkChanged(p.ID)
}

func handleBankDepositEquipment(d *Deps, socketID uint64, data json.RawMessage) {
	p := bankSession(d, socketID)
	if p == nil {
		return
	}
	var req struct {
		Slot string `json:"slot"`
	}
	if !decode(d, "bankDepositEquipment", data, &req) {
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
	if _, _, ok := p.Bank.Deposit(0, stack.ItemID, stack.Quantity); !ok {
		Toast(d, p.ID, "Your bank is full.")
		return
	}
	p.Equipment.Clear(eqSlot)
	p.Dirty = true
	SendEquipment(d, p)
	SendBank(d, p)
	d.World.MarkChanged(p.ID)
}

func handleBankDepositAllEquipment(d *Deps, socketID uint64, _ json.RawMessage) {
	p := bankSession(d, socketID)
	if p == nil {
		return
	}
	moved := false
	p.Equipment.Each(func(slot world.EquipSlot, s *world.ItemStack) {
		if _, _, ok := p.Bank.Deposit(0, s.ItemID, s.Quantity); ok {
			p.Equipment.Clear(slot)
			moved = true
		}
	})
	if moved {
		p.Dirty = true
		SendEquipment(d, p)
		SendBank(d, p)
		d.World.MarkChanged(p.ID)
	}
}

func handleBankDepositCoins(d *Deps, socketID uint64, data json.RawMessage) {
	p := bankSession(d, socketID)
	if p == nil {
		return
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if !decode(d, "bankDepositCoins", data, &req) {
		return
	}
	amount := req.Amount
	if amount <= 0 || p.CoinPouch <= 0 {
		return
	}
	if amount > p.CoinPouch {
		amount = p.CoinPouch
	}
	if amount > maxStack {
		amount = maxStack
	}
	if _, _, ok := p.Bank.Deposit(0, world.CoinItemID, int32(amount)); !ok {
		Toast(d, p.ID, "Your bank can't hold that many coins.")
		return
	}
	p.CoinPouch -= amount
	p.Dirty = true
	SendInventory(d, p)
	SendBank(d, p)
}

func handleBankWithdrawCoins(d *Deps, socketID uint64, data json.RawMessage) {
	p := bankSession(d, socketID)
	if p == nil {
		return
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if !decode(d, "bankWithdrawCoins", data, &req) {
		return
	}
	if req.Amount <= 0 {
		return
	}
	want := req.Amount
	if want > maxStack {
		want = maxStack
	}
	for tab, t := range p.Bank.Tabs {
		for slot, s := range t.Slots {
			if s.ItemID != world.CoinItemID || s.Placeholder() {
				continue
			}
			take := int32(want)
			took, _, ok := p.Bank.Withdraw(tab, slot, take, false)
			if !ok || took == 0 {
				return
			}
			p.CoinPouch += int64(took)
			p.Dirty = true
			SendInventory(d, p)
			SendBank(d, p)
			return
		}
	}
}

func handleBankDepositAll(d *Deps, socketID uint64, _ json.RawMessage) {
	p := bankSession(d, socketID)
	if p == nil {
		return
	}
	moved := false
	for slot := 0; slot < world.InventorySize; slot++ {
		s := p.Inventory.Get(slot)
		if s == nil {
			continue
		}
		if _, _, ok := p.Bank.Deposit(0, s.ItemID, s.Quantity); !ok {
			Toast(d, p.ID, "Your bank is full.")
			break
		}
		p.Inventory.Clear(slot)
		moved = true
	}
	if moved {
		p.Dirty = true
		SendInventory(d, p)
		SendBank(d, p)
	}
}
