package handler

import (
	"github.com/runegate/server/internal/core/ecs"
	"github.com/runegate/server/internal/core/event"
	"github.com/runegate/server/internal/world"
)

// EntitySnapshot is the entityAdded / entityModified wire shape. One struct
// covers every entity class; fields that do not apply stay omitted.
type EntitySnapshot struct {
	ID   uint64  `json:"id"`
	Type string  `json:"type"`
	Name string  `json:"name,omitempty"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`

	HP        int     `json:"hp,omitempty"`
	MaxHP     int     `json:"maxHp,omitempty"`
	Dead      bool    `json:"dead,omitempty"`
	IsLoading bool    `json:"isLoading,omitempty"`
	Facing    float64 `json:"facing,omitempty"`
	Emote     string  `json:"emote,omitempty"`

	Kind     string `json:"kind,omitempty"`
	Depleted bool   `json:"depleted,omitempty"`

	ItemID   string `json:"itemId,omitempty"`
	Quantity int32  `json:"quantity,omitempty"`

	Store    bool `json:"store,omitempty"`
	Dialogue bool `json:"dialogue,omitempty"`
}

func SnapshotPlayer(p *world.Player) *EntitySnapshot {
	return &EntitySnapshot{
		ID:        uint64(p.ID),
		Type:      "player",
		Name:      p.Name,
		X:         p.X,
		Y:         p.Y,
		Z:         p.Z,
		HP:        p.HP,
		MaxHP:     p.MaxHP,
		Dead:      p.Dead,
		IsLoading: p.IsLoading,
		Facing:    p.Facing,
		Emote:     p.Emote,
	}
}

func SnapshotMob(m *world.Mob) *EntitySnapshot {
	return &EntitySnapshot{
		ID:       uint64(m.ID),
		Type:     m.Type,
		Name:     m.Name,
		X:        m.X,
		Y:        m.Y,
		Z:        m.Z,
		HP:       m.HP,
		MaxHP:    m.MaxHP,
		Dead:     m.Dead,
		Store:    m.Store,
		Dialogue: m.DialogueScript != "",
	}
}

func SnapshotResource(n *world.ResourceNode) *EntitySnapshot {
	return &EntitySnapshot{
		ID:       uint64(n.ID),
		Type:     "resource",
		Name:     n.Name,
		X:        n.Tile.WorldX(),
		Z:        n.Tile.WorldZ(),
		Kind:     string(n.Kind),
		Depleted: n.Depleted,
	}
}

func SnapshotGroundItem(g *world.GroundItem) *EntitySnapshot {
	return &EntitySnapshot{
		ID:       uint64(g.ID),
		Type:     "groundItem",
		X:        g.Tile.WorldX(),
		Z:        g.Tile.WorldZ(),
		ItemID:   g.ItemID,
		Quantity: g.Quantity,
	}
}

func SnapshotFire(f *world.Fire) *EntitySnapshot {
	return &EntitySnapshot{
		ID:   uint64(f.ID),
		Type: "fire",
		X:    f.Tile.WorldX(),
		Z:    f.Tile.WorldZ(),
	}
}

// SnapshotEntity resolves any live entity id to its wire shape, or nil when
// the id no longer maps to anything.
func SnapshotEntity(d *Deps, id ecs.EntityID) *EntitySnapshot {
	if p := d.World.Player(id); p != nil {
		return SnapshotPlayer(p)
	}
	if m := d.World.Mob(id); m != nil {
		return SnapshotMob(m)
	}
	if n := d.World.Resource(id); n != nil {
		return SnapshotResource(n)
	}
	if g := d.World.GroundItem(id); g != nil {
		return SnapshotGroundItem(g)
	}
	if f := d.World.Fires.Get(id); f != nil {
		return SnapshotFire(f)
	}
	return nil
}

type inventorySlotPayload struct {
	Slot     int    `json:"slot"`
	ItemID   string `json:"itemId"`
	Quantity int32  `json:"quantity"`
}

type inventoryPayload struct {
	Slots     []inventorySlotPayload `json:"slots"`
	CoinPouch int64                  `json:"coinPouch"`
}

// SendInventory pushes the full inventory snapshot; the client replaces its
// copy wholesale, so there is no per-slot delta protocol to drift.
func SendInventory(d *Deps, p *world.Player) {
	out := inventoryPayload{Slots: make([]inventorySlotPayload, 0, world.InventorySize), CoinPouch: p.CoinPouch}
	for slot := 0; slot < world.InventorySize; slot++ {
		s := p.Inventory.Get(slot)
		if s == nil {
			continue
		}
		out.Slots = append(out.Slots, inventorySlotPayload{Slot: slot, ItemID: s.ItemID, Quantity: s.Quantity})
	}
	d.Broadcast.SendToPlayer(p.ID, "inventory", out)
}

// SendEquipment pushes the worn-slot map.
func SendEquipment(d *Deps, p *world.Player) {
	slots := make(map[string]*inventorySlotPayload)
	p.Equipment.Each(func(slot world.EquipSlot, s *world.ItemStack) {
		slots[slot.String()] = &inventorySlotPayload{ItemID: s.ItemID, Quantity: s.Quantity}
	})
	d.Broadcast.SendToPlayer(p.ID, "equipment", map[string]any{"slots": slots})
}

// SendStats pushes hit points and skill xp totals.
func SendStats(d *Deps, p *world.Player) {
	d.Broadcast.SendToPlayer(p.ID, "stats", map[string]any{
		"hp":            p.HP,
		"maxHp":         p.MaxHP,
		"skills":        p.Skills,
		"attackStyle":   p.AttackStyle,
		"autocast":      p.Autocast,
		"autoRetaliate": p.AutoRetaliate,
	})
}

type bankSlotPayload struct {
	Tab      int    `json:"tab"`
	Slot     int    `json:"slot"`
	ItemID   string `json:"itemId"`
	Quantity int32  `json:"quantity"`
}

// SendBank pushes the full bank mirror plus the placeholder preference.
func SendBank(d *Deps, p *world.Player) {
	var slots []bankSlotPayload
	for tab, t := range p.Bank.Tabs {
		for slot, s := range t.Slots {
			slots = append(slots, bankSlotPayload{Tab: tab, Slot: slot, ItemID: s.ItemID, Quantity: s.Quantity})
		}
	}
	d.Broadcast.SendToPlayer(p.ID, "bank", map[string]any{
		"tabs":              len(p.Bank.Tabs),
		"slots":             slots,
		"alwaysPlaceholder": p.Bank.AlwaysPlaceholder,
	})
}

// GrantXP applies an XP gain and emits the drop; the bridge renders the drop
// and any level-up packets next tick.
func GrantXP(d *Deps, p *world.Player, skill string, amount int64) {
	if amount <= 0 {
		return
	}
	before := world.LevelForXP(p.Skills[skill])
	p.AddXP(skill, amount)
	after := world.LevelForXP(p.Skills[skill])
	ev := event.XPGained{PlayerID: p.ID, Skill: skill, Amount: int(amount)}
	if after > before {
		ev.NewLevel = after
		d.World.MarkChanged(p.ID)
	}
	event.Emit(d.Bus, ev)
	SendStats(d, p)
}
