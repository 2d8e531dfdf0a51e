package system

import (
	"fmt"

	"github.com/runegate/server/internal/core/event"
	"github.com/runegate/server/internal/handler"
)

// EventBridge renders bus events into packets. It is not a phased system:
// its subscribers run inside the dispatch pass at the top of the tick after
// the one that emitted.
type EventBridge struct {
	d *handler.Deps
}

func NewEventBridge(d *handler.Deps) *EventBridge {
	b := &EventBridge{d: d}
	event.Subscribe(d.Bus, b.onChatSaid)
	event.Subscribe(d.Bus, b.onXPGained)
	event.Subscribe(d.Bus, b.onDamageDealt)
	event.Subscribe(d.Bus, b.onEntityDied)
	event.Subscribe(d.Bus, b.onInventoryChanged)
	event.Subscribe(d.Bus, b.onEquipmentChanged)
	event.Subscribe(d.Bus, b.onStatsChanged)
	event.Subscribe(d.Bus, b.onUIMessage)
	return b
}

// onChatSaid shows a chat line to everyone near the speaker. Listeners who
// ignored the speaker filter the line client-side by name.
func (b *EventBridge) onChatSaid(ev event.ChatSaid) {
	payload := map[string]any{
		"entityId": uint64(ev.Speaker),
		"name":     ev.Name,
		"text":     ev.Text,
	}
	if ev.Color != "" {
		payload["color"] = ev.Color
	}
	b.d.Broadcast.SendToAOI(ev.Speaker, "chatAdded", payload, 0)
}

func (b *EventBridge) onXPGained(ev event.XPGained) {
	d := b.d
	d.Broadcast.SendToPlayer(ev.PlayerID, "testXpDrop", map[string]any{
		"skill":  ev.Skill,
		"amount": ev.Amount,
	})
	if ev.NewLevel > 0 {
		d.Broadcast.SendToPlayer(ev.PlayerID, "testLevelUp", map[string]any{
			"skill": ev.Skill,
			"level": ev.NewLevel,
		})
		handler.SystemChat(d, ev.PlayerID,
			fmt.Sprintf("Congratulations, you just advanced a %s level. You are now level %d.", ev.Skill, ev.NewLevel))
	}
}

// onDamageDealt paints the hitsplat for everyone who can see the target.
func (b *EventBridge) onDamageDealt(ev event.DamageDealt) {
	b.d.Broadcast.SendToAOI(ev.Target, "entityDamaged", map[string]any{
		"id":       uint64(ev.Target),
		"attacker": uint64(ev.Attacker),
		"amount":   ev.Amount,
		"hitsplat": ev.Hitsplat,
	}, 0)
}

func (b *EventBridge) onEntityDied(ev event.EntityDied) {
	if b.d.World.Player(ev.EntityID) == nil {
		return
	}
	b.d.Broadcast.SendToPlayer(ev.EntityID, "uiDeathScreen", map[string]any{
		"cause": ev.Cause,
	})
}

func (b *EventBridge) onInventoryChanged(ev event.InventoryChanged) {
	if p := b.d.World.Player(ev.PlayerID); p != nil {
		handler.SendInventory(b.d, p)
	}
}

func (b *EventBridge) onEquipmentChanged(ev event.EquipmentChanged) {
	if p := b.d.World.Player(ev.PlayerID); p != nil {
		handler.SendEquipment(b.d, p)
	}
}

func (b *EventBridge) onStatsChanged(ev event.StatsChanged) {
	if p := b.d.World.Player(ev.PlayerID); p != nil {
		handler.SendStats(b.d, p)
	}
}

func (b *EventBridge) onUIMessage(ev event.UIMessage) {
	switch ev.Kind {
	case "toast":
		handler.Toast(b.d, ev.PlayerID, ev.Text)
	default:
		handler.SystemChat(b.d, ev.PlayerID, ev.Text)
	}
}
