package handler

import (
	"encoding/json"

	"github.com/runegate/server/internal/core/ecs"
	"github.com/runegate/server/internal/world"
)

const altarPrayerXP = 5

func sendPrayers(d *Deps, p *world.Player) {
	active := make([]string, 0, len(p.Prayers))
	for name := range p.Prayers {
		active = append(active, name)
	}
	d.Broadcast.SendToPlayer(p.ID, "prayers", map[string]any{"active": active})
}

// prayersLocked reports whether the duel rules forbid prayer right now.
func prayersLocked(d *Deps, p *world.Player) bool {
	s := d.Duels.Get(p.ID)
	return s != nil && s.InFight() && s.Rules.NoPrayer
}

func handlePrayerToggle(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil || p.Dead {
		return
	}
	var req struct {
		Prayer string `json:"prayer"`
		Active bool   `json:"active"`
	}
	if !decode(d, "prayerToggle", data, &req) || !world.IsPrayer(req.Prayer) {
		return
	}
	if req.Active && prayersLocked(d, p) {
		Toast(d, p.ID, "Prayer has been disabled for this duel.")
		return
	}
	if req.Active {
		p.Prayers[req.Prayer] = true
	} else {
		delete(p.Prayers, req.Prayer)
	}
	sendPrayers(d, p)
}

func handlePrayerDeactivateAll(d *Deps, socketID uint64, _ json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil || len(p.Prayers) == 0 {
		return
	}
	clear(p.Prayers)
	sendPrayers(d, p)
}

// handleAltarPray walks to the altar and prays there for a sliver of xp.
func handleAltarPray(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req entityTarget
	if !decode(d, "altarPray", data, &req) {
		return
	}
	target := ecs.EntityID(req.EntityID)
	d.Actions.QueueAction(p.ID, "altarPray", func() {
		if p.Dead {
			return
		}
		node := d.World.Resource(target)
		if node == nil || node.Kind != world.ResourceAltar {
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
				prayAtAltar(d, p)
			},
		}, now)
		d.Movement.MovePlayerToward(p.ID, node.Tile, d.Movement.IsRunning(p.ID), 1, "", now)
	})
}

func prayAtAltar(d *Deps, p *world.Player) {
	if p.Dead {
		return
	}
	if prayersLocked(d, p) {
		Toast(d, p.ID, "Prayer has been disabled for this duel.")
		return
	}
	SystemChat(d, p.ID, "You pray at the altar.")
	GrantXP(d, p, "prayer", altarPrayerXP)
}
