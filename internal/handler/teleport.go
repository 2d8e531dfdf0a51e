package handler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/runegate/server/internal/world"
)

func homeTeleportFailed(d *Deps, p *world.Player, reason string) {
	d.Broadcast.SendToPlayer(p.ID, "homeTeleportFailed", map[string]any{"reason": reason})
}

// handleHomeTeleport starts the cast. The teleport system owns the per-tick
// interrupt checks and the landing; refusals here never touch the cooldown.
func handleHomeTeleport(d *Deps, socketID uint64, _ json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil || p.Dead {
		return
	}
	if d.HomeTeleport.Casting(p.ID) {
		return
	}
	now := d.CurrentTick()
	if p.InCombat(now) {
		homeTeleportFailed(d, p, "You can't teleport during combat.")
		return
	}
	if d.Duels.Dueling(p.ID) {
		homeTeleportFailed(d, p, "You can't teleport during a duel.")
		return
	}
	if !world.HomeTeleportReady(p, time.Now()) {
		left := world.HomeTeleportCooldown - time.Since(p.HomeCooldownAt)
		homeTeleportFailed(d, p, fmt.Sprintf("Home teleport is ready in %s.", left.Round(time.Second)))
		return
	}

	d.Skilling.StopWork(p.ID)
	d.Intents.CancelAll(p.ID)
	d.Movement.Cancel(p.ID)
	end, ok := d.HomeTeleport.Begin(p.ID, now)
	if !ok {
		return
	}
	p.Emote = "squat"
	d.World.MarkChanged(p.ID)
	d.Broadcast.SendToPlayer(p.ID, "homeTeleportStart", map[string]any{
		"castTicks": world.HomeTeleportCastTicks,
		"endTick":   end,
	})
}

func handleHomeTeleportCancel(d *Deps, socketID uint64, _ json.RawMessage) {
	p := PlayerFor(d, socketID)
	if p == nil {
		return
	}
	if !d.HomeTeleport.Cancel(p.ID) {
		return
	}
	p.Emote = "idle"
	d.World.MarkChanged(p.ID)
	homeTeleportFailed(d, p, "Cancelled.")
}
