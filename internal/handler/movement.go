package handler

import (
	"encoding/json"

	"github.com/runegate/server/internal/world"
)

// interruptForMovement tears down everything a fresh walk click overrides:
// pending intents, skilling work, the combat engagement, a casting home
// teleport, and any walk-away interface. Trade and duel screens stay open;
// the swap validates server-side regardless of where the player stands.
func interruptForMovement(d *Deps, p *world.Player) {
	d.Intents.CancelAll(p.ID)
	d.Skilling.StopWork(p.ID)
	d.Combat.Disengage(p.ID)
	if d.HomeTeleport.Casting(p.ID) {
		d.HomeTeleport.Cancel(p.ID)
		d.Broadcast.SendToPlayer(p.ID, "homeTeleportFailed", map[string]string{
			"reason": world.TeleportInterruptMovement,
		})
	}
	if s := d.Sessions.Get(p.ID); s != nil {
		switch s.Kind {
		case world.SessionBank, world.SessionStore, world.SessionDialogue:
			d.Sessions.Close(p.ID)
		}
	}
}

// runWalk is the movement-slot action body shared by moveRequest and input.
func runWalk(d *Deps, p *world.Player, dest world.Tile, running bool) {
	if p.Dead {
		return
	}
	if s := d.Duels.Get(p.ID); s != nil && s.InFight() && s.Rules.NoMovement {
		Toast(d, p.ID, "Movement is disabled for this duel.")
		return
	}
	interruptForMovement(d, p)
	d.Movement.MoveTo(p.ID, dest, running, d.CurrentTick())
}

func handleMoveRequest(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req struct {
		X       float64 `json:"x"`
		Z       float64 `json:"z"`
		Running bool    `json:"running"`
	}
	if !decode(d, "moveRequest", data, &req) {
		return
	}
	dest := world.TileAt(req.X, req.Z)
	d.Actions.QueueMovement(p.ID, "moveRequest", func() {
		runWalk(d, p, dest, req.Running)
	})
}

// handleInput is the keyboard path: a relative single-tile step. dx/dz are
// clamped to one tile; (0,0) stops the current path.
func handleInput(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req struct {
		DX      int  `json:"dx"`
		DZ      int  `json:"dz"`
		Running bool `json:"running"`
	}
	if !decode(d, "input", data, &req) {
		return
	}
	dx, dz := clampStep(req.DX), clampStep(req.DZ)
	d.Actions.QueueMovement(p.ID, "input", func() {
		if dx == 0 && dz == 0 {
			d.Movement.Cancel(p.ID)
			return
		}
		at := p.Tile()
		runWalk(d, p, world.Tile{X: at.X + dx, Z: at.Z + dz}, req.Running)
	})
}

func clampStep(v int) int {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
