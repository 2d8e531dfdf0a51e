package handler

import (
	"encoding/json"

	"github.com/runegate/server/internal/core/ecs"
	"github.com/runegate/server/internal/world"
)

type entityTarget struct {
	EntityID uint64 `json:"entityId"`
}

// closeWalkAwaySessions drops the interfaces that do not survive the player
// doing something else. Trade and duel screens are torn down by their own
// subsystems, never as a side effect.
func closeWalkAwaySessions(d *Deps, p *world.Player) {
	if s := d.Sessions.Get(p.ID); s != nil {
		switch s.Kind {
		case world.SessionBank, world.SessionStore, world.SessionDialogue:
			d.Sessions.Close(p.ID)
		}
	}
}

// weaponProfile resolves reach and attack type from the equipped weapon,
// falling back to unarmed.
func weaponProfile(d *Deps, p *world.Player) (int, world.AttackType) {
	var weaponID string
	if w := p.Equipment.Weapon(); w != nil {
		weaponID = w.ItemID
	}
	reach, at, _, _ := d.Catalog.WeaponProfile(weaponID)
	return reach, world.AttackType(at)
}

// beginAttack replaces whatever the player was doing with a walk-then-attack
// intent. Arrival hands the pair to the combat system in the same tick.
func beginAttack(d *Deps, p *world.Player, targetID ecs.EntityID, targetTile world.Tile) {
	d.Skilling.StopWork(p.ID)
	closeWalkAwaySessions(d, p)
	d.Intents.CancelAll(p.ID)

	reach, at := weaponProfile(d, p)
	now := d.CurrentTick()
	d.Intents.Queue(world.IntentAttack, &world.PendingIntent{
		PlayerID:       p.ID,
		TargetID:       targetID,
		LastTargetTile: targetTile,
		Reach:          reach,
		AttackType:     at,
		Arrive: func(in *world.PendingIntent) {
			d.Combat.RequestAttack(in.PlayerID, in.TargetID)
		},
	}, now)
	d.Movement.MovePlayerToward(p.ID, targetTile, d.Movement.IsRunning(p.ID), reach, at, now)
}

func handleAttackMob(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req entityTarget
	if !decode(d, "attackMob", data, &req) {
		return
	}
	target := ecs.EntityID(req.EntityID)
	d.Actions.QueueAction(p.ID, "attackMob", func() {
		if p.Dead {
			return
		}
		mob := d.World.Mob(target)
		if mob == nil || !mob.Alive() {
			return
		}
		if !mob.Attackable() {
			Toast(d, p.ID, "You can't attack that.")
			return
		}
		beginAttack(d, p, target, mob.Tile())
	})
}

func handleAttackPlayer(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req entityTarget
	if !decode(d, "attackPlayer", data, &req) {
		return
	}
	target := ecs.EntityID(req.EntityID)
	d.Actions.QueueAction(p.ID, "attackPlayer", func() {
		if p.Dead || target == p.ID {
			return
		}
		victim := d.World.Player(target)
		if victim == nil || victim.Dead || victim.IsLoading {
			return
		}
		s := d.Duels.Get(p.ID)
		if s == nil || s.Stage != world.DuelStageFighting || s.Peer(p.ID) == nil || s.Peer(p.ID).PlayerID != target {
			Toast(d, p.ID, "You can only attack players you are dueling.")
			return
		}
		beginAttack(d, p, target, victim.Tile())
	})
}

// handleFollowPlayer starts the sticky follow intent: keep one cardinal tile
// behind the leader until replaced or the leader vanishes.
func handleFollowPlayer(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req entityTarget
	if !decode(d, "followPlayer", data, &req) {
		return
	}
	target := ecs.EntityID(req.EntityID)
	d.Actions.QueueAction(p.ID, "followPlayer", func() {
		if p.Dead || target == p.ID {
			return
		}
		leader := d.World.Player(target)
		if leader == nil || leader.Dead || leader.IsLoading {
			return
		}
		d.Skilling.StopWork(p.ID)
		d.Combat.Disengage(p.ID)
		closeWalkAwaySessions(d, p)
		d.Intents.CancelAll(p.ID)

		now := d.CurrentTick()
		d.Intents.Queue(world.IntentFollow, &world.PendingIntent{
			PlayerID:       p.ID,
			TargetID:       target,
			LastTargetTile: leader.Tile(),
			Reach:          1,
		}, now)
		d.Movement.MovePlayerToward(p.ID, leader.Tile(), d.Movement.IsRunning(p.ID), 1, "", now)
	})
}

func handleSetAutocast(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req struct {
		Spell string `json:"spell"`
	}
	if !decode(d, "setAutocast", data, &req) {
		return
	}
	p.Autocast = req.Spell
	p.Dirty = true
	SendStats(d, p)
}

func handleSetAutoRetaliate(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if !decode(d, "setAutoRetaliate", data, &req) {
		return
	}
	p.AutoRetaliate = req.Enabled
	p.Dirty = true
	SendStats(d, p)
}

func handleChangeAttackStyle(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req struct {
		Style string `json:"style"`
	}
	if !decode(d, "changeAttackStyle", data, &req) {
		return
	}
	switch req.Style {
	case "accurate", "aggressive", "defensive", "controlled":
		p.AttackStyle = req.Style
		p.Dirty = true
		SendStats(d, p)
	}
}
