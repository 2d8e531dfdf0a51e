package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/runegate/server/internal/core/ecs"
	coresys "github.com/runegate/server/internal/core/system"
	"github.com/runegate/server/internal/handler"
	"github.com/runegate/server/internal/world"
)

// HomeTeleportSystem owns the cast once it starts: every tick it interrupts
// casters who took damage or moved, and lands casts that reached their end
// tick. The cooldown starts at landing, never at cast start.
type HomeTeleportSystem struct {
	d *handler.Deps
}

func NewHomeTeleportSystem(d *handler.Deps) *HomeTeleportSystem {
	return &HomeTeleportSystem{d: d}
}

func (s *HomeTeleportSystem) Phase() coresys.Phase { return coresys.PhaseMovement }

func (s *HomeTeleportSystem) Update(tick int64) {
	d := s.d

	var interrupted []ecs.EntityID
	var reasons []string
	d.HomeTeleport.Each(func(id ecs.EntityID, endTick int64) {
		p := d.World.Player(id)
		switch {
		case p == nil || p.Dead:
			interrupted = append(interrupted, id)
			reasons = append(reasons, "")
		case p.InCombat(tick):
			interrupted = append(interrupted, id)
			reasons = append(reasons, world.TeleportInterruptCombat)
		case d.Movement.Moving(id):
			interrupted = append(interrupted, id)
			reasons = append(reasons, world.TeleportInterruptMovement)
		}
	})
	for i, id := range interrupted {
		d.HomeTeleport.Cancel(id)
		if reasons[i] == "" {
			continue
		}
		if p := d.World.Player(id); p != nil {
			p.Emote = "idle"
			d.World.MarkChanged(p.ID)
			d.Broadcast.SendToPlayer(p.ID, "homeTeleportFailed", map[string]any{
				"reason": reasons[i],
			})
		}
	}

	for _, id := range d.HomeTeleport.Due(tick) {
		p := d.World.Player(id)
		if p == nil {
			continue
		}
		d.World.MoveEntityTo(p.ID, d.World.Spawn)
		d.Movement.SyncPosition(p.ID, d.World.Spawn)
		p.HomeCooldownAt = time.Now()
		p.Emote = "idle"
		p.Dirty = true
		d.World.MarkChanged(p.ID)
		d.Broadcast.SendToPlayer(p.ID, "playerTeleport", map[string]any{
			"x": p.X, "y": p.Y, "z": p.Z,
		})
		d.Log.Info("home teleport landed",
			zap.String("name", p.Name),
			zap.Int64("character", p.CharacterID))
	}
}
