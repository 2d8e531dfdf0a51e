package system

import (
	"github.com/runegate/server/internal/core/ecs"
	coresys "github.com/runegate/server/internal/core/system"
	"github.com/runegate/server/internal/handler"
	"github.com/runegate/server/internal/world"
)

// PendingIntentSystem advances the walk-then-act state machines after
// movement lands, so arrival checks see this tick's tiles. Players step in
// PID order; arrivals run inline.
type PendingIntentSystem struct {
	d *handler.Deps
}

func NewPendingIntentSystem(d *handler.Deps) *PendingIntentSystem {
	return &PendingIntentSystem{d: d}
}

func (s *PendingIntentSystem) Phase() coresys.Phase { return coresys.PhaseMovement }

func (s *PendingIntentSystem) Update(tick int64) {
	d := s.d
	d.Intents.Advance(tick, d.World.PIDs.Order(), world.IntentHooks{
		PlayerTile: func(id ecs.EntityID) (world.Tile, bool) {
			return d.Movement.Position(id)
		},
		TargetTile:   d.World.EntityTile,
		TargetActive: d.World.TargetActive,
		Repath: func(in *world.PendingIntent, target world.Tile) {
			d.Movement.MovePlayerToward(in.PlayerID, target, d.Movement.IsRunning(in.PlayerID), in.Reach, in.AttackType, tick)
		},
	})
}
