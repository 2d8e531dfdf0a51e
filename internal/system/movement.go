package system

import (
	coresys "github.com/runegate/server/internal/core/system"
	"github.com/runegate/server/internal/handler"
)

// MovementSystem advances every tracked walker one step (two when running)
// and lands the results in world state. Position deltas reach clients through
// the changed set, not per-step packets; clients interpolate from the path
// they got at tileMovementStart.
type MovementSystem struct {
	d *handler.Deps
}

func NewMovementSystem(d *handler.Deps) *MovementSystem {
	return &MovementSystem{d: d}
}

func (s *MovementSystem) Phase() coresys.Phase { return coresys.PhaseMovement }

func (s *MovementSystem) Update(tick int64) {
	for _, step := range s.d.Movement.Advance(tick) {
		s.d.World.MoveEntityTo(step.ID, step.To)
	}
}
