package system

import (
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/runegate/server/internal/core/ecs"
	coresys "github.com/runegate/server/internal/core/system"
	"github.com/runegate/server/internal/handler"
	"github.com/runegate/server/internal/world"
)

// ActionQueueSystem replays the queued click outcomes. Players drain in PID
// order, movement slot before the other slot, so contested interactions
// resolve the same way every tick.
type ActionQueueSystem struct {
	d *handler.Deps
}

func NewActionQueueSystem(d *handler.Deps) *ActionQueueSystem {
	return &ActionQueueSystem{d: d}
}

func (s *ActionQueueSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *ActionQueueSystem) Update(tick int64) {
	for _, id := range s.d.World.PIDs.Order() {
		movement, other := s.d.Actions.Drain(id)
		if movement != nil {
			s.run(id, movement)
		}
		if other != nil {
			s.run(id, other)
		}
	}
}

// run executes one action with panic recovery; a bad click must not take the
// loop down with it.
func (s *ActionQueueSystem) run(id ecs.EntityID, a *world.Action) {
	defer func() {
		if r := recover(); r != nil {
			s.d.Log.Error("action panicked",
				zap.String("action", a.Name),
				zap.Uint64("entity", uint64(id)),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	a.Run()
}
