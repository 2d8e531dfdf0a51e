package system

import (
	"github.com/runegate/server/internal/core/event"
	coresys "github.com/runegate/server/internal/core/system"
)

// DispatchSystem runs first every tick. It swaps the event bus buffers and
// delivers everything emitted during the previous tick, then drains the task
// queue so completions posted by detached goroutines re-enter on-loop.
type DispatchSystem struct {
	bus   *event.Bus
	tasks *coresys.TaskQueue
}

func NewDispatchSystem(bus *event.Bus, tasks *coresys.TaskQueue) *DispatchSystem {
	return &DispatchSystem{bus: bus, tasks: tasks}
}

func (s *DispatchSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *DispatchSystem) Update(tick int64) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
	s.tasks.Drain()
}
