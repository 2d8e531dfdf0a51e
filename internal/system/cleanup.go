package system

import (
	"github.com/runegate/server/internal/core/ecs"
	coresys "github.com/runegate/server/internal/core/system"
	"github.com/runegate/server/internal/handler"
)

// CleanupSystem runs near the end of POST: destroyed entities leave every
// registered store, and the PID ladder reshuffles on its jittered schedule so
// no player camps the head of tie-break order.
type CleanupSystem struct {
	d   *handler.Deps
	ecs *ecs.World
}

func NewCleanupSystem(d *handler.Deps) *CleanupSystem {
	return &CleanupSystem{d: d, ecs: d.Ecs}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhasePost }

func (s *CleanupSystem) Update(tick int64) {
	s.ecs.FlushDestroyQueue()
	s.d.World.PIDs.MaybeReshuffle(tick)
}
