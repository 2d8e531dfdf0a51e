package system

import (
	coresys "github.com/runegate/server/internal/core/system"
	"github.com/runegate/server/internal/net"
)

// BroadcastFlushSystem registers last: everything queued during the tick
// moves to the socket write pumps in one batch.
type BroadcastFlushSystem struct {
	broadcast *net.BroadcastManager
}

func NewBroadcastFlushSystem(b *net.BroadcastManager) *BroadcastFlushSystem {
	return &BroadcastFlushSystem{broadcast: b}
}

func (s *BroadcastFlushSystem) Phase() coresys.Phase { return coresys.PhasePost }

func (s *BroadcastFlushSystem) Update(tick int64) {
	s.broadcast.Flush()
}
