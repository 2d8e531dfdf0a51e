package system

import (
	coresys "github.com/runegate/server/internal/core/system"
	"github.com/runegate/server/internal/handler"
)

// VisibilitySystem reconciles who sees what after the tick's movement
// settles: cell churn turns into entityAdded/entityRemoved for the moving
// player, and the tick's changed set goes out as entityModified to every
// subscriber.
type VisibilitySystem struct {
	d *handler.Deps
}

func NewVisibilitySystem(d *handler.Deps) *VisibilitySystem {
	return &VisibilitySystem{d: d}
}

func (s *VisibilitySystem) Phase() coresys.Phase { return coresys.PhasePost }

func (s *VisibilitySystem) Update(tick int64) {
	d := s.d

	for _, pid := range d.World.PIDs.Order() {
		p := d.World.Player(pid)
		if p == nil {
			continue
		}
		entered, exited := d.World.AOI.UpdatePlayerSubscriptions(p.ID, p.X, p.Z, p.SocketID)
		for _, cell := range entered {
			for _, occ := range d.World.AOI.OccupantsIn(cell) {
				if occ == p.ID {
					continue
				}
				if snap := handler.SnapshotEntity(d, occ); snap != nil {
					d.Broadcast.SendToSocket(p.SocketID, "entityAdded", snap)
				}
			}
		}
		for _, cell := range exited {
			for _, occ := range d.World.AOI.OccupantsIn(cell) {
				if occ == p.ID {
					continue
				}
				d.Broadcast.SendToSocket(p.SocketID, "entityRemoved", map[string]any{"id": uint64(occ)})
			}
		}
	}

	// Entities that crossed a cell boundary appear to watchers of the new
	// cell and vanish for watchers of the old one. Watchers of both get
	// the entityModified below instead.
	for _, tr := range d.World.AOI.TakeTransitions() {
		ownSock := uint64(0)
		if p := d.World.Player(tr.ID); p != nil {
			ownSock = p.SocketID
		}
		from := socketSet(d.World.AOI.SubscribersIn(tr.From))
		snap := handler.SnapshotEntity(d, tr.ID)
		for _, sock := range d.World.AOI.SubscribersIn(tr.To) {
			if sock == ownSock {
				continue
			}
			if _, both := from[sock]; both {
				continue
			}
			if snap != nil {
				d.Broadcast.SendToSocket(sock, "entityAdded", snap)
			}
		}
		to := socketSet(d.World.AOI.SubscribersIn(tr.To))
		for sock := range from {
			if sock == ownSock {
				continue
			}
			if _, both := to[sock]; both {
				continue
			}
			d.Broadcast.SendToSocket(sock, "entityRemoved", map[string]any{"id": uint64(tr.ID)})
		}
	}

	for _, id := range d.World.TakeChanged() {
		snap := handler.SnapshotEntity(d, id)
		if snap == nil {
			// Removal sites broadcast their own entityRemoved.
			continue
		}
		d.Broadcast.SendToAOI(id, "entityModified", snap, 0)
	}
}

func socketSet(socks []uint64) map[uint64]struct{} {
	set := make(map[uint64]struct{}, len(socks))
	for _, s := range socks {
		set[s] = struct{}{}
	}
	return set
}
