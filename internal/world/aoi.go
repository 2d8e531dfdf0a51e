package world

import (
	"math"

	"github.com/runegate/server/internal/core/ecs"
)

// AOIManager is the square-cell interest grid. Every in-world entity sits in
// exactly one cell keyed by its position; every player additionally
// subscribes to the (2·viewDistance+1)² block of cells around itself.
// Broadcasts scoped to an entity go to the subscribers of its cell. Game
// loop only, no locks.

type CellKey struct {
	CX int
	CZ int
}

type aoiCell struct {
	occupants   map[ecs.EntityID]struct{}
	subscribers map[uint64]struct{}
}

// CellTransition is one entity crossing a cell boundary. The visibility pass
// drains these each tick to pair entityAdded/entityRemoved for watchers whose
// own subscriptions did not move.
type CellTransition struct {
	ID   ecs.EntityID
	From CellKey
	To   CellKey
}

type AOIManager struct {
	cellSize int
	viewDist int

	cells       map[CellKey]*aoiCell
	entityCell  map[ecs.EntityID]CellKey
	playerCells map[ecs.EntityID]map[CellKey]struct{}
	playerSock  map[ecs.EntityID]uint64
	transitions []CellTransition
}

func NewAOIManager(cellSize, viewDistance int) *AOIManager {
	if cellSize <= 0 {
		cellSize = 50
	}
	if viewDistance <= 0 {
		viewDistance = 2
	}
	return &AOIManager{
		cellSize:    cellSize,
		viewDist:    viewDistance,
		cells:       make(map[CellKey]*aoiCell),
		entityCell:  make(map[ecs.EntityID]CellKey),
		playerCells: make(map[ecs.EntityID]map[CellKey]struct{}),
		playerSock:  make(map[ecs.EntityID]uint64),
	}
}

func (m *AOIManager) CellFor(x, z float64) CellKey {
	return CellKey{
		CX: int(math.Floor(x / float64(m.cellSize))),
		CZ: int(math.Floor(z / float64(m.cellSize))),
	}
}

func (m *AOIManager) cell(k CellKey) *aoiCell {
	c := m.cells[k]
	if c == nil {
		c = &aoiCell{
			occupants:   make(map[ecs.EntityID]struct{}),
			subscribers: make(map[uint64]struct{}),
		}
		m.cells[k] = c
	}
	return c
}

func (m *AOIManager) dropIfEmpty(k CellKey) {
	if c := m.cells[k]; c != nil && len(c.occupants) == 0 && len(c.subscribers) == 0 {
		delete(m.cells, k)
	}
}

// UpdateEntityPosition keeps an entity's cell current. Reports whether the
// cell changed (first placement counts as a change).
func (m *AOIManager) UpdateEntityPosition(id ecs.EntityID, x, z float64) bool {
	next := m.CellFor(x, z)
	prev, had := m.entityCell[id]
	if had && prev == next {
		return false
	}
	if had {
		if c := m.cells[prev]; c != nil {
			delete(c.occupants, id)
			m.dropIfEmpty(prev)
		}
		m.transitions = append(m.transitions, CellTransition{ID: id, From: prev, To: next})
	}
	m.cell(next).occupants[id] = struct{}{}
	m.entityCell[id] = next
	return true
}

// TakeTransitions returns this tick's cell crossings and resets the list.
// First placements are not crossings; the spawn site announces those.
func (m *AOIManager) TakeTransitions() []CellTransition {
	t := m.transitions
	m.transitions = nil
	return t
}

// SubscribersIn lists the socket ids subscribed to one cell.
func (m *AOIManager) SubscribersIn(k CellKey) []uint64 {
	c := m.cells[k]
	if c == nil || len(c.subscribers) == 0 {
		return nil
	}
	out := make([]uint64, 0, len(c.subscribers))
	for s := range c.subscribers {
		out = append(out, s)
	}
	return out
}

// RemoveEntity takes an entity out of the grid entirely.
func (m *AOIManager) RemoveEntity(id ecs.EntityID) {
	k, ok := m.entityCell[id]
	if !ok {
		return
	}
	if c := m.cells[k]; c != nil {
		delete(c.occupants, id)
		m.dropIfEmpty(k)
	}
	delete(m.entityCell, id)
}

// UpdatePlayerSubscriptions recomputes the cell block a player's socket
// listens to and returns the cells entered and exited since the last call.
// The visibility system turns those deltas into entityAdded/entityRemoved.
func (m *AOIManager) UpdatePlayerSubscriptions(playerID ecs.EntityID, x, z float64, socketID uint64) (entered, exited []CellKey) {
	center := m.CellFor(x, z)
	want := make(map[CellKey]struct{}, (2*m.viewDist+1)*(2*m.viewDist+1))
	for dx := -m.viewDist; dx <= m.viewDist; dx++ {
		for dz := -m.viewDist; dz <= m.viewDist; dz++ {
			want[CellKey{CX: center.CX + dx, CZ: center.CZ + dz}] = struct{}{}
		}
	}

	have := m.playerCells[playerID]
	if have == nil {
		have = make(map[CellKey]struct{})
		m.playerCells[playerID] = have
	}
	m.playerSock[playerID] = socketID

	for k := range want {
		if _, ok := have[k]; !ok {
			m.cell(k).subscribers[socketID] = struct{}{}
			have[k] = struct{}{}
			entered = append(entered, k)
		}
	}
	for k := range have {
		if _, ok := want[k]; !ok {
			if c := m.cells[k]; c != nil {
				delete(c.subscribers, socketID)
				m.dropIfEmpty(k)
			}
			delete(have, k)
			exited = append(exited, k)
		}
	}
	return entered, exited
}

// RemovePlayer drops all subscriptions for a player (disconnect).
func (m *AOIManager) RemovePlayer(playerID ecs.EntityID) {
	sock, ok := m.playerSock[playerID]
	if ok {
		for k := range m.playerCells[playerID] {
			if c := m.cells[k]; c != nil {
				delete(c.subscribers, sock)
				m.dropIfEmpty(k)
			}
		}
	}
	delete(m.playerCells, playerID)
	delete(m.playerSock, playerID)
}

// SubscribersForEntity returns the socket ids that should receive updates
// about the entity.
func (m *AOIManager) SubscribersForEntity(id ecs.EntityID) []uint64 {
	k, ok := m.entityCell[id]
	if !ok {
		return nil
	}
	c := m.cells[k]
	if c == nil || len(c.subscribers) == 0 {
		return nil
	}
	out := make([]uint64, 0, len(c.subscribers))
	for s := range c.subscribers {
		out = append(out, s)
	}
	return out
}

// CanPlayerSeeEntity reports whether the entity's cell is inside the
// player's subscribed block.
func (m *AOIManager) CanPlayerSeeEntity(playerID, entityID ecs.EntityID) bool {
	k, ok := m.entityCell[entityID]
	if !ok {
		return false
	}
	_, sub := m.playerCells[playerID][k]
	return sub
}

// OccupantsIn lists the entities currently inside a cell.
func (m *AOIManager) OccupantsIn(k CellKey) []ecs.EntityID {
	c := m.cells[k]
	if c == nil || len(c.occupants) == 0 {
		return nil
	}
	out := make([]ecs.EntityID, 0, len(c.occupants))
	for id := range c.occupants {
		out = append(out, id)
	}
	return out
}

// EntityCell exposes an entity's current cell (testing and debug overlays).
func (m *AOIManager) EntityCell(id ecs.EntityID) (CellKey, bool) {
	k, ok := m.entityCell[id]
	return k, ok
}
