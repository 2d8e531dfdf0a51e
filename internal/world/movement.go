package world

import "github.com/runegate/server/internal/core/ecs"

// TileState is the per-entity movement record. An entity is either
// stationary (Dest nil, Path empty) or progressing along Path; every path
// step strictly reduces Chebyshev distance to the destination.
type TileState struct {
	Cur             Tile
	Dest            *Tile
	Path            []Tile
	Running         bool
	NextStepTick    int64
	AgilityProgress int
}

// Blocker vetoes tiles during pathing. Terrain, the void edge, and duel
// arena bounds all plug in here; arena bounds are per-entity, hence the id.
type Blocker interface {
	Blocked(id ecs.EntityID, t Tile) bool
}

type BlockerFunc func(id ecs.EntityID, t Tile) bool

func (f BlockerFunc) Blocked(id ecs.EntityID, t Tile) bool { return f(id, t) }

// PathStartFunc observes every new or replaced path, for the
// tileMovementStart broadcast.
type PathStartFunc func(id ecs.EntityID, path []Tile, running bool)

// Step is one entity's movement during a tick.
type Step struct {
	ID      ecs.EntityID
	From    Tile
	To      Tile
	Arrived bool
}

// maxPathLen caps a single computed path; clicks beyond it walk as far as
// the cap allows.
const maxPathLen = 64

// MovementManager owns tile state for every moving entity and advances it
// once per tick: one tile walking, two running. Game loop only.
type MovementManager struct {
	tiles       *ecs.Store[TileState]
	blockers    []Blocker
	onPathStart PathStartFunc
}

func NewMovementManager(tiles *ecs.Store[TileState], onPathStart PathStartFunc) *MovementManager {
	if onPathStart == nil {
		onPathStart = func(ecs.EntityID, []Tile, bool) {}
	}
	return &MovementManager{tiles: tiles, onPathStart: onPathStart}
}

// AddBlocker appends a collision source consulted on every path step.
func (m *MovementManager) AddBlocker(b Blocker) {
	m.blockers = append(m.blockers, b)
}

func (m *MovementManager) blocked(id ecs.EntityID, t Tile) bool {
	for _, b := range m.blockers {
		if b.Blocked(id, t) {
			return true
		}
	}
	return false
}

// Track registers an entity at a tile with no movement in progress.
func (m *MovementManager) Track(id ecs.EntityID, t Tile) {
	m.tiles.Set(id, &TileState{Cur: t})
}

func (m *MovementManager) Position(id ecs.EntityID) (Tile, bool) {
	ts, ok := m.tiles.Get(id)
	if !ok {
		return Tile{}, false
	}
	return ts.Cur, true
}

func (m *MovementManager) Moving(id ecs.EntityID) bool {
	ts, ok := m.tiles.Get(id)
	return ok && ts.Dest != nil
}

func (m *MovementManager) IsRunning(id ecs.EntityID) bool {
	ts, ok := m.tiles.Get(id)
	return ok && ts.Running
}

// MoveTo paths an entity to a destination tile (reach 0 semantics). Returns
// false for untracked entities.
func (m *MovementManager) MoveTo(id ecs.EntityID, dest Tile, running bool, tick int64) bool {
	ts, ok := m.tiles.Get(id)
	if !ok {
		return false
	}
	m.startPath(id, ts, m.computePath(id, ts.Cur, dest), running, tick)
	return true
}

// MovePlayerToward paths an entity to a terminal tile valid for the
// requested interaction:
//
//   - reach 0: the target tile itself.
//   - reach 1 melee: the closest walkable cardinal neighbor of the target,
//     ties broken west, east, south, north. Diagonals never qualify.
//   - anything else: the first tile within Chebyshev reach of the target.
//
// An unreachable target walks to the closest tile greedy progress allows;
// no error reaches the client. Returns the chosen terminal tile.
func (m *MovementManager) MovePlayerToward(id ecs.EntityID, target Tile, running bool, reach int, at AttackType, tick int64) (Tile, bool) {
	ts, ok := m.tiles.Get(id)
	if !ok {
		return Tile{}, false
	}

	var path []Tile
	var term Tile
	switch {
	case reach <= 0:
		term = target
		path = m.computePath(id, ts.Cur, target)
	case reach == 1 && at == AttackMelee:
		term = m.meleeTerminal(id, ts.Cur, target)
		path = m.computePath(id, ts.Cur, term)
	default:
		if ts.Cur.Chebyshev(target) <= reach {
			term = ts.Cur
			path = nil
			break
		}
		path = m.computePath(id, ts.Cur, target)
		path = truncateWithinReach(path, target, reach)
		term = target
		if len(path) > 0 {
			term = path[len(path)-1]
		}
	}

	m.startPath(id, ts, path, running, tick)
	return term, true
}

func (m *MovementManager) startPath(id ecs.EntityID, ts *TileState, path []Tile, running bool, tick int64) {
	if len(path) == 0 {
		// Already in position. A previous path, if any, is dropped.
		ts.Dest = nil
		ts.Path = nil
		ts.Running = running
		return
	}
	dest := path[len(path)-1]
	ts.Dest = &dest
	ts.Path = path
	ts.Running = running
	ts.NextStepTick = tick
	m.onPathStart(id, path, running)
}

// meleeTerminal picks the reach-1 terminal: the walkable cardinal neighbor
// of target closest to from, scanning west, east, south, north so ties
// resolve in that order. If every neighbor is blocked the target tile is
// returned and the path simply stops as close as it can.
func (m *MovementManager) meleeTerminal(id ecs.EntityID, from, target Tile) Tile {
	best := target
	bestDist := -1
	for _, n := range target.CardinalNeighbors() {
		if m.blocked(id, n) {
			continue
		}
		d := from.Chebyshev(n)
		if bestDist < 0 || d < bestDist {
			best, bestDist = n, d
		}
	}
	return best
}

// computePath walks greedily from from toward to. Each step must strictly
// reduce Chebyshev distance; preferred order is the diagonal step, then each
// single axis. When no candidate qualifies the path ends where progress
// stopped.
func (m *MovementManager) computePath(id ecs.EntityID, from, to Tile) []Tile {
	if from == to {
		return nil
	}
	path := make([]Tile, 0, pathCap(from.Chebyshev(to), maxPathLen))
	cur := from
	for cur != to && len(path) < maxPathLen {
		next, ok := m.nextStep(id, cur, to)
		if !ok {
			break
		}
		cur = next
		path = append(path, cur)
	}
	return path
}

func (m *MovementManager) nextStep(id ecs.EntityID, cur, to Tile) (Tile, bool) {
	direct := cur.StepToward(to)
	candidates := [3]Tile{
		direct,
		{X: direct.X, Z: cur.Z},
		{X: cur.X, Z: direct.Z},
	}
	want := cur.Chebyshev(to)
	for _, c := range candidates {
		if c == cur || c.Chebyshev(to) >= want {
			continue
		}
		if m.blocked(id, c) {
			continue
		}
		return c, true
	}
	return Tile{}, false
}

func truncateWithinReach(path []Tile, target Tile, reach int) []Tile {
	for i, t := range path {
		if t.Chebyshev(target) <= reach {
			return path[:i+1]
		}
	}
	return path
}

// Advance steps every moving entity: one tile walking, two running. Arrival
// clears the destination. Returns what moved this tick.
func (m *MovementManager) Advance(tick int64) []Step {
	var steps []Step
	m.tiles.Each(func(id ecs.EntityID, ts *TileState) {
		if ts.Dest == nil || len(ts.Path) == 0 || tick < ts.NextStepTick {
			return
		}
		n := 1
		if ts.Running {
			n = 2
		}
		from := ts.Cur
		for i := 0; i < n && len(ts.Path) > 0; i++ {
			ts.Cur = ts.Path[0]
			ts.Path = ts.Path[1:]
			ts.AgilityProgress++
		}
		arrived := len(ts.Path) == 0
		if arrived {
			ts.Dest = nil
			ts.Path = nil
		}
		steps = append(steps, Step{ID: id, From: from, To: ts.Cur, Arrived: arrived})
	})
	return steps
}

// Cancel drops any path in progress, keeping the entity where it stands.
// Reports whether movement was actually cancelled.
func (m *MovementManager) Cancel(id ecs.EntityID) bool {
	ts, ok := m.tiles.Get(id)
	if !ok || ts.Dest == nil {
		return false
	}
	ts.Dest = nil
	ts.Path = nil
	return true
}

// SyncPosition force-replaces an entity's tile after a teleport or respawn,
// dropping any stale path so the next move starts from the right place.
func (m *MovementManager) SyncPosition(id ecs.EntityID, t Tile) {
	ts, ok := m.tiles.Get(id)
	if !ok {
		m.Track(id, t)
		return
	}
	ts.Cur = t
	ts.Dest = nil
	ts.Path = nil
}

// Cleanup drops all movement state for an entity.
func (m *MovementManager) Cleanup(id ecs.EntityID) {
	m.tiles.Remove(id)
}

func (m *MovementManager) ResetAgilityProgress(id ecs.EntityID) {
	if ts, ok := m.tiles.Get(id); ok {
		ts.AgilityProgress = 0
	}
}

func (m *MovementManager) AgilityProgress(id ecs.EntityID) int {
	if ts, ok := m.tiles.Get(id); ok {
		return ts.AgilityProgress
	}
	return 0
}

func pathCap(a, b int) int {
	if a < b {
		return a
	}
	return b
}
