package world

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/runegate/server/internal/core/ecs"
)

// CanonicalName normalizes a display name for uniqueness checks and lookups:
// NFKC fold plus lowercase, so visually-identical names collide instead of
// coexisting.
func CanonicalName(name string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(name)))
}

// State tracks everything currently in-world: players with their lookup
// indexes, mobs, ground items, fires, the interest grid, and PID order.
// Accessed only from the game loop goroutine.
type State struct {
	players     map[ecs.EntityID]*Player
	byCharacter map[int64]ecs.EntityID
	byName      map[string]ecs.EntityID // canonical name
	bySocket    map[uint64]ecs.EntityID

	mobs map[ecs.EntityID]*Mob

	groundItems map[ecs.EntityID]*GroundItem

	resources map[ecs.EntityID]*ResourceNode

	Fires   *FireRegistry
	AOI     *AOIManager
	PIDs    *PIDManager
	Locks   *LockTable
	Terrain Terrain

	// Spawn is the respawn and home-teleport destination, loaded from the
	// config table at boot.
	Spawn Tile

	settings      map[string]string
	settingsDirty map[string]struct{}

	// changed collects entities whose visible state moved this tick; the
	// visibility pass drains it into entityModified broadcasts.
	changed map[ecs.EntityID]struct{}
}

func NewState(aoi *AOIManager, pids *PIDManager) *State {
	return &State{
		players:       make(map[ecs.EntityID]*Player),
		byCharacter:   make(map[int64]ecs.EntityID),
		byName:        make(map[string]ecs.EntityID),
		bySocket:      make(map[uint64]ecs.EntityID),
		mobs:          make(map[ecs.EntityID]*Mob),
		groundItems:   make(map[ecs.EntityID]*GroundItem),
		resources:     make(map[ecs.EntityID]*ResourceNode),
		Fires:         NewFireRegistry(),
		AOI:           aoi,
		PIDs:          pids,
		Locks:         NewLockTable(),
		Terrain:       FlatTerrain{},
		settings:      make(map[string]string),
		settingsDirty: make(map[string]struct{}),
		changed:       make(map[ecs.EntityID]struct{}),
	}
}

// --- players ---

func (s *State) AddPlayer(p *Player) {
	s.players[p.ID] = p
	s.byCharacter[p.CharacterID] = p.ID
	s.byName[CanonicalName(p.Name)] = p.ID
	s.bySocket[p.SocketID] = p.ID
	s.AOI.UpdateEntityPosition(p.ID, p.X, p.Z)
	s.PIDs.Assign(p.ID)
}

// RemovePlayer unindexes a player and clears its AOI presence and PID.
// Returns the removed record for the disconnect save.
func (s *State) RemovePlayer(id ecs.EntityID) *Player {
	p, ok := s.players[id]
	if !ok {
		return nil
	}
	delete(s.players, id)
	delete(s.byCharacter, p.CharacterID)
	delete(s.byName, CanonicalName(p.Name))
	delete(s.bySocket, p.SocketID)
	s.AOI.RemoveEntity(id)
	s.AOI.RemovePlayer(id)
	s.PIDs.Release(id)
	return p
}

func (s *State) Player(id ecs.EntityID) *Player {
	return s.players[id]
}

func (s *State) PlayerByCharacter(characterID int64) *Player {
	return s.players[s.byCharacter[characterID]]
}

func (s *State) PlayerByName(name string) *Player {
	return s.players[s.byName[CanonicalName(name)]]
}

func (s *State) PlayerBySocket(socketID uint64) *Player {
	return s.players[s.bySocket[socketID]]
}

func (s *State) EachPlayer(fn func(*Player)) {
	for _, p := range s.players {
		fn(p)
	}
}

func (s *State) PlayerCount() int {
	return len(s.players)
}

// --- mobs ---

func (s *State) AddMob(m *Mob) {
	s.mobs[m.ID] = m
	s.AOI.UpdateEntityPosition(m.ID, m.X, m.Z)
}

func (s *State) RemoveMob(id ecs.EntityID) *Mob {
	m, ok := s.mobs[id]
	if !ok {
		return nil
	}
	delete(s.mobs, id)
	s.AOI.RemoveEntity(id)
	return m
}

func (s *State) Mob(id ecs.EntityID) *Mob {
	return s.mobs[id]
}

func (s *State) EachMob(fn func(*Mob)) {
	for _, m := range s.mobs {
		fn(m)
	}
}

func (s *State) MobCount() int {
	return len(s.mobs)
}

// --- position ---

// MoveEntityTo writes an entity's authoritative position, clamps Y to the
// terrain, and keeps the interest grid current. Works for players and mobs.
func (s *State) MoveEntityTo(id ecs.EntityID, t Tile) {
	if p, ok := s.players[id]; ok {
		p.SetTile(t)
		p.Y = ClampY(s.Terrain, p.X, p.Z)
		p.Dirty = true
	} else if m, ok := s.mobs[id]; ok {
		m.SetTile(t)
		m.Y = ClampY(s.Terrain, m.X, m.Z)
	} else {
		return
	}
	s.AOI.UpdateEntityPosition(id, t.WorldX(), t.WorldZ())
	s.changed[id] = struct{}{}
}

// MarkChanged flags an entity for the next entityModified broadcast.
func (s *State) MarkChanged(id ecs.EntityID) {
	s.changed[id] = struct{}{}
}

// TakeChanged drains the changed set. The visibility pass calls it once per
// tick.
func (s *State) TakeChanged() []ecs.EntityID {
	if len(s.changed) == 0 {
		return nil
	}
	out := make([]ecs.EntityID, 0, len(s.changed))
	for id := range s.changed {
		out = append(out, id)
	}
	clear(s.changed)
	return out
}

// EntityTile resolves the tile of any live entity kind.
func (s *State) EntityTile(id ecs.EntityID) (Tile, bool) {
	if p, ok := s.players[id]; ok {
		return p.Tile(), true
	}
	if m, ok := s.mobs[id]; ok {
		return m.Tile(), true
	}
	if f := s.Fires.Get(id); f != nil {
		return f.Tile, true
	}
	if n, ok := s.resources[id]; ok {
		return n.Tile, true
	}
	if g, ok := s.groundItems[id]; ok {
		return g.Tile, true
	}
	return Tile{}, false
}

// TargetActive reports whether an entity is still a valid interaction
// target: players must be in-world and alive, mobs alive, fires unexpired,
// resource nodes not depleted.
func (s *State) TargetActive(id ecs.EntityID) bool {
	if p, ok := s.players[id]; ok {
		return !p.Dead
	}
	if m, ok := s.mobs[id]; ok {
		return m.Alive()
	}
	if s.Fires.Get(id) != nil {
		return true
	}
	if n, ok := s.resources[id]; ok {
		return n.Active()
	}
	_, ok := s.groundItems[id]
	return ok
}

// --- resource nodes ---

func (s *State) AddResource(n *ResourceNode) {
	s.resources[n.ID] = n
	s.AOI.UpdateEntityPosition(n.ID, n.Tile.WorldX(), n.Tile.WorldZ())
}

func (s *State) RemoveResource(id ecs.EntityID) *ResourceNode {
	n, ok := s.resources[id]
	if !ok {
		return nil
	}
	delete(s.resources, id)
	s.AOI.RemoveEntity(id)
	return n
}

func (s *State) Resource(id ecs.EntityID) *ResourceNode {
	return s.resources[id]
}

func (s *State) EachResource(fn func(*ResourceNode)) {
	for _, n := range s.resources {
		fn(n)
	}
}

// ResourceNear finds an active node of the given kind on or cardinally
// adjacent to a tile. Processing packets use it as their reach gate.
func (s *State) ResourceNear(t Tile, kind ResourceKind) *ResourceNode {
	for _, n := range s.resources {
		if n.Kind != kind || !n.Active() {
			continue
		}
		if n.Tile == t || t.IsCardinalNeighbor(n.Tile) {
			return n
		}
	}
	return nil
}

// --- ground items ---

func (s *State) AddGroundItem(g *GroundItem) {
	s.groundItems[g.ID] = g
	s.AOI.UpdateEntityPosition(g.ID, g.Tile.WorldX(), g.Tile.WorldZ())
}

func (s *State) RemoveGroundItem(id ecs.EntityID) *GroundItem {
	g, ok := s.groundItems[id]
	if !ok {
		return nil
	}
	delete(s.groundItems, id)
	s.AOI.RemoveEntity(id)
	return g
}

func (s *State) GroundItem(id ecs.EntityID) *GroundItem {
	return s.groundItems[id]
}

func (s *State) GroundItemsAt(t Tile) []*GroundItem {
	var out []*GroundItem
	for _, g := range s.groundItems {
		if g.Tile == t {
			out = append(out, g)
		}
	}
	return out
}

// ExpireGroundItems removes and returns items whose lifetime ended. The
// interest grid entry is left in place so the caller can announce the
// removal to subscribers before clearing it.
func (s *State) ExpireGroundItems(tick int64) []*GroundItem {
	var out []*GroundItem
	for id, g := range s.groundItems {
		if g.ExpiresTick > 0 && g.ExpiresTick <= tick {
			out = append(out, g)
			delete(s.groundItems, id)
		}
	}
	return out
}

// --- world settings (config table mirror) ---

func (s *State) Setting(key string) (string, bool) {
	v, ok := s.settings[key]
	return v, ok
}

// SetSetting stores a setting and marks it for the next persistence pass.
func (s *State) SetSetting(key, value string) {
	if old, ok := s.settings[key]; ok && old == value {
		return
	}
	s.settings[key] = value
	s.settingsDirty[key] = struct{}{}
}

// LoadSettings replaces the mirror at boot without marking anything dirty.
func (s *State) LoadSettings(values map[string]string) {
	s.settings = make(map[string]string, len(values))
	for k, v := range values {
		s.settings[k] = v
	}
	clear(s.settingsDirty)
}

// TakeDirtySettings returns and clears the changed-settings set.
func (s *State) TakeDirtySettings() map[string]string {
	if len(s.settingsDirty) == 0 {
		return nil
	}
	out := make(map[string]string, len(s.settingsDirty))
	for k := range s.settingsDirty {
		out[k] = s.settings[k]
	}
	clear(s.settingsDirty)
	return out
}
