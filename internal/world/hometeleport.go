package world

import (
	"sort"
	"time"

	"github.com/runegate/server/internal/core/ecs"
)

const (
	// HomeTeleportCastTicks is the channel time before the teleport lands,
	// about ten seconds.
	HomeTeleportCastTicks = 17

	// HomeTeleportCooldown is wall-clock, persisted on the character, so
	// relogging does not reset it.
	HomeTeleportCooldown = 15 * time.Minute
)

// HomeTeleportReady reports whether the cooldown has lapsed at the given
// wall-clock time. A zero timestamp means the spell was never used.
func HomeTeleportReady(p *Player, at time.Time) bool {
	return p.HomeCooldownAt.IsZero() || at.Sub(p.HomeCooldownAt) >= HomeTeleportCooldown
}

// HomeTeleportManager tracks who is mid-cast and when each cast lands.
// Combat and movement interrupts cancel casts; the teleport system owns the
// precondition checks and the landing. Game loop only.
type HomeTeleportManager struct {
	casting map[ecs.EntityID]int64 // player -> cast-end tick
}

func NewHomeTeleportManager() *HomeTeleportManager {
	return &HomeTeleportManager{casting: make(map[ecs.EntityID]int64)}
}

// Begin starts a cast and returns the tick it lands on. Already-casting
// players are left alone and get false.
func (m *HomeTeleportManager) Begin(id ecs.EntityID, now int64) (int64, bool) {
	if _, busy := m.casting[id]; busy {
		return 0, false
	}
	end := now + HomeTeleportCastTicks
	m.casting[id] = end
	return end, true
}

func (m *HomeTeleportManager) Casting(id ecs.EntityID) bool {
	_, ok := m.casting[id]
	return ok
}

// Cancel interrupts a cast; reports whether one was in progress.
func (m *HomeTeleportManager) Cancel(id ecs.EntityID) bool {
	if _, ok := m.casting[id]; !ok {
		return false
	}
	delete(m.casting, id)
	return true
}

// Due removes and returns every cast landing at or before now, ordered by
// entity id so completions replay deterministically.
func (m *HomeTeleportManager) Due(now int64) []ecs.EntityID {
	var out []ecs.EntityID
	for id, end := range m.casting {
		if end <= now {
			out = append(out, id)
			delete(m.casting, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Each visits every in-progress cast. The teleport system sweeps it for
// combat interrupts.
func (m *HomeTeleportManager) Each(fn func(id ecs.EntityID, endTick int64)) {
	for id, end := range m.casting {
		fn(id, end)
	}
}

func (m *HomeTeleportManager) Len() int { return len(m.casting) }

// Remove implements ecs.Removable.
func (m *HomeTeleportManager) Remove(id ecs.EntityID) {
	delete(m.casting, id)
}
