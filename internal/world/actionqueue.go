package world

import "github.com/runegate/server/internal/core/ecs"

// Action is a deferred click outcome. Packet handlers never touch world
// state directly; they queue an Action and the queue replays it at the top
// of the next tick, after pending intents and duels have advanced.
type Action struct {
	Name string // source packet name, for logging
	Run  func()
}

// actionSlots is the per-player two-slot buffer: one movement action and one
// everything-else action. A later write in the same tick overwrites the
// earlier one of the same slot, so only the last click counts.
type actionSlots struct {
	movement *Action
	other    *Action
}

// ActionQueueManager owns the per-player slots. Game loop only.
type ActionQueueManager struct {
	queues map[ecs.EntityID]*actionSlots
}

func NewActionQueueManager() *ActionQueueManager {
	return &ActionQueueManager{queues: make(map[ecs.EntityID]*actionSlots)}
}

func (m *ActionQueueManager) slots(id ecs.EntityID) *actionSlots {
	q, ok := m.queues[id]
	if !ok {
		q = &actionSlots{}
		m.queues[id] = q
	}
	return q
}

// QueueMovement replaces the player's movement slot.
func (m *ActionQueueManager) QueueMovement(id ecs.EntityID, name string, run func()) {
	m.slots(id).movement = &Action{Name: name, Run: run}
}

// QueueAction replaces the player's non-movement slot.
func (m *ActionQueueManager) QueueAction(id ecs.EntityID, name string, run func()) {
	m.slots(id).other = &Action{Name: name, Run: run}
}

// Drain pops both slots. Movement first, then the non-movement action,
// matching the dispatch order of the tick.
func (m *ActionQueueManager) Drain(id ecs.EntityID) (movement, other *Action) {
	q, ok := m.queues[id]
	if !ok {
		return nil, nil
	}
	movement, other = q.movement, q.other
	q.movement, q.other = nil, nil
	return movement, other
}

// Pending reports whether either slot holds an action.
func (m *ActionQueueManager) Pending(id ecs.EntityID) bool {
	q, ok := m.queues[id]
	return ok && (q.movement != nil || q.other != nil)
}

// Clear drops both slots without running them. Used on teleport, respawn,
// and disconnect.
func (m *ActionQueueManager) Clear(id ecs.EntityID) {
	if q, ok := m.queues[id]; ok {
		q.movement, q.other = nil, nil
	}
}

// Remove implements ecs.Removable so destroyed entities drop their queue.
func (m *ActionQueueManager) Remove(id ecs.EntityID) {
	delete(m.queues, id)
}
