package world

import (
	"math/rand"
	"sort"

	"github.com/runegate/server/internal/core/ecs"
)

// PIDSlots is the PID value range [0, PIDSlots).
const PIDSlots = 2048

// PIDManager assigns each in-world player a processing-order rank. Low PID
// acts first when two players contend for the same tile or mob in one tick.
// Ranks reshuffle every 100 to 150 ticks from a seeded generator, so the
// schedule is fair over time yet fully reproducible given the seed and the
// join/leave sequence.
type PIDManager struct {
	rng      *rand.Rand
	assigned map[ecs.EntityID]int
	byPID    map[int]ecs.EntityID

	order      []ecs.EntityID
	orderDirty bool

	nextShuffle int64
}

func NewPIDManager(seed int64) *PIDManager {
	return &PIDManager{
		rng:      rand.New(rand.NewSource(seed)),
		assigned: make(map[ecs.EntityID]int),
		byPID:    make(map[int]ecs.EntityID),
	}
}

// Assign gives the player the lowest free PID. Re-assigning a player returns
// its existing PID. Returns -1 when all slots are taken.
func (m *PIDManager) Assign(playerID ecs.EntityID) int {
	if pid, ok := m.assigned[playerID]; ok {
		return pid
	}
	for pid := 0; pid < PIDSlots; pid++ {
		if _, taken := m.byPID[pid]; !taken {
			m.assigned[playerID] = pid
			m.byPID[pid] = playerID
			m.orderDirty = true
			return pid
		}
	}
	return -1
}

func (m *PIDManager) Release(playerID ecs.EntityID) {
	pid, ok := m.assigned[playerID]
	if !ok {
		return
	}
	delete(m.assigned, playerID)
	delete(m.byPID, pid)
	m.orderDirty = true
}

func (m *PIDManager) PID(playerID ecs.EntityID) (int, bool) {
	pid, ok := m.assigned[playerID]
	return pid, ok
}

// Order returns player ids sorted by ascending PID. The slice is reused
// between calls; callers must not retain it across ticks.
func (m *PIDManager) Order() []ecs.EntityID {
	if m.orderDirty {
		m.order = m.order[:0]
		pids := make([]int, 0, len(m.byPID))
		for pid := range m.byPID {
			pids = append(pids, pid)
		}
		sort.Ints(pids)
		for _, pid := range pids {
			m.order = append(m.order, m.byPID[pid])
		}
		m.orderDirty = false
	}
	return m.order
}

// MaybeReshuffle permutes all assigned PIDs when the reshuffle tick is due
// and schedules the next one 100 to 150 ticks out. Returns true when a
// reshuffle happened.
func (m *PIDManager) MaybeReshuffle(tick int64) bool {
	if m.nextShuffle == 0 {
		m.nextShuffle = tick + m.shuffleInterval()
		return false
	}
	if tick < m.nextShuffle {
		return false
	}
	m.nextShuffle = tick + m.shuffleInterval()
	if len(m.assigned) < 2 {
		return false
	}

	// Deterministic order in, shuffled pids out: walk players by current
	// PID and deal them a permutation of the same PID set.
	players := make([]ecs.EntityID, 0, len(m.assigned))
	pids := make([]int, 0, len(m.assigned))
	for _, id := range m.Order() {
		players = append(players, id)
		pids = append(pids, m.assigned[id])
	}
	m.rng.Shuffle(len(pids), func(i, j int) {
		pids[i], pids[j] = pids[j], pids[i]
	})
	for i, id := range players {
		m.assigned[id] = pids[i]
		m.byPID[pids[i]] = id
	}
	m.orderDirty = true
	return true
}

func (m *PIDManager) shuffleInterval() int64 {
	return 100 + int64(m.rng.Intn(51))
}
