package ecs

// World owns the id pool, the registered stores, and the deferred destroy
// queue. Systems mark entities during a tick; the cleanup pass at the end of
// the tick flushes the queue so no system ever observes a half-removed
// entity.
type World struct {
	pool    *Pool
	stores  []Removable
	pending []EntityID
	queued  map[EntityID]struct{}
}

func NewWorld() *World {
	return &World{
		pool:    NewPool(),
		stores:  make([]Removable, 0, 16),
		pending: make([]EntityID, 0, 64),
		queued:  make(map[EntityID]struct{}, 64),
	}
}

func (w *World) CreateEntity() EntityID { return w.pool.Create() }
func (w *World) Alive(id EntityID) bool { return w.pool.Alive(id) }
func (w *World) Live() int              { return w.pool.Live() }

// RegisterStore adds a store to the destroy fan-out.
func (w *World) RegisterStore(s Removable) {
	w.stores = append(w.stores, s)
}

// MarkForDestruction queues an entity for end-of-tick removal. Marking the
// same id twice in one tick collapses to a single removal.
func (w *World) MarkForDestruction(id EntityID) {
	if _, dup := w.queued[id]; dup || !w.pool.Alive(id) {
		return
	}
	w.queued[id] = struct{}{}
	w.pending = append(w.pending, id)
}

// FlushDestroyQueue removes queued entities from every registered store and
// releases their ids. Returns the number destroyed.
func (w *World) FlushDestroyQueue() int {
	n := len(w.pending)
	for _, id := range w.pending {
		for _, s := range w.stores {
			s.Remove(id)
		}
		w.pool.Destroy(id)
		delete(w.queued, id)
	}
	w.pending = w.pending[:0]
	return n
}
