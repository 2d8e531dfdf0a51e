package ecs

// Removable is the cleanup hook every per-entity store implements. The world
// calls Remove for each destroyed entity, so a store registered once never
// leaks state for entities that left the world. Managers that key internal
// maps by entity id (action queues, pending intents, tile state) register
// themselves the same way.
type Removable interface {
	Remove(id EntityID)
}

// Store is a typed map store for per-entity state. Plain generics, no
// reflection.
type Store[T any] struct {
	data map[EntityID]*T
}

func NewStore[T any]() *Store[T] {
	return &Store[T]{data: make(map[EntityID]*T, 256)}
}

func (s *Store[T]) Set(id EntityID, v *T) { s.data[id] = v }

func (s *Store[T]) Get(id EntityID) (*T, bool) {
	v, ok := s.data[id]
	return v, ok
}

func (s *Store[T]) Has(id EntityID) bool {
	_, ok := s.data[id]
	return ok
}

func (s *Store[T]) Remove(id EntityID) { delete(s.data, id) }

func (s *Store[T]) Len() int { return len(s.data) }

func (s *Store[T]) Each(fn func(EntityID, *T)) {
	for id, v := range s.data {
		fn(id, v)
	}
}
