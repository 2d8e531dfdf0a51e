package ecs

// EntityID packs a 32-bit slot index in the low bits and a 32-bit generation
// in the high bits. Destroying a slot bumps its generation, so ids held by
// stale references (queued packets, old intents) stop resolving instead of
// pointing at whatever reused the slot.
type EntityID uint64

func MakeEntityID(index, generation uint32) EntityID {
	return EntityID(uint64(generation)<<32 | uint64(index))
}

func (id EntityID) Index() uint32      { return uint32(id) }
func (id EntityID) Generation() uint32 { return uint32(id >> 32) }
func (id EntityID) IsZero() bool       { return id == 0 }

// Pool hands out entity ids for everything that lives in the world: players,
// mobs, fires, ground items. Freed indices are recycled with a bumped
// generation. Index 0 is reserved so the zero EntityID never names a live
// entity.
type Pool struct {
	generations []uint32
	free        []uint32
	next        uint32
	live        int
}

func NewPool() *Pool {
	p := &Pool{
		generations: make([]uint32, 0, 1024),
		free:        make([]uint32, 0, 256),
	}
	p.generations = append(p.generations, 1)
	p.next = 1
	return p
}

func (p *Pool) Create() EntityID {
	p.live++
	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]
		return MakeEntityID(idx, p.generations[idx])
	}
	idx := p.next
	p.next++
	if int(idx) >= len(p.generations) {
		p.generations = append(p.generations, 0)
	}
	return MakeEntityID(idx, p.generations[idx])
}

func (p *Pool) Alive(id EntityID) bool {
	idx := id.Index()
	return idx < p.next && p.generations[idx] == id.Generation()
}

// Destroy releases the id's slot. Destroying an already-dead id is a no-op,
// so a disconnect racing a kill cannot free a slot twice.
func (p *Pool) Destroy(id EntityID) {
	idx := id.Index()
	if idx == 0 || idx >= p.next || p.generations[idx] != id.Generation() {
		return
	}
	p.generations[idx]++
	p.free = append(p.free, idx)
	p.live--
}

// Live reports how many ids are currently allocated.
func (p *Pool) Live() int { return p.live }
