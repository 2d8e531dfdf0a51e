package world

import "github.com/runegate/server/internal/core/ecs"

// Fire is a player-lit cooking fire. Fires live in their own registry rather
// than the mob index because they expire on a timer and are looked up by
// tile (light-a-fire refusals) and by id (cooking source resolution). When a
// cooking source id exists both here and among range entities, the fire
// wins.
type Fire struct {
	ID          ecs.EntityID
	Tile        Tile
	OwnerID     ecs.EntityID
	CreatedTick int64
	ExpiresTick int64
}

type FireRegistry struct {
	fires  map[ecs.EntityID]*Fire
	byTile map[Tile]ecs.EntityID
}

func NewFireRegistry() *FireRegistry {
	return &FireRegistry{
		fires:  make(map[ecs.EntityID]*Fire),
		byTile: make(map[Tile]ecs.EntityID),
	}
}

func (r *FireRegistry) Add(f *Fire) {
	r.fires[f.ID] = f
	r.byTile[f.Tile] = f.ID
}

func (r *FireRegistry) Get(id ecs.EntityID) *Fire {
	return r.fires[id]
}

func (r *FireRegistry) At(t Tile) *Fire {
	id, ok := r.byTile[t]
	if !ok {
		return nil
	}
	return r.fires[id]
}

func (r *FireRegistry) Remove(id ecs.EntityID) *Fire {
	f, ok := r.fires[id]
	if !ok {
		return nil
	}
	delete(r.fires, id)
	if r.byTile[f.Tile] == id {
		delete(r.byTile, f.Tile)
	}
	return f
}

// ExpireBefore removes and returns every fire whose lifetime ended at or
// before tick.
func (r *FireRegistry) ExpireBefore(tick int64) []*Fire {
	var out []*Fire
	for id, f := range r.fires {
		if f.ExpiresTick <= tick {
			out = append(out, f)
			delete(r.fires, id)
			if r.byTile[f.Tile] == id {
				delete(r.byTile, f.Tile)
			}
		}
	}
	return out
}

func (r *FireRegistry) Len() int {
	return len(r.fires)
}
