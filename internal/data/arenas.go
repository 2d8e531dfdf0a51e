package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Arena is a duel arena definition: a rectangular bound on the tile grid and
// the two spawn tiles the duelists are teleported to for the countdown.
type Arena struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	MinX int `yaml:"min_x"`
	MinZ int `yaml:"min_z"`
	MaxX int `yaml:"max_x"`
	MaxZ int `yaml:"max_z"`

	SpawnAX int `yaml:"spawn_a_x"`
	SpawnAZ int `yaml:"spawn_a_z"`
	SpawnBX int `yaml:"spawn_b_x"`
	SpawnBZ int `yaml:"spawn_b_z"`
}

// Contains reports whether a tile lies inside the arena bounds (inclusive).
func (a *Arena) Contains(x, z int) bool {
	return x >= a.MinX && x <= a.MaxX && z >= a.MinZ && z <= a.MaxZ
}

type arenaTableFile struct {
	Arenas []Arena `yaml:"arenas"`
}

// ArenaTable rotates duels through the configured arenas.
type ArenaTable struct {
	arenas []*Arena
	byID   map[string]*Arena
	next   int
}

func NewArenaTable(arenas ...*Arena) *ArenaTable {
	t := &ArenaTable{byID: make(map[string]*Arena, len(arenas))}
	for _, a := range arenas {
		t.arenas = append(t.arenas, a)
		t.byID[a.ID] = a
	}
	return t
}

func LoadArenaTable(path string) (*ArenaTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read arena table: %w", err)
	}
	var f arenaTableFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse arena table: %w", err)
	}
	if len(f.Arenas) == 0 {
		return nil, fmt.Errorf("arena table %s: no arenas defined", path)
	}
	t := &ArenaTable{byID: make(map[string]*Arena, len(f.Arenas))}
	for i := range f.Arenas {
		a := &f.Arenas[i]
		if a.ID == "" {
			return nil, fmt.Errorf("arena table: entry %d has no id", i)
		}
		if _, dup := t.byID[a.ID]; dup {
			return nil, fmt.Errorf("arena table: duplicate id %q", a.ID)
		}
		t.arenas = append(t.arenas, a)
		t.byID[a.ID] = a
	}
	return t, nil
}

func (t *ArenaTable) Get(id string) *Arena {
	return t.byID[id]
}

// Next hands out arenas round-robin so concurrent duels spread out.
func (t *ArenaTable) Next() *Arena {
	if len(t.arenas) == 0 {
		return nil
	}
	a := t.arenas[t.next%len(t.arenas)]
	t.next++
	return a
}

func (t *ArenaTable) Count() int {
	return len(t.arenas)
}
