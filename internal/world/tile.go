package world

import "math"

// Tile is a grid cell. The world is quantized to 1-unit tiles on the X/Z
// plane; Y comes from the terrain provider and never participates in
// pathing.
type Tile struct {
	X int `json:"x"`
	Z int `json:"z"`
}

// TileAt quantizes a world position to its containing tile.
func TileAt(x, z float64) Tile {
	return Tile{X: int(math.Floor(x + 0.5)), Z: int(math.Floor(z + 0.5))}
}

func (t Tile) WorldX() float64 { return float64(t.X) }
func (t Tile) WorldZ() float64 { return float64(t.Z) }

// Chebyshev is the king-move distance between two tiles.
func (t Tile) Chebyshev(o Tile) int {
	dx := absInt(t.X - o.X)
	dz := absInt(t.Z - o.Z)
	if dz > dx {
		return dz
	}
	return dx
}

// IsCardinalNeighbor reports whether o is one of the four orthogonal
// neighbors of t. Diagonals do not count.
func (t Tile) IsCardinalNeighbor(o Tile) bool {
	dx := absInt(t.X - o.X)
	dz := absInt(t.Z - o.Z)
	return dx+dz == 1
}

// CardinalNeighbors returns the four orthogonal neighbors in the fixed
// selection order west, east, south, north. Reach-1 melee terminal tiles are
// chosen by scanning this slice, so the order is part of the movement
// contract.
func (t Tile) CardinalNeighbors() [4]Tile {
	return [4]Tile{
		{X: t.X - 1, Z: t.Z}, // west
		{X: t.X + 1, Z: t.Z}, // east
		{X: t.X, Z: t.Z - 1}, // south
		{X: t.X, Z: t.Z + 1}, // north
	}
}

// StepToward returns the next tile on a straight greedy walk from t to dest:
// one step on each axis that still differs. t == dest returns t.
func (t Tile) StepToward(dest Tile) Tile {
	next := t
	if dest.X > t.X {
		next.X++
	} else if dest.X < t.X {
		next.X--
	}
	if dest.Z > t.Z {
		next.Z++
	} else if dest.Z < t.Z {
		next.Z--
	}
	return next
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
