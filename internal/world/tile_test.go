package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTileChebyshev(t *testing.T) {
	tests := []struct {
		name string
		a, b Tile
		want int
	}{
		{"same tile", Tile{5, 5}, Tile{5, 5}, 0},
		{"cardinal", Tile{5, 5}, Tile{5, 8}, 3},
		{"diagonal", Tile{0, 0}, Tile{3, 3}, 3},
		{"mixed", Tile{2, 1}, Tile{-1, 3}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Chebyshev(tt.b))
			assert.Equal(t, tt.want, tt.b.Chebyshev(tt.a))
		})
	}
}

func TestCardinalNeighborsOrder(t *testing.T) {
	n := Tile{X: 10, Z: 20}.CardinalNeighbors()
	assert.Equal(t, Tile{9, 20}, n[0], "west first")
	assert.Equal(t, Tile{11, 20}, n[1], "then east")
	assert.Equal(t, Tile{10, 19}, n[2], "then south")
	assert.Equal(t, Tile{10, 21}, n[3], "then north")
}

func TestIsCardinalNeighbor(t *testing.T) {
	c := Tile{0, 0}
	assert.True(t, c.IsCardinalNeighbor(Tile{1, 0}))
	assert.True(t, c.IsCardinalNeighbor(Tile{0, -1}))
	assert.False(t, c.IsCardinalNeighbor(Tile{1, 1}), "diagonals are not cardinal")
	assert.False(t, c.IsCardinalNeighbor(Tile{0, 0}))
	assert.False(t, c.IsCardinalNeighbor(Tile{2, 0}))
}

func TestStepToward(t *testing.T) {
	assert.Equal(t, Tile{1, 1}, Tile{0, 0}.StepToward(Tile{3, 5}))
	assert.Equal(t, Tile{-1, 0}, Tile{0, 0}.StepToward(Tile{-4, 0}))
	assert.Equal(t, Tile{2, 2}, Tile{2, 2}.StepToward(Tile{2, 2}))
}

func TestTileAtQuantizes(t *testing.T) {
	assert.Equal(t, Tile{3, 4}, TileAt(3.2, 4.4))
	assert.Equal(t, Tile{4, 4}, TileAt(3.6, 4.49))
	assert.Equal(t, Tile{-2, 0}, TileAt(-1.7, 0.1))
}
