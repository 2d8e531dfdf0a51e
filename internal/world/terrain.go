package world

// Terrain supplies ground height. The real provider lives outside the core;
// the server only ever samples it to clamp entity Y on writes.
type Terrain interface {
	HeightAt(x, z float64) float64
}

// TerrainEpsilon lifts entities slightly above the sampled ground so clients
// never z-fight the terrain mesh.
const TerrainEpsilon = 0.05

// FlatTerrain is the zero-height fallback used until a provider is wired and
// by tests.
type FlatTerrain struct{}

func (FlatTerrain) HeightAt(x, z float64) float64 { return 0 }

// ClampY returns the server-authoritative Y for a position.
func ClampY(t Terrain, x, z float64) float64 {
	return t.HeightAt(x, z) + TerrainEpsilon
}
