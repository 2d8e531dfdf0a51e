package world

import (
	"encoding/json"
	"time"

	"github.com/runegate/server/internal/core/ecs"
)

// Player is the in-world record for a connected character. Owned by the game
// loop goroutine; cross-references to other entities are ids, never
// pointers. The owning socket is carried as SocketID — at most one live
// socket owns a player.
type Player struct {
	ID          ecs.EntityID
	CharacterID int64 // users.id, the persistence key
	SocketID    uint64
	Name        string
	Roles       []string

	X, Y, Z float64
	Facing  float64 // radians, client-side animation only
	Emote   string  // current animation name, broadcast via entityModified

	IsLoading bool // true from enterWorld until clientReady
	Dead      bool

	HP    int
	MaxHP int

	Skills map[string]int64 // skill name -> xp

	// Combat posture.
	SelectedSpell     string
	Autocast          string
	AttackStyle       string
	AutoRetaliate     bool
	InCombatUntilTick int64
	LastAttacker      ecs.EntityID

	// Active prayers by name. Duel prayer bans force this empty.
	Prayers map[string]bool

	// Home teleport: zero value means never used, cooldown free.
	HomeCooldownAt time.Time

	// Processing rate limit (smelt/smith/craft/fletch/tan/runecraft).
	LastProcessingAt time.Time

	Inventory *Inventory
	Equipment *Equipment

	// Bank mirror, loaded lazily on first bank open.
	Bank *Bank

	// CoinPouch is carried money outside the inventory grid.
	CoinPouch int64

	// Social state, loaded with the character.
	Friends        map[int64]string // character id -> name
	Ignored        map[int64]string
	PendingFriends map[int64]string // incoming requests awaiting response

	// Client-managed hotbar layout, persisted opaquely.
	ActionBars json.RawMessage

	// Dirty marks persisted state changed since the last save; the periodic
	// save system only writes dirty players.
	Dirty bool
}

func NewPlayer(id ecs.EntityID, characterID int64, socketID uint64, name string) *Player {
	return &Player{
		ID:             id,
		CharacterID:    characterID,
		SocketID:       socketID,
		Name:           name,
		HP:             10,
		MaxHP:          10,
		Skills:         make(map[string]int64),
		Prayers:        make(map[string]bool),
		Inventory:      NewInventory(),
		Equipment:      NewEquipment(),
		Bank:           NewBank(),
		Friends:        make(map[int64]string),
		Ignored:        make(map[int64]string),
		PendingFriends: make(map[int64]string),
		IsLoading:      true,
	}
}

func (p *Player) Tile() Tile {
	return TileAt(p.X, p.Z)
}

func (p *Player) SetTile(t Tile) {
	p.X = t.WorldX()
	p.Z = t.WorldZ()
}

func (p *Player) InCombat(tick int64) bool {
	return tick < p.InCombatUntilTick
}

func (p *Player) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AddXP accumulates skill experience and marks the player dirty.
func (p *Player) AddXP(skill string, amount int64) {
	if amount <= 0 {
		return
	}
	p.Skills[skill] += amount
	p.Dirty = true
}
