package event

import "github.com/runegate/server/internal/core/ecs"

// Notification events carried on the bus. Systems emit these; the event
// bridge turns most of them into packets scoped to the right sockets.

type PlayerReady struct {
	EntityID ecs.EntityID
	SocketID uint64
}

type PlayerDisconnected struct {
	EntityID    ecs.EntityID
	SocketID    uint64
	CharacterID int64
}

// InventoryChanged marks a player's inventory mirror dirty; the bridge sends
// the full inventory snapshot (the client treats it as a replace).
type InventoryChanged struct {
	PlayerID ecs.EntityID
}

type EquipmentChanged struct {
	PlayerID ecs.EntityID
}

type StatsChanged struct {
	PlayerID ecs.EntityID
}

type DamageDealt struct {
	Attacker ecs.EntityID
	Target   ecs.EntityID
	Amount   int
	Hitsplat string
}

type EntityDied struct {
	EntityID ecs.EntityID
	Killer   ecs.EntityID
	Cause    string
}

type ChatSaid struct {
	Speaker ecs.EntityID
	Name    string
	Text    string
	Color   string
}

// UIMessage is a one-line game message for a single player ("Nothing
// interesting happens.", trade notifications, error toasts).
type UIMessage struct {
	PlayerID ecs.EntityID
	Text     string
	Kind     string
}

type XPGained struct {
	PlayerID ecs.EntityID
	Skill    string
	Amount   int
	// NewLevel is set only when the gain crossed a level boundary.
	NewLevel int
}
