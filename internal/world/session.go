package world

import "github.com/runegate/server/internal/core/ecs"

// SessionKind names an exclusive interaction surface. A player holds at
// most one open session; opening another closes the first.
type SessionKind string

const (
	SessionBank     SessionKind = "bank"
	SessionStore    SessionKind = "store"
	SessionDialogue SessionKind = "dialogue"
	SessionTrade    SessionKind = "trade"
	SessionDuel     SessionKind = "duel"
)

// SessionCloseCause tells the owning subsystem why its session went away.
type SessionCloseCause string

const (
	SessionClosed       SessionCloseCause = "closed"
	SessionReplaced     SessionCloseCause = "replaced"
	SessionDisconnected SessionCloseCause = "disconnect"
)

// InteractionSession marks a player as engaged with a UI surface, and with
// whom for the bilateral kinds. The heavy per-kind state (offers, stakes,
// dialogue position) lives with the owning subsystem; this record only
// enforces exclusivity.
type InteractionSession struct {
	PlayerID   ecs.EntityID
	Kind       SessionKind
	PeerID     ecs.EntityID // zero for bank, store, dialogue
	OpenedTick int64
}

// SessionCloseFunc observes every close so the owning subsystem can tear
// down its side (refund offers, end dialogue, send the close packet).
type SessionCloseFunc func(s *InteractionSession, cause SessionCloseCause)

// InteractionSessionManager owns the player → session map. Game loop only.
type InteractionSessionManager struct {
	sessions map[ecs.EntityID]*InteractionSession
	onClose  SessionCloseFunc
}

func NewInteractionSessionManager(onClose SessionCloseFunc) *InteractionSessionManager {
	if onClose == nil {
		onClose = func(*InteractionSession, SessionCloseCause) {}
	}
	return &InteractionSessionManager{
		sessions: make(map[ecs.EntityID]*InteractionSession),
		onClose:  onClose,
	}
}

// Open installs a session, closing any prior one first. Returns the new
// session.
func (m *InteractionSessionManager) Open(playerID ecs.EntityID, kind SessionKind, peerID ecs.EntityID, now int64) *InteractionSession {
	m.closeWith(playerID, SessionReplaced)
	s := &InteractionSession{PlayerID: playerID, Kind: kind, PeerID: peerID, OpenedTick: now}
	m.sessions[playerID] = s
	return s
}

func (m *InteractionSessionManager) Get(playerID ecs.EntityID) *InteractionSession {
	return m.sessions[playerID]
}

// HasActive is the busy check trade and duel use before engaging a peer.
func (m *InteractionSessionManager) HasActive(playerID ecs.EntityID) bool {
	_, ok := m.sessions[playerID]
	return ok
}

// Close ends the player's session, if any.
func (m *InteractionSessionManager) Close(playerID ecs.EntityID) bool {
	return m.closeWith(playerID, SessionClosed)
}

func (m *InteractionSessionManager) closeWith(playerID ecs.EntityID, cause SessionCloseCause) bool {
	s, ok := m.sessions[playerID]
	if !ok {
		return false
	}
	// Delete before the callback: subsystem teardown may close the peer,
	// and must not recurse into this record.
	delete(m.sessions, playerID)
	m.onClose(s, cause)
	return true
}

// Remove implements ecs.Removable. A destroyed player's session closes as a
// disconnect; bilateral subsystems close the peer from their teardown.
func (m *InteractionSessionManager) Remove(id ecs.EntityID) {
	m.closeWith(id, SessionDisconnected)
}
