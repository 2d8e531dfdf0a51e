package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runegate/server/internal/core/ecs"
)

type sessionClose struct {
	kind  SessionKind
	cause SessionCloseCause
}

func newTestSessions(t *testing.T) (*InteractionSessionManager, *[]sessionClose) {
	t.Helper()
	var closes []sessionClose
	m := NewInteractionSessionManager(func(s *InteractionSession, cause SessionCloseCause) {
		closes = append(closes, sessionClose{kind: s.Kind, cause: cause})
	})
	return m, &closes
}

func TestSessionOpenClosesPrior(t *testing.T) {
	m, closes := newTestSessions(t)
	player := ecs.MakeEntityID(1, 0)
	peer := ecs.MakeEntityID(2, 0)

	m.Open(player, SessionBank, 0, 10)
	require.True(t, m.HasActive(player))

	s := m.Open(player, SessionTrade, peer, 12)
	assert.Equal(t, SessionTrade, s.Kind)
	assert.Equal(t, peer, s.PeerID)

	require.Len(t, *closes, 1, "opening a second surface closes the first")
	assert.Equal(t, SessionBank, (*closes)[0].kind)
	assert.Equal(t, SessionReplaced, (*closes)[0].cause)
	assert.Equal(t, SessionTrade, m.Get(player).Kind)
}

func TestSessionExplicitClose(t *testing.T) {
	m, closes := newTestSessions(t)
	player := ecs.MakeEntityID(1, 0)

	assert.False(t, m.Close(player), "closing nothing is a no-op")

	m.Open(player, SessionStore, 0, 5)
	require.True(t, m.Close(player))
	assert.False(t, m.HasActive(player))
	require.Len(t, *closes, 1)
	assert.Equal(t, SessionClosed, (*closes)[0].cause)
}

func TestSessionRemoveIsDisconnect(t *testing.T) {
	m, closes := newTestSessions(t)
	player := ecs.MakeEntityID(1, 0)

	m.Open(player, SessionDuel, ecs.MakeEntityID(2, 0), 5)
	m.Remove(player)

	assert.False(t, m.HasActive(player))
	require.Len(t, *closes, 1)
	assert.Equal(t, SessionDisconnected, (*closes)[0].cause)
}

func TestSessionCloseCallbackMayOpenPeerTeardown(t *testing.T) {
	// Trade teardown closes the peer from inside the close callback; the
	// manager must already have forgotten the first session so this does
	// not recurse forever.
	var m *InteractionSessionManager
	a := ecs.MakeEntityID(1, 0)
	b := ecs.MakeEntityID(2, 0)
	m = NewInteractionSessionManager(func(s *InteractionSession, _ SessionCloseCause) {
		if s.PeerID != 0 {
			m.Close(s.PeerID)
		}
	})

	m.Open(a, SessionTrade, b, 1)
	m.Open(b, SessionTrade, a, 1)

	m.Close(a)
	assert.False(t, m.HasActive(a))
	assert.False(t, m.HasActive(b), "peer teardown cascades exactly once")
}
