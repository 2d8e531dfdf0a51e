package world

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runegate/server/internal/core/ecs"
)

func TestHomeTeleportCastWindow(t *testing.T) {
	m := NewHomeTeleportManager()
	id := ecs.MakeEntityID(1, 0)

	end, ok := m.Begin(id, 100)
	require.True(t, ok)
	assert.Equal(t, int64(100+HomeTeleportCastTicks), end)
	assert.True(t, m.Casting(id))

	_, ok = m.Begin(id, 101)
	assert.False(t, ok, "already casting")

	assert.Empty(t, m.Due(end-1), "cast has not landed yet")
	due := m.Due(end)
	require.Equal(t, []ecs.EntityID{id}, due)
	assert.False(t, m.Casting(id), "landed casts leave the manager")
}

func TestHomeTeleportCancel(t *testing.T) {
	m := NewHomeTeleportManager()
	id := ecs.MakeEntityID(1, 0)

	assert.False(t, m.Cancel(id), "nothing to cancel")

	m.Begin(id, 10)
	assert.True(t, m.Cancel(id))
	assert.False(t, m.Casting(id))
	assert.Empty(t, m.Due(10+HomeTeleportCastTicks), "cancelled casts never land")
}

func TestHomeTeleportDueIsDeterministic(t *testing.T) {
	m := NewHomeTeleportManager()
	first := ecs.MakeEntityID(3, 0)
	second := ecs.MakeEntityID(7, 0)
	third := ecs.MakeEntityID(5, 0)

	m.Begin(second, 1)
	m.Begin(first, 1)
	m.Begin(third, 1)

	due := m.Due(1 + HomeTeleportCastTicks)
	assert.Equal(t, []ecs.EntityID{first, third, second}, due, "completions replay ordered by id")
}

func TestHomeTeleportCooldown(t *testing.T) {
	p := NewPlayer(ecs.MakeEntityID(1, 0), 1, 1, "Ada")
	now := time.Now()

	assert.True(t, HomeTeleportReady(p, now), "never used means no cooldown")

	p.HomeCooldownAt = now.Add(-time.Minute)
	assert.False(t, HomeTeleportReady(p, now))

	p.HomeCooldownAt = now.Add(-HomeTeleportCooldown)
	assert.True(t, HomeTeleportReady(p, now))
}

func TestHomeTeleportRemoveOnDisconnect(t *testing.T) {
	m := NewHomeTeleportManager()
	id := ecs.MakeEntityID(1, 0)

	m.Begin(id, 5)
	m.Remove(id)
	assert.False(t, m.Casting(id))
	assert.Equal(t, 0, m.Len())
}
