package net

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/runegate/server/internal/core/ecs"
)

// newLoopSocket builds a socket detached from any connection: Send, SendRaw
// and FlushOutput never touch the conn, which is all these tests exercise.
func newLoopSocket(id uint64) *Socket {
	return &Socket{
		ID:       id,
		In:       make(chan *Message, 8),
		OutQueue: make(chan []byte, 8),
		closeCh:  make(chan struct{}),
		log:      zap.NewNop(),
	}
}

func drain(s *Socket) []string {
	var out []string
	for {
		select {
		case buf := <-s.OutQueue:
			m, err := DecodeMessage(buf)
			if err != nil {
				out = append(out, "<bad frame>")
				continue
			}
			out = append(out, m.Name)
		default:
			return out
		}
	}
}

func TestBroadcastSendToAllSkipsIgnored(t *testing.T) {
	table := NewSocketTable()
	s1, s2, s3 := newLoopSocket(1), newLoopSocket(2), newLoopSocket(3)
	table.Add(s1)
	table.Add(s2)
	table.Add(s3)
	b := NewBroadcastManager(table, nil, zap.NewNop())

	b.SendToAll("worldTimeSync", map[string]int64{"tick": 99}, 2)
	b.Flush()

	assert.Equal(t, []string{"worldTimeSync"}, drain(s1))
	assert.Empty(t, drain(s2), "sender excluded")
	assert.Equal(t, []string{"worldTimeSync"}, drain(s3))
}

func TestBroadcastSendToAOIUsesSubscribers(t *testing.T) {
	table := NewSocketTable()
	s1, s2 := newLoopSocket(1), newLoopSocket(2)
	table.Add(s1)
	table.Add(s2)

	entity := ecs.MakeEntityID(5, 0)
	b := NewBroadcastManager(table, func(id ecs.EntityID) []uint64 {
		if id == entity {
			return []uint64{1, 2, 777} // 777 has no live socket
		}
		return nil
	}, zap.NewNop())

	b.SendToAOI(entity, "entityModified", map[string]any{"id": 5}, 0)
	b.Flush()

	assert.Equal(t, []string{"entityModified"}, drain(s1))
	assert.Equal(t, []string{"entityModified"}, drain(s2))

	b.SendToAOI(ecs.MakeEntityID(6, 0), "entityModified", nil, 0)
	b.Flush()
	assert.Empty(t, drain(s1), "entities with no subscribers reach nobody")
}

func TestBroadcastPlayerBinding(t *testing.T) {
	table := NewSocketTable()
	sock := newLoopSocket(9)
	table.Add(sock)
	b := NewBroadcastManager(table, nil, zap.NewNop())

	player := ecs.MakeEntityID(3, 0)
	_, bound := b.PlayerSocket(player)
	require.False(t, bound)

	b.Bind(player, 9)
	id, bound := b.PlayerSocket(player)
	require.True(t, bound)
	assert.Equal(t, uint64(9), id)

	assert.True(t, b.SendToPlayer(player, "showToast", map[string]string{"text": "hi"}))
	b.Flush()
	assert.Equal(t, []string{"showToast"}, drain(sock))

	b.Unbind(player)
	assert.False(t, b.SendToPlayer(player, "showToast", nil))
}

func TestSendBuffersUntilFlush(t *testing.T) {
	table := NewSocketTable()
	sock := newLoopSocket(1)
	table.Add(sock)
	b := NewBroadcastManager(table, nil, zap.NewNop())

	require.True(t, b.SendToSocket(1, "tileMovementStart", map[string]any{"path": []int{1, 2}}))
	assert.Empty(t, drain(sock), "nothing hits the queue before the tick flush")

	b.Flush()
	assert.Equal(t, []string{"tileMovementStart"}, drain(sock))
}
