package net

import (
	"go.uber.org/zap"

	"github.com/runegate/server/internal/core/ecs"
)

// SubscriberFunc answers which sockets should see updates for an entity.
// The interest grid provides it; taking a function keeps this package out
// of the world import graph.
type SubscriberFunc func(entityID ecs.EntityID) []uint64

// BroadcastManager is the one place outbound packets are addressed. It owns
// the player-to-socket binding and buffers everything into per-socket
// output; Flush at the end of the tick hands the buffers to the write
// pumps. Game loop only.
type BroadcastManager struct {
	sockets     *SocketTable
	byPlayer    map[ecs.EntityID]uint64
	subscribers SubscriberFunc
	log         *zap.Logger
}

func NewBroadcastManager(sockets *SocketTable, subscribers SubscriberFunc, log *zap.Logger) *BroadcastManager {
	if subscribers == nil {
		subscribers = func(ecs.EntityID) []uint64 { return nil }
	}
	return &BroadcastManager{
		sockets:     sockets,
		byPlayer:    make(map[ecs.EntityID]uint64),
		subscribers: subscribers,
		log:         log,
	}
}

// Bind associates an in-world player with its owning socket.
func (b *BroadcastManager) Bind(playerID ecs.EntityID, socketID uint64) {
	b.byPlayer[playerID] = socketID
}

func (b *BroadcastManager) Unbind(playerID ecs.EntityID) {
	delete(b.byPlayer, playerID)
}

// PlayerSocket is the reverse lookup: the socket currently owning a player.
func (b *BroadcastManager) PlayerSocket(playerID ecs.EntityID) (uint64, bool) {
	id, ok := b.byPlayer[playerID]
	return id, ok
}

// SendToSocket buffers one packet for one socket.
func (b *BroadcastManager) SendToSocket(socketID uint64, name string, data any) bool {
	s := b.sockets.Get(socketID)
	if s == nil {
		return false
	}
	s.Send(name, data)
	return true
}

// SendToPlayer buffers one packet for the socket bound to a player.
func (b *BroadcastManager) SendToPlayer(playerID ecs.EntityID, name string, data any) bool {
	id, ok := b.byPlayer[playerID]
	if !ok {
		return false
	}
	return b.SendToSocket(id, name, data)
}

// SendToAll buffers a packet for every live socket, optionally skipping one
// (typically the sender). The frame is encoded once.
func (b *BroadcastManager) SendToAll(name string, data any, ignoreSocketID uint64) {
	buf, err := EncodeMessage(name, data)
	if err != nil {
		b.log.Error("encode broadcast", zap.String("packet", name), zap.Error(err))
		return
	}
	b.sockets.Each(func(s *Socket) {
		if s.ID == ignoreSocketID {
			return
		}
		s.SendRaw(buf)
	})
}

// SendToAOI buffers a packet for every subscriber of an entity's cell
// neighborhood.
func (b *BroadcastManager) SendToAOI(entityID ecs.EntityID, name string, data any, ignoreSocketID uint64) {
	subs := b.subscribers(entityID)
	if len(subs) == 0 {
		return
	}
	buf, err := EncodeMessage(name, data)
	if err != nil {
		b.log.Error("encode AOI broadcast", zap.String("packet", name), zap.Error(err))
		return
	}
	for _, socketID := range subs {
		if socketID == ignoreSocketID {
			continue
		}
		if s := b.sockets.Get(socketID); s != nil {
			s.SendRaw(buf)
		}
	}
}

// Flush drains every socket's buffered output to its write pump. Runs once
// per tick, last in POST.
func (b *BroadcastManager) Flush() {
	b.sockets.Each(func(s *Socket) {
		s.FlushOutput()
	})
}
