package system

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/runegate/server/internal/core/event"
	coresys "github.com/runegate/server/internal/core/system"
	"github.com/runegate/server/internal/handler"
	"github.com/runegate/server/internal/net"
	"github.com/runegate/server/internal/net/packet"
	"github.com/runegate/server/internal/world"
)

const authTimeout = 10 * time.Second

// InputSystem is the edge of the loop: it adopts sockets the listener
// accepted, sweeps sockets whose pumps died, and feeds inbound packets to the
// registry. It registers last in INPUT so queued actions from the previous
// tick replay before this tick's packets queue new ones.
type InputSystem struct {
	d      *handler.Deps
	server *net.Server
	reg    *packet.Registry
}

func NewInputSystem(d *handler.Deps, server *net.Server, reg *packet.Registry) *InputSystem {
	return &InputSystem{d: d, server: server, reg: reg}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(tick int64) {
	s.acceptNew()
	s.sweepClosed(tick)
	s.readPackets()
	// Replies queued by handlers leave this tick, not after POST.
	s.d.Broadcast.Flush()
}

// acceptNew adopts every socket the listener handed over since last tick and
// starts credential checks off-loop.
func (s *InputSystem) acceptNew() {
	for {
		select {
		case sock := <-s.server.NewSockets():
			s.d.Sockets.Add(sock)
			s.d.Log.Info("socket connected",
				zap.Uint64("socket", sock.ID),
				zap.String("name", sock.AuthName),
				zap.String("ip", sock.IP))
			go s.authenticate(sock)
		default:
			return
		}
	}
}

// authenticate verifies the account credentials against the oldest character
// row; a fresh account has no row and passes, its token becomes the password
// hash at character create. Runs detached; results re-enter through the task
// queue.
func (s *InputSystem) authenticate(sock *net.Socket) {
	d := s.d
	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()

	accountID := world.CanonicalName(sock.AuthName)
	refuse := func(code int, reason string) {
		d.Tasks.Post(func() { sock.CloseWithCode(code, reason) })
	}

	ban, err := d.Users.ActiveBanForAccount(ctx, accountID)
	if err != nil {
		d.Log.Error("ban lookup", zap.String("account", accountID), zap.Error(err))
		refuse(net.CloseKicked, "server_error")
		return
	}
	if ban != nil {
		d.Log.Warn("banned account refused",
			zap.String("account", accountID),
			zap.String("reason", ban.Reason))
		refuse(net.CloseBanned, "banned")
		return
	}

	row, err := d.Users.FirstByAccount(ctx, accountID)
	if err != nil {
		d.Log.Error("account lookup", zap.String("account", accountID), zap.Error(err))
		refuse(net.CloseKicked, "server_error")
		return
	}
	if row != nil && !d.Users.ValidatePassword(row.PasswordHash, sock.AuthToken) {
		d.Log.Warn("bad credentials", zap.String("account", accountID))
		refuse(net.CloseKicked, "invalid_credentials")
		return
	}

	d.Tasks.Post(func() {
		if sock.IsClosed() {
			return
		}
		sock.AccountID = accountID
		sock.SetStage(packet.StageCharSelect)
		sock.Send("authenticated", map[string]any{
			"account": accountID,
			"name":    sock.AuthName,
		})
		handler.SendCharacterList(d, sock)
		d.Log.Info("socket authenticated",
			zap.Uint64("socket", sock.ID),
			zap.String("account", accountID))
	})
}

// sweepClosed reaps sockets whose pumps exited since last tick and tears
// down any player they carried.
func (s *InputSystem) sweepClosed(tick int64) {
	var closed []*net.Socket
	s.d.Sockets.Each(func(sock *net.Socket) {
		if sock.IsClosed() {
			closed = append(closed, sock)
		}
	})
	for _, sock := range closed {
		s.dropSocket(sock, tick)
	}
}

func (s *InputSystem) dropSocket(sock *net.Socket, tick int64) {
	d := s.d
	d.Sockets.Remove(sock.ID)

	p := d.World.PlayerBySocket(sock.ID)
	if p == nil {
		d.Log.Info("socket closed", zap.Uint64("socket", sock.ID))
		return
	}

	// A fighter who drops mid-duel keeps the session alive for the grace
	// window; settlement reads the parting snapshot if they never return.
	if sess := d.Duels.Get(p.ID); sess != nil && sess.InFight() {
		side := sess.Side(p.ID)
		side.PartingSlots = p.Inventory.Snapshot()
		forfeitAt := sess.MarkDisconnected(p.ID, tick)
		d.Log.Info("duel fighter disconnected",
			zap.Int64("character", p.CharacterID),
			zap.Int64("forfeitAtTick", forfeitAt))
	}

	event.Emit(d.Bus, event.PlayerDisconnected{
		EntityID:    p.ID,
		SocketID:    sock.ID,
		CharacterID: p.CharacterID,
	})

	d.Combat.Disengage(p.ID)
	d.Broadcast.SendToAOI(p.ID, "entityRemoved", map[string]any{"id": uint64(p.ID)}, sock.ID)
	d.Broadcast.Unbind(p.ID)
	d.World.RemovePlayer(p.ID)
	d.Ecs.MarkForDestruction(p.ID)

	s.saveOnDisconnect(p)
	d.Log.Info("player disconnected",
		zap.String("name", p.Name),
		zap.Int64("character", p.CharacterID),
		zap.Uint64("socket", sock.ID))
}

// saveOnDisconnect flushes the leaver's state from an on-loop snapshot. The
// capture skips economy rows while a transaction lock holds them.
func (s *InputSystem) saveOnDisconnect(p *world.Player) {
	d := s.d
	save := capturePlayerSave(d, p)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		writePlayerSave(ctx, d, save)
	}()
}

// readPackets drains each socket's inbound queue, bounded per tick so one
// client cannot monopolize the loop.
func (s *InputSystem) readPackets() {
	d := s.d
	limit := d.Config.Network.MaxPacketsPerTick
	d.Sockets.Each(func(sock *net.Socket) {
		for n := 0; n < limit; n++ {
			select {
			case msg := <-sock.In:
				if msg == nil {
					return
				}
				if err := s.reg.Dispatch(sock.ID, sock.Stage(), msg.Name, msg.Data); err != nil {
					d.Log.Debug("packet rejected",
						zap.Uint64("socket", sock.ID),
						zap.String("packet", msg.Name),
						zap.Error(err))
				}
			default:
				return
			}
		}
	})
}
