package system

import (
	"go.uber.org/zap"

	"github.com/runegate/server/internal/core/ecs"
	"github.com/runegate/server/internal/core/event"
	coresys "github.com/runegate/server/internal/core/system"
	"github.com/runegate/server/internal/handler"
	"github.com/runegate/server/internal/world"
)

// DuelSystem drives the timed duel transitions: countdown ticks, the fight
// opening, and disconnect forfeits. It registers at INPUT ahead of the action
// queue so a fight that opens on this tick accepts this tick's attacks.
type DuelSystem struct {
	d *handler.Deps
}

func NewDuelSystem(d *handler.Deps) *DuelSystem {
	s := &DuelSystem{d: d}
	event.Subscribe(d.Bus, s.onPlayerReady)
	event.Subscribe(d.Bus, s.onPlayerDisconnected)
	return s
}

func (s *DuelSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *DuelSystem) Update(tick int64) {
	d := s.d
	type forfeit struct {
		winner, loser ecs.EntityID
	}
	var due []forfeit

	d.Duels.EachSession(func(sess *world.DuelSession) {
		switch sess.Stage {
		case world.DuelStageCountdown:
			remaining := sess.CountdownEndTick - tick
			if remaining > 0 {
				s.sendBoth(sess, "duelCountdownTick", map[string]any{
					"remaining": remaining,
				})
				return
			}
			sess.BeginFighting()
			s.sendBoth(sess, "duelFightStart", map[string]any{
				"arenaId": sess.Arena.ID,
			})
			d.Log.Info("duel fight opened",
				zap.String("arena", sess.Arena.ID),
				zap.Int64("challenger", sess.Challenger.CharacterID),
				zap.Int64("challenged", sess.Challenged.CharacterID))

		case world.DuelStageFighting:
			for _, side := range [2]*world.DuelSide{sess.Challenger, sess.Challenged} {
				if side.Disconnected && tick >= side.ForfeitAtTick {
					due = append(due, forfeit{
						winner: sess.Peer(side.PlayerID).PlayerID,
						loser:  side.PlayerID,
					})
					break
				}
			}
		}
	})

	// Resolutions mutate the session table, so they run after the sweep.
	for _, f := range due {
		handler.CompleteDuel(d, f.winner, f.loser, true)
	}
}

func (s *DuelSystem) sendBoth(sess *world.DuelSession, name string, data any) {
	s.d.Broadcast.SendToPlayer(sess.Challenger.PlayerID, name, data)
	s.d.Broadcast.SendToPlayer(sess.Challenged.PlayerID, name, data)
}

// onPlayerDisconnected tells the opponent a fighter dropped and how long the
// grace window runs. The connection sweep already started the forfeit clock;
// this fires one tick later, when the bus delivers.
func (s *DuelSystem) onPlayerDisconnected(ev event.PlayerDisconnected) {
	d := s.d
	sess := d.Duels.Get(ev.EntityID)
	if sess == nil || !sess.InFight() {
		return
	}
	side := sess.Side(ev.EntityID)
	if side == nil || !side.Disconnected {
		return
	}
	remaining := side.ForfeitAtTick - d.CurrentTick()
	if remaining < 0 {
		remaining = 0
	}
	d.Broadcast.SendToPlayer(sess.Peer(ev.EntityID).PlayerID, "duelOpponentDisconnected", map[string]any{
		"timeoutMs": remaining * d.Config.Game.TickRate.Milliseconds(),
	})
}

// onPlayerReady rebinds a returning fighter to their open duel: new entity
// id, grace window cleared, back on the arena spawn they started from.
func (s *DuelSystem) onPlayerReady(ev event.PlayerReady) {
	d := s.d
	p := d.World.Player(ev.EntityID)
	if p == nil {
		return
	}
	sess, side := d.Duels.FindByCharacter(p.CharacterID)
	if sess == nil || !side.Disconnected || !sess.InFight() {
		return
	}

	d.Duels.Rebind(side, p.ID)
	sess.MarkReconnected(p.ID)
	side.PartingSlots = nil
	d.Sessions.Open(p.ID, world.SessionDuel, sess.Peer(p.ID).PlayerID, d.CurrentTick())

	spawn := sess.Arena.SpawnB
	if side == sess.Challenger {
		spawn = sess.Arena.SpawnA
	}
	d.World.MoveEntityTo(p.ID, spawn)
	d.Movement.SyncPosition(p.ID, spawn)
	d.Broadcast.SendToPlayer(p.ID, "playerTeleport", map[string]any{
		"x": p.X, "y": p.Y, "z": p.Z,
	})
	if sess.Stage == world.DuelStageFighting {
		d.Broadcast.SendToPlayer(p.ID, "duelFightStart", map[string]any{
			"arenaId": sess.Arena.ID,
		})
	}
	d.Broadcast.SendToPlayer(sess.Peer(p.ID).PlayerID, "duelOpponentReconnected", struct{}{})
	d.Log.Info("duel fighter reconnected",
		zap.Int64("character", p.CharacterID),
		zap.String("arena", sess.Arena.ID))
}
