package handler

import "github.com/runegate/server/internal/world"

// SessionCloser builds the close observer for the session manager: every
// close, whatever triggered it, lets the owning subsystem tear down its side
// and tell the client. Bilateral kinds cascade to the peer through their
// cancel paths, which are idempotent.
func SessionCloser(d *Deps) world.SessionCloseFunc {
	return func(s *world.InteractionSession, cause world.SessionCloseCause) {
		disconnected := cause == world.SessionDisconnected
		switch s.Kind {
		case world.SessionBank:
			if !disconnected {
				d.Broadcast.SendToPlayer(s.PlayerID, "bankClose", struct{}{})
			}
		case world.SessionStore:
			if !disconnected {
				d.Broadcast.SendToPlayer(s.PlayerID, "storeClose", struct{}{})
			}
		case world.SessionDialogue:
			d.Dialogue.Remove(s.PlayerID)
			if !disconnected {
				d.Broadcast.SendToPlayer(s.PlayerID, "dialogueClose", struct{}{})
			}
		case world.SessionTrade:
			reason := "cancelled"
			if disconnected {
				reason = string(world.ReasonPlayerOffline)
			}
			cancelTrade(d, s.PlayerID, reason)
		case world.SessionDuel:
			// Mid-fight closes never cancel: the duel system owes the
			// opponent a grace window and a settlement.
			if duel := d.Duels.Get(s.PlayerID); duel != nil && duel.InFight() {
				return
			}
			reason := "cancelled"
			if disconnected {
				reason = string(world.ReasonPlayerOffline)
			}
			cancelDuel(d, s.PlayerID, reason)
		}
	}
}
