package handler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/runegate/server/internal/core/ecs"
	"github.com/runegate/server/internal/net"
	"github.com/runegate/server/internal/persist"
	"github.com/runegate/server/internal/world"
)

// exchangeTimeout bounds a detached swap or settlement including its retry
// ladder (inner deadlock retries plus outer transient retries).
const exchangeTimeout = 30 * time.Second

// maxOfferQuantity is the per-line cap; larger requests are malformed and
// dropped.
const maxOfferQuantity = 10_000

type tradeSlotRequest struct {
	Slot     int   `json:"slot"`
	Quantity int32 `json:"quantity"`
}

type tradeOfferLine struct {
	TradeSlot     int    `json:"tradeSlot"`
	InventorySlot int    `json:"inventorySlot"`
	ItemID        string `json:"itemId"`
	Name          string `json:"name"`
	Quantity      int32  `json:"quantity"`
}

func offerLines(d *Deps, side *world.TradeSide) []tradeOfferLine {
	out := make([]tradeOfferLine, 0, len(side.Offers))
	for i, o := range side.Offers {
		name := o.ItemID
		if item := d.Catalog.Get(o.ItemID); item != nil {
			name = item.Name
		}
		out = append(out, tradeOfferLine{
			TradeSlot:     i,
			InventorySlot: o.InvSlot,
			ItemID:        o.ItemID,
			Name:          name,
			Quantity:      o.Quantity,
		})
	}
	return out
}

// sendTradeState rebroadcasts the full session to both screens.
func sendTradeState(d *Deps, s *world.TradeSession, packet string) {
	sides := [2]*world.TradeSide{s.Initiator, s.Recipient}
	for i, side := range sides {
		peer := sides[1-i]
		d.Broadcast.SendToPlayer(side.PlayerID, packet, map[string]any{
			"stage":        string(s.Stage),
			"yourOffer":    offerLines(d, side),
			"theirOffer":   offerLines(d, peer),
			"youAccepted":  side.Accepted,
			"theyAccepted": peer.Accepted,
		})
	}
}

// cancelTrade ends the session for both sides and tells them why. Safe to
// call from the session closer and from handlers: the second caller finds the
// session already gone and no-ops.
func cancelTrade(d *Deps, playerID ecs.EntityID, reason string) {
	s := d.Trades.End(playerID)
	if s == nil {
		return
	}
	for _, side := range [2]*world.TradeSide{s.Initiator, s.Recipient} {
		if sess := d.Sessions.Get(side.PlayerID); sess != nil && sess.Kind == world.SessionTrade {
			d.Sessions.Close(side.PlayerID)
		}
		d.Broadcast.SendToPlayer(side.PlayerID, "tradeCancelled", map[string]any{"reason": reason})
	}
}

// tradeSession gates offer mutations: the caller must be alive, in a trade
// session, and not mid-transaction.
func tradeSession(d *Deps, socketID uint64) (*world.Player, *world.TradeSession) {
	p := readyPlayer(d, socketID)
	if p == nil || p.Dead {
		return nil, nil
	}
	s := d.Trades.Get(p.ID)
	sess := d.Sessions.Get(p.ID)
	if s == nil || sess == nil || sess.Kind != world.SessionTrade {
		if p != nil {
			TradeError(d, p.ID, world.ReasonNotInTrade)
		}
		return nil, nil
	}
	if d.World.Locks.Locked(p.ID) {
		return nil, nil
	}
	return p, s
}

func handleTradeRequest(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req entityTarget
	if !decode(d, "tradeRequest", data, &req) {
		return
	}
	targetID := ecs.EntityID(req.EntityID)
	d.Actions.QueueAction(p.ID, "tradeRequest", func() {
		if p.Dead || targetID == p.ID {
			return
		}
		target := d.World.Player(targetID)
		if target == nil || target.Dead || target.IsLoading {
			TradeError(d, p.ID, world.ReasonPlayerOffline)
			return
		}
		if d.Sessions.HasActive(p.ID) {
			TradeError(d, p.ID, world.ReasonInterfaceOpen)
			return
		}
		if d.Sessions.HasActive(targetID) {
			TradeError(d, p.ID, world.ReasonPlayerBusy)
			return
		}
		d.Skilling.StopWork(p.ID)
		d.Intents.CancelAll(p.ID)
		now := d.CurrentTick()
		d.Intents.Queue(world.IntentTrade, &world.PendingIntent{
			PlayerID:       p.ID,
			TargetID:       targetID,
			LastTargetTile: target.Tile(),
			Reach:          1,
			Arrive: func(in *world.PendingIntent) {
				deliverTradeRequest(d, p, targetID)
			},
		}, now)
		d.Movement.MovePlayerToward(p.ID, target.Tile(), d.Movement.IsRunning(p.ID), 1, "", now)
	})
}

// deliverTradeRequest fires once the requester is beside the target:
// re-validate, record the invitation, and notify.
func deliverTradeRequest(d *Deps, p *world.Player, targetID ecs.EntityID) {
	target := d.World.Player(targetID)
	if p.Dead || target == nil || target.Dead {
		return
	}
	if d.Sessions.HasActive(p.ID) {
		TradeError(d, p.ID, world.ReasonInterfaceOpen)
		return
	}
	if d.Sessions.HasActive(targetID) {
		TradeError(d, p.ID, world.ReasonPlayerBusy)
		return
	}
	d.Trades.Request(p.ID, targetID, d.CurrentTick())
	d.Broadcast.SendToPlayer(targetID, "chatAdded", map[string]any{
		"name":   "",
		"text":   p.Name + " wishes to trade with you.",
		"color":  "pink",
		"system": true,
	})
	d.Broadcast.SendToPlayer(targetID, "tradeIncoming", map[string]any{
		"fromId":   uint64(p.ID),
		"fromName": p.Name,
	})
	SystemChat(d, p.ID, "Sending trade offer...")
}

func handleTradeRequestRespond(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil || p.Dead {
		return
	}
	var req struct {
		EntityID uint64 `json:"entityId"`
		Accept   bool   `json:"accept"`
	}
	if !decode(d, "tradeRequestRespond", data, &req) {
		return
	}
	fromID := ecs.EntityID(req.EntityID)
	if !d.Trades.TakeRequest(p.ID, fromID, d.CurrentTick()) {
		TradeError(d, p.ID, world.ReasonNotInTrade)
		return
	}
	from := d.World.Player(fromID)
	if !req.Accept {
		if from != nil {
			SystemChat(d, fromID, p.Name+" declined the trade.")
		}
		return
	}
	if from == nil || from.Dead {
		TradeError(d, p.ID, world.ReasonPlayerOffline)
		return
	}
	if d.Sessions.HasActive(p.ID) || d.Sessions.HasActive(fromID) {
		TradeError(d, p.ID, world.ReasonPlayerBusy)
		return
	}
	now := d.CurrentTick()
	s := d.Trades.Begin(fromID, p.ID, now)
	d.Sessions.Open(fromID, world.SessionTrade, p.ID, now)
	d.Sessions.Open(p.ID, world.SessionTrade, fromID, now)
	d.Broadcast.SendToPlayer(fromID, "tradeStarted", map[string]any{
		"peerId":   uint64(p.ID),
		"peerName": p.Name,
	})
	d.Broadcast.SendToPlayer(p.ID, "tradeStarted", map[string]any{
		"peerId":   uint64(fromID),
		"peerName": from.Name,
	})
	sendTradeState(d, s, "tradeUpdated")
}

func handleTradeAddItem(d *Deps, socketID uint64, data json.RawMessage) {
	p, s := tradeSession(d, socketID)
	if p == nil {
		return
	}
	var req tradeSlotRequest
	if !decode(d, "tradeAddItem", data, &req) {
		return
	}
	if req.Quantity <= 0 || req.Quantity > maxOfferQuantity {
		return
	}
	stack := p.Inventory.Get(req.Slot)
	if stack == nil {
		return
	}
	if !d.Catalog.Tradeable(stack.ItemID) {
		Toast(d, p.ID, "You can't trade that.")
		return
	}
	qty := min(req.Quantity, stack.Quantity)
	if s.AddItem(p.ID, req.Slot, stack.ItemID, qty) {
		sendTradeState(d, s, "tradeUpdated")
	}
}

func handleTradeRemoveItem(d *Deps, socketID uint64, data json.RawMessage) {
	p, s := tradeSession(d, socketID)
	if p == nil {
		return
	}
	var req tradeSlotRequest
	if !decode(d, "tradeRemoveItem", data, &req) {
		return
	}
	if s.RemoveItem(p.ID, req.Slot) {
		sendTradeState(d, s, "tradeUpdated")
	}
}

func handleTradeSetItemQuantity(d *Deps, socketID uint64, data json.RawMessage) {
	p, s := tradeSession(d, socketID)
	if p == nil {
		return
	}
	var req tradeSlotRequest
	if !decode(d, "tradeSetItemQuantity", data, &req) {
		return
	}
	if req.Quantity > maxOfferQuantity {
		return
	}
	qty := req.Quantity
	if stack := p.Inventory.Get(req.Slot); stack != nil && qty > stack.Quantity {
		qty = stack.Quantity
	}
	if s.SetQuantity(p.ID, req.Slot, qty) {
		sendTradeState(d, s, "tradeUpdated")
	}
}

func handleTradeAccept(d *Deps, socketID uint64, _ json.RawMessage) {
	p, s := tradeSession(d, socketID)
	if p == nil {
		return
	}
	both, ok := s.Accept(p.ID)
	if !ok {
		return
	}
	if !both {
		sendTradeState(d, s, "tradeUpdated")
		return
	}
	switch s.Stage {
	case world.TradeStageOffer:
		s.AdvanceToConfirm()
		sendTradeState(d, s, "tradeConfirmScreen")
	case world.TradeStageConfirming:
		runTradeSwap(d, s)
	}
}

func handleTradeCancelAccept(d *Deps, socketID uint64, _ json.RawMessage) {
	p, s := tradeSession(d, socketID)
	if p == nil {
		return
	}
	if side := s.Side(p.ID); side != nil && side.Accepted {
		side.Accepted = false
		sendTradeState(d, s, "tradeUpdated")
	}
}

func handleTradeCancel(d *Deps, socketID uint64, _ json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	if d.World.Locks.Locked(p.ID) {
		return
	}
	cancelTrade(d, p.ID, "cancelled")
}

// runTradeSwap hands both snapshots to the exchange on a detached goroutine.
// The transaction locks are held from here until the completion task runs;
// every inventory-mutating handler refuses while they are.
func runTradeSwap(d *Deps, s *world.TradeSession) {
	a := d.World.Player(s.Initiator.PlayerID)
	b := d.World.Player(s.Recipient.PlayerID)
	if a == nil || b == nil {
		cancelTrade(d, s.Initiator.PlayerID, string(world.ReasonPlayerOffline))
		return
	}
	if !d.World.Locks.LockPair(a.ID, b.ID) {
		cancelTrade(d, a.ID, string(world.ReasonServerError))
		return
	}
	initiator := persist.TradeParty{
		UserID: a.CharacterID,
		Offers: append([]world.ItemOffer(nil), s.Initiator.Offers...),
		Slots:  a.Inventory.Snapshot(),
	}
	recipient := persist.TradeParty{
		UserID: b.CharacterID,
		Offers: append([]world.ItemOffer(nil), s.Recipient.Offers...),
		Slots:  b.Inventory.Snapshot(),
	}
	aID, bID := a.ID, b.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), exchangeTimeout)
		defer cancel()
		result, err := d.Exchange.ExecuteTradeSwap(ctx, initiator, recipient)
		d.Tasks.Post(func() {
			finishTradeSwap(d, aID, bID, initiator, recipient, result, err)
		})
	}()
}

func finishTradeSwap(d *Deps, aID, bID ecs.EntityID, initiator, recipient persist.TradeParty, result *persist.SwapResult, err error) {
	defer d.World.Locks.UnlockPair(aID, bID)
	a := d.World.Player(aID)
	b := d.World.Player(bID)

	if err != nil {
		if errors.Is(err, persist.ErrMirrorReload) {
			// The swap committed but the read-back failed: the mirrors are
			// stale and must never flush. Force a reconnect instead.
			d.Log.Error("trade swap mirror reload failed",
				zap.Int64("initiator", initiator.UserID),
				zap.Int64("recipient", recipient.UserID),
				zap.Error(err))
			for _, p := range []*world.Player{a, b} {
				if p != nil {
					dropStaleMirror(d, p)
				}
			}
			return
		}
		d.Log.Warn("trade swap failed",
			zap.Int64("initiator", initiator.UserID),
			zap.Int64("recipient", recipient.UserID),
			zap.Error(err))
		cancelTrade(d, aID, persist.CancelReason(err))
		return
	}

	d.Trades.End(aID)
	for _, id := range [2]ecs.EntityID{aID, bID} {
		if sess := d.Sessions.Get(id); sess != nil && sess.Kind == world.SessionTrade {
			d.Sessions.Close(id)
		}
	}
	if a != nil {
		a.Inventory.Replace(result.InitiatorSlots)
		d.Broadcast.SendToPlayer(aID, "tradeCompleted", map[string]any{
			"received": offerPayload(d, recipient.Offers),
		})
		SendInventory(d, a)
	}
	if b != nil {
		b.Inventory.Replace(result.RecipientSlots)
		d.Broadcast.SendToPlayer(bID, "tradeCompleted", map[string]any{
			"received": offerPayload(d, initiator.Offers),
		})
		SendInventory(d, b)
	}
}

func offerPayload(d *Deps, offers []world.ItemOffer) []map[string]any {
	out := make([]map[string]any, 0, len(offers))
	for _, o := range offers {
		name := o.ItemID
		if item := d.Catalog.Get(o.ItemID); item != nil {
			name = item.Name
		}
		out = append(out, map[string]any{
			"itemId":   o.ItemID,
			"name":     name,
			"quantity": o.Quantity,
		})
	}
	return out
}

// dropStaleMirror removes a player whose in-memory inventory can no longer be
// trusted, without saving. The committed rows are the authority; the client
// reconnects into them.
func dropStaleMirror(d *Deps, p *world.Player) {
	if sock := d.Sockets.Get(p.SocketID); sock != nil {
		sock.CloseWithCode(net.CloseKicked, "resync required")
	}
	d.Broadcast.SendToAOI(p.ID, "entityRemoved", map[string]any{"id": uint64(p.ID)}, p.SocketID)
	d.Broadcast.Unbind(p.ID)
	d.World.RemovePlayer(p.ID)
	d.Ecs.MarkForDestruction(p.ID)
}
