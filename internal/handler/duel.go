package handler

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/runegate/server/internal/core/ecs"
	"github.com/runegate/server/internal/core/event"
	"github.com/runegate/server/internal/persist"
	"github.com/runegate/server/internal/world"
)

func stakeLines(d *Deps, side *world.DuelSide) []tradeOfferLine {
	out := make([]tradeOfferLine, 0, len(side.Stakes))
	for i, o := range side.Stakes {
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

// sendDuelState rebroadcasts the negotiation to both screens.
func sendDuelState(d *Deps, s *world.DuelSession, packet string) {
	sides := [2]*world.DuelSide{s.Challenger, s.Challenged}
	for i, side := range sides {
		peer := sides[1-i]
		d.Broadcast.SendToPlayer(side.PlayerID, packet, map[string]any{
			"stage":        string(s.Stage),
			"rules":        s.Rules,
			"yourStakes":   stakeLines(d, side),
			"theirStakes":  stakeLines(d, peer),
			"youAccepted":  side.Accepted,
			"theyAccepted": peer.Accepted,
		})
	}
}

// duelSession gates negotiation packets: alive, in a duel session, no
// transaction in flight.
func duelSession(d *Deps, socketID uint64) (*world.Player, *world.DuelSession) {
	p := readyPlayer(d, socketID)
	if p == nil || p.Dead {
		return nil, nil
	}
	s := d.Duels.Get(p.ID)
	sess := d.Sessions.Get(p.ID)
	if s == nil || sess == nil || sess.Kind != world.SessionDuel {
		return nil, nil
	}
	if d.World.Locks.Locked(p.ID) {
		return nil, nil
	}
	return p, s
}

// cancelDuel tears the session down for both sides pre-settlement. Fighters
// already teleported to the arena go back where they stood.
func cancelDuel(d *Deps, playerID ecs.EntityID, reason string) {
	s := d.Duels.End(playerID)
	if s == nil {
		return
	}
	inFight := s.InFight()
	for _, side := range [2]*world.DuelSide{s.Challenger, s.Challenged} {
		if sess := d.Sessions.Get(side.PlayerID); sess != nil && sess.Kind == world.SessionDuel {
			d.Sessions.Close(side.PlayerID)
		}
		if p := d.World.Player(side.PlayerID); p != nil {
			if inFight && !p.Dead {
				teleportPlayer(d, p, side.ReturnTile)
			}
			d.Broadcast.SendToPlayer(p.ID, "duelCancelled", map[string]any{"reason": reason})
		}
	}
}

func handleDuelChallenge(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil {
		return
	}
	var req entityTarget
	if !decode(d, "duel:challenge", data, &req) {
		return
	}
	targetID := ecs.EntityID(req.EntityID)
	d.Actions.QueueAction(p.ID, "duel:challenge", func() {
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
		d.Intents.Queue(world.IntentDuelChallenge, &world.PendingIntent{
			PlayerID:       p.ID,
			TargetID:       targetID,
			LastTargetTile: target.Tile(),
			Reach:          1,
			Arrive: func(in *world.PendingIntent) {
				deliverDuelChallenge(d, p, targetID)
			},
		}, now)
		d.Movement.MovePlayerToward(p.ID, target.Tile(), d.Movement.IsRunning(p.ID), 1, "", now)
	})
}

func deliverDuelChallenge(d *Deps, p *world.Player, targetID ecs.EntityID) {
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
	d.Duels.Challenge(p.ID, targetID, d.CurrentTick())
	d.Broadcast.SendToPlayer(targetID, "chatAdded", map[string]any{
		"name":   "",
		"text":   p.Name + " wishes to duel with you.",
		"color":  "pink",
		"system": true,
	})
	d.Broadcast.SendToPlayer(targetID, "duelIncoming", map[string]any{
		"fromId":   uint64(p.ID),
		"fromName": p.Name,
	})
	SystemChat(d, p.ID, "Sending duel challenge...")
}

func handleDuelRespond(d *Deps, socketID uint64, data json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil || p.Dead {
		return
	}
	var req struct {
		EntityID uint64 `json:"entityId"`
		Accept   bool   `json:"accept"`
	}
	if !decode(d, "duel:respond", data, &req) {
		return
	}
	fromID := ecs.EntityID(req.EntityID)
	if !d.Duels.TakeChallenge(p.ID, fromID, d.CurrentTick()) {
		TradeError(d, p.ID, world.ReasonNotInTrade)
		return
	}
	from := d.World.Player(fromID)
	if !req.Accept {
		if from != nil {
			SystemChat(d, fromID, p.Name+" declined the duel.")
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
	s := d.Duels.Begin(fromID, p.ID, now)
	s.Challenger.CharacterID = from.CharacterID
	s.Challenged.CharacterID = p.CharacterID
	d.Sessions.Open(fromID, world.SessionDuel, p.ID, now)
	d.Sessions.Open(p.ID, world.SessionDuel, fromID, now)
	d.Broadcast.SendToPlayer(fromID, "duelStarted", map[string]any{
		"peerId":   uint64(p.ID),
		"peerName": p.Name,
	})
	d.Broadcast.SendToPlayer(p.ID, "duelStarted", map[string]any{
		"peerId":   uint64(fromID),
		"peerName": from.Name,
	})
	sendDuelState(d, s, "duelUpdated")
}

func handleDuelToggleRule(d *Deps, socketID uint64, data json.RawMessage) {
	p, s := duelSession(d, socketID)
	if p == nil {
		return
	}
	var req struct {
		Rule    string `json:"rule"`
		Enabled bool   `json:"enabled"`
	}
	if !decode(d, "duel:toggle:rule", data, &req) {
		return
	}
	if s.ToggleRule(req.Rule, req.Enabled) {
		sendDuelState(d, s, "duelUpdated")
	}
}

func handleDuelToggleEquipment(d *Deps, socketID uint64, data json.RawMessage) {
	p, s := duelSession(d, socketID)
	if p == nil {
		return
	}
	var req struct {
		Slot   string `json:"slot"`
		Banned bool   `json:"banned"`
	}
	if !decode(d, "duel:toggle:equipment", data, &req) {
		return
	}
	if _, ok := world.EquipSlotFromName(req.Slot); !ok {
		return
	}
	if s.ToggleSlotBan(req.Slot, req.Banned) {
		sendDuelState(d, s, "duelUpdated")
	}
}

func handleDuelAcceptRules(d *Deps, socketID uint64, _ json.RawMessage) {
	p, s := duelSession(d, socketID)
	if p == nil || s.Stage != world.DuelStageRules {
		return
	}
	both, ok := s.Accept(p.ID)
	if !ok {
		return
	}
	if both {
		s.AdvanceStage()
	}
	sendDuelState(d, s, "duelUpdated")
}

func handleDuelAddStake(d *Deps, socketID uint64, data json.RawMessage) {
	p, s := duelSession(d, socketID)
	if p == nil {
		return
	}
	var req tradeSlotRequest
	if !decode(d, "duel:add:stake", data, &req) {
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
		Toast(d, p.ID, "You can't stake that.")
		return
	}
	qty := min(req.Quantity, stack.Quantity)
	if s.AddStake(p.ID, req.Slot, stack.ItemID, qty) {
		sendDuelState(d, s, "duelUpdated")
	}
}

func handleDuelRemoveStake(d *Deps, socketID uint64, data json.RawMessage) {
	p, s := duelSession(d, socketID)
	if p == nil {
		return
	}
	var req tradeSlotRequest
	if !decode(d, "duel:remove:stake", data, &req) {
		return
	}
	if s.RemoveStake(p.ID, req.Slot) {
		sendDuelState(d, s, "duelUpdated")
	}
}

func handleDuelAcceptStakes(d *Deps, socketID uint64, _ json.RawMessage) {
	p, s := duelSession(d, socketID)
	if p == nil || s.Stage != world.DuelStageStakes {
		return
	}
	both, ok := s.Accept(p.ID)
	if !ok {
		return
	}
	if both {
		s.AdvanceStage()
		sendDuelState(d, s, "duelConfirmScreen")
		return
	}
	sendDuelState(d, s, "duelUpdated")
}

func handleDuelAcceptFinal(d *Deps, socketID uint64, _ json.RawMessage) {
	p, s := duelSession(d, socketID)
	if p == nil || s.Stage != world.DuelStageFinalConfirm {
		return
	}
	both, ok := s.Accept(p.ID)
	if !ok {
		return
	}
	if both {
		startDuelFight(d, s)
		return
	}
	sendDuelState(d, s, "duelConfirmScreen")
}

func handleDuelCancel(d *Deps, socketID uint64, _ json.RawMessage) {
	p, s := duelSession(d, socketID)
	if p == nil {
		return
	}
	if s.InFight() {
		return
	}
	cancelDuel(d, p.ID, "cancelled")
}

// handleDuelForfeit skips the session-record gate: forfeit must work even
// if another surface replaced the duel's session entry mid-fight.
func handleDuelForfeit(d *Deps, socketID uint64, _ json.RawMessage) {
	p := readyPlayer(d, socketID)
	if p == nil || p.Dead || d.World.Locks.Locked(p.ID) {
		return
	}
	s := d.Duels.Get(p.ID)
	if s == nil || s.Stage != world.DuelStageFighting {
		return
	}
	peer := s.Peer(p.ID)
	if peer == nil {
		return
	}
	CompleteDuel(d, peer.PlayerID, p.ID, true)
}

// bannedGearFits reports whether every banned slot's gear can come off into
// the inventory.
func bannedGearFits(p *world.Player, banned map[string]bool) bool {
	need := 0
	for name := range banned {
		if slot, ok := world.EquipSlotFromName(name); ok && p.Equipment.Get(slot) != nil {
			need++
		}
	}
	return need <= p.Inventory.FreeSlots()
}

func unequipBanned(d *Deps, p *world.Player, banned map[string]bool) {
	moved := false
	for name := range banned {
		slot, ok := world.EquipSlotFromName(name)
		if !ok {
			continue
		}
		stack := p.Equipment.Get(slot)
		if stack == nil {
			continue
		}
		free := p.Inventory.FirstFree()
		if free < 0 {
			continue
		}
		p.Inventory.Set(free, stack)
		p.Equipment.Clear(slot)
		moved = true
	}
	if moved {
		p.Dirty = true
		d.World.MarkChanged(p.ID)
		event.Emit(d.Bus, event.InventoryChanged{PlayerID: p.ID})
		event.Emit(d.Bus, event.EquipmentChanged{PlayerID: p.ID})
	}
}

// startDuelFight runs when both sides accept the final confirmation: banned
// gear comes off, an arena is assigned, both fighters are teleported in, and
// the countdown arms. The countdown-to-fighting flip happens at the start of
// a later tick, before the action queue drains.
func startDuelFight(d *Deps, s *world.DuelSession) {
	a := d.World.Player(s.Challenger.PlayerID)
	b := d.World.Player(s.Challenged.PlayerID)
	if a == nil || b == nil {
		cancelDuel(d, s.Challenger.PlayerID, string(world.ReasonPlayerOffline))
		return
	}
	if !bannedGearFits(a, s.Rules.BannedSlots) || !bannedGearFits(b, s.Rules.BannedSlots) {
		s.Challenger.Accepted = false
		s.Challenged.Accepted = false
		for _, p := range [2]*world.Player{a, b} {
			Toast(d, p.ID, "Someone needs more inventory space for the banned equipment.")
		}
		sendDuelState(d, s, "duelConfirmScreen")
		return
	}
	arena := d.Arenas.Next()
	if arena == nil {
		cancelDuel(d, a.ID, string(world.ReasonServerError))
		return
	}

	bounds := &world.DuelArena{
		ID:   arena.ID,
		MinX: arena.MinX, MinZ: arena.MinZ,
		MaxX: arena.MaxX, MaxZ: arena.MaxZ,
		SpawnA: world.Tile{X: arena.SpawnAX, Z: arena.SpawnAZ},
		SpawnB: world.Tile{X: arena.SpawnBX, Z: arena.SpawnBZ},
	}
	now := d.CurrentTick()
	s.BeginCountdown(bounds, a.Tile(), b.Tile(), now)

	unequipBanned(d, a, s.Rules.BannedSlots)
	unequipBanned(d, b, s.Rules.BannedSlots)

	spawns := [2]world.Tile{bounds.SpawnA, bounds.SpawnB}
	for i, p := range [2]*world.Player{a, b} {
		d.Skilling.StopWork(p.ID)
		d.Intents.CancelAll(p.ID)
		d.Actions.Clear(p.ID)
		d.Movement.Cancel(p.ID)
		d.Combat.Disengage(p.ID)
		if d.HomeTeleport.Cancel(p.ID) {
			d.Broadcast.SendToPlayer(p.ID, "homeTeleportFailed", map[string]any{
				"reason": world.TeleportInterruptMovement,
			})
		}
		if s.Rules.NoPrayer && len(p.Prayers) > 0 {
			clear(p.Prayers)
			SendStats(d, p)
		}
		teleportPlayer(d, p, spawns[i])
		d.Broadcast.SendToPlayer(p.ID, "duelCountdownStart", map[string]any{
			"arenaId": arena.ID,
			"ticks":   world.DuelCountdownTicks,
			"endTick": s.CountdownEndTick,
		})
	}
	d.Log.Info("duel countdown started",
		zap.String("arena", arena.ID),
		zap.Int64("challenger", s.Challenger.CharacterID),
		zap.Int64("challenged", s.Challenged.CharacterID))
}

func teleportPlayer(d *Deps, p *world.Player, t world.Tile) {
	d.World.MoveEntityTo(p.ID, t)
	d.Movement.SyncPosition(p.ID, t)
	d.Broadcast.SendToPlayer(p.ID, "playerTeleport", map[string]any{
		"x": p.X, "y": p.Y, "z": p.Z,
	})
}

func stakeValue(d *Deps, offers []world.ItemOffer) int64 {
	var total int64
	for _, o := range offers {
		total += int64(d.Catalog.Value(o.ItemID)) * int64(o.Quantity)
	}
	return total
}

// CompleteDuel resolves a fight: teleports survivors out, announces the
// result, and hands the loser's stakes to the exchange. The duel system calls
// it for deaths and forfeit timeouts; the forfeit packet calls it directly.
// Idempotent: the second resolution of the same duel finds no session.
func CompleteDuel(d *Deps, winnerID, loserID ecs.EntityID, forfeit bool) {
	s := d.Duels.End(winnerID)
	if s == nil {
		return
	}
	winSide, loseSide := s.Side(winnerID), s.Side(loserID)
	if winSide == nil || loseSide == nil {
		return
	}
	winner := d.World.Player(winnerID)
	loser := d.World.Player(loserID)

	for _, id := range [2]ecs.EntityID{winnerID, loserID} {
		if sess := d.Sessions.Get(id); sess != nil && sess.Kind == world.SessionDuel {
			d.Sessions.Close(id)
		}
	}
	d.Combat.Disengage(winnerID)
	d.Combat.Disengage(loserID)
	if winner != nil && !winner.Dead {
		teleportPlayer(d, winner, winSide.ReturnTile)
	}
	if loser != nil && !loser.Dead {
		teleportPlayer(d, loser, loseSide.ReturnTile)
	}

	stakes := append([]world.ItemOffer(nil), loseSide.Stakes...)
	won := stakeValue(d, stakes)
	if winner != nil {
		d.Broadcast.SendToPlayer(winnerID, "duelCompleted", map[string]any{
			"won":            true,
			"forfeit":        forfeit,
			"itemsReceived":  offerPayload(d, stakes),
			"itemsLost":      []map[string]any{},
			"totalValueWon":  won,
			"totalValueLost": int64(0),
		})
	}
	if loser != nil {
		d.Broadcast.SendToPlayer(loserID, "duelCompleted", map[string]any{
			"won":            false,
			"forfeit":        forfeit,
			"itemsReceived":  []map[string]any{},
			"itemsLost":      offerPayload(d, stakes),
			"totalValueWon":  int64(0),
			"totalValueLost": won,
		})
	}
	if len(stakes) == 0 {
		return
	}
	runStakeSettlement(d, winSide, loseSide, winner, loser, stakes)
}

// runStakeSettlement snapshots both fighters and hands the transfer to the
// exchange. Fighters who left mid-fight settle from their parting snapshot;
// everything else mirrors the trade swap flow.
func runStakeSettlement(d *Deps, winSide, loseSide *world.DuelSide, winner, loser *world.Player, stakes []world.ItemOffer) {
	winnerParty := persist.StakeParty{UserID: winSide.CharacterID}
	loserParty := persist.StakeParty{UserID: loseSide.CharacterID}

	switch {
	case winner != nil:
		winnerParty.Slots = winner.Inventory.Snapshot()
		if winner.Bank.Loaded {
			winnerParty.Bank = winner.Bank.Clone()
		}
	case winSide.PartingSlots != nil:
		winnerParty.Slots = winSide.PartingSlots
	default:
		d.Log.Error("stake settlement skipped, no winner snapshot",
			zap.Int64("winner", winSide.CharacterID))
		return
	}
	switch {
	case loser != nil:
		loserParty.Slots = loser.Inventory.Snapshot()
	case loseSide.PartingSlots != nil:
		loserParty.Slots = loseSide.PartingSlots
	default:
		d.Log.Error("stake settlement skipped, no loser snapshot",
			zap.Int64("loser", loseSide.CharacterID))
		return
	}

	if !d.World.Locks.LockPair(winSide.PlayerID, loseSide.PlayerID) {
		d.Log.Error("stake settlement refused, transaction lock held",
			zap.Int64("winner", winSide.CharacterID),
			zap.Int64("loser", loseSide.CharacterID))
		if winner != nil {
			Toast(d, winner.ID, "The stake transfer failed. Nothing has moved.")
		}
		return
	}
	winEID, loseEID := winSide.PlayerID, loseSide.PlayerID
	winCID, loseCID := winSide.CharacterID, loseSide.CharacterID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), exchangeTimeout)
		defer cancel()
		result, err := d.Exchange.SettleStakes(ctx, winnerParty, loserParty, stakes)
		d.Tasks.Post(func() {
			finishStakeSettlement(d, winEID, loseEID, winCID, loseCID, result, err)
		})
	}()
}

func finishStakeSettlement(d *Deps, winEID, loseEID ecs.EntityID, winCID, loseCID int64, result *persist.SettlementResult, err error) {
	defer d.World.Locks.UnlockPair(winEID, loseEID)
	// Character lookup: a fighter may have reconnected under a new entity id
	// while the settlement ran.
	winner := d.World.PlayerByCharacter(winCID)
	loser := d.World.PlayerByCharacter(loseCID)

	if err != nil {
		if errors.Is(err, persist.ErrMirrorReload) {
			d.Log.Error("stake settlement mirror reload failed",
				zap.Int64("winner", winCID),
				zap.Int64("loser", loseCID),
				zap.Error(err))
			for _, p := range []*world.Player{winner, loser} {
				if p != nil {
					dropStaleMirror(d, p)
				}
			}
			return
		}
		d.Log.Error("stake settlement failed, stakes stay with loser",
			zap.Int64("winner", winCID),
			zap.Int64("loser", loseCID),
			zap.Error(err))
		for _, p := range []*world.Player{winner, loser} {
			if p != nil {
				Toast(d, p.ID, "The stake transfer failed. Staked items have not moved.")
			}
		}
		return
	}
	if result.Suppressed {
		return
	}
	if winner != nil {
		winner.Inventory.Replace(result.WinnerSlots)
		if result.WinnerBank != nil {
			result.WinnerBank.AlwaysPlaceholder = winner.Bank.AlwaysPlaceholder
			winner.Bank = result.WinnerBank
		}
		SendInventory(d, winner)
		if len(result.SkippedOverflow) > 0 || len(result.Dropped) > 0 {
			Toast(d, winner.ID, "Some staked items could not be carried.")
		}
	}
	if loser != nil {
		loser.Inventory.Replace(result.LoserSlots)
		SendInventory(d, loser)
	}
}
