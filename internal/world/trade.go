package world

import "github.com/runegate/server/internal/core/ecs"

// TradeStage is the two-screen ladder: offers are built on the offer
// screen, then both sides re-confirm a frozen summary before the swap runs.
type TradeStage string

const (
	TradeStageOffer      TradeStage = "offer"
	TradeStageConfirming TradeStage = "confirming"
)

// TradeRequestTimeoutTicks bounds how long a trade or duel request stays
// answerable. 100 ticks at 600 ms is one minute.
const TradeRequestTimeoutTicks = 100

// ItemOffer is one line of an offer or stake: the inventory slot the item
// is claimed from, and what of it. Trades and duel stakes share the shape;
// the exchange re-verifies slot, item and quantity against the database
// before anything moves.
type ItemOffer struct {
	InvSlot  int    `json:"inventorySlot"`
	ItemID   string `json:"itemId"`
	Quantity int32  `json:"quantity"`
}

// TradeSide is one participant's half of the session. Offers stay dense:
// removal compacts, so offer indexes are always 0..len-1.
type TradeSide struct {
	PlayerID ecs.EntityID
	Offers   []ItemOffer
	Accepted bool
}

func (s *TradeSide) offerIndex(invSlot int) int {
	for i, o := range s.Offers {
		if o.InvSlot == invSlot {
			return i
		}
	}
	return -1
}

// TradeSession is the shared state of one trade. Every mutation clears both
// acceptance flags, and any mutation while confirming drops the pair back
// to the offer screen.
type TradeSession struct {
	Stage       TradeStage
	Initiator   *TradeSide
	Recipient   *TradeSide
	StartedTick int64
}

func (s *TradeSession) Side(id ecs.EntityID) *TradeSide {
	switch id {
	case s.Initiator.PlayerID:
		return s.Initiator
	case s.Recipient.PlayerID:
		return s.Recipient
	}
	return nil
}

func (s *TradeSession) Peer(id ecs.EntityID) *TradeSide {
	switch id {
	case s.Initiator.PlayerID:
		return s.Recipient
	case s.Recipient.PlayerID:
		return s.Initiator
	}
	return nil
}

func (s *TradeSession) BothAccepted() bool {
	return s.Initiator.Accepted && s.Recipient.Accepted
}

// mutated applies the shared rule for offer changes: acceptance resets for
// both sides and a confirming session falls back to the offer screen.
func (s *TradeSession) mutated() {
	s.Initiator.Accepted = false
	s.Recipient.Accepted = false
	s.Stage = TradeStageOffer
}

// AddItem puts quantity of an inventory slot on the table. A second add for
// the same slot replaces the quantity instead of stacking a duplicate line.
// Returns false when the player is not in this session.
func (s *TradeSession) AddItem(id ecs.EntityID, invSlot int, itemID string, qty int32) bool {
	side := s.Side(id)
	if side == nil || qty <= 0 {
		return false
	}
	if i := side.offerIndex(invSlot); i >= 0 {
		side.Offers[i].Quantity = qty
		side.Offers[i].ItemID = itemID
	} else {
		side.Offers = append(side.Offers, ItemOffer{InvSlot: invSlot, ItemID: itemID, Quantity: qty})
	}
	s.mutated()
	return true
}

// RemoveItem takes an offer line off the table, keeping the rest dense.
func (s *TradeSession) RemoveItem(id ecs.EntityID, invSlot int) bool {
	side := s.Side(id)
	if side == nil {
		return false
	}
	i := side.offerIndex(invSlot)
	if i < 0 {
		return false
	}
	side.Offers = append(side.Offers[:i], side.Offers[i+1:]...)
	s.mutated()
	return true
}

// SetQuantity adjusts an existing offer line; zero or less removes it.
func (s *TradeSession) SetQuantity(id ecs.EntityID, invSlot int, qty int32) bool {
	if qty <= 0 {
		return s.RemoveItem(id, invSlot)
	}
	side := s.Side(id)
	if side == nil {
		return false
	}
	i := side.offerIndex(invSlot)
	if i < 0 {
		return false
	}
	side.Offers[i].Quantity = qty
	s.mutated()
	return true
}

// Accept marks one side ready. The caller advances the stage when both are:
// offer → confirming sends the confirm screen, confirming → swap runs the
// transaction.
func (s *TradeSession) Accept(id ecs.EntityID) (both bool, ok bool) {
	side := s.Side(id)
	if side == nil {
		return false, false
	}
	side.Accepted = true
	return s.BothAccepted(), true
}

// AdvanceToConfirm freezes the offers behind the confirmation screen and
// clears acceptance for the second round.
func (s *TradeSession) AdvanceToConfirm() {
	s.Stage = TradeStageConfirming
	s.Initiator.Accepted = false
	s.Recipient.Accepted = false
}

// tradeRequest is an unanswered invitation, keyed by its target.
type tradeRequest struct {
	From ecs.EntityID
	Tick int64
}

// TradeManager owns live trade sessions and unanswered requests. Both
// participants index the same session. Game loop only.
type TradeManager struct {
	sessions map[ecs.EntityID]*TradeSession
	requests map[ecs.EntityID]tradeRequest
}

func NewTradeManager() *TradeManager {
	return &TradeManager{
		sessions: make(map[ecs.EntityID]*TradeSession),
		requests: make(map[ecs.EntityID]tradeRequest),
	}
}

// Request records an invitation from one player to another, replacing any
// earlier one aimed at the same target.
func (m *TradeManager) Request(from, to ecs.EntityID, now int64) {
	m.requests[to] = tradeRequest{From: from, Tick: now}
}

// TakeRequest consumes the invitation to `to` if it came from `from` and
// has not gone stale.
func (m *TradeManager) TakeRequest(to, from ecs.EntityID, now int64) bool {
	r, ok := m.requests[to]
	if !ok || r.From != from || now-r.Tick > TradeRequestTimeoutTicks {
		return false
	}
	delete(m.requests, to)
	return true
}

// Begin opens a session between two players and indexes it for both.
func (m *TradeManager) Begin(initiator, recipient ecs.EntityID, now int64) *TradeSession {
	s := &TradeSession{
		Stage:       TradeStageOffer,
		Initiator:   &TradeSide{PlayerID: initiator},
		Recipient:   &TradeSide{PlayerID: recipient},
		StartedTick: now,
	}
	m.sessions[initiator] = s
	m.sessions[recipient] = s
	return s
}

func (m *TradeManager) Get(id ecs.EntityID) *TradeSession {
	return m.sessions[id]
}

// End drops the session for both participants and returns it, or nil when
// the player was not trading.
func (m *TradeManager) End(id ecs.EntityID) *TradeSession {
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	delete(m.sessions, s.Initiator.PlayerID)
	delete(m.sessions, s.Recipient.PlayerID)
	return s
}

func (m *TradeManager) Len() int { return len(m.sessions) }

// Remove implements ecs.Removable: destroyed players lose their requests;
// the trade system tears down sessions itself so it can notify the peer.
func (m *TradeManager) Remove(id ecs.EntityID) {
	delete(m.requests, id)
}
