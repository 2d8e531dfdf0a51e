package world

import "github.com/runegate/server/internal/core/ecs"

// DuelStage is the staking ladder. Completed and cancelled duels leave the
// manager entirely, so they need no stage of their own.
type DuelStage string

const (
	DuelStageRules        DuelStage = "rules"
	DuelStageStakes       DuelStage = "stakes"
	DuelStageFinalConfirm DuelStage = "finalConfirm"
	DuelStageCountdown    DuelStage = "countdown"
	DuelStageFighting     DuelStage = "fighting"
)

const (
	// DuelMaxStakes matches the inventory: nobody can stake more lines
	// than they can hold.
	DuelMaxStakes = 28

	// DuelCountdownTicks is the delay between the arena teleport and the
	// fight opening.
	DuelCountdownTicks = 3

	// DuelDisconnectGraceTicks is how long a fighter may be gone before
	// the duel forfeits against them. 50 ticks is thirty seconds.
	DuelDisconnectGraceTicks = 50
)

// DuelRules are the shared fight restrictions. Either side may toggle any
// bit while the session sits on the rules screen; each toggle clears both
// acceptance flags.
type DuelRules struct {
	FunWeapons bool `json:"funWeapons"`
	NoMagic    bool `json:"noMagic"`
	NoRanged   bool `json:"noRanged"`
	NoMelee    bool `json:"noMelee"`
	NoMovement bool `json:"noMovement"`
	NoPrayer   bool `json:"noPrayer"`

	// BannedSlots maps equipment slot names to per-slot bans; banned
	// slots are force-unequipped at fight start and stay locked.
	BannedSlots map[string]bool `json:"bannedSlots"`
}

func (r *DuelRules) SetRule(name string, on bool) bool {
	switch name {
	case "funWeapons":
		r.FunWeapons = on
	case "noMagic":
		r.NoMagic = on
	case "noRanged":
		r.NoRanged = on
	case "noMelee":
		r.NoMelee = on
	case "noMovement":
		r.NoMovement = on
	case "noPrayer":
		r.NoPrayer = on
	default:
		return false
	}
	return true
}

func (r *DuelRules) SetSlotBan(slot string, banned bool) {
	if r.BannedSlots == nil {
		r.BannedSlots = make(map[string]bool)
	}
	if banned {
		r.BannedSlots[slot] = true
	} else {
		delete(r.BannedSlots, slot)
	}
}

// AttackAllowed applies the rule bits to an attack type.
func (r *DuelRules) AttackAllowed(at AttackType) bool {
	switch at {
	case AttackMelee:
		return !r.NoMelee
	case AttackRanged:
		return !r.NoRanged
	case AttackMagic:
		return !r.NoMagic
	}
	return true
}

// DuelArena is the session's copy of its arena assignment: the inclusive
// tile rectangle fighters may not leave, and the two countdown spawns.
type DuelArena struct {
	ID                     string
	MinX, MinZ, MaxX, MaxZ int
	SpawnA, SpawnB         Tile
}

func (a *DuelArena) Contains(t Tile) bool {
	return t.X >= a.MinX && t.X <= a.MaxX && t.Z >= a.MinZ && t.Z <= a.MaxZ
}

// DuelSide is one fighter's half of the session.
type DuelSide struct {
	PlayerID ecs.EntityID
	// CharacterID survives disconnects; settlement and reconnect rebinding
	// key on it after the entity is gone.
	CharacterID int64

	Stakes   []ItemOffer
	Accepted bool

	// ReturnTile is where the fighter stood before the arena teleport;
	// survivors go back there when the duel ends.
	ReturnTile Tile

	Disconnected  bool
	ForfeitAtTick int64

	// PartingSlots is the inventory snapshot taken when the fighter left
	// mid-fight; settlement uses it while they are gone.
	PartingSlots []*ItemStack
}

func (s *DuelSide) stakeIndex(invSlot int) int {
	for i, o := range s.Stakes {
		if o.InvSlot == invSlot {
			return i
		}
	}
	return -1
}

// DuelSession is the shared state of one duel from challenge acceptance to
// settlement hand-off.
type DuelSession struct {
	Stage DuelStage
	Rules DuelRules

	Challenger *DuelSide
	Challenged *DuelSide

	Arena            *DuelArena
	CountdownEndTick int64
	StartedTick      int64
}

func (s *DuelSession) Side(id ecs.EntityID) *DuelSide {
	switch id {
	case s.Challenger.PlayerID:
		return s.Challenger
	case s.Challenged.PlayerID:
		return s.Challenged
	}
	return nil
}

func (s *DuelSession) Peer(id ecs.EntityID) *DuelSide {
	switch id {
	case s.Challenger.PlayerID:
		return s.Challenged
	case s.Challenged.PlayerID:
		return s.Challenger
	}
	return nil
}

func (s *DuelSession) BothAccepted() bool {
	return s.Challenger.Accepted && s.Challenged.Accepted
}

// InFight covers the stages where arena restrictions bind: once the
// countdown teleport fires, fighters stay inside the bounds.
func (s *DuelSession) InFight() bool {
	return s.Stage == DuelStageCountdown || s.Stage == DuelStageFighting
}

func (s *DuelSession) mutated() {
	s.Challenger.Accepted = false
	s.Challenged.Accepted = false
}

// ToggleRule flips one shared rule bit. Only legal on the rules screen.
func (s *DuelSession) ToggleRule(name string, on bool) bool {
	if s.Stage != DuelStageRules || !s.Rules.SetRule(name, on) {
		return false
	}
	s.mutated()
	return true
}

// ToggleSlotBan bans or frees an equipment slot. Only legal on the rules
// screen.
func (s *DuelSession) ToggleSlotBan(slot string, banned bool) bool {
	if s.Stage != DuelStageRules {
		return false
	}
	s.Rules.SetSlotBan(slot, banned)
	s.mutated()
	return true
}

// AddStake puts quantity of an inventory slot up as a stake, replacing the
// line if the slot is already staked. Only legal on the stakes screen, and
// capped at DuelMaxStakes lines.
func (s *DuelSession) AddStake(id ecs.EntityID, invSlot int, itemID string, qty int32) bool {
	if s.Stage != DuelStageStakes || qty <= 0 {
		return false
	}
	side := s.Side(id)
	if side == nil {
		return false
	}
	if i := side.stakeIndex(invSlot); i >= 0 {
		side.Stakes[i].Quantity = qty
		side.Stakes[i].ItemID = itemID
	} else {
		if len(side.Stakes) >= DuelMaxStakes {
			return false
		}
		side.Stakes = append(side.Stakes, ItemOffer{InvSlot: invSlot, ItemID: itemID, Quantity: qty})
	}
	s.mutated()
	return true
}

// RemoveStake withdraws a staked line, keeping the rest dense.
func (s *DuelSession) RemoveStake(id ecs.EntityID, invSlot int) bool {
	if s.Stage != DuelStageStakes {
		return false
	}
	side := s.Side(id)
	if side == nil {
		return false
	}
	i := side.stakeIndex(invSlot)
	if i < 0 {
		return false
	}
	side.Stakes = append(side.Stakes[:i], side.Stakes[i+1:]...)
	s.mutated()
	return true
}

// Accept marks one side ready on the current screen. The duel system
// advances the stage when both sides are.
func (s *DuelSession) Accept(id ecs.EntityID) (both bool, ok bool) {
	side := s.Side(id)
	if side == nil {
		return false, false
	}
	side.Accepted = true
	return s.BothAccepted(), true
}

// AdvanceStage steps rules → stakes → finalConfirm, clearing acceptance for
// the next round. Countdown entry is separate because it needs an arena.
func (s *DuelSession) AdvanceStage() bool {
	switch s.Stage {
	case DuelStageRules:
		s.Stage = DuelStageStakes
	case DuelStageStakes:
		s.Stage = DuelStageFinalConfirm
	default:
		return false
	}
	s.Challenger.Accepted = false
	s.Challenged.Accepted = false
	return true
}

// BeginCountdown assigns the arena, records the return tiles, and arms the
// countdown clock. The caller performs the teleports and broadcasts.
func (s *DuelSession) BeginCountdown(arena *DuelArena, challengerAt, challengedAt Tile, now int64) {
	s.Arena = arena
	s.Challenger.ReturnTile = challengerAt
	s.Challenged.ReturnTile = challengedAt
	s.Stage = DuelStageCountdown
	s.CountdownEndTick = now + DuelCountdownTicks
}

// BeginFighting opens the fight once the countdown lapses.
func (s *DuelSession) BeginFighting() {
	s.Stage = DuelStageFighting
}

// MarkDisconnected starts a fighter's grace window. Returns the tick the
// forfeit falls due.
func (s *DuelSession) MarkDisconnected(id ecs.EntityID, now int64) int64 {
	side := s.Side(id)
	if side == nil {
		return 0
	}
	side.Disconnected = true
	side.ForfeitAtTick = now + DuelDisconnectGraceTicks
	return side.ForfeitAtTick
}

// MarkReconnected clears the grace window; reports whether one was open.
func (s *DuelSession) MarkReconnected(id ecs.EntityID) bool {
	side := s.Side(id)
	if side == nil || !side.Disconnected {
		return false
	}
	side.Disconnected = false
	side.ForfeitAtTick = 0
	return true
}

// DuelManager owns live duel sessions and unanswered challenges. Both
// fighters index the same session. Game loop only.
type DuelManager struct {
	sessions   map[ecs.EntityID]*DuelSession
	challenges map[ecs.EntityID]tradeRequest
}

func NewDuelManager() *DuelManager {
	return &DuelManager{
		sessions:   make(map[ecs.EntityID]*DuelSession),
		challenges: make(map[ecs.EntityID]tradeRequest),
	}
}

// Challenge records an unanswered duel invitation aimed at a target.
func (m *DuelManager) Challenge(from, to ecs.EntityID, now int64) {
	m.challenges[to] = tradeRequest{From: from, Tick: now}
}

// TakeChallenge consumes the invitation to `to` if it came from `from` and
// has not gone stale.
func (m *DuelManager) TakeChallenge(to, from ecs.EntityID, now int64) bool {
	r, ok := m.challenges[to]
	if !ok || r.From != from || now-r.Tick > TradeRequestTimeoutTicks {
		return false
	}
	delete(m.challenges, to)
	return true
}

// Begin opens a session on the rules screen and indexes it for both
// fighters.
func (m *DuelManager) Begin(challenger, challenged ecs.EntityID, now int64) *DuelSession {
	s := &DuelSession{
		Stage:       DuelStageRules,
		Challenger:  &DuelSide{PlayerID: challenger},
		Challenged:  &DuelSide{PlayerID: challenged},
		StartedTick: now,
	}
	m.sessions[challenger] = s
	m.sessions[challenged] = s
	return s
}

func (m *DuelManager) Get(id ecs.EntityID) *DuelSession {
	return m.sessions[id]
}

// Dueling reports whether the player is in any duel stage. Home teleport
// refuses on this.
func (m *DuelManager) Dueling(id ecs.EntityID) bool {
	_, ok := m.sessions[id]
	return ok
}

// FightArena returns the arena binding the player, or nil outside the
// countdown and fighting stages. Movement blocking consults this.
func (m *DuelManager) FightArena(id ecs.EntityID) *DuelArena {
	s, ok := m.sessions[id]
	if !ok || !s.InFight() {
		return nil
	}
	return s.Arena
}

// End drops the session for both fighters and returns it, or nil when the
// player was not dueling.
func (m *DuelManager) End(id ecs.EntityID) *DuelSession {
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	delete(m.sessions, s.Challenger.PlayerID)
	delete(m.sessions, s.Challenged.PlayerID)
	return s
}

// FindByCharacter locates the session holding a disconnected fighter, for
// reconnect rebinding.
func (m *DuelManager) FindByCharacter(characterID int64) (*DuelSession, *DuelSide) {
	for id, s := range m.sessions {
		if id != s.Challenger.PlayerID {
			continue
		}
		for _, side := range [2]*DuelSide{s.Challenger, s.Challenged} {
			if side.CharacterID == characterID {
				return s, side
			}
		}
	}
	return nil, nil
}

// Rebind points a side at the entity id a reconnecting fighter came back
// under and re-indexes the session.
func (m *DuelManager) Rebind(side *DuelSide, newID ecs.EntityID) {
	s, ok := m.sessions[side.PlayerID]
	if !ok {
		return
	}
	delete(m.sessions, side.PlayerID)
	side.PlayerID = newID
	m.sessions[newID] = s
}

// EachSession visits every live session once, in no particular order.
func (m *DuelManager) EachSession(fn func(*DuelSession)) {
	for id, s := range m.sessions {
		if id == s.Challenger.PlayerID {
			fn(s)
		}
	}
}

func (m *DuelManager) Len() int {
	n := 0
	for id, s := range m.sessions {
		if id == s.Challenger.PlayerID {
			n++
		}
	}
	return n
}

// Remove implements ecs.Removable: destroyed players lose pending
// challenges. Session teardown stays with the duel system, which owes the
// opponent a grace window rather than an instant cancel.
func (m *DuelManager) Remove(id ecs.EntityID) {
	delete(m.challenges, id)
}
