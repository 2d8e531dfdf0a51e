package world

import (
	"math"
	"sync"

	"github.com/runegate/server/internal/core/ecs"
)

// InventorySize is the number of slots every player inventory has. Slot
// indices are [0, InventorySize).
const InventorySize = 28

// CoinItemID is the currency item. Coins are stackable like anything else;
// the id is only special to the coin-pouch and bank coin handlers.
const CoinItemID = "coins"

// ItemStack is one occupied inventory, equipment, or bank slot.
type ItemStack struct {
	ItemID   string         `json:"itemId"`
	Quantity int32          `json:"quantity"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Inventory is the in-memory mirror of a player's inventory rows. It is
// owned by the game loop; economic transactions flush it to the database,
// work on rows under FOR UPDATE, and replace the mirror from the committed
// result afterwards.
type Inventory struct {
	Slots [InventorySize]*ItemStack
}

func NewInventory() *Inventory {
	return &Inventory{}
}

func (inv *Inventory) Get(slot int) *ItemStack {
	if slot < 0 || slot >= InventorySize {
		return nil
	}
	return inv.Slots[slot]
}

func (inv *Inventory) Set(slot int, s *ItemStack) bool {
	if slot < 0 || slot >= InventorySize {
		return false
	}
	inv.Slots[slot] = s
	return true
}

func (inv *Inventory) Clear(slot int) {
	if slot >= 0 && slot < InventorySize {
		inv.Slots[slot] = nil
	}
}

// FirstFree returns the lowest empty slot index, or -1 when full.
func (inv *Inventory) FirstFree() int {
	for i, s := range inv.Slots {
		if s == nil {
			return i
		}
	}
	return -1
}

func (inv *Inventory) FreeSlots() int {
	n := 0
	for _, s := range inv.Slots {
		if s == nil {
			n++
		}
	}
	return n
}

func (inv *Inventory) Occupied() int {
	return InventorySize - inv.FreeSlots()
}

// Find returns the first slot holding itemID, or -1.
func (inv *Inventory) Find(itemID string) int {
	for i, s := range inv.Slots {
		if s != nil && s.ItemID == itemID {
			return i
		}
	}
	return -1
}

// Count sums the quantity of itemID across all slots.
func (inv *Inventory) Count(itemID string) int64 {
	var total int64
	for _, s := range inv.Slots {
		if s != nil && s.ItemID == itemID {
			total += int64(s.Quantity)
		}
	}
	return total
}

// Add places qty of itemID into the inventory. Stackable items merge into
// their existing stack; a merge that would overflow int32 is refused rather
// than split. Unstackable items (and new stacks) take the first free slot.
// Returns the slot written, or -1 when nothing could be placed.
func (inv *Inventory) Add(itemID string, qty int32, stackable bool) int {
	if qty <= 0 {
		return -1
	}
	if stackable {
		if i := inv.Find(itemID); i >= 0 {
			s := inv.Slots[i]
			if int64(s.Quantity)+int64(qty) > math.MaxInt32 {
				return -1
			}
			s.Quantity += qty
			return i
		}
	}
	i := inv.FirstFree()
	if i < 0 {
		return -1
	}
	inv.Slots[i] = &ItemStack{ItemID: itemID, Quantity: qty}
	return i
}

// Remove takes qty from the stack at slot. The slot is cleared when it
// reaches zero. Returns false when the slot is empty or holds less than qty.
func (inv *Inventory) Remove(slot int, qty int32) bool {
	s := inv.Get(slot)
	if s == nil || qty <= 0 || s.Quantity < qty {
		return false
	}
	s.Quantity -= qty
	if s.Quantity == 0 {
		inv.Slots[slot] = nil
	}
	return true
}

// Swap exchanges the contents of two slots (client drag-move).
func (inv *Inventory) Swap(a, b int) bool {
	if a < 0 || a >= InventorySize || b < 0 || b >= InventorySize {
		return false
	}
	inv.Slots[a], inv.Slots[b] = inv.Slots[b], inv.Slots[a]
	return true
}

// Snapshot returns a deep copy, used for packets and for transaction
// planning against a stable view.
func (inv *Inventory) Snapshot() []*ItemStack {
	out := make([]*ItemStack, InventorySize)
	for i, s := range inv.Slots {
		if s == nil {
			continue
		}
		cp := *s
		out[i] = &cp
	}
	return out
}

// Replace swaps in a freshly-loaded slot set (post-commit reload).
func (inv *Inventory) Replace(slots []*ItemStack) {
	for i := range inv.Slots {
		if i < len(slots) {
			inv.Slots[i] = slots[i]
		} else {
			inv.Slots[i] = nil
		}
	}
}

// LockTable hands out the per-player transaction locks economic flows take
// before touching the database. Non-reentrant: TryLock fails when the lock
// is already held, it never blocks. Unlike the rest of the world state this
// table is touched from detached transaction goroutines, so it carries its
// own mutex.
type LockTable struct {
	mu   sync.Mutex
	held map[ecs.EntityID]struct{}
}

func NewLockTable() *LockTable {
	return &LockTable{held: make(map[ecs.EntityID]struct{})}
}

func (t *LockTable) TryLock(id ecs.EntityID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, taken := t.held[id]; taken {
		return false
	}
	t.held[id] = struct{}{}
	return true
}

func (t *LockTable) Unlock(id ecs.EntityID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.held, id)
}

// Locked reports whether the entity's lock is currently held. The save
// system consults this to skip players with an exchange in flight.
func (t *LockTable) Locked(id ecs.EntityID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, taken := t.held[id]
	return taken
}

// LockPair takes both locks or neither.
func (t *LockTable) LockPair(a, b ecs.EntityID) bool {
	if !t.TryLock(a) {
		return false
	}
	if !t.TryLock(b) {
		t.Unlock(a)
		return false
	}
	return true
}

func (t *LockTable) UnlockPair(a, b ecs.EntityID) {
	t.Unlock(a)
	t.Unlock(b)
}
