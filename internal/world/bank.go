package world

import "math"

const (
	// BankMaxTabs counts tab 0, which always exists and cannot be deleted.
	BankMaxTabs = 10

	// BankTabCapacity is the per-tab slot ceiling. Settlement spill into a
	// full tab 0 drops the item rather than grow past this.
	BankTabCapacity = 100
)

// BankSlot is one bank row. Everything stacks in the bank regardless of the
// item's inventory stackability; a zero quantity is a placeholder keeping
// the slot reserved for its item.
type BankSlot struct {
	ItemID   string `json:"itemId"`
	Quantity int32  `json:"quantity"`
}

func (s *BankSlot) Placeholder() bool { return s.Quantity == 0 }

// BankTab is a dense run of slots; the slice index is the persisted slot
// column.
type BankTab struct {
	Slots []*BankSlot `json:"slots"`
}

func (t *BankTab) full() bool { return len(t.Slots) >= BankTabCapacity }

func (t *BankTab) find(itemID string) int {
	for i, s := range t.Slots {
		if s.ItemID == itemID {
			return i
		}
	}
	return -1
}

// Bank is the in-memory mirror of a player's bank_storage rows, loaded on
// first open and flushed through the bank repository when dirty.
type Bank struct {
	Tabs              []*BankTab
	AlwaysPlaceholder bool
	Loaded            bool
	Dirty             bool
}

func NewBank() *Bank {
	return &Bank{Tabs: []*BankTab{{}}}
}

func (b *Bank) Tab(i int) *BankTab {
	if i < 0 || i >= len(b.Tabs) {
		return nil
	}
	return b.Tabs[i]
}

// CreateTab appends an empty tab and returns its index.
func (b *Bank) CreateTab() (int, bool) {
	if len(b.Tabs) >= BankMaxTabs {
		return -1, false
	}
	b.Tabs = append(b.Tabs, &BankTab{})
	b.Dirty = true
	return len(b.Tabs) - 1, true
}

// DeleteTab folds a tab's stock into tab 0 and removes it. Placeholders are
// discarded. Refused for tab 0 and when tab 0 lacks room for the survivors.
func (b *Bank) DeleteTab(i int) bool {
	if i <= 0 || i >= len(b.Tabs) {
		return false
	}
	main := b.Tabs[0]
	moving := 0
	for _, s := range b.Tabs[i].Slots {
		if !s.Placeholder() && main.find(s.ItemID) < 0 {
			moving++
		}
	}
	if len(main.Slots)+moving > BankTabCapacity {
		return false
	}
	for _, s := range b.Tabs[i].Slots {
		if s.Placeholder() {
			continue
		}
		if j := main.find(s.ItemID); j >= 0 {
			merged, ok := addInt32(main.Slots[j].Quantity, s.Quantity)
			if !ok {
				return false
			}
			main.Slots[j].Quantity = merged
		} else {
			main.Slots = append(main.Slots, s)
		}
	}
	b.Tabs = append(b.Tabs[:i], b.Tabs[i+1:]...)
	b.Dirty = true
	return true
}

// Deposit merges qty of an item into the bank. An existing row for the item
// anywhere (placeholders included) absorbs the deposit; otherwise a new row
// is appended to the preferred tab. Returns tab and slot written, or false
// when the merge would overflow or the tab is full.
func (b *Bank) Deposit(preferredTab int, itemID string, qty int32) (tab, slot int, ok bool) {
	if qty <= 0 {
		return 0, 0, false
	}
	for ti, t := range b.Tabs {
		if si := t.find(itemID); si >= 0 {
			merged, ok := addInt32(t.Slots[si].Quantity, qty)
			if !ok {
				return 0, 0, false
			}
			t.Slots[si].Quantity = merged
			b.Dirty = true
			return ti, si, true
		}
	}
	t := b.Tab(preferredTab)
	if t == nil {
		t = b.Tabs[0]
		preferredTab = 0
	}
	if t.full() {
		return 0, 0, false
	}
	t.Slots = append(t.Slots, &BankSlot{ItemID: itemID, Quantity: qty})
	b.Dirty = true
	return preferredTab, len(t.Slots) - 1, true
}

// Withdraw takes up to qty from a slot. When the stack empties it stays as
// a placeholder if asked to (or the always flag is set), otherwise the row
// is removed and the tab compacts. Returns what was taken.
func (b *Bank) Withdraw(tab, slot int, qty int32, leavePlaceholder bool) (took int32, itemID string, ok bool) {
	t := b.Tab(tab)
	if t == nil || slot < 0 || slot >= len(t.Slots) || qty <= 0 {
		return 0, "", false
	}
	s := t.Slots[slot]
	if s.Placeholder() {
		return 0, "", false
	}
	took = qty
	if took > s.Quantity {
		took = s.Quantity
	}
	s.Quantity -= took
	if s.Quantity == 0 && !leavePlaceholder && !b.AlwaysPlaceholder {
		t.Slots = append(t.Slots[:slot], t.Slots[slot+1:]...)
	}
	b.Dirty = true
	return took, s.ItemID, true
}

// Release removes a placeholder row.
func (b *Bank) Release(tab, slot int) bool {
	t := b.Tab(tab)
	if t == nil || slot < 0 || slot >= len(t.Slots) || !t.Slots[slot].Placeholder() {
		return false
	}
	t.Slots = append(t.Slots[:slot], t.Slots[slot+1:]...)
	b.Dirty = true
	return true
}

// ReleaseAll removes every placeholder in every tab. Returns how many.
func (b *Bank) ReleaseAll() int {
	n := 0
	for _, t := range b.Tabs {
		kept := t.Slots[:0]
		for _, s := range t.Slots {
			if s.Placeholder() {
				n++
				continue
			}
			kept = append(kept, s)
		}
		t.Slots = kept
	}
	if n > 0 {
		b.Dirty = true
	}
	return n
}

// MoveItem reorders within a tab: the row at from is pulled out and
// reinserted at to.
func (b *Bank) MoveItem(tab, from, to int) bool {
	t := b.Tab(tab)
	if t == nil || from < 0 || from >= len(t.Slots) || to < 0 || to >= len(t.Slots) || from == to {
		return false
	}
	s := t.Slots[from]
	t.Slots = append(t.Slots[:from], t.Slots[from+1:]...)
	t.Slots = append(t.Slots[:to], append([]*BankSlot{s}, t.Slots[to:]...)...)
	b.Dirty = true
	return true
}

// MoveToTab carries a row to another tab, merging into an existing row for
// the item when one is there.
func (b *Bank) MoveToTab(fromTab, slot, toTab int) bool {
	src := b.Tab(fromTab)
	dst := b.Tab(toTab)
	if src == nil || dst == nil || fromTab == toTab || slot < 0 || slot >= len(src.Slots) {
		return false
	}
	s := src.Slots[slot]
	if j := dst.find(s.ItemID); j >= 0 {
		merged, ok := addInt32(dst.Slots[j].Quantity, s.Quantity)
		if !ok {
			return false
		}
		dst.Slots[j].Quantity = merged
	} else {
		if dst.full() {
			return false
		}
		dst.Slots = append(dst.Slots, s)
	}
	src.Slots = append(src.Slots[:slot], src.Slots[slot+1:]...)
	b.Dirty = true
	return true
}

// Clone deep-copies the mirror. Transaction goroutines work on clones; the
// game loop swaps in the post-commit reload.
func (b *Bank) Clone() *Bank {
	out := &Bank{
		Tabs:              make([]*BankTab, len(b.Tabs)),
		AlwaysPlaceholder: b.AlwaysPlaceholder,
		Loaded:            b.Loaded,
		Dirty:             b.Dirty,
	}
	for i, t := range b.Tabs {
		nt := &BankTab{Slots: make([]*BankSlot, len(t.Slots))}
		for j, s := range t.Slots {
			cp := *s
			nt.Slots[j] = &cp
		}
		out.Tabs[i] = nt
	}
	return out
}

// Count sums the quantity of an item across all tabs. Conservation checks
// lean on this.
func (b *Bank) Count(itemID string) int64 {
	var total int64
	for _, t := range b.Tabs {
		for _, s := range t.Slots {
			if s.ItemID == itemID {
				total += int64(s.Quantity)
			}
		}
	}
	return total
}

// Occupied counts non-placeholder rows across all tabs.
func (b *Bank) Occupied() int {
	n := 0
	for _, t := range b.Tabs {
		for _, s := range t.Slots {
			if !s.Placeholder() {
				n++
			}
		}
	}
	return n
}

func addInt32(a, b int32) (int32, bool) {
	sum := int64(a) + int64(b)
	if sum > math.MaxInt32 {
		return 0, false
	}
	return int32(sum), true
}
