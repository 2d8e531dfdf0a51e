package world

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBankDepositMergesAcrossTabs(t *testing.T) {
	b := NewBank()
	tab1, ok := b.CreateTab()
	require.True(t, ok)

	_, _, ok = b.Deposit(tab1, "logs", 10)
	require.True(t, ok)

	// A later deposit aimed at tab 0 still lands on the existing row.
	tab, slot, ok := b.Deposit(0, "logs", 5)
	require.True(t, ok)
	assert.Equal(t, tab1, tab)
	assert.Equal(t, 0, slot)
	assert.Equal(t, int64(15), b.Count("logs"))
	assert.Equal(t, 1, b.Occupied())
}

func TestBankDepositFillsPlaceholder(t *testing.T) {
	b := NewBank()
	b.Deposit(0, "trout", 4)
	took, _, ok := b.Withdraw(0, 0, 4, true)
	require.True(t, ok)
	require.Equal(t, int32(4), took)
	require.True(t, b.Tabs[0].Slots[0].Placeholder(), "explicit placeholder withdraw keeps the row at qty 0")

	tab, slot, ok := b.Deposit(0, "trout", 2)
	require.True(t, ok)
	assert.Equal(t, 0, tab)
	assert.Equal(t, 0, slot, "deposit fills the placeholder in place")
	assert.False(t, b.Tabs[0].Slots[0].Placeholder())
}

func TestBankWithdrawClampsAndCompacts(t *testing.T) {
	b := NewBank()
	b.Deposit(0, "logs", 10)
	b.Deposit(0, "trout", 3)

	took, itemID, ok := b.Withdraw(0, 0, 99, false)
	require.True(t, ok)
	assert.Equal(t, int32(10), took, "withdraw clamps to what is there")
	assert.Equal(t, "logs", itemID)

	require.Len(t, b.Tabs[0].Slots, 1, "emptied row compacts away without placeholder")
	assert.Equal(t, "trout", b.Tabs[0].Slots[0].ItemID)
}

func TestBankAlwaysPlaceholderFlag(t *testing.T) {
	b := NewBank()
	b.AlwaysPlaceholder = true
	b.Deposit(0, "logs", 2)

	_, _, ok := b.Withdraw(0, 0, 2, false)
	require.True(t, ok)
	require.Len(t, b.Tabs[0].Slots, 1)
	assert.True(t, b.Tabs[0].Slots[0].Placeholder())

	_, _, ok = b.Withdraw(0, 0, 1, false)
	assert.False(t, ok, "a placeholder has nothing to withdraw")
}

func TestBankReleasePlaceholders(t *testing.T) {
	b := NewBank()
	b.Deposit(0, "logs", 1)
	b.Deposit(0, "trout", 1)
	b.Withdraw(0, 0, 1, true)
	b.Withdraw(0, 1, 1, true)

	assert.False(t, b.Release(0, 5), "missing slot")
	require.True(t, b.Release(0, 0))
	require.Len(t, b.Tabs[0].Slots, 1)

	b.Deposit(0, "iron_ore", 1)
	b.Withdraw(0, 1, 1, true)
	assert.Equal(t, 2, b.ReleaseAll())
	assert.Empty(t, b.Tabs[0].Slots)
}

func TestBankMoveItemReorders(t *testing.T) {
	b := NewBank()
	b.Deposit(0, "a", 1)
	b.Deposit(0, "b", 1)
	b.Deposit(0, "c", 1)

	require.True(t, b.MoveItem(0, 2, 0))
	got := []string{b.Tabs[0].Slots[0].ItemID, b.Tabs[0].Slots[1].ItemID, b.Tabs[0].Slots[2].ItemID}
	assert.Equal(t, []string{"c", "a", "b"}, got)

	assert.False(t, b.MoveItem(0, 0, 0), "same slot")
	assert.False(t, b.MoveItem(0, 0, 9), "out of range")
}

func TestBankMoveToTabMerges(t *testing.T) {
	b := NewBank()
	tab1, _ := b.CreateTab()
	b.Deposit(0, "logs", 5)

	require.True(t, b.MoveToTab(0, 0, tab1))
	assert.Empty(t, b.Tabs[0].Slots)
	require.Len(t, b.Tabs[tab1].Slots, 1)

	// A duplicate row (as a DB load may contain) merges on move.
	b.Tabs[0].Slots = append(b.Tabs[0].Slots, &BankSlot{ItemID: "logs", Quantity: 3})
	require.True(t, b.MoveToTab(0, 0, tab1))
	require.Len(t, b.Tabs[tab1].Slots, 1)
	assert.Equal(t, int64(8), b.Count("logs"))
}

func TestBankDeleteTabFoldsIntoMain(t *testing.T) {
	b := NewBank()
	tab1, _ := b.CreateTab()
	b.Deposit(tab1, "logs", 5)
	b.Deposit(tab1, "trout", 2)
	b.Withdraw(tab1, 1, 2, true) // trout becomes a placeholder

	assert.False(t, b.DeleteTab(0), "tab 0 is permanent")
	require.True(t, b.DeleteTab(tab1))

	require.Len(t, b.Tabs, 1)
	require.Len(t, b.Tabs[0].Slots, 1, "placeholders are discarded on tab delete")
	assert.Equal(t, "logs", b.Tabs[0].Slots[0].ItemID)
}

func TestBankDepositOverflowRefused(t *testing.T) {
	b := NewBank()
	b.Deposit(0, "coins", math.MaxInt32)

	_, _, ok := b.Deposit(0, "coins", 1)
	assert.False(t, ok, "int32 overflow is refused, not wrapped")
	assert.Equal(t, int64(math.MaxInt32), b.Count("coins"))
}

func TestBankTabCapacity(t *testing.T) {
	b := NewBank()
	for i := 0; i < BankTabCapacity; i++ {
		_, _, ok := b.Deposit(0, itemN(i), 1)
		require.True(t, ok)
	}
	_, _, ok := b.Deposit(0, "overflow", 1)
	assert.False(t, ok)
}

func itemN(i int) string {
	return "item_" + string(rune('a'+i%26)) + "_" + string(rune('0'+i/26))
}
