package persist

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runegate/server/internal/world"
)

func allTradeable(string) bool { return true }

func stackableSet(ids ...string) func(string) bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return func(id string) bool { return set[id] }
}

func offer(slot int, itemID string, qty int32) world.ItemOffer {
	return world.ItemOffer{InvSlot: slot, ItemID: itemID, Quantity: qty}
}

// applySwap mutates copies of both views the way the executor would and
// fails the test on an insert into an occupied slot.
func applySwap(t *testing.T, initiator, recipient map[int]slotRow, plan *swapPlan) {
	t.Helper()
	applyRemovals(initiator, plan.removeInitiator)
	applyRemovals(recipient, plan.removeRecipient)
	applyInserts(t, initiator, plan.insertInitiator)
	applyInserts(t, recipient, plan.insertRecipient)
}

func applyRemovals(rows map[int]slotRow, ops []removeOp) {
	for _, op := range ops {
		if op.Delete {
			delete(rows, op.Slot)
			continue
		}
		r := rows[op.Slot]
		r.Quantity -= op.Qty
		rows[op.Slot] = r
	}
}

func applyInserts(t *testing.T, rows map[int]slotRow, ops []insertOp) {
	t.Helper()
	for _, op := range ops {
		_, occupied := rows[op.Slot]
		require.False(t, occupied, "insert into occupied slot %d", op.Slot)
		rows[op.Slot] = slotRow{ItemID: op.ItemID, Quantity: op.Quantity, Metadata: op.Metadata}
	}
}

func applyMerges(rows map[int]slotRow, ops []mergeOp) {
	for _, op := range ops {
		r := rows[op.Slot]
		r.Quantity += op.Qty
		rows[op.Slot] = r
	}
}

func applyBankOps(bank []bankRow, merges, inserts []bankOp) []bankRow {
	for _, op := range merges {
		for i := range bank {
			if bank[i].Tab == op.Tab && bank[i].Slot == op.Slot {
				bank[i].Quantity += op.Quantity
				break
			}
		}
	}
	for _, op := range inserts {
		bank = append(bank, bankRow(op))
	}
	return bank
}

// totals sums quantities per item id across inventory views and bank rows.
func totals(views []map[int]slotRow, banks ...[]bankRow) map[string]int64 {
	out := make(map[string]int64)
	for _, view := range views {
		for _, r := range view {
			out[r.ItemID] += int64(r.Quantity)
		}
	}
	for _, bank := range banks {
		for _, r := range bank {
			out[r.ItemID] += int64(r.Quantity)
		}
	}
	for id, n := range out {
		if n == 0 {
			delete(out, id)
		}
	}
	return out
}

func TestPlanSwapMovesBothSides(t *testing.T) {
	initiator := map[int]slotRow{
		0: {ItemID: "rune_scimitar", Quantity: 1},
		1: {ItemID: "lobster", Quantity: 5},
	}
	recipient := map[int]slotRow{
		0: {ItemID: "coins", Quantity: 10000},
	}

	plan, err := planSwap(initiator, recipient,
		[]world.ItemOffer{offer(0, "rune_scimitar", 1), offer(1, "lobster", 2)},
		[]world.ItemOffer{offer(0, "coins", 10000)},
		allTradeable)
	require.NoError(t, err)

	before := totals([]map[int]slotRow{initiator, recipient})
	applySwap(t, initiator, recipient, plan)
	assert.Equal(t, before, totals([]map[int]slotRow{initiator, recipient}), "swap conserves items")

	// Partial lobster offer leaves the remainder with the initiator.
	assert.Equal(t, int32(3), initiator[1].Quantity)
	assert.Equal(t, int64(10000), totals([]map[int]slotRow{initiator})["coins"])
	assert.Equal(t, int64(2), totals([]map[int]slotRow{recipient})["lobster"])
	assert.Equal(t, int64(1), totals([]map[int]slotRow{recipient})["rune_scimitar"])
}

func TestPlanSwapRejectsChangedRows(t *testing.T) {
	rows := map[int]slotRow{
		0: {ItemID: "lobster", Quantity: 3},
	}
	empty := map[int]slotRow{}

	cases := []struct {
		name   string
		offers []world.ItemOffer
	}{
		{"slot emptied", []world.ItemOffer{offer(5, "lobster", 1)}},
		{"different item", []world.ItemOffer{offer(0, "swordfish", 1)}},
		{"quantity shrank", []world.ItemOffer{offer(0, "lobster", 10)}},
		{"zero quantity", []world.ItemOffer{offer(0, "lobster", 0)}},
		{"slot offered twice", []world.ItemOffer{offer(0, "lobster", 1), offer(0, "lobster", 1)}},
	}
	for _, tc := range cases {
		_, err := planSwap(rows, empty, tc.offers, nil, allTradeable)
		assert.ErrorIs(t, err, ErrItemChanged, tc.name)
	}
}

func TestPlanSwapRejectsUntradeable(t *testing.T) {
	rows := map[int]slotRow{0: {ItemID: "quest_relic", Quantity: 1}}
	_, err := planSwap(rows, map[int]slotRow{}, []world.ItemOffer{offer(0, "quest_relic", 1)}, nil,
		func(id string) bool { return id != "quest_relic" })
	assert.ErrorIs(t, err, ErrUntradeable)
}

func TestPlanSwapCapacity(t *testing.T) {
	full := make(map[int]slotRow)
	for i := 0; i < world.InventorySize; i++ {
		full[i] = slotRow{ItemID: "flax", Quantity: 1}
	}
	giver := map[int]slotRow{0: {ItemID: "coins", Quantity: 100}}

	// Recipient has no room for the incoming coin stack.
	_, err := planSwap(giver, full, []world.ItemOffer{offer(0, "coins", 100)}, nil, allTradeable)
	assert.ErrorIs(t, err, ErrInventoryFullRecipient)

	// Same shape the other way around.
	_, err = planSwap(full, giver, nil, []world.ItemOffer{offer(0, "coins", 100)}, allTradeable)
	assert.ErrorIs(t, err, ErrInventoryFullInitiator)

	// A full inventory that gives a whole stack away frees the slot for the
	// incoming item: one-for-one swaps always fit.
	plan, err := planSwap(full, giver,
		[]world.ItemOffer{offer(3, "flax", 1)},
		[]world.ItemOffer{offer(0, "coins", 100)},
		allTradeable)
	require.NoError(t, err)
	require.Len(t, plan.insertInitiator, 1)
	assert.Equal(t, 3, plan.insertInitiator[0].Slot, "freed slot reused")
}

func TestPlanSwapPrefersFreedSlots(t *testing.T) {
	// Slot 2 is already empty, slot 5 is being given away in full. The
	// incoming item takes the freed slot first.
	initiator := map[int]slotRow{
		0: {ItemID: "coins", Quantity: 50},
		5: {ItemID: "lobster", Quantity: 4},
	}
	recipient := map[int]slotRow{
		1: {ItemID: "swordfish", Quantity: 2},
	}
	plan, err := planSwap(initiator, recipient,
		[]world.ItemOffer{offer(5, "lobster", 4)},
		[]world.ItemOffer{offer(1, "swordfish", 2)},
		allTradeable)
	require.NoError(t, err)
	require.Len(t, plan.insertInitiator, 1)
	assert.Equal(t, 5, plan.insertInitiator[0].Slot)
}

func TestPlanSwapCarriesMetadata(t *testing.T) {
	meta := []byte(`{"enchant":3}`)
	initiator := map[int]slotRow{0: {ItemID: "rune_scimitar", Quantity: 1, Metadata: meta}}
	recipient := map[int]slotRow{}

	plan, err := planSwap(initiator, recipient,
		[]world.ItemOffer{offer(0, "rune_scimitar", 1)}, nil, allTradeable)
	require.NoError(t, err)
	require.Len(t, plan.insertRecipient, 1)
	assert.Equal(t, meta, plan.insertRecipient[0].Metadata)
}

func TestPlanSettlementTransfersWhatRemains(t *testing.T) {
	// Staked 10 lobsters, but the loser ate six mid-fight; staked shield
	// was fully consumed. Only the remainder moves, nothing errors.
	loser := map[int]slotRow{
		0: {ItemID: "lobster", Quantity: 4},
	}
	winner := map[int]slotRow{}
	stakes := []world.ItemOffer{
		offer(0, "lobster", 10),
		offer(1, "iron_shield", 1), // row gone
	}

	plan := planSettlement(loser, winner, nil, stakes, stackableSet("coins"))
	require.Len(t, plan.transferred, 1)
	assert.Equal(t, int32(4), plan.transferred[0].Quantity)
	require.Len(t, plan.skippedChanged, 1)
	assert.Equal(t, "iron_shield", plan.skippedChanged[0].ItemID)

	require.Len(t, plan.loserRemovals, 1)
	assert.True(t, plan.loserRemovals[0].Delete, "emptied row is deleted")
}

func TestPlanSettlementMergesStackables(t *testing.T) {
	loser := map[int]slotRow{0: {ItemID: "coins", Quantity: 500}}
	winner := map[int]slotRow{7: {ItemID: "coins", Quantity: 1000}}

	plan := planSettlement(loser, winner, nil, []world.ItemOffer{offer(0, "coins", 500)}, stackableSet("coins"))
	require.Len(t, plan.winnerMerges, 1)
	assert.Equal(t, 7, plan.winnerMerges[0].Slot)
	assert.Equal(t, int32(500), plan.winnerMerges[0].Qty)
	assert.Empty(t, plan.winnerInserts)
}

func TestPlanSettlementOverflowStaysWithLoser(t *testing.T) {
	loser := map[int]slotRow{0: {ItemID: "coins", Quantity: 100}}
	winner := map[int]slotRow{0: {ItemID: "coins", Quantity: math.MaxInt32 - 10}}

	plan := planSettlement(loser, winner, nil, []world.ItemOffer{offer(0, "coins", 100)}, stackableSet("coins"))
	assert.Empty(t, plan.transferred)
	assert.Empty(t, plan.loserRemovals, "overflow leaves the stake untouched")
	require.Len(t, plan.skippedOverflow, 1)
	assert.Equal(t, "coins", plan.skippedOverflow[0].ItemID)
}

func TestPlanSettlementSpillsToBank(t *testing.T) {
	loser := map[int]slotRow{
		0: {ItemID: "dragon_axe", Quantity: 1},
		1: {ItemID: "coins", Quantity: 300},
	}
	winner := make(map[int]slotRow)
	for i := 0; i < world.InventorySize; i++ {
		winner[i] = slotRow{ItemID: "flax", Quantity: 1}
	}
	bank := []bankRow{
		{Tab: 0, Slot: 0, ItemID: "logs", Quantity: 10},
		{Tab: 0, Slot: 1, ItemID: "coins", Quantity: 50},
		{Tab: 1, Slot: 0, ItemID: "ore", Quantity: 3},
	}

	plan := planSettlement(loser, winner, bank,
		[]world.ItemOffer{offer(0, "dragon_axe", 1), offer(1, "coins", 300)},
		stackableSet("coins"))

	// The axe has no bank row: new row in tab 0 at MAX(slot)+1.
	require.Len(t, plan.bankInserts, 1)
	assert.Equal(t, int16(0), plan.bankInserts[0].Tab)
	assert.Equal(t, int16(2), plan.bankInserts[0].Slot)
	assert.Equal(t, "dragon_axe", plan.bankInserts[0].ItemID)

	// The coins merge into the existing bank stack.
	require.Len(t, plan.bankMerges, 1)
	assert.Equal(t, int16(1), plan.bankMerges[0].Slot)
	assert.Equal(t, int32(300), plan.bankMerges[0].Quantity)

	assert.True(t, plan.bankTouched)
	assert.Len(t, plan.transferred, 2)
	assert.Equal(t, []string{"bank", "bank"}, plan.transferredDest)
}

func TestPlanSettlementDropsWhenBankFull(t *testing.T) {
	loser := map[int]slotRow{0: {ItemID: "dragon_axe", Quantity: 1}}
	winner := make(map[int]slotRow)
	for i := 0; i < world.InventorySize; i++ {
		winner[i] = slotRow{ItemID: "flax", Quantity: 1}
	}
	bank := make([]bankRow, 0, world.BankTabCapacity)
	for i := 0; i < world.BankTabCapacity; i++ {
		bank = append(bank, bankRow{Tab: 0, Slot: int16(i), ItemID: "junk", Quantity: 1})
	}

	plan := planSettlement(loser, winner, bank, []world.ItemOffer{offer(0, "dragon_axe", 1)}, stackableSet())
	assert.Empty(t, plan.transferred)
	require.Len(t, plan.dropped, 1)
	assert.Equal(t, "dragon_axe", plan.dropped[0].ItemID)
	// The loser still parts with a dropped item.
	require.Len(t, plan.loserRemovals, 1)
	assert.True(t, plan.loserRemovals[0].Delete)
}

func TestPlanSettlementConservation(t *testing.T) {
	loser := map[int]slotRow{
		0: {ItemID: "coins", Quantity: 2500},
		1: {ItemID: "lobster", Quantity: 14},
		2: {ItemID: "rune_scimitar", Quantity: 1},
	}
	winner := map[int]slotRow{
		0: {ItemID: "coins", Quantity: 100},
	}
	bank := []bankRow{{Tab: 0, Slot: 0, ItemID: "logs", Quantity: 5}}
	stakes := []world.ItemOffer{
		offer(0, "coins", 2500),
		offer(1, "lobster", 20), // more than remains
		offer(2, "rune_scimitar", 1),
	}

	plan := planSettlement(loser, winner, bank, stakes, stackableSet("coins"))
	require.Empty(t, plan.dropped)

	before := totals([]map[int]slotRow{loser, winner}, bank)
	applyRemovals(loser, plan.loserRemovals)
	applyMerges(winner, plan.winnerMerges)
	applyInserts(t, winner, plan.winnerInserts)
	bank = applyBankOps(bank, plan.bankMerges, plan.bankInserts)
	assert.Equal(t, before, totals([]map[int]slotRow{loser, winner}, bank), "settlement conserves items")

	assert.LessOrEqual(t, len(winner), world.InventorySize)
	assert.Empty(t, loser, "everything staked was handed over")
}

func TestPlanSettlementSequentialMergesShareStack(t *testing.T) {
	// Two staked coin rows land on the same winner stack, one after the
	// other, without overshooting the overflow check.
	loser := map[int]slotRow{
		0: {ItemID: "coins", Quantity: 10},
		1: {ItemID: "coins", Quantity: 20},
	}
	winner := map[int]slotRow{3: {ItemID: "coins", Quantity: 5}}

	plan := planSettlement(loser, winner, nil,
		[]world.ItemOffer{offer(0, "coins", 10), offer(1, "coins", 20)},
		stackableSet("coins"))
	require.Len(t, plan.winnerMerges, 2)
	assert.Equal(t, 3, plan.winnerMerges[0].Slot)
	assert.Equal(t, 3, plan.winnerMerges[1].Slot)

	applyMerges(winner, plan.winnerMerges)
	assert.Equal(t, int32(35), winner[3].Quantity)
}

func TestCancelReasonMapping(t *testing.T) {
	assert.Equal(t, "ITEM_CHANGED", CancelReason(ErrItemChanged))
	assert.Equal(t, "UNTRADEABLE_ITEM", CancelReason(ErrUntradeable))
	assert.Equal(t, "INVENTORY_FULL_INITIATOR", CancelReason(ErrInventoryFullInitiator))
	assert.Equal(t, "INVENTORY_FULL_RECIPIENT", CancelReason(ErrInventoryFullRecipient))
	assert.Equal(t, "server_error", CancelReason(assert.AnError))
}
