package persist

import (
	"math"
	"sort"

	"github.com/runegate/server/internal/world"
)

// slotRow is the transaction-local view of one inventory row, as re-selected
// under FOR UPDATE. The database is the authority here, not the mirror.
type slotRow struct {
	ItemID   string
	Quantity int32
	Metadata []byte
}

// bankRow is the transaction-local view of one bank_storage row.
type bankRow struct {
	Tab      int16
	Slot     int16
	ItemID   string
	Quantity int32
}

type removeOp struct {
	Slot   int
	Qty    int32
	Delete bool // full removal deletes the row instead of reducing it
}

type insertOp struct {
	Slot     int
	ItemID   string
	Quantity int32
	Metadata []byte
}

type mergeOp struct {
	Slot int
	Qty  int32
}

type bankOp struct {
	Tab      int16
	Slot     int16
	ItemID   string
	Quantity int32
}

// swapPlan is the full set of row operations a trade commit performs.
// Removals run first on both sides, then inserts, so freed slots are
// genuinely free when the incoming items land.
type swapPlan struct {
	removeInitiator []removeOp
	removeRecipient []removeOp
	insertInitiator []insertOp // items the initiator receives
	insertRecipient []insertOp
}

// planSwap validates both offer lists against the locked rows and lays out
// the two-phase swap. It never mutates its inputs; an error means no row
// operation may run.
func planSwap(initiatorRows, recipientRows map[int]slotRow, initiatorOffers, recipientOffers []world.ItemOffer, tradeable func(string) bool) (*swapPlan, error) {
	if err := verifyOffers(initiatorRows, initiatorOffers, tradeable); err != nil {
		return nil, err
	}
	if err := verifyOffers(recipientRows, recipientOffers, tradeable); err != nil {
		return nil, err
	}

	removeI, freedI := removalOps(initiatorRows, initiatorOffers)
	removeR, freedR := removalOps(recipientRows, recipientOffers)

	// Each incoming line lands in its own slot; capacity counts the slots
	// the outgoing items free up.
	freeI := freeSlotsAfter(initiatorRows, freedI)
	if len(recipientOffers) > len(freeI) {
		return nil, ErrInventoryFullInitiator
	}
	freeR := freeSlotsAfter(recipientRows, freedR)
	if len(initiatorOffers) > len(freeR) {
		return nil, ErrInventoryFullRecipient
	}

	return &swapPlan{
		removeInitiator: removeI,
		removeRecipient: removeR,
		insertInitiator: insertionOps(freeI, recipientOffers, recipientRows),
		insertRecipient: insertionOps(freeR, initiatorOffers, initiatorRows),
	}, nil
}

// verifyOffers asserts every offered line still matches the authoritative
// rows: right item at the claimed slot, enough quantity, tradeable, and no
// slot offered twice.
func verifyOffers(rows map[int]slotRow, offers []world.ItemOffer, tradeable func(string) bool) error {
	seen := make(map[int]bool, len(offers))
	for _, offer := range offers {
		if offer.Quantity <= 0 || seen[offer.InvSlot] {
			return ErrItemChanged
		}
		seen[offer.InvSlot] = true
		row, ok := rows[offer.InvSlot]
		if !ok || row.ItemID != offer.ItemID || row.Quantity < offer.Quantity {
			return ErrItemChanged
		}
		if !tradeable(offer.ItemID) {
			return ErrUntradeable
		}
	}
	return nil
}

func removalOps(rows map[int]slotRow, offers []world.ItemOffer) (ops []removeOp, freed []int) {
	for _, offer := range offers {
		full := rows[offer.InvSlot].Quantity == offer.Quantity
		ops = append(ops, removeOp{Slot: offer.InvSlot, Qty: offer.Quantity, Delete: full})
		if full {
			freed = append(freed, offer.InvSlot)
		}
	}
	return ops, freed
}

// freeSlotsAfter orders the slots incoming items may take: slots freed by
// this trade first, then the already-empty ones, each ascending.
func freeSlotsAfter(rows map[int]slotRow, freed []int) []int {
	out := append([]int{}, freed...)
	sort.Ints(out)
	for i := 0; i < world.InventorySize; i++ {
		if _, occupied := rows[i]; !occupied {
			out = append(out, i)
		}
	}
	return out
}

// insertionOps assigns incoming offers to the free-slot order, carrying the
// source row's metadata with the item.
func insertionOps(free []int, incoming []world.ItemOffer, sourceRows map[int]slotRow) []insertOp {
	ops := make([]insertOp, 0, len(incoming))
	for i, offer := range incoming {
		ops = append(ops, insertOp{
			Slot:     free[i],
			ItemID:   offer.ItemID,
			Quantity: offer.Quantity,
			Metadata: sourceRows[offer.InvSlot].Metadata,
		})
	}
	return ops
}

// settlementPlan is the row-operation layout for a duel stake transfer, plus
// the per-stake outcomes the caller reports to players.
type settlementPlan struct {
	loserRemovals []removeOp
	winnerMerges  []mergeOp
	winnerInserts []insertOp
	bankMerges    []bankOp
	bankInserts   []bankOp

	transferred     []world.ItemOffer // quantity = what actually moved
	transferredDest []string          // parallel to transferred: "inventory" | "bank"
	skippedChanged  []world.ItemOffer // loser row no longer matches; stays put
	skippedOverflow []world.ItemOffer // stack would overflow int32; stays with loser
	dropped         []world.ItemOffer // removed from loser, bank tab 0 full

	bankTouched bool
}

// planSettlement lays out a stake transfer against the locked rows. Stakes
// whose loser row changed are skipped rather than failed — the loser may
// have eaten or dropped staked items mid-fight, and partial rows transfer
// what remains. Items that cannot land anywhere stay with the loser, except
// the bank-tab-0-full case which drops them.
func planSettlement(loserRows, winnerRows map[int]slotRow, bankRows []bankRow, stakes []world.ItemOffer, stackable func(string) bool) *settlementPlan {
	plan := &settlementPlan{}

	loserWork := make(map[int]slotRow, len(loserRows))
	for k, v := range loserRows {
		loserWork[k] = v
	}
	winnerWork := make(map[int]slotRow, len(winnerRows))
	for k, v := range winnerRows {
		winnerWork[k] = v
	}
	bankWork := append([]bankRow{}, bankRows...)

	tab0Count := 0
	nextSpillSlot := 0
	for _, r := range bankWork {
		if r.Tab == 0 {
			tab0Count++
			if int(r.Slot)+1 > nextSpillSlot {
				nextSpillSlot = int(r.Slot) + 1
			}
		}
	}

	for _, stake := range stakes {
		row, ok := loserWork[stake.InvSlot]
		if !ok || row.ItemID != stake.ItemID || stake.Quantity <= 0 {
			plan.skippedChanged = append(plan.skippedChanged, stake)
			continue
		}
		moved := stake.Quantity
		if moved > row.Quantity {
			moved = row.Quantity
		}

		// Resolve the destination before touching the loser: a stake that
		// cannot land must stay exactly where it is.
		placed := false
		dest := "inventory"
		if stackable(stake.ItemID) {
			if slot, found := lowestSlotWith(winnerWork, stake.ItemID); found {
				if int64(winnerWork[slot].Quantity)+int64(moved) > math.MaxInt32 {
					plan.skippedOverflow = append(plan.skippedOverflow, stake)
					continue
				}
				w := winnerWork[slot]
				w.Quantity += moved
				winnerWork[slot] = w
				plan.winnerMerges = append(plan.winnerMerges, mergeOp{Slot: slot, Qty: moved})
				placed = true
			}
		}
		if !placed {
			if slot, found := firstFreeSlot(winnerWork); found {
				winnerWork[slot] = slotRow{ItemID: stake.ItemID, Quantity: moved, Metadata: row.Metadata}
				plan.winnerInserts = append(plan.winnerInserts, insertOp{
					Slot: slot, ItemID: stake.ItemID, Quantity: moved, Metadata: row.Metadata,
				})
				placed = true
			}
		}
		if !placed {
			// Inventory full: spill to the bank, where everything stacks.
			if idx, found := firstBankRowWith(bankWork, stake.ItemID); found {
				if int64(bankWork[idx].Quantity)+int64(moved) > math.MaxInt32 {
					plan.skippedOverflow = append(plan.skippedOverflow, stake)
					continue
				}
				bankWork[idx].Quantity += moved
				plan.bankMerges = append(plan.bankMerges, bankOp{
					Tab: bankWork[idx].Tab, Slot: bankWork[idx].Slot, ItemID: stake.ItemID, Quantity: moved,
				})
				plan.bankTouched = true
				placed = true
				dest = "bank"
			} else if tab0Count < world.BankTabCapacity {
				op := bankOp{Tab: 0, Slot: int16(nextSpillSlot), ItemID: stake.ItemID, Quantity: moved}
				bankWork = append(bankWork, bankRow(op))
				plan.bankInserts = append(plan.bankInserts, op)
				nextSpillSlot++
				tab0Count++
				plan.bankTouched = true
				placed = true
				dest = "bank"
			}
		}

		out := stake
		out.Quantity = moved
		if placed {
			plan.transferred = append(plan.transferred, out)
			plan.transferredDest = append(plan.transferredDest, dest)
		} else {
			plan.dropped = append(plan.dropped, out)
		}

		// The loser parts with the quantity whether it landed or dropped.
		row.Quantity -= moved
		if row.Quantity == 0 {
			delete(loserWork, stake.InvSlot)
			plan.loserRemovals = append(plan.loserRemovals, removeOp{Slot: stake.InvSlot, Qty: moved, Delete: true})
		} else {
			loserWork[stake.InvSlot] = row
			plan.loserRemovals = append(plan.loserRemovals, removeOp{Slot: stake.InvSlot, Qty: moved})
		}
	}
	return plan
}

func lowestSlotWith(rows map[int]slotRow, itemID string) (int, bool) {
	best := -1
	for slot, row := range rows {
		if row.ItemID == itemID && (best < 0 || slot < best) {
			best = slot
		}
	}
	return best, best >= 0
}

func firstFreeSlot(rows map[int]slotRow) (int, bool) {
	for i := 0; i < world.InventorySize; i++ {
		if _, occupied := rows[i]; !occupied {
			return i, true
		}
	}
	return 0, false
}

func firstBankRowWith(rows []bankRow, itemID string) (int, bool) {
	for i, r := range rows {
		if r.ItemID == itemID {
			return i, true
		}
	}
	return -1, false
}
