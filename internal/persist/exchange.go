package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/runegate/server/internal/data"
	"github.com/runegate/server/internal/world"
)

// Failure modes of a trade swap. Everything else maps to server_error.
var (
	ErrItemChanged            = errors.New("offered item changed")
	ErrUntradeable            = errors.New("untradeable item offered")
	ErrInventoryFullInitiator = errors.New("initiator inventory full")
	ErrInventoryFullRecipient = errors.New("recipient inventory full")
)

// CancelReason maps a swap failure onto the wire error code carried by
// tradeCancelled.
func CancelReason(err error) string {
	switch {
	case errors.Is(err, ErrItemChanged):
		return "ITEM_CHANGED"
	case errors.Is(err, ErrUntradeable):
		return "UNTRADEABLE_ITEM"
	case errors.Is(err, ErrInventoryFullInitiator):
		return "INVENTORY_FULL_INITIATOR"
	case errors.Is(err, ErrInventoryFullRecipient):
		return "INVENTORY_FULL_RECIPIENT"
	default:
		return "server_error"
	}
}

// Exchange runs the two economic flows — trade swaps and duel stake
// settlements — against the database. It works entirely on snapshots handed
// over by the game loop and returns fresh row sets for the loop to apply;
// the in-memory transaction locks are the caller's to hold for the duration.
type Exchange struct {
	db      *DB
	inv     *InventoryRepo
	bank    *BankRepo
	catalog *data.Catalog
	settled *IdempotencySet
	log     *zap.Logger
}

func NewExchange(db *DB, inv *InventoryRepo, bank *BankRepo, catalog *data.Catalog, log *zap.Logger) *Exchange {
	return &Exchange{
		db:      db,
		inv:     inv,
		bank:    bank,
		catalog: catalog,
		settled: NewIdempotencySet(SettlementIdempotencyTTL),
		log:     log,
	}
}

// TradeParty is one side of a swap: the persistence key, the accepted offer
// lines, and the inventory snapshot taken on the game loop.
type TradeParty struct {
	UserID int64
	Offers []world.ItemOffer
	Slots  []*world.ItemStack
}

// SwapResult carries the post-commit inventories for the game loop to swap
// into the mirrors.
type SwapResult struct {
	InitiatorSlots []*world.ItemStack
	RecipientSlots []*world.ItemStack
}

// ExecuteTradeSwap flushes both snapshots, performs the two-phase swap in a
// single transaction, and reads back the committed inventories. Any error
// means no item moved; the caller cancels the trade with CancelReason(err).
func (e *Exchange) ExecuteTradeSwap(ctx context.Context, initiator, recipient TradeParty) (*SwapResult, error) {
	// Make the database current before it becomes the authority.
	if err := e.inv.ReplaceAll(ctx, initiator.UserID, initiator.Slots); err != nil {
		return nil, fmt.Errorf("flush initiator inventory: %w", err)
	}
	if err := e.inv.ReplaceAll(ctx, recipient.UserID, recipient.Slots); err != nil {
		return nil, fmt.Errorf("flush recipient inventory: %w", err)
	}

	err := e.withTxRetry(ctx, func(tx pgx.Tx) error {
		return e.swapTx(ctx, tx, initiator, recipient)
	})
	if err != nil {
		return nil, err
	}

	result := &SwapResult{}
	err = runWithRetries(ctx, settlementDelays, isTransient, func() error {
		var err error
		if result.InitiatorSlots, err = e.inv.Load(ctx, initiator.UserID); err != nil {
			return err
		}
		result.RecipientSlots, err = e.inv.Load(ctx, recipient.UserID)
		return err
	})
	if err != nil {
		// The swap committed; only the read-back failed. The caller must not
		// let the stale mirrors flush again.
		return nil, fmt.Errorf("%w: %v", ErrMirrorReload, err)
	}
	return result, nil
}

// ErrMirrorReload means a commit succeeded but reading the rows back did
// not. The trade completed; the caller must drop the players' stale mirrors
// (disconnect without saving) instead of cancelling.
var ErrMirrorReload = errors.New("inventory reload after commit failed")

func (e *Exchange) swapTx(ctx context.Context, tx pgx.Tx, initiator, recipient TradeParty) error {
	// Deterministic lock order by user id keeps concurrent swaps from
	// deadlocking each other; the retry ladder handles the rest.
	first, second := initiator.UserID, recipient.UserID
	if second < first {
		first, second = second, first
	}
	firstRows, err := e.inv.lockRows(ctx, tx, first)
	if err != nil {
		return err
	}
	secondRows, err := e.inv.lockRows(ctx, tx, second)
	if err != nil {
		return err
	}
	initiatorRows, recipientRows := firstRows, secondRows
	if first != initiator.UserID {
		initiatorRows, recipientRows = secondRows, firstRows
	}

	plan, err := planSwap(initiatorRows, recipientRows, initiator.Offers, recipient.Offers, e.catalog.Tradeable)
	if err != nil {
		return err
	}

	// Phase 1: both sides part with their offers.
	for _, op := range plan.removeInitiator {
		if err := e.inv.reduceRow(ctx, tx, initiator.UserID, op.Slot, op.Qty, op.Delete); err != nil {
			return err
		}
	}
	for _, op := range plan.removeRecipient {
		if err := e.inv.reduceRow(ctx, tx, recipient.UserID, op.Slot, op.Qty, op.Delete); err != nil {
			return err
		}
	}
	// Phase 2: incoming items land, freed slots first.
	for _, op := range plan.insertInitiator {
		if err := e.inv.insertRow(ctx, tx, initiator.UserID, op.Slot, op.ItemID, op.Quantity, op.Metadata); err != nil {
			return err
		}
	}
	for _, op := range plan.insertRecipient {
		if err := e.inv.insertRow(ctx, tx, recipient.UserID, op.Slot, op.ItemID, op.Quantity, op.Metadata); err != nil {
			return err
		}
	}

	return e.logSwap(ctx, tx, initiator, recipient)
}

// StakeParty is one duelist: persistence key, inventory snapshot, and (for
// the winner) the bank mirror snapshot when one is loaded.
type StakeParty struct {
	UserID int64
	Slots  []*world.ItemStack
	Bank   *world.Bank
}

// SettlementResult reports what a stake settlement did. Transferred
// quantities are what actually moved (possibly less than staked when the
// loser consumed items mid-fight).
type SettlementResult struct {
	Suppressed      bool // duplicate fire inside the idempotency window
	Transferred     []world.ItemOffer
	SkippedOverflow []world.ItemOffer
	Dropped         []world.ItemOffer

	WinnerSlots []*world.ItemStack
	LoserSlots  []*world.ItemStack
	WinnerBank  *world.Bank // fresh mirror when the spill touched a loaded bank
}

// SettleStakes moves the loser's staked items to the winner. Stakes whose
// rows changed are skipped silently; overflow keeps items with the loser;
// full inventories spill to bank tab 0. On permanent failure everything
// stays with the loser — the settlement never half-applies.
func (e *Exchange) SettleStakes(ctx context.Context, winner, loser StakeParty, stakes []world.ItemOffer) (*SettlementResult, error) {
	key := fmt.Sprintf("%d:%d", winner.UserID, loser.UserID)
	if !e.settled.Claim(key) {
		e.log.Debug("duplicate stake settlement suppressed", zap.String("key", key))
		return &SettlementResult{Suppressed: true}, nil
	}
	if len(stakes) == 0 {
		return &SettlementResult{}, nil
	}

	var result *SettlementResult
	err := runWithRetries(ctx, settlementDelays, isTransient, func() error {
		r, err := e.settleAttempt(ctx, winner, loser, stakes)
		if err != nil {
			e.log.Warn("stake settlement attempt failed",
				zap.Int64("winner", winner.UserID),
				zap.Int64("loser", loser.UserID),
				zap.Error(err))
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Exchange) settleAttempt(ctx context.Context, winner, loser StakeParty, stakes []world.ItemOffer) (*SettlementResult, error) {
	if err := e.inv.ReplaceAll(ctx, winner.UserID, winner.Slots); err != nil {
		return nil, fmt.Errorf("flush winner inventory: %w", err)
	}
	if err := e.inv.ReplaceAll(ctx, loser.UserID, loser.Slots); err != nil {
		return nil, fmt.Errorf("flush loser inventory: %w", err)
	}
	if winner.Bank != nil && winner.Bank.Loaded && winner.Bank.Dirty {
		if err := e.bank.ReplaceAll(ctx, winner.UserID, winner.Bank); err != nil {
			return nil, fmt.Errorf("flush winner bank: %w", err)
		}
	}

	var plan *settlementPlan
	err := e.withTxRetry(ctx, func(tx pgx.Tx) error {
		p, err := e.settleTx(ctx, tx, winner.UserID, loser.UserID, stakes)
		if err != nil {
			return err
		}
		plan = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, item := range plan.dropped {
		e.log.Error("staked item dropped, winner bank tab 0 full",
			zap.Int64("winner", winner.UserID),
			zap.Int64("loser", loser.UserID),
			zap.String("item", item.ItemID),
			zap.Int32("quantity", item.Quantity))
	}

	result := &SettlementResult{
		Transferred:     plan.transferred,
		SkippedOverflow: plan.skippedOverflow,
		Dropped:         plan.dropped,
	}
	if result.WinnerSlots, err = e.inv.Load(ctx, winner.UserID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMirrorReload, err)
	}
	if result.LoserSlots, err = e.inv.Load(ctx, loser.UserID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMirrorReload, err)
	}
	if plan.bankTouched && winner.Bank != nil && winner.Bank.Loaded {
		fresh, err := e.bank.Load(ctx, winner.UserID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMirrorReload, err)
		}
		fresh.AlwaysPlaceholder = winner.Bank.AlwaysPlaceholder
		result.WinnerBank = fresh
	}
	return result, nil
}

func (e *Exchange) settleTx(ctx context.Context, tx pgx.Tx, winnerID, loserID int64, stakes []world.ItemOffer) (*settlementPlan, error) {
	first, second := winnerID, loserID
	if second < first {
		first, second = second, first
	}
	firstRows, err := e.inv.lockRows(ctx, tx, first)
	if err != nil {
		return nil, err
	}
	secondRows, err := e.inv.lockRows(ctx, tx, second)
	if err != nil {
		return nil, err
	}
	winnerRows, loserRows := firstRows, secondRows
	if first != winnerID {
		winnerRows, loserRows = secondRows, firstRows
	}
	bankRows, err := e.bank.lockRows(ctx, tx, winnerID)
	if err != nil {
		return nil, err
	}

	plan := planSettlement(loserRows, winnerRows, bankRows, stakes, e.catalog.Stackable)

	for _, op := range plan.loserRemovals {
		if err := e.inv.reduceRow(ctx, tx, loserID, op.Slot, op.Qty, op.Delete); err != nil {
			return nil, err
		}
	}
	for _, op := range plan.winnerMerges {
		if err := e.inv.addToRow(ctx, tx, winnerID, op.Slot, op.Qty); err != nil {
			return nil, err
		}
	}
	for _, op := range plan.winnerInserts {
		if err := e.inv.insertRow(ctx, tx, winnerID, op.Slot, op.ItemID, op.Quantity, op.Metadata); err != nil {
			return nil, err
		}
	}
	for _, op := range plan.bankMerges {
		if err := e.bank.addToRow(ctx, tx, winnerID, op.Tab, op.Slot, op.Quantity); err != nil {
			return nil, err
		}
	}
	for _, op := range plan.bankInserts {
		if err := e.bank.insertRow(ctx, tx, winnerID, op.Tab, op.Slot, op.ItemID, op.Quantity); err != nil {
			return nil, err
		}
	}
	if err := e.logSettlement(ctx, tx, winnerID, loserID, plan); err != nil {
		return nil, err
	}
	return plan, nil
}
