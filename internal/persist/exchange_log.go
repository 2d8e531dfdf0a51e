package persist

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// SettlementIdempotencyTTL is how long a winner:loser settlement key stays
// claimed; a duel rematch after the window settles normally.
const SettlementIdempotencyTTL = 60 * time.Second

// exchangeLogEntry is one audit row: an item moving between players, or —
// dest "dropped" — leaving the economy through the bank-full drain. Rows are
// written inside the same transaction as the item movement, so the audit
// never disagrees with what happened.
type exchangeLogEntry struct {
	TxType   string // "trade" | "duel_stakes"
	FromUser int64
	ToUser   int64
	ItemID   string
	Quantity int32
	Dest     string // "inventory" | "bank" | "dropped"
}

func appendExchangeLog(ctx context.Context, tx pgx.Tx, entries []exchangeLogEntry) error {
	for _, en := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO exchange_log (tx_type, from_user, to_user, item_id, quantity, dest)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			en.TxType, en.FromUser, en.ToUser, en.ItemID, en.Quantity, en.Dest,
		); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exchange) logSwap(ctx context.Context, tx pgx.Tx, initiator, recipient TradeParty) error {
	entries := make([]exchangeLogEntry, 0, len(initiator.Offers)+len(recipient.Offers))
	for _, o := range initiator.Offers {
		entries = append(entries, exchangeLogEntry{
			TxType: "trade", FromUser: initiator.UserID, ToUser: recipient.UserID,
			ItemID: o.ItemID, Quantity: o.Quantity, Dest: "inventory",
		})
	}
	for _, o := range recipient.Offers {
		entries = append(entries, exchangeLogEntry{
			TxType: "trade", FromUser: recipient.UserID, ToUser: initiator.UserID,
			ItemID: o.ItemID, Quantity: o.Quantity, Dest: "inventory",
		})
	}
	return appendExchangeLog(ctx, tx, entries)
}

func (e *Exchange) logSettlement(ctx context.Context, tx pgx.Tx, winnerID, loserID int64, plan *settlementPlan) error {
	entries := make([]exchangeLogEntry, 0, len(plan.transferred)+len(plan.dropped))
	for i, o := range plan.transferred {
		entries = append(entries, exchangeLogEntry{
			TxType: "duel_stakes", FromUser: loserID, ToUser: winnerID,
			ItemID: o.ItemID, Quantity: o.Quantity, Dest: plan.transferredDest[i],
		})
	}
	for _, o := range plan.dropped {
		entries = append(entries, exchangeLogEntry{
			TxType: "duel_stakes", FromUser: loserID, ToUser: winnerID,
			ItemID: o.ItemID, Quantity: o.Quantity, Dest: "dropped",
		})
	}
	return appendExchangeLog(ctx, tx, entries)
}
