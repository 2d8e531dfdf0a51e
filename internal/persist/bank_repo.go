package persist

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/runegate/server/internal/world"
)

// BankRow is one bank_storage row. Quantity 0 is a placeholder.
type BankRow struct {
	PlayerID int64
	TabIndex int16
	Slot     int16
	ItemID   string
	Quantity int32
}

type BankRepo struct {
	db *DB
}

func NewBankRepo(db *DB) *BankRepo {
	return &BankRepo{db: db}
}

// Load builds the in-memory bank mirror. Rows come back ordered by
// (tab, slot); appending in that order reproduces the dense tab layout.
func (r *BankRepo) Load(ctx context.Context, playerID int64) (*world.Bank, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT tab_index, slot, item_id, quantity
		 FROM bank_storage WHERE player_id = $1 ORDER BY tab_index, slot`, playerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bank := world.NewBank()
	for rows.Next() {
		var (
			tab, slot int16
			itemID    string
			qty       int32
		)
		if err := rows.Scan(&tab, &slot, &itemID, &qty); err != nil {
			return nil, err
		}
		for int(tab) >= len(bank.Tabs) && len(bank.Tabs) < world.BankMaxTabs {
			bank.CreateTab()
		}
		if int(tab) >= len(bank.Tabs) {
			continue
		}
		t := bank.Tabs[tab]
		t.Slots = append(t.Slots, &world.BankSlot{ItemID: itemID, Quantity: qty})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	bank.Loaded = true
	return bank, nil
}

// ReplaceAll flushes the bank mirror, placeholders included.
func (r *BankRepo) ReplaceAll(ctx context.Context, playerID int64, bank *world.Bank) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM bank_storage WHERE player_id = $1`, playerID); err != nil {
		return err
	}
	for tabIdx, tab := range bank.Tabs {
		for slotIdx, s := range tab.Slots {
			if s == nil {
				continue
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO bank_storage (player_id, tab_index, slot, item_id, quantity)
				 VALUES ($1, $2, $3, $4, $5)`,
				playerID, int16(tabIdx), int16(slotIdx), s.ItemID, s.Quantity,
			); err != nil {
				return err
			}
		}
	}
	return tx.Commit(ctx)
}

// lockRows re-selects a player's bank FOR UPDATE for stake-spill writes.
func (r *BankRepo) lockRows(ctx context.Context, tx pgx.Tx, playerID int64) ([]bankRow, error) {
	rows, err := tx.Query(ctx,
		`SELECT tab_index, slot, item_id, quantity
		 FROM bank_storage WHERE player_id = $1 ORDER BY tab_index, slot FOR UPDATE`, playerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var view []bankRow
	for rows.Next() {
		var b bankRow
		if err := rows.Scan(&b.Tab, &b.Slot, &b.ItemID, &b.Quantity); err != nil {
			return nil, err
		}
		view = append(view, b)
	}
	return view, rows.Err()
}

func (r *BankRepo) addToRow(ctx context.Context, tx pgx.Tx, playerID int64, tab, slot int16, qty int32) error {
	_, err := tx.Exec(ctx,
		`UPDATE bank_storage SET quantity = quantity + $4
		 WHERE player_id = $1 AND tab_index = $2 AND slot = $3`,
		playerID, tab, slot, qty,
	)
	return err
}

func (r *BankRepo) insertRow(ctx context.Context, tx pgx.Tx, playerID int64, tab, slot int16, itemID string, qty int32) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO bank_storage (player_id, tab_index, slot, item_id, quantity)
		 VALUES ($1, $2, $3, $4, $5)`,
		playerID, tab, slot, itemID, qty,
	)
	return err
}
