package persist

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/runegate/server/internal/world"
)

// InventoryRow is one occupied inventory slot as stored. quantity > 0 always;
// an emptied slot is a deleted row.
type InventoryRow struct {
	PlayerID  int64
	SlotIndex int16
	ItemID    string
	Quantity  int32
	Metadata  []byte
}

type InventoryRepo struct {
	db *DB
}

func NewInventoryRepo(db *DB) *InventoryRepo {
	return &InventoryRepo{db: db}
}

// Load reads a player's slots into the fixed 28-slot mirror shape.
func (r *InventoryRepo) Load(ctx context.Context, playerID int64) ([]*world.ItemStack, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT slot_index, item_id, quantity, metadata
		 FROM inventory WHERE player_id = $1 ORDER BY slot_index`, playerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSlots(rows)
}

func scanSlots(rows pgx.Rows) ([]*world.ItemStack, error) {
	slots := make([]*world.ItemStack, world.InventorySize)
	for rows.Next() {
		var (
			slot int16
			s    world.ItemStack
			meta []byte
		)
		if err := rows.Scan(&slot, &s.ItemID, &s.Quantity, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &s.Metadata); err != nil {
				return nil, err
			}
		}
		if slot >= 0 && int(slot) < world.InventorySize {
			slots[slot] = &s
		}
	}
	return slots, rows.Err()
}

// ReplaceAll flushes the in-memory mirror: delete every row, re-insert the
// occupied slots. One transaction so a crash never leaves half an inventory.
func (r *InventoryRepo) ReplaceAll(ctx context.Context, playerID int64, slots []*world.ItemStack) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := replaceAllTx(ctx, tx, playerID, slots); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func replaceAllTx(ctx context.Context, tx pgx.Tx, playerID int64, slots []*world.ItemStack) error {
	if _, err := tx.Exec(ctx, `DELETE FROM inventory WHERE player_id = $1`, playerID); err != nil {
		return err
	}
	for i, s := range slots {
		if s == nil || s.Quantity <= 0 {
			continue
		}
		var meta []byte
		if len(s.Metadata) > 0 {
			var err error
			if meta, err = json.Marshal(s.Metadata); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO inventory (player_id, slot_index, item_id, quantity, metadata)
			 VALUES ($1, $2, $3, $4, $5)`,
			playerID, int16(i), s.ItemID, s.Quantity, meta,
		); err != nil {
			return err
		}
	}
	return nil
}

// lockRows re-selects a player's inventory FOR UPDATE, ordered by slot, and
// returns it keyed by slot index. Economic transactions call this inside
// their own tx; the row locks hold until commit or rollback.
func (r *InventoryRepo) lockRows(ctx context.Context, tx pgx.Tx, playerID int64) (map[int]slotRow, error) {
	rows, err := tx.Query(ctx,
		`SELECT slot_index, item_id, quantity, metadata
		 FROM inventory WHERE player_id = $1 ORDER BY slot_index FOR UPDATE`, playerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	view := make(map[int]slotRow)
	for rows.Next() {
		var (
			slot int16
			row  slotRow
		)
		if err := rows.Scan(&slot, &row.ItemID, &row.Quantity, &row.Metadata); err != nil {
			return nil, err
		}
		view[int(slot)] = row
	}
	return view, rows.Err()
}

func (r *InventoryRepo) reduceRow(ctx context.Context, tx pgx.Tx, playerID int64, slot int, qty int32, remove bool) error {
	if remove {
		_, err := tx.Exec(ctx,
			`DELETE FROM inventory WHERE player_id = $1 AND slot_index = $2`,
			playerID, int16(slot),
		)
		return err
	}
	_, err := tx.Exec(ctx,
		`UPDATE inventory SET quantity = quantity - $3
		 WHERE player_id = $1 AND slot_index = $2`,
		playerID, int16(slot), qty,
	)
	return err
}

func (r *InventoryRepo) insertRow(ctx context.Context, tx pgx.Tx, playerID int64, slot int, itemID string, qty int32, metadata []byte) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO inventory (player_id, slot_index, item_id, quantity, metadata)
		 VALUES ($1, $2, $3, $4, $5)`,
		playerID, int16(slot), itemID, qty, metadata,
	)
	return err
}

func (r *InventoryRepo) addToRow(ctx context.Context, tx pgx.Tx, playerID int64, slot int, qty int32) error {
	_, err := tx.Exec(ctx,
		`UPDATE inventory SET quantity = quantity + $3
		 WHERE player_id = $1 AND slot_index = $2`,
		playerID, int16(slot), qty,
	)
	return err
}
