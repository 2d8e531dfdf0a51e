package persist

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
)

// EntityDoc is the decoded entities.data document. Type dispatches the boot
// loader: "mob" rows become spawn definitions, "resource" rows gatherable
// nodes, "range" rows cooking stations. Unknown types are logged and
// skipped so a newer schema doesn't brick an older server.
type EntityDoc struct {
	Type string  `json:"type"`
	Name string  `json:"name"`
	X    float64 `json:"x"`
	Z    float64 `json:"z"`

	// Mob spawns.
	MaxHP            int    `json:"maxHp,omitempty"`
	Damage           int    `json:"damage,omitempty"`
	AttackRange      int    `json:"attackRange,omitempty"`
	AttackType       string `json:"attackType,omitempty"`
	AttackSpeedTicks int    `json:"attackSpeedTicks,omitempty"`
	AggroRange       int    `json:"aggroRange,omitempty"`
	WanderRadius     int    `json:"wanderRadius,omitempty"`
	RespawnTicks     int    `json:"respawnTicks,omitempty"`
	XP               int64  `json:"xp,omitempty"`
	DropItemID       string `json:"dropItemId,omitempty"`
	DropQuantity     int32  `json:"dropQuantity,omitempty"`

	// Resource nodes.
	Kind           string `json:"kind,omitempty"` // tree | rock | fishing
	Skill          string `json:"skill,omitempty"`
	YieldItemID    string `json:"yieldItemId,omitempty"`
	YieldXP        int64  `json:"yieldXp,omitempty"`
	CycleTicks     int    `json:"cycleTicks,omitempty"`
	RequiredToolID string `json:"requiredToolId,omitempty"`

	// NPCs.
	DialogueScript string `json:"dialogueScript,omitempty"`
	Store          bool   `json:"store,omitempty"`
}

// EntityRecord pairs a decoded doc with its row id; the id keys respawns and
// saves back to the same row.
type EntityRecord struct {
	ID  int64
	Doc EntityDoc
}

type EntityRepo struct {
	db *DB
}

func NewEntityRepo(db *DB) *EntityRepo {
	return &EntityRepo{db: db}
}

// LoadAll reads every world entity row. Called once at startup.
func (r *EntityRepo) LoadAll(ctx context.Context) ([]EntityRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id, data FROM entities ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []EntityRecord
	for rows.Next() {
		var (
			rec EntityRecord
			raw []byte
		)
		if err := rows.Scan(&rec.ID, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &rec.Doc); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (r *EntityRepo) Insert(ctx context.Context, doc EntityDoc) (int64, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.db.Pool.QueryRow(ctx,
		`INSERT INTO entities (data) VALUES ($1) RETURNING id`, raw,
	).Scan(&id)
	return id, err
}

func (r *EntityRepo) Update(ctx context.Context, id int64, doc EntityDoc) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = r.db.Pool.Exec(ctx, `UPDATE entities SET data = $1 WHERE id = $2`, raw, id)
	return err
}

func (r *EntityRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM entities WHERE id = $1`, id)
	return err
}

func (r *EntityRepo) Load(ctx context.Context, id int64) (*EntityRecord, error) {
	var raw []byte
	rec := &EntityRecord{ID: id}
	err := r.db.Pool.QueryRow(ctx, `SELECT data FROM entities WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &rec.Doc); err != nil {
		return nil, err
	}
	return rec, nil
}
