package persist

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
)

// Well-known config keys. Values are jsonb; the typed accessors below wrap
// the common ones.
const (
	ConfigKeySpawnPoint    = "spawn_point"
	ConfigKeyWorldSettings = "world_settings"
	ConfigKeyMOTD          = "motd"
)

// SpawnPoint is where new and respawning characters land.
type SpawnPoint struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

type ConfigRepo struct {
	db *DB
}

func NewConfigRepo(db *DB) *ConfigRepo {
	return &ConfigRepo{db: db}
}

// Get returns the raw jsonb value, or ok=false when the key is absent.
func (r *ConfigRepo) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var raw []byte
	err := r.db.Pool.QueryRow(ctx, `SELECT value FROM config WHERE key = $1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// Set upserts a key. value is marshalled to jsonb.
func (r *ConfigRepo) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = r.db.Pool.Exec(ctx,
		`INSERT INTO config (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, raw,
	)
	return err
}

// LoadAll reads the whole table, for the boot snapshot.
func (r *ConfigRepo) LoadAll(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT key, value FROM config`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]json.RawMessage)
	for rows.Next() {
		var (
			key string
			raw []byte
		)
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		out[key] = raw
	}
	return out, rows.Err()
}

// SpawnPoint returns the configured spawn, or ok=false when unset (the
// caller falls back to the world origin).
func (r *ConfigRepo) SpawnPoint(ctx context.Context) (SpawnPoint, bool, error) {
	raw, ok, err := r.Get(ctx, ConfigKeySpawnPoint)
	if err != nil || !ok {
		return SpawnPoint{}, false, err
	}
	var sp SpawnPoint
	if err := json.Unmarshal(raw, &sp); err != nil {
		return SpawnPoint{}, false, err
	}
	return sp, true, nil
}

func (r *ConfigRepo) SetSpawnPoint(ctx context.Context, sp SpawnPoint) error {
	return r.Set(ctx, ConfigKeySpawnPoint, sp)
}
