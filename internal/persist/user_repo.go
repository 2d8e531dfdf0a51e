package persist

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

// UserRow is one character. Accounts have no row of their own: account_id
// groups the characters created under one login, and each row carries the
// bcrypt hash of the account token it was created with.
type UserRow struct {
	ID             int64
	AccountID      string
	Name           string
	PasswordHash   string
	Roles          []string
	X, Y, Z        float64
	Settings       []byte
	ActionBars     []byte
	HomeCooldownAt *time.Time
	CreatedAt      time.Time
}

// BanRow mirrors user_bans. A ban is live while active and not expired;
// banning any character locks the whole account.
type BanRow struct {
	ID             int64
	BannedUserID   int64
	BannedByUserID *int64
	Reason         string
	ExpiresAt      *time.Time
	CreatedAt      time.Time
	Active         bool
}

// Expired reports whether a timed ban has run out. Permanent bans
// (ExpiresAt nil) never expire.
func (b *BanRow) Expired(now time.Time) bool {
	return b.ExpiresAt != nil && !b.ExpiresAt.After(now)
}

type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, account_id, name, password_hash, roles,
	        x, y, z, settings, action_bars, home_cooldown_at, created_at`

func scanUser(row pgx.Row) (*UserRow, error) {
	u := &UserRow{}
	err := row.Scan(
		&u.ID, &u.AccountID, &u.Name, &u.PasswordHash, &u.Roles,
		&u.X, &u.Y, &u.Z, &u.Settings, &u.ActionBars, &u.HomeCooldownAt, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// FirstByAccount returns the oldest character on an account, or nil for a
// fresh account. Authentication compares the token against this row's hash.
func (r *UserRepo) FirstByAccount(ctx context.Context, accountID string) (*UserRow, error) {
	return scanUser(r.db.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE account_id = $1 ORDER BY id LIMIT 1`,
		accountID,
	))
}

func (r *UserRepo) LoadByID(ctx context.Context, id int64) (*UserRow, error) {
	return scanUser(r.db.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
	))
}

func (r *UserRepo) LoadByName(ctx context.Context, name string) (*UserRow, error) {
	return scanUser(r.db.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE name = $1`, name,
	))
}

func (r *UserRepo) CharactersByAccount(ctx context.Context, accountID string) ([]UserRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE account_id = $1 ORDER BY id`,
		accountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []UserRow
	for rows.Next() {
		var u UserRow
		if err := rows.Scan(
			&u.ID, &u.AccountID, &u.Name, &u.PasswordHash, &u.Roles,
			&u.X, &u.Y, &u.Z, &u.Settings, &u.ActionBars, &u.HomeCooldownAt, &u.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (r *UserRepo) NameExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE name = $1)`, name,
	).Scan(&exists)
	return exists, err
}

func (r *UserRepo) CountByAccount(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE account_id = $1`, accountID,
	).Scan(&count)
	return count, err
}

// Create inserts a character. The caller supplies the already-hashed token;
// ID and CreatedAt are filled in on return.
func (r *UserRepo) Create(ctx context.Context, u *UserRow) error {
	if u.Roles == nil {
		u.Roles = []string{}
	}
	if len(u.Settings) == 0 {
		u.Settings = []byte(`{}`)
	}
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO users (account_id, name, password_hash, roles, x, y, z, settings)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		u.AccountID, u.Name, u.PasswordHash, u.Roles, u.X, u.Y, u.Z, u.Settings,
	).Scan(&u.ID, &u.CreatedAt)
}

// SaveState writes the periodically-saved character fields: position, the
// settings document, and the home-teleport cooldown.
func (r *UserRepo) SaveState(ctx context.Context, id int64, x, y, z float64, settings []byte, homeCooldownAt *time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET x = $2, y = $3, z = $4, settings = $5, home_cooldown_at = $6 WHERE id = $1`,
		id, x, y, z, settings, homeCooldownAt,
	)
	return err
}

func (r *UserRepo) SavePosition(ctx context.Context, id int64, x, y, z float64) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET x = $2, y = $3, z = $4 WHERE id = $1`, id, x, y, z,
	)
	return err
}

func (r *UserRepo) LoadActionBars(ctx context.Context, id int64) ([]byte, error) {
	var data []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT action_bars FROM users WHERE id = $1`, id,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (r *UserRepo) SaveActionBars(ctx context.Context, id int64, data []byte) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET action_bars = $1 WHERE id = $2`, data, id,
	)
	return err
}

func (r *UserRepo) HashPassword(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (r *UserRepo) ValidatePassword(hash string, rawPassword string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(rawPassword)) == nil
}

// ActiveBanForAccount returns the live ban covering any character of the
// account, or nil. Timed bans that ran out are skipped.
func (r *UserRepo) ActiveBanForAccount(ctx context.Context, accountID string) (*BanRow, error) {
	b := &BanRow{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT b.id, b.banned_user_id, b.banned_by_user_id, b.reason, b.expires_at, b.created_at, b.active
		 FROM user_bans b
		 JOIN users u ON u.id = b.banned_user_id
		 WHERE u.account_id = $1 AND b.active
		   AND (b.expires_at IS NULL OR b.expires_at > NOW())
		 ORDER BY b.created_at DESC LIMIT 1`,
		accountID,
	).Scan(&b.ID, &b.BannedUserID, &b.BannedByUserID, &b.Reason, &b.ExpiresAt, &b.CreatedAt, &b.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *UserRepo) InsertBan(ctx context.Context, b *BanRow) error {
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO user_bans (banned_user_id, banned_by_user_id, reason, expires_at, active)
		 VALUES ($1, $2, $3, $4, TRUE)
		 RETURNING id, created_at`,
		b.BannedUserID, b.BannedByUserID, b.Reason, b.ExpiresAt,
	).Scan(&b.ID, &b.CreatedAt)
}

func (r *UserRepo) LiftBans(ctx context.Context, bannedUserID int64) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE user_bans SET active = FALSE WHERE banned_user_id = $1 AND active`,
		bannedUserID,
	)
	return err
}
