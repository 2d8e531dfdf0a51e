package persist

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// SocialLists is the loaded social state for one character: accepted
// friends, incoming requests awaiting an answer, and the ignore list. All
// three map character id to current display name.
type SocialLists struct {
	Friends  map[int64]string
	Incoming map[int64]string
	Ignored  map[int64]string
}

type SocialRepo struct {
	db *DB
}

func NewSocialRepo(db *DB) *SocialRepo {
	return &SocialRepo{db: db}
}

func scanNames(rows pgx.Rows) (map[int64]string, error) {
	defer rows.Close()
	out := make(map[int64]string)
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}

// Load reads all three lists for enter-world.
func (r *SocialRepo) Load(ctx context.Context, userID int64) (*SocialLists, error) {
	out := &SocialLists{}

	rows, err := r.db.Pool.Query(ctx,
		`SELECT f.friend_id, u.name FROM friends f
		 JOIN users u ON u.id = f.friend_id
		 WHERE f.user_id = $1 AND NOT f.pending`, userID)
	if err != nil {
		return nil, err
	}
	if out.Friends, err = scanNames(rows); err != nil {
		return nil, err
	}

	rows, err = r.db.Pool.Query(ctx,
		`SELECT f.user_id, u.name FROM friends f
		 JOIN users u ON u.id = f.user_id
		 WHERE f.friend_id = $1 AND f.pending`, userID)
	if err != nil {
		return nil, err
	}
	if out.Incoming, err = scanNames(rows); err != nil {
		return nil, err
	}

	rows, err = r.db.Pool.Query(ctx,
		`SELECT i.ignored_id, u.name FROM ignores i
		 JOIN users u ON u.id = i.ignored_id
		 WHERE i.user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	if out.Ignored, err = scanNames(rows); err != nil {
		return nil, err
	}
	return out, nil
}

// RequestFriend records a pending request from one character to another.
// Re-requesting an existing friendship or open request is a no-op.
func (r *SocialRepo) RequestFriend(ctx context.Context, fromID, toID int64) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO friends (user_id, friend_id, pending) VALUES ($1, $2, TRUE)
		 ON CONFLICT (user_id, friend_id) DO NOTHING`,
		fromID, toID)
	return err
}

// AcceptFriend settles a pending request both ways: the requester's row
// stops pending and the accepter gains the reverse row.
func (r *SocialRepo) AcceptFriend(ctx context.Context, userID, requesterID int64) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE friends SET pending = FALSE
		 WHERE user_id = $1 AND friend_id = $2 AND pending`,
		requesterID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO friends (user_id, friend_id, pending) VALUES ($1, $2, FALSE)
		 ON CONFLICT (user_id, friend_id) DO UPDATE SET pending = FALSE`,
		userID, requesterID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DeclineFriend drops a pending request aimed at userID.
func (r *SocialRepo) DeclineFriend(ctx context.Context, userID, requesterID int64) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM friends WHERE user_id = $1 AND friend_id = $2 AND pending`,
		requesterID, userID)
	return err
}

// RemoveFriend is one-directional: the removed side keeps their row.
func (r *SocialRepo) RemoveFriend(ctx context.Context, userID, friendID int64) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM friends WHERE user_id = $1 AND friend_id = $2`,
		userID, friendID)
	return err
}

func (r *SocialRepo) AddIgnore(ctx context.Context, userID, ignoredID int64) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO ignores (user_id, ignored_id) VALUES ($1, $2)
		 ON CONFLICT (user_id, ignored_id) DO NOTHING`,
		userID, ignoredID)
	return err
}

func (r *SocialRepo) RemoveIgnore(ctx context.Context, userID, ignoredID int64) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM ignores WHERE user_id = $1 AND ignored_id = $2`,
		userID, ignoredID)
	return err
}
