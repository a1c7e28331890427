package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// StateStore keeps OAuth state tokens in the oauth_states table.
type StateStore struct {
	db *sql.DB
}

func NewStateStore(db *sql.DB) *StateStore { return &StateStore{db: db} }

func (s *StateStore) Save(ctx context.Context, value string, createdAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO oauth_states (value, created_at) VALUES ($1, $2)`, value, createdAt)
	return err
}

// Take deletes the row and returns its creation time in one statement, so
// two concurrent callbacks cannot both observe the same token.
func (s *StateStore) Take(ctx context.Context, value string) (time.Time, bool, error) {
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx, `DELETE FROM oauth_states WHERE value = $1 RETURNING created_at`, value).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return createdAt, true, nil
}

func (s *StateStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM oauth_states WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
