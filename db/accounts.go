package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mael-queau/roboct0-api/accounts"
	"github.com/mael-queau/roboct0-api/apperr"
	"github.com/mael-queau/roboct0-api/crypto"
)

// AccountStore keeps Twitch channels and Discord guilds in their own tables.
// Tokens are sealed with the configured cipher on the way in and opened on
// the way out; each row records the encryption version and key id used.
type AccountStore struct {
	db     *sql.DB
	cipher crypto.TokenCipher
}

// NewAccountStore returns an AccountStore. A nil cipher stores plaintext.
func NewAccountStore(db *sql.DB, cipher crypto.TokenCipher) *AccountStore {
	if cipher == nil {
		cipher = crypto.Plaintext{}
	}
	return &AccountStore{db: db, cipher: cipher}
}

func table(p accounts.Provider) (string, error) {
	switch p {
	case accounts.Twitch:
		return "channels", nil
	case accounts.Discord:
		return "guilds", nil
	}
	return "", apperr.Newf(apperr.InvalidRequest, "Unknown provider %q.", string(p))
}

func accountNotFound(p accounts.Provider) string {
	noun := p.Noun()
	return strings.ToUpper(noun[:1]) + noun[1:] + " not found."
}

// selectColumns returns the column list for p. Channels carry the number of
// commands and quotes they own; guilds report zero.
func selectColumns(p accounts.Provider) string {
	cols := `id, username, access_token, refresh_token, enabled, registered_at, last_refresh, encryption_version`
	if p == accounts.Twitch {
		return cols + `,
		(SELECT COUNT(*) FROM commands c WHERE c.channel_id = channels.id),
		(SELECT COUNT(*) FROM quotes q WHERE q.channel_id = channels.id)`
	}
	return cols + `, 0, 0`
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *AccountStore) scan(p accounts.Provider, row rowScanner) (accounts.LinkedAccount, error) {
	a := accounts.LinkedAccount{Provider: p}
	var access, refresh string
	var version int
	if err := row.Scan(&a.ExternalID, &a.Username, &access, &refresh, &a.Enabled,
		&a.RegisteredAt, &a.LastRefresh, &version, &a.CommandCount, &a.QuoteCount); err != nil {
		return accounts.LinkedAccount{}, err
	}
	var err error
	if a.AccessToken, err = s.cipher.Open(access, version); err != nil {
		return accounts.LinkedAccount{}, fmt.Errorf("open access token for %s %s: %w", p.Noun(), a.ExternalID, err)
	}
	if a.RefreshToken, err = s.cipher.Open(refresh, version); err != nil {
		return accounts.LinkedAccount{}, fmt.Errorf("open refresh token for %s %s: %w", p.Noun(), a.ExternalID, err)
	}
	return a, nil
}

func (s *AccountStore) seal(access, refresh string) (string, string, int, error) {
	sa, version, err := s.cipher.Seal(access)
	if err != nil {
		return "", "", 0, fmt.Errorf("seal access token: %w", err)
	}
	sr, _, err := s.cipher.Seal(refresh)
	if err != nil {
		return "", "", 0, fmt.Errorf("seal refresh token: %w", err)
	}
	return sa, sr, version, nil
}

func nullableKeyID(id string) sql.NullString {
	return sql.NullString{String: id, Valid: id != ""}
}

func (s *AccountStore) Upsert(ctx context.Context, a accounts.LinkedAccount) (accounts.LinkedAccount, error) {
	t, err := table(a.Provider)
	if err != nil {
		return accounts.LinkedAccount{}, err
	}
	access, refresh, version, err := s.seal(a.AccessToken, a.RefreshToken)
	if err != nil {
		return accounts.LinkedAccount{}, err
	}
	if a.RegisteredAt.IsZero() {
		a.RegisteredAt = time.Now().UTC()
	}
	if a.LastRefresh.IsZero() {
		a.LastRefresh = a.RegisteredAt
	}
	q := fmt.Sprintf(`INSERT INTO %[1]s (id, username, access_token, refresh_token, enabled, registered_at, last_refresh, encryption_version, encryption_key_id)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			last_refresh = EXCLUDED.last_refresh,
			encryption_version = EXCLUDED.encryption_version,
			encryption_key_id = EXCLUDED.encryption_key_id,
			enabled = TRUE
		RETURNING %[2]s`, t, selectColumns(a.Provider))
	row := s.db.QueryRowContext(ctx, q, a.ExternalID, a.Username, access, refresh,
		a.RegisteredAt, a.LastRefresh, version, nullableKeyID(s.cipher.KeyID()))
	return s.scan(a.Provider, row)
}

func (s *AccountStore) Get(ctx context.Context, p accounts.Provider, id string) (accounts.LinkedAccount, error) {
	t, err := table(p)
	if err != nil {
		return accounts.LinkedAccount{}, err
	}
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, selectColumns(p), t)
	a, err := s.scan(p, s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return accounts.LinkedAccount{}, notFoundOr(err, accountNotFound(p))
	}
	return a, nil
}

func (s *AccountStore) query(ctx context.Context, p accounts.Provider, q string, args ...any) ([]accounts.LinkedAccount, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := []accounts.LinkedAccount{}
	for rows.Next() {
		a, err := s.scan(p, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *AccountStore) ListEnabled(ctx context.Context, p accounts.Provider) ([]accounts.LinkedAccount, error) {
	t, err := table(p)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE enabled ORDER BY id`, selectColumns(p), t)
	return s.query(ctx, p, q)
}

func (s *AccountStore) Search(ctx context.Context, p accounts.Provider, f accounts.SearchFilter) ([]accounts.LinkedAccount, error) {
	t, err := table(p)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT %s FROM %s
		WHERE username ILIKE '%%' || $1 || '%%' AND (enabled OR $2)
		ORDER BY username
		LIMIT $3 OFFSET $4`, selectColumns(p), t)
	return s.query(ctx, p, q, escapeLike(f.Query), f.IncludeDisabled, limitOrAll(f.Limit), f.Offset)
}

func (s *AccountStore) UpdateCredentials(ctx context.Context, p accounts.Provider, id, access, refresh string, at time.Time) (accounts.LinkedAccount, error) {
	t, err := table(p)
	if err != nil {
		return accounts.LinkedAccount{}, err
	}
	sa, sr, version, err := s.seal(access, refresh)
	if err != nil {
		return accounts.LinkedAccount{}, err
	}
	q := fmt.Sprintf(`UPDATE %s SET access_token = $2, refresh_token = $3, last_refresh = $4,
		encryption_version = $5, encryption_key_id = $6
		WHERE id = $1 RETURNING %s`, t, selectColumns(p))
	a, err := s.scan(p, s.db.QueryRowContext(ctx, q, id, sa, sr, at, version, nullableKeyID(s.cipher.KeyID())))
	if err != nil {
		return accounts.LinkedAccount{}, notFoundOr(err, accountNotFound(p))
	}
	return a, nil
}

func (s *AccountStore) SetEnabled(ctx context.Context, p accounts.Provider, id string, enabled bool) (accounts.LinkedAccount, error) {
	t, err := table(p)
	if err != nil {
		return accounts.LinkedAccount{}, err
	}
	q := fmt.Sprintf(`UPDATE %s SET enabled = $2 WHERE id = $1 RETURNING %s`, t, selectColumns(p))
	a, err := s.scan(p, s.db.QueryRowContext(ctx, q, id, enabled))
	if err != nil {
		return accounts.LinkedAccount{}, notFoundOr(err, accountNotFound(p))
	}
	return a, nil
}

// Delete removes the account. Commands, variables and quotes of a channel
// go with it through ON DELETE CASCADE.
func (s *AccountStore) Delete(ctx context.Context, p accounts.Provider, id string) error {
	t, err := table(p)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, t), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.NotFound, accountNotFound(p))
	}
	return nil
}

// escapeLike escapes LIKE metacharacters so user input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// limitOrAll maps a non-positive limit to NULL, which Postgres treats as
// LIMIT ALL.
func limitOrAll(limit int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(limit), Valid: limit > 0}
}
