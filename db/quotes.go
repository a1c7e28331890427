package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/mael-queau/roboct0-api/apperr"
	"github.com/mael-queau/roboct0-api/quotes"
)

const quoteNotFound = "Quote not found."

// QuoteStore keeps numbered quotes. Indexes come from channels.quote_index,
// which only ever grows, so a deleted quote's number is never handed out
// again.
type QuoteStore struct {
	db *sql.DB
}

func NewQuoteStore(db *sql.DB) *QuoteStore { return &QuoteStore{db: db} }

const quoteColumns = `channel_id, quote_id, content, date, enabled, created_at`

func scanQuote(row rowScanner) (quotes.Quote, error) {
	var q quotes.Quote
	err := row.Scan(&q.ChannelID, &q.Index, &q.Content, &q.Date, &q.Enabled, &q.CreatedAt)
	return q, err
}

func (s *QuoteStore) Create(ctx context.Context, channelID, content string, date time.Time) (quotes.Quote, error) {
	var q quotes.Quote
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var index int
		err := tx.QueryRowContext(ctx,
			`UPDATE channels SET quote_index = quote_index + 1 WHERE id = $1 RETURNING quote_index`,
			channelID).Scan(&index)
		if err != nil {
			return notFoundOr(err, "Channel not found.")
		}
		q, err = scanQuote(tx.QueryRowContext(ctx,
			`INSERT INTO quotes (channel_id, quote_id, content, date) VALUES ($1, $2, $3, $4) RETURNING `+quoteColumns,
			channelID, index, content, date))
		return err
	})
	return q, err
}

func (s *QuoteStore) Get(ctx context.Context, channelID string, index int) (quotes.Quote, error) {
	q, err := scanQuote(s.db.QueryRowContext(ctx,
		`SELECT `+quoteColumns+` FROM quotes WHERE channel_id = $1 AND quote_id = $2`, channelID, index))
	if err != nil {
		return quotes.Quote{}, notFoundOr(err, quoteNotFound)
	}
	return q, nil
}

func (s *QuoteStore) Search(ctx context.Context, channelID string, f quotes.SearchFilter) ([]quotes.Quote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+quoteColumns+` FROM quotes
		WHERE channel_id = $1 AND content ILIKE '%' || $2 || '%' AND (enabled OR $3)
		ORDER BY quote_id
		LIMIT $4 OFFSET $5`,
		channelID, escapeLike(f.Query), f.IncludeDisabled, limitOrAll(f.Limit), f.Offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := []quotes.Quote{}
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *QuoteStore) Random(ctx context.Context, channelID string) (quotes.Quote, error) {
	q, err := scanQuote(s.db.QueryRowContext(ctx,
		`SELECT `+quoteColumns+` FROM quotes WHERE channel_id = $1 AND enabled ORDER BY random() LIMIT 1`, channelID))
	if err != nil {
		return quotes.Quote{}, notFoundOr(err, quoteNotFound)
	}
	return q, nil
}

func (s *QuoteStore) Update(ctx context.Context, channelID string, index int, p quotes.Patch) (quotes.Quote, error) {
	var content sql.NullString
	if p.Content != nil {
		content = sql.NullString{String: *p.Content, Valid: true}
	}
	var date sql.NullTime
	if p.Date != nil {
		date = sql.NullTime{Time: *p.Date, Valid: true}
	}
	q, err := scanQuote(s.db.QueryRowContext(ctx,
		`UPDATE quotes SET content = COALESCE($3, content), date = COALESCE($4, date)
		WHERE channel_id = $1 AND quote_id = $2 RETURNING `+quoteColumns,
		channelID, index, content, date))
	if err != nil {
		return quotes.Quote{}, notFoundOr(err, quoteNotFound)
	}
	return q, nil
}

func (s *QuoteStore) SetEnabled(ctx context.Context, channelID string, index int, enabled bool) (quotes.Quote, error) {
	q, err := scanQuote(s.db.QueryRowContext(ctx,
		`UPDATE quotes SET enabled = $3 WHERE channel_id = $1 AND quote_id = $2 RETURNING `+quoteColumns,
		channelID, index, enabled))
	if err != nil {
		return quotes.Quote{}, notFoundOr(err, quoteNotFound)
	}
	return q, nil
}

func (s *QuoteStore) Delete(ctx context.Context, channelID string, index int) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM quotes WHERE channel_id = $1 AND quote_id = $2`, channelID, index)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.NotFound, quoteNotFound)
	}
	return nil
}
