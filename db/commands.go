package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mael-queau/roboct0-api/apperr"
	"github.com/mael-queau/roboct0-api/commands"
	"github.com/mael-queau/roboct0-api/variables"
)

const commandNotFound = "Command not found."

// CommandStore keeps commands and their variables. Keywords are unique per
// channel regardless of case.
type CommandStore struct {
	db *sql.DB
}

func NewCommandStore(db *sql.DB) *CommandStore { return &CommandStore{db: db} }

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// withTx runs fn in a transaction, committing on success.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

const commandColumns = `id, channel_id, keyword, content, enabled, created_at, updated_at`

func scanCommand(row rowScanner) (commands.Command, error) {
	var c commands.Command
	err := row.Scan(&c.ID, &c.ChannelID, &c.Keyword, &c.Content, &c.Enabled, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func loadVariables(ctx context.Context, q queryer, c *commands.Command) error {
	rows, err := q.QueryContext(ctx, `SELECT name, value FROM variables WHERE command_id = $1 ORDER BY id`, c.ID)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	c.Variables = []commands.Variable{}
	for rows.Next() {
		var v commands.Variable
		if err := rows.Scan(&v.Name, &v.Value); err != nil {
			return err
		}
		c.Variables = append(c.Variables, v)
	}
	return rows.Err()
}

func insertVariables(ctx context.Context, q queryer, commandID int64, names []string) error {
	for _, n := range names {
		if _, err := q.ExecContext(ctx, `INSERT INTO variables (command_id, name) VALUES ($1, $2)`, commandID, n); err != nil {
			return fmt.Errorf("insert variable %s: %w", n, err)
		}
	}
	return nil
}

func (s *CommandStore) Create(ctx context.Context, channelID, keyword, content string, names []string) (commands.Command, error) {
	var c commands.Command
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		c, err = scanCommand(tx.QueryRowContext(ctx,
			`INSERT INTO commands (channel_id, keyword, content) VALUES ($1, $2, $3) RETURNING `+commandColumns,
			channelID, keyword, content))
		if err != nil {
			if isUniqueViolation(err) {
				return apperr.New(apperr.Conflict, "A command with this keyword already exists.")
			}
			return err
		}
		if err := insertVariables(ctx, tx, c.ID, names); err != nil {
			return err
		}
		return loadVariables(ctx, tx, &c)
	})
	return c, err
}

func (s *CommandStore) get(ctx context.Context, q queryer, channelID, keyword string) (commands.Command, error) {
	c, err := scanCommand(q.QueryRowContext(ctx,
		`SELECT `+commandColumns+` FROM commands WHERE channel_id = $1 AND LOWER(keyword) = LOWER($2)`,
		channelID, keyword))
	if err != nil {
		return commands.Command{}, notFoundOr(err, commandNotFound)
	}
	if err := loadVariables(ctx, q, &c); err != nil {
		return commands.Command{}, err
	}
	return c, nil
}

func (s *CommandStore) Get(ctx context.Context, channelID, keyword string) (commands.Command, error) {
	return s.get(ctx, s.db, channelID, keyword)
}

func (s *CommandStore) List(ctx context.Context, channelID string, f commands.ListFilter) ([]commands.Command, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+commandColumns+` FROM commands
		WHERE channel_id = $1 AND (enabled OR $2)
		ORDER BY keyword
		LIMIT $3 OFFSET $4`,
		channelID, f.IncludeDisabled, limitOrAll(f.Limit), f.Offset)
	if err != nil {
		return nil, err
	}
	out := []commands.Command{}
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()
	for i := range out {
		if err := loadVariables(ctx, s.db, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Update rewrites the command row first so its row lock serializes concurrent
// updates; the variable diff is then taken against the committed set.
func (s *CommandStore) Update(ctx context.Context, channelID, keyword, content string, names []string) (commands.Command, error) {
	var c commands.Command
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		c, err = scanCommand(tx.QueryRowContext(ctx,
			`UPDATE commands SET content = $3, updated_at = NOW()
			WHERE channel_id = $1 AND LOWER(keyword) = LOWER($2)
			RETURNING `+commandColumns,
			channelID, keyword, content))
		if err != nil {
			return notFoundOr(err, commandNotFound)
		}
		if err := loadVariables(ctx, tx, &c); err != nil {
			return err
		}
		remove, add := variables.Diff(c.VariableNames(), names)
		if len(remove) > 0 {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM variables WHERE command_id = $1 AND name = ANY($2)`, c.ID, remove); err != nil {
				return fmt.Errorf("delete variables: %w", err)
			}
		}
		if err := insertVariables(ctx, tx, c.ID, add); err != nil {
			return err
		}
		return loadVariables(ctx, tx, &c)
	})
	return c, err
}

func (s *CommandStore) SetEnabled(ctx context.Context, channelID, keyword string, enabled bool) (commands.Command, error) {
	c, err := scanCommand(s.db.QueryRowContext(ctx,
		`UPDATE commands SET enabled = $3, updated_at = NOW()
		WHERE channel_id = $1 AND LOWER(keyword) = LOWER($2)
		RETURNING `+commandColumns,
		channelID, keyword, enabled))
	if err != nil {
		return commands.Command{}, notFoundOr(err, commandNotFound)
	}
	if err := loadVariables(ctx, s.db, &c); err != nil {
		return commands.Command{}, err
	}
	return c, nil
}

func (s *CommandStore) Delete(ctx context.Context, channelID, keyword string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM commands WHERE channel_id = $1 AND LOWER(keyword) = LOWER($2)`, channelID, keyword)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.NotFound, commandNotFound)
	}
	return nil
}

// updateVariable applies set (a SQL expression over value and $3) to one
// variable and returns the new counter.
func (s *CommandStore) updateVariable(ctx context.Context, channelID, keyword, name, set string, arg int) (commands.Variable, error) {
	var v commands.Variable
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		c, err := scanCommand(tx.QueryRowContext(ctx,
			`SELECT `+commandColumns+` FROM commands WHERE channel_id = $1 AND LOWER(keyword) = LOWER($2)`,
			channelID, keyword))
		if err != nil {
			return notFoundOr(err, commandNotFound)
		}
		err = tx.QueryRowContext(ctx,
			`UPDATE variables SET value = `+set+` WHERE command_id = $1 AND name = $2 RETURNING name, value`,
			c.ID, name, arg).Scan(&v.Name, &v.Value)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.NotFound, "Variable not found.")
		}
		return err
	})
	return v, err
}

func (s *CommandStore) SetVariable(ctx context.Context, channelID, keyword, name string, value int) (commands.Variable, error) {
	return s.updateVariable(ctx, channelID, keyword, name, "$3", value)
}

func (s *CommandStore) IncrementVariable(ctx context.Context, channelID, keyword, name string, delta int) (commands.Variable, error) {
	return s.updateVariable(ctx, channelID, keyword, name, "value + $3", delta)
}
