// Package main provides a CLI tool to seal plaintext provider tokens.
//
// It encrypts the tokens of every channel and guild row where
// encryption_version=0 using the AES-256-GCM key from ENCRYPTION_KEY.
//
// Usage:
//
//	migrate-tokens [--dry-run] [--provider twitch|discord]
//
// Flags:
//
//	--dry-run:  Show what would be migrated without making changes
//	--provider: Limit the migration to one provider (default: both)
//
// Environment Variables:
//
//	DB_DSN: Database connection string (required)
//	ENCRYPTION_KEY: Base64-encoded 32-byte encryption key (required)
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/mael-queau/roboct0-api/accounts"
	"github.com/mael-queau/roboct0-api/crypto"
	"github.com/mael-queau/roboct0-api/db"
)

// tokenRow is a linked account row still holding plaintext tokens.
type tokenRow struct {
	ID           string
	Username     string
	AccessToken  string
	RefreshToken string
}

// tables maps providers to their account tables.
var tables = map[accounts.Provider]string{
	accounts.Twitch:  "channels",
	accounts.Discord: "guilds",
}

func main() {
	dryRun := flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	provider := flag.String("provider", "", "Migrate tokens for one provider only (twitch or discord)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		slog.Error("DB_DSN environment variable is required")
		os.Exit(1)
	}
	key := os.Getenv("ENCRYPTION_KEY")
	if key == "" {
		slog.Error("ENCRYPTION_KEY environment variable is required for migration")
		os.Exit(1)
	}
	cipher, err := crypto.NewAESGCM(key)
	if err != nil {
		slog.Error("failed to initialize cipher", slog.Any("error", err))
		os.Exit(1)
	}

	providers, err := selectProviders(*provider)
	if err != nil {
		slog.Error("invalid --provider", slog.Any("error", err))
		os.Exit(1)
	}

	database, err := db.Connect(dsn)
	if err != nil {
		slog.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close()

	ctx := context.Background()
	failed := false
	for _, p := range providers {
		if err := migrateTokens(ctx, database, cipher, p, *dryRun); err != nil {
			slog.Error("migration failed", slog.String("provider", string(p)), slog.Any("error", err))
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
	if err := reportStatus(ctx, database); err != nil {
		slog.Warn("status report failed", slog.Any("error", err))
	}
	slog.Info("migration completed successfully")
}

func selectProviders(name string) ([]accounts.Provider, error) {
	if name == "" {
		return []accounts.Provider{accounts.Twitch, accounts.Discord}, nil
	}
	p := accounts.Provider(name)
	if !p.Valid() {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return []accounts.Provider{p}, nil
}

// migrateTokens seals every plaintext row of the provider's table.
func migrateTokens(ctx context.Context, database *sql.DB, cipher *crypto.AESGCM, p accounts.Provider, dryRun bool) error {
	table := tables[p]
	rows, err := database.QueryContext(ctx,
		`SELECT id, username, access_token, refresh_token FROM `+table+` WHERE encryption_version = 0 ORDER BY id`)
	if err != nil {
		return fmt.Errorf("query plaintext tokens: %w", err)
	}
	var pending []tokenRow
	for rows.Next() {
		var r tokenRow
		if err := rows.Scan(&r.ID, &r.Username, &r.AccessToken, &r.RefreshToken); err != nil {
			rows.Close()
			return fmt.Errorf("scan token row: %w", err)
		}
		pending = append(pending, r)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate token rows: %w", err)
	}

	if len(pending) == 0 {
		slog.Info("no plaintext tokens found", slog.String("provider", string(p)))
		return nil
	}
	slog.Info("found plaintext tokens", slog.String("provider", string(p)), slog.Int("count", len(pending)), slog.Bool("dry_run", dryRun))

	migrated, errCount := 0, 0
	for i, r := range pending {
		logger := slog.With(slog.String("provider", string(p)), slog.String("id", r.ID), slog.String("username", r.Username),
			slog.Int("index", i+1), slog.Int("total", len(pending)))
		if dryRun {
			logger.Info("would migrate token (dry-run)")
			migrated++
			continue
		}
		if err := sealRow(ctx, database, cipher, table, r); err != nil {
			logger.Error("failed to migrate token", slog.Any("error", err))
			errCount++
			continue
		}
		logger.Info("migrated token")
		migrated++
	}

	slog.Info("migration summary", slog.String("provider", string(p)), slog.Int("total", len(pending)),
		slog.Int("migrated", migrated), slog.Int("errors", errCount), slog.Bool("dry_run", dryRun))
	if errCount > 0 {
		return fmt.Errorf("migration completed with %d errors", errCount)
	}
	return nil
}

// sealRow encrypts one row's tokens. The version guard makes a concurrent
// rewrite by the running service fail loudly instead of double-sealing.
func sealRow(ctx context.Context, database *sql.DB, cipher *crypto.AESGCM, table string, r tokenRow) error {
	access, version, err := cipher.Seal(r.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	refresh, _, err := cipher.Seal(r.RefreshToken)
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}
	res, err := database.ExecContext(ctx,
		`UPDATE `+table+` SET access_token = $1, refresh_token = $2, encryption_version = $3, encryption_key_id = $4
		 WHERE id = $5 AND encryption_version = 0`,
		access, refresh, version, cipher.KeyID(), r.ID)
	if err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("expected 1 row updated, got %d (row may have been modified concurrently)", n)
	}
	return nil
}

// reportStatus logs how many rows sit at each encryption version.
func reportStatus(ctx context.Context, database *sql.DB) error {
	for p, table := range tables {
		rows, err := database.QueryContext(ctx,
			`SELECT encryption_version, COUNT(*) FROM `+table+` GROUP BY encryption_version ORDER BY encryption_version`)
		if err != nil {
			return fmt.Errorf("query status: %w", err)
		}
		for rows.Next() {
			var version, count int
			if err := rows.Scan(&version, &count); err != nil {
				rows.Close()
				return err
			}
			slog.Info("token encryption status", slog.String("provider", string(p)),
				slog.Int("encryption_version", version), slog.String("description", describeVersion(version)), slog.Int("count", count))
		}
		if err := rows.Close(); err != nil {
			return err
		}
	}
	return nil
}

func describeVersion(v int) string {
	switch v {
	case crypto.VersionPlaintext:
		return "plaintext"
	case crypto.VersionAESGCM:
		return "encrypted (AES-256-GCM)"
	default:
		return fmt.Sprintf("unknown version %d", v)
	}
}
