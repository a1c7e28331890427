package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/mael-queau/roboct0-api/db"
)

// SetupTestDB connects to TEST_PG_DSN, applies migrations and empties every
// table. It skips the test when TEST_PG_DSN is not set.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := db.Connect(dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.RunMigrations(database); err != nil {
		_ = database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	if _, err := database.ExecContext(context.Background(),
		`TRUNCATE oauth_states, channels, guilds, commands, variables, quotes RESTART IDENTITY CASCADE`); err != nil {
		_ = database.Close()
		t.Fatalf("failed to reset tables: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})
	return database
}
