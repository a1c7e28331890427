package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mael-queau/roboct0-api/accounts"
	"github.com/mael-queau/roboct0-api/crypto"
	"github.com/mael-queau/roboct0-api/db"
	"github.com/mael-queau/roboct0-api/testutil"
)

const testKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="

func TestSelectProviders(t *testing.T) {
	all, err := selectProviders("")
	require.NoError(t, err)
	assert.Equal(t, []accounts.Provider{accounts.Twitch, accounts.Discord}, all)

	one, err := selectProviders("discord")
	require.NoError(t, err)
	assert.Equal(t, []accounts.Provider{accounts.Discord}, one)

	_, err = selectProviders("youtube")
	assert.Error(t, err)
}

func TestDescribeVersion(t *testing.T) {
	assert.Equal(t, "plaintext", describeVersion(0))
	assert.Equal(t, "encrypted (AES-256-GCM)", describeVersion(1))
	assert.Equal(t, "unknown version 7", describeVersion(7))
}

func TestMigrateTokensDryRun(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()
	_, err := db.NewAccountStore(database, nil).Upsert(ctx, accounts.LinkedAccount{
		Provider: accounts.Twitch, ExternalID: "1", Username: "alice", AccessToken: "at", RefreshToken: "rt",
	})
	require.NoError(t, err)

	cipher, err := crypto.NewAESGCM(testKey)
	require.NoError(t, err)
	require.NoError(t, migrateTokens(ctx, database, cipher, accounts.Twitch, true))

	var access string
	var version int
	require.NoError(t, database.QueryRowContext(ctx, `SELECT access_token, encryption_version FROM channels WHERE id = '1'`).Scan(&access, &version))
	assert.Equal(t, "at", access)
	assert.Equal(t, 0, version)
}

func TestMigrateTokensSealsRows(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()
	plain := db.NewAccountStore(database, nil)
	_, err := plain.Upsert(ctx, accounts.LinkedAccount{Provider: accounts.Twitch, ExternalID: "1", Username: "alice", AccessToken: "at", RefreshToken: "rt"})
	require.NoError(t, err)
	_, err = plain.Upsert(ctx, accounts.LinkedAccount{Provider: accounts.Discord, ExternalID: "9", Username: "guild", AccessToken: "gat", RefreshToken: "grt"})
	require.NoError(t, err)

	cipher, err := crypto.NewAESGCM(testKey)
	require.NoError(t, err)
	require.NoError(t, migrateTokens(ctx, database, cipher, accounts.Twitch, false))

	var access, keyID string
	var version int
	require.NoError(t, database.QueryRowContext(ctx,
		`SELECT access_token, encryption_version, encryption_key_id FROM channels WHERE id = '1'`).Scan(&access, &version, &keyID))
	assert.NotEqual(t, "at", access)
	assert.Equal(t, crypto.VersionAESGCM, version)
	assert.Equal(t, cipher.KeyID(), keyID)

	// Sealed rows read back through the store.
	a, err := db.NewAccountStore(database, cipher).Get(ctx, accounts.Twitch, "1")
	require.NoError(t, err)
	assert.Equal(t, "at", a.AccessToken)
	assert.Equal(t, "rt", a.RefreshToken)

	// Guilds were not selected.
	require.NoError(t, database.QueryRowContext(ctx, `SELECT encryption_version FROM guilds WHERE id = '9'`).Scan(&version))
	assert.Equal(t, 0, version)

	// A second run finds nothing left to do.
	require.NoError(t, migrateTokens(ctx, database, cipher, accounts.Twitch, false))
	require.NoError(t, reportStatus(ctx, database))
}
