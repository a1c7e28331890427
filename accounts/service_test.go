package accounts_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mael-queau/roboct0-api/accounts"
	"github.com/mael-queau/roboct0-api/apperr"
	"github.com/mael-queau/roboct0-api/testutil"
)

func seeded() *testutil.MemoryAccountStore {
	return testutil.NewMemoryAccountStore(
		accounts.LinkedAccount{Provider: accounts.Twitch, ExternalID: "1", Username: "alice", Enabled: true},
		accounts.LinkedAccount{Provider: accounts.Twitch, ExternalID: "2", Username: "bob", Enabled: false},
		accounts.LinkedAccount{Provider: accounts.Discord, ExternalID: "9", Username: "guild", Enabled: true},
	)
}

func TestPageOffset(t *testing.T) {
	off, err := accounts.PageOffset(1)
	require.NoError(t, err)
	assert.Equal(t, 0, off)

	off, err = accounts.PageOffset(3)
	require.NoError(t, err)
	assert.Equal(t, 2*accounts.PageSize, off)

	for _, page := range []int{0, -1} {
		_, err := accounts.PageOffset(page)
		assert.Equal(t, apperr.InvalidRequest, apperr.KindOf(err), "page %d", page)
	}
}

func TestServiceGetHonorsForce(t *testing.T) {
	svc := accounts.NewService(seeded())
	ctx := context.Background()

	a, err := svc.Get(ctx, accounts.Twitch, "1", false)
	require.NoError(t, err)
	assert.Equal(t, "alice", a.Username)

	_, err = svc.Get(ctx, accounts.Twitch, "2", false)
	assert.Equal(t, apperr.Disabled, apperr.KindOf(err))
	assert.Equal(t, "This channel is disabled.", apperr.PublicMessage(err))

	a, err = svc.Get(ctx, accounts.Twitch, "2", true)
	require.NoError(t, err)
	assert.False(t, a.Enabled)

	_, err = svc.Get(ctx, accounts.Discord, "1", true)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err), "providers have separate key spaces")
}

func TestServiceSearch(t *testing.T) {
	svc := accounts.NewService(seeded())
	ctx := context.Background()

	found, err := svc.Search(ctx, accounts.Twitch, "", 1, false)
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = svc.Search(ctx, accounts.Twitch, "", 1, true)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = svc.Search(ctx, accounts.Twitch, "ALI", 1, true)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "1", found[0].ExternalID)

	_, err = svc.Search(ctx, accounts.Twitch, "", 0, true)
	assert.Equal(t, apperr.InvalidRequest, apperr.KindOf(err))
}

func TestServiceSearchPages(t *testing.T) {
	var seed []accounts.LinkedAccount
	for i := 0; i < accounts.PageSize+3; i++ {
		seed = append(seed, accounts.LinkedAccount{Provider: accounts.Twitch, ExternalID: fmt.Sprint(i), Username: fmt.Sprintf("user%02d", i), Enabled: true})
	}
	svc := accounts.NewService(testutil.NewMemoryAccountStore(seed...))

	first, err := svc.Search(context.Background(), accounts.Twitch, "user", 1, false)
	require.NoError(t, err)
	assert.Len(t, first, accounts.PageSize)

	second, err := svc.Search(context.Background(), accounts.Twitch, "user", 2, false)
	require.NoError(t, err)
	assert.Len(t, second, 3)

	empty, err := svc.Search(context.Background(), accounts.Twitch, "user", 5, false)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestServiceToggle(t *testing.T) {
	store := seeded()
	svc := accounts.NewService(store)
	ctx := context.Background()

	a, err := svc.Toggle(ctx, accounts.Twitch, "1", nil)
	require.NoError(t, err)
	assert.False(t, a.Enabled, "nil inverts")

	a, err = svc.Toggle(ctx, accounts.Twitch, "1", nil)
	require.NoError(t, err)
	assert.True(t, a.Enabled)

	enabled := true
	a, err = svc.Toggle(ctx, accounts.Twitch, "1", &enabled)
	require.NoError(t, err)
	assert.True(t, a.Enabled, "explicit value is applied as is")

	_, err = svc.Toggle(ctx, accounts.Twitch, "404", nil)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestServiceVerifyDeleteAndGate(t *testing.T) {
	svc := accounts.NewService(seeded())
	ctx := context.Background()

	ok, err := svc.Verify(ctx, accounts.Twitch, "1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Verify(ctx, accounts.Twitch, "2")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, svc.CheckChannel(ctx, "1", false))
	assert.Equal(t, apperr.Disabled, apperr.KindOf(svc.CheckChannel(ctx, "2", false)))
	assert.NoError(t, svc.CheckChannel(ctx, "2", true))
	assert.Equal(t, apperr.NotFound, apperr.KindOf(svc.CheckChannel(ctx, "9", true)), "guilds do not own commands")

	require.NoError(t, svc.Delete(ctx, accounts.Discord, "9"))
	_, err = svc.Verify(ctx, accounts.Discord, "9")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	assert.Equal(t, apperr.NotFound, apperr.KindOf(svc.Delete(ctx, accounts.Discord, "9")))
}
