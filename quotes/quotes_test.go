package quotes_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mael-queau/roboct0-api/accounts"
	"github.com/mael-queau/roboct0-api/apperr"
	"github.com/mael-queau/roboct0-api/quotes"
	"github.com/mael-queau/roboct0-api/testutil"
)

func newService() *quotes.Service {
	store := testutil.NewMemoryAccountStore(
		accounts.LinkedAccount{Provider: accounts.Twitch, ExternalID: "c1", Username: "chan", Enabled: true},
		accounts.LinkedAccount{Provider: accounts.Twitch, ExternalID: "off", Username: "sleepy", Enabled: false},
	)
	return quotes.NewService(testutil.NewMemoryQuoteStore(), accounts.NewService(store))
}

func TestCreateAssignsIncreasingIndexes(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	q1, err := svc.Create(ctx, "c1", "first", nil, false)
	require.NoError(t, err)
	q2, err := svc.Create(ctx, "c1", "second", nil, false)
	require.NoError(t, err)
	assert.Equal(t, 1, q1.Index)
	assert.Equal(t, 2, q2.Index)
	assert.False(t, q1.Date.IsZero())

	require.NoError(t, svc.Delete(ctx, "c1", 2, false))
	q3, err := svc.Create(ctx, "c1", "third", nil, false)
	require.NoError(t, err)
	assert.Equal(t, 3, q3.Index, "deleted indexes are not reused")

	when := time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)
	q4, err := svc.Create(ctx, "c1", "dated", &when, false)
	require.NoError(t, err)
	assert.Equal(t, when, q4.Date)
}

func TestCreateValidatesContent(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.Create(ctx, "c1", "", nil, false)
	assert.Equal(t, apperr.InvalidRequest, apperr.KindOf(err))

	_, err = svc.Create(ctx, "c1", strings.Repeat("x", quotes.MaxContentLength+1), nil, false)
	assert.Equal(t, apperr.InvalidRequest, apperr.KindOf(err))

	// Length is counted in characters, not bytes.
	_, err = svc.Create(ctx, "c1", strings.Repeat("é", quotes.MaxContentLength), nil, false)
	assert.NoError(t, err)

	_, err = svc.Create(ctx, "off", "hello", nil, false)
	assert.Equal(t, apperr.Disabled, apperr.KindOf(err))
	_, err = svc.Create(ctx, "nope", "hello", nil, true)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestGetToggleAndForce(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	_, err := svc.Create(ctx, "c1", "hello", nil, false)
	require.NoError(t, err)

	q, err := svc.Toggle(ctx, "c1", 1, nil, false)
	require.NoError(t, err)
	assert.False(t, q.Enabled)

	_, err = svc.Get(ctx, "c1", 1, false)
	assert.Equal(t, apperr.Disabled, apperr.KindOf(err))
	q, err = svc.Get(ctx, "c1", 1, true)
	require.NoError(t, err)
	assert.Equal(t, "hello", q.Content)

	_, err = svc.Random(ctx, "c1", false)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err), "random skips disabled quotes")

	enabled := true
	q, err = svc.Toggle(ctx, "c1", 1, &enabled, false)
	require.NoError(t, err)
	assert.True(t, q.Enabled)

	q, err = svc.Random(ctx, "c1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, q.Index)

	_, err = svc.Get(ctx, "c1", 42, true)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestUpdate(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	_, err := svc.Create(ctx, "c1", "hello", nil, false)
	require.NoError(t, err)

	_, err = svc.Update(ctx, "c1", 1, quotes.Patch{}, false)
	assert.Equal(t, apperr.InvalidRequest, apperr.KindOf(err))

	empty := ""
	_, err = svc.Update(ctx, "c1", 1, quotes.Patch{Content: &empty}, false)
	assert.Equal(t, apperr.InvalidRequest, apperr.KindOf(err))

	content := "edited"
	when := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	q, err := svc.Update(ctx, "c1", 1, quotes.Patch{Content: &content, Date: &when}, false)
	require.NoError(t, err)
	assert.Equal(t, "edited", q.Content)
	assert.Equal(t, when, q.Date)

	_, err = svc.Update(ctx, "c1", 9, quotes.Patch{Content: &content}, false)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestSearch(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	for _, c := range []string{"The cake is a lie", "Hello there", "cake again"} {
		_, err := svc.Create(ctx, "c1", c, nil, false)
		require.NoError(t, err)
	}
	_, err := svc.Toggle(ctx, "c1", 3, nil, false)
	require.NoError(t, err)

	found, err := svc.Search(ctx, "c1", "CAKE", 1, false)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, 1, found[0].Index)

	found, err = svc.Search(ctx, "c1", "cake", 1, true)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	_, err = svc.Search(ctx, "c1", "", 0, false)
	assert.Equal(t, apperr.InvalidRequest, apperr.KindOf(err))
}
