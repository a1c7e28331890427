package commands_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mael-queau/roboct0-api/accounts"
	"github.com/mael-queau/roboct0-api/apperr"
	"github.com/mael-queau/roboct0-api/commands"
	"github.com/mael-queau/roboct0-api/testutil"
)

func newService() (*commands.Service, *testutil.MemoryAccountStore) {
	store := testutil.NewMemoryAccountStore(
		accounts.LinkedAccount{Provider: accounts.Twitch, ExternalID: "c1", Username: "chan", Enabled: true},
		accounts.LinkedAccount{Provider: accounts.Twitch, ExternalID: "off", Username: "sleepy", Enabled: false},
	)
	return commands.NewService(testutil.NewMemoryCommandStore(), accounts.NewService(store)), store
}

func TestCreateRendersAndDedupesVariables(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	r, err := svc.Create(ctx, "c1", "deaths", "{{n}} deaths, {{n}} total, {{x}}", false)
	require.NoError(t, err)
	assert.Equal(t, "0 deaths, 0 total, 0", r.Output)
	assert.Equal(t, []string{"n", "x"}, r.VariableNames())
	assert.True(t, r.Enabled)

	_, err = svc.Create(ctx, "c1", "Deaths", "dup", false)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name         string
		channel      string
		keyword      string
		content      string
		force        bool
		expectedKind apperr.Kind
	}{
		{"keyword too short", "c1", "a", "hi", false, apperr.InvalidRequest},
		{"keyword starts with digit", "c1", "1abc", "hi", false, apperr.InvalidRequest},
		{"keyword too long", "c1", "abcdefghijklmnop", "hi", false, apperr.InvalidRequest},
		{"unclosed placeholder", "c1", "hello", "{{n", false, apperr.InvalidTemplate},
		{"stray closing delimiter", "c1", "hello", "n}}", false, apperr.InvalidTemplate},
		{"bad variable name", "c1", "hello", "{{1n}}", false, apperr.InvalidTemplate},
		{"unknown channel", "nope", "hello", "hi", true, apperr.NotFound},
		{"disabled channel", "off", "hello", "hi", false, apperr.Disabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newService()
			_, err := svc.Create(context.Background(), tt.channel, tt.keyword, tt.content, tt.force)
			assert.Equal(t, tt.expectedKind, apperr.KindOf(err))
		})
	}

	svc, _ := newService()
	r, err := svc.Create(context.Background(), "off", "hello", "hi", true)
	require.NoError(t, err, "force bypasses the channel gate")
	assert.Equal(t, "hi", r.Output)
}

func TestUpdateKeepsSurvivingCounters(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.Create(ctx, "c1", "stats", "{{a}} {{b}}", false)
	require.NoError(t, err)
	_, err = svc.SetVariable(ctx, "c1", "stats", "a", 4, false)
	require.NoError(t, err)
	_, err = svc.SetVariable(ctx, "c1", "stats", "b", 7, false)
	require.NoError(t, err)

	r, err := svc.Update(ctx, "c1", "stats", "{{b}} and {{c}}", false)
	require.NoError(t, err)
	assert.Equal(t, "7 and 0", r.Output)
	assert.Equal(t, map[string]int{"b": 7, "c": 0}, r.Values())

	_, err = svc.SetVariable(ctx, "c1", "stats", "a", 1, false)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err), "dropped counters are deleted")

	_, err = svc.Update(ctx, "c1", "stats", "{{broken", false)
	assert.Equal(t, apperr.InvalidTemplate, apperr.KindOf(err))

	_, err = svc.Update(ctx, "c1", "missing", "x", false)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

// racingStore runs a competing update just before the first Update it sees
// reaches the underlying store.
type racingStore struct {
	commands.Store
	race func()
}

func (r *racingStore) Update(ctx context.Context, channelID, keyword, content string, names []string) (commands.Command, error) {
	if r.race != nil {
		race := r.race
		r.race = nil
		race()
	}
	return r.Store.Update(ctx, channelID, keyword, content, names)
}

func TestUpdateInterleavedKeepsVariablesInSync(t *testing.T) {
	accountStore := testutil.NewMemoryAccountStore(
		accounts.LinkedAccount{Provider: accounts.Twitch, ExternalID: "c1", Username: "chan", Enabled: true},
	)
	gate := accounts.NewService(accountStore)
	inner := testutil.NewMemoryCommandStore()
	direct := commands.NewService(inner, gate)
	racing := &racingStore{Store: inner}
	svc := commands.NewService(racing, gate)
	ctx := context.Background()

	_, err := direct.Create(ctx, "c1", "stats", "{{a}}", false)
	require.NoError(t, err)
	_, err = direct.SetVariable(ctx, "c1", "stats", "a", 3, false)
	require.NoError(t, err)

	racing.race = func() {
		_, err := direct.Update(ctx, "c1", "stats", "{{x}}", false)
		require.NoError(t, err)
	}
	r, err := svc.Update(ctx, "c1", "stats", "{{a}}", false)
	require.NoError(t, err)
	assert.Equal(t, "0", r.Output, "a was dropped by the competing update and starts over")
	assert.Equal(t, []string{"a"}, r.VariableNames())

	got, err := svc.Get(ctx, "c1", "stats", false)
	require.NoError(t, err)
	assert.Equal(t, "0", got.Output)
}

func TestVariables(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	_, err := svc.Create(ctx, "c1", "deaths", "Deaths: {{n}}", false)
	require.NoError(t, err)

	v, err := svc.IncrementVariable(ctx, "c1", "deaths", "n", 3, false)
	require.NoError(t, err)
	assert.Equal(t, 3, v.Value)

	v, err = svc.IncrementVariable(ctx, "c1", "deaths", "n", -5, false)
	require.NoError(t, err)
	assert.Equal(t, -2, v.Value)

	v, err = svc.SetVariable(ctx, "c1", "deaths", "n", 10, false)
	require.NoError(t, err)
	assert.Equal(t, 10, v.Value)

	r, err := svc.Get(ctx, "c1", "DEATHS", false)
	require.NoError(t, err)
	assert.Equal(t, "Deaths: 10", r.Output)

	_, err = svc.SetVariable(ctx, "c1", "deaths", "not-valid", 1, false)
	assert.Equal(t, apperr.InvalidRequest, apperr.KindOf(err))
	_, err = svc.IncrementVariable(ctx, "c1", "deaths", "other", 1, false)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestDisabledCommandRequiresForce(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	_, err := svc.Create(ctx, "c1", "hello", "hi", false)
	require.NoError(t, err)

	r, err := svc.Toggle(ctx, "c1", "hello", nil, false)
	require.NoError(t, err)
	assert.False(t, r.Enabled)

	_, err = svc.Get(ctx, "c1", "hello", false)
	assert.Equal(t, apperr.Disabled, apperr.KindOf(err))
	_, err = svc.Update(ctx, "c1", "hello", "new", false)
	assert.Equal(t, apperr.Disabled, apperr.KindOf(err))
	_, err = svc.IncrementVariable(ctx, "c1", "hello", "n", 1, false)
	assert.Equal(t, apperr.Disabled, apperr.KindOf(err))

	r, err = svc.Get(ctx, "c1", "hello", true)
	require.NoError(t, err)
	assert.Equal(t, "hi", r.Output)

	enabled := true
	r, err = svc.Toggle(ctx, "c1", "hello", &enabled, false)
	require.NoError(t, err)
	assert.True(t, r.Enabled)
	r, err = svc.Toggle(ctx, "c1", "hello", &enabled, false)
	require.NoError(t, err)
	assert.True(t, r.Enabled, "explicit value is idempotent")
}

func TestListAndDelete(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.List(ctx, "c1", 1, false)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	for _, kw := range []string{"zeta", "alpha", "mid"} {
		_, err := svc.Create(ctx, "c1", kw, kw+" {{n}}", false)
		require.NoError(t, err)
	}
	_, err = svc.Toggle(ctx, "c1", "mid", nil, false)
	require.NoError(t, err)

	list, err := svc.List(ctx, "c1", 1, false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Keyword)
	assert.Equal(t, "alpha 0", list[0].Output)

	list, err = svc.List(ctx, "c1", 1, true)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	_, err = svc.List(ctx, "c1", 0, true)
	assert.Equal(t, apperr.InvalidRequest, apperr.KindOf(err))

	require.NoError(t, svc.Delete(ctx, "c1", "ZETA", false))
	_, err = svc.Get(ctx, "c1", "zeta", true)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	assert.Equal(t, apperr.NotFound, apperr.KindOf(svc.Delete(ctx, "c1", "zeta", false)))
}

func TestKeywordPattern(t *testing.T) {
	for _, ok := range []string{"hi", "Deaths", "a_1", "abcdefghijklmno"} {
		assert.True(t, commands.KeywordPattern.MatchString(ok), ok)
	}
	for _, bad := range []string{"", "h", "_hi", "9lives", "with space", "abcdefghijklmnop"} {
		assert.False(t, commands.KeywordPattern.MatchString(bad), bad)
	}
}
