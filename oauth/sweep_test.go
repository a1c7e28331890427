package oauth_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mael-queau/roboct0-api/accounts"
	"github.com/mael-queau/roboct0-api/oauth"
	"github.com/mael-queau/roboct0-api/testutil"
)

func linked(id string, enabled bool) accounts.LinkedAccount {
	return accounts.LinkedAccount{
		Provider:     accounts.Twitch,
		ExternalID:   id,
		Username:     "user-" + id,
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		Enabled:      enabled,
	}
}

// statusByToken answers Validate from a fixed table.
func statusByToken(table map[string]int) func(context.Context, string) (int, error) {
	return func(_ context.Context, token string) (int, error) {
		status, ok := table[token]
		if !ok {
			return 0, errors.New("connection reset")
		}
		return status, nil
	}
}

func TestVerifyTokensClassifies(t *testing.T) {
	store := testutil.NewMemoryAccountStore(linked("a", true), linked("b", true), linked("c", true), linked("d", true), linked("off", false))
	p := &testutil.FakeProvider{ValidateFunc: statusByToken(map[string]int{
		"access-a": http.StatusOK,
		"access-b": http.StatusUnauthorized,
		"access-c": http.StatusInternalServerError,
	})}
	s := oauth.NewSweeper(store, oauth.SweepConfig{}, p)

	invalid, err := s.VerifyTokens(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, invalid, 1)
	assert.Equal(t, "b", invalid[0].ExternalID)
	assert.Equal(t, 0, store.Writes, "verification must not mutate")
	assert.NotContains(t, p.Validated, "access-off", "disabled accounts are not checked")
}

func TestRunCycleDisablesOnRefreshFailure(t *testing.T) {
	store := testutil.NewMemoryAccountStore(linked("a", true), linked("b", true), linked("c", true))
	p := &testutil.FakeProvider{
		ValidateFunc: statusByToken(map[string]int{"access-a": 200, "access-b": 401, "access-c": 401}),
		RefreshFunc: func(_ context.Context, refreshToken string) (oauth.Tokens, error) {
			if refreshToken == "refresh-b" {
				return oauth.Tokens{}, errors.New("invalid refresh token")
			}
			return oauth.Tokens{AccessToken: "new-access", RefreshToken: "new-refresh"}, nil
		},
	}
	s := oauth.NewSweeper(store, oauth.SweepConfig{}, p)

	rep, ran := s.RunCycle(context.Background())
	require.True(t, ran)
	assert.Equal(t, oauth.SweepReport{Checked: 3, Valid: 1, Invalid: 2, Refreshed: 1, Disabled: 1}, rep)

	b, err := store.Get(context.Background(), accounts.Twitch, "b")
	require.NoError(t, err)
	assert.False(t, b.Enabled)
	assert.Equal(t, "access-b", b.AccessToken)

	c, err := store.Get(context.Background(), accounts.Twitch, "c")
	require.NoError(t, err)
	assert.True(t, c.Enabled)
	assert.Equal(t, "new-access", c.AccessToken)
	assert.Equal(t, "new-refresh", c.RefreshToken)
	assert.False(t, c.LastRefresh.IsZero())
}

func TestRunCycleDevModeKeepsAccountEnabled(t *testing.T) {
	store := testutil.NewMemoryAccountStore(linked("b", true))
	p := &testutil.FakeProvider{
		ValidateFunc: statusByToken(map[string]int{"access-b": 401}),
		RefreshFunc: func(context.Context, string) (oauth.Tokens, error) {
			return oauth.Tokens{}, errors.New("invalid refresh token")
		},
	}
	s := oauth.NewSweeper(store, oauth.SweepConfig{DevMode: true}, p)

	rep, ran := s.RunCycle(context.Background())
	require.True(t, ran)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 0, rep.Disabled)

	b, err := store.Get(context.Background(), accounts.Twitch, "b")
	require.NoError(t, err)
	assert.True(t, b.Enabled)
	assert.Equal(t, 0, store.Writes)
}

func TestRefreshTokenReturnsError(t *testing.T) {
	store := testutil.NewMemoryAccountStore(linked("b", true))
	refreshErr := errors.New("invalid refresh token")
	p := &testutil.FakeProvider{RefreshFunc: func(context.Context, string) (oauth.Tokens, error) {
		return oauth.Tokens{}, refreshErr
	}}
	s := oauth.NewSweeper(store, oauth.SweepConfig{}, p)

	updated, err := s.RefreshToken(context.Background(), p, linked("b", true))
	assert.ErrorIs(t, err, refreshErr)
	assert.False(t, updated.Enabled)
	assert.Equal(t, []string{"refresh-b"}, p.RefreshCalls())
}

func TestRunCycleSkipsWhileRunning(t *testing.T) {
	store := testutil.NewMemoryAccountStore(linked("a", true))
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	p := &testutil.FakeProvider{ValidateFunc: func(context.Context, string) (int, error) {
		once.Do(func() { close(started) })
		<-release
		return http.StatusOK, nil
	}}
	s := oauth.NewSweeper(store, oauth.SweepConfig{Timeout: time.Minute}, p)

	done := make(chan bool)
	go func() {
		_, ran := s.RunCycle(context.Background())
		done <- ran
	}()
	<-started

	_, ran := s.RunCycle(context.Background())
	assert.False(t, ran, "overlapping cycle must be skipped")

	close(release)
	assert.True(t, <-done)

	_, ran = s.RunCycle(context.Background())
	assert.True(t, ran, "a new cycle may start once the previous one finished")
}

func TestRunCycleBoundsProviderCalls(t *testing.T) {
	var seed []accounts.LinkedAccount
	for _, id := range []string{"1", "2", "3", "4", "5", "6", "7", "8"} {
		seed = append(seed, linked(id, true))
	}
	store := testutil.NewMemoryAccountStore(seed...)

	var inFlight, peak atomic.Int32
	p := &testutil.FakeProvider{ValidateFunc: func(context.Context, string) (int, error) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return http.StatusOK, nil
	}}
	s := oauth.NewSweeper(store, oauth.SweepConfig{Concurrency: 2}, p)

	rep, ran := s.RunCycle(context.Background())
	require.True(t, ran)
	assert.Equal(t, 8, rep.Valid)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunCycleTimeoutAndPanicSkipAccount(t *testing.T) {
	store := testutil.NewMemoryAccountStore(linked("slow", true), linked("boom", true), linked("ok", true))
	p := &testutil.FakeProvider{ValidateFunc: func(ctx context.Context, token string) (int, error) {
		switch token {
		case "access-slow":
			<-ctx.Done()
			return 0, ctx.Err()
		case "access-boom":
			panic("provider client bug")
		}
		return http.StatusOK, nil
	}}
	s := oauth.NewSweeper(store, oauth.SweepConfig{Timeout: 20 * time.Millisecond}, p)

	rep, ran := s.RunCycle(context.Background())
	require.True(t, ran)
	assert.Equal(t, 1, rep.Valid)
	assert.Equal(t, 2, rep.Skipped)
	assert.Equal(t, 0, store.Writes)
}
