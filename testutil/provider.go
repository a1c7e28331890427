package testutil

import (
	"context"
	"net/url"
	"sync"

	"github.com/mael-queau/roboct0-api/accounts"
	"github.com/mael-queau/roboct0-api/oauth"
)

// FakeProvider is a programmable oauth.Provider. Nil funcs succeed with
// canned values.
type FakeProvider struct {
	ProviderName accounts.Provider
	Fields       []string

	ExchangeFunc func(ctx context.Context, code string) (oauth.Tokens, error)
	IdentifyFunc func(ctx context.Context, t oauth.Tokens, cb oauth.Callback) (oauth.Identity, error)
	RefreshFunc  func(ctx context.Context, refreshToken string) (oauth.Tokens, error)
	ValidateFunc func(ctx context.Context, accessToken string) (int, error)

	mu        sync.Mutex
	Exchanged []string
	Refreshed []string
	Validated []string
}

var _ oauth.Provider = (*FakeProvider)(nil)

func (f *FakeProvider) Name() accounts.Provider {
	if f.ProviderName == "" {
		return accounts.Twitch
	}
	return f.ProviderName
}

func (f *FakeProvider) AuthorizeURL(state string) string {
	return "https://provider.test/authorize?state=" + url.QueryEscape(state)
}

func (f *FakeProvider) CallbackFields() []string { return f.Fields }

func (f *FakeProvider) Exchange(ctx context.Context, code string) (oauth.Tokens, error) {
	f.mu.Lock()
	f.Exchanged = append(f.Exchanged, code)
	f.mu.Unlock()
	if f.ExchangeFunc != nil {
		return f.ExchangeFunc(ctx, code)
	}
	return oauth.Tokens{AccessToken: "access-" + code, RefreshToken: "refresh-" + code}, nil
}

func (f *FakeProvider) Identify(ctx context.Context, t oauth.Tokens, cb oauth.Callback) (oauth.Identity, error) {
	if f.IdentifyFunc != nil {
		return f.IdentifyFunc(ctx, t, cb)
	}
	return oauth.Identity{ExternalID: "12345", Username: "streamer"}, nil
}

func (f *FakeProvider) Refresh(ctx context.Context, refreshToken string) (oauth.Tokens, error) {
	f.mu.Lock()
	f.Refreshed = append(f.Refreshed, refreshToken)
	f.mu.Unlock()
	if f.RefreshFunc != nil {
		return f.RefreshFunc(ctx, refreshToken)
	}
	return oauth.Tokens{AccessToken: "new-access", RefreshToken: "new-refresh"}, nil
}

func (f *FakeProvider) Validate(ctx context.Context, accessToken string) (int, error) {
	f.mu.Lock()
	f.Validated = append(f.Validated, accessToken)
	f.mu.Unlock()
	if f.ValidateFunc != nil {
		return f.ValidateFunc(ctx, accessToken)
	}
	return 200, nil
}

// RefreshCalls returns a copy of the refresh tokens seen so far.
func (f *FakeProvider) RefreshCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Refreshed...)
}
