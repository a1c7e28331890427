// Package oauth implements account linking through the OAuth2
// authorization-code flow and the periodic token validation sweep.
//
// Provider clients (twitchapi, discordapi) plug in through the Provider
// interface; persistence plugs in through StateStore and accounts.Store.
package oauth

import (
	"context"
	"net/url"

	"github.com/mael-queau/roboct0-api/accounts"
)

// Callback is the query string a provider redirects back with.
type Callback struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
	// Query is the full query, for provider-specific fields such as scope or guild_id.
	Query url.Values
}

// Identity is the stable external identity a token belongs to.
type Identity struct {
	ExternalID string
	Username   string
}

// Provider is an OAuth identity provider client.
type Provider interface {
	Name() accounts.Provider
	// AuthorizeURL builds the consent URL carrying state.
	AuthorizeURL(state string) string
	// CallbackFields lists the query fields, besides code and state, that a
	// successful callback must carry.
	CallbackFields() []string
	// Exchange trades an authorization code for tokens.
	Exchange(ctx context.Context, code string) (Tokens, error)
	// Identify resolves who the freshly exchanged tokens belong to.
	Identify(ctx context.Context, t Tokens, cb Callback) (Identity, error)
	// Refresh trades a refresh token for new tokens.
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
	// Validate asks the provider whether accessToken is still good and
	// returns the HTTP status it answered with.
	Validate(ctx context.Context, accessToken string) (int, error)
}
