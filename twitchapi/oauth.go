// Package twitchapi is the Twitch identity provider client: user authorization,
// code exchange, token refresh and validation against id.twitch.tv, plus the
// Helix user lookup that identifies a freshly linked channel.
package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/twitch"

	"github.com/mael-queau/roboct0-api/accounts"
	"github.com/mael-queau/roboct0-api/oauth"
	"github.com/mael-queau/roboct0-api/telemetry"
)

// DefaultScopes are requested when linking a channel.
var DefaultScopes = []string{"channel:manage:broadcast", "clips:edit", "chat:read", "chat:edit"}

const (
	defaultIDBase    = "https://id.twitch.tv/oauth2"
	defaultHelixBase = "https://api.twitch.tv/helix"
)

// Client talks to Twitch on behalf of one registered application.
// IDBaseURL and HelixBaseURL override the production hosts (tests).
type Client struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	HTTPClient   *http.Client
	IDBaseURL    string
	HelixBaseURL string
}

var _ oauth.Provider = (*Client)(nil)

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) idBase() string {
	if c.IDBaseURL != "" {
		return strings.TrimRight(c.IDBaseURL, "/")
	}
	return defaultIDBase
}

func (c *Client) helixBase() string {
	if c.HelixBaseURL != "" {
		return strings.TrimRight(c.HelixBaseURL, "/")
	}
	return defaultHelixBase
}

func (c *Client) endpoint() oauth2.Endpoint {
	if c.IDBaseURL == "" {
		return twitch.Endpoint
	}
	return oauth2.Endpoint{AuthURL: c.idBase() + "/authorize", TokenURL: c.idBase() + "/token", AuthStyle: oauth2.AuthStyleInParams}
}

func (c *Client) config() *oauth2.Config {
	scopes := c.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     c.endpoint(),
		RedirectURL:  c.RedirectURI,
		Scopes:       scopes,
	}
}

// Name implements oauth.Provider.
func (c *Client) Name() accounts.Provider { return accounts.Twitch }

// CallbackFields implements oauth.Provider. Twitch echoes the granted scope.
func (c *Client) CallbackFields() []string { return []string{"scope"} }

// AuthorizeURL builds the user authorization URL for the code grant.
func (c *Client) AuthorizeURL(state string) string {
	return c.config().AuthCodeURL(state)
}

// Exchange trades an authorization code for access and refresh tokens.
func (c *Client) Exchange(ctx context.Context, code string) (oauth.Tokens, error) {
	if c.ClientID == "" || c.ClientSecret == "" || c.RedirectURI == "" {
		return oauth.Tokens{}, errors.New("twitch client is not configured")
	}
	if code == "" {
		return oauth.Tokens{}, errors.New("missing authorization code")
	}
	ctx, span := telemetry.StartSpan(ctx, "twitchapi", "twitch.exchange", telemetry.ProviderAttr("twitch"))
	defer span.End()
	form := url.Values{}
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", c.RedirectURI)
	t, err := oauth.PostTokenForm(ctx, c.http(), c.config().Endpoint.TokenURL, form)
	telemetry.RecordError(span, err)
	return t, err
}

// Refresh exchanges a refresh token for new tokens.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (oauth.Tokens, error) {
	if c.ClientID == "" || c.ClientSecret == "" || refreshToken == "" {
		return oauth.Tokens{}, errors.New("missing clientID/clientSecret/refreshToken")
	}
	ctx, span := telemetry.StartSpan(ctx, "twitchapi", "twitch.refresh", telemetry.ProviderAttr("twitch"))
	defer span.End()
	form := url.Values{}
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	t, err := oauth.PostTokenForm(ctx, c.http(), c.config().Endpoint.TokenURL, form)
	telemetry.RecordError(span, err)
	return t, err
}

// Validate calls /oauth2/validate and returns the HTTP status: 200 for a live
// token, 401 for an invalid one.
func (c *Client) Validate(ctx context.Context, accessToken string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.idBase()+"/validate", nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "OAuth "+accessToken)
	resp, err := c.http().Do(req)
	if err != nil {
		return 0, fmt.Errorf("twitch validate: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	return resp.StatusCode, nil
}
