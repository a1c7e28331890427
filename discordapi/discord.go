// Package discordapi is the Discord identity provider client. Linking a guild
// is a bot installation: the consent URL asks for the bot and
// applications.commands scopes plus a permission bitset, and the guild id
// arrives on the callback.
package discordapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/mael-queau/roboct0-api/accounts"
	"github.com/mael-queau/roboct0-api/oauth"
	"github.com/mael-queau/roboct0-api/telemetry"
)

// DefaultScopes are requested when installing the bot in a guild.
var DefaultScopes = []string{"bot", "applications.commands"}

const (
	// DefaultPermissions is the bot permission bitset requested on install.
	DefaultPermissions = "309237902400"

	defaultTokenURL = "https://discord.com/api/v10/oauth2/token"
)

// Client talks to Discord on behalf of one registered application.
// AuthURL, TokenURL and APIBase override the production hosts (tests).
type Client struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	Permissions  string
	HTTPClient   *http.Client
	AuthURL      string
	TokenURL     string
	APIBase      string
}

var _ oauth.Provider = (*Client)(nil)

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) config() *oauth2.Config {
	ep := endpoints.Discord
	ep.TokenURL = defaultTokenURL
	if c.AuthURL != "" {
		ep.AuthURL = c.AuthURL
	}
	if c.TokenURL != "" {
		ep.TokenURL = c.TokenURL
	}
	scopes := c.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     ep,
		RedirectURL:  c.RedirectURI,
		Scopes:       scopes,
	}
}

func (c *Client) apiBase() string {
	if c.APIBase != "" {
		return strings.TrimRight(c.APIBase, "/") + "/"
	}
	return discordgo.EndpointAPI
}

// Name implements oauth.Provider.
func (c *Client) Name() accounts.Provider { return accounts.Discord }

// CallbackFields implements oauth.Provider. Discord reports the guild the
// bot was added to.
func (c *Client) CallbackFields() []string { return []string{"guild_id"} }

// AuthorizeURL builds the bot installation URL.
func (c *Client) AuthorizeURL(state string) string {
	perms := c.Permissions
	if perms == "" {
		perms = DefaultPermissions
	}
	return c.config().AuthCodeURL(state, oauth2.SetAuthURLParam("permissions", perms))
}

// Exchange trades an authorization code for tokens.
func (c *Client) Exchange(ctx context.Context, code string) (oauth.Tokens, error) {
	if c.ClientID == "" || c.ClientSecret == "" || c.RedirectURI == "" {
		return oauth.Tokens{}, errors.New("discord client is not configured")
	}
	ctx, span := telemetry.StartSpan(ctx, "discordapi", "discord.exchange", telemetry.ProviderAttr("discord"))
	defer span.End()
	form := url.Values{}
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
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
	ctx, span := telemetry.StartSpan(ctx, "discordapi", "discord.refresh", telemetry.ProviderAttr("discord"))
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

// Identify implements oauth.Provider. The guild id comes from the callback;
// the guild name, when Discord includes the guild object in the token
// response, becomes the username.
func (c *Client) Identify(_ context.Context, t oauth.Tokens, cb oauth.Callback) (oauth.Identity, error) {
	guildID := cb.Query.Get("guild_id")
	if guildID == "" {
		return oauth.Identity{}, errors.New("callback carries no guild_id")
	}
	id := oauth.Identity{ExternalID: guildID, Username: guildID}
	if raw, ok := t.Extra["guild"]; ok {
		var g discordgo.Guild
		if err := json.Unmarshal(raw, &g); err == nil && g.Name != "" {
			if g.ID != "" && g.ID != guildID {
				return oauth.Identity{}, fmt.Errorf("token guild %s does not match callback guild %s", g.ID, guildID)
			}
			id.Username = g.Name
		}
	}
	return id, nil
}

// Validate asks Discord for the current authorization of accessToken and
// returns the HTTP status it answered with.
func (c *Client) Validate(ctx context.Context, accessToken string) (int, error) {
	s, err := discordgo.New("Bearer " + accessToken)
	if err != nil {
		return 0, err
	}
	s.Client = c.http()
	s.MaxRestRetries = 0
	s.ShouldRetryOnRateLimit = false

	_, err = s.Request(http.MethodGet, c.apiBase()+"oauth2/@me", nil, discordgo.WithContext(ctx))
	if err == nil {
		return http.StatusOK, nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode, nil
	}
	if errors.Is(err, discordgo.ErrUnauthorized) {
		return http.StatusUnauthorized, nil
	}
	return 0, fmt.Errorf("discord validate: %w", err)
}
