package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mael-queau/roboct0-api/apperr"
	"github.com/mael-queau/roboct0-api/oauth"
)

// User is the subset of a Helix user record the service keeps.
type User struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// GetUser returns the user owning accessToken.
func (c *Client) GetUser(ctx context.Context, accessToken string) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.helixBase()+"/users", nil)
	if err != nil {
		return User{}, err
	}
	req.Header.Set("Client-Id", c.ClientID)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := c.http().Do(req)
	if err != nil {
		return User{}, fmt.Errorf("helix users: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return User{}, fmt.Errorf("helix users: %s", resp.Status)
	}
	var body struct {
		Data []User `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return User{}, apperr.Wrap(apperr.ProviderProtocol, err, "Malformed Helix users response.")
	}
	if len(body.Data) == 0 || body.Data[0].ID == "" {
		return User{}, apperr.New(apperr.ProviderProtocol, "Helix returned no user for the token.")
	}
	return body.Data[0], nil
}

// Identify implements oauth.Provider using the Helix user behind the token.
func (c *Client) Identify(ctx context.Context, t oauth.Tokens, _ oauth.Callback) (oauth.Identity, error) {
	u, err := c.GetUser(ctx, t.AccessToken)
	if err != nil {
		return oauth.Identity{}, err
	}
	name := u.Login
	if name == "" {
		name = u.DisplayName
	}
	return oauth.Identity{ExternalID: u.ID, Username: name}, nil
}
