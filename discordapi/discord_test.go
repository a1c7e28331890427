package discordapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mael-queau/roboct0-api/apperr"
	"github.com/mael-queau/roboct0-api/oauth"
)

func TestAuthorizeURL(t *testing.T) {
	c := &Client{ClientID: "app", RedirectURI: "https://api.example.com/discord/callback"}
	u, err := url.Parse(c.AuthorizeURL("st"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "discord.com", u.Host)
	assert.Equal(t, "app", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "st", q.Get("state"))
	assert.Equal(t, "bot applications.commands", q.Get("scope"))
	assert.Equal(t, DefaultPermissions, q.Get("permissions"))
}

func tokenServer(t *testing.T, status int, body string, gotForm *url.Values) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if gotForm != nil {
			*gotForm = r.PostForm
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExchangeAndIdentify(t *testing.T) {
	var form url.Values
	srv := tokenServer(t, http.StatusOK,
		`{"access_token":"at","refresh_token":"rt","expires_in":604800,"guild":{"id":"42","name":"My Guild"}}`, &form)
	c := &Client{ClientID: "app", ClientSecret: "sec", RedirectURI: "https://api.example.com/discord/callback", TokenURL: srv.URL}

	tok, err := c.Exchange(context.Background(), "code-1")
	require.NoError(t, err)
	assert.Equal(t, "at", tok.AccessToken)
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "code-1", form.Get("code"))

	id, err := c.Identify(context.Background(), tok, oauth.Callback{Query: url.Values{"guild_id": {"42"}}})
	require.NoError(t, err)
	assert.Equal(t, oauth.Identity{ExternalID: "42", Username: "My Guild"}, id)

	_, err = c.Identify(context.Background(), tok, oauth.Callback{Query: url.Values{"guild_id": {"43"}}})
	assert.Error(t, err)
}

func TestExchangeRefreshTokenNotString(t *testing.T) {
	srv := tokenServer(t, http.StatusOK, `{"access_token":"at","refresh_token":12}`, nil)
	c := &Client{ClientID: "app", ClientSecret: "sec", RedirectURI: "https://x/cb", TokenURL: srv.URL}

	_, err := c.Exchange(context.Background(), "code")
	require.Error(t, err)
	assert.Equal(t, apperr.ProviderProtocol, apperr.KindOf(err))
}

func TestRefresh(t *testing.T) {
	var form url.Values
	srv := tokenServer(t, http.StatusOK, `{"access_token":"at2","refresh_token":"rt2"}`, &form)
	c := &Client{ClientID: "app", ClientSecret: "sec", TokenURL: srv.URL}

	tok, err := c.Refresh(context.Background(), "rt1")
	require.NoError(t, err)
	assert.Equal(t, "rt2", tok.RefreshToken)
	assert.Equal(t, "refresh_token", form.Get("grant_type"))
	assert.Equal(t, "rt1", form.Get("refresh_token"))
}

func TestValidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/@me" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"message": "401: Unauthorized", "code": 0})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"scopes": []string{"bot"}})
	}))
	defer srv.Close()
	c := &Client{APIBase: srv.URL}

	status, err := c.Validate(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	status, err = c.Validate(context.Background(), "stale")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, status)
}
