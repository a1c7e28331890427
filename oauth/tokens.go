package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/mael-queau/roboct0-api/apperr"
)

// Tokens is a validated token endpoint response.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	// Extra holds every other top-level field of the response.
	Extra map[string]json.RawMessage
}

// ParseTokenResponse decodes a token endpoint body. access_token and
// refresh_token must both be non-empty JSON strings; anything else fails with
// apperr.ProviderProtocol and nothing is guessed.
func ParseTokenResponse(body []byte) (Tokens, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return Tokens{}, apperr.Wrap(apperr.ProviderProtocol, err, "Token response is not a JSON object.")
	}
	access, err := requiredString(raw, "access_token")
	if err != nil {
		return Tokens{}, err
	}
	refresh, err := requiredString(raw, "refresh_token")
	if err != nil {
		return Tokens{}, err
	}
	t := Tokens{AccessToken: access, RefreshToken: refresh, Extra: map[string]json.RawMessage{}}
	if v, ok := raw["expires_in"]; ok {
		// Optional; ignore a malformed value rather than failing the exchange.
		_ = json.Unmarshal(v, &t.ExpiresIn)
	}
	for k, v := range raw {
		switch k {
		case "access_token", "refresh_token", "expires_in":
		default:
			t.Extra[k] = v
		}
	}
	return t, nil
}

func requiredString(raw map[string]json.RawMessage, key string) (string, error) {
	v, ok := raw[key]
	if !ok {
		return "", apperr.Newf(apperr.ProviderProtocol, "Token response is missing %s.", key)
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil || s == "" {
		return "", apperr.Newf(apperr.ProviderProtocol, "Token response field %s is not a non-empty string.", key)
	}
	return s, nil
}

// PostTokenForm sends a form-encoded request to a token endpoint and parses
// the response. A non-2xx status fails with apperr.ProviderRejected.
func PostTokenForm(ctx context.Context, client *http.Client, tokenURL string, form url.Values) (Tokens, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Tokens{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return Tokens{}, fmt.Errorf("token request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Tokens{}, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Tokens{}, apperr.Wrap(apperr.ProviderRejected,
			fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body))),
			"The provider rejected the token request.")
	}
	return ParseTokenResponse(body)
}
