// Package accounts models provider identities linked through OAuth (Twitch
// channels and Discord guilds) and the administrative operations on them.
package accounts

import (
	"context"
	"time"
)

// Provider names an identity provider. It doubles as the URL segment of the
// OAuth routes.
type Provider string

const (
	Twitch  Provider = "twitch"
	Discord Provider = "discord"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool { return p == Twitch || p == Discord }

// Noun is the human name of the record a provider links to.
func (p Provider) Noun() string {
	if p == Discord {
		return "guild"
	}
	return "channel"
}

// LinkedAccount binds a provider identity to stored credentials.
// Tokens never leave the process through JSON.
type LinkedAccount struct {
	Provider     Provider  `json:"provider"`
	ExternalID   string    `json:"id"`
	Username     string    `json:"username"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	Enabled      bool      `json:"enabled"`
	RegisteredAt time.Time `json:"registeredAt"`
	LastRefresh  time.Time `json:"lastRefresh"`

	// Populated for channels only.
	CommandCount int `json:"commandCount,omitempty"`
	QuoteCount   int `json:"quoteCount,omitempty"`
}

// SearchFilter narrows Store.Search.
type SearchFilter struct {
	Query           string
	IncludeDisabled bool
	Limit           int
	Offset          int
}

// Store persists linked accounts. Each provider has its own key space.
// Lookups of a missing account fail with apperr.NotFound.
type Store interface {
	// Upsert creates the account or, when ExternalID already exists, replaces
	// its username and credentials and re-enables it.
	Upsert(ctx context.Context, a LinkedAccount) (LinkedAccount, error)
	Get(ctx context.Context, p Provider, id string) (LinkedAccount, error)
	ListEnabled(ctx context.Context, p Provider) ([]LinkedAccount, error)
	Search(ctx context.Context, p Provider, f SearchFilter) ([]LinkedAccount, error)
	UpdateCredentials(ctx context.Context, p Provider, id, access, refresh string, at time.Time) (LinkedAccount, error)
	SetEnabled(ctx context.Context, p Provider, id string, enabled bool) (LinkedAccount, error)
	// Delete removes the account and everything it owns.
	Delete(ctx context.Context, p Provider, id string) error
}
