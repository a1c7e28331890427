// Package quotes manages numbered per-channel quotes.
package quotes

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/mael-queau/roboct0-api/accounts"
	"github.com/mael-queau/roboct0-api/apperr"
	"github.com/mael-queau/roboct0-api/commands"
)

// MaxContentLength is the longest accepted quote, in characters.
const MaxContentLength = 500

// Quote is a stored quote. Index is the channel-scoped sequential number
// shown to chat users; it is never reused within a channel.
type Quote struct {
	ChannelID string    `json:"channelId"`
	Index     int       `json:"quoteId"`
	Content   string    `json:"content"`
	Date      time.Time `json:"date"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
}

// Patch lists the fields Update changes. Nil fields are kept.
type Patch struct {
	Content *string
	Date    *time.Time
}

// SearchFilter narrows Store.Search.
type SearchFilter struct {
	Query           string
	IncludeDisabled bool
	Limit           int
	Offset          int
}

// Store persists quotes, keyed by (channel, index).
type Store interface {
	// Create allocates the channel's next index atomically.
	Create(ctx context.Context, channelID, content string, date time.Time) (Quote, error)
	Get(ctx context.Context, channelID string, index int) (Quote, error)
	Search(ctx context.Context, channelID string, f SearchFilter) ([]Quote, error)
	// Random returns a random enabled quote, or apperr.NotFound.
	Random(ctx context.Context, channelID string) (Quote, error)
	Update(ctx context.Context, channelID string, index int, p Patch) (Quote, error)
	SetEnabled(ctx context.Context, channelID string, index int, enabled bool) (Quote, error)
	Delete(ctx context.Context, channelID string, index int) error
}

// Service implements quote operations with the same force semantics as
// commands.
type Service struct {
	store    Store
	channels commands.ChannelGate
	now      func() time.Time
}

// NewService returns a Service over store, gated by channels.
func NewService(store Store, channels commands.ChannelGate) *Service {
	return &Service{store: store, channels: channels, now: time.Now}
}

func validateContent(content string) error {
	n := utf8.RuneCountInString(content)
	if n == 0 {
		return apperr.New(apperr.InvalidRequest, "Quote content is required.")
	}
	if n > MaxContentLength {
		return apperr.Newf(apperr.InvalidRequest, "Quote content must be at most %d characters.", MaxContentLength)
	}
	return nil
}

// Search returns one page of quotes containing query.
func (s *Service) Search(ctx context.Context, channelID, query string, page int, force bool) ([]Quote, error) {
	offset, err := accounts.PageOffset(page)
	if err != nil {
		return nil, err
	}
	if err := s.channels.CheckChannel(ctx, channelID, force); err != nil {
		return nil, err
	}
	return s.store.Search(ctx, channelID, SearchFilter{Query: query, IncludeDisabled: force, Limit: accounts.PageSize, Offset: offset})
}

// Random returns a random enabled quote.
func (s *Service) Random(ctx context.Context, channelID string, force bool) (Quote, error) {
	if err := s.channels.CheckChannel(ctx, channelID, force); err != nil {
		return Quote{}, err
	}
	return s.store.Random(ctx, channelID)
}

// Get returns a quote by index.
func (s *Service) Get(ctx context.Context, channelID string, index int, force bool) (Quote, error) {
	if err := s.channels.CheckChannel(ctx, channelID, force); err != nil {
		return Quote{}, err
	}
	q, err := s.store.Get(ctx, channelID, index)
	if err != nil {
		return Quote{}, err
	}
	if !q.Enabled && !force {
		return Quote{}, apperr.New(apperr.Disabled, "This quote is disabled.")
	}
	return q, nil
}

// Create stores a quote dated date, or now when date is nil.
func (s *Service) Create(ctx context.Context, channelID, content string, date *time.Time, force bool) (Quote, error) {
	if err := validateContent(content); err != nil {
		return Quote{}, err
	}
	if err := s.channels.CheckChannel(ctx, channelID, force); err != nil {
		return Quote{}, err
	}
	d := s.now().UTC()
	if date != nil {
		d = *date
	}
	return s.store.Create(ctx, channelID, content, d)
}

// Update changes a quote's content or date.
func (s *Service) Update(ctx context.Context, channelID string, index int, p Patch, force bool) (Quote, error) {
	if p.Content == nil && p.Date == nil {
		return Quote{}, apperr.New(apperr.InvalidRequest, "Nothing to update.")
	}
	if p.Content != nil {
		if err := validateContent(*p.Content); err != nil {
			return Quote{}, err
		}
	}
	if _, err := s.Get(ctx, channelID, index, force); err != nil {
		return Quote{}, err
	}
	return s.store.Update(ctx, channelID, index, p)
}

// Toggle sets the enabled flag to *enabled, or inverts it when nil.
func (s *Service) Toggle(ctx context.Context, channelID string, index int, enabled *bool, force bool) (Quote, error) {
	if err := s.channels.CheckChannel(ctx, channelID, force); err != nil {
		return Quote{}, err
	}
	q, err := s.store.Get(ctx, channelID, index)
	if err != nil {
		return Quote{}, err
	}
	target := !q.Enabled
	if enabled != nil {
		target = *enabled
	}
	return s.store.SetEnabled(ctx, channelID, index, target)
}

// Delete removes a quote. Its index is not reused.
func (s *Service) Delete(ctx context.Context, channelID string, index int, force bool) error {
	if err := s.channels.CheckChannel(ctx, channelID, force); err != nil {
		return err
	}
	return s.store.Delete(ctx, channelID, index)
}
