package accounts

import (
	"context"
	"fmt"

	"github.com/mael-queau/roboct0-api/apperr"
)

// PageSize is the number of records returned per page by list endpoints.
const PageSize = 10

// Service implements the administrative channel and guild operations.
type Service struct {
	store Store
}

// NewService returns a Service backed by store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// PageOffset converts a 1-based page number to a row offset.
func PageOffset(page int) (int, error) {
	if page < 1 {
		return 0, apperr.New(apperr.InvalidRequest, "Page must be a positive integer.")
	}
	return (page - 1) * PageSize, nil
}

// Search lists accounts whose username contains query. Disabled accounts are
// only included when force is set.
func (s *Service) Search(ctx context.Context, p Provider, query string, page int, force bool) ([]LinkedAccount, error) {
	offset, err := PageOffset(page)
	if err != nil {
		return nil, err
	}
	return s.store.Search(ctx, p, SearchFilter{
		Query:           query,
		IncludeDisabled: force,
		Limit:           PageSize,
		Offset:          offset,
	})
}

// Get returns one account. A disabled account fails with apperr.Disabled
// unless force is set.
func (s *Service) Get(ctx context.Context, p Provider, id string, force bool) (LinkedAccount, error) {
	a, err := s.store.Get(ctx, p, id)
	if err != nil {
		return LinkedAccount{}, err
	}
	if !a.Enabled && !force {
		return LinkedAccount{}, disabledErr(p)
	}
	return a, nil
}

// Toggle sets the enabled flag to *enabled, or inverts it when enabled is nil.
func (s *Service) Toggle(ctx context.Context, p Provider, id string, enabled *bool) (LinkedAccount, error) {
	a, err := s.store.Get(ctx, p, id)
	if err != nil {
		return LinkedAccount{}, err
	}
	target := !a.Enabled
	if enabled != nil {
		target = *enabled
	}
	return s.store.SetEnabled(ctx, p, id, target)
}

// Delete removes an account and everything it owns.
func (s *Service) Delete(ctx context.Context, p Provider, id string) error {
	return s.store.Delete(ctx, p, id)
}

// Verify reports whether an account exists and is enabled.
func (s *Service) Verify(ctx context.Context, p Provider, id string) (bool, error) {
	a, err := s.store.Get(ctx, p, id)
	if err != nil {
		return false, err
	}
	return a.Enabled, nil
}

// CheckChannel gates operations scoped to a Twitch channel: it fails with
// apperr.NotFound for unknown channels and apperr.Disabled for disabled ones
// unless force is set.
func (s *Service) CheckChannel(ctx context.Context, channelID string, force bool) error {
	_, err := s.Get(ctx, Twitch, channelID, force)
	return err
}

func disabledErr(p Provider) error {
	return apperr.New(apperr.Disabled, fmt.Sprintf("This %s is disabled.", p.Noun()))
}
