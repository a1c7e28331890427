package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/mael-queau/roboct0-api/apperr"
)

const (
	// StateTTL is how long a state token stays valid after creation.
	StateTTL = 10 * time.Minute

	stateBytes = 20
)

// StateStore persists state tokens.
type StateStore interface {
	Save(ctx context.Context, value string, createdAt time.Time) error
	// Take removes the token and returns its creation time. It must be atomic:
	// of two concurrent calls for the same value at most one reports found.
	Take(ctx context.Context, value string) (createdAt time.Time, found bool, err error)
	// PurgeBefore removes tokens created before cutoff.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// States issues and consumes single-use CSRF state tokens.
type States struct {
	store StateStore
	now   func() time.Time
}

// NewStates returns a States over store. A nil now uses time.Now.
func NewStates(store StateStore, now func() time.Time) *States {
	if now == nil {
		now = time.Now
	}
	return &States{store: store, now: now}
}

// Create generates and stores a fresh token.
func (s *States) Create(ctx context.Context) (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	value := hex.EncodeToString(b)
	if err := s.store.Save(ctx, value, s.now().UTC()); err != nil {
		return "", fmt.Errorf("save state: %w", err)
	}
	return value, nil
}

// Consume takes the token out of the store. An unknown token fails with
// apperr.InvalidState; a token older than StateTTL is removed all the same
// and fails with apperr.ExpiredState.
func (s *States) Consume(ctx context.Context, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, apperr.New(apperr.InvalidState, "Invalid state.")
	}
	createdAt, found, err := s.store.Take(ctx, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("take state: %w", err)
	}
	if !found {
		return time.Time{}, apperr.New(apperr.InvalidState, "Invalid state.")
	}
	if s.now().Sub(createdAt) > StateTTL {
		return time.Time{}, apperr.New(apperr.ExpiredState, "The state has expired, please try again.")
	}
	return createdAt, nil
}

// Purge removes every expired token and returns how many were dropped.
func (s *States) Purge(ctx context.Context) (int64, error) {
	return s.store.PurgeBefore(ctx, s.now().Add(-StateTTL))
}
