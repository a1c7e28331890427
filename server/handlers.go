package server

import (
	"context"

	"github.com/mael-queau/roboct0-api/accounts"
	"github.com/mael-queau/roboct0-api/commands"
	"github.com/mael-queau/roboct0-api/oauth"
	"github.com/mael-queau/roboct0-api/quotes"
)

const (
	twitchProvider  = accounts.Twitch
	discordProvider = accounts.Discord
)

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps lists what the handlers need.
type Deps struct {
	Flow     *oauth.Controller
	Accounts *accounts.Service
	Commands *commands.Service
	Quotes   *quotes.Service
	// Liveness is probed by /healthz; nil always reports healthy.
	Liveness  func(ctx context.Context) error
	Readiness []ReadinessCheck
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	Deps
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(d Deps) *Handlers {
	return &Handlers{Deps: d}
}
