package oauth

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/mael-queau/roboct0-api/accounts"
	"github.com/mael-queau/roboct0-api/apperr"
	"github.com/mael-queau/roboct0-api/telemetry"
)

// FlowState is the state of one authorization attempt.
type FlowState int

const (
	FlowStarted FlowState = iota
	FlowPendingCallback
	FlowLinked
	FlowRejected
	FlowExpired
	FlowError
)

func (s FlowState) String() string {
	switch s {
	case FlowStarted:
		return "started"
	case FlowPendingCallback:
		return "pending_callback"
	case FlowLinked:
		return "linked"
	case FlowRejected:
		return "rejected"
	case FlowExpired:
		return "expired"
	case FlowError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s FlowState) Terminal() bool { return s >= FlowLinked }

// FlowResult is the outcome of HandleCallback. Account is set only when
// State is FlowLinked.
type FlowResult struct {
	State   FlowState
	Account *accounts.LinkedAccount
}

// Controller drives the authorization-code flow for every registered provider.
type Controller struct {
	states    *States
	accounts  accounts.Store
	providers map[accounts.Provider]Provider
	now       func() time.Time
}

// NewController returns a Controller. Providers are looked up by Name().
func NewController(states *States, store accounts.Store, providers ...Provider) *Controller {
	m := make(map[accounts.Provider]Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Controller{states: states, accounts: store, providers: m, now: time.Now}
}

// Provider returns the registered provider called name.
func (c *Controller) Provider(name accounts.Provider) (Provider, bool) {
	p, ok := c.providers[name]
	return p, ok
}

func (c *Controller) provider(name accounts.Provider) (Provider, error) {
	p, ok := c.providers[name]
	if !ok {
		return nil, apperr.Newf(apperr.NotFound, "Unknown provider %q.", string(name))
	}
	return p, nil
}

// BeginFlow allocates a state token and returns the provider consent URL the
// caller should be redirected to.
func (c *Controller) BeginFlow(ctx context.Context, name accounts.Provider) (string, error) {
	p, err := c.provider(name)
	if err != nil {
		return "", err
	}
	state, err := c.states.Create(ctx)
	if err != nil {
		return "", err
	}
	telemetry.LoggerWithCorr(ctx).Debug("oauth flow started",
		slog.String("component", "oauth"), slog.String("provider", string(name)))
	return p.AuthorizeURL(state), nil
}

// HandleCallback completes a flow. The returned result always carries the
// terminal state reached, including on error.
//
// Nothing is persisted unless the code exchange and the identity lookup both
// succeed.
func (c *Controller) HandleCallback(ctx context.Context, name accounts.Provider, query url.Values) (res FlowResult, err error) {
	res.State = FlowPendingCallback
	defer func() {
		telemetry.RecordOAuthFlow(string(name), res.State.String())
		if err != nil && res.State == FlowError {
			telemetry.LoggerWithCorr(ctx).Error("oauth callback failed",
				slog.String("component", "oauth"), slog.String("provider", string(name)), slog.Any("err", err))
		}
	}()

	p, err := c.provider(name)
	if err != nil {
		res.State = FlowRejected
		return res, err
	}
	cb, err := parseCallback(p, query)
	if err != nil {
		res.State = FlowRejected
		return res, err
	}

	if _, err := c.states.Consume(ctx, cb.State); err != nil {
		switch apperr.KindOf(err) {
		case apperr.ExpiredState:
			res.State = FlowExpired
		case apperr.InvalidState:
			res.State = FlowRejected
		default:
			res.State = FlowError
		}
		return res, err
	}

	if cb.Error != "" {
		res.State = FlowRejected
		msg := cb.ErrorDescription
		if msg == "" {
			msg = cb.Error
		}
		return res, apperr.New(apperr.ProviderRejected, msg)
	}

	tokens, err := p.Exchange(ctx, cb.Code)
	if err != nil {
		res.State = FlowError
		return res, exchangeErr(err, "Failed to exchange the authorization code.")
	}
	id, err := p.Identify(ctx, tokens, cb)
	if err != nil {
		res.State = FlowError
		return res, exchangeErr(err, "Failed to resolve the linked identity.")
	}

	now := c.now().UTC()
	acct, err := c.accounts.Upsert(ctx, accounts.LinkedAccount{
		Provider:     name,
		ExternalID:   id.ExternalID,
		Username:     id.Username,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		Enabled:      true,
		RegisteredAt: now,
		LastRefresh:  now,
	})
	if err != nil {
		res.State = FlowError
		return res, apperr.Wrap(apperr.Internal, err, "persist linked account")
	}
	res.State = FlowLinked
	res.Account = &acct
	return res, nil
}

// exchangeErr keeps protocol errors as they are and reports every other
// provider failure as internal.
func exchangeErr(err error, msg string) error {
	if apperr.IsKind(err, apperr.ProviderProtocol) {
		return err
	}
	return apperr.Wrap(apperr.Internal, err, msg)
}

// parseCallback accepts either the success shape (code, state and the
// provider's extra fields) or the error shape (error, state).
func parseCallback(p Provider, q url.Values) (Callback, error) {
	cb := Callback{
		Code:             strings.TrimSpace(q.Get("code")),
		State:            strings.TrimSpace(q.Get("state")),
		Error:            strings.TrimSpace(q.Get("error")),
		ErrorDescription: strings.TrimSpace(q.Get("error_description")),
		Query:            q,
	}
	if cb.State == "" {
		return Callback{}, apperr.New(apperr.InvalidRequest, "Missing state parameter.")
	}
	if cb.Error != "" {
		return cb, nil
	}
	if cb.Code == "" {
		return Callback{}, apperr.New(apperr.InvalidRequest, "Missing code parameter.")
	}
	var missing []string
	for _, f := range p.CallbackFields() {
		if strings.TrimSpace(q.Get(f)) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return Callback{}, apperr.Newf(apperr.InvalidRequest, "Missing parameters: %s.", strings.Join(missing, ", "))
	}
	return cb, nil
}
