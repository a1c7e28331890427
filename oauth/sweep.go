package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mael-queau/roboct0-api/accounts"
	"github.com/mael-queau/roboct0-api/telemetry"
)

const (
	defaultProviderTimeout  = 10 * time.Second
	defaultSweepConcurrency = 4
)

// SweepConfig tunes a Sweeper.
type SweepConfig struct {
	// DevMode leaves accounts untouched when a refresh fails.
	DevMode bool
	// Timeout bounds every provider call. Zero means 10s.
	Timeout time.Duration
	// Concurrency bounds in-flight provider calls. Zero means 4.
	Concurrency int
}

// SweepReport summarizes one cycle.
type SweepReport struct {
	Checked   int
	Valid     int
	Invalid   int
	Skipped   int
	Refreshed int
	Disabled  int
	Failed    int
}

// Sweeper validates stored access tokens and refreshes the invalid ones.
type Sweeper struct {
	store     accounts.Store
	providers []Provider
	cfg       SweepConfig
	now       func() time.Time
	running   atomic.Bool
}

// NewSweeper returns a Sweeper over store for the given providers.
func NewSweeper(store accounts.Store, cfg SweepConfig, providers ...Provider) *Sweeper {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultProviderTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultSweepConcurrency
	}
	return &Sweeper{store: store, providers: providers, cfg: cfg, now: time.Now}
}

// VerifyTokens validates every enabled account of p and returns those whose
// token the provider answered 401 for. 2xx means valid; any other status or a
// transport error is logged and the account skipped. It mutates nothing.
func (s *Sweeper) VerifyTokens(ctx context.Context, p Provider) ([]accounts.LinkedAccount, error) {
	invalid, _, err := s.verify(ctx, p)
	return invalid, err
}

func (s *Sweeper) verify(ctx context.Context, p Provider) ([]accounts.LinkedAccount, SweepReport, error) {
	var rep SweepReport
	accts, err := s.store.ListEnabled(ctx, p.Name())
	if err != nil {
		return nil, rep, fmt.Errorf("list %s accounts: %w", p.Name(), err)
	}
	rep.Checked = len(accts)

	needsRefresh := make([]bool, len(accts))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, a := range accts {
		g.Go(func() error {
			result := s.classify(gctx, p, a)
			mu.Lock()
			defer mu.Unlock()
			switch result {
			case "valid":
				rep.Valid++
			case "invalid":
				rep.Invalid++
				needsRefresh[i] = true
			default:
				rep.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]accounts.LinkedAccount, 0, rep.Invalid)
	for i, a := range accts {
		if needsRefresh[i] {
			out = append(out, a)
		}
	}
	return out, rep, nil
}

func (s *Sweeper) classify(ctx context.Context, p Provider, a accounts.LinkedAccount) (result string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("token validation panicked", slog.String("component", "token_sweep"),
				slog.String("provider", string(p.Name())), slog.String("account", a.ExternalID), slog.Any("panic", r))
			result = "skipped"
		}
		telemetry.RecordTokenValidation(string(p.Name()), result)
	}()
	cctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	status, err := p.Validate(cctx, a.AccessToken)
	switch {
	case err != nil:
		slog.Warn("token validation failed", slog.String("component", "token_sweep"),
			slog.String("provider", string(p.Name())), slog.String("account", a.ExternalID), slog.Any("err", err))
		return "skipped"
	case status >= 200 && status <= 299:
		return "valid"
	case status == http.StatusUnauthorized:
		return "invalid"
	default:
		slog.Warn("unexpected token validation status", slog.String("component", "token_sweep"),
			slog.String("provider", string(p.Name())), slog.String("account", a.ExternalID), slog.Int("status", status))
		return "skipped"
	}
}

// RefreshToken exchanges the account's refresh token for new credentials and
// persists them. When the refresh fails the account is disabled, unless the
// sweeper runs in dev mode, in which case it is returned unchanged. The
// refresh error is returned in both cases.
func (s *Sweeper) RefreshToken(ctx context.Context, p Provider, a accounts.LinkedAccount) (accounts.LinkedAccount, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	tokens, err := p.Refresh(cctx, a.RefreshToken)
	cancel()
	if err == nil {
		updated, perr := s.store.UpdateCredentials(ctx, p.Name(), a.ExternalID, tokens.AccessToken, tokens.RefreshToken, s.now().UTC())
		if perr != nil {
			telemetry.RecordTokenRefresh(string(p.Name()), "failed")
			return a, fmt.Errorf("persist refreshed tokens: %w", perr)
		}
		telemetry.RecordTokenRefresh(string(p.Name()), "refreshed")
		slog.Info("token refreshed", slog.String("component", "token_sweep"),
			slog.String("provider", string(p.Name())), slog.String("account", a.ExternalID))
		return updated, nil
	}

	if s.cfg.DevMode {
		telemetry.RecordTokenRefresh(string(p.Name()), "failed")
		slog.Warn("token refresh failed; dev mode leaves account enabled", slog.String("component", "token_sweep"),
			slog.String("provider", string(p.Name())), slog.String("account", a.ExternalID), slog.Any("err", err))
		return a, err
	}

	disabled, derr := s.store.SetEnabled(ctx, p.Name(), a.ExternalID, false)
	if derr != nil {
		telemetry.RecordTokenRefresh(string(p.Name()), "failed")
		slog.Error("failed to disable account after refresh failure", slog.String("component", "token_sweep"),
			slog.String("provider", string(p.Name())), slog.String("account", a.ExternalID), slog.Any("err", derr))
		return a, err
	}
	telemetry.RecordTokenRefresh(string(p.Name()), "disabled")
	slog.Warn("token refresh failed; account disabled", slog.String("component", "token_sweep"),
		slog.String("provider", string(p.Name())), slog.String("account", a.ExternalID), slog.Any("err", err))
	return disabled, err
}

// RunCycle verifies and refreshes every provider's accounts. It returns
// false without doing anything when another cycle is still in progress.
func (s *Sweeper) RunCycle(ctx context.Context) (SweepReport, bool) {
	if !s.running.CompareAndSwap(false, true) {
		telemetry.RecordSweepSkipped()
		slog.Warn("token sweep still running; skipping", slog.String("component", "token_sweep"))
		return SweepReport{}, false
	}
	defer s.running.Store(false)

	ctx, span := telemetry.StartSpan(ctx, "token-sweep", "sweep.cycle")
	defer span.End()
	start := time.Now()
	defer func() { telemetry.ObserveSweep(time.Since(start)) }()

	var total SweepReport
	for _, p := range s.providers {
		invalid, rep, err := s.verify(ctx, p)
		if err != nil {
			telemetry.RecordError(span, err)
			slog.Error("token sweep listing failed", slog.String("component", "token_sweep"),
				slog.String("provider", string(p.Name())), slog.Any("err", err))
			continue
		}

		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.Concurrency)
		for _, a := range invalid {
			g.Go(func() error {
				updated, err := s.safeRefresh(gctx, p, a)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					rep.Refreshed++
				case !updated.Enabled:
					rep.Disabled++
				default:
					rep.Failed++
				}
				return nil
			})
		}
		_ = g.Wait()

		total.Checked += rep.Checked
		total.Valid += rep.Valid
		total.Invalid += rep.Invalid
		total.Skipped += rep.Skipped
		total.Refreshed += rep.Refreshed
		total.Disabled += rep.Disabled
		total.Failed += rep.Failed
	}

	slog.Info("token sweep complete", slog.String("component", "token_sweep"),
		slog.Int("checked", total.Checked), slog.Int("valid", total.Valid), slog.Int("invalid", total.Invalid),
		slog.Int("skipped", total.Skipped), slog.Int("refreshed", total.Refreshed),
		slog.Int("disabled", total.Disabled), slog.Int("failed", total.Failed))
	telemetry.SetSpanSuccess(span)
	return total, true
}

func (s *Sweeper) safeRefresh(ctx context.Context, p Provider, a accounts.LinkedAccount) (updated accounts.LinkedAccount, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("token refresh panicked", slog.String("component", "token_sweep"),
				slog.String("provider", string(p.Name())), slog.String("account", a.ExternalID), slog.Any("panic", r))
			updated, err = a, fmt.Errorf("refresh panicked: %v", r)
		}
	}()
	return s.RefreshToken(ctx, p, a)
}
