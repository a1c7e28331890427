package commands

import (
	"context"
	"fmt"

	"github.com/mael-queau/roboct0-api/accounts"
	"github.com/mael-queau/roboct0-api/apperr"
	"github.com/mael-queau/roboct0-api/variables"
)

// Service composes the template engine with command persistence.
//
// Every method takes a force flag. Unprivileged calls fail with
// apperr.Disabled when the channel or the command is disabled.
type Service struct {
	store    Store
	channels ChannelGate
}

// NewService returns a Service over store, gated by channels.
func NewService(store Store, channels ChannelGate) *Service {
	return &Service{store: store, channels: channels}
}

func validateKeyword(keyword string) error {
	if !KeywordPattern.MatchString(keyword) {
		return apperr.New(apperr.InvalidRequest, "Keyword must start with a letter and contain 2 to 15 letters, digits or underscores.")
	}
	return nil
}

// Create stores a new command and a zero counter for every distinct variable
// its content references.
func (s *Service) Create(ctx context.Context, channelID, keyword, content string, force bool) (Rendered, error) {
	if err := validateKeyword(keyword); err != nil {
		return Rendered{}, err
	}
	names, err := variables.Extract(content)
	if err != nil {
		return Rendered{}, err
	}
	if err := s.channels.CheckChannel(ctx, channelID, force); err != nil {
		return Rendered{}, err
	}
	cmd, err := s.store.Create(ctx, channelID, keyword, content, variables.Dedupe(names))
	if err != nil {
		return Rendered{}, err
	}
	return render(cmd)
}

// Get returns a command with its content rendered.
func (s *Service) Get(ctx context.Context, channelID, keyword string, force bool) (Rendered, error) {
	cmd, err := s.load(ctx, channelID, keyword, force)
	if err != nil {
		return Rendered{}, err
	}
	return render(cmd)
}

// List returns one page of rendered commands ordered by keyword.
func (s *Service) List(ctx context.Context, channelID string, page int, force bool) ([]Rendered, error) {
	offset, err := accounts.PageOffset(page)
	if err != nil {
		return nil, err
	}
	if err := s.channels.CheckChannel(ctx, channelID, force); err != nil {
		return nil, err
	}
	cmds, err := s.store.List(ctx, channelID, ListFilter{IncludeDisabled: force, Limit: accounts.PageSize, Offset: offset})
	if err != nil {
		return nil, err
	}
	if len(cmds) == 0 {
		return nil, apperr.New(apperr.NotFound, "No commands found.")
	}
	out := make([]Rendered, 0, len(cmds))
	for _, c := range cmds {
		r, err := render(c)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Update replaces a command's content. Counters of variables still referenced
// keep their values; dropped ones are deleted and new ones start at zero.
func (s *Service) Update(ctx context.Context, channelID, keyword, content string, force bool) (Rendered, error) {
	names, err := variables.Extract(content)
	if err != nil {
		return Rendered{}, err
	}
	if _, err := s.load(ctx, channelID, keyword, force); err != nil {
		return Rendered{}, err
	}
	cmd, err := s.store.Update(ctx, channelID, keyword, content, variables.Dedupe(names))
	if err != nil {
		return Rendered{}, err
	}
	return render(cmd)
}

// Toggle sets the command's enabled flag to *enabled, or inverts it when nil.
func (s *Service) Toggle(ctx context.Context, channelID, keyword string, enabled *bool, force bool) (Rendered, error) {
	if err := s.channels.CheckChannel(ctx, channelID, force); err != nil {
		return Rendered{}, err
	}
	existing, err := s.store.Get(ctx, channelID, keyword)
	if err != nil {
		return Rendered{}, err
	}
	target := !existing.Enabled
	if enabled != nil {
		target = *enabled
	}
	cmd, err := s.store.SetEnabled(ctx, channelID, keyword, target)
	if err != nil {
		return Rendered{}, err
	}
	return render(cmd)
}

// Delete removes a command and its variables.
func (s *Service) Delete(ctx context.Context, channelID, keyword string, force bool) error {
	if err := s.channels.CheckChannel(ctx, channelID, force); err != nil {
		return err
	}
	return s.store.Delete(ctx, channelID, keyword)
}

// SetVariable overwrites a counter.
func (s *Service) SetVariable(ctx context.Context, channelID, keyword, name string, value int, force bool) (Variable, error) {
	if !variables.ValidName(name) {
		return Variable{}, apperr.Newf(apperr.InvalidRequest, "Invalid variable name %q.", name)
	}
	if _, err := s.load(ctx, channelID, keyword, force); err != nil {
		return Variable{}, err
	}
	return s.store.SetVariable(ctx, channelID, keyword, name, value)
}

// IncrementVariable adds delta (which may be negative) to a counter.
func (s *Service) IncrementVariable(ctx context.Context, channelID, keyword, name string, delta int, force bool) (Variable, error) {
	if !variables.ValidName(name) {
		return Variable{}, apperr.Newf(apperr.InvalidRequest, "Invalid variable name %q.", name)
	}
	if _, err := s.load(ctx, channelID, keyword, force); err != nil {
		return Variable{}, err
	}
	return s.store.IncrementVariable(ctx, channelID, keyword, name, delta)
}

// load fetches a command after checking the channel gate and the command's
// own enabled flag.
func (s *Service) load(ctx context.Context, channelID, keyword string, force bool) (Command, error) {
	if err := s.channels.CheckChannel(ctx, channelID, force); err != nil {
		return Command{}, err
	}
	cmd, err := s.store.Get(ctx, channelID, keyword)
	if err != nil {
		return Command{}, err
	}
	if !cmd.Enabled && !force {
		return Command{}, apperr.New(apperr.Disabled, "This command is disabled.")
	}
	return cmd, nil
}

func render(cmd Command) (Rendered, error) {
	out, err := variables.Format(cmd.Content, cmd.Values())
	if err != nil {
		return Rendered{}, fmt.Errorf("render %s/%s: %w", cmd.ChannelID, cmd.Keyword, err)
	}
	return Rendered{Command: cmd, Output: out}, nil
}
