// Package commands manages per-channel text commands whose content may
// reference numeric counters through {{name}} placeholders.
package commands

import (
	"context"
	"regexp"
	"time"
)

// KeywordPattern is the accepted shape of a command keyword.
var KeywordPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{1,14}$`)

// Command is a stored command. Variables holds every counter it owns.
type Command struct {
	ID        int64      `json:"-"`
	ChannelID string     `json:"channelId"`
	Keyword   string     `json:"keyword"`
	Content   string     `json:"content"`
	Enabled   bool       `json:"enabled"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Variables []Variable `json:"variables"`
}

// Values maps variable names to their current counters.
func (c Command) Values() map[string]int {
	m := make(map[string]int, len(c.Variables))
	for _, v := range c.Variables {
		m[v.Name] = v.Value
	}
	return m
}

// VariableNames returns the stored variable names.
func (c Command) VariableNames() []string {
	names := make([]string, 0, len(c.Variables))
	for _, v := range c.Variables {
		names = append(names, v.Name)
	}
	return names
}

// Variable is a named integer counter owned by a command.
type Variable struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// Rendered is a command together with its content after substitution.
type Rendered struct {
	Command
	Output string `json:"output"`
}

// ListFilter narrows Store.List.
type ListFilter struct {
	IncludeDisabled bool
	Limit           int
	Offset          int
}

// Store persists commands and their variables. Commands are keyed by
// (channel, keyword); a missing command fails with apperr.NotFound and a
// duplicate key with apperr.Conflict.
type Store interface {
	// Create inserts the command and one zero-valued variable per name.
	Create(ctx context.Context, channelID, keyword, content string, names []string) (Command, error)
	Get(ctx context.Context, channelID, keyword string) (Command, error)
	List(ctx context.Context, channelID string, f ListFilter) ([]Command, error)
	// Update replaces content and reconciles the stored variables with names,
	// atomically: variables not in names are deleted, missing ones are created
	// at zero, and the rest keep their counters. The diff is taken against the
	// stored set under the same lock as the write.
	Update(ctx context.Context, channelID, keyword, content string, names []string) (Command, error)
	SetEnabled(ctx context.Context, channelID, keyword string, enabled bool) (Command, error)
	// Delete removes the command and its variables.
	Delete(ctx context.Context, channelID, keyword string) error
	SetVariable(ctx context.Context, channelID, keyword, name string, value int) (Variable, error)
	IncrementVariable(ctx context.Context, channelID, keyword, name string, delta int) (Variable, error)
}

// ChannelGate reports whether operations on a channel may proceed.
type ChannelGate interface {
	CheckChannel(ctx context.Context, channelID string, force bool) error
}
