package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/mael-queau/roboct0-api/accounts"
	"github.com/mael-queau/roboct0-api/apperr"
	"github.com/mael-queau/roboct0-api/commands"
)

const prefix = "!"

// CommandSource renders a channel's command.
type CommandSource interface {
	Get(ctx context.Context, channelID, keyword string, force bool) (commands.Rendered, error)
}

// ChannelLister returns the channels the bot should sit in.
type ChannelLister interface {
	ListEnabled(ctx context.Context, p accounts.Provider) ([]accounts.LinkedAccount, error)
}

// ircClient is the part of the go-twitch-irc client the responder drives.
type ircClient interface {
	OnPrivateMessage(func(twitch.PrivateMessage))
	Join(channels ...string)
	Depart(channel string)
	Say(channel, text string)
	Connect() error
	Disconnect() error
}

// Responder answers chat commands.
type Responder struct {
	cmds     CommandSource
	channels ChannelLister
	client   ircClient

	// RejoinInterval is how often the joined set is synced with the enabled
	// channels. Zero disables resyncing.
	RejoinInterval time.Duration
	// Backoff paces reconnects after the connection drops. Returning
	// backoff.Stop ends Run.
	Backoff backoff.BackOff

	mu     sync.Mutex
	joined map[string]bool
}

// NewResponder returns a Responder logging in as username with oauthToken.
func NewResponder(username, oauthToken string, cmds CommandSource, channels ChannelLister) *Responder {
	token := oauthToken
	if !strings.HasPrefix(token, "oauth:") {
		token = "oauth:" + token
	}
	return newResponder(twitch.NewClient(username, token), cmds, channels)
}

func newResponder(client ircClient, cmds CommandSource, channels ChannelLister) *Responder {
	return &Responder{
		cmds:           cmds,
		channels:       channels,
		client:         client,
		RejoinInterval: 5 * time.Minute,
		Backoff:        backoff.NewExponentialBackOff(),
		joined:         make(map[string]bool),
	}
}

// ParseCommand extracts the keyword from a "!keyword ..." message.
func ParseCommand(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, prefix) {
		return "", false
	}
	fields := strings.Fields(text[len(prefix):])
	if len(fields) == 0 || !commands.KeywordPattern.MatchString(fields[0]) {
		return "", false
	}
	return fields[0], true
}

// HandleMessage returns the reply for a message posted in the channel with
// id roomID, if any. Unknown and disabled commands get no reply.
func (r *Responder) HandleMessage(ctx context.Context, roomID, text string) (string, bool) {
	keyword, ok := ParseCommand(text)
	if !ok {
		return "", false
	}
	rendered, err := r.cmds.Get(ctx, roomID, keyword, false)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.NotFound, apperr.Disabled:
		default:
			slog.Warn("chat command failed", slog.String("component", "chat"),
				slog.String("channel_id", roomID), slog.String("keyword", keyword), slog.Any("err", err))
		}
		return "", false
	}
	if rendered.Output == "" {
		return "", false
	}
	return rendered.Output, true
}

// Sync joins every enabled channel not yet joined and departs channels that
// are no longer enabled.
func (r *Responder) Sync(ctx context.Context) error {
	list, err := r.channels.ListEnabled(ctx, accounts.Twitch)
	if err != nil {
		return err
	}
	want := make(map[string]bool, len(list))
	for _, a := range list {
		want[strings.ToLower(a.Username)] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var join []string
	for name := range want {
		if !r.joined[name] {
			join = append(join, name)
			r.joined[name] = true
		}
	}
	for name := range r.joined {
		if !want[name] {
			r.client.Depart(name)
			delete(r.joined, name)
		}
	}
	if len(join) > 0 {
		r.client.Join(join...)
		slog.Info("chat channels joined", slog.String("component", "chat"), slog.Int("count", len(join)))
	}
	return nil
}

// Joined returns the number of channels currently joined.
func (r *Responder) Joined() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.joined)
}

// Run connects and serves until ctx is cancelled. Dropped connections are
// retried with Backoff; a rejected login ends Run.
func (r *Responder) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		reply, ok := r.HandleMessage(ctx, msg.RoomID, msg.Message)
		if ok {
			r.client.Say(msg.Channel, reply)
		}
	})

	if err := r.Sync(ctx); err != nil {
		slog.Error("chat channel sync failed", slog.String("component", "chat"), slog.Any("err", err))
	}

	// Handle context cancellation by closing the client
	done := make(chan struct{})
	go func() {
		defer close(done)
		var tick <-chan time.Time
		if r.RejoinInterval > 0 {
			t := time.NewTicker(r.RejoinInterval)
			defer t.Stop()
			tick = t.C
		}
		for {
			select {
			case <-ctx.Done():
				_ = r.client.Disconnect()
				return
			case <-tick:
				if err := r.Sync(ctx); err != nil {
					slog.Error("chat channel sync failed", slog.String("component", "chat"), slog.Any("err", err))
				}
			}
		}
	}()

	r.connect(ctx)
	cancel()
	<-done
}

// connect holds the IRC connection open until ctx is done, the login is
// rejected or the backoff gives up.
func (r *Responder) connect(ctx context.Context) {
	b := r.Backoff
	if b == nil {
		b = &backoff.StopBackOff{}
	}
	b.Reset()
	for {
		err := r.client.Connect()
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, twitch.ErrLoginAuthenticationFailed) {
			slog.Error("twitch chat login rejected, responder stopped", slog.String("component", "chat"), slog.Any("err", err))
			return
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			slog.Error("twitch chat connect failed, giving up", slog.String("component", "chat"), slog.Any("err", err))
			return
		}
		slog.Warn("twitch chat disconnected, reconnecting", slog.String("component", "chat"),
			slog.Any("err", err), slog.Duration("backoff", wait))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
