// Package discord implements the notify Sink for Discord.
package discord

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/flightcheck/internal/notify"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for rate-limit retries.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff.
	maxBackoff = 2 * time.Minute
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// realSession wraps *discordgo.Session to implement the session interface.
type realSession struct {
	s *discordgo.Session
}

func (r *realSession) Open() error  { return r.s.Open() }
func (r *realSession) Close() error { return r.s.Close() }
func (r *realSession) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageSendEmbed(channelID, embed, options...)
}

// Sink posts status-change embeds to a Discord channel.
type Sink struct {
	sess        session
	botToken    string
	channelID   string
	mu          sync.Mutex
	connected   bool
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// SinkOpts holds parameters for creating a Discord Sink.
type SinkOpts struct {
	BotToken  string // Discord bot token
	ChannelID string // channel to post status updates to
	// For testing: inject a mock session instead of real Discord API.
	Session session
}

// New creates a Discord Sink.
func New(opts SinkOpts) (*Sink, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("discord: channel ID is required")
	}

	s := &Sink{
		botToken:    opts.BotToken,
		channelID:   opts.ChannelID,
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}
	if opts.Session != nil {
		s.sess = opts.Session
	}
	return s, nil
}

// Connect opens the Discord session. Outbound embeds need no Gateway intents.
func (s *Sink) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}

	if s.sess == nil {
		dg, err := discordgo.New("Bot " + s.botToken)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		s.sess = &realSession{s: dg}
	}

	if err := s.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	s.connected = true
	log.Printf("discord: sink connected (channel %s)", s.channelID)
	return nil
}

// Close shuts down the Discord session.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	s.connected = false
	return s.sess.Close()
}

// Name implements notify.Sink.
func (s *Sink) Name() string { return "discord" }

// Notify posts a status-change embed to the configured channel.
func (s *Sink) Notify(ctx context.Context, evt notify.Event) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return fmt.Errorf("discord: not connected")
	}
	s.mu.Unlock()

	embed := buildEmbed(evt)
	err := s.retryOnRateLimit(ctx, func() error {
		_, sendErr := s.sess.ChannelMessageSendEmbed(s.channelID, embed)
		return sendErr
	})
	if err != nil {
		return fmt.Errorf("discord: send status update: %w", err)
	}
	return nil
}

// buildEmbed translates a status-change event into a Discord embed.
func buildEmbed(evt notify.Event) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("%s TestFlight Status Update", notify.StatusEmoji(evt.New)),
		Color: notify.StatusColor(evt.New),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "App", Value: evt.Build.Name, Inline: true},
			{Name: "Version", Value: notify.VersionLabel(evt.Build), Inline: true},
			{Name: "Status Change", Value: notify.TransitionLabel(evt), Inline: false},
			{Name: "Details", Value: evt.Message, Inline: false},
		},
		Timestamp: time.Now().Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: "Build ID: " + evt.Build.ID},
	}

	if headline := notify.Headline(evt); headline != "" {
		embed.Description = headline
	}
	if notify.IncludeURL(evt) {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "TestFlight URL", Value: evt.Build.URL,
		})
	}
	return embed
}

// retryOnRateLimit calls fn and retries with exponential backoff on Discord
// rate limit errors. It respects context cancellation.
func (s *Sink) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		restErr, ok := err.(*discordgo.RESTError)
		if !ok || restErr.Response == nil || restErr.Response.StatusCode != 429 {
			return err // not a rate limit error
		}
		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * s.baseBackoff
		if wait > s.maxBackoff {
			wait = s.maxBackoff
		}

		log.Printf("discord: rate limited (attempt %d/%d) — retrying in %v",
			attempt+1, maxRetries, wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
