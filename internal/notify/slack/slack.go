// Package slack implements the notify Sink for Slack.
package slack

import (
	"context"
	"fmt"
	"strings"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/flightcheck/internal/notify"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Sink posts status-change attachments to a Slack channel via the Web API.
type Sink struct {
	client    slackClient
	channelID string
}

// SinkOpts holds parameters for creating a Slack Sink.
type SinkOpts struct {
	BotToken  string // xoxb-... Slack bot token
	ChannelID string // channel to post status updates to
	// For testing: inject a mock client instead of real Slack API.
	Client slackClient
}

// New creates a Slack Sink.
func New(opts SinkOpts) (*Sink, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("slack: channel ID is required")
	}

	s := &Sink{channelID: opts.ChannelID}
	if opts.Client != nil {
		s.client = opts.Client
	} else {
		s.client = slackapi.New(opts.BotToken)
	}
	return s, nil
}

// Name implements notify.Sink.
func (s *Sink) Name() string { return "slack" }

// Notify posts a status-change attachment to the configured channel.
func (s *Sink) Notify(ctx context.Context, evt notify.Event) error {
	attachment := buildAttachment(evt)
	_, _, err := s.client.PostMessageContext(ctx, s.channelID,
		slackapi.MsgOptionAttachments(attachment))
	if err != nil {
		return fmt.Errorf("slack: send status update: %w", err)
	}
	return nil
}

// buildAttachment translates a status-change event into a Slack attachment.
func buildAttachment(evt notify.Event) slackapi.Attachment {
	var text []string
	if headline := notify.Headline(evt); headline != "" {
		// Slack bold uses single asterisks.
		text = append(text, strings.ReplaceAll(headline, "**", "*"))
	}
	text = append(text, notify.TransitionLabel(evt))

	fields := []slackapi.AttachmentField{
		{Title: "App", Value: evt.Build.Name, Short: true},
		{Title: "Version", Value: notify.VersionLabel(evt.Build), Short: true},
		{Title: "Details", Value: evt.Message, Short: false},
	}
	if notify.IncludeURL(evt) {
		fields = append(fields, slackapi.AttachmentField{
			Title: "TestFlight URL", Value: evt.Build.URL,
		})
	}

	return slackapi.Attachment{
		Title:  fmt.Sprintf("%s TestFlight Status Update", notify.StatusEmoji(evt.New)),
		Color:  fmt.Sprintf("#%06x", notify.StatusColor(evt.New)),
		Text:   strings.Join(text, "\n"),
		Fields: fields,
		Footer: "Build ID: " + evt.Build.ID,
	}
}
