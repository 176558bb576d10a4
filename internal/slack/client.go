// Package slack adapts the Slack Web API to the three operations the nudge
// pipeline needs, plus request signing and interaction payload parsing.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// Config holds Slack client settings.
type Config struct {
	// APIURL overrides https://slack.com/api/ (must end in a slash).
	APIURL  string
	Timeout time.Duration
}

// Message is a structured body plus the plain-text fallback shown in
// notifications and by clients that cannot render blocks.
type Message struct {
	Text   string
	Blocks []slack.Block
}

// DirectMessage is the DM destination opened for an employee.
type DirectMessage struct {
	UserID    string
	ChannelID string
	Timezone  string
}

// Client talks to the Slack Web API. Tokens are per workspace so each call
// takes the bot token of the workspace it targets.
type Client struct {
	apiURL     string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a Slack client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		apiURL:     cfg.APIURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

func (c *Client) api(token string) *slack.Client {
	opts := []slack.Option{slack.OptionHTTPClient(c.httpClient)}
	if c.apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(c.apiURL))
	}
	return slack.New(token, opts...)
}

func msgOptions(msg Message) []slack.MsgOption {
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Text, false)}
	if len(msg.Blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(msg.Blocks...))
	}
	return opts
}

// PostMessage sends msg to channelID and returns the message timestamp,
// which is the handle for later updates.
func (c *Client) PostMessage(ctx context.Context, token, channelID string, msg Message) (string, error) {
	_, ts, err := c.api(token).PostMessageContext(ctx, channelID, msgOptions(msg)...)
	if err != nil {
		return "", fmt.Errorf("chat.postMessage: %w", err)
	}

	c.logger.Debug("slack message posted",
		zap.String("channel_id", channelID),
		zap.String("ts", ts),
	)

	return ts, nil
}

// UpdateMessage replaces the message identified by ts.
func (c *Client) UpdateMessage(ctx context.Context, token, channelID, ts string, msg Message) error {
	_, _, _, err := c.api(token).UpdateMessageContext(ctx, channelID, ts, msgOptions(msg)...)
	if err != nil {
		return fmt.Errorf("chat.update: %w", err)
	}
	return nil
}

// OpenDirectMessage finds the workspace user with this email and opens
// (or reuses) a DM channel with them.
func (c *Client) OpenDirectMessage(ctx context.Context, token, email string) (DirectMessage, error) {
	api := c.api(token)

	user, err := api.GetUserByEmailContext(ctx, email)
	if err != nil {
		return DirectMessage{}, fmt.Errorf("users.lookupByEmail: %w", err)
	}

	channel, _, _, err := api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{user.ID},
	})
	if err != nil {
		return DirectMessage{}, fmt.Errorf("conversations.open: %w", err)
	}

	return DirectMessage{
		UserID:    user.ID,
		ChannelID: channel.ID,
		Timezone:  user.TZ,
	}, nil
}

// IsRecipientError reports whether err is Slack rejecting one call
// (channel_not_found, not_in_channel, invalid_auth) rather than Slack
// being unreachable. Rejections say nothing about the API's health.
func IsRecipientError(err error) bool {
	var apiErr slack.SlackErrorResponse
	return errors.As(err, &apiErr)
}
