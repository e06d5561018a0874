// Package slackapi delivers replies and status indicators through the Slack
// Web API and response URLs.
package slackapi

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-slack-dispatch/core"
	"github.com/slack-go/slack"
)

type api interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	SetAssistantThreadsStatusContext(ctx context.Context, params slack.AssistantThreadsSetStatusParameters) error
}

type webhookPoster func(ctx context.Context, url string, msg *slack.WebhookMessage) error

// Client implements core.Replier and core.StatusIndicator.
type Client struct {
	api         api
	postWebhook webhookPoster
}

// New creates a client authenticated with the bot token. apiURL overrides the
// Slack API base URL when set.
func New(token, apiURL string) *Client {
	opts := []slack.Option{}
	if strings.TrimSpace(apiURL) != "" {
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	return &Client{
		api:         slack.New(token, opts...),
		postWebhook: slack.PostWebhookContext,
	}
}

// Reply answers through the command's response URL when present and posts to
// the channel otherwise.
func (c *Client) Reply(ctx context.Context, target core.ReplyTarget, text string) error {
	if c == nil || c.api == nil {
		return core.NewError("slackapi: client is not configured", goerrors.CategoryInternal, core.ErrorInternal, nil)
	}
	if target.IsZero() {
		return core.NewError("slackapi: reply target is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}

	if url := strings.TrimSpace(target.ResponseURL); url != "" && c.postWebhook != nil {
		if err := c.postWebhook(ctx, url, &slack.WebhookMessage{Text: text}); err != nil {
			return replyFailed(err, "slackapi: response url post failed", target)
		}
		return nil
	}

	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if ts := strings.TrimSpace(target.ThreadTS); ts != "" {
		opts = append(opts, slack.MsgOptionTS(ts))
	}
	if _, _, err := c.api.PostMessageContext(ctx, strings.TrimSpace(target.Channel), opts...); err != nil {
		return replyFailed(err, "slackapi: post message failed", target)
	}
	return nil
}

// SetStatus shows a transient status such as "is typing..." on a thread.
func (c *Client) SetStatus(ctx context.Context, target core.ReplyTarget, status string) error {
	if c == nil || c.api == nil {
		return core.NewError("slackapi: client is not configured", goerrors.CategoryInternal, core.ErrorInternal, nil)
	}
	channel := strings.TrimSpace(target.Channel)
	thread := strings.TrimSpace(target.ThreadTS)
	if channel == "" || thread == "" {
		return core.NewError("slackapi: status requires a channel and thread", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	err := c.api.SetAssistantThreadsStatusContext(ctx, slack.AssistantThreadsSetStatusParameters{
		ChannelID: channel,
		ThreadTS:  thread,
		Status:    status,
	})
	if err != nil {
		return replyFailed(err, "slackapi: set status failed", target)
	}
	return nil
}

func replyFailed(source error, message string, target core.ReplyTarget) error {
	return core.WrapError(source, goerrors.CategoryOperation, message, core.ErrorDispatchFailed, map[string]any{
		"channel":      target.Channel,
		"thread_ts":    target.ThreadTS,
		"response_url": target.ResponseURL != "",
	})
}

var (
	_ core.Replier         = (*Client)(nil)
	_ core.StatusIndicator = (*Client)(nil)
)
