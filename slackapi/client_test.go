package slackapi

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-slack-dispatch/core"
	"github.com/slack-go/slack"
)

type stubAPI struct {
	channel   string
	options   int
	status    slack.AssistantThreadsSetStatusParameters
	postErr   error
	postCalls int
}

func (s *stubAPI) PostMessageContext(_ context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	s.postCalls++
	s.channel = channelID
	s.options = len(options)
	return channelID, "1700000000.000100", s.postErr
}

func (s *stubAPI) SetAssistantThreadsStatusContext(_ context.Context, params slack.AssistantThreadsSetStatusParameters) error {
	s.status = params
	return nil
}

type webhookRecorder struct {
	url  string
	text string
	err  error
}

func (w *webhookRecorder) post(_ context.Context, url string, msg *slack.WebhookMessage) error {
	w.url = url
	w.text = msg.Text
	return w.err
}

func TestReply_PrefersResponseURL(t *testing.T) {
	api := &stubAPI{}
	hook := &webhookRecorder{}
	client := &Client{api: api, postWebhook: hook.post}

	err := client.Reply(context.Background(), core.ReplyTarget{
		Channel:     "C1",
		ResponseURL: "https://hooks.slack.test/commands/1",
	}, "Completed! (task: build)")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if hook.url != "https://hooks.slack.test/commands/1" || hook.text != "Completed! (task: build)" {
		t.Fatalf("unexpected webhook post: %+v", hook)
	}
	if api.postCalls != 0 {
		t.Fatalf("expected no channel post, got %d", api.postCalls)
	}
}

func TestReply_PostsToChannelThread(t *testing.T) {
	api := &stubAPI{}
	client := &Client{api: api}

	if err := client.Reply(context.Background(), core.ReplyTarget{Channel: "C1", ThreadTS: "1.2"}, "hi"); err != nil {
		t.Fatalf("reply: %v", err)
	}
	if api.channel != "C1" || api.options != 2 {
		t.Fatalf("expected threaded post to C1, got channel=%q options=%d", api.channel, api.options)
	}
}

func TestReply_Errors(t *testing.T) {
	client := &Client{api: &stubAPI{postErr: errors.New("channel_not_found")}}
	if err := client.Reply(context.Background(), core.ReplyTarget{}, "hi"); !core.HasTextCode(err, core.ErrorBadInput) {
		t.Fatalf("expected bad input for empty target, got %v", err)
	}
	if err := client.Reply(context.Background(), core.ReplyTarget{Channel: "C1"}, "hi"); !core.HasTextCode(err, core.ErrorDispatchFailed) {
		t.Fatalf("expected dispatch failure, got %v", err)
	}
	hooked := &Client{api: &stubAPI{}, postWebhook: (&webhookRecorder{err: errors.New("expired_url")}).post}
	if err := hooked.Reply(context.Background(), core.ReplyTarget{ResponseURL: "https://hooks.slack.test/x"}, "hi"); err == nil {
		t.Fatalf("expected webhook failure")
	}
}

func TestSetStatus(t *testing.T) {
	api := &stubAPI{}
	client := &Client{api: api}

	if err := client.SetStatus(context.Background(), core.ReplyTarget{Channel: "D1", ThreadTS: "1.2"}, "is typing..."); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if api.status.ChannelID != "D1" || api.status.ThreadTS != "1.2" || api.status.Status != "is typing..." {
		t.Fatalf("unexpected status params: %+v", api.status)
	}
	if err := client.SetStatus(context.Background(), core.ReplyTarget{Channel: "D1"}, "is typing..."); err == nil {
		t.Fatalf("expected missing thread error")
	}
}
