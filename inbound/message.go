package inbound

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-slack-dispatch/core"
)

func (r *Receiver) acknowledgeMessage(ctx context.Context, event core.InboundEvent) (core.AckDecision, error) {
	message := event.Event()
	if core.HasBotID(message) {
		r.Observer.Debug(ctx, "inbound: bot message dropped", map[string]any{
			"event_id": event.EventID(),
			"bot_id":   core.StringField(message, "bot_id"),
		})
		return ackDecision(event.Kind, core.StateFilteredDropped, http.StatusOK, ""), nil
	}

	channel := core.StringField(message, "channel")
	threadTS := core.StringField(message, "thread_ts")
	r.indicateStatus(ctx, core.ReplyTarget{
		Channel:  channel,
		ThreadTS: firstNonEmpty(threadTS, core.StringField(message, "ts")),
	})

	task := core.DeferredTask{
		ID:      core.NewTaskID(event),
		Kind:    core.TaskKindMessage,
		Text:    core.StringField(message, "text"),
		EventID: event.EventID(),
		ReplyTarget: core.ReplyTarget{
			Channel:  channel,
			ThreadTS: threadTS,
			User:     core.StringField(message, "user"),
		},
		Payload:   encodeBody(event.Body),
		CreatedAt: r.now(),
	}
	decision := ackDecision(event.Kind, core.StateAckSent, http.StatusOK, "")
	decision.Defer = true
	decision.Task = &task
	return decision, nil
}

// indicateStatus is best effort: failures are logged and never escalated.
func (r *Receiver) indicateStatus(ctx context.Context, target core.ReplyTarget) {
	if r.Status == nil || strings.TrimSpace(target.Channel) == "" || strings.TrimSpace(target.ThreadTS) == "" {
		return
	}
	text := r.StatusText
	if strings.TrimSpace(text) == "" {
		text = core.DefaultStatusText
	}
	timeout := r.StatusTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	statusCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := r.Status.SetStatus(statusCtx, target, text); err != nil {
		r.Observer.Warn(ctx, "inbound: status indicator failed", map[string]any{
			"channel": target.Channel,
			"error":   err.Error(),
		})
	}
}
