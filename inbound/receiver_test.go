package inbound

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-slack-dispatch/core"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	tasks  []core.DeferredTask
	events *[]string
	err    error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, task core.DeferredTask) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, task)
	if d.events != nil {
		*d.events = append(*d.events, "dispatch")
	}
	return d.err
}

type recordingStatus struct {
	calls   []core.ReplyTarget
	texts   []string
	err     error
	panicOn bool
}

func (s *recordingStatus) SetStatus(_ context.Context, target core.ReplyTarget, status string) error {
	if s.panicOn {
		panic("status exploded")
	}
	s.calls = append(s.calls, target)
	s.texts = append(s.texts, status)
	return s.err
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
}

func newTestReceiver(dispatcher core.TaskDispatcher) *Receiver {
	receiver := NewReceiver(nil, nil, dispatcher)
	receiver.Now = fixedNow
	if err := receiver.RegisterCommand(StartProcessCommand("")); err != nil {
		panic(err)
	}
	return receiver
}

func mustParse(t *testing.T, body string, headers map[string]string) core.InboundEvent {
	t.Helper()
	event, err := core.ParseInboundEvent(headers, []byte(body), fixedNow())
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	return event
}

func TestReceiver_HandshakeEchoesChallenge(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	receiver := newTestReceiver(dispatcher)
	receiver.Verifier = VerifierFunc(func(context.Context, core.InboundEvent) error {
		return errors.New("handshake must bypass verification")
	})

	decision := receiver.Handle(context.Background(), mustParse(t, `{"type":"url_verification","challenge":"abc123"}`, nil), nil)
	if decision.StatusCode != http.StatusOK || decision.Body != "abc123" {
		t.Fatalf("unexpected handshake response: %+v", decision.Response)
	}
	if decision.Headers[core.HeaderNoRetry] != "1" {
		t.Fatalf("expected no-retry header, got %+v", decision.Headers)
	}
	if decision.State != core.StateHandshakeAnswered {
		t.Fatalf("expected handshake state, got %q", decision.State)
	}
	if len(dispatcher.tasks) != 0 {
		t.Fatalf("expected no dispatch for handshake")
	}
}

func TestReceiver_HandshakeWithoutChallengeIsBadInput(t *testing.T) {
	receiver := newTestReceiver(&recordingDispatcher{})
	decision, err := receiver.Acknowledge(context.Background(), mustParse(t, `{"type":"url_verification"}`, nil))
	if err == nil || !core.HasTextCode(err, core.ErrorBadInput) {
		t.Fatalf("expected bad input error, got %v", err)
	}
	if decision.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", decision.StatusCode)
	}
}

func TestReceiver_CommandAcceptedAndDeferredAfterResponse(t *testing.T) {
	order := []string{}
	dispatcher := &recordingDispatcher{events: &order}
	receiver := newTestReceiver(dispatcher)

	event := mustParse(t, `{"command":"/start-process","text":"build report","channel_id":"C1","response_url":"https://hooks.slack.test/r1","trigger_id":"T-1"}`, nil)
	var written core.Response
	decision := receiver.Handle(context.Background(), event, func(resp core.Response) error {
		written = resp
		order = append(order, "respond")
		return nil
	})

	if written.StatusCode != http.StatusOK || written.Body != "Accepted! (task: build report)" {
		t.Fatalf("unexpected ack: %+v", written)
	}
	if len(order) != 2 || order[0] != "respond" || order[1] != "dispatch" {
		t.Fatalf("expected respond before dispatch, got %v", order)
	}
	if len(dispatcher.tasks) != 1 {
		t.Fatalf("expected exactly one deferred task, got %d", len(dispatcher.tasks))
	}
	task := dispatcher.tasks[0]
	if task.Kind != core.TaskKindCommand || task.Command != "/start-process" || task.Text != "build report" {
		t.Fatalf("unexpected task: %+v", task)
	}
	if task.ID != "T-1" || task.ReplyTarget.Channel != "C1" || task.ReplyTarget.ResponseURL != "https://hooks.slack.test/r1" {
		t.Fatalf("unexpected task identity or target: %+v", task)
	}
	if decision.State != core.StateDeferred {
		t.Fatalf("expected deferred state, got %q", decision.State)
	}
}

func TestReceiver_CommandWithoutTextReturnsUsage(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	receiver := newTestReceiver(dispatcher)

	for _, body := range []string{
		`{"command":"/start-process","text":""}`,
		`{"command":"/start-process"}`,
	} {
		decision := receiver.Handle(context.Background(), mustParse(t, body, nil), nil)
		if decision.StatusCode != http.StatusOK || decision.Body != ":x: Usage: /start-process (description here)" {
			t.Fatalf("unexpected usage response for %s: %+v", body, decision.Response)
		}
		if decision.Defer {
			t.Fatalf("expected no deferral for usage error")
		}
	}
	if len(dispatcher.tasks) != 0 {
		t.Fatalf("expected no deferred tasks")
	}
}

func TestReceiver_UnknownCommandIsAcknowledgedWithoutDeferral(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	receiver := newTestReceiver(dispatcher)

	decision := receiver.Handle(context.Background(), mustParse(t, `{"command":"/deploy","text":"prod"}`, nil), nil)
	if decision.StatusCode != http.StatusOK || decision.Defer {
		t.Fatalf("unexpected decision: %+v", decision)
	}
	if len(dispatcher.tasks) != 0 {
		t.Fatalf("expected no deferred tasks")
	}
}

func TestReceiver_MessageFromHumanSetsStatusAndDefers(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	status := &recordingStatus{}
	receiver := newTestReceiver(dispatcher)
	receiver.Status = status

	body := `{"type":"event_callback","event_id":"Ev1","event":{"type":"message","text":"What's the weather?","channel":"C1","ts":"1700000000.000100","user":"U1"}}`
	decision := receiver.Handle(context.Background(), mustParse(t, body, nil), nil)

	if decision.StatusCode != http.StatusOK || decision.Body != "" {
		t.Fatalf("unexpected ack: %+v", decision.Response)
	}
	if len(status.calls) != 1 || status.texts[0] != "is typing..." || status.calls[0].ThreadTS != "1700000000.000100" {
		t.Fatalf("expected one status indicator, got %+v %v", status.calls, status.texts)
	}
	if len(dispatcher.tasks) != 1 {
		t.Fatalf("expected one deferred task")
	}
	task := dispatcher.tasks[0]
	if task.Kind != core.TaskKindMessage || task.Text != "What's the weather?" || task.ReplyTarget.Channel != "C1" {
		t.Fatalf("unexpected task: %+v", task)
	}
}

func TestReceiver_BotMessageIsDroppedSilently(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	status := &recordingStatus{}
	receiver := newTestReceiver(dispatcher)
	receiver.Status = status

	body := `{"type":"event_callback","event_id":"Ev2","event":{"type":"message","text":"loop","channel":"C1","ts":"1.2","bot_id":"B1"}}`
	decision := receiver.Handle(context.Background(), mustParse(t, body, nil), nil)

	if decision.StatusCode != http.StatusOK || decision.State != core.StateFilteredDropped {
		t.Fatalf("unexpected decision: %+v", decision)
	}
	if len(status.calls) != 0 || len(dispatcher.tasks) != 0 {
		t.Fatalf("expected no side effects for bot message")
	}
}

func TestReceiver_StatusFailureDoesNotBlockDeferral(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	receiver := newTestReceiver(dispatcher)
	receiver.Status = &recordingStatus{err: errors.New("missing_scope")}

	body := `{"type":"event_callback","event_id":"Ev3","event":{"type":"message","text":"hi","channel":"C1","ts":"1.3"}}`
	decision := receiver.Handle(context.Background(), mustParse(t, body, nil), nil)
	if decision.StatusCode != http.StatusOK || len(dispatcher.tasks) != 1 {
		t.Fatalf("expected ack and deferral despite status failure: %+v", decision)
	}
}

func TestReceiver_DispatchFailureStillAcknowledges(t *testing.T) {
	dispatcher := &recordingDispatcher{err: errors.New("invoke refused")}
	receiver := newTestReceiver(dispatcher)

	var written core.Response
	decision := receiver.Handle(context.Background(),
		mustParse(t, `{"command":"/start-process","text":"nightly"}`, nil),
		func(resp core.Response) error {
			written = resp
			return nil
		},
	)
	if written.StatusCode != http.StatusOK || written.Body != "Accepted! (task: nightly)" {
		t.Fatalf("expected original ack despite dispatch failure, got %+v", written)
	}
	if decision.State != core.StateAckSent {
		t.Fatalf("expected ack-sent state after failed dispatch, got %q", decision.State)
	}
}

func TestReceiver_PanicDuringAckIsRecovered(t *testing.T) {
	receiver := newTestReceiver(&recordingDispatcher{})
	receiver.Status = &recordingStatus{panicOn: true}

	body := `{"type":"event_callback","event":{"type":"message","text":"hi","channel":"C1","ts":"1.4"}}`
	decision, err := receiver.Acknowledge(context.Background(), mustParse(t, body, nil))
	if err == nil || !core.HasTextCode(err, core.ErrorInternal) {
		t.Fatalf("expected internal error from recovered panic, got %v", err)
	}
	if decision.StatusCode != http.StatusOK || decision.Defer {
		t.Fatalf("expected plain 200 without deferral, got %+v", decision)
	}
}

func TestReceiver_VerificationFailureIsUnauthorized(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	receiver := newTestReceiver(dispatcher)
	receiver.Verifier = VerifierFunc(func(context.Context, core.InboundEvent) error {
		return errors.New("bad signature")
	})

	decision := receiver.Handle(context.Background(), mustParse(t, `{"command":"/start-process","text":"x"}`, nil), nil)
	if decision.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", decision.StatusCode)
	}
	if !core.HasTextCode(decision.Err, core.ErrorUnauthorized) {
		t.Fatalf("expected unauthorized text code, got %v", decision.Err)
	}
	if len(dispatcher.tasks) != 0 {
		t.Fatalf("expected no dispatch on verification failure")
	}
}

func TestReceiver_RedeliveryIsDeduped(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	claims := NewMemoryClaimStore()
	claims.Now = fixedNow
	receiver := newTestReceiver(dispatcher)
	receiver.Claims = claims

	body := `{"type":"event_callback","event_id":"Ev9","event":{"type":"message","text":"hi","channel":"C1","ts":"1.5"}}`
	first := receiver.Handle(context.Background(), mustParse(t, body, nil), nil)
	retry := receiver.Handle(context.Background(), mustParse(t, body, map[string]string{
		"X-Slack-Retry-Num":    "1",
		"X-Slack-Retry-Reason": "http_timeout",
	}), nil)

	if first.State != core.StateDeferred {
		t.Fatalf("expected first delivery deferred, got %q", first.State)
	}
	if retry.StatusCode != http.StatusOK || retry.State != core.StateDeduped {
		t.Fatalf("expected deduped 200 for retry, got %+v", retry)
	}
	if len(dispatcher.tasks) != 1 {
		t.Fatalf("expected one dispatch across redeliveries, got %d", len(dispatcher.tasks))
	}
}

func TestReceiver_FailedDispatchReleasesClaim(t *testing.T) {
	dispatcher := &recordingDispatcher{err: errors.New("queue full")}
	claims := NewMemoryClaimStore()
	claims.Now = fixedNow
	receiver := newTestReceiver(dispatcher)
	receiver.Claims = claims

	body := `{"command":"/start-process","text":"x","trigger_id":"T-9"}`
	receiver.Handle(context.Background(), mustParse(t, body, nil), nil)
	dispatcher.err = nil
	receiver.Handle(context.Background(), mustParse(t, body, nil), nil)

	if len(dispatcher.tasks) != 2 {
		t.Fatalf("expected redelivery to be dispatched again after failure, got %d", len(dispatcher.tasks))
	}
	if claims.Attempts("command:T-9") != 2 {
		t.Fatalf("expected two claim attempts, got %d", claims.Attempts("command:T-9"))
	}
}

func TestReceiver_RegisterCommandRejectsDuplicates(t *testing.T) {
	receiver := newTestReceiver(&recordingDispatcher{})
	err := receiver.RegisterCommand(StartProcessCommand("start-process"))
	if err == nil || !core.HasTextCode(err, core.ErrorDuplicate) {
		t.Fatalf("expected duplicate command error, got %v", err)
	}
	if err := receiver.RegisterCommand(CommandSpec{Name: "/other"}); err == nil {
		t.Fatalf("expected missing accept text error")
	}
}

func TestReceiver_OtherEventsAreAcknowledged(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	receiver := newTestReceiver(dispatcher)
	decision := receiver.Handle(context.Background(), mustParse(t, `{"type":"event_callback","event":{"type":"reaction_added"}}`, nil), nil)
	if decision.StatusCode != http.StatusOK || decision.Defer || len(dispatcher.tasks) != 0 {
		t.Fatalf("unexpected decision for other event: %+v", decision)
	}
}
