package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDeferredTask_EncodeDecodeKeepsReplyTarget(t *testing.T) {
	task := DeferredTask{
		ID:      "Ev1",
		Kind:    TaskKindMessage,
		Text:    "summarize this",
		EventID: "Ev1",
		ReplyTarget: ReplyTarget{
			Channel:  "C1",
			ThreadTS: "1700000000.000100",
		},
		Payload:   json.RawMessage(`{"event":{"type":"message","text":"summarize this"}}`),
		CreatedAt: time.Unix(1700000000, 0).UTC(),
	}

	payload, err := EncodeTask(task)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeTask(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ReplyTarget != task.ReplyTarget || decoded.Text != task.Text {
		t.Fatalf("decoded task mismatch: %+v", decoded)
	}
	if decoded.OriginatesFromBot() {
		t.Fatalf("expected human task")
	}
}

func TestDeferredTask_Validate(t *testing.T) {
	if err := (DeferredTask{Kind: TaskKindMessage}).Validate(); err == nil {
		t.Fatalf("expected missing id error")
	}
	if err := (DeferredTask{ID: "t1", Kind: TaskKindCommand}).Validate(); err == nil {
		t.Fatalf("expected missing command error")
	}
	if err := (DeferredTask{ID: "t1", Kind: "interaction"}).Validate(); err == nil || !HasTextCode(err, ErrorBadInput) {
		t.Fatalf("expected unsupported kind error, got %v", err)
	}
	if _, err := DecodeTask([]byte("not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestDeferredTask_OriginatesFromBotReadsPayload(t *testing.T) {
	task := DeferredTask{
		ID:      "Ev2",
		Kind:    TaskKindMessage,
		Payload: json.RawMessage(`{"event":{"type":"message","bot_id":"B9","text":"loop"}}`),
	}
	if !task.OriginatesFromBot() {
		t.Fatalf("expected payload bot id to be detected")
	}
}

func TestNewTaskID_PrefersEventIdentifiers(t *testing.T) {
	event := InboundEvent{Body: map[string]any{"event_id": "Ev42"}}
	if got := NewTaskID(event); got != "Ev42" {
		t.Fatalf("expected event id, got %q", got)
	}
	event = InboundEvent{Body: map[string]any{"trigger_id": "13345224609.738474920.8088930838d88f008e0"}}
	if got := NewTaskID(event); got != "13345224609.738474920.8088930838d88f008e0" {
		t.Fatalf("expected trigger id, got %q", got)
	}
	if got := NewTaskID(InboundEvent{}); got == "" {
		t.Fatalf("expected generated id")
	}
}

func TestProcessingResult_Text(t *testing.T) {
	ok := ProcessingResult{Success: true, ReplyText: "hello"}
	if ok.Text() != "hello" {
		t.Fatalf("expected reply text")
	}
	failed := ProcessingResult{FallbackText: "sorry"}
	if failed.Text() != "sorry" {
		t.Fatalf("expected fallback text")
	}
}

func TestRedactHeaders(t *testing.T) {
	redacted := RedactHeaders(map[string]string{
		"X-Slack-Signature": "v0=abc",
		"X-Dispatch-Token":  "secret",
		"Content-Type":      "application/json",
	})
	if redacted["X-Slack-Signature"] != RedactedValue || redacted["X-Dispatch-Token"] != RedactedValue {
		t.Fatalf("expected credentials to be redacted: %+v", redacted)
	}
	if redacted["Content-Type"] != "application/json" {
		t.Fatalf("expected content type to survive")
	}
}
