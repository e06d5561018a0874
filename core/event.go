package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type EventKind string

const (
	EventKindHandshake EventKind = "handshake"
	EventKindCommand   EventKind = "command"
	EventKindMessage   EventKind = "message"
	EventKindOther     EventKind = "other"
)

const (
	SlackTypeURLVerification = "url_verification"
	SlackTypeEventCallback   = "event_callback"
	SlackEventTypeMessage    = "message"
)

const (
	HeaderNoRetry          = "x-slack-no-retry"
	HeaderRetryNum         = "x-slack-retry-num"
	HeaderRetryReason      = "x-slack-retry-reason"
	HeaderSlackSignature   = "x-slack-signature"
	HeaderSlackTimestamp   = "x-slack-request-timestamp"
	HeaderContentType      = "content-type"
	contentTypeFormEncoded = "application/x-www-form-urlencoded"
)

type EventState string

const (
	StateReceived          EventState = "received"
	StateHandshakeAnswered EventState = "handshake-answered"
	StateFilteredDropped   EventState = "filtered-dropped"
	StateDeduped           EventState = "deduped"
	StateAckSent           EventState = "ack-sent"
	StateDeferred          EventState = "deferred"
	StateProcessing        EventState = "processing"
	StateRepliedSuccess    EventState = "replied-success"
	StateRepliedFallback   EventState = "replied-fallback"
)

// InboundEvent is the raw envelope received from the platform. It is
// request-scoped and must be treated as read-only after ParseInboundEvent.
type InboundEvent struct {
	Kind       EventKind
	Body       map[string]any
	RawPayload []byte
	Headers    map[string]string
	ReceivedAt time.Time
}

// ParseInboundEvent decodes a JSON or form-encoded body and resolves the
// event kind once.
func ParseInboundEvent(headers map[string]string, raw []byte, receivedAt time.Time) (InboundEvent, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return InboundEvent{}, NewError("core: inbound payload is empty", goerrors.CategoryBadInput, ErrorBadInput, nil)
	}

	body, err := decodeBody(headerValue(headers, HeaderContentType), trimmed)
	if err != nil {
		return InboundEvent{}, WrapError(err, goerrors.CategoryBadInput, "core: decode inbound payload", ErrorBadInput, nil)
	}

	event := InboundEvent{
		Body:       body,
		RawPayload: append([]byte(nil), raw...),
		Headers:    copyStringMap(headers),
		ReceivedAt: receivedAt.UTC(),
	}
	event.Kind = Classify(body)
	return event, nil
}

// Classify resolves the tagged variant for a decoded body.
func Classify(body map[string]any) EventKind {
	if len(body) == 0 {
		return EventKindOther
	}
	if StringField(body, "type") == SlackTypeURLVerification {
		return EventKindHandshake
	}
	if StringField(body, "command") != "" {
		return EventKindCommand
	}
	if StringField(body, "type") == SlackTypeEventCallback {
		if StringField(MapField(body, "event"), "type") == SlackEventTypeMessage {
			return EventKindMessage
		}
	}
	return EventKindOther
}

func (e InboundEvent) String(key string) string {
	return StringField(e.Body, key)
}

// Event returns the nested Events API payload, or an empty map.
func (e InboundEvent) Event() map[string]any {
	return MapField(e.Body, "event")
}

func (e InboundEvent) EventID() string {
	return e.String("event_id")
}

func (e InboundEvent) Header(name string) string {
	return headerValue(e.Headers, name)
}

// RetryAttempt reports the platform redelivery counter, zero for first delivery.
func (e InboundEvent) RetryAttempt() int {
	value := e.Header(HeaderRetryNum)
	if value == "" {
		return 0
	}
	attempt, err := strconv.Atoi(value)
	if err != nil || attempt < 0 {
		return 0
	}
	return attempt
}

// HasBotID reports whether a message event carries a non-null bot identity.
func HasBotID(event map[string]any) bool {
	if event == nil {
		return false
	}
	value, ok := event["bot_id"]
	return ok && value != nil
}

func StringField(values map[string]any, key string) string {
	if values == nil {
		return ""
	}
	raw, ok := values[key]
	if !ok || raw == nil {
		return ""
	}
	switch typed := raw.(type) {
	case string:
		return typed
	case json.Number:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}

func MapField(values map[string]any, key string) map[string]any {
	if values == nil {
		return map[string]any{}
	}
	nested, ok := values[key].(map[string]any)
	if !ok || nested == nil {
		return map[string]any{}
	}
	return nested
}

func decodeBody(contentType string, raw []byte) (map[string]any, error) {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), contentTypeFormEncoded) {
		return decodeForm(raw)
	}
	if raw[0] != '{' {
		return decodeForm(raw)
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	body := map[string]any{}
	if err := decoder.Decode(&body); err != nil {
		return nil, err
	}
	return body, nil
}

func decodeForm(raw []byte) (map[string]any, error) {
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, err
	}
	// Interactive payloads arrive as a single JSON document in a form field.
	if payload := values.Get("payload"); payload != "" && len(values) == 1 {
		body := map[string]any{}
		if err := json.Unmarshal([]byte(payload), &body); err != nil {
			return nil, err
		}
		return body, nil
	}
	body := make(map[string]any, len(values))
	for key := range values {
		body[key] = values.Get(key)
	}
	return body, nil
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func copyStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
