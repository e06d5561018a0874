package core

import (
	"encoding/json"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type TaskKind string

const (
	TaskKindCommand TaskKind = "command"
	TaskKindMessage TaskKind = "message"
)

// ReplyTarget identifies where the lazy reply must be delivered.
type ReplyTarget struct {
	Channel     string `json:"channel,omitempty"`
	ThreadTS    string `json:"thread_ts,omitempty"`
	ResponseURL string `json:"response_url,omitempty"`
	User        string `json:"user,omitempty"`
}

func (t ReplyTarget) IsZero() bool {
	return strings.TrimSpace(t.Channel) == "" && strings.TrimSpace(t.ResponseURL) == ""
}

// DeferredTask is the self-contained unit of slow work handed from the
// receiver to a lazy processor. It must survive a process boundary.
type DeferredTask struct {
	ID          string          `json:"id"`
	Kind        TaskKind        `json:"kind"`
	Command     string          `json:"command,omitempty"`
	Text        string          `json:"text"`
	BotID       string          `json:"bot_id,omitempty"`
	FromBot     bool            `json:"from_bot,omitempty"`
	EventID     string          `json:"event_id,omitempty"`
	ReplyTarget ReplyTarget     `json:"reply_target"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (t DeferredTask) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return NewError("core: deferred task id is required", goerrors.CategoryBadInput, ErrorBadInput, nil)
	}
	switch t.Kind {
	case TaskKindCommand:
		if strings.TrimSpace(t.Command) == "" {
			return NewError("core: command task requires a command name", goerrors.CategoryBadInput, ErrorBadInput, map[string]any{
				"task_id": t.ID,
			})
		}
	case TaskKindMessage:
	default:
		return NewError("core: unsupported deferred task kind", goerrors.CategoryBadInput, ErrorBadInput, map[string]any{
			"task_id": t.ID,
			"kind":    string(t.Kind),
		})
	}
	return nil
}

// SourceEvent decodes the originating platform event carried in Payload.
func (t DeferredTask) SourceEvent() map[string]any {
	if len(t.Payload) == 0 {
		return map[string]any{}
	}
	body := map[string]any{}
	if err := json.Unmarshal(t.Payload, &body); err != nil {
		return map[string]any{}
	}
	if t.Kind == TaskKindMessage {
		return MapField(body, "event")
	}
	return body
}

// OriginatesFromBot re-derives the bot filter from the task itself and its
// embedded source event.
func (t DeferredTask) OriginatesFromBot() bool {
	if t.FromBot || strings.TrimSpace(t.BotID) != "" {
		return true
	}
	return t.Kind == TaskKindMessage && HasBotID(t.SourceEvent())
}

func EncodeTask(task DeferredTask) ([]byte, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, WrapError(err, goerrors.CategoryInternal, "core: encode deferred task", ErrorInternal, map[string]any{
			"task_id": task.ID,
		})
	}
	return payload, nil
}

func DecodeTask(payload []byte) (DeferredTask, error) {
	var task DeferredTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return DeferredTask{}, WrapError(err, goerrors.CategoryBadInput, "core: decode deferred task", ErrorBadInput, nil)
	}
	if err := task.Validate(); err != nil {
		return DeferredTask{}, err
	}
	return task, nil
}

// NewTaskID derives an idempotency-friendly identifier from the originating
// event and falls back to a random id.
func NewTaskID(event InboundEvent) string {
	for _, candidate := range []string{
		event.EventID(),
		event.String("trigger_id"),
		StringField(event.Event(), "client_msg_id"),
	} {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			return candidate
		}
	}
	return uuid.NewString()
}

// ProcessingResult is the outcome of one lazy run. A failed run always
// carries a fallback text.
type ProcessingResult struct {
	TaskID       string
	State        EventState
	Success      bool
	ReplyText    string
	FallbackText string
	Dropped      bool
	DropReason   string
	Delivered    bool
	Stage        string
	Err          error
}

// Text returns the text that was (or would be) sent to the user.
func (r ProcessingResult) Text() string {
	if r.Success {
		return r.ReplyText
	}
	return r.FallbackText
}

// Response is a transport-neutral HTTP-like reply.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       string
}

// AckDecision is what the receiver answers within the platform deadline plus
// the optional deferred work.
type AckDecision struct {
	Response
	Kind    EventKind
	State   EventState
	Defer   bool
	Task    *DeferredTask
	ClaimID string
	Err     error
}
