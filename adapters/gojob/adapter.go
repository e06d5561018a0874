package gojob

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-slack-dispatch/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDLazyTask = "slack_dispatch.lazy.task"
	LazyTaskPath  = "slack_dispatch/lazy/task"
	ParamTask     = "task"
)

// RetryPolicy decides how the queue worker nacks a failed delivery. Deferred
// tasks default to a single attempt followed by dead-lettering.
type RetryPolicy struct {
	MaxAttempts     int
	Backoff         time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1, DeadLetterOnMax: true}
}

// Decide maps a failed attempt to a nack disposition. Terminal errors are
// dead-lettered regardless of the attempt count.
func (p RetryPolicy) Decide(attempt int, err error) queue.NackOptions {
	reason := ""
	if err != nil {
		reason = strings.TrimSpace(err.Error())
	}
	var terminal job.NonRetryableError
	if errors.As(err, &terminal) && terminal.NonRetryable() {
		return queue.NackOptions{
			Disposition: queue.NackDispositionDeadLetter,
			Reason:      strings.TrimSpace(terminal.NonRetryableReason()),
		}
	}
	if attempt <= 0 {
		attempt = 1
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		if p.DeadLetterOnMax {
			return queue.NackOptions{Disposition: queue.NackDispositionDeadLetter, Reason: reason}
		}
		return queue.NackOptions{Disposition: queue.NackDispositionFailed, Reason: reason}
	}
	return queue.NackOptions{
		Disposition: queue.NackDispositionRetry,
		Delay:       p.delay(attempt),
		Reason:      reason,
	}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	if p.Backoff <= 0 {
		return 0
	}
	delay := p.Backoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			break
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// TaskToExecutionMessage wraps a deferred task in a go-job message. The task
// travels as one JSON document so it survives any queue backend. Duplicate
// deliveries are already suppressed by the claim store, so go-job dedup is off.
func TaskToExecutionMessage(task core.DeferredTask) (*job.ExecutionMessage, error) {
	payload, err := core.EncodeTask(task)
	if err != nil {
		return nil, err
	}
	return &job.ExecutionMessage{
		JobID:          JobIDLazyTask,
		ScriptPath:     LazyTaskPath,
		Parameters:     map[string]any{ParamTask: string(payload)},
		IdempotencyKey: strings.TrimSpace(task.ID),
		DedupPolicy:    job.DedupPolicyIgnore,
	}, nil
}

// TaskFromExecutionMessage restores the deferred task carried by msg.
func TaskFromExecutionMessage(msg *job.ExecutionMessage) (core.DeferredTask, error) {
	if msg == nil {
		return core.DeferredTask{}, gojobBadInput("gojob: execution message is required", nil)
	}
	if strings.TrimSpace(msg.JobID) != JobIDLazyTask {
		return core.DeferredTask{}, gojobBadInput("gojob: unexpected job id", map[string]any{"job_id": msg.JobID})
	}
	var payload []byte
	switch raw := msg.Parameters[ParamTask].(type) {
	case string:
		payload = []byte(raw)
	case []byte:
		payload = raw
	case map[string]any:
		encoded, err := json.Marshal(raw)
		if err != nil {
			return core.DeferredTask{}, gojobBadInput("gojob: task parameter is not encodable", nil)
		}
		payload = encoded
	default:
		return core.DeferredTask{}, gojobBadInput("gojob: task parameter is required", map[string]any{
			"idempotency_key": msg.IdempotencyKey,
		})
	}
	return core.DecodeTask(payload)
}

// LogHook reports worker lifecycle events through the dispatch observer.
type LogHook struct {
	Observer core.Observer
}

func NewLogHook(observer core.Observer) *LogHook {
	return &LogHook{Observer: observer}
}

func (h *LogHook) OnStart(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.Observer.Debug(ctx, "gojob: task started", eventFields(event))
}

func (h *LogHook) OnSuccess(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.Observer.Counter(ctx, core.MetricWorkerSuccess, 1, nil)
	h.Observer.Histogram(ctx, core.MetricWorkerDuration, float64(event.Duration.Milliseconds()), nil)
	h.Observer.Info(ctx, "gojob: task completed", eventFields(event))
}

func (h *LogHook) OnFailure(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.Observer.Counter(ctx, core.MetricWorkerFailure, 1, nil)
	h.Observer.Error(ctx, "gojob: task failed", eventFields(event))
}

func (h *LogHook) OnRetry(ctx context.Context, event worker.Event) {
	if h == nil {
		return
	}
	h.Observer.Warn(ctx, "gojob: task scheduled for retry", eventFields(event))
}

func eventFields(event worker.Event) map[string]any {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	fields := map[string]any{
		"attempt":     event.Attempt,
		"duration_ms": event.Duration.Milliseconds(),
	}
	if message != nil {
		fields["job_id"] = message.JobID
		fields["task_id"] = message.IdempotencyKey
		fields["script_path"] = message.ScriptPath
	}
	if event.Delay > 0 {
		fields["delay_ms"] = event.Delay.Milliseconds()
	}
	if event.Err != nil {
		fields["error"] = event.Err.Error()
	}
	return fields
}

func gojobBadInput(message string, metadata map[string]any) error {
	return core.NewError(message, goerrors.CategoryBadInput, core.ErrorBadInput, metadata)
}

var (
	_ worker.Hook        = (*LogHook)(nil)
	_ worker.RetryPolicy = RetryPolicy{}
)
