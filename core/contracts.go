package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// SecretStore returns the raw payload stored under a secret identifier.
type SecretStore interface {
	GetSecret(ctx context.Context, id string) ([]byte, error)
}

// Generator is the slow downstream backend. One call, no retry.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Replier delivers exactly one message to a reply target.
type Replier interface {
	Reply(ctx context.Context, target ReplyTarget, text string) error
}

type StatusIndicator interface {
	SetStatus(ctx context.Context, target ReplyTarget, status string) error
}

// TaskDispatcher hands a deferred task to an asynchronous path. Dispatch must
// not wait for the task to complete.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, task DeferredTask) error
}

type TaskDispatcherFunc func(ctx context.Context, task DeferredTask) error

func (f TaskDispatcherFunc) Dispatch(ctx context.Context, task DeferredTask) error {
	return f(ctx, task)
}

type Verifier interface {
	Verify(ctx context.Context, event InboundEvent) error
}

// ClaimStore records which deliveries have already been accepted so platform
// redeliveries are acknowledged without re-running the work.
type ClaimStore interface {
	Claim(ctx context.Context, key string, lease time.Duration) (claimID string, accepted bool, err error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error
}
