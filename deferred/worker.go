package deferred

import (
	"context"
	"fmt"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-slack-dispatch/adapters/gojob"
	"github.com/goliatone/go-slack-dispatch/core"
	"github.com/goliatone/go-slack-dispatch/lazy"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const terminalUndecodable job.TerminalErrorCode = "undecodable_task"

// WorkerConfig tunes the queue worker. A zero Policy means one attempt
// followed by dead-lettering.
type WorkerConfig struct {
	Concurrency int
	TaskTimeout time.Duration
	IdleDelay   time.Duration
	Policy      gojob.RetryPolicy
	Hooks       []worker.Hook
	Observer    core.Observer
}

// Worker drains a go-job dequeuer with the go-job queue worker. Deliveries
// are routed through the worker registry to the lazy task.
type Worker struct {
	runner *worker.Worker
}

func NewWorker(dequeuer queue.Dequeuer, command gocmd.Commander[lazy.RunTaskMessage], cfg WorkerConfig) (*Worker, error) {
	if dequeuer == nil || command == nil {
		return nil, dispatchInternal("deferred: worker is not configured", nil)
	}
	policy := cfg.Policy
	if policy == (gojob.RetryPolicy{}) {
		policy = gojob.DefaultRetryPolicy()
	}
	opts := []worker.Option{
		worker.WithConcurrency(cfg.Concurrency),
		worker.WithRetryPolicy(policy),
		worker.WithHooks(cfg.Hooks...),
	}
	if cfg.IdleDelay > 0 {
		opts = append(opts, worker.WithIdleDelay(cfg.IdleDelay))
	}
	if cfg.Observer.Logger != nil {
		opts = append(opts, worker.WithLogger(job.GoLogger(cfg.Observer.Logger)))
	}
	runner := worker.NewWorker(dequeuer, opts...)
	if err := runner.Register(&lazyTask{command: command, timeout: cfg.TaskTimeout}); err != nil {
		return nil, dispatchInternal("deferred: register lazy task", map[string]any{"error": err.Error()})
	}
	return &Worker{runner: runner}, nil
}

// Start launches the worker goroutines. They keep dequeuing until Stop,
// independent of ctx cancellation, so accepted tasks can be drained first.
func (w *Worker) Start(ctx context.Context) error {
	if w == nil || w.runner == nil {
		return dispatchInternal("deferred: worker is not configured", nil)
	}
	return w.runner.Start(context.WithoutCancel(ctx))
}

// Stop stops dequeuing and waits for running tasks within ctx.
func (w *Worker) Stop(ctx context.Context) error {
	if w == nil || w.runner == nil {
		return nil
	}
	return w.runner.Stop(ctx)
}

// lazyTask exposes the lazy command as a go-job task.
type lazyTask struct {
	command gocmd.Commander[lazy.RunTaskMessage]
	timeout time.Duration
}

func (t *lazyTask) GetID() string   { return gojob.JobIDLazyTask }
func (t *lazyTask) GetPath() string { return gojob.LazyTaskPath }

func (t *lazyTask) GetHandler() func() error {
	return func() error {
		return dispatchInternal("deferred: lazy task requires an execution message", nil)
	}
}

func (t *lazyTask) GetHandlerConfig() job.HandlerOptions { return job.HandlerOptions{} }
func (t *lazyTask) GetConfig() job.Config                { return job.Config{} }
func (t *lazyTask) GetEngine() job.Engine                { return nil }

// Execute runs the decoded task on a context detached from worker shutdown
// and bounded by the task timeout.
func (t *lazyTask) Execute(ctx context.Context, msg *job.ExecutionMessage) (err error) {
	task, err := gojob.TaskFromExecutionMessage(msg)
	if err != nil {
		return job.NewTerminalError(terminalUndecodable, err.Error(), err)
	}
	runCtx := context.WithoutCancel(ctx)
	if t.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, t.timeout)
		defer cancel()
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = dispatchInternal(fmt.Sprintf("deferred: task panicked: %v", recovered), map[string]any{"task_id": task.ID})
		}
	}()
	return t.command.Execute(runCtx, lazy.RunTaskMessage{Task: task})
}

var _ job.Task = (*lazyTask)(nil)
