package deferred

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-slack-dispatch/core"
	"github.com/goliatone/go-slack-dispatch/lazy"
)

// InProcess runs each task on its own goroutine, detached from the request
// context so the handler can return as soon as the acknowledgement is written.
type InProcess struct {
	Command  gocmd.Commander[lazy.RunTaskMessage]
	Timeout  time.Duration
	Observer core.Observer

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

func NewInProcess(command gocmd.Commander[lazy.RunTaskMessage]) *InProcess {
	return &InProcess{Command: command}
}

func (d *InProcess) Dispatch(ctx context.Context, task core.DeferredTask) error {
	if d == nil || d.Command == nil {
		return dispatchInternal("deferred: in-process command is not configured", map[string]any{"task_id": task.ID})
	}
	if err := task.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	runCtx := context.WithoutCancel(ctx)
	go d.run(runCtx, task)
	return nil
}

func (d *InProcess) run(ctx context.Context, task core.DeferredTask) {
	defer d.wg.Done()
	var cancel context.CancelFunc = func() {}
	if d.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
	}
	defer cancel()

	startedAt := time.Now()
	var err error
	defer func() {
		if recovered := recover(); recovered != nil {
			err = dispatchInternal(fmt.Sprintf("deferred: task panicked: %v", recovered), map[string]any{"task_id": task.ID})
		}
		d.Observer.Observe(ctx, startedAt, "deferred.inprocess", err, map[string]any{
			"task_id": task.ID,
			"kind":    string(task.Kind),
			"mode":    core.DispatchModeInProcess,
		})
	}()
	err = d.Command.Execute(ctx, lazy.RunTaskMessage{Task: task})
}

// Wait blocks until every dispatched task finished or ctx is done.
func (d *InProcess) Wait(ctx context.Context) error {
	if d == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects new tasks and waits for in-flight ones.
func (d *InProcess) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return d.Wait(ctx)
}

var _ core.TaskDispatcher = (*InProcess)(nil)
