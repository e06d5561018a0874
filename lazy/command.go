package lazy

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-slack-dispatch/core"
)

const TypeRunTask = "slack_dispatch.command.task.run"

// RunTaskMessage asks a lazy processor to execute one deferred task.
type RunTaskMessage struct {
	Task core.DeferredTask
}

func (RunTaskMessage) Type() string { return TypeRunTask }

func (m RunTaskMessage) Validate() error {
	return m.Task.Validate()
}

// RunTaskCommand exposes a Processor as a go-command commander so queue
// workers and in-process dispatchers share one execution contract.
type RunTaskCommand struct {
	processor *Processor
}

func NewRunTaskCommand(processor *Processor) *RunTaskCommand {
	return &RunTaskCommand{processor: processor}
}

// Execute fails only when no reply could be delivered for a task that was
// not dropped.
func (c *RunTaskCommand) Execute(ctx context.Context, msg RunTaskMessage) error {
	if c == nil || c.processor == nil {
		return core.NewError("lazy: run task processor is required", goerrors.CategoryInternal, core.ErrorInternal, nil)
	}
	if err := gocmd.ValidateMessage(msg); err != nil {
		return core.WrapError(err, goerrors.CategoryBadInput, "lazy: invalid run task message", core.ErrorBadInput, nil)
	}
	result := c.processor.Run(ctx, msg.Task)
	storeResult(ctx, result)
	if result.Dropped || result.Delivered {
		return nil
	}
	return core.WrapError(result.Err, goerrors.CategoryOperation, "lazy: task reply was not delivered", core.ErrorDispatchFailed, map[string]any{
		"task_id": result.TaskID,
		"stage":   result.Stage,
	})
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}

var _ gocmd.Commander[RunTaskMessage] = (*RunTaskCommand)(nil)
