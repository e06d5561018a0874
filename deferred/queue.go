package deferred

import (
	"context"
	"time"

	"github.com/goliatone/go-slack-dispatch/adapters/gojob"
	"github.com/goliatone/go-slack-dispatch/core"

	"github.com/goliatone/go-job/queue"
)

// Queue hands tasks to a go-job enqueuer. Enqueue must be fast; the
// acknowledgement has already been written when Dispatch runs.
type Queue struct {
	Enqueuer queue.Enqueuer
	Observer core.Observer
}

func NewQueue(enqueuer queue.Enqueuer) *Queue {
	return &Queue{Enqueuer: enqueuer}
}

func (q *Queue) Dispatch(ctx context.Context, task core.DeferredTask) (err error) {
	if q == nil || q.Enqueuer == nil {
		return dispatchInternal("deferred: enqueuer is not configured", map[string]any{"task_id": task.ID})
	}
	startedAt := time.Now()
	defer func() {
		q.Observer.Observe(ctx, startedAt, "deferred.enqueue", err, map[string]any{
			"task_id": task.ID,
			"kind":    string(task.Kind),
			"mode":    core.DispatchModeQueue,
		})
	}()
	if err := task.Validate(); err != nil {
		return err
	}
	msg, err := gojob.TaskToExecutionMessage(task)
	if err != nil {
		return err
	}
	if _, err := q.Enqueuer.Enqueue(ctx, msg); err != nil {
		return dispatchFailed("deferred: enqueue task", err, map[string]any{"task_id": task.ID})
	}
	return nil
}

var _ core.TaskDispatcher = (*Queue)(nil)
