package deferred

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goliatone/go-slack-dispatch/core"
	"github.com/goliatone/go-slack-dispatch/lazy"
)

type recordingCommand struct {
	mu      sync.Mutex
	tasks   []core.DeferredTask
	err     error
	panicOn string
	started chan struct{}
	release chan struct{}
	sawDone bool
}

func (c *recordingCommand) Execute(ctx context.Context, msg lazy.RunTaskMessage) error {
	if c.started != nil {
		c.started <- struct{}{}
	}
	if c.release != nil {
		<-c.release
	}
	c.mu.Lock()
	c.tasks = append(c.tasks, msg.Task)
	c.sawDone = ctx.Err() != nil
	c.mu.Unlock()
	if c.panicOn != "" && msg.Task.ID == c.panicOn {
		panic("boom")
	}
	return c.err
}

func (c *recordingCommand) executed() []core.DeferredTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.DeferredTask, len(c.tasks))
	copy(out, c.tasks)
	return out
}

func sampleTask(id string) core.DeferredTask {
	return core.DeferredTask{
		ID:          id,
		Kind:        core.TaskKindCommand,
		Command:     "/start-process",
		Text:        "build report",
		ReplyTarget: core.ReplyTarget{ResponseURL: "https://hooks.slack.test/commands/1"},
		CreatedAt:   time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
}

var errCommand = errors.New("reply failed")
