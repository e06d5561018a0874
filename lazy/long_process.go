package lazy

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-slack-dispatch/core"
)

// LongProcess simulates slow work for the start-process command and reports
// completion.
type LongProcess struct {
	Delay time.Duration
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewLongProcess(delay time.Duration) *LongProcess {
	return &LongProcess{Delay: delay}
}

func (l *LongProcess) Handle(ctx context.Context, task core.DeferredTask) (string, error) {
	sleep := l.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	if err := sleep(ctx, l.Delay); err != nil {
		return "", err
	}
	return fmt.Sprintf("Completed! (task: %s)", task.Text), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ CommandHandler = (*LongProcess)(nil)
