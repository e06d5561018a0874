package inbound

import (
	"context"
	"time"

	"github.com/goliatone/go-slack-dispatch/core"
)

// ClaimPruner is implemented by claim stores that keep settled claims until
// they are swept.
type ClaimPruner interface {
	Prune(ctx context.Context) (int64, error)
}

// PruneLoop sweeps expired claims on a fixed interval.
type PruneLoop struct {
	Store    ClaimPruner
	Interval time.Duration
	Observer core.Observer
}

// Run prunes every Interval until ctx ends. Prune failures are logged and
// retried on the next tick.
func (l *PruneLoop) Run(ctx context.Context) error {
	if l == nil || l.Store == nil || l.Interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, _ = l.PruneOnce(ctx)
		}
	}
}

func (l *PruneLoop) PruneOnce(ctx context.Context) (removed int64, err error) {
	startedAt := time.Now()
	defer func() {
		l.Observer.Observe(ctx, startedAt, "claims.prune", err, map[string]any{"removed": removed})
	}()
	return l.Store.Prune(ctx)
}
