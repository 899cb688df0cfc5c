// Package poll drives an asynchronous generation task to completion by
// querying its status on a fixed interval.
package poll

import (
	"context"
	"log/slog"
	"time"

	"github.com/af-corp/muse-gateway/internal/router/adapters"
	"github.com/af-corp/muse-gateway/internal/types"
	"github.com/af-corp/muse-gateway/internal/upstream"
)

// sleep is swapped out in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Wait queries the task every interval until it reaches a terminal outcome
// or maxWait elapses. Transient query failures are logged and the next tick
// tried anyway; fatal classifications abort immediately. A task that is
// still running when the budget runs out yields a TimeoutError.
func Wait(ctx context.Context, q adapters.TaskQuerier, taskID string, maxWait, interval time.Duration) (*types.TaskResult, error) {
	start := time.Now()
	for {
		res, err := q.QueryTask(ctx, taskID)
		switch {
		case err == nil && res.Terminal():
			return res, nil
		case err == nil:
			// still running
		case !upstream.Retryable(err):
			return nil, err
		default:
			slog.Warn("task poll failed, will retry",
				"provider", q.Name(),
				"task_id", taskID,
				"reason", upstream.Reason(err),
				"error", err)
		}

		if time.Since(start)+interval > maxWait {
			return nil, &upstream.TimeoutError{Provider: q.Name(), Elapsed: time.Since(start)}
		}
		if err := sleep(ctx, interval); err != nil {
			return nil, err
		}
	}
}
