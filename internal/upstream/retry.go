package upstream

import (
	"context"
	"log/slog"
	"time"
)

// Policy is the submission retry policy: classify first, then retry with a
// delay that doubles on each attempt. Fatal classifications (auth, quota,
// config, validation, not-found) never consume retry budget.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	// OnRetry, if set, fires before each backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy matches the observed vendor behavior: three attempts with a
// 2s starting delay.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, BaseDelay: 2 * time.Second}
}

// sleep is overridable in tests to observe backoff without waiting.
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

// Do runs op up to p.Attempts times. The last error is returned as-is so
// callers keep its classification.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.BaseDelay

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !Retryable(err) || attempt == attempts {
			return err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		slog.Warn("upstream call failed, retrying",
			"attempt", attempt,
			"max_attempts", attempts,
			"delay", delay,
			"error", err,
		)
		if serr := sleep(ctx, delay); serr != nil {
			return serr
		}
		delay *= 2
	}
	return err
}
