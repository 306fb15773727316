package probe

import (
	"context"
	"time"
)

// RetryChecker re-runs a flapping check before declaring an upstream down.
type RetryChecker struct {
	Inner    Checker
	Attempts int
	Backoff  time.Duration
}

func (r *RetryChecker) Check(ctx context.Context, target string) CheckResult {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last CheckResult
	for i := 0; i < attempts; i++ {
		last = r.Inner.Check(ctx, target)
		if last.Success {
			return last
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			last.Message = last.Message + " (retries cancelled)"
			return last
		case <-time.After(r.Backoff):
		}
	}
	// annotate message so you can see it was a retry series
	last.Message = last.Message + " (after retries)"
	return last
}
