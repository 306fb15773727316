package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/poormans/rategate/internal/domain"
	"github.com/poormans/rategate/internal/repo"
)

// tokenBucket: per-key token bucket (max tokens = burst, refill rate per second).
type tokenBucket struct {
	tokens float64
	last   time.Time
}

// PolicyLimiter keeps live buckets in memory and mirrors them into a
// BucketStateStore so fill levels survive a restart.
type PolicyLimiter struct {
	states repo.BucketStateStore
	log    *zap.Logger

	mu sync.Mutex
	m  map[string]*tokenBucket
}

func NewPolicyLimiter(states repo.BucketStateStore, log *zap.Logger) *PolicyLimiter {
	return &PolicyLimiter{
		states: states,
		log:    log,
		m:      make(map[string]*tokenBucket),
	}
}

// BucketKey names the persisted bucket for one client under one policy.
func BucketKey(p *domain.Policy, resolved string) string {
	return fmt.Sprintf("policy:%d:%s:%s", p.ID, p.LimitType, resolved)
}

// Allow refills the client's bucket and takes one token from it.
func (l *PolicyLimiter) Allow(ctx context.Context, p *domain.Policy, resolved string, now time.Time) bool {
	key := BucketKey(p, resolved)

	l.mu.Lock()
	defer l.mu.Unlock()

	tb := l.m[key]
	if tb == nil {
		tb = &tokenBucket{tokens: p.Burst, last: now}
		if tokens, refilledAt, ok, err := l.states.LoadBucket(ctx, key); err != nil {
			l.log.Warn("load bucket state", zap.String("key", key), zap.Error(err))
		} else if ok {
			tb.tokens = tokens
			tb.last = refilledAt
		}
		l.m[key] = tb
	}

	// refill
	elapsed := now.Sub(tb.last).Seconds()
	if elapsed > 0 {
		tb.tokens = minFloat(p.Burst, tb.tokens+elapsed*p.ReplenishRate)
	}
	tb.last = now

	allowed := tb.tokens >= 1.0
	if allowed {
		tb.tokens -= 1.0
	}

	if err := l.states.SaveBucket(ctx, key, tb.tokens, tb.last); err != nil {
		l.log.Warn("save bucket state", zap.String("key", key), zap.Error(err))
	}
	return allowed
}

// SweepIdle drops buckets not touched since olderThan, in memory and in the
// store, and reports how many persisted rows went away.
func (l *PolicyLimiter) SweepIdle(ctx context.Context, olderThan time.Time) (int64, error) {
	l.mu.Lock()
	for key, tb := range l.m {
		if tb.last.Before(olderThan) {
			delete(l.m, key)
		}
	}
	l.mu.Unlock()

	n, err := l.states.DeleteStaleBuckets(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("delete stale buckets: %w", err)
	}
	return n, nil
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
