package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/poormans/rategate/internal/domain"
	"github.com/poormans/rategate/internal/repo"
)

// Decision is the outcome of evaluating one request.
type Decision struct {
	Allowed   bool
	MatchedBy string // "rule:<id>", "policy:<id>" or "none"
	ClientKey string
	Waited    time.Duration // queue delay actually served
}

// Engine evaluates requests against path rules first, then the default
// policy. Rules and the system config are cached and refreshed on a TTL
// or explicitly via Refresh.
type Engine struct {
	store    repo.Store
	buckets  *PolicyLimiter
	log      *zap.Logger
	cacheTTL time.Duration

	mu            sync.RWMutex
	fetchedAt     time.Time
	enabled       bool
	defaultPolicy *domain.Policy // nil when unset or disabled
	rules         []domain.Rule
}

func New(store repo.Store, cacheTTL time.Duration, log *zap.Logger) *Engine {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &Engine{
		store:    store,
		buckets:  NewPolicyLimiter(store, log),
		log:      log,
		cacheTTL: cacheTTL,
	}
}

// Refresh reloads active rules, the kill switch and the default policy.
func (e *Engine) Refresh(ctx context.Context) error {
	rules, err := e.store.ListActiveRules(ctx)
	if err != nil {
		return fmt.Errorf("load active rules: %w", err)
	}

	enabled := true
	if v, ok, err := e.store.GetConfig(ctx, domain.CfgRateLimitingEnabled); err != nil {
		return fmt.Errorf("load %s: %w", domain.CfgRateLimitingEnabled, err)
	} else if ok {
		enabled = v == "true"
	}

	var def *domain.Policy
	if v, ok, err := e.store.GetConfig(ctx, domain.CfgDefaultPolicyID); err != nil {
		return fmt.Errorf("load %s: %w", domain.CfgDefaultPolicyID, err)
	} else if ok {
		if id, perr := strconv.ParseInt(v, 10, 64); perr == nil && id > 0 {
			p, gerr := e.store.GetPolicy(ctx, id)
			if gerr != nil {
				return fmt.Errorf("load default policy: %w", gerr)
			}
			if p != nil && p.Enabled {
				p.Normalize()
				def = p
			}
		}
	}

	e.mu.Lock()
	e.rules = rules
	e.enabled = enabled
	e.defaultPolicy = def
	e.fetchedAt = time.Now()
	e.mu.Unlock()
	return nil
}

// snapshot hands back the cached state, refreshing first when it has aged
// out. A failed refresh serves the stale snapshot rather than blocking
// traffic.
func (e *Engine) snapshot(ctx context.Context) (bool, []domain.Rule, *domain.Policy) {
	e.mu.RLock()
	stale := time.Since(e.fetchedAt) > e.cacheTTL
	enabled, rules, def := e.enabled, e.rules, e.defaultPolicy
	e.mu.RUnlock()

	if !stale {
		return enabled, rules, def
	}
	if err := e.Refresh(ctx); err != nil {
		e.log.Warn("refresh limiter state", zap.Error(err))
		return enabled, rules, def
	}
	e.mu.RLock()
	enabled, rules, def = e.enabled, e.rules, e.defaultPolicy
	e.mu.RUnlock()
	return enabled, rules, def
}

// Evaluate runs the request through the first matching rule, falling back
// to the default policy. Queued requests block inside Evaluate until their
// slot comes up or ctx is cancelled.
func (e *Engine) Evaluate(ctx context.Context, r *http.Request) (Decision, error) {
	enabled, rules, def := e.snapshot(ctx)

	ip := ClientIP(r, true)
	d := Decision{Allowed: true, MatchedBy: "none", ClientKey: ip}
	if !enabled {
		return d, nil
	}

	for i := range rules {
		rule := &rules[i]
		if !MatchPath(rule.PathPattern, r.URL.Path) {
			continue
		}
		d.MatchedBy = fmt.Sprintf("rule:%d", rule.ID)
		allowed, waited, err := e.applyRule(ctx, rule, ip)
		if err != nil {
			return d, err
		}
		d.Allowed = allowed
		d.Waited = waited
		return d, nil
	}

	if def != nil {
		resolved := ResolveKey(def, r)
		d.ClientKey = resolved
		d.MatchedBy = fmt.Sprintf("policy:%d", def.ID)
		d.Allowed = e.buckets.Allow(ctx, def, resolved, time.Now())
	}
	return d, nil
}

// applyRule counts the request in its fixed window. Overflow is queued if
// the rule allows it: the caller waits position * delay, where position is
// how far past the limit this request landed.
func (e *Engine) applyRule(ctx context.Context, rule *domain.Rule, clientIP string) (bool, time.Duration, error) {
	window := time.Duration(rule.WindowSeconds) * time.Second
	key := fmt.Sprintf("rule:%d:%s", rule.ID, clientIP)

	count, err := e.store.IncrCounter(ctx, key, window, time.Now())
	if err != nil {
		return false, 0, fmt.Errorf("incr counter %s: %w", key, err)
	}
	if count <= rule.MaxRequests {
		return true, 0, nil
	}
	if !rule.QueueEnabled {
		return false, 0, nil
	}

	position := count - rule.MaxRequests
	if position > rule.MaxQueueSize {
		return false, 0, nil
	}
	delay := time.Duration(position*rule.DelayPerReqMS) * time.Millisecond
	if delay <= 0 {
		return true, 0, nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false, 0, ctx.Err()
	case <-timer.C:
	}
	return true, delay, nil
}

// SweepIdle clears buckets and counters not touched since olderThan.
func (e *Engine) SweepIdle(ctx context.Context, olderThan time.Time) (int64, error) {
	nBuckets, bErr := e.buckets.SweepIdle(ctx, olderThan)
	nCounters, cErr := e.store.DeleteStaleCounters(ctx, olderThan)
	return nBuckets + nCounters, multierr.Append(bErr, cErr)
}
