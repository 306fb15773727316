package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/poormans/rategate/internal/domain"
	"github.com/poormans/rategate/internal/repo/memory"
)

func TestMatchPath(t *testing.T) {
	cases := []struct {
		pattern, path string
		want          bool
	}{
		{"/api/hello", "/api/hello", true},
		{"/api/hello", "/api/hello/", false},
		{"/api/*", "/api/orders", true},
		{"/api/*", "/api/orders/42", true},
		{"/api/*", "/api", false},
		{"/api/*", "/health", false},
		{"*", "/anything", true},
		{"/admin*", "/administrator", true},
	}
	for _, c := range cases {
		if got := MatchPath(c.pattern, c.path); got != c.want {
			t.Fatalf("MatchPath(%q, %q) = %v, want %v", c.pattern, c.path, got, c.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.9:4321"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	if got := ClientIP(r, false); got != "10.0.0.9" {
		t.Fatalf("untrusted proxy: want socket peer, got %q", got)
	}
	if got := ClientIP(r, true); got != "203.0.113.7" {
		t.Fatalf("trusted proxy: want first hop, got %q", got)
	}
}

func TestResolveKey(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/hello", nil)
	r.RemoteAddr = "1.2.3.4:5678"
	r.Header.Set("X-User-Id", "u-77")
	r.AddCookie(&http.Cookie{Name: "JSESSIONID", Value: "sess-abc"})

	cases := []struct {
		name   string
		policy domain.Policy
		want   string
	}{
		{"ip", domain.Policy{LimitType: domain.LimitIPBased}, "1.2.3.4"},
		{"user", domain.Policy{LimitType: domain.LimitUserBased}, "u-77"},
		{"api key missing", domain.Policy{LimitType: domain.LimitAPIKey}, "anonymous"},
		{"session", domain.Policy{LimitType: domain.LimitSessionBased, SessionCookieName: "JSESSIONID"}, "sess-abc"},
		{"global", domain.Policy{LimitType: domain.LimitGlobal}, "global"},
		{"custom header", domain.Policy{LimitType: domain.LimitUserBased, HeaderName: "X-Missing"}, "anonymous"},
	}
	for _, c := range cases {
		if got := ResolveKey(&c.policy, r); got != c.want {
			t.Fatalf("%s: want %q, got %q", c.name, c.want, got)
		}
	}
}

func TestPolicyLimiter_BurstThenDeny(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	l := NewPolicyLimiter(store, zap.NewNop())

	p := &domain.Policy{ID: 1, LimitType: domain.LimitIPBased, ReplenishRate: 0.001, Burst: 2}
	now := time.Now()

	for i := 0; i < 2; i++ {
		if !l.Allow(ctx, p, "1.2.3.4", now) {
			t.Fatalf("request %d should pass within burst", i+1)
		}
	}
	if l.Allow(ctx, p, "1.2.3.4", now) {
		t.Fatal("third request should be denied")
	}
	if !l.Allow(ctx, p, "5.6.7.8", now) {
		t.Fatal("a different client has its own bucket")
	}
}

func TestPolicyLimiter_RefillsOverTime(t *testing.T) {
	ctx := context.Background()
	l := NewPolicyLimiter(memory.New(), zap.NewNop())

	p := &domain.Policy{ID: 1, LimitType: domain.LimitGlobal, ReplenishRate: 2, Burst: 1}
	now := time.Now()

	if !l.Allow(ctx, p, "global", now) {
		t.Fatal("first request should pass")
	}
	if l.Allow(ctx, p, "global", now) {
		t.Fatal("bucket should be empty")
	}
	if !l.Allow(ctx, p, "global", now.Add(600*time.Millisecond)) {
		t.Fatal("want a token back after refill")
	}
}

func TestPolicyLimiter_ResumesFromStore(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := &domain.Policy{ID: 9, LimitType: domain.LimitIPBased, ReplenishRate: 0.001, Burst: 5}
	now := time.Now()

	first := NewPolicyLimiter(store, zap.NewNop())
	for i := 0; i < 4; i++ {
		if !first.Allow(ctx, p, "1.2.3.4", now) {
			t.Fatalf("warmup request %d should pass", i+1)
		}
	}

	// a fresh limiter over the same store picks up the drained bucket
	second := NewPolicyLimiter(store, zap.NewNop())
	if !second.Allow(ctx, p, "1.2.3.4", now) {
		t.Fatal("one token should remain after restart")
	}
	if second.Allow(ctx, p, "1.2.3.4", now) {
		t.Fatal("bucket should be empty after restart drain")
	}
}

func newEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.New()
	e := New(store, time.Hour, zap.NewNop())
	return e, store
}

func request(path, addr string) *http.Request {
	r := httptest.NewRequest("GET", path, nil)
	r.RemoteAddr = addr
	return r
}

func TestEngine_NoRulesNoPolicyAllows(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	if err := e.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	d, err := e.Evaluate(ctx, request("/api/hello", "1.2.3.4:1000"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Allowed || d.MatchedBy != "none" {
		t.Fatalf("want pass-through decision, got %+v", d)
	}
}

func TestEngine_RuleDeniesPastLimit(t *testing.T) {
	ctx := context.Background()
	e, store := newEngine(t)

	rule := &domain.Rule{
		Name: "api-cap", PathPattern: "/api/*",
		MaxRequests: 2, WindowSeconds: 60, Enabled: true, Priority: 10,
	}
	if err := store.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if err := e.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	wantMatch := fmt.Sprintf("rule:%d", rule.ID)
	for i := 0; i < 2; i++ {
		d, err := e.Evaluate(ctx, request("/api/hello", "1.2.3.4:1000"))
		if err != nil {
			t.Fatalf("Evaluate %d: %v", i+1, err)
		}
		if !d.Allowed || d.MatchedBy != wantMatch {
			t.Fatalf("request %d: want allowed by %s, got %+v", i+1, wantMatch, d)
		}
	}

	d, err := e.Evaluate(ctx, request("/api/hello", "1.2.3.4:1000"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Allowed {
		t.Fatalf("third request should be denied, got %+v", d)
	}

	// other clients and other paths are unaffected
	if d, _ := e.Evaluate(ctx, request("/api/hello", "9.9.9.9:1000")); !d.Allowed {
		t.Fatal("different client should pass")
	}
	if d, _ := e.Evaluate(ctx, request("/health", "1.2.3.4:1000")); !d.Allowed || d.MatchedBy != "none" {
		t.Fatalf("unmatched path should pass through, got %+v", d)
	}
}

func TestEngine_RulePriorityFirstMatchWins(t *testing.T) {
	ctx := context.Background()
	e, store := newEngine(t)

	loose := &domain.Rule{Name: "loose", PathPattern: "/api/*", MaxRequests: 100, WindowSeconds: 60, Enabled: true, Priority: 200}
	tight := &domain.Rule{Name: "tight", PathPattern: "/api/orders*", MaxRequests: 1, WindowSeconds: 60, Enabled: true, Priority: 10}
	for _, r := range []*domain.Rule{loose, tight} {
		if err := store.CreateRule(ctx, r); err != nil {
			t.Fatalf("CreateRule %s: %v", r.Name, err)
		}
	}
	if err := e.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	d, err := e.Evaluate(ctx, request("/api/orders/7", "1.2.3.4:1000"))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.MatchedBy != fmt.Sprintf("rule:%d", tight.ID) {
		t.Fatalf("want the lower-priority number to win, got %s", d.MatchedBy)
	}
}

func TestEngine_QueueDelaysThenOverflows(t *testing.T) {
	ctx := context.Background()
	e, store := newEngine(t)

	rule := &domain.Rule{
		Name: "queued", PathPattern: "/api/*",
		MaxRequests: 1, WindowSeconds: 60, Enabled: true, Priority: 10,
		QueueEnabled: true, MaxQueueSize: 2, DelayPerReqMS: 30,
	}
	if err := store.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if err := e.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// request 1: inside the limit, no wait
	d, err := e.Evaluate(ctx, request("/api/a", "1.2.3.4:1000"))
	if err != nil || !d.Allowed || d.Waited != 0 {
		t.Fatalf("first request: want immediate allow, got %+v err=%v", d, err)
	}

	// request 2: queue position 1
	start := time.Now()
	d, err = e.Evaluate(ctx, request("/api/a", "1.2.3.4:1000"))
	if err != nil || !d.Allowed {
		t.Fatalf("second request: want queued allow, got %+v err=%v", d, err)
	}
	if d.Waited < 30*time.Millisecond || time.Since(start) < 30*time.Millisecond {
		t.Fatalf("want >= 30ms wait, got %v", d.Waited)
	}

	// request 3: queue position 2
	d, err = e.Evaluate(ctx, request("/api/a", "1.2.3.4:1000"))
	if err != nil || !d.Allowed || d.Waited < 60*time.Millisecond {
		t.Fatalf("third request: want >= 60ms wait, got %+v err=%v", d, err)
	}

	// request 4: past the queue, denied outright
	d, err = e.Evaluate(ctx, request("/api/a", "1.2.3.4:1000"))
	if err != nil {
		t.Fatalf("fourth request: %v", err)
	}
	if d.Allowed {
		t.Fatalf("fourth request should overflow the queue, got %+v", d)
	}
}

func TestEngine_QueueWaitCancelled(t *testing.T) {
	ctx := context.Background()
	e, store := newEngine(t)

	rule := &domain.Rule{
		Name: "slow-queue", PathPattern: "/api/*",
		MaxRequests: 1, WindowSeconds: 60, Enabled: true, Priority: 10,
		QueueEnabled: true, MaxQueueSize: 5, DelayPerReqMS: 5000,
	}
	if err := store.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if err := e.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if d, err := e.Evaluate(ctx, request("/api/a", "1.2.3.4:1000")); err != nil || !d.Allowed {
		t.Fatalf("first request: %+v err=%v", d, err)
	}

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	d, err := e.Evaluate(short, request("/api/a", "1.2.3.4:1000"))
	if err == nil {
		t.Fatalf("want context error from abandoned queue wait, got %+v", d)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("cancel should cut the wait short, took %v", time.Since(start))
	}
}

func TestEngine_DefaultPolicyFallback(t *testing.T) {
	ctx := context.Background()
	e, store := newEngine(t)

	p := &domain.Policy{Name: "default", LimitType: domain.LimitIPBased, ReplenishRate: 0.001, Burst: 1, Enabled: true}
	if err := store.CreatePolicy(ctx, p); err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}
	if err := store.SetConfig(ctx, domain.CfgDefaultPolicyID, strconv.FormatInt(p.ID, 10)); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	if err := e.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	wantMatch := fmt.Sprintf("policy:%d", p.ID)
	d, err := e.Evaluate(ctx, request("/anything", "1.2.3.4:1000"))
	if err != nil || !d.Allowed || d.MatchedBy != wantMatch {
		t.Fatalf("first request: want allow by %s, got %+v err=%v", wantMatch, d, err)
	}
	if d.ClientKey != "1.2.3.4" {
		t.Fatalf("want resolved IP key, got %q", d.ClientKey)
	}

	d, err = e.Evaluate(ctx, request("/anything", "1.2.3.4:1000"))
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if d.Allowed {
		t.Fatalf("burst of 1 should deny the second request, got %+v", d)
	}
}

func TestEngine_KillSwitchDisablesEverything(t *testing.T) {
	ctx := context.Background()
	e, store := newEngine(t)

	rule := &domain.Rule{Name: "cap", PathPattern: "*", MaxRequests: 0, WindowSeconds: 60, Enabled: true, Priority: 1}
	if err := store.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if err := store.SetConfig(ctx, domain.CfgRateLimitingEnabled, "false"); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	if err := e.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	for i := 0; i < 5; i++ {
		d, err := e.Evaluate(ctx, request("/api/x", "1.2.3.4:1000"))
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if !d.Allowed || d.MatchedBy != "none" {
			t.Fatalf("disabled limiter must pass everything, got %+v", d)
		}
	}
}

func TestEngine_RefreshPicksUpChanges(t *testing.T) {
	ctx := context.Background()
	e, store := newEngine(t)
	if err := e.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if d, _ := e.Evaluate(ctx, request("/api/x", "1.2.3.4:1000")); d.MatchedBy != "none" {
		t.Fatalf("no rules yet, got %+v", d)
	}

	rule := &domain.Rule{Name: "late", PathPattern: "/api/*", MaxRequests: 10, WindowSeconds: 60, Enabled: true, Priority: 1}
	if err := store.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	// cache still serves the old snapshot until an explicit refresh
	if d, _ := e.Evaluate(ctx, request("/api/x", "1.2.3.4:1000")); d.MatchedBy != "none" {
		t.Fatalf("stale cache expected before refresh, got %+v", d)
	}
	if err := e.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if d, _ := e.Evaluate(ctx, request("/api/x", "1.2.3.4:1000")); d.MatchedBy != fmt.Sprintf("rule:%d", rule.ID) {
		t.Fatalf("want new rule after refresh, got %+v", d)
	}
}

func TestEngine_SweepIdle(t *testing.T) {
	ctx := context.Background()
	e, store := newEngine(t)

	p := &domain.Policy{Name: "default", LimitType: domain.LimitIPBased, ReplenishRate: 1, Burst: 5, Enabled: true}
	if err := store.CreatePolicy(ctx, p); err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}
	if err := store.SetConfig(ctx, domain.CfgDefaultPolicyID, strconv.FormatInt(p.ID, 10)); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	if err := e.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if _, err := e.Evaluate(ctx, request("/x", "1.2.3.4:1000")); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	n, err := e.SweepIdle(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("SweepIdle: %v", err)
	}
	if n != 1 {
		t.Fatalf("want 1 swept bucket, got %d", n)
	}
}
