package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/poormans/rategate/internal/domain"
)

// Integration test; runs only when RATEGATE_DB_DSN points at a Postgres.
func openStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("RATEGATE_DB_DSN")
	if dsn == "" {
		t.Skip("RATEGATE_DB_DSN not set; skipping Postgres integration test")
	}

	ctx := context.Background()
	store, err := New(ctx, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("New store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return store
}

func TestPostgresStore_PolicyAndRuleCRUD(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	name := fmt.Sprintf("itest-%d", time.Now().UTC().UnixNano())
	p := &domain.Policy{Name: name, LimitType: domain.LimitIPBased, ReplenishRate: 10, Burst: 20, Enabled: true}
	if err := store.CreatePolicy(ctx, p); err != nil {
		t.Fatalf("CreatePolicy: %v", err)
	}
	if p.ID == 0 {
		t.Fatal("expected ID assigned")
	}
	got, err := store.GetPolicy(ctx, p.ID)
	if err != nil || got == nil || got.Name != name {
		t.Fatalf("GetPolicy: %+v err=%v", got, err)
	}

	got.Burst = 40
	if ok, err := store.UpdatePolicy(ctx, got); err != nil || !ok {
		t.Fatalf("UpdatePolicy: ok=%v err=%v", ok, err)
	}
	if ok, err := store.DeletePolicy(ctx, p.ID); err != nil || !ok {
		t.Fatalf("DeletePolicy: ok=%v err=%v", ok, err)
	}
	if missing, _ := store.GetPolicy(ctx, p.ID); missing != nil {
		t.Fatalf("want nil after delete, got %+v", missing)
	}

	r := &domain.Rule{Name: name, PathPattern: "/api/*", MaxRequests: 10, WindowSeconds: 60, Enabled: true, Priority: 5}
	if err := store.CreateRule(ctx, r); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if ok, err := store.UpdateRuleQueue(ctx, r.ID, true, 10, 100); err != nil || !ok {
		t.Fatalf("UpdateRuleQueue: ok=%v err=%v", ok, err)
	}
	active, err := store.ListActiveRules(ctx)
	if err != nil {
		t.Fatalf("ListActiveRules: %v", err)
	}
	found := false
	for _, a := range active {
		if a.ID == r.ID && a.QueueEnabled {
			found = true
		}
	}
	if !found {
		t.Fatalf("rule %d not in active set", r.ID)
	}
	if ok, _ := store.DeleteRule(ctx, r.ID); !ok {
		t.Fatal("DeleteRule reported missing")
	}
}

func TestPostgresStore_CounterResetInWindow(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	key := fmt.Sprintf("itest:%d", time.Now().UTC().UnixNano())
	now := time.Now().UTC()

	for want := 1; want <= 3; want++ {
		n, err := store.IncrCounter(ctx, key, time.Minute, now)
		if err != nil {
			t.Fatalf("IncrCounter: %v", err)
		}
		if n != want {
			t.Fatalf("want %d, got %d", want, n)
		}
	}
	n, err := store.IncrCounter(ctx, key, time.Minute, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("IncrCounter after window: %v", err)
	}
	if n != 1 {
		t.Fatalf("want window reset to 1, got %d", n)
	}

	if _, err := store.DeleteStaleCounters(ctx, now.Add(3*time.Minute)); err != nil {
		t.Fatalf("DeleteStaleCounters: %v", err)
	}
}

func TestPostgresStore_StatsAndLogs(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	minute := time.Now().UTC().Truncate(time.Minute)
	if err := store.AddBucket(ctx, domain.StatsRow{Minute: minute, Total: 3, Allowed: 2, Denied: 1}); err != nil {
		t.Fatalf("AddBucket: %v", err)
	}
	if err := store.AddBucket(ctx, domain.StatsRow{Minute: minute, Total: 2, Allowed: 2}); err != nil {
		t.Fatalf("AddBucket merge: %v", err)
	}
	sum, err := store.Summarize(ctx, minute)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Total < 5 {
		t.Fatalf("want merged total >= 5, got %+v", sum)
	}

	l := &domain.TrafficLog{ClientKey: "1.2.3.4", Path: "/t", Method: "GET", Allowed: true, MatchedBy: "none"}
	if err := store.AppendLog(ctx, l); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
	if l.ID == 0 {
		t.Fatal("expected log ID assigned")
	}
	logs, err := store.RecentLogs(ctx, 10)
	if err != nil || len(logs) == 0 {
		t.Fatalf("RecentLogs: n=%d err=%v", len(logs), err)
	}
}

func TestPostgresStore_AlertRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	id := fmt.Sprintf("U-%d", time.Now().UTC().UnixNano())
	rec, err := store.GetAlert(ctx, id)
	if err != nil || rec != nil {
		t.Fatalf("want nil for unknown upstream, got %+v err=%v", rec, err)
	}

	if err := store.SetAlert(ctx, id, false, time.Time{}); err != nil {
		t.Fatalf("SetAlert: %v", err)
	}
	rec, err = store.GetAlert(ctx, id)
	if err != nil || rec == nil || rec.LastSentAt != nil || rec.LastState {
		t.Fatalf("unexpected: %+v err=%v", rec, err)
	}

	now := time.Now().UTC()
	if err := store.SetAlert(ctx, id, true, now); err != nil {
		t.Fatalf("SetAlert with time: %v", err)
	}
	rec, err = store.GetAlert(ctx, id)
	if err != nil || rec == nil || rec.LastSentAt == nil || !rec.LastState {
		t.Fatalf("unexpected2: %+v err=%v", rec, err)
	}
}
