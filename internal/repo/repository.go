package repo

import (
	"context"
	"time"

	"github.com/poormans/rategate/internal/domain"
)

// Ports (interfaces); every store ships a memory, postgres and sqlite adapter.
// Get and lookup methods return nil, nil when the row does not exist.

type PolicyStore interface {
	CreatePolicy(ctx context.Context, p *domain.Policy) error
	ListPolicies(ctx context.Context) ([]domain.Policy, error)
	GetPolicy(ctx context.Context, id int64) (*domain.Policy, error)
	UpdatePolicy(ctx context.Context, p *domain.Policy) (bool, error)
	DeletePolicy(ctx context.Context, id int64) (bool, error)
}

type RuleStore interface {
	CreateRule(ctx context.Context, r *domain.Rule) error
	ListRules(ctx context.Context) ([]domain.Rule, error)
	// ListActiveRules returns enabled rules ordered by ascending priority.
	ListActiveRules(ctx context.Context) ([]domain.Rule, error)
	GetRule(ctx context.Context, id int64) (*domain.Rule, error)
	UpdateRule(ctx context.Context, r *domain.Rule) (bool, error)
	UpdateRuleQueue(ctx context.Context, id int64, enabled bool, maxQueue, delayMS int) (bool, error)
	DeleteRule(ctx context.Context, id int64) (bool, error)
}

type ConfigStore interface {
	AllConfig(ctx context.Context) ([]domain.ConfigEntry, error)
	GetConfig(ctx context.Context, key string) (string, bool, error)
	SetConfig(ctx context.Context, key, value string) error
}

type TrafficLogStore interface {
	AppendLog(ctx context.Context, l *domain.TrafficLog) error
	// RecentLogs returns up to limit rows, newest first.
	RecentLogs(ctx context.Context, limit int) ([]domain.TrafficLog, error)
}

type StatsStore interface {
	// AddBucket merges the row into its minute bucket.
	AddBucket(ctx context.Context, row domain.StatsRow) error
	Series(ctx context.Context, since time.Time) ([]domain.StatsRow, error)
	Summarize(ctx context.Context, since time.Time) (domain.Summary, error)
}

// BucketStateStore persists token-bucket fill levels across restarts.
type BucketStateStore interface {
	LoadBucket(ctx context.Context, key string) (tokens float64, refilledAt time.Time, ok bool, err error)
	SaveBucket(ctx context.Context, key string, tokens float64, refilledAt time.Time) error
	DeleteStaleBuckets(ctx context.Context, olderThan time.Time) (int64, error)
}

// CounterStore tracks fixed-window request counts per rule and client.
type CounterStore interface {
	// IncrCounter bumps the key's count inside its window, resetting the
	// window when it has aged out, and returns the post-increment count.
	IncrCounter(ctx context.Context, key string, window time.Duration, now time.Time) (int, error)
	DeleteStaleCounters(ctx context.Context, olderThan time.Time) (int64, error)
}

// UpstreamResultStore records the outcome of upstream health checks.
type UpstreamResultStore interface {
	AppendCheck(ctx context.Context, c *domain.UpstreamCheck) error
	LatestChecks(ctx context.Context) ([]LatestRow, error)
}

// LatestRow is the most recent check per upstream.
type LatestRow struct {
	UpstreamID string
	BaseURL    string
	Up         bool
	HTTPStatus *int
	LatencyMS  *float64
	Reason     string
	CheckedAt  time.Time
}

// Store bundles every port; each adapter satisfies the whole set.
type Store interface {
	PolicyStore
	RuleStore
	ConfigStore
	TrafficLogStore
	StatsStore
	BucketStateStore
	CounterStore
	UpstreamResultStore
	AlertStore
}
