package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/poormans/rategate/internal/domain"
	"github.com/poormans/rategate/internal/repo"
)

// Retained traffic logs are bounded; old rows are trimmed on append.
const maxLogs = 10000

type bucketState struct {
	tokens     float64
	refilledAt time.Time
}

type counterState struct {
	count       int
	windowStart time.Time
}

type Store struct {
	mu       sync.RWMutex
	policies map[int64]*domain.Policy
	rules    map[int64]*domain.Rule
	config   map[string]domain.ConfigEntry
	logs     []domain.TrafficLog
	stats    map[int64]*domain.StatsRow // keyed by minute unix
	buckets  map[string]bucketState
	counters map[string]counterState
	checks   []domain.UpstreamCheck
	alerts   map[string]repo.AlertRecord

	nextPolicyID int64
	nextRuleID   int64
	nextLogID    int64
}

func New() *Store {
	return &Store{
		policies: make(map[int64]*domain.Policy),
		rules:    make(map[int64]*domain.Rule),
		config:   make(map[string]domain.ConfigEntry),
		stats:    make(map[int64]*domain.StatsRow),
		buckets:  make(map[string]bucketState),
		counters: make(map[string]counterState),
		alerts:   make(map[string]repo.AlertRecord),
	}
}

func (m *Store) Close() {}

// ---- PolicyStore ----

func (m *Store) CreatePolicy(ctx context.Context, p *domain.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextPolicyID++
	p.ID = m.nextPolicyID
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	cp := *p
	m.policies[p.ID] = &cp
	return nil
}

func (m *Store) ListPolicies(ctx context.Context) ([]domain.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Policy, 0, len(m.policies))
	for _, p := range m.policies {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) GetPolicy(ctx context.Context, id int64) (*domain.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.policies[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *Store) UpdatePolicy(ctx context.Context, p *domain.Policy) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.policies[p.ID]
	if !ok {
		return false, nil
	}
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	m.policies[p.ID] = &cp
	return true, nil
}

func (m *Store) DeletePolicy(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.policies[id]; !ok {
		return false, nil
	}
	delete(m.policies, id)
	return true, nil
}

// ---- RuleStore ----

func (m *Store) CreateRule(ctx context.Context, r *domain.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRuleID++
	r.ID = m.nextRuleID
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	cp := *r
	m.rules[r.ID] = &cp
	return nil
}

func (m *Store) ListRules(ctx context.Context) ([]domain.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Rule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) ListActiveRules(ctx context.Context) ([]domain.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Rule, 0, len(m.rules))
	for _, r := range m.rules {
		if r.Enabled {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Store) GetRule(ctx context.Context, id int64) (*domain.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *Store) UpdateRule(ctx context.Context, r *domain.Rule) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rules[r.ID]
	if !ok {
		return false, nil
	}
	r.CreatedAt = cur.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	cp := *r
	m.rules[r.ID] = &cp
	return true, nil
}

func (m *Store) UpdateRuleQueue(ctx context.Context, id int64, enabled bool, maxQueue, delayMS int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return false, nil
	}
	r.QueueEnabled = enabled
	r.MaxQueueSize = maxQueue
	r.DelayPerReqMS = delayMS
	r.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *Store) DeleteRule(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return false, nil
	}
	delete(m.rules, id)
	return true, nil
}

// ---- ConfigStore ----

func (m *Store) AllConfig(ctx context.Context) ([]domain.ConfigEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ConfigEntry, 0, len(m.config))
	for _, e := range m.config {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Store) GetConfig(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.config[key]
	return e.Value, ok, nil
}

func (m *Store) SetConfig(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config[key] = domain.ConfigEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return nil
}

// ---- TrafficLogStore ----

func (m *Store) AppendLog(ctx context.Context, l *domain.TrafficLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextLogID++
	l.ID = m.nextLogID
	if l.At.IsZero() {
		l.At = time.Now().UTC()
	}
	m.logs = append(m.logs, *l)
	if len(m.logs) > maxLogs {
		keep := m.logs[len(m.logs)-maxLogs/2:]
		m.logs = append(m.logs[:0:0], keep...)
	}
	return nil
}

func (m *Store) RecentLogs(ctx context.Context, limit int) ([]domain.TrafficLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.logs) {
		limit = len(m.logs)
	}
	out := make([]domain.TrafficLog, 0, limit)
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.logs[i])
	}
	return out, nil
}

// ---- StatsStore ----

func (m *Store) AddBucket(ctx context.Context, row domain.StatsRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	minute := row.Minute.Truncate(time.Minute)
	key := minute.Unix()
	cur, ok := m.stats[key]
	if !ok {
		m.stats[key] = &domain.StatsRow{Minute: minute, Total: row.Total, Allowed: row.Allowed, Denied: row.Denied}
		return nil
	}
	cur.Total += row.Total
	cur.Allowed += row.Allowed
	cur.Denied += row.Denied
	return nil
}

func (m *Store) Series(ctx context.Context, since time.Time) ([]domain.StatsRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.StatsRow
	for _, r := range m.stats {
		if !r.Minute.Before(since) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Minute.Before(out[j].Minute) })
	return out, nil
}

func (m *Store) Summarize(ctx context.Context, since time.Time) (domain.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s domain.Summary
	for _, r := range m.stats {
		if r.Minute.Before(since) {
			continue
		}
		s.Total += r.Total
		s.Allowed += r.Allowed
		s.Denied += r.Denied
	}
	s.ComputeRate()
	return s, nil
}

// ---- BucketStateStore ----

func (m *Store) LoadBucket(ctx context.Context, key string) (float64, time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.buckets[key]
	if !ok {
		return 0, time.Time{}, false, nil
	}
	return b.tokens, b.refilledAt, true, nil
}

func (m *Store) SaveBucket(ctx context.Context, key string, tokens float64, refilledAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[key] = bucketState{tokens: tokens, refilledAt: refilledAt}
	return nil
}

func (m *Store) DeleteStaleBuckets(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, b := range m.buckets {
		if b.refilledAt.Before(olderThan) {
			delete(m.buckets, k)
			n++
		}
	}
	return n, nil
}

// ---- CounterStore ----

func (m *Store) IncrCounter(ctx context.Context, key string, window time.Duration, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[key]
	if !ok || now.Sub(c.windowStart) >= window {
		m.counters[key] = counterState{count: 1, windowStart: now}
		return 1, nil
	}
	c.count++
	m.counters[key] = c
	return c.count, nil
}

func (m *Store) DeleteStaleCounters(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, c := range m.counters {
		if c.windowStart.Before(olderThan) {
			delete(m.counters, k)
			n++
		}
	}
	return n, nil
}

// ---- UpstreamResultStore ----

func (m *Store) AppendCheck(ctx context.Context, c *domain.UpstreamCheck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.CheckedAt.IsZero() {
		c.CheckedAt = time.Now().UTC()
	}
	m.checks = append(m.checks, *c)
	return nil
}

func (m *Store) LatestChecks(ctx context.Context) ([]repo.LatestRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latest := make(map[domain.UpstreamID]*domain.UpstreamCheck)
	for i := range m.checks {
		c := &m.checks[i]
		cur := latest[c.UpstreamID]
		if cur == nil || c.CheckedAt.After(cur.CheckedAt) {
			latest[c.UpstreamID] = c
		}
	}

	out := make([]repo.LatestRow, 0, len(latest))
	for _, c := range latest {
		var hs *int
		var lat *float64
		if c.HTTPStatus != 0 {
			v := c.HTTPStatus
			hs = &v
		}
		if c.LatencyMS != 0 {
			v := c.LatencyMS
			lat = &v
		}
		out = append(out, repo.LatestRow{
			UpstreamID: string(c.UpstreamID),
			BaseURL:    c.BaseURL,
			Up:         c.Up,
			HTTPStatus: hs,
			LatencyMS:  lat,
			Reason:     c.Reason,
			CheckedAt:  c.CheckedAt,
		})
	}
	return out, nil
}

// ---- AlertStore ----

func (m *Store) GetAlert(ctx context.Context, upstreamID string) (*repo.AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.alerts[upstreamID]
	if !ok {
		return nil, nil
	}
	cp := r
	return &cp, nil
}

func (m *Store) SetAlert(ctx context.Context, upstreamID string, lastState bool, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ts *time.Time
	if !sentAt.IsZero() {
		ts = &sentAt
	}
	m.alerts[upstreamID] = repo.AlertRecord{UpstreamID: upstreamID, LastState: lastState, LastSentAt: ts}
	return nil
}

var _ repo.Store = (*Store)(nil)
