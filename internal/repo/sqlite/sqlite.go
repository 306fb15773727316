package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/poormans/rategate/internal/domain"
	"github.com/poormans/rategate/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// Store is the single-file adapter. Times that SQL compares are stored as
// unix integers; display times ride on the driver's DATETIME handling.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time keeps SQLITE_BUSY away
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS policies (
  id                  INTEGER PRIMARY KEY AUTOINCREMENT,
  name                TEXT NOT NULL,
  limit_type          TEXT NOT NULL,
  replenish_rate      REAL NOT NULL,
  burst               REAL NOT NULL,
  enabled             INTEGER NOT NULL DEFAULT 1,
  description         TEXT NOT NULL DEFAULT '',
  header_name         TEXT NOT NULL DEFAULT '',
  session_cookie_name TEXT NOT NULL DEFAULT '',
  trust_proxy         INTEGER NOT NULL DEFAULT 0,
  created_at          DATETIME NOT NULL,
  updated_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS rules (
  id                   INTEGER PRIMARY KEY AUTOINCREMENT,
  name                 TEXT NOT NULL,
  path_pattern         TEXT NOT NULL,
  max_requests         INTEGER NOT NULL,
  window_seconds       INTEGER NOT NULL,
  enabled              INTEGER NOT NULL DEFAULT 1,
  priority             INTEGER NOT NULL DEFAULT 100,
  queue_enabled        INTEGER NOT NULL DEFAULT 0,
  max_queue_size       INTEGER NOT NULL DEFAULT 0,
  delay_per_request_ms INTEGER NOT NULL DEFAULT 0,
  created_at           DATETIME NOT NULL,
  updated_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS system_config (
  key        TEXT PRIMARY KEY,
  value      TEXT NOT NULL,
  updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS traffic_logs (
  id             INTEGER PRIMARY KEY AUTOINCREMENT,
  at             DATETIME NOT NULL,
  client_key     TEXT NOT NULL,
  path           TEXT NOT NULL,
  method         TEXT NOT NULL,
  allowed        INTEGER NOT NULL,
  matched_by     TEXT NOT NULL,
  latency_micros INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_traffic_logs_at ON traffic_logs (at DESC);

CREATE TABLE IF NOT EXISTS request_stats (
  minute  INTEGER PRIMARY KEY,
  total   INTEGER NOT NULL DEFAULT 0,
  allowed INTEGER NOT NULL DEFAULT 0,
  denied  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS rate_limit_state (
  key              TEXT PRIMARY KEY,
  remaining_tokens REAL NOT NULL,
  last_refill_time INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS request_counters (
  key          TEXT PRIMARY KEY,
  count        INTEGER NOT NULL,
  window_start INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS upstream_checks (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  upstream_id TEXT NOT NULL,
  base_url    TEXT NOT NULL,
  up          INTEGER NOT NULL,
  http_status INTEGER NULL,
  latency_ms  REAL NOT NULL,
  reason      TEXT NOT NULL,
  checked_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_upstream_checks_time ON upstream_checks (upstream_id, checked_at DESC);

CREATE TABLE IF NOT EXISTS alerts (
  upstream_id  TEXT PRIMARY KEY,
  last_state   INTEGER NOT NULL,
  last_sent_at DATETIME NULL
);
`

func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// ---- PolicyStore ----

func (s *Store) CreatePolicy(ctx context.Context, p *domain.Policy) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO policies
		   (name, limit_type, replenish_rate, burst, enabled, description,
		    header_name, session_cookie_name, trust_proxy, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.Name, string(p.LimitType), p.ReplenishRate, p.Burst, p.Enabled, p.Description,
		p.HeaderName, p.SessionCookieName, p.TrustProxy, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert policy: %w", err)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("policy id: %w", err)
	}
	return nil
}

const policyCols = `id, name, limit_type, replenish_rate, burst, enabled, description,
       header_name, session_cookie_name, trust_proxy, created_at, updated_at`

func scanPolicy(row interface{ Scan(...any) error }) (*domain.Policy, error) {
	var p domain.Policy
	var lt string
	err := row.Scan(&p.ID, &p.Name, &lt, &p.ReplenishRate, &p.Burst, &p.Enabled, &p.Description,
		&p.HeaderName, &p.SessionCookieName, &p.TrustProxy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.LimitType = domain.LimitType(lt)
	return &p, nil
}

func (s *Store) ListPolicies(ctx context.Context) ([]domain.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+policyCols+` FROM policies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var out []domain.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) GetPolicy(ctx context.Context, id int64) (*domain.Policy, error) {
	p, err := scanPolicy(s.db.QueryRowContext(ctx, `SELECT `+policyCols+` FROM policies WHERE id=?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get policy: %w", err)
	}
	return p, nil
}

func (s *Store) UpdatePolicy(ctx context.Context, p *domain.Policy) (bool, error) {
	p.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE policies SET
		   name=?, limit_type=?, replenish_rate=?, burst=?, enabled=?,
		   description=?, header_name=?, session_cookie_name=?, trust_proxy=?, updated_at=?
		 WHERE id=?`,
		p.Name, string(p.LimitType), p.ReplenishRate, p.Burst, p.Enabled,
		p.Description, p.HeaderName, p.SessionCookieName, p.TrustProxy, p.UpdatedAt, p.ID)
	if err != nil {
		return false, fmt.Errorf("update policy: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) DeletePolicy(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM policies WHERE id=?`, id)
	if err != nil {
		return false, fmt.Errorf("delete policy: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ---- RuleStore ----

func (s *Store) CreateRule(ctx context.Context, r *domain.Rule) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rules
		   (name, path_pattern, max_requests, window_seconds, enabled, priority,
		    queue_enabled, max_queue_size, delay_per_request_ms, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		r.Name, r.PathPattern, r.MaxRequests, r.WindowSeconds, r.Enabled, r.Priority,
		r.QueueEnabled, r.MaxQueueSize, r.DelayPerReqMS, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	r.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("rule id: %w", err)
	}
	return nil
}

const ruleCols = `id, name, path_pattern, max_requests, window_seconds, enabled, priority,
       queue_enabled, max_queue_size, delay_per_request_ms, created_at, updated_at`

func scanRule(row interface{ Scan(...any) error }) (*domain.Rule, error) {
	var r domain.Rule
	err := row.Scan(&r.ID, &r.Name, &r.PathPattern, &r.MaxRequests, &r.WindowSeconds,
		&r.Enabled, &r.Priority, &r.QueueEnabled, &r.MaxQueueSize, &r.DelayPerReqMS,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) listRules(ctx context.Context, q string) ([]domain.Rule, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []domain.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) ListRules(ctx context.Context) ([]domain.Rule, error) {
	return s.listRules(ctx, `SELECT `+ruleCols+` FROM rules ORDER BY id`)
}

func (s *Store) ListActiveRules(ctx context.Context) ([]domain.Rule, error) {
	return s.listRules(ctx, `SELECT `+ruleCols+` FROM rules WHERE enabled=1 ORDER BY priority, id`)
}

func (s *Store) GetRule(ctx context.Context, id int64) (*domain.Rule, error) {
	r, err := scanRule(s.db.QueryRowContext(ctx, `SELECT `+ruleCols+` FROM rules WHERE id=?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return r, nil
}

func (s *Store) UpdateRule(ctx context.Context, r *domain.Rule) (bool, error) {
	r.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE rules SET
		   name=?, path_pattern=?, max_requests=?, window_seconds=?, enabled=?,
		   priority=?, queue_enabled=?, max_queue_size=?, delay_per_request_ms=?, updated_at=?
		 WHERE id=?`,
		r.Name, r.PathPattern, r.MaxRequests, r.WindowSeconds, r.Enabled,
		r.Priority, r.QueueEnabled, r.MaxQueueSize, r.DelayPerReqMS, r.UpdatedAt, r.ID)
	if err != nil {
		return false, fmt.Errorf("update rule: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) UpdateRuleQueue(ctx context.Context, id int64, enabled bool, maxQueue, delayMS int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rules SET queue_enabled=?, max_queue_size=?, delay_per_request_ms=?, updated_at=?
		 WHERE id=?`,
		enabled, maxQueue, delayMS, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("update rule queue: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) DeleteRule(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id=?`, id)
	if err != nil {
		return false, fmt.Errorf("delete rule: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ---- ConfigStore ----

func (s *Store) AllConfig(ctx context.Context) ([]domain.ConfigEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, updated_at FROM system_config ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list config: %w", err)
	}
	defer rows.Close()

	var out []domain.ConfigEntry
	for rows.Next() {
		var e domain.ConfigEntry
		if err := rows.Scan(&e.Key, &e.Value, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan config: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system_config WHERE key=?`, key).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get config: %w", err)
	}
	return v, true, nil
}

func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO system_config (key, value, updated_at) VALUES (?,?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set config: %w", err)
	}
	return nil
}

// ---- TrafficLogStore ----

func (s *Store) AppendLog(ctx context.Context, l *domain.TrafficLog) error {
	if l.At.IsZero() {
		l.At = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO traffic_logs (at, client_key, path, method, allowed, matched_by, latency_micros)
		 VALUES (?,?,?,?,?,?,?)`,
		l.At, l.ClientKey, l.Path, l.Method, l.Allowed, l.MatchedBy, l.LatencyMicros)
	if err != nil {
		return fmt.Errorf("insert traffic log: %w", err)
	}
	l.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("traffic log id: %w", err)
	}
	return nil
}

func (s *Store) RecentLogs(ctx context.Context, limit int) ([]domain.TrafficLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, client_key, path, method, allowed, matched_by, latency_micros
		   FROM traffic_logs
		  ORDER BY at DESC, id DESC
		  LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent logs: %w", err)
	}
	defer rows.Close()

	var out []domain.TrafficLog
	for rows.Next() {
		var l domain.TrafficLog
		if err := rows.Scan(&l.ID, &l.At, &l.ClientKey, &l.Path, &l.Method, &l.Allowed, &l.MatchedBy, &l.LatencyMicros); err != nil {
			return nil, fmt.Errorf("scan traffic log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ---- StatsStore ----

func (s *Store) AddBucket(ctx context.Context, row domain.StatsRow) error {
	minute := row.Minute.Truncate(time.Minute).Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO request_stats (minute, total, allowed, denied) VALUES (?,?,?,?)
		 ON CONFLICT(minute) DO UPDATE SET
		   total   = request_stats.total   + excluded.total,
		   allowed = request_stats.allowed + excluded.allowed,
		   denied  = request_stats.denied  + excluded.denied`,
		minute, row.Total, row.Allowed, row.Denied)
	if err != nil {
		return fmt.Errorf("upsert stats bucket: %w", err)
	}
	return nil
}

func (s *Store) Series(ctx context.Context, since time.Time) ([]domain.StatsRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT minute, total, allowed, denied FROM request_stats WHERE minute >= ? ORDER BY minute`,
		since.Unix())
	if err != nil {
		return nil, fmt.Errorf("stats series: %w", err)
	}
	defer rows.Close()

	var out []domain.StatsRow
	for rows.Next() {
		var unix int64
		var r domain.StatsRow
		if err := rows.Scan(&unix, &r.Total, &r.Allowed, &r.Denied); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		r.Minute = time.Unix(unix, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Summarize(ctx context.Context, since time.Time) (domain.Summary, error) {
	var sum domain.Summary
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total),0), COALESCE(SUM(allowed),0), COALESCE(SUM(denied),0)
		   FROM request_stats WHERE minute >= ?`, since.Unix()).
		Scan(&sum.Total, &sum.Allowed, &sum.Denied)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("stats summary: %w", err)
	}
	sum.ComputeRate()
	return sum, nil
}

// ---- BucketStateStore ----

func (s *Store) LoadBucket(ctx context.Context, key string) (float64, time.Time, bool, error) {
	var tokens float64
	var refillNanos int64
	err := s.db.QueryRowContext(ctx,
		`SELECT remaining_tokens, last_refill_time FROM rate_limit_state WHERE key=?`, key).
		Scan(&tokens, &refillNanos)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, time.Time{}, false, nil
		}
		return 0, time.Time{}, false, fmt.Errorf("load bucket: %w", err)
	}
	return tokens, time.Unix(0, refillNanos).UTC(), true, nil
}

func (s *Store) SaveBucket(ctx context.Context, key string, tokens float64, refilledAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rate_limit_state (key, remaining_tokens, last_refill_time) VALUES (?,?,?)
		 ON CONFLICT(key) DO UPDATE SET
		   remaining_tokens = excluded.remaining_tokens,
		   last_refill_time = excluded.last_refill_time`,
		key, tokens, refilledAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save bucket: %w", err)
	}
	return nil
}

func (s *Store) DeleteStaleBuckets(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_state WHERE last_refill_time < ?`, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete stale buckets: %w", err)
	}
	return res.RowsAffected()
}

// ---- CounterStore ----

func (s *Store) IncrCounter(ctx context.Context, key string, window time.Duration, now time.Time) (int, error) {
	cutoff := now.Add(-window).UnixNano()
	var count int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO request_counters (key, count, window_start) VALUES (?, 1, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   count = CASE WHEN request_counters.window_start <= ?
		                THEN 1 ELSE request_counters.count + 1 END,
		   window_start = CASE WHEN request_counters.window_start <= ?
		                       THEN excluded.window_start ELSE request_counters.window_start END
		 RETURNING count`,
		key, now.UnixNano(), cutoff, cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("incr counter: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteStaleCounters(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM request_counters WHERE window_start < ?`, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete stale counters: %w", err)
	}
	return res.RowsAffected()
}

// ---- UpstreamResultStore ----

func (s *Store) AppendCheck(ctx context.Context, c *domain.UpstreamCheck) error {
	if c.CheckedAt.IsZero() {
		c.CheckedAt = time.Now().UTC()
	}
	var statusPtr *int
	if c.HTTPStatus != 0 {
		statusPtr = &c.HTTPStatus
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO upstream_checks
		   (upstream_id, base_url, up, http_status, latency_ms, reason, checked_at)
		 VALUES (?,?,?,?,?,?,?)`,
		string(c.UpstreamID), c.BaseURL, c.Up, statusPtr, c.LatencyMS, c.Reason, c.CheckedAt)
	if err != nil {
		return fmt.Errorf("insert upstream check: %w", err)
	}
	return nil
}

func (s *Store) LatestChecks(ctx context.Context) ([]repo.LatestRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT upstream_id, base_url, up, http_status, latency_ms, reason, checked_at
		   FROM upstream_checks
		  ORDER BY checked_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("latest checks: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var out []repo.LatestRow
	for rows.Next() {
		var (
			upstreamID string
			baseURL    string
			up         bool
			httpNull   sql.NullInt32
			latency    float64
			reason     string
			checkedAt  time.Time
		)
		if err := rows.Scan(&upstreamID, &baseURL, &up, &httpNull, &latency, &reason, &checkedAt); err != nil {
			return nil, fmt.Errorf("scan latest check: %w", err)
		}
		if seen[upstreamID] {
			continue // newest row per upstream wins
		}
		seen[upstreamID] = true

		var httpStatusPtr *int
		if httpNull.Valid {
			v := int(httpNull.Int32)
			httpStatusPtr = &v
		}
		lat := latency

		out = append(out, repo.LatestRow{
			UpstreamID: upstreamID,
			BaseURL:    baseURL,
			Up:         up,
			HTTPStatus: httpStatusPtr,
			LatencyMS:  &lat,
			Reason:     reason,
			CheckedAt:  checkedAt,
		})
	}
	return out, rows.Err()
}

// ---- AlertStore ----

func (s *Store) GetAlert(ctx context.Context, upstreamID string) (*repo.AlertRecord, error) {
	var r repo.AlertRecord
	r.UpstreamID = upstreamID
	var lastSent sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT last_state, last_sent_at FROM alerts WHERE upstream_id=?`, upstreamID).
		Scan(&r.LastState, &lastSent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get alert: %w", err)
	}
	if lastSent.Valid {
		t := lastSent.Time
		r.LastSentAt = &t
	}
	return &r, nil
}

func (s *Store) SetAlert(ctx context.Context, upstreamID string, lastState bool, sentAt time.Time) error {
	var ts *time.Time
	if !sentAt.IsZero() {
		ts = &sentAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (upstream_id, last_state, last_sent_at) VALUES (?,?,?)
		 ON CONFLICT(upstream_id) DO UPDATE SET
		   last_state=excluded.last_state, last_sent_at=excluded.last_sent_at`,
		upstreamID, lastState, ts)
	if err != nil {
		return fmt.Errorf("set alert: %w", err)
	}
	return nil
}
