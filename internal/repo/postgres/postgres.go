package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/poormans/rategate/internal/domain"
	"github.com/poormans/rategate/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS policies (
  id                  BIGSERIAL PRIMARY KEY,
  name                TEXT NOT NULL,
  limit_type          TEXT NOT NULL,
  replenish_rate      DOUBLE PRECISION NOT NULL,
  burst               DOUBLE PRECISION NOT NULL,
  enabled             BOOLEAN NOT NULL DEFAULT true,
  description         TEXT NOT NULL DEFAULT '',
  header_name         TEXT NOT NULL DEFAULT '',
  session_cookie_name TEXT NOT NULL DEFAULT '',
  trust_proxy         BOOLEAN NOT NULL DEFAULT false,
  created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rules (
  id                   BIGSERIAL PRIMARY KEY,
  name                 TEXT NOT NULL,
  path_pattern         TEXT NOT NULL,
  max_requests         INTEGER NOT NULL,
  window_seconds       INTEGER NOT NULL,
  enabled              BOOLEAN NOT NULL DEFAULT true,
  priority             INTEGER NOT NULL DEFAULT 100,
  queue_enabled        BOOLEAN NOT NULL DEFAULT false,
  max_queue_size       INTEGER NOT NULL DEFAULT 0,
  delay_per_request_ms INTEGER NOT NULL DEFAULT 0,
  created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS system_config (
  key        TEXT PRIMARY KEY,
  value      TEXT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS traffic_logs (
  id             BIGSERIAL PRIMARY KEY,
  at             TIMESTAMPTZ NOT NULL,
  client_key     TEXT NOT NULL,
  path           TEXT NOT NULL,
  method         TEXT NOT NULL,
  allowed        BOOLEAN NOT NULL,
  matched_by     TEXT NOT NULL,
  latency_micros BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_traffic_logs_at ON traffic_logs (at DESC);

CREATE TABLE IF NOT EXISTS request_stats (
  minute  TIMESTAMPTZ PRIMARY KEY,
  total   BIGINT NOT NULL DEFAULT 0,
  allowed BIGINT NOT NULL DEFAULT 0,
  denied  BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS rate_limit_state (
  key              TEXT PRIMARY KEY,
  remaining_tokens DOUBLE PRECISION NOT NULL,
  last_refill_time TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS request_counters (
  key          TEXT PRIMARY KEY,
  count        INTEGER NOT NULL,
  window_start TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS upstream_checks (
  id          BIGSERIAL PRIMARY KEY,
  upstream_id TEXT NOT NULL,
  base_url    TEXT NOT NULL,
  up          BOOLEAN NOT NULL,
  http_status INTEGER NULL,
  latency_ms  DOUBLE PRECISION NOT NULL,
  reason      TEXT NOT NULL,
  checked_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_upstream_checks_time ON upstream_checks (upstream_id, checked_at DESC);

CREATE TABLE IF NOT EXISTS alerts (
  upstream_id  TEXT PRIMARY KEY,
  last_state   BOOLEAN NOT NULL,
  last_sent_at TIMESTAMPTZ NULL
);
`

// InitSchema creates all tables when they do not exist yet.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
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
	err := s.pool.QueryRow(ctx,
		`INSERT INTO policies
		   (name, limit_type, replenish_rate, burst, enabled, description,
		    header_name, session_cookie_name, trust_proxy, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 RETURNING id`,
		p.Name, string(p.LimitType), p.ReplenishRate, p.Burst, p.Enabled, p.Description,
		p.HeaderName, p.SessionCookieName, p.TrustProxy, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert policy: %w", err)
	}
	return nil
}

const policyCols = `id, name, limit_type, replenish_rate, burst, enabled, description,
       header_name, session_cookie_name, trust_proxy, created_at, updated_at`

func scanPolicy(row pgx.Row) (*domain.Policy, error) {
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
	rows, err := s.pool.Query(ctx, `SELECT `+policyCols+` FROM policies ORDER BY id`)
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
	p, err := scanPolicy(s.pool.QueryRow(ctx,
		`SELECT `+policyCols+` FROM policies WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get policy: %w", err)
	}
	return p, nil
}

func (s *Store) UpdatePolicy(ctx context.Context, p *domain.Policy) (bool, error) {
	p.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE policies SET
		   name=$2, limit_type=$3, replenish_rate=$4, burst=$5, enabled=$6,
		   description=$7, header_name=$8, session_cookie_name=$9, trust_proxy=$10,
		   updated_at=$11
		 WHERE id=$1`,
		p.ID, p.Name, string(p.LimitType), p.ReplenishRate, p.Burst, p.Enabled,
		p.Description, p.HeaderName, p.SessionCookieName, p.TrustProxy, p.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("update policy: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) DeletePolicy(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM policies WHERE id=$1`, id)
	if err != nil {
		return false, fmt.Errorf("delete policy: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ---- RuleStore ----

func (s *Store) CreateRule(ctx context.Context, r *domain.Rule) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	err := s.pool.QueryRow(ctx,
		`INSERT INTO rules
		   (name, path_pattern, max_requests, window_seconds, enabled, priority,
		    queue_enabled, max_queue_size, delay_per_request_ms, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 RETURNING id`,
		r.Name, r.PathPattern, r.MaxRequests, r.WindowSeconds, r.Enabled, r.Priority,
		r.QueueEnabled, r.MaxQueueSize, r.DelayPerReqMS, r.CreatedAt, r.UpdatedAt,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

const ruleCols = `id, name, path_pattern, max_requests, window_seconds, enabled, priority,
       queue_enabled, max_queue_size, delay_per_request_ms, created_at, updated_at`

func scanRule(row pgx.Row) (*domain.Rule, error) {
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
	rows, err := s.pool.Query(ctx, q)
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
	return s.listRules(ctx, `SELECT `+ruleCols+` FROM rules WHERE enabled ORDER BY priority, id`)
}

func (s *Store) GetRule(ctx context.Context, id int64) (*domain.Rule, error) {
	r, err := scanRule(s.pool.QueryRow(ctx, `SELECT `+ruleCols+` FROM rules WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return r, nil
}

func (s *Store) UpdateRule(ctx context.Context, r *domain.Rule) (bool, error) {
	r.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE rules SET
		   name=$2, path_pattern=$3, max_requests=$4, window_seconds=$5, enabled=$6,
		   priority=$7, queue_enabled=$8, max_queue_size=$9, delay_per_request_ms=$10,
		   updated_at=$11
		 WHERE id=$1`,
		r.ID, r.Name, r.PathPattern, r.MaxRequests, r.WindowSeconds, r.Enabled,
		r.Priority, r.QueueEnabled, r.MaxQueueSize, r.DelayPerReqMS, r.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("update rule: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) UpdateRuleQueue(ctx context.Context, id int64, enabled bool, maxQueue, delayMS int) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE rules SET queue_enabled=$2, max_queue_size=$3, delay_per_request_ms=$4, updated_at=$5
		 WHERE id=$1`,
		id, enabled, maxQueue, delayMS, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("update rule queue: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) DeleteRule(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rules WHERE id=$1`, id)
	if err != nil {
		return false, fmt.Errorf("delete rule: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ---- ConfigStore ----

func (s *Store) AllConfig(ctx context.Context) ([]domain.ConfigEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value, updated_at FROM system_config ORDER BY key`)
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
	err := s.pool.QueryRow(ctx, `SELECT value FROM system_config WHERE key=$1`, key).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get config: %w", err)
	}
	return v, true, nil
}

func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO system_config (key, value, updated_at) VALUES ($1,$2,$3)
		 ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=EXCLUDED.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set config: %w", err)
	}
	return nil
}
