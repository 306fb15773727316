package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/poormans/rategate/internal/domain"
)

// ---- TrafficLogStore ----

func (s *Store) AppendLog(ctx context.Context, l *domain.TrafficLog) error {
	if l.At.IsZero() {
		l.At = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO traffic_logs (at, client_key, path, method, allowed, matched_by, latency_micros)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 RETURNING id`,
		l.At, l.ClientKey, l.Path, l.Method, l.Allowed, l.MatchedBy, l.LatencyMicros,
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("insert traffic log: %w", err)
	}
	return nil
}

func (s *Store) RecentLogs(ctx context.Context, limit int) ([]domain.TrafficLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, at, client_key, path, method, allowed, matched_by, latency_micros
		   FROM traffic_logs
		  ORDER BY at DESC, id DESC
		  LIMIT $1`, limit)
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
	_, err := s.pool.Exec(ctx,
		`INSERT INTO request_stats (minute, total, allowed, denied)
		 VALUES ($1,$2,$3,$4)
		 ON CONFLICT (minute) DO UPDATE SET
		   total   = request_stats.total   + EXCLUDED.total,
		   allowed = request_stats.allowed + EXCLUDED.allowed,
		   denied  = request_stats.denied  + EXCLUDED.denied`,
		row.Minute.Truncate(time.Minute), row.Total, row.Allowed, row.Denied)
	if err != nil {
		return fmt.Errorf("upsert stats bucket: %w", err)
	}
	return nil
}

func (s *Store) Series(ctx context.Context, since time.Time) ([]domain.StatsRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT minute, total, allowed, denied
		   FROM request_stats
		  WHERE minute >= $1
		  ORDER BY minute`, since)
	if err != nil {
		return nil, fmt.Errorf("stats series: %w", err)
	}
	defer rows.Close()

	var out []domain.StatsRow
	for rows.Next() {
		var r domain.StatsRow
		if err := rows.Scan(&r.Minute, &r.Total, &r.Allowed, &r.Denied); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Summarize(ctx context.Context, since time.Time) (domain.Summary, error) {
	var sum domain.Summary
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(total),0), COALESCE(SUM(allowed),0), COALESCE(SUM(denied),0)
		   FROM request_stats
		  WHERE minute >= $1`, since).
		Scan(&sum.Total, &sum.Allowed, &sum.Denied)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("stats summary: %w", err)
	}
	sum.ComputeRate()
	return sum, nil
}
