package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ---- BucketStateStore ----

func (s *Store) LoadBucket(ctx context.Context, key string) (float64, time.Time, bool, error) {
	var tokens float64
	var refilledAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT remaining_tokens, last_refill_time FROM rate_limit_state WHERE key=$1`, key).
		Scan(&tokens, &refilledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, time.Time{}, false, nil
		}
		return 0, time.Time{}, false, fmt.Errorf("load bucket: %w", err)
	}
	return tokens, refilledAt, true, nil
}

func (s *Store) SaveBucket(ctx context.Context, key string, tokens float64, refilledAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rate_limit_state (key, remaining_tokens, last_refill_time)
		 VALUES ($1,$2,$3)
		 ON CONFLICT (key) DO UPDATE SET
		   remaining_tokens = EXCLUDED.remaining_tokens,
		   last_refill_time = EXCLUDED.last_refill_time`,
		key, tokens, refilledAt)
	if err != nil {
		return fmt.Errorf("save bucket: %w", err)
	}
	return nil
}

func (s *Store) DeleteStaleBuckets(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rate_limit_state WHERE last_refill_time < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("delete stale buckets: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ---- CounterStore ----

func (s *Store) IncrCounter(ctx context.Context, key string, window time.Duration, now time.Time) (int, error) {
	cutoff := now.Add(-window)
	var count int
	// The CASE resets an aged-out window atomically in one round trip.
	err := s.pool.QueryRow(ctx,
		`INSERT INTO request_counters (key, count, window_start)
		 VALUES ($1, 1, $2)
		 ON CONFLICT (key) DO UPDATE SET
		   count = CASE WHEN request_counters.window_start <= $3
		                THEN 1 ELSE request_counters.count + 1 END,
		   window_start = CASE WHEN request_counters.window_start <= $3
		                       THEN $2 ELSE request_counters.window_start END
		 RETURNING count`,
		key, now, cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("incr counter: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteStaleCounters(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM request_counters WHERE window_start < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("delete stale counters: %w", err)
	}
	return tag.RowsAffected(), nil
}
