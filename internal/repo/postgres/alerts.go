package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/poormans/rategate/internal/repo"
)

func (s *Store) GetAlert(ctx context.Context, upstreamID string) (*repo.AlertRecord, error) {
	const q = `SELECT last_state, last_sent_at FROM alerts WHERE upstream_id=$1`
	var r repo.AlertRecord
	r.UpstreamID = upstreamID
	var lastSent *time.Time
	err := s.pool.QueryRow(ctx, q, upstreamID).Scan(&r.LastState, &lastSent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get alert: %w", err)
	}
	r.LastSentAt = lastSent
	return &r, nil
}

func (s *Store) SetAlert(ctx context.Context, upstreamID string, lastState bool, sentAt time.Time) error {
	const q = `
		INSERT INTO alerts (upstream_id, last_state, last_sent_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (upstream_id)
		DO UPDATE SET last_state=EXCLUDED.last_state, last_sent_at=EXCLUDED.last_sent_at
	`
	var ts *time.Time
	if !sentAt.IsZero() {
		ts = &sentAt
	}
	_, err := s.pool.Exec(ctx, q, upstreamID, lastState, ts)
	if err != nil {
		return fmt.Errorf("set alert: %w", err)
	}
	return nil
}
