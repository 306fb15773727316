package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/poormans/rategate/internal/domain"
	"github.com/poormans/rategate/internal/repo"
)

// ---- UpstreamResultStore ----

func (s *Store) AppendCheck(ctx context.Context, c *domain.UpstreamCheck) error {
	if c.CheckedAt.IsZero() {
		c.CheckedAt = time.Now().UTC()
	}
	var statusPtr *int
	if c.HTTPStatus != 0 {
		statusPtr = &c.HTTPStatus
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO upstream_checks
		   (upstream_id, base_url, up, http_status, latency_ms, reason, checked_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		string(c.UpstreamID), c.BaseURL, c.Up, statusPtr, c.LatencyMS, c.Reason, c.CheckedAt)
	if err != nil {
		return fmt.Errorf("insert upstream check: %w", err)
	}
	return nil
}

func (s *Store) LatestChecks(ctx context.Context) ([]repo.LatestRow, error) {
	rows, err := s.pool.Query(ctx, `
SELECT DISTINCT ON (upstream_id)
       upstream_id, base_url, up, http_status, latency_ms, reason, checked_at
  FROM upstream_checks
 ORDER BY upstream_id, checked_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("latest checks: %w", err)
	}
	defer rows.Close()

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
