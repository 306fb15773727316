package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/poormans/rategate/internal/domain"
	"github.com/poormans/rategate/internal/repo"
)

const (
	snapshotWindow = 24 * time.Hour
	snapshotLogs   = 100
)

// Store is the slice of the repository the analytics service touches.
type Store interface {
	repo.StatsStore
	repo.TrafficLogStore
}

// Service glues the collector, the stats store and the stream together.
type Service struct {
	store Store
	coll  *Collector
	bcast *Broadcaster
}

func NewService(store Store) *Service {
	return &Service{
		store: store,
		coll:  NewCollector(),
		bcast: NewBroadcaster(),
	}
}

// Record counts one decision. Called on the hot path.
func (s *Service) Record(allowed bool) {
	s.coll.Record(allowed)
}

// Flush drains the collector into its minute bucket and pushes an update
// frame. A drain with nothing in it writes and publishes nothing.
func (s *Service) Flush(ctx context.Context, now time.Time) error {
	row := s.coll.Drain(now)
	if row.Total == 0 {
		return nil
	}
	if err := s.store.AddBucket(ctx, row); err != nil {
		return fmt.Errorf("flush stats: %w", err)
	}
	sum, err := s.Summary(ctx, now, 24)
	if err != nil {
		return err
	}
	s.bcast.Publish(Frame{
		Type:    FrameUpdate,
		At:      now,
		Summary: sum,
		Delta:   &row,
	})
	return nil
}

// Summary aggregates the trailing window, hours <= 0 meaning 24.
func (s *Service) Summary(ctx context.Context, now time.Time, hours int) (domain.Summary, error) {
	if hours <= 0 {
		hours = 24
	}
	sum, err := s.store.Summarize(ctx, now.Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		return domain.Summary{}, fmt.Errorf("summarize stats: %w", err)
	}
	sum.WindowHours = hours
	return sum, nil
}

// Series returns the per-minute rows of the trailing window.
func (s *Service) Series(ctx context.Context, now time.Time, hours int) ([]domain.StatsRow, error) {
	if hours <= 0 {
		hours = 24
	}
	rows, err := s.store.Series(ctx, now.Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("stats series: %w", err)
	}
	return rows, nil
}

// Snapshot builds the frame a fresh stream subscriber receives.
func (s *Service) Snapshot(ctx context.Context, now time.Time) (Frame, error) {
	sum, err := s.Summary(ctx, now, 24)
	if err != nil {
		return Frame{}, err
	}
	series, err := s.store.Series(ctx, now.Add(-snapshotWindow))
	if err != nil {
		return Frame{}, fmt.Errorf("stats series: %w", err)
	}
	logs, err := s.store.RecentLogs(ctx, snapshotLogs)
	if err != nil {
		return Frame{}, fmt.Errorf("recent logs: %w", err)
	}
	return Frame{
		Type:       FrameSnapshot,
		At:         now,
		Summary:    sum,
		Series:     series,
		RecentLogs: logs,
	}, nil
}

// Subscribe attaches a stream listener.
func (s *Service) Subscribe() (<-chan Frame, func()) {
	return s.bcast.Subscribe()
}
