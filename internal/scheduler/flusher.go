package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/poormans/rategate/internal/analytics"
)

// Flusher drains the analytics counters into their minute buckets on a
// fixed cadence and performs one last drain on shutdown.
type Flusher struct {
	Logger   *zap.Logger
	Service  *analytics.Service
	Interval time.Duration
}

func NewFlusher(logger *zap.Logger, svc *analytics.Service, interval time.Duration) *Flusher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Flusher{Logger: logger, Service: svc, Interval: interval}
}

func (f *Flusher) Run(ctx context.Context) {
	t := time.NewTicker(f.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			// the parent ctx is gone, give the last drain its own deadline
			fctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := f.Service.Flush(fctx, time.Now()); err != nil {
				f.Logger.Warn("flusher_final_drain_error", zap.Error(err))
			}
			cancel()
			f.Logger.Info("flusher_stopped")
			return
		case <-t.C:
			if err := f.Service.Flush(ctx, time.Now()); err != nil {
				f.Logger.Warn("flusher_drain_error", zap.Error(err))
			}
		}
	}
}
