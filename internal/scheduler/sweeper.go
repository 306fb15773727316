package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/poormans/rategate/internal/antibot"
	"github.com/poormans/rategate/internal/ratelimit"
)

const defaultRetention = time.Hour

// Sweeper clears aged-out limiter state and expired form tokens. A bucket
// or counter idle for longer than Retention cannot influence any window
// that is still open.
type Sweeper struct {
	Logger    *zap.Logger
	Engine    *ratelimit.Engine
	Tokens    *antibot.TokenStore
	Interval  time.Duration
	Retention time.Duration
}

func NewSweeper(logger *zap.Logger, engine *ratelimit.Engine, tokens *antibot.TokenStore, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		Logger:    logger,
		Engine:    engine,
		Tokens:    tokens,
		Interval:  interval,
		Retention: defaultRetention,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("sweeper_stopped")
			return
		case <-t.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	swept, err := s.Engine.SweepIdle(ctx, time.Now().Add(-s.Retention))
	if err != nil {
		s.Logger.Warn("sweeper_limiter_error", zap.Error(err))
	}

	expired := 0
	if s.Tokens != nil {
		expired = s.Tokens.Sweep()
	}

	if swept > 0 || expired > 0 {
		s.Logger.Debug("sweeper_swept",
			zap.Int64("limiter_entries", swept),
			zap.Int("tokens", expired),
		)
	}
}
