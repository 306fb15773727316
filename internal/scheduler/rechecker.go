package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/poormans/rategate/internal/domain"
	"github.com/poormans/rategate/internal/probe"
	"github.com/poormans/rategate/internal/repo"
)

// UpstreamSource yields the backends currently worth watching. The route
// table implements it.
type UpstreamSource interface {
	Upstreams() []domain.Upstream
}

type Rechecker struct {
	Logger      *zap.Logger
	Source      UpstreamSource
	Results     repo.UpstreamResultStore
	Checker     probe.Checker
	Diag        *probe.MultiChecker // secondary probes run when a check fails
	Interval    time.Duration
	Timeout     time.Duration
	Concurrency int
}

func NewRechecker(
	logger *zap.Logger,
	source UpstreamSource,
	results repo.UpstreamResultStore,
	checker probe.Checker,
	interval time.Duration,
	timeout time.Duration,
	concurrency int,
) *Rechecker {
	if concurrency < 1 {
		concurrency = 1
	}
	if interval < 0 {
		interval = 0
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Rechecker{
		Logger:      logger,
		Source:      source,
		Results:     results,
		Checker:     checker,
		Interval:    interval,
		Timeout:     timeout,
		Concurrency: concurrency,
	}
}

// Run starts the loop. It does an immediate pass, then runs each tick.
// Stops when ctx is cancelled.
func (r *Rechecker) Run(ctx context.Context) {
	if r.Interval == 0 {
		// disabled
		r.Logger.Info("rechecker_disabled")
		return
	}
	t := time.NewTicker(r.Interval)
	defer t.Stop()

	// immediate pass
	r.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.Logger.Info("rechecker_stopped")
			return
		case <-t.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Rechecker) runOnce(ctx context.Context) {
	ups := r.Source.Upstreams()
	if len(ups) == 0 {
		return
	}

	sem := make(chan struct{}, r.Concurrency)
	var wg sync.WaitGroup

	for _, upstream := range ups {
		u := upstream // avoid loop var capture
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() { <-sem }()
			defer wg.Done()

			cctx, cancel := context.WithTimeout(ctx, r.Timeout)
			defer cancel()

			out := r.Checker.Check(cctx, u.BaseURL)

			reason := out.Message
			if !out.Success && r.Diag != nil {
				// fold secondary probe outcomes into the reason,
				// e.g. "connection refused dns=NXDOMAIN"
				for _, extra := range r.Diag.Run(cctx, u.BaseURL) {
					reason = strings.TrimSpace(fmt.Sprintf("%s %s=%s",
						reason, strings.ToLower(extra.Name), extra.Message))
				}
			}

			uc := &domain.UpstreamCheck{
				UpstreamID: u.ID,
				BaseURL:    u.BaseURL,
				Up:         out.Success,
				HTTPStatus: out.StatusCode,
				LatencyMS:  out.LatencyMS,
				Reason:     reason,
				CheckedAt:  time.Now().UTC(),
			}
			if err := r.Results.AppendCheck(ctx, uc); err != nil {
				r.Logger.Warn("rechecker_append_error",
					zap.String("upstream_id", string(u.ID)),
					zap.String("base_url", u.BaseURL),
					zap.Error(err),
				)
			} else {
				r.Logger.Debug("rechecker_checked",
					zap.String("upstream_id", string(u.ID)),
					zap.String("base_url", u.BaseURL),
					zap.Int("status", out.StatusCode),
					zap.Bool("up", out.Success),
					zap.Float64("latency_ms", out.LatencyMS),
					zap.String("reason", reason),
				)
			}
		}()
	}

	wg.Wait()
}
