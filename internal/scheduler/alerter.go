package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/poormans/rategate/internal/repo"
)

type AlerterConfig struct {
	AlertOnRecovery bool
	Cooldown        time.Duration
	PollInterval    time.Duration
}

type Alerter struct {
	results  repo.UpstreamResultStore
	alertDB  repo.AlertStore
	notifier interface {
		Send(context.Context, string, string) error
	}
	cfg AlerterConfig
}

func NewAlerter(
	results repo.UpstreamResultStore,
	alertDB repo.AlertStore,
	notifier interface {
		Send(context.Context, string, string) error
	},
	cfg AlerterConfig,
) *Alerter {
	return &Alerter{
		results:  results,
		alertDB:  alertDB,
		notifier: notifier,
		cfg:      cfg,
	}
}

func (a *Alerter) Run(ctx context.Context) error {
	t := time.NewTicker(a.cfg.PollInterval)
	defer t.Stop()

	// initial pass
	_ = a.scanOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			_ = a.scanOnce(ctx)
		}
	}
}

func (a *Alerter) scanOnce(ctx context.Context) error {
	rows, err := a.results.LatestChecks(ctx)
	if err != nil {
		return err
	}

	now := time.Now()

	for _, r := range rows {
		rec, _ := a.alertDB.GetAlert(ctx, r.UpstreamID)

		// Has the up/down state changed compared to what we last recorded?
		stateChanged := rec == nil || rec.LastState != r.Up

		// Cooldown only matters for DOWN alerts (suppresses noisy repeats).
		cooled := true
		if rec != nil && rec.LastSentAt != nil {
			cooled = now.Sub(*rec.LastSentAt) >= a.cfg.Cooldown
		}

		downAlert := stateChanged && !r.Up && cooled
		recoveryAlert := stateChanged && r.Up && a.cfg.AlertOnRecovery // bypass cooldown

		if downAlert || recoveryAlert {
			title := "🔴 Upstream DOWN"
			if r.Up {
				title = "🟢 Upstream RECOVERED"
			}

			httpTxt := "n/a"
			if r.HTTPStatus != nil {
				httpTxt = fmt.Sprintf("%d", *r.HTTPStatus)
			}

			latencyTxt := "n/a"
			if r.LatencyMS != nil {
				latencyTxt = fmt.Sprintf("%.0f ms", *r.LatencyMS)
			}

			text := fmt.Sprintf(
				"Upstream: %s\nURL: %s\nHTTP: %s\nLatency: %s\nReason: %s\nChecked: %s",
				r.UpstreamID, r.BaseURL, httpTxt, latencyTxt, r.Reason, r.CheckedAt.Format(time.RFC3339),
			)

			// Send is best effort; the send time is recorded either way.
			_ = a.notifier.Send(ctx, title, text)
			_ = a.alertDB.SetAlert(ctx, r.UpstreamID, r.Up, now)
			continue
		}

		// If state changed but we did not send (e.g. DOWN within cooldown or
		// recovery alerts disabled), still record the new state without a send time.
		if stateChanged {
			_ = a.alertDB.SetAlert(ctx, r.UpstreamID, r.Up, time.Time{})
		}
	}

	return nil
}
