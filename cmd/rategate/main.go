package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/poormans/rategate/internal/analytics"
	"github.com/poormans/rategate/internal/antibot"
	"github.com/poormans/rategate/internal/config"
	"github.com/poormans/rategate/internal/gateway"
	"github.com/poormans/rategate/internal/httpapi"
	"github.com/poormans/rategate/internal/logging"
	"github.com/poormans/rategate/internal/notify"
	"github.com/poormans/rategate/internal/probe"
	"github.com/poormans/rategate/internal/ratelimit"
	"github.com/poormans/rategate/internal/repo"
	"github.com/poormans/rategate/internal/repo/memory"
	"github.com/poormans/rategate/internal/repo/postgres"
	"github.com/poormans/rategate/internal/repo/sqlite"
	"github.com/poormans/rategate/internal/scheduler"
)

func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store_open_error", zap.Error(err))
	}
	defer closeStore()

	proxy, err := gateway.New(cfg.Routes, logger)
	if err != nil {
		logger.Fatal("routes_error", zap.Error(err))
	}

	engine := ratelimit.New(store, cfg.ConfigCacheTTL, logger)
	if err := engine.Refresh(ctx); err != nil {
		logger.Warn("initial_refresh_error", zap.Error(err))
	}

	svc := analytics.NewService(store)
	tokens := antibot.NewTokenStore(0)

	api := httpapi.NewServer(logger, store, engine, svc, tokens, proxy)
	api.AdminKeys = cfg.AdminKeys
	api.AdminAllowRemote = cfg.AdminAllowRemote

	public := &http.Server{Addr: cfg.PublicAddr, Handler: api.PublicRouter()}
	admin := &http.Server{Addr: cfg.AdminAddr, Handler: api.AdminRouter()}

	var wg sync.WaitGroup

	if cfg.RecheckInterval > 0 {
		checker := &probe.RetryChecker{
			Inner:    probe.NewHTTPChecker(cfg.RecheckTimeout),
			Attempts: cfg.RetryAttempts,
			Backoff:  cfg.RetryBackoff,
		}
		rechecker := scheduler.NewRechecker(
			logger, proxy, store, checker,
			cfg.RecheckInterval, cfg.RecheckTimeout, cfg.RecheckConcurrency,
		)
		rechecker.Diag = probe.NewMultiChecker(probe.NewDNSChecker())

		notifier := notify.Multi{notify.NewLog(logger)}
		if slack := notify.NewSlack(cfg.SlackWebhook); slack != nil {
			notifier = append(notifier, slack)
		}
		alerter := scheduler.NewAlerter(store, store, notifier, scheduler.AlerterConfig{
			AlertOnRecovery: cfg.AlertOnRecovery,
			Cooldown:        cfg.AlertCooldown,
			PollInterval:    cfg.RecheckInterval,
		})

		wg.Add(2)
		go func() { defer wg.Done(); rechecker.Run(ctx) }()
		go func() { defer wg.Done(); _ = alerter.Run(ctx) }()
	}

	flusher := scheduler.NewFlusher(logger, svc, cfg.StatsFlushEvery)
	sweeper := scheduler.NewSweeper(logger, engine, tokens, cfg.SweepEvery)
	wg.Add(2)
	go func() { defer wg.Done(); flusher.Run(ctx) }()
	go func() { defer wg.Done(); sweeper.Run(ctx) }()

	serveErr := make(chan error, 2)
	go func() {
		logger.Info("public_listen", zap.String("addr", cfg.PublicAddr))
		if err := public.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	go func() {
		logger.Info("admin_listen", zap.String("addr", cfg.AdminAddr))
		if err := admin.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal")
	case err := <-serveErr:
		logger.Error("listen_error", zap.Error(err))
		stop()
	}

	// drain in-flight requests, queued waiters included
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := public.Shutdown(shutdownCtx); err != nil {
		logger.Warn("public_shutdown_error", zap.Error(err))
	}
	if err := admin.Shutdown(shutdownCtx); err != nil {
		logger.Warn("admin_shutdown_error", zap.Error(err))
	}

	wg.Wait()
	logger.Info("stopped")
}

// openStore picks the adapter from the DSN and readies its schema.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.Store, func(), error) {
	driver := cfg.DBDriver()
	switch driver {
	case config.DriverPostgres:
		st, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := st.InitSchema(ctx); err != nil {
			st.Close()
			return nil, nil, err
		}
		logger.Info("store_open", zap.String("driver", driver))
		return st, st.Close, nil
	case config.DriverSQLite:
		st, err := sqlite.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := st.InitSchema(ctx); err != nil {
			st.Close()
			return nil, nil, err
		}
		logger.Info("store_open", zap.String("driver", driver))
		return st, st.Close, nil
	default:
		logger.Info("store_open", zap.String("driver", driver))
		st := memory.New()
		return st, st.Close, nil
	}
}
