package scheduler

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/poormans/rategate/internal/antibot"
	"github.com/poormans/rategate/internal/ratelimit"
	"github.com/poormans/rategate/internal/repo/memory"
)

func TestSweeper_SweepsLimiterAndTokens(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	engine := ratelimit.New(store, time.Hour, zap.NewNop())
	if err := engine.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	tokens := antibot.NewTokenStore(10 * time.Millisecond)
	if _, err := tokens.Mint(); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	s := NewSweeper(zap.NewNop(), engine, tokens, 15*time.Millisecond)
	s.Retention = 0 // everything idle right now is fair game

	cctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		s.Run(cctx)
		close(done)
	}()

	time.Sleep(40 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}

	if tokens.Len() != 0 {
		t.Fatalf("expired token should be swept, %d left", tokens.Len())
	}
}
