package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"kisfeed/internal/cli"
	"kisfeed/internal/config"
	"kisfeed/internal/svc"
	"kisfeed/pkg/dolpha"
	"kisfeed/pkg/feed"
)

const (
	evalOffset      = 3 * time.Second  // Wait past the minute so the collector lands its bar first
	evalTimeout     = 15 * time.Second // Timeout for one evaluation pass
	shutdownTimeout = 10 * time.Second // Grace period for shutdown
)

var configFile = flag.String("f", "etc/kisfeed.yaml", "config file path")

func main() {
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("[main] Starting dolpha1 daemon...")

	appCfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("[main] Failed to load app config: %v", err)
	}

	log.Printf("[main] Configuration loaded:")
	for _, line := range cli.ConfigSummaryLines(appCfg) {
		log.Printf("  - %s", line)
	}

	dcfg := appCfg.Dolpha.Value
	if dcfg == nil {
		log.Fatal("[main] Dolpha daemon requires a dolpha config section")
	}
	svcCtx := svc.NewServiceContext(appCfg)
	if svcCtx.Bars == nil || svcCtx.Store == nil {
		log.Fatal("[main] Dolpha daemon requires Postgres")
	}
	log.Printf("  - Symbol: %s, observe interval: %dm, lookback: %dd",
		dcfg.Symbol, dcfg.ObserveInterval, dcfg.LookbackDays)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if dcfg.BackfillHistory {
		backfillToday(ctx, svcCtx, dcfg)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runEvaluator(ctx, svcCtx, dcfg)
	}()

	log.Println("[main] Dolpha daemon started. Press Ctrl+C to stop.")

	<-ctx.Done()
	log.Println("[main] Shutdown signal received, stopping tasks...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[main] All tasks stopped cleanly")
	case <-shutdownCtx.Done():
		log.Println("[main] Shutdown timeout exceeded, forcing exit")
	}

	log.Println("[main] Dolpha daemon stopped")
}

// backfillToday pages today's derivative session from the vendor and stores
// it, so a mid-session restart still evaluates on a full day.
func backfillToday(ctx context.Context, svcCtx *svc.ServiceContext, dcfg *dolpha.Config) {
	if svcCtx.KIS == nil {
		log.Println("[main] Backfill requested but kis section is missing, skipping")
		return
	}
	sub := feed.Subscription{DataKind: feed.KindDerivCandle, Symbol: dcfg.Symbol, Timeframe: 1}
	date := svcCtx.Clock.Now().In(feed.KST).Format("20060102")

	bfCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	bars, err := feed.BackfillDay(bfCtx, svcCtx.KIS, sub, date)
	if err != nil {
		logx.Errorf("dolpha: backfill %s date=%s err=%v", dcfg.Symbol, date, err)
		return
	}
	if err := svcCtx.Store.UpsertBars(bfCtx, bars); err != nil {
		logx.Errorf("dolpha: persist backfill err=%v", err)
		return
	}
	logx.Infof("dolpha: backfilled %d bars for %s %s", len(bars), dcfg.Symbol, date)
}

// runEvaluator wakes shortly after each minute boundary and evaluates the
// strategy on the stored history.
func runEvaluator(ctx context.Context, svcCtx *svc.ServiceContext, dcfg *dolpha.Config) {
	for {
		if !sleepWithContext(ctx, svcCtx.Clock.UntilNextMinute(evalOffset)) {
			log.Println("[dolpha] Stopping evaluator")
			return
		}
		if !svcCtx.Clock.IsOpen(feed.MarketDeriv) {
			continue
		}
		evaluateOnce(ctx, svcCtx, dcfg)
	}
}

func evaluateOnce(parentCtx context.Context, svcCtx *svc.ServiceContext, dcfg *dolpha.Config) {
	ctx, cancel := context.WithTimeout(parentCtx, evalTimeout)
	defer cancel()

	start := time.Now()
	bars, err := svcCtx.Bars.RecentBars(ctx, dcfg.Symbol, feed.MarketDeriv, dcfg.LookbackDays)
	if err != nil {
		logx.WithContext(ctx).Errorf("dolpha: load bars symbol=%s err=%v", dcfg.Symbol, err)
		return
	}

	sig := dolpha.Evaluate(bars, dcfg)
	// A short history produces a placeholder signal; only evaluated rows
	// reach the table.
	if !sig.Insufficient() {
		if err := svcCtx.Store.UpsertSignal(ctx, sig); err != nil {
			logx.WithContext(ctx).Errorf("dolpha: persist signal err=%v", err)
		}
	}

	logx.Infow("dolpha evaluated",
		logx.Field("symbol", sig.Symbol),
		logx.Field("close", sig.Close),
		logx.Field("monitor", sig.Monitor),
		logx.Field("trade", sig.Trade),
		logx.Field("reason", sig.Reason),
		logx.Field("bars", len(bars)),
		logx.Field("duration_ms", time.Since(start).Milliseconds()),
	)

	if sig.Trade != 0 && svcCtx.Notifier != nil {
		if err := svcCtx.Notifier.Signal(sig); err != nil {
			logx.WithContext(ctx).Errorf("dolpha: notify err=%v", err)
		}
	}

	detail := fmt.Sprintf("reason=%s bars=%d", sig.Reason, len(bars))
	if err := svcCtx.Store.Heartbeat(ctx, "dolpha", "ok", detail); err != nil {
		logx.WithContext(ctx).Errorf("dolpha: heartbeat err=%v", err)
	}
}

// sleepWithContext waits for d, returning false when ctx ends first.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
