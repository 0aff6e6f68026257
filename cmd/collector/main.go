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
	"kisfeed/pkg/feed"
	"kisfeed/pkg/journal"
)

const shutdownTimeout = 10 * time.Second // Grace period for shutdown

var configFile = flag.String("f", "etc/kisfeed.yaml", "config file path")

func main() {
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("[main] Starting collector...")

	appCfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("[main] Failed to load app config: %v", err)
	}

	log.Printf("[main] Configuration loaded:")
	for _, line := range cli.ConfigSummaryLines(appCfg) {
		log.Printf("  - %s", line)
	}

	if appCfg.Feed.Value == nil {
		log.Fatal("[main] Collector requires a feed config section")
	}

	svcCtx := svc.NewServiceContext(appCfg)
	if len(svcCtx.Fetchers) == 0 {
		log.Fatal("[main] No subscriptions configured, nothing to collect")
	}
	log.Printf("  - Subscriptions: %d", len(svcCtx.Fetchers))

	var journalW *journal.Writer
	if appCfg.JournalDir != "" {
		journalW = journal.NewWriter(appCfg.JournalDir)
		log.Printf("  - Journal dir: %s", appCfg.JournalDir)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	// Destination for polled records: the batch writer when Postgres is
	// configured, otherwise a log-only sink.
	var out chan<- feed.Record
	if svcCtx.Writer != nil {
		out = svcCtx.Writer.Source()
		wg.Add(1)
		go func() {
			defer wg.Done()
			svcCtx.Writer.Run(ctx)
		}()
	} else {
		log.Println("[main] Postgres not configured, records are logged only")
		sink := make(chan feed.Record, 256)
		out = sink
		wg.Add(1)
		go func() {
			defer wg.Done()
			runLogSink(ctx, sink)
		}()
	}

	hook := func(stats feed.CycleStats) {
		onCycle(ctx, svcCtx, journalW, stats)
	}
	poller := feed.NewPoller(svcCtx.Fetchers, svcCtx.Clock, appCfg.Feed.Value.Poll, out, feed.WithCycleHook(hook))

	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()

	log.Println("[main] Collector started. Press Ctrl+C to stop.")
	heartbeat(svcCtx, "starting")

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

	heartbeat(svcCtx, "stopped")
	log.Println("[main] Collector stopped")
}

// heartbeat records a lifecycle status when the store is wired.
func heartbeat(svcCtx *svc.ServiceContext, status string) {
	if svcCtx.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svcCtx.Store.Heartbeat(ctx, "collector", status, ""); err != nil {
		logx.Errorf("collector: heartbeat err=%v", err)
	}
}

// onCycle logs cycle stats, journals them and records a heartbeat.
func onCycle(ctx context.Context, svcCtx *svc.ServiceContext, journalW *journal.Writer, stats feed.CycleStats) {
	duration := stats.FinishedAt.Sub(stats.StartedAt)
	logx.Infow("poll cycle finished",
		logx.Field("attempts", stats.Attempts),
		logx.Field("emitted", stats.Emitted),
		logx.Field("skipped", stats.Skipped),
		logx.Field("failed", len(stats.Failed)),
		logx.Field("duration_ms", duration.Milliseconds()),
	)

	if journalW != nil {
		rec := &journal.CycleRecord{
			Timestamp:  stats.StartedAt,
			DurationMs: duration.Milliseconds(),
			Attempts:   stats.Attempts,
			Emitted:    stats.Emitted,
			Skipped:    stats.Skipped,
			Failed:     stats.Failed,
			Success:    len(stats.Failed) == 0,
		}
		if _, err := journalW.WriteCycle(rec); err != nil {
			logx.Errorf("collector: journal cycle err=%v", err)
		}
	}

	if svcCtx.Store != nil {
		status := "ok"
		if len(stats.Failed) > 0 {
			status = "degraded"
		}
		detail := fmt.Sprintf("attempts=%d emitted=%d skipped=%d failed=%d",
			stats.Attempts, stats.Emitted, stats.Skipped, len(stats.Failed))
		hbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := svcCtx.Store.Heartbeat(hbCtx, "collector", status, detail); err != nil {
			logx.Errorf("collector: heartbeat err=%v", err)
		}
	}
}

// runLogSink drains records when no database is wired.
func runLogSink(ctx context.Context, sink <-chan feed.Record) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-sink:
			switch rec := rec.(type) {
			case feed.Bar:
				logx.Infof("bar %s %s o=%.2f h=%.2f l=%.2f c=%.2f v=%d",
					rec.Symbol, rec.Timestamp.Format("15:04"), rec.Open, rec.High, rec.Low, rec.Close, rec.Volume)
			case feed.ChainSnapshot:
				logx.Infof("chain %s %s calls=%d puts=%d",
					rec.UnderlyingSymbol, rec.Timestamp.Format("15:04"), len(rec.Calls), len(rec.Puts))
			}
		}
	}
}
