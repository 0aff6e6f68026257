package feed

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

const defaultFetchTimeout = 8 * time.Second

// CycleStats summarises one polling cycle for audit hooks.
type CycleStats struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Attempts   int
	Emitted    int
	Skipped    int
	Failed     []string
}

// Poller drives all fetchers on a minute-aligned cadence and pushes the
// records they emit onto the output channel.
//
// Each cycle wakes shortly after the minute boundary, then walks the fetchers
// serially with a short pause between them. Fetchers that fail stay on a
// shared pending list and the whole list is retried together on a widening
// delay ladder; a fetcher that succeeds (or skips) drops off. The ladder is
// cycle-wide so one flaky endpoint cannot starve the others of retries.
type Poller struct {
	fetchers  []Fetcher
	clock     *Clock
	cfg       PollConfig
	out       chan<- Record
	cycleHook func(CycleStats)
	delayFn   func(round int) time.Duration
}

// PollerOption customises a Poller.
type PollerOption func(*Poller)

// WithCycleHook installs a callback invoked after every cycle.
func WithCycleHook(hook func(CycleStats)) PollerOption {
	return func(p *Poller) { p.cycleHook = hook }
}

// WithRetryDelay overrides the delay ladder between retry rounds.
func WithRetryDelay(fn func(round int) time.Duration) PollerOption {
	return func(p *Poller) {
		if fn != nil {
			p.delayFn = fn
		}
	}
}

// NewPoller wires fetchers to an output channel under the given cadence.
func NewPoller(fetchers []Fetcher, clock *Clock, cfg PollConfig, out chan<- Record, opts ...PollerOption) *Poller {
	p := &Poller{fetchers: fetchers, clock: clock, cfg: cfg, out: out, delayFn: retryDelay}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run blocks until the context is cancelled, executing one cycle per minute.
func (p *Poller) Run(ctx context.Context) {
	if len(p.fetchers) == 0 {
		logx.Info("poller: no fetchers configured, nothing to do")
		return
	}
	for {
		wait := p.clock.UntilNextMinute(p.cfg.Offset)
		if !sleepWithContext(ctx, wait) {
			return
		}
		p.runCycle(ctx)
	}
}

// RunCycle executes a single polling cycle immediately. Exposed for callers
// that manage their own cadence.
func (p *Poller) RunCycle(ctx context.Context) CycleStats {
	return p.runCycle(ctx)
}

func (p *Poller) runCycle(ctx context.Context) CycleStats {
	stats := CycleStats{StartedAt: p.clock.Now()}
	pending := make([]Fetcher, len(p.fetchers))
	copy(pending, p.fetchers)

	attempts := p.cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts && len(pending) > 0; attempt++ {
		if attempt > 0 {
			if !sleepWithContext(ctx, p.delayFn(attempt-1)) {
				break
			}
		}
		stats.Attempts = attempt + 1
		remaining := pending[:0]
		for i, fetcher := range pending {
			if ctx.Err() != nil {
				return p.finishCycle(ctx, stats, pending[i:])
			}
			reqCtx, cancel := context.WithTimeout(ctx, defaultFetchTimeout)
			result, err := fetcher.Fetch(reqCtx)
			cancel()
			switch {
			case err != nil:
				logx.WithContext(ctx).Errorf("poll: fetch %s attempt=%d err=%v", fetcher.Label(), attempt+1, err)
				remaining = append(remaining, fetcher)
			case result.Skipped:
				stats.Skipped++
			default:
				if !p.enqueue(ctx, result.Records) {
					return p.finishCycle(ctx, stats, pending[i:])
				}
				stats.Emitted += len(result.Records)
			}
			if p.cfg.Pause > 0 && i < len(pending)-1 {
				if !sleepWithContext(ctx, p.cfg.Pause) {
					return p.finishCycle(ctx, stats, remaining)
				}
			}
		}
		pending = remaining
	}
	return p.finishCycle(ctx, stats, pending)
}

func (p *Poller) finishCycle(ctx context.Context, stats CycleStats, failed []Fetcher) CycleStats {
	for _, fetcher := range failed {
		stats.Failed = append(stats.Failed, fetcher.Label())
	}
	stats.FinishedAt = p.clock.Now()
	if len(stats.Failed) > 0 {
		logx.WithContext(ctx).Errorf("poll: cycle gave up on %v after %d attempts", stats.Failed, stats.Attempts)
	}
	if p.cycleHook != nil {
		p.cycleHook(stats)
	}
	return stats
}

func (p *Poller) enqueue(ctx context.Context, records []Record) bool {
	for _, rec := range records {
		select {
		case <-ctx.Done():
			return false
		case p.out <- rec:
		}
	}
	return true
}

// retryDelay widens the wait between retry rounds: 2.0s, 2.3s, 2.6s, 2.9s,
// 3.2s, then 4.0s flat.
func retryDelay(round int) time.Duration {
	if round < 5 {
		return 2*time.Second + time.Duration(round)*300*time.Millisecond
	}
	return 4 * time.Second
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
