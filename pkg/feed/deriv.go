package feed

import (
	"context"
	"fmt"

	"github.com/zeromicro/go-zero/core/logx"

	"kisfeed/pkg/kis"
)

func init() {
	RegisterFetcher(KindDerivCandle, newDerivFetcher)
}

// derivFetcher polls the futures/options minute-chart endpoint. Same shape as
// the stock fetcher but on the 08:45-15:45 schedule and vendor field names.
type derivFetcher struct {
	client  *kis.Client
	clock   *Clock
	sub     Subscription
	tracker Tracker
}

func newDerivFetcher(deps BuildDeps, sub Subscription) (Fetcher, error) {
	if deps.Client == nil || deps.Clock == nil {
		return nil, fmt.Errorf("deriv fetcher %s: missing client or clock", sub.Label())
	}
	return &derivFetcher{client: deps.Client, clock: deps.Clock, sub: sub}, nil
}

func (f *derivFetcher) Label() string { return f.sub.Label() }

func (f *derivFetcher) Fetch(ctx context.Context) (FetchResult, error) {
	if !f.clock.IsOpen(MarketDeriv) {
		return FetchResult{Skipped: true}, nil
	}
	queryTime := f.clock.Now().Format("150405")
	resp, err := f.client.DerivMinuteChart(ctx, f.sub.Symbol, "", queryTime)
	if err != nil {
		return FetchResult{}, err
	}
	rows := resp.Output2
	if len(rows) == 0 {
		return FetchResult{}, fmt.Errorf("deriv chart %s: empty payload", f.sub.Symbol)
	}
	keys := make([]string, len(rows))
	for i, row := range rows {
		keys[i] = row.Key()
	}
	sessionClose := f.clock.IsSessionClose(MarketDeriv)
	idx, emit, primed := f.tracker.Observe(keys, sessionClose)
	if primed {
		logx.Infow("deriv cursor primed", logx.Field("symbol", f.sub.Symbol), logx.Field("cursor", f.tracker.Cursor()))
		return FetchResult{Skipped: true}, nil
	}
	if !emit {
		return FetchResult{Skipped: true}, nil
	}
	bar, err := derivBar(rows[idx], f.sub, sessionClose)
	if err != nil {
		return FetchResult{}, err
	}
	return FetchResult{Records: []Record{bar}}, nil
}

func derivBar(row kis.DerivCandleRow, sub Subscription, sessionClose bool) (Bar, error) {
	ts, err := barTimestamp(row.Date, row.Hour, sessionClose)
	if err != nil {
		return Bar{}, fmt.Errorf("deriv bar %s: %w", sub.Symbol, err)
	}
	open, high, low, close, volume := row.OHLCV()
	return Bar{
		Symbol:    sub.Symbol,
		Timestamp: ts,
		Timeframe: sub.Timeframe,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
		Market:    MarketDeriv,
	}, nil
}
