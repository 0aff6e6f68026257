package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"kisfeed/pkg/kis"
)

func init() {
	RegisterFetcher(KindStockCandle, newStockFetcher)
}

// stockFetcher polls the stock minute-chart endpoint and emits the completed
// bar selected by its tracker.
type stockFetcher struct {
	client  *kis.Client
	clock   *Clock
	sub     Subscription
	tracker Tracker
}

func newStockFetcher(deps BuildDeps, sub Subscription) (Fetcher, error) {
	if deps.Client == nil || deps.Clock == nil {
		return nil, fmt.Errorf("stock fetcher %s: missing client or clock", sub.Label())
	}
	return &stockFetcher{client: deps.Client, clock: deps.Clock, sub: sub}, nil
}

func (f *stockFetcher) Label() string { return f.sub.Label() }

func (f *stockFetcher) Fetch(ctx context.Context) (FetchResult, error) {
	if !f.clock.IsOpen(MarketStock) {
		return FetchResult{Skipped: true}, nil
	}
	queryTime := f.clock.Now().Format("150405")
	resp, err := f.client.StockMinuteChart(ctx, f.sub.Symbol, queryTime)
	if err != nil {
		return FetchResult{}, err
	}
	rows := resp.Output2
	if len(rows) == 0 {
		return FetchResult{}, fmt.Errorf("stock chart %s: empty payload", f.sub.Symbol)
	}
	keys := make([]string, len(rows))
	for i, row := range rows {
		keys[i] = row.Key()
	}
	sessionClose := f.clock.IsSessionClose(MarketStock)
	idx, emit, primed := f.tracker.Observe(keys, sessionClose)
	if primed {
		logx.Infow("stock cursor primed", logx.Field("symbol", f.sub.Symbol), logx.Field("cursor", f.tracker.Cursor()))
		return FetchResult{Skipped: true}, nil
	}
	if !emit {
		return FetchResult{Skipped: true}, nil
	}
	bar, err := stockBar(rows[idx], f.sub, sessionClose)
	if err != nil {
		return FetchResult{}, err
	}
	return FetchResult{Records: []Record{bar}}, nil
}

func stockBar(row kis.StockCandleRow, sub Subscription, sessionClose bool) (Bar, error) {
	ts, err := barTimestamp(row.Date, row.Hour, sessionClose)
	if err != nil {
		return Bar{}, fmt.Errorf("stock bar %s: %w", sub.Symbol, err)
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
		Market:    MarketStock,
	}, nil
}

// barTimestamp parses the vendor's date + time-of-day stamp. The vendor labels
// a bar by its opening minute; labelling by close keeps consecutive bars
// strictly ordered, so one minute is added everywhere except at session close
// where the stamp is already the final minute.
func barTimestamp(date, hour string, sessionClose bool) (time.Time, error) {
	ts, err := time.ParseInLocation("20060102150405", date+hour, KST)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse bar stamp %s %s: %w", date, hour, err)
	}
	if !sessionClose {
		ts = ts.Add(time.Minute)
	}
	return ts, nil
}
