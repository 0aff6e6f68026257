package repo

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kisfeed/pkg/feed"
)

type fakeQuerier struct {
	query string
	args  []any
	rows  []barRow
	err   error
}

func (f *fakeQuerier) QueryRowsCtx(ctx context.Context, v any, query string, args ...any) error {
	f.query = query
	f.args = args
	if f.err != nil {
		return f.err
	}
	*(v.(*[]barRow)) = f.rows
	return nil
}

func TestRecentBars_QueriesRoutedTable(t *testing.T) {
	stamp := time.Date(2025, 9, 2, 0, 4, 0, 0, time.UTC)
	fake := &fakeQuerier{rows: []barRow{{
		Timestamp: stamp,
		Symbol:    "106W09",
		Timeframe: 1,
		Open:      340, High: 341, Low: 339.5, Close: 340.5,
		Volume: 100,
	}}}
	r := NewBarRepo(fake)

	bars, err := r.RecentBars(context.Background(), "106W09", feed.MarketDeriv, 30)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	require.Contains(t, fake.query, "FROM futures_106")
	require.True(t, strings.Contains(fake.query, "ORDER BY timestamp ASC"))
	require.Equal(t, "106W09", fake.args[0])

	cutoff, ok := fake.args[1].(time.Time)
	require.True(t, ok)
	require.True(t, time.Since(cutoff) > 29*24*time.Hour)

	// Stored UTC stamps come back in exchange time.
	require.Equal(t, feed.KST, bars[0].Timestamp.Location())
	require.True(t, stamp.Equal(bars[0].Timestamp))
	require.Equal(t, feed.MarketDeriv, bars[0].Market)
}

func TestRecentBars_StockTable(t *testing.T) {
	fake := &fakeQuerier{}
	_, err := NewBarRepo(fake).RecentBars(context.Background(), "005930", feed.MarketStock, 7)
	require.NoError(t, err)
	require.Contains(t, fake.query, "FROM stocks_1m")
}

func TestRecentBars_WrapsError(t *testing.T) {
	fake := &fakeQuerier{err: errors.New("boom")}
	_, err := NewBarRepo(fake).RecentBars(context.Background(), "106W09", feed.MarketDeriv, 30)
	require.ErrorContains(t, err, "recent bars 106W09")
}
