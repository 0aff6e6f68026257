package repo

import (
	"context"
	"fmt"
	"time"

	"kisfeed/internal/persistence/feedstore"
	"kisfeed/pkg/feed"
)

// querier is the subset of sqlx.SqlConn the repo needs.
type querier interface {
	QueryRowsCtx(ctx context.Context, v any, query string, args ...any) error
}

// BarRepo reads stored bars back for strategy evaluation.
type BarRepo struct {
	conn querier
}

func NewBarRepo(conn querier) *BarRepo {
	return &BarRepo{conn: conn}
}

type barRow struct {
	Timestamp time.Time `db:"timestamp"`
	Symbol    string    `db:"symbol"`
	Timeframe int       `db:"timeframe"`
	Open      float64   `db:"open"`
	High      float64   `db:"high"`
	Low       float64   `db:"low"`
	Close     float64   `db:"close"`
	Volume    int64     `db:"volume"`
}

// RecentBars returns bars for a symbol from the last N calendar days,
// oldest first.
func (r *BarRepo) RecentBars(ctx context.Context, symbol string, market feed.MarketKind, days int) ([]feed.Bar, error) {
	if days <= 0 {
		days = 1
	}
	table := feedstore.TableFor(symbol, market)
	cutoff := time.Now().In(feed.KST).AddDate(0, 0, -days)
	query := fmt.Sprintf(`
SELECT timestamp, symbol, timeframe, open, high, low, close, volume
FROM %s
WHERE symbol = $1 AND timestamp >= $2
ORDER BY timestamp ASC`, table)

	var rows []barRow
	if err := r.conn.QueryRowsCtx(ctx, &rows, query, symbol, cutoff.UTC()); err != nil {
		return nil, fmt.Errorf("repo: recent bars %s: %w", symbol, err)
	}
	bars := make([]feed.Bar, 0, len(rows))
	for _, row := range rows {
		bars = append(bars, feed.Bar{
			Symbol:    row.Symbol,
			Timestamp: row.Timestamp.In(feed.KST),
			Timeframe: row.Timeframe,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    row.Volume,
			Market:    market,
		})
	}
	return bars, nil
}
