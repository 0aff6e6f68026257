package feed

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"kisfeed/pkg/kis"
)

const (
	// The chart endpoint pages backwards from a query time; a full session
	// fits comfortably in ten pages.
	backfillMaxPages = 10
	backfillStart    = "154500"

	// A complete derivatives session yields this many minute bars.
	expectedSessionBars = 411
)

// BackfillDay reconstructs one full session of derivatives minute bars by
// paging the chart endpoint backwards from the close. date is YYYYMMDD.
// Partial sessions (holidays, early closes) are returned as-is with a
// warning rather than an error.
func BackfillDay(ctx context.Context, client *kis.Client, sub Subscription, date string) ([]Bar, error) {
	seen := make(map[string]kis.DerivCandleRow)
	queryTime := backfillStart
	for page := 0; page < backfillMaxPages; page++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		resp, err := client.DerivMinuteChart(ctx, sub.Symbol, date, queryTime)
		if err != nil {
			return nil, fmt.Errorf("backfill %s %s page %d: %w", sub.Symbol, date, page+1, err)
		}
		added := 0
		oldest := ""
		for _, row := range resp.Output2 {
			if row.Date != date || !inDerivSession(row.Hour) {
				continue
			}
			key := row.Key()
			if oldest == "" || key < oldest {
				oldest = key
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = row
			added++
		}
		if added == 0 || oldest == "" {
			break
		}
		next, err := minuteBefore(oldest[len(date):])
		if err != nil {
			return nil, fmt.Errorf("backfill %s %s: %w", sub.Symbol, date, err)
		}
		if next < "084500" {
			break
		}
		queryTime = next
	}

	bars := make([]Bar, 0, len(seen))
	for _, row := range seen {
		bar, err := derivBar(row, sub, row.Hour[:4] == CloseHHMM(MarketDeriv))
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	if len(bars) != expectedSessionBars {
		logx.Infof("backfill %s %s: collected %d bars, expected %d", sub.Symbol, date, len(bars), expectedSessionBars)
	}
	return bars, nil
}

// inDerivSession reports whether an HHMMSS stamp falls inside 08:45-15:45.
func inDerivSession(hour string) bool {
	if len(hour) < 4 {
		return false
	}
	hhmm := hour[:4]
	return hhmm >= "0845" && hhmm <= "1545"
}

// minuteBefore shifts an HHMMSS stamp one minute back.
func minuteBefore(hour string) (string, error) {
	t, err := time.Parse("150405", hour)
	if err != nil {
		return "", fmt.Errorf("parse page cursor %q: %w", hour, err)
	}
	return t.Add(-time.Minute).Format("150405"), nil
}
