package dolpha

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kisfeed/pkg/feed"
)

// flatDays builds perDay one-minute bars per session starting at the 08:46
// session anchor, all at the same price.
func flatDays(days, perDay int, price float64) []feed.Bar {
	bars := make([]feed.Bar, 0, days*perDay)
	for d := 0; d < days; d++ {
		start := time.Date(2025, 9, 1+d, 8, 46, 0, 0, feed.KST)
		for i := 0; i < perDay; i++ {
			bars = append(bars, feed.Bar{
				Symbol:    "106W09",
				Timestamp: start.Add(time.Duration(i) * time.Minute),
				Timeframe: 1,
				Open:      price,
				High:      price,
				Low:       price,
				Close:     price,
				Volume:    10,
				Market:    feed.MarketDeriv,
			})
		}
	}
	return bars
}

func TestDerive_VWAPResetsDaily(t *testing.T) {
	bars := flatDays(2, 3, 100)
	// Second day trades higher; its VWAP must not blend with day one.
	for i := 3; i < 6; i++ {
		bars[i].Open, bars[i].High, bars[i].Low, bars[i].Close = 200, 200, 200, 200
	}
	s := Derive(bars, DefaultConfig())
	require.Equal(t, 100.0, s.VWAP[2])
	require.Equal(t, 200.0, s.VWAP[3])
	require.Equal(t, 200.0, s.VWAP[5])
}

func TestDerive_ATRRollingMean(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ATRPeriod = 3
	bars := flatDays(1, 5, 100)
	for i := range bars {
		bars[i].High = 100 + float64(i+1) // TR = high - low grows per bar
	}
	s := Derive(bars, cfg)
	require.True(t, math.IsNaN(s.ATR[1]))
	require.InDelta(t, 2.0, s.ATR[2], 1e-9) // mean(1,2,3)
	require.InDelta(t, 3.0, s.ATR[3], 1e-9) // mean(2,3,4)
}

func TestDerive_MinFromOpenAnchors(t *testing.T) {
	bars := flatDays(1, 3, 100)
	s := Derive(bars, DefaultConfig())
	require.Equal(t, 0, s.MinFromOpen[0])
	require.Equal(t, 2, s.MinFromOpen[2])
}

func TestDerive_MoveOpen(t *testing.T) {
	bars := flatDays(1, 3, 100)
	bars[2].Close = 103
	s := Derive(bars, DefaultConfig())
	require.InDelta(t, 0.0, s.MoveOpen[0], 1e-12)
	require.InDelta(t, 0.03, s.MoveOpen[2], 1e-12)
}

func TestDerive_SigmaZeroOnFlatSeries(t *testing.T) {
	s := Derive(flatDays(6, 30, 100), DefaultConfig())
	last := len(s.Bars) - 1
	require.InDelta(t, 0.0, s.SigmaOpen[last], 1e-12)
	require.InDelta(t, 100.0, s.UpperBand[last], 1e-9)
	require.InDelta(t, 100.0, s.LowerBand[last], 1e-9)
}

func TestDerive_SigmaNeedsMinPeriods(t *testing.T) {
	// Two days of history cannot satisfy min_periods 3.
	s := Derive(flatDays(2, 30, 100), DefaultConfig())
	for i := range s.SigmaOpen {
		require.True(t, math.IsNaN(s.SigmaOpen[i]), "bar %d", i)
	}
}

func TestDerive_SigmaExcludesCurrentDay(t *testing.T) {
	cfg := DefaultConfig()
	bars := flatDays(5, 30, 100)
	// A violent final day must not widen its own bands.
	lastStart := 4 * 30
	for i := lastStart; i < len(bars); i++ {
		bars[i].Close = 150
	}
	s := Derive(bars, cfg)
	require.InDelta(t, 0.0, s.SigmaOpen[lastStart+10], 1e-12)
}

func TestDerive_BackfillFillsLeadingGap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinPeriods = 1
	cfg.RollingMove = 2
	bars := flatDays(2, 30, 100)
	// Day two opens ten minutes late: its first bars hit sigma buckets that
	// have prior-day history, so this scenario needs a bucket with none.
	trimmed := append([]feed.Bar{}, bars[:30]...)
	// Day two starts earlier than day one ever traded (08:36).
	start := time.Date(2025, 9, 2, 8, 36, 0, 0, feed.KST)
	for i := 0; i < 30; i++ {
		trimmed = append(trimmed, feed.Bar{
			Symbol: "106W09", Timestamp: start.Add(time.Duration(i) * time.Minute),
			Timeframe: 1, Open: 100, High: 100, Low: 100, Close: 100, Volume: 10,
			Market: feed.MarketDeriv,
		})
	}
	s := Derive(trimmed, cfg)
	// The first ten minutes of day two have no bucket history; backfill
	// pulls the first valid estimate backwards.
	require.False(t, math.IsNaN(s.SigmaOpen[30]))

	cfg.Backfill = false
	s = Derive(trimmed, cfg)
	require.True(t, math.IsNaN(s.SigmaOpen[30]))
	require.False(t, math.IsNaN(s.SigmaOpen[45]))
}

func TestDerive_BandsUsePrevCloseAnchor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinPeriods = 1
	bars := flatDays(3, 30, 100)
	// Day three gaps down at the open; the high anchor stays at the prior
	// close.
	lastStart := 2 * 30
	for i := lastStart; i < len(bars); i++ {
		bars[i].Open, bars[i].High, bars[i].Low, bars[i].Close = 95, 95, 95, 95
	}
	s := Derive(bars, cfg)
	require.InDelta(t, 100.0, s.UpperBand[lastStart], 1e-9) // prev close
	require.InDelta(t, 95.0, s.LowerBand[lastStart], 1e-9)  // day open
}
