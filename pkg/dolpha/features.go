package dolpha

import (
	"math"

	"kisfeed/pkg/feed"
)

// Series carries the per-bar derivations the signal evaluates. All slices
// align with Bars; positions without a value hold NaN.
type Series struct {
	Bars []feed.Bar

	VWAP        []float64
	ATR         []float64
	MinFromOpen []int
	MoveOpen    []float64
	SigmaOpen   []float64
	UpperBand   []float64
	LowerBand   []float64

	// Days counts the distinct sessions in the input.
	Days int
}

// Derive computes every feature column over bars sorted oldest first.
func Derive(bars []feed.Bar, cfg *Config) *Series {
	n := len(bars)
	s := &Series{
		Bars:        bars,
		VWAP:        nanSlice(n),
		ATR:         nanSlice(n),
		MinFromOpen: make([]int, n),
		MoveOpen:    nanSlice(n),
		SigmaOpen:   nanSlice(n),
		UpperBand:   nanSlice(n),
		LowerBand:   nanSlice(n),
	}
	if n == 0 {
		return s
	}

	days := dayPartition(bars)
	s.Days = len(days)

	s.computeVWAP(days)
	s.computeATR(cfg.ATRPeriod)
	s.computeOpenFeatures(days)
	s.computeSigmaOpen(days, cfg)
	s.computeBands(days, cfg.BandMultiplier)
	return s
}

// dayRange is a half-open [start, end) index window over one session.
type dayRange struct {
	start, end int
}

// dayPartition splits the bar slice into consecutive session windows.
func dayPartition(bars []feed.Bar) []dayRange {
	var days []dayRange
	start := 0
	for i := 1; i <= len(bars); i++ {
		if i == len(bars) || dayKey(bars[i]) != dayKey(bars[start]) {
			days = append(days, dayRange{start: start, end: i})
			start = i
		}
	}
	return days
}

func dayKey(b feed.Bar) string {
	return b.Timestamp.In(feed.KST).Format("20060102")
}

// computeVWAP accumulates typical price x volume within each session.
func (s *Series) computeVWAP(days []dayRange) {
	for _, day := range days {
		var pvSum, volSum float64
		for i := day.start; i < day.end; i++ {
			bar := s.Bars[i]
			typical := (bar.High + bar.Low + bar.Close) / 3
			pvSum += typical * float64(bar.Volume)
			volSum += float64(bar.Volume)
			if volSum > 0 {
				s.VWAP[i] = pvSum / volSum
			}
		}
	}
}

// computeATR is a rolling mean of true range. The range window runs across
// session boundaries; volatility carries overnight.
func (s *Series) computeATR(period int) {
	n := len(s.Bars)
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		bar := s.Bars[i]
		if i == 0 {
			tr[i] = bar.High - bar.Low
			continue
		}
		prevClose := s.Bars[i-1].Close
		tr[i] = math.Max(bar.High-bar.Low,
			math.Max(math.Abs(bar.High-prevClose), math.Abs(bar.Low-prevClose)))
	}
	var windowSum float64
	for i := 0; i < n; i++ {
		windowSum += tr[i]
		if i >= period {
			windowSum -= tr[i-period]
		}
		if i >= period-1 {
			s.ATR[i] = windowSum / float64(period)
		}
	}
}

// computeOpenFeatures fills minutes-from-open and the absolute move from
// each session's first open.
func (s *Series) computeOpenFeatures(days []dayRange) {
	for _, day := range days {
		dayOpen := s.Bars[day.start].Open
		for i := day.start; i < day.end; i++ {
			s.MinFromOpen[i] = feed.MinutesFromOpen(s.Bars[i].Timestamp)
			if dayOpen != 0 {
				s.MoveOpen[i] = math.Abs(s.Bars[i].Close/dayOpen - 1)
			}
		}
	}
}

// computeSigmaOpen estimates the typical move at each minute of the session:
// for a bar at minute m on day d it averages the move-from-open observed at
// minute m over the last rolling_move prior days. The estimate is lagged one
// day so the current session never feeds its own bands, then gaps are filled
// forward (and backward when enabled) within each day.
func (s *Series) computeSigmaOpen(days []dayRange, cfg *Config) {
	// One observation per (day, minute bucket): the last move value seen.
	history := make(map[int][]float64)
	for _, day := range days {
		// Bands for this day come from history as of yesterday's close.
		for i := day.start; i < day.end; i++ {
			obs := history[s.MinFromOpen[i]]
			s.SigmaOpen[i] = rollingTail(obs, cfg.RollingMove, cfg.MinPeriods)
		}
		for i := day.start; i < day.end; i++ {
			m := s.MinFromOpen[i]
			if !math.IsNaN(s.MoveOpen[i]) {
				history[m] = append(history[m], s.MoveOpen[i])
			}
		}
		fillWithinDay(s.SigmaOpen, day, cfg.Backfill)
	}
}

// rollingTail means the last window observations, requiring at least
// minPeriods of them.
func rollingTail(obs []float64, window, minPeriods int) float64 {
	if len(obs) < minPeriods {
		return math.NaN()
	}
	start := len(obs) - window
	if start < 0 {
		start = 0
	}
	var sum float64
	for _, v := range obs[start:] {
		sum += v
	}
	return sum / float64(len(obs)-start)
}

// fillWithinDay forward-fills NaN gaps inside one session window, then
// back-fills the leading gap when enabled.
func fillWithinDay(vals []float64, day dayRange, backfill bool) {
	last := math.NaN()
	for i := day.start; i < day.end; i++ {
		if math.IsNaN(vals[i]) {
			vals[i] = last
		} else {
			last = vals[i]
		}
	}
	if !backfill {
		return
	}
	next := math.NaN()
	for i := day.end - 1; i >= day.start; i-- {
		if math.IsNaN(vals[i]) {
			vals[i] = next
		} else {
			next = vals[i]
		}
	}
}

// computeBands anchors each session on its open and the previous session's
// close, widened by the sigma estimate.
func (s *Series) computeBands(days []dayRange, mult float64) {
	prevClose := math.NaN()
	for _, day := range days {
		dayOpen := s.Bars[day.start].Open
		hi, lo := dayOpen, dayOpen
		if !math.IsNaN(prevClose) {
			hi = math.Max(dayOpen, prevClose)
			lo = math.Min(dayOpen, prevClose)
		}
		for i := day.start; i < day.end; i++ {
			sigma := s.SigmaOpen[i]
			if math.IsNaN(sigma) {
				continue
			}
			s.UpperBand[i] = hi * (1 + mult*sigma)
			s.LowerBand[i] = lo * (1 - mult*sigma)
		}
		prevClose = s.Bars[day.end-1].Close
	}
}

func nanSlice(n int) []float64 {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = math.NaN()
	}
	return vals
}
