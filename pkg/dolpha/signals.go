package dolpha

import (
	"fmt"
	"math"
	"strings"
	"time"

	"kisfeed/pkg/feed"
)

// minBars is the shortest history the signal will evaluate.
const minBars = 100

// Signal reasons.
const (
	ReasonNone             = "none"
	ReasonBandCrossUp      = "band_cross_up"
	ReasonBandCrossDown    = "band_cross_down"
	ReasonInsufficientData = "insufficient_data"
)

// Signal is one evaluation of the band strategy at a bar.
type Signal struct {
	Timestamp   time.Time
	Symbol      string
	Close       float64
	VWAP        float64
	ATR         float64
	MoveOpen    float64
	SigmaOpen   float64
	UpperBand   float64
	LowerBand   float64
	MinFromOpen int

	// Monitor flags every band cross; Trade repeats it only on observe
	// boundaries.
	Monitor int
	Trade   int
	Reason  string
}

// Insufficient reports whether the evaluation ran short of history, either
// on bar count or on qualified sigma days. Such signals carry no features
// worth persisting.
func (s Signal) Insufficient() bool {
	return strings.HasPrefix(s.Reason, ReasonInsufficientData)
}

// Evaluate runs the strategy over the full bar history, oldest first, and
// returns the signal at the latest band-qualified bar.
func Evaluate(bars []feed.Bar, cfg *Config) Signal {
	sig := Signal{Reason: ReasonInsufficientData}
	if len(bars) > 0 {
		last := bars[len(bars)-1]
		sig.Timestamp = last.Timestamp
		sig.Symbol = last.Symbol
		sig.Close = last.Close
	}
	if len(bars) < minBars {
		return sig
	}

	s := Derive(bars, cfg)

	// Walk back to the freshest bar with both bands in place.
	idx := -1
	for i := len(bars) - 1; i >= 0; i-- {
		if !math.IsNaN(s.UpperBand[i]) && !math.IsNaN(s.LowerBand[i]) {
			idx = i
			break
		}
	}
	if idx == -1 {
		sig.Reason = fmt.Sprintf("insufficient_data_days_%d", s.Days)
		return sig
	}

	bar := bars[idx]
	sig = Signal{
		Timestamp:   bar.Timestamp,
		Symbol:      bar.Symbol,
		Close:       bar.Close,
		VWAP:        s.VWAP[idx],
		ATR:         s.ATR[idx],
		MoveOpen:    s.MoveOpen[idx],
		SigmaOpen:   s.SigmaOpen[idx],
		UpperBand:   s.UpperBand[idx],
		LowerBand:   s.LowerBand[idx],
		MinFromOpen: s.MinFromOpen[idx],
		Reason:      ReasonNone,
	}

	switch {
	case sig.Close > sig.UpperBand && (!cfg.UseVWAP || sig.Close > sig.VWAP):
		sig.Monitor = 1
		sig.Reason = ReasonBandCrossUp
	case sig.Close < sig.LowerBand && (!cfg.UseVWAP || sig.Close < sig.VWAP):
		sig.Monitor = -1
		sig.Reason = ReasonBandCrossDown
	}
	if bar.Timestamp.In(feed.KST).Minute()%cfg.ObserveInterval == 0 {
		sig.Trade = sig.Monitor
	}
	return sig
}
