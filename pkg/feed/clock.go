package feed

import "time"

// KST is the market timezone. A fixed offset avoids a tzdata dependency.
var KST = time.FixedZone("KST", 9*60*60)

// MarketKind distinguishes the two session schedules.
type MarketKind string

const (
	MarketStock MarketKind = "stock"
	MarketDeriv MarketKind = "derivatives"
)

// Session boundaries in minutes from midnight KST.
const (
	stockOpenMinute  = 9 * 60          // 09:00
	stockCloseMinute = 15*60 + 30      // 15:30
	derivOpenMinute  = 8*60 + 45       // 08:45
	derivCloseMinute = 15*60 + 45      // 15:45
	// The first completed derivatives bar lands on 08:46; minutes-from-open
	// is measured against that anchor.
	derivOpenAnchorMinute = 8*60 + 46 // 08:46
)

// Clock supplies market-local wall-clock time. The now function is injectable
// so schedule-dependent logic stays deterministic in tests.
type Clock struct {
	nowFn func() time.Time
}

// NewClock builds a clock backed by the system time.
func NewClock() *Clock {
	return &Clock{nowFn: time.Now}
}

// NewClockAt builds a clock backed by the supplied time source.
func NewClockAt(nowFn func() time.Time) *Clock {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Clock{nowFn: nowFn}
}

// Now returns the current instant in market time.
func (c *Clock) Now() time.Time {
	return c.nowFn().In(KST)
}

// FloorMinute truncates the current market time to the minute.
func (c *Clock) FloorMinute() time.Time {
	return c.Now().Truncate(time.Minute)
}

// IsOpen reports whether the given market's session is in progress.
func (c *Clock) IsOpen(kind MarketKind) bool {
	m := minuteOfDay(c.Now())
	switch kind {
	case MarketStock:
		return m >= stockOpenMinute && m <= stockCloseMinute
	case MarketDeriv:
		return m >= derivOpenMinute && m <= derivCloseMinute
	}
	return false
}

// IsSessionClose reports whether the current minute is the market's final
// session minute, when the freshest bar is already final.
func (c *Clock) IsSessionClose(kind MarketKind) bool {
	m := minuteOfDay(c.Now())
	switch kind {
	case MarketStock:
		return m == stockCloseMinute
	case MarketDeriv:
		return m == derivCloseMinute
	}
	return false
}

// CloseHHMM returns the session-close minute as an HHMM string, matching the
// hour prefix the vendor stamps on the final bar.
func CloseHHMM(kind MarketKind) string {
	if kind == MarketStock {
		return "1530"
	}
	return "1545"
}

// MinutesFromOpen converts a bar timestamp to minutes elapsed since the
// derivatives session anchor.
func MinutesFromOpen(ts time.Time) int {
	return minuteOfDay(ts.In(KST)) - derivOpenAnchorMinute
}

// UntilNextMinute returns the wait until the next minute boundary plus offset.
func (c *Clock) UntilNextMinute(offset time.Duration) time.Duration {
	now := c.Now()
	next := now.Truncate(time.Minute).Add(time.Minute)
	return next.Sub(now) + offset
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
