package feed

// Tracker owns the completion cursor for a single symbol. Each adapter holds
// its own instance; no two components share one.
type Tracker struct {
	last string
}

// Observe inspects one poll's raw bar keys (newest first, as the vendor
// returns them) and selects the completed bar, if any.
//
// At session close the freshest bar is itself final; otherwise the freshest
// bar is still accumulating and the previous one (index 1) is the completed
// candidate. With fewer than two bars outside session close there is nothing
// to emit.
//
// The first observation for a symbol only primes the cursor: emitting then
// would back-fill a partial bar as if it were complete. A candidate at or
// behind the cursor is a duplicate and is suppressed.
//
// Returns the selected index and whether to emit. primed is true when the
// call advanced the cursor without emitting (first run).
func (t *Tracker) Observe(keys []string, sessionClose bool) (idx int, emit bool, primed bool) {
	if len(keys) == 0 {
		return -1, false, false
	}
	switch {
	case sessionClose:
		idx = 0
	case len(keys) < 2:
		return -1, false, false
	default:
		idx = 1
	}
	candidate := keys[idx]
	if t.last == "" {
		t.last = candidate
		return -1, false, true
	}
	if candidate <= t.last {
		return -1, false, false
	}
	t.last = candidate
	return idx, true, false
}

// Cursor exposes the last emitted key, for logging.
func (t *Tracker) Cursor() string {
	return t.last
}
