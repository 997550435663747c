/*
Package clock provides a single substitutable source of wall-clock time.

Every TTL, void-window check, and local-day boundary in the redemption
core is computed against a Clock instead of calling time.Now directly,
so tests can freeze and advance time deterministically (see Frozen).

SEE ALSO:
  - statemachine/statemachine.go: void-window and expiry checks
  - tokenbroker/tokenbroker.go: TTL computation
*/
package clock

import (
	"sync"
	"time"
)

// Clock returns the current wall-clock instant.
type Clock interface {
	Now() time.Time
}

// Real is the production Clock, backed by time.Now.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Frozen is a test Clock that only advances when told to.
type Frozen struct {
	mu  sync.Mutex
	now time.Time
}

// NewFrozen returns a Frozen clock starting at t.
func NewFrozen(t time.Time) *Frozen {
	return &Frozen{now: t}
}

func (f *Frozen) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set pins the clock to t.
func (f *Frozen) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

// Advance moves the clock forward by d.
func (f *Frozen) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// EndOfLocalDay returns 23:59:59.999999999 of the calendar day containing
// t, interpreted in loc.
func EndOfLocalDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 23, 59, 59, 999999999, loc)
}

// StartOfLocalDay returns 00:00:00 of the calendar day containing t,
// interpreted in loc.
func StartOfLocalDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// UntilNextLocalMidnight returns the duration from t until the start of
// the next calendar day in loc. Used to TTL daily KV markers.
func UntilNextLocalMidnight(t time.Time, loc *time.Location) time.Duration {
	next := StartOfLocalDay(t, loc).AddDate(0, 0, 1)
	return next.Sub(t.In(loc))
}

// SameLocalDay reports whether a and b fall on the same calendar day in loc.
func SameLocalDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// LocalDateString formats t as the YYYY-MM-DD calendar day in loc, the
// form used in KV key layout (claim:daily:<user>:<offer>:<YYYY-MM-DD>).
func LocalDateString(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
