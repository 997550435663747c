/*
Package ratelimit implements the velocity and daily-quota gate
(component C5): two independent incr_with_ttl-backed windows keyed by
caller identity. KV unavailability fails open — logged and allowed —
per spec §9's explicit fail-open policy for this component.

Grounded on the original service's Redis INCR/EXPIRE velocity check
(app/core/ratelimit.py).
*/
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/redemption-core/kv"
)

// Limit names which window was exceeded, carried on the returned error
// so handlers can report remaining-time (spec §4.5).
type Limit string

const (
	LimitVelocity Limit = "velocity"
	LimitDaily    Limit = "daily"
)

// ErrLimited is returned when a window is exceeded; it is converted to
// redemption.KindRateLimited by the api claim handler. RetryAfter is the
// caller's worst-case wait until the exceeded window resets (spec
// §4.5's "tagged with remaining-time").
type ErrLimited struct {
	Limit      Limit
	Count      int64
	Threshold  int64
	RetryAfter time.Duration
}

func (e *ErrLimited) Error() string {
	return fmt.Sprintf("ratelimit: %s limit exceeded (%d/%d), retry after %s", e.Limit, e.Count, e.Threshold, e.RetryAfter)
}

// Limiter enforces the two-window gate described in spec §4.5.
type Limiter struct {
	store             kv.Store
	log               zerolog.Logger
	velocityLimit     int64
	velocityWindow    time.Duration
	dailyLimit        int64
}

// New builds a Limiter against an Ephemeral KV store.
func New(store kv.Store, log zerolog.Logger, velocityLimit int64, velocityWindow time.Duration, dailyLimit int64) *Limiter {
	return &Limiter{
		store:          store,
		log:            log,
		velocityLimit:  velocityLimit,
		velocityWindow: velocityWindow,
		dailyLimit:     dailyLimit,
	}
}

// Allow checks both windows for identity at instant now (in loc for the
// daily key's calendar day). On KV unavailability it logs and allows
// the request through rather than blocking legitimate traffic on an
// infrastructure blip.
func (l *Limiter) Allow(ctx context.Context, identity string, now time.Time, loc *time.Location) error {
	velocityKey := fmt.Sprintf("limit:velocity:%s", identity)
	n, err := l.store.IncrWithTTL(ctx, velocityKey, l.velocityWindow)
	if err != nil {
		l.log.Warn().Err(err).Str("identity", identity).Msg("ratelimit: velocity check unavailable, failing open")
	} else if n > l.velocityLimit {
		return &ErrLimited{Limit: LimitVelocity, Count: n, Threshold: l.velocityLimit, RetryAfter: l.velocityWindow}
	}

	dailyKey := fmt.Sprintf("limit:daily:%s:%s", identity, now.In(loc).Format("2006-01-02"))
	n, err = l.store.IncrWithTTL(ctx, dailyKey, 24*time.Hour)
	if err != nil {
		l.log.Warn().Err(err).Str("identity", identity).Msg("ratelimit: daily check unavailable, failing open")
		return nil
	}
	if n > l.dailyLimit {
		return &ErrLimited{Limit: LimitDaily, Count: n, Threshold: l.dailyLimit, RetryAfter: untilLocalMidnight(now, loc)}
	}
	return nil
}

// untilLocalMidnight returns the duration from now until the start of
// the next calendar day in loc, the daily window's reset point.
func untilLocalMidnight(now time.Time, loc *time.Location) time.Duration {
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	return midnight.Sub(local)
}
