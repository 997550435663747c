package kv

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker"
)

// Breaker wraps a Store with a circuit breaker tripping on repeated
// ErrUnavailable, so a degraded Redis fails fast (and callers hit
// their fail-open/fail-closed policy immediately) instead of every
// request separately paying the dial/read timeout.
//
// Thresholds mirror the breaker used elsewhere in this codebase for
// other external dependencies: trip after 3 consecutive failures, or
// after a failure ratio above 5% once volume passes 20 requests.
type Breaker struct {
	inner Store
	cb    *gobreaker.CircuitBreaker
}

// NewBreaker wraps inner with a named circuit breaker.
func NewBreaker(name string, inner Store) *Breaker {
	st := gobreaker.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 30 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
	}
	return &Breaker{inner: inner, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *Breaker) SetWithTTL(ctx context.Context, key string, value string, ttl time.Duration) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.inner.SetWithTTL(ctx, key, value, ttl)
	})
	if err != nil {
		return ErrUnavailable
	}
	return nil
}

type kvPair struct {
	v  string
	ok bool
}

func (b *Breaker) Get(ctx context.Context, key string) (string, bool, error) {
	res, err := b.cb.Execute(func() (any, error) {
		v, ok, err := b.inner.Get(ctx, key)
		return kvPair{v, ok}, err
	})
	if err != nil {
		return "", false, ErrUnavailable
	}
	pair := res.(kvPair)
	return pair.v, pair.ok, nil
}

func (b *Breaker) Delete(ctx context.Context, key string) (bool, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.inner.Delete(ctx, key)
	})
	if err != nil {
		return false, ErrUnavailable
	}
	return res.(bool), nil
}

func (b *Breaker) GetAndDelete(ctx context.Context, key string) (string, bool, error) {
	res, err := b.cb.Execute(func() (any, error) {
		v, ok, err := b.inner.GetAndDelete(ctx, key)
		return kvPair{v, ok}, err
	})
	if err != nil {
		return "", false, ErrUnavailable
	}
	pair := res.(kvPair)
	return pair.v, pair.ok, nil
}

func (b *Breaker) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return b.inner.IncrWithTTL(ctx, key, ttl)
	})
	if err != nil {
		return 0, ErrUnavailable
	}
	return res.(int64), nil
}
