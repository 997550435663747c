/*
Package kv defines the Ephemeral KV contract (spec §4.2, component C2):
an absolute-expiry key-value store used for proof tokens, daily-claim
markers, and rate-limit counters.

FAILURE MODEL:
  Transient network errors surface as ErrUnavailable, a distinct outcome
  from "key absent". Callers decide fail-open vs fail-closed themselves
  (see ratelimit, which fails open, and tokenbroker, which fails closed) —
  this package never makes that call, per spec §9's "code this as an
  explicit policy per component" design note.

IMPLEMENTATIONS:
  - kv/redis.go:  production, go-redis/v9
  - kv/memory.go: in-process, for tests
  - kv/breaker.go: gobreaker wrapper around any Store, trips on repeated
    ErrUnavailable so a dying Redis fails fast instead of piling up
    blocked goroutines on every request.
*/
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable indicates the KV backend could not be reached within
// its timeout budget. Distinct from a normal cache miss.
var ErrUnavailable = errors.New("kv: backend unavailable")

// Store is the Ephemeral KV contract.
type Store interface {
	// SetWithTTL stores value under key with an absolute expiry, overwriting
	// any existing value.
	SetWithTTL(ctx context.Context, key string, value string, ttl time.Duration) error

	// Get returns the value for key, or ("", false, nil) if absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Delete removes key, reporting whether it existed.
	Delete(ctx context.Context, key string) (existed bool, err error)

	// GetAndDelete atomically reads and removes key — the single-use
	// consume primitive behind proof-token validation.
	GetAndDelete(ctx context.Context, key string) (value string, ok bool, err error)

	// IncrWithTTL increments key and returns the new count. The first
	// increment (key absent) sets ttl; subsequent increments leave the
	// existing TTL untouched.
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (count int64, err error)
}
