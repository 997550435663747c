package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Shaper is a process-wide, per-key token-bucket pre-filter sitting
// in front of the KV-backed Limiter. Where Limiter enforces the
// business-level velocity/daily quotas (RATE_LIMITED), Shaper exists
// purely to protect the process from being overwhelmed before a
// request even reaches the KV round trip — exceeding it reports
// TRANSIENT, not RATE_LIMITED, since it is an infrastructure
// self-protection measure rather than a quota.
//
// Grounded on the per-host rate.Limiter map pattern used elsewhere in
// this codebase for outbound request shaping, applied here inbound and
// keyed by the string the caller passes (the api package passes the
// request's remote address) instead of upstream host.
type Shaper struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewShaper builds a Shaper allowing rps sustained requests per second
// per identity, with burst headroom.
func NewShaper(rps float64, burst int) *Shaper {
	return &Shaper{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (s *Shaper) limiterFor(identity string) *rate.Limiter {
	s.mu.RLock()
	l, ok := s.limiters[identity]
	s.mu.RUnlock()
	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.limiters[identity]; ok {
		return l
	}
	l = rate.NewLimiter(rate.Limit(s.rps), s.burst)
	s.limiters[identity] = l
	return l
}

// Allow reports whether identity may proceed right now.
func (s *Shaper) Allow(identity string) bool {
	return s.limiterFor(identity).Allow()
}
