// Package memstore is an in-process fake of store.Store, used by
// service-layer tests in place of sqlite/postgres. It enforces the
// same daily-uniqueness and CAS semantics as the real backends so
// tests exercise the actual invariants, not a simplified stand-in.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/redemption-core/store"
)

// Memstore is a mutex-guarded map-backed store.Store.
type Memstore struct {
	mu sync.Mutex

	offers       map[string]store.Offer
	merchants    map[string]store.Merchant
	users        map[string]store.User
	entitlements map[string]store.Entitlement
	redemptions  map[string]store.Redemption // keyed by entitlement id
	events       []store.AnalyticsEvent

	loc *time.Location
}

// New returns an empty Memstore. loc is the timezone used to compute
// the calendar-day key for the daily-uniqueness check.
func New(loc *time.Location) *Memstore {
	return &Memstore{
		offers:       make(map[string]store.Offer),
		merchants:    make(map[string]store.Merchant),
		users:        make(map[string]store.User),
		entitlements: make(map[string]store.Entitlement),
		redemptions:  make(map[string]store.Redemption),
		loc:          loc,
	}
}

// SeedOffer, SeedMerchant, and SeedUser populate read-only reference
// data ahead of a test scenario.
func (m *Memstore) SeedOffer(o store.Offer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers[o.ID] = o
}

func (m *Memstore) SeedMerchant(mc store.Merchant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merchants[mc.ID] = mc
}

func (m *Memstore) SeedUser(u store.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *Memstore) GetOffer(_ context.Context, offerID string) (store.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[offerID]
	if !ok {
		return store.Offer{}, store.ErrNotFound
	}
	return o, nil
}

func (m *Memstore) GetMerchant(_ context.Context, merchantID string) (store.Merchant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.merchants[merchantID]
	if !ok {
		return store.Merchant{}, store.ErrNotFound
	}
	return mc, nil
}

func (m *Memstore) GetUser(_ context.Context, userID string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func (m *Memstore) IncrementOfferClaims(_ context.Context, offerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[offerID]
	if !ok {
		return store.ErrNotFound
	}
	o.TotalClaims++
	m.offers[offerID] = o
	return nil
}

func (m *Memstore) dayKey(t time.Time) string {
	return t.In(m.loc).Format("2006-01-02")
}

func (m *Memstore) InsertEntitlement(_ context.Context, e store.Entitlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := m.dayKey(e.ClaimedAt)
	for _, existing := range m.entitlements {
		if existing.UserID != e.UserID || existing.OfferID != e.OfferID {
			continue
		}
		if existing.State == store.StateVoided {
			continue
		}
		if m.dayKey(existing.ClaimedAt) == day {
			return store.ErrUniqueViolation
		}
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	m.entitlements[e.ID] = e
	return nil
}

func (m *Memstore) GetEntitlement(_ context.Context, id string) (store.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entitlements[id]
	if !ok {
		return store.Entitlement{}, store.ErrNotFound
	}
	return e, nil
}

func (m *Memstore) CASEntitlementState(_ context.Context, id string, from, to store.EntitlementState, extra store.EntitlementUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entitlements[id]
	if !ok {
		return store.ErrNotFound
	}
	if e.State != from {
		return store.ErrCASMismatch
	}
	e.State = to
	if extra.UsedAt != nil {
		e.UsedAt = extra.UsedAt
	}
	if extra.VoidedAt != nil {
		e.VoidedAt = extra.VoidedAt
	}
	e.UpdatedAt = time.Now()
	m.entitlements[id] = e
	return nil
}

func (m *Memstore) ListEntitlementsByUser(_ context.Context, userID string, state store.EntitlementState) ([]store.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Entitlement
	for _, e := range m.entitlements {
		if e.UserID != userID {
			continue
		}
		if state != "" && e.State != state {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *Memstore) ListExpirable(_ context.Context, asOf time.Time, limit int) ([]store.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Entitlement
	for _, e := range m.entitlements {
		if e.State != store.StateActive && e.State != store.StatePendingConfirmation {
			continue
		}
		if e.ExpiresAt.After(asOf) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memstore) InsertRedemptionAndUseEntitlement(_ context.Context, r store.Redemption, entitlementID string, usedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entitlements[entitlementID]
	if !ok {
		return store.ErrNotFound
	}
	if e.State != store.StatePendingConfirmation {
		return store.ErrCASMismatch
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	m.redemptions[entitlementID] = r
	e.State = store.StateUsed
	e.UsedAt = &usedAt
	e.UpdatedAt = usedAt
	m.entitlements[entitlementID] = e
	return nil
}

func (m *Memstore) GetRedemptionByEntitlement(_ context.Context, entitlementID string) (store.Redemption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.redemptions[entitlementID]
	if !ok {
		return store.Redemption{}, store.ErrNotFound
	}
	return r, nil
}

func (m *Memstore) VoidRedemptionAndEntitlement(_ context.Context, entitlementID string, reason string, voidedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entitlements[entitlementID]
	if !ok {
		return store.ErrNotFound
	}
	if e.State != store.StateUsed {
		return store.ErrCASMismatch
	}
	r, ok := m.redemptions[entitlementID]
	if !ok {
		return store.ErrNotFound
	}
	r.IsVoided = true
	r.VoidedAt = &voidedAt
	r.VoidReason = &reason
	m.redemptions[entitlementID] = r

	e.State = store.StateVoided
	e.VoidedAt = &voidedAt
	e.UpdatedAt = voidedAt
	m.entitlements[entitlementID] = e
	return nil
}

func (m *Memstore) ListRedemptions(_ context.Context, filter store.RedemptionFilter) ([]store.Redemption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Redemption
	for _, r := range m.redemptions {
		if filter.MerchantID != "" && r.MerchantID != filter.MerchantID {
			continue
		}
		if filter.UserID != "" && r.UserID != filter.UserID {
			continue
		}
		if filter.OfferID != "" && r.OfferID != filter.OfferID {
			continue
		}
		if filter.ExcludeVoided && r.IsVoided {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *Memstore) InsertAnalyticsEvent(_ context.Context, ev store.AnalyticsEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	m.events = append(m.events, ev)
	return nil
}

// Events returns a snapshot of recorded analytics events, for test assertions.
func (m *Memstore) Events() []store.AnalyticsEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.AnalyticsEvent, len(m.events))
	copy(out, m.events)
	return out
}

func (m *Memstore) Close() error { return nil }
