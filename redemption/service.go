/*
Package redemption implements the Redemption Service: the only
component that mutates entitlements and redemptions. It orchestrates
Claim, Prove, Validate, Confirm, Void, and the periodic Sweep, wiring
together the state machine, the daily-quota ledger, the token broker,
the savings calculator, and the analytics emitter.
*/
package redemption

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/warp/redemption-core/analytics"
	"github.com/warp/redemption-core/catalog"
	"github.com/warp/redemption-core/clock"
	"github.com/warp/redemption-core/kv"
	"github.com/warp/redemption-core/money"
	"github.com/warp/redemption-core/savings"
	"github.com/warp/redemption-core/statemachine"
	"github.com/warp/redemption-core/store"
	"github.com/warp/redemption-core/tokenbroker"
)

// Service is the Redemption Service (C9).
type Service struct {
	store      store.Store
	catalog    catalog.Reader
	kvStore    kv.Store
	broker     *tokenbroker.Broker
	emitter    *analytics.Emitter
	clock      clock.Clock
	loc        *time.Location
	voidWindow time.Duration
	log        zerolog.Logger
	metrics    *Metrics
}

// New builds a Service. Offer/merchant/user lookups go through a
// catalog.Reader built over s, keeping the service's read-only access
// to the catalog's entities separate from its mutating access to
// entitlements and redemptions.
func New(s store.Store, kvStore kv.Store, broker *tokenbroker.Broker, emitter *analytics.Emitter, c clock.Clock, loc *time.Location, voidWindow time.Duration, log zerolog.Logger) *Service {
	return &Service{
		store:      s,
		catalog:    catalog.FromStore(s),
		kvStore:    kvStore,
		broker:     broker,
		emitter:    emitter,
		clock:      c,
		loc:        loc,
		voidWindow: voidWindow,
		log:        log,
		metrics:    NewMetrics(),
	}
}

// Metrics exposes the service's Prometheus instrumentation, e.g. to
// mount a /metrics endpoint.
func (s *Service) Metrics() *Metrics { return s.metrics }

// ClaimResult is returned by Claim.
type ClaimResult struct {
	EntitlementID string
	ExpiresAt     time.Time
}

// Claim issues a new ACTIVE entitlement for userID against offerID,
// after checking eligibility and the daily quota.
func (s *Service) Claim(ctx context.Context, userID, offerID string, deviceID *string) (ClaimResult, error) {
	offer, err := s.catalog.GetOffer(ctx, offerID)
	if err != nil {
		if err == store.ErrNotFound {
			s.metrics.claims.WithLabelValues("not_found").Inc()
			return ClaimResult{}, NewError(KindNotFound, "offer not found")
		}
		s.metrics.claims.WithLabelValues("error").Inc()
		return ClaimResult{}, Wrap(KindTransient, "load offer", err)
	}

	now := s.clock.Now()
	if de := checkOfferEligible(offer, now, s.loc); de != nil {
		s.metrics.claims.WithLabelValues("ineligible").Inc()
		return ClaimResult{}, de
	}

	if de := s.checkDailyQuota(ctx, userID, offerID, now); de != nil {
		s.metrics.claims.WithLabelValues("daily_limit").Inc()
		return ClaimResult{}, de
	}

	entitlement := store.Entitlement{
		ID:        uuid.NewString(),
		UserID:    userID,
		OfferID:   offerID,
		DeviceID:  deviceID,
		State:     store.StateActive,
		ClaimedAt: now,
		ExpiresAt: clock.EndOfLocalDay(now, s.loc),
	}
	if err := s.store.InsertEntitlement(ctx, entitlement); err != nil {
		if err == store.ErrUniqueViolation {
			s.metrics.claims.WithLabelValues("daily_limit").Inc()
			return ClaimResult{}, NewError(KindDailyLimit, "daily uniqueness index rejected duplicate claim")
		}
		s.metrics.claims.WithLabelValues("error").Inc()
		return ClaimResult{}, Wrap(KindTransient, "insert entitlement", err)
	}
	s.metrics.claims.WithLabelValues("success").Inc()

	// Best-effort: races on offer.total_claims are acceptable; the
	// entitlements table remains ground truth.
	if err := s.store.IncrementOfferClaims(ctx, offerID); err != nil {
		s.log.Warn().Err(err).Str("offer_id", offerID).Msg("redemption: best-effort claim counter increment failed")
	}

	if err := s.markDailyClaim(ctx, userID, offerID, now); err != nil {
		s.log.Warn().Err(err).Msg("redemption: failed to set daily KV marker after successful claim")
	}

	s.emitter.Emit(ctx, analytics.EventOfferClaim, map[string]any{
		"entitlement_id": entitlement.ID,
		"user_id":        userID,
		"offer_id":       offerID,
	}, now)

	return ClaimResult{EntitlementID: entitlement.ID, ExpiresAt: entitlement.ExpiresAt}, nil
}

func checkOfferEligible(offer store.Offer, now time.Time, loc *time.Location) *Error {
	if !offer.IsActive {
		return NewError(KindIneligibleOffer, "offer is not active")
	}
	if now.Before(offer.ValidFrom) || now.After(offer.ValidUntil) {
		return NewError(KindIneligibleOffer, "offer is outside its validity window")
	}
	if offer.TimeFrom != nil && offer.TimeUntil != nil {
		if !withinDailyWindow(now, loc, *offer.TimeFrom, *offer.TimeUntil) {
			return NewError(KindIneligibleOffer, "offer is outside its daily time window")
		}
	}
	if len(offer.ValidWeekdays) > 0 && !weekdayAllowed(now, loc, offer.ValidWeekdays) {
		return NewError(KindIneligibleOffer, "offer is not valid on this weekday")
	}
	if offer.MaxTotalClaims != nil && offer.TotalClaims >= *offer.MaxTotalClaims {
		return NewError(KindIneligibleOffer, "offer has reached its claim cap")
	}
	return nil
}

func withinDailyWindow(now time.Time, loc *time.Location, from, until string) bool {
	local := now.In(loc)
	cur := local.Format("15:04")
	return cur >= from && cur <= until
}

func weekdayAllowed(now time.Time, loc *time.Location, allowed []time.Weekday) bool {
	today := now.In(loc).Weekday()
	for _, d := range allowed {
		if d == today {
			return true
		}
	}
	return false
}

// checkDailyQuota implements the Daily-Quota Ledger (C6): the KV
// marker is the fast path, the Store's unique index is ground truth.
func (s *Service) checkDailyQuota(ctx context.Context, userID, offerID string, now time.Time) *Error {
	key := dailyMarkerKey(userID, offerID, now, s.loc)
	_, ok, err := s.kvStore.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Msg("redemption: daily marker check unavailable, falling through to store")
	} else if ok {
		return NewError(KindDailyLimit, "daily claim marker already present")
	}
	return nil
}

func (s *Service) markDailyClaim(ctx context.Context, userID, offerID string, now time.Time) error {
	key := dailyMarkerKey(userID, offerID, now, s.loc)
	ttl := clock.UntilNextLocalMidnight(now, s.loc)
	return s.kvStore.SetWithTTL(ctx, key, "1", ttl)
}

func dailyMarkerKey(userID, offerID string, now time.Time, loc *time.Location) string {
	return fmt.Sprintf("claim:daily:%s:%s:%s", userID, offerID, clock.LocalDateString(now, loc))
}

// ProveResult is returned by Prove.
type ProveResult struct {
	Token     string
	ExpiresAt time.Time
	TTLSeconds int64
}

// Prove issues a short-lived single-use proof token for an ACTIVE
// entitlement owned by callerUserID. It never mutates state.
func (s *Service) Prove(ctx context.Context, entitlementID, callerUserID string) (ProveResult, error) {
	ent, err := s.store.GetEntitlement(ctx, entitlementID)
	if err != nil {
		if err == store.ErrNotFound {
			return ProveResult{}, NewError(KindNotFound, "entitlement not found")
		}
		return ProveResult{}, Wrap(KindTransient, "load entitlement", err)
	}
	if ent.UserID != callerUserID {
		return ProveResult{}, NewError(KindForbidden, "entitlement not owned by caller")
	}

	now := s.clock.Now()
	res := statemachine.Check(ent.State, statemachine.EventProve, statemachine.Metadata{
		ExpiresAt: ent.ExpiresAt, Now: now, Loc: s.loc,
	})
	if !res.OK {
		return ProveResult{}, NewError(KindInvalidState, string(res.Reason))
	}

	token, expiresAt, err := s.broker.Issue(ctx, ent.ID, ent.UserID, ent.OfferID, ent.DeviceID, now)
	if err != nil {
		return ProveResult{}, Wrap(KindTransient, "issue proof token", err)
	}
	return ProveResult{Token: token, ExpiresAt: expiresAt, TTLSeconds: int64(expiresAt.Sub(now).Seconds())}, nil
}

// ValidateResult is returned by Validate on a PASS.
type ValidateResult struct {
	EntitlementID string
	Offer         store.Offer
	Merchant      store.Merchant
	User          store.User
}

// Validate consumes a proof token and transitions the entitlement to
// PENDING_CONFIRMATION. callerDeviceID is the device asserted by the
// merchant terminal, if any; it is checked only when the entitlement
// also recorded a device_id at claim time.
func (s *Service) Validate(ctx context.Context, token string, callerDeviceID *string) (ValidateResult, error) {
	rec, ok, err := s.broker.Consume(ctx, token)
	if err != nil {
		return ValidateResult{}, Wrap(KindTransient, "consume proof token", err)
	}
	if !ok {
		return ValidateResult{}, NewError(KindInvalidOrExpired, "token unknown or already consumed")
	}

	ent, err := s.store.GetEntitlement(ctx, rec.EntitlementID)
	if err != nil {
		return ValidateResult{}, NewError(KindInvalidOrExpired, "entitlement for token no longer exists")
	}

	now := s.clock.Now()
	check := statemachine.Check(ent.State, statemachine.EventValidate, statemachine.Metadata{
		ExpiresAt: ent.ExpiresAt, Now: now, Loc: s.loc,
	})
	if !check.OK {
		return ValidateResult{}, NewError(KindInvalidOrExpired, "validate rejected by state machine")
	}

	if err := s.store.CASEntitlementState(ctx, ent.ID, store.StateActive, store.StatePendingConfirmation, store.EntitlementUpdate{}); err != nil {
		if err == store.ErrCASMismatch {
			s.metrics.casConflicts.WithLabelValues("validate").Inc()
			return ValidateResult{}, NewError(KindInvalidOrExpired, "entitlement changed concurrently")
		}
		return ValidateResult{}, Wrap(KindTransient, "cas validate", err)
	}

	if ent.DeviceID != nil && callerDeviceID != nil && *ent.DeviceID != *callerDeviceID {
		_ = s.store.CASEntitlementState(ctx, ent.ID, store.StatePendingConfirmation, store.StateActive, store.EntitlementUpdate{})
		return ValidateResult{}, NewError(KindDeviceMismatch, "device binding mismatch")
	}

	offer, err := s.catalog.GetOffer(ctx, ent.OfferID)
	if err != nil {
		return ValidateResult{}, Wrap(KindTransient, "load offer for display", err)
	}
	merchant, err := s.catalog.GetMerchant(ctx, offer.MerchantID)
	if err != nil {
		return ValidateResult{}, Wrap(KindTransient, "load merchant for display", err)
	}
	user, err := s.catalog.GetUser(ctx, ent.UserID)
	if err != nil {
		return ValidateResult{}, Wrap(KindTransient, "load user for display", err)
	}

	return ValidateResult{EntitlementID: ent.ID, Offer: offer, Merchant: merchant, User: user}, nil
}

// ConfirmResult is returned by Confirm.
type ConfirmResult struct {
	RedemptionID string
	Discount     money.Amount
	Final        money.Amount
	RedeemedAt   time.Time
}

// Confirm calculates savings for a PENDING_CONFIRMATION entitlement
// and records the redemption, transitioning it to USED.
func (s *Service) Confirm(ctx context.Context, entitlementID string, totalBill money.Amount, finalAmount *money.Amount) (ConfirmResult, error) {
	ent, err := s.store.GetEntitlement(ctx, entitlementID)
	if err != nil {
		if err == store.ErrNotFound {
			return ConfirmResult{}, NewError(KindNotFound, "entitlement not found")
		}
		return ConfirmResult{}, Wrap(KindTransient, "load entitlement", err)
	}
	if ent.State != store.StatePendingConfirmation {
		return ConfirmResult{}, NewError(KindInvalidState, "confirm requires PENDING_CONFIRMATION")
	}
	if !totalBill.IsPositive() {
		return ConfirmResult{}, NewError(KindInvalidArgument, "total_bill must be positive")
	}

	offer, err := s.catalog.GetOffer(ctx, ent.OfferID)
	if err != nil {
		return ConfirmResult{}, Wrap(KindTransient, "load offer", err)
	}

	timer := prometheus.NewTimer(s.metrics.confirmDuration)
	defer timer.ObserveDuration()

	calc, err := savings.Calculate(offer, totalBill, finalAmount)
	if err != nil {
		return ConfirmResult{}, NewError(KindInvalidArgument, err.Error())
	}

	now := s.clock.Now()
	redemption := store.Redemption{
		ID:             uuid.NewString(),
		EntitlementID:  ent.ID,
		MerchantID:     offer.MerchantID,
		OfferID:        offer.ID,
		UserID:         ent.UserID,
		TotalBill:      totalBill,
		DiscountAmount: calc.Discount,
		FinalAmount:    calc.Final,
		OfferType:      offer.OfferType,
		RedeemedAt:     now,
	}

	if err := s.store.InsertRedemptionAndUseEntitlement(ctx, redemption, ent.ID, now); err != nil {
		if err == store.ErrCASMismatch {
			s.metrics.casConflicts.WithLabelValues("confirm").Inc()
			return ConfirmResult{}, NewError(KindInvalidState, "entitlement changed concurrently")
		}
		return ConfirmResult{}, Wrap(KindTransient, "confirm transaction", err)
	}

	s.emitter.Emit(ctx, analytics.EventRedemptionConfirmed, map[string]any{
		"redemption_id":  redemption.ID,
		"entitlement_id": ent.ID,
		"discount":       calc.Discount.String(),
		"final":          calc.Final.String(),
	}, now)

	return ConfirmResult{RedemptionID: redemption.ID, Discount: calc.Discount, Final: calc.Final, RedeemedAt: now}, nil
}

// VoidResult is returned by Void.
type VoidResult struct {
	VoidedAt time.Time
}

// Void reverses a USED entitlement within its void window, provided
// the redemption happened on the same calendar day.
func (s *Service) Void(ctx context.Context, entitlementID, reason string) (VoidResult, error) {
	ent, err := s.store.GetEntitlement(ctx, entitlementID)
	if err != nil {
		if err == store.ErrNotFound {
			return VoidResult{}, NewError(KindNotFound, "entitlement not found")
		}
		return VoidResult{}, Wrap(KindTransient, "load entitlement", err)
	}

	now := s.clock.Now()
	check := statemachine.Check(ent.State, statemachine.EventVoid, statemachine.Metadata{
		UsedAt: ent.UsedAt, Now: now, VoidWindow: s.voidWindow, Loc: s.loc,
	})
	if !check.OK {
		if check.Reason == statemachine.ReasonVoidWindow {
			return VoidResult{}, NewError(KindVoidWindowExpired, string(check.Reason))
		}
		return VoidResult{}, NewError(KindInvalidState, string(check.Reason))
	}

	if err := s.store.VoidRedemptionAndEntitlement(ctx, ent.ID, reason, now); err != nil {
		if err == store.ErrCASMismatch {
			s.metrics.casConflicts.WithLabelValues("void").Inc()
			return VoidResult{}, NewError(KindInvalidState, "entitlement changed concurrently")
		}
		return VoidResult{}, Wrap(KindTransient, "void transaction", err)
	}

	// The store's unique index already excludes VOIDED rows, but the
	// KV daily marker is a fast-path cache that doesn't know that — clear
	// it too, so a same-day re-claim after a void doesn't wait out the
	// marker's TTL even though the Store would already allow it.
	markerKey := dailyMarkerKey(ent.UserID, ent.OfferID, ent.ClaimedAt, s.loc)
	if _, err := s.kvStore.Delete(ctx, markerKey); err != nil {
		s.log.Warn().Err(err).Msg("redemption: failed to clear daily marker after void")
	}

	s.emitter.Emit(ctx, analytics.EventRedemptionVoided, map[string]any{
		"entitlement_id": ent.ID,
		"reason":         reason,
	}, now)

	return VoidResult{VoidedAt: now}, nil
}

// ListEntitlements supports GET entitlements?state=....
func (s *Service) ListEntitlements(ctx context.Context, userID string, state store.EntitlementState) ([]store.Entitlement, error) {
	ents, err := s.store.ListEntitlementsByUser(ctx, userID, state)
	if err != nil {
		return nil, Wrap(KindTransient, "list entitlements", err)
	}
	return ents, nil
}

// EntitlementDisplay pairs an entitlement with the offer title and
// merchant name the entitlement list endpoint needs to render.
type EntitlementDisplay struct {
	store.Entitlement
	OfferTitle   string
	MerchantName string
}

// ListEntitlementsWithDisplay is [EXPANSION]: resolves the offer
// title and merchant name the plain entitlement row doesn't carry, so
// the handler doesn't need its own catalog lookups.
func (s *Service) ListEntitlementsWithDisplay(ctx context.Context, userID string, state store.EntitlementState) ([]EntitlementDisplay, error) {
	ents, err := s.ListEntitlements(ctx, userID, state)
	if err != nil {
		return nil, err
	}
	out := make([]EntitlementDisplay, 0, len(ents))
	for _, e := range ents {
		d := EntitlementDisplay{Entitlement: e}
		if offer, err := s.catalog.GetOffer(ctx, e.OfferID); err == nil {
			d.OfferTitle = fmt.Sprintf("%s %s", offer.OfferType, offer.DiscountValue)
			if merchant, err := s.catalog.GetMerchant(ctx, offer.MerchantID); err == nil {
				d.MerchantName = merchant.Name
			}
		}
		out = append(out, d)
	}
	return out, nil
}

// ListRedemptionsForMerchant supports the [EXPANSION] GET
// redemptions?merchant_id= read model.
func (s *Service) ListRedemptionsForMerchant(ctx context.Context, merchantID string) ([]store.Redemption, error) {
	rs, err := s.store.ListRedemptions(ctx, store.RedemptionFilter{MerchantID: merchantID})
	if err != nil {
		return nil, Wrap(KindTransient, "list redemptions for merchant", err)
	}
	return rs, nil
}

// OfferClaimsResult is the read-only claim-count projection served at
// [EXPANSION] GET offers/{id}/claims.
type OfferClaimsResult struct {
	OfferID        string
	TotalClaims    int64
	MaxTotalClaims *int64
}

// OfferClaims reports the claim counter already carried on the offer
// row loaded via the catalog — no separate aggregation query.
func (s *Service) OfferClaims(ctx context.Context, offerID string) (OfferClaimsResult, error) {
	offer, err := s.catalog.GetOffer(ctx, offerID)
	if err != nil {
		if err == store.ErrNotFound {
			return OfferClaimsResult{}, NewError(KindNotFound, "offer not found")
		}
		return OfferClaimsResult{}, Wrap(KindTransient, "load offer", err)
	}
	return OfferClaimsResult{
		OfferID:        offer.ID,
		TotalClaims:    offer.TotalClaims,
		MaxTotalClaims: offer.MaxTotalClaims,
	}, nil
}

// SweepResult reports how many entitlements were swept.
type SweepResult struct {
	Expired int
}

// Sweep expires ACTIVE/PENDING_CONFIRMATION entitlements past their
// expires_at. It is idempotent: a row already moved on by a
// concurrent sweep is simply skipped.
func (s *Service) Sweep(ctx context.Context, batchSize int) (SweepResult, error) {
	now := s.clock.Now()
	expirable, err := s.store.ListExpirable(ctx, now, batchSize)
	if err != nil {
		return SweepResult{}, Wrap(KindTransient, "list expirable", err)
	}

	var n int
	for _, ent := range expirable {
		check := statemachine.Check(ent.State, statemachine.EventSweep, statemachine.Metadata{
			ExpiresAt: ent.ExpiresAt, Now: now, Loc: s.loc,
		})
		if !check.OK {
			continue
		}
		if err := s.store.CASEntitlementState(ctx, ent.ID, ent.State, store.StateExpired, store.EntitlementUpdate{}); err != nil {
			if err == store.ErrCASMismatch {
				continue // already moved on by a concurrent sweep; fine, idempotent
			}
			s.log.Warn().Err(err).Str("entitlement_id", ent.ID).Msg("redemption: sweep cas failed")
			continue
		}
		n++
	}
	return SweepResult{Expired: n}, nil
}

// Savings summarizes non-voided redemptions for GET savings.
type Savings struct {
	TotalRedemptions int
	TotalSavings     money.Amount
	TotalSpent       money.Amount
}

// GetSavings implements GET savings for userID.
func (s *Service) GetSavings(ctx context.Context, userID string) (Savings, error) {
	redemptions, err := s.store.ListRedemptions(ctx, store.RedemptionFilter{UserID: userID, ExcludeVoided: true})
	if err != nil {
		return Savings{}, Wrap(KindTransient, "list redemptions", err)
	}
	out := Savings{TotalSavings: money.Zero, TotalSpent: money.Zero}
	for _, r := range redemptions {
		out.TotalRedemptions++
		out.TotalSavings = out.TotalSavings.Add(r.DiscountAmount)
		out.TotalSpent = out.TotalSpent.Add(r.FinalAmount)
	}
	return out, nil
}
