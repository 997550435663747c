package redemption_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/redemption-core/analytics"
	"github.com/warp/redemption-core/clock"
	"github.com/warp/redemption-core/kv"
	"github.com/warp/redemption-core/money"
	"github.com/warp/redemption-core/redemption"
	"github.com/warp/redemption-core/store"
	"github.com/warp/redemption-core/store/memstore"
	"github.com/warp/redemption-core/tokenbroker"
)

func newTestService(t *testing.T, fc *clock.Frozen) (*redemption.Service, *memstore.Memstore) {
	t.Helper()
	loc := time.UTC
	ms := memstore.New(loc)
	kvStore := kv.NewMemory(func() time.Time { return fc.Now() })
	broker := tokenbroker.New(kvStore, 30*time.Second, 24)
	emitter := analytics.New(ms, zerolog.Nop())
	svc := redemption.New(ms, kvStore, broker, emitter, fc, loc, 2*time.Hour, zerolog.Nop())
	return svc, ms
}

func seedPercentageOffer(ms *memstore.Memstore, now time.Time) {
	ms.SeedMerchant(store.Merchant{ID: "m1", Name: "Merchant One", IsActive: true})
	ms.SeedUser(store.User{ID: "u1"})
	ms.SeedOffer(store.Offer{
		ID:            "o1",
		MerchantID:    "m1",
		OfferType:     store.OfferPercentage,
		DiscountValue: "20%",
		IsActive:      true,
		ValidFrom:     now.Add(-24 * time.Hour),
		ValidUntil:    now.Add(24 * time.Hour),
	})
}

func seedBundleOffer(ms *memstore.Memstore, now time.Time) {
	ms.SeedMerchant(store.Merchant{ID: "m2", Name: "Merchant Two", IsActive: true})
	ms.SeedUser(store.User{ID: "u2"})
	original, _ := money.FromString("100.00")
	discounted, _ := money.FromString("75.00")
	ms.SeedOffer(store.Offer{
		ID:              "o2",
		MerchantID:      "m2",
		OfferType:       store.OfferBundle,
		OriginalPrice:   original,
		DiscountedPrice: discounted,
		IsActive:        true,
		ValidFrom:       now.Add(-24 * time.Hour),
		ValidUntil:      now.Add(24 * time.Hour),
	})
}

func TestEndToEndS1ThroughS6(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fc := clock.NewFrozen(start)
	svc, ms := newTestService(t, fc)
	seedPercentageOffer(ms, start)

	// S1
	claim, err := svc.Claim(ctx, "u1", "o1", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, claim.EntitlementID)
	assert.Equal(t, time.Date(2026, 3, 1, 23, 59, 59, 999999999, time.UTC), claim.ExpiresAt)

	// S2
	prove, err := svc.Prove(ctx, claim.EntitlementID, "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, prove.Token)
	assert.Equal(t, int64(30), prove.TTLSeconds)
	assert.Equal(t, start.Add(30*time.Second), prove.ExpiresAt)

	// S3
	validated, err := svc.Validate(ctx, prove.Token, nil)
	require.NoError(t, err)
	assert.Equal(t, claim.EntitlementID, validated.EntitlementID)
	ent, err := ms.GetEntitlement(ctx, claim.EntitlementID)
	require.NoError(t, err)
	assert.Equal(t, store.StatePendingConfirmation, ent.State)

	// S4
	totalBill, err := money.FromString("50.00")
	require.NoError(t, err)
	confirm, err := svc.Confirm(ctx, claim.EntitlementID, totalBill, nil)
	require.NoError(t, err)
	assert.Equal(t, "10.00", confirm.Discount.String())
	assert.Equal(t, "40.00", confirm.Final.String())
	ent, err = ms.GetEntitlement(ctx, claim.EntitlementID)
	require.NoError(t, err)
	assert.Equal(t, store.StateUsed, ent.State)

	// S5
	fc.Set(time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC))
	voidRes, err := svc.Void(ctx, claim.EntitlementID, "customer changed order, refunded via card")
	require.NoError(t, err)
	assert.Equal(t, fc.Now(), voidRes.VoidedAt)
	ent, err = ms.GetEntitlement(ctx, claim.EntitlementID)
	require.NoError(t, err)
	assert.Equal(t, store.StateVoided, ent.State)
	red, err := ms.GetRedemptionByEntitlement(ctx, claim.EntitlementID)
	require.NoError(t, err)
	assert.True(t, red.IsVoided)

	// S6: daily uniqueness excludes VOIDED, so a fresh claim the same day succeeds.
	fc.Set(time.Date(2026, 3, 1, 11, 5, 0, 0, time.UTC))
	claim2, err := svc.Claim(ctx, "u1", "o1", nil)
	require.NoError(t, err)
	assert.NotEqual(t, claim.EntitlementID, claim2.EntitlementID)
	ent2, err := ms.GetEntitlement(ctx, claim2.EntitlementID)
	require.NoError(t, err)
	assert.Equal(t, store.StateActive, ent2.State)
}

func TestEndToEndS7Bundle(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fc := clock.NewFrozen(start)
	svc, ms := newTestService(t, fc)
	seedBundleOffer(ms, start)

	claim, err := svc.Claim(ctx, "u2", "o2", nil)
	require.NoError(t, err)

	prove, err := svc.Prove(ctx, claim.EntitlementID, "u2")
	require.NoError(t, err)

	_, err = svc.Validate(ctx, prove.Token, nil)
	require.NoError(t, err)

	totalBill, err := money.FromString("100.00")
	require.NoError(t, err)
	confirm, err := svc.Confirm(ctx, claim.EntitlementID, totalBill, nil)
	require.NoError(t, err)
	assert.Equal(t, "25.00", confirm.Discount.String())
	assert.Equal(t, "75.00", confirm.Final.String())
}

func TestEndToEndS8ConcurrentValidate(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fc := clock.NewFrozen(start)
	svc, ms := newTestService(t, fc)
	seedPercentageOffer(ms, start)

	claim, err := svc.Claim(ctx, "u1", "o1", nil)
	require.NoError(t, err)
	prove, err := svc.Prove(ctx, claim.EntitlementID, "u1")
	require.NoError(t, err)

	const attempts = 4
	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.Validate(ctx, prove.Token, nil)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins, "exactly one concurrent validate should PASS")
}

func TestDailyLimitRejectsSecondClaimSameDay(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fc := clock.NewFrozen(start)
	svc, ms := newTestService(t, fc)
	seedPercentageOffer(ms, start)

	_, err := svc.Claim(ctx, "u1", "o1", nil)
	require.NoError(t, err)

	_, err = svc.Claim(ctx, "u1", "o1", nil)
	require.Error(t, err)
	de, ok := redemption.AsError(err)
	require.True(t, ok)
	assert.Equal(t, redemption.KindDailyLimit, de.Kind)
}

func TestValidateTwiceSecondFails(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fc := clock.NewFrozen(start)
	svc, ms := newTestService(t, fc)
	seedPercentageOffer(ms, start)

	claim, err := svc.Claim(ctx, "u1", "o1", nil)
	require.NoError(t, err)
	prove, err := svc.Prove(ctx, claim.EntitlementID, "u1")
	require.NoError(t, err)

	_, err = svc.Validate(ctx, prove.Token, nil)
	require.NoError(t, err)

	_, err = svc.Validate(ctx, prove.Token, nil)
	require.Error(t, err)
	de, ok := redemption.AsError(err)
	require.True(t, ok)
	assert.Equal(t, redemption.KindInvalidOrExpired, de.Kind)
}

func TestConfirmOnUsedEntitlementReturnsInvalidState(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fc := clock.NewFrozen(start)
	svc, ms := newTestService(t, fc)
	seedPercentageOffer(ms, start)

	claim, err := svc.Claim(ctx, "u1", "o1", nil)
	require.NoError(t, err)
	prove, err := svc.Prove(ctx, claim.EntitlementID, "u1")
	require.NoError(t, err)
	_, err = svc.Validate(ctx, prove.Token, nil)
	require.NoError(t, err)

	totalBill, _ := money.FromString("50.00")
	_, err = svc.Confirm(ctx, claim.EntitlementID, totalBill, nil)
	require.NoError(t, err)

	_, err = svc.Confirm(ctx, claim.EntitlementID, totalBill, nil)
	require.Error(t, err)
	de, ok := redemption.AsError(err)
	require.True(t, ok)
	assert.Equal(t, redemption.KindInvalidState, de.Kind)
}

func TestVoidTwiceSecondFails(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fc := clock.NewFrozen(start)
	svc, ms := newTestService(t, fc)
	seedPercentageOffer(ms, start)

	claim, err := svc.Claim(ctx, "u1", "o1", nil)
	require.NoError(t, err)
	prove, err := svc.Prove(ctx, claim.EntitlementID, "u1")
	require.NoError(t, err)
	_, err = svc.Validate(ctx, prove.Token, nil)
	require.NoError(t, err)
	totalBill, _ := money.FromString("50.00")
	_, err = svc.Confirm(ctx, claim.EntitlementID, totalBill, nil)
	require.NoError(t, err)

	_, err = svc.Void(ctx, claim.EntitlementID, "reason long enough to pass validation")
	require.NoError(t, err)

	_, err = svc.Void(ctx, claim.EntitlementID, "reason long enough to pass validation")
	require.Error(t, err)
	de, ok := redemption.AsError(err)
	require.True(t, ok)
	assert.Equal(t, redemption.KindInvalidState, de.Kind)
}

func TestSweepIsIdempotent(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fc := clock.NewFrozen(start)
	svc, ms := newTestService(t, fc)
	seedPercentageOffer(ms, start)

	claim, err := svc.Claim(ctx, "u1", "o1", nil)
	require.NoError(t, err)

	fc.Set(time.Date(2026, 3, 2, 0, 0, 1, 0, time.UTC))
	res1, err := svc.Sweep(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res1.Expired)

	res2, err := svc.Sweep(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, res2.Expired)

	ent, err := ms.GetEntitlement(ctx, claim.EntitlementID)
	require.NoError(t, err)
	assert.Equal(t, store.StateExpired, ent.State)
}

func TestMetricsRecordsClaimOutcomes(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fc := clock.NewFrozen(start)
	svc, ms := newTestService(t, fc)
	seedPercentageOffer(ms, start)

	_, err := svc.Claim(ctx, "u1", "o1", nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	svc.Metrics().Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `redemption_claims_total{outcome="success"} 1`)
}

func TestConfirmRejectsNonPositiveTotalBill(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fc := clock.NewFrozen(start)
	svc, ms := newTestService(t, fc)
	seedPercentageOffer(ms, start)

	claim, err := svc.Claim(ctx, "u1", "o1", nil)
	require.NoError(t, err)
	prove, err := svc.Prove(ctx, claim.EntitlementID, "u1")
	require.NoError(t, err)
	_, err = svc.Validate(ctx, prove.Token, nil)
	require.NoError(t, err)

	zero, err := money.FromString("0.00")
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, claim.EntitlementID, zero, nil)
	require.Error(t, err)
	de, ok := redemption.AsError(err)
	require.True(t, ok)
	assert.Equal(t, redemption.KindInvalidArgument, de.Kind)

	negative, err := money.FromString("-5.00")
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, claim.EntitlementID, negative, nil)
	require.Error(t, err)
	de, ok = redemption.AsError(err)
	require.True(t, ok)
	assert.Equal(t, redemption.KindInvalidArgument, de.Kind)

	// entitlement is still PENDING_CONFIRMATION, so a valid bill still confirms.
	totalBill, err := money.FromString("50.00")
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, claim.EntitlementID, totalBill, nil)
	require.NoError(t, err)
}

func TestOfferClaimsReflectsClaimCounter(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fc := clock.NewFrozen(start)
	svc, ms := newTestService(t, fc)
	seedPercentageOffer(ms, start)

	before, err := svc.OfferClaims(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "o1", before.OfferID)
	assert.Equal(t, int64(0), before.TotalClaims)

	_, err = svc.Claim(ctx, "u1", "o1", nil)
	require.NoError(t, err)

	after, err := svc.OfferClaims(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), after.TotalClaims)

	_, err = svc.OfferClaims(ctx, "missing-offer")
	require.Error(t, err)
	de, ok := redemption.AsError(err)
	require.True(t, ok)
	assert.Equal(t, redemption.KindNotFound, de.Kind)
}
