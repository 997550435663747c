package statemachine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/warp/redemption-core/statemachine"
	"github.com/warp/redemption-core/store"
)

var loc = time.UTC

func TestProveOnlyFromActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, loc)
	md := statemachine.Metadata{ExpiresAt: now.Add(time.Hour), Now: now, Loc: loc}

	res := statemachine.Check(store.StateActive, statemachine.EventProve, md)
	assert.True(t, res.OK)
	assert.Equal(t, store.StateActive, res.Next)

	for _, s := range []store.EntitlementState{
		store.StatePendingConfirmation, store.StateUsed, store.StateVoided, store.StateExpired,
	} {
		res := statemachine.Check(s, statemachine.EventProve, md)
		assert.False(t, res.OK, "prove should be rejected from %s", s)
	}
}

func TestValidateRejectsReplay(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, loc)
	md := statemachine.Metadata{ExpiresAt: now.Add(time.Hour), Now: now, Loc: loc}

	res := statemachine.Check(store.StateActive, statemachine.EventValidate, md)
	assert.True(t, res.OK)
	assert.Equal(t, store.StatePendingConfirmation, res.Next)

	res = statemachine.Check(store.StatePendingConfirmation, statemachine.EventValidate, md)
	assert.False(t, res.OK)
	assert.Equal(t, statemachine.ReasonReplay, res.Reason)
}

func TestVoidWindowExactBoundary(t *testing.T) {
	usedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, loc)
	window := 2 * time.Hour

	atBoundary := usedAt.Add(window)
	md := statemachine.Metadata{UsedAt: &usedAt, Now: atBoundary, VoidWindow: window, Loc: loc}
	res := statemachine.Check(store.StateUsed, statemachine.EventVoid, md)
	assert.True(t, res.OK, "exactly at the window boundary must still be allowed")

	oneMicrosecondLater := atBoundary.Add(time.Microsecond)
	md.Now = oneMicrosecondLater
	res = statemachine.Check(store.StateUsed, statemachine.EventVoid, md)
	assert.False(t, res.OK)
	assert.Equal(t, statemachine.ReasonVoidWindow, res.Reason)
}

func TestVoidRejectsDifferentCalendarDay(t *testing.T) {
	usedAt := time.Date(2026, 3, 1, 23, 30, 0, 0, loc)
	md := statemachine.Metadata{
		UsedAt:     &usedAt,
		Now:        time.Date(2026, 3, 2, 0, 30, 0, 0, loc),
		VoidWindow: 2 * time.Hour,
		Loc:        loc,
	}
	res := statemachine.Check(store.StateUsed, statemachine.EventVoid, md)
	assert.False(t, res.OK, "within 2h but across midnight must still be rejected")
	assert.Equal(t, statemachine.ReasonVoidWindow, res.Reason)
}

func TestVoidOnlyFromUsed(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, loc)
	md := statemachine.Metadata{Now: now, VoidWindow: 2 * time.Hour, Loc: loc}
	res := statemachine.Check(store.StateActive, statemachine.EventVoid, md)
	assert.False(t, res.OK)
	assert.Equal(t, statemachine.ReasonNotUsed, res.Reason)
}

func TestSweepExpiresStaleActiveAndPending(t *testing.T) {
	now := time.Date(2026, 3, 1, 23, 59, 59, 0, loc)
	md := statemachine.Metadata{ExpiresAt: now.Add(-time.Second), Now: now, Loc: loc}

	for _, s := range []store.EntitlementState{store.StateActive, store.StatePendingConfirmation} {
		res := statemachine.Check(s, statemachine.EventSweep, md)
		assert.True(t, res.OK)
		assert.Equal(t, store.StateExpired, res.Next)
	}

	for _, s := range []store.EntitlementState{store.StateUsed, store.StateVoided, store.StateExpired} {
		res := statemachine.Check(s, statemachine.EventSweep, md)
		assert.False(t, res.OK, "terminal/used states must not be swept")
	}
}

func TestSweepRejectsNotYetExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, loc)
	md := statemachine.Metadata{ExpiresAt: now.Add(time.Hour), Now: now, Loc: loc}
	res := statemachine.Check(store.StateActive, statemachine.EventSweep, md)
	assert.False(t, res.OK)
	assert.Equal(t, statemachine.ReasonNotExpirable, res.Reason)
}
