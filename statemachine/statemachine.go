/*
Package statemachine validates entitlement lifecycle transitions
(component C4). It is a pure function over (from_state, event, time,
metadata) — no I/O, no persistence, no clock reads of its own; callers
pass in "now" so tests can pin exact boundaries.

The DAG:

	ACTIVE ──Prove──▶ ACTIVE                       (no state change, issues token)
	ACTIVE ──Validate──▶ PENDING_CONFIRMATION
	PENDING_CONFIRMATION ──Confirm──▶ USED
	PENDING_CONFIRMATION ──Abort/timeout──▶ ACTIVE
	USED ──Void(within window, same day)──▶ VOIDED
	ACTIVE ──Sweep(expired)──▶ EXPIRED
	PENDING_CONFIRMATION ──Sweep(expired)──▶ EXPIRED

VOIDED and EXPIRED are terminal; no transition leaves them.
*/
package statemachine

import (
	"time"

	"github.com/warp/redemption-core/store"
)

// Event names a requested transition.
type Event string

const (
	EventProve    Event = "prove"
	EventValidate Event = "validate"
	EventConfirm  Event = "confirm"
	EventAbort    Event = "abort"
	EventVoid     Event = "void"
	EventSweep    Event = "sweep"
)

// Reason names why a transition was rejected.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonWrongState       Reason = "wrong state for event"
	ReasonExpired          Reason = "entitlement past expires_at"
	ReasonTerminal         Reason = "terminal state, no transitions permitted"
	ReasonReplay           Reason = "validate replay on non-ACTIVE entitlement"
	ReasonNotUsed          Reason = "void requires a USED entitlement"
	ReasonVoidWindow       Reason = "outside void window or different calendar day"
	ReasonNotExpirable     Reason = "entitlement is not past its expiry"
)

// Metadata carries the fields a transition needs beyond (state, event, now).
type Metadata struct {
	ExpiresAt     time.Time
	UsedAt        *time.Time
	Now           time.Time
	VoidWindow    time.Duration
	Loc           *time.Location
}

// Result is the outcome of a transition check.
type Result struct {
	OK     bool
	Next   store.EntitlementState
	Reason Reason
}

func rejected(reason Reason) Result {
	return Result{OK: false, Reason: reason}
}

func accepted(next store.EntitlementState) Result {
	return Result{OK: true, Next: next}
}

// Check evaluates whether event is legal from the current state, given
// md, and returns the resulting state on success.
func Check(current store.EntitlementState, event Event, md Metadata) Result {
	switch event {
	case EventProve:
		return checkProve(current, md)
	case EventValidate:
		return checkValidate(current, md)
	case EventConfirm:
		return checkConfirm(current)
	case EventAbort:
		return checkAbort(current)
	case EventVoid:
		return checkVoid(current, md)
	case EventSweep:
		return checkSweep(current, md)
	default:
		return rejected(ReasonWrongState)
	}
}

func checkProve(current store.EntitlementState, md Metadata) Result {
	if current != store.StateActive {
		return rejected(ReasonWrongState)
	}
	if !md.Now.Before(md.ExpiresAt) {
		return rejected(ReasonExpired)
	}
	return accepted(store.StateActive)
}

// checkValidate rejects replay: Validate is only legal from ACTIVE, so
// a second Validate against an entitlement already in
// PENDING_CONFIRMATION (or beyond) is refused.
func checkValidate(current store.EntitlementState, md Metadata) Result {
	if current != store.StateActive {
		if current == store.StatePendingConfirmation {
			return rejected(ReasonReplay)
		}
		return rejected(ReasonWrongState)
	}
	if !md.Now.Before(md.ExpiresAt) {
		return rejected(ReasonExpired)
	}
	return accepted(store.StatePendingConfirmation)
}

func checkConfirm(current store.EntitlementState) Result {
	if current != store.StatePendingConfirmation {
		return rejected(ReasonWrongState)
	}
	return accepted(store.StateUsed)
}

func checkAbort(current store.EntitlementState) Result {
	if current != store.StatePendingConfirmation {
		return rejected(ReasonWrongState)
	}
	return accepted(store.StateActive)
}

// checkVoid requires both the void-window duration and the same
// calendar day to hold; either one alone is not enough.
func checkVoid(current store.EntitlementState, md Metadata) Result {
	if current != store.StateUsed {
		return rejected(ReasonNotUsed)
	}
	if md.UsedAt == nil {
		return rejected(ReasonNotUsed)
	}
	withinWindow := !md.Now.After(md.UsedAt.Add(md.VoidWindow))
	sameDay := sameLocalDay(*md.UsedAt, md.Now, md.Loc)
	if !withinWindow || !sameDay {
		return rejected(ReasonVoidWindow)
	}
	return accepted(store.StateVoided)
}

func checkSweep(current store.EntitlementState, md Metadata) Result {
	if current != store.StateActive && current != store.StatePendingConfirmation {
		return rejected(ReasonTerminal)
	}
	if md.Now.Before(md.ExpiresAt) {
		return rejected(ReasonNotExpirable)
	}
	return accepted(store.StateExpired)
}

func sameLocalDay(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
