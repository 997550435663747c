/*
Package store defines the persistent data model and the transactional
contract the redemption core depends on (component C3), plus two
implementations: store/sql (sqlite/postgres, selected by DSN scheme)
and store/memstore (in-process, for tests).

Grounded on the teacher's generic.Store contract and sqlite backend,
generalized from a leave-balance ledger to entitlements/redemptions.
*/
package store

import (
	"context"
	"time"

	"github.com/warp/redemption-core/money"
)

// OfferType is the closed sum type the spec requires in place of the
// original system's free-form offer_type string.
type OfferType string

const (
	OfferPercentage OfferType = "PERCENTAGE"
	OfferBOGO       OfferType = "BOGO"
	OfferBundle     OfferType = "BUNDLE"
)

// EntitlementState is the closed set of states in the lifecycle DAG.
type EntitlementState string

const (
	StateActive               EntitlementState = "ACTIVE"
	StatePendingConfirmation  EntitlementState = "PENDING_CONFIRMATION"
	StateUsed                 EntitlementState = "USED"
	StateVoided               EntitlementState = "VOIDED"
	StateExpired              EntitlementState = "EXPIRED"
)

// Merchant is read-only to the core.
type Merchant struct {
	ID       string
	Name     string
	IsActive bool
	Lat, Lng *float64
}

// Offer is read-only to the core; authored by the catalog collaborator.
type Offer struct {
	ID               string
	MerchantID       string
	CategoryID       string
	OfferType        OfferType
	DiscountValue    string // free-form, e.g. "20%"; parsed by savings.ParsePercentage
	OriginalPrice    money.Amount
	DiscountedPrice  money.Amount
	ValidFrom        time.Time
	ValidUntil       time.Time
	TimeFrom         *string // "HH:MM", optional daily window
	TimeUntil        *string
	ValidWeekdays    []time.Weekday // nil means all days valid
	IsActive         bool
	MaxTotalClaims   *int64 // nil means unbounded
	TotalClaims      int64
	IsFeatured       bool
}

// User is opaque to the core beyond existence; identity is proved
// externally (spec §1, explicitly out of scope).
type User struct {
	ID string
}

// Entitlement is the central entity of the redemption core.
type Entitlement struct {
	ID         string
	UserID     string
	OfferID    string
	DeviceID   *string
	State      EntitlementState
	ClaimedAt  time.Time
	ExpiresAt  time.Time
	UsedAt     *time.Time
	VoidedAt   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Redemption is append-only except for its void fields.
type Redemption struct {
	ID             string
	EntitlementID  string
	MerchantID     string
	OfferID        string
	UserID         string
	TotalBill      money.Amount
	DiscountAmount money.Amount
	FinalAmount    money.Amount
	OfferType      OfferType
	RedeemedAt     time.Time
	IsVoided       bool
	VoidedAt       *time.Time
	VoidReason     *string
}

// AnalyticsEvent is an append-only, free-form domain event (component C10).
type AnalyticsEvent struct {
	ID        string
	EventType string
	Payload   string // JSON
	CreatedAt time.Time
}

// ErrNotFound is returned by single-row lookups when the row is absent.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "store: not found" }

// ErrCASMismatch is returned by conditional updates when the row's
// current state no longer matches the expected "from" state.
var ErrCASMismatch = casMismatchError{}

type casMismatchError struct{}

func (casMismatchError) Error() string { return "store: compare-and-swap mismatch" }

// ErrUniqueViolation is returned when an insert collides with the
// daily-uniqueness partial index (invariant #1).
var ErrUniqueViolation = uniqueViolationError{}

type uniqueViolationError struct{}

func (uniqueViolationError) Error() string { return "store: unique constraint violated" }

// Store is the transactional contract the redemption core depends on.
// Every method may suspend (I/O) and every caller must treat the
// entitlement state as possibly stale the instant after it is read —
// all mutation goes through the CAS methods below.
type Store interface {
	GetOffer(ctx context.Context, offerID string) (Offer, error)
	GetMerchant(ctx context.Context, merchantID string) (Merchant, error)
	GetUser(ctx context.Context, userID string) (User, error)

	// IncrementOfferClaims best-effort bumps offer.total_claims; races
	// on this counter are acceptable (spec §4.9 step 4) and must never
	// block or fail a claim.
	IncrementOfferClaims(ctx context.Context, offerID string) error

	// InsertEntitlement inserts a new ACTIVE entitlement. Returns
	// ErrUniqueViolation if the partial unique index on
	// (user_id, offer_id, date(claimed_at)) WHERE state != VOIDED
	// rejects it.
	InsertEntitlement(ctx context.Context, e Entitlement) error

	GetEntitlement(ctx context.Context, id string) (Entitlement, error)

	// CASEntitlementState updates an entitlement's state only if its
	// current state equals from. extra carries the side-effect fields
	// for that particular transition (used_at, voided_at). Returns
	// ErrCASMismatch if the row's state no longer matches from.
	CASEntitlementState(ctx context.Context, id string, from, to EntitlementState, extra EntitlementUpdate) error

	// ListEntitlementsByUser supports GET entitlements?state=...; an
	// empty state means all states.
	ListEntitlementsByUser(ctx context.Context, userID string, state EntitlementState) ([]Entitlement, error)

	// ListExpirable returns entitlements in ACTIVE or PENDING_CONFIRMATION
	// whose expires_at has passed, for the sweeper (C9 Sweep).
	ListExpirable(ctx context.Context, asOf time.Time, limit int) ([]Entitlement, error)

	// InsertRedemptionAndUseEntitlement performs Confirm's single
	// transaction: append the redemption row and CAS the entitlement
	// PENDING_CONFIRMATION -> USED.
	InsertRedemptionAndUseEntitlement(ctx context.Context, r Redemption, entitlementID string, usedAt time.Time) error

	GetRedemptionByEntitlement(ctx context.Context, entitlementID string) (Redemption, error)

	// VoidRedemptionAndEntitlement performs Void's single transaction:
	// mark the redemption voided and CAS the entitlement USED -> VOIDED.
	VoidRedemptionAndEntitlement(ctx context.Context, entitlementID string, reason string, voidedAt time.Time) error

	// ListRedemptions supports the [EXPANSION] GET redemptions?merchant_id=
	// read model and the savings summary.
	ListRedemptions(ctx context.Context, filter RedemptionFilter) ([]Redemption, error)

	InsertAnalyticsEvent(ctx context.Context, ev AnalyticsEvent) error

	Close() error
}

// EntitlementUpdate carries the side-effect fields of a CAS transition.
type EntitlementUpdate struct {
	UsedAt   *time.Time
	VoidedAt *time.Time
}

// RedemptionFilter narrows ListRedemptions; zero values mean "no filter".
type RedemptionFilter struct {
	MerchantID   string
	UserID       string
	OfferID      string
	ExcludeVoided bool
}
