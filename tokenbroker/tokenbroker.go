/*
Package tokenbroker implements the proof-token lifecycle (component
C7): issue, and single-use consume. Tokens are opaque random capability
strings — no server-side signature, no offline verification (spec §1
Non-goals) — their security rests entirely on length, TTL, and the
atomic single-use consume.

KV unavailability here fails CLOSED (spec §9): a broker that cannot
reach its backend must refuse to issue or validate, never silently
downgrade security.
*/
package tokenbroker

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/redemption-core/kv"
)

// Record is the value stored under redeem:token:<token>.
type Record struct {
	EntitlementID string    `json:"entitlement_id"`
	UserID        string    `json:"user_id"`
	OfferID       string    `json:"offer_id"`
	DeviceID      *string   `json:"device_id,omitempty"`
	IssuedAt      time.Time `json:"issued_at"`
}

// ErrUnavailable is returned when the KV backend cannot be reached;
// callers must treat this as a hard failure, not an "absent" token.
var ErrUnavailable = kv.ErrUnavailable

// Broker issues and consumes proof tokens.
type Broker struct {
	store        kv.Store
	ttl          time.Duration
	entropyBytes int
}

// New builds a Broker. entropyBytes must be enough to satisfy the
// ≥192-bit entropy requirement (24 bytes = 192 bits).
func New(store kv.Store, ttl time.Duration, entropyBytes int) *Broker {
	return &Broker{store: store, ttl: ttl, entropyBytes: entropyBytes}
}

// Issue generates a new token for the given entitlement and stores its
// record with the broker's TTL, returning the token and its absolute
// expiry.
func (b *Broker) Issue(ctx context.Context, entitlementID, userID, offerID string, deviceID *string, issuedAt time.Time) (token string, expiresAt time.Time, err error) {
	raw := make([]byte, b.entropyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", time.Time{}, fmt.Errorf("tokenbroker: generate token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(raw)

	rec := Record{EntitlementID: entitlementID, UserID: userID, OfferID: offerID, DeviceID: deviceID, IssuedAt: issuedAt}
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("tokenbroker: marshal record: %w", err)
	}

	key := keyFor(token)
	if err := b.store.SetWithTTL(ctx, key, string(payload), b.ttl); err != nil {
		return "", time.Time{}, fmt.Errorf("tokenbroker: store token: %w", err)
	}
	return token, issuedAt.Add(b.ttl), nil
}

// Consume atomically reads and removes the token's record. A second
// Consume of the same token — whether by a genuine replay or a losing
// concurrent merchant scan — always observes absent.
func (b *Broker) Consume(ctx context.Context, token string) (Record, bool, error) {
	val, ok, err := b.store.GetAndDelete(ctx, keyFor(token))
	if err != nil {
		return Record{}, false, fmt.Errorf("tokenbroker: consume: %w", err)
	}
	if !ok {
		return Record{}, false, nil
	}
	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return Record{}, false, fmt.Errorf("tokenbroker: unmarshal record: %w", err)
	}
	return rec, true, nil
}

func keyFor(token string) string {
	return "redeem:token:" + token
}
