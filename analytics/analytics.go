/*
Package analytics implements the fire-and-forget domain event emitter
(component C10). Emission failure must never fail the parent
operation (spec §4.10): Emit logs and returns, it never returns an
error to the caller.
*/
package analytics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/redemption-core/store"
)

const (
	EventOfferClaim         = "offer_claim"
	EventRedemptionConfirmed = "redemption_confirmed"
	EventRedemptionVoided    = "redemption_voided"
)

// Emitter appends domain events to the Store, best-effort.
type Emitter struct {
	store store.Store
	log   zerolog.Logger
}

// New builds an Emitter.
func New(s store.Store, log zerolog.Logger) *Emitter {
	return &Emitter{store: s, log: log}
}

// Emit appends eventType with payload (marshaled to JSON) at createdAt.
// Any failure is logged and swallowed — analytics must never be on the
// critical path of a redemption operation.
func (e *Emitter) Emit(ctx context.Context, eventType string, payload any, createdAt time.Time) {
	body, err := json.Marshal(payload)
	if err != nil {
		e.log.Warn().Err(err).Str("event_type", eventType).Msg("analytics: marshal payload failed")
		return
	}
	ev := store.AnalyticsEvent{EventType: eventType, Payload: string(body), CreatedAt: createdAt}
	if err := e.store.InsertAnalyticsEvent(ctx, ev); err != nil {
		e.log.Warn().Err(err).Str("event_type", eventType).Msg("analytics: emit failed, dropping event")
	}
}
