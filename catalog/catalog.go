/*
Package catalog exposes read-only access to offers, merchants, and
users (component [EXPANSION] C12) without exposing the mutating
surface of store.Store. The catalog itself — authoring, the
recommender that surfaces offers — is out of scope (spec §1); this is
just the narrow read accessor the redemption core needs.
*/
package catalog

import (
	"context"

	"github.com/warp/redemption-core/store"
)

// Reader is the read-only subset of store.Store the redemption core
// uses to load offers and to resolve display fields.
type Reader interface {
	GetOffer(ctx context.Context, offerID string) (store.Offer, error)
	GetMerchant(ctx context.Context, merchantID string) (store.Merchant, error)
	GetUser(ctx context.Context, userID string) (store.User, error)
}

// FromStore adapts any store.Store down to a Reader.
func FromStore(s store.Store) Reader {
	return readerAdapter{s}
}

type readerAdapter struct {
	store store.Store
}

func (r readerAdapter) GetOffer(ctx context.Context, offerID string) (store.Offer, error) {
	return r.store.GetOffer(ctx, offerID)
}

func (r readerAdapter) GetMerchant(ctx context.Context, merchantID string) (store.Merchant, error) {
	return r.store.GetMerchant(ctx, merchantID)
}

func (r readerAdapter) GetUser(ctx context.Context, userID string) (store.User, error) {
	return r.store.GetUser(ctx, userID)
}
