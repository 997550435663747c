package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/redemption-core/auth"
	"github.com/warp/redemption-core/money"
	"github.com/warp/redemption-core/ratelimit"
	"github.com/warp/redemption-core/redemption"
	"github.com/warp/redemption-core/store"
)

const (
	minReasonLen = 10
	maxReasonLen = 500
)

func (s *Server) identity(r *http.Request) (auth.Identity, bool) {
	return auth.FromContext(r.Context())
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(r)
	if !ok {
		writeError(w, s.log, redemption.NewError(redemption.KindUnauthenticated, "missing identity"))
		return
	}

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OfferID == "" {
		writeError(w, s.log, redemption.NewError(redemption.KindInvalidArgument, "offer_id is required"))
		return
	}

	if err := s.limiter.Allow(r.Context(), id.UserID, time.Now(), s.loc); err != nil {
		var lerr *ratelimit.ErrLimited
		if errors.As(err, &lerr) {
			w.Header().Set("Retry-After", strconv.Itoa(int(lerr.RetryAfter.Seconds())))
		}
		writeError(w, s.log, redemption.NewError(redemption.KindRateLimited, err.Error()))
		return
	}

	res, err := s.svc.Claim(r.Context(), id.UserID, req.OfferID, req.DeviceID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, claimResponse{EntitlementID: res.EntitlementID, ExpiresAt: res.ExpiresAt})
}

func (s *Server) handleProve(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(r)
	if !ok {
		writeError(w, s.log, redemption.NewError(redemption.KindUnauthenticated, "missing identity"))
		return
	}
	entitlementID := chi.URLParam(r, "entitlement_id")
	if entitlementID == "" {
		writeError(w, s.log, redemption.NewError(redemption.KindInvalidArgument, "entitlement_id is required"))
		return
	}

	res, err := s.svc.Prove(r.Context(), entitlementID, id.UserID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, proveResponse{Token: res.Token, ExpiresAt: res.ExpiresAt, TTLSeconds: res.TTLSeconds})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.identity(r); !ok {
		writeError(w, s.log, redemption.NewError(redemption.KindUnauthenticated, "missing identity"))
		return
	}

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeError(w, s.log, redemption.NewError(redemption.KindInvalidArgument, "token is required"))
		return
	}

	res, err := s.svc.Validate(r.Context(), req.Token, nil)
	if err != nil {
		// Validate never leaks validation-failure specifics (spec §7):
		// every rejection reports a coarse FAIL.
		de, _ := redemption.AsError(err)
		writeJSON(w, http.StatusOK, map[string]string{"result": "FAIL", "reason": string(de.Kind)})
		return
	}

	writeJSON(w, http.StatusOK, validatePassResponse{
		Result:        "PASS",
		EntitlementID: res.EntitlementID,
		Offer: offerDisplay{
			ID:            res.Offer.ID,
			OfferType:     string(res.Offer.OfferType),
			DiscountValue: res.Offer.DiscountValue,
		},
		Merchant: merchantDisplay{ID: res.Merchant.ID, Name: res.Merchant.Name},
		UserID:   res.User.ID,
	})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.identity(r); !ok {
		writeError(w, s.log, redemption.NewError(redemption.KindUnauthenticated, "missing identity"))
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EntitlementID == "" {
		writeError(w, s.log, redemption.NewError(redemption.KindInvalidArgument, "entitlement_id is required"))
		return
	}

	totalBill, err := money.FromString(req.TotalBill)
	if err != nil {
		writeError(w, s.log, redemption.NewError(redemption.KindInvalidArgument, "total_bill must have at most two fractional digits"))
		return
	}
	if !totalBill.IsPositive() {
		writeError(w, s.log, redemption.NewError(redemption.KindInvalidArgument, "total_bill must be positive"))
		return
	}

	var finalAmount *money.Amount
	if req.FinalAmount != nil {
		fa, err := money.FromString(*req.FinalAmount)
		if err != nil {
			writeError(w, s.log, redemption.NewError(redemption.KindInvalidArgument, "final_amount must have at most two fractional digits"))
			return
		}
		finalAmount = &fa
	}

	res, err := s.svc.Confirm(r.Context(), req.EntitlementID, totalBill, finalAmount)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{
		RedemptionID: res.RedemptionID,
		Discount:     res.Discount.String(),
		Final:        res.Final.String(),
		RedeemedAt:   res.RedeemedAt,
	})
}

func (s *Server) handleVoid(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.identity(r); !ok {
		writeError(w, s.log, redemption.NewError(redemption.KindUnauthenticated, "missing identity"))
		return
	}

	var req voidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EntitlementID == "" {
		writeError(w, s.log, redemption.NewError(redemption.KindInvalidArgument, "entitlement_id is required"))
		return
	}
	if len(req.Reason) < minReasonLen || len(req.Reason) > maxReasonLen {
		writeError(w, s.log, redemption.NewError(redemption.KindInvalidArgument, "reason must be between 10 and 500 characters"))
		return
	}

	res, err := s.svc.Void(r.Context(), req.EntitlementID, req.Reason)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, voidResponse{VoidedAt: res.VoidedAt})
}

func (s *Server) handleListEntitlements(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(r)
	if !ok {
		writeError(w, s.log, redemption.NewError(redemption.KindUnauthenticated, "missing identity"))
		return
	}
	state := store.EntitlementState(r.URL.Query().Get("state"))

	ents, err := s.svc.ListEntitlementsWithDisplay(r.Context(), id.UserID, state)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	out := make([]entitlementSummary, 0, len(ents))
	for _, e := range ents {
		out = append(out, entitlementSummary{
			ID:           e.ID,
			OfferTitle:   e.OfferTitle,
			MerchantName: e.MerchantName,
			State:        string(e.State),
			ClaimedAt:    e.ClaimedAt,
			ExpiresAt:    e.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSavings(w http.ResponseWriter, r *http.Request) {
	id, ok := s.identity(r)
	if !ok {
		writeError(w, s.log, redemption.NewError(redemption.KindUnauthenticated, "missing identity"))
		return
	}

	summary, err := s.svc.GetSavings(r.Context(), id.UserID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, savingsResponse{
		TotalRedemptions: summary.TotalRedemptions,
		TotalSavings:     summary.TotalSavings.String(),
		TotalSpent:       summary.TotalSpent.String(),
	})
}

// handleListRedemptions is [EXPANSION]: GET redemptions?merchant_id=,
// a read model not named in spec.md's endpoint table but needed for
// merchant-side reconciliation.
func (s *Server) handleListRedemptions(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.identity(r); !ok {
		writeError(w, s.log, redemption.NewError(redemption.KindUnauthenticated, "missing identity"))
		return
	}
	merchantID := r.URL.Query().Get("merchant_id")
	if merchantID == "" {
		writeError(w, s.log, redemption.NewError(redemption.KindInvalidArgument, "merchant_id is required"))
		return
	}

	redemptions, err := s.svc.ListRedemptionsForMerchant(r.Context(), merchantID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	out := make([]redemptionSummary, 0, len(redemptions))
	for _, rd := range redemptions {
		out = append(out, redemptionSummary{
			ID:            rd.ID,
			EntitlementID: rd.EntitlementID,
			MerchantID:    rd.MerchantID,
			OfferID:       rd.OfferID,
			UserID:        rd.UserID,
			TotalBill:     rd.TotalBill.String(),
			Discount:      rd.DiscountAmount.String(),
			Final:         rd.FinalAmount.String(),
			RedeemedAt:    rd.RedeemedAt,
			IsVoided:      rd.IsVoided,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleOfferClaims is [EXPANSION]: GET offers/{id}/claims, a
// read-only projection over the offer row's claim counter.
func (s *Server) handleOfferClaims(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.identity(r); !ok {
		writeError(w, s.log, redemption.NewError(redemption.KindUnauthenticated, "missing identity"))
		return
	}
	offerID := chi.URLParam(r, "offer_id")

	res, err := s.svc.OfferClaims(r.Context(), offerID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, offerClaimsResponse{
		OfferID:        res.OfferID,
		TotalClaims:    res.TotalClaims,
		MaxTotalClaims: res.MaxTotalClaims,
	})
}
