package api

import "time"

type claimRequest struct {
	OfferID  string  `json:"offer_id"`
	DeviceID *string `json:"device_id,omitempty"`
}

type claimResponse struct {
	EntitlementID string    `json:"entitlement_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}

type proveResponse struct {
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
	TTLSeconds int64     `json:"ttl_seconds"`
}

type validateRequest struct {
	Token string `json:"token"`
}

type validatePassResponse struct {
	Result        string           `json:"result"`
	EntitlementID string           `json:"entitlement_id"`
	Offer         offerDisplay     `json:"offer"`
	Merchant      merchantDisplay  `json:"merchant"`
	UserID        string           `json:"user_id"`
}

type offerDisplay struct {
	ID            string `json:"id"`
	OfferType     string `json:"offer_type"`
	DiscountValue string `json:"discount_value"`
}

type merchantDisplay struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type confirmRequest struct {
	EntitlementID string  `json:"entitlement_id"`
	TotalBill     string  `json:"total_bill"`
	FinalAmount   *string `json:"final_amount,omitempty"`
}

type confirmResponse struct {
	RedemptionID string    `json:"redemption_id"`
	Discount     string    `json:"discount"`
	Final        string    `json:"final"`
	RedeemedAt   time.Time `json:"redeemed_at"`
}

type voidRequest struct {
	EntitlementID string `json:"entitlement_id"`
	Reason        string `json:"reason"`
}

type voidResponse struct {
	VoidedAt time.Time `json:"voided_at"`
}

type entitlementSummary struct {
	ID            string    `json:"id"`
	OfferTitle    string    `json:"offer_title"`
	MerchantName  string    `json:"merchant_name"`
	State         string    `json:"state"`
	ClaimedAt     time.Time `json:"claimed_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

type savingsResponse struct {
	TotalRedemptions int    `json:"total_redemptions"`
	TotalSavings     string `json:"total_savings"`
	TotalSpent       string `json:"total_spent"`
}

type redemptionSummary struct {
	ID            string    `json:"id"`
	EntitlementID string    `json:"entitlement_id"`
	MerchantID    string    `json:"merchant_id"`
	OfferID       string    `json:"offer_id"`
	UserID        string    `json:"user_id"`
	TotalBill     string    `json:"total_bill"`
	Discount      string    `json:"discount_amount"`
	Final         string    `json:"final_amount"`
	RedeemedAt    time.Time `json:"redeemed_at"`
	IsVoided      bool      `json:"is_voided"`
}

type offerClaimsResponse struct {
	OfferID        string `json:"offer_id"`
	TotalClaims    int64  `json:"total_claims"`
	MaxTotalClaims *int64 `json:"max_total_claims,omitempty"`
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
