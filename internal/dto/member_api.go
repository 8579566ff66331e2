package dto

import (
	"encoding/json"
	"time"
)

// Request and response bodies of the Bridge Member API.

type PlaceMembershipOrderRequest struct {
	MembershipID          int    `json:"membershipId"`
	DiscountCode          string `json:"discountCode"`
	AutoRenewMyMembership bool   `json:"autoRenewMyMembership"`
	ProcessorID           int    `json:"processorId"`
}

type PlaceTopupOrderRequest struct {
	Credits     int `json:"credits"`
	ProcessorID int `json:"processorId"`
}

// PlaceMembershipOrderResponse is returned by both placement endpoints.
// Errors may be an array of strings or an object of field errors.
type PlaceMembershipOrderResponse struct {
	Result      bool            `json:"result"`
	Message     string          `json:"message"`
	Errors      json.RawMessage `json:"errors,omitempty"`
	OrderID     int64           `json:"orderId"`
	PubTrackID  string          `json:"pubTrackId"`
	RedirectURL string          `json:"redirectUrl"`
	ReturnURL   string          `json:"returnUrl"`
}

// NeedsRedirect reports whether the order waits on an external processor.
func (r *PlaceMembershipOrderResponse) NeedsRedirect() bool {
	return r.RedirectURL != ""
}

// CompletedSynchronously reports whether the order finished without a processor.
func (r *PlaceMembershipOrderResponse) CompletedSynchronously() bool {
	return r.Result && r.RedirectURL == ""
}

type OrderStatusResponse struct {
	OrderID       int64      `json:"orderId"`
	IsPaid        bool       `json:"isPaid"`
	PaymentStatus int        `json:"paymentStatus"`
	Amount        float64    `json:"amount"`
	OrderPlacedAt time.Time  `json:"orderPlacedAt"`
	PaidAt        *time.Time `json:"paidAt"`
}
