package dto

import (
	"time"

	"github.com/thebridge/bridge-checkout/internal/models"
)

// Gateway request and response bodies.

type MembershipCheckoutRequest struct {
	MembershipID int    `json:"membershipId"`
	DiscountCode string `json:"discountCode"`
	AutoRenew    bool   `json:"autoRenew"`
	ProcessorID  int    `json:"processorId"`
}

type TopupCheckoutRequest struct {
	Credits     int `json:"credits"`
	ProcessorID int `json:"processorId"`
}

type PaymentCallbackRequest struct {
	Token string `json:"token"`
}

type PaymentCallbackResponse struct {
	Result string `json:"result"`
}

type CheckoutResponse struct {
	Result      bool   `json:"result"`
	Message     string `json:"message,omitempty"`
	OrderID     int64  `json:"orderId"`
	PubTrackID  string `json:"pubTrackId,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`
	ReturnURL   string `json:"returnUrl,omitempty"`
	Processing  bool   `json:"processing"`
	Completed   bool   `json:"completed"`
}

type TrackingResponse struct {
	PubTrackID string     `json:"pubTrackId"`
	Processing bool       `json:"processing"`
	Outcome    string     `json:"outcome"`
	Attempts   int        `json:"attempts"`
	Message    string     `json:"message,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

type CatalogResponse struct {
	Source string                    `json:"source"`
	Tiers  []models.SubscriptionTier `json:"tiers"`
}
