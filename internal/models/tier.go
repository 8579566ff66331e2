package models

import "sort"

// Stable tier codes. Business rules compare tiers by code, never by id.
const (
	TierGeneralMembership  = "GENERALMEMBERSHIP"
	TierDevelopingMedium   = "DEVELOPINGMEDIUM"
	TierProfessionalMedium = "PROFESSIONALMEDIUM"
)

var tierRank = map[string]int{
	TierGeneralMembership:  1,
	TierDevelopingMedium:   2,
	TierProfessionalMedium: 3,
}

// SubscriptionTier is a purchasable membership plan.
type SubscriptionTier struct {
	ID           int                   `json:"id"`
	Code         string                `json:"code"`
	Name         string                `json:"name"`
	Price        float64               `json:"price"`
	DisplayOrder int                   `json:"displayOrder"`
	IsOneTime    bool                  `json:"isOneTime"`
	Features     []SubscriptionFeature `json:"features"`
}

// SubscriptionFeature is a benefit bundled into a tier.
type SubscriptionFeature struct {
	ID                 int      `json:"id"`
	Code               string   `json:"code"`
	Name               string   `json:"name"`
	Price              float64  `json:"price"`
	DiscountPercentage *float64 `json:"discountPercentage,omitempty"`
	Credits            int      `json:"credits"`
	AutoRenewFrequency string   `json:"autoRenewFrequency"`
	DisplayOrder       int      `json:"displayOrder"`
}

// Includes reports whether t carries the benefits of other. Unknown codes
// only include themselves.
func (t SubscriptionTier) Includes(other SubscriptionTier) bool {
	if t.Code == other.Code {
		return true
	}
	a, okA := tierRank[t.Code]
	b, okB := tierRank[other.Code]
	if !okA || !okB {
		return false
	}
	return a >= b
}

// IsFree reports whether the tier can complete without a payment processor.
func (t SubscriptionTier) IsFree() bool {
	return t.Price <= 0
}

// SortedFeatures returns the features ordered by display order.
func (t SubscriptionTier) SortedFeatures() []SubscriptionFeature {
	features := make([]SubscriptionFeature, len(t.Features))
	copy(features, t.Features)
	sort.SliceStable(features, func(i, j int) bool {
		return features[i].DisplayOrder < features[j].DisplayOrder
	})
	return features
}
