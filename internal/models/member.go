package models

import "time"

// ActiveMembership is a tier the member is currently entitled to.
type ActiveMembership struct {
	MembershipID int        `json:"membershipId"`
	Code         string     `json:"code"`
	Name         string     `json:"name"`
	StartedAt    time.Time  `json:"startedAt"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	AutoRenew    bool       `json:"autoRenew"`
}

// CreditsBalance is the member's consumable credit total.
type CreditsBalance struct {
	TotalCredits     int `json:"totalCredits"`
	RemainingCredits int `json:"remainingCredits"`
}
