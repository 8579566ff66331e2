package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	OrderKindMembership = "membership"
	OrderKindTopup      = "topup"
)

// TrackedOrder records an order placed through the gateway and the outcome
// of tracking it. The Member API stays the source of truth.
type TrackedOrder struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MemberID    string         `gorm:"size:64;not null;index" json:"member_id"`
	PubTrackID  string         `gorm:"size:64;index" json:"pub_track_id"`
	OrderID     int64          `json:"order_id"`
	Kind        string         `gorm:"size:20;not null" json:"kind"`
	ProcessorID int            `json:"processor_id"`
	Amount      float64        `json:"amount"`
	Outcome     string         `gorm:"size:20;not null;default:'pending';index" json:"outcome"`
	Attempts    int            `json:"attempts"`
	Message     string         `gorm:"type:text" json:"message,omitempty"`
	Request     datatypes.JSON `gorm:"type:jsonb;default:'{}'" json:"-"`
	PlacedAt    time.Time      `gorm:"not null" json:"placed_at"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
