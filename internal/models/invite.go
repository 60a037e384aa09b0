package models

import "time"

// Invite statuses.
const (
	InviteStatusPending = "pending"
	InviteStatusUsed    = "used"
)

// Invite gates which email addresses may complete signup.
type Invite struct {
	BaseModel

	Email     string     `gorm:"uniqueIndex;not null" json:"email"`
	Status    string     `gorm:"not null;default:pending;index" json:"status"`
	InvitedBy string     `gorm:"type:uuid" json:"invited_by"`
	UsedAt    *time.Time `json:"used_at"`
	// ExpiresAt bounds how long a pending invite stays open; the zero value
	// means it never expires.
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}
