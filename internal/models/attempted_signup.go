package models

import "gorm.io/datatypes"

// AttemptedSignup records a signup attempt made without a pending invite.
type AttemptedSignup struct {
	BaseModel

	Email   string         `gorm:"not null;index" json:"email"`
	Name    string         `json:"name"`
	Phone   string         `json:"phone"`
	Payload datatypes.JSON `json:"payload,omitempty"`
}
