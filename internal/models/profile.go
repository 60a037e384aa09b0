package models

import "time"

// Profile holds the seller-facing profile completed during onboarding.
type Profile struct {
	UserID string `gorm:"primaryKey;type:uuid" json:"user_id"`

	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Location string `json:"location"`
	Pronoun  string `json:"pronoun"`
	Bio      string `json:"bio"`

	AddressLine1   string `json:"address_line1"`
	AddressLine2   string `json:"address_line2"`
	AddressPincode string `json:"address_pincode"`

	AvatarPath string `json:"avatar_path"`

	// OnboardingStep2Done marks completion of the avatar + location step
	// that gates access to the dashboard.
	OnboardingStep2Done bool `gorm:"default:false" json:"onboarding_step2_done"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
