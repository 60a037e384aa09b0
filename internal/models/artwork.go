package models

import "time"

// Artwork is an uploaded image owned by a user.
type Artwork struct {
	BaseModel

	UserID           string `gorm:"type:uuid;not null;index" json:"user_id"`
	Title            string `gorm:"not null" json:"title"`
	Description      string `json:"description"`
	OriginalFileName string `json:"original_file_name"`
	ImagePath        string `json:"image_path"`

	Products []ArtworkProduct `gorm:"foreignKey:ArtworkID;constraint:OnDelete:CASCADE" json:"products,omitempty"`
}

// ArtworkProduct links an artwork to a catalog product with seller pricing.
type ArtworkProduct struct {
	ArtworkID string `gorm:"primaryKey;type:uuid" json:"artwork_id"`
	ProductID string `gorm:"primaryKey;type:uuid" json:"product_id"`

	Enabled bool `gorm:"default:false" json:"enabled"`

	// Margin is the seller-chosen additive amount over the product base
	// price. Never negative.
	Margin float64 `gorm:"default:0" json:"margin"`

	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FinalPrice computes the sale price for the pairing, floored at zero.
func (ap ArtworkProduct) FinalPrice(basePrice float64) float64 {
	price := basePrice + ap.Margin
	if price < 0 {
		return 0
	}
	return price
}
