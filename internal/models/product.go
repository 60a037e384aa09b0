package models

// Product is a catalog item artworks can be printed on.
type Product struct {
	BaseModel

	Name      string  `gorm:"not null;uniqueIndex" json:"name"`
	BasePrice float64 `gorm:"not null" json:"base_price"`
}
