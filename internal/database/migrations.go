package database

import (
	"gorm.io/gorm"

	"github.com/artisanhq/atelier/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Profile{},
		&models.Session{},
		&models.EmailVerification{},
		&models.Invite{},
		&models.AttemptedSignup{},
		&models.Product{},
		&models.Artwork{},
		&models.ArtworkProduct{},
		&models.CacheEntry{},
	)
}

// SeedData populates the default product catalogue. Existing rows are left
// untouched so operators can reprice products without fighting the seeder.
func SeedData(db *gorm.DB) error {
	products := []models.Product{
		{Name: "Art Print", BasePrice: 450},
		{Name: "Framed Print", BasePrice: 1200},
		{Name: "Canvas", BasePrice: 1800},
		{Name: "Postcard Set", BasePrice: 250},
	}

	for _, product := range products {
		if err := db.Where(models.Product{Name: product.Name}).Attrs(product).FirstOrCreate(&models.Product{}).Error; err != nil {
			return err
		}
	}

	return nil
}
