package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/artisanhq/atelier/internal/cache"
	"github.com/artisanhq/atelier/internal/models"
	apperrors "github.com/artisanhq/atelier/pkg/errors"
)

// ErrProductNotFound indicates the requested product does not exist.
var ErrProductNotFound = errors.New("product: not found")

// ProductService serves the product catalogue. The list changes rarely, so
// it is cached whole and only invalidated by writes or TTL expiry.
type ProductService struct {
	db *gorm.DB
	kv *cache.KV
}

// NewProductService constructs a ProductService.
func NewProductService(db *gorm.DB, store cache.Store) (*ProductService, error) {
	if db == nil {
		return nil, errors.New("product service: db is required")
	}
	return &ProductService{db: db, kv: cache.NewKV(store)}, nil
}

// List returns the full catalogue, cached for cache.ProductListTTL.
func (s *ProductService) List(ctx context.Context) ([]models.Product, error) {
	ctx = ensureContext(ctx)

	var products []models.Product
	if s.kv.ReadJSON(ctx, cache.ProductListKey, &products) {
		return products, nil
	}

	if err := s.db.WithContext(ctx).Order("name").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("product service: list products: %w", err)
	}

	s.kv.WriteJSON(ctx, cache.ProductListKey, products, cache.ProductListTTL)
	return products, nil
}

// GetByID loads one product.
func (s *ProductService) GetByID(ctx context.Context, id string) (*models.Product, error) {
	ctx = ensureContext(ctx)

	var product models.Product
	err := s.db.WithContext(ctx).First(&product, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("product service: get product: %w", err)
	}
	return &product, nil
}

// Create adds a product to the catalogue and drops the cached list.
func (s *ProductService) Create(ctx context.Context, name string, basePrice float64) (*models.Product, error) {
	ctx = ensureContext(ctx)

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewBadRequest("product name is required")
	}
	if basePrice < 0 {
		return nil, apperrors.NewBadRequest("base price cannot be negative")
	}

	product := &models.Product{Name: name, BasePrice: basePrice}
	if err := s.db.WithContext(ctx).Create(product).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewBadRequest("a product with that name already exists")
		}
		return nil, fmt.Errorf("product service: create product: %w", err)
	}

	s.kv.Remove(ctx, cache.ProductListKey)
	return product, nil
}

// UpdateBasePrice reprices a product and drops the cached list.
func (s *ProductService) UpdateBasePrice(ctx context.Context, id string, basePrice float64) (*models.Product, error) {
	ctx = ensureContext(ctx)

	if basePrice < 0 {
		return nil, apperrors.NewBadRequest("base price cannot be negative")
	}

	product, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(product).Update("base_price", basePrice).Error; err != nil {
		return nil, fmt.Errorf("product service: update base price: %w", err)
	}

	product.BasePrice = basePrice
	s.kv.Remove(ctx, cache.ProductListKey)
	return product, nil
}
