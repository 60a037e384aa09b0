package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/artisanhq/atelier/internal/cache"
	"github.com/artisanhq/atelier/internal/models"
	apperrors "github.com/artisanhq/atelier/pkg/errors"
)

// DefaultArtworkBucket is the object storage bucket holding artwork images.
const DefaultArtworkBucket = "artworks"

// ErrArtworkNotFound indicates the artwork does not exist or is not owned by
// the requesting user.
var ErrArtworkNotFound = apperrors.New("ARTWORK_NOT_FOUND", "Artwork not found", http.StatusNotFound)

// ObjectStorage is the subset of object store behaviour the service needs.
type ObjectStorage interface {
	Upload(ctx context.Context, bucket, objectPath string, reader io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, bucket, objectPath string) error
}

// ArtworkProductInput selects a catalogue product for an artwork with the
// seller's pricing choice.
type ArtworkProductInput struct {
	ProductID string
	Enabled   bool
	Margin    float64
}

// CreateArtworkInput describes a new artwork upload.
type CreateArtworkInput struct {
	Title       string
	Description string
	FileName    string
	ContentType string
	Size        int64
	Reader      io.Reader
	Products    []ArtworkProductInput
}

// UpdateArtworkInput enumerates mutable artwork attributes. A non-nil
// Products slice replaces the artwork's product selections entirely.
type UpdateArtworkInput struct {
	Title       *string
	Description *string
	Products    []ArtworkProductInput
}

// ReplaceImageInput describes a replacement image upload.
type ReplaceImageInput struct {
	FileName    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// ArtworkOption customises ArtworkService behaviour.
type ArtworkOption func(*ArtworkService)

// WithArtworkBucket overrides the bucket artwork images are stored in.
func WithArtworkBucket(bucket string) ArtworkOption {
	return func(s *ArtworkService) {
		if bucket != "" {
			s.bucket = bucket
		}
	}
}

// ArtworkService manages artwork rows, their stored images, and their
// product pairings. Image upload, row insert and pairing writes are
// sequential independent calls; a partial failure is surfaced to the caller
// without compensating rollback.
type ArtworkService struct {
	db      *gorm.DB
	objects ObjectStorage
	kv      *cache.KV
	bucket  string
}

// NewArtworkService constructs an ArtworkService.
func NewArtworkService(db *gorm.DB, objects ObjectStorage, store cache.Store, opts ...ArtworkOption) (*ArtworkService, error) {
	if db == nil {
		return nil, errors.New("artwork service: db is required")
	}
	if objects == nil {
		return nil, errors.New("artwork service: object storage is required")
	}

	service := &ArtworkService{
		db:      db,
		objects: objects,
		kv:      cache.NewKV(store),
		bucket:  DefaultArtworkBucket,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Bucket returns the bucket artwork images are stored in.
func (s *ArtworkService) Bucket() string {
	return s.bucket
}

// List returns the user's artworks with product pairings, newest first.
func (s *ArtworkService) List(ctx context.Context, userID string) ([]models.Artwork, error) {
	ctx = ensureContext(ctx)

	var artworks []models.Artwork
	err := s.db.WithContext(ctx).
		Preload("Products.Product").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&artworks).Error
	if err != nil {
		return nil, fmt.Errorf("artwork service: list artworks: %w", err)
	}
	return artworks, nil
}

// GetByID loads one artwork owned by the user.
func (s *ArtworkService) GetByID(ctx context.Context, userID, artworkID string) (*models.Artwork, error) {
	ctx = ensureContext(ctx)

	var artwork models.Artwork
	err := s.db.WithContext(ctx).
		Preload("Products.Product").
		First(&artwork, "id = ? AND user_id = ?", artworkID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrArtworkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("artwork service: get artwork: %w", err)
	}
	return &artwork, nil
}

// Create uploads the image and records the artwork with its product
// pairings.
func (s *ArtworkService) Create(ctx context.Context, userID string, input CreateArtworkInput) (*models.Artwork, error) {
	ctx = ensureContext(ctx)

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewBadRequest("title is required")
	}
	if input.Reader == nil || input.Size <= 0 {
		return nil, apperrors.NewBadRequest("an image file is required")
	}

	links, err := s.buildLinks(ctx, input.Products)
	if err != nil {
		return nil, err
	}

	artwork := &models.Artwork{
		UserID:           userID,
		Title:            title,
		Description:      strings.TrimSpace(input.Description),
		OriginalFileName: path.Base(strings.TrimSpace(input.FileName)),
	}
	artwork.ID = uuid.NewString()
	artwork.ImagePath = s.objectPath(userID, artwork.ID, artwork.OriginalFileName)

	if err := s.objects.Upload(ctx, s.bucket, artwork.ImagePath, input.Reader, input.Size, input.ContentType); err != nil {
		return nil, fmt.Errorf("artwork service: upload image: %w", err)
	}

	if err := s.db.WithContext(ctx).Create(artwork).Error; err != nil {
		return nil, fmt.Errorf("artwork service: create artwork: %w", err)
	}

	for i := range links {
		links[i].ArtworkID = artwork.ID
	}
	if len(links) > 0 {
		if err := s.db.WithContext(ctx).Create(&links).Error; err != nil {
			return nil, fmt.Errorf("artwork service: attach products: %w", err)
		}
	}

	return s.GetByID(ctx, userID, artwork.ID)
}

// Update changes artwork fields and, when Products is non-nil, replaces the
// product pairings wholesale.
func (s *ArtworkService) Update(ctx context.Context, userID, artworkID string, input UpdateArtworkInput) (*models.Artwork, error) {
	ctx = ensureContext(ctx)

	artwork, err := s.GetByID(ctx, userID, artworkID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, apperrors.NewBadRequest("title is required")
		}
		updates["title"] = title
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(artwork).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("artwork service: update artwork: %w", err)
		}
	}

	if input.Products != nil {
		links, err := s.buildLinks(ctx, input.Products)
		if err != nil {
			return nil, err
		}

		if err := s.db.WithContext(ctx).
			Where("artwork_id = ?", artwork.ID).
			Delete(&models.ArtworkProduct{}).Error; err != nil {
			return nil, fmt.Errorf("artwork service: clear product pairings: %w", err)
		}

		for i := range links {
			links[i].ArtworkID = artwork.ID
		}
		if len(links) > 0 {
			if err := s.db.WithContext(ctx).Create(&links).Error; err != nil {
				return nil, fmt.Errorf("artwork service: attach products: %w", err)
			}
		}
	}

	return s.GetByID(ctx, userID, artwork.ID)
}

// ReplaceImage uploads a new image for the artwork, points the row at it,
// and removes the superseded object. The cached signed URL for the old and
// new paths is dropped so readers re-sign against the new content.
func (s *ArtworkService) ReplaceImage(ctx context.Context, userID, artworkID string, input ReplaceImageInput) (*models.Artwork, error) {
	ctx = ensureContext(ctx)

	if input.Reader == nil || input.Size <= 0 {
		return nil, apperrors.NewBadRequest("an image file is required")
	}

	artwork, err := s.GetByID(ctx, userID, artworkID)
	if err != nil {
		return nil, err
	}

	oldPath := artwork.ImagePath
	fileName := path.Base(strings.TrimSpace(input.FileName))
	newPath := s.objectPath(userID, artwork.ID, fileName)

	if err := s.objects.Upload(ctx, s.bucket, newPath, input.Reader, input.Size, input.ContentType); err != nil {
		return nil, fmt.Errorf("artwork service: upload image: %w", err)
	}

	updates := map[string]any{"image_path": newPath, "original_file_name": fileName}
	if err := s.db.WithContext(ctx).Model(artwork).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("artwork service: update image path: %w", err)
	}

	if oldPath != "" && oldPath != newPath {
		if err := s.objects.Remove(ctx, s.bucket, oldPath); err != nil {
			return nil, fmt.Errorf("artwork service: remove superseded image: %w", err)
		}
		s.kv.Remove(ctx, cache.SignedURLKey(s.bucket, oldPath))
	}
	s.kv.Remove(ctx, cache.SignedURLKey(s.bucket, newPath))

	return s.GetByID(ctx, userID, artwork.ID)
}

// Delete removes the artwork row, its stored image, and the cached signed
// URL for that image.
func (s *ArtworkService) Delete(ctx context.Context, userID, artworkID string) error {
	ctx = ensureContext(ctx)

	artwork, err := s.GetByID(ctx, userID, artworkID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).
		Where("artwork_id = ?", artwork.ID).
		Delete(&models.ArtworkProduct{}).Error; err != nil {
		return fmt.Errorf("artwork service: delete product pairings: %w", err)
	}

	if err := s.db.WithContext(ctx).Delete(&models.Artwork{}, "id = ?", artwork.ID).Error; err != nil {
		return fmt.Errorf("artwork service: delete artwork: %w", err)
	}

	if artwork.ImagePath != "" {
		if err := s.objects.Remove(ctx, s.bucket, artwork.ImagePath); err != nil {
			return fmt.Errorf("artwork service: remove image: %w", err)
		}
		s.kv.Remove(ctx, cache.SignedURLKey(s.bucket, artwork.ImagePath))
	}

	return nil
}

// buildLinks validates product selections against the catalogue.
func (s *ArtworkService) buildLinks(ctx context.Context, inputs []ArtworkProductInput) ([]models.ArtworkProduct, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(inputs))
	for _, input := range inputs {
		if input.Margin < 0 {
			return nil, apperrors.NewBadRequest("margin cannot be negative")
		}
		ids = append(ids, input.ProductID)
	}
	ids = normaliseIDs(ids)

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id IN ?", ids).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("artwork service: verify products: %w", err)
	}
	if count != int64(len(ids)) {
		return nil, apperrors.NewBadRequest("one or more selected products do not exist")
	}

	seen := make(map[string]struct{}, len(inputs))
	links := make([]models.ArtworkProduct, 0, len(inputs))
	for _, input := range inputs {
		if _, dup := seen[input.ProductID]; dup {
			continue
		}
		seen[input.ProductID] = struct{}{}
		links = append(links, models.ArtworkProduct{
			ProductID: input.ProductID,
			Enabled:   input.Enabled,
			Margin:    input.Margin,
		})
	}
	return links, nil
}

func (s *ArtworkService) objectPath(userID, artworkID, fileName string) string {
	ext := path.Ext(fileName)
	return fmt.Sprintf("users/%s/%s%s", userID, artworkID, ext)
}
