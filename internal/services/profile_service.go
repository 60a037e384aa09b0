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

// ProfileSummary is the cached, read-mostly view of a profile used on every
// page load to decide routing and render the header.
type ProfileSummary struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Location            string `json:"location"`
	AvatarPath          string `json:"avatar_path"`
	OnboardingStep2Done bool   `json:"onboarding_step2_done"`
}

// UpdateProfileInput enumerates mutable profile attributes.
type UpdateProfileInput struct {
	Name           *string
	Phone          *string
	Location       *string
	Pronoun        *string
	Bio            *string
	AddressLine1   *string
	AddressLine2   *string
	AddressPincode *string
}

// ProfileService manages seller profiles and their cached summaries.
type ProfileService struct {
	db *gorm.DB
	kv *cache.KV
}

// NewProfileService constructs a ProfileService backed by the database and
// the shared cache store.
func NewProfileService(db *gorm.DB, store cache.Store) (*ProfileService, error) {
	if db == nil {
		return nil, errors.New("profile service: db is required")
	}
	return &ProfileService{db: db, kv: cache.NewKV(store)}, nil
}

// Get loads the full profile row for a user.
func (s *ProfileService) Get(ctx context.Context, userID string) (*models.Profile, error) {
	ctx = ensureContext(ctx)

	var profile models.Profile
	err := s.db.WithContext(ctx).First(&profile, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profile service: get profile: %w", err)
	}
	return &profile, nil
}

// Summary returns the cached profile summary, reading through to the
// database on a miss.
func (s *ProfileService) Summary(ctx context.Context, userID string) (*ProfileSummary, error) {
	ctx = ensureContext(ctx)

	key := cache.ProfileSummaryKey(userID)

	var summary ProfileSummary
	if s.kv.ReadJSON(ctx, key, &summary) {
		return &summary, nil
	}

	profile, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary = summarise(profile)
	s.kv.WriteJSON(ctx, key, summary, cache.ProfileSummaryTTL)
	return &summary, nil
}

// Update applies the supplied changes and refreshes the cached summary with
// the new values so readers never see the stale entry.
func (s *ProfileService) Update(ctx context.Context, userID string, input UpdateProfileInput) (*models.Profile, error) {
	ctx = ensureContext(ctx)

	profile, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	assign := func(column string, value *string) {
		if value != nil {
			updates[column] = strings.TrimSpace(*value)
		}
	}
	assign("name", input.Name)
	assign("phone", input.Phone)
	assign("location", input.Location)
	assign("pronoun", input.Pronoun)
	assign("bio", input.Bio)
	assign("address_line1", input.AddressLine1)
	assign("address_line2", input.AddressLine2)
	assign("address_pincode", input.AddressPincode)

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(profile).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("profile service: update profile: %w", err)
		}
	}

	s.refreshSummary(ctx, profile)
	return profile, nil
}

// SetAvatar records the stored object path of the user's avatar.
func (s *ProfileService) SetAvatar(ctx context.Context, userID, objectPath string) error {
	ctx = ensureContext(ctx)

	objectPath = strings.TrimSpace(objectPath)
	if objectPath == "" {
		return apperrors.NewBadRequest("avatar path is required")
	}

	profile, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Model(profile).Update("avatar_path", objectPath).Error; err != nil {
		return fmt.Errorf("profile service: set avatar: %w", err)
	}

	profile.AvatarPath = objectPath
	s.refreshSummary(ctx, profile)
	return nil
}

// CompleteOnboarding marks the avatar + location step as done. Both fields
// must be present first.
func (s *ProfileService) CompleteOnboarding(ctx context.Context, userID string) error {
	ctx = ensureContext(ctx)

	profile, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}

	if strings.TrimSpace(profile.AvatarPath) == "" {
		return apperrors.NewBadRequest("an avatar is required to finish onboarding")
	}
	if strings.TrimSpace(profile.Location) == "" {
		return apperrors.NewBadRequest("a location is required to finish onboarding")
	}

	if err := s.db.WithContext(ctx).Model(profile).Update("onboarding_step2_done", true).Error; err != nil {
		return fmt.Errorf("profile service: complete onboarding: %w", err)
	}

	profile.OnboardingStep2Done = true
	s.refreshSummary(ctx, profile)
	return nil
}

// refreshSummary re-reads the row and overwrites the cached summary so the
// cache always reflects the latest committed state.
func (s *ProfileService) refreshSummary(ctx context.Context, profile *models.Profile) {
	var fresh models.Profile
	if err := s.db.WithContext(ctx).First(&fresh, "user_id = ?", profile.UserID).Error; err != nil {
		s.kv.Remove(ctx, cache.ProfileSummaryKey(profile.UserID))
		return
	}

	*profile = fresh
	s.kv.WriteJSON(ctx, cache.ProfileSummaryKey(profile.UserID), summarise(profile), cache.ProfileSummaryTTL)
}

func summarise(profile *models.Profile) ProfileSummary {
	return ProfileSummary{
		ID:                  profile.UserID,
		Name:                profile.Name,
		Location:            profile.Location,
		AvatarPath:          profile.AvatarPath,
		OnboardingStep2Done: profile.OnboardingStep2Done,
	}
}
