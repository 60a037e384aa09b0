package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/artisanhq/atelier/internal/models"
	"github.com/artisanhq/atelier/pkg/crypto"
	apperrors "github.com/artisanhq/atelier/pkg/errors"
)

// ProvisionOption customises the ProvisionService.
type ProvisionOption func(*ProvisionService)

// WithProvisionClock injects a custom time source.
func WithProvisionClock(clock func() time.Time) ProvisionOption {
	return func(s *ProvisionService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// ProvisionService performs the one-time bootstrap of the first admin
// account. It is idempotent: running it against an existing account simply
// ensures the account holds the admin role.
type ProvisionService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewProvisionService constructs a ProvisionService.
func NewProvisionService(db *gorm.DB, opts ...ProvisionOption) (*ProvisionService, error) {
	if db == nil {
		return nil, errors.New("provision service: db is required")
	}

	service := &ProvisionService{db: db, now: time.Now}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// EnsureAdmin creates the admin account if absent, or promotes the existing
// account with the given email. The returned bool reports whether a new
// account was created.
func (s *ProvisionService) EnsureAdmin(ctx context.Context, email, password string) (*models.User, bool, error) {
	ctx = ensureContext(ctx)

	email = normaliseEmail(email)
	if email == "" {
		return nil, false, apperrors.NewBadRequest("email is required")
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		created, createErr := s.createAdmin(ctx, email, password)
		if createErr != nil {
			return nil, false, createErr
		}
		return created, true, nil
	case err != nil:
		return nil, false, fmt.Errorf("provision service: find user: %w", err)
	}

	updates := map[string]any{"role": models.RoleAdmin, "is_active": true}
	if user.EmailVerifiedAt == nil {
		now := s.now()
		updates["email_verified_at"] = now
		user.EmailVerifiedAt = &now
	}
	if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		return nil, false, fmt.Errorf("provision service: promote user: %w", err)
	}

	user.Role = models.RoleAdmin
	user.IsActive = true
	return &user, false, nil
}

func (s *ProvisionService) createAdmin(ctx context.Context, email, password string) (*models.User, error) {
	if password == "" {
		return nil, apperrors.NewBadRequest("password is required to create the admin account")
	}

	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("provision service: hash password: %w", err)
	}

	now := s.now()
	user := &models.User{
		Email:           email,
		Password:        hashed,
		Role:            models.RoleAdmin,
		IsActive:        true,
		EmailVerifiedAt: &now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		return tx.Create(&models.Profile{UserID: user.ID, Name: "Administrator"}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("provision service: create admin: %w", err)
	}

	return user, nil
}
