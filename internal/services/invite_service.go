package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/artisanhq/atelier/internal/models"
	"github.com/artisanhq/atelier/pkg/mail"
)

// Reasons returned by PreSignupCheck when signup is not allowed.
const (
	ReasonNotInvited = "not_invited"
	ReasonInviteUsed = "invite_used"
)

// DefaultInviteTTL bounds how long a sent invite stays open before the
// maintenance sweeper reclaims it.
const DefaultInviteTTL = 30 * 24 * time.Hour

var (
	// ErrInviteNotFound indicates no invite exists for the given email.
	ErrInviteNotFound = errors.New("invite: not found")
	// ErrInviteAlreadyUsed signals that the invite has already been consumed.
	ErrInviteAlreadyUsed = errors.New("invite: already used")
)

// InviteOption customises InviteService behaviour.
type InviteOption func(*InviteService)

// WithInviteBaseURL configures the base URL used in invitation emails.
func WithInviteBaseURL(url string) InviteOption {
	return func(s *InviteService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithInviteTTL overrides how long sent invites stay open.
func WithInviteTTL(ttl time.Duration) InviteOption {
	return func(s *InviteService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithInviteClock injects a custom clock primarily for testing.
func WithInviteClock(clock func() time.Time) InviteOption {
	return func(s *InviteService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// InviteService gates signup behind admin-issued email invites and keeps a
// record of signup attempts from uninvited addresses.
type InviteService struct {
	db      *gorm.DB
	mailer  mail.Mailer
	baseURL string
	ttl     time.Duration
	now     func() time.Time
}

// NewInviteService constructs an InviteService with the provided dependencies.
func NewInviteService(db *gorm.DB, mailer mail.Mailer, opts ...InviteOption) (*InviteService, error) {
	if db == nil {
		return nil, errors.New("invite service: db is required")
	}

	service := &InviteService{
		db:     db,
		mailer: mailer,
		ttl:    DefaultInviteTTL,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// PreSignupInput is the information captured before signup is permitted.
type PreSignupInput struct {
	Email string
	Name  string
	Phone string
}

// PreSignupCheck reports whether the email may complete signup. A request
// from an uninvited address is recorded so admins can review who is trying
// to join.
func (s *InviteService) PreSignupCheck(ctx context.Context, input PreSignupInput) (bool, string, error) {
	ctx = ensureContext(ctx)

	email := normaliseEmail(input.Email)
	if email == "" {
		return false, "", errors.New("invite service: email is required")
	}

	var invite models.Invite
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&invite).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if recordErr := s.recordAttempt(ctx, email, input); recordErr != nil {
			return false, "", recordErr
		}
		return false, ReasonNotInvited, nil
	case err != nil:
		return false, "", fmt.Errorf("invite service: find invite: %w", err)
	}

	if invite.Status == models.InviteStatusUsed {
		return false, ReasonInviteUsed, nil
	}

	return true, "", nil
}

func (s *InviteService) recordAttempt(ctx context.Context, email string, input PreSignupInput) error {
	payload, err := json.Marshal(map[string]string{
		"email": email,
		"name":  strings.TrimSpace(input.Name),
		"phone": strings.TrimSpace(input.Phone),
	})
	if err != nil {
		return fmt.Errorf("invite service: encode attempt payload: %w", err)
	}

	attempt := models.AttemptedSignup{
		Email:   email,
		Name:    strings.TrimSpace(input.Name),
		Phone:   strings.TrimSpace(input.Phone),
		Payload: datatypes.JSON(payload),
	}
	if err := s.db.WithContext(ctx).Create(&attempt).Error; err != nil {
		return fmt.Errorf("invite service: record attempted signup: %w", err)
	}
	return nil
}

// Consume marks the pending invite for the given email as used. Signup
// handlers call this once the account has been created.
func (s *InviteService) Consume(ctx context.Context, email string) error {
	ctx = ensureContext(ctx)

	email = normaliseEmail(email)
	if email == "" {
		return errors.New("invite service: email is required")
	}

	var invite models.Invite
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&invite).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInviteNotFound
	}
	if err != nil {
		return fmt.Errorf("invite service: find invite: %w", err)
	}

	if invite.Status == models.InviteStatusUsed {
		return ErrInviteAlreadyUsed
	}

	now := s.now()
	if err := s.db.WithContext(ctx).
		Model(&invite).
		Updates(map[string]any{"status": models.InviteStatusUsed, "used_at": now}).Error; err != nil {
		return fmt.Errorf("invite service: mark used: %w", err)
	}

	return nil
}

// Send creates (or re-opens) an invite for the given email and dispatches an
// invitation email. Re-inviting a used address resets it to pending.
func (s *InviteService) Send(ctx context.Context, email, invitedBy string) (*models.Invite, error) {
	ctx = ensureContext(ctx)

	email = normaliseEmail(email)
	if email == "" {
		return nil, errors.New("invite service: email is required")
	}

	var invite models.Invite
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&invite).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		invite = models.Invite{
			Email:     email,
			Status:    models.InviteStatusPending,
			InvitedBy: strings.TrimSpace(invitedBy),
			ExpiresAt: s.now().Add(s.ttl),
		}
		if err := s.db.WithContext(ctx).Create(&invite).Error; err != nil {
			return nil, fmt.Errorf("invite service: create invite: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("invite service: find invite: %w", err)
	default:
		expiresAt := s.now().Add(s.ttl)
		updates := map[string]any{
			"status":     models.InviteStatusPending,
			"invited_by": strings.TrimSpace(invitedBy),
			"used_at":    nil,
			"expires_at": expiresAt,
		}
		if err := s.db.WithContext(ctx).Model(&invite).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("invite service: refresh invite: %w", err)
		}
		invite.Status = models.InviteStatusPending
		invite.UsedAt = nil
		invite.ExpiresAt = expiresAt
	}

	if s.mailer != nil {
		message := mail.Message{
			To:      []string{email},
			Subject: "You're invited to Atelier",
			Body:    s.inviteBody(email),
		}
		if mailErr := s.mailer.Send(ctx, message); mailErr != nil && !errors.Is(mailErr, mail.ErrSMTPDisabled) {
			return nil, fmt.Errorf("invite service: send email: %w", mailErr)
		}
	}

	return &invite, nil
}

// List returns all invites, newest first.
func (s *InviteService) List(ctx context.Context) ([]models.Invite, error) {
	ctx = ensureContext(ctx)

	var invites []models.Invite
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&invites).Error; err != nil {
		return nil, fmt.Errorf("invite service: list invites: %w", err)
	}
	return invites, nil
}

// ListAttempts returns recorded signup attempts from uninvited addresses.
func (s *InviteService) ListAttempts(ctx context.Context) ([]models.AttemptedSignup, error) {
	ctx = ensureContext(ctx)

	var attempts []models.AttemptedSignup
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("invite service: list attempts: %w", err)
	}
	return attempts, nil
}

func (s *InviteService) inviteBody(email string) string {
	link := s.baseURL
	if link == "" {
		link = "/signup"
	} else {
		link += "/signup"
	}
	return fmt.Sprintf("Hello,\n\nYou have been invited to join Atelier. Create your account using this email address (%s) here:\n%s\n\nIf you did not expect this email, you can ignore it.\n", email, link)
}
