package handlers

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/artisanhq/atelier/internal/auth"
	"github.com/artisanhq/atelier/internal/middleware"
	"github.com/artisanhq/atelier/internal/models"
	"github.com/artisanhq/atelier/internal/services"
	"github.com/artisanhq/atelier/pkg/errors"
	"github.com/artisanhq/atelier/pkg/response"
)

// AuthHandler manages account flows: signup, login, refresh, logout and
// email verification.
type AuthHandler struct {
	users         *services.UserService
	invites       *services.InviteService
	verifications *services.EmailVerificationService
	sessions      *iauth.SessionService
}

func NewAuthHandler(users *services.UserService, invites *services.InviteService, verifications *services.EmailVerificationService, sessions *iauth.SessionService) *AuthHandler {
	return &AuthHandler{users: users, invites: invites, verifications: verifications, sessions: sessions}
}

type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
	Phone    string `json:"phone"`
}

// POST /api/auth/signup
//
// Signup is invite-gated: the address must hold a pending invite. The
// invite is consumed, the account created and a verification email sent.
// These are sequential writes without compensating rollback.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)

	allowed, reason, err := h.invites.PreSignupCheck(ctx, services.PreSignupInput{
		Email: req.Email,
		Name:  req.Name,
		Phone: req.Phone,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	if !allowed {
		appErr := *errors.ErrInviteRequired
		if reason == services.ReasonInviteUsed {
			appErr.Message = "This invite has already been used"
		}
		response.Error(c, &appErr)
		return
	}

	user, err := h.users.Create(ctx, services.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
		Role:     models.RoleUser,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if err := h.invites.Consume(ctx, user.Email); err != nil {
		response.Error(c, inviteError(err))
		return
	}

	if _, _, err := h.verifications.CreateToken(ctx, user.ID, user.Email); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"user":              userPayload(user),
		"verification_sent": true,
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)

	user, err := h.users.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	pair, _, err := h.sessions.CreateSession(user.ID, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Claims:    map[string]any{"role": user.Role},
	})
	if err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}

	if err := h.users.RecordLogin(ctx, user.ID, c.ClientIP()); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"tokens": tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken},
		"user":   userPayload(user),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		response.Error(c, errors.NewBadRequest("refresh token is required"))
		return
	}

	pair, _, err := h.sessions.RefreshSession(req.RefreshToken)
	if err != nil {
		// Normalise refresh failures to 401
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	response.Success(c, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	sessionID := c.GetString(middleware.CtxSessionIDKey)
	if sessionID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.sessions.RevokeSession(sessionID); err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	user, err := h.users.GetByID(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": userPayload(user)})
}

type verifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

// POST /api/auth/verify-email
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req verifyEmailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)

	record, err := h.verifications.VerifyToken(ctx, req.Token)
	if err != nil {
		switch {
		case stderrors.Is(err, services.ErrVerificationNotFound),
			stderrors.Is(err, services.ErrVerificationExpired),
			stderrors.Is(err, services.ErrVerificationUsed):
			response.Error(c, errors.NewBadRequest("verification link is invalid or has expired"))
		default:
			response.Error(c, err)
		}
		return
	}

	if err := h.users.MarkEmailVerified(ctx, record.UserID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"verified": true})
}

type resendVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// POST /api/auth/resend-verification
//
// Always answers success so the endpoint cannot be used to probe which
// addresses hold accounts.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req resendVerificationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)

	user, err := h.users.GetByEmail(ctx, req.Email)
	if err == nil && user.EmailVerifiedAt == nil {
		if _, _, err := h.verifications.CreateToken(ctx, user.ID, user.Email); err != nil {
			response.Error(c, err)
			return
		}
	}

	response.Success(c, http.StatusOK, gin.H{"sent": true})
}

func userPayload(user *models.User) gin.H {
	payload := gin.H{
		"id":             user.ID,
		"email":          user.Email,
		"role":           user.Role,
		"is_active":      user.IsActive,
		"email_verified": user.EmailVerifiedAt != nil,
	}
	if user.Profile != nil {
		payload["profile"] = user.Profile
	}
	return payload
}
