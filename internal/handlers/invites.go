package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/artisanhq/atelier/internal/middleware"
	"github.com/artisanhq/atelier/internal/services"
	"github.com/artisanhq/atelier/pkg/errors"
	"github.com/artisanhq/atelier/pkg/response"
)

// InviteHandler exposes the invite gate: the public pre-signup probe and
// the admin-facing invite management endpoints.
type InviteHandler struct {
	invites *services.InviteService
}

func NewInviteHandler(invites *services.InviteService) *InviteHandler {
	return &InviteHandler{invites: invites}
}

type preSignupRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// POST /api/invites/pre-signup
//
// Public. Reports whether the address may sign up; uninvited attempts are
// recorded for admin review.
func (h *InviteHandler) PreSignup(c *gin.Context) {
	var req preSignupRequest
	if !bindAndValidate(c, &req) {
		return
	}

	allowed, reason, err := h.invites.PreSignupCheck(requestContext(c), services.PreSignupInput{
		Email: req.Email,
		Name:  req.Name,
		Phone: req.Phone,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := gin.H{"allowed": allowed}
	if reason != "" {
		payload["reason"] = reason
	}
	response.Success(c, http.StatusOK, payload)
}

type consumeInviteRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// POST /api/invites/consume
func (h *InviteHandler) Consume(c *gin.Context) {
	var req consumeInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.invites.Consume(requestContext(c), req.Email); err != nil {
		response.Error(c, inviteError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"consumed": true})
}

// inviteError translates invite sentinels into client-facing errors.
func inviteError(err error) error {
	switch {
	case stderrors.Is(err, services.ErrInviteNotFound):
		return errors.NewBadRequest("no invite exists for this email")
	case stderrors.Is(err, services.ErrInviteAlreadyUsed):
		return errors.NewBadRequest("this invite has already been used")
	default:
		return err
	}
}

type sendInviteRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// POST /api/admin/invites
func (h *InviteHandler) Send(c *gin.Context) {
	var req sendInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	invite, err := h.invites.Send(requestContext(c), req.Email, c.GetString(middleware.CtxUserIDKey))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"invite": invite})
}

// GET /api/admin/invites
func (h *InviteHandler) List(c *gin.Context) {
	invites, err := h.invites.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"invites": invites})
}

// GET /api/admin/invites/attempts
func (h *InviteHandler) ListAttempts(c *gin.Context) {
	attempts, err := h.invites.ListAttempts(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}
