package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/artisanhq/atelier/internal/services"
	"github.com/artisanhq/atelier/pkg/errors"
	"github.com/artisanhq/atelier/pkg/response"
)

// ProvisionTokenHeader carries the shared secret authorising admin
// provisioning.
const ProvisionTokenHeader = "X-Provision-Token"

// ProvisionHandler bootstraps the first admin account. The endpoint is
// guarded by a deploy-time shared secret rather than a user session so it
// can run before any account exists.
type ProvisionHandler struct {
	provision *services.ProvisionService
	token     string
}

func NewProvisionHandler(provision *services.ProvisionService, token string) *ProvisionHandler {
	return &ProvisionHandler{provision: provision, token: token}
}

type provisionAdminRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"omitempty,min=8"`
}

// POST /api/provision-admin
func (h *ProvisionHandler) ProvisionAdmin(c *gin.Context) {
	if h.token == "" {
		response.Error(c, errors.ErrForbidden)
		return
	}

	supplied := c.GetHeader(ProvisionTokenHeader)
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(h.token)) != 1 {
		response.Error(c, errors.ErrForbidden)
		return
	}

	var req provisionAdminRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, created, err := h.provision.EnsureAdmin(requestContext(c), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}

	response.Success(c, status, gin.H{
		"created": created,
		"user":    userPayload(user),
	})
}
