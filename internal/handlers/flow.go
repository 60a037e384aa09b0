package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/artisanhq/atelier/internal/flow"
	"github.com/artisanhq/atelier/internal/middleware"
	"github.com/artisanhq/atelier/internal/models"
	"github.com/artisanhq/atelier/internal/services"
	"github.com/artisanhq/atelier/pkg/response"
)

// FlowHandler resolves where a client should land. It replaces scattered
// per-page redirect checks with one decision endpoint.
type FlowHandler struct {
	profiles *services.ProfileService
}

func NewFlowHandler(profiles *services.ProfileService) *FlowHandler {
	return &FlowHandler{profiles: profiles}
}

// GET /api/flow/route
//
// Mounted with OptionalAuth: anonymous callers are routed to login rather
// than rejected.
func (h *FlowHandler) Route(c *gin.Context) {
	identity := flow.Identity{}

	userID := c.GetString(middleware.CtxUserIDKey)
	if userID != "" {
		identity.Authenticated = true
		identity.Role = c.GetString(middleware.CtxRoleKey)

		// Admins never pass through onboarding, so skip the summary read.
		if identity.Role != models.RoleAdmin {
			summary, err := h.profiles.Summary(requestContext(c), userID)
			if err != nil {
				response.Error(c, err)
				return
			}
			identity.OnboardingDone = summary.OnboardingStep2Done
		}
	}

	response.Success(c, http.StatusOK, gin.H{"route": flow.ResolveRoute(identity)})
}
