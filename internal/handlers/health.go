package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/artisanhq/atelier/internal/monitoring"
	"github.com/artisanhq/atelier/pkg/response"
)

// HealthHandler exposes the dependency probes for orchestrator health checks.
type HealthHandler struct {
	health *monitoring.HealthManager
}

// NewHealthHandler constructs a HealthHandler around the probe manager.
func NewHealthHandler(manager *monitoring.HealthManager) *HealthHandler {
	return &HealthHandler{health: manager}
}

// Health returns a simple status payload useful for load balancer checks.
func Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	}
}

// Live runs the registered liveness probes.
func (h *HealthHandler) Live(c *gin.Context) {
	h.render(c, h.health.EvaluateLiveness(c.Request.Context()))
}

// Ready runs the registered readiness probes.
func (h *HealthHandler) Ready(c *gin.Context) {
	h.render(c, h.health.EvaluateReadiness(c.Request.Context()))
}

func (h *HealthHandler) render(c *gin.Context, report monitoring.HealthReport) {
	status := http.StatusOK
	if !report.Success {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
