package handlers

import (
	"net/http"
	"time"

	"github.com/labelscan/portal/internal/models"
)

// HealthHandler handles health check endpoints
type HealthHandler struct{}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// HealthCheck returns the portal health status
// @Summary Health check
// @Description Returns the current health status of the portal
// @Tags health
// @Produce json
// @Success 200 {object} models.HealthResponse "Portal is healthy"
// @Router /health [get]
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}
