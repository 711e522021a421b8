package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/tesoreria-api/pkg/logger"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

type HealthHandler struct {
	check func(ctx context.Context) error
}

// NewHealthHandler creates a health handler. check may be nil when there is no backing store to ping.
func NewHealthHandler(check func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{check: check}
}

// @Summary Health Check
// @Description Checks if the API and its ledger store are reachable
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (h *HealthHandler) Index(c *gin.Context) {
	status := "ok"
	code := http.StatusOK

	if h.check != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.check(ctx); err != nil {
			logger.Error("health check failed", "error", err)
			status = "unavailable"
			code = http.StatusServiceUnavailable
		}
	}

	c.JSON(code, gin.H{
		"status":  status,
		"service": "tesoreria-api",
		"version": Version,
	})
}
