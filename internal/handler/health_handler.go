package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/gtd_wechat/internal/utils"
)

var startTime = time.Now()

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler provides health endpoint.
type HealthHandler struct {
	store       Pinger
	storeDriver string
	payment     bool
	platform    bool
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(store Pinger, storeDriver string, payment, platform bool) *HealthHandler {
	return &HealthHandler{store: store, storeDriver: storeDriver, payment: payment, platform: platform}
}

// GetHealth responds with service and credential store status.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	storeStatus := "connected"
	status, code := "healthy", 200
	if err := h.store.Ping(ctx); err != nil {
		storeStatus = "disconnected"
		status, code = "degraded", 503
	}

	utils.Success(c, code, "Service is "+status, gin.H{
		"status":  status,
		"version": "1.0.0",
		"uptime":  int(time.Since(startTime).Seconds()),
		"cache": gin.H{
			"driver": h.storeDriver,
			"status": storeStatus,
		},
		"payment":  h.payment,
		"platform": h.platform,
	})
}
