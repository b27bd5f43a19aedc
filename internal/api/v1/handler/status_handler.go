package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Tools-cx-app/gpu-governor/internal/features/governor/domain"
	profiledomain "github.com/Tools-cx-app/gpu-governor/internal/features/profile/domain"
)

// SnapshotProvider exposes the most recent governor snapshot
type SnapshotProvider interface {
	Snapshot() *domain.Snapshot
}

// PolicyProvider exposes the active policy configuration
type PolicyProvider interface {
	Snapshot() profiledomain.PolicyConfig
}

// StatusHandler handles API requests for governor and policy state.
// The configuration UI reads these to render its dashboard.
type StatusHandler struct {
	governor SnapshotProvider
	policy   PolicyProvider
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(governor SnapshotProvider, policy PolicyProvider) *StatusHandler {
	return &StatusHandler{
		governor: governor,
		policy:   policy,
	}
}

// SetupRoutes configures the routes for this handler
func (h *StatusHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/status", h.getStatus)
		api.GET("/policy", h.getPolicy)
	}
}

// getStatus returns the latest published governor snapshot
func (h *StatusHandler) getStatus(c *gin.Context) {
	snapshot := h.governor.Snapshot()
	if snapshot == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "governor has not published a snapshot yet",
		})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// getPolicy returns the currently active policy. Tuning happens by
// editing the policy file; the loop picks changes up on its next poll,
// so a GET issued after a write may briefly show the previous values.
func (h *StatusHandler) getPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, h.policy.Snapshot())
}
