package handlers

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"

	"example.com/backstage/services/insights/internal/metrics"
)

// OpsHandler exposes process-local pipeline counters and health status.
type OpsHandler struct {
	ops *metrics.Metrics
}

// NewOpsHandler creates a new ops handler
func NewOpsHandler(ops *metrics.Metrics) *OpsHandler {
	return &OpsHandler{ops: ops}
}

// HandleGetMetrics returns all pipeline counters and timers
func (h *OpsHandler) HandleGetMetrics(c *gin.Context) {
	snapshot := h.ops.Snapshot()
	snapshot["goroutines"] = runtime.NumGoroutine()
	c.JSON(http.StatusOK, snapshot)
}

// HandleGetHealthCheck returns a simplified health status
func (h *OpsHandler) HandleGetHealthCheck(c *gin.Context) {
	healthChecks := h.ops.GetHealthChecks()

	healthy := true
	for _, status := range healthChecks {
		if !status {
			healthy = false
			break
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":  healthy,
		"details": healthChecks,
	})
}

// RegisterRoutes registers the handler's routes
func (h *OpsHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/metrics", h.HandleGetMetrics)
	router.GET("/health", h.HandleGetHealthCheck)
}
