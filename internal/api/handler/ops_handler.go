package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/cashback-jobs/internal/api/dto"
	"github.com/cuongbtq/cashback-jobs/internal/reconcile"
	"github.com/gin-gonic/gin"
)

// Health handles GET /health
func (h *OpsHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"store": "ok"}
	healthy := true

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Error("Store health check failed", slog.String("error", err.Error()))
		checks["store"] = "unavailable"
		healthy = false
	}

	if h.database != nil {
		checks["database"] = "ok"
		if err := h.database.HealthCheck(ctx); err != nil {
			h.logger.Error("Database health check failed", slog.String("error", err.Error()))
			checks["database"] = "unavailable"
			healthy = false
		}
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "cashback-api-service",
			"checks":  checks,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "cashback-api-service",
		"checks":  checks,
	})
}

// TriggerSync handles POST /api/v1/admin/sync
// Asks the worker service for an immediate reconciliation run
func (h *OpsHandler) TriggerSync(c *gin.Context) {
	var req dto.TriggerSyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}
	}

	err := reconcile.RequestSync(c.Request.Context(), h.store, reconcile.SyncRequest{
		Since:       req.Since,
		RequestedBy: c.ClientIP(),
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("Failed to request sync", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Failed to request sync",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "sync requested",
	})
}

// ReleaseLock handles DELETE /api/v1/admin/locks/:name
// Clears a lock left behind by a crashed holder
func (h *OpsHandler) ReleaseLock(c *gin.Context) {
	name := c.Param("name")

	if err := h.locker.ForceRelease(c.Request.Context(), name); err != nil {
		h.logger.Error("Failed to release lock", slog.String("lock", name), slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Failed to release lock",
		})
		return
	}

	h.logger.Warn("Lock force-released by operator",
		slog.String("lock", name),
		slog.String("ip", c.ClientIP()),
	)

	c.Status(http.StatusNoContent)
}
