package router

import (
	"time"

	"github.com/cuongbtq/cashback-jobs/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// RateLimit configures the per-client API limit
type RateLimit struct {
	Enabled  bool
	Requests int64
	Window   time.Duration
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, limit RateLimit) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	opsHandler := handler.NewOpsHandler(deps)
	queueHandler := handler.NewQueueHandler(deps)
	walletHandler := handler.NewWalletHandler(deps)

	// Health check endpoint
	r.GET("/health", opsHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	if limit.Enabled {
		v1.Use(RateLimitMiddleware(deps.Limiter, limit.Requests, limit.Window))
	}
	{
		wallet := v1.Group("/wallet/:user_id")
		{
			// POST /api/v1/wallet/:user_id/convert-cashback - Move pending cashback to balance
			wallet.POST("/convert-cashback", walletHandler.ConvertCashback)

			// POST /api/v1/wallet/:user_id/withdraw - Request a payout
			wallet.POST("/withdraw", walletHandler.Withdraw)
		}

		admin := v1.Group("/admin")
		{
			// GET /api/v1/admin/queues - Counts for every queue
			admin.GET("/queues", queueHandler.ListQueues)

			// POST /api/v1/admin/queues/:queue/jobs - Enqueue a job
			admin.POST("/queues/:queue/jobs", queueHandler.EnqueueJob)

			// GET /api/v1/admin/queues/:queue/dlq - List dead-letter jobs
			admin.GET("/queues/:queue/dlq", queueHandler.ListDeadLetters)

			// POST /api/v1/admin/queues/:queue/dlq/:index/retry - Requeue one dead-letter job
			admin.POST("/queues/:queue/dlq/:index/retry", queueHandler.RetryDeadLetter)

			// DELETE /api/v1/admin/queues/:queue/dlq - Drop every dead-letter job
			admin.DELETE("/queues/:queue/dlq", queueHandler.ClearDeadLetters)

			// POST /api/v1/admin/sync - Request an immediate reconciliation
			admin.POST("/sync", opsHandler.TriggerSync)

			// DELETE /api/v1/admin/locks/:name - Force-release a stuck lock
			admin.DELETE("/locks/:name", opsHandler.ReleaseLock)
		}
	}

	return r
}
