package handler

import (
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/cuongbtq/cashback-jobs/internal/api/dto"
	"github.com/cuongbtq/cashback-jobs/internal/worker/domain"
	"github.com/gin-gonic/gin"
)

const (
	defaultDeadLetterPageSize = 20
	maxDeadLetterPageSize     = 100
)

// queueParam resolves :queue and writes a 404 for unknown names
func (h *QueueHandler) queueParam(c *gin.Context) (string, bool) {
	name := c.Param("queue")
	if !h.queues[name] {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "unknown queue",
			"queue": name,
		})
		return "", false
	}
	return name, true
}

// ListQueues handles GET /api/v1/admin/queues
func (h *QueueHandler) ListQueues(c *gin.Context) {
	names := make([]string, 0, len(h.queues))
	for name := range h.queues {
		names = append(names, name)
	}
	sort.Strings(names)

	stats := make([]dto.QueueStatsDTO, 0, len(names))
	for _, name := range names {
		s, err := h.queue.Stats(c.Request.Context(), name)
		if err != nil {
			h.logger.Error("Failed to read queue stats", slog.String("queue", name), slog.String("error", err.Error()))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Failed to read queue stats",
			})
			return
		}
		stats = append(stats, dto.QueueStatsDTO{
			Queue:      name,
			Pending:    s.Pending,
			Processing: s.Processing,
			DeadLetter: s.DeadLetter,
		})
	}

	c.JSON(http.StatusOK, gin.H{"queues": stats})
}

// EnqueueJob handles POST /api/v1/admin/queues/:queue/jobs
func (h *QueueHandler) EnqueueJob(c *gin.Context) {
	name, ok := h.queueParam(c)
	if !ok {
		return
	}

	var req dto.EnqueueJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	id, err := h.queue.Enqueue(c.Request.Context(), name, domain.Kind(req.Type), req.Target, req.Data)
	if err != nil {
		h.logger.Error("Failed to enqueue job", slog.String("queue", name), slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Failed to enqueue job",
		})
		return
	}

	c.JSON(http.StatusAccepted, dto.EnqueueJobResponse{JobID: id, Queue: name})
}

// ListDeadLetters handles GET /api/v1/admin/queues/:queue/dlq
func (h *QueueHandler) ListDeadLetters(c *gin.Context) {
	name, ok := h.queueParam(c)
	if !ok {
		return
	}

	var req dto.ListDeadLettersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultDeadLetterPageSize
	}

	if req.PageSize > maxDeadLetterPageSize {
		req.PageSize = maxDeadLetterPageSize
	}

	offset, err := DecodeDeadLetterCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	entries, err := h.queue.DeadLetterList(c.Request.Context(), name)
	if err != nil {
		h.logger.Error("Failed to list dead-letter jobs", slog.String("queue", name), slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Failed to list dead-letter jobs",
		})
		return
	}

	resp := dto.ListDeadLettersResponse{
		Queue:   name,
		Total:   len(entries),
		Entries: []dto.DeadLetterDTO{},
	}

	end := offset + req.PageSize
	if end > len(entries) {
		end = len(entries)
	}
	for i := offset; i < end; i++ {
		env := entries[i]
		item := dto.DeadLetterDTO{
			Index:    i,
			JobID:    env.ID,
			Type:     string(env.Type),
			Target:   env.Target,
			Attempts: env.Attempts,
			FailedAt: env.FailedAt,
			Error:    env.Error,
			Data:     env.Data,
		}
		if !env.EnqueuedAt.IsZero() {
			enqueuedAt := env.EnqueuedAt
			item.EnqueuedAt = &enqueuedAt
		}
		resp.Entries = append(resp.Entries, item)
	}

	if end < len(entries) {
		resp.NextCursor = EncodeDeadLetterCursor(end)
	}

	c.JSON(http.StatusOK, resp)
}

// RetryDeadLetter handles POST /api/v1/admin/queues/:queue/dlq/:index/retry
func (h *QueueHandler) RetryDeadLetter(c *gin.Context) {
	name, ok := h.queueParam(c)
	if !ok {
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "index must be an integer",
		})
		return
	}

	retried, err := h.queue.DeadLetterRetry(c.Request.Context(), name, index)
	if err != nil {
		h.logger.Error("Failed to retry dead-letter job",
			slog.String("queue", name),
			slog.Int("index", index),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retry dead-letter job",
		})
		return
	}

	if !retried {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "dead-letter job not found",
			"index": index,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"queue":   name,
		"index":   index,
		"retried": true,
	})
}

// ClearDeadLetters handles DELETE /api/v1/admin/queues/:queue/dlq
func (h *QueueHandler) ClearDeadLetters(c *gin.Context) {
	name, ok := h.queueParam(c)
	if !ok {
		return
	}

	n, err := h.queue.DeadLetterClear(c.Request.Context(), name)
	if err != nil {
		h.logger.Error("Failed to clear dead-letter jobs", slog.String("queue", name), slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Failed to clear dead-letter jobs",
		})
		return
	}

	h.logger.Warn("Dead-letter queue cleared by operator",
		slog.String("queue", name),
		slog.Int64("count", n),
		slog.String("ip", c.ClientIP()),
	)

	c.JSON(http.StatusOK, dto.ClearDeadLettersResponse{Queue: name, Cleared: n})
}
