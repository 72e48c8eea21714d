package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clubportal/internal/service"
)

type DigestHandler struct {
	scheduler *service.DigestScheduler
	logger    *zap.Logger
}

func NewDigestHandler(scheduler *service.DigestScheduler, logger *zap.Logger) *DigestHandler {
	return &DigestHandler{
		scheduler: scheduler,
		logger:    logger,
	}
}

// Trigger handles POST /api/digest/trigger. It runs a digest cycle
// synchronously, bypassing the weekday gate; the day marker is still set.
func (h *DigestHandler) Trigger(c *gin.Context) {
	sent, failed, err := h.scheduler.ForceTrigger(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrDigestRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Forced digest failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "digest run failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sent":   sent,
		"failed": failed,
	})
}
