package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clubportal/internal/model"
	"clubportal/internal/service"
	"clubportal/pkg/rbac"
)

// RunLookup resolves run details for the run_specific ownership check.
type RunLookup interface {
	GetRun(ctx context.Context, id int) (*model.Run, error)
}

type NotificationHandler struct {
	notifications *service.NotificationService
	quota         *service.QuotaTracker
	runs          RunLookup
	logger        *zap.Logger
}

func NewNotificationHandler(notifications *service.NotificationService, quota *service.QuotaTracker, runs RunLookup, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		quota:         quota,
		runs:          runs,
		logger:        logger,
	}
}

// getMember reads the authenticated member identity set by the auth
// middleware.
func getMember(c *gin.Context) (int, string, bool) {
	memberID, ok := c.Get("member_id")
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "member not authenticated"})
		return 0, "", false
	}
	role, _ := c.Get("role")
	r, _ := role.(string)
	return memberID.(int), r, true
}

type createNotificationRequest struct {
	Title          string     `json:"title" binding:"required"`
	Message        string     `json:"message" binding:"required"`
	Type           string     `json:"type" binding:"required"`
	Priority       string     `json:"priority"`
	RunID          *int       `json:"run_id"`
	AffiliatedOnly bool       `json:"affiliated_only"`
	SendEmail      bool       `json:"send_email"`
	ScheduledFor   *time.Time `json:"scheduled_for"`
	ExpiresAt      *time.Time `json:"expires_at"`
}

// Create handles POST /api/notifications.
func (h *NotificationHandler) Create(c *gin.Context) {
	memberID, role, ok := getMember(c)
	if !ok {
		return
	}

	var req createNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.authorizeCreate(c, memberID, role, req); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}

	n, recipients, err := h.notifications.Create(c.Request.Context(), service.CreateInput{
		Title:          req.Title,
		Message:        req.Message,
		Type:           req.Type,
		Priority:       req.Priority,
		RunID:          req.RunID,
		AffiliatedOnly: req.AffiliatedOnly,
		SendEmail:      req.SendEmail,
		CreatedBy:      memberID,
		ScheduledFor:   req.ScheduledFor,
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidNotification) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to create notification", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create notification"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"notification": n,
		"recipients":   recipients,
	})
}

// authorizeCreate enforces the role rules per notification type. LIRFs may
// broadcast, but a run_specific notification additionally requires the
// actor to lead that run unless they are an admin.
func (h *NotificationHandler) authorizeCreate(c *gin.Context, memberID int, role string, req createNotificationRequest) error {
	switch req.Type {
	case model.TypeUrgent:
		return rbac.CheckPermission(role, rbac.PermissionCreateUrgent)
	case model.TypeRunSpecific:
		if err := rbac.CheckPermission(role, rbac.PermissionCreateRun); err != nil {
			return err
		}
		if role == rbac.RoleAdmin || req.RunID == nil {
			// A nil run id falls through to create-time validation.
			return nil
		}
		run, err := h.runs.GetRun(c.Request.Context(), *req.RunID)
		if err != nil {
			return errors.New("run not found")
		}
		if run.LedBy != memberID {
			return &rbac.PermissionDeniedError{Role: role, Permission: rbac.PermissionCreateRun}
		}
		return nil
	default:
		return rbac.CheckPermission(role, rbac.PermissionCreateGeneral)
	}
}

// List handles GET /api/notifications.
func (h *NotificationHandler) List(c *gin.Context) {
	memberID, _, ok := getMember(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	items, err := h.notifications.List(c.Request.Context(), memberID, limit)
	if err != nil {
		h.logger.Error("Failed to list notifications", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notifications"})
		return
	}
	if items == nil {
		items = []model.FeedItem{}
	}

	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

// MarkRead handles PUT /api/notifications/:id/read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	memberID, _, ok := getMember(c)
	if !ok {
		return
	}

	if err := h.notifications.MarkRead(c.Request.Context(), c.Param("id"), memberID); err != nil {
		h.logger.Error("Failed to mark notification read", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark read"})
		return
	}

	c.Status(http.StatusNoContent)
}

// Dismiss handles PUT /api/notifications/:id/dismiss.
func (h *NotificationHandler) Dismiss(c *gin.Context) {
	memberID, _, ok := getMember(c)
	if !ok {
		return
	}

	if err := h.notifications.Dismiss(c.Request.Context(), c.Param("id"), memberID); err != nil {
		h.logger.Error("Failed to dismiss notification", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to dismiss"})
		return
	}

	c.Status(http.StatusNoContent)
}

// Quota handles GET /api/quota.
func (h *NotificationHandler) Quota(c *gin.Context) {
	status, err := h.quota.CanSend(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to compute quota", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute quota"})
		return
	}

	c.JSON(http.StatusOK, status)
}
