package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"groupchat-service/internal/clients"
	"groupchat-service/internal/models"
	"groupchat-service/internal/repositories"
	"groupchat-service/internal/telemetry"
)

// HistoryHandler serves persisted message history over REST, mirroring the
// backlog a websocket join returns. Dashboards and exports read it here.
type HistoryHandler struct {
	messageRepo  repositories.MessageRepository
	membership   clients.MembershipService
	audit        *telemetry.AuditEmitter
	defaultLimit int
	maxLimit     int
}

// NewHistoryHandler constructs a HistoryHandler.
func NewHistoryHandler(messageRepo repositories.MessageRepository, membership clients.MembershipService, audit *telemetry.AuditEmitter, defaultLimit, maxLimit int) *HistoryHandler {
	return &HistoryHandler{
		messageRepo:  messageRepo,
		membership:   membership,
		audit:        audit,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

// GetGroupMessages handles GET /groups/:group_id/messages.
func (h *HistoryHandler) GetGroupMessages(c *gin.Context) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}

	limit := h.defaultLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > h.maxLimit {
		limit = h.maxLimit
	}

	userID := c.GetInt("userID")

	exists, err := h.membership.GroupExists(c.Request.Context(), groupID)
	if err != nil {
		h.emitAudit(c, "ERROR", "membership check failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": models.WireError{Code: models.CodeStoreUnavailable, Message: "membership check failed"}})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": models.WireError{Code: models.CodeGroupNotFound, Message: "group not found"}})
		return
	}

	member, err := h.membership.IsMember(c.Request.Context(), groupID, userID)
	if err != nil {
		h.emitAudit(c, "ERROR", "membership check failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": models.WireError{Code: models.CodeStoreUnavailable, Message: "membership check failed"}})
		return
	}
	if !member {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": models.WireError{Code: models.CodeNotAuthorized, Message: "not a member"}})
		return
	}

	msgs, err := h.messageRepo.FetchBacklog(c.Request.Context(), groupID, limit)
	if err != nil {
		if errors.Is(err, repositories.ErrStoreUnavailable) {
			h.emitAudit(c, "ERROR", "store unavailable")
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": models.WireError{Code: models.CodeStoreUnavailable, Message: "failed to load messages"}})
		return
	}

	h.emitAudit(c, "INFO", "Group history read")
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// Healthz reports liveness; the db ping is wired in main.
func Healthz(ping func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ping != nil {
			if err := ping(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
