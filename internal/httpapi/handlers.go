package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"automation-platform/internal/auth"
	"automation-platform/internal/events"
	"automation-platform/internal/executions"
	"automation-platform/internal/rules"
	"automation-platform/internal/workflows"
	"automation-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth      *auth.Manager
	Bus       events.Bus
	Stream    string
	Rules     rules.Repository
	Records   executions.Repository
	Workflows *workflows.Service
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues an access token.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	token, err := h.Auth.Issue(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token})
}

// --- Events ---

type publishEventRequest struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// PublishEvent appends one event to the stream. External systems (webhook
// bridges, schedulers) raise events here.
func (h Handlers) PublishEvent(c *gin.Context) {
	if h.Bus == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "bus not configured"})
		return
	}
	var req publishEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Type == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "type required"})
		return
	}
	if !events.KnownType(events.Type(req.Type)) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown event type"})
		return
	}
	id, err := h.Bus.Publish(c.Request.Context(), h.Stream, events.Type(req.Type), req.Payload)
	if err != nil {
		logger.FromGin(c).Error("event publish failed", "event_type", req.Type, "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "publish failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message_id": id})
}

// --- Rules ---

func (h Handlers) ListRules(c *gin.Context) {
	if h.Rules == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "rules not configured"})
		return
	}
	all, err := h.Rules.List(c.Request.Context())
	if err != nil {
		logger.FromGin(c).Error("rule list failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "rule lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": all})
}

func (h Handlers) GetRule(c *gin.Context) {
	if h.Rules == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "rules not configured"})
		return
	}
	rule, err := h.Rules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, rules.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "rule not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "rule lookup failed"})
		return
	}
	c.JSON(http.StatusOK, rule)
}

// ListExecutions pages a rule's execution history, newest first.
func (h Handlers) ListExecutions(c *gin.Context) {
	if h.Records == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "executions not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	recs, err := h.Records.ListByRule(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		if errors.Is(err, executions.ErrInvalidArgument) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "rule id required"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "execution lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": recs})
}

// --- Workflows ---

func (h Handlers) GetWorkflow(c *gin.Context) {
	if h.Workflows == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "workflows not configured"})
		return
	}
	inst, items, err := h.Workflows.GetInstance(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, workflows.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "workflow lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"instance": inst, "workItems": items})
}

// CompleteWorkItem marks an item done on behalf of the authenticated user.
// Progression happens asynchronously through the published completion event.
func (h Handlers) CompleteWorkItem(c *gin.Context) {
	if h.Workflows == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "workflows not configured"})
		return
	}
	if _, err := auth.UserID(c.Request.Context()); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	item, err := h.Workflows.CompleteWorkItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, workflows.ErrNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "work item not found"})
		case errors.Is(err, workflows.ErrInvalidArgument):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "work item not completable"})
		default:
			logger.FromGin(c).Error("work item completion failed", "item_id", c.Param("id"), "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "completion failed"})
		}
		return
	}
	c.JSON(http.StatusOK, item)
}
