package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pageza/reelkitchen/backend/internal/middleware"
)

// RateLimitHandler reports remaining quotas
type RateLimitHandler struct {
	submissions *middleware.RateLimiter
}

// NewRateLimitHandler creates a new RateLimitHandler
func NewRateLimitHandler(submissions *middleware.RateLimiter) *RateLimitHandler {
	return &RateLimitHandler{submissions: submissions}
}

// RegisterRoutes registers rate limit routes on an authenticated group
func (h *RateLimitHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/rate-limits/submissions", h.Submissions)
}

// Submissions returns the caller's submission quota
func (h *RateLimitHandler) Submissions(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	status, err := h.submissions.Status(c.Request.Context(), userID.String())
	if err != nil {
		fail(c, err)
		return
	}
	if status == nil {
		c.JSON(http.StatusOK, gin.H{"limited": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"limited":   true,
		"limit":     status.Limit,
		"remaining": status.Remaining,
		"reset_at":  status.ResetAt,
		"window":    status.Window,
	})
}
