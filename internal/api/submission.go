package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pageza/reelkitchen/backend/internal/middleware"
	"github.com/pageza/reelkitchen/backend/internal/models"
	"github.com/pageza/reelkitchen/backend/internal/service"
	"github.com/pageza/reelkitchen/backend/internal/types"
)

// SubmissionHandler handles video submission endpoints
type SubmissionHandler struct {
	submissions service.ISubmissionService
	limiter     *middleware.RateLimiter
}

// NewSubmissionHandler creates a new SubmissionHandler. limiter may be nil.
func NewSubmissionHandler(submissions service.ISubmissionService, limiter *middleware.RateLimiter) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions, limiter: limiter}
}

// RegisterRoutes registers submission routes on an authenticated group
func (h *SubmissionHandler) RegisterRoutes(router *gin.RouterGroup) {
	subs := router.Group("/submissions")
	{
		subs.POST("", h.limiter.RateLimitMiddleware(), h.Create)
		subs.GET("", h.List)
		subs.GET("/:id", h.Get)
		subs.POST("/:id/retry", h.Retry)
	}
}

// Create submits a video for extraction
func (h *SubmissionHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req types.CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.submissions.Create(c.Request.Context(), userID, req.VideoURL)
	if err != nil {
		fail(c, err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"submission": res.Submission,
		"duplicate":  res.Duplicate,
		"award":      awardResponse(res.Award),
	})
}

// List returns the caller's submissions
func (h *SubmissionHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, offset, ok := pagination(c)
	if !ok {
		return
	}
	status := c.Query("status")
	switch models.SubmissionStatus(status) {
	case "", models.SubmissionPending, models.SubmissionProcessing, models.SubmissionCompleted, models.SubmissionFailed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status filter"})
		return
	}

	subs, total, err := h.submissions.List(c.Request.Context(), userID, status, limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": subs, "total": total})
}

// Get returns one submission, polling the extractor first when refresh=true
func (h *SubmissionHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	sub, err := h.submissions.Get(c.Request.Context(), userID, id, c.Query("refresh") == "true")
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submission": sub})
}

// Retry resubmits a failed submission
func (h *SubmissionHandler) Retry(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	sub, err := h.submissions.Retry(c.Request.Context(), userID, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"submission": sub})
}
