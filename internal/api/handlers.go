package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pageza/reelkitchen/backend/internal/middleware"
	"github.com/pageza/reelkitchen/backend/internal/service"
	"github.com/pageza/reelkitchen/backend/internal/types"
)

// HealthCheck returns the health status of the API
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"message": "ReelKitchen API is running",
	})
}

// fail hands err to the error middleware
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
}

// badRequest reports a binding or query error
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// currentUser returns the authenticated user's ID, answering 401 when absent
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return uuid.Nil, false
	}
	return userID, true
}

// pathID parses the :id route parameter
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// intQuery parses an optional non-negative integer query parameter
func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

// pagination reads limit and offset query parameters
func pagination(c *gin.Context) (int, int, bool) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		badRequest(c, err)
		return 0, 0, false
	}
	offset, err := intQuery(c, "offset")
	if err != nil {
		badRequest(c, err)
		return 0, 0, false
	}
	return limit, offset, true
}

func awardResponse(a *service.AwardResult) *types.AwardResponse {
	if a == nil {
		return nil
	}
	resp := a.Response()
	return &resp
}
