package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pageza/reelkitchen/backend/internal/service"
)

// GamificationHandler exposes points, streaks, challenges and the leaderboard
type GamificationHandler struct {
	gamification service.IGamificationService
}

// NewGamificationHandler creates a new GamificationHandler
func NewGamificationHandler(gamification service.IGamificationService) *GamificationHandler {
	return &GamificationHandler{gamification: gamification}
}

// RegisterRoutes registers gamification routes on an authenticated group
func (h *GamificationHandler) RegisterRoutes(router *gin.RouterGroup) {
	g := router.Group("/gamification")
	{
		g.GET("/stats", h.Stats)
		g.GET("/points", h.Points)
		g.GET("/challenges", h.Challenges)
		g.GET("/leaderboard", h.Leaderboard)
	}
}

func (h *GamificationHandler) Stats(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	stats, err := h.gamification.Stats(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stats":                stats,
		"points_to_next_level": service.PointsPerLevel - stats.Points%service.PointsPerLevel,
	})
}

// Points returns the caller's point ledger
func (h *GamificationHandler) Points(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		badRequest(c, err)
		return
	}
	events, err := h.gamification.Ledger(c.Request.Context(), userID, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *GamificationHandler) Challenges(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	challenges, err := h.gamification.Challenges(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenges": challenges})
}

func (h *GamificationHandler) Leaderboard(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		badRequest(c, err)
		return
	}
	entries, err := h.gamification.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}
