package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pageza/reelkitchen/backend/internal/service"
	"github.com/pageza/reelkitchen/backend/internal/types"
)

// RouletteHandler handles recipe roulette endpoints
type RouletteHandler struct {
	roulette service.IRouletteService
}

// NewRouletteHandler creates a new RouletteHandler
func NewRouletteHandler(roulette service.IRouletteService) *RouletteHandler {
	return &RouletteHandler{roulette: roulette}
}

// RegisterRoutes registers roulette routes on an authenticated group
func (h *RouletteHandler) RegisterRoutes(router *gin.RouterGroup) {
	roulette := router.Group("/roulette")
	{
		roulette.POST("/spin", h.Spin)
		roulette.GET("/history", h.History)
	}
}

// Spin picks a random recipe. An empty body spins over the whole collection.
func (h *RouletteHandler) Spin(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var filter types.RouletteFilter
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&filter); err != nil {
			badRequest(c, err)
			return
		}
	}
	res, err := h.roulette.Spin(c.Request.Context(), userID, filter)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"recipe":    res.Recipe,
		"spin_id":   res.Spin.ID,
		"pool_size": res.PoolSize,
		"award":     awardResponse(res.Award),
	})
}

func (h *RouletteHandler) History(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		badRequest(c, err)
		return
	}
	spins, err := h.roulette.History(c.Request.Context(), userID, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"spins": spins})
}
