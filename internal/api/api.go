package api

import (
	"github.com/gin-gonic/gin"

	"github.com/pageza/reelkitchen/backend/internal/middleware"
	"github.com/pageza/reelkitchen/backend/internal/service"
)

// Dependencies are the services the HTTP API is built from
type Dependencies struct {
	Auth         service.IAuthService
	Submissions  service.ISubmissionService
	Recipes      service.IRecipeService
	Gamification service.IGamificationService
	Roulette     service.IRouletteService
	Dashboard    service.IDashboardService

	// SubmissionLimiter may be nil to disable rate limiting
	SubmissionLimiter *middleware.RateLimiter
	WebhookSecret     string
	Cookie            CookieConfig
	FrontendURL       string
}

// RegisterRoutes registers all API routes
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	RegisterValidators()

	// Health check endpoint (no auth required)
	router.GET("/health", HealthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.ErrorHandler())

	NewAuthHandler(deps.Auth, deps.Cookie, deps.FrontendURL).RegisterRoutes(v1)
	NewWebhookHandler(deps.Submissions, deps.WebhookSecret).RegisterRoutes(v1)

	authenticated := v1.Group("")
	authenticated.Use(middleware.AuthMiddleware(deps.Auth, deps.Cookie.Name))
	NewSubmissionHandler(deps.Submissions, deps.SubmissionLimiter).RegisterRoutes(authenticated)
	NewRecipeHandler(deps.Recipes).RegisterRoutes(authenticated)
	NewRouletteHandler(deps.Roulette).RegisterRoutes(authenticated)
	NewGamificationHandler(deps.Gamification).RegisterRoutes(authenticated)
	NewDashboardHandler(deps.Dashboard).RegisterRoutes(authenticated)
	NewRateLimitHandler(deps.SubmissionLimiter).RegisterRoutes(authenticated)
}
