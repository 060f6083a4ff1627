package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pageza/reelkitchen/backend/internal/logger"
	"github.com/pageza/reelkitchen/backend/internal/middleware"
	"github.com/pageza/reelkitchen/backend/internal/models"
	"github.com/pageza/reelkitchen/backend/internal/service"
	"github.com/pageza/reelkitchen/backend/internal/types"
)

// CookieConfig controls the session cookie
type CookieConfig struct {
	Name   string
	Secure bool
}

// AuthHandler handles account and session endpoints
type AuthHandler struct {
	authService service.IAuthService
	cookie      CookieConfig
	frontendURL string
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService service.IAuthService, cookie CookieConfig, frontendURL string) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		cookie:      cookie,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// RegisterRoutes registers the auth routes
func (h *AuthHandler) RegisterRoutes(router *gin.RouterGroup) {
	auth := router.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.GET("/google/login", h.GoogleLogin)
		auth.GET("/google/callback", h.GoogleCallback)

		authenticated := auth.Group("")
		authenticated.Use(middleware.AuthMiddleware(h.authService, h.cookie.Name))
		authenticated.POST("/logout", h.Logout)
		authenticated.GET("/me", h.Me)
		authenticated.PATCH("/me", h.UpdateMe)
	}
}

// Register creates a local account and starts a session
func (h *AuthHandler) Register(c *gin.Context) {
	var req types.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	h.startSession(c, user, http.StatusCreated)
}

// Login starts a session for a local account
func (h *AuthHandler) Login(c *gin.Context) {
	var req types.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	h.startSession(c, user, http.StatusOK)
}

func (h *AuthHandler) startSession(c *gin.Context, user *models.User, status int) {
	token, expiresAt, err := h.authService.IssueToken(user)
	if err != nil {
		fail(c, err)
		return
	}
	h.setCookie(c, token, int(h.authService.SessionTTL().Seconds()))
	c.JSON(status, types.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      service.UserResponse(user),
	})
}

func (h *AuthHandler) setCookie(c *gin.Context, value string, maxAge int) {
	if h.cookie.Name == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, value, maxAge, "/", "", h.cookie.Secure, true)
}

// GoogleLogin redirects to Google's consent screen
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	consentURL, err := h.authService.BeginOAuth(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, consentURL)
}

// GoogleCallback completes the OAuth flow. Browsers are sent back to the
// frontend with the session cookie set; without a frontend the session is
// returned as JSON.
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "google sign-in was cancelled: " + errParam})
		return
	}
	user, err := h.authService.CompleteOAuth(c.Request.Context(), c.Query("state"), c.Query("code"))
	if err != nil {
		logger.FromGin(c).Info("OAuth callback rejected", zap.Error(err))
		fail(c, err)
		return
	}
	if h.frontendURL == "" {
		h.startSession(c, user, http.StatusOK)
		return
	}

	token, _, err := h.authService.IssueToken(user)
	if err != nil {
		fail(c, err)
		return
	}
	h.setCookie(c, token, int(h.authService.SessionTTL().Seconds()))
	c.Redirect(http.StatusFound, h.frontendURL+"/auth/callback")
}

// Logout revokes the current session
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}
	if err := h.authService.Logout(c.Request.Context(), claims); err != nil {
		fail(c, err)
		return
	}
	h.setCookie(c, "", -1)
	c.Status(http.StatusNoContent)
}

// Me returns the caller's account
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	user, err := h.authService.Me(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, service.UserResponse(user))
}

// UpdateMe updates the caller's profile
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req types.UpdateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.authService.UpdateMe(c.Request.Context(), userID, &req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, service.UserResponse(user))
}
