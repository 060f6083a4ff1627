package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pageza/reelkitchen/backend/config"
	"github.com/pageza/reelkitchen/backend/internal/api"
	"github.com/pageza/reelkitchen/backend/internal/database"
	"github.com/pageza/reelkitchen/backend/internal/logger"
	"github.com/pageza/reelkitchen/backend/internal/metrics"
	"github.com/pageza/reelkitchen/backend/internal/middleware"
)

const serviceName = "reelkitchen-api"

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	http   *http.Server
	db     *gorm.DB
	logger *zap.Logger
}

// New creates a server with all middleware and routes registered
func New(cfg *config.Config, db *gorm.DB, deps api.Dependencies, m *metrics.Metrics, log *zap.Logger) *Server {
	if cfg.Env.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		logger.Recovery(log),
		otelgin.Middleware(serviceName),
		logger.GinMiddleware(log),
		m.GinMiddleware(),
		middleware.CORS(cfg.CORSAllowedOrigins),
	)

	s := &Server{
		router: router,
		db:     db,
		logger: log,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.ServerHost, cfg.ServerPort),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      90 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}

	router.GET("/api/health", s.readiness)
	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}
	api.RegisterRoutes(router, deps)

	return s
}

// Router exposes the gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

// readiness reports whether the database is reachable
func (s *Server) readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := database.HealthCheck(ctx, s.db); err != nil {
		logger.FromGin(c).Warn("Database health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "unreachable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "ok",
	})
}

// Start serves HTTP until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
