package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pageza/reelkitchen/backend/config"
	"github.com/pageza/reelkitchen/backend/internal/api"
	"github.com/pageza/reelkitchen/backend/internal/database"
	"github.com/pageza/reelkitchen/backend/internal/logger"
	"github.com/pageza/reelkitchen/backend/internal/metrics"
	"github.com/pageza/reelkitchen/backend/internal/middleware"
	"github.com/pageza/reelkitchen/backend/internal/server"
	"github.com/pageza/reelkitchen/backend/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Format: "json"})
		fallback.Fatal("Failed to load configuration", zap.Error(err))
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("Server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	if cfg.AutoMigrate {
		if err := database.RunMigrations(db, cfg.MigrationURL(), log); err != nil {
			return err
		}
	}

	// Redis is optional; without it sessions and OAuth state live in memory
	// and submissions are not rate limited.
	var redisClient *redis.Client
	if client, err := database.NewRedisClient(ctx, cfg, log); err != nil {
		log.Warn("Redis unavailable, continuing without it", zap.Error(err))
	} else {
		redisClient = client
		defer func() { _ = redisClient.Close() }()
	}

	m := metrics.New()

	authOpts := service.AuthOptions{
		JWTSecret:  cfg.JWTSecret,
		SessionTTL: cfg.SessionTTL,
	}
	if redisClient != nil {
		authOpts.Revoker = service.NewRedisTokenRevoker(redisClient)
		authOpts.States = service.NewRedisStateStore(redisClient)
	}
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		authOpts.OAuth = service.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	}

	var mirror service.Mirrorer
	if cfg.S3BucketName != "" {
		s3Config, err := config.NewS3Config(ctx, cfg)
		if err != nil {
			log.Warn("S3 unavailable, thumbnails will not be mirrored", zap.Error(err))
		} else {
			mirror = service.NewThumbnailMirror(s3Config, m, log)
		}
	}

	extraction := service.NewExtractionClient(service.ExtractionClientConfig{
		WebhookURL: cfg.ExtractionWebhookURL,
		StatusURL:  cfg.StatusURLFor(),
		RecipeURL:  cfg.RecipeURLFor(),
		APIKey:     cfg.ExtractionAPIKey,
		Timeout:    cfg.ExtractionTimeout,
	}, m, log)

	// Initialize services
	authService := service.NewAuthService(db, authOpts, log)
	gamificationService := service.NewGamificationService(db, m, log)
	recipeService := service.NewRecipeService(db, gamificationService, log)
	submissionService := service.NewSubmissionService(db, extraction, recipeService, gamificationService, mirror, m, log)
	rouletteService := service.NewRouletteService(db, gamificationService, m, log)
	dashboardService := service.NewDashboardService(db, gamificationService)

	srv := server.New(cfg, db, api.Dependencies{
		Auth:              authService,
		Submissions:       submissionService,
		Recipes:           recipeService,
		Gamification:      gamificationService,
		Roulette:          rouletteService,
		Dashboard:         dashboardService,
		SubmissionLimiter: middleware.NewSubmissionRateLimiter(redisClient, cfg.SubmissionRateLimit),
		WebhookSecret:     cfg.WebhookSigningSecret,
		Cookie: api.CookieConfig{
			Name:   cfg.SessionCookieName,
			Secure: cfg.CookieSecure,
		},
		FrontendURL: cfg.FrontendURL,
	}, m, log)

	poller := service.NewPoller(submissionService, cfg.PollInterval, cfg.PollMaxAge, m, log)
	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		poller.Run(ctx)
	}()

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	var serveErr error
	select {
	case serveErr = <-errChan:
		stop()
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, err)
	}
	<-pollerDone

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("Server stopped")
	return serveErr
}
