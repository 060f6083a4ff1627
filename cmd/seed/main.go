package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pageza/reelkitchen/backend/config"
	"github.com/pageza/reelkitchen/backend/internal/database"
	"github.com/pageza/reelkitchen/backend/internal/logger"
	"github.com/pageza/reelkitchen/backend/internal/seed"
	"github.com/pageza/reelkitchen/backend/internal/service"
)

var challengesFile string

func main() {
	root := &cobra.Command{
		Use:           "seed",
		Short:         "Load reference and demo data into the ReelKitchen database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	challengesCmd := &cobra.Command{
		Use:   "challenges",
		Short: "Upsert the challenge catalogue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd.Context(), func(_ *config.Config, db *gorm.DB, log *zap.Logger) error {
				data := seed.DefaultChallenges()
				if challengesFile != "" {
					raw, err := os.ReadFile(challengesFile)
					if err != nil {
						return err
					}
					data = raw
				}
				n, err := seed.Challenges(cmd.Context(), service.NewGamificationService(db, nil, log), data)
				if err != nil {
					return err
				}
				log.Info("Challenges seeded", zap.Int("count", n))
				return nil
			})
		},
	}
	challengesCmd.Flags().StringVarP(&challengesFile, "file", "f", "", "YAML catalogue to load instead of the built-in one")

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Create demo users with a few saved recipes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDB(cmd.Context(), func(cfg *config.Config, db *gorm.DB, log *zap.Logger) error {
				auth := service.NewAuthService(db, service.AuthOptions{JWTSecret: cfg.JWTSecret}, log)
				gam := service.NewGamificationService(db, nil, log)

				users, err := seed.Users(cmd.Context(), auth, log)
				if err != nil {
					return err
				}
				n, err := seed.Recipes(cmd.Context(), service.NewRecipeService(db, gam, log), users)
				if err != nil {
					return err
				}
				log.Info("Demo data seeded",
					zap.Int("users", len(users)),
					zap.Int("recipes", n),
					zap.String("password", seed.DemoPassword),
				)
				return nil
			})
		},
	}

	root.AddCommand(challengesCmd, demoCmd)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func withDB(ctx context.Context, fn func(*config.Config, *gorm.DB, *zap.Logger) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	defer func() { _ = log.Sync() }()

	db, err := database.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()
	return fn(cfg, db, log)
}
