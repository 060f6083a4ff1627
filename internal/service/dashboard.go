package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pageza/reelkitchen/backend/internal/models"
	"github.com/pageza/reelkitchen/backend/internal/types"
)

// DashboardService aggregates per-user summary numbers
type DashboardService struct {
	db           *gorm.DB
	gamification *GamificationService
	now          func() time.Time
}

// NewDashboardService creates a new DashboardService
func NewDashboardService(db *gorm.DB, gamification *GamificationService) *DashboardService {
	return &DashboardService{db: db, gamification: gamification, now: time.Now}
}

// Stats returns the dashboard counters. "This week" is the last seven days.
func (s *DashboardService) Stats(ctx context.Context, userID uuid.UUID) (*types.DashboardStats, error) {
	db := s.db.WithContext(ctx)
	stats := &types.DashboardStats{}

	if err := db.Model(&models.Recipe{}).Where("user_id = ?", userID).Count(&stats.RecipesSaved).Error; err != nil {
		return nil, fmt.Errorf("failed to count recipes: %w", err)
	}
	err := db.Model(&models.RecipeFavorite{}).
		Joins("JOIN recipes ON recipes.id = recipe_favorites.recipe_id AND recipes.deleted_at IS NULL").
		Where("recipe_favorites.user_id = ?", userID).
		Count(&stats.Favorites).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count favorites: %w", err)
	}
	weekAgo := s.now().UTC().Add(-7 * 24 * time.Hour)
	if err := db.Model(&models.RecipeCook{}).Where("user_id = ? AND cooked_at >= ?", userID, weekAgo).Count(&stats.CookedThisWeek).Error; err != nil {
		return nil, fmt.Errorf("failed to count cooks: %w", err)
	}
	err = db.Model(&models.Submission{}).
		Where("user_id = ? AND status IN ?", userID, []models.SubmissionStatus{models.SubmissionPending, models.SubmissionProcessing}).
		Count(&stats.PendingSubmissions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count submissions: %w", err)
	}

	userStats, err := s.gamification.Stats(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats.Points = userStats.Points
	stats.Level = userStats.Level
	stats.CurrentStreak = userStats.CurrentStreak
	return stats, nil
}

// RecentFavorites returns the user's most recently favorited recipes
func (s *DashboardService) RecentFavorites(ctx context.Context, userID uuid.UUID, limit int) ([]models.Recipe, error) {
	var recipes []models.Recipe
	err := s.db.WithContext(ctx).
		Model(&models.Recipe{}).
		Select("recipes.*, TRUE AS is_favorite").
		Joins("JOIN recipe_favorites rf ON rf.recipe_id = recipes.id AND rf.user_id = ?", userID).
		Order("rf.created_at DESC").
		Limit(clampLimit(limit, 5, 20)).
		Find(&recipes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent favorites: %w", err)
	}
	return recipes, nil
}
