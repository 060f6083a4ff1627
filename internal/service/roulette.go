package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pageza/reelkitchen/backend/internal/metrics"
	"github.com/pageza/reelkitchen/backend/internal/models"
	"github.com/pageza/reelkitchen/backend/internal/types"
)

// rouletteRecentWindow is how many of the latest spins are kept out of the pool
const rouletteRecentWindow = 3

// SpinResult is the outcome of a roulette spin
type SpinResult struct {
	Recipe   *models.Recipe
	Spin     *models.RouletteSpin
	PoolSize int
	Award    *AwardResult
}

// RouletteService picks a random recipe from the user's collection
type RouletteService struct {
	db           *gorm.DB
	gamification *GamificationService
	metrics      *metrics.Metrics
	logger       *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRouletteService creates a new RouletteService
func NewRouletteService(db *gorm.DB, gamification *GamificationService, m *metrics.Metrics, log *zap.Logger) *RouletteService {
	return &RouletteService{
		db:           db,
		gamification: gamification,
		metrics:      m,
		logger:       log.Named("roulette"),
		rng:          rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// SetSource replaces the random source
func (s *RouletteService) SetSource(src rand.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng = rand.New(src)
}

func (s *RouletteService) pick(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// Spin picks a recipe matching filter, avoiding the most recent picks when possible
func (s *RouletteService) Spin(ctx context.Context, userID uuid.UUID, filter types.RouletteFilter) (*SpinResult, error) {
	candidates, err := s.candidates(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, types.ErrNoCandidates
	}

	recent, err := s.recentRecipeIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	pool := make([]models.Recipe, 0, len(candidates))
	for _, r := range candidates {
		if !recent[r.ID] {
			pool = append(pool, r)
		}
	}
	if len(pool) == 0 {
		pool = candidates
	}

	chosen := pool[s.pick(len(pool))]
	filters, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to encode filters: %w", err)
	}
	spin := &models.RouletteSpin{
		UserID:   userID,
		RecipeID: chosen.ID,
		Filters:  string(filters),
		PoolSize: len(pool),
	}

	var award *AwardResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(spin).Error; err != nil {
			return fmt.Errorf("failed to record spin: %w", err)
		}
		var err error
		award, err = s.gamification.AwardTx(tx, userID, models.ActionRouletteSpin, AwardRef{RecipeID: &chosen.ID})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.gamification.Observe(award)
	s.metrics.RouletteSpin()

	return &SpinResult{Recipe: &chosen, Spin: spin, PoolSize: len(pool), Award: award}, nil
}

func (s *RouletteService) candidates(ctx context.Context, userID uuid.UUID, filter types.RouletteFilter) ([]models.Recipe, error) {
	q := s.db.WithContext(ctx).
		Model(&models.Recipe{}).
		Select("recipes.*").
		Where("recipes.user_id = ?", userID)
	if filter.Category != "" {
		q = q.Where("LOWER(recipes.category) = ?", strings.ToLower(filter.Category))
	}
	if filter.Cuisine != "" {
		q = q.Where("LOWER(recipes.cuisine) = ?", strings.ToLower(filter.Cuisine))
	}
	if filter.MaxTotalMinutes > 0 {
		q = q.Where("recipes.prep_time_minutes + recipes.cook_time_minutes <= ?", filter.MaxTotalMinutes)
	}
	if filter.FavoritesOnly {
		q = q.Where("EXISTS (SELECT 1 FROM recipe_favorites rf WHERE rf.recipe_id = recipes.id AND rf.user_id = ?)", userID)
	}

	var recipes []models.Recipe
	if err := q.Order("recipes.created_at ASC").Find(&recipes).Error; err != nil {
		return nil, fmt.Errorf("failed to load roulette candidates: %w", err)
	}
	return recipes, nil
}

func (s *RouletteService) recentRecipeIDs(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]bool, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).
		Model(&models.RouletteSpin{}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(rouletteRecentWindow).
		Pluck("recipe_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent spins: %w", err)
	}
	recent := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		recent[id] = true
	}
	return recent, nil
}

// History returns the user's latest spins, newest first
func (s *RouletteService) History(ctx context.Context, userID uuid.UUID, limit int) ([]models.RouletteSpin, error) {
	var spins []models.RouletteSpin
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(clampLimit(limit, 20, 100)).
		Find(&spins).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load spin history: %w", err)
	}
	return spins, nil
}
