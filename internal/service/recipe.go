package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pageza/reelkitchen/backend/internal/models"
	"github.com/pageza/reelkitchen/backend/internal/types"
)

// Recipe list sort orders
const (
	SortNewest     = "newest"
	SortOldest     = "oldest"
	SortTitle      = "title"
	SortMostCooked = "most_cooked"
)

// RecipeService handles recipe operations. Every method is scoped to the
// owning user; other users' recipes are reported as not found.
type RecipeService struct {
	db           *gorm.DB
	gamification *GamificationService
	now          func() time.Time
	logger       *zap.Logger
}

// NewRecipeService creates a new RecipeService instance
func NewRecipeService(db *gorm.DB, gamification *GamificationService, log *zap.Logger) *RecipeService {
	return &RecipeService{
		db:           db,
		gamification: gamification,
		now:          time.Now,
		logger:       log.Named("recipes"),
	}
}

// withStats selects recipes together with the caller's favorite flag and cook count
func (s *RecipeService) withStats(ctx context.Context, userID uuid.UUID) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&models.Recipe{}).
		Select("recipes.*, (rf.id IS NOT NULL) AS is_favorite, "+
			"(SELECT COUNT(*) FROM recipe_cooks rc WHERE rc.recipe_id = recipes.id AND rc.user_id = ?) AS times_cooked", userID).
		Joins("LEFT JOIN recipe_favorites rf ON rf.recipe_id = recipes.id AND rf.user_id = ?", userID).
		Where("recipes.user_id = ?", userID)
}

// Create stores a manually entered recipe and awards recipe_saved points
func (s *RecipeService) Create(ctx context.Context, userID uuid.UUID, req *types.CreateRecipeRequest) (*models.Recipe, *AwardResult, error) {
	recipe := &models.Recipe{
		UserID:          userID,
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		SourceURL:       req.SourceURL,
		ImageURL:        req.ImageURL,
		Cuisine:         titleCase(req.Cuisine),
		Category:        titleCase(req.Category),
		Difficulty:      req.Difficulty,
		Ingredients:     ingredientsFromInput(req.Ingredients),
		Instructions:    cleanStrings(req.Instructions),
		Tags:            cleanStrings(req.Tags),
		PrepTimeMinutes: req.PrepTimeMinutes,
		CookTimeMinutes: req.CookTimeMinutes,
		Servings:        req.Servings,
		Calories:        req.Calories,
		Protein:         req.Protein,
		Carbs:           req.Carbs,
		Fat:             req.Fat,
	}
	if recipe.Title == "" || len(recipe.Ingredients) == 0 {
		return nil, nil, fmt.Errorf("%w: a recipe needs a title and ingredients", types.ErrInvalidInput)
	}
	if req.SourceURL != "" {
		if platform, err := DetectPlatform(req.SourceURL); err == nil {
			recipe.Platform = platform
		}
	}

	award, err := s.save(ctx, recipe)
	if err != nil {
		return nil, nil, err
	}
	return recipe, award, nil
}

// save inserts a new recipe with its embedding and awards recipe_saved atomically
func (s *RecipeService) save(ctx context.Context, recipe *models.Recipe) (*AwardResult, error) {
	var award *AwardResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		award, err = s.SaveTx(tx, recipe)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.gamification.Observe(award)
	return award, nil
}

// SaveTx inserts a recipe inside the caller's transaction
func (s *RecipeService) SaveTx(tx *gorm.DB, recipe *models.Recipe) (*AwardResult, error) {
	embedding := GenerateEmbedding(recipe)
	recipe.Embedding = &embedding
	if err := tx.Create(recipe).Error; err != nil {
		return nil, fmt.Errorf("failed to create recipe: %w", err)
	}
	return s.gamification.AwardTx(tx, recipe.UserID, models.ActionRecipeSaved, AwardRef{RecipeID: &recipe.ID})
}

// Get returns a single recipe with favorite and cook information
func (s *RecipeService) Get(ctx context.Context, userID, id uuid.UUID) (*models.Recipe, error) {
	var recipe models.Recipe
	err := s.withStats(ctx, userID).Where("recipes.id = ?", id).Take(&recipe).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("recipe %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load recipe: %w", err)
	}
	return &recipe, nil
}

func (s *RecipeService) owned(ctx context.Context, userID, id uuid.UUID) (*models.Recipe, error) {
	var recipe models.Recipe
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Take(&recipe).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("recipe %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load recipe: %w", err)
	}
	return &recipe, nil
}

// Update applies a partial update and recomputes the embedding
func (s *RecipeService) Update(ctx context.Context, userID, id uuid.UUID, req *types.UpdateRecipeRequest) (*models.Recipe, error) {
	recipe, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		recipe.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		recipe.Description = *req.Description
	}
	if req.ImageURL != nil {
		recipe.ImageURL = *req.ImageURL
	}
	if req.Cuisine != nil {
		recipe.Cuisine = titleCase(*req.Cuisine)
	}
	if req.Category != nil {
		recipe.Category = titleCase(*req.Category)
	}
	if req.Difficulty != nil {
		recipe.Difficulty = *req.Difficulty
	}
	if req.Ingredients != nil {
		recipe.Ingredients = ingredientsFromInput(*req.Ingredients)
	}
	if req.Instructions != nil {
		recipe.Instructions = cleanStrings(*req.Instructions)
	}
	if req.Tags != nil {
		recipe.Tags = cleanStrings(*req.Tags)
	}
	if req.PrepTimeMinutes != nil {
		recipe.PrepTimeMinutes = *req.PrepTimeMinutes
	}
	if req.CookTimeMinutes != nil {
		recipe.CookTimeMinutes = *req.CookTimeMinutes
	}
	if req.Servings != nil {
		recipe.Servings = *req.Servings
	}
	if req.Calories != nil {
		recipe.Calories = *req.Calories
	}
	if req.Protein != nil {
		recipe.Protein = *req.Protein
	}
	if req.Carbs != nil {
		recipe.Carbs = *req.Carbs
	}
	if req.Fat != nil {
		recipe.Fat = *req.Fat
	}
	if recipe.Title == "" || len(recipe.Ingredients) == 0 {
		return nil, fmt.Errorf("%w: a recipe needs a title and ingredients", types.ErrInvalidInput)
	}

	embedding := GenerateEmbedding(recipe)
	recipe.Embedding = &embedding
	if err := s.db.WithContext(ctx).Save(recipe).Error; err != nil {
		return nil, fmt.Errorf("failed to update recipe: %w", err)
	}
	return s.Get(ctx, userID, id)
}

// Delete soft-deletes a recipe
func (s *RecipeService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Recipe{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete recipe: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("recipe %s: %w", id, types.ErrNotFound)
	}
	return nil
}

func (s *RecipeService) applyFilter(q *gorm.DB, f *types.RecipeFilter) *gorm.DB {
	if query := strings.ToLower(strings.TrimSpace(f.Query)); query != "" {
		like := "%" + query + "%"
		q = q.Where("(LOWER(recipes.title) LIKE ? OR LOWER(recipes.description) LIKE ? OR LOWER(CAST(recipes.ingredients AS TEXT)) LIKE ?)", like, like, like)
	}
	if f.Category != "" {
		q = q.Where("LOWER(recipes.category) = ?", strings.ToLower(f.Category))
	}
	if f.Cuisine != "" {
		q = q.Where("LOWER(recipes.cuisine) = ?", strings.ToLower(f.Cuisine))
	}
	if f.Platform != "" {
		q = q.Where("recipes.platform = ?", strings.ToLower(f.Platform))
	}
	if f.Favorites {
		q = q.Where("rf.id IS NOT NULL")
	}
	return q
}

// List returns the user's recipes matching filter plus the total match count
func (s *RecipeService) List(ctx context.Context, userID uuid.UUID, f types.RecipeFilter) ([]models.Recipe, int64, error) {
	var total int64
	countQ := s.db.WithContext(ctx).
		Model(&models.Recipe{}).
		Joins("LEFT JOIN recipe_favorites rf ON rf.recipe_id = recipes.id AND rf.user_id = ?", userID).
		Where("recipes.user_id = ?", userID)
	if err := s.applyFilter(countQ, &f).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count recipes: %w", err)
	}

	q := s.applyFilter(s.withStats(ctx, userID), &f)
	switch f.Sort {
	case SortOldest:
		q = q.Order("recipes.created_at ASC")
	case SortTitle:
		q = q.Order("LOWER(recipes.title) ASC")
	case SortMostCooked:
		q = q.Order("times_cooked DESC").Order("recipes.created_at DESC")
	default:
		q = q.Order("recipes.created_at DESC")
	}

	var recipes []models.Recipe
	if err := q.Limit(clampLimit(f.Limit, 50, 100)).Offset(max(f.Offset, 0)).Find(&recipes).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list recipes: %w", err)
	}
	return recipes, total, nil
}

// Favorite marks a recipe as a favorite; repeated calls are no-ops
func (s *RecipeService) Favorite(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	fav := models.RecipeFavorite{UserID: userID, RecipeID: id}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&fav).Error; err != nil {
		return fmt.Errorf("failed to favorite recipe: %w", err)
	}
	return nil
}

// Unfavorite removes a favorite; removing a missing favorite is a no-op
func (s *RecipeService) Unfavorite(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND recipe_id = ?", userID, id).
		Delete(&models.RecipeFavorite{}).Error
	if err != nil {
		return fmt.Errorf("failed to unfavorite recipe: %w", err)
	}
	return nil
}

// MarkCooked logs a cook of the recipe and awards recipe_cooked points
func (s *RecipeService) MarkCooked(ctx context.Context, userID, id uuid.UUID, req *types.CookRecipeRequest) (*models.RecipeCook, *AwardResult, error) {
	if req.Rating < 0 || req.Rating > 5 {
		return nil, nil, fmt.Errorf("%w: rating must be between 0 and 5", types.ErrInvalidInput)
	}
	if _, err := s.owned(ctx, userID, id); err != nil {
		return nil, nil, err
	}

	cook := &models.RecipeCook{
		RecipeID: id,
		UserID:   userID,
		CookedAt: s.now().UTC(),
		Rating:   req.Rating,
		Notes:    strings.TrimSpace(req.Notes),
	}
	var award *AwardResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(cook).Error; err != nil {
			return fmt.Errorf("failed to log cook: %w", err)
		}
		var err error
		award, err = s.gamification.AwardTx(tx, userID, models.ActionRecipeCooked, AwardRef{RecipeID: &id})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	s.gamification.Observe(award)
	return cook, award, nil
}

// Similar returns the user's recipes closest to the given one. Postgres
// ranks by pgvector L2 distance; other dialects rank by cosine similarity in process.
func (s *RecipeService) Similar(ctx context.Context, userID, id uuid.UUID, limit int) ([]models.Recipe, error) {
	source, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit, 5, 20)
	if source.Embedding == nil {
		embedding := GenerateEmbedding(source)
		source.Embedding = &embedding
	}

	var recipes []models.Recipe
	if s.db.Dialector.Name() == "postgres" {
		err := s.withStats(ctx, userID).
			Where("recipes.id <> ? AND recipes.embedding IS NOT NULL", id).
			Clauses(clause.OrderBy{Expression: clause.Expr{SQL: "recipes.embedding <-> ?", Vars: []any{*source.Embedding}}}).
			Limit(limit).
			Find(&recipes).Error
		if err != nil {
			return nil, fmt.Errorf("failed to find similar recipes: %w", err)
		}
		return recipes, nil
	}

	if err := s.withStats(ctx, userID).Where("recipes.id <> ?", id).Find(&recipes).Error; err != nil {
		return nil, fmt.Errorf("failed to find similar recipes: %w", err)
	}
	target := source.Embedding.Slice()
	scores := make(map[uuid.UUID]float64, len(recipes))
	for i := range recipes {
		vec := recipes[i].Embedding
		if vec == nil {
			e := GenerateEmbedding(&recipes[i])
			vec = &e
		}
		scores[recipes[i].ID] = CosineSimilarity(target, vec.Slice())
	}
	sort.SliceStable(recipes, func(i, j int) bool {
		return scores[recipes[i].ID] > scores[recipes[j].ID]
	})
	if len(recipes) > limit {
		recipes = recipes[:limit]
	}
	return recipes, nil
}

func ingredientsFromInput(in []types.IngredientInput) models.Ingredients {
	out := make(models.Ingredients, 0, len(in))
	for _, i := range in {
		name := strings.TrimSpace(i.Name)
		if name == "" {
			continue
		}
		out = append(out, models.Ingredient{Name: name, Quantity: strings.TrimSpace(i.Quantity), Unit: strings.TrimSpace(i.Unit)})
	}
	return out
}

func cleanStrings(in []string) models.JSONBStringArray {
	out := models.JSONBStringArray{}
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
