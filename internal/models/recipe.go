package models

import (
	"time"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// EmbeddingDimensions is the width of the recipe embedding column
const EmbeddingDimensions = 64

type Recipe struct {
	ID               uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	DeletedAt        gorm.DeletedAt   `gorm:"index" json:"-"`
	UserID           uuid.UUID        `gorm:"type:uuid;not null;index" json:"user_id"`
	SubmissionID     *uuid.UUID       `gorm:"type:uuid;index" json:"submission_id,omitempty"`
	Title            string           `gorm:"size:255;not null" json:"title"`
	Description      string           `gorm:"type:text" json:"description"`
	SourceURL        string           `gorm:"size:1024" json:"source_url,omitempty"`
	Platform         string           `gorm:"size:20" json:"platform,omitempty"`
	CreatorHandle    string           `gorm:"size:255" json:"creator_handle,omitempty"`
	ThumbnailURL     string           `gorm:"size:1024" json:"thumbnail_url,omitempty"`
	ImageURL         string           `gorm:"size:1024" json:"image_url,omitempty"`
	Ingredients      Ingredients      `gorm:"type:jsonb;not null" json:"ingredients"`
	Instructions     JSONBStringArray `gorm:"type:jsonb;not null" json:"instructions"`
	Tags             JSONBStringArray `gorm:"type:jsonb;not null" json:"tags"`
	Cuisine          string           `gorm:"size:50" json:"cuisine"`
	Category         string           `gorm:"size:50" json:"category"`
	Difficulty       string           `gorm:"size:20" json:"difficulty,omitempty"`
	PrepTimeMinutes  int              `json:"prep_time_minutes"`
	CookTimeMinutes  int              `json:"cook_time_minutes"`
	Servings         int              `json:"servings"`
	Calories         float64          `gorm:"type:float" json:"calories"`
	Protein          float64          `gorm:"type:float" json:"protein"`
	Carbs            float64          `gorm:"type:float" json:"carbs"`
	Fat              float64          `gorm:"type:float" json:"fat"`
	ExternalRecipeID string           `gorm:"size:255" json:"external_recipe_id,omitempty"`
	Embedding        *pgvector.Vector `gorm:"type:vector(64)" json:"-"`

	// Filled by listing queries only.
	IsFavorite  bool  `gorm:"->;-:migration" json:"is_favorite"`
	TimesCooked int64 `gorm:"->;-:migration" json:"times_cooked"`
}

func (r *Recipe) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// TotalTimeMinutes is prep plus cook time
func (r *Recipe) TotalTimeMinutes() int {
	return r.PrepTimeMinutes + r.CookTimeMinutes
}

type RecipeFavorite struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	RecipeID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_favorite_user_recipe" json:"recipe_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_favorite_user_recipe" json:"user_id"`
}

func (RecipeFavorite) TableName() string {
	return "recipe_favorites"
}

func (f *RecipeFavorite) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// RecipeCook is one entry in a user's cook log
type RecipeCook struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RecipeID uuid.UUID `gorm:"type:uuid;not null;index" json:"recipe_id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	CookedAt time.Time `gorm:"not null" json:"cooked_at"`
	Rating   int       `json:"rating,omitempty"`
	Notes    string    `gorm:"type:text" json:"notes,omitempty"`
}

func (RecipeCook) TableName() string {
	return "recipe_cooks"
}

func (c *RecipeCook) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
