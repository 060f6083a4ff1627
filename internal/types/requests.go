package types

// RegisterRequest is the body for local account registration
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8,max=72"`
	DisplayName string `json:"display_name" binding:"required,max=80"`
}

// LoginRequest is the body for local account login
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UpdateMeRequest updates the caller's public profile
type UpdateMeRequest struct {
	DisplayName *string `json:"display_name" binding:"omitempty,min=1,max=80"`
	AvatarURL   *string `json:"avatar_url" binding:"omitempty,url"`
}

// CreateSubmissionRequest submits a social-media video for extraction
type CreateSubmissionRequest struct {
	VideoURL string `json:"video_url" binding:"required,videourl"`
}

// IngredientInput is a single ingredient line in recipe requests
type IngredientInput struct {
	Name     string `json:"name" binding:"required"`
	Quantity string `json:"quantity"`
	Unit     string `json:"unit"`
}

// CreateRecipeRequest represents the request body for manually creating a recipe
type CreateRecipeRequest struct {
	Title           string            `json:"title" binding:"required,max=255"`
	Description     string            `json:"description"`
	SourceURL       string            `json:"source_url" binding:"omitempty,url"`
	ImageURL        string            `json:"image_url" binding:"omitempty,url"`
	Cuisine         string            `json:"cuisine"`
	Category        string            `json:"category"`
	Difficulty      string            `json:"difficulty" binding:"omitempty,oneof=easy medium hard"`
	Ingredients     []IngredientInput `json:"ingredients" binding:"required,min=1,dive"`
	Instructions    []string          `json:"instructions"`
	Tags            []string          `json:"tags"`
	PrepTimeMinutes int               `json:"prep_time_minutes" binding:"gte=0"`
	CookTimeMinutes int               `json:"cook_time_minutes" binding:"gte=0"`
	Servings        int               `json:"servings" binding:"gte=0"`
	Calories        float64           `json:"calories" binding:"gte=0"`
	Protein         float64           `json:"protein" binding:"gte=0"`
	Carbs           float64           `json:"carbs" binding:"gte=0"`
	Fat             float64           `json:"fat" binding:"gte=0"`
}

// UpdateRecipeRequest represents a partial recipe update; nil fields are left untouched
type UpdateRecipeRequest struct {
	Title           *string            `json:"title" binding:"omitempty,min=1,max=255"`
	Description     *string            `json:"description"`
	ImageURL        *string            `json:"image_url" binding:"omitempty,url"`
	Cuisine         *string            `json:"cuisine"`
	Category        *string            `json:"category"`
	Difficulty      *string            `json:"difficulty" binding:"omitempty,oneof=easy medium hard"`
	Ingredients     *[]IngredientInput `json:"ingredients" binding:"omitempty,min=1,dive"`
	Instructions    *[]string          `json:"instructions"`
	Tags            *[]string          `json:"tags"`
	PrepTimeMinutes *int               `json:"prep_time_minutes" binding:"omitempty,gte=0"`
	CookTimeMinutes *int               `json:"cook_time_minutes" binding:"omitempty,gte=0"`
	Servings        *int               `json:"servings" binding:"omitempty,gte=0"`
	Calories        *float64           `json:"calories" binding:"omitempty,gte=0"`
	Protein         *float64           `json:"protein" binding:"omitempty,gte=0"`
	Carbs           *float64           `json:"carbs" binding:"omitempty,gte=0"`
	Fat             *float64           `json:"fat" binding:"omitempty,gte=0"`
}

// CookRecipeRequest logs that the caller cooked a recipe
type CookRecipeRequest struct {
	Rating int    `json:"rating" binding:"gte=0,lte=5"`
	Notes  string `json:"notes" binding:"max=1000"`
}

// RecipeFilter narrows recipe listings
type RecipeFilter struct {
	Query     string
	Category  string
	Cuisine   string
	Platform  string
	Favorites bool
	Sort      string
	Limit     int
	Offset    int
}

// RouletteFilter narrows the pool a roulette spin draws from
type RouletteFilter struct {
	Category        string `json:"category"`
	Cuisine         string `json:"cuisine"`
	MaxTotalMinutes int    `json:"max_total_minutes" binding:"gte=0"`
	FavoritesOnly   bool   `json:"favorites_only"`
}
