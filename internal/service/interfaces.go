package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pageza/reelkitchen/backend/internal/models"
	"github.com/pageza/reelkitchen/backend/internal/types"
)

// IAuthService defines the interface for account and session operations
type IAuthService interface {
	Register(ctx context.Context, req *types.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, req *types.LoginRequest) (*models.User, error)
	IssueToken(user *models.User) (string, time.Time, error)
	ValidateToken(ctx context.Context, token string) (*types.TokenClaims, error)
	Logout(ctx context.Context, claims *types.TokenClaims) error
	Me(ctx context.Context, userID uuid.UUID) (*models.User, error)
	UpdateMe(ctx context.Context, userID uuid.UUID, req *types.UpdateMeRequest) (*models.User, error)
	BeginOAuth(ctx context.Context) (string, error)
	CompleteOAuth(ctx context.Context, state, code string) (*models.User, error)
	SessionTTL() time.Duration
}

// ISubmissionService defines the interface for video submission operations
type ISubmissionService interface {
	Create(ctx context.Context, userID uuid.UUID, videoURL string) (*SubmissionResult, error)
	Get(ctx context.Context, userID, id uuid.UUID, refresh bool) (*models.Submission, error)
	Retry(ctx context.Context, userID, id uuid.UUID) (*models.Submission, error)
	List(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]models.Submission, int64, error)
	ApplyCallback(ctx context.Context, res *ExtractionResult) (*models.Submission, error)
}

// IRecipeService defines the interface for recipe operations
type IRecipeService interface {
	Create(ctx context.Context, userID uuid.UUID, req *types.CreateRecipeRequest) (*models.Recipe, *AwardResult, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*models.Recipe, error)
	Update(ctx context.Context, userID, id uuid.UUID, req *types.UpdateRecipeRequest) (*models.Recipe, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID, filter types.RecipeFilter) ([]models.Recipe, int64, error)
	Favorite(ctx context.Context, userID, id uuid.UUID) error
	Unfavorite(ctx context.Context, userID, id uuid.UUID) error
	MarkCooked(ctx context.Context, userID, id uuid.UUID, req *types.CookRecipeRequest) (*models.RecipeCook, *AwardResult, error)
	Similar(ctx context.Context, userID, id uuid.UUID, limit int) ([]models.Recipe, error)
}

// IGamificationService defines the interface for points, streaks and challenges
type IGamificationService interface {
	Stats(ctx context.Context, userID uuid.UUID) (*models.UserStats, error)
	Ledger(ctx context.Context, userID uuid.UUID, limit int) ([]models.PointEvent, error)
	Challenges(ctx context.Context, userID uuid.UUID) ([]ChallengeStatus, error)
	Leaderboard(ctx context.Context, limit int) ([]types.LeaderboardEntry, error)
}

// IRouletteService defines the interface for roulette operations
type IRouletteService interface {
	Spin(ctx context.Context, userID uuid.UUID, filter types.RouletteFilter) (*SpinResult, error)
	History(ctx context.Context, userID uuid.UUID, limit int) ([]models.RouletteSpin, error)
}

// IDashboardService defines the interface for dashboard summaries
type IDashboardService interface {
	Stats(ctx context.Context, userID uuid.UUID) (*types.DashboardStats, error)
	RecentFavorites(ctx context.Context, userID uuid.UUID, limit int) ([]models.Recipe, error)
}

var (
	_ IAuthService         = (*AuthService)(nil)
	_ ISubmissionService   = (*SubmissionService)(nil)
	_ IRecipeService       = (*RecipeService)(nil)
	_ IGamificationService = (*GamificationService)(nil)
	_ IRouletteService     = (*RouletteService)(nil)
	_ IDashboardService    = (*DashboardService)(nil)
	_ ExtractionClient     = (*HTTPExtractionClient)(nil)
	_ Mirrorer             = (*ThumbnailMirror)(nil)
)
