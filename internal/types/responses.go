package types

import (
	"time"

	"github.com/google/uuid"
)

// AuthResponse is returned on successful login, registration or OAuth callback
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// UserResponse is the public view of a user
type UserResponse struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Provider    string    `json:"provider"`
	CreatedAt   time.Time `json:"created_at"`
}

// AwardResponse summarises a gamification award for API consumers
type AwardResponse struct {
	Action              string   `json:"action"`
	PointsAwarded       int      `json:"points_awarded"`
	TotalPoints         int      `json:"total_points"`
	Level               int      `json:"level"`
	LeveledUp           bool     `json:"leveled_up"`
	CurrentStreak       int      `json:"current_streak"`
	CompletedChallenges []string `json:"completed_challenges,omitempty"`
}

// DashboardStats represents dashboard statistics
type DashboardStats struct {
	RecipesSaved       int64 `json:"recipesSaved"`
	Favorites          int64 `json:"favorites"`
	CookedThisWeek     int64 `json:"cookedThisWeek"`
	PendingSubmissions int64 `json:"pendingSubmissions"`
	Points             int   `json:"points"`
	Level              int   `json:"level"`
	CurrentStreak      int   `json:"currentStreak"`
}

// LeaderboardEntry is a single row of the points leaderboard
type LeaderboardEntry struct {
	Rank          int       `json:"rank"`
	UserID        uuid.UUID `json:"user_id"`
	DisplayName   string    `json:"display_name"`
	Points        int       `json:"points"`
	Level         int       `json:"level"`
	CurrentStreak int       `json:"current_streak"`
}
