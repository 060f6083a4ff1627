package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Gamified actions. Point values live in the gamification service.
const (
	ActionSubmitVideo        = "submit_video"
	ActionRecipeSaved        = "recipe_saved"
	ActionRecipeCooked       = "recipe_cooked"
	ActionRouletteSpin       = "roulette_spin"
	ActionChallengeCompleted = "challenge_completed"
	ActionStreakBonus        = "streak_bonus"
)

// Challenge periods
const (
	PeriodOnce   = "once"
	PeriodDaily  = "daily"
	PeriodWeekly = "weekly"
)

// UserStats is the per-user gamification aggregate
type UserStats struct {
	UserID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"user_id"`
	Points        int        `gorm:"not null;default:0" json:"points"`
	Level         int        `gorm:"not null;default:1" json:"level"`
	CurrentStreak int        `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak int        `gorm:"not null;default:0" json:"longest_streak"`
	LastActiveOn  *time.Time `json:"last_active_on,omitempty"`
	RecipesSaved  int        `gorm:"not null;default:0" json:"recipes_saved"`
	RecipesCooked int        `gorm:"not null;default:0" json:"recipes_cooked"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (UserStats) TableName() string {
	return "user_stats"
}

// PointEvent is an append-only ledger entry
type PointEvent struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Action      string     `gorm:"size:40;not null" json:"action"`
	Points      int        `gorm:"not null" json:"points"`
	RecipeID    *uuid.UUID `gorm:"type:uuid" json:"recipe_id,omitempty"`
	ChallengeID *uuid.UUID `gorm:"type:uuid" json:"challenge_id,omitempty"`
}

func (e *PointEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

type Challenge struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Code         string     `gorm:"size:64;uniqueIndex;not null" json:"code"`
	Title        string     `gorm:"size:255;not null" json:"title"`
	Description  string     `gorm:"type:text" json:"description"`
	Action       string     `gorm:"size:40;not null;index" json:"action"`
	Target       int        `gorm:"not null" json:"target"`
	RewardPoints int        `gorm:"not null" json:"reward_points"`
	Period       string     `gorm:"size:10;not null" json:"period"`
	StartsAt     *time.Time `json:"starts_at,omitempty"`
	EndsAt       *time.Time `json:"ends_at,omitempty"`
	Active       bool       `gorm:"not null" json:"active"`
}

func (c *Challenge) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ActiveAt reports whether the challenge can be progressed at t
func (c *Challenge) ActiveAt(t time.Time) bool {
	if !c.Active {
		return false
	}
	if c.StartsAt != nil && t.Before(*c.StartsAt) {
		return false
	}
	if c.EndsAt != nil && !t.Before(*c.EndsAt) {
		return false
	}
	return true
}

type ChallengeProgress struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_progress_user_challenge_period" json:"user_id"`
	ChallengeID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_progress_user_challenge_period" json:"challenge_id"`
	PeriodKey   string     `gorm:"size:16;not null;uniqueIndex:idx_progress_user_challenge_period" json:"period_key"`
	Progress    int        `gorm:"not null;default:0" json:"progress"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (ChallengeProgress) TableName() string {
	return "challenge_progress"
}

func (p *ChallengeProgress) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

type RouletteSpin struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	RecipeID  uuid.UUID `gorm:"type:uuid;not null" json:"recipe_id"`
	Filters   string    `gorm:"type:text" json:"filters"`
	PoolSize  int       `json:"pool_size"`
}

func (s *RouletteSpin) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
