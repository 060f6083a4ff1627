package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubmissionStatus tracks a video through extraction
type SubmissionStatus string

const (
	SubmissionPending    SubmissionStatus = "pending"
	SubmissionProcessing SubmissionStatus = "processing"
	SubmissionCompleted  SubmissionStatus = "completed"
	SubmissionFailed     SubmissionStatus = "failed"
)

// Terminal reports whether no further polling can change the status
func (s SubmissionStatus) Terminal() bool {
	return s == SubmissionCompleted || s == SubmissionFailed
}

// Submission is a social-media video a user asked us to turn into a recipe
type Submission struct {
	ID               uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	UserID           uuid.UUID        `gorm:"type:uuid;not null;index" json:"user_id"`
	VideoURL         string           `gorm:"size:1024;not null" json:"video_url"`
	NormalizedURL    string           `gorm:"size:1024;not null;index" json:"-"`
	Platform         string           `gorm:"size:20;not null" json:"platform"`
	Status           SubmissionStatus `gorm:"size:20;not null;index" json:"status"`
	JobID            string           `gorm:"size:255;index" json:"job_id,omitempty"`
	ExternalRecipeID string           `gorm:"size:255" json:"external_recipe_id,omitempty"`
	RecipeID         *uuid.UUID       `gorm:"type:uuid" json:"recipe_id,omitempty"`
	Error            string           `gorm:"type:text" json:"error,omitempty"`
	Attempts         int              `gorm:"not null;default:0" json:"attempts"`
	LastPolledAt     *time.Time       `json:"last_polled_at,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
}

func (s *Submission) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = SubmissionPending
	}
	return nil
}
