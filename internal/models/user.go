package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Auth providers a user can sign in with
const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
)

type User struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
	Email           string         `gorm:"size:255;uniqueIndex;not null" json:"email"`
	DisplayName     string         `gorm:"size:80;not null" json:"display_name"`
	AvatarURL       string         `gorm:"size:512" json:"avatar_url"`
	PasswordHash    string         `gorm:"size:255" json:"-"`
	AuthProvider    string         `gorm:"size:20;not null;default:'local'" json:"auth_provider"`
	ProviderSubject string         `gorm:"size:255;index" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
