package testhelpers

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pageza/reelkitchen/backend/internal/models"
	"github.com/pageza/reelkitchen/backend/internal/types"
)

// TestJWTSecret signs tokens in handler and middleware tests
const TestJWTSecret = "test-jwt-secret-for-handlers"

// CreateUser inserts a local user
func CreateUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{
		Email:        email,
		DisplayName:  "Cook " + email,
		AuthProvider: models.ProviderLocal,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateRecipe inserts a recipe owned by userID; mutate adjusts fields before insert
func CreateRecipe(t *testing.T, db *gorm.DB, userID uuid.UUID, title string, mutate ...func(*models.Recipe)) *models.Recipe {
	t.Helper()
	recipe := &models.Recipe{
		UserID:       userID,
		Title:        title,
		Ingredients:  models.Ingredients{{Name: "salt"}},
		Instructions: models.JSONBStringArray{"Cook it"},
		Tags:         models.JSONBStringArray{},
		Category:     "Dinner",
		Cuisine:      "Italian",
	}
	for _, fn := range mutate {
		fn(recipe)
	}
	require.NoError(t, db.Create(recipe).Error)
	return recipe
}

// CreateChallenge inserts an active challenge
func CreateChallenge(t *testing.T, db *gorm.DB, code, action string, target, reward int, period string) *models.Challenge {
	t.Helper()
	ch := &models.Challenge{
		Code:         code,
		Title:        code,
		Action:       action,
		Target:       target,
		RewardPoints: reward,
		Period:       period,
		Active:       true,
	}
	require.NoError(t, db.Create(ch).Error)
	return ch
}

// SignToken issues a session token for user signed with TestJWTSecret
func SignToken(t *testing.T, user *models.User) string {
	t.Helper()
	claims := types.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Provider:    user.AuthProvider,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(TestJWTSecret))
	require.NoError(t, err)
	return token
}
