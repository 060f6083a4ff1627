package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/pageza/reelkitchen/backend/internal/models"
	"github.com/pageza/reelkitchen/backend/internal/types"
)

const tokenIssuer = "reelkitchen"

var errInvalidCredentials = fmt.Errorf("%w: invalid email or password", types.ErrUnauthorized)

// AuthOptions configures AuthService
type AuthOptions struct {
	JWTSecret  string
	SessionTTL time.Duration
	Revoker    TokenRevoker
	States     StateStore
	// OAuth is nil when Google sign-in is not configured
	OAuth OAuthProvider
}

// AuthService handles accounts and sessions
type AuthService struct {
	db      *gorm.DB
	secret  []byte
	ttl     time.Duration
	revoker TokenRevoker
	states  StateStore
	oauth   OAuthProvider
	now     func() time.Time
	logger  *zap.Logger
}

// NewAuthService creates a new AuthService. Missing stores fall back to in-memory ones.
func NewAuthService(db *gorm.DB, opts AuthOptions, log *zap.Logger) *AuthService {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 7 * 24 * time.Hour
	}
	if opts.Revoker == nil {
		opts.Revoker = NewMemoryTokenRevoker()
	}
	if opts.States == nil {
		opts.States = NewMemoryStateStore()
	}
	return &AuthService{
		db:      db,
		secret:  []byte(opts.JWTSecret),
		ttl:     opts.SessionTTL,
		revoker: opts.Revoker,
		states:  opts.States,
		oauth:   opts.OAuth,
		now:     time.Now,
		logger:  log.Named("auth"),
	}
}

// SessionTTL is the lifetime of issued tokens
func (s *AuthService) SessionTTL() time.Duration {
	return s.ttl
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a local account
func (s *AuthService) Register(ctx context.Context, req *types.RegisterRequest) (*models.User, error) {
	email := normalizeEmail(req.Email)
	var count int64
	if err := s.db.WithContext(ctx).Unscoped().Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if count > 0 {
		return nil, fmt.Errorf("%w: email is already registered", types.ErrConflict)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user := &models.User{
		Email:        email,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: string(hash),
		AuthProvider: models.ProviderLocal,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.logger.Info("User registered", zap.String("user_id", user.ID.String()))
	return user, nil
}

// Login verifies a local account's password
func (s *AuthService) Login(ctx context.Context, req *types.LoginRequest) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(req.Email)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user.PasswordHash == "" {
		return nil, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errInvalidCredentials
	}
	return &user, nil
}

// IssueToken signs a session token for user
func (s *AuthService) IssueToken(user *models.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := types.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Provider:    user.AuthProvider,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt, nil
}

// ValidateToken parses a session token and rejects revoked ones
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*types.TokenClaims, error) {
	claims := &types.TokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrUnauthorized, err)
	}
	if claims.ID == "" || claims.UserID == uuid.Nil || claims.Subject != claims.UserID.String() {
		return nil, fmt.Errorf("%w: malformed token claims", types.ErrUnauthorized)
	}

	revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, fmt.Errorf("%w: token has been revoked", types.ErrUnauthorized)
	}
	return claims, nil
}

// Logout revokes the token for the rest of its lifetime
func (s *AuthService) Logout(ctx context.Context, claims *types.TokenClaims) error {
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Sub(s.now())
	}
	return s.revoker.Revoke(ctx, claims.ID, ttl)
}

// Me loads the caller
func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %s: %w", userID, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &user, nil
}

// UpdateMe updates the caller's display name and avatar
func (s *AuthService) UpdateMe(ctx context.Context, userID uuid.UUID, req *types.UpdateMeRequest) (*models.User, error) {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if name == "" {
			return nil, fmt.Errorf("%w: display name cannot be blank", types.ErrInvalidInput)
		}
		user.DisplayName = name
	}
	if req.AvatarURL != nil {
		user.AvatarURL = strings.TrimSpace(*req.AvatarURL)
	}
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// UpsertOAuthUser finds or creates the account for an OAuth identity. A
// local account with the same verified email is linked to the identity.
func (s *AuthService) UpsertOAuthUser(ctx context.Context, provider string, info *OAuthUserInfo) (*models.User, error) {
	if info.Subject == "" || info.Email == "" {
		return nil, fmt.Errorf("%w: identity provider returned no subject or email", types.ErrUnauthorized)
	}
	email := normalizeEmail(info.Email)

	var user models.User
	err := s.db.WithContext(ctx).Where("provider_subject = ?", info.Subject).Take(&user).Error
	if err == nil {
		if user.AvatarURL == "" && info.Picture != "" {
			user.AvatarURL = info.Picture
			if err := s.db.WithContext(ctx).Save(&user).Error; err != nil {
				return nil, fmt.Errorf("failed to update user: %w", err)
			}
		}
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	err = s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if err == nil {
		if !info.EmailVerified {
			return nil, fmt.Errorf("%w: email belongs to an existing account", types.ErrConflict)
		}
		user.ProviderSubject = info.Subject
		if user.AvatarURL == "" {
			user.AvatarURL = info.Picture
		}
		if err := s.db.WithContext(ctx).Save(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to link account: %w", err)
		}
		s.logger.Info("Linked OAuth identity", zap.String("user_id", user.ID.String()), zap.String("provider", provider))
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	name := strings.TrimSpace(info.Name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	user = models.User{
		Email:           email,
		DisplayName:     name,
		AvatarURL:       info.Picture,
		AuthProvider:    provider,
		ProviderSubject: info.Subject,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.logger.Info("User registered", zap.String("user_id", user.ID.String()), zap.String("provider", provider))
	return &user, nil
}

// UserResponse converts a user into its public form
func UserResponse(u *models.User) types.UserResponse {
	return types.UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Provider:    u.AuthProvider,
		CreatedAt:   u.CreatedAt,
	}
}
