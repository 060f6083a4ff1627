package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/pageza/reelkitchen/backend/internal/models"
	"github.com/pageza/reelkitchen/backend/internal/types"
)

const (
	oauthStateTTL      = 10 * time.Minute
	googleUserInfoURL  = "https://openidconnect.googleapis.com/v1/userinfo"
	maxUserInfoPayload = 1 << 20
)

// OAuthUserInfo is the identity returned by a provider
type OAuthUserInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// OAuthProvider is an authorization code flow identity provider
type OAuthProvider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// GoogleProvider signs users in with Google
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// NewGoogleProvider creates a GoogleProvider
func NewGoogleProvider(clientID, clientSecret, redirectURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: googleUserInfoURL,
	}
}

func (p *GoogleProvider) Name() string {
	return models.ProviderGoogle
}

func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the code for a token and fetches the user's profile
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*OAuthUserInfo, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: code exchange failed: %v", types.ErrUnauthorized, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: userinfo request failed: %v", types.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to read userinfo: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo returned status %d", types.ErrUpstream, resp.StatusCode)
	}

	var info OAuthUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo: %w", err)
	}
	return &info, nil
}

var errOAuthDisabled = fmt.Errorf("%w: google sign-in is not configured", types.ErrNotFound)

// OAuthEnabled reports whether an OAuth provider is configured
func (s *AuthService) OAuthEnabled() bool {
	return s.oauth != nil
}

// BeginOAuth issues a state and returns the provider consent URL
func (s *AuthService) BeginOAuth(ctx context.Context) (string, error) {
	if s.oauth == nil {
		return "", errOAuthDisabled
	}
	for attempt := 0; attempt < 3; attempt++ {
		state, err := randomState()
		if err != nil {
			return "", err
		}
		err = s.states.Put(ctx, state, oauthStateTTL)
		if errors.Is(err, ErrStateExists) {
			continue
		}
		if err != nil {
			return "", err
		}
		return s.oauth.AuthCodeURL(state), nil
	}
	return "", ErrStateExists
}

// CompleteOAuth consumes state, exchanges code and returns the signed-in user
func (s *AuthService) CompleteOAuth(ctx context.Context, state, code string) (*models.User, error) {
	if s.oauth == nil {
		return nil, errOAuthDisabled
	}
	if state == "" || code == "" {
		return nil, fmt.Errorf("%w: missing state or code", types.ErrInvalidInput)
	}
	ok, err := s.states.Consume(ctx, state)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: unknown or expired oauth state", types.ErrUnauthorized)
	}

	info, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.UpsertOAuthUser(ctx, s.oauth.Name(), info)
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
