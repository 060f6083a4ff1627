package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pageza/reelkitchen/backend/internal/models"
	"github.com/pageza/reelkitchen/backend/internal/service"
	"github.com/pageza/reelkitchen/backend/internal/testhelpers"
)

const webhookSecret = "test-webhook-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type stubExtraction struct{}

func (stubExtraction) Submit(_ context.Context, _ service.ExtractionRequest) (*service.ExtractionResult, error) {
	return &service.ExtractionResult{JobID: "job-42", Status: models.SubmissionProcessing}, nil
}

func (stubExtraction) Status(_ context.Context, jobID string) (*service.ExtractionResult, error) {
	return &service.ExtractionResult{JobID: jobID, Status: models.SubmissionProcessing}, nil
}

func (stubExtraction) FetchRecipe(_ context.Context, _ string) (*service.ExtractedRecipe, error) {
	return nil, nil
}

type testAPI struct {
	router *gin.Engine
	db     *gorm.DB
	user   *models.User
	token  string
}

func newTestAPI(t *testing.T) *testAPI {
	db := testhelpers.SetupTestDB(t)
	log := zap.NewNop()
	auth := service.NewAuthService(db, service.AuthOptions{JWTSecret: testhelpers.TestJWTSecret}, log)
	gam := service.NewGamificationService(db, nil, log)
	recipes := service.NewRecipeService(db, gam, log)
	subs := service.NewSubmissionService(db, stubExtraction{}, recipes, gam, nil, nil, log)

	router := gin.New()
	RegisterRoutes(router, Dependencies{
		Auth:          auth,
		Submissions:   subs,
		Recipes:       recipes,
		Gamification:  gam,
		Roulette:      service.NewRouletteService(db, gam, nil, log),
		Dashboard:     service.NewDashboardService(db, gam),
		WebhookSecret: webhookSecret,
		Cookie:        CookieConfig{Name: "rk_session"},
		FrontendURL:   "http://localhost:5173",
	})

	user := testhelpers.CreateUser(t, db, "api@test.com")
	return &testAPI{router: router, db: db, user: user, token: testhelpers.SignToken(t, user)}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthCheck(t *testing.T) {
	a := newTestAPI(t)
	w := a.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	a := newTestAPI(t)
	for _, path := range []string{"/api/v1/recipes", "/api/v1/submissions", "/api/v1/dashboard/stats", "/api/v1/auth/me"} {
		w := a.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestRegisterLoginAndMe(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":        "New@Test.com",
		"password":     "correct-horse",
		"display_name": "Newbie",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Result().Cookies())

	w = a.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":        "new@test.com",
		"password":     "correct-horse",
		"display_name": "Again",
	}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "new@test.com",
		"password": "wrong-password",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "new@test.com",
		"password": "correct-horse",
	}, "")
	require.Equal(t, http.StatusOK, w.Code)
	token, _ := decode(t, w)["token"].(string)
	require.NotEmpty(t, token)

	w = a.do(t, http.MethodGet, "/api/v1/auth/me", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "new@test.com")

	w = a.do(t, http.MethodPost, "/api/v1/auth/logout", nil, token)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = a.do(t, http.MethodGet, "/api/v1/auth/me", nil, token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGoogleLoginDisabled(t *testing.T) {
	a := newTestAPI(t)
	w := a.do(t, http.MethodGet, "/api/v1/auth/google/login", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecipeLifecycle(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/api/v1/recipes", map[string]any{
		"title":       "Garlic Noodles",
		"cuisine":     "asian fusion",
		"ingredients": []map[string]string{{"name": "noodles"}, {"name": "garlic"}},
	}, a.token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	recipe := body["recipe"].(map[string]any)
	id := recipe["id"].(string)
	assert.Equal(t, "Asian Fusion", recipe["cuisine"])
	assert.NotNil(t, body["award"])

	w = a.do(t, http.MethodGet, "/api/v1/recipes?q=garlic", nil, a.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])

	w = a.do(t, http.MethodGet, "/api/v1/recipes?sort=sideways", nil, a.token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodPut, "/api/v1/recipes/"+id, map[string]any{"title": "Better Garlic Noodles"}, a.token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Better Garlic Noodles")

	w = a.do(t, http.MethodPost, "/api/v1/recipes/"+id+"/favorite", nil, a.token)
	require.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, http.MethodGet, "/api/v1/recipes?favorites=true", nil, a.token)
	assert.EqualValues(t, 1, decode(t, w)["total"])

	w = a.do(t, http.MethodPost, "/api/v1/recipes/"+id+"/cook", map[string]any{"rating": 5}, a.token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(t, http.MethodPost, "/api/v1/recipes/"+id+"/cook", map[string]any{"rating": 9}, a.token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/recipes/"+id+"/similar", nil, a.token)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodDelete, "/api/v1/recipes/"+id, nil, a.token)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = a.do(t, http.MethodGet, "/api/v1/recipes/"+id, nil, a.token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecipeNotVisibleToOtherUsers(t *testing.T) {
	a := newTestAPI(t)
	other := testhelpers.CreateUser(t, a.db, "other@test.com")
	recipe := testhelpers.CreateRecipe(t, a.db, other.ID, "Secret Sauce")

	w := a.do(t, http.MethodGet, "/api/v1/recipes/"+recipe.ID.String(), nil, a.token)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/recipes/not-a-uuid", nil, a.token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmissionFlowWithWebhook(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/api/v1/submissions", map[string]string{"video_url": "https://example.com/video"}, a.token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	videoURL := "https://www.instagram.com/reel/Cx1abc/"
	w = a.do(t, http.MethodPost, "/api/v1/submissions", map[string]string{"video_url": videoURL}, a.token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sub := decode(t, w)["submission"].(map[string]any)
	assert.Equal(t, string(models.SubmissionProcessing), sub["status"])
	id := sub["id"].(string)

	w = a.do(t, http.MethodPost, "/api/v1/submissions", map[string]string{"video_url": videoURL}, a.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["duplicate"])

	callback, err := json.Marshal(map[string]string{
		"submission_id": id,
		"status":        "failed",
		"error":         "no recipe found in video",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/extraction", bytes.NewReader(callback))
	req.Header.Set(SignatureHeader, "sha256=deadbeef")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/extraction", bytes.NewReader(callback))
	req.Header.Set(SignatureHeader, SignBody([]byte(webhookSecret), callback))
	rec = httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	w = a.do(t, http.MethodGet, "/api/v1/submissions/"+id, nil, a.token)
	require.Equal(t, http.StatusOK, w.Code)
	sub = decode(t, w)["submission"].(map[string]any)
	assert.Equal(t, string(models.SubmissionFailed), sub["status"])
	assert.Equal(t, "no recipe found in video", sub["error"])

	w = a.do(t, http.MethodGet, "/api/v1/submissions?status=failed", nil, a.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])

	w = a.do(t, http.MethodPost, "/api/v1/submissions/"+id+"/retry", nil, a.token)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, string(models.SubmissionProcessing), decode(t, w)["submission"].(map[string]any)["status"])

	w = a.do(t, http.MethodPost, "/api/v1/submissions/"+id+"/retry", nil, a.token)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/submissions/"+uuid.NewString(), nil, a.token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookCallbackWithWrappedRecipe(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/api/v1/submissions", map[string]string{"video_url": "https://www.tiktok.com/@chef/video/7301"}, a.token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["submission"].(map[string]any)["id"].(string)

	callback, err := json.Marshal(map[string]any{
		"submission_id": id,
		"output": map[string]any{
			"title":       "Scallion Pancakes",
			"ingredients": []string{"2 cups flour", "3 scallions"},
		},
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/extraction", bytes.NewReader(callback))
	req.Header.Set(SignatureHeader, SignBody([]byte(webhookSecret), callback))
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	w = a.do(t, http.MethodGet, "/api/v1/submissions/"+id, nil, a.token)
	require.Equal(t, http.StatusOK, w.Code)
	sub := decode(t, w)["submission"].(map[string]any)
	assert.Equal(t, string(models.SubmissionCompleted), sub["status"])
	assert.NotEmpty(t, sub["recipe_id"])
}

func TestVerifySignature(t *testing.T) {
	secret := []byte("s3cret")
	body := []byte(`{"status":"completed"}`)
	sig := SignBody(secret, body)

	assert.True(t, VerifySignature(secret, body, sig))
	assert.False(t, VerifySignature(secret, []byte(`{"status":"failed"}`), sig))
	assert.False(t, VerifySignature(nil, body, sig))
	assert.False(t, VerifySignature(secret, body, "sha256=zz"))
	assert.False(t, VerifySignature(secret, body, ""))
}

func TestRouletteAndGamification(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/api/v1/roulette/spin", nil, a.token)
	assert.Equal(t, http.StatusNotFound, w.Code)

	testhelpers.CreateRecipe(t, a.db, a.user.ID, "Shakshuka")
	w = a.do(t, http.MethodPost, "/api/v1/roulette/spin", nil, a.token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.EqualValues(t, 1, body["pool_size"])
	assert.Equal(t, "Shakshuka", body["recipe"].(map[string]any)["title"])

	w = a.do(t, http.MethodGet, "/api/v1/roulette/history", nil, a.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["spins"], 1)

	w = a.do(t, http.MethodGet, "/api/v1/gamification/stats", nil, a.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w), "points_to_next_level")

	w = a.do(t, http.MethodGet, "/api/v1/gamification/points", nil, a.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["events"], 1)

	w = a.do(t, http.MethodGet, "/api/v1/gamification/leaderboard?limit=abc", nil, a.token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/gamification/leaderboard", nil, a.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["leaderboard"], 1)

	w = a.do(t, http.MethodGet, "/api/v1/gamification/challenges", nil, a.token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDashboardAndRateLimitStatus(t *testing.T) {
	a := newTestAPI(t)
	testhelpers.CreateRecipe(t, a.db, a.user.ID, "Miso Soup")

	w := a.do(t, http.MethodGet, "/api/v1/dashboard/stats", nil, a.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["recipesSaved"])

	w = a.do(t, http.MethodGet, "/api/v1/dashboard/favorites/recent", nil, a.token)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodGet, "/api/v1/rate-limits/submissions", nil, a.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["limited"])
}
