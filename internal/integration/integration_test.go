package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pageza/reelkitchen/backend/internal/api"
	"github.com/pageza/reelkitchen/backend/internal/metrics"
	"github.com/pageza/reelkitchen/backend/internal/middleware"
	"github.com/pageza/reelkitchen/backend/internal/models"
	"github.com/pageza/reelkitchen/backend/internal/service"
	"github.com/pageza/reelkitchen/backend/internal/testhelpers"
)

const (
	webhookSecret = "integration-webhook-secret"
	jobID         = "exec-7781"
)

// newExtractor fakes the extraction webhook: submissions are accepted
// asynchronously and the status endpoint reports the job as running.
func newExtractor(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"executionId":"` + jobID + `","status":"running"}]`))
	})
	mux.HandleFunc("GET /webhook/status/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"execution_id":"` + r.PathValue("id") + `","state":"running"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type stack struct {
	db     *gorm.DB
	router *gin.Engine
}

func newStack(t *testing.T) *stack {
	gin.SetMode(gin.TestMode)
	db, _ := testhelpers.SetupPostgres(t)
	redisClient := testhelpers.SetupRedis(t)
	extractor := newExtractor(t)

	log := zap.NewNop()
	m := metrics.New()
	client := service.NewExtractionClient(service.ExtractionClientConfig{
		WebhookURL: extractor.URL + "/webhook",
		StatusURL:  extractor.URL + "/webhook/status",
		RecipeURL:  extractor.URL + "/webhook/recipes",
	}, m, log)

	auth := service.NewAuthService(db, service.AuthOptions{
		JWTSecret: testhelpers.TestJWTSecret,
		Revoker:   service.NewRedisTokenRevoker(redisClient),
		States:    service.NewRedisStateStore(redisClient),
	}, log)
	gam := service.NewGamificationService(db, m, log)
	recipes := service.NewRecipeService(db, gam, log)

	router := gin.New()
	api.RegisterRoutes(router, api.Dependencies{
		Auth:              auth,
		Submissions:       service.NewSubmissionService(db, client, recipes, gam, nil, m, log),
		Recipes:           recipes,
		Gamification:      gam,
		Roulette:          service.NewRouletteService(db, gam, m, log),
		Dashboard:         service.NewDashboardService(db, gam),
		SubmissionLimiter: middleware.NewSubmissionRateLimiter(redisClient, 2),
		WebhookSecret:     webhookSecret,
		Cookie:            api.CookieConfig{Name: "rk_session"},
	})
	return &stack{db: db, router: router}
}

func (s *stack) call(t *testing.T, method, path string, body any, token string) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func (s *stack) webhook(t *testing.T, payload any) int {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/extraction", bytes.NewReader(body))
	req.Header.Set(api.SignatureHeader, api.SignBody([]byte(webhookSecret), body))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w.Code
}

func TestVideoToRecipeFlow(t *testing.T) {
	s := newStack(t)

	code, auth := s.call(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":        "flow@test.com",
		"password":     "password123",
		"display_name": "Flow",
	}, "")
	require.Equal(t, http.StatusCreated, code)
	token := auth["token"].(string)

	code, body := s.call(t, http.MethodPost, "/api/v1/submissions", map[string]string{
		"video_url": "https://www.tiktok.com/@chef/video/7301",
	}, token)
	require.Equal(t, http.StatusCreated, code, body)
	sub := body["submission"].(map[string]any)
	assert.Equal(t, string(models.SubmissionProcessing), sub["status"])
	assert.Equal(t, jobID, sub["job_id"])

	code, body = s.call(t, http.MethodGet, "/api/v1/submissions/"+sub["id"].(string)+"?refresh=true", nil, token)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["submission"].(map[string]any)["attempts"])

	code = s.webhook(t, map[string]any{
		"job_id": jobID,
		"status": "completed",
		"recipe": map[string]any{
			"title":        "Smashed Cucumber Salad",
			"ingredients":  []string{"2 cucumbers", "1 tbsp chili crisp"},
			"instructions": "Smash the cucumbers. Dress and serve.",
			"cuisine":      "chinese",
			"prep_time":    "10 minutes",
		},
	})
	require.Equal(t, http.StatusAccepted, code)

	code, body = s.call(t, http.MethodGet, "/api/v1/submissions/"+sub["id"].(string), nil, token)
	require.Equal(t, http.StatusOK, code)
	done := body["submission"].(map[string]any)
	assert.Equal(t, string(models.SubmissionCompleted), done["status"])
	recipeID := done["recipe_id"].(string)

	code, body = s.call(t, http.MethodGet, "/api/v1/recipes/"+recipeID, nil, token)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Chinese", body["recipe"].(map[string]any)["cuisine"])

	// A replayed callback must not save the recipe twice
	code = s.webhook(t, map[string]any{"job_id": jobID, "status": "completed", "recipe": map[string]any{
		"title": "Smashed Cucumber Salad", "ingredients": []string{"cucumber"},
	}})
	require.Equal(t, http.StatusAccepted, code)
	var count int64
	require.NoError(t, s.db.Model(&models.Recipe{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	code, body = s.call(t, http.MethodGet, "/api/v1/gamification/stats", nil, token)
	require.Equal(t, http.StatusOK, code)
	assert.Positive(t, body["stats"].(map[string]any)["points"])
}

func TestSimilarRecipesUsePgvector(t *testing.T) {
	s := newStack(t)
	user := testhelpers.CreateUser(t, s.db, "vector@test.com")
	token := testhelpers.SignToken(t, user)

	create := func(title string, ingredients ...string) string {
		items := make([]map[string]string, len(ingredients))
		for i, name := range ingredients {
			items[i] = map[string]string{"name": name}
		}
		code, body := s.call(t, http.MethodPost, "/api/v1/recipes", map[string]any{
			"title":       title,
			"ingredients": items,
		}, token)
		require.Equal(t, http.StatusCreated, code, body)
		return body["recipe"].(map[string]any)["id"].(string)
	}

	base := create("Tomato Basil Pasta", "tomato", "basil", "pasta", "garlic")
	near := create("Garlic Tomato Spaghetti", "tomato", "garlic", "spaghetti", "basil")
	create("Chocolate Mousse", "chocolate", "cream", "eggs", "sugar")

	code, body := s.call(t, http.MethodGet, "/api/v1/recipes/"+base+"/similar?limit=1", nil, token)
	require.Equal(t, http.StatusOK, code)
	similar := body["recipes"].([]any)
	require.Len(t, similar, 1)
	assert.Equal(t, near, similar[0].(map[string]any)["id"])
}

func TestSubmissionRateLimit(t *testing.T) {
	s := newStack(t)
	user := testhelpers.CreateUser(t, s.db, "limited@test.com")
	token := testhelpers.SignToken(t, user)

	urls := []string{
		"https://www.tiktok.com/@a/video/1",
		"https://www.tiktok.com/@a/video/2",
		"https://www.tiktok.com/@a/video/3",
	}
	var codes []int
	for _, u := range urls {
		code, _ := s.call(t, http.MethodPost, "/api/v1/submissions", map[string]string{"video_url": u}, token)
		codes = append(codes, code)
	}
	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, codes)

	code, body := s.call(t, http.MethodGet, "/api/v1/rate-limits/submissions", nil, token)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, body["remaining"])
}

func TestLogoutRevokesAcrossRedis(t *testing.T) {
	s := newStack(t)
	code, auth := s.call(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":        "bye@test.com",
		"password":     "password123",
		"display_name": "Bye",
	}, "")
	require.Equal(t, http.StatusCreated, code)
	token := auth["token"].(string)

	code, _ = s.call(t, http.MethodPost, "/api/v1/auth/logout", nil, token)
	require.Equal(t, http.StatusNoContent, code)

	code, _ = s.call(t, http.MethodGet, "/api/v1/auth/me", nil, token)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestSubmissionPollingOrderOnPostgres(t *testing.T) {
	db, _ := testhelpers.SetupPostgres(t)
	user := testhelpers.CreateUser(t, db, "backlog@test.com")
	submissions := service.NewSubmissionService(db, nil, nil, nil, nil, nil, zap.NewNop())
	polledAt := time.Now().Add(-time.Hour)

	insert := func(url string, polled *time.Time) models.Submission {
		sub := models.Submission{
			UserID:        user.ID,
			VideoURL:      url,
			NormalizedURL: url,
			Platform:      service.PlatformTikTok,
			Status:        models.SubmissionProcessing,
			JobID:         "job-" + url,
			LastPolledAt:  polled,
		}
		require.NoError(t, db.Create(&sub).Error)
		return sub
	}
	for i := 0; i < 30; i++ {
		insert(fmt.Sprintf("https://tiktok.com/@cook/video/%d", i), &polledAt)
	}
	fresh := insert("https://tiktok.com/@cook/video/new", nil)

	due, err := submissions.DueForPoll(context.Background(), time.Now(), 25)
	require.NoError(t, err)
	require.Len(t, due, 25)
	assert.Equal(t, fresh.ID, due[0].ID)

	// Only one live submission per user and video
	dup := models.Submission{
		UserID:        user.ID,
		VideoURL:      fresh.VideoURL,
		NormalizedURL: fresh.NormalizedURL,
		Platform:      service.PlatformTikTok,
		Status:        models.SubmissionPending,
	}
	assert.Error(t, db.Create(&dup).Error)
}
