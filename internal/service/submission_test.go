package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pageza/reelkitchen/backend/internal/models"
	"github.com/pageza/reelkitchen/backend/internal/testhelpers"
	"github.com/pageza/reelkitchen/backend/internal/types"
)

type fakeExtraction struct {
	mu        sync.Mutex
	submitted []ExtractionRequest
	submit    func(ExtractionRequest) (*ExtractionResult, error)
	status    func(jobID string) (*ExtractionResult, error)
	fetch     func(recipeID string) (*ExtractedRecipe, error)
}

func (f *fakeExtraction) Submit(_ context.Context, req ExtractionRequest) (*ExtractionResult, error) {
	f.mu.Lock()
	f.submitted = append(f.submitted, req)
	f.mu.Unlock()
	return f.submit(req)
}

func (f *fakeExtraction) Status(_ context.Context, jobID string) (*ExtractionResult, error) {
	return f.status(jobID)
}

func (f *fakeExtraction) FetchRecipe(_ context.Context, recipeID string) (*ExtractedRecipe, error) {
	return f.fetch(recipeID)
}

func (f *fakeExtraction) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

type fakeMirror struct {
	url string
	err error
}

func (m *fakeMirror) Mirror(_ context.Context, _ string) (string, error) {
	return m.url, m.err
}

func asyncJob(jobID string) func(ExtractionRequest) (*ExtractionResult, error) {
	return func(ExtractionRequest) (*ExtractionResult, error) {
		return &ExtractionResult{JobID: jobID, Status: models.SubmissionProcessing}, nil
	}
}

func sampleExtracted() *ExtractedRecipe {
	return &ExtractedRecipe{
		ExternalID:   "ext-1",
		Title:        "Crispy Rice Salad",
		ThumbnailURL: "https://cdn.tiktok.test/thumb.jpg",
		Ingredients:  models.Ingredients{{Name: "rice", Quantity: "2", Unit: "cups"}},
		Instructions: []string{"Fry the rice"},
		Tags:         []string{"viral"},
		Cuisine:      "Thai",
		Category:     "Lunch",
	}
}

type submissionFixture struct {
	svc    *SubmissionService
	db     *gorm.DB
	client *fakeExtraction
	clock  *fakeClock
	user   *models.User
}

func newSubmissionFixture(t *testing.T, mirror Mirrorer) *submissionFixture {
	db := testhelpers.SetupTestDB(t)
	clock := &fakeClock{t: time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)}
	gam := NewGamificationService(db, nil, zap.NewNop())
	gam.SetClock(clock.Now)
	recipes := NewRecipeService(db, gam, zap.NewNop())
	client := &fakeExtraction{submit: asyncJob("job-1")}
	svc := NewSubmissionService(db, client, recipes, gam, mirror, nil, zap.NewNop())
	svc.now = clock.Now
	return &submissionFixture{
		svc:    svc,
		db:     db,
		client: client,
		clock:  clock,
		user:   testhelpers.CreateUser(t, db, "submitter@test.com"),
	}
}

const tiktokURL = "https://www.tiktok.com/@chef/video/7301?is_from_webapp=1"

func TestSubmissionCreate_AsyncMovesToProcessing(t *testing.T) {
	f := newSubmissionFixture(t, nil)

	res, err := f.svc.Create(context.Background(), f.user.ID, tiktokURL)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, models.SubmissionProcessing, res.Submission.Status)
	assert.Equal(t, "job-1", res.Submission.JobID)
	assert.Equal(t, PlatformTikTok, res.Submission.Platform)
	require.NotNil(t, res.Award)
	assert.Equal(t, 5, res.Award.PointsAwarded)

	require.Equal(t, 1, f.client.submitCount())
	assert.Equal(t, res.Submission.ID, f.client.submitted[0].SubmissionID)
	assert.Equal(t, tiktokURL, f.client.submitted[0].VideoURL)
}

func TestSubmissionCreate_RejectsUnsupportedURL(t *testing.T) {
	f := newSubmissionFixture(t, nil)

	_, err := f.svc.Create(context.Background(), f.user.ID, "https://vimeo.com/123")
	assert.ErrorIs(t, err, types.ErrInvalidInput)
	assert.Equal(t, 0, f.client.submitCount())
}

func TestSubmissionCreate_Duplicate(t *testing.T) {
	f := newSubmissionFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.user.ID, tiktokURL)
	require.NoError(t, err)

	second, err := f.svc.Create(ctx, f.user.ID, "https://tiktok.com/@chef/video/7301/")
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Submission.ID, second.Submission.ID)
	assert.Nil(t, second.Award)
	assert.Equal(t, 1, f.client.submitCount())

	other := testhelpers.CreateUser(t, f.db, "other-submitter@test.com")
	third, err := f.svc.Create(ctx, other.ID, tiktokURL)
	require.NoError(t, err)
	assert.False(t, third.Duplicate)
}

func TestSubmissionCreate_FailedIsNotDuplicate(t *testing.T) {
	f := newSubmissionFixture(t, nil)
	ctx := context.Background()
	f.client.submit = func(ExtractionRequest) (*ExtractionResult, error) {
		return nil, &UpstreamError{Operation: "submit", StatusCode: 502, Body: "bad gateway"}
	}

	first, err := f.svc.Create(ctx, f.user.ID, tiktokURL)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionFailed, first.Submission.Status)
	assert.Contains(t, first.Submission.Error, "502")

	f.client.submit = asyncJob("job-2")
	second, err := f.svc.Create(ctx, f.user.ID, tiktokURL)
	require.NoError(t, err)
	assert.False(t, second.Duplicate)
	assert.NotEqual(t, first.Submission.ID, second.Submission.ID)
}

func TestSubmissionCreate_SyncCompletes(t *testing.T) {
	f := newSubmissionFixture(t, &fakeMirror{url: "https://cdn.reelkitchen.test/recipe-thumbnails/a.jpg"})
	f.client.submit = func(ExtractionRequest) (*ExtractionResult, error) {
		return &ExtractionResult{Status: models.SubmissionCompleted, Recipe: sampleExtracted()}, nil
	}

	res, err := f.svc.Create(context.Background(), f.user.ID, tiktokURL)
	require.NoError(t, err)
	sub := res.Submission
	assert.Equal(t, models.SubmissionCompleted, sub.Status)
	require.NotNil(t, sub.RecipeID)
	assert.Equal(t, "ext-1", sub.ExternalRecipeID)
	assert.NotNil(t, sub.CompletedAt)

	var recipe models.Recipe
	require.NoError(t, f.db.First(&recipe, "id = ?", *sub.RecipeID).Error)
	assert.Equal(t, "Crispy Rice Salad", recipe.Title)
	assert.Equal(t, tiktokURL, recipe.SourceURL)
	assert.Equal(t, PlatformTikTok, recipe.Platform)
	assert.Equal(t, "https://cdn.reelkitchen.test/recipe-thumbnails/a.jpg", recipe.ThumbnailURL)
	assert.NotNil(t, recipe.Embedding)
	require.NotNil(t, recipe.SubmissionID)
	assert.Equal(t, sub.ID, *recipe.SubmissionID)

	stats, err := f.svc.gamification.Stats(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, stats.Points)
	assert.Equal(t, 1, stats.RecipesSaved)
}

func TestSubmissionComplete_MirrorFailureKeepsOriginalThumbnail(t *testing.T) {
	f := newSubmissionFixture(t, &fakeMirror{err: errors.New("s3 down")})
	f.client.submit = func(ExtractionRequest) (*ExtractionResult, error) {
		return &ExtractionResult{Status: models.SubmissionCompleted, Recipe: sampleExtracted()}, nil
	}

	res, err := f.svc.Create(context.Background(), f.user.ID, tiktokURL)
	require.NoError(t, err)
	require.NotNil(t, res.Submission.RecipeID)

	var recipe models.Recipe
	require.NoError(t, f.db.First(&recipe, "id = ?", *res.Submission.RecipeID).Error)
	assert.Equal(t, "https://cdn.tiktok.test/thumb.jpg", recipe.ThumbnailURL)
}

func TestSubmissionRefresh(t *testing.T) {
	f := newSubmissionFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, f.user.ID, tiktokURL)
	require.NoError(t, err)
	id := res.Submission.ID

	f.client.status = func(jobID string) (*ExtractionResult, error) {
		assert.Equal(t, "job-1", jobID)
		return &ExtractionResult{JobID: jobID, Status: models.SubmissionProcessing}, nil
	}
	sub, err := f.svc.Refresh(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionProcessing, sub.Status)
	assert.Equal(t, 1, sub.Attempts)
	assert.NotNil(t, sub.LastPolledAt)

	f.client.status = func(jobID string) (*ExtractionResult, error) {
		return &ExtractionResult{JobID: jobID, Status: models.SubmissionCompleted, RecipeID: "remote-9"}, nil
	}
	f.client.fetch = func(recipeID string) (*ExtractedRecipe, error) {
		assert.Equal(t, "remote-9", recipeID)
		r := sampleExtracted()
		r.ExternalID = ""
		return r, nil
	}
	sub, err = f.svc.Refresh(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionCompleted, sub.Status)
	assert.Equal(t, "remote-9", sub.ExternalRecipeID)

	// Completed submissions are not polled again.
	f.client.status = func(string) (*ExtractionResult, error) {
		t.Fatal("status must not be called for completed submissions")
		return nil, nil
	}
	again, err := f.svc.Refresh(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, sub.RecipeID, again.RecipeID)
}

func TestSubmissionRefresh_Failed(t *testing.T) {
	f := newSubmissionFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, f.user.ID, tiktokURL)
	require.NoError(t, err)

	f.client.status = func(jobID string) (*ExtractionResult, error) {
		return &ExtractionResult{JobID: jobID, Status: models.SubmissionFailed, Error: "video is private"}, nil
	}
	sub, err := f.svc.Refresh(ctx, res.Submission.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionFailed, sub.Status)
	assert.Equal(t, "video is private", sub.Error)
}

func TestSubmissionRefresh_UnusableStatusFails(t *testing.T) {
	f := newSubmissionFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, f.user.ID, tiktokURL)
	require.NoError(t, err)

	calls := 0
	f.client.status = func(string) (*ExtractionResult, error) {
		calls++
		return ParseExtractionResponse([]byte(`{"status":"completed","recipe":{"title":"Toast","ingredients":[]}}`))
	}
	sub, err := f.svc.Refresh(ctx, res.Submission.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionFailed, sub.Status)
	assert.Contains(t, sub.Error, ErrInvalidRecipe.Error())

	// A failed submission is terminal, so it is not polled again.
	_, err = f.svc.Refresh(ctx, res.Submission.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	res, err = f.svc.Create(ctx, f.user.ID, "https://m.youtube.com/watch?v=abc123")
	require.NoError(t, err)
	f.client.status = func(string) (*ExtractionResult, error) {
		return ParseExtractionResponse([]byte(`{"status":"exploded"}`))
	}
	sub, err = f.svc.Refresh(ctx, res.Submission.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionFailed, sub.Status)
}

func TestSubmissionGet_OwnerScopedWithRefresh(t *testing.T) {
	f := newSubmissionFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, f.user.ID, tiktokURL)
	require.NoError(t, err)

	other := testhelpers.CreateUser(t, f.db, "snoop@test.com")
	_, err = f.svc.Get(ctx, other.ID, res.Submission.ID, false)
	assert.ErrorIs(t, err, types.ErrNotFound)

	f.client.status = func(string) (*ExtractionResult, error) {
		return nil, &UpstreamError{Operation: "status", StatusCode: 503}
	}
	sub, err := f.svc.Get(ctx, f.user.ID, res.Submission.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionProcessing, sub.Status)

	f.client.status = func(jobID string) (*ExtractionResult, error) {
		return &ExtractionResult{JobID: jobID, Status: models.SubmissionCompleted, Recipe: sampleExtracted()}, nil
	}
	sub, err = f.svc.Get(ctx, f.user.ID, res.Submission.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionCompleted, sub.Status)
}

func TestSubmissionApplyCallback(t *testing.T) {
	f := newSubmissionFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, f.user.ID, tiktokURL)
	require.NoError(t, err)

	cb := &ExtractionResult{JobID: "job-1", Status: models.SubmissionCompleted, Recipe: sampleExtracted()}
	sub, err := f.svc.ApplyCallback(ctx, cb)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionCompleted, sub.Status)
	require.NotNil(t, sub.RecipeID)

	id := res.Submission.ID
	again, err := f.svc.ApplyCallback(ctx, &ExtractionResult{SubmissionID: &id, Status: models.SubmissionCompleted, Recipe: sampleExtracted()})
	require.NoError(t, err)
	assert.Equal(t, *sub.RecipeID, *again.RecipeID)

	var recipes int64
	require.NoError(t, f.db.Model(&models.Recipe{}).Where("submission_id = ?", id).Count(&recipes).Error)
	assert.Equal(t, int64(1), recipes)

	stats, err := f.svc.gamification.Stats(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RecipesSaved)

	missing := uuid.New()
	_, err = f.svc.ApplyCallback(ctx, &ExtractionResult{SubmissionID: &missing, Status: models.SubmissionFailed})
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = f.svc.ApplyCallback(ctx, &ExtractionResult{Status: models.SubmissionFailed})
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestSubmissionRetry(t *testing.T) {
	f := newSubmissionFixture(t, nil)
	ctx := context.Background()
	f.client.submit = func(ExtractionRequest) (*ExtractionResult, error) {
		return nil, errors.New("connection refused")
	}

	res, err := f.svc.Create(ctx, f.user.ID, tiktokURL)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionFailed, res.Submission.Status)

	f.client.submit = asyncJob("job-retry")
	sub, err := f.svc.Retry(ctx, f.user.ID, res.Submission.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionProcessing, sub.Status)
	assert.Equal(t, "job-retry", sub.JobID)
	assert.Empty(t, sub.Error)

	_, err = f.svc.Retry(ctx, f.user.ID, res.Submission.ID)
	assert.ErrorIs(t, err, types.ErrConflict)

	stats, err := f.svc.gamification.Stats(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Points)
}

func TestSubmissionCreate_ConcurrentDuplicates(t *testing.T) {
	f := newSubmissionFixture(t, nil)
	ctx := context.Background()

	const n = 5
	results := make([]*SubmissionResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Create(ctx, f.user.ID, tiktokURL)
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		if !results[i].Duplicate {
			created++
		}
	}
	assert.Equal(t, 1, created)

	var live, awards int64
	require.NoError(t, f.db.Model(&models.Submission{}).
		Where("user_id = ? AND status <> ?", f.user.ID, models.SubmissionFailed).Count(&live).Error)
	assert.EqualValues(t, 1, live)
	require.NoError(t, f.db.Model(&models.PointEvent{}).
		Where("user_id = ? AND action = ?", f.user.ID, models.ActionSubmitVideo).Count(&awards).Error)
	assert.EqualValues(t, 1, awards)
}

func TestSubmissionLiveURLIndex(t *testing.T) {
	f := newSubmissionFixture(t, nil)
	normalized, err := NormalizeVideoURL(tiktokURL)
	require.NoError(t, err)
	row := func(status models.SubmissionStatus) *models.Submission {
		return &models.Submission{
			UserID:        f.user.ID,
			VideoURL:      tiktokURL,
			NormalizedURL: normalized,
			Platform:      PlatformTikTok,
			Status:        status,
		}
	}

	require.NoError(t, f.db.Create(row(models.SubmissionFailed)).Error)
	require.NoError(t, f.db.Create(row(models.SubmissionFailed)).Error)
	require.NoError(t, f.db.Create(row(models.SubmissionProcessing)).Error)
	assert.Error(t, f.db.Create(row(models.SubmissionPending)).Error)

	other := testhelpers.CreateUser(t, f.db, "second-viewer@test.com")
	sub := row(models.SubmissionPending)
	sub.UserID = other.ID
	assert.NoError(t, f.db.Create(sub).Error)
}

func TestSubmissionRetry_BlockedByLiveDuplicate(t *testing.T) {
	f := newSubmissionFixture(t, nil)
	ctx := context.Background()
	f.client.submit = func(ExtractionRequest) (*ExtractionResult, error) {
		return nil, errors.New("connection refused")
	}
	failed, err := f.svc.Create(ctx, f.user.ID, tiktokURL)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionFailed, failed.Submission.Status)

	f.client.submit = asyncJob("job-2")
	live, err := f.svc.Create(ctx, f.user.ID, tiktokURL)
	require.NoError(t, err)
	require.False(t, live.Duplicate)

	_, err = f.svc.Retry(ctx, f.user.ID, failed.Submission.ID)
	assert.ErrorIs(t, err, types.ErrConflict)
}

func TestSubmissionDueForPoll_NeverPolledFirst(t *testing.T) {
	f := newSubmissionFixture(t, nil)
	ctx := context.Background()
	polled, err := f.svc.Create(ctx, f.user.ID, tiktokURL)
	require.NoError(t, err)
	require.NoError(t, f.svc.markPolled(ctx, polled.Submission.ID))
	f.clock.Advance(time.Minute)
	fresh, err := f.svc.Create(ctx, f.user.ID, "https://www.instagram.com/reel/Cxyz/")
	require.NoError(t, err)

	due, err := f.svc.DueForPoll(ctx, f.clock.Now().Add(time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, fresh.Submission.ID, due[0].ID)
}

func TestSubmissionList(t *testing.T) {
	f := newSubmissionFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.user.ID, tiktokURL)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	f.client.submit = func(ExtractionRequest) (*ExtractionResult, error) {
		return nil, errors.New("boom")
	}
	latest, err := f.svc.Create(ctx, f.user.ID, "https://youtu.be/abc123")
	require.NoError(t, err)

	subs, total, err := f.svc.List(ctx, f.user.ID, "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, subs, 2)
	assert.Equal(t, latest.Submission.ID, subs[0].ID)

	subs, total, err = f.svc.List(ctx, f.user.ID, string(models.SubmissionFailed), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, subs, 1)
	assert.Equal(t, PlatformYouTube, subs[0].Platform)
}

func TestPoller_TickRefreshesAndExpires(t *testing.T) {
	f := newSubmissionFixture(t, nil)
	ctx := context.Background()

	stale, err := f.svc.Create(ctx, f.user.ID, tiktokURL)
	require.NoError(t, err)
	f.clock.Advance(45 * time.Minute)
	f.client.submit = asyncJob("job-fresh")
	fresh, err := f.svc.Create(ctx, f.user.ID, "https://www.instagram.com/reel/Cxyz/")
	require.NoError(t, err)

	var mu sync.Mutex
	polled := map[string]int{}
	f.client.status = func(jobID string) (*ExtractionResult, error) {
		mu.Lock()
		polled[jobID]++
		mu.Unlock()
		return &ExtractionResult{JobID: jobID, Status: models.SubmissionCompleted, Recipe: sampleExtracted()}, nil
	}

	poller := NewPoller(f.svc, 15*time.Second, 30*time.Minute, nil, zap.NewNop())
	poller.now = f.clock.Now
	require.NoError(t, poller.Tick(ctx))

	var expired models.Submission
	require.NoError(t, f.db.First(&expired, "id = ?", stale.Submission.ID).Error)
	assert.Equal(t, models.SubmissionFailed, expired.Status)
	assert.Equal(t, "extraction timed out", expired.Error)

	var done models.Submission
	require.NoError(t, f.db.First(&done, "id = ?", fresh.Submission.ID).Error)
	assert.Equal(t, models.SubmissionCompleted, done.Status)
	assert.Equal(t, map[string]int{"job-fresh": 1}, polled)
}

func TestPoller_SkipsRecentlyPolled(t *testing.T) {
	f := newSubmissionFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, f.user.ID, tiktokURL)
	require.NoError(t, err)

	calls := 0
	f.client.status = func(jobID string) (*ExtractionResult, error) {
		calls++
		return &ExtractionResult{JobID: jobID, Status: models.SubmissionProcessing}, nil
	}
	poller := NewPoller(f.svc, 15*time.Second, 30*time.Minute, nil, zap.NewNop())
	poller.now = f.clock.Now

	require.NoError(t, poller.Tick(ctx))
	require.NoError(t, poller.Tick(ctx))
	assert.Equal(t, 1, calls)

	f.clock.Advance(20 * time.Second)
	require.NoError(t, poller.Tick(ctx))
	assert.Equal(t, 2, calls)

	var got models.Submission
	require.NoError(t, f.db.First(&got, "id = ?", res.Submission.ID).Error)
	assert.Equal(t, 2, got.Attempts)
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	f := newSubmissionFixture(t, nil)
	poller := NewPoller(f.svc, 10*time.Millisecond, time.Minute, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
