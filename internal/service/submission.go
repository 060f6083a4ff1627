package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pageza/reelkitchen/backend/internal/metrics"
	"github.com/pageza/reelkitchen/backend/internal/models"
	"github.com/pageza/reelkitchen/backend/internal/types"
)

// Failure messages stored on submissions
const (
	msgTimedOut      = "extraction timed out"
	msgMissingRecipe = "extraction completed without a recipe"
	msgFailed        = "extraction failed"
)

// errAlreadyCompleted rolls back a completion that lost the race to another one
var errAlreadyCompleted = errors.New("submission already completed")

// Mirrorer copies a remote thumbnail into our storage
type Mirrorer interface {
	Mirror(ctx context.Context, sourceURL string) (string, error)
}

// SubmissionResult is returned by Create
type SubmissionResult struct {
	Submission *models.Submission
	Duplicate  bool
	Award      *AwardResult
}

// SubmissionService drives videos through extraction and into recipes
type SubmissionService struct {
	db           *gorm.DB
	client       ExtractionClient
	recipes      *RecipeService
	gamification *GamificationService
	mirror       Mirrorer
	metrics      *metrics.Metrics
	now          func() time.Time
	logger       *zap.Logger
}

// NewSubmissionService creates a new SubmissionService. mirror may be nil
// when no object storage is configured.
func NewSubmissionService(db *gorm.DB, client ExtractionClient, recipes *RecipeService, gamification *GamificationService, mirror Mirrorer, m *metrics.Metrics, log *zap.Logger) *SubmissionService {
	return &SubmissionService{
		db:           db,
		client:       client,
		recipes:      recipes,
		gamification: gamification,
		mirror:       mirror,
		metrics:      m,
		now:          time.Now,
		logger:       log.Named("submissions"),
	}
}

// Create registers a video for extraction. A live submission of the same
// video by the same user is returned instead of creating a new one.
func (s *SubmissionService) Create(ctx context.Context, userID uuid.UUID, videoURL string) (*SubmissionResult, error) {
	videoURL = strings.TrimSpace(videoURL)
	platform, err := DetectPlatform(videoURL)
	if err != nil {
		return nil, err
	}
	normalized, err := NormalizeVideoURL(videoURL)
	if err != nil {
		return nil, err
	}

	existing, err := s.liveSubmission(ctx, userID, normalized)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.metrics.SubmissionCreated(platform, true)
		return &SubmissionResult{Submission: existing, Duplicate: true}, nil
	}

	sub := &models.Submission{
		CreatedAt:     s.now().UTC(),
		UserID:        userID,
		VideoURL:      videoURL,
		NormalizedURL: normalized,
		Platform:      platform,
		Status:        models.SubmissionPending,
	}
	var award *AwardResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sub).Error; err != nil {
			return fmt.Errorf("failed to create submission: %w", err)
		}
		var err error
		award, err = s.gamification.AwardTx(tx, userID, models.ActionSubmitVideo, AwardRef{})
		return err
	})
	if err != nil {
		// A concurrent submit of the same video wins the unique index
		if existing, lookupErr := s.liveSubmission(ctx, userID, normalized); lookupErr == nil && existing != nil {
			s.metrics.SubmissionCreated(platform, true)
			return &SubmissionResult{Submission: existing, Duplicate: true}, nil
		}
		return nil, err
	}
	s.gamification.Observe(award)
	s.metrics.SubmissionCreated(platform, false)

	sub, err = s.dispatch(ctx, sub)
	if err != nil {
		return nil, err
	}
	return &SubmissionResult{Submission: sub, Award: award}, nil
}

// liveSubmission returns the user's non-failed submission of a video, if any
func (s *SubmissionService) liveSubmission(ctx context.Context, userID uuid.UUID, normalized string) (*models.Submission, error) {
	var existing models.Submission
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND normalized_url = ? AND status <> ?", userID, normalized, models.SubmissionFailed).
		Order("created_at DESC").
		Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check for duplicate submission: %w", err)
	}
	return &existing, nil
}

// dispatch sends a pending submission to the extraction webhook
func (s *SubmissionService) dispatch(ctx context.Context, sub *models.Submission) (*models.Submission, error) {
	log := s.logger.With(zap.String("submission_id", sub.ID.String()))

	res, err := s.client.Submit(ctx, ExtractionRequest{
		SubmissionID: sub.ID,
		UserID:       sub.UserID,
		VideoURL:     sub.VideoURL,
		Platform:     sub.Platform,
	})
	if err != nil {
		log.Warn("Extraction webhook failed", zap.Error(err))
		if err := s.fail(ctx, sub.ID, err.Error()); err != nil {
			return nil, err
		}
		return s.load(ctx, sub.ID)
	}
	if err := s.apply(ctx, sub, res); err != nil {
		log.Warn("Failed to apply extraction result", zap.Error(err))
		if err := s.fail(ctx, sub.ID, err.Error()); err != nil {
			return nil, err
		}
	}
	return s.load(ctx, sub.ID)
}

// apply moves a submission according to an extraction result
func (s *SubmissionService) apply(ctx context.Context, sub *models.Submission, res *ExtractionResult) error {
	switch res.Status {
	case models.SubmissionCompleted:
		recipe := res.Recipe
		externalID := res.RecipeID
		if recipe == nil && externalID != "" {
			fetched, err := s.client.FetchRecipe(ctx, externalID)
			if err != nil {
				if unusableResponse(err) {
					return s.fail(ctx, sub.ID, err.Error())
				}
				return err
			}
			recipe = fetched
		}
		if recipe == nil {
			return s.fail(ctx, sub.ID, msgMissingRecipe)
		}
		if recipe.ExternalID != "" {
			externalID = recipe.ExternalID
		}
		return s.complete(ctx, sub, recipe, externalID)

	case models.SubmissionFailed:
		msg := res.Error
		if msg == "" {
			msg = msgFailed
		}
		return s.fail(ctx, sub.ID, msg)

	default:
		updates := map[string]any{"status": models.SubmissionProcessing}
		if res.JobID != "" {
			updates["job_id"] = res.JobID
		}
		err := s.db.WithContext(ctx).
			Model(&models.Submission{}).
			Where("id = ? AND status IN ?", sub.ID, []models.SubmissionStatus{models.SubmissionPending, models.SubmissionProcessing}).
			Updates(updates).Error
		if err != nil {
			return fmt.Errorf("failed to update submission: %w", err)
		}
		return nil
	}
}

// complete stores the extracted recipe and marks the submission completed
func (s *SubmissionService) complete(ctx context.Context, sub *models.Submission, ext *ExtractedRecipe, externalID string) error {
	recipe := recipeFromExtraction(sub, ext)
	if s.mirror != nil && ext.ThumbnailURL != "" {
		if mirrored, err := s.mirror.Mirror(ctx, ext.ThumbnailURL); err == nil {
			recipe.ThumbnailURL = mirrored
		}
	}

	var award *AwardResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		award, err = s.recipes.SaveTx(tx, recipe)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		res := tx.Model(&models.Submission{}).
			Where("id = ? AND status <> ?", sub.ID, models.SubmissionCompleted).
			Updates(map[string]any{
				"status":             models.SubmissionCompleted,
				"recipe_id":          recipe.ID,
				"external_recipe_id": externalID,
				"error":              "",
				"completed_at":       now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to complete submission: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errAlreadyCompleted
		}
		return nil
	})
	if errors.Is(err, errAlreadyCompleted) {
		return nil
	}
	if err != nil {
		return err
	}

	s.gamification.Observe(award)
	s.metrics.SubmissionFinished(string(models.SubmissionCompleted))
	s.logger.Info("Submission completed",
		zap.String("submission_id", sub.ID.String()),
		zap.String("recipe_id", recipe.ID.String()),
	)
	return nil
}

// fail marks a non-terminal submission failed
func (s *SubmissionService) fail(ctx context.Context, id uuid.UUID, msg string) error {
	res := s.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ? AND status IN ?", id, []models.SubmissionStatus{models.SubmissionPending, models.SubmissionProcessing}).
		Updates(map[string]any{
			"status":       models.SubmissionFailed,
			"error":        truncate(msg, 1000),
			"completed_at": s.now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark submission failed: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.metrics.SubmissionFinished(string(models.SubmissionFailed))
	}
	return nil
}

func recipeFromExtraction(sub *models.Submission, ext *ExtractedRecipe) *models.Recipe {
	subID := sub.ID
	return &models.Recipe{
		UserID:           sub.UserID,
		SubmissionID:     &subID,
		Title:            strings.TrimSpace(ext.Title),
		Description:      ext.Description,
		SourceURL:        sub.VideoURL,
		Platform:         sub.Platform,
		CreatorHandle:    ext.CreatorHandle,
		ThumbnailURL:     ext.ThumbnailURL,
		Ingredients:      ext.Ingredients,
		Instructions:     cleanStrings(ext.Instructions),
		Tags:             cleanStrings(ext.Tags),
		Cuisine:          ext.Cuisine,
		Category:         ext.Category,
		Difficulty:       ext.Difficulty,
		PrepTimeMinutes:  ext.PrepTimeMinutes,
		CookTimeMinutes:  ext.CookTimeMinutes,
		Servings:         ext.Servings,
		Calories:         ext.Calories,
		Protein:          ext.Protein,
		Carbs:            ext.Carbs,
		Fat:              ext.Fat,
		ExternalRecipeID: ext.ExternalID,
	}
}

func (s *SubmissionService) load(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	var sub models.Submission
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("submission %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	return &sub, nil
}

func (s *SubmissionService) owned(ctx context.Context, userID, id uuid.UUID) (*models.Submission, error) {
	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, fmt.Errorf("submission %s: %w", id, types.ErrNotFound)
	}
	return sub, nil
}

// Get returns one of the user's submissions, optionally polling a
// processing submission first.
func (s *SubmissionService) Get(ctx context.Context, userID, id uuid.UUID, refresh bool) (*models.Submission, error) {
	sub, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !refresh || sub.Status != models.SubmissionProcessing {
		return sub, nil
	}
	refreshed, err := s.Refresh(ctx, id)
	if err != nil {
		s.logger.Warn("Refresh failed", zap.String("submission_id", id.String()), zap.Error(err))
		return sub, nil
	}
	return refreshed, nil
}

// Refresh performs one status poll for a submission
func (s *SubmissionService) Refresh(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status.Terminal() || sub.JobID == "" {
		return sub, nil
	}

	res, err := s.client.Status(ctx, sub.JobID)
	if unusableResponse(err) {
		s.logger.Warn("Unusable extraction status", zap.String("submission_id", sub.ID.String()), zap.Error(err))
		if err := s.fail(ctx, sub.ID, err.Error()); err != nil {
			return nil, err
		}
		return s.load(ctx, sub.ID)
	}
	if err != nil {
		if markErr := s.markPolled(ctx, sub.ID); markErr != nil {
			return nil, markErr
		}
		return nil, err
	}
	if res.Status == models.SubmissionProcessing || res.Status == models.SubmissionPending {
		if err := s.markPolled(ctx, sub.ID); err != nil {
			return nil, err
		}
		return s.load(ctx, sub.ID)
	}
	if err := s.apply(ctx, sub, res); err != nil {
		return nil, err
	}
	return s.load(ctx, sub.ID)
}

// unusableResponse reports errors that retrying the same poll cannot fix
func unusableResponse(err error) bool {
	return errors.Is(err, ErrInvalidRecipe) || errors.Is(err, ErrUnrecognizedResponse)
}

func (s *SubmissionService) markPolled(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":       gorm.Expr("attempts + 1"),
			"last_polled_at": s.now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record poll: %w", err)
	}
	return nil
}

// ApplyCallback applies a result posted by the extraction service.
// Callbacks for completed submissions are ignored.
func (s *SubmissionService) ApplyCallback(ctx context.Context, res *ExtractionResult) (*models.Submission, error) {
	var sub models.Submission
	q := s.db.WithContext(ctx)
	switch {
	case res.SubmissionID != nil:
		q = q.Where("id = ?", *res.SubmissionID)
	case res.JobID != "":
		q = q.Where("job_id = ?", res.JobID)
	default:
		return nil, fmt.Errorf("%w: callback carries neither submission_id nor job_id", types.ErrInvalidInput)
	}
	err := q.Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("submission: %w", types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}

	if sub.Status == models.SubmissionCompleted {
		return &sub, nil
	}
	if err := s.apply(ctx, &sub, res); err != nil {
		return nil, err
	}
	return s.load(ctx, sub.ID)
}

// Retry resubmits a failed submission
func (s *SubmissionService) Retry(ctx context.Context, userID, id uuid.UUID) (*models.Submission, error) {
	sub, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.SubmissionFailed {
		return nil, fmt.Errorf("%w: only failed submissions can be retried", types.ErrConflict)
	}

	res := s.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ? AND status = ?", id, models.SubmissionFailed).
		Updates(map[string]any{
			"status":         models.SubmissionPending,
			"error":          "",
			"job_id":         "",
			"attempts":       0,
			"last_polled_at": nil,
			"completed_at":   nil,
			"created_at":     s.now().UTC(),
		})
	if res.Error != nil {
		if live, err := s.liveSubmission(ctx, userID, sub.NormalizedURL); err == nil && live != nil {
			return nil, fmt.Errorf("%w: this video is already being extracted", types.ErrConflict)
		}
		return nil, fmt.Errorf("failed to reset submission: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: submission is already being retried", types.ErrConflict)
	}
	s.logger.Info("Retrying submission", zap.String("submission_id", id.String()))
	return s.dispatch(ctx, sub)
}

// List returns the user's submissions newest first
func (s *SubmissionService) List(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]models.Submission, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Submission{}).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count submissions: %w", err)
	}
	var subs []models.Submission
	err := q.Order("created_at DESC").Limit(clampLimit(limit, 20, 100)).Offset(max(offset, 0)).Find(&subs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list submissions: %w", err)
	}
	return subs, total, nil
}

// DueForPoll returns processing submissions not polled since before cutoff
func (s *SubmissionService) DueForPoll(ctx context.Context, cutoff time.Time, limit int) ([]models.Submission, error) {
	var subs []models.Submission
	err := s.db.WithContext(ctx).
		Where("status = ? AND job_id <> ''", models.SubmissionProcessing).
		Where("last_polled_at IS NULL OR last_polled_at < ?", cutoff).
		Order("last_polled_at IS NOT NULL, last_polled_at ASC, created_at ASC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load pollable submissions: %w", err)
	}
	return subs, nil
}

// FailStale fails unfinished submissions created before cutoff
func (s *SubmissionService) FailStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("status IN ? AND created_at < ?", []models.SubmissionStatus{models.SubmissionPending, models.SubmissionProcessing}, cutoff).
		Updates(map[string]any{
			"status":       models.SubmissionFailed,
			"error":        msgTimedOut,
			"completed_at": s.now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to expire submissions: %w", res.Error)
	}
	for i := int64(0); i < res.RowsAffected; i++ {
		s.metrics.SubmissionFinished(string(models.SubmissionFailed))
	}
	return res.RowsAffected, nil
}
