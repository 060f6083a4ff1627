package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pageza/reelkitchen/backend/internal/metrics"
	"github.com/pageza/reelkitchen/backend/internal/models"
	"github.com/pageza/reelkitchen/backend/internal/types"
)

// PointValues is the fixed reward per action
var PointValues = map[string]int{
	models.ActionSubmitVideo:  5,
	models.ActionRecipeSaved:  20,
	models.ActionRecipeCooked: 15,
	models.ActionRouletteSpin: 2,
}

const (
	StreakBonusPoints = 50
	StreakBonusEvery  = 7
	PointsPerLevel    = 100
)

// AwardRef links a ledger entry to the object that earned it
type AwardRef struct {
	RecipeID *uuid.UUID
}

// AwardResult reports what a single Award changed
type AwardResult struct {
	Action              string
	PointsAwarded       int
	TotalPoints         int
	Level               int
	LeveledUp           bool
	CurrentStreak       int
	CompletedChallenges []string
}

// Response converts the result into its API form
func (r *AwardResult) Response() types.AwardResponse {
	return types.AwardResponse{
		Action:              r.Action,
		PointsAwarded:       r.PointsAwarded,
		TotalPoints:         r.TotalPoints,
		Level:               r.Level,
		LeveledUp:           r.LeveledUp,
		CurrentStreak:       r.CurrentStreak,
		CompletedChallenges: r.CompletedChallenges,
	}
}

// ChallengeStatus is a challenge together with the caller's progress in the current period
type ChallengeStatus struct {
	models.Challenge
	PeriodKey   string     `json:"period_key"`
	Progress    int        `json:"progress"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// GamificationService manages points, streaks and challenges
type GamificationService struct {
	db      *gorm.DB
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewGamificationService creates a new GamificationService
func NewGamificationService(db *gorm.DB, m *metrics.Metrics, log *zap.Logger) *GamificationService {
	return &GamificationService{
		db:      db,
		now:     time.Now,
		metrics: m,
		logger:  log.Named("gamification"),
	}
}

// SetClock replaces the time source
func (s *GamificationService) SetClock(now func() time.Time) {
	s.now = now
}

// Award records an action in its own transaction
func (s *GamificationService) Award(ctx context.Context, userID uuid.UUID, action string, ref AwardRef) (*AwardResult, error) {
	var result *AwardResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.AwardTx(tx, userID, action, ref)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Observe(result)
	return result, nil
}

// Observe reports a committed award to metrics and logs. Callers using
// AwardTx invoke it after their transaction commits.
func (s *GamificationService) Observe(result *AwardResult) {
	if result == nil {
		return
	}
	s.metrics.PointsAwarded(result.Action, result.PointsAwarded)
	if result.LeveledUp || len(result.CompletedChallenges) > 0 {
		s.logger.Info("Milestone reached",
			zap.String("action", result.Action),
			zap.Int("level", result.Level),
			zap.Strings("challenges", result.CompletedChallenges),
		)
	}
}

// AwardTx records an action inside the caller's transaction
func (s *GamificationService) AwardTx(tx *gorm.DB, userID uuid.UUID, action string, ref AwardRef) (*AwardResult, error) {
	points, ok := PointValues[action]
	if !ok {
		return nil, fmt.Errorf("%w: unknown action %q", types.ErrInvalidInput, action)
	}

	now := s.now().UTC()
	stats, err := lockStats(tx, userID)
	if err != nil {
		return nil, err
	}
	levelBefore := stats.Level

	result := &AwardResult{Action: action}
	if err := addPoints(tx, stats, userID, action, points, ref.RecipeID, nil); err != nil {
		return nil, err
	}
	result.PointsAwarded = points

	switch action {
	case models.ActionRecipeSaved:
		stats.RecipesSaved++
	case models.ActionRecipeCooked:
		stats.RecipesCooked++
	}

	if advanceStreak(stats, now) && stats.CurrentStreak%StreakBonusEvery == 0 {
		if err := addPoints(tx, stats, userID, models.ActionStreakBonus, StreakBonusPoints, nil, nil); err != nil {
			return nil, err
		}
		result.PointsAwarded += StreakBonusPoints
	}

	completed, reward, err := s.advanceChallenges(tx, stats, userID, action, now)
	if err != nil {
		return nil, err
	}
	result.CompletedChallenges = completed
	result.PointsAwarded += reward

	stats.Level = stats.Points/PointsPerLevel + 1
	if err := tx.Save(stats).Error; err != nil {
		return nil, fmt.Errorf("failed to save stats: %w", err)
	}

	result.TotalPoints = stats.Points
	result.Level = stats.Level
	result.LeveledUp = stats.Level > levelBefore
	result.CurrentStreak = stats.CurrentStreak
	return result, nil
}

func lockStats(tx *gorm.DB, userID uuid.UUID) (*models.UserStats, error) {
	seed := models.UserStats{UserID: userID, Level: 1}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, fmt.Errorf("failed to initialise stats: %w", err)
	}

	var stats models.UserStats
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.First(&stats, "user_id = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	return &stats, nil
}

func addPoints(tx *gorm.DB, stats *models.UserStats, userID uuid.UUID, action string, points int, recipeID, challengeID *uuid.UUID) error {
	event := models.PointEvent{
		UserID:      userID,
		Action:      action,
		Points:      points,
		RecipeID:    recipeID,
		ChallengeID: challengeID,
	}
	if err := tx.Create(&event).Error; err != nil {
		return fmt.Errorf("failed to record points: %w", err)
	}
	stats.Points += points
	return nil
}

// advanceStreak applies one activity on now's UTC day and reports whether
// the streak grew
func advanceStreak(stats *models.UserStats, now time.Time) bool {
	today := utcDay(now)
	grew := false
	switch {
	case stats.LastActiveOn == nil:
		stats.CurrentStreak = 1
		grew = true
	default:
		gap := int(today.Sub(utcDay(*stats.LastActiveOn)).Hours() / 24)
		switch {
		case gap <= 0:
			if stats.CurrentStreak == 0 {
				stats.CurrentStreak = 1
				grew = true
			}
		case gap == 1:
			stats.CurrentStreak++
			grew = true
		default:
			stats.CurrentStreak = 1
			grew = true
		}
	}
	if stats.CurrentStreak > stats.LongestStreak {
		stats.LongestStreak = stats.CurrentStreak
	}
	stats.LastActiveOn = &today
	return grew
}

func (s *GamificationService) advanceChallenges(tx *gorm.DB, stats *models.UserStats, userID uuid.UUID, action string, now time.Time) ([]string, int, error) {
	var challenges []models.Challenge
	if err := tx.Where("action = ? AND active = ?", action, true).Order("code").Find(&challenges).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to load challenges: %w", err)
	}

	var completed []string
	reward := 0
	for i := range challenges {
		ch := &challenges[i]
		if !ch.ActiveAt(now) {
			continue
		}

		progress := models.ChallengeProgress{UserID: userID, ChallengeID: ch.ID, PeriodKey: PeriodKey(ch.Period, now)}
		if err := tx.Where(&progress).FirstOrCreate(&progress).Error; err != nil {
			return nil, 0, fmt.Errorf("failed to load challenge progress: %w", err)
		}
		if progress.CompletedAt != nil {
			continue
		}

		progress.Progress++
		if progress.Progress >= ch.Target {
			progress.CompletedAt = &now
			if err := addPoints(tx, stats, userID, models.ActionChallengeCompleted, ch.RewardPoints, nil, &ch.ID); err != nil {
				return nil, 0, err
			}
			reward += ch.RewardPoints
			completed = append(completed, ch.Code)
		}
		if err := tx.Save(&progress).Error; err != nil {
			return nil, 0, fmt.Errorf("failed to save challenge progress: %w", err)
		}
	}
	return completed, reward, nil
}

// PeriodKey buckets a time into a challenge period: "all", a UTC date or an ISO week
func PeriodKey(period string, t time.Time) string {
	t = t.UTC()
	switch period {
	case models.PeriodDaily:
		return t.Format("2006-01-02")
	case models.PeriodWeekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	default:
		return "all"
	}
}

func utcDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Stats returns the user's stats; users who never earned points get zero stats
func (s *GamificationService) Stats(ctx context.Context, userID uuid.UUID) (*models.UserStats, error) {
	var stats models.UserStats
	err := s.db.WithContext(ctx).First(&stats, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.UserStats{UserID: userID, Level: 1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	stats.CurrentStreak = s.liveStreak(stats.CurrentStreak, stats.LastActiveOn)
	return &stats, nil
}

// liveStreak reads 0 once a full UTC day has passed without activity
func (s *GamificationService) liveStreak(streak int, lastActive *time.Time) int {
	if lastActive == nil {
		return 0
	}
	if utcDay(s.now()).Sub(utcDay(*lastActive)) > 24*time.Hour {
		return 0
	}
	return streak
}

// Ledger returns the newest point events first
func (s *GamificationService) Ledger(ctx context.Context, userID uuid.UUID, limit int) ([]models.PointEvent, error) {
	var events []models.PointEvent
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(clampLimit(limit, 20, 100)).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load point events: %w", err)
	}
	return events, nil
}

// Challenges lists the currently active challenges with the user's progress
func (s *GamificationService) Challenges(ctx context.Context, userID uuid.UUID) ([]ChallengeStatus, error) {
	now := s.now().UTC()
	db := s.db.WithContext(ctx)

	var challenges []models.Challenge
	if err := db.Where("active = ?", true).Order("code").Find(&challenges).Error; err != nil {
		return nil, fmt.Errorf("failed to load challenges: %w", err)
	}

	var ids []uuid.UUID
	for _, ch := range challenges {
		ids = append(ids, ch.ID)
	}
	var progress []models.ChallengeProgress
	if len(ids) > 0 {
		if err := db.Where("user_id = ? AND challenge_id IN ?", userID, ids).Find(&progress).Error; err != nil {
			return nil, fmt.Errorf("failed to load challenge progress: %w", err)
		}
	}
	byKey := make(map[string]models.ChallengeProgress, len(progress))
	for _, p := range progress {
		byKey[p.ChallengeID.String()+"|"+p.PeriodKey] = p
	}

	out := make([]ChallengeStatus, 0, len(challenges))
	for _, ch := range challenges {
		if !ch.ActiveAt(now) {
			continue
		}
		status := ChallengeStatus{Challenge: ch, PeriodKey: PeriodKey(ch.Period, now)}
		if p, ok := byKey[ch.ID.String()+"|"+status.PeriodKey]; ok {
			status.Progress = p.Progress
			status.Completed = p.CompletedAt != nil
			status.CompletedAt = p.CompletedAt
		}
		out = append(out, status)
	}
	return out, nil
}

type leaderboardRow struct {
	UserID        uuid.UUID
	DisplayName   string
	Points        int
	Level         int
	CurrentStreak int
	LastActiveOn  *time.Time
}

// Leaderboard ranks users by points
func (s *GamificationService) Leaderboard(ctx context.Context, limit int) ([]types.LeaderboardEntry, error) {
	var rows []leaderboardRow
	err := s.db.WithContext(ctx).
		Table("user_stats").
		Select("user_stats.user_id, users.display_name, user_stats.points, user_stats.level, user_stats.current_streak, user_stats.last_active_on").
		Joins("JOIN users ON users.id = user_stats.user_id AND users.deleted_at IS NULL").
		Order("user_stats.points DESC, user_stats.user_id").
		Limit(clampLimit(limit, 10, 100)).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}

	entries := make([]types.LeaderboardEntry, len(rows))
	for i, r := range rows {
		entries[i] = types.LeaderboardEntry{
			Rank:          i + 1,
			UserID:        r.UserID,
			DisplayName:   r.DisplayName,
			Points:        r.Points,
			Level:         r.Level,
			CurrentStreak: s.liveStreak(r.CurrentStreak, r.LastActiveOn),
		}
	}
	return entries, nil
}

// UpsertChallenges inserts or updates challenges keyed by code
func (s *GamificationService) UpsertChallenges(ctx context.Context, challenges []models.Challenge) error {
	if len(challenges) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "description", "action", "target", "reward_points",
			"period", "starts_at", "ends_at", "active", "updated_at",
		}),
	}).Create(&challenges).Error
	if err != nil {
		return fmt.Errorf("failed to upsert challenges: %w", err)
	}
	return nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
