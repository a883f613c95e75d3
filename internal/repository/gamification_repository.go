package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/retail-gamification/internal/apperrors"
	"github.com/aimd54/retail-gamification/internal/models"
)

// GamificationRepository is the ledger: the per-user aggregate row plus the append-only
// event log and the badge and achievement sets.
type GamificationRepository struct {
	db *DB
}

// NewGamificationRepository creates a new gamification repository.
func NewGamificationRepository(db *DB) *GamificationRepository {
	return &GamificationRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *GamificationRepository) WithTx(tx *DB) *GamificationRepository {
	return &GamificationRepository{db: tx}
}

// EnsureUser inserts the initial aggregate row for userID if none exists yet.
// It reports whether a row was created.
func (r *GamificationRepository) EnsureUser(ctx context.Context, userID uint, level int, avatarURL string) (bool, error) {
	row := &models.UserGamification{
		UserID:           userID,
		CurrentLevel:     level,
		CurrentAvatarURL: avatarURL,
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if res.Error != nil {
		return false, fmt.Errorf("failed to initialize gamification for user %d: %w", userID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// LockUser reads the aggregate row with an exclusive row lock (SELECT ... FOR UPDATE).
// Must be called inside a transaction.
func (r *GamificationRepository) LockUser(ctx context.Context, userID uint) (*models.UserGamification, error) {
	var ug models.UserGamification
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&ug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("user_gamification", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock gamification for user %d: %w", userID, err)
	}
	return &ug, nil
}

// GetUser reads the aggregate row without locking.
func (r *GamificationRepository) GetUser(ctx context.Context, userID uint) (*models.UserGamification, error) {
	var ug models.UserGamification
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&ug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("user_gamification", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get gamification for user %d: %w", userID, err)
	}
	return &ug, nil
}

// SaveUser writes every column of the aggregate row.
func (r *GamificationRepository) SaveUser(ctx context.Context, ug *models.UserGamification) error {
	if err := r.db.WithContext(ctx).Save(ug).Error; err != nil {
		return fmt.Errorf("failed to save gamification for user %d: %w", ug.UserID, err)
	}
	return nil
}

// AppendEvent adds one row to the event log.
func (r *GamificationRepository) AppendEvent(ctx context.Context, event *models.GamificationEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to append %s event for user %d: %w", event.EventType, event.UserID, err)
	}
	return nil
}

// HasEventBetween reports whether the user has an event of eventType with created_at in [start, end).
func (r *GamificationRepository) HasEventBetween(ctx context.Context, userID uint, eventType string, start, end time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.GamificationEvent{}).
		Where("user_id = ? AND event_type = ? AND created_at >= ? AND created_at < ?",
			userID, eventType, start.UTC(), end.UTC()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to look up %s events for user %d: %w", eventType, userID, err)
	}
	return count > 0, nil
}

// ListEvents returns the most recent events for a user, newest first.
func (r *GamificationRepository) ListEvents(ctx context.Context, userID uint, limit int) ([]models.GamificationEvent, error) {
	var events []models.GamificationEvent
	query := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list events for user %d: %w", userID, err)
	}
	return events, nil
}

// AwardBadge inserts a badge row. A duplicate (user, badge type) is reported as
// apperrors.ErrAlreadyAwarded and leaves the existing row untouched.
func (r *GamificationRepository) AwardBadge(ctx context.Context, badge *models.UserBadge) error {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(badge)
	if res.Error != nil {
		return fmt.Errorf("failed to award badge %s to user %d: %w", badge.BadgeType, badge.UserID, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrAlreadyAwarded
	}
	return nil
}

// AwardAchievement inserts a trophy row with the same semantics as AwardBadge.
func (r *GamificationRepository) AwardAchievement(ctx context.Context, achievement *models.UserAchievement) error {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(achievement)
	if res.Error != nil {
		return fmt.Errorf("failed to award trophy %q to user %d: %w", achievement.AchievementName, achievement.UserID, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrAlreadyAwarded
	}
	return nil
}

// ListBadges returns the badges earned by a user, oldest first.
func (r *GamificationRepository) ListBadges(ctx context.Context, userID uint) ([]models.UserBadge, error) {
	var badges []models.UserBadge
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("earned_at ASC, id ASC").
		Find(&badges).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list badges for user %d: %w", userID, err)
	}
	return badges, nil
}

// ListAchievements returns the trophies earned by a user, oldest first.
func (r *GamificationRepository) ListAchievements(ctx context.Context, userID uint) ([]models.UserAchievement, error) {
	var achievements []models.UserAchievement
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("earned_at ASC, id ASC").
		Find(&achievements).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list trophies for user %d: %w", userID, err)
	}
	return achievements, nil
}

// BadgeHolderCounts returns the number of active holders per badge type.
func (r *GamificationRepository) BadgeHolderCounts(ctx context.Context) (map[string]int64, error) {
	type result struct {
		BadgeType string
		Holders   int64
	}

	var results []result
	err := r.db.WithContext(ctx).Model(&models.UserBadge{}).
		Select("badge_type, COUNT(*) AS holders").
		Where("is_active = ?", true).
		Group("badge_type").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count badge holders: %w", err)
	}

	counts := make(map[string]int64, len(results))
	for _, res := range results {
		counts[res.BadgeType] = res.Holders
	}
	return counts, nil
}

// LeaderboardRow is one ranked user on the points leaderboard.
type LeaderboardRow struct {
	UserID       uint   `json:"user_id"`
	Username     string `json:"username"`
	Store        string `json:"store"`
	Role         string `json:"role"`
	TotalPoints  int    `json:"total_points"`
	CurrentLevel int    `json:"current_level"`
	BadgeCount   int64  `json:"badge_count"`
}

// Leaderboard returns active users ordered by total points. An empty store means all stores.
func (r *GamificationRepository) Leaderboard(ctx context.Context, store string, limit int) ([]LeaderboardRow, error) {
	badgeCounts := r.db.Model(&models.UserBadge{}).
		Select("user_id, COUNT(*) AS badge_count").
		Group("user_id")

	query := r.db.WithContext(ctx).Table("user_gamification AS ug").
		Select("ug.user_id, users.username, users.store, users.role, ug.total_points, ug.current_level, COALESCE(bc.badge_count, 0) AS badge_count").
		Joins("JOIN users ON users.id = ug.user_id").
		Joins("LEFT JOIN (?) AS bc ON bc.user_id = ug.user_id", badgeCounts).
		Where("users.is_active = ?", true)

	if store != "" {
		query = query.Where("users.store = ?", store)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []LeaderboardRow
	if err := query.Order("ug.total_points DESC, ug.user_id ASC").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	return rows, nil
}
