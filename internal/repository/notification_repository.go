package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aimd54/retail-gamification/internal/apperrors"
	"github.com/aimd54/retail-gamification/internal/models"
)

// NotificationRepository is the durable notification sink.
type NotificationRepository struct {
	db *DB
}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *NotificationRepository) WithTx(tx *DB) *NotificationRepository {
	return &NotificationRepository{db: tx}
}

// CreateBatch inserts notifications in one statement. An empty slice is a no-op.
func (r *NotificationRepository) CreateBatch(ctx context.Context, notifications []*models.GamificationNotification) error {
	if len(notifications) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(notifications).Error; err != nil {
		return fmt.Errorf("failed to create %d notifications: %w", len(notifications), err)
	}
	return nil
}

// ListByUser returns a user's notifications, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID uint, unreadOnly bool, limit int) ([]models.GamificationNotification, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var notifications []models.GamificationNotification
	if err := query.Order("created_at DESC, id DESC").Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications for user %d: %w", userID, err)
	}
	return notifications, nil
}

// CountUnread returns the number of unread notifications for a user.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.GamificationNotification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count notifications for user %d: %w", userID, err)
	}
	return count, nil
}

// MarkRead flags one of the user's notifications as read. Marking an already read
// notification succeeds.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, notificationID uint) error {
	res := r.db.WithContext(ctx).Model(&models.GamificationNotification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("is_read", true)
	if res.Error != nil {
		return fmt.Errorf("failed to mark notification %d as read: %w", notificationID, res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.GamificationNotification{}).
			Where("id = ? AND user_id = ?", notificationID, userID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to look up notification %d: %w", notificationID, err)
		}
		if count == 0 {
			return apperrors.NotFound("notification", notificationID)
		}
	}
	return nil
}

// ListBetween returns notifications created in [since, until), oldest first.
func (r *NotificationRepository) ListBetween(ctx context.Context, since, until time.Time) ([]models.GamificationNotification, error) {
	var notifications []models.GamificationNotification
	err := r.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", since.UTC(), until.UTC()).
		Order("created_at ASC, id ASC").
		Find(&notifications).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications since %s: %w", since.Format(time.RFC3339), err)
	}
	return notifications, nil
}
