// Package notify serves the persisted notification stream: per-user listing, read marking and
// the periodic Mattermost digest.
package notify

import (
	"context"
	"time"

	"github.com/aimd54/retail-gamification/internal/apperrors"
	"github.com/aimd54/retail-gamification/internal/mattermost"
	"github.com/aimd54/retail-gamification/internal/models"
	"github.com/aimd54/retail-gamification/internal/repository"
	"github.com/aimd54/retail-gamification/pkg/logger"
)

// DefaultListLimit caps listings when the caller gives no limit.
const DefaultListLimit = 50

// NotificationRepository interface for notification persistence.
type NotificationRepository interface {
	ListByUser(ctx context.Context, userID uint, unreadOnly bool, limit int) ([]models.GamificationNotification, error)
	CountUnread(ctx context.Context, userID uint) (int64, error)
	MarkRead(ctx context.Context, userID, notificationID uint) error
	ListBetween(ctx context.Context, since, until time.Time) ([]models.GamificationNotification, error)
}

// UserRepository interface for user lookups.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// DigestSender posts a digest to a chat channel.
type DigestSender interface {
	SendDigest(ctx context.Context, since time.Time, entries []mattermost.DigestEntry) error
}

// Service exposes the notification stream.
type Service struct {
	notifications NotificationRepository
	users         UserRepository
	sender        DigestSender
	log           *logger.Logger
}

// NewService creates a notification service with concrete repository types. sender may be nil.
func NewService(
	notifications *repository.NotificationRepository,
	users *repository.UserRepository,
	sender DigestSender,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(notifications, users, sender, log)
}

// NewServiceWithInterfaces creates a notification service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	notifications NotificationRepository,
	users UserRepository,
	sender DigestSender,
	log *logger.Logger,
) *Service {
	return &Service{
		notifications: notifications,
		users:         users,
		sender:        sender,
		log:           log.Component("notify"),
	}
}

// Listing is a page of a user's notifications.
type Listing struct {
	Notifications []models.GamificationNotification `json:"notifications"`
	Unread        int64                             `json:"unread"`
}

// List returns a user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID uint, unreadOnly bool, limit int) (*Listing, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, apperrors.Classify("list notifications", err)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	notifications, err := s.notifications.ListByUser(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, apperrors.Classify("list notifications", err)
	}
	unread, err := s.notifications.CountUnread(ctx, userID)
	if err != nil {
		return nil, apperrors.Classify("list notifications", err)
	}

	if notifications == nil {
		notifications = []models.GamificationNotification{}
	}
	return &Listing{Notifications: notifications, Unread: unread}, nil
}

// MarkRead flags a notification as read. It fails with not found when the notification does not
// belong to the user.
func (s *Service) MarkRead(ctx context.Context, userID, notificationID uint) error {
	if err := s.notifications.MarkRead(ctx, userID, notificationID); err != nil {
		return apperrors.Classify("mark notification read", err)
	}
	s.log.Debug().Uint("user_id", userID).Uint("notification_id", notificationID).Msg("Notification marked as read")
	return nil
}

// SendDigest posts every notification created in [since, until), grouped per user. It returns
// the number of users included.
func (s *Service) SendDigest(ctx context.Context, since, until time.Time) (int, error) {
	if s.sender == nil {
		return 0, nil
	}

	notifications, err := s.notifications.ListBetween(ctx, since, until)
	if err != nil {
		return 0, apperrors.Classify("digest", err)
	}

	entries := s.buildDigest(ctx, notifications)
	if len(entries) == 0 {
		return 0, nil
	}
	if err := s.sender.SendDigest(ctx, since, entries); err != nil {
		return 0, err
	}

	s.log.Info().Int("users", len(entries)).Int("notifications", len(notifications)).Msg("Digest sent")
	return len(entries), nil
}

// buildDigest groups notifications by user in order of first appearance.
func (s *Service) buildDigest(ctx context.Context, notifications []models.GamificationNotification) []mattermost.DigestEntry {
	index := make(map[uint]int)
	var entries []mattermost.DigestEntry

	for _, n := range notifications {
		i, ok := index[n.UserID]
		if !ok {
			entry := mattermost.DigestEntry{Username: "unknown"}
			user, err := s.users.GetByID(ctx, n.UserID)
			if err != nil {
				s.log.Warn().Err(err).Uint("user_id", n.UserID).Msg("Failed to resolve digest user")
			} else {
				entry.Username = user.Username
				entry.Store = user.Store
			}
			i = len(entries)
			index[n.UserID] = i
			entries = append(entries, entry)
		}

		entries[i].Titles = append(entries[i].Titles, n.Title)
		if n.Points != nil {
			entries[i].Points += *n.Points
		}
	}
	return entries
}
