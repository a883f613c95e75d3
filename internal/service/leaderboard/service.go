// Package leaderboard provides the points leaderboard and the user gamification profile.
package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/aimd54/retail-gamification/internal/apperrors"
	prommetrics "github.com/aimd54/retail-gamification/internal/metrics"
	"github.com/aimd54/retail-gamification/internal/models"
	"github.com/aimd54/retail-gamification/internal/repository"
	"github.com/aimd54/retail-gamification/internal/ruleset"
	"github.com/aimd54/retail-gamification/pkg/logger"
)

// LedgerRepository interface for gamification ledger reads.
type LedgerRepository interface {
	Leaderboard(ctx context.Context, store string, limit int) ([]repository.LeaderboardRow, error)
	GetUser(ctx context.Context, userID uint) (*models.UserGamification, error)
	ListBadges(ctx context.Context, userID uint) ([]models.UserBadge, error)
	ListAchievements(ctx context.Context, userID uint) ([]models.UserAchievement, error)
	ListEvents(ctx context.Context, userID uint, limit int) ([]models.GamificationEvent, error)
	BadgeHolderCounts(ctx context.Context) (map[string]int64, error)
}

// UserRepository interface for user operations.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// SalesRepository interface for sales aggregates.
type SalesRepository interface {
	Totals(ctx context.Context, sellerID uint, start, end time.Time) (models.SalesTotals, error)
}

// NotificationRepository interface for notification counters.
type NotificationRepository interface {
	CountUnread(ctx context.Context, userID uint) (int64, error)
}

// Entry represents a single entry in a leaderboard.
type Entry struct {
	UserID      uint   `json:"user_id"`
	Username    string `json:"username"`
	Store       string `json:"store"`
	Role        string `json:"role"`
	TotalPoints int    `json:"total_points"`
	Level       int    `json:"level"`
	LevelName   string `json:"level_name"`
	BadgeCount  int    `json:"badge_count"`
	Rank        int    `json:"rank"`
}

// Service handles leaderboard generation and user profiles.
type Service struct {
	ledgerRepo       LedgerRepository
	userRepo         UserRepository
	salesRepo        SalesRepository
	notificationRepo NotificationRepository
	rules            *ruleset.Store
	loc              *time.Location
	now              func() time.Time
	log              *logger.Logger
}

// NewService creates a new leaderboard service with concrete repository types.
func NewService(
	ledgerRepo *repository.GamificationRepository,
	userRepo *repository.UserRepository,
	salesRepo *repository.SalesRepository,
	notificationRepo *repository.NotificationRepository,
	rules *ruleset.Store,
	loc *time.Location,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(ledgerRepo, userRepo, salesRepo, notificationRepo, rules, loc, log)
}

// NewServiceWithInterfaces creates a new leaderboard service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	ledgerRepo LedgerRepository,
	userRepo UserRepository,
	salesRepo SalesRepository,
	notificationRepo NotificationRepository,
	rules *ruleset.Store,
	loc *time.Location,
	log *logger.Logger,
) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		ledgerRepo:       ledgerRepo,
		userRepo:         userRepo,
		salesRepo:        salesRepo,
		notificationRepo: notificationRepo,
		rules:            rules,
		loc:              loc,
		now:              time.Now,
		log:              log.Component("leaderboard"),
	}
}

// SetClock replaces the time source used for period ranges.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// GetGlobalLeaderboard returns the leaderboard across every store.
func (s *Service) GetGlobalLeaderboard(ctx context.Context, limit int) ([]Entry, error) {
	return s.getLeaderboard(ctx, "", limit)
}

// GetStoreLeaderboard returns the leaderboard for a specific store.
func (s *Service) GetStoreLeaderboard(ctx context.Context, store string, limit int) ([]Entry, error) {
	if store == "" {
		return nil, apperrors.Invalid("store", "must not be empty")
	}
	return s.getLeaderboard(ctx, store, limit)
}

func (s *Service) getLeaderboard(ctx context.Context, store string, limit int) ([]Entry, error) {
	rows, err := s.ledgerRepo.Leaderboard(ctx, store, limit)
	if err != nil {
		return nil, apperrors.Classify("leaderboard", err)
	}

	rs := s.rules.Current()
	entries := make([]Entry, 0, len(rows))
	for i, row := range rows {
		entry := Entry{
			UserID:      row.UserID,
			Username:    row.Username,
			Store:       row.Store,
			Role:        row.Role,
			TotalPoints: row.TotalPoints,
			Level:       row.CurrentLevel,
			BadgeCount:  int(row.BadgeCount),
			Rank:        i + 1,
		}
		if level, ok := rs.Level(row.CurrentLevel); ok {
			entry.LevelName = level.Name
		}
		// Equal balances share the better rank.
		if i > 0 && entries[i-1].TotalPoints == row.TotalPoints {
			entry.Rank = entries[i-1].Rank
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// GetUserRank returns the rank of a user on the global or store leaderboard.
func (s *Service) GetUserRank(ctx context.Context, userID uint, store string) (int, error) {
	leaderboard, err := s.getLeaderboard(ctx, store, 0)
	if err != nil {
		return 0, err
	}

	for _, entry := range leaderboard {
		if entry.UserID == userID {
			return entry.Rank, nil
		}
	}

	return 0, apperrors.NotFound("leaderboard entry", userID)
}

// RefreshBadgeHolders publishes the number of active holders of every configured badge.
func (s *Service) RefreshBadgeHolders(ctx context.Context) error {
	counts, err := s.ledgerRepo.BadgeHolderCounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to count badge holders: %w", err)
	}

	for _, badge := range s.rules.Current().Badges {
		prommetrics.SetActiveBadgeHolders(badge.Type, counts[badge.Type])
	}
	return nil
}
