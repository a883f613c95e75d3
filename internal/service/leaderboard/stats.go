package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aimd54/retail-gamification/internal/apperrors"
	"github.com/aimd54/retail-gamification/internal/models"
	"github.com/aimd54/retail-gamification/internal/ruleset"
	"github.com/aimd54/retail-gamification/internal/service/eligibility"
)

// recentEventLimit bounds the event history embedded in a profile.
const recentEventLimit = 20

// BadgeView is an earned badge joined with its configured definition.
type BadgeView struct {
	Type        string    `json:"type"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IconURL     string    `json:"icon_url"`
	EarnedAt    time.Time `json:"earned_at"`
}

// TrophyView is an earned trophy joined with its configured definition.
type TrophyView struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Category     ruleset.TrophyCategory `json:"category"`
	IconURL      string                 `json:"icon_url"`
	PointsEarned int                    `json:"points_earned"`
	EarnedAt     time.Time              `json:"earned_at"`
}

// UserProfile represents the complete gamification state of a user.
type UserProfile struct {
	UserID              uint                       `json:"user_id"`
	Username            string                     `json:"username"`
	Store               string                     `json:"store"`
	Role                string                     `json:"role"`
	Period              ruleset.Period             `json:"period"`
	TotalPoints         int                        `json:"total_points"`
	Level               ruleset.AvatarLevel        `json:"level"`
	NextLevel           *ruleset.AvatarLevel       `json:"next_level,omitempty"`
	PointsToNextLevel   int                        `json:"points_to_next_level"`
	AvatarURL           string                     `json:"avatar_url"`
	BestSellerStreak    int                        `json:"best_seller_streak"`
	LastBestSellerMonth *string                    `json:"last_best_seller_month,omitempty"`
	Sales               models.SalesTotals         `json:"sales"`
	Badges              []BadgeView                `json:"badges"`
	Trophies            []TrophyView               `json:"trophies"`
	RecentEvents        []models.GamificationEvent `json:"recent_events"`
	UnreadNotifications int64                      `json:"unread_notifications"`
	GlobalRank          int                        `json:"global_rank"`
	StoreRank           int                        `json:"store_rank"`
}

// BadgeSummary is a configured badge with its number of active holders.
type BadgeSummary struct {
	ruleset.Badge
	Holders int64 `json:"holders"`
}

// GetUserProfile returns the gamification profile of a user, with sales totals for period.
func (s *Service) GetUserProfile(ctx context.Context, userID uint, period ruleset.Period) (*UserProfile, error) {
	if period == "" {
		period = ruleset.PeriodMonthly
	}
	start, end, ok := eligibility.PeriodRange(period, s.now(), s.loc)
	if !ok {
		return nil, apperrors.Invalid("period", "unknown period %q", period)
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, apperrors.Classify("profile", err)
	}

	rs := s.rules.Current()
	profile := &UserProfile{
		UserID:   user.ID,
		Username: user.Username,
		Store:    user.Store,
		Role:     user.Role,
		Period:   period,
	}

	ug, err := s.ledgerRepo.GetUser(ctx, userID)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		ug = &models.UserGamification{UserID: userID}
	case err != nil:
		return nil, apperrors.Classify("profile", err)
	}
	profile.TotalPoints = ug.TotalPoints
	profile.BestSellerStreak = ug.ConsecutiveBestSellerCount
	profile.LastBestSellerMonth = ug.LastBestSellerMonth
	profile.Level = eligibility.LevelFor(rs, ug.TotalPoints)
	profile.AvatarURL = profile.Level.AvatarURL
	if next, ok := nextLevel(rs, profile.Level); ok {
		profile.NextLevel = &next
		profile.PointsToNextLevel = next.RequiredPoints - ug.TotalPoints
	}

	profile.Sales, err = s.salesRepo.Totals(ctx, userID, start, end)
	if err != nil {
		return nil, apperrors.Classify("profile", fmt.Errorf("failed to aggregate sales: %w", err))
	}

	if profile.Badges, err = s.badgeViews(ctx, rs, userID); err != nil {
		return nil, apperrors.Classify("profile", err)
	}
	if profile.Trophies, err = s.trophyViews(ctx, rs, userID); err != nil {
		return nil, apperrors.Classify("profile", err)
	}

	profile.RecentEvents, err = s.ledgerRepo.ListEvents(ctx, userID, recentEventLimit)
	if err != nil {
		return nil, apperrors.Classify("profile", err)
	}

	profile.UnreadNotifications, err = s.notificationRepo.CountUnread(ctx, userID)
	if err != nil {
		return nil, apperrors.Classify("profile", err)
	}

	// Ranks are informational; a user without an aggregate row is simply unranked.
	if rank, err := s.GetUserRank(ctx, userID, ""); err == nil {
		profile.GlobalRank = rank
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		s.log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to compute global rank")
	}
	if user.Store != "" {
		if rank, err := s.GetUserRank(ctx, userID, user.Store); err == nil {
			profile.StoreRank = rank
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			s.log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to compute store rank")
		}
	}

	return profile, nil
}

// GetUserBadges returns the badges a user has earned.
func (s *Service) GetUserBadges(ctx context.Context, userID uint) ([]BadgeView, error) {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return nil, apperrors.Classify("user badges", err)
	}
	views, err := s.badgeViews(ctx, s.rules.Current(), userID)
	if err != nil {
		return nil, apperrors.Classify("user badges", err)
	}
	return views, nil
}

// ListBadges returns every configured active badge with its holder count.
func (s *Service) ListBadges(ctx context.Context) ([]BadgeSummary, error) {
	counts, err := s.ledgerRepo.BadgeHolderCounts(ctx)
	if err != nil {
		return nil, apperrors.Classify("list badges", err)
	}

	var summaries []BadgeSummary
	for _, badge := range s.rules.Current().Badges {
		if !badge.IsActive {
			continue
		}
		summaries = append(summaries, BadgeSummary{Badge: badge, Holders: counts[badge.Type]})
	}
	return summaries, nil
}

// ListTrophies returns every configured active trophy.
func (s *Service) ListTrophies() []ruleset.Trophy {
	var trophies []ruleset.Trophy
	for _, trophy := range s.rules.Current().Trophies {
		if trophy.IsActive {
			trophies = append(trophies, trophy)
		}
	}
	return trophies
}

func (s *Service) badgeViews(ctx context.Context, rs *ruleset.Ruleset, userID uint) ([]BadgeView, error) {
	badges, err := s.ledgerRepo.ListBadges(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]BadgeView, 0, len(badges))
	for _, b := range badges {
		if !b.IsActive {
			continue
		}
		view := BadgeView{Type: b.BadgeType, Name: b.BadgeType, EarnedAt: b.EarnedAt}
		// Badges removed from the ruleset keep their type as name.
		if def, ok := rs.Badge(b.BadgeType); ok {
			view.Name = def.Name
			view.Description = def.Description
			view.IconURL = def.IconURL
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *Service) trophyViews(ctx context.Context, rs *ruleset.Ruleset, userID uint) ([]TrophyView, error) {
	achievements, err := s.ledgerRepo.ListAchievements(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]TrophyView, 0, len(achievements))
	for _, a := range achievements {
		view := TrophyView{Name: a.AchievementName, PointsEarned: a.PointsEarned, EarnedAt: a.EarnedAt}
		if def, ok := rs.Trophy(a.AchievementName); ok {
			view.Description = def.Description
			view.Category = def.Category
			view.IconURL = def.IconURL
		}
		views = append(views, view)
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].EarnedAt.Before(views[j].EarnedAt)
	})
	return views, nil
}

// nextLevel returns the level after current, if any.
func nextLevel(rs *ruleset.Ruleset, current ruleset.AvatarLevel) (ruleset.AvatarLevel, bool) {
	for _, level := range rs.SortedLevels() {
		if level.RequiredPoints > current.RequiredPoints {
			return level, true
		}
	}
	return ruleset.AvatarLevel{}, false
}
