package models

import (
	"encoding/json"
	"time"
)

// GamificationEvent types.
const (
	EventPointsEarned   = "points_earned"
	EventPointsLost     = "points_lost"
	EventNoSalesPenalty = "no_sales_penalty"
	EventBestSeller     = "best_seller"
)

// Notification types.
const (
	NotificationBadge           = "badge"
	NotificationTrophy          = "trophy"
	NotificationLevelUp         = "level_up"
	NotificationAdminAdjustment = "admin_adjustment"
	NotificationNoSalesPenalty  = "no_sales_penalty"
	NotificationPenalty         = "penalty"
	NotificationDailyGoal       = "daily_goal"
	NotificationBestSeller      = "best_seller"
)

// Adjustment kinds.
const (
	AdjustmentAdd      = "add"
	AdjustmentSubtract = "subtract"
)

// UserGamification is the per-user aggregate. It is created lazily and only mutated by the scoring engine.
type UserGamification struct {
	UserID                     uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	TotalPoints                int       `gorm:"not null;default:0" json:"total_points"`
	CurrentLevel               int       `gorm:"not null;default:1" json:"current_level"`
	CurrentAvatarURL           string    `gorm:"size:255" json:"current_avatar_url"`
	ConsecutiveBestSellerCount int       `gorm:"not null;default:0" json:"consecutive_best_seller_count"`
	LastBestSellerMonth        *string   `gorm:"size:7" json:"last_best_seller_month"` // YYYY-MM
	CreatedAt                  time.Time `json:"created_at"`
	UpdatedAt                  time.Time `json:"updated_at"`
}

// TableName specifies the table name for UserGamification model.
func (UserGamification) TableName() string {
	return "user_gamification"
}

// UserBadge represents a badge earned by a user. At most one row per (user, badge type).
type UserBadge struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_user_badge,priority:1" json:"user_id"`
	BadgeType string    `gorm:"size:100;not null;uniqueIndex:idx_user_badge,priority:2" json:"badge_type"`
	EarnedAt  time.Time `gorm:"not null" json:"earned_at"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
}

// TableName specifies the table name for UserBadge model.
func (UserBadge) TableName() string {
	return "user_badges"
}

// UserAchievement records a trophy earned by a user. At most one row per (user, trophy name).
type UserAchievement struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"not null;uniqueIndex:idx_user_achievement,priority:1" json:"user_id"`
	AchievementName string    `gorm:"size:150;not null;uniqueIndex:idx_user_achievement,priority:2" json:"achievement_name"`
	PointsEarned    int       `gorm:"not null;default:0" json:"points_earned"`
	EarnedAt        time.Time `gorm:"not null" json:"earned_at"`
}

// TableName specifies the table name for UserAchievement model.
func (UserAchievement) TableName() string {
	return "user_achievements"
}

// GamificationEvent is the append-only audit log. Every point mutation writes exactly one row.
type GamificationEvent struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	UserID    uint            `gorm:"not null;index:idx_events_user_type_time,priority:1" json:"user_id"`
	EventType string          `gorm:"size:50;not null;index:idx_events_user_type_time,priority:2" json:"event_type"`
	EventData json.RawMessage `gorm:"type:jsonb" json:"event_data"`
	CreatedAt time.Time       `gorm:"not null;index:idx_events_user_type_time,priority:3" json:"created_at"`
}

// TableName specifies the table name for GamificationEvent model.
func (GamificationEvent) TableName() string {
	return "gamification_events"
}

// PointsEventData is the payload of points_earned / points_lost events.
type PointsEventData struct {
	Delta       int    `json:"delta"`
	Applied     int    `json:"applied"`
	Reason      string `json:"reason"`
	Source      string `json:"source,omitempty"`
	TotalBefore int    `json:"total_before"`
	TotalAfter  int    `json:"total_after"`
	LevelBefore int    `json:"level_before"`
	LevelAfter  int    `json:"level_after"`
}

// AdminPointAdjustment is an append-only record used by the adjustment guard.
type AdminPointAdjustment struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	AdminID        uint      `gorm:"not null;index:idx_adjust_admin_target,priority:1;index:idx_adjust_admin_time,priority:1" json:"admin_id"`
	UserID         uint      `gorm:"not null;index:idx_adjust_admin_target,priority:2" json:"user_id"`
	PointsAdjusted int       `gorm:"not null" json:"points_adjusted"` // signed
	Reason         string    `gorm:"type:text;not null" json:"reason"`
	AdjustmentType string    `gorm:"size:20;not null" json:"adjustment_type"` // 'add' or 'subtract'
	CreatedAt      time.Time `gorm:"not null;index:idx_adjust_admin_target,priority:3;index:idx_adjust_admin_time,priority:2" json:"created_at"`
}

// TableName specifies the table name for AdminPointAdjustment model.
func (AdminPointAdjustment) TableName() string {
	return "admin_point_adjustments"
}

// GamificationNotification is a message produced for a user. Only IsRead changes after creation.
type GamificationNotification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index:idx_notifications_user,priority:1" json:"user_id"`
	Type      string    `gorm:"size:50;not null" json:"type"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Message   string    `gorm:"type:text" json:"message"`
	Points    *int      `json:"points,omitempty"`
	IconURL   *string   `gorm:"size:255" json:"icon_url,omitempty"`
	IsRead    bool      `gorm:"not null;default:false;index:idx_notifications_user,priority:2" json:"is_read"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

// TableName specifies the table name for GamificationNotification model.
func (GamificationNotification) TableName() string {
	return "gamification_notifications"
}

// DailyGoal tracks progress towards one goal type for one user and day.
type DailyGoal struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"not null;uniqueIndex:idx_daily_goal,priority:1" json:"user_id"`
	GoalType     string     `gorm:"size:50;not null;uniqueIndex:idx_daily_goal,priority:2" json:"goal_type"`
	Day          string     `gorm:"size:10;not null;uniqueIndex:idx_daily_goal,priority:3" json:"day"` // YYYY-MM-DD
	TargetValue  float64    `gorm:"not null" json:"target_value"`
	CurrentValue float64    `gorm:"not null;default:0" json:"current_value"`
	Completed    bool       `gorm:"not null;default:false" json:"completed"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName specifies the table name for DailyGoal model.
func (DailyGoal) TableName() string {
	return "daily_goals"
}

// MonthlySellerStats holds a seller's totals for one calendar month.
type MonthlySellerStats struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;uniqueIndex:idx_monthly_stats,priority:1" json:"user_id"`
	Month        string    `gorm:"size:7;not null;uniqueIndex:idx_monthly_stats,priority:2;index" json:"month"` // YYYY-MM
	TotalSales   float64   `gorm:"type:decimal(14,2);not null;default:0" json:"total_sales"`
	SalesCount   int       `gorm:"not null;default:0" json:"sales_count"`
	IsBestSeller bool      `gorm:"not null;default:false" json:"is_best_seller"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for MonthlySellerStats model.
func (MonthlySellerStats) TableName() string {
	return "monthly_seller_stats"
}
