// Package ruleset holds the gamification scoring rules: point values, multipliers, penalties,
// daily goals, admin limits, avatar levels, badges and trophies.
package ruleset

import (
	"fmt"
	"math"
	"sort"
)

// Goal types tracked per user and day.
const (
	GoalSalesCount           = "sales_count"
	GoalSalesAmount          = "sales_amount"
	GoalProductsSold         = "products_sold"
	GoalCustomerSatisfaction = "customer_satisfaction"
)

// Point sources in BasePoints.
const (
	PointsSaleCompleted        = "sale_completed"
	PointsProductSold          = "product_sold"
	PointsCustomerSatisfaction = "customer_satisfaction"
	PointsTrainingCompleted    = "training_completed"
	PointsPerfectAttendance    = "perfect_attendance"
)

// Multiplier conditions.
const (
	MultiplierWeekendSale    = "weekend_sale"
	MultiplierHolidaySale    = "holiday_sale"
	MultiplierPremiumProduct = "premium_product"
	MultiplierNewCustomer    = "new_customer"
	MultiplierRepeatCustomer = "repeat_customer"
)

// Penalty names.
const (
	PenaltyLateArrival       = "late_arrival"
	PenaltyCustomerComplaint = "customer_complaint"
	PenaltyProductReturn     = "product_return"
	PenaltyMissedTarget      = "missed_target"
	PenaltyTrainingMissed    = "training_missed"
	PenaltyNoSalesDaily      = "no_sales_daily"
)

// TrophyCategory groups trophies by how they are evaluated.
type TrophyCategory string

// Trophy categories.
const (
	CategoryMonthly     TrophyCategory = "monthly"
	CategoryQuarterly   TrophyCategory = "quarterly"
	CategoryYearly      TrophyCategory = "yearly"
	CategorySpecial     TrophyCategory = "special"
	CategoryConsecutive TrophyCategory = "consecutive"
)

// Valid reports whether c is a known category.
func (c TrophyCategory) Valid() bool {
	switch c {
	case CategoryMonthly, CategoryQuarterly, CategoryYearly, CategorySpecial, CategoryConsecutive:
		return true
	}
	return false
}

// Operator compares a measured value with a criterion threshold.
type Operator string

// OperatorGreaterThan is the only comparison currently defined.
const OperatorGreaterThan Operator = "greater_than"

// Period names a calendar window for trophy criteria.
type Period string

// Supported periods.
const (
	PeriodDaily     Period = "daily"
	PeriodWeekly    Period = "weekly"
	PeriodMonthly   Period = "monthly"
	PeriodQuarterly Period = "quarterly"
	PeriodYearly    Period = "yearly"
	PeriodAllTime   Period = "all_time"
)

// Criterion types understood by the evaluator.
const (
	CriterionSalesAmount    = "sales_amount"
	CriterionSalesCount     = "sales_count"
	CriterionTotalPoints    = "total_points"
	CriterionBestSellerRuns = "best_seller_count"
)

// Ruleset is an immutable snapshot of the scoring rules. Treat values returned by a Store as read-only.
type Ruleset struct {
	Version      uint64             `json:"version" yaml:"-"`
	BasePoints   map[string]int     `json:"base_points" yaml:"base_points"`
	Multipliers  map[string]float64 `json:"multipliers" yaml:"multipliers"`
	Penalties    map[string]int     `json:"penalties" yaml:"penalties"`
	DailyGoals   DailyGoals         `json:"daily_goals" yaml:"daily_goals"`
	AdminConfig  AdminConfig        `json:"admin_config" yaml:"admin_config"`
	AvatarLevels []AvatarLevel      `json:"avatar_levels" yaml:"avatar_levels"`
	Badges       []Badge            `json:"badges" yaml:"badges"`
	Trophies     []Trophy           `json:"trophies" yaml:"trophies"`
}

// DailyGoals holds per-goal targets and the bonus for reaching one.
type DailyGoals struct {
	Targets         map[string]float64 `json:"targets" yaml:"targets"`
	CompletionBonus int                `json:"completion_bonus" yaml:"completion_bonus"`
}

// AdminConfig bounds privileged point adjustments.
type AdminConfig struct {
	CooldownHours            int                      `json:"cooldown_hours" yaml:"cooldown_hours"`
	MaxDailyAdjustment       int                      `json:"max_daily_adjustment" yaml:"max_daily_adjustment"`
	AutoPenaltyNoSales       bool                     `json:"auto_penalty_no_sales" yaml:"auto_penalty_no_sales"`
	ManagerBadgeRequirements ManagerBadgeRequirements `json:"manager_badge_requirements" yaml:"manager_badge_requirements"`
}

// ManagerBadgeRequirements are the default sales thresholds for manager-only badges.
type ManagerBadgeRequirements struct {
	TotalSalesThreshold float64 `json:"total_sales_threshold" yaml:"total_sales_threshold"`
	SalesCountThreshold int     `json:"sales_count_threshold" yaml:"sales_count_threshold"`
}

// AvatarLevel is one tier of the level table.
type AvatarLevel struct {
	Level          int      `json:"level" yaml:"level"`
	Name           string   `json:"name" yaml:"name"`
	RequiredPoints int      `json:"required_points" yaml:"required_points"`
	AvatarURL      string   `json:"avatar_url" yaml:"avatar_url"`
	Benefits       []string `json:"benefits" yaml:"benefits"`
}

// Badge is a point-threshold marker; manager-only badges also need sales volume.
type Badge struct {
	Type                string               `json:"type" yaml:"type"`
	Name                string               `json:"name" yaml:"name"`
	Description         string               `json:"description" yaml:"description"`
	IconURL             string               `json:"icon_url" yaml:"icon_url"`
	RequiredPoints      int                  `json:"required_points" yaml:"required_points"`
	IsActive            bool                 `json:"is_active" yaml:"is_active"`
	IsManagerOnly       bool                 `json:"is_manager_only" yaml:"is_manager_only"`
	ManagerRequirements *ManagerRequirements `json:"manager_requirements,omitempty" yaml:"manager_requirements,omitempty"`
}

// ManagerRequirements are lifetime sales thresholds for a manager-only badge.
type ManagerRequirements struct {
	TotalSales float64 `json:"total_sales" yaml:"total_sales"`
	SalesCount int     `json:"sales_count" yaml:"sales_count"`
}

// Trophy is awarded once when all of its criteria hold.
type Trophy struct {
	Name              string         `json:"name" yaml:"name"`
	Description       string         `json:"description" yaml:"description"`
	Category          TrophyCategory `json:"category" yaml:"category"`
	IconURL           string         `json:"icon_url" yaml:"icon_url"`
	PointsReward      int            `json:"points_reward" yaml:"points_reward"`
	Criteria          []Criterion    `json:"criteria" yaml:"criteria"`
	IsActive          bool           `json:"is_active" yaml:"is_active"`
	AppliesToAllUsers bool           `json:"applies_to_all_users" yaml:"applies_to_all_users"`
}

// Criterion is one {type, operator, value, period} condition of a trophy.
type Criterion struct {
	Type     string   `json:"type" yaml:"type"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    float64  `json:"value" yaml:"value"`
	Period   Period   `json:"period" yaml:"period"`
}

// Validate checks structural invariants of the ruleset.
func (rs *Ruleset) Validate() error {
	if rs.AdminConfig.CooldownHours < 0 {
		return fmt.Errorf("admin_config.cooldown_hours must be >= 0, got %d", rs.AdminConfig.CooldownHours)
	}
	if rs.AdminConfig.MaxDailyAdjustment <= 0 {
		return fmt.Errorf("admin_config.max_daily_adjustment must be > 0, got %d", rs.AdminConfig.MaxDailyAdjustment)
	}
	if len(rs.AvatarLevels) == 0 {
		return fmt.Errorf("avatar_levels must not be empty")
	}
	levels := rs.SortedLevels()
	if levels[0].Level != 1 {
		return fmt.Errorf("avatar_levels must define level 1")
	}
	for i := 1; i < len(levels); i++ {
		if levels[i].Level == levels[i-1].Level {
			return fmt.Errorf("avatar level %d defined twice", levels[i].Level)
		}
		if levels[i].RequiredPoints <= levels[i-1].RequiredPoints {
			return fmt.Errorf("avatar level %d requires %d points, not above level %d (%d)",
				levels[i].Level, levels[i].RequiredPoints, levels[i-1].Level, levels[i-1].RequiredPoints)
		}
	}
	for name, p := range rs.Penalties {
		if p > 0 {
			return fmt.Errorf("penalty %q must not be positive, got %d", name, p)
		}
	}
	for goal, target := range rs.DailyGoals.Targets {
		if target <= 0 {
			return fmt.Errorf("daily goal %q target must be > 0", goal)
		}
	}
	seenBadges := make(map[string]bool, len(rs.Badges))
	for _, b := range rs.Badges {
		if b.Type == "" {
			return fmt.Errorf("badge type must not be empty")
		}
		if seenBadges[b.Type] {
			return fmt.Errorf("badge type %q defined twice", b.Type)
		}
		seenBadges[b.Type] = true
	}
	seenTrophies := make(map[string]bool, len(rs.Trophies))
	for _, t := range rs.Trophies {
		if t.Name == "" {
			return fmt.Errorf("trophy name must not be empty")
		}
		if seenTrophies[t.Name] {
			return fmt.Errorf("trophy %q defined twice", t.Name)
		}
		seenTrophies[t.Name] = true
		if !t.Category.Valid() {
			return fmt.Errorf("trophy %q has unknown category %q", t.Name, t.Category)
		}
		if len(t.Criteria) == 0 {
			return fmt.Errorf("trophy %q has no criteria", t.Name)
		}
	}
	return nil
}

// SortedLevels returns the avatar levels ordered by level number.
func (rs *Ruleset) SortedLevels() []AvatarLevel {
	levels := make([]AvatarLevel, len(rs.AvatarLevels))
	copy(levels, rs.AvatarLevels)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Level < levels[j].Level })
	return levels
}

// Level returns the avatar level with the given number.
func (rs *Ruleset) Level(level int) (AvatarLevel, bool) {
	for _, l := range rs.AvatarLevels {
		if l.Level == level {
			return l, true
		}
	}
	return AvatarLevel{}, false
}

// Badge looks up a badge definition by type.
func (rs *Ruleset) Badge(badgeType string) (Badge, bool) {
	for _, b := range rs.Badges {
		if b.Type == badgeType {
			return b, true
		}
	}
	return Badge{}, false
}

// Trophy looks up a trophy definition by name.
func (rs *Ruleset) Trophy(name string) (Trophy, bool) {
	for _, t := range rs.Trophies {
		if t.Name == name {
			return t, true
		}
	}
	return Trophy{}, false
}

// HasGoal reports whether goalType has a configured daily target.
func (rs *Ruleset) HasGoal(goalType string) bool {
	_, ok := rs.DailyGoals.Targets[goalType]
	return ok
}

// ApplyMultipliers multiplies base by the factor of every condition present in the ruleset
// and rounds to the nearest integer. Unknown conditions are ignored.
func (rs *Ruleset) ApplyMultipliers(base int, conditions []string) int {
	factor := 1.0
	seen := make(map[string]bool, len(conditions))
	for _, c := range conditions {
		if seen[c] {
			continue
		}
		seen[c] = true
		if m, ok := rs.Multipliers[c]; ok {
			factor *= m
		}
	}
	return int(math.Round(float64(base) * factor))
}

// Clone returns a deep copy so callers can edit a ruleset without touching a published snapshot.
func (rs *Ruleset) Clone() *Ruleset {
	out := *rs
	out.BasePoints = cloneMap(rs.BasePoints)
	out.Multipliers = cloneMap(rs.Multipliers)
	out.Penalties = cloneMap(rs.Penalties)
	out.DailyGoals.Targets = cloneMap(rs.DailyGoals.Targets)
	out.AvatarLevels = make([]AvatarLevel, len(rs.AvatarLevels))
	for i, l := range rs.AvatarLevels {
		l.Benefits = append([]string(nil), l.Benefits...)
		out.AvatarLevels[i] = l
	}
	out.Badges = make([]Badge, len(rs.Badges))
	for i, b := range rs.Badges {
		if b.ManagerRequirements != nil {
			req := *b.ManagerRequirements
			b.ManagerRequirements = &req
		}
		out.Badges[i] = b
	}
	out.Trophies = make([]Trophy, len(rs.Trophies))
	for i, t := range rs.Trophies {
		t.Criteria = append([]Criterion(nil), t.Criteria...)
		out.Trophies[i] = t
	}
	return &out
}

func cloneMap[V any](in map[string]V) map[string]V {
	if in == nil {
		return nil
	}
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
