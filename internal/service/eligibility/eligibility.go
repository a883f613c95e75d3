// Package eligibility derives levels, badge eligibility and trophy eligibility from a user's
// points and externally supplied sales facts. Every function is pure: the ruleset snapshot is
// passed in and nothing is read from shared state.
package eligibility

import (
	"github.com/aimd54/retail-gamification/internal/models"
	"github.com/aimd54/retail-gamification/internal/ruleset"
)

// Facts are the inputs a caller gathers before evaluation.
type Facts struct {
	Role             string
	TotalPoints      int
	LifetimeSales    models.SalesTotals
	Periods          map[ruleset.Period]models.SalesTotals
	BestSellerStreak int
}

// LevelFor returns the highest level whose threshold is at or below points. When no level
// matches, or the table is empty, it falls back to level 1.
func LevelFor(rs *ruleset.Ruleset, points int) ruleset.AvatarLevel {
	levels := rs.SortedLevels()
	for i := len(levels) - 1; i >= 0; i-- {
		if points >= levels[i].RequiredPoints {
			return levels[i]
		}
	}
	if len(levels) > 0 {
		return levels[0]
	}
	return ruleset.AvatarLevel{Level: 1}
}

// EligibleBadges returns every active badge the user currently qualifies for, in ruleset order.
func EligibleBadges(rs *ruleset.Ruleset, facts Facts) []ruleset.Badge {
	var eligible []ruleset.Badge
	for _, badge := range rs.Badges {
		if badgeEligible(rs, badge, facts) {
			eligible = append(eligible, badge)
		}
	}
	return eligible
}

func badgeEligible(rs *ruleset.Ruleset, badge ruleset.Badge, facts Facts) bool {
	if !badge.IsActive || facts.TotalPoints < badge.RequiredPoints {
		return false
	}
	if !badge.IsManagerOnly {
		return true
	}
	if facts.Role != models.RoleManager {
		return false
	}

	req := ruleset.ManagerRequirements{
		TotalSales: rs.AdminConfig.ManagerBadgeRequirements.TotalSalesThreshold,
		SalesCount: rs.AdminConfig.ManagerBadgeRequirements.SalesCountThreshold,
	}
	if badge.ManagerRequirements != nil {
		req = *badge.ManagerRequirements
	}
	return req.TotalSales <= facts.LifetimeSales.Amount &&
		int64(req.SalesCount) <= facts.LifetimeSales.Count
}
