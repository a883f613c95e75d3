package eligibility

import (
	"github.com/aimd54/retail-gamification/internal/models"
	"github.com/aimd54/retail-gamification/internal/ruleset"
)

type comparator func(measured, threshold float64) bool

var comparators = map[ruleset.Operator]comparator{
	ruleset.OperatorGreaterThan: func(measured, threshold float64) bool { return measured > threshold },
}

// Measure returns the value of a criterion type over a period. ok is false when the facts
// cannot answer it.
func Measure(facts Facts, criterionType string, period ruleset.Period) (value float64, ok bool) {
	switch criterionType {
	case ruleset.CriterionTotalPoints:
		return float64(facts.TotalPoints), true
	case ruleset.CriterionBestSellerRuns:
		return float64(facts.BestSellerStreak), true
	case ruleset.CriterionSalesAmount, ruleset.CriterionSalesCount:
		totals, found := periodTotals(facts, period)
		if !found {
			return 0, false
		}
		if criterionType == ruleset.CriterionSalesAmount {
			return totals.Amount, true
		}
		return float64(totals.Count), true
	}
	return 0, false
}

func periodTotals(facts Facts, period ruleset.Period) (models.SalesTotals, bool) {
	if period == "" || period == ruleset.PeriodAllTime {
		if totals, ok := facts.Periods[ruleset.PeriodAllTime]; ok {
			return totals, true
		}
		return facts.LifetimeSales, true
	}
	totals, ok := facts.Periods[period]
	return totals, ok
}

// EvaluateCriterion reports whether one criterion holds. Unknown operators and unmeasurable
// criteria never match.
func EvaluateCriterion(c ruleset.Criterion, facts Facts) bool {
	compare, ok := comparators[c.Operator]
	if !ok {
		return false
	}
	measured, ok := Measure(facts, c.Type, c.Period)
	if !ok {
		return false
	}
	return compare(measured, c.Value)
}

// EvaluateTrophy reports whether every criterion of the trophy holds. Consecutive trophies
// only look at best_seller_count criteria; a trophy without criteria never matches.
func EvaluateTrophy(trophy ruleset.Trophy, facts Facts) bool {
	if len(trophy.Criteria) == 0 {
		return false
	}
	for _, c := range trophy.Criteria {
		if trophy.Category == ruleset.CategoryConsecutive && c.Type != ruleset.CriterionBestSellerRuns {
			return false
		}
		if !EvaluateCriterion(c, facts) {
			return false
		}
	}
	return true
}

// EligibleTrophies returns the active trophies in the given categories whose criteria all
// hold. With no categories every category is considered.
func EligibleTrophies(rs *ruleset.Ruleset, facts Facts, categories ...ruleset.TrophyCategory) []ruleset.Trophy {
	var eligible []ruleset.Trophy
	for _, trophy := range rs.Trophies {
		if !trophy.IsActive || !inCategories(trophy.Category, categories) {
			continue
		}
		if !trophy.AppliesToAllUsers && facts.Role != models.RoleSeller {
			continue
		}
		if EvaluateTrophy(trophy, facts) {
			eligible = append(eligible, trophy)
		}
	}
	return eligible
}

// RequiredPeriods lists the sales periods the active trophies in categories refer to, so that
// callers only aggregate what will be read.
func RequiredPeriods(rs *ruleset.Ruleset, categories ...ruleset.TrophyCategory) []ruleset.Period {
	seen := make(map[ruleset.Period]bool)
	var periods []ruleset.Period
	for _, trophy := range rs.Trophies {
		if !trophy.IsActive || !inCategories(trophy.Category, categories) {
			continue
		}
		for _, c := range trophy.Criteria {
			if c.Type != ruleset.CriterionSalesAmount && c.Type != ruleset.CriterionSalesCount {
				continue
			}
			p := c.Period
			if p == "" {
				p = ruleset.PeriodAllTime
			}
			if !seen[p] {
				seen[p] = true
				periods = append(periods, p)
			}
		}
	}
	return periods
}

func inCategories(category ruleset.TrophyCategory, categories []ruleset.TrophyCategory) bool {
	if len(categories) == 0 {
		return true
	}
	for _, c := range categories {
		if c == category {
			return true
		}
	}
	return false
}
