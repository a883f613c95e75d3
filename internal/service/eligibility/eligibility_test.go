package eligibility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/aimd54/retail-gamification/internal/models"
	"github.com/aimd54/retail-gamification/internal/ruleset"
)

func TestLevelFor(t *testing.T) {
	rs := ruleset.Default()

	tests := []struct {
		points int
		want   int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{299, 2},
		{300, 3},
		{1999, 5},
		{2000, 6},
		{1_000_000, 6},
		{-10, 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFor(rs, tt.points).Level, "points=%d", tt.points)
	}
}

func TestLevelFor_FallsBackToLevelOne(t *testing.T) {
	rs := ruleset.Default()
	// Level 1 with a positive threshold: totals below every threshold still map to level 1
	rs.AvatarLevels[0].RequiredPoints = 50
	assert.Equal(t, 1, LevelFor(rs, 10).Level)

	rs.AvatarLevels = nil
	assert.Equal(t, 1, LevelFor(rs, 500).Level)
}

// Level is monotonic in points for any valid threshold table.
func TestLevelFor_MonotonicProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		steps := rapid.SliceOfN(rapid.IntRange(1, 500), 1, 10).Draw(t, "steps")
		rs := ruleset.Default()
		rs.AvatarLevels = []ruleset.AvatarLevel{{Level: 1, RequiredPoints: 0}}
		threshold := 0
		for i, step := range steps {
			threshold += step
			rs.AvatarLevels = append(rs.AvatarLevels, ruleset.AvatarLevel{Level: i + 2, RequiredPoints: threshold})
		}

		p1 := rapid.IntRange(0, threshold+1000).Draw(t, "p1")
		p2 := rapid.IntRange(p1, threshold+1000).Draw(t, "p2")

		l1 := LevelFor(rs, p1)
		l2 := LevelFor(rs, p2)
		if l1.Level > l2.Level {
			t.Fatalf("levelFor(%d)=%d > levelFor(%d)=%d", p1, l1.Level, p2, l2.Level)
		}
		if p1 < l1.RequiredPoints {
			t.Fatalf("level %d requires %d but only %d points", l1.Level, l1.RequiredPoints, p1)
		}
	})
}

func badgeTypes(badges []ruleset.Badge) []string {
	types := make([]string, 0, len(badges))
	for _, b := range badges {
		types = append(types, b.Type)
	}
	return types
}

func TestEligibleBadges(t *testing.T) {
	rs := ruleset.Default()

	tests := []struct {
		name  string
		facts Facts
		want  []string
	}{
		{"below bronze", Facts{Role: models.RoleSeller, TotalPoints: 99}, []string{}},
		{"bronze", Facts{Role: models.RoleSeller, TotalPoints: 100}, []string{"bronze"}},
		{"gold", Facts{Role: models.RoleSeller, TotalPoints: 650}, []string{"bronze", "silver", "gold"}},
		{
			"seller with manager volume",
			Facts{Role: models.RoleSeller, TotalPoints: 0, LifetimeSales: models.SalesTotals{Amount: 90000, Count: 500}},
			[]string{},
		},
		{
			"manager below volume",
			Facts{Role: models.RoleManager, TotalPoints: 0, LifetimeSales: models.SalesTotals{Amount: 49999, Count: 500}},
			[]string{},
		},
		{
			"manager below count",
			Facts{Role: models.RoleManager, TotalPoints: 0, LifetimeSales: models.SalesTotals{Amount: 50000, Count: 199}},
			[]string{},
		},
		{
			"manager at thresholds",
			Facts{Role: models.RoleManager, TotalPoints: 120, LifetimeSales: models.SalesTotals{Amount: 50000, Count: 200}},
			[]string{"bronze", "store_leader"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, badgeTypes(EligibleBadges(rs, tt.facts)))
		})
	}
}

func TestEligibleBadges_InactiveAndDefaultManagerRequirements(t *testing.T) {
	rs := ruleset.Default()
	rs.Badges[0].IsActive = false
	rs.Badges[5].ManagerRequirements = nil
	rs.AdminConfig.ManagerBadgeRequirements.TotalSalesThreshold = 100
	rs.AdminConfig.ManagerBadgeRequirements.SalesCountThreshold = 2

	got := badgeTypes(EligibleBadges(rs, Facts{
		Role:          models.RoleManager,
		TotalPoints:   150,
		LifetimeSales: models.SalesTotals{Amount: 100, Count: 2},
	}))
	assert.ElementsMatch(t, []string{"store_leader"}, got)
}

func TestEvaluateCriterion(t *testing.T) {
	facts := Facts{
		TotalPoints:      500,
		BestSellerStreak: 3,
		LifetimeSales:    models.SalesTotals{Amount: 20000, Count: 150},
		Periods: map[ruleset.Period]models.SalesTotals{
			ruleset.PeriodMonthly: {Amount: 12000, Count: 90},
		},
	}

	tests := []struct {
		name string
		c    ruleset.Criterion
		want bool
	}{
		{"monthly amount above", ruleset.Criterion{Type: ruleset.CriterionSalesAmount, Operator: ruleset.OperatorGreaterThan, Value: 10000, Period: ruleset.PeriodMonthly}, true},
		{"monthly count below", ruleset.Criterion{Type: ruleset.CriterionSalesCount, Operator: ruleset.OperatorGreaterThan, Value: 100, Period: ruleset.PeriodMonthly}, false},
		{"equal is not greater", ruleset.Criterion{Type: ruleset.CriterionSalesAmount, Operator: ruleset.OperatorGreaterThan, Value: 12000, Period: ruleset.PeriodMonthly}, false},
		{"missing period", ruleset.Criterion{Type: ruleset.CriterionSalesAmount, Operator: ruleset.OperatorGreaterThan, Value: 1, Period: ruleset.PeriodYearly}, false},
		{"all time falls back to lifetime", ruleset.Criterion{Type: ruleset.CriterionSalesCount, Operator: ruleset.OperatorGreaterThan, Value: 149, Period: ruleset.PeriodAllTime}, true},
		{"points", ruleset.Criterion{Type: ruleset.CriterionTotalPoints, Operator: ruleset.OperatorGreaterThan, Value: 499}, true},
		{"streak", ruleset.Criterion{Type: ruleset.CriterionBestSellerRuns, Operator: ruleset.OperatorGreaterThan, Value: 2}, true},
		{"unknown operator", ruleset.Criterion{Type: ruleset.CriterionTotalPoints, Operator: "less_than", Value: 1000}, false},
		{"unknown type", ruleset.Criterion{Type: "returns", Operator: ruleset.OperatorGreaterThan, Value: 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateCriterion(tt.c, facts))
		})
	}
}

func TestEvaluateTrophy(t *testing.T) {
	rs := ruleset.Default()
	champion, ok := rs.Trophy("Monthly Champion")
	require.True(t, ok)

	monthly := func(amount float64) Facts {
		return Facts{Periods: map[ruleset.Period]models.SalesTotals{ruleset.PeriodMonthly: {Amount: amount}}}
	}
	assert.True(t, EvaluateTrophy(champion, monthly(10001)))
	assert.False(t, EvaluateTrophy(champion, monthly(10000)))

	// All criteria must hold
	both := champion
	both.Criteria = append(both.Criteria, ruleset.Criterion{Type: ruleset.CriterionSalesCount, Operator: ruleset.OperatorGreaterThan, Value: 5, Period: ruleset.PeriodMonthly})
	assert.False(t, EvaluateTrophy(both, monthly(20000)))

	// One unknown operator fails the whole trophy
	mixed := champion
	mixed.Criteria = append(mixed.Criteria, ruleset.Criterion{Type: ruleset.CriterionSalesAmount, Operator: "between", Value: 1, Period: ruleset.PeriodMonthly})
	assert.False(t, EvaluateTrophy(mixed, monthly(20000)))

	// Consecutive trophies ignore non-streak criteria
	hatTrick, ok := rs.Trophy("Hat Trick")
	require.True(t, ok)
	assert.True(t, EvaluateTrophy(hatTrick, Facts{BestSellerStreak: 3}))
	assert.False(t, EvaluateTrophy(hatTrick, Facts{BestSellerStreak: 2}))
	hatTrick.Criteria = []ruleset.Criterion{{Type: ruleset.CriterionTotalPoints, Operator: ruleset.OperatorGreaterThan, Value: 0}}
	assert.False(t, EvaluateTrophy(hatTrick, Facts{TotalPoints: 100, BestSellerStreak: 10}))

	assert.False(t, EvaluateTrophy(ruleset.Trophy{Name: "empty"}, Facts{}))
}

func trophyNames(trophies []ruleset.Trophy) []string {
	names := make([]string, 0, len(trophies))
	for _, tr := range trophies {
		names = append(names, tr.Name)
	}
	return names
}

func TestEligibleTrophies(t *testing.T) {
	rs := ruleset.Default()
	facts := Facts{
		Role:             models.RoleSeller,
		BestSellerStreak: 6,
		Periods: map[ruleset.Period]models.SalesTotals{
			ruleset.PeriodDaily:     {Count: 11, Amount: 900},
			ruleset.PeriodMonthly:   {Count: 101, Amount: 10500},
			ruleset.PeriodQuarterly: {Count: 101, Amount: 10500},
			ruleset.PeriodYearly:    {Count: 101, Amount: 10500},
		},
	}

	assert.ElementsMatch(t, []string{"Hat Trick", "Unstoppable"},
		trophyNames(EligibleTrophies(rs, facts, ruleset.CategoryConsecutive)))
	assert.ElementsMatch(t, []string{"Monthly Champion", "Sales Marathon", "First Day Hero"},
		trophyNames(EligibleTrophies(rs, facts, ruleset.CategoryMonthly, ruleset.CategoryQuarterly, ruleset.CategoryYearly, ruleset.CategorySpecial)))
	assert.Len(t, EligibleTrophies(rs, facts), 5)

	// Seller-only trophies skip other roles
	rs.Trophies[0].AppliesToAllUsers = false
	facts.Role = models.RoleManager
	assert.NotContains(t, trophyNames(EligibleTrophies(rs, facts, ruleset.CategoryMonthly)), "Monthly Champion")

	rs.Trophies[1].IsActive = false
	assert.Empty(t, EligibleTrophies(rs, facts, ruleset.CategoryMonthly))
}

func TestEligibleTrophies_SellerOnlyTrophyExcludesManagers(t *testing.T) {
	rs := ruleset.Default()
	rs.Trophies = []ruleset.Trophy{
		{
			Name:     "Floor Star",
			Category: ruleset.CategoryMonthly,
			Criteria: []ruleset.Criterion{
				{Type: ruleset.CriterionSalesAmount, Operator: ruleset.OperatorGreaterThan, Value: 1000, Period: ruleset.PeriodMonthly},
			},
			IsActive: true,
		},
		{
			Name:     "Store Star",
			Category: ruleset.CategoryMonthly,
			Criteria: []ruleset.Criterion{
				{Type: ruleset.CriterionSalesAmount, Operator: ruleset.OperatorGreaterThan, Value: 1000, Period: ruleset.PeriodMonthly},
			},
			IsActive:          true,
			AppliesToAllUsers: true,
		},
	}

	tests := []struct {
		role string
		want []string
	}{
		{models.RoleSeller, []string{"Floor Star", "Store Star"}},
		{models.RoleManager, []string{"Store Star"}},
		{models.RoleAdmin, []string{"Store Star"}},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			facts := Facts{
				Role:    tt.role,
				Periods: map[ruleset.Period]models.SalesTotals{ruleset.PeriodMonthly: {Amount: 5000}},
			}
			assert.ElementsMatch(t, tt.want, trophyNames(EligibleTrophies(rs, facts)))
		})
	}
}

func TestRequiredPeriods(t *testing.T) {
	rs := ruleset.Default()
	assert.ElementsMatch(t,
		[]ruleset.Period{ruleset.PeriodMonthly, ruleset.PeriodQuarterly, ruleset.PeriodYearly, ruleset.PeriodDaily},
		RequiredPeriods(rs))
	assert.Empty(t, RequiredPeriods(rs, ruleset.CategoryConsecutive))
	assert.Equal(t, []ruleset.Period{ruleset.PeriodDaily}, RequiredPeriods(rs, ruleset.CategorySpecial))
}

func TestPeriodRange(t *testing.T) {
	madrid, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)

	// 2024-05-15 23:30 UTC is already 2024-05-16 in Madrid (a Thursday)
	now := time.Date(2024, 5, 15, 23, 30, 0, 0, time.UTC)

	tests := []struct {
		period    ruleset.Period
		loc       *time.Location
		wantStart time.Time
		wantEnd   time.Time
	}{
		{ruleset.PeriodDaily, time.UTC, time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC), time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC)},
		{ruleset.PeriodDaily, madrid, time.Date(2024, 5, 16, 0, 0, 0, 0, madrid), time.Date(2024, 5, 17, 0, 0, 0, 0, madrid)},
		{ruleset.PeriodWeekly, time.UTC, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC), time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)},
		{ruleset.PeriodMonthly, time.UTC, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		{ruleset.PeriodQuarterly, time.UTC, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)},
		{ruleset.PeriodYearly, time.UTC, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(string(tt.period)+"/"+tt.loc.String(), func(t *testing.T) {
			start, end, ok := PeriodRange(tt.period, now, tt.loc)
			require.True(t, ok)
			assert.True(t, tt.wantStart.Equal(start), "start = %s, want %s", start, tt.wantStart)
			assert.True(t, tt.wantEnd.Equal(end), "end = %s, want %s", end, tt.wantEnd)
		})
	}

	start, end, ok := PeriodRange(ruleset.PeriodAllTime, now, time.UTC)
	assert.True(t, ok)
	assert.True(t, start.IsZero() && end.IsZero())

	_, _, ok = PeriodRange("fortnightly", now, time.UTC)
	assert.False(t, ok)

	// Sunday belongs to the week that started on the previous Monday
	sunday := time.Date(2024, 5, 19, 12, 0, 0, 0, time.UTC)
	start, _, _ = PeriodRange(ruleset.PeriodWeekly, sunday, nil)
	assert.Equal(t, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC), start)

	assert.Equal(t, "2024-05-16", DayKey(now, madrid))
	assert.Equal(t, "2024-05", MonthKey(now, madrid))
}
