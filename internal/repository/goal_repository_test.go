package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/aimd54/retail-gamification/internal/apperrors"
	"github.com/aimd54/retail-gamification/internal/models"
	"github.com/aimd54/retail-gamification/internal/ruleset"
)

func TestGoalRepository_LockCreatesOnce(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGoalRepository(db)
	ctx := context.Background()
	user := createTestUser(t, db, "alice", "madrid", models.RoleSeller)

	err := db.Transaction(ctx, func(tx *DB) error {
		goal, err := repo.WithTx(tx).Lock(ctx, user.ID, ruleset.GoalSalesCount, "2024-05-10", 5)
		if err != nil {
			return err
		}
		goal.CurrentValue += 3
		return repo.WithTx(tx).Save(ctx, goal)
	})
	if err != nil {
		t.Fatalf("first transaction failed: %v", err)
	}

	// A later lock with a different target keeps the existing row
	err = db.Transaction(ctx, func(tx *DB) error {
		goal, err := repo.WithTx(tx).Lock(ctx, user.ID, ruleset.GoalSalesCount, "2024-05-10", 99)
		if err != nil {
			return err
		}
		if goal.TargetValue != 5 || goal.CurrentValue != 3 {
			t.Errorf("Expected target 5 and value 3, got %v/%v", goal.TargetValue, goal.CurrentValue)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("second transaction failed: %v", err)
	}

	goals, err := repo.ListForDay(ctx, user.ID, "2024-05-10")
	if err != nil {
		t.Fatalf("ListForDay() failed: %v", err)
	}
	if len(goals) != 1 {
		t.Errorf("Expected 1 goal row, got %d", len(goals))
	}

	if _, err := repo.Get(ctx, user.ID, ruleset.GoalSalesCount, "2024-05-11"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for another day, got %v", err)
	}
}

func TestMonthlyStatsRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMonthlyStatsRepository(db)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice", "madrid", models.RoleSeller)
	bob := createTestUser(t, db, "bob", "madrid", models.RoleSeller)

	if _, err := repo.TopSeller(ctx, "2024-01"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a month without stats, got %v", err)
	}

	rows := []*models.MonthlySellerStats{
		{UserID: alice.ID, Month: "2024-01", TotalSales: 5000, SalesCount: 20},
		{UserID: bob.ID, Month: "2024-01", TotalSales: 5000, SalesCount: 25},
	}
	for _, row := range rows {
		if err := repo.Upsert(ctx, row); err != nil {
			t.Fatalf("Upsert() failed: %v", err)
		}
	}

	top, err := repo.TopSeller(ctx, "2024-01")
	if err != nil {
		t.Fatalf("TopSeller() failed: %v", err)
	}
	if top.UserID != bob.ID {
		t.Errorf("Expected bob to win the tie on sales count, got user %d", top.UserID)
	}

	if err := repo.MarkBestSeller(ctx, bob.ID, "2024-01"); err != nil {
		t.Fatalf("MarkBestSeller() failed: %v", err)
	}
	// Refreshing totals keeps the flag
	if err := repo.Upsert(ctx, &models.MonthlySellerStats{UserID: bob.ID, Month: "2024-01", TotalSales: 6000, SalesCount: 26}); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	list, err := repo.ListByMonth(ctx, "2024-01")
	if err != nil {
		t.Fatalf("ListByMonth() failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(list))
	}
	if list[0].UserID != bob.ID || list[0].TotalSales != 6000 || !list[0].IsBestSeller {
		t.Errorf("Expected refreshed best-seller row for bob, got %+v", list[0])
	}

	// Marking a month without stats creates the row
	if err := repo.MarkBestSeller(ctx, alice.ID, "2024-02"); err != nil {
		t.Fatalf("MarkBestSeller() failed: %v", err)
	}
	months, err := repo.ListBestSellerMonths(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListBestSellerMonths() failed: %v", err)
	}
	if len(months) != 1 || months[0] != "2024-02" {
		t.Errorf("Expected [2024-02], got %v", months)
	}
}

func TestConfigurationRepository_RulesetSource(t *testing.T) {
	db := setupTestDB(t)
	repo := NewConfigurationRepository(db)
	ctx := context.Background()

	rs, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if rs != nil {
		t.Fatalf("Expected no override before Save, got %+v", rs)
	}

	override := ruleset.Default()
	override.AdminConfig.CooldownHours = 6
	override.BasePoints[ruleset.PointsSaleCompleted] = 15
	if err := repo.Save(ctx, override); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	override.AdminConfig.CooldownHours = 8
	if err := repo.Save(ctx, override); err != nil {
		t.Fatalf("second Save() failed: %v", err)
	}

	rs, err = repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if rs.AdminConfig.CooldownHours != 8 || rs.BasePoints[ruleset.PointsSaleCompleted] != 15 {
		t.Errorf("Expected stored override, got cooldown=%d sale=%d", rs.AdminConfig.CooldownHours, rs.BasePoints[ruleset.PointsSaleCompleted])
	}

	// Partial documents keep defaults for missing keys
	if err := repo.Set(ctx, RulesetKey, []byte(`{"daily_goals":{"completion_bonus":25}}`)); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	rs, err = repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if rs.DailyGoals.CompletionBonus != 25 {
		t.Errorf("Expected completion bonus 25, got %d", rs.DailyGoals.CompletionBonus)
	}
	if rs.DailyGoals.Targets[ruleset.GoalSalesCount] != 5 || len(rs.Badges) == 0 {
		t.Errorf("Expected defaults for keys missing from the stored document")
	}
	if err := rs.Validate(); err != nil {
		t.Errorf("Expected merged ruleset to be valid: %v", err)
	}
}
