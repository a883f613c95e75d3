package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/retail-gamification/internal/apperrors"
	"github.com/aimd54/retail-gamification/internal/models"
)

// GoalRepository stores daily goal progress.
type GoalRepository struct {
	db *DB
}

// NewGoalRepository creates a new goal repository.
func NewGoalRepository(db *DB) *GoalRepository {
	return &GoalRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *GoalRepository) WithTx(tx *DB) *GoalRepository {
	return &GoalRepository{db: tx}
}

// Lock returns the goal row for (user, goal type, day) under an exclusive row lock, creating it
// with the given target first when missing. Must be called inside a transaction.
func (r *GoalRepository) Lock(ctx context.Context, userID uint, goalType, day string, target float64) (*models.DailyGoal, error) {
	seed := &models.DailyGoal{
		UserID:      userID,
		GoalType:    goalType,
		Day:         day,
		TargetValue: target,
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(seed).Error; err != nil {
		return nil, fmt.Errorf("failed to initialize %s goal for user %d on %s: %w", goalType, userID, day, err)
	}

	var goal models.DailyGoal
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND goal_type = ? AND day = ?", userID, goalType, day).
		First(&goal).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s goal for user %d on %s: %w", goalType, userID, day, err)
	}
	return &goal, nil
}

// Save writes the goal row.
func (r *GoalRepository) Save(ctx context.Context, goal *models.DailyGoal) error {
	if err := r.db.WithContext(ctx).Save(goal).Error; err != nil {
		return fmt.Errorf("failed to save %s goal for user %d: %w", goal.GoalType, goal.UserID, err)
	}
	return nil
}

// ListForDay returns a user's goals for one day.
func (r *GoalRepository) ListForDay(ctx context.Context, userID uint, day string) ([]models.DailyGoal, error) {
	var goals []models.DailyGoal
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND day = ?", userID, day).
		Order("goal_type ASC").
		Find(&goals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list goals for user %d on %s: %w", userID, day, err)
	}
	return goals, nil
}

// Get returns one goal row without locking.
func (r *GoalRepository) Get(ctx context.Context, userID uint, goalType, day string) (*models.DailyGoal, error) {
	var goal models.DailyGoal
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND goal_type = ? AND day = ?", userID, goalType, day).
		First(&goal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("daily_goal", fmt.Sprintf("%d/%s/%s", userID, goalType, day))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s goal for user %d on %s: %w", goalType, userID, day, err)
	}
	return &goal, nil
}
