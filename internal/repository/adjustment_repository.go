package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aimd54/retail-gamification/internal/models"
)

// AdjustmentRepository stores admin point adjustments. Rows are never updated.
type AdjustmentRepository struct {
	db *DB
}

// NewAdjustmentRepository creates a new adjustment repository.
func NewAdjustmentRepository(db *DB) *AdjustmentRepository {
	return &AdjustmentRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *AdjustmentRepository) WithTx(tx *DB) *AdjustmentRepository {
	return &AdjustmentRepository{db: tx}
}

// Create records an adjustment.
func (r *AdjustmentRepository) Create(ctx context.Context, adj *models.AdminPointAdjustment) error {
	adj.CreatedAt = adj.CreatedAt.UTC()
	if err := r.db.WithContext(ctx).Create(adj).Error; err != nil {
		return fmt.Errorf("failed to record adjustment by admin %d: %w", adj.AdminID, err)
	}
	return nil
}

// LastForPair returns the most recent adjustment made by adminID to targetUserID, or nil if none.
func (r *AdjustmentRepository) LastForPair(ctx context.Context, adminID, targetUserID uint) (*models.AdminPointAdjustment, error) {
	var adj models.AdminPointAdjustment
	err := r.db.WithContext(ctx).
		Where("admin_id = ? AND user_id = ?", adminID, targetUserID).
		Order("created_at DESC, id DESC").
		First(&adj).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last adjustment by admin %d for user %d: %w", adminID, targetUserID, err)
	}
	return &adj, nil
}

// SumAbsBetween returns the total magnitude of adminID's adjustments with created_at in [start, end).
func (r *AdjustmentRepository) SumAbsBetween(ctx context.Context, adminID uint, start, end time.Time) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.AdminPointAdjustment{}).
		Select("COALESCE(SUM(ABS(points_adjusted)), 0)").
		Where("admin_id = ? AND created_at >= ? AND created_at < ?", adminID, start.UTC(), end.UTC()).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum adjustments by admin %d: %w", adminID, err)
	}
	return int(total), nil
}

// ListByAdmin returns an admin's adjustments, newest first.
func (r *AdjustmentRepository) ListByAdmin(ctx context.Context, adminID uint, limit int) ([]models.AdminPointAdjustment, error) {
	var adjustments []models.AdminPointAdjustment
	query := r.db.WithContext(ctx).Where("admin_id = ?", adminID).Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&adjustments).Error; err != nil {
		return nil, fmt.Errorf("failed to list adjustments by admin %d: %w", adminID, err)
	}
	return adjustments, nil
}
