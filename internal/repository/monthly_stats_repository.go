package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/retail-gamification/internal/apperrors"
	"github.com/aimd54/retail-gamification/internal/models"
)

// MonthlyStatsRepository handles per-seller monthly sales statistics.
type MonthlyStatsRepository struct {
	db *DB
}

// NewMonthlyStatsRepository creates a new monthly stats repository.
func NewMonthlyStatsRepository(db *DB) *MonthlyStatsRepository {
	return &MonthlyStatsRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *MonthlyStatsRepository) WithTx(tx *DB) *MonthlyStatsRepository {
	return &MonthlyStatsRepository{db: tx}
}

// Upsert creates or refreshes the totals of a (user, month) row. The best-seller flag is kept.
func (r *MonthlyStatsRepository) Upsert(ctx context.Context, stats *models.MonthlySellerStats) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "month"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_sales": stats.TotalSales,
			"sales_count": stats.SalesCount,
			"updated_at":  time.Now().UTC(),
		}),
	}).Create(stats).Error
	if err != nil {
		return fmt.Errorf("failed to upsert stats for user %d month %s: %w", stats.UserID, stats.Month, err)
	}
	return nil
}

// MarkBestSeller flags the (user, month) row as best seller, creating it if needed.
func (r *MonthlyStatsRepository) MarkBestSeller(ctx context.Context, userID uint, month string) error {
	row := &models.MonthlySellerStats{UserID: userID, Month: month, IsBestSeller: true}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "month"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"is_best_seller": true,
			"updated_at":     time.Now().UTC(),
		}),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to mark user %d best seller of %s: %w", userID, month, err)
	}
	return nil
}

// TopSeller returns the row with the highest sales amount for month. Ties go to the higher
// sales count, then the lower user id.
func (r *MonthlyStatsRepository) TopSeller(ctx context.Context, month string) (*models.MonthlySellerStats, error) {
	var stats models.MonthlySellerStats
	err := r.db.WithContext(ctx).
		Where("month = ? AND total_sales > 0", month).
		Order("total_sales DESC, sales_count DESC, user_id ASC").
		First(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("monthly_seller_stats", month)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get top seller of %s: %w", month, err)
	}
	return &stats, nil
}

// ListByMonth returns all rows for month, highest sales amount first.
func (r *MonthlyStatsRepository) ListByMonth(ctx context.Context, month string) ([]models.MonthlySellerStats, error) {
	var stats []models.MonthlySellerStats
	err := r.db.WithContext(ctx).
		Where("month = ?", month).
		Order("total_sales DESC, sales_count DESC, user_id ASC").
		Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stats for %s: %w", month, err)
	}
	return stats, nil
}

// ListBestSellerMonths returns the months in which userID was best seller, oldest first.
func (r *MonthlyStatsRepository) ListBestSellerMonths(ctx context.Context, userID uint) ([]string, error) {
	var months []string
	err := r.db.WithContext(ctx).Model(&models.MonthlySellerStats{}).
		Where("user_id = ? AND is_best_seller = ?", userID, true).
		Order("month ASC").
		Pluck("month", &months).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list best-seller months for user %d: %w", userID, err)
	}
	return months, nil
}
