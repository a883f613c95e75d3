package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aimd54/retail-gamification/internal/models"
)

// SalesRepository reads the sales written by the sales module and aggregates them per seller.
type SalesRepository struct {
	db *DB
}

// NewSalesRepository creates a new sales repository.
func NewSalesRepository(db *DB) *SalesRepository {
	return &SalesRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *SalesRepository) WithTx(tx *DB) *SalesRepository {
	return &SalesRepository{db: tx}
}

// Create records a sale.
func (r *SalesRepository) Create(ctx context.Context, sale *models.Sale) error {
	sale.SoldAt = sale.SoldAt.UTC()
	if err := r.db.WithContext(ctx).Create(sale).Error; err != nil {
		return fmt.Errorf("failed to create sale for seller %d: %w", sale.SellerID, err)
	}
	return nil
}

// Totals returns the seller's sales in [start, end). Zero bounds are open.
func (r *SalesRepository) Totals(ctx context.Context, sellerID uint, start, end time.Time) (models.SalesTotals, error) {
	var totals models.SalesTotals
	query := r.db.WithContext(ctx).Model(&models.Sale{}).
		Select("COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount, COALESCE(SUM(item_count), 0) AS items").
		Where("seller_id = ?", sellerID)
	query = betweenSoldAt(query, start, end)

	if err := query.Scan(&totals).Error; err != nil {
		return models.SalesTotals{}, fmt.Errorf("failed to aggregate sales for seller %d: %w", sellerID, err)
	}
	return totals, nil
}

// HadSaleBetween reports whether the seller has at least one sale in [start, end).
func (r *SalesRepository) HadSaleBetween(ctx context.Context, sellerID uint, start, end time.Time) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.Sale{}).Where("seller_id = ?", sellerID)
	if err := betweenSoldAt(query, start, end).Limit(1).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to look up sales for seller %d: %w", sellerID, err)
	}
	return count > 0, nil
}

// SellerTotals is one seller's aggregate for a period.
type SellerTotals struct {
	SellerID uint
	models.SalesTotals
}

// TotalsBySeller aggregates every seller's sales in [start, end), highest amount first.
func (r *SalesRepository) TotalsBySeller(ctx context.Context, start, end time.Time) ([]SellerTotals, error) {
	type result struct {
		SellerID uint
		Count    int64
		Amount   float64
		Items    int64
	}

	var results []result
	query := r.db.WithContext(ctx).Model(&models.Sale{}).
		Select("seller_id, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount, COALESCE(SUM(item_count), 0) AS items")
	err := betweenSoldAt(query, start, end).
		Group("seller_id").
		Order("amount DESC, count DESC, seller_id ASC").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate sales by seller: %w", err)
	}

	totals := make([]SellerTotals, 0, len(results))
	for _, res := range results {
		totals = append(totals, SellerTotals{
			SellerID:    res.SellerID,
			SalesTotals: models.SalesTotals{Count: res.Count, Amount: res.Amount, Items: res.Items},
		})
	}
	return totals, nil
}

func betweenSoldAt(query *gorm.DB, start, end time.Time) *gorm.DB {
	if !start.IsZero() {
		query = query.Where("sold_at >= ?", start.UTC())
	}
	if !end.IsZero() {
		query = query.Where("sold_at < ?", end.UTC())
	}
	return query
}
