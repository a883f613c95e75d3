// Package aggregator builds the per-seller monthly sales stats that the best-seller
// computation reads.
package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/aimd54/retail-gamification/internal/models"
	"github.com/aimd54/retail-gamification/internal/repository"
	"github.com/aimd54/retail-gamification/internal/service/streak"
	"github.com/aimd54/retail-gamification/pkg/logger"
)

// Service aggregates sales into monthly seller stats.
type Service struct {
	salesRepo *repository.SalesRepository
	statsRepo *repository.MonthlyStatsRepository
	loc       *time.Location
	log       *logger.Logger
}

// NewService creates a new aggregator service. Months are calendar months in loc.
func NewService(salesRepo *repository.SalesRepository, statsRepo *repository.MonthlyStatsRepository, loc *time.Location, log *logger.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		salesRepo: salesRepo,
		statsRepo: statsRepo,
		loc:       loc,
		log:       log.Component("aggregator"),
	}
}

// MonthRange returns [start, end) of a YYYY-MM month in loc.
func MonthRange(month string, loc *time.Location) (time.Time, time.Time, error) {
	t, err := streak.ParseMonth(month)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0), nil
}

// PreviousMonth returns the YYYY-MM key of the month before the one containing now in loc.
func PreviousMonth(now time.Time, loc *time.Location) string {
	local := now.In(loc)
	first := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return first.AddDate(0, -1, 0).Format("2006-01")
}

// AggregateMonth recomputes the stats rows of every seller with sales in month. Existing rows
// keep their best-seller flag. It returns the number of sellers aggregated.
func (s *Service) AggregateMonth(ctx context.Context, month string) (int, error) {
	start, end, err := MonthRange(month, s.loc)
	if err != nil {
		return 0, err
	}

	s.log.Info().
		Str("month", month).
		Msg("Starting monthly sales aggregation")

	totals, err := s.salesRepo.TotalsBySeller(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate sales for %s: %w", month, err)
	}

	if len(totals) == 0 {
		s.log.Info().Str("month", month).Msg("No sales found for month")
		return 0, nil
	}

	aggregated := 0
	for _, seller := range totals {
		row := &models.MonthlySellerStats{
			UserID:     seller.SellerID,
			Month:      month,
			TotalSales: seller.Amount,
			SalesCount: int(seller.Count),
		}
		if err := s.statsRepo.Upsert(ctx, row); err != nil {
			s.log.Error().
				Err(err).
				Uint("user_id", seller.SellerID).
				Str("month", month).
				Msg("Failed to store monthly stats")
			continue
		}
		aggregated++
	}

	s.log.Info().
		Str("month", month).
		Int("sellers", aggregated).
		Msg("Monthly sales aggregation completed")

	if aggregated < len(totals) {
		return aggregated, fmt.Errorf("stored %d of %d seller stats for %s", aggregated, len(totals), month)
	}
	return aggregated, nil
}
