// Package streak tracks consecutive "best seller of the month" runs.
package streak

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aimd54/retail-gamification/internal/apperrors"
	"github.com/aimd54/retail-gamification/internal/models"
	"github.com/aimd54/retail-gamification/pkg/logger"
)

const monthLayout = "2006-01"

// ParseMonth parses a YYYY-MM month key.
func ParseMonth(month string) (time.Time, error) {
	t, err := time.Parse(monthLayout, month)
	if err != nil {
		return time.Time{}, apperrors.Invalid("month", "expected YYYY-MM, got %q", month)
	}
	return t, nil
}

// IsConsecutiveMonth reports whether m2 is exactly one calendar month after m1.
// Malformed keys are never consecutive.
func IsConsecutiveMonth(m1, m2 string) bool {
	t1, err := ParseMonth(m1)
	if err != nil {
		return false
	}
	t2, err := ParseMonth(m2)
	if err != nil {
		return false
	}
	return t1.AddDate(0, 1, 0).Equal(t2)
}

// Advance computes the streak after the user is best seller of month. last is the previous
// best-seller month (nil for none) and count the current streak. changed is false when month
// was already counted or precedes last; the caller must then leave the aggregate untouched.
func Advance(last *string, count int, month string) (next int, changed bool) {
	if last == nil || *last == "" {
		return 1, true
	}
	if month <= *last {
		return count, false
	}
	if IsConsecutiveMonth(*last, month) {
		return count + 1, true
	}
	return 1, true
}

// TopSellerProvider returns the top seller by amount for a month.
type TopSellerProvider interface {
	TopSeller(ctx context.Context, month string) (*models.MonthlySellerStats, error)
}

// Recorder applies a best-seller month to a user's aggregate, marks the stats row and settles
// consecutive trophies.
type Recorder interface {
	RecordBestSeller(ctx context.Context, userID uint, month string) (*models.UserGamification, error)
}

// Tracker connects the monthly stats to the scoring engine.
type Tracker struct {
	stats    TopSellerProvider
	recorder Recorder
	log      *logger.Logger
}

// NewTracker creates a Tracker.
func NewTracker(stats TopSellerProvider, recorder Recorder, log *logger.Logger) *Tracker {
	return &Tracker{
		stats:    stats,
		recorder: recorder,
		log:      log.Component("streak"),
	}
}

// UpdateBestSellerStatus records month for userID when the user is that month's top seller.
// It returns (nil, nil) when someone else, or nobody, holds the title.
func (t *Tracker) UpdateBestSellerStatus(ctx context.Context, userID uint, month string) (*models.UserGamification, error) {
	if _, err := ParseMonth(month); err != nil {
		return nil, err
	}

	top, err := t.stats.TopSeller(ctx, month)
	if errors.Is(err, apperrors.ErrNotFound) {
		t.log.Debug().Str("month", month).Msg("No sales recorded for month")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find top seller for %s: %w", month, err)
	}
	if top.UserID != userID {
		t.log.Debug().
			Uint("user_id", userID).
			Uint("top_seller_id", top.UserID).
			Str("month", month).
			Msg("User is not the best seller")
		return nil, nil
	}

	return t.recorder.RecordBestSeller(ctx, userID, month)
}

// RunMonth finds the top seller of month and records the title. It returns the winner's
// aggregate, or nil when the month has no sales.
func (t *Tracker) RunMonth(ctx context.Context, month string) (*models.UserGamification, error) {
	if _, err := ParseMonth(month); err != nil {
		return nil, err
	}

	top, err := t.stats.TopSeller(ctx, month)
	if errors.Is(err, apperrors.ErrNotFound) {
		t.log.Info().Str("month", month).Msg("No best seller for month")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find top seller for %s: %w", month, err)
	}

	ug, err := t.recorder.RecordBestSeller(ctx, top.UserID, month)
	if err != nil {
		return nil, err
	}

	t.log.Info().
		Uint("user_id", top.UserID).
		Str("month", month).
		Float64("total_sales", top.TotalSales).
		Int("streak", ug.ConsecutiveBestSellerCount).
		Msg("Best seller recorded")
	return ug, nil
}
