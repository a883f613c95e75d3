// Package guard enforces the rate limits on privileged point adjustments: a cooldown per
// (admin, target) pair and a daily magnitude cap per admin.
package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/aimd54/retail-gamification/internal/apperrors"
	"github.com/aimd54/retail-gamification/internal/models"
	"github.com/aimd54/retail-gamification/internal/ruleset"
	"github.com/aimd54/retail-gamification/internal/service/eligibility"
)

// AdjustmentReader is the read side of the adjustment log.
type AdjustmentReader interface {
	LastForPair(ctx context.Context, adminID, targetUserID uint) (*models.AdminPointAdjustment, error)
	SumAbsBetween(ctx context.Context, adminID uint, start, end time.Time) (int, error)
}

// Request describes a privileged adjustment. Points is the unsigned magnitude.
type Request struct {
	AdminID      uint
	TargetUserID uint
	Points       int
}

// Guard evaluates both limits. The caller must hold the admin's lock and run Authorize in the
// same transaction as the adjustment insert so that lookup and insert form one critical section.
type Guard struct {
	loc *time.Location
}

// New creates a Guard whose calendar days are evaluated in loc.
func New(loc *time.Location) *Guard {
	if loc == nil {
		loc = time.UTC
	}
	return &Guard{loc: loc}
}

// Authorize returns nil when the adjustment may proceed, a *apperrors.CooldownError or
// *apperrors.DailyCapError when a limit rejects it, or a storage error.
func (g *Guard) Authorize(ctx context.Context, reader AdjustmentReader, cfg ruleset.AdminConfig, req Request, now time.Time) error {
	if req.Points <= 0 {
		return apperrors.Invalid("points", "must be positive, got %d", req.Points)
	}

	if err := g.checkCooldown(ctx, reader, cfg, req, now); err != nil {
		return err
	}
	return g.checkDailyCap(ctx, reader, cfg, req, now)
}

func (g *Guard) checkCooldown(ctx context.Context, reader AdjustmentReader, cfg ruleset.AdminConfig, req Request, now time.Time) error {
	if cfg.CooldownHours <= 0 {
		return nil
	}

	last, err := reader.LastForPair(ctx, req.AdminID, req.TargetUserID)
	if err != nil {
		return fmt.Errorf("cooldown lookup: %w", err)
	}
	if last == nil {
		return nil
	}

	availableAt := last.CreatedAt.Add(time.Duration(cfg.CooldownHours) * time.Hour)
	if now.Before(availableAt) {
		return &apperrors.CooldownError{
			AdminID:      req.AdminID,
			TargetUserID: req.TargetUserID,
			Remaining:    availableAt.Sub(now),
			AvailableAt:  availableAt,
		}
	}
	return nil
}

func (g *Guard) checkDailyCap(ctx context.Context, reader AdjustmentReader, cfg ruleset.AdminConfig, req Request, now time.Time) error {
	start, end, _ := eligibility.PeriodRange(ruleset.PeriodDaily, now, g.loc)

	used, err := reader.SumAbsBetween(ctx, req.AdminID, start, end)
	if err != nil {
		return fmt.Errorf("daily cap lookup: %w", err)
	}
	if used+req.Points > cfg.MaxDailyAdjustment {
		return &apperrors.DailyCapError{
			AdminID:   req.AdminID,
			Used:      used,
			Requested: req.Points,
			Limit:     cfg.MaxDailyAdjustment,
		}
	}
	return nil
}
