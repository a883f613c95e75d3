package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aimd54/retail-gamification/internal/apperrors"
	prommetrics "github.com/aimd54/retail-gamification/internal/metrics"
	"github.com/aimd54/retail-gamification/internal/models"
	"github.com/aimd54/retail-gamification/internal/pkg/lock"
	"github.com/aimd54/retail-gamification/internal/ruleset"
	"github.com/aimd54/retail-gamification/internal/service/eligibility"
	"github.com/aimd54/retail-gamification/internal/service/guard"
	"github.com/aimd54/retail-gamification/internal/service/streak"
)

// ApplyPoints adds delta (negative to debit) to the user's balance and settles awards.
func (e *Engine) ApplyPoints(ctx context.Context, userID uint, delta int, reason string) (*models.UserGamification, error) {
	if delta == 0 {
		return nil, apperrors.Invalid("delta", "must not be zero")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.Invalid("reason", "must not be empty")
	}

	return e.mutate(ctx, unit{
		op:     "apply_points",
		userID: userID,
		apply: func(s *session) error {
			if err := s.credit(change{delta: delta, reason: reason, source: SourceDirect}); err != nil {
				return err
			}
			return s.settleAwards()
		},
	})
}

// AdminAdjustment is a privileged point change. Points is the unsigned magnitude; Kind selects
// the sign.
type AdminAdjustment struct {
	AdminID      uint
	TargetUserID uint
	Points       int
	Reason       string
	Kind         string
}

func (a AdminAdjustment) validate() error {
	if a.Points <= 0 {
		return apperrors.Invalid("points", "must be positive, got %d", a.Points)
	}
	if a.Kind != models.AdjustmentAdd && a.Kind != models.AdjustmentSubtract {
		return apperrors.Invalid("kind", "must be %q or %q, got %q", models.AdjustmentAdd, models.AdjustmentSubtract, a.Kind)
	}
	if strings.TrimSpace(a.Reason) == "" {
		return apperrors.Invalid("reason", "must not be empty")
	}
	return nil
}

func (a AdminAdjustment) signed() int {
	if a.Kind == models.AdjustmentSubtract {
		return -a.Points
	}
	return a.Points
}

// AdjustAsAdmin applies a privileged adjustment after the cooldown and daily cap checks. A
// rejected request writes nothing.
func (e *Engine) AdjustAsAdmin(ctx context.Context, adj AdminAdjustment) (*models.UserGamification, error) {
	ug, err := e.adjustAsAdmin(ctx, adj)
	prommetrics.RecordAdminAdjustment(adj.Kind, adjustmentStatus(err))
	return ug, err
}

func adjustmentStatus(err error) string {
	if err == nil {
		return "success"
	}
	return statusOf(err)
}

func (e *Engine) adjustAsAdmin(ctx context.Context, adj AdminAdjustment) (*models.UserGamification, error) {
	if err := adj.validate(); err != nil {
		return nil, err
	}

	role, err := e.roles.RoleOf(ctx, adj.AdminID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("admin %d is unknown or inactive: %w", adj.AdminID, apperrors.ErrForbidden)
	}
	if err != nil {
		return nil, apperrors.Classify("admin_adjust", err)
	}
	if role != models.RoleAdmin {
		return nil, fmt.Errorf("user %d has role %q: %w", adj.AdminID, role, apperrors.ErrForbidden)
	}

	var ug *models.UserGamification
	err = e.locker.WithLock(ctx, lock.AdminKey(adj.AdminID), func() error {
		var err error
		ug, err = e.mutate(ctx, unit{
			op:     "admin_adjust",
			userID: adj.TargetUserID,
			apply:  func(s *session) error { return s.adminAdjust(adj) },
		})
		return err
	})
	if err != nil {
		return nil, apperrors.Classify("admin_adjust", err)
	}

	e.log.Info().
		Uint("admin_id", adj.AdminID).
		Uint("user_id", adj.TargetUserID).
		Int("points", adj.signed()).
		Str("reason", adj.Reason).
		Msg("Admin adjustment applied")
	return ug, nil
}

func (s *session) adminAdjust(adj AdminAdjustment) error {
	// Serializes adjustments by the same admin across processes sharing the database.
	if _, err := s.e.users.WithTx(s.tx).LockByID(s.ctx, adj.AdminID); err != nil {
		return err
	}

	adjustments := s.e.adjustments.WithTx(s.tx)
	req := guard.Request{AdminID: adj.AdminID, TargetUserID: adj.TargetUserID, Points: adj.Points}
	if err := s.e.guard.Authorize(s.ctx, adjustments, s.rs.AdminConfig, req, s.now); err != nil {
		return err
	}

	delta := adj.signed()
	if err := s.credit(change{
		delta:  delta,
		reason: adj.Reason,
		source: SourceAdmin,
		data:   map[string]interface{}{"admin_id": adj.AdminID, "kind": adj.Kind},
	}); err != nil {
		return err
	}
	if err := adjustments.Create(s.ctx, &models.AdminPointAdjustment{
		AdminID:        adj.AdminID,
		UserID:         adj.TargetUserID,
		PointsAdjusted: delta,
		Reason:         adj.Reason,
		AdjustmentType: adj.Kind,
		CreatedAt:      s.now,
	}); err != nil {
		return err
	}
	s.notify(models.NotificationAdminAdjustment,
		"Points adjusted by an administrator",
		adj.Reason, &delta, "")

	return s.settleAwards()
}

// ApplyNoSalesPenalty debits the daily no-sales penalty. It returns (nil, nil) without writing
// anything when the automatic penalty is disabled, the user sold something today, or the
// penalty was already applied today.
func (e *Engine) ApplyNoSalesPenalty(ctx context.Context, userID uint) (*models.UserGamification, error) {
	rs := e.rules.Current()
	if !rs.AdminConfig.AutoPenaltyNoSales {
		return nil, nil
	}
	penalty, ok := rs.Penalties[ruleset.PenaltyNoSalesDaily]
	if !ok || penalty == 0 {
		return nil, nil
	}

	start, end, _ := eligibility.PeriodRange(ruleset.PeriodDaily, e.now(), e.loc)

	ug, err := e.mutate(ctx, unit{
		op:     "no_sales_penalty",
		userID: userID,
		prepare: func(ctx context.Context, _ *eligibility.Facts, _ time.Time) error {
			sold, err := e.sales.HadSaleBetween(ctx, userID, start, end)
			if err != nil {
				return fmt.Errorf("failed to check today's sales: %w", err)
			}
			if sold {
				return errNoop
			}
			return nil
		},
		apply: func(s *session) error {
			already, err := s.e.ledger.WithTx(s.tx).HasEventBetween(s.ctx, userID, models.EventNoSalesPenalty, start, end)
			if err != nil {
				return err
			}
			if already {
				return errNoop
			}

			if err := s.credit(change{
				delta:     penalty,
				reason:    "no sales today",
				source:    SourceNoSales,
				eventType: models.EventNoSalesPenalty,
				data:      map[string]interface{}{"day": eligibility.DayKey(s.now, s.e.loc)},
			}); err != nil {
				return err
			}
			s.notify(models.NotificationNoSalesPenalty,
				"No sales today",
				fmt.Sprintf("%d points were deducted because no sale was recorded today.", -penalty),
				&penalty, "")
			return nil
		},
	})
	if err == nil && ug != nil {
		prommetrics.RecordNoSalesPenalty()
	}
	return ug, err
}

// UpdateDailyGoal adds increment to today's progress on goalType. Reaching the target for the
// first time that day awards the completion bonus.
func (e *Engine) UpdateDailyGoal(ctx context.Context, userID uint, goalType string, increment float64) (*models.UserGamification, error) {
	if !e.rules.Current().HasGoal(goalType) {
		return nil, apperrors.Invalid("goal_type", "unknown goal type %q", goalType)
	}
	if increment <= 0 {
		return nil, apperrors.Invalid("value", "must be positive, got %v", increment)
	}

	return e.mutate(ctx, unit{
		op:     "daily_goal",
		userID: userID,
		apply: func(s *session) error {
			if err := s.bumpGoal(goalType, increment); err != nil {
				return err
			}
			return s.settleAwards()
		},
	})
}

// RecordBestSeller applies a best-seller month to the user's streak, marks the month's stats
// row and settles consecutive trophies. A month that is already counted, or older than the
// last counted one, leaves the aggregate untouched.
func (e *Engine) RecordBestSeller(ctx context.Context, userID uint, month string) (*models.UserGamification, error) {
	if _, err := streak.ParseMonth(month); err != nil {
		return nil, err
	}

	return e.mutate(ctx, unit{
		op:     "best_seller",
		userID: userID,
		apply: func(s *session) error {
			if err := s.e.stats.WithTx(s.tx).MarkBestSeller(s.ctx, userID, month); err != nil {
				return err
			}

			next, changed := streak.Advance(s.ug.LastBestSellerMonth, s.ug.ConsecutiveBestSellerCount, month)
			if !changed {
				return nil
			}
			s.ug.ConsecutiveBestSellerCount = next
			m := month
			s.ug.LastBestSellerMonth = &m
			s.dirty = true

			if err := s.appendEvent(models.EventBestSeller, map[string]interface{}{
				"month":  month,
				"streak": next,
			}, nil); err != nil {
				return err
			}
			s.notify(models.NotificationBestSeller,
				fmt.Sprintf("Best seller of %s", month),
				fmt.Sprintf("You are the best seller of %s. Streak: %d month(s).", month, next),
				nil, "")
			return s.settleAwards()
		},
	})
}

// SaleEvent is a completed sale reported by the sales module.
type SaleEvent struct {
	SellerID   uint
	Amount     float64
	Items      int
	SoldAt     time.Time
	Conditions []string
}

// RecordSale stores the sale, awards sale points with the applicable multipliers and advances
// the sales goals, all in one transaction.
func (e *Engine) RecordSale(ctx context.Context, sale SaleEvent) (*models.UserGamification, error) {
	if sale.Amount <= 0 {
		return nil, apperrors.Invalid("amount", "must be positive, got %v", sale.Amount)
	}
	if sale.Items < 0 {
		return nil, apperrors.Invalid("items", "must not be negative, got %d", sale.Items)
	}
	if sale.Items == 0 {
		sale.Items = 1
	}
	if sale.SoldAt.IsZero() {
		sale.SoldAt = e.now()
	}

	rs := e.rules.Current()
	conditions := e.saleConditions(sale)
	base := rs.BasePoints[ruleset.PointsSaleCompleted] + rs.BasePoints[ruleset.PointsProductSold]*sale.Items
	points := rs.ApplyMultipliers(base, conditions)

	return e.mutate(ctx, unit{
		op:     "record_sale",
		userID: sale.SellerID,
		prepare: func(_ context.Context, f *eligibility.Facts, now time.Time) error {
			e.includeSale(f, sale.Amount, sale.Items, sale.SoldAt, now)
			return nil
		},
		apply: func(s *session) error {
			if err := s.e.salesRepo.WithTx(s.tx).Create(s.ctx, &models.Sale{
				SellerID:  sale.SellerID,
				Amount:    sale.Amount,
				ItemCount: sale.Items,
				SoldAt:    sale.SoldAt,
			}); err != nil {
				return err
			}
			if points != 0 {
				if err := s.credit(change{
					delta:  points,
					reason: "sale completed",
					source: SourceSale,
					data:   map[string]interface{}{"amount": sale.Amount, "items": sale.Items, "conditions": conditions},
				}); err != nil {
					return err
				}
			}
			for _, g := range []struct {
				goal  string
				value float64
			}{
				{ruleset.GoalSalesCount, 1},
				{ruleset.GoalSalesAmount, sale.Amount},
				{ruleset.GoalProductsSold, float64(sale.Items)},
			} {
				if err := s.bumpGoal(g.goal, g.value); err != nil {
					return err
				}
			}
			return s.settleAwards()
		},
	})
}

// saleConditions returns the multiplier conditions of a sale. Weekend sales are detected from
// the sale time in the engine's location.
func (e *Engine) saleConditions(sale SaleEvent) []string {
	conditions := append([]string(nil), sale.Conditions...)
	switch sale.SoldAt.In(e.loc).Weekday() {
	case time.Saturday, time.Sunday:
		conditions = append(conditions, ruleset.MultiplierWeekendSale)
	}
	return conditions
}

var activityKinds = map[string]bool{
	ruleset.PointsCustomerSatisfaction: true,
	ruleset.PointsTrainingCompleted:    true,
	ruleset.PointsPerfectAttendance:    true,
}

// RecordActivity awards the base points of a non-sale activity. Customer satisfaction also
// advances the satisfaction goal.
func (e *Engine) RecordActivity(ctx context.Context, userID uint, kind string) (*models.UserGamification, error) {
	points, ok := e.rules.Current().BasePoints[kind]
	if !activityKinds[kind] || !ok {
		return nil, apperrors.Invalid("kind", "unknown activity %q", kind)
	}

	return e.mutate(ctx, unit{
		op:     "record_activity",
		userID: userID,
		apply: func(s *session) error {
			if points != 0 {
				if err := s.credit(change{delta: points, reason: kind, source: SourceActivity}); err != nil {
					return err
				}
			}
			if kind == ruleset.PointsCustomerSatisfaction {
				if err := s.bumpGoal(ruleset.GoalCustomerSatisfaction, 1); err != nil {
					return err
				}
			}
			return s.settleAwards()
		},
	})
}

// ApplyViolation debits the configured penalty for a violation. The no-sales penalty has its
// own entry point.
func (e *Engine) ApplyViolation(ctx context.Context, userID uint, violation string) (*models.UserGamification, error) {
	penalty, ok := e.rules.Current().Penalties[violation]
	if !ok || violation == ruleset.PenaltyNoSalesDaily {
		return nil, apperrors.Invalid("violation", "unknown violation %q", violation)
	}
	if penalty == 0 {
		return e.Status(ctx, userID)
	}

	return e.mutate(ctx, unit{
		op:     "violation",
		userID: userID,
		apply: func(s *session) error {
			if err := s.credit(change{
				delta:  penalty,
				reason: "penalty " + violation,
				source: SourceViolation,
			}); err != nil {
				return err
			}
			s.notify(models.NotificationPenalty,
				"Penalty applied",
				fmt.Sprintf("%d points were deducted for %s.", -penalty, strings.ReplaceAll(violation, "_", " ")),
				&penalty, "")
			return nil
		},
	})
}
