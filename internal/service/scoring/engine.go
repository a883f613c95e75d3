// Package scoring is the gamification engine. It turns business events into point balance
// changes, levels, badges, trophies and notifications, one transaction per event.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aimd54/retail-gamification/internal/apperrors"
	prommetrics "github.com/aimd54/retail-gamification/internal/metrics"
	"github.com/aimd54/retail-gamification/internal/models"
	"github.com/aimd54/retail-gamification/internal/pkg/lock"
	"github.com/aimd54/retail-gamification/internal/repository"
	"github.com/aimd54/retail-gamification/internal/ruleset"
	"github.com/aimd54/retail-gamification/internal/service/eligibility"
	"github.com/aimd54/retail-gamification/internal/service/guard"
	"github.com/aimd54/retail-gamification/pkg/logger"
)

// SalesProvider answers sales aggregate questions for a seller.
type SalesProvider interface {
	Totals(ctx context.Context, sellerID uint, start, end time.Time) (models.SalesTotals, error)
	HadSaleBetween(ctx context.Context, sellerID uint, start, end time.Time) (bool, error)
}

// RoleProvider resolves the role of an active user.
type RoleProvider interface {
	RoleOf(ctx context.Context, userID uint) (string, error)
}

// errNoop aborts a unit of work that turned out to have nothing to do.
var errNoop = errors.New("no-op")

// Engine orchestrates every mutation of a user's gamification state.
type Engine struct {
	db            *repository.DB
	ledger        *repository.GamificationRepository
	adjustments   *repository.AdjustmentRepository
	notifications *repository.NotificationRepository
	goals         *repository.GoalRepository
	stats         *repository.MonthlyStatsRepository
	users         *repository.UserRepository
	salesRepo     *repository.SalesRepository
	sales         SalesProvider
	roles         RoleProvider
	rules         *ruleset.Store
	locker        lock.Locker
	guard         *guard.Guard
	loc           *time.Location
	now           func() time.Time
	log           *logger.Logger
}

// NewEngine creates an engine backed by db for persistence and for the sales and role providers.
func NewEngine(
	db *repository.DB,
	rules *ruleset.Store,
	locker lock.Locker,
	loc *time.Location,
	log *logger.Logger,
) *Engine {
	return NewEngineWithProviders(db, rules, locker,
		repository.NewSalesRepository(db), repository.NewUserRepository(db), loc, log)
}

// NewEngineWithProviders creates an engine with external sales and role providers (useful for testing).
func NewEngineWithProviders(
	db *repository.DB,
	rules *ruleset.Store,
	locker lock.Locker,
	sales SalesProvider,
	roles RoleProvider,
	loc *time.Location,
	log *logger.Logger,
) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		db:            db,
		ledger:        repository.NewGamificationRepository(db),
		adjustments:   repository.NewAdjustmentRepository(db),
		notifications: repository.NewNotificationRepository(db),
		goals:         repository.NewGoalRepository(db),
		stats:         repository.NewMonthlyStatsRepository(db),
		users:         repository.NewUserRepository(db),
		salesRepo:     repository.NewSalesRepository(db),
		sales:         sales,
		roles:         roles,
		rules:         rules,
		locker:        locker,
		guard:         guard.New(loc),
		loc:           loc,
		now:           time.Now,
		log:           log.Component("scoring"),
	}
}

// SetClock replaces the time source.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Location returns the time zone calendar days are evaluated in.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Status returns the user's aggregate. A user without one yet is reported at the initial
// level with zero points; nothing is written.
func (e *Engine) Status(ctx context.Context, userID uint) (*models.UserGamification, error) {
	ug, err := e.ledger.GetUser(ctx, userID)
	if errors.Is(err, apperrors.ErrNotFound) {
		initial := eligibility.LevelFor(e.rules.Current(), 0)
		return &models.UserGamification{
			UserID:           userID,
			CurrentLevel:     initial.Level,
			CurrentAvatarURL: initial.AvatarURL,
		}, nil
	}
	if err != nil {
		return nil, apperrors.Classify("status", err)
	}
	return ug, nil
}

// unit describes one mutation of a single user's aggregate.
type unit struct {
	op     string
	userID uint
	// prepare runs under the user lock before the transaction opens. It may adjust the
	// gathered facts or return errNoop.
	prepare func(ctx context.Context, f *eligibility.Facts, now time.Time) error
	apply   func(s *session) error
}

// mutate runs u under the user's lock inside one transaction. It returns (nil, nil) when the
// unit reported errNoop.
func (e *Engine) mutate(ctx context.Context, u unit) (*models.UserGamification, error) {
	started := time.Now()
	rs := e.rules.Current()
	now := e.now()

	var (
		result *models.UserGamification
		sess   *session
	)
	err := e.locker.WithLock(ctx, lock.UserKey(u.userID), func() error {
		facts, err := e.gatherFacts(ctx, rs, u.userID, now)
		if err != nil {
			return err
		}
		if u.prepare != nil {
			if err := u.prepare(ctx, &facts, now); err != nil {
				return err
			}
		}

		return e.db.Transaction(ctx, func(tx *repository.DB) error {
			s, err := e.openSession(ctx, tx, rs, u.userID, facts, now)
			if err != nil {
				return err
			}
			if err := u.apply(s); err != nil {
				return err
			}
			if err := s.flush(); err != nil {
				return err
			}
			sess = s
			result = s.ug
			return nil
		})
	})

	elapsed := time.Since(started).Seconds()
	if errors.Is(err, errNoop) {
		prommetrics.RecordOperation(u.op, "noop", elapsed)
		return nil, nil
	}
	if err != nil {
		err = apperrors.Classify(u.op, err)
		prommetrics.RecordOperation(u.op, statusOf(err), elapsed)
		e.logFailure(u, err)
		return nil, err
	}

	prommetrics.RecordOperation(u.op, "success", elapsed)
	sess.publishMetrics()
	e.log.Debug().
		Str("operation", u.op).
		Uint("user_id", u.userID).
		Int("total_points", result.TotalPoints).
		Int("level", result.CurrentLevel).
		Uint64("ruleset_version", rs.Version).
		Msg("Operation applied")
	return result, nil
}

func (e *Engine) logFailure(u unit, err error) {
	event := e.log.Error()
	if apperrors.IsDomain(err) && !errors.Is(err, apperrors.ErrPersistence) {
		event = e.log.Debug()
	}
	event.Err(err).Str("operation", u.op).Uint("user_id", u.userID).Msg("Operation rejected")
}

// gatherFacts reads the external facts eligibility needs. It runs before the transaction opens
// so that the providers never compete with it for a connection.
func (e *Engine) gatherFacts(ctx context.Context, rs *ruleset.Ruleset, userID uint, now time.Time) (eligibility.Facts, error) {
	role, err := e.roles.RoleOf(ctx, userID)
	if err != nil {
		return eligibility.Facts{}, err
	}

	lifetime, err := e.sales.Totals(ctx, userID, time.Time{}, time.Time{})
	if err != nil {
		return eligibility.Facts{}, fmt.Errorf("failed to aggregate lifetime sales: %w", err)
	}

	facts := eligibility.Facts{
		Role:          role,
		LifetimeSales: lifetime,
		Periods:       make(map[ruleset.Period]models.SalesTotals),
	}
	for _, period := range eligibility.RequiredPeriods(rs) {
		if period == ruleset.PeriodAllTime {
			facts.Periods[period] = lifetime
			continue
		}
		start, end, ok := eligibility.PeriodRange(period, now, e.loc)
		if !ok {
			continue
		}
		totals, err := e.sales.Totals(ctx, userID, start, end)
		if err != nil {
			return eligibility.Facts{}, fmt.Errorf("failed to aggregate %s sales: %w", period, err)
		}
		facts.Periods[period] = totals
	}
	return facts, nil
}

// includeSale adds a sale that is written in the same transaction to the gathered facts.
func (e *Engine) includeSale(f *eligibility.Facts, amount float64, items int, soldAt, now time.Time) {
	add := func(t models.SalesTotals) models.SalesTotals {
		t.Count++
		t.Amount += amount
		t.Items += int64(items)
		return t
	}
	f.LifetimeSales = add(f.LifetimeSales)
	for period, totals := range f.Periods {
		start, end, ok := eligibility.PeriodRange(period, now, e.loc)
		if !ok {
			continue
		}
		if period == ruleset.PeriodAllTime || (!soldAt.Before(start) && soldAt.Before(end)) {
			f.Periods[period] = add(totals)
		}
	}
}

func statusOf(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrCooldownActive):
		return "cooldown"
	case errors.Is(err, apperrors.ErrDailyCapExceeded):
		return "daily_cap"
	case errors.Is(err, apperrors.ErrValidation):
		return "invalid"
	case errors.Is(err, apperrors.ErrForbidden):
		return "forbidden"
	case errors.Is(err, apperrors.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
