// Package scheduler runs the periodic gamification jobs: the daily no-sales sweep, the monthly
// best-seller computation, the notification digest and the ruleset reload.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aimd54/retail-gamification/internal/config"
	prommetrics "github.com/aimd54/retail-gamification/internal/metrics"
	"github.com/aimd54/retail-gamification/internal/models"
	"github.com/aimd54/retail-gamification/internal/ruleset"
	"github.com/aimd54/retail-gamification/internal/service/aggregator"
	"github.com/aimd54/retail-gamification/pkg/logger"
)

// Job names used in logs and metrics.
const (
	JobNoSales       = "no_sales_sweep"
	JobBestSeller    = "best_seller"
	JobDigest        = "digest"
	JobRulesetReload = "ruleset_reload"
)

// UserLister lists the users the sweep visits.
type UserLister interface {
	List(ctx context.Context, store, role string, activeOnly bool) ([]models.User, error)
}

// PenaltyApplier applies the daily no-sales penalty to one user.
type PenaltyApplier interface {
	ApplyNoSalesPenalty(ctx context.Context, userID uint) (*models.UserGamification, error)
}

// MonthAggregator materializes monthly seller statistics.
type MonthAggregator interface {
	AggregateMonth(ctx context.Context, month string) (int, error)
}

// MonthRunner crowns the best seller of a month.
type MonthRunner interface {
	RunMonth(ctx context.Context, month string) (*models.UserGamification, error)
}

// DigestSender posts the notification digest.
type DigestSender interface {
	SendDigest(ctx context.Context, since, until time.Time) (int, error)
}

// RulesetReloader refreshes the active ruleset.
type RulesetReloader interface {
	Reload(ctx context.Context) (*ruleset.Ruleset, error)
}

// BadgeHolderRefresher republishes badge holder gauges.
type BadgeHolderRefresher interface {
	RefreshBadgeHolders(ctx context.Context) error
}

// Deps groups the collaborators of the scheduled jobs. Nil members disable their job.
type Deps struct {
	Users      UserLister
	Penalties  PenaltyApplier
	Aggregator MonthAggregator
	Streaks    MonthRunner
	Digest     DigestSender
	Rules      RulesetReloader
	Badges     BadgeHolderRefresher
}

// Service handles periodic job scheduling.
type Service struct {
	config *config.SchedulerConfig
	deps   Deps
	log    *logger.Logger
	cron   *cron.Cron
	loc    *time.Location
	now    func() time.Time

	mu         sync.Mutex
	lastDigest time.Time
}

// NewService creates a new scheduler service.
func NewService(cfg *config.SchedulerConfig, deps Deps, log *logger.Logger) *Service {
	return &Service{
		config: cfg,
		deps:   deps,
		log:    log.Component("scheduler"),
		loc:    time.UTC,
		now:    time.Now,
	}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := time.LoadLocation(s.config.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Timezone, err)
	}
	s.loc = location
	s.cron = cron.New(cron.WithLocation(location))

	s.mu.Lock()
	s.lastDigest = s.now()
	s.mu.Unlock()

	jobs, err := s.jobs()
	if err != nil {
		return err
	}
	for _, job := range jobs {
		name, run := job.name, job.run
		if _, err := s.cron.AddFunc(job.spec, func() { s.runJob(context.Background(), name, run) }); err != nil {
			return fmt.Errorf("failed to register %s job: %w", name, err)
		}
		s.log.Info().Str("job", name).Str("schedule", job.spec).Msg("Job registered")
	}

	s.cron.Start()

	nextRun := ""
	if entries := s.cron.Entries(); len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}
	s.log.Info().
		Str("timezone", s.config.Timezone).
		Int("jobs", len(jobs)).
		Bool("skip_weekends", s.config.SkipWeekends).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context) error
}

// jobs returns the jobs whose collaborators and schedules are configured.
func (s *Service) jobs() ([]job, error) {
	var jobs []job

	if s.deps.Users != nil && s.deps.Penalties != nil && s.config.NoSalesTime != "" {
		spec, err := s.buildCronExpression()
		if err != nil {
			return nil, fmt.Errorf("failed to build cron expression: %w", err)
		}
		jobs = append(jobs, job{JobNoSales, spec, func(ctx context.Context) error {
			_, err := s.RunNoSalesSweep(ctx)
			return err
		}})
	}
	if s.deps.Aggregator != nil && s.deps.Streaks != nil && s.config.BestSellerCron != "" {
		jobs = append(jobs, job{JobBestSeller, s.config.BestSellerCron, func(ctx context.Context) error {
			return s.RunBestSeller(ctx, aggregator.PreviousMonth(s.now(), s.loc))
		}})
	}
	if s.deps.Digest != nil && s.config.DigestCron != "" {
		jobs = append(jobs, job{JobDigest, s.config.DigestCron, s.RunDigest})
	}
	if s.deps.Rules != nil && s.config.RulesetReloadCron != "" {
		jobs = append(jobs, job{JobRulesetReload, s.config.RulesetReloadCron, s.RunRulesetReload})
	}
	return jobs, nil
}

// buildCronExpression generates the sweep's cron expression from the configured HH:MM.
func (s *Service) buildCronExpression() (string, error) {
	parts := strings.Split(s.config.NoSalesTime, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time format %q, expected HH:MM", s.config.NoSalesTime)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour %q", parts[0])
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute %q", parts[1])
	}

	// Format: "minute hour day month weekday"
	if s.config.SkipWeekends {
		return fmt.Sprintf("%d %d * * 1-5", minute, hour), nil
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// runJob executes run and records its outcome.
func (s *Service) runJob(ctx context.Context, name string, run func(ctx context.Context) error) {
	start := time.Now()
	defer func() {
		prommetrics.ObserveSchedulerJobDuration(name, time.Since(start).Seconds())
		prommetrics.SetSchedulerLastRun(name)
	}()

	s.log.Info().Str("job", name).Msg("Running job")

	if err := run(ctx); err != nil {
		s.log.Error().Err(err).Str("job", name).Dur("duration", time.Since(start)).Msg("Job failed")
		prommetrics.RecordSchedulerJobRun(name, "error")
		return
	}

	prommetrics.RecordSchedulerJobRun(name, "success")
	s.log.Info().Str("job", name).Dur("duration", time.Since(start)).Msg("Job completed successfully")
}

// RunNoSalesSweep applies the no-sales penalty to every active seller. Failures for one seller
// are logged and do not stop the sweep. It returns the number of sellers penalized.
func (s *Service) RunNoSalesSweep(ctx context.Context) (int, error) {
	sellers, err := s.deps.Users.List(ctx, "", models.RoleSeller, true)
	if err != nil {
		return 0, fmt.Errorf("failed to list sellers: %w", err)
	}

	penalized, failed := 0, 0
	for _, seller := range sellers {
		if err := ctx.Err(); err != nil {
			return penalized, err
		}
		ug, err := s.deps.Penalties.ApplyNoSalesPenalty(ctx, seller.ID)
		if err != nil {
			failed++
			s.log.Warn().Err(err).Uint("user_id", seller.ID).Msg("Failed to apply no-sales penalty")
			continue
		}
		if ug != nil {
			penalized++
		}
	}

	s.log.Info().
		Int("sellers", len(sellers)).
		Int("penalized", penalized).
		Int("failed", failed).
		Msg("No-sales sweep finished")

	if failed > 0 {
		return penalized, fmt.Errorf("no-sales penalty failed for %d of %d sellers", failed, len(sellers))
	}
	return penalized, nil
}

// RunBestSeller aggregates month and advances the winner's best-seller streak.
func (s *Service) RunBestSeller(ctx context.Context, month string) error {
	sellers, err := s.deps.Aggregator.AggregateMonth(ctx, month)
	if err != nil {
		return fmt.Errorf("failed to aggregate %s: %w", month, err)
	}

	ug, err := s.deps.Streaks.RunMonth(ctx, month)
	if err != nil {
		return fmt.Errorf("failed to update best seller for %s: %w", month, err)
	}

	event := s.log.Info().Str("month", month).Int("sellers", sellers)
	if ug != nil {
		event = event.Uint("best_seller", ug.UserID).Int("streak", ug.ConsecutiveBestSellerCount)
	}
	event.Msg("Best seller computed")
	return nil
}

// RunDigest posts the notifications created since the previous successful digest. A failed
// post keeps the window start so that the next run covers the same notifications.
func (s *Service) RunDigest(ctx context.Context) error {
	cutoff := s.now()
	s.mu.Lock()
	if s.lastDigest.IsZero() {
		s.lastDigest = cutoff.Add(-24 * time.Hour)
	}
	since := s.lastDigest
	s.mu.Unlock()

	users, err := s.deps.Digest.SendDigest(ctx, since, cutoff)
	if err != nil {
		prommetrics.RecordSchedulerNotificationFailed("mattermost_error")
		return err
	}

	s.mu.Lock()
	s.lastDigest = cutoff
	s.mu.Unlock()

	if users > 0 {
		prommetrics.RecordSchedulerNotificationSent()
	}
	return nil
}

// RunRulesetReload reloads the ruleset and republishes the gauges that depend on it.
func (s *Service) RunRulesetReload(ctx context.Context) error {
	rs, err := s.deps.Rules.Reload(ctx)
	if err != nil {
		return err
	}
	prommetrics.SetRulesetVersion(rs.Version)

	if s.deps.Badges != nil {
		if err := s.deps.Badges.RefreshBadgeHolders(ctx); err != nil {
			return err
		}
	}
	return nil
}
