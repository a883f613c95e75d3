// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the gamification engine.
var (
	// Counters.
	PointsAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_points_applied_total",
			Help: "Total absolute points applied to user balances",
		},
		[]string{"direction", "source"},
	)

	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_operations_total",
			Help: "Total engine operations by outcome",
		},
		[]string{"operation", "status"},
	)

	AdminAdjustmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_admin_adjustments_total",
			Help: "Total privileged point adjustments by outcome",
		},
		[]string{"kind", "status"},
	)

	NoSalesPenaltiesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gamification_no_sales_penalties_total",
			Help: "Total no-sales penalties applied",
		},
	)

	DailyGoalsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_daily_goals_completed_total",
			Help: "Total daily goals completed",
		},
		[]string{"goal_type"},
	)

	LevelUpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_level_ups_total",
			Help: "Total level increases",
		},
		[]string{"level"},
	)

	NotificationsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_notifications_created_total",
			Help: "Total notifications produced",
		},
		[]string{"type"},
	)

	// Gauges.
	RulesetVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gamification_ruleset_version",
			Help: "Version of the ruleset snapshot currently in use",
		},
	)

	// Histograms.
	OperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gamification_operation_duration_seconds",
			Help:    "Engine operation latency including lock wait",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)

	// Scheduler metrics.
	SchedulerJobsRunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_jobs_run_total",
			Help: "Total scheduler job executions",
		},
		[]string{"job", "status"},
	)

	SchedulerNotificationsSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_notifications_sent_total",
			Help: "Total successful digest notifications sent",
		},
	)

	SchedulerNotificationsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_notifications_failed_total",
			Help: "Total failed notification attempts",
		},
		[]string{"reason"},
	)

	SchedulerLastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_last_run_timestamp",
			Help: "Unix timestamp of last scheduler run",
		},
		[]string{"job"},
	)

	SchedulerJobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Time taken to execute a scheduler job",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		},
		[]string{"job"},
	)

	// Award metrics.
	BadgesAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badges_awarded_total",
			Help: "Total number of badges awarded",
		},
		[]string{"badge_type"},
	)

	TrophiesAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trophies_awarded_total",
			Help: "Total number of trophies awarded",
		},
		[]string{"trophy", "category"},
	)

	ActiveBadgeHolders = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "active_badge_holders",
			Help: "Current number of users holding each badge",
		},
		[]string{"badge_type"},
	)
)

// RecordPointsApplied records an applied balance change. applied is the signed change after flooring.
func RecordPointsApplied(source string, applied int) {
	switch {
	case applied > 0:
		PointsAppliedTotal.WithLabelValues("earned", source).Add(float64(applied))
	case applied < 0:
		PointsAppliedTotal.WithLabelValues("lost", source).Add(float64(-applied))
	}
}

// RecordOperation records the outcome and latency of an engine operation.
func RecordOperation(operation, status string, seconds float64) {
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDurationSeconds.WithLabelValues(operation).Observe(seconds)
}

// RecordAdminAdjustment records a privileged adjustment attempt.
func RecordAdminAdjustment(kind, status string) {
	AdminAdjustmentsTotal.WithLabelValues(kind, status).Inc()
}

// RecordNoSalesPenalty records an applied no-sales penalty.
func RecordNoSalesPenalty() {
	NoSalesPenaltiesTotal.Inc()
}

// RecordDailyGoalCompleted records a completed daily goal.
func RecordDailyGoalCompleted(goalType string) {
	DailyGoalsCompletedTotal.WithLabelValues(goalType).Inc()
}

// RecordLevelUp records a user reaching level.
func RecordLevelUp(level string) {
	LevelUpsTotal.WithLabelValues(level).Inc()
}

// RecordNotificationCreated records a produced notification.
func RecordNotificationCreated(notificationType string) {
	NotificationsCreatedTotal.WithLabelValues(notificationType).Inc()
}

// SetRulesetVersion sets the active ruleset version.
func SetRulesetVersion(version uint64) {
	RulesetVersion.Set(float64(version))
}

// RecordSchedulerJobRun records a scheduler job execution.
func RecordSchedulerJobRun(job, status string) {
	SchedulerJobsRunTotal.WithLabelValues(job, status).Inc()
}

// RecordSchedulerNotificationSent records a successful notification sent.
func RecordSchedulerNotificationSent() {
	SchedulerNotificationsSentTotal.Inc()
}

// RecordSchedulerNotificationFailed records a failed notification attempt.
func RecordSchedulerNotificationFailed(reason string) {
	SchedulerNotificationsFailedTotal.WithLabelValues(reason).Inc()
}

// SetSchedulerLastRun sets the timestamp of the last run of job.
func SetSchedulerLastRun(job string) {
	SchedulerLastRunTimestamp.WithLabelValues(job).SetToCurrentTime()
}

// ObserveSchedulerJobDuration observes the duration of a scheduler job.
func ObserveSchedulerJobDuration(job string, seconds float64) {
	SchedulerJobDurationSeconds.WithLabelValues(job).Observe(seconds)
}

// RecordBadgeAwarded records a badge award event.
func RecordBadgeAwarded(badgeType string) {
	BadgesAwardedTotal.WithLabelValues(badgeType).Inc()
}

// RecordTrophyAwarded records a trophy award event.
func RecordTrophyAwarded(trophy, category string) {
	TrophiesAwardedTotal.WithLabelValues(trophy, category).Inc()
}

// SetActiveBadgeHolders sets the number of holders for a badge.
func SetActiveBadgeHolders(badgeType string, count int64) {
	ActiveBadgeHolders.WithLabelValues(badgeType).Set(float64(count))
}
