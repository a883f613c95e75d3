package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aimd54/retail-gamification/internal/apperrors"
	prommetrics "github.com/aimd54/retail-gamification/internal/metrics"
	"github.com/aimd54/retail-gamification/internal/models"
	"github.com/aimd54/retail-gamification/internal/repository"
	"github.com/aimd54/retail-gamification/internal/ruleset"
	"github.com/aimd54/retail-gamification/internal/service/eligibility"
)

// Point sources recorded in event payloads and metrics.
const (
	SourceDirect     = "direct"
	SourceAdmin      = "admin_adjustment"
	SourceSale       = "sale"
	SourceActivity   = "activity"
	SourceViolation  = "violation"
	SourceNoSales    = "no_sales_penalty"
	SourceDailyGoal  = "daily_goal"
	SourceTrophy     = "trophy"
	SourceBestSeller = "best_seller"
)

// session is the state of one unit of work inside its transaction. Every repository call goes
// through tx.
type session struct {
	ctx   context.Context
	e     *Engine
	tx    *repository.DB
	rs    *ruleset.Ruleset
	now   time.Time
	facts eligibility.Facts
	ug    *models.UserGamification
	dirty bool

	heldBadges   map[string]bool
	heldTrophies map[string]bool
	notes        []*models.GamificationNotification

	// collected for metrics once the transaction has committed
	applied  map[string]int
	badges   []string
	trophies []ruleset.Trophy
	goals    []string
	levelUps []int
}

// change is one balance mutation. An empty eventType derives points_earned or points_lost from
// the sign of delta.
type change struct {
	delta     int
	reason    string
	source    string
	eventType string
	data      map[string]interface{}
}

func (e *Engine) openSession(ctx context.Context, tx *repository.DB, rs *ruleset.Ruleset, userID uint, facts eligibility.Facts, now time.Time) (*session, error) {
	ledger := e.ledger.WithTx(tx)

	initial := eligibility.LevelFor(rs, 0)
	if _, err := ledger.EnsureUser(ctx, userID, initial.Level, initial.AvatarURL); err != nil {
		return nil, err
	}
	ug, err := ledger.LockUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &session{
		ctx:     ctx,
		e:       e,
		tx:      tx,
		rs:      rs,
		now:     now.UTC(),
		facts:   facts,
		ug:      ug,
		applied: make(map[string]int),
	}, nil
}

// credit applies c to the balance, floors it at zero, recomputes the level and appends the
// event row.
func (s *session) credit(c change) error {
	before := s.ug.TotalPoints
	after := before + c.delta
	if after < 0 {
		after = 0
	}
	levelBefore := s.ug.CurrentLevel
	level := eligibility.LevelFor(s.rs, after)

	s.ug.TotalPoints = after
	s.ug.CurrentLevel = level.Level
	if level.AvatarURL != "" {
		s.ug.CurrentAvatarURL = level.AvatarURL
	}
	s.dirty = true

	eventType := c.eventType
	if eventType == "" {
		eventType = models.EventPointsLost
		if c.delta > 0 {
			eventType = models.EventPointsEarned
		}
	}

	payload := models.PointsEventData{
		Delta:       c.delta,
		Applied:     after - before,
		Reason:      c.reason,
		Source:      c.source,
		TotalBefore: before,
		TotalAfter:  after,
		LevelBefore: levelBefore,
		LevelAfter:  level.Level,
	}
	if err := s.appendEvent(eventType, payload, c.data); err != nil {
		return err
	}
	s.applied[c.source] += after - before

	if level.Level > levelBefore {
		s.levelUps = append(s.levelUps, level.Level)
		s.notify(models.NotificationLevelUp,
			fmt.Sprintf("Level %d reached", level.Level),
			fmt.Sprintf("You are now %s with %d points.", levelName(level), after),
			nil, level.AvatarURL)
	}
	return nil
}

func levelName(level ruleset.AvatarLevel) string {
	if level.Name != "" {
		return level.Name
	}
	return "level " + strconv.Itoa(level.Level)
}

func (s *session) appendEvent(eventType string, payload interface{}, extra map[string]interface{}) error {
	var (
		data []byte
		err  error
	)
	if len(extra) == 0 {
		data, err = json.Marshal(payload)
	} else {
		data, err = json.Marshal(struct {
			Points interface{}            `json:"points"`
			Extra  map[string]interface{} `json:"details"`
		}{payload, extra})
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}

	return s.e.ledger.WithTx(s.tx).AppendEvent(s.ctx, &models.GamificationEvent{
		UserID:    s.ug.UserID,
		EventType: eventType,
		EventData: data,
		CreatedAt: s.now,
	})
}

// notify queues a notification. It is written when the session flushes.
func (s *session) notify(kind, title, message string, points *int, iconURL string) {
	n := &models.GamificationNotification{
		UserID:    s.ug.UserID,
		Type:      kind,
		Title:     title,
		Message:   message,
		Points:    points,
		CreatedAt: s.now,
	}
	if iconURL != "" {
		icon := iconURL
		n.IconURL = &icon
	}
	s.notes = append(s.notes, n)
}

// bumpGoal adds increment to today's goal row and awards the completion bonus the first time
// the target is reached. The row is locked for the rest of the transaction.
func (s *session) bumpGoal(goalType string, increment float64) error {
	target, ok := s.rs.DailyGoals.Targets[goalType]
	if !ok || increment <= 0 {
		return nil
	}

	goals := s.e.goals.WithTx(s.tx)
	day := eligibility.DayKey(s.now, s.e.loc)
	goal, err := goals.Lock(s.ctx, s.ug.UserID, goalType, day, target)
	if err != nil {
		return err
	}

	goal.CurrentValue += increment
	crossed := !goal.Completed && goal.CurrentValue >= goal.TargetValue
	if crossed {
		completedAt := s.now
		goal.Completed = true
		goal.CompletedAt = &completedAt
	}
	if err := goals.Save(s.ctx, goal); err != nil {
		return err
	}
	if !crossed {
		return nil
	}

	s.goals = append(s.goals, goalType)
	bonus := s.rs.DailyGoals.CompletionBonus
	if bonus != 0 {
		if err := s.credit(change{
			delta:  bonus,
			reason: fmt.Sprintf("daily goal %s reached", goalType),
			source: SourceDailyGoal,
			data:   map[string]interface{}{"goal_type": goalType, "day": day},
		}); err != nil {
			return err
		}
	}
	s.notify(models.NotificationDailyGoal,
		"Daily goal reached",
		fmt.Sprintf("You reached today's %s goal.", goalType),
		&bonus, "")
	return nil
}

// settleAwards grants every badge and trophy the user newly qualifies for. Trophy rewards can
// lift the balance over further thresholds, so it repeats until a pass awards no trophy.
func (s *session) settleAwards() error {
	if err := s.loadHeld(); err != nil {
		return err
	}
	for {
		if err := s.awardBadges(); err != nil {
			return err
		}
		awarded, err := s.awardTrophies()
		if err != nil {
			return err
		}
		if awarded == 0 {
			return nil
		}
	}
}

func (s *session) loadHeld() error {
	if s.heldBadges != nil {
		return nil
	}
	ledger := s.e.ledger.WithTx(s.tx)

	badges, err := ledger.ListBadges(s.ctx, s.ug.UserID)
	if err != nil {
		return err
	}
	achievements, err := ledger.ListAchievements(s.ctx, s.ug.UserID)
	if err != nil {
		return err
	}

	s.heldBadges = make(map[string]bool, len(badges))
	for _, b := range badges {
		s.heldBadges[b.BadgeType] = true
	}
	s.heldTrophies = make(map[string]bool, len(achievements))
	for _, a := range achievements {
		s.heldTrophies[a.AchievementName] = true
	}
	return nil
}

func (s *session) currentFacts() eligibility.Facts {
	f := s.facts
	f.TotalPoints = s.ug.TotalPoints
	f.BestSellerStreak = s.ug.ConsecutiveBestSellerCount
	return f
}

func (s *session) awardBadges() error {
	ledger := s.e.ledger.WithTx(s.tx)

	for _, badge := range eligibility.EligibleBadges(s.rs, s.currentFacts()) {
		if s.heldBadges[badge.Type] {
			continue
		}
		err := ledger.AwardBadge(s.ctx, &models.UserBadge{
			UserID:    s.ug.UserID,
			BadgeType: badge.Type,
			EarnedAt:  s.now,
			IsActive:  true,
		})
		s.heldBadges[badge.Type] = true
		if errors.Is(err, apperrors.ErrAlreadyAwarded) {
			continue
		}
		if err != nil {
			return err
		}

		s.badges = append(s.badges, badge.Type)
		s.notify(models.NotificationBadge,
			fmt.Sprintf("Badge earned: %s", badge.Name),
			badge.Description, nil, badge.IconURL)
	}
	return nil
}

func (s *session) awardTrophies() (int, error) {
	ledger := s.e.ledger.WithTx(s.tx)
	awarded := 0

	for _, trophy := range eligibility.EligibleTrophies(s.rs, s.currentFacts()) {
		if s.heldTrophies[trophy.Name] {
			continue
		}
		err := ledger.AwardAchievement(s.ctx, &models.UserAchievement{
			UserID:          s.ug.UserID,
			AchievementName: trophy.Name,
			PointsEarned:    trophy.PointsReward,
			EarnedAt:        s.now,
		})
		s.heldTrophies[trophy.Name] = true
		if errors.Is(err, apperrors.ErrAlreadyAwarded) {
			continue
		}
		if err != nil {
			return awarded, err
		}

		awarded++
		s.trophies = append(s.trophies, trophy)
		reward := trophy.PointsReward
		if reward != 0 {
			if err := s.credit(change{
				delta:  reward,
				reason: fmt.Sprintf("trophy %s", trophy.Name),
				source: SourceTrophy,
				data:   map[string]interface{}{"trophy": trophy.Name, "category": string(trophy.Category)},
			}); err != nil {
				return awarded, err
			}
		}
		s.notify(models.NotificationTrophy,
			fmt.Sprintf("Trophy earned: %s", trophy.Name),
			trophy.Description, &reward, trophy.IconURL)
	}
	return awarded, nil
}

// flush writes the aggregate and the queued notifications.
func (s *session) flush() error {
	if s.dirty {
		if err := s.e.ledger.WithTx(s.tx).SaveUser(s.ctx, s.ug); err != nil {
			return err
		}
	}
	return s.e.notifications.WithTx(s.tx).CreateBatch(s.ctx, s.notes)
}

// publishMetrics reports what a committed session did.
func (s *session) publishMetrics() {
	for source, applied := range s.applied {
		prommetrics.RecordPointsApplied(source, applied)
	}
	for _, badge := range s.badges {
		prommetrics.RecordBadgeAwarded(badge)
	}
	for _, trophy := range s.trophies {
		prommetrics.RecordTrophyAwarded(trophy.Name, string(trophy.Category))
	}
	for _, goal := range s.goals {
		prommetrics.RecordDailyGoalCompleted(goal)
	}
	for _, level := range s.levelUps {
		prommetrics.RecordLevelUp(strconv.Itoa(level))
	}
	for _, n := range s.notes {
		prommetrics.RecordNotificationCreated(n.Type)
	}
}
