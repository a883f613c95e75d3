package leaderboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aimd54/retail-gamification/internal/apperrors"
	prommetrics "github.com/aimd54/retail-gamification/internal/metrics"
	"github.com/aimd54/retail-gamification/internal/models"
	"github.com/aimd54/retail-gamification/internal/repository"
	"github.com/aimd54/retail-gamification/internal/ruleset"
	"github.com/aimd54/retail-gamification/pkg/logger"
)

// Mock repositories for testing
type mockLedgerRepository struct {
	aggregates   map[uint]*models.UserGamification
	badges       map[uint][]models.UserBadge
	achievements map[uint][]models.UserAchievement
	events       map[uint][]models.GamificationEvent
	users        *mockUserRepository
	err          error
}

func newMockLedgerRepository(users *mockUserRepository) *mockLedgerRepository {
	return &mockLedgerRepository{
		aggregates:   make(map[uint]*models.UserGamification),
		badges:       make(map[uint][]models.UserBadge),
		achievements: make(map[uint][]models.UserAchievement),
		events:       make(map[uint][]models.GamificationEvent),
		users:        users,
	}
}

// Leaderboard orders by points descending then user id, as the SQL query does.
func (m *mockLedgerRepository) Leaderboard(_ context.Context, store string, limit int) ([]repository.LeaderboardRow, error) {
	if m.err != nil {
		return nil, m.err
	}
	var rows []repository.LeaderboardRow
	for id, ug := range m.aggregates {
		user, ok := m.users.users[id]
		if !ok || !user.IsActive {
			continue
		}
		if store != "" && user.Store != store {
			continue
		}
		rows = append(rows, repository.LeaderboardRow{
			UserID:       id,
			Username:     user.Username,
			Store:        user.Store,
			Role:         user.Role,
			TotalPoints:  ug.TotalPoints,
			CurrentLevel: ug.CurrentLevel,
			BadgeCount:   int64(len(m.badges[id])),
		})
	}
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0; j-- {
			a, b := rows[j-1], rows[j]
			if a.TotalPoints > b.TotalPoints || (a.TotalPoints == b.TotalPoints && a.UserID < b.UserID) {
				break
			}
			rows[j-1], rows[j] = b, a
		}
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m *mockLedgerRepository) GetUser(_ context.Context, userID uint) (*models.UserGamification, error) {
	ug, ok := m.aggregates[userID]
	if !ok {
		return nil, apperrors.NotFound("user gamification", userID)
	}
	return ug, nil
}

func (m *mockLedgerRepository) ListBadges(_ context.Context, userID uint) ([]models.UserBadge, error) {
	return m.badges[userID], nil
}

func (m *mockLedgerRepository) ListAchievements(_ context.Context, userID uint) ([]models.UserAchievement, error) {
	return m.achievements[userID], nil
}

func (m *mockLedgerRepository) ListEvents(_ context.Context, userID uint, limit int) ([]models.GamificationEvent, error) {
	events := m.events[userID]
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (m *mockLedgerRepository) BadgeHolderCounts(_ context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, badges := range m.badges {
		for _, b := range badges {
			if b.IsActive {
				counts[b.BadgeType]++
			}
		}
	}
	return counts, nil
}

type mockUserRepository struct {
	users map[uint]*models.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		users: make(map[uint]*models.User),
	}
}

func (m *mockUserRepository) GetByID(_ context.Context, id uint) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, apperrors.NotFound("user", id)
	}
	return user, nil
}

type mockSalesRepository struct {
	totals map[uint]models.SalesTotals
	start  time.Time
	end    time.Time
}

func (m *mockSalesRepository) Totals(_ context.Context, sellerID uint, start, end time.Time) (models.SalesTotals, error) {
	m.start, m.end = start, end
	return m.totals[sellerID], nil
}

type mockNotificationRepository struct {
	unread map[uint]int64
}

func (m *mockNotificationRepository) CountUnread(_ context.Context, userID uint) (int64, error) {
	return m.unread[userID], nil
}

type testEnv struct {
	service       *Service
	ledger        *mockLedgerRepository
	users         *mockUserRepository
	sales         *mockSalesRepository
	notifications *mockNotificationRepository
}

// Test setup helper
func setupTestService() *testEnv {
	users := newMockUserRepository()
	ledger := newMockLedgerRepository(users)
	sales := &mockSalesRepository{totals: make(map[uint]models.SalesTotals)}
	notifications := &mockNotificationRepository{unread: make(map[uint]int64)}
	log := logger.New("debug", "text", "stdout")

	service := NewServiceWithInterfaces(ledger, users, sales, notifications,
		ruleset.NewStore(nil, log), time.UTC, log)
	service.SetClock(func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) })

	return &testEnv{service: service, ledger: ledger, users: users, sales: sales, notifications: notifications}
}

func (e *testEnv) addUser(id uint, username, store string, points, level int) {
	e.users.users[id] = &models.User{ID: id, Username: username, Store: store, Role: models.RoleSeller, IsActive: true}
	e.ledger.aggregates[id] = &models.UserGamification{UserID: id, TotalPoints: points, CurrentLevel: level}
}

func TestGetGlobalLeaderboard(t *testing.T) {
	env := setupTestService()
	env.addUser(1, "alice", "madrid", 350, 3)
	env.addUser(2, "bob", "madrid", 120, 2)
	env.addUser(3, "charlie", "lisbon", 700, 4)
	env.ledger.badges[3] = []models.UserBadge{{UserID: 3, BadgeType: "bronze", IsActive: true}}

	entries, err := env.service.GetGlobalLeaderboard(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetGlobalLeaderboard failed: %v", err)
	}

	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	wantOrder := []string{"charlie", "alice", "bob"}
	for i, name := range wantOrder {
		if entries[i].Username != name {
			t.Errorf("Position %d: expected %s, got %s", i, name, entries[i].Username)
		}
		if entries[i].Rank != i+1 {
			t.Errorf("Position %d: expected rank %d, got %d", i, i+1, entries[i].Rank)
		}
	}
	if entries[0].LevelName != "Expert" {
		t.Errorf("Expected level name Expert, got %q", entries[0].LevelName)
	}
	if entries[0].BadgeCount != 1 {
		t.Errorf("Expected 1 badge for charlie, got %d", entries[0].BadgeCount)
	}
}

func TestGetGlobalLeaderboard_TiesShareRank(t *testing.T) {
	env := setupTestService()
	env.addUser(1, "alice", "madrid", 200, 2)
	env.addUser(2, "bob", "madrid", 200, 2)
	env.addUser(3, "charlie", "madrid", 50, 1)

	entries, err := env.service.GetGlobalLeaderboard(context.Background(), 0)
	if err != nil {
		t.Fatalf("GetGlobalLeaderboard failed: %v", err)
	}

	ranks := []int{entries[0].Rank, entries[1].Rank, entries[2].Rank}
	if ranks[0] != 1 || ranks[1] != 1 || ranks[2] != 3 {
		t.Errorf("Expected ranks [1 1 3], got %v", ranks)
	}
}

func TestGetGlobalLeaderboard_Limit(t *testing.T) {
	env := setupTestService()
	for i := uint(1); i <= 5; i++ {
		env.addUser(i, "user", "madrid", int(i)*10, 1)
	}

	entries, err := env.service.GetGlobalLeaderboard(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetGlobalLeaderboard failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected 2 entries, got %d", len(entries))
	}
}

func TestGetStoreLeaderboard(t *testing.T) {
	env := setupTestService()
	env.addUser(1, "alice", "madrid", 350, 3)
	env.addUser(2, "bob", "lisbon", 900, 4)
	env.addUser(3, "charlie", "madrid", 10, 1)

	entries, err := env.service.GetStoreLeaderboard(context.Background(), "madrid", 10)
	if err != nil {
		t.Fatalf("GetStoreLeaderboard failed: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.Store != "madrid" {
			t.Errorf("Expected only madrid users, got %s", entry.Store)
		}
	}
	if entries[0].Username != "alice" || entries[0].Rank != 1 {
		t.Errorf("Expected alice at rank 1, got %s at %d", entries[0].Username, entries[0].Rank)
	}

	if _, err := env.service.GetStoreLeaderboard(context.Background(), "", 10); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("Expected validation error for empty store, got %v", err)
	}
}

func TestGetLeaderboard_StorageError(t *testing.T) {
	env := setupTestService()
	env.ledger.err = errors.New("connection reset")

	_, err := env.service.GetGlobalLeaderboard(context.Background(), 10)
	if !errors.Is(err, apperrors.ErrPersistence) {
		t.Errorf("Expected persistence error, got %v", err)
	}
}

func TestGetUserRank(t *testing.T) {
	env := setupTestService()
	env.addUser(1, "alice", "madrid", 350, 3)
	env.addUser(2, "bob", "lisbon", 900, 4)

	rank, err := env.service.GetUserRank(context.Background(), 1, "")
	if err != nil {
		t.Fatalf("GetUserRank failed: %v", err)
	}
	if rank != 2 {
		t.Errorf("Expected global rank 2, got %d", rank)
	}

	rank, err = env.service.GetUserRank(context.Background(), 1, "madrid")
	if err != nil {
		t.Fatalf("GetUserRank failed: %v", err)
	}
	if rank != 1 {
		t.Errorf("Expected store rank 1, got %d", rank)
	}

	if _, err := env.service.GetUserRank(context.Background(), 99, ""); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected not found for unranked user, got %v", err)
	}
}

func TestGetUserProfile(t *testing.T) {
	env := setupTestService()
	env.addUser(1, "alice", "madrid", 350, 3)
	env.addUser(2, "bob", "madrid", 900, 4)
	month := "2024-02"
	env.ledger.aggregates[1].ConsecutiveBestSellerCount = 2
	env.ledger.aggregates[1].LastBestSellerMonth = &month
	earned := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	env.ledger.badges[1] = []models.UserBadge{
		{UserID: 1, BadgeType: "bronze", EarnedAt: earned, IsActive: true},
		{UserID: 1, BadgeType: "silver", EarnedAt: earned, IsActive: true},
		{UserID: 1, BadgeType: "retired", EarnedAt: earned, IsActive: true},
	}
	env.ledger.achievements[1] = []models.UserAchievement{
		{UserID: 1, AchievementName: "First Day Hero", PointsEarned: 50, EarnedAt: earned},
	}
	env.sales.totals[1] = models.SalesTotals{Count: 4, Amount: 520, Items: 7}
	env.notifications.unread[1] = 3

	profile, err := env.service.GetUserProfile(context.Background(), 1, ruleset.PeriodMonthly)
	if err != nil {
		t.Fatalf("GetUserProfile failed: %v", err)
	}

	if profile.Username != "alice" || profile.Store != "madrid" {
		t.Errorf("Unexpected identity: %s/%s", profile.Username, profile.Store)
	}
	if profile.Level.Level != 3 || profile.Level.Name != "Seller" {
		t.Errorf("Expected level 3 Seller, got %d %s", profile.Level.Level, profile.Level.Name)
	}
	if profile.NextLevel == nil || profile.NextLevel.Level != 4 {
		t.Fatalf("Expected next level 4, got %+v", profile.NextLevel)
	}
	if profile.PointsToNextLevel != 250 {
		t.Errorf("Expected 250 points to next level, got %d", profile.PointsToNextLevel)
	}
	if profile.BestSellerStreak != 2 || profile.LastBestSellerMonth == nil || *profile.LastBestSellerMonth != month {
		t.Errorf("Unexpected streak: %d %v", profile.BestSellerStreak, profile.LastBestSellerMonth)
	}
	if profile.Sales.Count != 4 {
		t.Errorf("Expected 4 sales, got %d", profile.Sales.Count)
	}
	wantStart := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if !env.sales.start.Equal(wantStart) {
		t.Errorf("Expected sales range to start at %v, got %v", wantStart, env.sales.start)
	}
	if len(profile.Badges) != 3 {
		t.Fatalf("Expected 3 badges, got %d", len(profile.Badges))
	}
	if profile.Badges[0].Name != "Bronze Seller" {
		t.Errorf("Expected badge name from ruleset, got %q", profile.Badges[0].Name)
	}
	if profile.Badges[2].Name != "retired" {
		t.Errorf("Expected unknown badge to keep its type as name, got %q", profile.Badges[2].Name)
	}
	if len(profile.Trophies) != 1 || profile.Trophies[0].Category != ruleset.CategorySpecial {
		t.Errorf("Unexpected trophies: %+v", profile.Trophies)
	}
	if profile.UnreadNotifications != 3 {
		t.Errorf("Expected 3 unread notifications, got %d", profile.UnreadNotifications)
	}
	if profile.GlobalRank != 2 || profile.StoreRank != 2 {
		t.Errorf("Expected ranks 2/2, got %d/%d", profile.GlobalRank, profile.StoreRank)
	}
}

func TestGetUserProfile_WithoutAggregate(t *testing.T) {
	env := setupTestService()
	env.users.users[7] = &models.User{ID: 7, Username: "newbie", Store: "madrid", Role: models.RoleSeller, IsActive: true}

	profile, err := env.service.GetUserProfile(context.Background(), 7, "")
	if err != nil {
		t.Fatalf("GetUserProfile failed: %v", err)
	}

	if profile.TotalPoints != 0 || profile.Level.Level != 1 {
		t.Errorf("Expected initial state, got %d points at level %d", profile.TotalPoints, profile.Level.Level)
	}
	if profile.Period != ruleset.PeriodMonthly {
		t.Errorf("Expected default period monthly, got %s", profile.Period)
	}
	if profile.GlobalRank != 0 {
		t.Errorf("Expected unranked user, got rank %d", profile.GlobalRank)
	}
}

func TestGetUserProfile_Errors(t *testing.T) {
	env := setupTestService()
	env.addUser(1, "alice", "madrid", 10, 1)

	if _, err := env.service.GetUserProfile(context.Background(), 99, ruleset.PeriodMonthly); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Expected not found for unknown user, got %v", err)
	}
	if _, err := env.service.GetUserProfile(context.Background(), 1, "fortnightly"); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("Expected validation error for unknown period, got %v", err)
	}
}

func TestListBadgesAndTrophies(t *testing.T) {
	env := setupTestService()
	env.addUser(1, "alice", "madrid", 350, 3)
	env.addUser(2, "bob", "madrid", 150, 2)
	env.ledger.badges[1] = []models.UserBadge{{BadgeType: "bronze", IsActive: true}, {BadgeType: "silver", IsActive: true}}
	env.ledger.badges[2] = []models.UserBadge{{BadgeType: "bronze", IsActive: true}}

	summaries, err := env.service.ListBadges(context.Background())
	if err != nil {
		t.Fatalf("ListBadges failed: %v", err)
	}
	holders := make(map[string]int64)
	for _, s := range summaries {
		holders[s.Type] = s.Holders
	}
	if holders["bronze"] != 2 || holders["silver"] != 1 || holders["gold"] != 0 {
		t.Errorf("Unexpected holder counts: %v", holders)
	}

	trophies := env.service.ListTrophies()
	if len(trophies) == 0 {
		t.Error("Expected configured trophies")
	}
	for _, trophy := range trophies {
		if !trophy.IsActive {
			t.Errorf("Inactive trophy %s listed", trophy.Name)
		}
	}
}

func TestRefreshBadgeHolders(t *testing.T) {
	env := setupTestService()
	env.addUser(1, "alice", "madrid", 350, 3)
	env.ledger.badges[1] = []models.UserBadge{{BadgeType: "bronze", IsActive: true}, {BadgeType: "silver", IsActive: true}}

	if err := env.service.RefreshBadgeHolders(context.Background()); err != nil {
		t.Fatalf("RefreshBadgeHolders failed: %v", err)
	}

	if got := testutil.ToFloat64(prommetrics.ActiveBadgeHolders.WithLabelValues("bronze")); got != 1 {
		t.Errorf("Expected 1 bronze holder, got %v", got)
	}
	if got := testutil.ToFloat64(prommetrics.ActiveBadgeHolders.WithLabelValues("gold")); got != 0 {
		t.Errorf("Expected 0 gold holders, got %v", got)
	}
}
