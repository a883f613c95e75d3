//nolint:noctx // Test file uses http.NewRequest for simplicity
package gamification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/retail-gamification/internal/apperrors"
	"github.com/aimd54/retail-gamification/internal/models"
	"github.com/aimd54/retail-gamification/internal/notify"
	"github.com/aimd54/retail-gamification/internal/ruleset"
	"github.com/aimd54/retail-gamification/internal/service/scoring"
	"github.com/aimd54/retail-gamification/pkg/logger"
)

// Mock Engine
type mockEngine struct {
	result     *models.UserGamification
	err        error
	lastOp     string
	lastUserID uint
	lastAdjust scoring.AdminAdjustment
	lastSale   scoring.SaleEvent
}

func (m *mockEngine) record(op string, userID uint) (*models.UserGamification, error) {
	m.lastOp = op
	m.lastUserID = userID
	return m.result, m.err
}

func (m *mockEngine) ApplyPoints(_ context.Context, userID uint, _ int, _ string) (*models.UserGamification, error) {
	return m.record("apply_points", userID)
}

func (m *mockEngine) AdjustAsAdmin(_ context.Context, adj scoring.AdminAdjustment) (*models.UserGamification, error) {
	m.lastAdjust = adj
	return m.record("admin_adjust", adj.TargetUserID)
}

func (m *mockEngine) ApplyNoSalesPenalty(_ context.Context, userID uint) (*models.UserGamification, error) {
	return m.record("no_sales_penalty", userID)
}

func (m *mockEngine) UpdateDailyGoal(_ context.Context, userID uint, _ string, _ float64) (*models.UserGamification, error) {
	return m.record("update_daily_goal", userID)
}

func (m *mockEngine) RecordSale(_ context.Context, sale scoring.SaleEvent) (*models.UserGamification, error) {
	m.lastSale = sale
	return m.record("record_sale", sale.SellerID)
}

func (m *mockEngine) RecordActivity(_ context.Context, userID uint, _ string) (*models.UserGamification, error) {
	return m.record("record_activity", userID)
}

func (m *mockEngine) ApplyViolation(_ context.Context, userID uint, _ string) (*models.UserGamification, error) {
	return m.record("violation", userID)
}

func (m *mockEngine) Status(_ context.Context, userID uint) (*models.UserGamification, error) {
	return m.record("status", userID)
}

// Mock Streak Tracker
type mockTracker struct {
	month string
}

func (m *mockTracker) UpdateBestSellerStatus(_ context.Context, userID uint, month string) (*models.UserGamification, error) {
	m.month = month
	return &models.UserGamification{UserID: userID, ConsecutiveBestSellerCount: 1, LastBestSellerMonth: &month}, nil
}

// Mock Notification Service
type mockNotifications struct {
	notifications map[uint][]models.GamificationNotification
	lastUnread    bool
	lastLimit     int
	read          []uint
}

func (m *mockNotifications) List(_ context.Context, userID uint, unreadOnly bool, limit int) (*notify.Listing, error) {
	m.lastUnread = unreadOnly
	m.lastLimit = limit
	list, exists := m.notifications[userID]
	if !exists {
		return nil, apperrors.NotFound("user", userID)
	}
	return &notify.Listing{Notifications: list, Unread: int64(len(list))}, nil
}

func (m *mockNotifications) MarkRead(_ context.Context, userID, notificationID uint) error {
	for _, n := range m.notifications[userID] {
		if n.ID == notificationID {
			m.read = append(m.read, notificationID)
			return nil
		}
	}
	return apperrors.NotFound("notification", notificationID)
}

// Test Setup
type testEnv struct {
	router        *gin.Engine
	engine        *mockEngine
	tracker       *mockTracker
	notifications *mockNotifications
	rules         *ruleset.Store
}

func setupTestEnv() *testEnv {
	gin.SetMode(gin.TestMode)
	env := &testEnv{
		engine:        &mockEngine{},
		tracker:       &mockTracker{},
		notifications: &mockNotifications{notifications: make(map[uint][]models.GamificationNotification)},
		rules:         ruleset.NewStore(nil, logger.Nop()),
	}
	handler := NewHandlerWithInterfaces(env.engine, env.tracker, env.notifications, env.rules, logger.Nop())
	env.router = gin.New()
	handler.RegisterRoutes(env.router.Group("/api/v1"))
	return env
}

func (env *testEnv) do(method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	return w, decoded
}

// Tests

func TestApplyPoints_Success(t *testing.T) {
	env := setupTestEnv()
	env.engine.result = &models.UserGamification{UserID: 1, TotalPoints: 150, CurrentLevel: 2}

	w, body := env.do("POST", "/api/v1/points/apply", gin.H{"user_id": 1, "points": 50, "reason": "bonus"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["applied"])
	ug := body["gamification"].(map[string]interface{})
	assert.Equal(t, float64(150), ug["total_points"])
	assert.Equal(t, "apply_points", env.engine.lastOp)
}

func TestApplyPoints_InvalidBody(t *testing.T) {
	env := setupTestEnv()

	tests := []struct {
		name string
		body interface{}
	}{
		{"malformed json", "{not json"},
		{"missing user", gin.H{"points": 10, "reason": "bonus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := env.do("POST", "/api/v1/points/apply", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, body["error"], "invalid request body")
		})
	}
	assert.Empty(t, env.engine.lastOp)
}

func TestApplyPoints_ValidationError(t *testing.T) {
	env := setupTestEnv()
	env.engine.err = apperrors.Invalid("reason", "must not be empty")

	w, body := env.do("POST", "/api/v1/points/apply", gin.H{"user_id": 1, "points": 10})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_failed", body["code"])
	assert.Equal(t, "reason", body["field"])
}

func TestNoSalesPenalty_Noop(t *testing.T) {
	env := setupTestEnv()

	w, body := env.do("POST", "/api/v1/penalties/no-sales", gin.H{"user_id": 3})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["applied"])
	assert.Nil(t, body["gamification"])
	assert.Equal(t, uint(3), env.engine.lastUserID)
}

func TestAdminAdjust_PassesRequest(t *testing.T) {
	env := setupTestEnv()
	env.engine.result = &models.UserGamification{UserID: 2, TotalPoints: 40}

	w, _ := env.do("POST", "/api/v1/points/admin-adjust", gin.H{
		"admin_id":        9,
		"user_id":         2,
		"points":          60,
		"reason":          "correction",
		"adjustment_type": "subtract",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, scoring.AdminAdjustment{
		AdminID:      9,
		TargetUserID: 2,
		Points:       60,
		Reason:       "correction",
		Kind:         "subtract",
	}, env.engine.lastAdjust)
}

func TestAdminAdjust_Rejections(t *testing.T) {
	available := time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{
			name:   "cooldown",
			err:    &apperrors.CooldownError{AdminID: 9, TargetUserID: 2, Remaining: 90 * time.Minute, AvailableAt: available},
			status: http.StatusTooManyRequests,
			code:   "cooldown_active",
		},
		{
			name:   "daily cap",
			err:    &apperrors.DailyCapError{AdminID: 9, Used: 900, Requested: 200, Limit: 1000},
			status: http.StatusTooManyRequests,
			code:   "daily_cap_exceeded",
		},
		{
			name:   "not an admin",
			err:    fmt.Errorf("user 9 has role \"seller\": %w", apperrors.ErrForbidden),
			status: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEnv()
			env.engine.err = tt.err

			w, body := env.do("POST", "/api/v1/points/admin-adjust", gin.H{
				"admin_id": 9, "user_id": 2, "points": 200, "reason": "x", "adjustment_type": "add",
			})

			assert.Equal(t, tt.status, w.Code)
			if tt.code != "" {
				assert.Equal(t, tt.code, body["code"])
			}
		})
	}
}

func TestAdminAdjust_CooldownDetails(t *testing.T) {
	env := setupTestEnv()
	env.engine.err = &apperrors.CooldownError{Remaining: 90 * time.Minute, AvailableAt: time.Now().Add(90 * time.Minute)}

	w, body := env.do("POST", "/api/v1/points/admin-adjust", gin.H{
		"admin_id": 9, "user_id": 2, "points": 10, "reason": "x", "adjustment_type": "add",
	})

	assert.Equal(t, "5400", w.Header().Get("Retry-After"))
	assert.Equal(t, float64(5400), body["remaining_seconds"])
}

func TestRecordSale_ParsesTimestamp(t *testing.T) {
	env := setupTestEnv()
	env.engine.result = &models.UserGamification{UserID: 5}

	w, _ := env.do("POST", "/api/v1/sales", gin.H{
		"seller_id":  5,
		"amount":     249.9,
		"items":      3,
		"sold_at":    "2024-03-15T10:30:00Z",
		"conditions": []string{"weekend"},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint(5), env.engine.lastSale.SellerID)
	assert.Equal(t, 3, env.engine.lastSale.Items)
	assert.True(t, env.engine.lastSale.SoldAt.Equal(time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)))
	assert.Equal(t, []string{"weekend"}, env.engine.lastSale.Conditions)
}

func TestRecordSale_DefaultsSoldAt(t *testing.T) {
	env := setupTestEnv()

	w, _ := env.do("POST", "/api/v1/sales", gin.H{"seller_id": 5, "amount": 10})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.engine.lastSale.SoldAt.IsZero())
}

func TestEventEndpoints_RouteToEngine(t *testing.T) {
	tests := []struct {
		path string
		body gin.H
		op   string
	}{
		{"/api/v1/goals/update", gin.H{"user_id": 4, "goal_type": "daily_sales", "increment": 1}, "update_daily_goal"},
		{"/api/v1/activities", gin.H{"user_id": 4, "kind": "training_completed"}, "record_activity"},
		{"/api/v1/violations", gin.H{"user_id": 4, "violation": "late_arrival"}, "violation"},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			env := setupTestEnv()
			env.engine.result = &models.UserGamification{UserID: 4}

			w, _ := env.do("POST", tt.path, tt.body)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.op, env.engine.lastOp)
			assert.Equal(t, uint(4), env.engine.lastUserID)
		})
	}
}

func TestUpdateBestSeller(t *testing.T) {
	env := setupTestEnv()

	w, body := env.do("POST", "/api/v1/streak/update-best-seller", gin.H{"user_id": 7, "month": "2024-02"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2024-02", env.tracker.month)
	ug := body["gamification"].(map[string]interface{})
	assert.Equal(t, "2024-02", ug["last_best_seller_month"])
}

func TestGetStatus(t *testing.T) {
	env := setupTestEnv()
	env.engine.result = &models.UserGamification{UserID: 8, CurrentLevel: 1}

	w, body := env.do("GET", "/api/v1/users/8/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, body["gamification"])

	w, _ = env.do("GET", "/api/v1/users/zero/status", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetStatus_StorageUnavailable(t *testing.T) {
	env := setupTestEnv()
	env.engine.err = apperrors.Classify("status", errors.New("dial tcp: connection refused"))

	w, body := env.do("GET", "/api/v1/users/8/status", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, body["error"], "connection refused")
}

func TestListNotifications(t *testing.T) {
	env := setupTestEnv()
	env.notifications.notifications[1] = []models.GamificationNotification{
		{ID: 10, UserID: 1, Type: "badge_earned", Title: "Bronze Seller"},
	}

	w, body := env.do("GET", "/api/v1/users/1/notifications?unread=true&limit=5", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["unread"])
	assert.True(t, env.notifications.lastUnread)
	assert.Equal(t, 5, env.notifications.lastLimit)
}

func TestListNotifications_Errors(t *testing.T) {
	env := setupTestEnv()

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"unknown user", "/api/v1/users/42/notifications", http.StatusNotFound},
		{"bad unread flag", "/api/v1/users/1/notifications?unread=maybe", http.StatusBadRequest},
		{"bad limit", "/api/v1/users/1/notifications?limit=-1", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := env.do("GET", tt.path, nil)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestMarkNotificationRead(t *testing.T) {
	env := setupTestEnv()
	env.notifications.notifications[1] = []models.GamificationNotification{{ID: 10, UserID: 1}}

	w, _ := env.do("POST", "/api/v1/users/1/notifications/10/read", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []uint{10}, env.notifications.read)

	w, _ = env.do("POST", "/api/v1/users/1/notifications/11/read", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRuleset_GetReplaceReload(t *testing.T) {
	env := setupTestEnv()

	w, body := env.do("GET", "/api/v1/ruleset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["version"])

	next := ruleset.Default()
	next.AdminConfig.CooldownHours = 12
	w, body = env.do("PUT", "/api/v1/ruleset", next)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["version"])
	assert.Equal(t, 12, env.rules.Current().AdminConfig.CooldownHours)

	w, body = env.do("POST", "/api/v1/ruleset/reload", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), body["version"])
}

func TestReplaceRuleset_Invalid(t *testing.T) {
	env := setupTestEnv()

	next := ruleset.Default()
	next.AvatarLevels = nil
	w, body := env.do("PUT", "/api/v1/ruleset", next)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "avatar_levels")
	assert.Equal(t, uint64(1), env.rules.Current().Version)
}

type failingRulesSource struct{}

func (failingRulesSource) Load(context.Context) (*ruleset.Ruleset, error) { return nil, nil }

func (failingRulesSource) Save(context.Context, *ruleset.Ruleset) error {
	return errors.New("dial tcp 10.0.0.5:5432: connection refused")
}

func TestReplaceRuleset_StorageFailure(t *testing.T) {
	env := setupTestEnv()
	env.rules = ruleset.NewStore(failingRulesSource{}, logger.Nop())
	handler := NewHandlerWithInterfaces(env.engine, env.tracker, env.notifications, env.rules, logger.Nop())
	env.router = gin.New()
	handler.RegisterRoutes(env.router.Group("/api/v1"))

	next := ruleset.Default()
	next.DailyGoals.CompletionBonus = 25
	w, body := env.do("PUT", "/api/v1/ruleset", next)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, body["error"], "connection refused")
	assert.Equal(t, uint64(1), env.rules.Current().Version)
}
