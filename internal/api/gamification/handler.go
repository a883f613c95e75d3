// Package gamification provides the REST API through which business events reach the scoring
// engine, plus notification and ruleset management endpoints.
package gamification

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/retail-gamification/internal/api/response"
	prommetrics "github.com/aimd54/retail-gamification/internal/metrics"
	"github.com/aimd54/retail-gamification/internal/models"
	"github.com/aimd54/retail-gamification/internal/notify"
	"github.com/aimd54/retail-gamification/internal/ruleset"
	"github.com/aimd54/retail-gamification/internal/service/scoring"
	"github.com/aimd54/retail-gamification/internal/service/streak"
	"github.com/aimd54/retail-gamification/pkg/logger"
)

// Engine interface for scoring operations.
type Engine interface {
	ApplyPoints(ctx context.Context, userID uint, delta int, reason string) (*models.UserGamification, error)
	AdjustAsAdmin(ctx context.Context, adj scoring.AdminAdjustment) (*models.UserGamification, error)
	ApplyNoSalesPenalty(ctx context.Context, userID uint) (*models.UserGamification, error)
	UpdateDailyGoal(ctx context.Context, userID uint, goalType string, increment float64) (*models.UserGamification, error)
	RecordSale(ctx context.Context, sale scoring.SaleEvent) (*models.UserGamification, error)
	RecordActivity(ctx context.Context, userID uint, kind string) (*models.UserGamification, error)
	ApplyViolation(ctx context.Context, userID uint, violation string) (*models.UserGamification, error)
	Status(ctx context.Context, userID uint) (*models.UserGamification, error)
}

// StreakTracker interface for best-seller updates.
type StreakTracker interface {
	UpdateBestSellerStatus(ctx context.Context, userID uint, month string) (*models.UserGamification, error)
}

// NotificationService interface for the notification stream.
type NotificationService interface {
	List(ctx context.Context, userID uint, unreadOnly bool, limit int) (*notify.Listing, error)
	MarkRead(ctx context.Context, userID, notificationID uint) error
}

// RulesetStore interface for ruleset management.
type RulesetStore interface {
	Current() *ruleset.Ruleset
	Replace(ctx context.Context, rs *ruleset.Ruleset) (*ruleset.Ruleset, error)
	Reload(ctx context.Context) (*ruleset.Ruleset, error)
}

// Handler handles gamification API requests.
type Handler struct {
	engine        Engine
	tracker       StreakTracker
	notifications NotificationService
	rules         RulesetStore
	log           *logger.Logger
}

// NewHandler creates a new gamification handler.
func NewHandler(
	engine *scoring.Engine,
	tracker *streak.Tracker,
	notifications *notify.Service,
	rules *ruleset.Store,
	log *logger.Logger,
) *Handler {
	return NewHandlerWithInterfaces(engine, tracker, notifications, rules, log)
}

// NewHandlerWithInterfaces creates a new gamification handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(
	engine Engine,
	tracker StreakTracker,
	notifications NotificationService,
	rules RulesetStore,
	log *logger.Logger,
) *Handler {
	return &Handler{
		engine:        engine,
		tracker:       tracker,
		notifications: notifications,
		rules:         rules,
		log:           log.Component("gamification_api"),
	}
}

// RegisterRoutes mounts the gamification endpoints on group.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/points/apply", h.ApplyPoints)
	group.POST("/points/admin-adjust", h.AdminAdjust)
	group.POST("/penalties/no-sales", h.NoSalesPenalty)
	group.POST("/goals/update", h.UpdateDailyGoal)
	group.POST("/streak/update-best-seller", h.UpdateBestSeller)
	group.POST("/sales", h.RecordSale)
	group.POST("/activities", h.RecordActivity)
	group.POST("/violations", h.ApplyViolation)

	group.GET("/users/:id/status", h.GetStatus)
	group.GET("/users/:id/notifications", h.ListNotifications)
	group.POST("/users/:id/notifications/:nid/read", h.MarkNotificationRead)

	group.GET("/ruleset", h.GetRuleset)
	group.PUT("/ruleset", h.ReplaceRuleset)
	group.POST("/ruleset/reload", h.ReloadRuleset)
}

type applyPointsRequest struct {
	UserID uint   `json:"user_id" binding:"required"`
	Points int    `json:"points"`
	Reason string `json:"reason"`
}

// ApplyPoints adds or removes points.
// POST /api/v1/points/apply.
func (h *Handler) ApplyPoints(c *gin.Context) {
	var req applyPointsRequest
	if !h.bind(c, &req) {
		return
	}
	ug, err := h.engine.ApplyPoints(c.Request.Context(), req.UserID, req.Points, req.Reason)
	h.respond(c, "apply_points", ug, err)
}

type adminAdjustRequest struct {
	AdminID uint   `json:"admin_id" binding:"required"`
	UserID  uint   `json:"user_id" binding:"required"`
	Points  int    `json:"points"`
	Reason  string `json:"reason"`
	Kind    string `json:"adjustment_type"`
}

// AdminAdjust applies a privileged adjustment.
// POST /api/v1/points/admin-adjust.
func (h *Handler) AdminAdjust(c *gin.Context) {
	var req adminAdjustRequest
	if !h.bind(c, &req) {
		return
	}
	ug, err := h.engine.AdjustAsAdmin(c.Request.Context(), scoring.AdminAdjustment{
		AdminID:      req.AdminID,
		TargetUserID: req.UserID,
		Points:       req.Points,
		Reason:       req.Reason,
		Kind:         req.Kind,
	})
	h.respond(c, "admin_adjust", ug, err)
}

type userRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

// NoSalesPenalty applies the daily no-sales penalty.
// POST /api/v1/penalties/no-sales.
func (h *Handler) NoSalesPenalty(c *gin.Context) {
	var req userRequest
	if !h.bind(c, &req) {
		return
	}
	ug, err := h.engine.ApplyNoSalesPenalty(c.Request.Context(), req.UserID)
	h.respond(c, "no_sales_penalty", ug, err)
}

type dailyGoalRequest struct {
	UserID    uint    `json:"user_id" binding:"required"`
	GoalType  string  `json:"goal_type" binding:"required"`
	Increment float64 `json:"increment"`
}

// UpdateDailyGoal advances a daily goal.
// POST /api/v1/goals/update.
func (h *Handler) UpdateDailyGoal(c *gin.Context) {
	var req dailyGoalRequest
	if !h.bind(c, &req) {
		return
	}
	ug, err := h.engine.UpdateDailyGoal(c.Request.Context(), req.UserID, req.GoalType, req.Increment)
	h.respond(c, "update_daily_goal", ug, err)
}

type bestSellerRequest struct {
	UserID uint   `json:"user_id" binding:"required"`
	Month  string `json:"month" binding:"required"`
}

// UpdateBestSeller records the best seller of a month.
// POST /api/v1/streak/update-best-seller.
func (h *Handler) UpdateBestSeller(c *gin.Context) {
	var req bestSellerRequest
	if !h.bind(c, &req) {
		return
	}
	ug, err := h.tracker.UpdateBestSellerStatus(c.Request.Context(), req.UserID, req.Month)
	h.respond(c, "update_best_seller", ug, err)
}

type saleRequest struct {
	SellerID   uint       `json:"seller_id" binding:"required"`
	Amount     float64    `json:"amount"`
	Items      int        `json:"items"`
	SoldAt     *time.Time `json:"sold_at"`
	Conditions []string   `json:"conditions"`
}

// RecordSale reports a completed sale.
// POST /api/v1/sales.
func (h *Handler) RecordSale(c *gin.Context) {
	var req saleRequest
	if !h.bind(c, &req) {
		return
	}
	sale := scoring.SaleEvent{
		SellerID:   req.SellerID,
		Amount:     req.Amount,
		Items:      req.Items,
		Conditions: req.Conditions,
	}
	if req.SoldAt != nil {
		sale.SoldAt = *req.SoldAt
	}
	ug, err := h.engine.RecordSale(c.Request.Context(), sale)
	h.respond(c, "record_sale", ug, err)
}

type activityRequest struct {
	UserID uint   `json:"user_id" binding:"required"`
	Kind   string `json:"kind" binding:"required"`
}

// RecordActivity reports a non-sale activity such as a completed training.
// POST /api/v1/activities.
func (h *Handler) RecordActivity(c *gin.Context) {
	var req activityRequest
	if !h.bind(c, &req) {
		return
	}
	ug, err := h.engine.RecordActivity(c.Request.Context(), req.UserID, req.Kind)
	h.respond(c, "record_activity", ug, err)
}

type violationRequest struct {
	UserID    uint   `json:"user_id" binding:"required"`
	Violation string `json:"violation" binding:"required"`
}

// ApplyViolation debits a configured penalty.
// POST /api/v1/violations.
func (h *Handler) ApplyViolation(c *gin.Context) {
	var req violationRequest
	if !h.bind(c, &req) {
		return
	}
	ug, err := h.engine.ApplyViolation(c.Request.Context(), req.UserID, req.Violation)
	h.respond(c, "violation", ug, err)
}

// GetStatus returns the user's points, level and streak.
// GET /api/v1/users/:id/status.
func (h *Handler) GetStatus(c *gin.Context) {
	userID, err := response.ParseID(c, "id", "user")
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	ug, err := h.engine.Status(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"gamification": ug})
}

// ListNotifications returns the user's notifications, newest first.
// GET /api/v1/users/:id/notifications?unread=true&limit=50.
func (h *Handler) ListNotifications(c *gin.Context) {
	userID, err := response.ParseID(c, "id", "user")
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := response.ParseLimit(c, notify.DefaultListLimit)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	unreadOnly, err := strconv.ParseBool(c.DefaultQuery("unread", "false"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid unread parameter")
		return
	}

	listing, err := h.notifications.List(c.Request.Context(), userID, unreadOnly, limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// MarkNotificationRead flags a notification as read.
// POST /api/v1/users/:id/notifications/:nid/read.
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	userID, err := response.ParseID(c, "id", "user")
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	notificationID, err := response.ParseID(c, "nid", "notification")
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.notifications.MarkRead(c.Request.Context(), userID, notificationID); err != nil {
		response.FromError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetRuleset returns the active ruleset.
// GET /api/v1/ruleset.
func (h *Handler) GetRuleset(c *gin.Context) {
	c.JSON(http.StatusOK, h.rules.Current())
}

// ReplaceRuleset validates, persists and activates a new ruleset.
// PUT /api/v1/ruleset.
func (h *Handler) ReplaceRuleset(c *gin.Context) {
	var rs ruleset.Ruleset
	if err := c.ShouldBindJSON(&rs); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid ruleset: "+err.Error())
		return
	}

	published, err := h.rules.Replace(c.Request.Context(), &rs)
	if err != nil {
		status := response.FromError(c, err)
		event := h.log.Warn()
		if status >= http.StatusInternalServerError {
			event = h.log.Error()
		}
		event.Err(err).Int("status", status).Msg("Ruleset replacement rejected")
		return
	}

	prommetrics.SetRulesetVersion(published.Version)
	h.log.Info().Uint64("version", published.Version).Msg("Ruleset replaced")
	c.JSON(http.StatusOK, published)
}

// ReloadRuleset re-reads the ruleset from its sources.
// POST /api/v1/ruleset/reload.
func (h *Handler) ReloadRuleset(c *gin.Context) {
	published, err := h.rules.Reload(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Ruleset reload failed")
		response.Error(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	prommetrics.SetRulesetVersion(published.Version)
	c.JSON(http.StatusOK, published)
}

func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// respond writes the outcome of an engine operation. A nil aggregate without error means the
// operation had nothing to do.
func (h *Handler) respond(c *gin.Context, op string, ug *models.UserGamification, err error) {
	if err != nil {
		status := response.FromError(c, err)
		event := h.log.Debug()
		if status >= http.StatusInternalServerError {
			event = h.log.Error()
		}
		event.Err(err).Str("operation", op).Int("status", status).Msg("Request rejected")
		return
	}
	if ug == nil {
		c.JSON(http.StatusOK, gin.H{"applied": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": true, "gamification": ug})
}
