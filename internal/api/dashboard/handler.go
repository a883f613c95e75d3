// Package dashboard provides REST API handlers for the gamification dashboard.
// It exposes endpoints for leaderboards, user profiles, badges, and trophies.
package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/retail-gamification/internal/api/response"
	"github.com/aimd54/retail-gamification/internal/ruleset"
	"github.com/aimd54/retail-gamification/internal/service/leaderboard"
	"github.com/aimd54/retail-gamification/pkg/logger"
)

// LeaderboardService interface for leaderboard and profile reads.
type LeaderboardService interface {
	GetGlobalLeaderboard(ctx context.Context, limit int) ([]leaderboard.Entry, error)
	GetStoreLeaderboard(ctx context.Context, store string, limit int) ([]leaderboard.Entry, error)
	GetUserProfile(ctx context.Context, userID uint, period ruleset.Period) (*leaderboard.UserProfile, error)
	GetUserBadges(ctx context.Context, userID uint) ([]leaderboard.BadgeView, error)
	ListBadges(ctx context.Context) ([]leaderboard.BadgeSummary, error)
	ListTrophies() []ruleset.Trophy
}

// Handler handles dashboard API requests.
type Handler struct {
	leaderboardService LeaderboardService
	log                *logger.Logger
}

// NewHandler creates a new dashboard handler.
func NewHandler(leaderboardService *leaderboard.Service, log *logger.Logger) *Handler {
	return NewHandlerWithInterfaces(leaderboardService, log)
}

// NewHandlerWithInterfaces creates a new dashboard handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(leaderboardService LeaderboardService, log *logger.Logger) *Handler {
	return &Handler{
		leaderboardService: leaderboardService,
		log:                log.Component("dashboard"),
	}
}

// RegisterRoutes mounts the dashboard endpoints on group.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/leaderboard", h.GetGlobalLeaderboard)
	group.GET("/leaderboard/:store", h.GetStoreLeaderboard)
	group.GET("/users/:id/profile", h.GetUserProfile)
	group.GET("/users/:id/badges", h.GetUserBadges)
	group.GET("/badges", h.GetBadgeCatalog)
	group.GET("/trophies", h.GetTrophyCatalog)
}

// GetGlobalLeaderboard returns the global points leaderboard.
// GET /api/v1/leaderboard?limit=10.
func (h *Handler) GetGlobalLeaderboard(c *gin.Context) {
	limit, err := response.ParseLimit(c, 10)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.leaderboardService.GetGlobalLeaderboard(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get global leaderboard")
		response.FromError(c, err)
		return
	}

	h.log.Debug().
		Int("limit", limit).
		Int("entries", len(entries)).
		Msg("Retrieved global leaderboard")

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":   entries,
		"total_entries": len(entries),
		"generated_at":  time.Now().UTC(),
	})
}

// GetStoreLeaderboard returns the leaderboard for a specific store.
// GET /api/v1/leaderboard/:store?limit=10.
func (h *Handler) GetStoreLeaderboard(c *gin.Context) {
	store := c.Param("store")
	if store == "" {
		response.Error(c, http.StatusBadRequest, "store parameter is required")
		return
	}

	limit, err := response.ParseLimit(c, 10)
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.leaderboardService.GetStoreLeaderboard(c.Request.Context(), store, limit)
	if err != nil {
		h.log.Error().Err(err).Str("store", store).Msg("Failed to get store leaderboard")
		response.FromError(c, err)
		return
	}

	h.log.Debug().
		Str("store", store).
		Int("limit", limit).
		Int("entries", len(entries)).
		Msg("Retrieved store leaderboard")

	c.JSON(http.StatusOK, gin.H{
		"store":         store,
		"leaderboard":   entries,
		"total_entries": len(entries),
		"generated_at":  time.Now().UTC(),
	})
}

// GetUserProfile returns the gamification profile of a user.
// GET /api/v1/users/:id/profile?period=monthly.
func (h *Handler) GetUserProfile(c *gin.Context) {
	userID, err := response.ParseID(c, "id", "user")
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	period := ruleset.Period(c.DefaultQuery("period", string(ruleset.PeriodMonthly)))
	if err := validatePeriod(period); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	profile, err := h.leaderboardService.GetUserProfile(c.Request.Context(), userID, period)
	if err != nil {
		h.log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to get user profile")
		response.FromError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"profile":      profile,
		"generated_at": time.Now().UTC(),
	})
}

// GetUserBadges returns badges earned by a specific user.
// GET /api/v1/users/:id/badges.
func (h *Handler) GetUserBadges(c *gin.Context) {
	userID, err := response.ParseID(c, "id", "user")
	if err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	userBadges, err := h.leaderboardService.GetUserBadges(c.Request.Context(), userID)
	if err != nil {
		h.log.Warn().Err(err).Uint("user_id", userID).Msg("Failed to get user badges")
		response.FromError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"badges":       userBadges,
		"total_badges": len(userBadges),
		"generated_at": time.Now().UTC(),
	})
}

// GetBadgeCatalog returns all active badges with holder counts.
// GET /api/v1/badges.
func (h *Handler) GetBadgeCatalog(c *gin.Context) {
	catalog, err := h.leaderboardService.ListBadges(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get badge catalog")
		response.FromError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"badges":       catalog,
		"total_badges": len(catalog),
		"generated_at": time.Now().UTC(),
	})
}

// GetTrophyCatalog returns all active trophies.
// GET /api/v1/trophies.
func (h *Handler) GetTrophyCatalog(c *gin.Context) {
	trophies := h.leaderboardService.ListTrophies()

	c.JSON(http.StatusOK, gin.H{
		"trophies":       trophies,
		"total_trophies": len(trophies),
		"generated_at":   time.Now().UTC(),
	})
}

// validatePeriod validates the period parameter.
func validatePeriod(period ruleset.Period) error {
	switch period {
	case ruleset.PeriodDaily, ruleset.PeriodWeekly, ruleset.PeriodMonthly,
		ruleset.PeriodQuarterly, ruleset.PeriodYearly, ruleset.PeriodAllTime:
		return nil
	}
	return fmt.Errorf("invalid period: %s (valid: daily, weekly, monthly, quarterly, yearly, all_time)", period)
}
