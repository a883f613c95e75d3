// Package response holds the JSON error envelope and request parsing helpers shared by the HTTP
// handlers.
package response

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/retail-gamification/internal/apperrors"
)

// MaxLimit bounds list sizes requested through the limit query parameter.
const MaxLimit = 1000

// Error sends a standardized error response.
func Error(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrCooldownActive), errors.Is(err, apperrors.ErrDailyCapExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperrors.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromError sends the response for err and returns the status used. Rate limit rejections carry
// their details so clients can retry at the right time.
func FromError(c *gin.Context, err error) int {
	status := StatusFor(err)
	body := gin.H{
		"error":     publicMessage(status, err),
		"timestamp": time.Now().UTC(),
	}

	var cooldown *apperrors.CooldownError
	var dailyCap *apperrors.DailyCapError
	var invalid *apperrors.ValidationError
	switch {
	case errors.As(err, &cooldown):
		seconds := int(cooldown.Remaining.Round(time.Second).Seconds())
		c.Header("Retry-After", strconv.Itoa(seconds))
		body["code"] = "cooldown_active"
		body["remaining_seconds"] = seconds
		body["available_at"] = cooldown.AvailableAt.UTC()
	case errors.As(err, &dailyCap):
		body["code"] = "daily_cap_exceeded"
		body["used"] = dailyCap.Used
		body["limit"] = dailyCap.Limit
		body["remaining"] = dailyCap.Remaining()
	case errors.As(err, &invalid):
		body["code"] = "validation_failed"
		body["field"] = invalid.Field
	}

	c.JSON(status, body)
	return status
}

// publicMessage hides internal error text behind a generic message.
func publicMessage(status int, err error) string {
	switch status {
	case http.StatusServiceUnavailable:
		return "Storage temporarily unavailable"
	case http.StatusInternalServerError:
		return "Internal server error"
	default:
		return err.Error()
	}
}

// ParseID extracts and validates a numeric URL parameter.
func ParseID(c *gin.Context, param, what string) (uint, error) {
	idStr := c.Param(param)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s ID: %s", what, idStr)
	}
	return uint(id), nil
}

// ParseLimit extracts and validates the limit query parameter.
func ParseLimit(c *gin.Context, defaultLimit int) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %s", limitStr)
	}

	if limit < 1 {
		return 0, fmt.Errorf("limit must be greater than 0")
	}

	if limit > MaxLimit {
		return 0, fmt.Errorf("limit cannot exceed %d", MaxLimit)
	}

	return limit, nil
}
