package apperrors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"validation", Invalid("points", "must be positive"), ErrValidation},
		{"cooldown", &CooldownError{Remaining: time.Hour}, ErrCooldownActive},
		{"daily cap", &DailyCapError{Used: 80, Requested: 30, Limit: 100}, ErrDailyCapExceeded},
		{"not found", NotFound("user", 7), ErrNotFound},
		{"persistence", &PersistenceError{Op: "apply points", Err: errors.New("boom")}, ErrPersistence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.ErrorIs(t, fmt.Errorf("wrapped: %w", tt.err), tt.sentinel)
		})
	}
}

func TestDailyCapErrorRemaining(t *testing.T) {
	err := &DailyCapError{AdminID: 1, Used: 80, Requested: 30, Limit: 100}
	assert.Equal(t, 20, err.Remaining())
	assert.Contains(t, err.Error(), "only 20 of 100 remain")

	over := &DailyCapError{Used: 120, Limit: 100}
	assert.Equal(t, 0, over.Remaining())
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify("op", nil))

	validation := Invalid("goal_type", "unknown goal %q", "x")
	assert.Same(t, validation, Classify("op", validation))

	cause := errors.New("connection reset")
	wrapped := Classify("apply points", cause)
	assert.ErrorIs(t, wrapped, ErrPersistence)
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "apply points: connection reset", wrapped.Error())
}
