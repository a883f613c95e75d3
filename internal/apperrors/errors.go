// Package apperrors defines the error taxonomy shared by the scoring engine and its callers.
package apperrors

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. Typed errors below match these through errors.Is.
var (
	ErrValidation       = errors.New("validation failed")
	ErrCooldownActive   = errors.New("admin adjustment cooldown active")
	ErrDailyCapExceeded = errors.New("admin daily adjustment cap exceeded")
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("actor is not allowed to perform this operation")
	ErrAlreadyAwarded   = errors.New("already awarded")
	ErrPersistence      = errors.New("persistence failure")
)

// ValidationError reports malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// CooldownError is returned when the same admin adjusted the same target too recently.
type CooldownError struct {
	AdminID      uint
	TargetUserID uint
	Remaining    time.Duration
	AvailableAt  time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("admin %d must wait %s before adjusting user %d again",
		e.AdminID, e.Remaining.Round(time.Minute), e.TargetUserID)
}

// Is reports whether target is ErrCooldownActive.
func (e *CooldownError) Is(target error) bool { return target == ErrCooldownActive }

// DailyCapError is returned when an adjustment would exceed the admin's daily budget.
type DailyCapError struct {
	AdminID   uint
	Used      int
	Requested int
	Limit     int
}

// Remaining returns the points the admin can still adjust today.
func (e *DailyCapError) Remaining() int {
	if r := e.Limit - e.Used; r > 0 {
		return r
	}
	return 0
}

func (e *DailyCapError) Error() string {
	return fmt.Sprintf("admin %d requested %d points but only %d of %d remain today",
		e.AdminID, e.Requested, e.Remaining(), e.Limit)
}

// Is reports whether target is ErrDailyCapExceeded.
func (e *DailyCapError) Is(target error) bool { return target == ErrDailyCapExceeded }

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Entity string
	Key    interface{}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.Key)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(entity string, key interface{}) error {
	return &NotFoundError{Entity: entity, Key: key}
}

// PersistenceError wraps a storage or transport failure. Callers may retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying storage error.
func (e *PersistenceError) Unwrap() error { return e.Err }

// Is reports whether target is ErrPersistence.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// IsDomain reports whether err belongs to the caller-facing taxonomy and must be passed through unchanged.
func IsDomain(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrCooldownActive) ||
		errors.Is(err, ErrDailyCapExceeded) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrPersistence)
}

// Classify passes domain errors through and wraps anything else as a PersistenceError.
func Classify(op string, err error) error {
	if err == nil || IsDomain(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
