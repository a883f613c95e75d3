package lock

import "errors"

// Lock-related errors.
var (
	// ErrLockTimeout is returned when a lock cannot be acquired within the timeout period.
	ErrLockTimeout = errors.New("lock acquisition timeout")
	// ErrLockLost is returned when a distributed lock expired before it was released.
	ErrLockLost = errors.New("lock expired before release")
)
