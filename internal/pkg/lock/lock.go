// Package lock provides per-key exclusive locks that serialize read-modify-write cycles on one
// user's gamification state.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Locker runs fn while holding the exclusive lock for key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func() error) error
}

// UserKey is the lock key guarding a user's gamification aggregate.
func UserKey(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

// AdminKey is the lock key guarding an admin's adjustment budget.
func AdminKey(adminID uint) string {
	return fmt.Sprintf("admin:%d", adminID)
}

// keyMutex is a one-slot semaphore with a reference count for cleanup.
type keyMutex struct {
	slot     chan struct{}
	refCount int
}

// KeyedMutex is a process-local Locker. Entries are removed once nobody holds or waits on them.
type KeyedMutex struct {
	mu      sync.Mutex
	locks   map[string]*keyMutex
	timeout time.Duration
}

// NewKeyedMutex creates a KeyedMutex. A zero timeout waits until ctx is done.
func NewKeyedMutex(timeout time.Duration) *KeyedMutex {
	return &KeyedMutex{
		locks:   make(map[string]*keyMutex),
		timeout: timeout,
	}
}

func (k *KeyedMutex) ref(key string) *keyMutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	m, ok := k.locks[key]
	if !ok {
		m = &keyMutex{slot: make(chan struct{}, 1)}
		k.locks[key] = m
	}
	m.refCount++
	return m
}

func (k *KeyedMutex) unref(key string, m *keyMutex) {
	k.mu.Lock()
	defer k.mu.Unlock()

	m.refCount--
	if m.refCount == 0 {
		delete(k.locks, key)
	}
}

// Lock blocks until the lock for key is acquired or ctx is done. The returned function
// releases the lock.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m := k.ref(key)

	select {
	case m.slot <- struct{}{}:
		return func() {
			<-m.slot
			k.unref(key, m)
		}, nil
	case <-ctx.Done():
		k.unref(key, m)
		return nil, fmt.Errorf("%w: %s: %v", ErrLockTimeout, key, ctx.Err())
	}
}

// TryLock acquires the lock for key without blocking.
func (k *KeyedMutex) TryLock(key string) (func(), bool) {
	m := k.ref(key)

	select {
	case m.slot <- struct{}{}:
		return func() {
			<-m.slot
			k.unref(key, m)
		}, true
	default:
		k.unref(key, m)
		return nil, false
	}
}

// WithLock implements Locker.
func (k *KeyedMutex) WithLock(ctx context.Context, key string, fn func() error) error {
	lockCtx := ctx
	if k.timeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, k.timeout)
		defer cancel()
	}

	unlock, err := k.Lock(lockCtx, key)
	if err != nil {
		return err
	}
	defer unlock()

	return fn()
}

// Len returns the number of keys currently held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
