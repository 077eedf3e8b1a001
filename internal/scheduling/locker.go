package scheduling

import (
	"context"
	"fmt"
	"sync"
)

// Locker guards critical sections by key across every process that shares
// the store.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type localLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// NewLocalLocker returns a Locker for a single process. Waiting for a key
// stops when ctx is done.
func NewLocalLocker() Locker {
	return &localLocker{locks: make(map[string]*keyLock)}
}

func (l *localLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	kl := l.acquireRef(key)
	defer l.releaseRef(key, kl)

	select {
	case kl.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("lock %s: %w: %w", key, ErrBusy, ctx.Err())
	}
	defer func() { <-kl.sem }()

	return fn(ctx)
}

func (l *localLocker) acquireRef(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *localLocker) releaseRef(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

func availabilityLockKey(caregiver, date string) string {
	return "lock:availability:" + caregiver + ":" + date
}

func reserveLockKey(date string) string {
	return "lock:reserve:" + date
}

func appointmentLockKey(id int64) string {
	return fmt.Sprintf("lock:appointment:%d", id)
}
