package store

import (
	"context"
	"sync"
	"time"
)

// LocalLocker is an in-process Locker for single-process deployments and
// for engines built without a distributed lock backend. Held locks expire
// after their TTL so a leaked handle cannot stall writers forever.
//
// The zero value is not usable; construct with NewLocalLocker.
type LocalLocker struct {
	mu    sync.Mutex
	holds map[string]time.Time
}

// NewLocalLocker creates a LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{holds: make(map[string]time.Time)}
}

// AcquireLock attempts to take the named lock. Returns false without error
// while the lock is held and unexpired.
func (l *LocalLocker) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if exp, held := l.holds[name]; held && time.Now().Before(exp) {
		return false, nil
	}
	l.holds[name] = time.Now().Add(ttl)
	return true, nil
}

// ReleaseLock releases the named lock. Releasing an expired or unheld lock
// is a no-op.
func (l *LocalLocker) ReleaseLock(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.holds, name)
	return nil
}
