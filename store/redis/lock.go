package redis

import (
	"context"
	"fmt"
	"time"
)

// AcquireLock claims a named lock for ttl using SETNX. Returns false when
// another holder owns it. The TTL bounds how long a crashed holder can
// block others.
func (s *Store) AcquireLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, lockPrefix+name, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	return ok, nil
}

// ReleaseLock drops a named lock. Releasing an expired or unheld lock is a
// no-op.
func (s *Store) ReleaseLock(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, lockPrefix+name).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", name, err)
	}
	return nil
}
