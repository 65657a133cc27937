package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/aegis-ai/aegis/session"
	"github.com/aegis-ai/aegis/store"
)

// CreateSession inserts a new session record, failing with
// store.ErrAlreadyExists when the key is taken.
func (s *Store) CreateSession(ctx context.Context, p *session.Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", p.SessionID, err)
	}
	ok, err := s.client.SetNX(ctx, sessionKey(p.ProjectID, p.SessionID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to store session %s: %w", p.SessionID, err)
	}
	if !ok {
		return fmt.Errorf("%w: session %s", store.ErrAlreadyExists, p.SessionID)
	}
	return nil
}

// GetSession fetches a session record by key.
func (s *Store) GetSession(ctx context.Context, projectID, sessionID string) (*session.Progress, error) {
	raw, err := s.client.Get(ctx, sessionKey(projectID, sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", session.ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	var p session.Progress
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", sessionID, err)
	}
	return &p, nil
}

// UpdateSession applies an optimistic update guarded by WATCH, returning
// store.ErrConflict on a lost race.
func (s *Store) UpdateSession(ctx context.Context, p *session.Progress) error {
	key := sessionKey(p.ProjectID, p.SessionID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("%w: %s", session.ErrNotFound, p.SessionID)
			}
			return fmt.Errorf("failed to read session %s: %w", p.SessionID, err)
		}
		var cur session.Progress
		if err := json.Unmarshal([]byte(raw), &cur); err != nil {
			return fmt.Errorf("failed to unmarshal session %s: %w", p.SessionID, err)
		}
		if cur.Version != p.Version {
			return fmt.Errorf("%w: session %s at version %d, caller held %d",
				store.ErrConflict, p.SessionID, cur.Version, p.Version)
		}

		next := *p
		next.CreatedAt = cur.CreatedAt
		next.Version = cur.Version + 1

		data, err := json.Marshal(&next)
		if err != nil {
			return fmt.Errorf("failed to marshal session %s: %w", p.SessionID, err)
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		}); err != nil {
			return err
		}

		*p = next
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: session %s modified concurrently", store.ErrConflict, p.SessionID)
	}
	return err
}
